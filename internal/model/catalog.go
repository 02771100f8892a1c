package model

import "time"

// Subject groups essay questions, e.g. an exam or a course.
type Subject struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Question is an essay prompt that can seed a writing run.
type Question struct {
	ID        int64     `json:"id"`
	Title     string    `json:"title"`
	Question  string    `json:"question"`
	SubjectID *int64    `json:"subject_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SubjectRequest creates or updates a subject. On update, empty fields keep
// their current value.
type SubjectRequest struct {
	Name        string  `json:"name"`
	Description *string `json:"description,omitempty"`
}

// QuestionRequest creates or updates a question. On update, empty fields
// keep their current value.
type QuestionRequest struct {
	Title     string `json:"title"`
	Question  string `json:"question"`
	SubjectID *int64 `json:"subject_id,omitempty"`
}

// ListSubjectsResponse is the response for listing subjects.
type ListSubjectsResponse struct {
	Subjects []Subject `json:"subjects"`
	Total    int       `json:"total"`
}

// ListQuestionsResponse is the response for listing questions.
type ListQuestionsResponse struct {
	Questions []Question `json:"questions"`
	Total     int        `json:"total"`
}
