package model

// WriteRequest asks a writing pipeline for a sample essay. QuestionID, when
// set and Topic is empty, takes the topic from a catalogue question.
type WriteRequest struct {
	Topic        string `json:"topic"`
	Requirements string `json:"requirements,omitempty"`
	QuestionID   *int64 `json:"question_id,omitempty"`
}

// RevisionRequest asks a revision pipeline to improve an essay.
type RevisionRequest struct {
	EssayContent string `json:"essay_content"`
}

// RunRequest starts an arbitrary configured pipeline with a free-text message.
type RunRequest struct {
	Message string `json:"message"`
}

// PipelineInfo describes a configured pipeline.
type PipelineInfo struct {
	Name      string   `json:"name"`
	Roles     []string `json:"roles"`
	Terminal  string   `json:"terminal"`
	MaxRounds int      `json:"max_rounds"`
}

// ListPipelinesResponse is the response for listing pipelines.
type ListPipelinesResponse struct {
	Pipelines []PipelineInfo `json:"pipelines"`
}
