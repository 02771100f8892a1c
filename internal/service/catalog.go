package service

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/capitalize-ai/essay-pipeline/internal/model"
	"github.com/capitalize-ai/essay-pipeline/pkg/logger"
)

var (
	// ErrNotFound is returned by a Bucket for a missing key.
	ErrNotFound = errors.New("not found")

	ErrSubjectNotFound  = fmt.Errorf("subject %w", ErrNotFound)
	ErrQuestionNotFound = fmt.Errorf("question %w", ErrNotFound)

	// ErrSubjectInUse is returned when deleting a subject that questions still reference.
	ErrSubjectInUse = errors.New("subject still has questions")
)

const (
	subjectPrefix  = "subjects."
	questionPrefix = "questions."
)

// Bucket is a key/value store for catalogue records.
type Bucket interface {
	// Get returns ErrNotFound when key does not exist.
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
	// Delete returns ErrNotFound when key does not exist.
	Delete(ctx context.Context, key string) error
	// Keys lists the live keys starting with prefix.
	Keys(ctx context.Context, prefix string) ([]string, error)
	// Next increments the named counter and returns its new value, starting at 1.
	Next(ctx context.Context, counter string) (int64, error)
}

// MemoryBucket is a process-local Bucket, used when no NATS journal is configured.
type MemoryBucket struct {
	mu       sync.RWMutex
	records  map[string][]byte
	counters map[string]int64
}

// NewMemoryBucket creates an empty in-memory bucket.
func NewMemoryBucket() *MemoryBucket {
	return &MemoryBucket{
		records:  make(map[string][]byte),
		counters: make(map[string]int64),
	}
}

// Get implements Bucket.
func (b *MemoryBucket) Get(_ context.Context, key string) ([]byte, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	v, ok := b.records[key]
	if !ok {
		return nil, ErrNotFound
	}
	return slices.Clone(v), nil
}

// Put implements Bucket.
func (b *MemoryBucket) Put(_ context.Context, key string, value []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.records[key] = slices.Clone(value)
	return nil
}

// Delete implements Bucket.
func (b *MemoryBucket) Delete(_ context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.records[key]; !ok {
		return ErrNotFound
	}
	delete(b.records, key)
	return nil
}

// Keys implements Bucket.
func (b *MemoryBucket) Keys(_ context.Context, prefix string) ([]string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var keys []string
	for k := range b.records {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	return keys, nil
}

// Next implements Bucket.
func (b *MemoryBucket) Next(_ context.Context, counter string) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.counters[counter]++
	return b.counters[counter], nil
}

// CatalogService manages the subjects and questions essays are written for.
type CatalogService struct {
	bucket Bucket
	logger *logger.Logger
	now    func() time.Time
}

// NewCatalogService creates a catalogue over bucket.
func NewCatalogService(bucket Bucket, log *logger.Logger) *CatalogService {
	return &CatalogService{bucket: bucket, logger: log, now: time.Now}
}

func subjectKey(id int64) string  { return fmt.Sprintf("%s%d", subjectPrefix, id) }
func questionKey(id int64) string { return fmt.Sprintf("%s%d", questionPrefix, id) }

func load[T any](ctx context.Context, b Bucket, key string, missing error) (*T, error) {
	data, err := b.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return nil, missing
	}
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", key, err)
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("decode %s: %w", key, err)
	}
	return &v, nil
}

func store(ctx context.Context, b Bucket, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if err := b.Put(ctx, key, data); err != nil {
		return fmt.Errorf("store %s: %w", key, err)
	}
	return nil
}

func loadAll[T any](ctx context.Context, b Bucket, prefix string, id func(*T) int64) ([]T, error) {
	keys, err := b.Keys(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", strings.TrimSuffix(prefix, "."), err)
	}
	items := make([]T, 0, len(keys))
	for _, key := range keys {
		v, err := load[T](ctx, b, key, nil)
		if err != nil {
			return nil, err
		}
		// Deleted between Keys and Get.
		if v == nil {
			continue
		}
		items = append(items, *v)
	}
	slices.SortFunc(items, func(x, y T) int {
		return cmp.Compare(id(&x), id(&y))
	})
	return items, nil
}

// Subjects lists all subjects ordered by id.
func (s *CatalogService) Subjects(ctx context.Context) (*model.ListSubjectsResponse, error) {
	subjects, err := loadAll(ctx, s.bucket, subjectPrefix, func(v *model.Subject) int64 { return v.ID })
	if err != nil {
		return nil, err
	}
	return &model.ListSubjectsResponse{Subjects: subjects, Total: len(subjects)}, nil
}

// Subject returns one subject.
func (s *CatalogService) Subject(ctx context.Context, id int64) (*model.Subject, error) {
	return load[model.Subject](ctx, s.bucket, subjectKey(id), ErrSubjectNotFound)
}

// CreateSubject stores a new subject.
func (s *CatalogService) CreateSubject(ctx context.Context, req *model.SubjectRequest) (*model.Subject, error) {
	id, err := s.bucket.Next(ctx, "subject")
	if err != nil {
		return nil, fmt.Errorf("allocate subject id: %w", err)
	}
	now := s.now()
	subject := &model.Subject{
		ID:        id,
		Name:      strings.TrimSpace(req.Name),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if req.Description != nil {
		subject.Description = *req.Description
	}
	if err := store(ctx, s.bucket, subjectKey(id), subject); err != nil {
		return nil, err
	}
	s.logger.Info("subject created", zap.Int64("subject_id", id))
	return subject, nil
}

// UpdateSubject changes a subject's name or description.
func (s *CatalogService) UpdateSubject(ctx context.Context, id int64, req *model.SubjectRequest) (*model.Subject, error) {
	subject, err := s.Subject(ctx, id)
	if err != nil {
		return nil, err
	}
	if name := strings.TrimSpace(req.Name); name != "" {
		subject.Name = name
	}
	if req.Description != nil {
		subject.Description = *req.Description
	}
	subject.UpdatedAt = s.now()
	if err := store(ctx, s.bucket, subjectKey(id), subject); err != nil {
		return nil, err
	}
	return subject, nil
}

// DeleteSubject removes a subject no question refers to.
func (s *CatalogService) DeleteSubject(ctx context.Context, id int64) error {
	if _, err := s.Subject(ctx, id); err != nil {
		return err
	}
	questions, err := s.Questions(ctx, &id)
	if err != nil {
		return err
	}
	if questions.Total > 0 {
		return fmt.Errorf("%w: %d referencing subject %d", ErrSubjectInUse, questions.Total, id)
	}
	if err := s.bucket.Delete(ctx, subjectKey(id)); err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrSubjectNotFound
		}
		return fmt.Errorf("delete subject %d: %w", id, err)
	}
	s.logger.Info("subject deleted", zap.Int64("subject_id", id))
	return nil
}

// Questions lists questions ordered by id, only those of subjectID when it is set.
func (s *CatalogService) Questions(ctx context.Context, subjectID *int64) (*model.ListQuestionsResponse, error) {
	questions, err := loadAll(ctx, s.bucket, questionPrefix, func(v *model.Question) int64 { return v.ID })
	if err != nil {
		return nil, err
	}
	if subjectID != nil {
		questions = slices.DeleteFunc(questions, func(q model.Question) bool {
			return q.SubjectID == nil || *q.SubjectID != *subjectID
		})
	}
	return &model.ListQuestionsResponse{Questions: questions, Total: len(questions)}, nil
}

// Question returns one question.
func (s *CatalogService) Question(ctx context.Context, id int64) (*model.Question, error) {
	return load[model.Question](ctx, s.bucket, questionKey(id), ErrQuestionNotFound)
}

// CreateQuestion stores a new question. A referenced subject must exist.
func (s *CatalogService) CreateQuestion(ctx context.Context, req *model.QuestionRequest) (*model.Question, error) {
	if err := s.checkSubject(ctx, req.SubjectID); err != nil {
		return nil, err
	}
	id, err := s.bucket.Next(ctx, "question")
	if err != nil {
		return nil, fmt.Errorf("allocate question id: %w", err)
	}
	now := s.now()
	question := &model.Question{
		ID:        id,
		Title:     strings.TrimSpace(req.Title),
		Question:  strings.TrimSpace(req.Question),
		SubjectID: req.SubjectID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := store(ctx, s.bucket, questionKey(id), question); err != nil {
		return nil, err
	}
	s.logger.Info("question created", zap.Int64("question_id", id))
	return question, nil
}

// UpdateQuestion changes a question's title, text or subject.
func (s *CatalogService) UpdateQuestion(ctx context.Context, id int64, req *model.QuestionRequest) (*model.Question, error) {
	question, err := s.Question(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.checkSubject(ctx, req.SubjectID); err != nil {
		return nil, err
	}
	if title := strings.TrimSpace(req.Title); title != "" {
		question.Title = title
	}
	if text := strings.TrimSpace(req.Question); text != "" {
		question.Question = text
	}
	if req.SubjectID != nil {
		question.SubjectID = req.SubjectID
	}
	question.UpdatedAt = s.now()
	if err := store(ctx, s.bucket, questionKey(id), question); err != nil {
		return nil, err
	}
	return question, nil
}

// DeleteQuestion removes a question.
func (s *CatalogService) DeleteQuestion(ctx context.Context, id int64) error {
	if err := s.bucket.Delete(ctx, questionKey(id)); err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrQuestionNotFound
		}
		return fmt.Errorf("delete question %d: %w", id, err)
	}
	s.logger.Info("question deleted", zap.Int64("question_id", id))
	return nil
}

// ResolveTopic fills an empty topic from the referenced question.
func (s *CatalogService) ResolveTopic(ctx context.Context, req *model.WriteRequest) error {
	if req.QuestionID == nil || strings.TrimSpace(req.Topic) != "" {
		return nil
	}
	question, err := s.Question(ctx, *req.QuestionID)
	if err != nil {
		return err
	}
	req.Topic = question.Question
	return nil
}

func (s *CatalogService) checkSubject(ctx context.Context, id *int64) error {
	if id == nil {
		return nil
	}
	_, err := s.Subject(ctx, *id)
	return err
}
