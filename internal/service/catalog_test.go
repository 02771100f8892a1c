package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/essay-pipeline/internal/model"
	"github.com/capitalize-ai/essay-pipeline/pkg/logger"
)

func newTestCatalog() *CatalogService {
	c := NewCatalogService(NewMemoryBucket(), logger.NewNop())
	clock := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	c.now = func() time.Time {
		clock = clock.Add(time.Minute)
		return clock
	}
	return c
}

func ptr[T any](v T) *T { return &v }

func TestCatalogSubjects(t *testing.T) {
	ctx := context.Background()
	c := newTestCatalog()

	first, err := c.CreateSubject(ctx, &model.SubjectRequest{Name: "  Gaokao  ", Description: ptr("national exam")})
	require.NoError(t, err)
	assert.Equal(t, int64(1), first.ID)
	assert.Equal(t, "Gaokao", first.Name)
	assert.Equal(t, "national exam", first.Description)

	second, err := c.CreateSubject(ctx, &model.SubjectRequest{Name: "IELTS"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), second.ID)

	list, err := c.Subjects(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, list.Total)
	assert.Equal(t, "Gaokao", list.Subjects[0].Name)
	assert.Equal(t, "IELTS", list.Subjects[1].Name)

	updated, err := c.UpdateSubject(ctx, first.ID, &model.SubjectRequest{Description: ptr("")})
	require.NoError(t, err)
	assert.Equal(t, "Gaokao", updated.Name, "empty name keeps the current one")
	assert.Empty(t, updated.Description)
	assert.True(t, updated.UpdatedAt.After(first.UpdatedAt))

	require.NoError(t, c.DeleteSubject(ctx, second.ID))
	_, err = c.Subject(ctx, second.ID)
	assert.ErrorIs(t, err, ErrSubjectNotFound)
	assert.ErrorIs(t, c.DeleteSubject(ctx, second.ID), ErrNotFound)

	_, err = c.UpdateSubject(ctx, 99, &model.SubjectRequest{Name: "x"})
	assert.ErrorIs(t, err, ErrSubjectNotFound)
}

func TestCatalogQuestions(t *testing.T) {
	ctx := context.Background()
	c := newTestCatalog()

	gaokao, err := c.CreateSubject(ctx, &model.SubjectRequest{Name: "Gaokao"})
	require.NoError(t, err)
	ielts, err := c.CreateSubject(ctx, &model.SubjectRequest{Name: "IELTS"})
	require.NoError(t, err)

	_, err = c.CreateQuestion(ctx, &model.QuestionRequest{Title: "Time", Question: "On time", SubjectID: &gaokao.ID})
	require.NoError(t, err)
	_, err = c.CreateQuestion(ctx, &model.QuestionRequest{Title: "Cities", Question: "On cities", SubjectID: &ielts.ID})
	require.NoError(t, err)
	loose, err := c.CreateQuestion(ctx, &model.QuestionRequest{Title: "Free", Question: "Anything"})
	require.NoError(t, err)
	assert.Nil(t, loose.SubjectID)

	all, err := c.Questions(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, all.Total)

	filtered, err := c.Questions(ctx, &ielts.ID)
	require.NoError(t, err)
	require.Equal(t, 1, filtered.Total)
	assert.Equal(t, "Cities", filtered.Questions[0].Title)

	_, err = c.CreateQuestion(ctx, &model.QuestionRequest{Title: "x", Question: "y", SubjectID: ptr(int64(42))})
	assert.ErrorIs(t, err, ErrSubjectNotFound)

	moved, err := c.UpdateQuestion(ctx, loose.ID, &model.QuestionRequest{SubjectID: &gaokao.ID})
	require.NoError(t, err)
	assert.Equal(t, "Free", moved.Title)
	require.NotNil(t, moved.SubjectID)
	assert.Equal(t, gaokao.ID, *moved.SubjectID)

	err = c.DeleteSubject(ctx, gaokao.ID)
	require.ErrorIs(t, err, ErrSubjectInUse)

	require.NoError(t, c.DeleteQuestion(ctx, loose.ID))
	assert.ErrorIs(t, c.DeleteQuestion(ctx, loose.ID), ErrQuestionNotFound)
}

func TestResolveTopic(t *testing.T) {
	ctx := context.Background()
	c := newTestCatalog()
	q, err := c.CreateQuestion(ctx, &model.QuestionRequest{Title: "Time", Question: "Is time money?"})
	require.NoError(t, err)

	t.Run("fills empty topic", func(t *testing.T) {
		req := &model.WriteRequest{QuestionID: &q.ID}
		require.NoError(t, c.ResolveTopic(ctx, req))
		assert.Equal(t, "Is time money?", req.Topic)
	})

	t.Run("explicit topic wins", func(t *testing.T) {
		req := &model.WriteRequest{Topic: "Remote work", QuestionID: &q.ID}
		require.NoError(t, c.ResolveTopic(ctx, req))
		assert.Equal(t, "Remote work", req.Topic)
	})

	t.Run("unknown question", func(t *testing.T) {
		req := &model.WriteRequest{QuestionID: ptr(int64(7))}
		assert.ErrorIs(t, c.ResolveTopic(ctx, req), ErrQuestionNotFound)
	})
}
