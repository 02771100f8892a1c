package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/essay-pipeline/internal/llm"
	"github.com/capitalize-ai/essay-pipeline/internal/mock"
	"github.com/capitalize-ai/essay-pipeline/internal/model"
	"github.com/capitalize-ai/essay-pipeline/internal/pipeline"
	"github.com/capitalize-ai/essay-pipeline/pkg/logger"
)

type memoryJournal struct {
	mu     sync.Mutex
	events map[string][]model.Event
}

func (j *memoryJournal) Observer(runID, _ string) func(model.Event) {
	return func(ev model.Event) {
		j.mu.Lock()
		defer j.mu.Unlock()
		j.events[runID] = append(j.events[runID], ev)
	}
}

func newTestService(t *testing.T, journal Journal) (*EssayService, *mock.Connection) {
	t.Helper()
	defs, err := pipeline.Builtin(llm.ProviderAnthropic)
	require.NoError(t, err)
	reg, err := pipeline.NewRegistry(defs...)
	require.NoError(t, err)

	conn := &mock.Connection{
		SendFn: func(_ context.Context, _ string, history []model.Message) (*llm.CompletionResponse, error) {
			return &llm.CompletionResponse{Content: "turn " + string(rune('0'+len(history)))}, nil
		},
	}
	svc := NewEssayService(reg, mock.StaticDialer(conn), journal, logger.NewNop(), Options{
		BackendTimeout: time.Second,
		StreamBuffer:   8,
		PollInterval:   10 * time.Millisecond,
		FinishTimeout:  time.Second,
	})
	return svc, conn
}

func TestParseLanguage(t *testing.T) {
	lang, err := ParseLanguage("English")
	require.NoError(t, err)
	assert.Equal(t, LanguageEnglish, lang)

	_, err = ParseLanguage("klingon")
	assert.ErrorIs(t, err, ErrUnsupportedLanguage)
}

func TestWriteMessage(t *testing.T) {
	svc, _ := newTestService(t, nil)

	name, msg, err := svc.WriteMessage(LanguageEnglish, &model.WriteRequest{Topic: " Remote work "})
	require.NoError(t, err)
	assert.Equal(t, "writing-english", name)
	assert.Contains(t, msg, "on the topic 'Remote work'")
	assert.Contains(t, msg, "Requirements: around 500 words, argumentative essay.")

	name, msg, err = svc.WriteMessage(LanguageChinese, &model.WriteRequest{Topic: "科技", Requirements: "600字记叙文"})
	require.NoError(t, err)
	assert.Equal(t, "writing-chinese", name)
	assert.Contains(t, msg, "请以“科技”为主题，写一篇600字记叙文的中文范文。")

	_, msg, err = svc.WriteMessage(LanguageChinese, &model.WriteRequest{Topic: "科技"})
	require.NoError(t, err)
	assert.Contains(t, msg, "800字左右的议论文")

	_, _, err = svc.WriteMessage(Language("french"), &model.WriteRequest{Topic: "x"})
	assert.ErrorIs(t, err, ErrUnsupportedLanguage)
}

func TestRevisionMessage(t *testing.T) {
	svc, _ := newTestService(t, nil)

	name, msg, err := svc.RevisionMessage(LanguageEnglish, &model.RevisionRequest{EssayContent: "My essay."})
	require.NoError(t, err)
	assert.Equal(t, "revision-english", name)
	assert.Contains(t, msg, "Scorer -> Planner -> Reviser")
	assert.Contains(t, msg, "\n\nMy essay.\n\n")
}

func TestPipelines(t *testing.T) {
	svc, _ := newTestService(t, nil)

	resp := svc.Pipelines()
	require.Len(t, resp.Pipelines, 4)
	assert.Equal(t, "writing-chinese", resp.Pipelines[0].Name)
	assert.Equal(t, "ChineseReviser", resp.Pipelines[0].Terminal)
}

func TestStartStreamsAndJournals(t *testing.T) {
	journal := &memoryJournal{events: make(map[string][]model.Event)}
	svc, conn := newTestService(t, journal)

	run, err := svc.Start(context.Background(), "revision-english", "fix this essay")
	require.NoError(t, err)
	assert.NotEmpty(t, run.ID)
	assert.Equal(t, "revision-english", run.Pipeline)

	var got []model.Event
	summary := run.Delivery.Forward(context.Background(), func(ev model.Event) error {
		got = append(got, ev)
		return nil
	})
	require.True(t, summary.Ended)
	require.True(t, summary.Finished)

	require.Len(t, got, 5)
	assert.Equal(t, model.EventStarted, got[0].Status)
	assert.Equal(t, "EnglishScorer", got[1].Data.Sender)
	assert.Equal(t, "EnglishPlanner", got[2].Data.Sender)
	assert.Equal(t, "EnglishReviser", got[3].Data.Sender)
	require.Equal(t, model.EventDone, got[4].Status)
	assert.Equal(t, "turn 3", *got[4].Result)
	assert.Equal(t, 1, conn.Closes())

	out := run.Outcome()
	require.NotNil(t, out)
	assert.Equal(t, pipeline.StateCompleted, out.State)
	assert.Equal(t, run.ID, out.RunID)

	journal.mu.Lock()
	defer journal.mu.Unlock()
	assert.Equal(t, got, journal.events[run.ID])
}

func TestStartUnknownPipeline(t *testing.T) {
	svc, _ := newTestService(t, nil)

	_, err := svc.Start(context.Background(), "poetry", "hi")
	assert.ErrorIs(t, err, pipeline.ErrUnknownPipeline)
}
