package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"go.uber.org/zap"

	"github.com/capitalize-ai/essay-pipeline/internal/model"
	"github.com/capitalize-ai/essay-pipeline/pkg/logger"
	"github.com/capitalize-ai/essay-pipeline/pkg/metrics"
)

const (
	// StreamName is the name of the run journal stream.
	StreamName = "ESSAY_RUNS"

	// SubjectPrefix is the prefix for all run subjects.
	SubjectPrefix = "essay"
)

// publisher is the part of jetstream.JetStream the journal writes through.
type publisher interface {
	PublishAsync(subject string, payload []byte, opts ...jetstream.PublishOpt) (jetstream.PubAckFuture, error)
}

// Entry is one journaled event.
type Entry struct {
	RunID      string      `json:"run_id"`
	Pipeline   string      `json:"pipeline"`
	Event      model.Event `json:"event"`
	RecordedAt time.Time   `json:"recorded_at"`
}

// Journal records every event of every run to JetStream.
type Journal struct {
	client *Client
	pub    publisher
	logger *logger.Logger
}

// NewJournal creates a journal on an established client.
func NewJournal(client *Client, log *logger.Logger) *Journal {
	return &Journal{client: client, pub: client.JetStream(), logger: log}
}

// EnsureStream ensures the run journal stream exists with proper configuration.
func (j *Journal) EnsureStream(ctx context.Context) error {
	js := j.client.JetStream()

	if _, err := js.Stream(ctx, StreamName); err == nil {
		return nil
	}

	_, err := js.CreateStream(ctx, jetstream.StreamConfig{
		Name:        StreamName,
		Subjects:    []string{SubjectPrefix + ".>"},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      30 * 24 * time.Hour,
		MaxBytes:    10 * 1024 * 1024 * 1024,
		Storage:     jetstream.FileStorage,
		Replicas:    1,
		Compression: jetstream.S2Compression,
		Description: "Essay pipeline run events",
	})
	if err != nil {
		return fmt.Errorf("failed to create stream: %w", err)
	}
	return nil
}

var subjectToken = strings.NewReplacer(".", "_", "*", "_", ">", "_", " ", "_")

// RunSubject returns the subject for one event of a run.
func RunSubject(pipeline, runID string, status model.EventStatus) string {
	return fmt.Sprintf("%s.%s.%s.%s", SubjectPrefix, subjectToken.Replace(pipeline), subjectToken.Replace(runID), status)
}

// RunFilter returns the filter subject for all events of a run.
func RunFilter(pipeline, runID string) string {
	return fmt.Sprintf("%s.%s.%s.>", SubjectPrefix, subjectToken.Replace(pipeline), subjectToken.Replace(runID))
}

// Record queues one event for publishing and returns without waiting for
// the server to acknowledge it. Acknowledgement failures are reported by the
// client's async error handler.
func (j *Journal) Record(runID, pipeline string, ev model.Event) error {
	data, err := json.Marshal(Entry{RunID: runID, Pipeline: pipeline, Event: ev, RecordedAt: time.Now()})
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msgID := fmt.Sprintf("%s-%s-%d", runID, ev.Status, entrySeq(ev))
	if _, err := j.pub.PublishAsync(RunSubject(pipeline, runID, ev.Status), data, jetstream.WithMsgID(msgID)); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}

// Observer returns a function that journals each event of one run. It never
// waits on the server, so a stalled NATS cannot slow the run down. Failures
// are logged and counted; they never reach the caller.
func (j *Journal) Observer(runID, pipeline string) func(model.Event) {
	log := j.logger.WithRun(runID, pipeline)
	return func(ev model.Event) {
		if err := j.Record(runID, pipeline, ev); err != nil {
			metrics.JournalPublishFailures.Inc()
			log.Warn("failed to journal run event", zap.String("status", string(ev.Status)), zap.Error(err))
		}
	}
}

// entrySeq keeps message ids unique per run: steps carry their sequence,
// other statuses occur at most once.
func entrySeq(ev model.Event) int {
	if ev.Data != nil {
		return ev.Data.Sequence
	}
	return 0
}
