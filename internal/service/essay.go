// Package service maps essay requests onto pipeline runs.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/capitalize-ai/essay-pipeline/internal/model"
	"github.com/capitalize-ai/essay-pipeline/internal/pipeline"
	"github.com/capitalize-ai/essay-pipeline/internal/stream"
	"github.com/capitalize-ai/essay-pipeline/pkg/logger"
)

// ErrUnsupportedLanguage is returned for languages without essay pipelines.
var ErrUnsupportedLanguage = errors.New("unsupported language")

// Language selects the essay pipelines and prompt templates.
type Language string

const (
	LanguageChinese Language = "chinese"
	LanguageEnglish Language = "english"
)

type languageProfile struct {
	writePipeline       string
	revisePipeline      string
	defaultRequirements string
	writeTemplate       string
	reviseTemplate      string
}

var profiles = map[Language]languageProfile{
	LanguageChinese: {
		writePipeline:       "writing-chinese",
		revisePipeline:      "revision-chinese",
		defaultRequirements: "800字左右的议论文",
		writeTemplate:       "请以“%s”为主题，写一篇%s的中文范文。请严格按照 Planner -> Writer -> Scorer -> Reviser 的流程进行协作。最后由 Reviser 输出最终作文。",
		reviseTemplate:      "请修改以下中文作文，请严格按照 Scorer -> Planner -> Reviser 的流程进行协作。最后由 Reviser 输出修改后的作文：\n\n%s\n\n",
	},
	LanguageEnglish: {
		writePipeline:       "writing-english",
		revisePipeline:      "revision-english",
		defaultRequirements: "around 500 words, argumentative essay",
		writeTemplate:       "Please write an English sample essay on the topic '%s'. Requirements: %s. Strictly follow the flow: Planner -> Writer -> Scorer -> Reviser. The Reviser should output the final essay.",
		reviseTemplate:      "Please revise the following English essay. Strictly follow the flow: Scorer -> Planner -> Reviser. The Reviser should output the final revised essay:\n\n%s\n\n",
	},
}

// ParseLanguage validates a language path segment.
func ParseLanguage(s string) (Language, error) {
	lang := Language(strings.ToLower(s))
	if _, ok := profiles[lang]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedLanguage, s)
	}
	return lang, nil
}

// Journal records the events of a run somewhere durable.
type Journal interface {
	Observer(runID, pipeline string) func(model.Event)
}

// Options tunes runs and their delivery.
type Options struct {
	BackendTimeout time.Duration
	StreamBuffer   int
	PollInterval   time.Duration
	FinishTimeout  time.Duration
}

// EssayService starts pipeline runs for essay requests.
type EssayService struct {
	registry *pipeline.Registry
	dialer   pipeline.Dialer
	journal  Journal
	logger   *logger.Logger
	opts     Options
}

// NewEssayService creates a new essay service. journal may be nil.
func NewEssayService(registry *pipeline.Registry, dialer pipeline.Dialer, journal Journal, log *logger.Logger, opts Options) *EssayService {
	return &EssayService{
		registry: registry,
		dialer:   dialer,
		journal:  journal,
		logger:   log,
		opts:     opts,
	}
}

// Pipelines lists the configured pipelines.
func (s *EssayService) Pipelines() *model.ListPipelinesResponse {
	defs := s.registry.List()
	resp := &model.ListPipelinesResponse{Pipelines: make([]model.PipelineInfo, 0, len(defs))}
	for _, d := range defs {
		resp.Pipelines = append(resp.Pipelines, d.Info())
	}
	return resp
}

// WriteMessage builds the seed message for a writing request and names the pipeline to run.
func (s *EssayService) WriteMessage(lang Language, req *model.WriteRequest) (string, string, error) {
	p, ok := profiles[lang]
	if !ok {
		return "", "", fmt.Errorf("%w: %q", ErrUnsupportedLanguage, lang)
	}
	requirements := strings.TrimSpace(req.Requirements)
	if requirements == "" {
		requirements = p.defaultRequirements
	}
	return p.writePipeline, fmt.Sprintf(p.writeTemplate, strings.TrimSpace(req.Topic), requirements), nil
}

// RevisionMessage builds the seed message for a revision request and names the pipeline to run.
func (s *EssayService) RevisionMessage(lang Language, req *model.RevisionRequest) (string, string, error) {
	p, ok := profiles[lang]
	if !ok {
		return "", "", fmt.Errorf("%w: %q", ErrUnsupportedLanguage, lang)
	}
	return p.revisePipeline, fmt.Sprintf(p.reviseTemplate, req.EssayContent), nil
}

// Run is a started pipeline run and its event stream.
type Run struct {
	ID       string
	Pipeline string
	Delivery *stream.Delivery

	outcome *pipeline.Outcome
}

// Outcome returns how the run ended, or nil while it is still running or if
// it never produced one.
func (r *Run) Outcome() *pipeline.Outcome {
	select {
	case <-r.Delivery.Done():
		return r.outcome
	default:
		return nil
	}
}

// Start launches the named pipeline in the background, seeded with message.
// The run outlives ctx's cancellation; only the delivery's consumer stops it.
// extra options are applied after the service's own delivery settings.
func (s *EssayService) Start(ctx context.Context, name, message string, extra ...stream.Option) (*Run, error) {
	def, err := s.registry.Get(name)
	if err != nil {
		return nil, err
	}

	runner := pipeline.NewRunner(def, s.dialer,
		pipeline.WithRunID(uuid.Must(uuid.NewV7()).String()),
		pipeline.WithLogger(s.logger),
		pipeline.WithBackendTimeout(s.opts.BackendTimeout),
	)
	run := &Run{ID: runner.RunID(), Pipeline: name}
	log := s.logger.WithRun(run.ID, name)

	opts := []stream.Option{
		stream.WithLogger(log),
		stream.WithBuffer(s.opts.StreamBuffer),
		stream.WithPollInterval(s.opts.PollInterval),
		stream.WithFinishTimeout(s.opts.FinishTimeout),
	}
	if s.journal != nil {
		opts = append(opts, stream.WithObserver(s.journal.Observer(run.ID, name)))
	}
	opts = append(opts, extra...)

	run.Delivery = stream.Start(ctx, func(ctx context.Context, publish func(model.Event)) {
		run.outcome = runner.Run(ctx, message, publish)
	}, opts...)

	log.Info("pipeline run accepted", zap.Int("message_chars", len(message)))
	return run, nil
}
