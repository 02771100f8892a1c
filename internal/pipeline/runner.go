package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/capitalize-ai/essay-pipeline/internal/llm"
	"github.com/capitalize-ai/essay-pipeline/internal/model"
	"github.com/capitalize-ai/essay-pipeline/pkg/logger"
	"github.com/capitalize-ai/essay-pipeline/pkg/metrics"
)

var tracer = otel.Tracer("github.com/capitalize-ai/essay-pipeline/internal/pipeline")

// State is the lifecycle position of a Runner.
type State string

const (
	StateIdle      State = "idle"
	StateRunning   State = "running"
	StateCompleted State = "completed"
	StateCancelled State = "cancelled"
	StateFailed    State = "failed"
)

// Terminal reports whether no transition leaves s.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateCancelled || s == StateFailed
}

// Dialer opens backend connections for a run.
type Dialer interface {
	Dial(ctx context.Context, p llm.Provider) (llm.Connection, error)
}

// Publisher receives the events of a run in production order.
type Publisher func(model.Event)

// Outcome summarizes a finished run.
type Outcome struct {
	RunID        string
	Pipeline     string
	State        State
	Cause        Cause
	Result       *string
	Conversation []model.Message
	Rounds       int

	// Err is set for Failed and Cancelled runs.
	Err error

	// CloseErr collects connection close failures. It never changes State.
	CloseErr error
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithLogger sets the runner's logger.
func WithLogger(l *logger.Logger) RunnerOption {
	return func(r *Runner) {
		if l != nil {
			r.log = l
		}
	}
}

// WithBackendTimeout bounds each backend call.
func WithBackendTimeout(d time.Duration) RunnerOption {
	return func(r *Runner) {
		if d > 0 {
			r.backendTimeout = d
		}
	}
}

// WithRunID sets the identifier used in logs, traces and the journal.
func WithRunID(id string) RunnerOption {
	return func(r *Runner) {
		r.runID = id
	}
}

// Runner executes one pipeline run. It is single-use: Run may be called once.
type Runner struct {
	def            *Definition
	dialer         Dialer
	scheduler      *Scheduler
	detector       *Detector
	log            *logger.Logger
	backendTimeout time.Duration
	runID          string

	mu    sync.Mutex
	state State

	conversation *model.Conversation
	conns        map[llm.Provider]llm.Connection
}

// NewRunner creates an idle runner for def.
func NewRunner(def *Definition, dialer Dialer, opts ...RunnerOption) *Runner {
	r := &Runner{
		def:            def,
		dialer:         dialer,
		scheduler:      NewScheduler(def),
		detector:       NewDetector(def),
		log:            logger.Global(),
		backendTimeout: 2 * time.Minute,
		state:          StateIdle,
		conversation:   model.NewConversation(),
		conns:          make(map[llm.Provider]llm.Connection),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.log = r.log.WithRun(r.runID, def.Name)
	return r
}

// RunID returns the run identifier.
func (r *Runner) RunID() string {
	return r.runID
}

// State returns the current lifecycle state. Safe for concurrent use.
func (r *Runner) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

func (r *Runner) transition(from, to State) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != from {
		return false
	}
	r.state = to
	return true
}

// Run seeds the conversation with initial and drives the roles until the
// run completes, fails or ctx is cancelled. Cancellation is observed between
// turns; an in-flight backend call is allowed to finish. Every event goes to
// publish, and the last one is always done or error. A panic inside a role
// fails the run; connections are closed on every exit path.
func (r *Runner) Run(ctx context.Context, initial string, publish Publisher) *Outcome {
	if publish == nil {
		publish = func(model.Event) {}
	}
	out := &Outcome{RunID: r.runID, Pipeline: r.def.Name}
	if !r.transition(StateIdle, StateRunning) {
		out.State = r.State()
		out.Err = ErrAlreadyStarted
		return out
	}

	ctx, span := tracer.Start(ctx, "pipeline.run")
	span.SetAttributes(
		attribute.String("pipeline.name", r.def.Name),
		attribute.String("pipeline.run_id", r.runID),
	)
	defer span.End()

	start := time.Now()
	r.log.Info("pipeline run started", zap.Int("roles", len(r.def.Roles)), zap.Int("max_rounds", r.def.MaxRounds))

	defer r.finish(out, span, start)
	defer r.recoverPanic(out, span, publish)

	seed := r.conversation.Append(r.def.Initiator, model.KindHuman, initial)
	publish(model.StartedEvent(seed.Content))

	state, cause, err := r.loop(ctx, out, publish)
	out.Conversation = r.conversation.Messages()
	out.Cause = cause

	switch state {
	case StateCompleted:
		out.Result = ExtractResult(r.def, out.Conversation)
		publish(model.DoneEvent(out.Result))
		metrics.RecordTermination(r.def.Name, string(cause))
	case StateCancelled:
		out.Err = err
		publish(model.CancelledEvent(err.Error()))
		r.log.Warn("pipeline run cancelled", zap.Int("rounds", out.Rounds))
	case StateFailed:
		out.Err = err
		publish(model.ErrorEvent(err.Error()))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		r.log.Error("pipeline run failed", zap.Error(err), zap.Int("rounds", out.Rounds))
	}
	out.State = state
	return out
}

// recoverPanic turns a panic raised by a role into a failed run.
func (r *Runner) recoverPanic(out *Outcome, span trace.Span, publish Publisher) {
	p := recover()
	if p == nil {
		return
	}
	err := fmt.Errorf("%w: %v", ErrPanicked, p)
	out.State = StateFailed
	out.Err = err
	out.Conversation = r.conversation.Messages()
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	r.log.Error("pipeline run panicked", zap.Any("panic", p), zap.Stack("stack"), zap.Int("rounds", out.Rounds))
	publish(model.ErrorEvent(err.Error()))
}

// finish closes the run's connections and moves the runner to its terminal
// state. It runs last, even when the run unwinds with a panic.
func (r *Runner) finish(out *Outcome, span trace.Span, start time.Time) {
	closed, closeErr := r.closeConnections()
	out.CloseErr = closeErr
	if closeErr != nil {
		r.log.Error("failed to close backend connections", zap.Error(closeErr))
	}

	if !out.State.Terminal() {
		out.State = StateFailed
	}
	r.transition(StateRunning, out.State)
	metrics.RecordRun(r.def.Name, string(out.State))
	span.SetAttributes(
		attribute.String("pipeline.state", string(out.State)),
		attribute.String("pipeline.cause", string(out.Cause)),
		attribute.Int("pipeline.rounds", out.Rounds),
	)
	r.log.Info("pipeline run finished",
		zap.String("state", string(out.State)),
		zap.String("cause", string(out.Cause)),
		zap.Int("rounds", out.Rounds),
		zap.Int("connections_closed", closed),
		zap.Duration("duration", time.Since(start)),
	)
}

func (r *Runner) loop(ctx context.Context, out *Outcome, publish Publisher) (State, Cause, error) {
	for {
		history := r.conversation.Messages()
		if cause := r.detector.Check(history, out.Rounds); cause != CauseNone {
			if len(history) < 2 {
				return StateFailed, cause, ErrNoProgress
			}
			if ctx.Err() != nil {
				return StateCancelled, cause, ErrCancelled
			}
			return StateCompleted, cause, nil
		}
		if ctx.Err() != nil {
			return StateCancelled, CauseNone, ErrCancelled
		}

		speaker, ok := r.scheduler.Next(history)
		if !ok {
			return StateFailed, CauseNone, fmt.Errorf("pipeline %s: scheduler returned no speaker after %d rounds", r.def.Name, out.Rounds)
		}
		role, ok := r.def.Role(speaker)
		if !ok {
			return StateFailed, CauseNone, fmt.Errorf("pipeline %s: scheduled unknown role %q", r.def.Name, speaker)
		}

		msg, err := r.step(ctx, role, history)
		if err != nil {
			return StateFailed, CauseNone, err
		}
		out.Rounds++
		if !msg.Empty() {
			publish(model.StepEvent(msg))
		}
	}
}

// step invokes one role and appends its reply. The backend call is detached
// from ctx so a cancellation arriving mid-call lets the call finish.
func (r *Runner) step(ctx context.Context, role Role, history []model.Message) (model.Message, error) {
	ctx, span := tracer.Start(ctx, "pipeline.step")
	span.SetAttributes(
		attribute.String("pipeline.role", role.ID),
		attribute.String("llm.provider", string(role.Provider)),
	)
	defer span.End()

	conn, err := r.connection(ctx, role.Provider)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return model.Message{}, fmt.Errorf("role %s: %w", role.ID, err)
	}

	callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.backendTimeout)
	defer cancel()

	started := time.Now()
	resp, err := conn.Send(callCtx, role.Instructions, history)
	elapsed := time.Since(started)
	if err == nil && resp == nil {
		err = llm.ErrNoCandidates
	}
	if err != nil {
		metrics.RecordBackendCall(string(role.Provider), "error", elapsed.Seconds(), 0, 0)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return model.Message{}, fmt.Errorf("role %s: %w", role.ID, err)
	}
	metrics.RecordBackendCall(string(role.Provider), "success", elapsed.Seconds(), resp.TokensIn, resp.TokensOut)

	msg := r.conversation.Append(role.ID, model.KindAssistant, resp.Content)
	metrics.RecordStep(r.def.Name, role.ID)
	r.log.Debug("role spoke",
		zap.String("role", role.ID),
		zap.Int("sequence", msg.Sequence),
		zap.Int("chars", len(msg.Content)),
		zap.Int("tokens_out", resp.TokensOut),
		zap.Duration("latency", elapsed),
	)
	return msg, nil
}

// connection dials lazily so a run only opens the providers its roles reach.
func (r *Runner) connection(ctx context.Context, p llm.Provider) (llm.Connection, error) {
	if conn, ok := r.conns[p]; ok {
		return conn, nil
	}
	conn, err := r.dialer.Dial(ctx, p)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", p, err)
	}
	r.conns[p] = conn
	return conn, nil
}

func (r *Runner) closeConnections() (int, error) {
	if len(r.conns) == 0 {
		return 0, nil
	}
	conns := make([]llm.Connection, 0, len(r.def.Roles))
	for _, role := range r.def.Roles {
		if conn, ok := r.conns[role.Provider]; ok {
			conns = append(conns, conn)
		}
	}
	closed, err := CloseConnections(conns...)
	clear(r.conns)
	return closed, err
}

// IsCancelled reports whether err marks a run stopped by its caller.
func IsCancelled(err error) bool {
	return errors.Is(err, ErrCancelled)
}
