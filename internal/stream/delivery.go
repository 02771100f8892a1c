// Package stream runs a producer in the background and forwards its events
// to a single consumer over a bounded channel.
package stream

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/capitalize-ai/essay-pipeline/internal/model"
	"github.com/capitalize-ai/essay-pipeline/pkg/logger"
	"github.com/capitalize-ai/essay-pipeline/pkg/metrics"
)

const (
	DefaultBuffer        = 64
	DefaultPollInterval  = time.Second
	DefaultFinishTimeout = 10 * time.Second
)

// RunFunc is the background computation. It must return once ctx is
// cancelled, at the latest after its current unit of work.
type RunFunc func(ctx context.Context, publish func(model.Event))

// Option configures a Delivery.
type Option func(*Delivery)

// WithBuffer sets the channel capacity.
func WithBuffer(n int) Option {
	return func(d *Delivery) {
		if n >= 0 {
			d.buffer = n
		}
	}
}

// WithPollInterval sets how often the consumer checks that the caller is still there.
func WithPollInterval(interval time.Duration) Option {
	return func(d *Delivery) {
		if interval > 0 {
			d.pollInterval = interval
		}
	}
}

// WithFinishTimeout bounds the wait for the background computation to confirm it finished.
func WithFinishTimeout(timeout time.Duration) Option {
	return func(d *Delivery) {
		if timeout > 0 {
			d.finishTimeout = timeout
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *logger.Logger) Option {
	return func(d *Delivery) {
		if l != nil {
			d.log = l
		}
	}
}

// WithLiveness adds a check consulted on every poll; false means the caller is gone.
func WithLiveness(alive func() bool) Option {
	return func(d *Delivery) {
		d.alive = alive
	}
}

// WithObserver sees every event the producer publishes, including those
// produced after the consumer left. It runs on the producer goroutine.
func WithObserver(observe func(model.Event)) Option {
	return func(d *Delivery) {
		d.observe = observe
	}
}

// Summary describes how forwarding ended.
type Summary struct {
	// Delivered counts events handed to the consumer's send function.
	Delivered int

	// Ended is true when the end-of-stream marker was consumed.
	Ended bool

	// Disconnected is true when the caller went away before the end marker.
	Disconnected bool

	// Finished is true when the producer confirmed it exited before the finish timeout.
	Finished bool

	// Err is the send error that stopped forwarding, if any.
	Err error
}

// Delivery is one background execution and its event channel.
// It is single-use and supports exactly one consumer.
type Delivery struct {
	buffer        int
	pollInterval  time.Duration
	finishTimeout time.Duration
	log           *logger.Logger
	alive         func() bool
	observe       func(model.Event)

	ctx      context.Context
	cancel   context.CancelFunc
	events   chan model.Event
	finished chan struct{}
}

// Start launches run in a new goroutine. The run's context keeps parent's
// values but not its cancellation: only Cancel or the consumer stops it.
func Start(parent context.Context, run RunFunc, opts ...Option) *Delivery {
	d := &Delivery{
		buffer:        DefaultBuffer,
		pollInterval:  DefaultPollInterval,
		finishTimeout: DefaultFinishTimeout,
		log:           logger.Global(),
		finished:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.events = make(chan model.Event, d.buffer)
	d.ctx, d.cancel = context.WithCancel(context.WithoutCancel(parent))

	go d.produce(run)
	return d
}

func (d *Delivery) produce(run RunFunc) {
	defer close(d.finished)
	// Closing events is the end-of-stream marker; it runs on every exit path.
	defer close(d.events)
	defer func() {
		if r := recover(); r != nil {
			d.log.Error("background run panicked", zap.Any("panic", r), zap.Stack("stack"))
			d.push(model.ErrorEvent(fmt.Sprintf("internal error: %v", r)))
		}
	}()

	run(d.ctx, d.push)
}

// push never blocks once the run is cancelled; events nobody will read are dropped.
func (d *Delivery) push(ev model.Event) {
	if d.observe != nil {
		d.observe(ev)
	}
	select {
	case d.events <- ev:
	case <-d.ctx.Done():
		select {
		case d.events <- ev:
		default:
			d.log.Debug("dropped event after cancellation", zap.String("status", string(ev.Status)))
		}
	}
}

// Cancel signals the background computation to stop.
func (d *Delivery) Cancel() {
	d.cancel()
}

// Done is closed once the background computation has exited.
func (d *Delivery) Done() <-chan struct{} {
	return d.finished
}

// Forward hands events to send in production order until the end marker,
// a send failure, or the caller leaving. ctx is the caller's context; its
// cancellation counts as a disconnect. It then waits, bounded by the finish
// timeout, for the background computation to exit.
func (d *Delivery) Forward(ctx context.Context, send func(model.Event) error) (summary Summary) {
	defer func() {
		if r := recover(); r != nil {
			d.cancel()
			panic(r)
		}
	}()

	ticker := time.NewTicker(d.pollInterval)
	defer ticker.Stop()

forward:
	for {
		select {
		case ev, ok := <-d.events:
			if !ok {
				summary.Ended = true
				break forward
			}
			if err := send(ev); err != nil {
				summary.Err = err
				d.cancel()
				d.log.Info("stopped forwarding after send failure", zap.Error(err))
				break forward
			}
			summary.Delivered++
		case <-ctx.Done():
			summary.Disconnected = true
			d.cancel()
			d.log.Info("caller disconnected, cancelling background run", zap.Int("delivered", summary.Delivered))
			break forward
		case <-ticker.C:
			if d.alive != nil && !d.alive() {
				summary.Disconnected = true
				d.cancel()
				d.log.Info("caller no longer reachable, cancelling background run", zap.Int("delivered", summary.Delivered))
				break forward
			}
		}
	}

	summary.Finished = d.awaitFinish()
	d.cancel()
	return summary
}

func (d *Delivery) awaitFinish() bool {
	timer := time.NewTimer(d.finishTimeout)
	defer timer.Stop()

	select {
	case <-d.finished:
		return true
	case <-timer.C:
		metrics.DeliveryFinishTimeouts.Inc()
		d.log.Warn("background run did not finish in time",
			zap.Duration("finish_timeout", d.finishTimeout),
		)
		return false
	}
}
