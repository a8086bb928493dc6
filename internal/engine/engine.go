// Package engine serialises every mutation of the dashboard state onto a
// single event loop: stream deliveries, pushed events, timer callbacks and
// scenario triggers are all posted to the loop and applied one at a time in
// arrival order.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/signalsfoundry/edgeview/internal/events"
	"github.com/signalsfoundry/edgeview/internal/logging"
	"github.com/signalsfoundry/edgeview/internal/state"
	"github.com/signalsfoundry/edgeview/timectrl"
)

const tracerName = "github.com/signalsfoundry/edgeview/internal/engine"

// ErrClosed is returned by operations on an engine that has been closed.
var ErrClosed = errors.New("engine closed")

// Labels used for engine work that is not a wire event.
const (
	KindScenarioTrigger = "SCENARIO_TRIGGER"
	KindMalformed       = "MALFORMED"
)

// Config tunes the engine's timers.
type Config struct {
	// ScenarioDelay is how long after a trigger the response decision is logged.
	ScenarioDelay time.Duration
	// RecoveryDelay is how long a simulated degraded node stays degraded.
	RecoveryDelay time.Duration
	// UpdateInterval is the period of the simulated dashboard updates.
	UpdateInterval time.Duration
	// Simulate enables the periodic simulated updates.
	Simulate bool
	// InboxSize bounds the number of queued, not yet applied, closures.
	InboxSize int
}

// DefaultConfig returns the standard timings with simulation disabled.
func DefaultConfig() Config {
	return Config{
		ScenarioDelay:  2 * time.Second,
		RecoveryDelay:  3 * time.Second,
		UpdateInterval: 3 * time.Second,
		InboxSize:      256,
	}
}

// MetricsRecorder observes every unit of work the loop applies.
type MetricsRecorder interface {
	ObserveEvent(kind, outcome string, d time.Duration)
}

// Random is the subset of *rand.Rand the simulation draws from.
type Random interface {
	IntN(n int) int
	Float64() float64
}

// Option customises Engine construction.
type Option func(*Engine)

// WithClock sets the time source for timers and timestamps.
func WithClock(c timectrl.Clock) Option {
	return func(e *Engine) {
		if c != nil {
			e.clock = c
		}
	}
}

// WithConfig overrides the default timings.
func WithConfig(cfg Config) Option {
	return func(e *Engine) { e.cfg = cfg }
}

// WithMetricsRecorder attaches an optional metrics recorder.
func WithMetricsRecorder(m MetricsRecorder) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithRandom replaces the random source used by the simulation.
func WithRandom(r Random) Option {
	return func(e *Engine) {
		if r != nil {
			e.rng = r
		}
	}
}

// WithIDGenerator replaces the generator of synthesized decision ids.
func WithIDGenerator(fn func() string) Option {
	return func(e *Engine) {
		if fn != nil {
			e.newID = fn
		}
	}
}

// Engine owns the event loop and every timer and subscription feeding it.
type Engine struct {
	store   *state.Store
	clock   timectrl.Clock
	tasks   *timectrl.Group
	cfg     Config
	log     logging.Logger
	metrics MetricsRecorder
	tracer  trace.Tracer
	rng     Random
	newID   func() string

	inbox chan func()
	quit  chan struct{}
	done  chan struct{}

	mu        sync.Mutex
	started   bool
	closed    bool
	subs      []io.Closer
	listeners map[int]func(events.Applied)
	nextLis   int

	// seq is only touched on the loop goroutine.
	seq uint64
}

// New constructs an engine over store. The loop does not run until Start.
func New(store *state.Store, log logging.Logger, opts ...Option) *Engine {
	e := &Engine{
		store:     store,
		clock:     timectrl.Real(),
		cfg:       DefaultConfig(),
		log:       logging.OrNoop(log).With(logging.Component("engine")),
		tracer:    otel.Tracer(tracerName),
		rng:       rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0x9e3779b97f4a7c15)),
		newID:     uuid.NewString,
		quit:      make(chan struct{}),
		done:      make(chan struct{}),
		listeners: make(map[int]func(events.Applied)),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	if e.cfg.InboxSize <= 0 {
		e.cfg.InboxSize = DefaultConfig().InboxSize
	}
	e.inbox = make(chan func(), e.cfg.InboxSize)
	e.tasks = timectrl.NewGroup(e.clock)
	return e
}

// Store returns the store the engine mutates.
func (e *Engine) Store() *state.Store { return e.store }

// Clock returns the engine's time source.
func (e *Engine) Clock() timectrl.Clock { return e.clock }

// Start launches the loop and, when configured, the simulated updates.
// Cancelling ctx closes the engine.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return ErrClosed
	}
	if e.started {
		e.mu.Unlock()
		return nil
	}
	e.started = true
	e.mu.Unlock()

	go e.loop()

	if e.cfg.Simulate {
		if _, err := e.tasks.Every(e.cfg.UpdateInterval, e.onUpdateTick); err != nil {
			return fmt.Errorf("start simulated updates: %w", err)
		}
	}

	go func() {
		select {
		case <-ctx.Done():
			_ = e.Close()
		case <-e.quit:
		}
	}()

	e.log.Info(ctx, "engine started",
		logging.Bool("simulate", e.cfg.Simulate),
		logging.Duration("scenario_delay", e.cfg.ScenarioDelay),
	)
	return nil
}

// Attach subscribes the engine to src. The subscription is closed by Close.
func (e *Engine) Attach(ctx context.Context, src events.Source) error {
	if src == nil {
		return errors.New("attach: nil source")
	}
	e.mu.Lock()
	closed := e.closed
	e.mu.Unlock()
	if closed {
		return ErrClosed
	}

	sub, err := src.Subscribe(ctx, e)
	if err != nil {
		return fmt.Errorf("attach source: %w", err)
	}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		_ = sub.Close()
		return ErrClosed
	}
	e.subs = append(e.subs, sub)
	e.mu.Unlock()
	return nil
}

// OnApplied registers fn to be called on the loop goroutine after each
// applied event. fn must not block. The returned function unregisters it.
func (e *Engine) OnApplied(fn func(events.Applied)) (cancel func()) {
	e.mu.Lock()
	defer e.mu.Unlock()
	id := e.nextLis
	e.nextLis++
	e.listeners[id] = fn
	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		delete(e.listeners, id)
	}
}

// Submit queues ev for merging.
func (e *Engine) Submit(ctx context.Context, ev events.Event) error {
	if ev == nil {
		return fmt.Errorf("%w: nil event", events.ErrMalformed)
	}
	ctx = context.WithoutCancel(ctx)
	return e.post(func() { e.apply(ctx, ev) })
}

// SubmitRaw decodes an envelope and queues the event. Decode failures are
// logged and counted; they never reach the loop.
func (e *Engine) SubmitRaw(ctx context.Context, raw []byte) error {
	ev, err := events.Decode(raw)
	if err != nil {
		e.log.Warn(ctx, "dropping malformed event", logging.Err(err), logging.Int("bytes", len(raw)))
		e.observe(KindMalformed, "malformed", 0)
		return err
	}
	return e.Submit(ctx, ev)
}

// Flush blocks until every closure queued before the call has been applied.
// It requires a started engine.
func (e *Engine) Flush(ctx context.Context) error {
	return e.call(ctx, func() {})
}

// Close releases every timer and subscription, waits for the loop to exit
// and disposes the store. It is safe to call more than once.
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	started := e.started
	subs := e.subs
	e.subs = nil
	e.mu.Unlock()

	e.tasks.Close()

	var errs []error
	for _, sub := range subs {
		if err := sub.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	close(e.quit)
	if started {
		<-e.done
	}
	e.store.Dispose()
	e.log.Info(context.Background(), "engine closed", logging.Int("subscriptions", len(subs)))
	return errors.Join(errs...)
}

// PendingTimers returns the number of one-shot timers not yet fired.
func (e *Engine) PendingTimers() int { return e.tasks.Pending() }

func (e *Engine) loop() {
	defer close(e.done)
	for {
		select {
		case fn := <-e.inbox:
			e.runGuarded(fn)
		case <-e.quit:
			return
		}
	}
}

func (e *Engine) runGuarded(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Error(context.Background(), "recovered panic in event loop", logging.Any("panic", r))
			e.observe("PANIC", "panic", 0)
		}
	}()
	fn()
}

func (e *Engine) post(fn func()) error {
	e.mu.Lock()
	closed := e.closed
	e.mu.Unlock()
	if closed {
		return ErrClosed
	}
	select {
	case e.inbox <- fn:
		return nil
	case <-e.quit:
		return ErrClosed
	}
}

// call posts fn and waits until the loop has run it.
func (e *Engine) call(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	if err := e.post(func() {
		defer close(finished)
		fn()
	}); err != nil {
		return err
	}
	select {
	case <-finished:
		return nil
	case <-e.done:
		select {
		case <-finished:
			return nil
		default:
			return ErrClosed
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// apply runs on the loop goroutine.
func (e *Engine) apply(ctx context.Context, ev events.Event) state.Outcome {
	label := events.Label(ev)
	ctx, span := e.tracer.Start(ctx, "engine.apply", trace.WithAttributes(attribute.String("event.kind", label)))
	defer span.End()

	start := time.Now()
	outcome, err := e.store.Apply(ctx, ev)
	span.SetAttributes(attribute.String("event.outcome", string(outcome)))
	if err != nil {
		span.RecordError(err)
		e.log.Warn(ctx, "event rejected", logging.String("kind", label), logging.Err(err))
	}
	e.observe(label, string(outcome), time.Since(start))

	if outcome == state.OutcomeApplied {
		data, encErr := events.MarshalData(ev)
		if encErr != nil {
			e.log.Warn(ctx, "encode applied event", logging.Err(encErr))
		}
		e.publish(label, outcome, data)
	}
	return outcome
}

func (e *Engine) publish(kind string, outcome state.Outcome, data json.RawMessage) {
	e.seq++
	note := events.Applied{
		Seq:     e.seq,
		At:      e.clock.Now(),
		Type:    kind,
		Outcome: string(outcome),
		Data:    data,
	}

	e.mu.Lock()
	fns := make([]func(events.Applied), 0, len(e.listeners))
	for _, fn := range e.listeners {
		fns = append(fns, fn)
	}
	e.mu.Unlock()

	for _, fn := range fns {
		fn(note)
	}
}

func (e *Engine) observe(kind, outcome string, d time.Duration) {
	if e.metrics != nil {
		e.metrics.ObserveEvent(kind, outcome, d)
	}
}
