// Package state holds the authoritative dashboard snapshot and the merge
// operations that apply update events to it.
package state

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/signalsfoundry/edgeview/internal/events"
	"github.com/signalsfoundry/edgeview/internal/logging"
	"github.com/signalsfoundry/edgeview/model"
)

var (
	// ErrNodeNotFound indicates an update referenced a node id that is not
	// in the store.
	ErrNodeNotFound = errors.New("node not found")
	// ErrUnknownMetric indicates a sample for a metric series that does not exist.
	ErrUnknownMetric = errors.New("unknown metric kind")
	// ErrDisposed is returned by every mutation after Dispose.
	ErrDisposed = errors.New("store disposed")
)

// Outcome classifies what Apply did with an event.
type Outcome string

const (
	OutcomeApplied  Outcome = "applied"
	OutcomeMiss     Outcome = "miss"
	OutcomeUnknown  Outcome = "unknown"
	OutcomeRejected Outcome = "rejected"
)

// ChangeKind says which part of the snapshot changed.
type ChangeKind int

const (
	ChangeReset ChangeKind = iota
	ChangeNodes
	ChangeLinks
	ChangeMetrics
	ChangeDecisions
	ChangeStatus
	ChangeScenario
)

// Change is delivered to observers after a successful mutation.
type Change struct {
	Kind   ChangeKind
	NodeID string
	Metric model.MetricKind
}

// Topological reports whether the change affects what the map draws.
func (c Change) Topological() bool {
	return c.Kind == ChangeReset || c.Kind == ChangeNodes || c.Kind == ChangeLinks
}

// MetricsRecorder receives size updates of the store's collections.
type MetricsRecorder interface {
	SetStoreCounts(nodes, links, decisions int)
	SetSeriesLength(kind model.MetricKind, n int)
}

// Option customises Store construction.
type Option func(*Store)

// WithMetricsRecorder attaches an optional metrics recorder.
func WithMetricsRecorder(m MetricsRecorder) Option {
	return func(s *Store) {
		s.metrics = m
	}
}

// Store is the in-memory dashboard state. Nodes and links keep their load
// order, which is also the order the renderer draws and hit-tests them in.
// All methods are safe for concurrent use, although the engine is the only
// writer in practice.
type Store struct {
	mu sync.RWMutex

	nodes     []model.Node
	nodeIndex map[string]int
	links     []model.Link
	series    map[model.MetricKind]*Series
	decisions []model.Decision
	status    model.SystemStatus
	active    *model.Scenario
	disposed  bool

	observers map[int]func(Change)
	nextObs   int

	log     logging.Logger
	metrics MetricsRecorder
}

// New constructs an empty store with the default system status.
func New(log logging.Logger, opts ...Option) *Store {
	s := &Store{
		nodeIndex: make(map[string]int),
		series:    make(map[model.MetricKind]*Series),
		status:    model.DefaultSystemStatus(),
		observers: make(map[int]func(Change)),
		log:       logging.OrNoop(log).With(logging.Component("state")),
	}
	for _, kind := range model.MetricKinds() {
		s.series[kind] = NewSeries(SeriesCapacity)
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	s.updateMetricsLocked()
	return s
}

// Load replaces the whole state with ds. Series longer than their capacity
// keep their newest samples; the decision log keeps its first entries.
func (s *Store) Load(ds model.Dataset) error {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return ErrDisposed
	}

	s.nodes = append([]model.Node(nil), ds.Nodes...)
	s.nodeIndex = make(map[string]int, len(s.nodes))
	for i, n := range s.nodes {
		if _, dup := s.nodeIndex[n.ID]; !dup {
			s.nodeIndex[n.ID] = i
		}
	}
	s.links = append([]model.Link(nil), ds.Links...)
	for kind, series := range s.series {
		series.Reset(ds.Metrics[kind])
	}
	decisions := ds.AIDecisions
	if len(decisions) > DecisionLogCapacity {
		decisions = decisions[:DecisionLogCapacity]
	}
	s.decisions = append([]model.Decision(nil), decisions...)
	if ds.SystemStatus != (model.SystemStatus{}) {
		s.status = ds.SystemStatus
	} else {
		s.status = model.DefaultSystemStatus()
	}
	s.active = cloneScenario(ds.ActiveScenario)
	s.updateMetricsLocked()
	obs := s.observersLocked()
	s.mu.Unlock()

	notify(obs, Change{Kind: ChangeReset})
	return nil
}

// ApplyNodeUpdate merges the supplied fields of u into the node with the
// same id. Absent fields keep their current values.
func (s *Store) ApplyNodeUpdate(u events.NodeUpdate) error {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return ErrDisposed
	}
	idx, ok := s.nodeIndex[u.ID]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrNodeNotFound, u.ID)
	}
	n := &s.nodes[idx]
	if u.Name != nil {
		n.Name = *u.Name
	}
	if u.Category != nil {
		n.Category = *u.Category
	}
	if u.Status != nil {
		n.Status = *u.Status
	}
	if u.Position != nil {
		n.Position = *u.Position
	}
	if u.Metrics != nil {
		n.Metrics = *u.Metrics
	}
	obs := s.observersLocked()
	s.mu.Unlock()

	notify(obs, Change{Kind: ChangeNodes, NodeID: u.ID})
	return nil
}

// ApplyMetricSample appends sample to the series of kind.
func (s *Store) ApplyMetricSample(kind model.MetricKind, sample model.Sample) error {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return ErrDisposed
	}
	series, ok := s.series[kind]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrUnknownMetric, kind)
	}
	series.Append(sample)
	if s.metrics != nil {
		s.metrics.SetSeriesLength(kind, series.Len())
	}
	obs := s.observersLocked()
	s.mu.Unlock()

	notify(obs, Change{Kind: ChangeMetrics, Metric: kind})
	return nil
}

// ApplyDecision prepends d to the decision log.
func (s *Store) ApplyDecision(d model.Decision) error {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return ErrDisposed
	}
	s.decisions = prependDecision(s.decisions, d, DecisionLogCapacity)
	s.updateMetricsLocked()
	obs := s.observersLocked()
	s.mu.Unlock()

	notify(obs, Change{Kind: ChangeDecisions})
	return nil
}

// ApplySystemStatus replaces the system status.
func (s *Store) ApplySystemStatus(status model.SystemStatus) error {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return ErrDisposed
	}
	s.status = status
	obs := s.observersLocked()
	s.mu.Unlock()

	notify(obs, Change{Kind: ChangeStatus})
	return nil
}

// ApplyScenarioTrigger records sc as the active scenario. Its effects are
// kept for display and are not applied to nodes or links.
func (s *Store) ApplyScenarioTrigger(sc model.Scenario) error {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return ErrDisposed
	}
	s.active = cloneScenario(&sc)
	obs := s.observersLocked()
	s.mu.Unlock()

	notify(obs, Change{Kind: ChangeScenario})
	return nil
}

// Apply dispatches ev to the matching merge. Reference misses and unknown
// kinds are reported through the outcome and are not errors.
func (s *Store) Apply(ctx context.Context, ev events.Event) (Outcome, error) {
	var err error
	switch e := ev.(type) {
	case events.NodeUpdate:
		err = s.ApplyNodeUpdate(e)
	case events.MetricUpdate:
		err = s.ApplyMetricSample(e.Metric, e.Sample)
	case events.DecisionLogged:
		err = s.ApplyDecision(e.Decision)
	case events.StatusReplaced:
		err = s.ApplySystemStatus(e.Status)
	default:
		s.log.Debug(ctx, "ignoring unknown event", logging.String("type", kindOf(ev)))
		return OutcomeUnknown, nil
	}

	switch {
	case err == nil:
		return OutcomeApplied, nil
	case errors.Is(err, ErrNodeNotFound):
		s.log.Debug(ctx, "node update for unknown id", logging.Err(err))
		return OutcomeMiss, nil
	case errors.Is(err, ErrUnknownMetric):
		s.log.Debug(ctx, "sample for unknown metric", logging.Err(err))
		return OutcomeUnknown, nil
	default:
		return OutcomeRejected, err
	}
}

func kindOf(ev events.Event) string {
	if ev == nil {
		return "<nil>"
	}
	return string(ev.Kind())
}

// Observe registers fn to be called after every successful mutation. fn runs
// on the mutating goroutine outside the store lock. The returned function
// removes the observer.
func (s *Store) Observe(fn func(Change)) (cancel func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposed || fn == nil {
		return func() {}
	}
	id := s.nextObs
	s.nextObs++
	s.observers[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.observers, id)
	}
}

// Dispose drops every observer and rejects further mutations. Reads keep
// returning the last state.
func (s *Store) Dispose() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.disposed = true
	s.observers = make(map[int]func(Change))
}

// Disposed reports whether Dispose was called.
func (s *Store) Disposed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.disposed
}

func (s *Store) observersLocked() []func(Change) {
	if len(s.observers) == 0 {
		return nil
	}
	ids := make([]int, 0, len(s.observers))
	for id := range s.observers {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	out := make([]func(Change), 0, len(ids))
	for _, id := range ids {
		out = append(out, s.observers[id])
	}
	return out
}

func notify(obs []func(Change), c Change) {
	for _, fn := range obs {
		fn(c)
	}
}

func (s *Store) updateMetricsLocked() {
	if s.metrics == nil {
		return
	}
	s.metrics.SetStoreCounts(len(s.nodes), len(s.links), len(s.decisions))
	for kind, series := range s.series {
		s.metrics.SetSeriesLength(kind, series.Len())
	}
}

func cloneScenario(sc *model.Scenario) *model.Scenario {
	if sc == nil {
		return nil
	}
	out := *sc
	eff := sc.Effects
	out.Effects = model.ScenarioEffects{
		NodeChanges: append([]model.NodeChange(nil), eff.NodeChanges...),
		LinkChanges: append([]model.LinkChange(nil), eff.LinkChanges...),
	}
	if eff.MetricChanges != nil {
		mc := model.MetricChanges{
			Throughput: cloneFloat(eff.MetricChanges.Throughput),
			Latency:    cloneFloat(eff.MetricChanges.Latency),
			PacketLoss: cloneFloat(eff.MetricChanges.PacketLoss),
		}
		out.Effects.MetricChanges = &mc
	}
	return &out
}

func cloneFloat(f *float64) *float64 {
	if f == nil {
		return nil
	}
	v := *f
	return &v
}
