package stream

import (
	"context"
	"fmt"
	"io"
	"math/rand/v2"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/signalsfoundry/edgeview/internal/events"
	"github.com/signalsfoundry/edgeview/internal/logging"
	"github.com/signalsfoundry/edgeview/model"
	"github.com/signalsfoundry/edgeview/timectrl"
)

// DefaultSimulatorInterval is the period between two simulated messages.
const DefaultSimulatorInterval = 5 * time.Second

var (
	decisionActions = []string{
		"Bandwidth reallocation",
		"Route optimization",
		"Backup link activation",
		"Traffic prioritization",
		"Power saving mode",
	}
	impactSubjects   = []string{"Latency", "Throughput", "Packet loss"}
	predictionThemes = []string{"latency reduction", "throughput increase", "reliability improvement"}
)

// Random is the subset of *rand.Rand the simulator draws from.
type Random interface {
	IntN(n int) int
	Float64() float64
}

// SimulatorConfig controls the simulated upstream feed.
type SimulatorConfig struct {
	Interval time.Duration
	// NodeIDs are the ids NODE_UPDATE messages pick from.
	NodeIDs []string
	// SatelliteNodes get their latency from the satellite link, if any.
	SatelliteNodes []string
}

// DefaultSimulatorConfig targets the six seed nodes, node 6 being the
// satellite uplink.
func DefaultSimulatorConfig() SimulatorConfig {
	return SimulatorConfig{
		Interval:       DefaultSimulatorInterval,
		NodeIDs:        []string{"1", "2", "3", "4", "5", "6"},
		SatelliteNodes: []string{"6"},
	}
}

// SimulatorOption customises a Simulator.
type SimulatorOption func(*Simulator)

// WithClock sets the simulator's time source.
func WithClock(c timectrl.Clock) SimulatorOption {
	return func(s *Simulator) {
		if c != nil {
			s.clock = c
		}
	}
}

// WithRandom replaces the random source.
func WithRandom(r Random) SimulatorOption {
	return func(s *Simulator) {
		if r != nil {
			s.rng = r
		}
	}
}

// WithIDGenerator replaces the decision id generator.
func WithIDGenerator(fn func() string) SimulatorOption {
	return func(s *Simulator) {
		if fn != nil {
			s.newID = fn
		}
	}
}

// WithSatelliteLink derives satellite node latency from link.
func WithSatelliteLink(link *SatelliteLink) SimulatorOption {
	return func(s *Simulator) { s.link = link }
}

// Simulator is an events.Source that emits one random message per interval,
// standing in for a live upstream feed.
type Simulator struct {
	cfg   SimulatorConfig
	clock timectrl.Clock
	log   logging.Logger
	link  *SatelliteLink
	newID func() string

	mu  sync.Mutex
	rng Random
	sat map[string]bool
}

// NewSimulator returns a simulator; zero config fields take their defaults.
func NewSimulator(cfg SimulatorConfig, log logging.Logger, opts ...SimulatorOption) *Simulator {
	def := DefaultSimulatorConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if len(cfg.NodeIDs) == 0 {
		cfg.NodeIDs = def.NodeIDs
		if cfg.SatelliteNodes == nil {
			cfg.SatelliteNodes = def.SatelliteNodes
		}
	}
	s := &Simulator{
		cfg:   cfg,
		clock: timectrl.Real(),
		log:   logging.OrNoop(log).With(logging.Component("stream.simulator")),
		newID: uuid.NewString,
		rng:   rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0x2545f4914f6cdd1d)),
		sat:   make(map[string]bool, len(cfg.SatelliteNodes)),
	}
	for _, id := range cfg.SatelliteNodes {
		s.sat[id] = true
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Subscribe starts emitting into sink. Closing the returned subscription
// stops the ticker; no delivery happens after Close returns.
func (s *Simulator) Subscribe(ctx context.Context, sink events.Sink) (io.Closer, error) {
	sub := &simSubscription{tasks: timectrl.NewGroup(s.clock)}
	ctx = context.WithoutCancel(ctx)
	_, err := sub.tasks.Every(s.cfg.Interval, func(now time.Time) {
		sub.mu.Lock()
		defer sub.mu.Unlock()
		if sub.closed {
			return
		}
		s.deliver(ctx, sink, now)
	})
	if err != nil {
		return nil, fmt.Errorf("start simulator: %w", err)
	}
	s.log.Info(ctx, "simulated feed started", logging.Duration("interval", s.cfg.Interval))
	return sub, nil
}

func (s *Simulator) deliver(ctx context.Context, sink events.Sink, now time.Time) {
	ev := s.Next(now)
	raw, err := events.Encode(ev)
	if err != nil {
		s.log.Error(ctx, "encode simulated event", logging.Err(err))
		return
	}
	if err := sink.SubmitRaw(ctx, raw); err != nil {
		s.log.Debug(ctx, "simulated event rejected", logging.String("type", events.Label(ev)), logging.Err(err))
	}
}

// Next draws one random event stamped with now.
func (s *Simulator) Next(now time.Time) events.Event {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.rng.IntN(4) {
	case 0:
		return s.nodeUpdate(now)
	case 1:
		return s.metricUpdate(now)
	case 2:
		return s.decision(now)
	default:
		return s.systemStatus()
	}
}

func (s *Simulator) nodeUpdate(now time.Time) events.NodeUpdate {
	id := s.cfg.NodeIDs[s.rng.IntN(len(s.cfg.NodeIDs))]
	status := model.HealthOptimal
	if s.rng.Float64() > 0.7 {
		status = model.HealthWarning
	}
	metrics := model.NodeMetrics{
		Throughput: s.rng.Float64()*50 + 50,
		Latency:    s.rng.Float64()*40 + 10,
		Users:      s.rng.IntN(100) + 20,
	}
	if s.link != nil && s.sat[id] {
		metrics.Latency = s.link.LatencyMs(now)
	}
	return events.NodeUpdate{ID: id, Status: &status, Metrics: &metrics}
}

func (s *Simulator) metricUpdate(now time.Time) events.MetricUpdate {
	kinds := model.MetricKinds()
	kind := kinds[s.rng.IntN(len(kinds))]
	lo, hi := model.NominalRange(kind)
	return events.MetricUpdate{
		Metric: kind,
		Sample: model.Sample{Timestamp: now, Value: lo + s.rng.Float64()*(hi-lo)},
	}
}

func (s *Simulator) decision(now time.Time) events.DecisionLogged {
	action := decisionActions[s.rng.IntN(len(decisionActions))]
	subject := impactSubjects[s.rng.IntN(len(impactSubjects))]
	return events.DecisionLogged{Decision: model.Decision{
		ID:          s.newID(),
		Timestamp:   now,
		Action:      action,
		Description: "AI automatically " + strings.ToLower(action) + " to optimize network performance",
		Impact:      subject + " improved by " + strconv.Itoa(s.rng.IntN(30)+10) + "%",
	}}
}

func (s *Simulator) systemStatus() events.StatusReplaced {
	overall := model.HealthOptimal
	if s.rng.Float64() > 0.8 {
		overall = model.HealthWarning
	}
	uptime := strconv.FormatFloat(99+s.rng.Float64(), 'f', 1, 64) + "%"
	score := s.rng.IntN(20) + 80
	gain := s.rng.IntN(20) + 5
	theme := predictionThemes[s.rng.IntN(len(predictionThemes))]
	return events.StatusReplaced{Status: model.SystemStatus{
		Overall:               overall,
		Uptime:                uptime,
		PerformanceScore:      score,
		PredictedImprovements: fmt.Sprintf("%d%% %s", gain, theme),
	}}
}

type simSubscription struct {
	tasks *timectrl.Group

	mu     sync.Mutex
	closed bool
}

func (s *simSubscription) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.tasks.Close()
	return nil
}
