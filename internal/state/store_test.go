package state

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"testing"
	"time"

	"github.com/signalsfoundry/edgeview/internal/events"
	"github.com/signalsfoundry/edgeview/internal/logging"
	"github.com/signalsfoundry/edgeview/model"
)

var t0 = time.Date(2025, time.March, 1, 12, 0, 0, 0, time.UTC)

func testDataset() model.Dataset {
	return model.Dataset{
		Nodes: []model.Node{
			{ID: "1", Name: "Village A", Category: model.CategorySettlement, Status: model.HealthOptimal, Position: model.Point{X: 100, Y: 100}, Metrics: model.NodeMetrics{Throughput: 25, Latency: 15, Users: 45}},
			{ID: "4", Name: "Tower 1", Category: model.CategoryRelayTower, Status: model.HealthOptimal, Position: model.Point{X: 180, Y: 180}, Metrics: model.NodeMetrics{Throughput: 85, Latency: 8, Users: 115}},
			{ID: "5", Name: "Tower 2", Category: model.CategoryRelayTower, Status: model.HealthWarning, Position: model.Point{X: 300, Y: 220}, Metrics: model.NodeMetrics{Throughput: 45, Latency: 35, Users: 78}},
		},
		Links: []model.Link{
			{ID: "1", Source: "1", Target: "4", Status: model.HealthOptimal, Bandwidth: 30},
			{ID: "4", Source: "4", Target: "5", Status: model.HealthOptimal, Bandwidth: 80},
		},
	}
}

func newLoadedStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	s := New(logging.Noop(), opts...)
	if err := s.Load(testDataset()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	return s
}

func TestNodeUpdateMergesOnlySuppliedFields(t *testing.T) {
	s := newLoadedStore(t)
	before, _ := s.Node("5")

	out, err := s.Apply(context.Background(), events.StatusUpdate("5", model.HealthCritical))
	if err != nil || out != OutcomeApplied {
		t.Fatalf("Apply = (%v, %v), want applied", out, err)
	}

	got, ok := s.Node("5")
	if !ok {
		t.Fatal("node 5 missing")
	}
	want := before
	want.Status = model.HealthCritical
	if got != want {
		t.Fatalf("node 5 = %+v, want %+v", got, want)
	}
}

func TestNodeUpdateUnknownIDIsNoop(t *testing.T) {
	s := newLoadedStore(t)
	before := s.Snapshot()

	out, err := s.Apply(context.Background(), events.StatusUpdate("99", model.HealthCritical))
	if err != nil {
		t.Fatalf("Apply error: %v", err)
	}
	if out != OutcomeMiss {
		t.Fatalf("outcome = %v, want miss", out)
	}
	if err := s.ApplyNodeUpdate(events.StatusUpdate("99", model.HealthCritical)); !errors.Is(err, ErrNodeNotFound) {
		t.Fatalf("ApplyNodeUpdate error = %v, want ErrNodeNotFound", err)
	}
	if after := s.Snapshot(); !reflect.DeepEqual(before, after) {
		t.Fatalf("state changed on reference miss")
	}
}

func TestMetricSeriesKeepsNewestFifty(t *testing.T) {
	s := New(nil)
	for i := 1; i <= 51; i++ {
		sample := model.Sample{Timestamp: t0.Add(time.Duration(i) * time.Second), Value: float64(i)}
		if err := s.ApplyMetricSample(model.MetricLatency, sample); err != nil {
			t.Fatalf("ApplyMetricSample(%d): %v", i, err)
		}
	}

	got, err := s.Series(model.MetricLatency)
	if err != nil {
		t.Fatalf("Series: %v", err)
	}
	if len(got) != SeriesCapacity {
		t.Fatalf("len = %d, want %d", len(got), SeriesCapacity)
	}
	for i, sample := range got {
		if want := float64(i + 2); sample.Value != want {
			t.Fatalf("sample[%d] = %v, want %v", i, sample.Value, want)
		}
	}
}

func TestMetricSeriesKeepsArrivalOrder(t *testing.T) {
	s := New(nil)
	late := model.Sample{Timestamp: t0.Add(time.Hour), Value: 1}
	early := model.Sample{Timestamp: t0, Value: 2}
	_ = s.ApplyMetricSample(model.MetricThroughput, late)
	_ = s.ApplyMetricSample(model.MetricThroughput, early)

	got, _ := s.Series(model.MetricThroughput)
	if len(got) != 2 || got[0].Value != 1 || got[1].Value != 2 {
		t.Fatalf("series = %+v, want arrival order", got)
	}
}

func TestUnknownMetricIgnored(t *testing.T) {
	s := New(nil)
	out, err := s.Apply(context.Background(), events.MetricUpdate{Metric: "jitter", Sample: model.Sample{Value: 1}})
	if err != nil || out != OutcomeUnknown {
		t.Fatalf("Apply = (%v, %v), want unknown", out, err)
	}
	if _, err := s.Series("jitter"); !errors.Is(err, ErrUnknownMetric) {
		t.Fatalf("Series error = %v, want ErrUnknownMetric", err)
	}
}

func TestDecisionLogMostRecentFirst(t *testing.T) {
	s := New(nil)
	for i := 1; i <= 55; i++ {
		d := model.Decision{ID: fmt.Sprint(i), Timestamp: t0.Add(time.Duration(i) * time.Minute)}
		if err := s.ApplyDecision(d); err != nil {
			t.Fatalf("ApplyDecision: %v", err)
		}
	}

	log := s.Decisions()
	if len(log) != DecisionLogCapacity {
		t.Fatalf("len = %d, want %d", len(log), DecisionLogCapacity)
	}
	if log[0].ID != "55" || log[len(log)-1].ID != "6" {
		t.Fatalf("log head/tail = %s/%s, want 55/6", log[0].ID, log[len(log)-1].ID)
	}
}

func TestSystemStatusReplacedWholesale(t *testing.T) {
	s := New(nil)
	if got := s.SystemStatus(); got != model.DefaultSystemStatus() {
		t.Fatalf("initial status = %+v", got)
	}
	next := model.SystemStatus{Overall: model.HealthWarning, Uptime: "99.1%"}
	if _, err := s.Apply(context.Background(), events.StatusReplaced{Status: next}); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if got := s.SystemStatus(); got != next {
		t.Fatalf("status = %+v, want %+v", got, next)
	}
}

func TestUnknownEventIgnored(t *testing.T) {
	s := newLoadedStore(t)
	before := s.Snapshot()
	out, err := s.Apply(context.Background(), events.Unknown{Type: "FIRMWARE_PUSH"})
	if err != nil || out != OutcomeUnknown {
		t.Fatalf("Apply = (%v, %v), want unknown", out, err)
	}
	if !reflect.DeepEqual(before, s.Snapshot()) {
		t.Fatal("state changed on unknown event")
	}
}

func TestScenarioTriggerIsAdvisory(t *testing.T) {
	s := newLoadedStore(t)
	nodes := s.Nodes()
	sc := model.Scenario{
		ID:   "link_failure",
		Name: "Link Failure",
		Effects: model.ScenarioEffects{
			NodeChanges: []model.NodeChange{{NodeID: "4", NewStatus: model.HealthCritical}},
		},
	}
	if err := s.ApplyScenarioTrigger(sc); err != nil {
		t.Fatalf("ApplyScenarioTrigger: %v", err)
	}
	active := s.ActiveScenario()
	if active == nil || active.ID != "link_failure" {
		t.Fatalf("ActiveScenario = %+v", active)
	}
	if !reflect.DeepEqual(nodes, s.Nodes()) {
		t.Fatal("scenario trigger mutated nodes")
	}
}

func TestSnapshotIsIsolated(t *testing.T) {
	s := newLoadedStore(t)
	snap := s.Snapshot()
	snap.Nodes[0].Name = "changed"
	snap.AIDecisions = append(snap.AIDecisions, model.Decision{ID: "x"})

	if n, _ := s.Node("1"); n.Name != "Village A" {
		t.Fatalf("store node mutated through snapshot: %q", n.Name)
	}
	if len(s.Decisions()) != 0 {
		t.Fatal("store decisions mutated through snapshot")
	}
}

func TestLoadTruncatesOversizedInputs(t *testing.T) {
	ds := testDataset()
	ds.Metrics = model.MetricSet{}
	for i := 0; i < 60; i++ {
		ds.Metrics[model.MetricThroughput] = append(ds.Metrics[model.MetricThroughput], model.Sample{Value: float64(i)})
		ds.AIDecisions = append(ds.AIDecisions, model.Decision{ID: fmt.Sprint(i)})
	}
	s := New(nil)
	if err := s.Load(ds); err != nil {
		t.Fatalf("Load: %v", err)
	}
	series, _ := s.Series(model.MetricThroughput)
	if len(series) != 50 || series[0].Value != 10 {
		t.Fatalf("series len=%d first=%v, want 50 starting at 10", len(series), series[0].Value)
	}
	if log := s.Decisions(); len(log) != 50 || log[0].ID != "0" {
		t.Fatalf("decision log len=%d head=%s", len(log), log[0].ID)
	}
}

func TestObserversNotifiedAndCancelled(t *testing.T) {
	s := newLoadedStore(t)
	var got []Change
	cancel := s.Observe(func(c Change) { got = append(got, c) })

	_ = s.ApplyNodeUpdate(events.StatusUpdate("1", model.HealthWarning))
	_ = s.ApplyNodeUpdate(events.StatusUpdate("missing", model.HealthWarning))
	cancel()
	_ = s.ApplyDecision(model.Decision{ID: "d"})

	if len(got) != 1 {
		t.Fatalf("observed %d changes, want 1", len(got))
	}
	if got[0].Kind != ChangeNodes || got[0].NodeID != "1" || !got[0].Topological() {
		t.Fatalf("change = %+v", got[0])
	}
}

func TestDisposeRejectsMutations(t *testing.T) {
	s := newLoadedStore(t)
	called := false
	s.Observe(func(Change) { called = true })
	s.Dispose()

	if err := s.ApplyDecision(model.Decision{ID: "late"}); !errors.Is(err, ErrDisposed) {
		t.Fatalf("ApplyDecision after Dispose = %v, want ErrDisposed", err)
	}
	out, err := s.Apply(context.Background(), events.StatusUpdate("1", model.HealthCritical))
	if out != OutcomeRejected || !errors.Is(err, ErrDisposed) {
		t.Fatalf("Apply after Dispose = (%v, %v)", out, err)
	}
	if called {
		t.Fatal("observer called after Dispose")
	}
	if n, _ := s.Node("1"); n.Status != model.HealthOptimal {
		t.Fatal("disposed store still mutated")
	}
}

type stubMetricsRecorder struct {
	nodes, links, decisions int
	series                  map[model.MetricKind]int
}

func (r *stubMetricsRecorder) SetStoreCounts(nodes, links, decisions int) {
	r.nodes, r.links, r.decisions = nodes, links, decisions
}

func (r *stubMetricsRecorder) SetSeriesLength(kind model.MetricKind, n int) {
	if r.series == nil {
		r.series = make(map[model.MetricKind]int)
	}
	r.series[kind] = n
}

func TestMetricsRecorderTracksSizes(t *testing.T) {
	rec := &stubMetricsRecorder{}
	s := newLoadedStore(t, WithMetricsRecorder(rec))
	if rec.nodes != 3 || rec.links != 2 {
		t.Fatalf("counts = %d nodes %d links, want 3/2", rec.nodes, rec.links)
	}
	_ = s.ApplyMetricSample(model.MetricPacketLoss, model.Sample{Value: 1})
	_ = s.ApplyDecision(model.Decision{ID: "a"})
	if rec.series[model.MetricPacketLoss] != 1 {
		t.Fatalf("packetLoss length = %d, want 1", rec.series[model.MetricPacketLoss])
	}
	if rec.decisions != 1 {
		t.Fatalf("decisions = %d, want 1", rec.decisions)
	}
}
