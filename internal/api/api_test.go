package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/signalsfoundry/edgeview/internal/engine"
	"github.com/signalsfoundry/edgeview/internal/interaction"
	"github.com/signalsfoundry/edgeview/internal/logging"
	"github.com/signalsfoundry/edgeview/internal/observability"
	"github.com/signalsfoundry/edgeview/internal/render"
	"github.com/signalsfoundry/edgeview/internal/scenario"
	"github.com/signalsfoundry/edgeview/internal/seed"
	"github.com/signalsfoundry/edgeview/internal/state"
	"github.com/signalsfoundry/edgeview/internal/viewport"
	"github.com/signalsfoundry/edgeview/model"
	"github.com/signalsfoundry/edgeview/timectrl"
)

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	srv    *httptest.Server
	store  *state.Store
	engine *engine.Engine
	clock  *timectrl.ManualClock
	vp     *viewport.Controller
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	collector, err := observability.NewEngineCollector(prometheus.NewRegistry())
	if err != nil {
		t.Fatalf("NewEngineCollector: %v", err)
	}
	store := state.New(logging.Noop(), state.WithMetricsRecorder(collector))
	if err := store.Load(seed.Fallback(testNow, 1)); err != nil {
		t.Fatalf("Load: %v", err)
	}
	clock := timectrl.NewManualClock(testNow)
	eng := engine.New(store, logging.Noop(), engine.WithClock(clock), engine.WithMetricsRecorder(collector))
	if err := eng.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() { _ = eng.Close() })

	vp := viewport.NewController(viewport.Size{Width: 800, Height: 600})
	redrawer := render.NewRedrawer(store, vp, nil, render.WithMetricsRecorder(collector))
	t.Cleanup(redrawer.Close)

	router := NewRouter(Deps{
		Store:       store,
		Engine:      eng,
		Catalog:     scenario.Default(),
		Viewport:    vp,
		Interaction: interaction.New(store, vp),
		Redrawer:    redrawer,
		Metrics:     collector.Handler(),
	})
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return &fixture{srv: srv, store: store, engine: eng, clock: clock, vp: vp}
}

func (f *fixture) do(t *testing.T, method, path string, body any) (*http.Response, []byte) {
	t.Helper()
	var rd io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("Marshal: %v", err)
		}
		rd = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, f.srv.URL+path, rd)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := f.srv.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	out, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	return resp, out
}

func decode[T any](t *testing.T, raw []byte) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		t.Fatalf("Unmarshal %s: %v", raw, err)
	}
	return v
}

func TestInitialSnapshot(t *testing.T) {
	f := newFixture(t)
	resp, body := f.do(t, http.MethodGet, "/api/dashboard/initial", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, body %s", resp.StatusCode, body)
	}
	ds := decode[model.Dataset](t, body)
	if len(ds.Nodes) != 6 || len(ds.Links) != 6 || len(ds.AIDecisions) != 3 {
		t.Fatalf("snapshot sizes = %d/%d/%d", len(ds.Nodes), len(ds.Links), len(ds.AIDecisions))
	}
	if got := len(ds.Metrics[model.MetricLatency]); got != seed.FallbackPoints {
		t.Fatalf("latency len = %d, want %d", got, seed.FallbackPoints)
	}
	if resp.Header.Get("X-Request-ID") == "" {
		t.Fatalf("missing X-Request-ID header")
	}
}

func TestRequestIDIsEchoed(t *testing.T) {
	f := newFixture(t)
	req, _ := http.NewRequest(http.MethodGet, f.srv.URL+"/healthz", nil)
	req.Header.Set("X-Request-ID", "req-42")
	resp, err := f.srv.Client().Do(req)
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	resp.Body.Close()
	if got := resp.Header.Get("X-Request-ID"); got != "req-42" {
		t.Fatalf("X-Request-ID = %q, want req-42", got)
	}
}

func TestNodeDetails(t *testing.T) {
	f := newFixture(t)
	resp, body := f.do(t, http.MethodGet, "/api/nodes/5", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, body %s", resp.StatusCode, body)
	}
	got := decode[struct {
		model.Node
		Links     []model.Link `json:"links"`
		Neighbors []string     `json:"neighbors"`
	}](t, body)
	if got.Name != "Tower 2" || got.Status != model.HealthCritical {
		t.Fatalf("node = %+v", got.Node)
	}
	if strings.Join(got.Neighbors, ",") != "4,6" || len(got.Links) != 2 {
		t.Fatalf("neighbors = %v, links = %d", got.Neighbors, len(got.Links))
	}

	resp, body = f.do(t, http.MethodGet, "/api/nodes/99", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("missing node status = %d, want 404", resp.StatusCode)
	}
	if e := decode[errorResponse](t, body); e.RequestID == "" || !strings.Contains(e.Error, "99") {
		t.Fatalf("error body = %+v", e)
	}
}

func TestScenariosAndTrigger(t *testing.T) {
	f := newFixture(t)
	_, body := f.do(t, http.MethodGet, "/api/scenarios", nil)
	list := decode[[]model.Scenario](t, body)
	if len(list) != 4 {
		t.Fatalf("scenarios = %d, want 4", len(list))
	}

	resp, body := f.do(t, http.MethodPost, "/api/simulation/trigger", map[string]string{"scenarioId": "link_failure"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("trigger status = %d, body %s", resp.StatusCode, body)
	}
	ack := decode[scenario.Ack](t, body)
	if !ack.Success || ack.EstimatedDuration < 30 || ack.EstimatedDuration >= 60 {
		t.Fatalf("ack = %+v", ack)
	}
	if sc := f.store.ActiveScenario(); sc == nil || sc.ID != "link_failure" {
		t.Fatalf("active scenario = %+v", sc)
	}

	f.clock.Advance(2 * time.Second)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := f.engine.Flush(ctx); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if d := f.store.Decisions(); len(d) != 4 || d[0].Action != "Responding to Link Failure" {
		t.Fatalf("decisions after response = %d, newest %q", len(d), d[0].Action)
	}

	resp, _ = f.do(t, http.MethodPost, "/api/simulation/trigger", map[string]string{"scenarioId": "meteor"})
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown scenario status = %d, want 404", resp.StatusCode)
	}
	resp, _ = f.do(t, http.MethodPost, "/api/simulation/trigger", "not an object")
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("malformed body status = %d, want 400", resp.StatusCode)
	}
}

func TestZoomModeAndResize(t *testing.T) {
	f := newFixture(t)

	resp, body := f.do(t, http.MethodPost, "/api/map/zoom", zoomRequest{Direction: "in"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("zoom status = %d, body %s", resp.StatusCode, body)
	}
	st := decode[mapState](t, body)
	if st.Changed == nil || !*st.Changed || st.Viewport.Zoom != viewport.ZoomStep {
		t.Fatalf("after zoom in: %+v", st)
	}
	for i := 0; i < 10; i++ {
		f.do(t, http.MethodPost, "/api/map/zoom", zoomRequest{Direction: "in"})
	}
	_, body = f.do(t, http.MethodPost, "/api/map/zoom", zoomRequest{Direction: "in"})
	if st := decode[mapState](t, body); *st.Changed || st.Viewport.Zoom != viewport.MaxZoom {
		t.Fatalf("zoom at max: changed=%v zoom=%v", *st.Changed, st.Viewport.Zoom)
	}
	if resp, _ := f.do(t, http.MethodPost, "/api/map/zoom", zoomRequest{Direction: "sideways"}); resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad direction status = %d, want 400", resp.StatusCode)
	}

	_, body = f.do(t, http.MethodPost, "/api/map/mode", modeRequest{Mode: "pan"})
	if st := decode[mapState](t, body); st.Viewport.Mode != viewport.ModePan || !*st.Changed {
		t.Fatalf("mode = %+v", st.Viewport)
	}
	_, body = f.do(t, http.MethodPost, "/api/map/mode", modeRequest{Toggle: true})
	if st := decode[mapState](t, body); st.Viewport.Mode != viewport.ModeSelect {
		t.Fatalf("toggled mode = %q, want select", st.Viewport.Mode)
	}
	if resp, _ := f.do(t, http.MethodPost, "/api/map/mode", modeRequest{Mode: "lasso"}); resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad mode status = %d, want 400", resp.StatusCode)
	}

	_, body = f.do(t, http.MethodPost, "/api/map/resize", viewport.Size{Width: 1200, Height: 900})
	if st := decode[mapState](t, body); st.Viewport.Surface != (viewport.Size{Width: 1200, Height: 900}) {
		t.Fatalf("surface = %+v", st.Viewport.Surface)
	}
	if resp, _ := f.do(t, http.MethodPost, "/api/map/resize", viewport.Size{Width: 0, Height: 900}); resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("zero size status = %d, want 400", resp.StatusCode)
	}
}

func TestPointerHoverSelectAndDeselect(t *testing.T) {
	f := newFixture(t)

	// Village A sits at logical (100,100), device (200,200) on 800x600.
	_, body := f.do(t, http.MethodPost, "/api/map/pointer", interaction.PointerEvent{Type: interaction.PointerMove, X: 203, Y: 198})
	st := decode[mapState](t, body)
	if st.Interaction.Phase != interaction.PhaseHovering || st.Interaction.Hovered != "1" {
		t.Fatalf("after move: %+v", st.Interaction)
	}
	if st.Tooltip == nil || st.Tooltip.Node.Name != "Village A" || st.Tooltip.Anchor != (model.Point{X: 215, Y: 185}) {
		t.Fatalf("tooltip = %+v", st.Tooltip)
	}

	_, body = f.do(t, http.MethodPost, "/api/map/pointer", interaction.PointerEvent{Type: interaction.PointerClick})
	st = decode[mapState](t, body)
	if st.Interaction.Phase != interaction.PhaseSelected || st.Selected == nil || st.Selected.ID != "1" {
		t.Fatalf("after click: %+v selected %+v", st.Interaction, st.Selected)
	}

	_, body = f.do(t, http.MethodGet, "/api/map", nil)
	if st := decode[mapState](t, body); st.Selected == nil || st.Selected.Name != "Village A" {
		t.Fatalf("map state selected = %+v", st.Selected)
	}

	_, body = f.do(t, http.MethodPost, "/api/map/deselect", nil)
	if st := decode[mapState](t, body); st.Selected != nil || st.Interaction.Selected != "" {
		t.Fatalf("after deselect: %+v", st.Interaction)
	}

	resp, _ := f.do(t, http.MethodPost, "/api/map/pointer", interaction.PointerEvent{Type: "wheel"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("unknown pointer status = %d, want 400", resp.StatusCode)
	}
}

func TestPointerPanDrag(t *testing.T) {
	f := newFixture(t)
	f.do(t, http.MethodPost, "/api/map/mode", modeRequest{Mode: "pan"})

	for _, ev := range []interaction.PointerEvent{
		{Type: interaction.PointerDown, X: 100, Y: 100},
		{Type: interaction.PointerMove, X: 110, Y: 95},
		{Type: interaction.PointerUp},
	} {
		if resp, body := f.do(t, http.MethodPost, "/api/map/pointer", ev); resp.StatusCode != http.StatusOK {
			t.Fatalf("%s status = %d, body %s", ev.Type, resp.StatusCode, body)
		}
	}
	_, body := f.do(t, http.MethodGet, "/api/map", nil)
	st := decode[mapState](t, body)
	if st.Viewport.Pan != (model.Point{X: 10, Y: -5}) {
		t.Fatalf("pan = %+v, want (10,-5)", st.Viewport.Pan)
	}
	if st.Interaction.Phase != interaction.PhaseIdle || st.Interaction.Dragging {
		t.Fatalf("interaction = %+v, want idle", st.Interaction)
	}
}

func TestFrameAndSVG(t *testing.T) {
	f := newFixture(t)
	_, body := f.do(t, http.MethodGet, "/api/map/frame", nil)
	first := decode[render.Frame](t, body)
	if first.Stats.Nodes != 6 || first.Stats.Links != 6 || first.Stats.SkippedLinks != 0 {
		t.Fatalf("stats = %+v", first.Stats)
	}
	if len(first.Commands) == 0 || first.Commands[0].Op != render.OpClear {
		t.Fatalf("commands start with %+v", first.Commands)
	}

	f.do(t, http.MethodPost, "/api/map/zoom", zoomRequest{Direction: "out"})
	_, body = f.do(t, http.MethodGet, "/api/map/frame", nil)
	next := decode[render.Frame](t, body)
	if next.Seq != first.Seq+1 || next.Viewport.Zoom >= 1 {
		t.Fatalf("frame after zoom out: seq %d zoom %v", next.Seq, next.Viewport.Zoom)
	}

	resp, body := f.do(t, http.MethodGet, "/api/map/topology.svg", nil)
	if ct := resp.Header.Get("Content-Type"); ct != "image/svg+xml" {
		t.Fatalf("Content-Type = %q", ct)
	}
	if !bytes.HasPrefix(body, []byte("<svg")) || !bytes.Contains(body, []byte("Satellite Link")) {
		t.Fatalf("svg = %.120s", body)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	f := newFixture(t)
	resp, body := f.do(t, http.MethodGet, "/healthz", nil)
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), "ok") {
		t.Fatalf("healthz = %d %s", resp.StatusCode, body)
	}
	_, body = f.do(t, http.MethodGet, "/metrics", nil)
	if !strings.Contains(string(body), "edgeview_store_nodes 6") {
		t.Fatalf("metrics missing store gauge:\n%s", body)
	}
	if !strings.Contains(string(body), "edgeview_redraws_total") {
		t.Fatalf("metrics missing redraw counter")
	}

	f.store.Dispose()
	resp, _ = f.do(t, http.MethodGet, "/healthz", nil)
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("healthz after dispose = %d, want 503", resp.StatusCode)
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{nil, http.StatusOK},
		{fmt.Errorf("wrap: %w", state.ErrNodeNotFound), http.StatusNotFound},
		{scenario.ErrUnknownScenario, http.StatusNotFound},
		{errBadRequest, http.StatusBadRequest},
		{state.ErrUnknownMetric, http.StatusBadRequest},
		{viewport.ErrInvalidMode, http.StatusBadRequest},
		{viewport.ErrInvalidSize, http.StatusBadRequest},
		{interaction.ErrUnknownPointerEvent, http.StatusBadRequest},
		{engine.ErrClosed, http.StatusServiceUnavailable},
		{state.ErrDisposed, http.StatusServiceUnavailable},
		{context.DeadlineExceeded, http.StatusGatewayTimeout},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := statusFor(tt.err); got != tt.want {
			t.Errorf("statusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}
