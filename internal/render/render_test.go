package render

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/signalsfoundry/edgeview/internal/events"
	"github.com/signalsfoundry/edgeview/internal/state"
	"github.com/signalsfoundry/edgeview/internal/viewport"
	"github.com/signalsfoundry/edgeview/model"
)

var surface = viewport.Size{Width: 800, Height: 600}

func sampleTopology() ([]model.Node, []model.Link) {
	nodes := []model.Node{
		{ID: "1", Name: "Village A", Status: model.HealthOptimal, Position: model.Point{X: 100, Y: 100}},
		{ID: "4", Name: "Tower 1", Status: model.HealthWarning, Position: model.Point{X: 200, Y: 150}},
	}
	links := []model.Link{
		{ID: "a", Source: "1", Target: "4", Status: model.HealthOptimal, Bandwidth: 30},
		{ID: "b", Source: "4", Target: "ghost", Status: model.HealthCritical, Bandwidth: 80},
		{ID: "c", Source: "4", Target: "1", Status: model.HealthCritical, Bandwidth: 400},
	}
	return nodes, links
}

func ops(cmds []Command) []Op {
	out := make([]Op, len(cmds))
	for i, c := range cmds {
		out[i] = c.Op
	}
	return out
}

func TestRenderDrawOrderAndDanglingLinks(t *testing.T) {
	nodes, links := sampleTopology()
	rec := NewRecorder()
	stats := Render(rec, nodes, links, viewport.Transform{Surface: surface, Zoom: 1})

	if stats.Links != 2 || stats.SkippedLinks != 1 || stats.Nodes != 2 {
		t.Fatalf("stats = %+v, want 2 links, 1 skipped, 2 nodes", stats)
	}

	want := []Op{
		OpClear, OpSave, OpTranslate, OpScale,
		OpLine, OpText, // link a
		OpLine, OpText, // link c
		OpCircle, OpText, // node 1
		OpCircle, OpText, // node 4
		OpRestore,
	}
	got := ops(rec.Commands())
	if len(got) != len(want) {
		t.Fatalf("ops = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("ops[%d] = %v, want %v (all: %v)", i, got[i], want[i], got)
		}
	}
}

func TestRenderStylesAndSizes(t *testing.T) {
	nodes, links := sampleTopology()
	rec := NewRecorder()
	Render(rec, nodes, links, viewport.Transform{Surface: surface, Zoom: 2, Pan: model.Point{X: 5, Y: 7}})
	cmds := rec.Commands()

	if tr := cmds[2]; tr.X != 5 || tr.Y != 7 {
		t.Fatalf("translate = %+v", tr)
	}
	if sc := cmds[3]; sc.Factor != 2 {
		t.Fatalf("scale = %+v", sc)
	}

	line := cmds[4]
	if line.Style != "rgba(74, 222, 128, 0.6)" {
		t.Fatalf("link stroke = %q", line.Style)
	}
	if line.Width != 1.5/2 {
		t.Fatalf("link width = %v, want %v", line.Width, 1.5/2)
	}
	if line.X != 100 || line.Y != 100 || line.X2 != 200 || line.Y2 != 150 {
		t.Fatalf("link endpoints = %+v", line)
	}

	label := cmds[5]
	if label.Text != "30 Mbps" || label.X != 150 || label.Y != 125 || label.Font != 6 {
		t.Fatalf("bandwidth label = %+v", label)
	}

	if wide := cmds[6]; wide.Width != MaxLinkWidth/2 || wide.Style != "rgba(248, 113, 113, 0.6)" {
		t.Fatalf("clamped link = %+v", wide)
	}

	circle := cmds[8]
	if circle.Radius != 5 || circle.Style != "#4ade80" || circle.X != 100 || circle.Y != 100 {
		t.Fatalf("node circle = %+v", circle)
	}
	name := cmds[9]
	if name.Text != "Village A" || name.X != 90 || name.Y != 92.5 {
		t.Fatalf("node label = %+v", name)
	}
	if fill := cmds[10].Style; fill != "#facc15" {
		t.Fatalf("warning fill = %q", fill)
	}
}

func TestRenderIsDeterministic(t *testing.T) {
	nodes, links := sampleTopology()
	tr := viewport.Transform{Surface: surface, Zoom: 1.2}
	a, b := NewRecorder(), NewRecorder()
	Render(a, nodes, links, tr)
	Render(b, nodes, links, tr)
	ca, cb := a.Commands(), b.Commands()
	if len(ca) != len(cb) {
		t.Fatal("command count differs between identical renders")
	}
	for i := range ca {
		if ca[i] != cb[i] {
			t.Fatalf("command %d differs: %+v vs %+v", i, ca[i], cb[i])
		}
	}
}

func TestRenderEmptyTopologyStillClears(t *testing.T) {
	rec := NewRecorder()
	Render(rec, nil, nil, viewport.Transform{Surface: surface, Zoom: 1})
	got := ops(rec.Commands())
	if len(got) != 5 || got[0] != OpClear || got[4] != OpRestore {
		t.Fatalf("ops = %v", got)
	}
}

func TestLinkWidthClamp(t *testing.T) {
	cases := map[float64]float64{0: 1, 10: 1, 30: 1.5, 160: 8, 1000: 8}
	for bw, want := range cases {
		if got := LinkWidth(bw); got != want {
			t.Fatalf("LinkWidth(%v) = %v, want %v", bw, got, want)
		}
	}
	if got := BandwidthLabel(25.5); got != "25.5 Mbps" {
		t.Fatalf("BandwidthLabel = %q", got)
	}
}

func TestSVGSurface(t *testing.T) {
	nodes, links := sampleTopology()
	nodes[0].Name = "A & B <village>"
	svg := NewSVGSurface()
	Render(svg, nodes, links, viewport.Transform{Surface: surface, Zoom: 1})
	doc := string(svg.Bytes())

	if !strings.HasPrefix(doc, `<svg xmlns="http://www.w3.org/2000/svg" width="800" height="600"`) {
		t.Fatalf("unexpected header: %.80s", doc)
	}
	if strings.Count(doc, "<g ") != strings.Count(doc, "</g>") {
		t.Fatalf("unbalanced groups in %s", doc)
	}
	if strings.Count(doc, "<circle") != 2 || strings.Count(doc, "<line") != 2 {
		t.Fatalf("unexpected element counts in %s", doc)
	}
	if !strings.Contains(doc, "A &amp; B &lt;village&gt;") {
		t.Fatalf("label not escaped: %s", doc)
	}
}

type countingRecorder struct{ n int }

func (c *countingRecorder) IncRedraws() { c.n++ }

func TestRedrawerFollowsStoreAndViewport(t *testing.T) {
	store := state.New(nil)
	nodes, links := sampleTopology()
	if err := store.Load(model.Dataset{Nodes: nodes, Links: links}); err != nil {
		t.Fatalf("Load: %v", err)
	}
	vp := viewport.NewController(surface)
	counter := &countingRecorder{}
	r := NewRedrawer(store, vp, nil, WithMetricsRecorder(counter))
	defer r.Close()

	first := r.Frame()
	if first.Seq != 1 || first.Stats.Nodes != 2 {
		t.Fatalf("initial frame = %+v", first.Stats)
	}

	if _, err := store.Apply(context.Background(), events.StatusUpdate("1", model.HealthCritical)); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	f := r.Frame()
	if f.Seq != 2 {
		t.Fatalf("seq after node update = %d, want 2", f.Seq)
	}
	var fill string
	for _, c := range f.Commands {
		if c.Op == OpCircle {
			fill = c.Style
			break
		}
	}
	if fill != "#f87171" {
		t.Fatalf("node 1 fill = %q, want critical", fill)
	}

	_ = store.ApplyDecision(model.Decision{ID: "x"})
	if r.Frame().Seq != 2 {
		t.Fatal("decision log change triggered a redraw")
	}

	vp.ZoomIn()
	vp.Resize(viewport.Size{Width: 1000, Height: 500})
	if got := r.Frame(); got.Seq != 4 || got.Viewport.Surface.Width != 1000 {
		t.Fatalf("frame after viewport changes = seq %d surface %+v", got.Seq, got.Viewport.Surface)
	}
	if counter.n != 4 {
		t.Fatalf("redraws = %d, want 4", counter.n)
	}

	r.Close()
	vp.ZoomIn()
	if r.Frame().Seq != 4 {
		t.Fatal("redraw after Close")
	}
}

// gatedTopology blocks the next Topology call after arm until release.
type gatedTopology struct {
	mu      sync.Mutex
	nodes   []model.Node
	gate    chan struct{}
	entered chan struct{}
}

func (g *gatedTopology) Topology() ([]model.Node, []model.Link) {
	g.mu.Lock()
	nodes := append([]model.Node(nil), g.nodes...)
	gate := g.gate
	g.gate = nil
	g.mu.Unlock()
	if gate != nil {
		g.entered <- struct{}{}
		<-gate
	}
	return nodes, nil
}

func (g *gatedTopology) Observe(func(state.Change)) func() { return func() {} }

func (g *gatedTopology) arm() chan struct{} {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.gate = make(chan struct{})
	g.entered = make(chan struct{}, 1)
	return g.gate
}

func (g *gatedTopology) setNodes(nodes []model.Node) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.nodes = nodes
}

func TestConcurrentRedrawsPublishLatestInputs(t *testing.T) {
	nodes, _ := sampleTopology()
	topo := &gatedTopology{nodes: nodes[:1]}
	r := NewRedrawer(topo, viewport.NewController(surface), nil)
	defer r.Close()

	release := topo.arm()
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		r.Redraw()
	}()
	<-topo.entered

	topo.setNodes(nodes)
	go func() {
		defer wg.Done()
		r.Redraw()
	}()
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	f := r.Frame()
	if f.Seq != 3 {
		t.Fatalf("seq = %d, want 3", f.Seq)
	}
	if f.Stats.Nodes != 2 {
		t.Fatalf("published frame is stale: nodes = %d, want 2", f.Stats.Nodes)
	}
}
