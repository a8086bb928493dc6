package interaction

import (
	"errors"
	"testing"

	"github.com/signalsfoundry/edgeview/internal/viewport"
	"github.com/signalsfoundry/edgeview/model"
)

type staticNodes []model.Node

func (s staticNodes) Nodes() []model.Node { return s }

var surface = viewport.Size{Width: 800, Height: 600}

// Logical (200,150) renders at device (400,300) on an 800x600 surface.
func centreNode(id string) model.Node {
	return model.Node{ID: id, Name: "Node " + id, Position: model.Point{X: 200, Y: 150}}
}

func TestHitTestZoomInvariant(t *testing.T) {
	nodes := []model.Node{centreNode("a")}
	centre := model.Point{X: 400, Y: 300}

	for _, offset := range []float64{0, 10, 14.9, 15, 15.1, 40} {
		p := centre.Add(model.Point{X: offset})
		_, hit1 := HitTest(viewport.Transform{Surface: surface, Zoom: 1}, nodes, p)
		_, hit2 := HitTest(viewport.Transform{Surface: surface, Zoom: 2}, nodes, p)
		if hit1 != hit2 {
			t.Fatalf("offset %v: hit at zoom 1 = %v, at zoom 2 = %v", offset, hit1, hit2)
		}
		if want := offset <= PickRadius; hit1 != want {
			t.Fatalf("offset %v: hit = %v, want %v", offset, hit1, want)
		}
	}
}

func TestHitTestWithPan(t *testing.T) {
	nodes := []model.Node{centreNode("a")}
	tr := viewport.Transform{Surface: surface, Zoom: 1.44, Pan: model.Point{X: 50, Y: -20}}
	if _, ok := HitTest(tr, nodes, model.Point{X: 455, Y: 285}); !ok {
		t.Fatal("expected hit on panned node")
	}
	if _, ok := HitTest(tr, nodes, model.Point{X: 400, Y: 300}); ok {
		t.Fatal("unexpected hit at unpanned position")
	}
}

func TestHitTestFirstMatchWins(t *testing.T) {
	a := centreNode("a")
	b := centreNode("b")
	b.Position.X += 2 // closer to the pointer below, but later in order
	p := model.Point{X: 405, Y: 300}

	got, ok := HitTest(viewport.Transform{Surface: surface, Zoom: 1}, []model.Node{a, b}, p)
	if !ok || got.ID != "a" {
		t.Fatalf("HitTest = %q, %v, want a", got.ID, ok)
	}
}

func newMachine(nodes ...model.Node) (*Machine, *viewport.Controller) {
	vp := viewport.NewController(surface)
	return New(staticNodes(nodes), vp), vp
}

func TestHoverAndSelect(t *testing.T) {
	m, _ := newMachine(centreNode("a"))

	m.Move(model.Point{X: 405, Y: 303})
	if st := m.State(); st.Phase != PhaseHovering || st.Hovered != "a" {
		t.Fatalf("state after move = %+v, want hovering(a)", st)
	}
	tip, ok := m.Tooltip()
	if !ok || tip.Node.ID != "a" || tip.Anchor != (model.Point{X: 415, Y: 285}) {
		t.Fatalf("Tooltip = %+v, %v", tip, ok)
	}

	m.Click()
	if st := m.State(); st.Phase != PhaseSelected || st.Selected != "a" {
		t.Fatalf("state after click = %+v, want selected(a)", st)
	}

	m.Move(model.Point{X: 10, Y: 10})
	if st := m.State(); st.Phase != PhaseSelected || st.Hovered != "" {
		t.Fatalf("moving away changed selection: %+v", st)
	}

	m.Deselect()
	if st := m.State(); st.Phase != PhaseIdle || st.Selected != "" {
		t.Fatalf("state after deselect = %+v, want idle", st)
	}
}

func TestNoHitIsIdle(t *testing.T) {
	m, _ := newMachine(centreNode("a"))
	m.Move(model.Point{X: 405, Y: 300})
	m.Move(model.Point{X: 700, Y: 50})
	if st := m.State(); st.Phase != PhaseIdle || st.Hovered != "" {
		t.Fatalf("state = %+v, want idle", st)
	}
	m.Click()
	if st := m.State(); st.Phase != PhaseIdle {
		t.Fatalf("click on empty map changed state: %+v", st)
	}
}

func TestPanDragScenario(t *testing.T) {
	m, vp := newMachine(centreNode("a"))
	vp.ToggleMode()
	before := vp.State()

	if _, err := m.Handle(PointerEvent{Type: PointerDown, X: 100, Y: 100}); err != nil {
		t.Fatalf("Handle(down): %v", err)
	}
	if st := m.State(); st.Phase != PhaseDragging || st.Anchor == nil {
		t.Fatalf("state after down = %+v, want dragging", st)
	}
	m.Handle(PointerEvent{Type: PointerMove, X: 110, Y: 95})
	st, _ := m.Handle(PointerEvent{Type: PointerUp, X: 110, Y: 95})

	after := vp.State()
	if got := after.Pan.Sub(before.Pan); got != (model.Point{X: 10, Y: -5}) {
		t.Fatalf("pan delta = %+v, want (10,-5)", got)
	}
	if after.Zoom != before.Zoom {
		t.Fatalf("zoom changed: %v -> %v", before.Zoom, after.Zoom)
	}
	if st.Phase != PhaseIdle || st.Dragging {
		t.Fatalf("state after up = %+v, want idle", st)
	}
}

func TestDragAccumulatesSteps(t *testing.T) {
	m, vp := newMachine()
	vp.SetMode(viewport.ModePan)
	m.Down(model.Point{X: 0, Y: 0})
	m.Move(model.Point{X: 3, Y: 4})
	m.Move(model.Point{X: 5, Y: 1})
	m.Handle(PointerEvent{Type: PointerLeave})
	if got := vp.State().Pan; got != (model.Point{X: 5, Y: 1}) {
		t.Fatalf("pan = %+v, want (5,1)", got)
	}
	m.Move(model.Point{X: 50, Y: 50})
	if got := vp.State().Pan; got != (model.Point{X: 5, Y: 1}) {
		t.Fatalf("move after leave panned: %+v", got)
	}
}

func TestDownIgnoredInSelectMode(t *testing.T) {
	m, vp := newMachine()
	m.Down(model.Point{X: 1, Y: 1})
	m.Move(model.Point{X: 30, Y: 30})
	if st := m.State(); st.Dragging {
		t.Fatal("dragging in select mode")
	}
	if vp.State().Pan != (model.Point{}) {
		t.Fatal("pan changed in select mode")
	}
}

func TestModeToggleKeepsSelection(t *testing.T) {
	m, vp := newMachine(centreNode("a"))
	m.Move(model.Point{X: 400, Y: 300})
	m.Click()
	vp.ToggleMode()

	m.Move(model.Point{X: 0, Y: 0})
	if st := m.State(); st.Selected != "a" || st.Phase != PhaseSelected {
		t.Fatalf("selection lost after mode toggle: %+v", st)
	}
	if _, ok := m.Tooltip(); ok {
		t.Fatal("tooltip shown in pan mode")
	}

	m.Down(model.Point{X: 0, Y: 0})
	m.Up()
	if st := m.State(); st.Phase != PhaseSelected || st.Selected != "a" {
		t.Fatalf("drag cleared selection: %+v", st)
	}
}

func TestHandleUnknownEvent(t *testing.T) {
	m, _ := newMachine()
	if _, err := m.Handle(PointerEvent{Type: "wheel"}); !errors.Is(err, ErrUnknownPointerEvent) {
		t.Fatalf("Handle error = %v, want ErrUnknownPointerEvent", err)
	}
}
