// Package interaction resolves pointer input against the rendered topology
// into hover, drag and selection state.
package interaction

import (
	"errors"
	"fmt"
	"sync"

	"github.com/signalsfoundry/edgeview/internal/viewport"
	"github.com/signalsfoundry/edgeview/model"
)

// PickRadius is the hit radius in device pixels. In pre-transform space it
// is divided by zoom, which keeps picking identical at every zoom level.
const PickRadius = 15.0

// Tooltip offset from a hovered node's device position.
var tooltipOffset = model.Point{X: 15, Y: -15}

// ErrUnknownPointerEvent is returned by Handle for an unrecognised event type.
var ErrUnknownPointerEvent = errors.New("unknown pointer event")

// Phase is the machine's top-level state.
type Phase string

const (
	PhaseIdle     Phase = "idle"
	PhaseHovering Phase = "hovering"
	PhaseDragging Phase = "dragging"
	PhaseSelected Phase = "selected"
)

// State is a copy of the interaction state.
type State struct {
	Phase    Phase        `json:"phase"`
	Hovered  string       `json:"hovered,omitempty"`
	Selected string       `json:"selected,omitempty"`
	Dragging bool         `json:"dragging"`
	Anchor   *model.Point `json:"anchor,omitempty"`
}

// PointerType names a pointer event.
type PointerType string

const (
	PointerMove  PointerType = "move"
	PointerDown  PointerType = "down"
	PointerUp    PointerType = "up"
	PointerLeave PointerType = "leave"
	PointerClick PointerType = "click"
)

// PointerEvent is one pointer input in device coordinates.
type PointerEvent struct {
	Type PointerType `json:"type"`
	X    float64     `json:"x"`
	Y    float64     `json:"y"`
}

// NodeSource provides the nodes in draw order.
type NodeSource interface {
	Nodes() []model.Node
}

// HitTest returns the first node, in slice order, whose rendered centre lies
// within the pick radius of the device point p. Distance is not used to rank
// overlapping candidates.
func HitTest(tr viewport.Transform, nodes []model.Node, p model.Point) (model.Node, bool) {
	q := tr.ToLogicalEquivalent(p)
	r := tr.Scale(PickRadius)
	for _, n := range nodes {
		if tr.Project(n.Position).Dist(q) <= r {
			return n, true
		}
	}
	return model.Node{}, false
}

// Machine is the interaction state machine. It reads nodes and the viewport
// and only writes the viewport's pan offset while dragging.
type Machine struct {
	nodes NodeSource
	vp    *viewport.Controller

	mu       sync.Mutex
	phase    Phase
	hovered  string
	selected string
	dragging bool
	anchor   model.Point
}

// New returns a machine in the idle state.
func New(nodes NodeSource, vp *viewport.Controller) *Machine {
	return &Machine{nodes: nodes, vp: vp, phase: PhaseIdle}
}

// State returns the current interaction state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stateLocked()
}

func (m *Machine) stateLocked() State {
	st := State{
		Phase:    m.phase,
		Hovered:  m.hovered,
		Selected: m.selected,
		Dragging: m.dragging,
	}
	if m.dragging {
		a := m.anchor
		st.Anchor = &a
	}
	return st
}

// Handle dispatches ev and returns the resulting state.
func (m *Machine) Handle(ev PointerEvent) (State, error) {
	p := model.Point{X: ev.X, Y: ev.Y}
	switch ev.Type {
	case PointerMove:
		m.Move(p)
	case PointerDown:
		m.Down(p)
	case PointerUp, PointerLeave:
		m.Up()
	case PointerClick:
		m.Click()
	default:
		return m.State(), fmt.Errorf("%w: %q", ErrUnknownPointerEvent, ev.Type)
	}
	return m.State(), nil
}

// Move handles a pointer move. While dragging it pans by the delta from the
// last pointer position; in select mode it recomputes the hovered node.
func (m *Machine) Move(p model.Point) {
	m.mu.Lock()
	if m.dragging {
		delta := p.Sub(m.anchor)
		m.anchor = p
		m.mu.Unlock()
		m.vp.Pan(delta)
		return
	}
	m.mu.Unlock()

	vs := m.vp.State()
	if vs.Mode != viewport.ModeSelect {
		return
	}
	hit, found := HitTest(vs.Transform(), m.nodes.Nodes(), p)

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.dragging {
		return
	}
	if found {
		m.hovered = hit.ID
	} else {
		m.hovered = ""
	}
	if m.phase == PhaseSelected {
		return
	}
	if found {
		m.phase = PhaseHovering
	} else {
		m.phase = PhaseIdle
	}
}

// Down starts a drag in pan mode.
func (m *Machine) Down(p model.Point) {
	if m.vp.Mode() != viewport.ModePan {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dragging = true
	m.anchor = p
	m.phase = PhaseDragging
}

// Up ends a drag. Hover is not resumed until the next move; an existing
// selection survives the drag.
func (m *Machine) Up() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.dragging {
		return
	}
	m.dragging = false
	m.anchor = model.Point{}
	m.hovered = ""
	if m.selected != "" {
		m.phase = PhaseSelected
	} else {
		m.phase = PhaseIdle
	}
}

// Click selects the hovered node in select mode.
func (m *Machine) Click() {
	if m.vp.Mode() != viewport.ModeSelect {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.phase != PhaseHovering || m.hovered == "" {
		return
	}
	m.selected = m.hovered
	m.phase = PhaseSelected
}

// Deselect closes the selection.
func (m *Machine) Deselect() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.selected = ""
	if m.phase == PhaseSelected {
		m.phase = PhaseIdle
		m.hovered = ""
	}
}

// Tooltip describes the hovered node and where to show its details.
type Tooltip struct {
	Node   model.Node  `json:"node"`
	Anchor model.Point `json:"anchor"`
}

// Tooltip returns the hovered node's tooltip. There is none outside select
// mode or when the hovered node no longer exists.
func (m *Machine) Tooltip() (Tooltip, bool) {
	m.mu.Lock()
	id := m.hovered
	m.mu.Unlock()
	if id == "" {
		return Tooltip{}, false
	}
	vs := m.vp.State()
	if vs.Mode != viewport.ModeSelect {
		return Tooltip{}, false
	}
	for _, n := range m.nodes.Nodes() {
		if n.ID == id {
			return Tooltip{Node: n, Anchor: vs.Transform().ToDevice(n.Position).Add(tooltipOffset)}, true
		}
	}
	return Tooltip{}, false
}
