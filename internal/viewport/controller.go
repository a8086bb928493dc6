package viewport

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/signalsfoundry/edgeview/model"
)

// Zoom bounds and step.
const (
	MinZoom  = 0.5
	MaxZoom  = 3.0
	ZoomStep = 1.2
)

// DefaultSurface is used until the first resize.
var DefaultSurface = Size{Width: 800, Height: 600}

var (
	// ErrInvalidMode is returned for a mode other than pan or select.
	ErrInvalidMode = errors.New("invalid viewport mode")
	// ErrInvalidSize is returned for a non-positive surface size.
	ErrInvalidSize = errors.New("invalid surface size")
)

// Mode is the pointer interaction mode.
type Mode string

const (
	ModePan    Mode = "pan"
	ModeSelect Mode = "select"
)

// ParseMode validates s.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModePan, ModeSelect:
		return Mode(s), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidMode, s)
	}
}

// State is a copy of the viewport.
type State struct {
	Zoom    float64     `json:"zoom"`
	Pan     model.Point `json:"pan"`
	Mode    Mode        `json:"mode"`
	Surface Size        `json:"surface"`
}

// Transform returns the transform for s.
func (s State) Transform() Transform {
	return Transform{Surface: s.Surface, Zoom: s.Zoom, Pan: s.Pan}
}

// Controller owns the viewport state. Every mutator reports whether the
// state changed and notifies observers only when it did.
type Controller struct {
	mu        sync.Mutex
	st        State
	observers map[int]func(State)
	nextObs   int
}

// NewController starts at zoom 1, no pan, select mode.
func NewController(surface Size) *Controller {
	if surface.Width <= 0 || surface.Height <= 0 {
		surface = DefaultSurface
	}
	return &Controller{
		st:        State{Zoom: 1, Mode: ModeSelect, Surface: surface},
		observers: make(map[int]func(State)),
	}
}

// State returns the current viewport.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.st
}

// Transform returns the current transform.
func (c *Controller) Transform() Transform {
	return c.State().Transform()
}

// Mode returns the current interaction mode.
func (c *Controller) Mode() Mode {
	return c.State().Mode
}

// ZoomIn multiplies zoom by ZoomStep, capped at MaxZoom.
func (c *Controller) ZoomIn() bool {
	return c.update(func(s *State) {
		s.Zoom = min(s.Zoom*ZoomStep, MaxZoom)
	})
}

// ZoomOut divides zoom by ZoomStep, floored at MinZoom.
func (c *Controller) ZoomOut() bool {
	return c.update(func(s *State) {
		s.Zoom = max(s.Zoom/ZoomStep, MinZoom)
	})
}

// Pan shifts the offset by delta. It is a no-op outside pan mode.
func (c *Controller) Pan(delta model.Point) bool {
	return c.update(func(s *State) {
		if s.Mode != ModePan {
			return
		}
		s.Pan = s.Pan.Add(delta)
	})
}

// SetMode switches the interaction mode.
func (c *Controller) SetMode(m Mode) (bool, error) {
	if _, err := ParseMode(string(m)); err != nil {
		return false, err
	}
	return c.update(func(s *State) { s.Mode = m }), nil
}

// ToggleMode flips between pan and select and returns the new mode.
func (c *Controller) ToggleMode() Mode {
	var next Mode
	c.update(func(s *State) {
		if s.Mode == ModePan {
			s.Mode = ModeSelect
		} else {
			s.Mode = ModePan
		}
		next = s.Mode
	})
	return next
}

// Resize records a new surface size.
func (c *Controller) Resize(size Size) (bool, error) {
	if size.Width <= 0 || size.Height <= 0 {
		return false, fmt.Errorf("%w: %vx%v", ErrInvalidSize, size.Width, size.Height)
	}
	return c.update(func(s *State) { s.Surface = size }), nil
}

// Observe registers fn to run after every change, outside the lock. The
// returned function removes it.
func (c *Controller) Observe(fn func(State)) (cancel func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextObs
	c.nextObs++
	c.observers[id] = fn
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.observers, id)
	}
}

func (c *Controller) update(mutate func(*State)) bool {
	c.mu.Lock()
	before := c.st
	mutate(&c.st)
	after := c.st
	if before == after {
		c.mu.Unlock()
		return false
	}
	ids := make([]int, 0, len(c.observers))
	for id := range c.observers {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	fns := make([]func(State), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, c.observers[id])
	}
	c.mu.Unlock()

	for _, fn := range fns {
		fn(after)
	}
	return true
}
