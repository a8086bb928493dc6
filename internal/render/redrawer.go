package render

import (
	"context"
	"sync"
	"time"

	"github.com/signalsfoundry/edgeview/internal/logging"
	"github.com/signalsfoundry/edgeview/internal/state"
	"github.com/signalsfoundry/edgeview/internal/viewport"
	"github.com/signalsfoundry/edgeview/model"
)

// Topology is the read side of the store the redrawer needs.
type Topology interface {
	Topology() ([]model.Node, []model.Link)
	Observe(fn func(state.Change)) (cancel func())
}

// MetricsRecorder counts redraws.
type MetricsRecorder interface {
	IncRedraws()
}

// Frame is the latest full redraw.
type Frame struct {
	Seq      uint64         `json:"seq"`
	At       time.Time      `json:"at"`
	Viewport viewport.State `json:"viewport"`
	Stats    Stats          `json:"stats"`
	Commands []Command      `json:"commands"`
}

// Option customises a Redrawer.
type Option func(*Redrawer)

// WithMetricsRecorder attaches a redraw counter.
func WithMetricsRecorder(m MetricsRecorder) Option {
	return func(r *Redrawer) { r.metrics = m }
}

// WithNow overrides the frame timestamp source.
func WithNow(now func() time.Time) Option {
	return func(r *Redrawer) {
		if now != nil {
			r.now = now
		}
	}
}

// Redrawer keeps a rendered frame in sync with the store and the viewport.
// Any node, link, viewport or surface change triggers a full redraw.
type Redrawer struct {
	topo    Topology
	vp      *viewport.Controller
	log     logging.Logger
	metrics MetricsRecorder
	now     func() time.Time

	// drawMu serializes read-render-publish so frames are published in
	// the order their inputs were read.
	drawMu sync.Mutex

	mu      sync.Mutex
	frame   Frame
	seq     uint64
	cancels []func()
}

// NewRedrawer draws once and then redraws on every relevant change until
// Close.
func NewRedrawer(topo Topology, vp *viewport.Controller, log logging.Logger, opts ...Option) *Redrawer {
	r := &Redrawer{
		topo: topo,
		vp:   vp,
		log:  logging.OrNoop(log).With(logging.Component("render")),
		now:  time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	r.Redraw()
	r.cancels = append(r.cancels,
		topo.Observe(func(c state.Change) {
			if c.Topological() {
				r.Redraw()
			}
		}),
		vp.Observe(func(viewport.State) { r.Redraw() }),
	)
	return r
}

// Redraw renders the current topology and viewport and publishes the frame.
func (r *Redrawer) Redraw() Frame {
	r.drawMu.Lock()
	defer r.drawMu.Unlock()

	nodes, links := r.topo.Topology()
	vs := r.vp.State()
	rec := NewRecorder()
	stats := Render(rec, nodes, links, vs.Transform())

	r.mu.Lock()
	r.seq++
	r.frame = Frame{
		Seq:      r.seq,
		At:       r.now(),
		Viewport: vs,
		Stats:    stats,
		Commands: rec.Commands(),
	}
	frame := r.frame
	r.mu.Unlock()

	if r.metrics != nil {
		r.metrics.IncRedraws()
	}
	if stats.SkippedLinks > 0 {
		r.log.Debug(context.Background(), "skipped dangling links", logging.Int("count", stats.SkippedLinks))
	}
	return frame
}

// Frame returns the latest frame.
func (r *Redrawer) Frame() Frame {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.frame
}

// SVG renders the current topology and viewport as an SVG document.
func (r *Redrawer) SVG() []byte {
	nodes, links := r.topo.Topology()
	surface := NewSVGSurface()
	Render(surface, nodes, links, r.vp.Transform())
	return surface.Bytes()
}

// Close stops observing the store and the viewport.
func (r *Redrawer) Close() {
	r.mu.Lock()
	cancels := r.cancels
	r.cancels = nil
	r.mu.Unlock()
	for _, cancel := range cancels {
		cancel()
	}
}
