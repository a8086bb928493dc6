// Package viewport maps the fixed logical map frame onto the drawing surface
// and owns the user's zoom, pan offset and interaction mode.
package viewport

import "github.com/signalsfoundry/edgeview/model"

// Logical frame extent, origin top-left.
const (
	LogicalWidth  = 400.0
	LogicalHeight = 300.0
)

// Size is a surface extent in device pixels.
type Size struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Transform is the single mapping shared by the renderer and the hit tester.
//
// Drawing happens in a "pre-transform" space that the surface then
// translates by Pan and scales by Zoom. Pre-transform coordinates divide by
// zoom exactly once, so a node's device position does not depend on zoom
// while zoom-scaled sizes (Scale) keep a constant visual size.
type Transform struct {
	Surface Size
	Zoom    float64
	Pan     model.Point
}

func (t Transform) zoom() float64 {
	if t.Zoom <= 0 {
		return 1
	}
	return t.Zoom
}

// Project maps a logical point to pre-transform surface coordinates.
func (t Transform) Project(l model.Point) model.Point {
	z := t.zoom()
	return model.Point{
		X: (l.X / LogicalWidth) * t.Surface.Width / z,
		Y: (l.Y / LogicalHeight) * t.Surface.Height / z,
	}
}

// ToDevice maps a logical point to device pixels, applying the draw-time
// translate and scale.
func (t Transform) ToDevice(l model.Point) model.Point {
	return t.Pan.Add(t.Project(l).Scale(t.zoom()))
}

// ToLogicalEquivalent maps a device pointer position into pre-transform
// space. It is only meant for hit testing against Project results.
func (t Transform) ToLogicalEquivalent(d model.Point) model.Point {
	return d.Sub(t.Pan).Scale(1 / t.zoom())
}

// Scale returns length divided by zoom, for strokes, radii and fonts that
// must look the same at every zoom level.
func (t Transform) Scale(length float64) float64 {
	return length / t.zoom()
}
