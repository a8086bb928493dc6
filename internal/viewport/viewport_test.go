package viewport

import (
	"errors"
	"math"
	"testing"

	"github.com/signalsfoundry/edgeview/model"
)

func approx(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestZoomStaysInBounds(t *testing.T) {
	c := NewController(Size{Width: 800, Height: 600})
	for i := 0; i < 20; i++ {
		c.ZoomIn()
		if z := c.State().Zoom; z < MinZoom || z > MaxZoom {
			t.Fatalf("zoom = %v out of bounds", z)
		}
	}
	if z := c.State().Zoom; z != MaxZoom {
		t.Fatalf("zoom after many ZoomIn = %v, want %v", z, MaxZoom)
	}
	if c.ZoomIn() {
		t.Fatal("ZoomIn at max reported a change")
	}

	for i := 0; i < 20; i++ {
		c.ZoomOut()
	}
	if z := c.State().Zoom; z != MinZoom {
		t.Fatalf("zoom after many ZoomOut = %v, want %v", z, MinZoom)
	}
	if c.ZoomOut() {
		t.Fatal("ZoomOut at min reported a change")
	}
}

func TestZoomStep(t *testing.T) {
	c := NewController(DefaultSurface)
	c.ZoomIn()
	if z := c.State().Zoom; !approx(z, 1.2) {
		t.Fatalf("zoom = %v, want 1.2", z)
	}
	c.ZoomOut()
	c.ZoomOut()
	if z := c.State().Zoom; !approx(z, 1/1.2) {
		t.Fatalf("zoom = %v, want %v", z, 1/1.2)
	}
}

func TestPanOnlyInPanMode(t *testing.T) {
	c := NewController(DefaultSurface)
	if c.Mode() != ModeSelect {
		t.Fatalf("initial mode = %v, want select", c.Mode())
	}
	if c.Pan(model.Point{X: 5, Y: 5}) {
		t.Fatal("Pan applied in select mode")
	}
	if c.ToggleMode() != ModePan {
		t.Fatal("ToggleMode did not switch to pan")
	}
	c.Pan(model.Point{X: 10, Y: -5})
	c.Pan(model.Point{X: 1, Y: 1})
	if got := c.State().Pan; got != (model.Point{X: 11, Y: -4}) {
		t.Fatalf("pan = %+v, want (11,-4)", got)
	}
}

func TestTransformRoundTrip(t *testing.T) {
	tr := Transform{Surface: Size{Width: 800, Height: 600}, Zoom: 2, Pan: model.Point{X: 30, Y: -10}}
	l := model.Point{X: 200, Y: 150}

	pre := tr.Project(l)
	if !approx(pre.X, 200) || !approx(pre.Y, 150) {
		t.Fatalf("Project = %+v, want (200,150)", pre)
	}
	dev := tr.ToDevice(l)
	if !approx(dev.X, 430) || !approx(dev.Y, 290) {
		t.Fatalf("ToDevice = %+v, want (430,290)", dev)
	}
	back := tr.ToLogicalEquivalent(dev)
	if !approx(back.X, pre.X) || !approx(back.Y, pre.Y) {
		t.Fatalf("ToLogicalEquivalent(ToDevice) = %+v, want %+v", back, pre)
	}
	if got := tr.Scale(10); got != 5 {
		t.Fatalf("Scale(10) = %v, want 5", got)
	}
}

func TestDevicePositionIndependentOfZoom(t *testing.T) {
	l := model.Point{X: 100, Y: 250}
	base := Transform{Surface: Size{Width: 640, Height: 480}, Zoom: 1}.ToDevice(l)
	for _, z := range []float64{0.5, 1.44, 3} {
		got := Transform{Surface: Size{Width: 640, Height: 480}, Zoom: z}.ToDevice(l)
		if !approx(got.X, base.X) || !approx(got.Y, base.Y) {
			t.Fatalf("zoom %v: ToDevice = %+v, want %+v", z, got, base)
		}
	}
}

func TestObserversSeeChangesOnly(t *testing.T) {
	c := NewController(DefaultSurface)
	var seen []State
	cancel := c.Observe(func(s State) { seen = append(seen, s) })

	c.ZoomIn()
	if _, err := c.SetMode(ModeSelect); err != nil {
		t.Fatalf("SetMode: %v", err)
	}
	if _, err := c.Resize(Size{Width: 1024, Height: 768}); err != nil {
		t.Fatalf("Resize: %v", err)
	}
	cancel()
	c.ZoomOut()

	if len(seen) != 2 {
		t.Fatalf("observer calls = %d, want 2", len(seen))
	}
	if seen[1].Surface.Width != 1024 {
		t.Fatalf("second notification surface = %+v", seen[1].Surface)
	}
}

func TestValidation(t *testing.T) {
	c := NewController(DefaultSurface)
	if _, err := c.SetMode("orbit"); !errors.Is(err, ErrInvalidMode) {
		t.Fatalf("SetMode error = %v, want ErrInvalidMode", err)
	}
	if _, err := c.Resize(Size{Width: 0, Height: 10}); !errors.Is(err, ErrInvalidSize) {
		t.Fatalf("Resize error = %v, want ErrInvalidSize", err)
	}
}
