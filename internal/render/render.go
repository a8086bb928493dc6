// Package render draws the network topology onto a 2D surface.
package render

import (
	"strconv"

	"github.com/signalsfoundry/edgeview/internal/viewport"
	"github.com/signalsfoundry/edgeview/model"
)

// Drawing constants in device pixels; each is divided by zoom when drawn.
const (
	NodeRadius     = 10.0
	FontSize       = 12.0
	LabelOffsetX   = -20.0
	LabelOffsetY   = -15.0
	MinLinkWidth   = 1.0
	MaxLinkWidth   = 8.0
	bandwidthPerPx = 20.0
	fontFamily     = "Arial"
	labelFill      = "white"
)

// Surface is a 2D drawing target with a canvas-like transform stack.
type Surface interface {
	Clear(width, height float64)
	Save()
	Restore()
	Translate(dx, dy float64)
	Scale(f float64)
	Line(from, to model.Point, stroke string, width float64)
	Circle(center model.Point, radius float64, fill string)
	Text(at model.Point, text, fill string, fontSize float64)
}

// LinkStroke returns the stroke colour for a link status.
func LinkStroke(h model.Health) string {
	switch h {
	case model.HealthOptimal:
		return "rgba(74, 222, 128, 0.6)"
	case model.HealthWarning:
		return "rgba(250, 204, 21, 0.6)"
	default:
		return "rgba(248, 113, 113, 0.6)"
	}
}

// NodeFill returns the fill colour for a node status.
func NodeFill(h model.Health) string {
	switch h {
	case model.HealthOptimal:
		return "#4ade80"
	case model.HealthWarning:
		return "#facc15"
	default:
		return "#f87171"
	}
}

// LinkWidth is the zoom-independent stroke width for a bandwidth in Mbps.
func LinkWidth(bandwidth float64) float64 {
	return max(MinLinkWidth, min(MaxLinkWidth, bandwidth/bandwidthPerPx))
}

// BandwidthLabel formats a link's bandwidth label.
func BandwidthLabel(bandwidth float64) string {
	return strconv.FormatFloat(bandwidth, 'f', -1, 64) + " Mbps"
}

// Stats summarises one render pass.
type Stats struct {
	Nodes        int `json:"nodes"`
	Links        int `json:"links"`
	SkippedLinks int `json:"skippedLinks"`
}

// Render clears s and draws links then nodes. It is deterministic in its
// inputs. Links with a missing endpoint are skipped.
func Render(s Surface, nodes []model.Node, links []model.Link, tr viewport.Transform) Stats {
	var stats Stats
	s.Clear(tr.Surface.Width, tr.Surface.Height)
	s.Save()
	s.Translate(tr.Pan.X, tr.Pan.Y)
	s.Scale(zoomOf(tr))

	byID := make(map[string]model.Node, len(nodes))
	for _, n := range nodes {
		if _, dup := byID[n.ID]; !dup {
			byID[n.ID] = n
		}
	}

	for _, l := range links {
		src, okSrc := byID[l.Source]
		dst, okDst := byID[l.Target]
		if !okSrc || !okDst {
			stats.SkippedLinks++
			continue
		}
		a, b := tr.Project(src.Position), tr.Project(dst.Position)
		s.Line(a, b, LinkStroke(l.Status), tr.Scale(LinkWidth(l.Bandwidth)))
		mid := a.Add(b).Scale(0.5)
		s.Text(mid, BandwidthLabel(l.Bandwidth), labelFill, tr.Scale(FontSize))
		stats.Links++
	}

	for _, n := range nodes {
		c := tr.Project(n.Position)
		s.Circle(c, tr.Scale(NodeRadius), NodeFill(n.Status))
		at := c.Add(model.Point{X: tr.Scale(LabelOffsetX), Y: tr.Scale(LabelOffsetY)})
		s.Text(at, n.Name, labelFill, tr.Scale(FontSize))
		stats.Nodes++
	}

	s.Restore()
	return stats
}

func zoomOf(tr viewport.Transform) float64 {
	if tr.Zoom <= 0 {
		return 1
	}
	return tr.Zoom
}
