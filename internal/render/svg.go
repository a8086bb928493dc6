package render

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"strconv"

	"github.com/signalsfoundry/edgeview/model"
)

// SVGSurface renders draw calls into a standalone SVG document. Save and
// Restore map onto nested <g> elements.
type SVGSurface struct {
	body   bytes.Buffer
	width  float64
	height float64
	// open holds, per Save level, the number of <g> elements opened.
	open []int
}

// NewSVGSurface returns an empty SVG surface.
func NewSVGSurface() *SVGSurface {
	return &SVGSurface{open: []int{0}}
}

func num(f float64) string { return strconv.FormatFloat(f, 'f', -1, 64) }

func (s *SVGSurface) Clear(width, height float64) {
	s.body.Reset()
	s.open = []int{0}
	s.width, s.height = width, height
	fmt.Fprintf(&s.body, `<rect x="0" y="0" width="%s" height="%s" fill="#0f172a"/>`, num(width), num(height))
}

func (s *SVGSurface) Save() { s.open = append(s.open, 0) }

func (s *SVGSurface) Restore() {
	if len(s.open) <= 1 {
		return
	}
	n := s.open[len(s.open)-1]
	s.open = s.open[:len(s.open)-1]
	for i := 0; i < n; i++ {
		s.body.WriteString("</g>")
	}
}

func (s *SVGSurface) group(transform string) {
	fmt.Fprintf(&s.body, `<g transform="%s">`, transform)
	s.open[len(s.open)-1]++
}

func (s *SVGSurface) Translate(dx, dy float64) {
	s.group("translate(" + num(dx) + " " + num(dy) + ")")
}

func (s *SVGSurface) Scale(f float64) {
	s.group("scale(" + num(f) + ")")
}

func (s *SVGSurface) Line(from, to model.Point, stroke string, width float64) {
	fmt.Fprintf(&s.body, `<line x1="%s" y1="%s" x2="%s" y2="%s" stroke="%s" stroke-width="%s"/>`,
		num(from.X), num(from.Y), num(to.X), num(to.Y), escape(stroke), num(width))
}

func (s *SVGSurface) Circle(center model.Point, radius float64, fill string) {
	fmt.Fprintf(&s.body, `<circle cx="%s" cy="%s" r="%s" fill="%s"/>`,
		num(center.X), num(center.Y), num(radius), escape(fill))
}

func (s *SVGSurface) Text(at model.Point, text, fill string, fontSize float64) {
	fmt.Fprintf(&s.body, `<text x="%s" y="%s" fill="%s" font-family="%s" font-size="%s">%s</text>`,
		num(at.X), num(at.Y), escape(fill), fontFamily, num(fontSize), escape(text))
}

// Bytes returns the complete document, closing any group left open.
func (s *SVGSurface) Bytes() []byte {
	var out bytes.Buffer
	fmt.Fprintf(&out, `<svg xmlns="http://www.w3.org/2000/svg" width="%s" height="%s" viewBox="0 0 %s %s">`,
		num(s.width), num(s.height), num(s.width), num(s.height))
	out.Write(s.body.Bytes())
	for _, n := range s.open {
		for i := 0; i < n; i++ {
			out.WriteString("</g>")
		}
	}
	out.WriteString("</svg>")
	return out.Bytes()
}

func escape(v string) string {
	var b bytes.Buffer
	_ = xml.EscapeText(&b, []byte(v))
	return b.String()
}
