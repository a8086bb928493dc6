package render

import "github.com/signalsfoundry/edgeview/model"

// Op names a recorded draw command.
type Op string

const (
	OpClear     Op = "clear"
	OpSave      Op = "save"
	OpRestore   Op = "restore"
	OpTranslate Op = "translate"
	OpScale     Op = "scale"
	OpLine      Op = "line"
	OpCircle    Op = "circle"
	OpText      Op = "text"
)

// Command is one draw call. Fields not used by an op are zero.
type Command struct {
	Op     Op      `json:"op"`
	X      float64 `json:"x,omitempty"`
	Y      float64 `json:"y,omitempty"`
	X2     float64 `json:"x2,omitempty"`
	Y2     float64 `json:"y2,omitempty"`
	Radius float64 `json:"r,omitempty"`
	Width  float64 `json:"width,omitempty"`
	Height float64 `json:"height,omitempty"`
	Factor float64 `json:"factor,omitempty"`
	Style  string  `json:"style,omitempty"`
	Text   string  `json:"text,omitempty"`
	Font   float64 `json:"font,omitempty"`
}

// Recorder is a Surface that keeps the command list, for clients that
// replay it on their own canvas and for tests.
type Recorder struct {
	cmds []Command
}

// NewRecorder returns an empty recorder.
func NewRecorder() *Recorder { return &Recorder{} }

// Commands returns the recorded commands.
func (r *Recorder) Commands() []Command {
	return append([]Command(nil), r.cmds...)
}

// Reset drops all recorded commands.
func (r *Recorder) Reset() { r.cmds = r.cmds[:0] }

func (r *Recorder) Clear(width, height float64) {
	r.cmds = append(r.cmds, Command{Op: OpClear, Width: width, Height: height})
}

func (r *Recorder) Save()    { r.cmds = append(r.cmds, Command{Op: OpSave}) }
func (r *Recorder) Restore() { r.cmds = append(r.cmds, Command{Op: OpRestore}) }

func (r *Recorder) Translate(dx, dy float64) {
	r.cmds = append(r.cmds, Command{Op: OpTranslate, X: dx, Y: dy})
}

func (r *Recorder) Scale(f float64) {
	r.cmds = append(r.cmds, Command{Op: OpScale, Factor: f})
}

func (r *Recorder) Line(from, to model.Point, stroke string, width float64) {
	r.cmds = append(r.cmds, Command{Op: OpLine, X: from.X, Y: from.Y, X2: to.X, Y2: to.Y, Style: stroke, Width: width})
}

func (r *Recorder) Circle(center model.Point, radius float64, fill string) {
	r.cmds = append(r.cmds, Command{Op: OpCircle, X: center.X, Y: center.Y, Radius: radius, Style: fill})
}

func (r *Recorder) Text(at model.Point, text, fill string, fontSize float64) {
	r.cmds = append(r.cmds, Command{Op: OpText, X: at.X, Y: at.Y, Text: text, Style: fill, Font: fontSize})
}
