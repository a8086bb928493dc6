package api

import (
	"fmt"
	"net/http"

	"github.com/signalsfoundry/edgeview/internal/interaction"
	"github.com/signalsfoundry/edgeview/internal/viewport"
	"github.com/signalsfoundry/edgeview/model"
)

// mapState is everything a map client needs besides the frame itself.
type mapState struct {
	Viewport    viewport.State       `json:"viewport"`
	Interaction interaction.State    `json:"interaction"`
	Tooltip     *interaction.Tooltip `json:"tooltip,omitempty"`
	Selected    *model.Node          `json:"selected,omitempty"`
	Changed     *bool                `json:"changed,omitempty"`
}

func (h *handler) currentMap() mapState {
	st := mapState{
		Viewport:    h.Viewport.State(),
		Interaction: h.Interaction.State(),
	}
	if tip, ok := h.Interaction.Tooltip(); ok {
		st.Tooltip = &tip
	}
	if id := st.Interaction.Selected; id != "" {
		if n, ok := h.Store.Node(id); ok {
			st.Selected = &n
		}
	}
	return st
}

func (h *handler) writeMap(w http.ResponseWriter, changed bool) {
	st := h.currentMap()
	st.Changed = &changed
	writeJSON(w, http.StatusOK, st)
}

func (h *handler) mapState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.currentMap())
}

type zoomRequest struct {
	Direction string `json:"direction"` // in | out
}

func (h *handler) zoom(w http.ResponseWriter, r *http.Request) {
	var req zoomRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	var changed bool
	switch req.Direction {
	case "in":
		changed = h.Viewport.ZoomIn()
	case "out":
		changed = h.Viewport.ZoomOut()
	default:
		writeError(w, r, fmt.Errorf("%w: zoom direction %q", errBadRequest, req.Direction))
		return
	}
	h.writeMap(w, changed)
}

type modeRequest struct {
	Mode   string `json:"mode,omitempty"`
	Toggle bool   `json:"toggle,omitempty"`
}

func (h *handler) mode(w http.ResponseWriter, r *http.Request) {
	var req modeRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.Toggle {
		h.Viewport.ToggleMode()
		h.writeMap(w, true)
		return
	}
	m, err := viewport.ParseMode(req.Mode)
	if err != nil {
		writeError(w, r, err)
		return
	}
	changed, err := h.Viewport.SetMode(m)
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.writeMap(w, changed)
}

func (h *handler) resize(w http.ResponseWriter, r *http.Request) {
	var size viewport.Size
	if err := decodeBody(r, &size); err != nil {
		writeError(w, r, err)
		return
	}
	changed, err := h.Viewport.Resize(size)
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.writeMap(w, changed)
}

func (h *handler) pointer(w http.ResponseWriter, r *http.Request) {
	var ev interaction.PointerEvent
	if err := decodeBody(r, &ev); err != nil {
		writeError(w, r, err)
		return
	}
	if _, err := h.Interaction.Handle(ev); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.currentMap())
}

func (h *handler) deselect(w http.ResponseWriter, r *http.Request) {
	h.Interaction.Deselect()
	writeJSON(w, http.StatusOK, h.currentMap())
}

func (h *handler) frame(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Redrawer.Frame())
}

func (h *handler) topologySVG(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "image/svg+xml")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(h.Redrawer.SVG())
}
