package api

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/signalsfoundry/edgeview/internal/logging"
	"github.com/signalsfoundry/edgeview/internal/scenario"
	"github.com/signalsfoundry/edgeview/internal/state"
	"github.com/signalsfoundry/edgeview/model"
)

// nodeDetails is a node together with the links that touch it.
type nodeDetails struct {
	model.Node
	Links     []model.Link `json:"links"`
	Neighbors []string     `json:"neighbors"`
}

func (h *handler) initial(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Store.Snapshot())
}

func (h *handler) nodeDetails(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	node, ok := h.Store.Node(id)
	if !ok {
		writeError(w, r, fmt.Errorf("%w: %q", state.ErrNodeNotFound, id))
		return
	}
	out := nodeDetails{Node: node, Links: []model.Link{}, Neighbors: []string{}}
	for _, l := range h.Store.Links() {
		switch id {
		case l.Source:
			out.Links = append(out.Links, l)
			out.Neighbors = append(out.Neighbors, l.Target)
		case l.Target:
			out.Links = append(out.Links, l)
			out.Neighbors = append(out.Neighbors, l.Source)
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *handler) scenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Catalog.List())
}

func (h *handler) trigger(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req scenario.TriggerRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	sc, err := h.Catalog.Resolve(req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	ack, err := h.Engine.TriggerScenario(ctx, sc)
	if err != nil {
		writeError(w, r, err)
		return
	}
	logging.FromContext(ctx, h.log).Info(ctx, "scenario triggered",
		logging.String("scenario", sc.Name),
		logging.Int("estimated_duration_s", ack.EstimatedDuration),
	)
	writeJSON(w, http.StatusOK, ack)
}
