// Package api is the dashboard's HTTP surface: the initial snapshot, node
// details, scenario triggers, the map viewport and interaction endpoints,
// the rendered topology, and the websocket push feed.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/signalsfoundry/edgeview/internal/interaction"
	"github.com/signalsfoundry/edgeview/internal/logging"
	"github.com/signalsfoundry/edgeview/internal/render"
	"github.com/signalsfoundry/edgeview/internal/scenario"
	"github.com/signalsfoundry/edgeview/internal/state"
	"github.com/signalsfoundry/edgeview/internal/viewport"
	"github.com/signalsfoundry/edgeview/model"
)

const requestIDHeader = "X-Request-ID"

// Engine triggers scenarios.
type Engine interface {
	TriggerScenario(ctx context.Context, sc model.Scenario) (scenario.Ack, error)
}

// Deps are the components the handlers read and drive. Push and Metrics are
// optional.
type Deps struct {
	Store       *state.Store
	Engine      Engine
	Catalog     *scenario.Catalog
	Viewport    *viewport.Controller
	Interaction *interaction.Machine
	Redrawer    *render.Redrawer
	Push        http.Handler
	Metrics     http.Handler
	Log         logging.Logger
}

type handler struct {
	Deps
	log logging.Logger
}

// NewRouter wires every route onto a chi router.
func NewRouter(d Deps) http.Handler {
	if d.Catalog == nil {
		d.Catalog = scenario.Default()
	}
	h := &handler{Deps: d, log: logging.OrNoop(d.Log).With(logging.Component("api"))}

	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(requestLogger(h.log))
	r.Use(middleware.Recoverer)

	r.Get("/healthz", h.healthz)
	if d.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", d.Metrics)
	}
	if d.Push != nil {
		r.Method(http.MethodGet, "/ws", d.Push)
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/dashboard/initial", h.initial)
		r.Get("/nodes/{id}", h.nodeDetails)
		r.Get("/scenarios", h.scenarios)
		r.Post("/simulation/trigger", h.trigger)

		r.Route("/map", func(r chi.Router) {
			r.Get("/", h.mapState)
			r.Post("/zoom", h.zoom)
			r.Post("/mode", h.mode)
			r.Post("/resize", h.resize)
			r.Post("/pointer", h.pointer)
			r.Post("/deselect", h.deselect)
			r.Get("/frame", h.frame)
			r.Get("/topology.svg", h.topologySVG)
		})
	})
	return r
}

// requestLogger adopts or assigns a request id, echoes it back and stores a
// request-scoped logger on the context.
func requestLogger(base logging.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			if id := r.Header.Get(requestIDHeader); id != "" {
				ctx = logging.ContextWithRequestID(ctx, id)
			}
			ctx, reqLog := logging.WithRequestLogger(ctx, base.With(
				logging.String("http_method", r.Method),
				logging.String("path", r.URL.Path),
			))
			ctx = logging.ContextWithLogger(ctx, reqLog)
			w.Header().Set(requestIDHeader, logging.RequestIDFromContext(ctx))

			start := time.Now()
			next.ServeHTTP(w, r.WithContext(ctx))
			reqLog.Debug(ctx, "request served", logging.Duration("elapsed", time.Since(start)))
		})
	}
}

func (h *handler) healthz(w http.ResponseWriter, r *http.Request) {
	if h.Store == nil || h.Store.Disposed() {
		writeError(w, r, state.ErrDisposed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
