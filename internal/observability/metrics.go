package observability

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"

	"github.com/signalsfoundry/edgeview/model"
)

// EngineCollector bundles the dashboard's Prometheus metrics. It satisfies
// the metrics recorder interfaces of the store, the engine and the renderer
// and provides helpers to wire them into gRPC servers and HTTP handlers.
type EngineCollector struct {
	gatherer prometheus.Gatherer

	RPCRequests  *prometheus.CounterVec
	RPCDurations *prometheus.HistogramVec

	Events         *prometheus.CounterVec
	ApplyDurations *prometheus.HistogramVec

	StoreNodes   prometheus.Gauge
	StoreLinks   prometheus.Gauge
	DecisionLog  prometheus.Gauge
	SeriesLength *prometheus.GaugeVec

	Redraws     prometheus.Counter
	PushClients prometheus.Gauge
}

var (
	rpcBuckets   = []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5}
	applyBuckets = []float64{0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05}
)

// NewEngineCollector registers the dashboard metrics on reg (the global
// registry when nil). A second collector on the same registry shares the
// first one's series.
func NewEngineCollector(reg prometheus.Registerer) (*EngineCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	r := &registrar{reg: reg}
	c := &EngineCollector{
		gatherer: gatherer,
		RPCRequests: add(r, "edgeview_rpc_requests_total", prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "edgeview_rpc_requests_total",
			Help: "Ingest RPCs handled, by service, method and gRPC status code.",
		}, []string{"service", "method", "code"})),
		RPCDurations: add(r, "edgeview_rpc_request_duration_seconds", prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "edgeview_rpc_request_duration_seconds",
			Help:    "Ingest RPC latency in seconds.",
			Buckets: rpcBuckets,
		}, []string{"service", "method"})),
		Events: add(r, "edgeview_events_total", prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "edgeview_events_total",
			Help: "Events processed by the engine loop, by kind and outcome.",
		}, []string{"kind", "outcome"})),
		ApplyDurations: add(r, "edgeview_event_apply_seconds", prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "edgeview_event_apply_seconds",
			Help:    "Time spent applying one event on the engine loop.",
			Buckets: applyBuckets,
		}, []string{"kind"})),
		StoreNodes: add(r, "edgeview_store_nodes", prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "edgeview_store_nodes",
			Help: "Nodes in the dashboard store.",
		})),
		StoreLinks: add(r, "edgeview_store_links", prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "edgeview_store_links",
			Help: "Links in the dashboard store.",
		})),
		DecisionLog: add(r, "edgeview_decision_log_length", prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "edgeview_decision_log_length",
			Help: "Entries in the AI decision log.",
		})),
		SeriesLength: add(r, "edgeview_metric_series_length", prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "edgeview_metric_series_length",
			Help: "Samples held per metric series.",
		}, []string{"kind"})),
		Redraws: add(r, "edgeview_redraws_total", prometheus.NewCounter(prometheus.CounterOpts{
			Name: "edgeview_redraws_total",
			Help: "Full topology redraws.",
		})),
		PushClients: add(r, "edgeview_push_clients", prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "edgeview_push_clients",
			Help: "Connected websocket push clients.",
		})),
	}
	if r.err != nil {
		return nil, r.err
	}
	return c, nil
}

// Gatherer returns the Prometheus gatherer associated with the collector.
func (c *EngineCollector) Gatherer() prometheus.Gatherer {
	if c == nil {
		return nil
	}
	return c.gatherer
}

// UnaryServerInterceptor counts ingest RPCs and records their latency.
func (c *EngineCollector) UnaryServerInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		if c == nil || c.RPCRequests == nil {
			return resp, err
		}
		var full string
		if info != nil {
			full = info.FullMethod
		}
		svc, method := SplitMethod(full)
		c.RPCRequests.WithLabelValues(svc, method, status.Code(err).String()).Inc()
		c.RPCDurations.WithLabelValues(svc, method).Observe(time.Since(start).Seconds())
		return resp, err
	}
}

// Handler serves the collector's registry in the Prometheus text format.
func (c *EngineCollector) Handler() http.Handler {
	g := c.Gatherer()
	if g == nil {
		g = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// ObserveEvent counts one unit of engine work and, when d is positive,
// records its apply time.
func (c *EngineCollector) ObserveEvent(kind, outcome string, d time.Duration) {
	if c == nil {
		return
	}
	if c.Events != nil {
		c.Events.WithLabelValues(kind, outcome).Inc()
	}
	if c.ApplyDurations != nil && d > 0 {
		c.ApplyDurations.WithLabelValues(kind).Observe(d.Seconds())
	}
}

// SetStoreCounts drives the store size gauges.
func (c *EngineCollector) SetStoreCounts(nodes, links, decisions int) {
	if c == nil {
		return
	}
	if c.StoreNodes != nil {
		c.StoreNodes.Set(float64(nodes))
	}
	if c.StoreLinks != nil {
		c.StoreLinks.Set(float64(links))
	}
	if c.DecisionLog != nil {
		c.DecisionLog.Set(float64(decisions))
	}
}

// SetSeriesLength records the length of one metric series.
func (c *EngineCollector) SetSeriesLength(kind model.MetricKind, n int) {
	if c == nil || c.SeriesLength == nil {
		return
	}
	c.SeriesLength.WithLabelValues(string(kind)).Set(float64(n))
}

// IncRedraws counts one full redraw.
func (c *EngineCollector) IncRedraws() {
	if c == nil || c.Redraws == nil {
		return
	}
	c.Redraws.Inc()
}

// SetPushClients records the number of connected push clients.
func (c *EngineCollector) SetPushClients(n int) {
	if c == nil || c.PushClients == nil {
		return
	}
	c.PushClients.Set(float64(n))
}

// SplitMethod turns "/pkg.Service/Method" into ("Service", "Method").
// Anything that does not parse yields "unknown" for the missing part.
func SplitMethod(fullMethod string) (service, method string) {
	service, method = "unknown", "unknown"
	path, name, ok := strings.Cut(strings.TrimPrefix(fullMethod, "/"), "/")
	if !ok {
		return service, method
	}
	if i := strings.LastIndexByte(path, '.'); i >= 0 {
		path = path[i+1:]
	}
	if path != "" {
		service = path
	}
	if name != "" {
		method = name
	}
	return service, method
}
