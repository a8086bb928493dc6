package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/signalsfoundry/edgeview/internal/api"
	"github.com/signalsfoundry/edgeview/internal/config"
	"github.com/signalsfoundry/edgeview/internal/engine"
	"github.com/signalsfoundry/edgeview/internal/hub"
	"github.com/signalsfoundry/edgeview/internal/ingest"
	"github.com/signalsfoundry/edgeview/internal/interaction"
	"github.com/signalsfoundry/edgeview/internal/logging"
	"github.com/signalsfoundry/edgeview/internal/observability"
	"github.com/signalsfoundry/edgeview/internal/render"
	"github.com/signalsfoundry/edgeview/internal/scenario"
	"github.com/signalsfoundry/edgeview/internal/seed"
	"github.com/signalsfoundry/edgeview/internal/state"
	"github.com/signalsfoundry/edgeview/internal/stream"
	"github.com/signalsfoundry/edgeview/internal/viewport"
)

// app is one running dashboard session: store, engine, servers and the
// components between them.
type app struct {
	cfg *config.Config
	log logging.Logger

	shutdownTracing func(context.Context) error

	store    *state.Store
	engine   *engine.Engine
	hub      *hub.Hub
	redrawer *render.Redrawer

	httpSrv *http.Server
	httpLis net.Listener
	grpcSrv *ingest.Server
	grpcLis net.Listener

	stopPush func()
}

func newApp(ctx context.Context, cfg *config.Config, log logging.Logger, reg prometheus.Registerer) (_ *app, err error) {
	session := uuid.NewString()
	log = logging.OrNoop(log).With(logging.String("session", session))
	a := &app{cfg: cfg, log: log}
	defer func() {
		if err != nil {
			a.close(context.Background())
		}
	}()

	tracing := observability.TracingConfigFromEnv(cfg.Tracing)
	tracing.SessionID = session
	a.shutdownTracing, err = observability.InitTracing(ctx, tracing, log)
	if err != nil {
		return nil, fmt.Errorf("init tracing: %w", err)
	}

	collector, err := observability.NewEngineCollector(reg)
	if err != nil {
		return nil, fmt.Errorf("init metrics: %w", err)
	}

	rngSeed := cfg.Simulation.RandomSeed
	if rngSeed == 0 {
		rngSeed = uint64(time.Now().UnixNano())
	}

	loader := &seed.Loader{Seed: rngSeed, Log: log}
	if cfg.Seed.URL != "" {
		loader.Fetchers = append(loader.Fetchers, &seed.HTTPFetcher{URL: cfg.Seed.URL, Timeout: cfg.Seed.Timeout.Duration()})
	}
	if cfg.Seed.File != "" {
		loader.Fetchers = append(loader.Fetchers, &seed.FileFetcher{Path: cfg.Seed.File})
	}
	ds, source := loader.Load(ctx)

	a.store = state.New(log, state.WithMetricsRecorder(collector))
	if err := a.store.Load(ds); err != nil {
		return nil, fmt.Errorf("load initial dataset: %w", err)
	}
	log.Info(ctx, "dashboard state initialised", logging.String("source", source))

	sim := cfg.Simulation
	a.engine = engine.New(a.store, log,
		engine.WithConfig(engine.Config{
			ScenarioDelay:  sim.ScenarioDelay.Duration(),
			RecoveryDelay:  sim.RecoveryDelay.Duration(),
			UpdateInterval: sim.UpdateInterval.Duration(),
			Simulate:       sim.Enabled,
			InboxSize:      engine.DefaultConfig().InboxSize,
		}),
		engine.WithMetricsRecorder(collector),
		engine.WithRandom(rand.New(rand.NewPCG(rngSeed, rngSeed^0xa5a5))),
	)
	if err := a.engine.Start(ctx); err != nil {
		return nil, fmt.Errorf("start engine: %w", err)
	}

	a.hub = hub.New(log, hub.WithClientsRecorder(collector))
	a.stopPush = a.engine.OnApplied(a.hub.Publish)

	if cfg.Stream.URL != "" {
		client, err := stream.NewClient(stream.ClientConfig{
			URL:              cfg.Stream.URL,
			HandshakeTimeout: cfg.Stream.HandshakeTimeout.Duration(),
			InitialBackoff:   cfg.Stream.InitialBackoff.Duration(),
			MaxBackoff:       cfg.Stream.MaxBackoff.Duration(),
		}, log)
		if err != nil {
			return nil, err
		}
		if err := a.engine.Attach(ctx, client); err != nil {
			return nil, fmt.Errorf("attach upstream stream: %w", err)
		}
	}
	if sim.Feed {
		feed, err := a.simulator(rngSeed)
		if err != nil {
			return nil, err
		}
		if err := a.engine.Attach(ctx, feed); err != nil {
			return nil, fmt.Errorf("attach simulated feed: %w", err)
		}
	}

	catalog := scenario.Default()
	vp := viewport.NewController(viewport.Size{Width: cfg.Surface.Width, Height: cfg.Surface.Height})
	a.redrawer = render.NewRedrawer(a.store, vp, log, render.WithMetricsRecorder(collector))

	a.httpLis, err = net.Listen("tcp", cfg.HTTP.Addr)
	if err != nil {
		return nil, fmt.Errorf("listen http: %w", err)
	}
	a.httpSrv = &http.Server{
		Handler: api.NewRouter(api.Deps{
			Store:       a.store,
			Engine:      a.engine,
			Catalog:     catalog,
			Viewport:    vp,
			Interaction: interaction.New(a.store, vp),
			Redrawer:    a.redrawer,
			Push:        a.hub,
			Metrics:     collector.Handler(),
			Log:         log,
		}),
		ReadHeaderTimeout: 5 * time.Second,
	}

	if cfg.GRPC.Addr != "" {
		a.grpcLis, err = net.Listen("tcp", cfg.GRPC.Addr)
		if err != nil {
			return nil, fmt.Errorf("listen grpc: %w", err)
		}
		a.grpcSrv = ingest.NewServer(ingest.NewService(a.engine, catalog, log), collector, log)
	}
	return a, nil
}

func (a *app) simulator(rngSeed uint64) (*stream.Simulator, error) {
	sim := a.cfg.Simulation
	ids := make([]string, 0)
	for _, n := range a.store.Nodes() {
		ids = append(ids, n.ID)
	}
	opts := []stream.SimulatorOption{
		stream.WithRandom(rand.New(rand.NewPCG(rngSeed^0x5a5a, rngSeed))),
	}
	if tle := sim.Satellite.TLE; tle[0] != "" {
		link, err := stream.NewSatelliteLink(tle[0], tle[1], sim.Satellite.Station)
		if err != nil {
			return nil, fmt.Errorf("satellite link: %w", err)
		}
		opts = append(opts, stream.WithSatelliteLink(link))
	}
	return stream.NewSimulator(stream.SimulatorConfig{
		Interval:       sim.StreamInterval.Duration(),
		NodeIDs:        ids,
		SatelliteNodes: append([]string{}, sim.Satellite.Nodes...),
	}, a.log, opts...), nil
}

// HTTPAddr is the bound HTTP address.
func (a *app) HTTPAddr() string { return a.httpLis.Addr().String() }

// GRPCAddr is the bound gRPC address, or "" when the ingest server is off.
func (a *app) GRPCAddr() string {
	if a.grpcLis == nil {
		return ""
	}
	return a.grpcLis.Addr().String()
}

// Run serves until ctx is done or a server fails, then shuts everything
// down.
func (a *app) Run(ctx context.Context) error {
	errCh := make(chan error, 2)
	go func() {
		a.log.Info(ctx, "starting HTTP server", logging.String("addr", a.HTTPAddr()))
		if err := a.httpSrv.Serve(a.httpLis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()
	if a.grpcSrv != nil {
		go func() {
			if err := a.grpcSrv.Serve(a.grpcLis); err != nil {
				errCh <- fmt.Errorf("grpc server: %w", err)
			}
		}()
	}

	var runErr error
	select {
	case <-ctx.Done():
		a.log.Info(context.Background(), "shutting down")
	case runErr = <-errCh:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.HTTP.ShutdownTimeout.Duration())
	defer cancel()
	a.close(shutdownCtx)
	return runErr
}

// close releases everything newApp acquired, in reverse order. It tolerates
// a partially built app.
func (a *app) close(ctx context.Context) {
	if a.hub != nil {
		a.hub.Close()
	}
	if a.httpSrv != nil {
		if err := a.httpSrv.Shutdown(ctx); err != nil {
			a.log.Warn(ctx, "http shutdown", logging.Err(err))
		}
	}
	if a.grpcSrv != nil {
		a.grpcSrv.Stop(ctx)
	}
	// Listeners a server never served from are still open.
	for _, lis := range []net.Listener{a.httpLis, a.grpcLis} {
		if lis != nil {
			_ = lis.Close()
		}
	}
	if a.redrawer != nil {
		a.redrawer.Close()
	}
	if a.stopPush != nil {
		a.stopPush()
	}
	if a.engine != nil {
		if err := a.engine.Close(); err != nil {
			a.log.Warn(ctx, "engine close", logging.Err(err))
		}
	} else if a.store != nil {
		a.store.Dispose()
	}
	observability.ShutdownWithTimeout(context.Background(), a.shutdownTracing, a.log)
}
