package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/signalsfoundry/edgeview/internal/config"
	"github.com/signalsfoundry/edgeview/internal/logging"
)

func main() {
	configPath := flag.String("config", "", "path to the config file (default $EDGEVIEW_CONFIG or ./edgeview.yaml)")
	httpAddr := flag.String("http-addr", "", "HTTP listen address, overrides http.addr")
	grpcAddr := flag.String("grpc-addr", "", "ingest gRPC listen address, overrides grpc.addr")
	streamURL := flag.String("stream-url", "", "upstream websocket feed, overrides stream.url")
	seedURL := flag.String("seed-url", "", "initial data endpoint, overrides seed.url")
	seedFile := flag.String("seed-file", "", "YAML or JSON seed dataset, overrides seed.file")
	noSimulate := flag.Bool("no-simulate", false, "disable the simulated feed and dashboard updates")
	flag.Parse()

	log := logging.NewFromEnv()
	ctx := context.Background()

	cfg, path, err := loadConfig(*configPath)
	if err != nil {
		log.Error(ctx, "failed to load config", logging.String("path", path), logging.Err(err))
		os.Exit(1)
	}
	if path != "" {
		log.Info(ctx, "loaded config", logging.String("path", path))
	}

	if *httpAddr != "" {
		cfg.HTTP.Addr = *httpAddr
	}
	if *grpcAddr != "" {
		cfg.GRPC.Addr = *grpcAddr
	}
	if *streamURL != "" {
		cfg.Stream.URL = *streamURL
	}
	if *seedURL != "" {
		cfg.Seed.URL = *seedURL
	}
	if *seedFile != "" {
		cfg.Seed.File = *seedFile
	}
	if *noSimulate {
		cfg.Simulation.Enabled = false
		cfg.Simulation.Feed = false
	}
	if err := cfg.Validate(); err != nil {
		log.Error(ctx, "invalid configuration", logging.Err(err))
		os.Exit(1)
	}

	runCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(runCtx, cfg, log, prometheus.DefaultRegisterer)
	if err != nil {
		log.Error(ctx, "failed to start", logging.Err(err))
		os.Exit(1)
	}
	if err := a.Run(runCtx); err != nil {
		log.Error(ctx, "server exited", logging.Err(err))
		os.Exit(1)
	}
}

func loadConfig(path string) (*config.Config, string, error) {
	if path != "" {
		return config.LoadFromPath(path)
	}
	return config.Load()
}
