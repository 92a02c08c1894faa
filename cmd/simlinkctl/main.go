package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/danmuck/simlink/internal/config"
	"github.com/danmuck/simlink/internal/logging"
	"github.com/danmuck/simlink/internal/observability"
)

func main() {
	configPath := flag.String("config", "", "bridge config path (built-in defaults when empty)")
	mode := flag.String("mode", "", "override scenario mode: sync|pipelined")
	traceSpans := flag.Bool("trace", false, "export drain and tick spans to stdout")
	adminAddr := flag.String("admin", "", "serve /health, /metrics and /status on this address")
	flag.Parse()

	logging.ConfigureRuntime()
	log := logging.Logger("simlinkctl")

	cfg := config.DefaultBridgeConfig()
	if *configPath != "" {
		loaded, err := loadBridgeConfig(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "simlinkctl: %v\n", err)
			os.Exit(1)
		}
		cfg = loaded
	}
	if *mode != "" {
		cfg.Scenario.Mode = strings.ToLower(strings.TrimSpace(*mode))
		if err := config.ValidateScenarioConfig(cfg.Scenario); err != nil {
			fmt.Fprintf(os.Stderr, "simlinkctl: %v\n", err)
			os.Exit(2)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *traceSpans {
		shutdown, err := observability.InitTracing("simlinkctl", os.Stdout)
		if err != nil {
			fmt.Fprintf(os.Stderr, "simlinkctl: init tracing: %v\n", err)
			os.Exit(1)
		}
		defer func() {
			if err := shutdown(context.Background()); err != nil {
				log.Warn().Err(err).Msg("trace shutdown failed")
			}
		}()
	}
	observability.RegisterMetrics()

	prog := &progress{}
	if *adminAddr != "" {
		adminCtx, stopAdmin := context.WithCancel(ctx)
		defer stopAdmin()
		router := observability.AdminRouter("simlinkctl", log, nil, prog.snapshot)
		go func() {
			if err := observability.ServeAdmin(adminCtx, *adminAddr, router); err != nil {
				log.Error().Err(err).Str("addr", *adminAddr).Msg("admin endpoint stopped")
			}
		}()
		log.Info().Str("addr", *adminAddr).Msg("admin endpoint listening")
	}

	sum, err := run(ctx, cfg, prog)
	if err != nil {
		log.Error().Err(err).Int("ticks", sum.Ticks).Msg("run failed")
		stop()
		os.Exit(1)
	}
	log.Info().
		Str("session", sum.Session).
		Bool("pipelined", sum.Pipelined).
		Int("ticks", sum.Ticks).
		Int("bodies", sum.Bodies).
		Int("reports", sum.Reports).
		Int("failed", sum.Failed).
		Int("broken", sum.Broken).
		Float32("lowest_y", sum.LowestY).
		Float32("highest_y", sum.HighestY).
		Msg("run complete")
}
