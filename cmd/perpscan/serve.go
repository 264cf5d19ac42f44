package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/perpscan/perpscan/internal/api"
	"github.com/perpscan/perpscan/internal/sched"
)

const shutdownGrace = 10 * time.Second

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	a, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	mgr, err := a.newManager(ctx)
	if err != nil {
		return err
	}

	noCollectors, _ := cmd.Flags().GetBool("no-collectors")
	if *a.cfg.Collectors.Autostart && !noCollectors {
		mgr.StartAll()
		a.log.Info().Int("venues", len(mgr.Venues())).Msg("Collectors started")
	}

	scheduler := sched.New(a.jobs(mgr), a.log)
	scheduler.Start(ctx)

	apiCfg := api.DefaultConfig()
	apiCfg.Host = a.cfg.HTTP.Host
	apiCfg.Port = a.cfg.HTTP.Port
	server := api.NewServer(apiCfg, api.Deps{
		Markets:   a.markets,
		Unified:   a.unified,
		MAs:       a.mas,
		Arbs:      a.arbs,
		Status:    a.status,
		Manager:   mgr,
		Scheduler: scheduler,
		Cache:     a.cache,
		Metrics:   a.metrics,
		Log:       a.log,
	})

	errCh := make(chan error, 1)
	go func() { errCh <- server.Start() }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		a.log.Info().Str("signal", sig.String()).Msg("Shutting down")
	case err := <-errCh:
		if err != nil {
			a.log.Error().Err(err).Msg("HTTP server failed")
			cancel()
			mgr.StopAll()
			return err
		}
	}

	// Stop scheduler and collector loops first so nothing writes during drain.
	cancel()
	mgr.StopAll()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		a.log.Warn().Err(err).Msg("HTTP shutdown did not drain cleanly")
	}

	a.log.Info().Msg("Shutdown complete")
	return nil
}

func runCollect(cmd *cobra.Command, _ []string) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	a, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	mgr, err := a.newManager(ctx)
	if err != nil {
		return err
	}
	mgr.StartAll()
	a.log.Info().Int("venues", len(mgr.Venues())).Msg("Collectors started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	a.log.Info().Str("signal", sig.String()).Msg("Shutting down")

	cancel()
	mgr.StopAll()
	return nil
}
