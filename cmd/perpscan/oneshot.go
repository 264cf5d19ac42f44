package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/perpscan/perpscan/internal/config"
	"github.com/perpscan/perpscan/internal/store"
	"github.com/perpscan/perpscan/internal/venues"
)

func runRollup(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	a, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	minutes, err := a.pipeline.RollupMinutes(ctx)
	if err != nil {
		return fmt.Errorf("minute rollup: %w", err)
	}
	a.log.Info().Int("rows", minutes).Msg("Minute rollup done")

	if hours, _ := cmd.Flags().GetBool("hours"); hours {
		n, err := a.pipeline.RollupHours(ctx)
		if err != nil {
			return fmt.Errorf("hour rollup: %w", err)
		}
		a.log.Info().Int("rows", n).Msg("Hour rollup done")
	}

	refreshed, err := a.pipeline.RefreshLiveView(ctx)
	if err != nil {
		return fmt.Errorf("live view refresh: %w", err)
	}
	a.log.Info().Int("tokens", refreshed).Msg("Live view refreshed")
	return nil
}

func runSync(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	a, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	source, _ := cmd.Flags().GetString("source")
	lookback, _ := cmd.Flags().GetDuration("lookback")

	for _, v := range venues.All() {
		if err := a.syncer.SyncVenue(ctx, v, source, lookback); err != nil {
			return fmt.Errorf("sync %s: %w", v, err)
		}
	}
	a.log.Info().Str("source", source).Msg("Unified sync done")
	return nil
}

func runStatus(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	a, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	trackers, err := a.status.List(ctx)
	if err != nil {
		return err
	}
	if len(trackers) == 0 {
		fmt.Println("no collector status recorded")
		return nil
	}

	now := time.Now()
	fmt.Printf("%-14s %-10s %-10s %-10s %s\n", "VENUE", "STATUS", "SILENCE", "RECONNECTS", "LAST ERROR")
	for _, st := range trackers {
		silence := "never"
		if !st.LastMessageAt.IsZero() {
			silence = now.Sub(st.LastMessageAt).Truncate(time.Second).String()
		}
		fmt.Printf("%-14s %-10s %-10s %-10d %s\n",
			st.Venue, st.Status, silence, st.ReconnectCount, st.LastError)
	}
	return nil
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return err
	}
	log := newLogger(cfg.Log.Level, cfg.Log.Pretty)

	stores, err := store.OpenStores(cfg.Primary, cfg.Unified)
	if err != nil {
		return err
	}
	defer stores.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
	defer cancel()
	if err := stores.Migrate(ctx); err != nil {
		return err
	}
	log.Info().Msg("Schema applied")
	return nil
}
