/*
Copyright (C) 2026 Slateboard Authors

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/slateboard/slateboard/internal/cache"
	"github.com/slateboard/slateboard/internal/clock"
	"github.com/slateboard/slateboard/internal/config"
	"github.com/slateboard/slateboard/internal/events"
	"github.com/slateboard/slateboard/internal/kiosk"
	"github.com/slateboard/slateboard/internal/logging"
	"github.com/slateboard/slateboard/internal/netsync"
	"github.com/slateboard/slateboard/internal/playback"
	"github.com/slateboard/slateboard/internal/telemetry"
	"github.com/slateboard/slateboard/internal/version"
)

var (
	logger zerolog.Logger
	cfg    *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "slateboard",
	Short: "Slateboard - networked signage kiosk player",
	Long:  "Slateboard turns a display into a signage kiosk: it discovers a content server on the local network, syncs schedule and playlist, and plays media with cached offline fallback.",
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the kiosk player",
	Long:  "Start server discovery, content sync, the playback engine and the local status API.",
	RunE:  runKiosk,
}

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Scan the network for a content server and exit",
	RunE:  runDiscover,
}

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect or clear the media cache",
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print media cache statistics",
	RunE:  runCacheStats,
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove every cached media file",
	RunE:  runCacheClear,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("slateboard " + version.Version)
	},
}

func init() {
	cacheCmd.AddCommand(cacheStatsCmd, cacheClearCmd)
	rootCmd.AddCommand(runCmd, discoverCmd, cacheCmd, versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig() error {
	var err error
	cfg, err = config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger = logging.Setup(cfg.Environment)
	return nil
}

func runKiosk(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}

	logger.Info().Str("version", version.Version).Msg("Slateboard starting")

	surface := playback.NewLogSurface(logger)
	k, err := kiosk.New(*cfg, surface, logger)
	if err != nil {
		return fmt.Errorf("initialize kiosk: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-quit
		logger.Info().Msg("shutting down gracefully...")
		cancel()
	}()

	if err := k.Run(ctx); err != nil && err != context.Canceled {
		return err
	}

	logger.Info().Msg("Slateboard stopped")
	return nil
}

func runDiscover(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}

	client := netsync.New(netsync.Config{
		SubnetPrefix:     cfg.SubnetPrefix,
		DiscoveryEnabled: true,
		ProbeTimeout:     cfg.ProbeTimeout,
	}, events.NewBus(), clock.New(), telemetry.New(), logger)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	found := client.Discover(ctx)
	if found == "" {
		return fmt.Errorf("no content server found")
	}
	fmt.Println(found)
	return nil
}

func runCacheStats(cmd *cobra.Command, args []string) error {
	store, err := openCache()
	if err != nil {
		return err
	}
	defer store.Close()

	st := store.Stats()
	fmt.Printf("entries:     %d\n", st.ItemCount)
	fmt.Printf("total size:  %d bytes\n", st.TotalSize)
	fmt.Printf("max size:    %d bytes\n", st.MaxSize)
	fmt.Printf("directory:   %s\n", cfg.CacheDir)
	return nil
}

func runCacheClear(cmd *cobra.Command, args []string) error {
	store, err := openCache()
	if err != nil {
		return err
	}
	defer store.Close()

	before := store.Stats()
	store.Clear()
	fmt.Printf("removed %d entries (%d bytes)\n", before.ItemCount, before.TotalSize)
	return nil
}

func openCache() (*cache.Cache, error) {
	if err := loadConfig(); err != nil {
		return nil, err
	}
	return cache.New(cfg.CacheDir, cfg.CacheMaxBytes, events.NewBus(), telemetry.New(), logger)
}
