package main

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"github.com/nnaka2992/pg-lineage/internal/config"
	"github.com/nnaka2992/pg-lineage/internal/lineage"
	"github.com/nnaka2992/pg-lineage/internal/server"
)

// serve flags
var (
	addrFlag      string
	cacheSizeFlag int
)

func buildServeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve lineage extraction over HTTP",
		Long:  "Starts an HTTP server. POST SQL text to /api/parse to get its lineage as JSON.",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}

	cmd.Flags().StringVar(&addrFlag, "addr", config.DefaultAddr, "listen address")
	cmd.Flags().IntVar(&cacheSizeFlag, "cache-size", config.DefaultCacheSize, "number of cached results, 0 disables the cache")

	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	srv, err := server.New(server.Config{
		Extractor:      lineage.New(cfg.ExtractorOptions(logger)...),
		Logger:         logger,
		Addr:           cfg.Server.Addr,
		CacheSize:      cfg.Server.CacheSize,
		MaxBodyBytes:   cfg.Server.MaxBodyBytes,
		RequestTimeout: cfg.Server.RequestTimeout,
	})
	if err != nil {
		return err
	}

	if err := srv.Serve(cmd.Context()); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
