package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/planscape/planmap/internal/config"
	"github.com/planscape/planmap/internal/logger"
	"github.com/planscape/planmap/internal/server"
	"github.com/planscape/planmap/internal/store"

	"github.com/jessevdk/go-flags"
	"github.com/rs/zerolog/log"
)

type Options struct {
	Logger logger.Logger `group:"Logger options"`

	ConfigFile string `short:"c" long:"config"   env:"CONFIG_FILE"    description:"Path to configuration file" default:"config.yaml"`
	Addr       string `short:"a" long:"addr"     env:"LISTEN_ADDRESS" description:"Address to listen on"       default:"0.0.0.0"`
	Port       int    `short:"p" long:"port"     env:"LISTEN_PORT"    description:"Port to listen on"          default:"8080"`
	Database   string `short:"d" long:"database" env:"DATABASE"       description:"SQLite database path, overrides the configuration"`
	TileDir    string `short:"t" long:"tile-dir" env:"TILE_DIR"       description:"Tile cache directory, overrides the configuration"`
	Features   string `short:"f" long:"features" env:"FEATURES"       description:"Comma-separated feature flags, overrides the configuration"`
}

func main() {
	var opts Options
	parser := flags.NewParser(&opts, flags.Default)
	if _, err := parser.Parse(); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		os.Exit(1)
	}

	opts.Logger.Setup()

	cfg, err := config.Load(opts.ConfigFile)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	if opts.Database != "" {
		cfg.Database = opts.Database
	}
	if opts.TileDir != "" {
		cfg.TileDir = opts.TileDir
	}
	if opts.Features != "" {
		cfg.Features = opts.Features
	}

	db, err := store.Open(cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.Database).Msg("Failed to open database")
	}
	defer db.Close()

	srvCtx := server.NewServerContext(cfg, db)

	listenAddr := fmt.Sprintf("%s:%d", opts.Addr, opts.Port)
	srv := &http.Server{
		Addr:              listenAddr,
		Handler:           srvCtx.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	// Shutdown waits for connections to go idle, which an open event stream
	// never does until the server context is closed.
	srv.RegisterOnShutdown(srvCtx.Close)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		<-ctx.Done()
		log.Info().Msg("Shutting down web server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Graceful shutdown failed")
		}
	}()

	log.Info().
		Str("addr", listenAddr).
		Str("database", cfg.Database).
		Int("regions", len(cfg.Regions)).
		Int("base_layers", len(cfg.BaseLayers)).
		Msg("Web server started")

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		srvCtx.Close()
		log.Error().Err(err).Msg("Server failed")
		return
	}

	// ListenAndServe returns as soon as Shutdown starts; wait for in-flight
	// requests before the database is closed.
	<-stopped
	log.Info().Msg("Web server stopped")
}
