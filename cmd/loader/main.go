package main

import (
	"context"
	"crypto/tls"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/planscape/planmap/internal/basemap"
	"github.com/planscape/planmap/internal/config"
	"github.com/planscape/planmap/internal/logger"

	"github.com/jessevdk/go-flags"
	"github.com/rs/zerolog/log"
)

type Options struct {
	Logger logger.Logger `group:"Logger options"`

	ConfigFile  string   `short:"c" long:"config"      env:"CONFIG_FILE" description:"Path to configuration file" default:"config.yaml"`
	Limit       []string `short:"l" long:"limit"       env:"LIMIT_NAMES" description:"Limit processing to specific base layer names"`
	TileDir     string   `short:"t" long:"tile-dir"    env:"TILE_DIR"    description:"Tile cache directory, overrides the configuration"`
	Concurrency int      `short:"p" long:"concurrency" env:"CONCURRENCY" description:"Concurrency" default:"50"`
	Quality     float32  `short:"q" long:"quality"     env:"QUALITY"     description:"WebP quality" default:"80"`
	Force       bool     `short:"f" long:"force"       description:"Force overwrite of existing files"`
	FastCheck   bool     `short:"F" long:"fast-check"  description:"Skip a layer if its cache directory exists"`
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
	if opts.TileDir != "" {
		cfg.TileDir = opts.TileDir
	}

	if opts.Concurrency <= 0 {
		opts.Concurrency = 50
	}

	loader := &basemap.Loader{
		Client: &http.Client{
			Transport: &http.Transport{
				TLSNextProto:        make(map[string]func(string, *tls.Conn) http.RoundTripper),
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 100,
			},
			Timeout: 15 * time.Second,
		},
		Dir:         cfg.TileDir,
		Concurrency: opts.Concurrency,
		Quality:     opts.Quality,
		Force:       opts.Force,
		FastCheck:   opts.FastCheck,
	}

	queue := cfg.BaseLayers
	if len(opts.Limit) > 0 {
		queue = make([]config.BaseLayer, 0, len(opts.Limit))
		seen := make(map[string]bool)

		for _, name := range opts.Limit {
			if seen[name] {
				continue
			}
			seen[name] = true

			if bl, ok := findLayer(cfg.BaseLayers, name); ok {
				queue = append(queue, bl)
			} else {
				log.Error().
					Str("name", name).
					Msg("Base layer specified in --limit not found in configuration")
			}
		}
	}

	log.Info().
		Int("layers_total", len(cfg.BaseLayers)).
		Int("layers_queued", len(queue)).
		Str("tile_dir", cfg.TileDir).
		Bool("fast_check", opts.FastCheck).
		Msg("Starting loader")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	failed := 0
	for _, bl := range queue {
		stats, err := loader.Load(ctx, bl)
		if err != nil {
			failed++
			log.Error().Err(err).Str("layer", bl.Name).Msg("Failed to load base layer")
			if ctx.Err() != nil {
				break
			}
			continue
		}

		log.Info().
			Str("layer", bl.Name).
			Int64("fetched", stats.Fetched).
			Int64("cached", stats.Cached).
			Int64("missing", stats.Missing).
			Int64("failed", stats.Failed).
			Msg("Base layer loaded")
	}

	if failed > 0 {
		log.Error().Int("failed_layers", failed).Msg("Loader finished with errors")
		os.Exit(1)
	}

	log.Info().Msg("Loader finished successfully")
}

func findLayer(layers []config.BaseLayer, name string) (config.BaseLayer, bool) {
	for _, bl := range layers {
		if bl.Name == name {
			return bl, true
		}
	}
	return config.BaseLayer{}, false
}
