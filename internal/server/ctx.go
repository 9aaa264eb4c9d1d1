package server

import (
	"bytes"
	"context"
	"errors"
	"image"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/planscape/planmap/internal/config"
	"github.com/planscape/planmap/internal/flags"
	"github.com/planscape/planmap/internal/state"
	"github.com/planscape/planmap/internal/store"

	"github.com/chai2010/webp"
	"github.com/rs/zerolog/log"
)

// ServerContext holds dependencies for request handlers.
type ServerContext struct {
	Config  *config.Config
	DB      *store.DB
	Flags   flags.Flags
	Session *state.Session

	baseLayers      map[string]config.BaseLayer
	transparentTile []byte

	// viewMu orders map view writes so the stored preference matches the
	// in-memory view.
	viewMu sync.Mutex

	// closed is cancelled by Close and ends long-lived event streams.
	closed    context.Context
	closeOnce sync.Once
	cancel    context.CancelFunc
}

// NewServerContext validates the base layers against the tile cache and
// restores the saved map view.
func NewServerContext(cfg *config.Config, db *store.DB) *ServerContext {
	log.Info().Int("config_base_layers_count", len(cfg.BaseLayers)).Msg("Initializing server context")

	layers := make(map[string]config.BaseLayer, len(cfg.BaseLayers))
	valid := make([]config.BaseLayer, 0, len(cfg.BaseLayers))

	for _, bl := range cfg.BaseLayers {
		dir := filepath.Join(cfg.TileDir, bl.Name)
		if _, err := os.Stat(dir); os.IsNotExist(err) {
			log.Warn().
				Str("layer", bl.Name).
				Str("path", dir).
				Msg("Base layer has no cached tiles yet, run the loader")
		} else {
			log.Trace().Str("layer", bl.Name).Msg("Base layer found")
		}

		layers[bl.Name] = bl
		valid = append(valid, bl)
	}

	sort.SliceStable(valid, func(i, j int) bool {
		idxI, idxJ := 999999, 999999
		if valid[i].Index != nil {
			idxI = *valid[i].Index
		}
		if valid[j].Index != nil {
			idxJ = *valid[j].Index
		}
		return idxI < idxJ
	})
	cfg.BaseLayers = valid

	features := flags.Parse(cfg.Features)
	log.Info().Strs("features", features.Names()).Msg("Feature flags enabled")

	mapState := state.NewMapState(state.MapLimits{
		MinZoom:    cfg.View.MinZoom,
		MaxZoom:    cfg.View.MaxZoom,
		BaseLayers: cfg.BaseLayerNames(),
		Default: state.MapView{
			Zoom:      cfg.View.Zoom,
			Opacity:   cfg.View.DataOpacity(),
			BaseLayer: cfg.View.BaseLayer,
		},
	})

	s := &ServerContext{
		Config:          cfg,
		DB:              db,
		Flags:           features,
		Session:         state.NewSession(state.NewPlanState(cfg.Metrics), mapState),
		baseLayers:      layers,
		transparentTile: transparentTile(),
	}
	s.closed, s.cancel = context.WithCancel(context.Background())

	s.restoreView()

	log.Info().
		Int("base_layers_count", len(cfg.BaseLayers)).
		Int("metrics_count", len(cfg.Metrics)).
		Msg("Server context initialized successfully")

	return s
}

// Close ends open event streams. It is safe to call more than once and is
// registered with http.Server.RegisterOnShutdown.
func (s *ServerContext) Close() {
	s.closeOnce.Do(func() {
		log.Debug().Msg("Closing server context")
		s.cancel()
	})
}

// Closed is done once Close has been called.
func (s *ServerContext) Closed() <-chan struct{} {
	return s.closed.Done()
}

func (s *ServerContext) restoreView() {
	var view state.MapView
	err := s.DB.GetPref(context.Background(), store.KeyMapView, &view)
	if errors.Is(err, store.ErrNotFound) {
		return
	}
	if err != nil {
		log.Warn().Err(err).Msg("Failed to restore saved map view")
		return
	}

	s.Session.Map.Apply(view)
	log.Debug().Str("base_layer", view.BaseLayer).Float64("zoom", view.Zoom).Msg("Restored saved map view")
}

// setView applies a view and stores the normalized result before returning,
// so a read of the map_view preference after a successful write sees it.
func (s *ServerContext) setView(ctx context.Context, view state.MapView) (state.MapView, error) {
	s.viewMu.Lock()
	defer s.viewMu.Unlock()

	prev := s.Session.Map.View().Value()
	applied := s.Session.Map.Apply(view)
	if err := s.DB.PutPref(ctx, store.KeyMapView, applied); err != nil {
		s.Session.Map.Apply(prev)
		return prev, err
	}
	return applied, nil
}

// resetView restores the configured default view and forgets the stored one.
func (s *ServerContext) resetView(ctx context.Context) error {
	s.viewMu.Lock()
	defer s.viewMu.Unlock()

	if err := s.DB.DeletePref(ctx, store.KeyMapView); err != nil {
		return err
	}
	s.Session.Map.Reset()
	return nil
}

// transparentTile is served for tiles missing from the cache.
func transparentTile() []byte {
	var buf bytes.Buffer
	img := image.NewNRGBA(image.Rect(0, 0, 1, 1))
	if err := webp.Encode(&buf, img, &webp.Options{Lossless: true}); err != nil {
		log.Error().Err(err).Msg("Failed to encode transparent tile")
		return nil
	}
	return buf.Bytes()
}
