// Package server handles HTTP requests and middleware.
package server

import (
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/planscape/planmap/internal/basemap"
	"github.com/planscape/planmap/internal/config"
	"github.com/planscape/planmap/internal/geo"
	"github.com/planscape/planmap/internal/scenario"
	"github.com/planscape/planmap/internal/state"
	"github.com/planscape/planmap/internal/store"

	"github.com/rs/zerolog/log"
)

const etagCap = 64

// Routes returns the API wrapped in the request logger.
func (s *ServerContext) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/config", s.HandleConfig)
	mux.HandleFunc("GET /api/flags", s.HandleFlags)
	mux.HandleFunc("POST /api/acreage", s.HandleAcreage)
	mux.HandleFunc("POST /api/scenarios/validate-name", s.HandleValidateName)

	mux.HandleFunc("GET /api/plans", s.HandleListPlans)
	mux.HandleFunc("POST /api/plans", s.HandleCreatePlan)
	mux.HandleFunc("GET /api/plans/{id}", s.HandleGetPlan)
	mux.HandleFunc("DELETE /api/plans/{id}", s.HandleDeletePlan)
	mux.HandleFunc("GET /api/plans/{id}/scenarios", s.HandleListScenarios)
	mux.HandleFunc("POST /api/plans/{id}/scenarios", s.HandleCreateScenario)
	mux.HandleFunc("PUT /api/plans/{id}/scenarios/{sid}/status", s.HandleSetScenarioStatus)

	mux.HandleFunc("GET /api/plans/{id}/state", s.HandlePlanState)
	mux.HandleFunc("GET /api/plans/{id}/state/events", s.HandlePlanStateEvents)
	mux.HandleFunc("POST /api/plans/{id}/state/stands", s.HandleStands)
	mux.HandleFunc("PUT /api/plans/{id}/state/project-area", s.HandleProjectArea)
	mux.HandleFunc("PUT /api/plans/{id}/state/metric", s.HandleMetric)
	mux.HandleFunc("POST /api/plans/{id}/state/reset", s.HandleReset)

	mux.HandleFunc("GET /api/map/view", s.HandleGetView)
	mux.HandleFunc("PUT /api/map/view", s.HandlePutView)
	mux.HandleFunc("GET /api/map/style", s.HandleStyle)

	mux.HandleFunc("GET /api/prefs/{key}", s.HandleGetPref)
	mux.HandleFunc("PUT /api/prefs/{key}", s.HandlePutPref)
	mux.HandleFunc("DELETE /api/prefs/{key}", s.HandleDeletePref)

	mux.HandleFunc("GET /tiles/{layer}/{z}/{x}/{y}", s.HandleTile)

	return RequestLogger(mux)
}

type configResponse struct {
	Regions    []config.Region    `json:"regions"`
	BaseLayers []config.BaseLayer `json:"base_layers"`
	Metrics    []scenario.Metric  `json:"metrics"`
	Goals      []scenario.Goal    `json:"goals"`
	Features   []string           `json:"features"`
}

// HandleConfig serves the client-facing part of the configuration.
func (s *ServerContext) HandleConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, configResponse{
		Regions:    nonNil(s.Config.Regions),
		BaseLayers: nonNil(s.Config.BaseLayers),
		Metrics:    nonNil(s.Config.Metrics),
		Goals:      nonNil(s.Config.Goals),
		Features:   s.Flags.Names(),
	})
}

// HandleFlags serves the enabled feature flags.
func (s *ServerContext) HandleFlags(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"flags": s.Flags})
}

type acreageResult struct {
	Index     int     `json:"index"`
	ID        any     `json:"id,omitempty"`
	Acres     float64 `json:"acres"`
	FullAcres float64 `json:"full_acres"`
	Error     string  `json:"error,omitempty"`
}

type acreageResponse struct {
	Features   []acreageResult `json:"features"`
	TotalAcres float64         `json:"total_acres"`
}

// HandleAcreage computes the acreage of every feature in the posted GeoJSON.
// Invalid geometry is reported per feature with zero acres.
func (s *ServerContext) HandleAcreage(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(w, r)
	if err != nil {
		return
	}

	features, err := geo.DecodeFeatures(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	resp := acreageResponse{Features: make([]acreageResult, 0, len(features))}
	for i, f := range features {
		res := acreageResult{Index: i, ID: f.ID}

		acres, err := geo.AcreageE(f)
		if err != nil {
			log.Debug().Err(err).Int("feature", i).Msg("Acreage degraded to zero")
			res.Error = err.Error()
		} else {
			res.Acres = acres
			res.FullAcres, _ = geo.FullAcreage(f)
		}

		resp.TotalAcres += res.Acres
		resp.Features = append(resp.Features, res)
	}
	resp.TotalAcres = math.Round(resp.TotalAcres*100) / 100

	writeJSON(w, http.StatusOK, resp)
}

// HandleGetPref serves a stored preference as raw JSON.
func (s *ServerContext) HandleGetPref(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	if !store.ValidPrefKey(key) {
		writeError(w, http.StatusNotFound, "unknown preference key")
		return
	}

	raw, err := s.DB.GetPrefRaw(r.Context(), key)
	if err != nil {
		writeErr(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(raw)
}

// HandlePutPref stores a preference. The selected region must be configured.
func (s *ServerContext) HandlePutPref(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	if !store.ValidPrefKey(key) {
		writeError(w, http.StatusNotFound, "unknown preference key")
		return
	}

	var value json.RawMessage
	if !decodeJSON(w, r, &value) {
		return
	}

	if key == store.KeySelectedRegion {
		var region string
		if err := json.Unmarshal(value, &region); err != nil {
			writeError(w, http.StatusBadRequest, "selected_region must be a string")
			return
		}
		if _, ok := s.Config.Region(region); !ok {
			writeError(w, http.StatusBadRequest, "unknown region")
			return
		}
	}

	if key == store.KeyMapView {
		var view state.MapView
		if err := json.Unmarshal(value, &view); err != nil {
			writeError(w, http.StatusBadRequest, "map_view must be a map view object")
			return
		}
		if _, err := s.setView(r.Context(), view); err != nil {
			writeErr(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
		return
	}

	if err := s.DB.PutPref(r.Context(), key, value); err != nil {
		writeErr(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleDeletePref forgets a preference. Deleting map_view also restores the
// default view.
func (s *ServerContext) HandleDeletePref(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	if !store.ValidPrefKey(key) {
		writeError(w, http.StatusNotFound, "unknown preference key")
		return
	}

	var err error
	if key == store.KeyMapView {
		err = s.resetView(r.Context())
	} else {
		err = s.DB.DeletePref(r.Context(), key)
	}
	if err != nil {
		writeErr(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleTile serves a cached base map tile, or a transparent tile when the
// cache has none.
func (s *ServerContext) HandleTile(w http.ResponseWriter, r *http.Request) {
	layer := r.PathValue("layer")
	if _, ok := s.baseLayers[layer]; !ok {
		http.NotFound(w, r)
		return
	}

	z, errZ := strconv.Atoi(r.PathValue("z"))
	x, errX := strconv.Atoi(r.PathValue("x"))
	y, errY := strconv.Atoi(strings.TrimSuffix(r.PathValue("y"), ".webp"))
	if errors.Join(errZ, errX, errY) != nil || z < 0 || x < 0 || y < 0 {
		http.NotFound(w, r)
		return
	}

	path := basemap.TilePath(s.Config.TileDir, layer, basemap.Tile{Z: z, X: x, Y: y})
	if s.serveFile(w, r, path, "image/webp") {
		return
	}

	w.Header().Set("Content-Type", "image/webp")
	w.Header().Set("Cache-Control", "public, max-age=3600")
	_, _ = w.Write(s.transparentTile)
}

// serveFile tries to serve a file from disk with ETag generation.
// It returns true if the file was found and served (or 304).
func (s *ServerContext) serveFile(w http.ResponseWriter, r *http.Request, path string, contentType string) bool {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return false
	}

	buf := make([]byte, 0, etagCap)
	buf = append(buf, '"')
	buf = strconv.AppendInt(buf, info.Size(), 16)
	buf = append(buf, '-')
	buf = strconv.AppendInt(buf, info.ModTime().UnixNano(), 16)
	buf = append(buf, '"')
	etag := string(buf)

	if match := r.Header.Get("If-None-Match"); match == etag {
		w.WriteHeader(http.StatusNotModified)
		return true
	}

	w.Header().Set("ETag", etag)
	w.Header().Set("Cache-Control", "public, no-cache")
	if contentType != "" {
		w.Header().Set("Content-Type", contentType)
	}

	http.ServeFile(w, r, path)
	return true
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
