package server

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/planscape/planmap/internal/config"
	"github.com/planscape/planmap/internal/layers"
	"github.com/planscape/planmap/internal/scenario"
	"github.com/planscape/planmap/internal/state"
	"github.com/planscape/planmap/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testConfig = `
features: "TREATMENTS, STATEWIDE_SCENARIOS"
stand_tiles: "https://tiles.example.org/stands/{z}/{x}/{y}.pbf"
regions:
  - name: sierra-nevada
    center: [-119.5, 38]
  - name: southern-california
    center: [-117, 34]
base_layers:
  - name: road
    source: "https://tiles.example.org/road/{z}/{x}/{y}.png"
  - name: terrain
    source: "https://tiles.example.org/terrain/{z}/{x}/{y}.png"
metrics:
  - id: fire_risk
    label: Fire risk
    min: 0
    max: 10
  - id: biomass
    label: Biomass
    unit: t/ac
    min: 0
    max: 200
goals:
  - id: wildfire
    name: Reduce wildfire risk
view:
  min_zoom: 4
  max_zoom: 14
  zoom: 6
  base_layer: road
`

// squareFeature is a 0.01 degree square with its lower-left corner at lon/lat.
func squareFeature(lon, lat float64) string {
	ring := [][2]float64{{lon, lat}, {lon + 0.01, lat}, {lon + 0.01, lat + 0.01}, {lon, lat + 0.01}, {lon, lat}}
	coords, _ := json.Marshal([][][2]float64{ring})
	return `{"type":"Feature","properties":{},"geometry":{"type":"Polygon","coordinates":` + string(coords) + `}}`
}

func setupTestServer(t *testing.T) (*ServerContext, http.Handler) {
	t.Helper()

	cfg, err := config.Parse([]byte(testConfig))
	require.NoError(t, err)
	cfg.TileDir = t.TempDir()

	db, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)

	s := NewServerContext(cfg, db)
	t.Cleanup(func() {
		s.Close()
		_ = db.Close()
	})

	return s, s.Routes()
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()

	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func createPlan(t *testing.T, h http.Handler, name string) *store.Plan {
	t.Helper()

	body := `{"name":"` + name + `","region":"sierra-nevada","geometry":` + squareFeature(-120, 40) + `}`
	rec := do(t, h, http.MethodPost, "/api/plans", body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[*store.Plan](t, rec)
}

func TestHandleConfig(t *testing.T) {
	_, h := setupTestServer(t)

	rec := do(t, h, http.MethodGet, "/api/config", "")
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decode[configResponse](t, rec)
	assert.Equal(t, []string{"STATEWIDE_SCENARIOS", "TREATMENTS"}, resp.Features)
	assert.Len(t, resp.Regions, 2)
	assert.Len(t, resp.BaseLayers, 2)
	assert.Len(t, resp.Metrics, 2)
	require.Len(t, resp.Goals, 1)
	assert.Equal(t, "wildfire", resp.Goals[0].ID)

	rec = do(t, h, http.MethodGet, "/api/flags", "")
	require.Equal(t, http.StatusOK, rec.Code)
	flags := decode[map[string]map[string]bool](t, rec)
	assert.True(t, flags["flags"]["TREATMENTS"])
}

func TestHandleAcreage(t *testing.T) {
	_, h := setupTestServer(t)

	open := `{"type":"Feature","id":"open","properties":{},"geometry":{"type":"Polygon","coordinates":[[[0,0],[1,0],[1,1]]]}}`
	body := `{"type":"FeatureCollection","features":[` + squareFeature(-96, 40) + `,` + open + `]}`

	rec := do(t, h, http.MethodPost, "/api/acreage", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	resp := decode[acreageResponse](t, rec)
	require.Len(t, resp.Features, 2)

	assert.InEpsilon(t, 234.30, resp.Features[0].Acres, 0.005)
	assert.Equal(t, resp.Features[0].Acres, resp.Features[0].FullAcres)
	assert.Empty(t, resp.Features[0].Error)

	assert.Zero(t, resp.Features[1].Acres)
	assert.Equal(t, "open", resp.Features[1].ID)
	assert.NotEmpty(t, resp.Features[1].Error)

	assert.Equal(t, resp.Features[0].Acres, resp.TotalAcres)

	rec = do(t, h, http.MethodPost, "/api/acreage", `{"type":"Topology"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPlanLifecycle(t *testing.T) {
	_, h := setupTestServer(t)

	plan := createPlan(t, h, "Tahoe West Shore")
	assert.InEpsilon(t, 234.30, plan.Acres, 0.01)

	rec := do(t, h, http.MethodGet, "/api/plans/"+plan.ID.String(), "")
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[*store.Plan](t, rec)
	assert.Equal(t, plan.Name, got.Name)
	assert.NotNil(t, got.Geometry)

	rec = do(t, h, http.MethodGet, "/api/plans?region=sierra-nevada", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]*store.Plan](t, rec), 1)

	rec = do(t, h, http.MethodGet, "/api/plans?region=southern-california", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[[]*store.Plan](t, rec))

	scenarioBody := `{
		"name": "Thin the ridge",
		"goal": {"id": "wildfire", "name": "Reduce wildfire risk"},
		"questions": [{"kind": "max_area", "max_acres": 100}]
	}`
	path := "/api/plans/" + plan.ID.String() + "/scenarios"

	rec = do(t, h, http.MethodPost, path, scenarioBody)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	sc := decode[scenario.Scenario](t, rec)
	assert.Equal(t, scenario.StatusPending, sc.Status)
	assert.Equal(t, plan.ID, sc.PlanID)

	// same name differing only in case
	rec = do(t, h, http.MethodPost, path, strings.Replace(scenarioBody, "Thin the ridge", "thin THE ridge ", 1))
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	verr := decode[errorBody](t, rec)
	require.Contains(t, verr.Fields, "name")
	assert.Equal(t, "duplicate", verr.Fields["name"].Code)

	rec = do(t, h, http.MethodPost, path, strings.NewReplacer("Thin the ridge", "Too big", "100", "1000").Replace(scenarioBody))
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	verr = decode[errorBody](t, rec)
	require.Contains(t, verr.Fields, "questions[0]")
	assert.Equal(t, "range", verr.Fields["questions[0]"].Code)

	rec = do(t, h, http.MethodPost, path, `{
		"name": "Magic",
		"goal": {"id": "wildfire", "name": "Reduce wildfire risk"},
		"questions": [{"kind": "budget_magic", "dollars": 5}]
	}`)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code, rec.Body.String())
	verr = decode[errorBody](t, rec)
	require.Contains(t, verr.Fields, "questions[0]")
	assert.Equal(t, "invalid", verr.Fields["questions[0]"].Code)
	assert.Contains(t, verr.Fields["questions[0]"].Message, "budget_magic")

	statusPath := path + "/" + sc.ID.String() + "/status"
	rec = do(t, h, http.MethodPut, statusPath, `{"status":"running"}`)
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())

	rec = do(t, h, http.MethodPut, statusPath, `{"status":"exploded"}`)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, decode[errorBody](t, rec).Fields, "status")

	rec = do(t, h, http.MethodPut, path+"/not-a-uuid/status", `{"status":"running"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodPut, path+"/"+plan.ID.String()+"/status", `{"status":"running"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, h, http.MethodGet, path, "")
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[[]scenario.Scenario](t, rec)
	require.Len(t, list, 1)
	assert.Equal(t, scenario.StatusRunning, list[0].Status)

	rec = do(t, h, http.MethodPost, "/api/scenarios/validate-name",
		`{"name":"Thin the Ridge","plan_id":"`+plan.ID.String()+`"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	vn := decode[validateNameResponse](t, rec)
	assert.False(t, vn.Valid)
	require.NotNil(t, vn.Error)
	assert.Equal(t, "duplicate", vn.Error.Code)

	rec = do(t, h, http.MethodDelete, "/api/plans/"+plan.ID.String(), "")
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/plans/"+plan.ID.String(), "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreatePlanValidation(t *testing.T) {
	_, h := setupTestServer(t)

	tests := []struct {
		name   string
		body   string
		fields []string
	}{
		{
			name:   "missing name and geometry",
			body:   `{"region":"sierra-nevada"}`,
			fields: []string{"name", "geometry"},
		},
		{
			name:   "unknown region",
			body:   `{"name":"a","region":"atlantis","geometry":` + squareFeature(-120, 40) + `}`,
			fields: []string{"region"},
		},
		{
			name:   "self-intersecting geometry",
			body:   `{"name":"a","region":"sierra-nevada","geometry":{"type":"Polygon","coordinates":[[[0,0],[1,1],[1,0],[0,1],[0,0]]]}}`,
			fields: []string{"geometry"},
		},
		{
			name:   "line geometry",
			body:   `{"name":"a","region":"sierra-nevada","geometry":{"type":"LineString","coordinates":[[0,0],[1,1]]}}`,
			fields: []string{"geometry"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, http.MethodPost, "/api/plans", tt.body)
			require.Equal(t, http.StatusUnprocessableEntity, rec.Code, rec.Body.String())

			resp := decode[errorBody](t, rec)
			for _, f := range tt.fields {
				assert.Contains(t, resp.Fields, f)
			}
		})
	}
}

func TestPlanIDErrors(t *testing.T) {
	_, h := setupTestServer(t)

	rec := do(t, h, http.MethodGet, "/api/plans/not-a-uuid", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/plans/6f1c4a43-2b1e-4d3f-9a47-0a9b3c2d1e0f/state", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPlanStateHandlers(t *testing.T) {
	s, h := setupTestServer(t)

	plan := createPlan(t, h, "North")
	base := "/api/plans/" + plan.ID.String() + "/state"

	rec := do(t, h, http.MethodPost, base+"/stands", `{"action":"select","ids":[5,3,9]}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []int64{3, 5, 9}, decode[state.PlanSnapshot](t, rec).SelectedStands)

	rec = do(t, h, http.MethodPost, base+"/stands", `{"action":"toggle","ids":[5,4]}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []int64{3, 4, 9}, decode[state.PlanSnapshot](t, rec).SelectedStands)

	rec = do(t, h, http.MethodPost, base+"/stands", `{"action":"explode"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodPut, base+"/metric", `{"metric":"canopy"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodPut, base+"/metric", `{"metric":"fire_risk","values":{"fire_risk":4.2}}`)
	require.Equal(t, http.StatusOK, rec.Code)
	snap := decode[state.PlanSnapshot](t, rec)
	assert.Equal(t, "fire_risk", snap.ActiveMetric)
	assert.Equal(t, map[string]float64{"fire_risk": 4.2}, snap.MetricValues)

	// switching project area drops selections that belonged to the old area
	rec = do(t, h, http.MethodPut, base+"/project-area", `{"id":12}`)
	require.Equal(t, http.StatusOK, rec.Code)
	snap = decode[state.PlanSnapshot](t, rec)
	assert.Equal(t, int64(12), snap.ActiveProjectArea)
	assert.Empty(t, snap.SelectedStands)
	assert.Empty(t, snap.MetricValues)
	assert.Equal(t, "fire_risk", snap.ActiveMetric)

	rec = do(t, h, http.MethodPut, base+"/project-area", `{"id":-1}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodPost, base+"/reset", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, state.PlanSnapshot{SelectedStands: []int64{}}, decode[state.PlanSnapshot](t, rec))

	do(t, h, http.MethodPost, base+"/stands", `{"action":"select","ids":[1]}`)
	other := createPlan(t, h, "South")

	rec = do(t, h, http.MethodGet, "/api/plans/"+other.ID.String()+"/state", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[state.PlanSnapshot](t, rec).SelectedStands)
	assert.Equal(t, other.ID, s.Session.Active())
}

func TestPlanStateEvents(t *testing.T) {
	_, h := setupTestServer(t)
	srv := httptest.NewServer(h)
	defer srv.Close()

	plan := createPlan(t, h, "Stream")
	base := srv.URL + "/api/plans/" + plan.ID.String() + "/state"

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"/events", nil)
	require.NoError(t, err)
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	events := make(chan state.PlanSnapshot, 16)
	go func() {
		defer close(events)
		sc := bufio.NewScanner(resp.Body)
		for sc.Scan() {
			data, ok := strings.CutPrefix(sc.Text(), "data: ")
			if !ok {
				continue
			}
			var snap state.PlanSnapshot
			if json.Unmarshal([]byte(data), &snap) == nil {
				events <- snap
			}
		}
	}()

	// the replayed values produce an initial snapshot
	select {
	case snap := <-events:
		assert.Empty(t, snap.SelectedStands)
	case <-ctx.Done():
		t.Fatal("no initial snapshot")
	}

	rec := do(t, h, http.MethodPost, "/api/plans/"+plan.ID.String()+"/state/stands", `{"action":"select","ids":[7]}`)
	require.Equal(t, http.StatusOK, rec.Code)

	for {
		select {
		case snap, ok := <-events:
			require.True(t, ok, "stream closed early")
			if len(snap.SelectedStands) == 1 && snap.SelectedStands[0] == 7 {
				return
			}
		case <-ctx.Done():
			t.Fatal("selection change was not streamed")
		}
	}
}

func TestMapView(t *testing.T) {
	s, h := setupTestServer(t)

	rec := do(t, h, http.MethodGet, "/api/map/view", "")
	require.Equal(t, http.StatusOK, rec.Code)
	view := decode[state.MapView](t, rec)
	assert.Equal(t, "road", view.BaseLayer)
	assert.Equal(t, 6.0, view.Zoom)

	rec = do(t, h, http.MethodPut, "/api/map/view", `{"zoom":8,"opacity":0.5,"base_layer":"satellite"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodPut, "/api/map/view", `{"zoom":30,"opacity":1.5,"base_layer":"terrain","center":[190,38]}`)
	require.Equal(t, http.StatusOK, rec.Code)
	view = decode[state.MapView](t, rec)
	assert.Equal(t, 14.0, view.Zoom)
	assert.Equal(t, 1.0, view.Opacity)
	assert.Equal(t, "terrain", view.BaseLayer)
	assert.InDelta(t, -170.0, view.Center[0], 1e-9)

	// stored before the response is written
	var saved state.MapView
	require.NoError(t, s.DB.GetPref(context.Background(), store.KeyMapView, &saved))
	assert.Equal(t, view, saved)

	rec = do(t, h, http.MethodPut, "/api/prefs/map_view", `{"zoom":5,"opacity":0.3,"base_layer":"road"}`)
	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "road", s.Session.Map.View().Value().BaseLayer)

	rec = do(t, h, http.MethodGet, "/api/prefs/map_view", "")
	require.Equal(t, http.StatusOK, rec.Code)
	saved = decode[state.MapView](t, rec)
	assert.Equal(t, "road", saved.BaseLayer)
	assert.Equal(t, 5.0, saved.Zoom)
	assert.Equal(t, 0.3, saved.Opacity)

	rec = do(t, h, http.MethodDelete, "/api/prefs/map_view", "")
	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, 6.0, s.Session.Map.View().Value().Zoom)
	rec = do(t, h, http.MethodGet, "/api/prefs/map_view", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMapViewWritesInOrder(t *testing.T) {
	s, h := setupTestServer(t)

	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			body := `{"zoom":` + strconv.Itoa(4+i%10) + `,"opacity":0.5,"base_layer":"terrain"}`
			do(t, h, http.MethodPut, "/api/map/view", body)
		}()
	}
	wg.Wait()

	var saved state.MapView
	require.NoError(t, s.DB.GetPref(context.Background(), store.KeyMapView, &saved))
	assert.Equal(t, s.Session.Map.View().Value(), saved)
}

func TestPrefs(t *testing.T) {
	_, h := setupTestServer(t)

	rec := do(t, h, http.MethodGet, "/api/prefs/selected_region", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, h, http.MethodPut, "/api/prefs/selected_region", `"atlantis"`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodPut, "/api/prefs/selected_region", `"sierra-nevada"`)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/prefs/selected_region", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `"sierra-nevada"`, rec.Body.String())

	rec = do(t, h, http.MethodPut, "/api/prefs/theme", `"dark"`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, h, http.MethodDelete, "/api/prefs/selected_region", "")
	require.Equal(t, http.StatusNoContent, rec.Code)
	rec = do(t, h, http.MethodGet, "/api/prefs/selected_region", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// deleting an unset preference is not an error
	rec = do(t, h, http.MethodDelete, "/api/prefs/selected_region", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = do(t, h, http.MethodDelete, "/api/prefs/theme", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleTile(t *testing.T) {
	s, h := setupTestServer(t)

	rec := do(t, h, http.MethodGet, "/tiles/road/3/1/2.webp", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/webp", rec.Header().Get("Content-Type"))
	assert.Equal(t, s.transparentTile, rec.Body.Bytes())
	assert.Empty(t, rec.Header().Get("ETag"))

	path := filepath.Join(s.Config.TileDir, "road", "3", "1", "2.webp")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("RIFF-not-really"), 0o644))

	rec = do(t, h, http.MethodGet, "/tiles/road/3/1/2.webp", "")
	require.Equal(t, http.StatusOK, rec.Code)
	etag := rec.Header().Get("ETag")
	require.NotEmpty(t, etag)
	assert.Equal(t, "RIFF-not-really", rec.Body.String())

	req := httptest.NewRequest(http.MethodGet, "/tiles/road/3/1/2.webp", nil)
	req.Header.Set("If-None-Match", etag)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotModified, rec.Code)

	rec = do(t, h, http.MethodGet, "/tiles/satellite/3/1/2.webp", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, h, http.MethodGet, "/tiles/road/3/x/2.webp", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleStyle(t *testing.T) {
	_, h := setupTestServer(t)

	plan := createPlan(t, h, "Styled")
	base := "/api/plans/" + plan.ID.String() + "/state"
	do(t, h, http.MethodPost, base+"/stands", `{"action":"select","ids":[2]}`)
	do(t, h, http.MethodPut, base+"/metric", `{"metric":"biomass"}`)

	rec := do(t, h, http.MethodGet, "/api/map/style?plan="+plan.ID.String(), "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	style := decode[layers.Style](t, rec)
	assert.Equal(t, 8, style.Version)
	assert.Contains(t, style.Sources, "basemap-road")
	assert.Contains(t, style.Sources, "plan-"+plan.ID.String())
	assert.Contains(t, style.Sources, "stands")
	assert.Equal(t, []string{"/tiles/road/{z}/{x}/{y}.webp"}, style.Sources["basemap-road"].Tiles)

	ids := make([]string, len(style.Layers))
	for i, l := range style.Layers {
		ids[i] = l.ID
	}
	assert.Equal(t, []string{
		"basemap-road",
		"plan-" + plan.ID.String() + "-fill",
		"plan-" + plan.ID.String() + "-line",
		"stands-metric-biomass",
		"stands-selected",
	}, ids)

	rec = do(t, h, http.MethodGet, "/api/map/style?plan=bogus", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateScenarioConcurrentNames(t *testing.T) {
	_, h := setupTestServer(t)

	plan := createPlan(t, h, "Crowded")
	path := "/api/plans/" + plan.ID.String() + "/scenarios"
	body := `{"name":"Thin the ridge","goal":{"id":"wildfire","name":"Reduce wildfire risk"}}`

	const workers = 16
	codes := make([]int, workers)
	var wg sync.WaitGroup
	for i := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			codes[i] = do(t, h, http.MethodPost, path, body).Code
		}()
	}
	wg.Wait()

	created := 0
	for _, code := range codes {
		switch code {
		case http.StatusCreated:
			created++
		default:
			assert.Equal(t, http.StatusUnprocessableEntity, code)
		}
	}
	assert.Equal(t, 1, created)

	rec := do(t, h, http.MethodGet, path, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]scenario.Scenario](t, rec), 1)
}

func TestPlanStateEventsEndOnClose(t *testing.T) {
	s, h := setupTestServer(t)
	srv := httptest.NewServer(h)
	defer srv.Close()

	plan := createPlan(t, h, "Shutdown")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/plans/"+plan.ID.String()+"/state/events", nil)
	require.NoError(t, err)
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	ended := make(chan struct{})
	go func() {
		defer close(ended)
		_, _ = io.Copy(io.Discard, resp.Body)
	}()

	s.Close()

	select {
	case <-ended:
	case <-ctx.Done():
		t.Fatal("event stream still open after Close")
	}

	// streams opened after Close end at once
	req, err = http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/plans/"+plan.ID.String()+"/state/events", nil)
	require.NoError(t, err)
	resp2, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp2.Body.Close()
	_, err = io.Copy(io.Discard, resp2.Body)
	assert.NoError(t, err)
}
