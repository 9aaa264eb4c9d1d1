package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"slices"

	"github.com/planscape/planmap/internal/layers"
	"github.com/planscape/planmap/internal/state"
	"github.com/planscape/planmap/internal/store"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// activate loads the plan named by the path and makes it the viewed plan.
func (s *ServerContext) activate(w http.ResponseWriter, r *http.Request) (*store.Plan, bool) {
	plan, ok := s.plan(w, r)
	if !ok {
		return nil, false
	}
	if s.Session.Activate(plan.ID) {
		log.Debug().Str("plan", plan.ID.String()).Msg("Plan state reset for newly viewed plan")
	}
	return plan, true
}

// HandlePlanState serves a snapshot of the selection state.
func (s *ServerContext) HandlePlanState(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.activate(w, r); !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.Session.Plan.Snapshot())
}

type standsRequest struct {
	Action string  `json:"action"`
	IDs    []int64 `json:"ids"`
}

// HandleStands changes the stand selection.
func (s *ServerContext) HandleStands(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.activate(w, r); !ok {
		return
	}

	var req standsRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	ps := s.Session.Plan
	switch req.Action {
	case "select":
		ps.SelectStands(req.IDs...)
	case "deselect":
		ps.DeselectStands(req.IDs...)
	case "toggle":
		for _, id := range req.IDs {
			ps.ToggleStand(id)
		}
	case "clear":
		ps.ClearStands()
	default:
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown action %q", req.Action))
		return
	}

	writeJSON(w, http.StatusOK, ps.Snapshot())
}

type projectAreaRequest struct {
	ID int64 `json:"id"`
}

// HandleProjectArea activates a project area; id 0 clears it.
func (s *ServerContext) HandleProjectArea(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.activate(w, r); !ok {
		return
	}

	var req projectAreaRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.ID < 0 {
		writeError(w, http.StatusBadRequest, "project area id must not be negative")
		return
	}

	s.Session.Plan.SetProjectArea(req.ID)
	writeJSON(w, http.StatusOK, s.Session.Plan.Snapshot())
}

type metricRequest struct {
	Metric string             `json:"metric"`
	Values map[string]float64 `json:"values,omitempty"`
}

// HandleMetric sets the active metric and, when given, its values.
func (s *ServerContext) HandleMetric(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.activate(w, r); !ok {
		return
	}

	var req metricRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	ps := s.Session.Plan
	if err := ps.SetMetric(req.Metric); err != nil {
		if errors.Is(err, state.ErrUnknownMetric) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeErr(w, r, err)
		return
	}
	if req.Values != nil {
		ps.SetMetricValues(req.Values)
	}

	writeJSON(w, http.StatusOK, ps.Snapshot())
}

// HandleReset restores the selection state to its initial values.
func (s *ServerContext) HandleReset(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.activate(w, r); !ok {
		return
	}
	s.Session.Plan.ResetAll()
	writeJSON(w, http.StatusOK, s.Session.Plan.Snapshot())
}

// HandlePlanStateEvents streams a snapshot as a server-sent event whenever any
// part of the selection state changes. Bursts are coalesced into one event.
func (s *ServerContext) HandlePlanStateEvents(w http.ResponseWriter, r *http.Request) {
	plan, ok := s.activate(w, r)
	if !ok {
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	changed := make(chan struct{}, 1)
	notify := func() {
		select {
		case changed <- struct{}{}:
		default:
		}
	}

	ps := s.Session.Plan
	subs := []*state.Subscription{
		ps.SelectedStands().Subscribe(func([]int64) { notify() }),
		ps.ActiveProjectArea().Subscribe(func(int64) { notify() }),
		ps.ActiveMetric().Subscribe(func(string) { notify() }),
		ps.MetricValues().Subscribe(func(map[string]float64) { notify() }),
	}
	defer func() {
		for _, sub := range subs {
			sub.Unsubscribe()
		}
	}()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	log.Debug().Str("plan", plan.ID.String()).Msg("Plan state stream opened")

	for {
		select {
		case <-r.Context().Done():
			log.Debug().Str("plan", plan.ID.String()).Msg("Plan state stream closed")
			return
		case <-s.Closed():
			log.Debug().Str("plan", plan.ID.String()).Msg("Plan state stream closed by shutdown")
			return
		case <-changed:
			if s.Session.Active() != plan.ID {
				// another plan took over the session
				return
			}
			data, err := json.Marshal(ps.Snapshot())
			if err != nil {
				log.Error().Err(err).Msg("Failed to encode plan state")
				return
			}
			if _, err := fmt.Fprintf(w, "event: snapshot\ndata: %s\n\n", data); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

// HandleGetView serves the current map view.
func (s *ServerContext) HandleGetView(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Session.Map.View().Value())
}

// HandlePutView replaces the map view. Zoom, opacity and center are
// normalized; a base layer that is not configured is rejected.
func (s *ServerContext) HandlePutView(w http.ResponseWriter, r *http.Request) {
	var view state.MapView
	if !decodeJSON(w, r, &view) {
		return
	}

	if view.BaseLayer != "" && !slices.Contains(s.Session.Map.Limits().BaseLayers, view.BaseLayer) {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("%v %q", state.ErrUnknownBaseLayer, view.BaseLayer))
		return
	}

	applied, err := s.setView(r.Context(), view)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, applied)
}

// HandleStyle builds the style fragment for the current view: the selected
// base map, the plan outline when ?plan= is given, and the stand layers when
// stand tiles are configured.
func (s *ServerContext) HandleStyle(w http.ResponseWriter, r *http.Request) {
	view := s.Session.Map.View().Value()
	style := layers.NewStyle()

	if bl, ok := s.baseLayers[view.BaseLayer]; ok {
		id, src, layer := layers.BaseMap(layers.BaseLayer{
			Name:        bl.Name,
			TileURL:     "/tiles/" + bl.Name + "/{z}/{x}/{y}.webp",
			MaxZoom:     bl.ZoomLimit,
			Attribution: bl.Attribution,
		})
		style.Add(id, src, layer)
	}

	if raw := r.URL.Query().Get("plan"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid plan id")
			return
		}
		plan, err := s.DB.GetPlan(r.Context(), id)
		if err != nil {
			writeErr(w, r, err)
			return
		}
		sid, src, ls := layers.PlanOutline(plan.ID.String(), plan.Geometry)
		style.Add(sid, src, ls...)
	}

	if s.Config.StandTiles != "" {
		ps := s.Session.Plan
		stands := []layers.Layer{layers.SelectedStands(s.Config.StandLayer, ps.SelectedStands().Value())}

		if m, ok := ps.Metric(ps.ActiveMetric().Value()); ok {
			ramp, found := layers.RampByName(m.ID)
			if !found {
				ramp = layers.RampFireRisk
			}
			fill, err := layers.MetricFill(s.Config.StandLayer, m, ramp, view.Opacity)
			if err != nil {
				writeErr(w, r, err)
				return
			}
			stands = append([]layers.Layer{fill}, stands...)
		}

		style.Add("stands", layers.StandSource(s.Config.StandTiles), stands...)
	}

	writeJSON(w, http.StatusOK, style)
}
