package server

import (
	"encoding/json"
	"net/http"

	"github.com/planscape/planmap/internal/geo"
	"github.com/planscape/planmap/internal/scenario"
	"github.com/planscape/planmap/internal/store"
	"github.com/planscape/planmap/internal/validate"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

type createPlanRequest struct {
	Name     string          `json:"name"`
	Region   string          `json:"region"`
	Geometry json.RawMessage `json:"geometry"`
}

// HandleCreatePlan stores a planning area after checking its name, region and
// geometry.
func (s *ServerContext) HandleCreatePlan(w http.ResponseWriter, r *http.Request) {
	var req createPlanRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	errs := validate.Errors{}
	errs.Add("name", validate.Required(req.Name))
	errs.Add("region", validate.Required(req.Region))
	if req.Region != "" && len(s.Config.Regions) > 0 {
		if _, ok := s.Config.Region(req.Region); !ok {
			errs.Addf("region", validate.CodeInvalid, "unknown region %q", req.Region)
		}
	}

	plan := &store.Plan{Name: req.Name, Region: req.Region}

	features, err := geo.DecodeFeatures(req.Geometry)
	switch {
	case len(req.Geometry) == 0:
		errs.Add("geometry", validate.Required(""))
	case err != nil:
		errs.Addf("geometry", validate.CodeInvalid, "%v", err)
	case len(features) != 1:
		errs.Addf("geometry", validate.CodeInvalid, "expected one feature, got %d", len(features))
	default:
		plan.Geometry = features[0]
		acres, err := geo.AcreageE(plan.Geometry)
		if err != nil {
			errs.Addf("geometry", validate.CodeInvalid, "%v", err)
		}
		plan.Acres = acres
	}

	if err := errs.Err(); err != nil {
		writeErr(w, r, err)
		return
	}

	if err := s.DB.CreatePlan(r.Context(), plan); err != nil {
		writeErr(w, r, err)
		return
	}

	log.Info().
		Str("plan", plan.ID.String()).
		Str("region", plan.Region).
		Float64("acres", plan.Acres).
		Msg("Plan created")

	writeJSON(w, http.StatusCreated, plan)
}

// HandleListPlans lists plans, optionally filtered by ?region=.
func (s *ServerContext) HandleListPlans(w http.ResponseWriter, r *http.Request) {
	plans, err := s.DB.ListPlans(r.Context(), r.URL.Query().Get("region"))
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(plans))
}

// HandleGetPlan serves one plan.
func (s *ServerContext) HandleGetPlan(w http.ResponseWriter, r *http.Request) {
	plan, ok := s.plan(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, plan)
}

// HandleDeletePlan removes a plan and its scenarios.
func (s *ServerContext) HandleDeletePlan(w http.ResponseWriter, r *http.Request) {
	id, ok := planID(w, r)
	if !ok {
		return
	}
	if err := s.DB.DeletePlan(r.Context(), id); err != nil {
		writeErr(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleListScenarios lists the scenarios of a plan.
func (s *ServerContext) HandleListScenarios(w http.ResponseWriter, r *http.Request) {
	plan, ok := s.plan(w, r)
	if !ok {
		return
	}

	list, err := s.DB.ListScenarios(r.Context(), plan.ID)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(list))
}

// HandleCreateScenario validates and stores a scenario. The name must be new
// within the plan and a max-area answer may not exceed the plan acreage.
func (s *ServerContext) HandleCreateScenario(w http.ResponseWriter, r *http.Request) {
	plan, ok := s.plan(w, r)
	if !ok {
		return
	}

	var sc scenario.Scenario
	if !decodeJSON(w, r, &sc) {
		return
	}
	sc.PlanID = plan.ID
	sc.Status = ""

	err := s.DB.CreateScenario(r.Context(), &sc, func(names []string) error {
		return sc.Validate(names, plan.Acres)
	})
	if err != nil {
		writeErr(w, r, err)
		return
	}

	log.Info().
		Str("plan", plan.ID.String()).
		Str("scenario", sc.ID.String()).
		Str("goal", sc.Goal.ID).
		Msg("Scenario created")

	writeJSON(w, http.StatusCreated, sc)
}

type scenarioStatusRequest struct {
	Status scenario.Status `json:"status"`
}

// HandleSetScenarioStatus records the analysis status reported for a scenario.
func (s *ServerContext) HandleSetScenarioStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := planID(w, r)
	if !ok {
		return
	}
	sid, err := uuid.Parse(r.PathValue("sid"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid scenario id")
		return
	}

	var req scenarioStatusRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if !req.Status.Valid() {
		errs := validate.Errors{}
		errs.Addf("status", validate.CodeInvalid, "unknown status %q", req.Status)
		writeErr(w, r, errs.Err())
		return
	}

	if err := s.DB.SetScenarioStatus(r.Context(), id, sid, req.Status); err != nil {
		writeErr(w, r, err)
		return
	}

	log.Info().
		Str("plan", id.String()).
		Str("scenario", sid.String()).
		Str("status", string(req.Status)).
		Msg("Scenario status updated")

	w.WriteHeader(http.StatusNoContent)
}

type validateNameRequest struct {
	Name     string    `json:"name"`
	Existing []string  `json:"existing,omitempty"`
	PlanID   uuid.UUID `json:"plan_id"`
}

type validateNameResponse struct {
	Valid bool            `json:"valid"`
	Error *validate.Error `json:"error,omitempty"`
}

// HandleValidateName checks a scenario name against the given names and, when
// plan_id is set, the plan's existing scenarios.
func (s *ServerContext) HandleValidateName(w http.ResponseWriter, r *http.Request) {
	var req validateNameRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	existing := req.Existing
	if req.PlanID != uuid.Nil {
		names, err := s.DB.ScenarioNames(r.Context(), req.PlanID)
		if err != nil {
			writeErr(w, r, err)
			return
		}
		existing = append(existing, names...)
	}

	verr := validate.NameMustBeNew(req.Name, existing)
	writeJSON(w, http.StatusOK, validateNameResponse{Valid: verr == nil, Error: verr})
}

func planID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid plan id")
		return uuid.Nil, false
	}
	return id, true
}

func (s *ServerContext) plan(w http.ResponseWriter, r *http.Request) (*store.Plan, bool) {
	id, ok := planID(w, r)
	if !ok {
		return nil, false
	}
	plan, err := s.DB.GetPlan(r.Context(), id)
	if err != nil {
		writeErr(w, r, err)
		return nil, false
	}
	return plan, true
}
