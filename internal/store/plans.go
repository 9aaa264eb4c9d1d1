package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/paulmach/orb/geojson"
	"github.com/planscape/planmap/internal/geo"
	"github.com/planscape/planmap/internal/scenario"
)

// Plan is a named planning area.
type Plan struct {
	ID        uuid.UUID        `json:"id"`
	Name      string           `json:"name"`
	Region    string           `json:"region"`
	Geometry  *geojson.Feature `json:"geometry"`
	Acres     float64          `json:"acres"`
	BBox      [4]float64       `json:"bbox"` // [minLon, minLat, maxLon, maxLat]
	CreatedAt time.Time        `json:"created_at"`
}

func bbox(f *geojson.Feature) [4]float64 {
	b := geo.Bound(f)
	return [4]float64{b.Min[0], b.Min[1], b.Max[0], b.Max[1]}
}

// CreatePlan inserts p, assigning its ID and CreatedAt.
func (db *DB) CreatePlan(ctx context.Context, p *Plan) error {
	geom, err := json.Marshal(p.Geometry)
	if err != nil {
		return fmt.Errorf("failed to encode plan geometry: %w", err)
	}

	p.ID = uuid.New()
	p.BBox = bbox(p.Geometry)
	p.CreatedAt = time.Now().UTC().Truncate(time.Millisecond)

	_, err = db.ExecContext(ctx, `
		INSERT INTO plans (id, name, region, geometry, acres, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, p.ID.String(), p.Name, p.Region, string(geom), p.Acres, p.CreatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to create plan: %w", err)
	}
	return nil
}

// GetPlan returns the plan with id.
func (db *DB) GetPlan(ctx context.Context, id uuid.UUID) (*Plan, error) {
	row := db.QueryRowContext(ctx, `
		SELECT id, name, region, geometry, acres, created_at
		FROM plans WHERE id = ?
	`, id.String())

	p, err := scanPlan(row)
	if err != nil {
		return nil, notFound(err, "plan "+id.String())
	}
	return p, nil
}

// ListPlans returns plans, newest first, optionally limited to one region.
func (db *DB) ListPlans(ctx context.Context, region string) ([]*Plan, error) {
	query := `SELECT id, name, region, geometry, acres, created_at FROM plans`
	var args []any
	if region != "" {
		query += ` WHERE region = ?`
		args = append(args, region)
	}
	query += ` ORDER BY created_at DESC, name`

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list plans: %w", err)
	}
	defer func() { _ = rows.Close() }()

	plans := []*Plan{}
	for rows.Next() {
		p, err := scanPlan(rows)
		if err != nil {
			return nil, err
		}
		plans = append(plans, p)
	}
	return plans, rows.Err()
}

// DeletePlan removes a plan and its scenarios.
func (db *DB) DeletePlan(ctx context.Context, id uuid.UUID) error {
	return db.tx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM scenarios WHERE plan_id = ?`, id.String()); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM plans WHERE id = ?`, id.String())
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("plan %s: %w", id, ErrNotFound)
		}
		return nil
	})
}

type scanner interface {
	Scan(dest ...any) error
}

func scanPlan(s scanner) (*Plan, error) {
	var (
		p       Plan
		id      string
		geom    string
		created int64
	)
	if err := s.Scan(&id, &p.Name, &p.Region, &geom, &p.Acres, &created); err != nil {
		return nil, err
	}

	var err error
	if p.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("invalid plan id %q: %w", id, err)
	}
	if p.Geometry, err = geojson.UnmarshalFeature([]byte(geom)); err != nil {
		return nil, fmt.Errorf("failed to decode plan geometry: %w", err)
	}
	p.BBox = bbox(p.Geometry)
	p.CreatedAt = time.UnixMilli(created).UTC()

	return &p, nil
}

// CreateScenario inserts s, assigning ID, CreatedAt and a pending status when
// none is set. check receives the names already used by the plan and runs in
// the same transaction as the insert, so two creates cannot both pass a
// uniqueness check. A non-nil check error aborts the insert and is returned
// unwrapped.
func (db *DB) CreateScenario(ctx context.Context, s *scenario.Scenario, check func(names []string) error) error {
	goal, err := json.Marshal(s.Goal)
	if err != nil {
		return fmt.Errorf("failed to encode goal: %w", err)
	}
	questions, err := json.Marshal(s.Questions)
	if err != nil {
		return fmt.Errorf("failed to encode questions: %w", err)
	}

	id := uuid.New()
	created := time.Now().UTC().Truncate(time.Millisecond)
	status := s.Status
	if status == "" {
		status = scenario.StatusPending
	}

	// The name check and the insert share one transaction so two requests
	// cannot both pass the check with the same name.
	err = db.tx(ctx, func(tx *sql.Tx) error {
		if check != nil {
			names, err := scenarioNames(ctx, tx, s.PlanID)
			if err != nil {
				return err
			}
			if err := check(names); err != nil {
				return err
			}
		}

		_, err := tx.ExecContext(ctx, `
			INSERT INTO scenarios (id, plan_id, name, goal, questions, status, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, id.String(), s.PlanID.String(), s.Name, string(goal), string(questions), string(status), created.UnixMilli())
		if err != nil {
			return fmt.Errorf("failed to create scenario: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.ID, s.CreatedAt, s.Status = id, created, status
	return nil
}

// ListScenarios returns the scenarios of a plan in creation order.
func (db *DB) ListScenarios(ctx context.Context, planID uuid.UUID) ([]*scenario.Scenario, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, plan_id, name, goal, questions, status, created_at
		FROM scenarios WHERE plan_id = ?
		ORDER BY created_at, name
	`, planID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to list scenarios: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := []*scenario.Scenario{}
	for rows.Next() {
		var (
			s               scenario.Scenario
			id, plan        string
			goal, questions string
			status          string
			created         int64
		)
		if err := rows.Scan(&id, &plan, &s.Name, &goal, &questions, &status, &created); err != nil {
			return nil, err
		}
		if s.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("invalid scenario id %q: %w", id, err)
		}
		if s.PlanID, err = uuid.Parse(plan); err != nil {
			return nil, fmt.Errorf("invalid plan id %q: %w", plan, err)
		}
		if err := json.Unmarshal([]byte(goal), &s.Goal); err != nil {
			return nil, fmt.Errorf("failed to decode goal: %w", err)
		}
		if err := json.Unmarshal([]byte(questions), &s.Questions); err != nil {
			return nil, fmt.Errorf("failed to decode questions: %w", err)
		}
		s.Status = scenario.Status(status)
		s.CreatedAt = time.UnixMilli(created).UTC()
		out = append(out, &s)
	}
	return out, rows.Err()
}

// ScenarioNames returns the names used by a plan's scenarios.
func (db *DB) ScenarioNames(ctx context.Context, planID uuid.UUID) ([]string, error) {
	return scenarioNames(ctx, db, planID)
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func scenarioNames(ctx context.Context, q queryer, planID uuid.UUID) ([]string, error) {
	rows, err := q.QueryContext(ctx, `SELECT name FROM scenarios WHERE plan_id = ?`, planID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to list scenario names: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, err
		}
		names = append(names, n)
	}
	return names, rows.Err()
}

// SetScenarioStatus updates the analysis status of a scenario of a plan.
func (db *DB) SetScenarioStatus(ctx context.Context, planID, id uuid.UUID, status scenario.Status) error {
	res, err := db.ExecContext(ctx, `UPDATE scenarios SET status = ? WHERE id = ? AND plan_id = ?`,
		string(status), id.String(), planID.String())
	if err != nil {
		return fmt.Errorf("failed to update scenario status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("scenario %s: %w", id, ErrNotFound)
	}
	return nil
}
