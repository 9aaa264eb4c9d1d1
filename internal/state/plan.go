package state

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/planscape/planmap/internal/scenario"
)

// ErrUnknownMetric is returned by SetMetric for ids outside the catalogue.
var ErrUnknownMetric = errors.New("unknown metric")

// NoProjectArea is the ActiveProjectArea value when none is selected.
const NoProjectArea int64 = 0

// PlanState is the selection state of the plan being viewed.
type PlanState struct {
	// mu serializes mutations that touch more than one stream, and
	// snapshots, so no reader sees a project area with stands of another.
	mu sync.Mutex

	stands      *Subject[[]int64]
	projectArea *Subject[int64]
	metric      *Subject[string]
	values      *Subject[map[string]float64]

	metrics map[string]scenario.Metric
}

// PlanSnapshot is a point-in-time copy of a PlanState.
type PlanSnapshot struct {
	SelectedStands    []int64            `json:"selected_stands"`
	ActiveProjectArea int64              `json:"active_project_area,omitempty"`
	ActiveMetric      string             `json:"active_metric,omitempty"`
	MetricValues      map[string]float64 `json:"metric_values,omitempty"`
}

// NewPlanState returns empty plan state. metrics lists the treatment metrics
// that may become active.
func NewPlanState(metrics []scenario.Metric) *PlanState {
	known := make(map[string]scenario.Metric, len(metrics))
	for _, m := range metrics {
		known[m.ID] = m
	}

	return &PlanState{
		stands:      NewSubject([]int64{}),
		projectArea: NewSubject(NoProjectArea),
		metric:      NewSubject(""),
		values:      NewSubject(map[string]float64{}),
		metrics:     known,
	}
}

// SelectedStands emits the sorted ids of the selected stands.
func (p *PlanState) SelectedStands() Observable[[]int64] { return p.stands }

// ActiveProjectArea emits the active project area id or NoProjectArea.
func (p *PlanState) ActiveProjectArea() Observable[int64] { return p.projectArea }

// ActiveMetric emits the active metric id, empty when none.
func (p *PlanState) ActiveMetric() Observable[string] { return p.metric }

// MetricValues emits the treatment metric values of the active project area.
func (p *PlanState) MetricValues() Observable[map[string]float64] { return p.values }

// SelectStands adds ids to the selection.
func (p *PlanState) SelectStands(ids ...int64) []int64 {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.stands.Update(func(cur []int64) []int64 {
		next := slices.Clone(cur)
		for _, id := range ids {
			if i, found := slices.BinarySearch(next, id); !found {
				next = slices.Insert(next, i, id)
			}
		}
		return next
	})
}

// DeselectStands removes ids from the selection.
func (p *PlanState) DeselectStands(ids ...int64) []int64 {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.stands.Update(func(cur []int64) []int64 {
		return slices.DeleteFunc(slices.Clone(cur), func(id int64) bool {
			return slices.Contains(ids, id)
		})
	})
}

// ToggleStand flips the selection of one stand.
func (p *PlanState) ToggleStand(id int64) []int64 {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.stands.Update(func(cur []int64) []int64 {
		next := slices.Clone(cur)
		i, found := slices.BinarySearch(next, id)
		if found {
			return slices.Delete(next, i, i+1)
		}
		return slices.Insert(next, i, id)
	})
}

// ClearStands empties the selection.
func (p *PlanState) ClearStands() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stands.Next([]int64{})
}

// SetProjectArea activates a project area. Switching area clears the stand
// selection and metric values, which belong to the previous area.
func (p *PlanState) SetProjectArea(id int64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.projectArea.Value() == id {
		return
	}
	p.projectArea.Next(id)
	p.stands.Next([]int64{})
	p.values.Next(map[string]float64{})
}

// SetMetric activates a known metric; an empty id clears it.
func (p *PlanState) SetMetric(id string) error {
	if id != "" {
		if _, ok := p.metrics[id]; !ok {
			return fmt.Errorf("%w %q", ErrUnknownMetric, id)
		}
	}
	p.metric.Next(id)
	return nil
}

// SetMetricValues replaces the metric values.
func (p *PlanState) SetMetricValues(v map[string]float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.values.Next(maps.Clone(v))
}

// Metric returns the definition of a known metric.
func (p *PlanState) Metric(id string) (scenario.Metric, bool) {
	m, ok := p.metrics[id]
	return m, ok
}

// ResetAll restores every stream to its initial value.
func (p *PlanState) ResetAll() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.stands.Reset()
	p.projectArea.Reset()
	p.metric.Reset()
	p.values.Reset()
}

// Snapshot copies the current values.
func (p *PlanState) Snapshot() PlanSnapshot {
	p.mu.Lock()
	defer p.mu.Unlock()

	return PlanSnapshot{
		SelectedStands:    slices.Clone(p.stands.Value()),
		ActiveProjectArea: p.projectArea.Value(),
		ActiveMetric:      p.metric.Value(),
		MetricValues:      maps.Clone(p.values.Value()),
	}
}
