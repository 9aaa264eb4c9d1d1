// Package scenario defines planning scenarios, their goals and treatment
// question answers, and the treatment metrics shown on the map.
package scenario

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/planscape/planmap/internal/validate"
)

// Status of a scenario's backend analysis.
type Status string

const (
	StatusPending Status = "pending"
	StatusRunning Status = "running"
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

// Valid reports whether s is one of the Status constants.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusRunning, StatusSuccess, StatusFailed:
		return true
	}
	return false
}

// Goal is the planning objective a scenario optimizes for.
type Goal struct {
	ID         string   `json:"id" yaml:"id"`
	Name       string   `json:"name" yaml:"name"`
	Category   string   `json:"category,omitempty" yaml:"category,omitempty"`
	Priorities []string `json:"priorities,omitempty" yaml:"priorities,omitempty"`
}

// Scenario is a named configuration submitted for analysis within a plan.
type Scenario struct {
	ID        uuid.UUID        `json:"id"`
	PlanID    uuid.UUID        `json:"plan_id"`
	Name      string           `json:"name"`
	Goal      Goal             `json:"goal"`
	Questions []QuestionConfig `json:"questions,omitempty"`
	Status    Status           `json:"status"`
	CreatedAt time.Time        `json:"created_at"`
}

// Validate checks required fields, name uniqueness against existingNames and
// every question answer. planAcres bounds the max-area answer when positive.
func (s *Scenario) Validate(existingNames []string, planAcres float64) error {
	errs := validate.Errors{}

	errs.Add("name", validate.Required(s.Name))
	errs.Add("name", validate.NameMustBeNew(s.Name, existingNames))
	errs.Add("goal.name", validate.Required(s.Goal.Name))

	seen := make(map[QuestionKind]bool, len(s.Questions))
	for i, q := range s.Questions {
		field := fmt.Sprintf("questions[%d]", i)
		validateQuestion(errs, field, q.Question, planAcres)
		if q.Question == nil {
			continue
		}
		if seen[q.Kind()] {
			errs.Addf(field, validate.CodeDuplicate, "%s answered more than once", q.Kind())
		}
		seen[q.Kind()] = true
	}

	return errs.Err()
}

// Metric is a treatment metric that can be shown for a project area.
type Metric struct {
	ID    string  `json:"id" yaml:"id"`
	Label string  `json:"label" yaml:"label"`
	Unit  string  `json:"unit,omitempty" yaml:"unit,omitempty"`
	Min   float64 `json:"min" yaml:"min"`
	Max   float64 `json:"max" yaml:"max"`
}
