package scenario

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/planscape/planmap/internal/validate"
)

// QuestionKind discriminates treatment question payloads.
type QuestionKind string

const (
	KindMaxArea       QuestionKind = "max_area"
	KindMaxCost       QuestionKind = "max_cost"
	KindStandSize     QuestionKind = "stand_size"
	KindExcludedAreas QuestionKind = "excluded_areas"
)

// ErrUnknownKind is reported by validation for a question whose kind is not
// one of the Kind constants.
var ErrUnknownKind = errors.New("unknown question kind")

// Question is one treatment question answer. The set of implementations is
// closed; see the type switch in validateQuestion.
type Question interface {
	Kind() QuestionKind
	question()
}

// MaxArea caps the treated area of a scenario.
type MaxArea struct {
	MaxAcres float64 `json:"max_acres"`
}

// MaxCost caps per-acre cost and, optionally, the total budget.
type MaxCost struct {
	MaxCostPerAcre float64 `json:"max_cost_per_acre"`
	Budget         float64 `json:"budget,omitempty"`
}

// StandSizeClass is the size of stands a scenario is computed on.
type StandSizeClass string

const (
	StandSmall  StandSizeClass = "SMALL"
	StandMedium StandSizeClass = "MEDIUM"
	StandLarge  StandSizeClass = "LARGE"
)

// StandSize selects the stand grid.
type StandSize struct {
	Size StandSizeClass `json:"size"`
}

// ExcludedAreas lists data layers removed from treatment.
type ExcludedAreas struct {
	Layers []string `json:"layers"`
}

// Unknown holds a question whose kind is not recognised. It decodes without
// error so validation can report it against the question's field.
type Unknown struct {
	Type QuestionKind `json:"-"`
}

func (MaxArea) Kind() QuestionKind       { return KindMaxArea }
func (MaxCost) Kind() QuestionKind       { return KindMaxCost }
func (StandSize) Kind() QuestionKind     { return KindStandSize }
func (ExcludedAreas) Kind() QuestionKind { return KindExcludedAreas }
func (u Unknown) Kind() QuestionKind     { return u.Type }

func (MaxArea) question()       {}
func (MaxCost) question()       {}
func (StandSize) question()     {}
func (ExcludedAreas) question() {}
func (Unknown) question()       {}

// QuestionConfig carries a Question on the wire as {"kind": ..., ...payload}.
type QuestionConfig struct {
	Question
}

// MarshalJSON flattens the payload next to its kind.
func (c QuestionConfig) MarshalJSON() ([]byte, error) {
	if c.Question == nil {
		return []byte("null"), nil
	}

	payload, err := json.Marshal(c.Question)
	if err != nil {
		return nil, err
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(payload, &fields); err != nil {
		return nil, err
	}
	kind, _ := json.Marshal(c.Kind())
	fields["kind"] = kind

	return json.Marshal(fields)
}

// UnmarshalJSON decodes the payload selected by kind.
func (c *QuestionConfig) UnmarshalJSON(data []byte) error {
	var head struct {
		Kind QuestionKind `json:"kind"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return err
	}

	var q Question
	var err error
	switch head.Kind {
	case KindMaxArea:
		var v MaxArea
		err = json.Unmarshal(data, &v)
		q = v
	case KindMaxCost:
		var v MaxCost
		err = json.Unmarshal(data, &v)
		q = v
	case KindStandSize:
		var v StandSize
		err = json.Unmarshal(data, &v)
		q = v
	case KindExcludedAreas:
		var v ExcludedAreas
		err = json.Unmarshal(data, &v)
		q = v
	default:
		q = Unknown{Type: head.Kind}
	}
	if err != nil {
		return fmt.Errorf("decode %s question: %w", head.Kind, err)
	}

	c.Question = q
	return nil
}

// validateQuestion checks one answer. planAcres bounds MaxArea when positive.
func validateQuestion(errs validate.Errors, field string, q Question, planAcres float64) {
	switch v := q.(type) {
	case MaxArea:
		if v.MaxAcres <= 0 {
			errs.Addf(field, validate.CodeRange, "max acres must be positive")
		} else if planAcres > 0 && v.MaxAcres > planAcres {
			errs.Addf(field, validate.CodeRange, "max acres %.2f exceeds planning area %.2f", v.MaxAcres, planAcres)
		}
	case MaxCost:
		if v.MaxCostPerAcre <= 0 {
			errs.Addf(field, validate.CodeRange, "max cost per acre must be positive")
		}
		if v.Budget < 0 {
			errs.Addf(field, validate.CodeRange, "budget must not be negative")
		}
	case StandSize:
		switch v.Size {
		case StandSmall, StandMedium, StandLarge:
		default:
			errs.Addf(field, validate.CodeInvalid, "unknown stand size %q", v.Size)
		}
	case ExcludedAreas:
		if len(v.Layers) == 0 {
			errs.Add(field, validate.Required(""))
		}
		for _, l := range v.Layers {
			if strings.TrimSpace(l) == "" {
				errs.Addf(field, validate.CodeInvalid, "blank layer name")
				break
			}
		}
	case Unknown:
		errs.Addf(field, validate.CodeInvalid, "%v %q", ErrUnknownKind, v.Type)
	case nil:
		errs.Add(field, validate.Required(""))
	default:
		errs.Addf(field, validate.CodeInvalid, "unsupported question %T", q)
	}
}
