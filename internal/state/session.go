package state

import (
	"sync"

	"github.com/google/uuid"
)

// Session ties the plan and map state to the plan currently being viewed.
type Session struct {
	Plan *PlanState
	Map  *MapState

	mu     sync.Mutex
	active uuid.UUID
}

// NewSession returns a session with no active plan.
func NewSession(plan *PlanState, m *MapState) *Session {
	return &Session{Plan: plan, Map: m}
}

// Activate makes planID the viewed plan. Switching to a different plan
// resets the plan state so selections from the previous plan do not leak.
// It reports whether a reset happened.
func (s *Session) Activate(planID uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active == planID {
		return false
	}
	s.active = planID
	s.Plan.ResetAll()

	return true
}

// Active returns the viewed plan id, uuid.Nil when none.
func (s *Session) Active() uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}
