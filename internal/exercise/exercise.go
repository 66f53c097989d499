// Package exercise implements the step-wise guided-exercise state machine.
//
// A Session moves between Idle and OnStep(i) for i in [0, totalSteps); the
// invariant 0 <= current < total holds whenever the session is active. One
// session is live at a time; starting a new analysis supersedes any
// in-progress one without confirmation. Sessions are single-goroutine state
// holders and carry no locking.
package exercise

import (
	"errors"
	"fmt"

	"github.com/UWellLabs/uwell/internal/models"
)

var (
	// ErrNoRecommendations is returned when an analysis has no steps to guide.
	ErrNoRecommendations = errors.New("analysis has no recommendations")
	// ErrNotActive is returned for navigation on an idle or completed session.
	ErrNotActive = errors.New("no active exercise")
	// ErrNoNextStep is returned when "next" is requested on the last step.
	ErrNoNextStep = errors.New("already on the last step")
	// ErrNoPreviousStep is returned when "previous" is requested on step 0.
	ErrNoPreviousStep = errors.New("already on the first step")
)

// Summary reports a completed exercise.
type Summary struct {
	Steps int `json:"steps"`
	Score int `json:"score"`
}

// String renders the completion message shown to the user.
func (s Summary) String() string {
	return fmt.Sprintf("Exercise complete: %d steps done (posture score %d)", s.Steps, s.Score)
}

// Session tracks one guided exercise over an immutable AnalysisResult.
type Session struct {
	analysis models.AnalysisResult
	current  int
	active   bool
}

// Start begins a session on the first step. Analyses without recommendations
// cannot start a session.
func Start(analysis models.AnalysisResult) (*Session, error) {
	if len(analysis.Recommendations) == 0 {
		return nil, ErrNoRecommendations
	}
	return &Session{analysis: analysis, current: 0, active: true}, nil
}

// Active reports whether the session is in an OnStep state.
func (s *Session) Active() bool { return s.active }

// Current returns the zero-based step index, or -1 when idle.
func (s *Session) Current() int {
	if !s.active {
		return -1
	}
	return s.current
}

// TotalSteps returns the recommendation count.
func (s *Session) TotalSteps() int { return len(s.analysis.Recommendations) }

// HasNext reports whether "next" is enabled.
func (s *Session) HasNext() bool {
	return s.active && s.current < s.TotalSteps()-1
}

// HasPrevious reports whether "previous" is enabled.
func (s *Session) HasPrevious() bool {
	return s.active && s.current > 0
}

// Next advances one step. The index never leaves [0, totalSteps).
func (s *Session) Next() error {
	if !s.active {
		return ErrNotActive
	}
	if !s.HasNext() {
		return ErrNoNextStep
	}
	s.current++
	return nil
}

// Previous steps back one step. The index never leaves [0, totalSteps).
func (s *Session) Previous() error {
	if !s.active {
		return ErrNotActive
	}
	if !s.HasPrevious() {
		return ErrNoPreviousStep
	}
	s.current--
	return nil
}

// Complete finishes the exercise from any step and returns the session to
// idle, emitting the completion summary.
func (s *Session) Complete() (Summary, error) {
	if !s.active {
		return Summary{}, ErrNotActive
	}
	s.active = false
	return Summary{Steps: s.TotalSteps(), Score: s.analysis.Score}, nil
}

// StepText derives the display text for the current step from its
// title/detail (or text, or the raw value).
func (s *Session) StepText() string {
	if !s.active {
		return ""
	}
	return s.analysis.Recommendations[s.current].Display()
}
