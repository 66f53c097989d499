// Package session models the per-browser conversation state: an ordered
// append-only transcript and a stable opaque session identity.
//
// The browser owns this state at runtime; the package exists so the state
// rules (append-only, rollback of a failed send) are explicit, deterministic
// and testable rather than ambient variables. All mutation is expected to
// happen on a single goroutine.
package session

import (
	"github.com/UWellLabs/uwell/internal/models"
	"github.com/UWellLabs/uwell/internal/util"
)

// State is the explicit application-state struct for one browser session.
type State struct {
	ID         string
	Lang       string
	Transcript Transcript
}

// NewState creates session state with a fresh identity. The identity is
// created once per storage lifetime and is immutable thereafter; it is used
// only as a correlation token sent to the server.
func NewState(lang string) *State {
	return &State{
		ID:   util.GenerateSessionID(),
		Lang: models.NormalizeLang(lang),
	}
}

// Transcript is the ordered, append-only list of conversation turns sent back
// to the server as context. The only permitted removal is rolling back the
// last user turn after a failed send, so the context never contains a turn
// the server never processed.
type Transcript struct {
	turns []models.Turn
}

// Append adds one turn to the end of the transcript.
func (t *Transcript) Append(role models.Role, text string) {
	t.turns = append(t.turns, models.Turn{Role: role, Text: text})
}

// AppendUser appends a user turn and returns the transcript length before the
// append, for use as a rollback point.
func (t *Transcript) AppendUser(text string) int {
	mark := len(t.turns)
	t.Append(models.RoleUser, text)
	return mark
}

// RollbackLastUser removes the most recent turn if it is a user turn.
// Called when a send fails or times out, restoring the pre-append length.
func (t *Transcript) RollbackLastUser() bool {
	n := len(t.turns)
	if n == 0 || t.turns[n-1].Role != models.RoleUser {
		return false
	}
	t.turns = t.turns[:n-1]
	return true
}

// Len returns the number of turns.
func (t *Transcript) Len() int { return len(t.turns) }

// Turns returns a copy of the transcript for use as request history.
func (t *Transcript) Turns() []models.Turn {
	out := make([]models.Turn, len(t.turns))
	copy(out, t.turns)
	return out
}
