// Package models defines the core data structures for U-Well.
//
// It includes the wire types exchanged with the browser front end and the
// upstream services, which are shared across modules.
package models

import (
	"encoding/json"
	"errors"
	"strings"
)

// Role identifies the author of a conversation turn.
type Role string

const (
	// RoleUser marks a turn written by the end user.
	RoleUser Role = "user"
	// RoleModel marks a turn produced by the language model.
	RoleModel Role = "model"
)

// ReplyType classifies a server response to the front end.
type ReplyType string

const (
	// ReplyTypeReply is an ordinary conversational reply.
	ReplyTypeReply ReplyType = "reply"
	// ReplyTypeCrisis is a reply carrying helpline referrals.
	ReplyTypeCrisis ReplyType = "crisis"
	// ReplyTypeAnalysis is a posture analysis result.
	ReplyTypeAnalysis ReplyType = "analysis"
)

// Supported locales. Anything unrecognized is normalized to English.
const (
	LangEnglish = "en"
	LangHindi   = "hi"
)

// Validation constants for input validation
const (
	// MaxMessageLength defines the maximum allowed length for a chat message
	MaxMessageLength = 4096
	// MaxHistoryTurns defines the maximum number of history turns accepted per request
	MaxHistoryTurns = 200
	// MaxImageBytes defines the maximum accepted upload size for analysis images (5MB)
	MaxImageBytes = 5 * 1024 * 1024
)

// Error variables for better error handling and testability
var (
	ErrEmptyMessage     = errors.New("message cannot be empty")
	ErrMessageTooLong   = errors.New("message exceeds maximum length")
	ErrTooManyTurns     = errors.New("history exceeds maximum turn count")
	ErrMissingLandmarks = errors.New("landmarks are required")
	ErrMissingImage     = errors.New("image file is required")
)

// NormalizeLang maps an arbitrary locale string to a supported one.
func NormalizeLang(lang string) string {
	if strings.EqualFold(strings.TrimSpace(lang), LangHindi) {
		return LangHindi
	}
	return LangEnglish
}

// Turn is a single entry in the conversation transcript.
type Turn struct {
	Role Role   `json:"role"`
	Text string `json:"text"`
}

// ChatRequest is the payload for POST /api/chat.
type ChatRequest struct {
	SessionID string `json:"sessionId,omitempty"`
	Message   string `json:"message"`
	Lang      string `json:"lang,omitempty"`
	History   []Turn `json:"history,omitempty"`
}

// Validate performs validation on a ChatRequest.
func (r *ChatRequest) Validate() error {
	if strings.TrimSpace(r.Message) == "" {
		return ErrEmptyMessage
	}
	if len(r.Message) > MaxMessageLength {
		return ErrMessageTooLong
	}
	if len(r.History) > MaxHistoryTurns {
		return ErrTooManyTurns
	}
	return nil
}

// Helpline is one crisis helpline referral.
type Helpline struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
}

// ChatReply is the server response for POST /api/chat.
type ChatReply struct {
	Type         ReplyType  `json:"type"`
	Text         string     `json:"text"`
	RequestPhoto bool       `json:"request_photo,omitempty"`
	Helplines    []Helpline `json:"helplines,omitempty"`
}

// Step is one unit of a guided exercise sequence. The analysis service emits
// steps either as plain strings or as {title, detail} objects, so Step accepts
// both shapes on the wire.
type Step struct {
	Title  string `json:"title,omitempty"`
	Detail string `json:"detail,omitempty"`
	Text   string `json:"text,omitempty"`
}

// stepObject mirrors Step for object-shaped JSON without recursing into the
// custom unmarshaler.
type stepObject struct {
	Title  string `json:"title,omitempty"`
	Detail string `json:"detail,omitempty"`
	Text   string `json:"text,omitempty"`
}

// UnmarshalJSON accepts either a JSON string or a step object.
func (s *Step) UnmarshalJSON(data []byte) error {
	var plain string
	if err := json.Unmarshal(data, &plain); err == nil {
		*s = Step{Text: plain}
		return nil
	}
	var obj stepObject
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	*s = Step(obj)
	return nil
}

// MarshalJSON emits a plain string when only Text is set, preserving the
// mixed shape the front end already handles.
func (s Step) MarshalJSON() ([]byte, error) {
	if s.Title == "" && s.Detail == "" {
		return json.Marshal(s.Text)
	}
	return json.Marshal(stepObject(s))
}

// Display derives the user-facing text for a step.
func (s Step) Display() string {
	switch {
	case s.Title != "" && s.Detail != "":
		return s.Title + ": " + s.Detail
	case s.Title != "":
		return s.Title
	case s.Detail != "":
		return s.Detail
	default:
		return s.Text
	}
}

// AnalysisResult is the posture analysis returned by /api/analyze.
// Immutable after creation; owned by the exercise session for the duration of
// one guided exercise.
type AnalysisResult struct {
	Type            ReplyType `json:"type"`
	Summary         string    `json:"summary"`
	Score           int       `json:"score"`
	Notes           string    `json:"notes,omitempty"`
	Recommendations []Step    `json:"recommendations"`
}

// Landmark is one MediaPipe pose landmark in normalized image coordinates.
type Landmark struct {
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Z          float64 `json:"z,omitempty"`
	Visibility float64 `json:"visibility,omitempty"`
}

// PostureRequest is the payload for POST /api/posture.
type PostureRequest struct {
	SessionID string     `json:"sessionId,omitempty"`
	Timestamp int64      `json:"timestamp,omitempty"`
	Landmarks []Landmark `json:"landmarks"`
}

// Validate performs validation on a PostureRequest.
func (r *PostureRequest) Validate() error {
	if len(r.Landmarks) == 0 {
		return ErrMissingLandmarks
	}
	return nil
}

// PostureResponse is the server response for POST /api/posture.
type PostureResponse struct {
	Message         string `json:"message"`
	Score           int    `json:"score"`
	Recommendations []Step `json:"recommendations"`
}

// JournalEntry is one mood journal entry submitted for insight generation.
type JournalEntry struct {
	Mood string `json:"mood"`
	Text string `json:"text"`
	At   string `json:"at"` // ISO timestamp, as persisted by the browser
}

// InsightsRequest is the payload for POST /api/insights.
type InsightsRequest struct {
	Entries []JournalEntry `json:"entries"`
	Lang    string         `json:"lang,omitempty"`
}

// InsightsResponse is the server response for POST /api/insights.
type InsightsResponse struct {
	Insight string `json:"insight"`
}

// ErrorResponse is the wire shape for client-visible errors.
type ErrorResponse struct {
	Error string `json:"error"`
}

// Error creates an ErrorResponse with the given message.
func Error(message string) ErrorResponse {
	return ErrorResponse{Error: message}
}
