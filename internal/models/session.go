package models

import (
	"encoding/json"
	"time"
)

// TimerPhase is the lifecycle phase of a session's shared meditation timer.
type TimerPhase string

const (
	TimerIdle      TimerPhase = "idle"
	TimerCountdown TimerPhase = "countdown"
	TimerRunning   TimerPhase = "running"
	TimerPaused    TimerPhase = "paused"
	TimerCompleted TimerPhase = "completed"
)

// TimerState is the last-known timer state of a session, kept in the
// registry so late joiners pick up the current phase on join instead of
// waiting for the host's next broadcast.
type TimerState struct {
	Phase            TimerPhase `json:"phase"`
	DurationSeconds  int        `json:"durationSeconds"`
	RemainingSeconds int        `json:"remainingSeconds"`
	UpdatedAt        int64      `json:"updatedAt"` // ms since epoch
}

// SessionRecord stores metadata about a live meditation session
type SessionRecord struct {
	SessionID       string      `json:"sessionId"`
	Name            string      `json:"name"`
	Description     string      `json:"description,omitempty"`
	DurationMinutes int         `json:"durationMinutes"`
	HostID          string      `json:"hostId"`
	CreatedAt       time.Time   `json:"createdAt"`
	ParticipantIDs  []string    `json:"participantIds,omitempty"`
	Timer           *TimerState `json:"timer,omitempty"`
}

// SubmitRequest is the request body for submitting a signaling message
type SubmitRequest struct {
	SessionID string          `json:"sessionId" binding:"required"`
	Kind      Kind            `json:"kind" binding:"required"`
	From      string          `json:"from" binding:"required"`
	To        string          `json:"to,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// SubmitResponse echoes the stored message including its assigned timestamp
type SubmitResponse struct {
	Message SignalMessage `json:"message"`
}

// PollResponse is the response for a normal poll
type PollResponse struct {
	Messages []SignalMessage `json:"messages"`
}

// SessionCheckResponse is the response for a session-existence check
type SessionCheckResponse struct {
	Exists  bool           `json:"exists"`
	Session *SessionRecord `json:"session,omitempty"`
}
