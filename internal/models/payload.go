package models

import (
	"encoding/json"
	"fmt"
)

// Payload structs give each message kind a concrete shape instead of
// passing opaque blobs end to end. The envelope still carries raw JSON so
// the relay never needs to understand payloads it merely forwards; only
// the endpoints that act on a kind decode it.

// OfferPayload carries an SDP offer.
type OfferPayload struct {
	SDP string `json:"sdp"`
}

// AnswerPayload carries an SDP answer.
type AnswerPayload struct {
	SDP string `json:"sdp"`
}

// ICECandidatePayload carries a single trickled ICE candidate.
type ICECandidatePayload struct {
	Candidate     string  `json:"candidate"`
	SDPMid        *string `json:"sdpMid,omitempty"`
	SDPMLineIndex *uint16 `json:"sdpMLineIndex,omitempty"`
}

// JoinPayload announces a participant. Hosts attach the full session
// record so the registry can be populated even when the session was never
// explicitly created (join-from-second-device flow).
type JoinPayload struct {
	Name    string         `json:"name,omitempty"`
	IsHost  bool           `json:"isHost,omitempty"`
	Session *SessionRecord `json:"session,omitempty"`
}

// TimerPayload carries the host's timer broadcast. DurationSeconds is the
// full meditation length; RemainingSeconds the countdown value at the
// moment of the broadcast, so receivers mirror rather than restart.
type TimerPayload struct {
	DurationSeconds  int `json:"durationSeconds"`
	RemainingSeconds int `json:"remainingSeconds"`
}

// CountdownPayload carries one step of the pre-start countdown (3, 2, 1).
type CountdownPayload struct {
	Step int `json:"step"`
}

// CreateSessionPayload registers a session ahead of the host's own join.
type CreateSessionPayload struct {
	Session SessionRecord `json:"session"`
}

// EncodePayload marshals a typed payload into the envelope's raw form.
func EncodePayload(v any) (json.RawMessage, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encoding payload: %w", err)
	}
	return data, nil
}

// DecodePayload unmarshals the envelope payload into the typed form for
// the kind being handled.
func DecodePayload(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return fmt.Errorf("empty payload")
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decoding payload: %w", err)
	}
	return nil
}
