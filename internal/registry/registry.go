// Package registry stores session metadata so that participants can join
// from a second device before the host's own join message has propagated.
package registry

import (
	"context"

	"github.com/mindhaven/signaling/internal/models"
)

// SessionRegistry is the storage interface for session records. Creation
// is first-write-wins: a racing second create must not clobber the record
// an earlier participant already observed.
type SessionRegistry interface {
	// Create stores the record unless one already exists for its
	// SessionID. Returns true if the record was written.
	Create(ctx context.Context, rec models.SessionRecord) (bool, error)

	// Get returns the record, or errs.ErrSessionNotFound.
	Get(ctx context.Context, sessionID string) (models.SessionRecord, error)

	// AddParticipant appends an identity to the record's participant list
	// if not already present. Unknown sessions are a no-op.
	AddParticipant(ctx context.Context, sessionID, participantID string) error

	// SetTimerState records the last-known timer state so late joiners
	// can catch up on join. Unknown sessions are a no-op.
	SetTimerState(ctx context.Context, sessionID string, ts models.TimerState) error
}
