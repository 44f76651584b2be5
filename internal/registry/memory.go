package registry

import (
	"context"
	"slices"
	"sync"

	"github.com/mindhaven/signaling/internal/errs"
	"github.com/mindhaven/signaling/internal/models"
)

// MemoryRegistry is the in-process implementation, used in tests and in
// deployments without Redis. Records live until process exit.
type MemoryRegistry struct {
	mu       sync.RWMutex
	sessions map[string]models.SessionRecord
}

var _ SessionRegistry = (*MemoryRegistry)(nil)

// NewMemoryRegistry creates an empty in-memory registry.
func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{sessions: make(map[string]models.SessionRecord)}
}

func (r *MemoryRegistry) Create(_ context.Context, rec models.SessionRecord) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sessions[rec.SessionID]; exists {
		return false, nil
	}
	r.sessions[rec.SessionID] = rec
	return true, nil
}

func (r *MemoryRegistry) Get(_ context.Context, sessionID string) (models.SessionRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.sessions[sessionID]
	if !ok {
		return models.SessionRecord{}, errs.ErrSessionNotFound
	}
	return rec, nil
}

func (r *MemoryRegistry) AddParticipant(_ context.Context, sessionID, participantID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.sessions[sessionID]
	if !ok {
		return nil
	}
	if slices.Contains(rec.ParticipantIDs, participantID) {
		return nil
	}
	rec.ParticipantIDs = append(rec.ParticipantIDs, participantID)
	r.sessions[sessionID] = rec
	return nil
}

func (r *MemoryRegistry) SetTimerState(_ context.Context, sessionID string, ts models.TimerState) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.sessions[sessionID]
	if !ok {
		return nil
	}
	rec.Timer = &ts
	r.sessions[sessionID] = rec
	return nil
}
