package agent

import (
	"sync"
	"time"
)

// Participant is this client's local view of another session member.
// Media flags are advisory: they track what the peer last announced, not
// what its tracks are actually doing.
type Participant struct {
	ID             string
	Name           string
	IsHost         bool
	IsVideoEnabled bool
	IsAudioEnabled bool
	LastSeen       time.Time
}

// Roster tracks known remote participants and when each was last heard
// from. Absence of any message within the liveness window is treated as
// an implicit leave, since explicit leave messages are best-effort only.
type Roster struct {
	mu      sync.Mutex
	members map[string]*Participant
	now     func() time.Time
}

// NewRoster creates an empty roster.
func NewRoster() *Roster {
	return &Roster{
		members: make(map[string]*Participant),
		now:     time.Now,
	}
}

// Upsert adds or refreshes a participant. Returns true if the
// participant was not previously known.
func (r *Roster) Upsert(id, name string, isHost bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, known := r.members[id]
	if !known {
		r.members[id] = &Participant{
			ID:             id,
			Name:           name,
			IsHost:         isHost,
			IsVideoEnabled: true,
			IsAudioEnabled: true,
			LastSeen:       r.now(),
		}
		return true
	}
	if name != "" {
		p.Name = name
	}
	p.IsHost = p.IsHost || isHost
	p.LastSeen = r.now()
	return false
}

// Touch refreshes a participant's liveness without changing metadata.
// Unknown participants are ignored.
func (r *Roster) Touch(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.members[id]; ok {
		p.LastSeen = r.now()
	}
}

// Remove drops a participant.
func (r *Roster) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.members, id)
}

// Stale returns and removes participants silent for longer than window.
func (r *Roster) Stale(window time.Duration) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := r.now().Add(-window)
	var stale []string
	for id, p := range r.members {
		if p.LastSeen.Before(cutoff) {
			stale = append(stale, id)
			delete(r.members, id)
		}
	}
	return stale
}

// List returns a snapshot of the current members.
func (r *Roster) List() []Participant {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Participant, 0, len(r.members))
	for _, p := range r.members {
		out = append(out, *p)
	}
	return out
}
