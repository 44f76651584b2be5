package store

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mindhaven/signaling/internal/models"
)

const (
	// DefaultRetention is how long a message stays pollable.
	DefaultRetention = 30 * time.Second
	// DefaultSweepInterval is how often expired messages are pruned.
	DefaultSweepInterval = 10 * time.Second
)

// MessageStore holds per-session, append-only lists of signaling messages.
// Messages are never mutated after insertion; the only removal path is the
// periodic age-based sweep.
type MessageStore struct {
	mu        sync.RWMutex
	sessions  map[string][]models.SignalMessage
	retention time.Duration
	now       func() int64 // ms since epoch, injectable for tests
	log       *zap.Logger
}

// NewMessageStore creates an empty store with the given retention window.
func NewMessageStore(retention time.Duration, log *zap.Logger) *MessageStore {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &MessageStore{
		sessions:  make(map[string][]models.SignalMessage),
		retention: retention,
		now:       func() int64 { return time.Now().UnixMilli() },
		log:       log,
	}
}

// SetClock replaces the store's clock. Test hook.
func (s *MessageStore) SetClock(now func() int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// Append stores a message in its session's list, assigning the server
// timestamp. Returns the stored message.
func (s *MessageStore) Append(msg models.SignalMessage) models.SignalMessage {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg.ReceivedAt = s.now()
	s.sessions[msg.SessionID] = append(s.sessions[msg.SessionID], msg)
	return msg
}

// Poll returns, in insertion order, the session's messages visible to
// requesterID: not sent by it, either broadcast or addressed to it, and
// newer than the since watermark.
func (s *MessageStore) Poll(sessionID, requesterID string, since int64) []models.SignalMessage {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.SignalMessage
	for _, msg := range s.sessions[sessionID] {
		if msg.From == requesterID {
			continue
		}
		if msg.To != "" && msg.To != requesterID {
			continue
		}
		if msg.ReceivedAt <= since {
			continue
		}
		out = append(out, msg)
	}
	return out
}

// Sweep removes messages older than the retention window from every
// session and drops session buckets that become empty. Returns the number
// of messages removed.
func (s *MessageStore) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.now() - s.retention.Milliseconds()
	removed := 0
	for sessionID, msgs := range s.sessions {
		kept := msgs[:0]
		for _, msg := range msgs {
			if msg.ReceivedAt > cutoff {
				kept = append(kept, msg)
			}
		}
		removed += len(msgs) - len(kept)
		if len(kept) == 0 {
			delete(s.sessions, sessionID)
		} else {
			s.sessions[sessionID] = kept
		}
	}
	return removed
}

// Run sweeps on a fixed interval until ctx is cancelled.
func (s *MessageStore) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.Sweep(); n > 0 {
				s.log.Debug("swept expired signaling messages", zap.Int("removed", n))
			}
		}
	}
}
