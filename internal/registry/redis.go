package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mindhaven/signaling/internal/errs"
	"github.com/mindhaven/signaling/internal/models"
)

// sessionTTL bounds how long an abandoned session record lingers.
const sessionTTL = 24 * time.Hour

// RedisRegistry stores session records as JSON under "session:<id>" keys
// with a TTL, so records survive server restarts and expire on their own.
type RedisRegistry struct {
	client *redis.Client
}

var _ SessionRegistry = (*RedisRegistry)(nil)

// NewRedisRegistry wraps an existing Redis client.
func NewRedisRegistry(client *redis.Client) *RedisRegistry {
	return &RedisRegistry{client: client}
}

func sessionKey(id string) string { return "session:" + id }

func (r *RedisRegistry) Create(ctx context.Context, rec models.SessionRecord) (bool, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return false, fmt.Errorf("marshaling session record: %w", err)
	}
	// SetNX gives first-write-wins across the two creation paths
	// (explicit create-session and host join).
	created, err := r.client.SetNX(ctx, sessionKey(rec.SessionID), data, sessionTTL).Result()
	if err != nil {
		return false, fmt.Errorf("storing session record: %w", err)
	}
	return created, nil
}

func (r *RedisRegistry) Get(ctx context.Context, sessionID string) (models.SessionRecord, error) {
	data, err := r.client.Get(ctx, sessionKey(sessionID)).Result()
	if errors.Is(err, redis.Nil) {
		return models.SessionRecord{}, errs.ErrSessionNotFound
	}
	if err != nil {
		return models.SessionRecord{}, fmt.Errorf("fetching session record: %w", err)
	}

	var rec models.SessionRecord
	if err := json.Unmarshal([]byte(data), &rec); err != nil {
		return models.SessionRecord{}, fmt.Errorf("parsing session record: %w", err)
	}
	return rec, nil
}

func (r *RedisRegistry) AddParticipant(ctx context.Context, sessionID, participantID string) error {
	return r.update(ctx, sessionID, func(rec *models.SessionRecord) {
		if !slices.Contains(rec.ParticipantIDs, participantID) {
			rec.ParticipantIDs = append(rec.ParticipantIDs, participantID)
		}
	})
}

func (r *RedisRegistry) SetTimerState(ctx context.Context, sessionID string, ts models.TimerState) error {
	return r.update(ctx, sessionID, func(rec *models.SessionRecord) {
		rec.Timer = &ts
	})
}

// update applies a mutation to an existing record, preserving its TTL.
// Unknown sessions are a no-op.
func (r *RedisRegistry) update(ctx context.Context, sessionID string, mutate func(*models.SessionRecord)) error {
	rec, err := r.Get(ctx, sessionID)
	if errors.Is(err, errs.ErrSessionNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	mutate(&rec)

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshaling session record: %w", err)
	}
	if err := r.client.Set(ctx, sessionKey(sessionID), data, redis.KeepTTL).Err(); err != nil {
		return fmt.Errorf("updating session record: %w", err)
	}
	return nil
}
