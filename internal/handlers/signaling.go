package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mindhaven/signaling/internal/errs"
	"github.com/mindhaven/signaling/internal/models"
	"github.com/mindhaven/signaling/internal/registry"
	"github.com/mindhaven/signaling/internal/store"
)

// Signaling exposes the submit/poll pair that is the sole interface to
// the message store and session registry.
type Signaling struct {
	store    *store.MessageStore
	registry registry.SessionRegistry
	log      *zap.Logger
}

// NewSignaling wires the handler to its storage.
func NewSignaling(st *store.MessageStore, reg registry.SessionRegistry, log *zap.Logger) *Signaling {
	return &Signaling{store: st, registry: reg, log: log}
}

// Submit handles POST /api/signaling: validates the envelope, applies any
// registry side effect implied by the kind, appends the message, and
// echoes the stored message with its assigned timestamp.
func (h *Signaling) Submit(c *gin.Context) {
	var req models.SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing required fields"})
		return
	}
	if !req.Kind.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": errs.ErrUnknownKind.Error()})
		return
	}

	ctx := c.Request.Context()
	h.applySideEffects(c, req)

	msg := h.store.Append(models.SignalMessage{
		Kind:      req.Kind,
		SessionID: req.SessionID,
		From:      req.From,
		To:        req.To,
		Payload:   req.Payload,
	})

	if err := h.registry.AddParticipant(ctx, req.SessionID, req.From); err != nil {
		h.log.Warn("recording participant failed",
			zap.String("sessionId", req.SessionID), zap.Error(err))
	}

	c.JSON(http.StatusOK, models.SubmitResponse{Message: msg})
}

// applySideEffects performs the registry writes implied by certain kinds.
// Registry failures are logged, not surfaced: the relay itself must keep
// working even when the registry backend is unavailable.
func (h *Signaling) applySideEffects(c *gin.Context, req models.SubmitRequest) {
	ctx := c.Request.Context()

	switch req.Kind {
	case models.KindCreateSession:
		var p models.CreateSessionPayload
		if err := models.DecodePayload(req.Payload, &p); err != nil {
			h.log.Warn("malformed create-session payload", zap.Error(err))
			return
		}
		h.createSession(c, req, p.Session)

	case models.KindJoin:
		var p models.JoinPayload
		if err := models.DecodePayload(req.Payload, &p); err != nil {
			return // plain joins may carry no payload at all
		}
		if p.IsHost && p.Session != nil {
			h.createSession(c, req, *p.Session)
		}

	case models.KindTimerStart, models.KindTimerPause, models.KindTimerResume, models.KindTimerReset:
		ts := timerStateFor(req.Kind, req.Payload)
		if err := h.registry.SetTimerState(ctx, req.SessionID, ts); err != nil {
			h.log.Warn("recording timer state failed",
				zap.String("sessionId", req.SessionID), zap.Error(err))
		}
	}
}

func (h *Signaling) createSession(c *gin.Context, req models.SubmitRequest, rec models.SessionRecord) {
	if rec.SessionID == "" {
		rec.SessionID = req.SessionID
	}
	if rec.HostID == "" {
		rec.HostID = req.From
	}
	if rec.DurationMinutes == 0 {
		rec.DurationMinutes = 10
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}

	created, err := h.registry.Create(c.Request.Context(), rec)
	if err != nil {
		h.log.Warn("registering session failed",
			zap.String("sessionId", rec.SessionID), zap.Error(err))
		return
	}
	if created {
		h.log.Info("session registered",
			zap.String("sessionId", rec.SessionID),
			zap.String("hostId", rec.HostID),
			zap.Int("durationMinutes", rec.DurationMinutes))
	}
}

// timerStateFor derives the registry's timer snapshot from a timer
// broadcast. A missing or malformed payload still records the phase.
func timerStateFor(kind models.Kind, raw []byte) models.TimerState {
	var p models.TimerPayload
	_ = models.DecodePayload(raw, &p)

	ts := models.TimerState{
		DurationSeconds:  p.DurationSeconds,
		RemainingSeconds: p.RemainingSeconds,
		UpdatedAt:        time.Now().UnixMilli(),
	}
	switch kind {
	case models.KindTimerStart, models.KindTimerResume:
		ts.Phase = models.TimerRunning
	case models.KindTimerPause:
		ts.Phase = models.TimerPaused
	case models.KindTimerReset:
		ts.Phase = models.TimerIdle
		ts.RemainingSeconds = p.DurationSeconds
	}
	return ts
}

// Poll handles GET /api/signaling. With checkSessionOnly=true it performs
// a registry lookup and never touches the message store; otherwise it
// returns the requester's pending messages past the since watermark.
func (h *Signaling) Poll(c *gin.Context) {
	sessionID := c.Query("sessionId")

	if c.Query("checkSessionOnly") == "true" {
		if sessionID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "sessionId is required"})
			return
		}
		rec, err := h.registry.Get(c.Request.Context(), sessionID)
		if errors.Is(err, errs.ErrSessionNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": errs.ErrSessionNotFound.Error()})
			return
		}
		if err != nil {
			h.log.Error("session lookup failed", zap.String("sessionId", sessionID), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
			return
		}
		c.JSON(http.StatusOK, models.SessionCheckResponse{Exists: true, Session: &rec})
		return
	}

	requesterID := c.Query("requesterId")
	if sessionID == "" || requesterID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "sessionId and requesterId are required"})
		return
	}

	var since int64
	if v := c.Query("since"); v != "" {
		parsed, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "since must be a unix millisecond timestamp"})
			return
		}
		since = parsed
	}

	msgs := h.store.Poll(sessionID, requesterID, since)
	c.JSON(http.StatusOK, models.PollResponse{Messages: msgs})
}
