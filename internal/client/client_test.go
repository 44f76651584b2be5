package client

import (
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mindhaven/signaling/internal/errs"
	"github.com/mindhaven/signaling/internal/handlers"
	"github.com/mindhaven/signaling/internal/models"
	"github.com/mindhaven/signaling/internal/registry"
	"github.com/mindhaven/signaling/internal/store"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	st := store.NewMessageStore(30*time.Second, zap.NewNop())
	reg := registry.NewMemoryRegistry()
	sig := handlers.NewSignaling(st, reg, zap.NewNop())
	srv := httptest.NewServer(handlers.NewRouter(sig, nil))
	t.Cleanup(srv.Close)
	return srv
}

func TestSubmitAndPoll(t *testing.T) {
	srv := newTestServer(t)
	c := New(srv.URL)
	ctx := t.Context()

	msg, err := c.Submit(ctx, models.SubmitRequest{
		SessionID: "s1", Kind: models.KindJoin, From: "a",
	})
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if msg.ReceivedAt == 0 {
		t.Fatal("submitted message missing server timestamp")
	}

	msgs, err := c.Poll(ctx, "s1", "b", 0)
	if err != nil {
		t.Fatalf("Poll failed: %v", err)
	}
	if len(msgs) != 1 || msgs[0].Kind != models.KindJoin {
		t.Errorf("expected the join broadcast, got %+v", msgs)
	}

	// The sender must never see its own message.
	own, err := c.Poll(ctx, "s1", "a", 0)
	if err != nil {
		t.Fatalf("Poll failed: %v", err)
	}
	if len(own) != 0 {
		t.Errorf("sender received its own message: %+v", own)
	}
}

func TestSubmitMissingFields(t *testing.T) {
	srv := newTestServer(t)
	c := New(srv.URL)

	_, err := c.Submit(t.Context(), models.SubmitRequest{SessionID: "s1", Kind: models.KindJoin})
	if !errors.Is(err, errs.ErrMissingField) {
		t.Errorf("expected ErrMissingField, got %v", err)
	}
}

func TestCheckSession(t *testing.T) {
	srv := newTestServer(t)
	c := New(srv.URL)
	ctx := t.Context()

	_, err := c.CheckSession(ctx, "s1")
	if !errors.Is(err, errs.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound before creation, got %v", err)
	}

	payload, _ := models.EncodePayload(models.CreateSessionPayload{Session: models.SessionRecord{
		SessionID: "s1", Name: "Morning Calm", DurationMinutes: 10, HostID: "h",
	}})
	if _, err := c.Submit(ctx, models.SubmitRequest{
		SessionID: "s1", Kind: models.KindCreateSession, From: "h", Payload: payload,
	}); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	rec, err := c.CheckSession(ctx, "s1")
	if err != nil {
		t.Fatalf("CheckSession failed: %v", err)
	}
	if rec.Name != "Morning Calm" || rec.DurationMinutes != 10 {
		t.Errorf("session metadata mismatch: %+v", rec)
	}
}
