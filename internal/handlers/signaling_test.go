package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mindhaven/signaling/internal/models"
	"github.com/mindhaven/signaling/internal/registry"
	"github.com/mindhaven/signaling/internal/store"
)

func newTestRouter(t *testing.T) (*gin.Engine, *store.MessageStore, *registry.MemoryRegistry) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	st := store.NewMessageStore(30*time.Second, zap.NewNop())
	reg := registry.NewMemoryRegistry()
	sig := NewSignaling(st, reg, zap.NewNop())
	return NewRouter(sig, nil), st, reg
}

func submit(t *testing.T, router *gin.Engine, body any) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshaling request: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/api/signaling", bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func poll(t *testing.T, router *gin.Engine, query string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/api/signaling?"+query, nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestSubmitRejectsMissingFields(t *testing.T) {
	router, _, _ := newTestRouter(t)

	cases := []map[string]any{
		{"kind": "join", "from": "a"},         // no sessionId
		{"sessionId": "s1", "from": "a"},      // no kind
		{"sessionId": "s1", "kind": "join"},   // no from
		{},                                    // nothing at all
	}
	for i, body := range cases {
		if w := submit(t, router, body); w.Code != http.StatusBadRequest {
			t.Errorf("case %d: expected 400, got %d", i, w.Code)
		}
	}
}

func TestSubmitRejectsUnknownKind(t *testing.T) {
	router, _, _ := newTestRouter(t)

	w := submit(t, router, map[string]any{"sessionId": "s1", "kind": "emote", "from": "a"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for unknown kind, got %d", w.Code)
	}
}

func TestSubmitEchoesStoredMessage(t *testing.T) {
	router, _, _ := newTestRouter(t)

	w := submit(t, router, map[string]any{"sessionId": "s1", "kind": "join", "from": "a"})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp models.SubmitResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if resp.Message.Kind != models.KindJoin || resp.Message.From != "a" {
		t.Errorf("echo mismatch: %+v", resp.Message)
	}
	if resp.Message.ReceivedAt == 0 {
		t.Error("stored message missing server-assigned timestamp")
	}
}

// Scenario: host registers a session; a second device discovers it via
// the existence check.
func TestCreateSessionThenCheck(t *testing.T) {
	router, _, _ := newTestRouter(t)

	payload := models.CreateSessionPayload{Session: models.SessionRecord{
		SessionID:       "s1",
		Name:            "Morning Calm",
		DurationMinutes: 10,
		HostID:          "host-1",
	}}
	raw, _ := json.Marshal(payload)
	w := submit(t, router, map[string]any{
		"sessionId": "s1", "kind": "create-session", "from": "host-1",
		"payload": json.RawMessage(raw),
	})
	if w.Code != http.StatusOK {
		t.Fatalf("create-session submit failed: %d %s", w.Code, w.Body.String())
	}

	w = poll(t, router, "sessionId=s1&checkSessionOnly=true")
	if w.Code != http.StatusOK {
		t.Fatalf("existence check failed: %d", w.Code)
	}
	var check models.SessionCheckResponse
	if err := json.Unmarshal(w.Body.Bytes(), &check); err != nil {
		t.Fatalf("decoding check response: %v", err)
	}
	if !check.Exists || check.Session == nil {
		t.Fatal("session not discoverable after create-session")
	}
	if check.Session.DurationMinutes != 10 || check.Session.Name != "Morning Calm" {
		t.Errorf("session metadata mismatch: %+v", check.Session)
	}
}

func TestCheckUnknownSessionIs404(t *testing.T) {
	router, _, _ := newTestRouter(t)

	if w := poll(t, router, "sessionId=nope&checkSessionOnly=true"); w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
}

func TestHostJoinRegistersSession(t *testing.T) {
	router, _, reg := newTestRouter(t)

	join := models.JoinPayload{
		Name:   "Host",
		IsHost: true,
		Session: &models.SessionRecord{
			SessionID: "s1", Name: "Evening Wind-down", DurationMinutes: 20,
		},
	}
	raw, _ := json.Marshal(join)
	w := submit(t, router, map[string]any{
		"sessionId": "s1", "kind": "join", "from": "host-1",
		"payload": json.RawMessage(raw),
	})
	if w.Code != http.StatusOK {
		t.Fatalf("host join failed: %d", w.Code)
	}

	rec, err := reg.Get(t.Context(), "s1")
	if err != nil {
		t.Fatalf("session not registered as side effect of host join: %v", err)
	}
	if rec.DurationMinutes != 20 || rec.HostID != "host-1" {
		t.Errorf("registered record mismatch: %+v", rec)
	}
}

func TestNonHostJoinDoesNotRegister(t *testing.T) {
	router, _, reg := newTestRouter(t)

	raw, _ := json.Marshal(models.JoinPayload{Name: "Guest"})
	submit(t, router, map[string]any{
		"sessionId": "s1", "kind": "join", "from": "guest-1",
		"payload": json.RawMessage(raw),
	})

	if _, err := reg.Get(t.Context(), "s1"); err == nil {
		t.Error("plain join must not create a session record")
	}
}

// Scenario: A joins (broadcast), B polls and sees it, B offers directly
// to A, A's poll returns exactly that offer.
func TestJoinOfferExchange(t *testing.T) {
	router, _, _ := newTestRouter(t)

	submit(t, router, map[string]any{"sessionId": "s1", "kind": "join", "from": "a"})

	w := poll(t, router, "sessionId=s1&requesterId=b&since=0")
	var bView models.PollResponse
	json.Unmarshal(w.Body.Bytes(), &bView)
	if len(bView.Messages) != 1 || bView.Messages[0].Kind != models.KindJoin {
		t.Fatalf("B should observe A's join, got %+v", bView.Messages)
	}

	offerRaw, _ := json.Marshal(models.OfferPayload{SDP: "v=0 fake"})
	submit(t, router, map[string]any{
		"sessionId": "s1", "kind": "offer", "from": "b", "to": "a",
		"payload": json.RawMessage(offerRaw),
	})

	// An unrelated directed message must not leak into A's poll.
	submit(t, router, map[string]any{"sessionId": "s1", "kind": "offer", "from": "b", "to": "c"})

	since := bView.Messages[0].ReceivedAt - 1
	w = poll(t, router, fmt.Sprintf("sessionId=s1&requesterId=a&since=%d", since))
	var aView models.PollResponse
	json.Unmarshal(w.Body.Bytes(), &aView)
	if len(aView.Messages) != 1 {
		t.Fatalf("A expected exactly the offer addressed to it, got %+v", aView.Messages)
	}
	if aView.Messages[0].Kind != models.KindOffer || aView.Messages[0].To != "a" {
		t.Errorf("unexpected message for A: %+v", aView.Messages[0])
	}
}

func TestPollRequiresIdentity(t *testing.T) {
	router, _, _ := newTestRouter(t)

	if w := poll(t, router, "sessionId=s1"); w.Code != http.StatusBadRequest {
		t.Errorf("poll without requesterId: expected 400, got %d", w.Code)
	}
	if w := poll(t, router, "requesterId=a"); w.Code != http.StatusBadRequest {
		t.Errorf("poll without sessionId: expected 400, got %d", w.Code)
	}
	if w := poll(t, router, "sessionId=s1&requesterId=a&since=soon"); w.Code != http.StatusBadRequest {
		t.Errorf("poll with junk since: expected 400, got %d", w.Code)
	}
}

func TestTimerBroadcastRecordsState(t *testing.T) {
	router, _, reg := newTestRouter(t)

	payload := models.CreateSessionPayload{Session: models.SessionRecord{
		SessionID: "s1", Name: "Calm", DurationMinutes: 10, HostID: "h",
	}}
	raw, _ := json.Marshal(payload)
	submit(t, router, map[string]any{
		"sessionId": "s1", "kind": "create-session", "from": "h",
		"payload": json.RawMessage(raw),
	})

	timerRaw, _ := json.Marshal(models.TimerPayload{DurationSeconds: 600, RemainingSeconds: 600})
	submit(t, router, map[string]any{
		"sessionId": "s1", "kind": "timer-start", "from": "h",
		"payload": json.RawMessage(timerRaw),
	})

	rec, err := reg.Get(t.Context(), "s1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if rec.Timer == nil || rec.Timer.Phase != models.TimerRunning {
		t.Fatalf("timer-start not recorded in registry: %+v", rec.Timer)
	}

	pauseRaw, _ := json.Marshal(models.TimerPayload{DurationSeconds: 600, RemainingSeconds: 480})
	submit(t, router, map[string]any{
		"sessionId": "s1", "kind": "timer-pause", "from": "h",
		"payload": json.RawMessage(pauseRaw),
	})

	rec, _ = reg.Get(t.Context(), "s1")
	if rec.Timer.Phase != models.TimerPaused || rec.Timer.RemainingSeconds != 480 {
		t.Errorf("timer-pause not recorded: %+v", rec.Timer)
	}
}

func TestHealthEndpoint(t *testing.T) {
	router, _, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("health check returned %d", w.Code)
	}
}
