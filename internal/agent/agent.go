// Package agent runs the per-participant side of a live meditation
// session: identity, presence, the relay poll loop, and the
// host-authoritative timer protocol.
package agent

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"go.uber.org/zap"

	"github.com/mindhaven/signaling/internal/client"
	"github.com/mindhaven/signaling/internal/models"
	"github.com/mindhaven/signaling/internal/peer"
)

// ErrNotHost is returned when a non-host invokes a timer control.
var ErrNotHost = errors.New("timer controls are host-only")

const (
	defaultPollInterval      = 1 * time.Second
	defaultHeartbeatInterval = 5 * time.Second
	defaultLivenessWindow    = 15 * time.Second
)

// Options configures an Agent.
type Options struct {
	ServerURL   string
	SessionID   string
	DisplayName string

	// Host marks this participant as the session host. Hosts must supply
	// Session; joiners resolve it from the signaling server.
	Host    bool
	Session *models.SessionRecord

	ICEServers  []string
	LocalTracks []webrtc.TrackLocal

	PollInterval      time.Duration
	HeartbeatInterval time.Duration
	LivenessWindow    time.Duration

	Logger *zap.Logger
}

// Agent is one participant's signaling loop. Create with New, start with
// Start, and always Close to announce departure and release connections.
type Agent struct {
	id        string
	sessionID string
	name      string
	isHost    bool

	client  *client.Client
	peers   *peer.Manager
	timer   *Timer
	roster  *Roster
	session models.SessionRecord
	log     *zap.Logger

	pollInterval      time.Duration
	heartbeatInterval time.Duration
	livenessWindow    time.Duration

	mu        sync.Mutex
	watermark int64

	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once
}

// New creates an agent with a freshly generated identity. Collisions are
// accepted as a birthday-bound risk, matching the relay's trust model.
func New(opts Options) (*Agent, error) {
	if opts.ServerURL == "" || opts.SessionID == "" {
		return nil, fmt.Errorf("server URL and session ID are required")
	}
	if opts.Host && opts.Session == nil {
		return nil, fmt.Errorf("hosting requires session metadata")
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaultPollInterval
	}
	if opts.HeartbeatInterval <= 0 {
		opts.HeartbeatInterval = defaultHeartbeatInterval
	}
	if opts.LivenessWindow <= 0 {
		opts.LivenessWindow = defaultLivenessWindow
	}

	a := &Agent{
		id:                uuid.New().String(),
		sessionID:         opts.SessionID,
		name:              opts.DisplayName,
		isHost:            opts.Host,
		client:            client.New(opts.ServerURL),
		roster:            NewRoster(),
		log:               opts.Logger,
		pollInterval:      opts.PollInterval,
		heartbeatInterval: opts.HeartbeatInterval,
		livenessWindow:    opts.LivenessWindow,
		done:              make(chan struct{}),
	}
	a.peers = peer.NewManager(a, opts.ICEServers, opts.LocalTracks, opts.Logger)
	if opts.Session != nil {
		a.session = *opts.Session
	}
	return a, nil
}

// ID returns the agent's generated identity.
func (a *Agent) ID() string { return a.id }

// Session returns the resolved session metadata.
func (a *Agent) Session() models.SessionRecord {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.session
}

// Timer returns the local timer mirror.
func (a *Agent) Timer() *Timer { return a.timer }

// Roster returns the local participant roster.
func (a *Agent) Roster() *Roster { return a.roster }

// Peers returns the peer connection manager, for wiring media callbacks
// before Start.
func (a *Agent) Peers() *peer.Manager { return a.peers }

// Start resolves the session, announces presence, and begins the poll
// loop. It returns once the join has been submitted; the loop runs until
// Close or ctx cancellation.
func (a *Agent) Start(ctx context.Context) error {
	if err := a.resolveSession(ctx); err != nil {
		return err
	}

	if a.isHost {
		// Register the session ahead of the join broadcast so a second
		// device can discover it immediately.
		rec := a.Session()
		payload, err := models.EncodePayload(models.CreateSessionPayload{Session: rec})
		if err != nil {
			return err
		}
		if _, err := a.client.Submit(ctx, models.SubmitRequest{
			SessionID: a.sessionID,
			Kind:      models.KindCreateSession,
			From:      a.id,
			Payload:   payload,
		}); err != nil {
			return fmt.Errorf("registering session: %w", err)
		}
	}

	join := models.JoinPayload{Name: a.name, IsHost: a.isHost}
	if a.isHost {
		rec := a.Session()
		join.Session = &rec
	}
	payload, err := models.EncodePayload(join)
	if err != nil {
		return err
	}
	// The watermark starts at zero so the first poll also observes
	// participants who joined within the retention window before us.
	if _, err := a.client.Submit(ctx, models.SubmitRequest{
		SessionID: a.sessionID,
		Kind:      models.KindJoin,
		From:      a.id,
		Payload:   payload,
	}); err != nil {
		return fmt.Errorf("announcing presence: %w", err)
	}

	loopCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel
	go a.run(loopCtx)

	a.log.Info("joined live session",
		zap.String("sessionId", a.sessionID),
		zap.String("participantId", a.id),
		zap.Bool("host", a.isHost))
	return nil
}

// resolveSession fills a.session and seeds the timer mirror. Joiners ask
// the server; a missing session aborts initialization so the caller can
// route back to a join flow.
func (a *Agent) resolveSession(ctx context.Context) error {
	if a.isHost {
		a.timer = NewTimer(a.session.DurationMinutes)
		return nil
	}

	rec, err := a.client.CheckSession(ctx, a.sessionID)
	if err != nil {
		return fmt.Errorf("resolving session %s: %w", a.sessionID, err)
	}

	a.mu.Lock()
	a.session = rec
	a.mu.Unlock()

	a.timer = NewTimer(rec.DurationMinutes)
	if rec.Timer != nil {
		a.timer.Seed(*rec.Timer)
	}
	return nil
}

// run is the fixed-interval poll loop plus heartbeat and liveness prune.
func (a *Agent) run(ctx context.Context) {
	defer close(a.done)

	poll := time.NewTicker(a.pollInterval)
	defer poll.Stop()
	heartbeat := time.NewTicker(a.heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-poll.C:
			a.pollOnce(ctx)
			a.pruneStale()
		case <-heartbeat.C:
			if err := a.Send(ctx, models.KindHeartbeat, "", nil); err != nil {
				a.log.Debug("heartbeat failed", zap.Error(err))
			}
		}
	}
}

// pollOnce fetches and dispatches pending messages, advancing the
// watermark past everything observed.
func (a *Agent) pollOnce(ctx context.Context) {
	a.mu.Lock()
	since := a.watermark
	a.mu.Unlock()

	msgs, err := a.client.Poll(ctx, a.sessionID, a.id, since)
	if err != nil {
		a.log.Debug("poll failed", zap.Error(err))
		return
	}

	for _, msg := range msgs {
		a.handleMessage(ctx, msg)
		a.mu.Lock()
		if msg.ReceivedAt > a.watermark {
			a.watermark = msg.ReceivedAt
		}
		a.mu.Unlock()
	}
}

// handleMessage dispatches one relay message. Handler errors are logged
// and isolated: one peer's bad negotiation never affects the rest of the
// session or the timer.
func (a *Agent) handleMessage(ctx context.Context, msg models.SignalMessage) {
	switch msg.Kind {
	case models.KindJoin:
		var p models.JoinPayload
		_ = models.DecodePayload(msg.Payload, &p)
		if isNew := a.roster.Upsert(msg.From, p.Name, p.IsHost); isNew {
			a.log.Info("participant joined", zap.String("participantId", msg.From))
			if err := a.peers.Connect(ctx, msg.From); err != nil {
				a.log.Warn("initiating connection failed",
					zap.String("peer", msg.From), zap.Error(err))
			}
		}

	case models.KindLeave:
		a.roster.Remove(msg.From)
		a.peers.ClosePeer(msg.From)
		a.log.Info("participant left", zap.String("participantId", msg.From))

	case models.KindHeartbeat:
		a.roster.Touch(msg.From)

	case models.KindOffer:
		a.roster.Touch(msg.From)
		var p models.OfferPayload
		if err := models.DecodePayload(msg.Payload, &p); err != nil {
			a.log.Warn("malformed offer", zap.String("peer", msg.From), zap.Error(err))
			return
		}
		if err := a.peers.HandleOffer(ctx, msg.From, p); err != nil {
			a.log.Warn("answering offer failed", zap.String("peer", msg.From), zap.Error(err))
		}

	case models.KindAnswer:
		a.roster.Touch(msg.From)
		var p models.AnswerPayload
		if err := models.DecodePayload(msg.Payload, &p); err != nil {
			a.log.Warn("malformed answer", zap.String("peer", msg.From), zap.Error(err))
			return
		}
		if err := a.peers.HandleAnswer(msg.From, p); err != nil {
			a.log.Warn("applying answer failed", zap.String("peer", msg.From), zap.Error(err))
		}

	case models.KindICECandidate:
		var p models.ICECandidatePayload
		if err := models.DecodePayload(msg.Payload, &p); err != nil {
			a.log.Warn("malformed candidate", zap.String("peer", msg.From), zap.Error(err))
			return
		}
		if err := a.peers.HandleCandidate(msg.From, p); err != nil {
			a.log.Debug("applying candidate failed", zap.String("peer", msg.From), zap.Error(err))
		}

	case models.KindCountdown:
		var p models.CountdownPayload
		_ = models.DecodePayload(msg.Payload, &p)
		a.timer.Countdown(p.Step)

	case models.KindTimerStart:
		var p models.TimerPayload
		_ = models.DecodePayload(msg.Payload, &p)
		a.timer.Start(p.DurationSeconds)

	case models.KindTimerPause:
		a.timer.Pause()

	case models.KindTimerResume:
		a.timer.Resume()

	case models.KindTimerReset:
		a.timer.Reset()
	}
}

// pruneStale treats prolonged silence as an implicit leave, since
// explicit leave messages carry no delivery guarantee.
func (a *Agent) pruneStale() {
	for _, id := range a.roster.Stale(a.livenessWindow) {
		a.peers.ClosePeer(id)
		a.log.Info("participant timed out", zap.String("participantId", id))
	}
}

// Send implements peer.Sender: it submits a message of the given kind
// addressed to a peer (broadcast when to is empty).
func (a *Agent) Send(ctx context.Context, kind models.Kind, to string, payload any) error {
	req := models.SubmitRequest{
		SessionID: a.sessionID,
		Kind:      kind,
		From:      a.id,
		To:        to,
	}
	if payload != nil {
		raw, err := models.EncodePayload(payload)
		if err != nil {
			return err
		}
		req.Payload = raw
	}
	_, err := a.client.Submit(ctx, req)
	return err
}

// StartTimer broadcasts the pre-start countdown followed by timer-start.
// Host-only.
func (a *Agent) StartTimer(ctx context.Context) error {
	if !a.isHost {
		return ErrNotHost
	}

	for step := 3; step >= 1; step-- {
		a.timer.Countdown(step)
		if err := a.Send(ctx, models.KindCountdown, "", models.CountdownPayload{Step: step}); err != nil {
			a.log.Warn("countdown broadcast failed", zap.Int("step", step), zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Second):
		}
	}

	a.timer.Start(a.timer.Duration())
	return a.Send(ctx, models.KindTimerStart, "", models.TimerPayload{
		DurationSeconds:  a.timer.Duration(),
		RemainingSeconds: a.timer.Remaining(),
	})
}

// PauseTimer freezes the shared timer. Host-only.
func (a *Agent) PauseTimer(ctx context.Context) error {
	if !a.isHost {
		return ErrNotHost
	}
	a.timer.Pause()
	return a.Send(ctx, models.KindTimerPause, "", models.TimerPayload{
		DurationSeconds:  a.timer.Duration(),
		RemainingSeconds: a.timer.Remaining(),
	})
}

// ResumeTimer continues a paused timer. Host-only.
func (a *Agent) ResumeTimer(ctx context.Context) error {
	if !a.isHost {
		return ErrNotHost
	}
	a.timer.Resume()
	return a.Send(ctx, models.KindTimerResume, "", models.TimerPayload{
		DurationSeconds:  a.timer.Duration(),
		RemainingSeconds: a.timer.Remaining(),
	})
}

// ResetTimer returns the shared timer to idle. Host-only.
func (a *Agent) ResetTimer(ctx context.Context) error {
	if !a.isHost {
		return ErrNotHost
	}
	a.timer.Reset()
	return a.Send(ctx, models.KindTimerReset, "", models.TimerPayload{
		DurationSeconds:  a.timer.Duration(),
		RemainingSeconds: a.timer.Remaining(),
	})
}

// Close announces departure best-effort, stops the poll loop, and closes
// all peer connections. Safe to call more than once.
func (a *Agent) Close() {
	a.closeOnce.Do(func() {
		leaveCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := a.Send(leaveCtx, models.KindLeave, "", nil); err != nil {
			a.log.Debug("leave broadcast failed", zap.Error(err))
		}

		if a.cancel != nil {
			a.cancel()
			<-a.done
		}
		a.peers.Close()
	})
}
