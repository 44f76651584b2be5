package peer

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pion/webrtc/v4"
	"go.uber.org/zap"

	"github.com/mindhaven/signaling/internal/models"
)

// pipe delivers signaling messages between two managers in-process,
// standing in for the HTTP relay. Candidates may trickle before the
// receiving side has seen the offer, so delivery retries briefly.
type pipe struct {
	mu     sync.Mutex
	selfID string
	remote *Manager
}

func (p *pipe) connect(selfID string, remote *Manager) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.selfID = selfID
	p.remote = remote
}

func (p *pipe) Send(ctx context.Context, kind models.Kind, to string, payload any) error {
	p.mu.Lock()
	selfID, remote := p.selfID, p.remote
	p.mu.Unlock()

	switch kind {
	case models.KindOffer:
		return remote.HandleOffer(ctx, selfID, payload.(models.OfferPayload))
	case models.KindAnswer:
		return remote.HandleAnswer(selfID, payload.(models.AnswerPayload))
	case models.KindICECandidate:
		go func() {
			deadline := time.Now().Add(2 * time.Second)
			for time.Now().Before(deadline) {
				if err := remote.HandleCandidate(selfID, payload.(models.ICECandidatePayload)); err == nil {
					return
				}
				time.Sleep(20 * time.Millisecond)
			}
		}()
		return nil
	}
	return nil
}

func TestOfferAnswerNegotiation(t *testing.T) {
	log := zap.NewNop()
	pipeA, pipeB := &pipe{}, &pipe{}

	a := NewManager(pipeA, nil, nil, log)
	b := NewManager(pipeB, nil, nil, log)
	pipeA.connect("a", b)
	pipeB.connect("b", a)
	defer a.Close()
	defer b.Close()

	connected := make(chan string, 4)
	watch := func(side string, m *Manager) {
		m.OnStateChange(func(peerID string, state webrtc.PeerConnectionState) {
			if state == webrtc.PeerConnectionStateConnected {
				connected <- side
			}
		})
	}
	watch("a", a)
	watch("b", b)

	if err := a.Connect(t.Context(), "b"); err != nil {
		t.Fatalf("initiating negotiation: %v", err)
	}

	if !a.Connected("b") || !b.Connected("a") {
		t.Fatal("peer connections not registered on both sides")
	}

	seen := map[string]bool{}
	timeout := time.After(15 * time.Second)
	for len(seen) < 2 {
		select {
		case side := <-connected:
			seen[side] = true
		case <-timeout:
			t.Fatalf("negotiation did not complete, connected sides: %v", seen)
		}
	}
}

func TestConnectIsIdempotent(t *testing.T) {
	log := zap.NewNop()
	pipeA, pipeB := &pipe{}, &pipe{}

	a := NewManager(pipeA, nil, nil, log)
	b := NewManager(pipeB, nil, nil, log)
	pipeA.connect("a", b)
	pipeB.connect("b", a)
	defer a.Close()
	defer b.Close()

	ctx := t.Context()
	if err := a.Connect(ctx, "b"); err != nil {
		t.Fatalf("first connect: %v", err)
	}
	// A second join observation for the same peer must not renegotiate.
	if err := a.Connect(ctx, "b"); err != nil {
		t.Fatalf("repeat connect: %v", err)
	}
}

func TestHandleAnswerFromUnknownPeer(t *testing.T) {
	m := NewManager(&pipe{}, nil, nil, zap.NewNop())
	defer m.Close()

	if err := m.HandleAnswer("stranger", models.AnswerPayload{SDP: "v=0"}); err == nil {
		t.Error("expected an error for an answer from an unknown peer")
	}
	if err := m.HandleCandidate("stranger", models.ICECandidatePayload{Candidate: "candidate:1"}); err == nil {
		t.Error("expected an error for a candidate from an unknown peer")
	}
}

func TestClosePeerIsolatesFailure(t *testing.T) {
	log := zap.NewNop()
	pipeA, pipeB := &pipe{}, &pipe{}

	a := NewManager(pipeA, nil, nil, log)
	b := NewManager(pipeB, nil, nil, log)
	pipeA.connect("a", b)
	pipeB.connect("b", a)
	defer a.Close()
	defer b.Close()

	ctx := t.Context()
	if err := a.Connect(ctx, "b"); err != nil {
		t.Fatalf("connect: %v", err)
	}

	a.ClosePeer("b")
	if a.Connected("b") {
		t.Error("peer still tracked after ClosePeer")
	}
	// Closing an unknown peer must be a no-op.
	a.ClosePeer("never-seen")
}
