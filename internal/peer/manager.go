// Package peer wraps one WebRTC peer connection per remote participant,
// translating between pion callbacks and signaling relay messages.
package peer

import (
	"context"
	"fmt"
	"sync"

	"github.com/pion/webrtc/v4"
	"go.uber.org/zap"

	"github.com/mindhaven/signaling/internal/models"
)

// Sender submits a signaling message addressed to a peer (or broadcast
// when to is empty). Implemented by the agent on top of the HTTP client.
type Sender interface {
	Send(ctx context.Context, kind models.Kind, to string, payload any) error
}

// Manager owns the peer connections of one participant. Each remote
// participant gets exactly one PeerConnection; negotiation failures close
// that peer only and never affect the others.
type Manager struct {
	sender      Sender
	iceServers  []string
	localTracks []webrtc.TrackLocal
	log         *zap.Logger

	// onTrack receives remote media as peers connect. Optional.
	onTrack func(peerID string, track *webrtc.TrackRemote)
	// onStateChange observes per-peer connection state. Optional.
	onStateChange func(peerID string, state webrtc.PeerConnectionState)

	mu    sync.Mutex
	peers map[string]*remotePeer
}

// remotePeer tracks negotiation state for one remote participant.
// Candidates that trickle in before the remote description is set are
// buffered and applied once it lands.
type remotePeer struct {
	pc        *webrtc.PeerConnection
	remoteSet bool
	pending   []webrtc.ICECandidateInit
}

// NewManager creates a manager. localTracks are attached to every peer
// connection; pass none for a receive-only participant.
func NewManager(sender Sender, iceServers []string, localTracks []webrtc.TrackLocal, log *zap.Logger) *Manager {
	return &Manager{
		sender:      sender,
		iceServers:  iceServers,
		localTracks: localTracks,
		log:         log,
		peers:       make(map[string]*remotePeer),
	}
}

// OnTrack registers the remote media callback. Must be called before any
// negotiation starts.
func (m *Manager) OnTrack(fn func(peerID string, track *webrtc.TrackRemote)) {
	m.onTrack = fn
}

// OnStateChange registers the per-peer connection state callback.
func (m *Manager) OnStateChange(fn func(peerID string, state webrtc.PeerConnectionState)) {
	m.onStateChange = fn
}

// Connect initiates negotiation with a newly observed peer: creates the
// connection, produces an offer, and submits it addressed to the peer.
func (m *Manager) Connect(ctx context.Context, peerID string) error {
	m.mu.Lock()
	if _, exists := m.peers[peerID]; exists {
		m.mu.Unlock()
		return nil
	}
	rp, err := m.newRemotePeer(ctx, peerID)
	if err != nil {
		m.mu.Unlock()
		return err
	}
	m.peers[peerID] = rp
	m.mu.Unlock()

	pc := rp.pc

	// A data channel guarantees the offer carries at least one media
	// section even for track-less participants.
	if _, err := pc.CreateDataChannel("presence", nil); err != nil {
		m.dropPeer(peerID)
		return fmt.Errorf("creating data channel: %w", err)
	}

	offer, err := pc.CreateOffer(nil)
	if err != nil {
		m.dropPeer(peerID)
		return fmt.Errorf("creating offer: %w", err)
	}
	if err := pc.SetLocalDescription(offer); err != nil {
		m.dropPeer(peerID)
		return fmt.Errorf("setting local description: %w", err)
	}

	if err := m.sender.Send(ctx, models.KindOffer, peerID, models.OfferPayload{SDP: offer.SDP}); err != nil {
		m.dropPeer(peerID)
		return fmt.Errorf("sending offer to %s: %w", peerID, err)
	}
	return nil
}

// HandleOffer answers an inbound offer, creating the peer connection if
// this side has not seen the sender before.
func (m *Manager) HandleOffer(ctx context.Context, from string, payload models.OfferPayload) error {
	m.mu.Lock()
	rp, exists := m.peers[from]
	if !exists {
		var err error
		rp, err = m.newRemotePeer(ctx, from)
		if err != nil {
			m.mu.Unlock()
			return err
		}
		m.peers[from] = rp
	}
	m.mu.Unlock()

	pc := rp.pc
	remote := webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: payload.SDP}
	if err := pc.SetRemoteDescription(remote); err != nil {
		m.dropPeer(from)
		return fmt.Errorf("setting remote offer from %s: %w", from, err)
	}
	m.flushCandidates(from, rp)

	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		m.dropPeer(from)
		return fmt.Errorf("creating answer: %w", err)
	}
	if err := pc.SetLocalDescription(answer); err != nil {
		m.dropPeer(from)
		return fmt.Errorf("setting local description: %w", err)
	}

	if err := m.sender.Send(ctx, models.KindAnswer, from, models.AnswerPayload{SDP: answer.SDP}); err != nil {
		m.dropPeer(from)
		return fmt.Errorf("sending answer to %s: %w", from, err)
	}
	return nil
}

// HandleAnswer completes the exchange this side initiated.
func (m *Manager) HandleAnswer(from string, payload models.AnswerPayload) error {
	m.mu.Lock()
	rp, exists := m.peers[from]
	m.mu.Unlock()
	if !exists {
		return fmt.Errorf("answer from unknown peer %s", from)
	}

	remote := webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: payload.SDP}
	if err := rp.pc.SetRemoteDescription(remote); err != nil {
		m.dropPeer(from)
		return fmt.Errorf("setting remote answer from %s: %w", from, err)
	}
	m.flushCandidates(from, rp)
	return nil
}

// HandleCandidate applies a trickled remote candidate, buffering it when
// the remote description has not been set yet.
func (m *Manager) HandleCandidate(from string, payload models.ICECandidatePayload) error {
	init := webrtc.ICECandidateInit{
		Candidate:     payload.Candidate,
		SDPMid:        payload.SDPMid,
		SDPMLineIndex: payload.SDPMLineIndex,
	}

	m.mu.Lock()
	rp, exists := m.peers[from]
	if !exists {
		m.mu.Unlock()
		return fmt.Errorf("candidate from unknown peer %s", from)
	}
	if !rp.remoteSet {
		rp.pending = append(rp.pending, init)
		m.mu.Unlock()
		return nil
	}
	m.mu.Unlock()

	if err := rp.pc.AddICECandidate(init); err != nil {
		return fmt.Errorf("adding candidate from %s: %w", from, err)
	}
	return nil
}

// ClosePeer tears down the connection to one participant.
func (m *Manager) ClosePeer(peerID string) {
	m.dropPeer(peerID)
}

// Close tears down every peer connection.
func (m *Manager) Close() {
	m.mu.Lock()
	peers := m.peers
	m.peers = make(map[string]*remotePeer)
	m.mu.Unlock()

	for peerID, rp := range peers {
		if err := rp.pc.Close(); err != nil {
			m.log.Warn("closing peer connection", zap.String("peer", peerID), zap.Error(err))
		}
	}
}

// Connected reports whether a peer connection exists for the participant.
func (m *Manager) Connected(peerID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.peers[peerID]
	return ok
}

// newRemotePeer builds a PeerConnection with local tracks attached and
// trickle ICE wired to the signaling sender. Caller holds m.mu.
func (m *Manager) newRemotePeer(ctx context.Context, peerID string) (*remotePeer, error) {
	cfg := webrtc.Configuration{}
	if len(m.iceServers) > 0 {
		cfg.ICEServers = []webrtc.ICEServer{{URLs: m.iceServers}}
	}

	pc, err := webrtc.NewPeerConnection(cfg)
	if err != nil {
		return nil, fmt.Errorf("creating peer connection: %w", err)
	}

	for _, track := range m.localTracks {
		if _, err := pc.AddTrack(track); err != nil {
			pc.Close()
			return nil, fmt.Errorf("attaching local track: %w", err)
		}
	}

	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return // gathering finished
		}
		init := c.ToJSON()
		payload := models.ICECandidatePayload{
			Candidate:     init.Candidate,
			SDPMid:        init.SDPMid,
			SDPMLineIndex: init.SDPMLineIndex,
		}
		if err := m.sender.Send(ctx, models.KindICECandidate, peerID, payload); err != nil {
			m.log.Warn("sending ICE candidate", zap.String("peer", peerID), zap.Error(err))
		}
	})

	pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		if m.onTrack != nil {
			m.onTrack(peerID, track)
		}
	})

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		m.log.Debug("peer connection state",
			zap.String("peer", peerID), zap.String("state", state.String()))
		if m.onStateChange != nil {
			m.onStateChange(peerID, state)
		}
	})

	return &remotePeer{pc: pc}, nil
}

// flushCandidates applies candidates buffered before the remote
// description was available.
func (m *Manager) flushCandidates(peerID string, rp *remotePeer) {
	m.mu.Lock()
	rp.remoteSet = true
	pending := rp.pending
	rp.pending = nil
	m.mu.Unlock()

	for _, init := range pending {
		if err := rp.pc.AddICECandidate(init); err != nil {
			m.log.Warn("applying buffered candidate", zap.String("peer", peerID), zap.Error(err))
		}
	}
}

// dropPeer removes and closes one peer connection.
func (m *Manager) dropPeer(peerID string) {
	m.mu.Lock()
	rp, ok := m.peers[peerID]
	delete(m.peers, peerID)
	m.mu.Unlock()

	if ok {
		rp.pc.Close()
	}
}
