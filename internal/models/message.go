package models

import "encoding/json"

// Kind represents the type of a signaling message
type Kind string

const (
	KindOffer         Kind = "offer"
	KindAnswer        Kind = "answer"
	KindICECandidate  Kind = "ice-candidate"
	KindJoin          Kind = "join"
	KindLeave         Kind = "leave"
	KindHeartbeat     Kind = "heartbeat"
	KindTimerStart    Kind = "timer-start"
	KindTimerPause    Kind = "timer-pause"
	KindTimerResume   Kind = "timer-resume"
	KindTimerReset    Kind = "timer-reset"
	KindCountdown     Kind = "countdown"
	KindCreateSession Kind = "create-session"
)

// Valid reports whether k is a known message kind.
func (k Kind) Valid() bool {
	switch k {
	case KindOffer, KindAnswer, KindICECandidate, KindJoin, KindLeave,
		KindHeartbeat, KindTimerStart, KindTimerPause, KindTimerResume,
		KindTimerReset, KindCountdown, KindCreateSession:
		return true
	}
	return false
}

// SignalMessage is the envelope relayed between participants of a live
// session. Messages are immutable once stored; ReceivedAt is assigned by
// the server and doubles as the polling watermark and the expiry key.
type SignalMessage struct {
	Kind       Kind            `json:"kind"`
	SessionID  string          `json:"sessionId"`
	From       string          `json:"from"`
	To         string          `json:"to,omitempty"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	ReceivedAt int64           `json:"receivedAt"`
}

// Broadcast reports whether the message is addressed to every participant
// in the session except the sender.
func (m SignalMessage) Broadcast() bool {
	return m.To == ""
}
