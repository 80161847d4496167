package orch

import (
	"encoding/json"

	"github.com/pion/webrtc/v4"

	"github.com/dkeye/Buzzline/internal/domain"
)

// Message types of the signaling namespace.
const (
	TypeJoinRoom     = "join-room"
	TypeLeaveRoom    = "leave-room"
	TypeRoomJoined   = "room-joined"
	TypePeerJoined   = "peer-joined"
	TypePeerLeft     = "peer-left"
	TypeOffer        = "offer"
	TypeAnswer       = "answer"
	TypeICECandidate = "ice-candidate"
	TypeError        = "error"
	TypePing         = "ping"
	TypePong         = "pong"
)

type JoinRequest struct {
	RoomID      domain.RoomID `json:"roomId"`
	Token       string        `json:"token"`
	DisplayName string        `json:"displayName,omitempty"`
}

// RelayRequest carries an opaque negotiation payload; only TargetPeerID is read.
type RelayRequest struct {
	TargetPeerID domain.PeerID   `json:"targetPeerId"`
	SDP          json.RawMessage `json:"sdp,omitempty"`
	Candidate    json.RawMessage `json:"candidate,omitempty"`
}

type roomJoinedMsg struct {
	Type       string             `json:"type"`
	RoomID     domain.RoomID      `json:"roomId"`
	Peers      []domain.Peer      `json:"peers"`
	ICEServers []webrtc.ICEServer `json:"iceServers,omitempty"`
}

type peerJoinedMsg struct {
	Type        string        `json:"type"`
	PeerID      domain.PeerID `json:"peerId"`
	DisplayName string        `json:"displayName,omitempty"`
}

type peerLeftMsg struct {
	Type   string        `json:"type"`
	PeerID domain.PeerID `json:"peerId"`
}

type relayMsg struct {
	Type      string          `json:"type"`
	PeerID    domain.PeerID   `json:"peerId"`
	SDP       json.RawMessage `json:"sdp,omitempty"`
	Candidate json.RawMessage `json:"candidate,omitempty"`
}

type errorMsg struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ErrorFrame encodes an error event for a connection.
func ErrorFrame(code, message string) []byte {
	b, _ := json.Marshal(errorMsg{Type: TypeError, Code: code, Message: message})
	return b
}
