package hub

import (
	"encoding/json"
	"time"
)

// Inbound actions. The set is closed; Dispatch switches over it exhaustively
// so a new action is a compile-time-visible addition.
const (
	ActionSendMessage         = "send_message"
	ActionCallUser            = "call_user"
	ActionAnswerCall          = "answer_call"
	ActionWebRTCOffer         = "webrtc_offer"
	ActionWebRTCAnswer        = "webrtc_answer"
	ActionWebRTCICECandidate  = "webrtc_ice_candidate"
	ActionFriendRequestSend   = "friend_request_send"
	ActionFriendRequestAccept = "friend_request_accept"
	ActionFriendDelete        = "friend_delete"
)

// Outbound event types.
const (
	EventChatMessage        = "chat_message"
	EventCallIncoming       = "call_incoming"
	EventCallAnswer         = "call_answer"
	EventWebRTCOffer        = "webrtc_offer"
	EventWebRTCAnswer       = "webrtc_answer"
	EventWebRTCICECandidate = "webrtc_ice_candidate"
	EventFriendRequest      = "friend_request"
	EventFriendAccept       = "friend_accept"
	EventFriendRemove       = "friend_remove"
	EventError              = "error"
)

// Event is an outbound envelope. EventType mirrors the "type" field on the
// wire and labels the broadcast metric.
type Event interface {
	EventType() string
}

// Delivery pairs an event with the identity it is addressed to.
type Delivery struct {
	Target int64
	Event  Event
}

// command is the envelope header; action-specific fields sit beside it at
// the top level and are decoded per action.
type command struct {
	Action string `json:"action"`
}

type sendMessagePayload struct {
	To       int64  `json:"to"`
	Message  string `json:"message"`
	File     string `json:"file"` // base64 data URI, opaque to the hub
	FileType string `json:"file_type"`
}

type callUserPayload struct {
	To int64 `json:"to"`
}

type answerCallPayload struct {
	CallID   int64 `json:"call_id"`
	Accepted bool  `json:"accepted"`
}

type signalPayload struct {
	To        int64           `json:"to"`
	SDP       json.RawMessage `json:"sdp"`
	Candidate json.RawMessage `json:"candidate"`
}

type friendRequestSendPayload struct {
	To int64 `json:"to"`
}

type friendRequestAcceptPayload struct {
	ID int64 `json:"id"`
}

type friendDeletePayload struct {
	FriendID int64 `json:"friendId"`
}

type ChatMessageEvent struct {
	Type         string    `json:"type"`
	MessageID    int64     `json:"message_id"`
	From         int64     `json:"from"`
	FromUsername string    `json:"from_username"`
	Content      string    `json:"content"`
	File         string    `json:"file,omitempty"`
	FileType     string    `json:"file_type,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

func (e ChatMessageEvent) EventType() string { return e.Type }

type CallIncomingEvent struct {
	Type           string `json:"type"`
	CallID         int64  `json:"call_id"`
	Caller         int64  `json:"caller"`
	CallerUsername string `json:"caller_username"`
}

func (e CallIncomingEvent) EventType() string { return e.Type }

type CallAnswerEvent struct {
	Type     string `json:"type"`
	CallID   int64  `json:"call_id"`
	Accepted bool   `json:"accepted"`
	Callee   int64  `json:"callee"`
}

func (e CallAnswerEvent) EventType() string { return e.Type }

// SignalEvent relays an SDP offer/answer or an ICE candidate. The payload
// bytes pass through untouched; the hub does not interpret this channel.
type SignalEvent struct {
	Type      string          `json:"type"`
	From      int64           `json:"from"`
	SDP       json.RawMessage `json:"sdp,omitempty"`
	Candidate json.RawMessage `json:"candidate,omitempty"`
}

func (e SignalEvent) EventType() string { return e.Type }

type FriendRequestEvent struct {
	Type         string `json:"type"`
	RequestID    int64  `json:"request_id"`
	From         int64  `json:"from"`
	FromUsername string `json:"from_username"`
}

func (e FriendRequestEvent) EventType() string { return e.Type }

type FriendAcceptEvent struct {
	Type         string `json:"type"`
	RequestID    int64  `json:"request_id"`
	From         int64  `json:"from"`
	FromUsername string `json:"from_username"`
}

func (e FriendAcceptEvent) EventType() string { return e.Type }

type FriendRemoveEvent struct {
	Type string `json:"type"`
	From int64  `json:"from"`
}

func (e FriendRemoveEvent) EventType() string { return e.Type }

// ErrorEvent is echoed to the originating connection only; it is never
// broadcast.
type ErrorEvent struct {
	Type   string    `json:"type"`
	Action string    `json:"action,omitempty"`
	Kind   ErrorKind `json:"kind"`
	Error  string    `json:"error"`
}

func (e ErrorEvent) EventType() string { return e.Type }
