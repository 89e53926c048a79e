package hub

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"go-comms/internal/auth"
	"go-comms/internal/metrics"
	"go-comms/internal/notify"
	"go-comms/internal/store"
)

// How long one command may spend in collaborator calls before it fails.
const handlerTimeout = 10 * time.Second

// Router parses inbound envelopes and dispatches them to the handler for
// their action. Handlers consult the collaborators and hand back deliveries
// for the fan-out engine; nothing is broadcast unless its durable record was
// written first.
type Router struct {
	hub    *Hub
	store  store.Store
	notify notify.Dispatcher
	logger zerolog.Logger
}

func NewRouter(h *Hub, st store.Store, nd notify.Dispatcher, logger zerolog.Logger) *Router {
	return &Router{
		hub:    h,
		store:  st,
		notify: nd,
		logger: logger.With().Str("component", "router").Logger(),
	}
}

// Dispatch handles one raw inbound envelope from c. A malformed or unknown
// envelope is answered with an error event on c only; the connection stays
// open and the hub is unaffected.
func (rt *Router) Dispatch(ctx context.Context, c *Client, raw []byte) {
	var cmd command
	if err := json.Unmarshal(raw, &cmd); err != nil {
		rt.fail(c, "", protocolErr("malformed envelope"))
		return
	}

	ctx, cancel := context.WithTimeout(ctx, handlerTimeout)
	defer cancel()

	// Unknown actions share one metric label; client input must not mint
	// label values.
	label := cmd.Action
	if !knownAction(label) {
		label = "unknown"
	}
	metrics.CommandsDispatched.WithLabelValues(label).Inc()

	var (
		deliveries []Delivery
		err        error
	)
	switch cmd.Action {
	case ActionSendMessage:
		var p sendMessagePayload
		if err = decode(raw, &p); err == nil {
			deliveries, err = rt.handleSendMessage(ctx, c.identity, p)
		}
	case ActionCallUser:
		var p callUserPayload
		if err = decode(raw, &p); err == nil {
			deliveries, err = rt.handleCallUser(ctx, c.identity, p)
		}
	case ActionAnswerCall:
		var p answerCallPayload
		if err = decode(raw, &p); err == nil {
			deliveries, err = rt.handleAnswerCall(ctx, c.identity, p)
		}
	case ActionWebRTCOffer, ActionWebRTCAnswer, ActionWebRTCICECandidate:
		var p signalPayload
		if err = decode(raw, &p); err == nil {
			deliveries, err = rt.handleSignal(c.identity, cmd.Action, p)
		}
	case ActionFriendRequestSend:
		var p friendRequestSendPayload
		if err = decode(raw, &p); err == nil {
			deliveries, err = rt.handleFriendRequestSend(ctx, c.identity, p)
		}
	case ActionFriendRequestAccept:
		var p friendRequestAcceptPayload
		if err = decode(raw, &p); err == nil {
			deliveries, err = rt.handleFriendRequestAccept(ctx, c.identity, p)
		}
	case ActionFriendDelete:
		var p friendDeletePayload
		if err = decode(raw, &p); err == nil {
			deliveries, err = rt.handleFriendDelete(ctx, c.identity, p)
		}
	default:
		err = protocolErr("unknown action %q", cmd.Action)
	}

	if err != nil {
		rt.fail(c, cmd.Action, err)
		return
	}

	for _, d := range deliveries {
		rt.hub.Broadcast(d.Target, d.Event)
	}
}

func knownAction(action string) bool {
	switch action {
	case ActionSendMessage, ActionCallUser, ActionAnswerCall,
		ActionWebRTCOffer, ActionWebRTCAnswer, ActionWebRTCICECandidate,
		ActionFriendRequestSend, ActionFriendRequestAccept, ActionFriendDelete:
		return true
	}
	return false
}

func decode(raw []byte, payload any) error {
	if err := json.Unmarshal(raw, payload); err != nil {
		return protocolErr("malformed payload")
	}
	return nil
}

// fail answers the originating connection with an error event and logs the
// failure. The command is dropped; nothing is broadcast.
func (rt *Router) fail(c *Client, action string, err error) {
	var herr *Error
	if !errors.As(err, &herr) {
		herr = collaboratorErr("internal error", err)
	}

	metrics.CommandErrors.WithLabelValues(string(herr.Kind)).Inc()
	rt.logger.Warn().
		Err(err).
		Str("action", action).
		Int64("user_id", c.identity.ID).
		Msg("command failed")

	data, merr := json.Marshal(ErrorEvent{
		Type:   EventError,
		Action: action,
		Kind:   herr.Kind,
		Error:  herr.Message,
	})
	if merr != nil {
		return
	}
	c.enqueue(data)
}

func (rt *Router) handleSendMessage(ctx context.Context, src auth.Identity, p sendMessagePayload) ([]Delivery, error) {
	if p.To == 0 {
		return nil, validationErr("recipient is required")
	}
	if p.To == src.ID {
		return nil, validationErr("cannot message yourself")
	}
	if p.Message == "" && p.File == "" {
		return nil, validationErr("message text or a file is required")
	}

	if _, err := rt.store.GetUser(ctx, p.To); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, validationErr("unknown recipient")
		}
		return nil, collaboratorErr("recipient lookup failed", err)
	}

	msg := &store.Message{
		SenderID:       src.ID,
		RecipientID:    p.To,
		Content:        p.Message,
		Attachment:     p.File,
		AttachmentType: p.FileType,
	}
	if err := rt.store.CreateMessage(ctx, msg); err != nil {
		return nil, collaboratorErr("message not persisted", err)
	}

	// Best effort; the dispatcher swallows failures.
	rt.notify.Publish(ctx, p.To, map[string]any{
		"type":  EventChatMessage,
		"title": src.Username,
		"body":  preview(p.Message, 80),
		"from":  src.ID,
	})

	return []Delivery{{
		Target: p.To,
		Event: ChatMessageEvent{
			Type:         EventChatMessage,
			MessageID:    msg.ID,
			From:         src.ID,
			FromUsername: src.Username,
			Content:      msg.Content,
			File:         msg.Attachment,
			FileType:     msg.AttachmentType,
			Timestamp:    msg.CreatedAt,
		},
	}}, nil
}

func (rt *Router) handleCallUser(ctx context.Context, src auth.Identity, p callUserPayload) ([]Delivery, error) {
	if p.To == 0 {
		return nil, validationErr("callee is required")
	}
	if p.To == src.ID {
		return nil, validationErr("cannot call yourself")
	}
	if _, err := rt.store.GetUser(ctx, p.To); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, validationErr("unknown callee")
		}
		return nil, collaboratorErr("callee lookup failed", err)
	}

	call := &store.Call{CallerID: src.ID, CalleeID: p.To}
	if err := rt.store.CreateCall(ctx, call); err != nil {
		return nil, collaboratorErr("call not persisted", err)
	}

	rt.notify.Publish(ctx, p.To, map[string]any{
		"type":    EventCallIncoming,
		"title":   src.Username,
		"call_id": call.ID,
		"from":    src.ID,
	})

	return []Delivery{{
		Target: p.To,
		Event: CallIncomingEvent{
			Type:           EventCallIncoming,
			CallID:         call.ID,
			Caller:         src.ID,
			CallerUsername: src.Username,
		},
	}}, nil
}

func (rt *Router) handleAnswerCall(ctx context.Context, src auth.Identity, p answerCallPayload) ([]Delivery, error) {
	call, err := rt.store.GetCall(ctx, p.CallID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, notFoundErr("no pending call %d", p.CallID)
		}
		return nil, collaboratorErr("call lookup failed", err)
	}
	// Only the callee may answer, and only while the call is pending.
	if call.CalleeID != src.ID || call.Outcome != store.CallPending {
		return nil, notFoundErr("no pending call %d", p.CallID)
	}

	outcome := store.CallRejected
	if p.Accepted {
		outcome = store.CallAccepted
	}
	if err := rt.store.UpdateCallOutcome(ctx, call.ID, outcome); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			// Lost the race with another answer.
			return nil, notFoundErr("no pending call %d", p.CallID)
		}
		return nil, collaboratorErr("call outcome not persisted", err)
	}

	return []Delivery{{
		Target: call.CallerID,
		Event: CallAnswerEvent{
			Type:     EventCallAnswer,
			CallID:   call.ID,
			Accepted: p.Accepted,
			Callee:   src.ID,
		},
	}}, nil
}

// handleSignal relays call-setup payloads verbatim. No persistence, no
// interpretation; the action name maps straight onto the event type.
func (rt *Router) handleSignal(src auth.Identity, action string, p signalPayload) ([]Delivery, error) {
	if p.To == 0 {
		return nil, validationErr("target is required")
	}
	switch action {
	case ActionWebRTCOffer, ActionWebRTCAnswer:
		if len(p.SDP) == 0 {
			return nil, validationErr("sdp is required")
		}
	case ActionWebRTCICECandidate:
		if len(p.Candidate) == 0 {
			return nil, validationErr("candidate is required")
		}
	}

	return []Delivery{{
		Target: p.To,
		Event: SignalEvent{
			Type:      action,
			From:      src.ID,
			SDP:       p.SDP,
			Candidate: p.Candidate,
		},
	}}, nil
}

func (rt *Router) handleFriendRequestSend(ctx context.Context, src auth.Identity, p friendRequestSendPayload) ([]Delivery, error) {
	if p.To == 0 {
		return nil, validationErr("target is required")
	}
	if p.To == src.ID {
		return nil, validationErr("cannot befriend yourself")
	}
	if _, err := rt.store.GetUser(ctx, p.To); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, validationErr("unknown user")
		}
		return nil, collaboratorErr("user lookup failed", err)
	}

	accepted, err := rt.store.AcceptedRequestBetween(ctx, src.ID, p.To)
	if err != nil {
		return nil, collaboratorErr("friendship lookup failed", err)
	}
	if accepted {
		return nil, validationErr("already friends")
	}

	// One pending request per pair, either direction: if they already asked
	// us, that request has to be answered, not shadowed.
	pending, err := rt.store.PendingRequestBetween(ctx, src.ID, p.To)
	if err != nil {
		return nil, collaboratorErr("friend request lookup failed", err)
	}
	if pending {
		return nil, validationErr("a pending request already exists")
	}

	fr := &store.FriendRequest{RequesterID: src.ID, TargetID: p.To}
	if err := rt.store.CreateFriendRequest(ctx, fr); err != nil {
		return nil, collaboratorErr("friend request not persisted", err)
	}

	return []Delivery{{
		Target: p.To,
		Event: FriendRequestEvent{
			Type:         EventFriendRequest,
			RequestID:    fr.ID,
			From:         src.ID,
			FromUsername: src.Username,
		},
	}}, nil
}

func (rt *Router) handleFriendRequestAccept(ctx context.Context, src auth.Identity, p friendRequestAcceptPayload) ([]Delivery, error) {
	fr, err := rt.store.GetFriendRequest(ctx, p.ID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, notFoundErr("no pending friend request %d", p.ID)
		}
		return nil, collaboratorErr("friend request lookup failed", err)
	}
	// Only the addressee may accept.
	if fr.TargetID != src.ID || fr.Status != store.FriendPending {
		return nil, notFoundErr("no pending friend request %d", p.ID)
	}

	if err := rt.store.UpdateFriendRequestStatus(ctx, fr.ID, store.FriendAccepted); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, notFoundErr("no pending friend request %d", p.ID)
		}
		return nil, collaboratorErr("friend request not persisted", err)
	}

	return []Delivery{{
		Target: fr.RequesterID,
		Event: FriendAcceptEvent{
			Type:         EventFriendAccept,
			RequestID:    fr.ID,
			From:         src.ID,
			FromUsername: src.Username,
		},
	}}, nil
}

func (rt *Router) handleFriendDelete(ctx context.Context, src auth.Identity, p friendDeletePayload) ([]Delivery, error) {
	if p.FriendID == 0 {
		return nil, validationErr("friendId is required")
	}
	if p.FriendID == src.ID {
		return nil, validationErr("cannot unfriend yourself")
	}

	if err := rt.store.DeleteFriendRequestsBetween(ctx, src.ID, p.FriendID); err != nil {
		return nil, collaboratorErr("friendship not deleted", err)
	}

	return []Delivery{{
		Target: p.FriendID,
		Event: FriendRemoveEvent{
			Type: EventFriendRemove,
			From: src.ID,
		},
	}}, nil
}

// preview truncates s to at most n runes for notification bodies.
func preview(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "…"
}
