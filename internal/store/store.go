package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a row does not exist or a guarded update
// matched nothing (for example answering a call that is no longer pending).
var ErrNotFound = errors.New("not found")

// Call outcomes. A call starts pending and transitions exactly once.
const (
	CallPending  = "pending"
	CallAccepted = "accepted"
	CallRejected = "rejected"
)

// Friend request statuses. Rejection is modeled as deletion, so there is
// no terminal "rejected" status.
const (
	FriendPending  = "pending"
	FriendAccepted = "accepted"
)

type User struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
}

type Message struct {
	ID             int64     `json:"id"`
	SenderID       int64     `json:"sender_id"`
	RecipientID    int64     `json:"recipient_id"`
	Content        string    `json:"content"`
	Attachment     string    `json:"attachment,omitempty"` // opaque reference, not interpreted here
	AttachmentType string    `json:"attachment_type,omitempty"`
	IsRead         bool      `json:"is_read"`
	CreatedAt      time.Time `json:"created_at"`
}

type Call struct {
	ID        int64     `json:"id"`
	CallerID  int64     `json:"caller_id"`
	CalleeID  int64     `json:"callee_id"`
	Outcome   string    `json:"outcome"`
	CreatedAt time.Time `json:"created_at"`
}

type FriendRequest struct {
	ID          int64      `json:"id"`
	RequesterID int64      `json:"requester_id"`
	TargetID    int64      `json:"target_id"`
	Status      string     `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	RespondedAt *time.Time `json:"responded_at,omitempty"`
}

// Store is the durable record collaborator. The hub holds no authoritative
// copy of anything behind this interface.
type Store interface {
	GetUser(ctx context.Context, id int64) (*User, error)

	// CreateMessage persists msg and fills ID and CreatedAt.
	CreateMessage(ctx context.Context, msg *Message) error
	GetHistory(ctx context.Context, a, b int64, limit, offset int) ([]*Message, error)

	// CreateCall persists call with a pending outcome and fills ID and CreatedAt.
	CreateCall(ctx context.Context, call *Call) error
	GetCall(ctx context.Context, id int64) (*Call, error)
	// UpdateCallOutcome transitions a pending call to outcome. It returns
	// ErrNotFound if the call does not exist or is no longer pending.
	UpdateCallOutcome(ctx context.Context, id int64, outcome string) error

	CreateFriendRequest(ctx context.Context, fr *FriendRequest) error
	GetFriendRequest(ctx context.Context, id int64) (*FriendRequest, error)
	// PendingRequestBetween reports whether a pending request exists between
	// a and b in either direction.
	PendingRequestBetween(ctx context.Context, a, b int64) (bool, error)
	// AcceptedRequestBetween reports whether a and b are already friends.
	AcceptedRequestBetween(ctx context.Context, a, b int64) (bool, error)
	// UpdateFriendRequestStatus transitions a pending request to status and
	// stamps responded_at. It returns ErrNotFound if the request does not
	// exist or is no longer pending.
	UpdateFriendRequestStatus(ctx context.Context, id int64, status string) error
	// DeleteFriendRequestsBetween removes every request between a and b in
	// either direction, pending or accepted. Deleting nothing is not an error.
	DeleteFriendRequestsBetween(ctx context.Context, a, b int64) error
}
