package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Postgres implements Store over a *sql.DB opened with the pgx stdlib driver.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

func (p *Postgres) GetUser(ctx context.Context, id int64) (*User, error) {
	u := &User{}
	query := "SELECT id, username FROM users WHERE id = $1"

	err := p.db.QueryRowContext(ctx, query, id).Scan(&u.ID, &u.Username)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

func (p *Postgres) CreateMessage(ctx context.Context, msg *Message) error {
	query := `
		INSERT INTO messages (sender_id, recipient_id, content, attachment_url, attachment_type)
		VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''))
		RETURNING id, created_at
	`
	err := p.db.QueryRowContext(ctx, query,
		msg.SenderID, msg.RecipientID, msg.Content, msg.Attachment, msg.AttachmentType,
	).Scan(&msg.ID, &msg.CreatedAt)
	if err != nil {
		return fmt.Errorf("create message: %w", err)
	}
	return nil
}

func (p *Postgres) GetHistory(ctx context.Context, a, b int64, limit, offset int) ([]*Message, error) {
	query := `
		SELECT id, sender_id, recipient_id, content,
		       COALESCE(attachment_url, ''), COALESCE(attachment_type, ''),
		       is_read, created_at
		FROM messages
		WHERE (sender_id = $1 AND recipient_id = $2)
		   OR (sender_id = $2 AND recipient_id = $1)
		ORDER BY created_at DESC
		LIMIT $3 OFFSET $4
	`
	rows, err := p.db.QueryContext(ctx, query, a, b, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("get history: %w", err)
	}
	defer rows.Close()

	var messages []*Message
	for rows.Next() {
		msg := &Message{}
		if err := rows.Scan(&msg.ID, &msg.SenderID, &msg.RecipientID, &msg.Content,
			&msg.Attachment, &msg.AttachmentType, &msg.IsRead, &msg.CreatedAt); err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

func (p *Postgres) CreateCall(ctx context.Context, call *Call) error {
	query := `
		INSERT INTO calls (caller_id, callee_id, outcome)
		VALUES ($1, $2, 'pending')
		RETURNING id, created_at
	`
	err := p.db.QueryRowContext(ctx, query, call.CallerID, call.CalleeID).
		Scan(&call.ID, &call.CreatedAt)
	if err != nil {
		return fmt.Errorf("create call: %w", err)
	}
	call.Outcome = CallPending
	return nil
}

func (p *Postgres) GetCall(ctx context.Context, id int64) (*Call, error) {
	c := &Call{}
	query := "SELECT id, caller_id, callee_id, outcome, created_at FROM calls WHERE id = $1"

	err := p.db.QueryRowContext(ctx, query, id).
		Scan(&c.ID, &c.CallerID, &c.CalleeID, &c.Outcome, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get call: %w", err)
	}
	return c, nil
}

func (p *Postgres) UpdateCallOutcome(ctx context.Context, id int64, outcome string) error {
	// The pending guard makes the transition one-shot: a second answer
	// matches zero rows.
	query := "UPDATE calls SET outcome = $1 WHERE id = $2 AND outcome = 'pending'"

	res, err := p.db.ExecContext(ctx, query, outcome, id)
	if err != nil {
		return fmt.Errorf("update call outcome: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) CreateFriendRequest(ctx context.Context, fr *FriendRequest) error {
	query := `
		INSERT INTO friend_requests (requester_id, target_id, status)
		VALUES ($1, $2, 'pending')
		RETURNING id, created_at
	`
	err := p.db.QueryRowContext(ctx, query, fr.RequesterID, fr.TargetID).
		Scan(&fr.ID, &fr.CreatedAt)
	if err != nil {
		return fmt.Errorf("create friend request: %w", err)
	}
	fr.Status = FriendPending
	return nil
}

func (p *Postgres) GetFriendRequest(ctx context.Context, id int64) (*FriendRequest, error) {
	fr := &FriendRequest{}
	query := `
		SELECT id, requester_id, target_id, status, created_at, responded_at
		FROM friend_requests WHERE id = $1
	`
	err := p.db.QueryRowContext(ctx, query, id).
		Scan(&fr.ID, &fr.RequesterID, &fr.TargetID, &fr.Status, &fr.CreatedAt, &fr.RespondedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get friend request: %w", err)
	}
	return fr, nil
}

func (p *Postgres) PendingRequestBetween(ctx context.Context, a, b int64) (bool, error) {
	return p.existsBetween(ctx, a, b, FriendPending)
}

func (p *Postgres) AcceptedRequestBetween(ctx context.Context, a, b int64) (bool, error) {
	return p.existsBetween(ctx, a, b, FriendAccepted)
}

func (p *Postgres) existsBetween(ctx context.Context, a, b int64, status string) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM friend_requests
			WHERE status = $3
			  AND ((requester_id = $1 AND target_id = $2)
			    OR (requester_id = $2 AND target_id = $1))
		)
	`
	var exists bool
	if err := p.db.QueryRowContext(ctx, query, a, b, status).Scan(&exists); err != nil {
		return false, fmt.Errorf("friend request lookup: %w", err)
	}
	return exists, nil
}

func (p *Postgres) UpdateFriendRequestStatus(ctx context.Context, id int64, status string) error {
	query := `
		UPDATE friend_requests
		SET status = $1, responded_at = CURRENT_TIMESTAMP
		WHERE id = $2 AND status = 'pending'
	`
	res, err := p.db.ExecContext(ctx, query, status, id)
	if err != nil {
		return fmt.Errorf("update friend request: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) DeleteFriendRequestsBetween(ctx context.Context, a, b int64) error {
	query := `
		DELETE FROM friend_requests
		WHERE (requester_id = $1 AND target_id = $2)
		   OR (requester_id = $2 AND target_id = $1)
	`
	if _, err := p.db.ExecContext(ctx, query, a, b); err != nil {
		return fmt.Errorf("delete friend requests: %w", err)
	}
	return nil
}
