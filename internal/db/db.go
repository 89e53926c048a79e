package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

type Database struct {
	Conn *sql.DB
}

func NewDatabase(dsn string) (*Database, error) {
	conn, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := conn.PingContext(ctx); err != nil {
		return nil, err
	}
	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(25)
	conn.SetConnMaxLifetime(5 * time.Minute)
	return &Database{Conn: conn}, nil
}

func (d *Database) AutoMigrate() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS users (
            id BIGSERIAL PRIMARY KEY,
            username VARCHAR(50) UNIQUE NOT NULL,
            created_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP
        )`,

		`CREATE TABLE IF NOT EXISTS messages (
            id BIGSERIAL PRIMARY KEY,
            sender_id BIGINT REFERENCES users(id) ON DELETE CASCADE,
            recipient_id BIGINT REFERENCES users(id) ON DELETE CASCADE,
            content TEXT NOT NULL DEFAULT '',
            attachment_url TEXT,
            attachment_type VARCHAR(100),
            is_read BOOLEAN NOT NULL DEFAULT FALSE,
            created_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP
        )`,

		`CREATE TABLE IF NOT EXISTS calls (
            id BIGSERIAL PRIMARY KEY,
            caller_id BIGINT REFERENCES users(id) ON DELETE CASCADE,
            callee_id BIGINT REFERENCES users(id) ON DELETE CASCADE,
            outcome VARCHAR(10) CHECK (outcome IN ('pending', 'accepted', 'rejected')) DEFAULT 'pending',
            created_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP
        )`,

		`CREATE TABLE IF NOT EXISTS friend_requests (
            id BIGSERIAL PRIMARY KEY,
            requester_id BIGINT REFERENCES users(id) ON DELETE CASCADE,
            target_id BIGINT REFERENCES users(id) ON DELETE CASCADE,
            status VARCHAR(10) CHECK (status IN ('pending', 'accepted')) DEFAULT 'pending',
            created_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP,
            responded_at TIMESTAMPTZ
        )`,

		`CREATE UNIQUE INDEX IF NOT EXISTS friend_requests_pending_pair
            ON friend_requests (requester_id, target_id) WHERE status = 'pending'`,
	}

	for _, query := range queries {
		_, err := d.Conn.Exec(query)
		if err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}

	return nil
}
