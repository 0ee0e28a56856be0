package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vango-go/zenith/pkg/core/types"
)

// ChatMemory keeps the message history of agent chat sessions.
type ChatMemory interface {
	Load(ctx context.Context, uid, sessionID string) ([]types.ChatMessage, error)
	Append(ctx context.Context, uid, sessionID string, msgs ...types.ChatMessage) error
}

// PostgresChatMemory stores sessions as JSONB rows in chat_sessions.
type PostgresChatMemory struct {
	pool *pgxpool.Pool
}

// NewPostgresChatMemory returns a ChatMemory on pool.
func NewPostgresChatMemory(pool *pgxpool.Pool) *PostgresChatMemory {
	return &PostgresChatMemory{pool: pool}
}

// Load returns the full history of a session; unknown sessions are empty.
func (m *PostgresChatMemory) Load(ctx context.Context, uid, sessionID string) ([]types.ChatMessage, error) {
	var raw []byte
	err := m.pool.QueryRow(ctx,
		`SELECT messages FROM chat_sessions WHERE uid = $1 AND session_id = $2`,
		uid, sessionID,
	).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return []types.ChatMessage{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: load session: %w", err)
	}
	out := []types.ChatMessage{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("store: decode session: %w", err)
	}
	return out, nil
}

// Append merges msgs onto the end of the session and bumps updated_at.
func (m *PostgresChatMemory) Append(ctx context.Context, uid, sessionID string, msgs ...types.ChatMessage) error {
	if len(msgs) == 0 {
		return nil
	}
	raw, err := json.Marshal(msgs)
	if err != nil {
		return err
	}
	_, err = m.pool.Exec(ctx, `
		INSERT INTO chat_sessions (uid, session_id, messages, updated_at)
		VALUES ($1, $2, $3::jsonb, now())
		ON CONFLICT (uid, session_id) DO UPDATE
		SET messages = chat_sessions.messages || EXCLUDED.messages,
		    updated_at = now()`,
		uid, sessionID, string(raw),
	)
	if err != nil {
		return fmt.Errorf("store: append session: %w", err)
	}
	return nil
}

// LocalChatMemory keeps sessions in the embedded store.
type LocalChatMemory struct {
	local *Local
}

// NewLocalChatMemory returns a ChatMemory on local.
func NewLocalChatMemory(local *Local) *LocalChatMemory {
	return &LocalChatMemory{local: local}
}

// chatKey length-prefixes uid so ids containing ':' cannot collide.
func chatKey(uid, sessionID string) string {
	return fmt.Sprintf("chat:%d:%s:%s", len(uid), uid, sessionID)
}

// Load returns the full history of a session.
func (m *LocalChatMemory) Load(_ context.Context, uid, sessionID string) ([]types.ChatMessage, error) {
	return ListOf[types.ChatMessage](m.local, chatKey(uid, sessionID))
}

// Append adds msgs to the end of the session.
func (m *LocalChatMemory) Append(_ context.Context, uid, sessionID string, msgs ...types.ChatMessage) error {
	for _, msg := range msgs {
		if err := m.local.Append(chatKey(uid, sessionID), msg, 0); err != nil {
			return err
		}
	}
	return nil
}
