// Package store provides conversation-history persistence keyed by session.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/askdokita/askdokita/server/ai"
	gwerrors "github.com/askdokita/askdokita/internal/errors"
)

const (
	sessionKeyPrefix = "chat:"

	// SessionTTL is the history expiry. Every save replaces the TTL rather
	// than extending it.
	SessionTTL = 3600 * time.Second
)

// SessionStore persists per-session conversation history.
//
// There is no locking or versioning across callers: concurrent saves for
// the same session are last-writer-wins. This mirrors the upstream
// deployment and is an accepted race under concurrent messages from the
// same sender.
type SessionStore interface {
	// Load returns the stored history for the session, or an empty history
	// if none exists or the stored record is malformed. Malformed records
	// are logged and treated as empty, never surfaced to the caller.
	Load(ctx context.Context, sessionID string) ([]ai.Turn, error)

	// Save serializes the history and stores it, resetting the expiry to
	// SessionTTL.
	Save(ctx context.Context, sessionID string, history []ai.Turn) error

	// Close releases the underlying connection pool.
	Close() error
}

// historyRecord is the stored shape of one turn. It matches the record
// layout the original deployment wrote, so existing sessions survive.
type historyRecord struct {
	Role  string              `json:"role"`
	Parts []historyPartRecord `json:"parts"`
}

type historyPartRecord struct {
	Text string `json:"text"`
}

// encodeHistory serializes history as an ordered list of {role, parts} records.
func encodeHistory(history []ai.Turn) ([]byte, error) {
	records := make([]historyRecord, 0, len(history))
	for _, turn := range history {
		records = append(records, historyRecord{
			Role:  turn.Role,
			Parts: []historyPartRecord{{Text: turn.Text}},
		})
	}
	return json.Marshal(records)
}

// decodeHistory parses a stored history payload. A record without a role or
// without at least one part is malformed.
func decodeHistory(data []byte) ([]ai.Turn, error) {
	var records []historyRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, gwerrors.MalformedHistory("failed to unmarshal history", err)
	}

	history := make([]ai.Turn, 0, len(records))
	for i, record := range records {
		if record.Role == "" || len(record.Parts) == 0 {
			return nil, gwerrors.MalformedHistory(fmt.Sprintf("history record %d is missing role or parts", i), nil)
		}
		history = append(history, ai.Turn{
			Role: record.Role,
			Text: record.Parts[0].Text,
		})
	}
	return history, nil
}

// RedisSessionStore is the Redis-backed SessionStore.
type RedisSessionStore struct {
	client *redis.Client
}

// NewRedisSessionStore connects to Redis at the given URL and verifies the
// connection. The connection pool is created once and reused for all
// exchanges.
func NewRedisSessionStore(url string) (*RedisSessionStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisSessionStore{client: client}, nil
}

// Load implements SessionStore.
func (s *RedisSessionStore) Load(ctx context.Context, sessionID string) ([]ai.Turn, error) {
	data, err := s.client.Get(ctx, sessionKey(sessionID)).Bytes()
	if err == redis.Nil {
		return []ai.Turn{}, nil
	}
	if err != nil {
		return nil, gwerrors.StoreUnavailable("failed to load session history", err)
	}

	history, err := decodeHistory(data)
	if err != nil {
		slog.Warn("malformed session history, treating as empty",
			"session_id", sessionID, "error", err)
		return []ai.Turn{}, nil
	}
	return history, nil
}

// Save implements SessionStore.
func (s *RedisSessionStore) Save(ctx context.Context, sessionID string, history []ai.Turn) error {
	data, err := encodeHistory(history)
	if err != nil {
		return gwerrors.StoreUnavailable("failed to encode session history", err)
	}
	if err := s.client.Set(ctx, sessionKey(sessionID), data, SessionTTL).Err(); err != nil {
		return gwerrors.StoreUnavailable("failed to save session history", err)
	}
	return nil
}

// Close implements SessionStore.
func (s *RedisSessionStore) Close() error {
	return s.client.Close()
}

func sessionKey(sessionID string) string {
	return sessionKeyPrefix + sessionID
}
