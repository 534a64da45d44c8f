// Package sqlitestore is a durable sessions.Store backed by
// modernc.org/sqlite, for single-process self-hosted deployments that
// want history to survive a restart.
package sqlitestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"

	_ "modernc.org/sqlite"

	"github.com/sunggeunkim/haya-sub004/pkg/models"
)

const schema = `
CREATE TABLE IF NOT EXISTS messages (
	session_id TEXT NOT NULL,
	seq        INTEGER NOT NULL,
	role       TEXT NOT NULL,
	content    TEXT NOT NULL,
	tool_calls TEXT,
	tool_call_id TEXT,
	timestamp_ms INTEGER NOT NULL,
	PRIMARY KEY (session_id, seq)
);
`

// Store persists session history in a single SQLite database file.
type Store struct {
	db *sql.DB
	// mu serializes appends so two writers cannot claim the same next
	// sequence number of a session.
	mu sync.Mutex
}

// Open opens (creating if needed) a SQLite-backed session store at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite store: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate sqlite store: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// AppendMessage appends msg to sessionID at the next sequence number.
func (s *Store) AppendMessage(ctx context.Context, sessionID string, msg models.Message) error {
	var toolCalls []byte
	if len(msg.ToolCalls) > 0 {
		var err error
		toolCalls, err = json.Marshal(msg.ToolCalls)
		if err != nil {
			return fmt.Errorf("marshal tool calls: %w", err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var nextSeq int
	row := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(seq), -1) + 1 FROM messages WHERE session_id = ?`, sessionID)
	if err := row.Scan(&nextSeq); err != nil {
		return fmt.Errorf("next seq: %w", err)
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (session_id, seq, role, content, tool_calls, tool_call_id, timestamp_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		sessionID, nextSeq, string(msg.Role), msg.Content, nullableBytes(toolCalls), msg.ToolCallID, msg.TimestampMs)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

// GetHistory returns up to limit of the most recent messages in order.
// limit <= 0 means "all".
func (s *Store) GetHistory(ctx context.Context, sessionID string, limit int) ([]models.Message, error) {
	query := `SELECT role, content, tool_calls, tool_call_id, timestamp_ms
	          FROM messages WHERE session_id = ? ORDER BY seq ASC`
	args := []any{sessionID}
	if limit > 0 {
		query = `SELECT role, content, tool_calls, tool_call_id, timestamp_ms FROM (
		           SELECT role, content, tool_calls, tool_call_id, timestamp_ms, seq
		           FROM messages WHERE session_id = ? ORDER BY seq DESC LIMIT ?
		         ) ORDER BY seq ASC`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var out []models.Message
	for rows.Next() {
		var role, content string
		var toolCalls sql.NullString
		var toolCallID sql.NullString
		var ts int64
		if err := rows.Scan(&role, &content, &toolCalls, &toolCallID, &ts); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		msg := models.Message{
			Role:        models.Role(role),
			Content:     content,
			ToolCallID:  toolCallID.String,
			TimestampMs: ts,
		}
		if toolCalls.Valid && toolCalls.String != "" {
			if err := json.Unmarshal([]byte(toolCalls.String), &msg.ToolCalls); err != nil {
				return nil, fmt.Errorf("unmarshal tool calls: %w", err)
			}
		}
		out = append(out, msg)
	}
	return out, rows.Err()
}

// MessageCount returns the number of messages stored for sessionID.
func (s *Store) MessageCount(ctx context.Context, sessionID string) (int, error) {
	var count int
	row := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM messages WHERE session_id = ?`, sessionID)
	if err := row.Scan(&count); err != nil {
		return 0, fmt.Errorf("count messages: %w", err)
	}
	return count, nil
}

func nullableBytes(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}
