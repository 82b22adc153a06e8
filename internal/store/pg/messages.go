package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mk-162/fixMate/internal/store"
)

// MessageStore implements store.MessageStore on Postgres.
type MessageStore struct {
	db *sql.DB
}

func NewMessageStore(db *sql.DB) *MessageStore {
	return &MessageStore{db: db}
}

func (s *MessageStore) Append(ctx context.Context, issueID uuid.UUID, role store.MessageRole, content string, metadata map[string]string) (*store.Message, error) {
	msg := &store.Message{
		ID:        store.GenNewID(),
		IssueID:   issueID,
		Role:      role,
		Content:   content,
		Metadata:  metadata,
		CreatedAt: time.Now().UTC(),
	}

	var metaJSON []byte
	if len(metadata) > 0 {
		var err error
		metaJSON, err = json.Marshal(metadata)
		if err != nil {
			return nil, fmt.Errorf("marshal message metadata: %w", err)
		}
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO issue_messages (id, issue_id, role, content, metadata, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		msg.ID, issueID, string(role), content, metaJSON, msg.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}
	return msg, nil
}

// ListOrdered returns the most recent limit messages in ascending
// creation order. limit <= 0 returns the full transcript.
func (s *MessageStore) ListOrdered(ctx context.Context, issueID uuid.UUID, limit int) ([]store.Message, error) {
	query := `SELECT id, issue_id, role, content, metadata, created_at
		FROM issue_messages WHERE issue_id = $1 ORDER BY created_at`
	args := []any{issueID}
	if limit > 0 {
		query = `SELECT id, issue_id, role, content, metadata, created_at FROM (
			SELECT id, issue_id, role, content, metadata, created_at
			FROM issue_messages WHERE issue_id = $1
			ORDER BY created_at DESC LIMIT $2
		) recent ORDER BY created_at`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var messages []store.Message
	for rows.Next() {
		var (
			msg      store.Message
			role     string
			metaJSON []byte
		)
		if err := rows.Scan(&msg.ID, &msg.IssueID, &role, &msg.Content, &metaJSON, &msg.CreatedAt); err != nil {
			return nil, err
		}
		msg.Role = store.MessageRole(role)
		if len(metaJSON) > 0 {
			_ = json.Unmarshal(metaJSON, &msg.Metadata)
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

func (s *MessageStore) Transcript(ctx context.Context, issueID uuid.UUID) (string, error) {
	messages, err := s.ListOrdered(ctx, issueID, 0)
	if err != nil {
		return "", err
	}
	return store.RenderTranscript(messages), nil
}
