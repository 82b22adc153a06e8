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

// ActivityStore implements the append-only audit log on Postgres.
type ActivityStore struct {
	db *sql.DB
}

func NewActivityStore(db *sql.DB) *ActivityStore {
	return &ActivityStore{db: db}
}

func (s *ActivityStore) Append(ctx context.Context, issueID *uuid.UUID, action string, details map[string]any, wouldNotify string) (*store.ActivityRecord, error) {
	record := &store.ActivityRecord{
		ID:          store.GenNewID(),
		IssueID:     issueID,
		Action:      action,
		Details:     details,
		WouldNotify: wouldNotify,
		CreatedAt:   time.Now().UTC(),
	}

	var detailsJSON []byte
	if len(details) > 0 {
		var err error
		detailsJSON, err = json.Marshal(details)
		if err != nil {
			return nil, fmt.Errorf("marshal activity details: %w", err)
		}
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO agent_activity (id, issue_id, action, details, would_notify, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		record.ID, issueID, action, detailsJSON, wouldNotify, record.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert activity: %w", err)
	}
	return record, nil
}

// List returns records newest first. A nil issueID lists process-level
// records (issue_id IS NULL), not all records.
func (s *ActivityStore) List(ctx context.Context, issueID *uuid.UUID, limit int) ([]store.ActivityRecord, error) {
	if limit <= 0 {
		limit = 100
	}

	var (
		rows *sql.Rows
		err  error
	)
	if issueID != nil {
		rows, err = s.db.QueryContext(ctx,
			`SELECT id, issue_id, action, details, would_notify, created_at
			 FROM agent_activity WHERE issue_id = $1
			 ORDER BY created_at DESC LIMIT $2`, *issueID, limit)
	} else {
		rows, err = s.db.QueryContext(ctx,
			`SELECT id, issue_id, action, details, would_notify, created_at
			 FROM agent_activity WHERE issue_id IS NULL
			 ORDER BY created_at DESC LIMIT $1`, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("list activity: %w", err)
	}
	defer rows.Close()

	var records []store.ActivityRecord
	for rows.Next() {
		var (
			record      store.ActivityRecord
			rowIssueID  uuid.NullUUID
			detailsJSON []byte
		)
		if err := rows.Scan(&record.ID, &rowIssueID, &record.Action, &detailsJSON, &record.WouldNotify, &record.CreatedAt); err != nil {
			return nil, err
		}
		if rowIssueID.Valid {
			id := rowIssueID.UUID
			record.IssueID = &id
		}
		if len(detailsJSON) > 0 {
			_ = json.Unmarshal(detailsJSON, &record.Details)
		}
		records = append(records, record)
	}
	return records, rows.Err()
}
