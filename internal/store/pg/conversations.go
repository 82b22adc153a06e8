package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mk-162/fixMate/internal/store"
)

// ConversationStore implements store.ConversationStore on Postgres.
type ConversationStore struct {
	db *sql.DB
}

func NewConversationStore(db *sql.DB) *ConversationStore {
	return &ConversationStore{db: db}
}

func (s *ConversationStore) Create(ctx context.Context, conv *store.Conversation) error {
	now := time.Now().UTC()
	conv.CreatedAt = now
	conv.UpdatedAt = now
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO conversations (id, contact_id, phone, channel, tenant_id, issue_id, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		conv.ID, conv.ContactID, conv.Phone, conv.Channel, conv.TenantID, conv.IssueID,
		string(conv.Status), conv.CreatedAt, conv.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert conversation: %w", err)
	}
	return nil
}

// ActiveByContact applies the lazy-invalidation predicate in the query:
// the conversation's own status must be active AND the bound issue must
// not have reached a routing-terminal status.
func (s *ConversationStore) ActiveByContact(ctx context.Context, contactID string) (*store.Conversation, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT c.id, c.contact_id, c.phone, c.channel, c.tenant_id, c.issue_id, c.status, c.created_at, c.updated_at
		 FROM conversations c
		 JOIN issues i ON i.id = c.issue_id
		 WHERE c.contact_id = $1
		   AND c.status = 'active'
		   AND i.status NOT IN ('closed', 'resolved_by_agent', 'escalated')
		 ORDER BY c.created_at DESC
		 LIMIT 1`, contactID)
	return scanConversation(row)
}

func (s *ConversationStore) ByIssue(ctx context.Context, issueID uuid.UUID) (*store.Conversation, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, contact_id, phone, channel, tenant_id, issue_id, status, created_at, updated_at
		 FROM conversations WHERE issue_id = $1
		 ORDER BY created_at DESC LIMIT 1`, issueID)
	return scanConversation(row)
}

func (s *ConversationStore) CloseByIssue(ctx context.Context, issueID uuid.UUID) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE conversations SET status = 'closed', updated_at = NOW() WHERE issue_id = $1`,
		issueID)
	if err != nil {
		return fmt.Errorf("close conversation: %w", err)
	}
	return nil
}

func (s *ConversationStore) UpsertPending(ctx context.Context, contactID, phone, initialMessage string) (*store.PendingRegistration, error) {
	row := s.db.QueryRowContext(ctx,
		`INSERT INTO pending_registrations (id, contact_id, phone, initial_message, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, 'pending', NOW(), NOW())
		 ON CONFLICT (contact_id) DO UPDATE
		 SET initial_message = EXCLUDED.initial_message,
		     phone = EXCLUDED.phone,
		     status = 'pending',
		     updated_at = NOW()
		 RETURNING id, contact_id, phone, initial_message, status, tenant_id, created_at, updated_at`,
		store.GenNewID(), contactID, phone, initialMessage)
	return scanPending(row)
}

func (s *ConversationStore) PendingByContact(ctx context.Context, contactID string) (*store.PendingRegistration, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, contact_id, phone, initial_message, status, tenant_id, created_at, updated_at
		 FROM pending_registrations WHERE contact_id = $1 AND status = 'pending'`, contactID)
	return scanPending(row)
}

func (s *ConversationStore) CompletePending(ctx context.Context, contactID string, tenantID uuid.UUID) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE pending_registrations
		 SET status = 'completed', tenant_id = $2, updated_at = NOW()
		 WHERE contact_id = $1 AND status = 'pending'`, contactID, tenantID)
	if err != nil {
		return fmt.Errorf("complete registration: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func scanConversation(row *sql.Row) (*store.Conversation, error) {
	var (
		conv   store.Conversation
		status string
	)
	err := row.Scan(&conv.ID, &conv.ContactID, &conv.Phone, &conv.Channel,
		&conv.TenantID, &conv.IssueID, &status, &conv.CreatedAt, &conv.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	conv.Status = store.ConversationStatus(status)
	return &conv, nil
}

func scanPending(row *sql.Row) (*store.PendingRegistration, error) {
	var (
		pending  store.PendingRegistration
		status   string
		tenantID uuid.NullUUID
	)
	err := row.Scan(&pending.ID, &pending.ContactID, &pending.Phone, &pending.InitialMessage,
		&status, &tenantID, &pending.CreatedAt, &pending.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	pending.Status = store.RegistrationStatus(status)
	if tenantID.Valid {
		id := tenantID.UUID
		pending.TenantID = &id
	}
	return &pending, nil
}
