// Package sqlite implements the stores on a single SQLite file for
// standalone mode: no Postgres, no migration tooling, the schema is
// applied on open.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/mk-162/fixMate/internal/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS properties (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    address TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS tenants (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    phone TEXT NOT NULL,
    property_id TEXT NOT NULL REFERENCES properties(id),
    is_active INTEGER NOT NULL DEFAULT 1,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS issues (
    id TEXT PRIMARY KEY,
    tenant_id TEXT NOT NULL REFERENCES tenants(id),
    property_id TEXT NOT NULL REFERENCES properties(id),
    title TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    category TEXT NOT NULL DEFAULT '',
    status TEXT NOT NULL DEFAULT 'new',
    priority TEXT NOT NULL DEFAULT 'medium',
    assigned_to TEXT NOT NULL DEFAULT '',
    resolved_by_agent TEXT NOT NULL DEFAULT '',
    pm_notes TEXT NOT NULL DEFAULT '',
    follow_up_at TIMESTAMP,
    agent_muted INTEGER NOT NULL DEFAULT 0,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    closed_at TIMESTAMP
);

CREATE TABLE IF NOT EXISTS issue_messages (
    id TEXT PRIMARY KEY,
    issue_id TEXT NOT NULL REFERENCES issues(id),
    role TEXT NOT NULL,
    content TEXT NOT NULL,
    metadata TEXT,
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_issue_messages_issue ON issue_messages(issue_id, created_at);

CREATE TABLE IF NOT EXISTS agent_activity (
    id TEXT PRIMARY KEY,
    issue_id TEXT,
    action TEXT NOT NULL,
    details TEXT,
    would_notify TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS conversations (
    id TEXT PRIMARY KEY,
    contact_id TEXT NOT NULL,
    phone TEXT NOT NULL DEFAULT '',
    channel TEXT NOT NULL DEFAULT 'twilio',
    tenant_id TEXT NOT NULL,
    issue_id TEXT NOT NULL,
    status TEXT NOT NULL DEFAULT 'active',
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_conversations_contact ON conversations(contact_id, status);

CREATE TABLE IF NOT EXISTS pending_registrations (
    id TEXT PRIMARY KEY,
    contact_id TEXT NOT NULL UNIQUE,
    phone TEXT NOT NULL DEFAULT '',
    initial_message TEXT NOT NULL DEFAULT '',
    status TEXT NOT NULL DEFAULT 'pending',
    tenant_id TEXT,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL
);
`

// NewStores opens (or creates) the SQLite file and applies the schema.
func NewStores(path string) (*store.Stores, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// SQLite serializes writers; a single connection avoids busy errors.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply sqlite schema: %w", err)
	}

	s := &store.Stores{
		Issues:        &issueStore{db: db},
		Messages:      &messageStore{db: db},
		Activity:      &activityStore{db: db},
		Conversations: &conversationStore{db: db},
		Tenants:       &tenantDirectory{db: db},
		Properties:    &propertyDirectory{db: db},
	}
	s.SetCloser(db.Close)
	return s, nil
}

// --- issues ---

const issueColumns = `id, tenant_id, property_id, title, description, category, status,
	priority, assigned_to, resolved_by_agent, pm_notes, follow_up_at, agent_muted,
	created_at, updated_at, closed_at`

const calloutCost = 150

type issueStore struct {
	db *sql.DB
}

func (s *issueStore) Create(ctx context.Context, issue *store.Issue) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO issues (`+issueColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		issue.ID, issue.TenantID, issue.PropertyID, issue.Title, issue.Description,
		string(issue.Category), string(issue.Status), string(issue.Priority),
		issue.AssignedTo, issue.ResolvedByAgent, issue.PMNotes, issue.FollowUpAt,
		issue.AgentMuted, issue.CreatedAt, issue.UpdatedAt, issue.ClosedAt)
	if err != nil {
		return fmt.Errorf("insert issue: %w", err)
	}
	return nil
}

func (s *issueStore) Get(ctx context.Context, id uuid.UUID) (*store.Issue, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+issueColumns+` FROM issues WHERE id = ?`, id)
	return scanIssue(row)
}

func (s *issueStore) ListByProperty(ctx context.Context, propertyID uuid.UUID) ([]store.Issue, error) {
	return s.list(ctx, `SELECT `+issueColumns+` FROM issues WHERE property_id = ? ORDER BY created_at DESC`, propertyID)
}

func (s *issueStore) ListByTenant(ctx context.Context, tenantID uuid.UUID) ([]store.Issue, error) {
	return s.list(ctx, `SELECT `+issueColumns+` FROM issues WHERE tenant_id = ? ORDER BY created_at DESC`, tenantID)
}

func (s *issueStore) ListByStatus(ctx context.Context, status store.IssueStatus) ([]store.Issue, error) {
	return s.list(ctx, `SELECT `+issueColumns+` FROM issues WHERE status = ? ORDER BY created_at DESC`, string(status))
}

func (s *issueStore) ListAll(ctx context.Context, limit int) ([]store.Issue, error) {
	if limit <= 0 {
		limit = 100
	}
	return s.list(ctx, `SELECT `+issueColumns+` FROM issues ORDER BY created_at DESC LIMIT ?`, limit)
}

func (s *issueStore) UpdateStatus(ctx context.Context, id uuid.UUID, status store.IssueStatus, extra store.StatusUpdate) (*store.Issue, error) {
	_, err := s.db.ExecContext(ctx,
		`UPDATE issues SET status = ?,
			resolved_by_agent = CASE WHEN ? = '' THEN resolved_by_agent ELSE ? END,
			assigned_to = CASE WHEN ? = '' THEN assigned_to ELSE ? END,
			updated_at = ?
		 WHERE id = ?`,
		string(status), extra.ResolvedSummary, extra.ResolvedSummary,
		extra.Assignee, extra.Assignee, time.Now().UTC(), id)
	if err != nil {
		return nil, fmt.Errorf("update issue status: %w", err)
	}
	return s.Get(ctx, id)
}

func (s *issueStore) SetPriority(ctx context.Context, id uuid.UUID, priority store.IssuePriority) (*store.Issue, error) {
	return s.setField(ctx, id, "priority", string(priority))
}

func (s *issueStore) SetAssignee(ctx context.Context, id uuid.UUID, assignee string) (*store.Issue, error) {
	return s.setField(ctx, id, "assigned_to", assignee)
}

func (s *issueStore) SetNotes(ctx context.Context, id uuid.UUID, notes string) (*store.Issue, error) {
	return s.setField(ctx, id, "pm_notes", notes)
}

func (s *issueStore) SetMuted(ctx context.Context, id uuid.UUID, muted bool) (*store.Issue, error) {
	return s.setField(ctx, id, "agent_muted", muted)
}

func (s *issueStore) SetFollowUp(ctx context.Context, id uuid.UUID, at *time.Time) (*store.Issue, error) {
	return s.setField(ctx, id, "follow_up_at", at)
}

func (s *issueStore) Close(ctx context.Context, id uuid.UUID) (*store.Issue, error) {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		`UPDATE issues SET status = 'closed', closed_at = ?, updated_at = ? WHERE id = ?`,
		now, now, id)
	if err != nil {
		return nil, fmt.Errorf("close issue: %w", err)
	}
	return s.Get(ctx, id)
}

func (s *issueStore) ListDueFollowUps(ctx context.Context, now time.Time) ([]store.Issue, error) {
	return s.list(ctx,
		`SELECT `+issueColumns+` FROM issues
		 WHERE follow_up_at IS NOT NULL AND follow_up_at <= ?
		 ORDER BY follow_up_at`, now)
}

func (s *issueStore) ResolutionStats(ctx context.Context) (*store.ResolutionStats, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*),
			SUM(CASE WHEN status = 'resolved_by_agent' THEN 1 ELSE 0 END),
			SUM(CASE WHEN status = 'escalated' THEN 1 ELSE 0 END)
		 FROM issues`)

	var (
		stats     = store.ResolutionStats{AvgCalloutCost: calloutCost}
		resolved  sql.NullInt64
		escalated sql.NullInt64
	)
	if err := row.Scan(&stats.TotalIssues, &resolved, &escalated); err != nil {
		return nil, fmt.Errorf("resolution stats: %w", err)
	}
	stats.ResolvedByAgent = int(resolved.Int64)
	stats.Escalated = int(escalated.Int64)
	if stats.TotalIssues > 0 {
		stats.ResolutionRate = float64(stats.ResolvedByAgent) / float64(stats.TotalIssues) * 100
	}
	stats.EstimatedSavings = stats.ResolvedByAgent * calloutCost
	return &stats, nil
}

func (s *issueStore) CategoryBreakdown(ctx context.Context) ([]store.CategoryCount, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT CASE WHEN category = '' THEN 'uncategorized' ELSE category END AS cat,
			COUNT(*),
			SUM(CASE WHEN status = 'resolved_by_agent' THEN 1 ELSE 0 END),
			SUM(CASE WHEN status = 'escalated' THEN 1 ELSE 0 END)
		 FROM issues GROUP BY cat ORDER BY COUNT(*) DESC`)
	if err != nil {
		return nil, fmt.Errorf("category breakdown: %w", err)
	}
	defer rows.Close()

	var counts []store.CategoryCount
	for rows.Next() {
		var c store.CategoryCount
		if err := rows.Scan(&c.Category, &c.Total, &c.Resolved, &c.Escalated); err != nil {
			return nil, err
		}
		counts = append(counts, c)
	}
	return counts, rows.Err()
}

func (s *issueStore) setField(ctx context.Context, id uuid.UUID, column string, value any) (*store.Issue, error) {
	_, err := s.db.ExecContext(ctx,
		`UPDATE issues SET `+column+` = ?, updated_at = ? WHERE id = ?`,
		value, time.Now().UTC(), id)
	if err != nil {
		return nil, fmt.Errorf("update issue %s: %w", column, err)
	}
	return s.Get(ctx, id)
}

func (s *issueStore) list(ctx context.Context, query string, args ...any) ([]store.Issue, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list issues: %w", err)
	}
	defer rows.Close()

	var issues []store.Issue
	for rows.Next() {
		issue, err := scanIssueRow(rows)
		if err != nil {
			return nil, err
		}
		issues = append(issues, *issue)
	}
	return issues, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanIssue(row *sql.Row) (*store.Issue, error) {
	issue, err := scanIssueRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	return issue, err
}

func scanIssueRow(row rowScanner) (*store.Issue, error) {
	var (
		issue      store.Issue
		category   string
		status     string
		priority   string
		followUpAt sql.NullTime
		closedAt   sql.NullTime
	)
	err := row.Scan(&issue.ID, &issue.TenantID, &issue.PropertyID, &issue.Title,
		&issue.Description, &category, &status, &priority, &issue.AssignedTo,
		&issue.ResolvedByAgent, &issue.PMNotes, &followUpAt, &issue.AgentMuted,
		&issue.CreatedAt, &issue.UpdatedAt, &closedAt)
	if err != nil {
		return nil, err
	}
	issue.Category = store.IssueCategory(category)
	issue.Status = store.IssueStatus(status)
	issue.Priority = store.IssuePriority(priority)
	if followUpAt.Valid {
		issue.FollowUpAt = &followUpAt.Time
	}
	if closedAt.Valid {
		issue.ClosedAt = &closedAt.Time
	}
	return &issue, nil
}

// --- messages ---

type messageStore struct {
	db *sql.DB
}

func (s *messageStore) Append(ctx context.Context, issueID uuid.UUID, role store.MessageRole, content string, metadata map[string]string) (*store.Message, error) {
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
		 VALUES (?, ?, ?, ?, ?, ?)`,
		msg.ID, issueID, string(role), content, metaJSON, msg.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}
	return msg, nil
}

func (s *messageStore) ListOrdered(ctx context.Context, issueID uuid.UUID, limit int) ([]store.Message, error) {
	query := `SELECT id, issue_id, role, content, metadata, created_at
		FROM issue_messages WHERE issue_id = ? ORDER BY created_at`
	args := []any{issueID}
	if limit > 0 {
		query = `SELECT id, issue_id, role, content, metadata, created_at FROM (
			SELECT id, issue_id, role, content, metadata, created_at
			FROM issue_messages WHERE issue_id = ?
			ORDER BY created_at DESC LIMIT ?
		) ORDER BY created_at`
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

func (s *messageStore) Transcript(ctx context.Context, issueID uuid.UUID) (string, error) {
	messages, err := s.ListOrdered(ctx, issueID, 0)
	if err != nil {
		return "", err
	}
	return store.RenderTranscript(messages), nil
}

// --- activity ---

type activityStore struct {
	db *sql.DB
}

func (s *activityStore) Append(ctx context.Context, issueID *uuid.UUID, action string, details map[string]any, wouldNotify string) (*store.ActivityRecord, error) {
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

	var issueVal any
	if issueID != nil {
		issueVal = *issueID
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO agent_activity (id, issue_id, action, details, would_notify, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		record.ID, issueVal, action, detailsJSON, wouldNotify, record.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert activity: %w", err)
	}
	return record, nil
}

func (s *activityStore) List(ctx context.Context, issueID *uuid.UUID, limit int) ([]store.ActivityRecord, error) {
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
			 FROM agent_activity WHERE issue_id = ?
			 ORDER BY created_at DESC LIMIT ?`, *issueID, limit)
	} else {
		rows, err = s.db.QueryContext(ctx,
			`SELECT id, issue_id, action, details, would_notify, created_at
			 FROM agent_activity WHERE issue_id IS NULL
			 ORDER BY created_at DESC LIMIT ?`, limit)
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

// --- conversations ---

type conversationStore struct {
	db *sql.DB
}

func (s *conversationStore) Create(ctx context.Context, conv *store.Conversation) error {
	now := time.Now().UTC()
	conv.CreatedAt = now
	conv.UpdatedAt = now
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO conversations (id, contact_id, phone, channel, tenant_id, issue_id, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		conv.ID, conv.ContactID, conv.Phone, conv.Channel, conv.TenantID, conv.IssueID,
		string(conv.Status), conv.CreatedAt, conv.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert conversation: %w", err)
	}
	return nil
}

func (s *conversationStore) ActiveByContact(ctx context.Context, contactID string) (*store.Conversation, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT c.id, c.contact_id, c.phone, c.channel, c.tenant_id, c.issue_id, c.status, c.created_at, c.updated_at
		 FROM conversations c
		 JOIN issues i ON i.id = c.issue_id
		 WHERE c.contact_id = ?
		   AND c.status = 'active'
		   AND i.status NOT IN ('closed', 'resolved_by_agent', 'escalated')
		 ORDER BY c.created_at DESC
		 LIMIT 1`, contactID)
	return scanConversation(row)
}

func (s *conversationStore) ByIssue(ctx context.Context, issueID uuid.UUID) (*store.Conversation, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, contact_id, phone, channel, tenant_id, issue_id, status, created_at, updated_at
		 FROM conversations WHERE issue_id = ?
		 ORDER BY created_at DESC LIMIT 1`, issueID)
	return scanConversation(row)
}

func (s *conversationStore) CloseByIssue(ctx context.Context, issueID uuid.UUID) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE conversations SET status = 'closed', updated_at = ? WHERE issue_id = ?`,
		time.Now().UTC(), issueID)
	if err != nil {
		return fmt.Errorf("close conversation: %w", err)
	}
	return nil
}

func (s *conversationStore) UpsertPending(ctx context.Context, contactID, phone, initialMessage string) (*store.PendingRegistration, error) {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO pending_registrations (id, contact_id, phone, initial_message, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, 'pending', ?, ?)
		 ON CONFLICT (contact_id) DO UPDATE
		 SET initial_message = excluded.initial_message,
		     phone = excluded.phone,
		     status = 'pending',
		     updated_at = excluded.updated_at`,
		store.GenNewID(), contactID, phone, initialMessage, now, now)
	if err != nil {
		return nil, fmt.Errorf("upsert pending registration: %w", err)
	}
	return s.PendingByContact(ctx, contactID)
}

func (s *conversationStore) PendingByContact(ctx context.Context, contactID string) (*store.PendingRegistration, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, contact_id, phone, initial_message, status, tenant_id, created_at, updated_at
		 FROM pending_registrations WHERE contact_id = ? AND status = 'pending'`, contactID)
	return scanPending(row)
}

func (s *conversationStore) CompletePending(ctx context.Context, contactID string, tenantID uuid.UUID) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE pending_registrations
		 SET status = 'completed', tenant_id = ?, updated_at = ?
		 WHERE contact_id = ? AND status = 'pending'`, tenantID, time.Now().UTC(), contactID)
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

// --- tenants and properties ---

type tenantDirectory struct {
	db *sql.DB
}

const tenantColumns = `t.id, t.name, t.phone, t.property_id, p.name, t.is_active, t.created_at, t.updated_at`

func (d *tenantDirectory) Get(ctx context.Context, id uuid.UUID) (*store.Tenant, error) {
	row := d.db.QueryRowContext(ctx,
		`SELECT `+tenantColumns+`
		 FROM tenants t JOIN properties p ON p.id = t.property_id
		 WHERE t.id = ?`, id)
	return scanTenant(row)
}

func (d *tenantDirectory) ByPhone(ctx context.Context, raw, normalized string) (*store.Tenant, error) {
	row := d.db.QueryRowContext(ctx,
		`SELECT `+tenantColumns+`
		 FROM tenants t JOIN properties p ON p.id = t.property_id
		 WHERE t.is_active AND t.phone IN (?, ?)
		 LIMIT 1`, raw, normalized)
	return scanTenant(row)
}

func (d *tenantDirectory) Create(ctx context.Context, name, phone string, propertyID uuid.UUID) (*store.Tenant, error) {
	tenant := &store.Tenant{
		ID:         store.GenNewID(),
		Name:       name,
		Phone:      phone,
		PropertyID: propertyID,
		Active:     true,
		CreatedAt:  time.Now().UTC(),
		UpdatedAt:  time.Now().UTC(),
	}
	_, err := d.db.ExecContext(ctx,
		`INSERT INTO tenants (id, name, phone, property_id, is_active, created_at, updated_at)
		 VALUES (?, ?, ?, ?, 1, ?, ?)`,
		tenant.ID, name, phone, propertyID, tenant.CreatedAt, tenant.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert tenant: %w", err)
	}
	return tenant, nil
}

func scanTenant(row *sql.Row) (*store.Tenant, error) {
	var tenant store.Tenant
	err := row.Scan(&tenant.ID, &tenant.Name, &tenant.Phone, &tenant.PropertyID,
		&tenant.PropertyName, &tenant.Active, &tenant.CreatedAt, &tenant.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &tenant, nil
}

type propertyDirectory struct {
	db *sql.DB
}

func (d *propertyDirectory) Get(ctx context.Context, id uuid.UUID) (*store.Property, error) {
	row := d.db.QueryRowContext(ctx,
		`SELECT id, name, address, created_at FROM properties WHERE id = ?`, id)

	var prop store.Property
	err := row.Scan(&prop.ID, &prop.Name, &prop.Address, &prop.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &prop, nil
}

func (d *propertyDirectory) List(ctx context.Context, limit int) ([]store.Property, error) {
	if limit <= 0 {
		limit = 1000
	}
	rows, err := d.db.QueryContext(ctx,
		`SELECT id, name, address, created_at FROM properties ORDER BY name LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list properties: %w", err)
	}
	defer rows.Close()

	var properties []store.Property
	for rows.Next() {
		var prop store.Property
		if err := rows.Scan(&prop.ID, &prop.Name, &prop.Address, &prop.CreatedAt); err != nil {
			return nil, err
		}
		properties = append(properties, prop)
	}
	return properties, rows.Err()
}

func (d *propertyDirectory) Create(ctx context.Context, name, address string) (*store.Property, error) {
	prop := &store.Property{
		ID:        store.GenNewID(),
		Name:      name,
		Address:   address,
		CreatedAt: time.Now().UTC(),
	}
	_, err := d.db.ExecContext(ctx,
		`INSERT INTO properties (id, name, address, created_at) VALUES (?, ?, ?, ?)`,
		prop.ID, name, address, prop.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert property: %w", err)
	}
	return prop, nil
}
