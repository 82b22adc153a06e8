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

const issueColumns = `id, tenant_id, property_id, title, description, category, status,
	priority, assigned_to, resolved_by_agent, pm_notes, follow_up_at, agent_muted,
	created_at, updated_at, closed_at`

// calloutCost is the assumed average professional callout, used for the
// savings estimate in resolution stats.
const calloutCost = 150

// IssueStore implements store.IssueStore on Postgres.
type IssueStore struct {
	db *sql.DB
}

func NewIssueStore(db *sql.DB) *IssueStore {
	return &IssueStore{db: db}
}

func (s *IssueStore) Create(ctx context.Context, issue *store.Issue) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO issues (id, tenant_id, property_id, title, description, category,
			status, priority, assigned_to, resolved_by_agent, pm_notes, follow_up_at,
			agent_muted, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		issue.ID, issue.TenantID, issue.PropertyID, issue.Title, issue.Description,
		string(issue.Category), string(issue.Status), string(issue.Priority),
		issue.AssignedTo, issue.ResolvedByAgent, issue.PMNotes, issue.FollowUpAt,
		issue.AgentMuted, issue.CreatedAt, issue.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert issue: %w", err)
	}
	return nil
}

func (s *IssueStore) Get(ctx context.Context, id uuid.UUID) (*store.Issue, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+issueColumns+` FROM issues WHERE id = $1`, id)
	return scanIssue(row)
}

func (s *IssueStore) ListByProperty(ctx context.Context, propertyID uuid.UUID) ([]store.Issue, error) {
	return s.list(ctx,
		`SELECT `+issueColumns+` FROM issues WHERE property_id = $1 ORDER BY created_at DESC`,
		propertyID)
}

func (s *IssueStore) ListByTenant(ctx context.Context, tenantID uuid.UUID) ([]store.Issue, error) {
	return s.list(ctx,
		`SELECT `+issueColumns+` FROM issues WHERE tenant_id = $1 ORDER BY created_at DESC`,
		tenantID)
}

func (s *IssueStore) ListByStatus(ctx context.Context, status store.IssueStatus) ([]store.Issue, error) {
	return s.list(ctx,
		`SELECT `+issueColumns+` FROM issues WHERE status = $1 ORDER BY created_at DESC`,
		string(status))
}

func (s *IssueStore) ListAll(ctx context.Context, limit int) ([]store.Issue, error) {
	if limit <= 0 {
		limit = 100
	}
	return s.list(ctx,
		`SELECT `+issueColumns+` FROM issues ORDER BY created_at DESC LIMIT $1`, limit)
}

func (s *IssueStore) UpdateStatus(ctx context.Context, id uuid.UUID, status store.IssueStatus, extra store.StatusUpdate) (*store.Issue, error) {
	row := s.db.QueryRowContext(ctx,
		`UPDATE issues SET status = $2,
			resolved_by_agent = CASE WHEN $3 = '' THEN resolved_by_agent ELSE $3 END,
			assigned_to = CASE WHEN $4 = '' THEN assigned_to ELSE $4 END,
			updated_at = NOW()
		 WHERE id = $1
		 RETURNING `+issueColumns,
		id, string(status), extra.ResolvedSummary, extra.Assignee)
	return scanIssue(row)
}

func (s *IssueStore) SetPriority(ctx context.Context, id uuid.UUID, priority store.IssuePriority) (*store.Issue, error) {
	return s.setField(ctx, id, "priority", string(priority))
}

func (s *IssueStore) SetAssignee(ctx context.Context, id uuid.UUID, assignee string) (*store.Issue, error) {
	return s.setField(ctx, id, "assigned_to", assignee)
}

func (s *IssueStore) SetNotes(ctx context.Context, id uuid.UUID, notes string) (*store.Issue, error) {
	return s.setField(ctx, id, "pm_notes", notes)
}

func (s *IssueStore) SetMuted(ctx context.Context, id uuid.UUID, muted bool) (*store.Issue, error) {
	return s.setField(ctx, id, "agent_muted", muted)
}

func (s *IssueStore) SetFollowUp(ctx context.Context, id uuid.UUID, at *time.Time) (*store.Issue, error) {
	return s.setField(ctx, id, "follow_up_at", at)
}

func (s *IssueStore) Close(ctx context.Context, id uuid.UUID) (*store.Issue, error) {
	row := s.db.QueryRowContext(ctx,
		`UPDATE issues SET status = 'closed', closed_at = NOW(), updated_at = NOW()
		 WHERE id = $1
		 RETURNING `+issueColumns, id)
	return scanIssue(row)
}

func (s *IssueStore) ListDueFollowUps(ctx context.Context, now time.Time) ([]store.Issue, error) {
	return s.list(ctx,
		`SELECT `+issueColumns+` FROM issues
		 WHERE follow_up_at IS NOT NULL AND follow_up_at <= $1
		 ORDER BY follow_up_at`, now)
}

func (s *IssueStore) ResolutionStats(ctx context.Context) (*store.ResolutionStats, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*),
			COUNT(*) FILTER (WHERE status = 'resolved_by_agent'),
			COUNT(*) FILTER (WHERE status = 'escalated')
		 FROM issues`)

	stats := &store.ResolutionStats{AvgCalloutCost: calloutCost}
	if err := row.Scan(&stats.TotalIssues, &stats.ResolvedByAgent, &stats.Escalated); err != nil {
		return nil, fmt.Errorf("resolution stats: %w", err)
	}
	if stats.TotalIssues > 0 {
		stats.ResolutionRate = float64(stats.ResolvedByAgent) / float64(stats.TotalIssues) * 100
	}
	stats.EstimatedSavings = stats.ResolvedByAgent * calloutCost
	return stats, nil
}

func (s *IssueStore) CategoryBreakdown(ctx context.Context) ([]store.CategoryCount, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT CASE WHEN category = '' THEN 'uncategorized' ELSE category END,
			COUNT(*),
			COUNT(*) FILTER (WHERE status = 'resolved_by_agent'),
			COUNT(*) FILTER (WHERE status = 'escalated')
		 FROM issues
		 GROUP BY 1
		 ORDER BY COUNT(*) DESC`)
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

func (s *IssueStore) setField(ctx context.Context, id uuid.UUID, column string, value any) (*store.Issue, error) {
	// column is always a compile-time constant from the methods above.
	row := s.db.QueryRowContext(ctx,
		`UPDATE issues SET `+column+` = $2, updated_at = NOW()
		 WHERE id = $1
		 RETURNING `+issueColumns, id, value)
	return scanIssue(row)
}

func (s *IssueStore) list(ctx context.Context, query string, args ...any) ([]store.Issue, error) {
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
