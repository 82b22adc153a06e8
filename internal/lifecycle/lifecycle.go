// Package lifecycle owns every write to an issue's status and the
// single-field mutators around it. No other component writes issue state
// directly; that discipline is what keeps the audit trail trustworthy.
package lifecycle

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/mk-162/fixMate/internal/store"
)

// Lifecycle is the issue state machine:
//
//	new → triaging → {resolved_by_agent | escalated}
//	escalated → assigned → in_progress → awaiting_confirmation → closed
//
// and any state may move directly to closed. resolved_by_agent and
// escalated stop automatic routing but a property manager can still
// reopen by reassigning or setting status manually.
type Lifecycle struct {
	issues   store.IssueStore
	activity store.ActivityStore
}

// New constructs a Lifecycle over the given stores.
func New(issues store.IssueStore, activity store.ActivityStore) *Lifecycle {
	return &Lifecycle{issues: issues, activity: activity}
}

// TransitionExtra carries the optional payload of a transition.
// ResolvedSummary is only meaningful for resolved_by_agent, Assignee only
// for assigned. Details are merged into the emitted activity record so a
// tool can attach its own context (escalation reason, cost range, ...)
// without logging a second record.
type TransitionExtra struct {
	ResolvedSummary string
	Assignee        string
	Details         map[string]any
}

// Create initializes a new issue with status=new and priority=medium.
func (l *Lifecycle) Create(ctx context.Context, tenantID, propertyID uuid.UUID, title, description string, category store.IssueCategory) (*store.Issue, error) {
	if !category.Valid() {
		category = store.CategoryOther
	}

	now := time.Now().UTC()
	issue := &store.Issue{
		ID:          store.GenNewID(),
		TenantID:    tenantID,
		PropertyID:  propertyID,
		Title:       title,
		Description: description,
		Category:    category,
		Status:      store.StatusNew,
		Priority:    store.PriorityMedium,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := l.issues.Create(ctx, issue); err != nil {
		return nil, fmt.Errorf("create issue: %w", err)
	}

	l.log(ctx, &issue.ID, "issue_created", map[string]any{
		"title":    issue.Title,
		"category": string(issue.Category),
	}, "")

	slog.Info("issue created", "issue", issue.ID, "tenant", tenantID, "title", title)
	return issue, nil
}

// Transition moves an issue to target. Values outside the fixed
// vocabulary are rejected with store.ErrInvalidStatus and the issue is
// left untouched. Closing via this call stamps closed_at.
func (l *Lifecycle) Transition(ctx context.Context, issueID uuid.UUID, target store.IssueStatus, extra TransitionExtra) (*store.Issue, error) {
	if !target.Valid() {
		return nil, fmt.Errorf("%w: %q", store.ErrInvalidStatus, target)
	}

	var (
		issue *store.Issue
		err   error
	)
	if target == store.StatusClosed {
		issue, err = l.issues.Close(ctx, issueID)
	} else {
		issue, err = l.issues.UpdateStatus(ctx, issueID, target, store.StatusUpdate{
			ResolvedSummary: extra.ResolvedSummary,
			Assignee:        extra.Assignee,
		})
	}
	if err != nil {
		return nil, err
	}

	details := map[string]any{"status": string(target)}
	if extra.ResolvedSummary != "" {
		details["solution"] = extra.ResolvedSummary
	}
	if extra.Assignee != "" {
		details["assigned_to"] = extra.Assignee
	}
	for k, v := range extra.Details {
		details[k] = v
	}
	l.log(ctx, &issueID, transitionAction(target), details, transitionNotify(target))

	slog.Info("issue status changed", "issue", issueID, "status", target)
	return issue, nil
}

// transitionAction maps a target status to the audit action tag.
func transitionAction(target store.IssueStatus) string {
	switch target {
	case store.StatusEscalated:
		return "escalated"
	case store.StatusResolvedByAgent:
		return "resolved_by_agent"
	case store.StatusClosed:
		return "closed"
	default:
		return "status_changed"
	}
}

// transitionNotify maps a target status to its advisory notify classes.
func transitionNotify(target store.IssueStatus) string {
	switch target {
	case store.StatusEscalated:
		return "property_manager,landlord"
	case store.StatusResolvedByAgent:
		return "property_manager"
	default:
		return ""
	}
}

// SetPriority updates the priority field. Invalid values are rejected
// with store.ErrInvalidPriority.
func (l *Lifecycle) SetPriority(ctx context.Context, issueID uuid.UUID, priority store.IssuePriority) (*store.Issue, error) {
	if !priority.Valid() {
		return nil, fmt.Errorf("%w: %q", store.ErrInvalidPriority, priority)
	}
	issue, err := l.issues.SetPriority(ctx, issueID, priority)
	if err != nil {
		return nil, err
	}
	l.log(ctx, &issueID, "priority_changed", map[string]any{"priority": string(priority)}, "")
	return issue, nil
}

// Assign sets the assignee identifier without changing status.
func (l *Lifecycle) Assign(ctx context.Context, issueID uuid.UUID, assignee string) (*store.Issue, error) {
	issue, err := l.issues.SetAssignee(ctx, issueID, assignee)
	if err != nil {
		return nil, err
	}
	l.log(ctx, &issueID, "assignee_changed", map[string]any{"assigned_to": assignee}, "")
	return issue, nil
}

// SetMuted toggles the agent-muted flag. While muted, inbound messages
// are still recorded but the agent is never invoked.
func (l *Lifecycle) SetMuted(ctx context.Context, issueID uuid.UUID, muted bool) (*store.Issue, error) {
	issue, err := l.issues.SetMuted(ctx, issueID, muted)
	if err != nil {
		return nil, err
	}
	l.log(ctx, &issueID, "muted_changed", map[string]any{"agent_muted": muted}, "")
	return issue, nil
}

// SetFollowUp schedules a follow-up check. details may carry extra
// context (days, reason) for the audit record.
func (l *Lifecycle) SetFollowUp(ctx context.Context, issueID uuid.UUID, at time.Time, details map[string]any) (*store.Issue, error) {
	issue, err := l.issues.SetFollowUp(ctx, issueID, &at)
	if err != nil {
		return nil, err
	}
	merged := map[string]any{"date": at.UTC().Format(time.RFC3339)}
	for k, v := range details {
		merged[k] = v
	}
	l.log(ctx, &issueID, "scheduled_followup", merged, "tenant")
	return issue, nil
}

// ClearFollowUp removes a scheduled follow-up (used by the sweeper once
// the check-in message has gone out).
func (l *Lifecycle) ClearFollowUp(ctx context.Context, issueID uuid.UUID) (*store.Issue, error) {
	issue, err := l.issues.SetFollowUp(ctx, issueID, nil)
	if err != nil {
		return nil, err
	}
	l.log(ctx, &issueID, "followup_cleared", nil, "")
	return issue, nil
}

// SetNotes updates the property-manager notes.
func (l *Lifecycle) SetNotes(ctx context.Context, issueID uuid.UUID, notes string) (*store.Issue, error) {
	issue, err := l.issues.SetNotes(ctx, issueID, notes)
	if err != nil {
		return nil, err
	}
	l.log(ctx, &issueID, "notes_updated", map[string]any{"notes_preview": truncate(notes, 100)}, "")
	return issue, nil
}

// IsMuted reports whether the agent should be skipped for this issue.
func (l *Lifecycle) IsMuted(ctx context.Context, issueID uuid.UUID) (bool, error) {
	issue, err := l.issues.Get(ctx, issueID)
	if err != nil {
		return false, err
	}
	return issue.AgentMuted, nil
}

func (l *Lifecycle) log(ctx context.Context, issueID *uuid.UUID, action string, details map[string]any, notify string) {
	if _, err := l.activity.Append(ctx, issueID, action, details, notify); err != nil {
		slog.Warn("activity log failed", "action", action, "error", err)
	}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
