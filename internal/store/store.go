// Package store defines the persistence interfaces and domain types shared
// by the conversation engine. Concrete backends live in the pg (Postgres,
// managed mode), sqlite (standalone mode), and memory (tests) subpackages.
package store

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned when an issue, conversation, tenant, or
	// property does not exist. Callers translate it for their own caller
	// instead of letting it cross API boundaries as a panic.
	ErrNotFound = errors.New("not found")

	// ErrInvalidStatus is returned for status values outside the fixed
	// lifecycle vocabulary. The issue is left untouched.
	ErrInvalidStatus = errors.New("invalid status")

	// ErrInvalidPriority is returned for priority values outside
	// low/medium/high/urgent.
	ErrInvalidPriority = errors.New("invalid priority")
)

// GenNewID returns a new UUIDv7 (time-ordered) row ID.
func GenNewID() uuid.UUID {
	return uuid.Must(uuid.NewV7())
}

// RenderTranscript formats an ordered message list as "ROLE: text" lines
// for the agent prompt. Shared by all MessageStore backends.
func RenderTranscript(messages []Message) string {
	var b strings.Builder
	for i, msg := range messages {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(strings.ToUpper(string(msg.Role)))
		b.WriteString(": ")
		b.WriteString(msg.Content)
	}
	return b.String()
}

// StatusUpdate carries the optional extras of a status transition.
// ResolvedSummary is only meaningful for resolved_by_agent; Assignee only
// for assigned.
type StatusUpdate struct {
	ResolvedSummary string
	Assignee        string
}

// IssueStore persists issues. Status writes go through UpdateStatus and
// Close only; the lifecycle component is the sole caller of those.
type IssueStore interface {
	Create(ctx context.Context, issue *Issue) error
	Get(ctx context.Context, id uuid.UUID) (*Issue, error)
	ListByProperty(ctx context.Context, propertyID uuid.UUID) ([]Issue, error)
	ListByTenant(ctx context.Context, tenantID uuid.UUID) ([]Issue, error)
	ListByStatus(ctx context.Context, status IssueStatus) ([]Issue, error)
	ListAll(ctx context.Context, limit int) ([]Issue, error)

	UpdateStatus(ctx context.Context, id uuid.UUID, status IssueStatus, extra StatusUpdate) (*Issue, error)
	SetPriority(ctx context.Context, id uuid.UUID, priority IssuePriority) (*Issue, error)
	SetAssignee(ctx context.Context, id uuid.UUID, assignee string) (*Issue, error)
	SetNotes(ctx context.Context, id uuid.UUID, notes string) (*Issue, error)
	SetMuted(ctx context.Context, id uuid.UUID, muted bool) (*Issue, error)
	SetFollowUp(ctx context.Context, id uuid.UUID, at *time.Time) (*Issue, error)
	Close(ctx context.Context, id uuid.UUID) (*Issue, error)

	// ListDueFollowUps returns issues whose follow-up timestamp has passed.
	ListDueFollowUps(ctx context.Context, now time.Time) ([]Issue, error)

	ResolutionStats(ctx context.Context) (*ResolutionStats, error)
	CategoryBreakdown(ctx context.Context) ([]CategoryCount, error)
}

// MessageStore persists conversation transcripts. Retrieval is always
// ascending by creation time.
type MessageStore interface {
	Append(ctx context.Context, issueID uuid.UUID, role MessageRole, content string, metadata map[string]string) (*Message, error)
	ListOrdered(ctx context.Context, issueID uuid.UUID, limit int) ([]Message, error)

	// Transcript renders the full ordered conversation as "ROLE: text"
	// lines for the agent prompt.
	Transcript(ctx context.Context, issueID uuid.UUID) (string, error)
}

// ActivityStore is the append-only audit log. Records are never mutated
// or deleted. issueID may be nil for process-level errors.
type ActivityStore interface {
	Append(ctx context.Context, issueID *uuid.UUID, action string, details map[string]any, wouldNotify string) (*ActivityRecord, error)
	List(ctx context.Context, issueID *uuid.UUID, limit int) ([]ActivityRecord, error)
}

// ConversationStore persists channel bindings and pending registrations.
type ConversationStore interface {
	Create(ctx context.Context, conv *Conversation) error

	// ActiveByContact returns the most recently created conversation for
	// the contact whose own status is active AND whose bound issue has
	// not reached a routing-terminal status. Invalidation is lazy: the
	// predicate is evaluated at query time, no sweep marks conversations
	// inactive when their issue closes.
	ActiveByContact(ctx context.Context, contactID string) (*Conversation, error)

	ByIssue(ctx context.Context, issueID uuid.UUID) (*Conversation, error)
	CloseByIssue(ctx context.Context, issueID uuid.UUID) error

	// UpsertPending creates a pending registration, or replaces the stored
	// message and timestamp when one already exists for the contact.
	UpsertPending(ctx context.Context, contactID, phone, initialMessage string) (*PendingRegistration, error)
	PendingByContact(ctx context.Context, contactID string) (*PendingRegistration, error)
	CompletePending(ctx context.Context, contactID string, tenantID uuid.UUID) error
}

// TenantDirectory looks up and creates tenant records.
type TenantDirectory interface {
	Get(ctx context.Context, id uuid.UUID) (*Tenant, error)

	// ByPhone matches either the raw or the normalized form of the number.
	ByPhone(ctx context.Context, raw, normalized string) (*Tenant, error)

	Create(ctx context.Context, name, phone string, propertyID uuid.UUID) (*Tenant, error)
}

// PropertyDirectory lists managed properties for registration matching.
type PropertyDirectory interface {
	Get(ctx context.Context, id uuid.UUID) (*Property, error)
	List(ctx context.Context, limit int) ([]Property, error)
	Create(ctx context.Context, name, address string) (*Property, error)
}

// Stores is the top-level container for all storage backends.
type Stores struct {
	Issues        IssueStore
	Messages      MessageStore
	Activity      ActivityStore
	Conversations ConversationStore
	Tenants       TenantDirectory
	Properties    PropertyDirectory

	closer func() error
}

// SetCloser registers the backend shutdown function.
func (s *Stores) SetCloser(fn func() error) { s.closer = fn }

// Close releases the underlying backend.
func (s *Stores) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer()
}
