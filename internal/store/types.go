package store

import (
	"time"

	"github.com/google/uuid"
)

// IssueStatus is the lifecycle state of a maintenance issue.
type IssueStatus string

const (
	StatusNew                  IssueStatus = "new"
	StatusTriaging             IssueStatus = "triaging"
	StatusResolvedByAgent      IssueStatus = "resolved_by_agent"
	StatusEscalated            IssueStatus = "escalated"
	StatusAssigned             IssueStatus = "assigned"
	StatusInProgress           IssueStatus = "in_progress"
	StatusAwaitingConfirmation IssueStatus = "awaiting_confirmation"
	StatusClosed               IssueStatus = "closed"
)

// Valid reports whether s is one of the eight named lifecycle states.
func (s IssueStatus) Valid() bool {
	switch s {
	case StatusNew, StatusTriaging, StatusResolvedByAgent, StatusEscalated,
		StatusAssigned, StatusInProgress, StatusAwaitingConfirmation, StatusClosed:
		return true
	}
	return false
}

// RoutingTerminal reports whether an issue in this state should stop
// automatic agent routing. Escalated issues are not fully closed but
// still end the automated conversation.
func (s IssueStatus) RoutingTerminal() bool {
	switch s {
	case StatusClosed, StatusResolvedByAgent, StatusEscalated:
		return true
	}
	return false
}

// IssuePriority is the urgency level assigned to an issue.
type IssuePriority string

const (
	PriorityLow    IssuePriority = "low"
	PriorityMedium IssuePriority = "medium"
	PriorityHigh   IssuePriority = "high"
	PriorityUrgent IssuePriority = "urgent"
)

func (p IssuePriority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

// IssueCategory is the fixed problem-category vocabulary. The empty
// string means "not yet categorized" (the agent categorizes later).
type IssueCategory string

const (
	CategoryPlumbing   IssueCategory = "plumbing"
	CategoryElectrical IssueCategory = "electrical"
	CategoryAppliance  IssueCategory = "appliance"
	CategoryHeating    IssueCategory = "heating"
	CategoryStructural IssueCategory = "structural"
	CategorySecurity   IssueCategory = "security"
	CategoryOther      IssueCategory = "other"
	CategoryUnset      IssueCategory = ""
)

func (c IssueCategory) Valid() bool {
	switch c {
	case CategoryPlumbing, CategoryElectrical, CategoryAppliance, CategoryHeating,
		CategoryStructural, CategorySecurity, CategoryOther, CategoryUnset:
		return true
	}
	return false
}

// Issue is a single reported maintenance problem and its lifecycle record.
type Issue struct {
	ID              uuid.UUID     `json:"id"`
	TenantID        uuid.UUID     `json:"tenant_id"`
	PropertyID      uuid.UUID     `json:"property_id"`
	Title           string        `json:"title"`
	Description     string        `json:"description"`
	Category        IssueCategory `json:"category,omitempty"`
	Status          IssueStatus   `json:"status"`
	Priority        IssuePriority `json:"priority"`
	AssignedTo      string        `json:"assigned_to,omitempty"`
	ResolvedByAgent string        `json:"resolved_by_agent,omitempty"` // resolution summary, set only on agent-resolved transition
	PMNotes         string        `json:"pm_notes,omitempty"`
	FollowUpAt      *time.Time    `json:"follow_up_at,omitempty"`
	AgentMuted      bool          `json:"agent_muted"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
	ClosedAt        *time.Time    `json:"closed_at,omitempty"`
}

// MessageRole identifies who authored a conversation message.
type MessageRole string

const (
	RoleTenant MessageRole = "tenant"
	RoleAgent  MessageRole = "agent"
	RoleSystem MessageRole = "system"
	RoleTeam   MessageRole = "team"
)

// Message is one entry in an issue's conversation transcript.
type Message struct {
	ID        uuid.UUID         `json:"id"`
	IssueID   uuid.UUID         `json:"issue_id"`
	Role      MessageRole       `json:"role"`
	Content   string            `json:"content"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

// ActivityRecord is one append-only audit log entry. IssueID is nil for
// process-level errors that are not tied to a specific issue.
type ActivityRecord struct {
	ID          uuid.UUID      `json:"id"`
	IssueID     *uuid.UUID     `json:"issue_id,omitempty"`
	Action      string         `json:"action"`
	Details     map[string]any `json:"details,omitempty"`
	WouldNotify string         `json:"would_notify,omitempty"` // comma-joined role tags, advisory only
	CreatedAt   time.Time      `json:"created_at"`
}

// ConversationStatus marks whether a channel binding is still live.
type ConversationStatus string

const (
	ConversationActive ConversationStatus = "active"
	ConversationClosed ConversationStatus = "closed"
)

// Conversation binds a channel contact to the issue currently being
// discussed with them.
type Conversation struct {
	ID        uuid.UUID          `json:"id"`
	ContactID string             `json:"contact_id"`
	Phone     string             `json:"phone,omitempty"`
	Channel   string             `json:"channel"`
	TenantID  uuid.UUID          `json:"tenant_id"`
	IssueID   uuid.UUID          `json:"issue_id"`
	Status    ConversationStatus `json:"status"`
	CreatedAt time.Time          `json:"created_at"`
	UpdatedAt time.Time          `json:"updated_at"`
}

// RegistrationStatus is the state of a pending-registration record.
type RegistrationStatus string

const (
	RegistrationPending   RegistrationStatus = "pending"
	RegistrationCompleted RegistrationStatus = "completed"
)

// PendingRegistration is a provisional record for an unrecognized contact
// awaiting identity/property confirmation. ContactID is unique: a second
// inbound message replaces the stored message rather than creating a
// duplicate.
type PendingRegistration struct {
	ID             uuid.UUID          `json:"id"`
	ContactID      string             `json:"contact_id"`
	Phone          string             `json:"phone,omitempty"`
	InitialMessage string             `json:"initial_message"`
	Status         RegistrationStatus `json:"status"`
	TenantID       *uuid.UUID         `json:"tenant_id,omitempty"`
	CreatedAt      time.Time          `json:"created_at"`
	UpdatedAt      time.Time          `json:"updated_at"`
}

// Tenant is a registered occupant of a property.
type Tenant struct {
	ID           uuid.UUID `json:"id"`
	Name         string    `json:"name"`
	Phone        string    `json:"phone"`
	PropertyID   uuid.UUID `json:"property_id"`
	PropertyName string    `json:"property_name,omitempty"` // joined, not stored
	Active       bool      `json:"active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Property is a managed rental property.
type Property struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Address   string    `json:"address,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// ResolutionStats summarizes agent performance across all issues.
type ResolutionStats struct {
	TotalIssues      int     `json:"total_issues"`
	ResolvedByAgent  int     `json:"resolved_by_agent"`
	Escalated        int     `json:"escalated"`
	ResolutionRate   float64 `json:"resolution_rate"`
	EstimatedSavings int     `json:"estimated_savings"`
	AvgCalloutCost   int     `json:"avg_callout_cost"`
}

// CategoryCount is one row of the per-category issue breakdown.
type CategoryCount struct {
	Category  string `json:"category"`
	Total     int    `json:"total"`
	Resolved  int    `json:"resolved"`
	Escalated int    `json:"escalated"`
}
