// Package memory implements the stores on in-process maps. It exists for
// tests and quick experiments; nothing survives a restart.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mk-162/fixMate/internal/store"
)

// NewStores returns an empty in-memory backend with the cross-store
// lookups already wired.
func NewStores() *store.Stores {
	issues := &IssueStore{issues: make(map[uuid.UUID]*store.Issue)}
	conversations := &ConversationStore{pending: make(map[string]*store.PendingRegistration)}
	conversations.BindIssues(issues)
	properties := &PropertyDirectory{properties: make(map[uuid.UUID]*store.Property)}
	tenants := &TenantDirectory{tenants: make(map[uuid.UUID]*store.Tenant)}
	tenants.BindProperties(properties)

	return &store.Stores{
		Issues:        issues,
		Messages:      &MessageStore{},
		Activity:      &ActivityStore{},
		Conversations: conversations,
		Tenants:       tenants,
		Properties:    properties,
	}
}

// IssueStore is the in-memory store.IssueStore.
type IssueStore struct {
	mu     sync.RWMutex
	issues map[uuid.UUID]*store.Issue
	order  []uuid.UUID
}

const calloutCost = 150

func (s *IssueStore) Create(ctx context.Context, issue *store.Issue) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *issue
	s.issues[issue.ID] = &copied
	s.order = append(s.order, issue.ID)
	return nil
}

func (s *IssueStore) Get(ctx context.Context, id uuid.UUID) (*store.Issue, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	issue, ok := s.issues[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	copied := *issue
	return &copied, nil
}

func (s *IssueStore) ListByProperty(ctx context.Context, propertyID uuid.UUID) ([]store.Issue, error) {
	return s.filter(func(i *store.Issue) bool { return i.PropertyID == propertyID }, 0), nil
}

func (s *IssueStore) ListByTenant(ctx context.Context, tenantID uuid.UUID) ([]store.Issue, error) {
	return s.filter(func(i *store.Issue) bool { return i.TenantID == tenantID }, 0), nil
}

func (s *IssueStore) ListByStatus(ctx context.Context, status store.IssueStatus) ([]store.Issue, error) {
	return s.filter(func(i *store.Issue) bool { return i.Status == status }, 0), nil
}

func (s *IssueStore) ListAll(ctx context.Context, limit int) ([]store.Issue, error) {
	if limit <= 0 {
		limit = 100
	}
	return s.filter(func(*store.Issue) bool { return true }, limit), nil
}

func (s *IssueStore) UpdateStatus(ctx context.Context, id uuid.UUID, status store.IssueStatus, extra store.StatusUpdate) (*store.Issue, error) {
	return s.update(id, func(issue *store.Issue) {
		issue.Status = status
		if extra.ResolvedSummary != "" {
			issue.ResolvedByAgent = extra.ResolvedSummary
		}
		if extra.Assignee != "" {
			issue.AssignedTo = extra.Assignee
		}
	})
}

func (s *IssueStore) SetPriority(ctx context.Context, id uuid.UUID, priority store.IssuePriority) (*store.Issue, error) {
	return s.update(id, func(issue *store.Issue) { issue.Priority = priority })
}

func (s *IssueStore) SetAssignee(ctx context.Context, id uuid.UUID, assignee string) (*store.Issue, error) {
	return s.update(id, func(issue *store.Issue) { issue.AssignedTo = assignee })
}

func (s *IssueStore) SetNotes(ctx context.Context, id uuid.UUID, notes string) (*store.Issue, error) {
	return s.update(id, func(issue *store.Issue) { issue.PMNotes = notes })
}

func (s *IssueStore) SetMuted(ctx context.Context, id uuid.UUID, muted bool) (*store.Issue, error) {
	return s.update(id, func(issue *store.Issue) { issue.AgentMuted = muted })
}

func (s *IssueStore) SetFollowUp(ctx context.Context, id uuid.UUID, at *time.Time) (*store.Issue, error) {
	return s.update(id, func(issue *store.Issue) {
		if at == nil {
			issue.FollowUpAt = nil
			return
		}
		t := *at
		issue.FollowUpAt = &t
	})
}

func (s *IssueStore) Close(ctx context.Context, id uuid.UUID) (*store.Issue, error) {
	now := time.Now().UTC()
	return s.update(id, func(issue *store.Issue) {
		issue.Status = store.StatusClosed
		issue.ClosedAt = &now
	})
}

func (s *IssueStore) ListDueFollowUps(ctx context.Context, now time.Time) ([]store.Issue, error) {
	return s.filter(func(i *store.Issue) bool {
		return i.FollowUpAt != nil && !i.FollowUpAt.After(now)
	}, 0), nil
}

func (s *IssueStore) ResolutionStats(ctx context.Context) (*store.ResolutionStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stats := store.ResolutionStats{AvgCalloutCost: calloutCost}
	for _, issue := range s.issues {
		stats.TotalIssues++
		switch issue.Status {
		case store.StatusResolvedByAgent:
			stats.ResolvedByAgent++
		case store.StatusEscalated:
			stats.Escalated++
		}
	}
	if stats.TotalIssues > 0 {
		stats.ResolutionRate = float64(stats.ResolvedByAgent) / float64(stats.TotalIssues) * 100
	}
	stats.EstimatedSavings = stats.ResolvedByAgent * calloutCost
	return &stats, nil
}

func (s *IssueStore) CategoryBreakdown(ctx context.Context) ([]store.CategoryCount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	byCategory := make(map[string]*store.CategoryCount)
	for _, issue := range s.issues {
		cat := string(issue.Category)
		if cat == "" {
			cat = "uncategorized"
		}
		count, ok := byCategory[cat]
		if !ok {
			count = &store.CategoryCount{Category: cat}
			byCategory[cat] = count
		}
		count.Total++
		switch issue.Status {
		case store.StatusResolvedByAgent:
			count.Resolved++
		case store.StatusEscalated:
			count.Escalated++
		}
	}

	counts := make([]store.CategoryCount, 0, len(byCategory))
	for _, count := range byCategory {
		counts = append(counts, *count)
	}
	sort.Slice(counts, func(i, j int) bool { return counts[i].Total > counts[j].Total })
	return counts, nil
}

func (s *IssueStore) update(id uuid.UUID, fn func(*store.Issue)) (*store.Issue, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	issue, ok := s.issues[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	fn(issue)
	issue.UpdatedAt = time.Now().UTC()
	copied := *issue
	return &copied, nil
}

// filter returns matches newest first.
func (s *IssueStore) filter(keep func(*store.Issue) bool, limit int) []store.Issue {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []store.Issue
	for i := len(s.order) - 1; i >= 0; i-- {
		issue := s.issues[s.order[i]]
		if !keep(issue) {
			continue
		}
		out = append(out, *issue)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out
}

// MessageStore is the in-memory store.MessageStore. Append order is
// retrieval order.
type MessageStore struct {
	mu       sync.RWMutex
	messages []store.Message
}

func (s *MessageStore) Append(ctx context.Context, issueID uuid.UUID, role store.MessageRole, content string, metadata map[string]string) (*store.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg := store.Message{
		ID:        store.GenNewID(),
		IssueID:   issueID,
		Role:      role,
		Content:   content,
		Metadata:  metadata,
		CreatedAt: time.Now().UTC(),
	}
	s.messages = append(s.messages, msg)
	copied := msg
	return &copied, nil
}

func (s *MessageStore) ListOrdered(ctx context.Context, issueID uuid.UUID, limit int) ([]store.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []store.Message
	for _, msg := range s.messages {
		if msg.IssueID == issueID {
			out = append(out, msg)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (s *MessageStore) Transcript(ctx context.Context, issueID uuid.UUID) (string, error) {
	messages, err := s.ListOrdered(ctx, issueID, 0)
	if err != nil {
		return "", err
	}
	return store.RenderTranscript(messages), nil
}

// ActivityStore is the in-memory append-only audit log.
type ActivityStore struct {
	mu      sync.RWMutex
	records []store.ActivityRecord
}

func (s *ActivityStore) Append(ctx context.Context, issueID *uuid.UUID, action string, details map[string]any, wouldNotify string) (*store.ActivityRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record := store.ActivityRecord{
		ID:          store.GenNewID(),
		Action:      action,
		Details:     details,
		WouldNotify: wouldNotify,
		CreatedAt:   time.Now().UTC(),
	}
	if issueID != nil {
		id := *issueID
		record.IssueID = &id
	}
	s.records = append(s.records, record)
	copied := record
	return &copied, nil
}

func (s *ActivityStore) List(ctx context.Context, issueID *uuid.UUID, limit int) ([]store.ActivityRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []store.ActivityRecord
	for i := len(s.records) - 1; i >= 0; i-- {
		record := s.records[i]
		if issueID == nil {
			if record.IssueID != nil {
				continue
			}
		} else if record.IssueID == nil || *record.IssueID != *issueID {
			continue
		}
		out = append(out, record)
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

// ConversationStore is the in-memory store.ConversationStore. The active
// lookup needs issue statuses, so tests must share the same IssueStore via
// BindIssues before exercising ActiveByContact.
type ConversationStore struct {
	mu            sync.RWMutex
	conversations []store.Conversation
	pending       map[string]*store.PendingRegistration
	issues        store.IssueStore
}

// BindIssues wires the issue store consulted by ActiveByContact.
func (s *ConversationStore) BindIssues(issues store.IssueStore) { s.issues = issues }

func (s *ConversationStore) Create(ctx context.Context, conv *store.Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	conv.CreatedAt = now
	conv.UpdatedAt = now
	s.conversations = append(s.conversations, *conv)
	return nil
}

func (s *ConversationStore) ActiveByContact(ctx context.Context, contactID string) (*store.Conversation, error) {
	s.mu.RLock()
	candidates := make([]store.Conversation, 0, 1)
	for i := len(s.conversations) - 1; i >= 0; i-- {
		conv := s.conversations[i]
		if conv.ContactID == contactID && conv.Status == store.ConversationActive {
			candidates = append(candidates, conv)
		}
	}
	issues := s.issues
	s.mu.RUnlock()

	for _, conv := range candidates {
		if issues != nil {
			issue, err := issues.Get(ctx, conv.IssueID)
			if err != nil || issue.Status.RoutingTerminal() {
				continue
			}
		}
		copied := conv
		return &copied, nil
	}
	return nil, store.ErrNotFound
}

func (s *ConversationStore) ByIssue(ctx context.Context, issueID uuid.UUID) (*store.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := len(s.conversations) - 1; i >= 0; i-- {
		if s.conversations[i].IssueID == issueID {
			copied := s.conversations[i]
			return &copied, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *ConversationStore) CloseByIssue(ctx context.Context, issueID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	for i := range s.conversations {
		if s.conversations[i].IssueID == issueID {
			s.conversations[i].Status = store.ConversationClosed
			s.conversations[i].UpdatedAt = now
		}
	}
	return nil
}

func (s *ConversationStore) UpsertPending(ctx context.Context, contactID, phone, initialMessage string) (*store.PendingRegistration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	pending, ok := s.pending[contactID]
	if !ok {
		pending = &store.PendingRegistration{
			ID:        store.GenNewID(),
			ContactID: contactID,
			CreatedAt: now,
		}
		s.pending[contactID] = pending
	}
	pending.Phone = phone
	pending.InitialMessage = initialMessage
	pending.Status = store.RegistrationPending
	pending.UpdatedAt = now
	copied := *pending
	return &copied, nil
}

func (s *ConversationStore) PendingByContact(ctx context.Context, contactID string) (*store.PendingRegistration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pending, ok := s.pending[contactID]
	if !ok || pending.Status != store.RegistrationPending {
		return nil, store.ErrNotFound
	}
	copied := *pending
	return &copied, nil
}

func (s *ConversationStore) CompletePending(ctx context.Context, contactID string, tenantID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	pending, ok := s.pending[contactID]
	if !ok || pending.Status != store.RegistrationPending {
		return store.ErrNotFound
	}
	pending.Status = store.RegistrationCompleted
	id := tenantID
	pending.TenantID = &id
	pending.UpdatedAt = time.Now().UTC()
	return nil
}

// TenantDirectory is the in-memory store.TenantDirectory.
type TenantDirectory struct {
	mu         sync.RWMutex
	tenants    map[uuid.UUID]*store.Tenant
	properties store.PropertyDirectory
}

// BindProperties wires the directory used to fill PropertyName on reads.
func (d *TenantDirectory) BindProperties(properties store.PropertyDirectory) {
	d.properties = properties
}

func (d *TenantDirectory) Get(ctx context.Context, id uuid.UUID) (*store.Tenant, error) {
	d.mu.RLock()
	tenant, ok := d.tenants[id]
	d.mu.RUnlock()
	if !ok {
		return nil, store.ErrNotFound
	}
	return d.withPropertyName(ctx, tenant), nil
}

func (d *TenantDirectory) ByPhone(ctx context.Context, raw, normalized string) (*store.Tenant, error) {
	d.mu.RLock()
	var match *store.Tenant
	for _, tenant := range d.tenants {
		if tenant.Active && (tenant.Phone == raw || tenant.Phone == normalized) {
			match = tenant
			break
		}
	}
	d.mu.RUnlock()
	if match == nil {
		return nil, store.ErrNotFound
	}
	return d.withPropertyName(ctx, match), nil
}

func (d *TenantDirectory) Create(ctx context.Context, name, phone string, propertyID uuid.UUID) (*store.Tenant, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	now := time.Now().UTC()
	tenant := &store.Tenant{
		ID:         store.GenNewID(),
		Name:       name,
		Phone:      phone,
		PropertyID: propertyID,
		Active:     true,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	d.tenants[tenant.ID] = tenant
	copied := *tenant
	return &copied, nil
}

func (d *TenantDirectory) withPropertyName(ctx context.Context, tenant *store.Tenant) *store.Tenant {
	copied := *tenant
	if d.properties != nil {
		if prop, err := d.properties.Get(ctx, tenant.PropertyID); err == nil {
			copied.PropertyName = prop.Name
		}
	}
	return &copied
}

// PropertyDirectory is the in-memory store.PropertyDirectory.
type PropertyDirectory struct {
	mu         sync.RWMutex
	properties map[uuid.UUID]*store.Property
}

func (d *PropertyDirectory) Get(ctx context.Context, id uuid.UUID) (*store.Property, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	prop, ok := d.properties[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	copied := *prop
	return &copied, nil
}

func (d *PropertyDirectory) List(ctx context.Context, limit int) ([]store.Property, error) {
	if limit <= 0 {
		limit = 1000
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	properties := make([]store.Property, 0, len(d.properties))
	for _, prop := range d.properties {
		properties = append(properties, *prop)
	}
	sort.Slice(properties, func(i, j int) bool {
		return strings.ToLower(properties[i].Name) < strings.ToLower(properties[j].Name)
	})
	if len(properties) > limit {
		properties = properties[:limit]
	}
	return properties, nil
}

func (d *PropertyDirectory) Create(ctx context.Context, name, address string) (*store.Property, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	prop := &store.Property{
		ID:        store.GenNewID(),
		Name:      name,
		Address:   address,
		CreatedAt: time.Now().UTC(),
	}
	d.properties[prop.ID] = prop
	copied := *prop
	return &copied, nil
}
