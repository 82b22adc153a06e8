// Package registry is the single source of truth for "which issue is this
// inbound message about". It maps channel contacts to at most one active
// conversation and manages pending registrations for unknown senders.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/mk-162/fixMate/internal/classify"
	"github.com/mk-162/fixMate/internal/store"
)

// candidateCap bounds how many properties a disambiguation prompt lists.
const candidateCap = 5

// Registry resolves inbound contacts to conversations and tenants.
type Registry struct {
	conversations store.ConversationStore
	tenants       store.TenantDirectory
	properties    store.PropertyDirectory
	classifier    classify.Classifier
}

// New constructs a Registry.
func New(conversations store.ConversationStore, tenants store.TenantDirectory, properties store.PropertyDirectory, classifier classify.Classifier) *Registry {
	return &Registry{
		conversations: conversations,
		tenants:       tenants,
		properties:    properties,
		classifier:    classifier,
	}
}

// ResolveActive returns the active conversation for a contact, or nil
// when there is none. A conversation whose issue has reached a
// routing-terminal status is treated as inactive even if its own status
// field was never explicitly closed; the store applies that predicate at
// query time.
func (r *Registry) ResolveActive(ctx context.Context, contactID string) (*store.Conversation, error) {
	conv, err := r.conversations.ActiveByContact(ctx, contactID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("resolve active conversation: %w", err)
	}
	return conv, nil
}

// Bind creates a new active conversation linking a contact to an issue.
// It deliberately does not deduplicate across different issues for the
// same contact; ResolveActive always returns the most recently created
// binding that still matches the active predicate.
func (r *Registry) Bind(ctx context.Context, contactID, phone, channel string, tenantID, issueID uuid.UUID) (*store.Conversation, error) {
	conv := &store.Conversation{
		ID:        store.GenNewID(),
		ContactID: contactID,
		Phone:     phone,
		Channel:   channel,
		TenantID:  tenantID,
		IssueID:   issueID,
		Status:    store.ConversationActive,
	}
	if err := r.conversations.Create(ctx, conv); err != nil {
		return nil, fmt.Errorf("bind conversation: %w", err)
	}
	slog.Debug("conversation bound", "contact", contactID, "issue", issueID)
	return conv, nil
}

// ByIssue returns the most recent conversation bound to an issue.
func (r *Registry) ByIssue(ctx context.Context, issueID uuid.UUID) (*store.Conversation, error) {
	return r.conversations.ByIssue(ctx, issueID)
}

// FindTenantByAddress looks up a tenant by phone, trying both the raw
// and the normalized form.
func (r *Registry) FindTenantByAddress(ctx context.Context, phone string) (*store.Tenant, error) {
	if phone == "" {
		return nil, nil
	}
	tenant, err := r.tenants.ByPhone(ctx, phone, NormalizePhone(phone))
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("tenant lookup: %w", err)
	}
	return tenant, nil
}

// OpenPendingRegistration records an unrecognized contact's first message.
// Upsert semantics: a second message from the same contact replaces the
// stored message rather than creating a duplicate.
func (r *Registry) OpenPendingRegistration(ctx context.Context, contactID, phone, firstMessage string) (*store.PendingRegistration, error) {
	pending, err := r.conversations.UpsertPending(ctx, contactID, phone, firstMessage)
	if err != nil {
		return nil, fmt.Errorf("open pending registration: %w", err)
	}
	return pending, nil
}

// PendingRegistration returns the pending record for a contact, or nil.
func (r *Registry) PendingRegistration(ctx context.Context, contactID string) (*store.PendingRegistration, error) {
	pending, err := r.conversations.PendingByContact(ctx, contactID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return pending, nil
}

// MatchProperty tries to match free text against the known properties.
// On failure it returns the candidate list (capped) for the
// disambiguation prompt; that is the re-prompt branch, not an error.
func (r *Registry) MatchProperty(ctx context.Context, text string) (*store.Property, []store.Property, error) {
	candidates, err := r.properties.List(ctx, 0)
	if err != nil {
		return nil, nil, fmt.Errorf("list properties: %w", err)
	}
	if match := r.classifier.MatchProperty(text, candidates); match != nil {
		return match, nil, nil
	}
	if len(candidates) > candidateCap {
		candidates = candidates[:candidateCap]
	}
	return nil, candidates, nil
}

// RegisterTenant creates the tenant record for a matched registration
// reply, extracting the name from the reply text, and marks the pending
// record completed. Subsequent messages from the contact route through
// ResolveActive / normal tenant lookup.
func (r *Registry) RegisterTenant(ctx context.Context, contactID, phone, reply string, property *store.Property) (*store.Tenant, error) {
	name := r.classifier.ExtractName(reply, property.Name)
	tenant, err := r.tenants.Create(ctx, name, NormalizePhone(phone), property.ID)
	if err != nil {
		return nil, fmt.Errorf("create tenant: %w", err)
	}
	if err := r.conversations.CompletePending(ctx, contactID, tenant.ID); err != nil {
		return nil, fmt.Errorf("complete registration: %w", err)
	}
	slog.Info("registration completed", "contact", contactID, "tenant", tenant.ID, "property", property.Name)
	return tenant, nil
}
