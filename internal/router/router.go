// Package router turns normalized inbound channel messages into
// conversation-engine actions: continue an active conversation, advance a
// pending registration, or open a new issue for a known tenant.
package router

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/mk-162/fixMate/internal/agent"
	"github.com/mk-162/fixMate/internal/bus"
	"github.com/mk-162/fixMate/internal/channels"
	"github.com/mk-162/fixMate/internal/lifecycle"
	"github.com/mk-162/fixMate/internal/registry"
	"github.com/mk-162/fixMate/internal/store"
)

const (
	instantAck = "Got it, let me check on that..."

	processingApology = "Sorry, I'm having trouble processing your message. " +
		"Please try again or contact your property manager directly."

	newIssueApology = "I've logged your issue and your property manager will be in touch soon. " +
		"Is there anything else you'd like to add?"

	noPropertiesMessage = "Sorry, no properties are set up yet. " +
		"Please contact your property manager directly."
)

// Router routes inbound messages. Processing for a single contact is
// serialized by a per-contact lock; independent contacts run concurrently.
type Router struct {
	registry     *registry.Registry
	lifecycle    *lifecycle.Lifecycle
	orchestrator *agent.Orchestrator
	messages     store.MessageStore
	activity     store.ActivityStore
	channels     *channels.Manager
	inbound      bus.MessageRouter

	mu    sync.Mutex
	locks map[string]*sync.Mutex

	tracer trace.Tracer
}

// New constructs a Router.
func New(reg *registry.Registry, lc *lifecycle.Lifecycle, orch *agent.Orchestrator, messages store.MessageStore, activity store.ActivityStore, mgr *channels.Manager, inbound bus.MessageRouter) *Router {
	return &Router{
		registry:     reg,
		lifecycle:    lc,
		orchestrator: orch,
		messages:     messages,
		activity:     activity,
		channels:     mgr,
		inbound:      inbound,
		locks:        make(map[string]*sync.Mutex),
		tracer:       otel.Tracer("fixmate/router"),
	}
}

// Run consumes the inbound bus until ctx is done. Each message is handled
// on its own goroutine; the per-contact lock keeps a single contact's
// messages sequential.
func (r *Router) Run(ctx context.Context) error {
	for {
		msg, ok := r.inbound.ConsumeInbound(ctx)
		if !ok {
			return ctx.Err()
		}
		go func(msg bus.InboundMessage) {
			if err := r.HandleInbound(ctx, msg); err != nil {
				slog.Error("inbound handling failed", "channel", msg.Channel, "contact", msg.ContactID, "error", err)
			}
		}(msg)
	}
}

// HandleInbound processes one normalized inbound message. Non-text kinds
// are dropped. Agent and channel failures are absorbed here: the tenant's
// message is already recorded by the time they can occur.
func (r *Router) HandleInbound(ctx context.Context, msg bus.InboundMessage) error {
	if msg.Kind != bus.KindText || strings.TrimSpace(msg.Content) == "" {
		return nil
	}

	ctx, span := r.tracer.Start(ctx, "router.inbound",
		trace.WithAttributes(
			attribute.String("channel", msg.Channel),
			attribute.String("contact.id", msg.ContactID),
		))
	defer span.End()

	lock := r.contactLock(msg.ContactID)
	lock.Lock()
	defer lock.Unlock()

	conv, err := r.registry.ResolveActive(ctx, msg.ContactID)
	if err != nil {
		return err
	}
	if conv != nil {
		return r.continueConversation(ctx, msg, conv)
	}

	pending, err := r.registry.PendingRegistration(ctx, msg.ContactID)
	if err != nil {
		return err
	}
	if pending != nil && pending.Status == store.RegistrationPending {
		return r.handleRegistrationReply(ctx, msg, pending)
	}

	return r.handleNewContact(ctx, msg)
}

// continueConversation feeds a message into an existing issue thread.
func (r *Router) continueConversation(ctx context.Context, msg bus.InboundMessage, conv *store.Conversation) error {
	// Instant acknowledgment so the tenant is not staring at silence
	// while the model thinks.
	r.send(ctx, &conv.IssueID, msg.Channel, r.address(msg), instantAck)

	r.logActivity(ctx, &conv.IssueID, "whatsapp_message_received", map[string]any{
		"contact_id":          msg.ContactID,
		"provider_message_id": msg.ProviderMessageID,
		"message_preview":     truncate(msg.Content, 100),
	})

	// HandleTenantResponse persists the tenant message before anything
	// else, so an agent failure below never loses it.
	reply, err := r.orchestrator.HandleTenantResponse(ctx, conv.IssueID, msg.Content)
	if err != nil {
		r.send(ctx, &conv.IssueID, msg.Channel, r.address(msg), processingApology)
		return nil
	}
	if reply == "" {
		// Muted issue: message stored, agent skipped, nothing to send.
		return nil
	}

	r.sendLatestAgentMessage(ctx, conv.IssueID, msg.Channel, r.address(msg))
	return nil
}

// handleRegistrationReply advances a pending registration: match the
// property, create the tenant, and open an issue from the original
// pending message.
func (r *Router) handleRegistrationReply(ctx context.Context, msg bus.InboundMessage, pending *store.PendingRegistration) error {
	match, candidates, err := r.registry.MatchProperty(ctx, msg.Content)
	if err != nil {
		return err
	}

	if match == nil {
		if len(candidates) == 0 {
			r.send(ctx, nil, msg.Channel, r.address(msg), noPropertiesMessage)
			return nil
		}
		r.send(ctx, nil, msg.Channel, r.address(msg), fmt.Sprintf(
			"I couldn't find that property. Here are the properties I manage:\n\n%s\n\nPlease reply with your name and one of these property names.",
			propertyList(candidates)))
		return nil
	}

	tenant, err := r.registry.RegisterTenant(ctx, msg.ContactID, r.address(msg), msg.Content, match)
	if err != nil {
		return err
	}

	r.send(ctx, nil, msg.Channel, r.address(msg), welcomeMessage(match.Name, pending.InitialMessage))

	// The issue comes from the message that started the registration, not
	// from the reply that completed it.
	return r.openIssue(ctx, msg, tenant, pending.InitialMessage, false)
}

// handleNewContact routes the first message from an unbound contact.
func (r *Router) handleNewContact(ctx context.Context, msg bus.InboundMessage) error {
	tenant, err := r.registry.FindTenantByAddress(ctx, r.address(msg))
	if err != nil {
		return err
	}

	if tenant == nil {
		r.send(ctx, nil, msg.Channel, r.address(msg), r.registrationPrompt(ctx))
		if _, err := r.registry.OpenPendingRegistration(ctx, msg.ContactID, msg.Phone, msg.Content); err != nil {
			return err
		}
		return nil
	}

	property := tenant.PropertyName
	if property == "" {
		property = "your property"
	}
	r.send(ctx, nil, msg.Channel, r.address(msg), fmt.Sprintf(
		"Hi %s! Got your message. Let me look into this for %s...", firstName(tenant.Name), property))

	return r.openIssue(ctx, msg, tenant, msg.Content, true)
}

// openIssue creates the issue, binds the conversation, records the
// initiating message, and wakes the agent. apologize selects the fallback
// sent when the agent fails on a brand-new report.
func (r *Router) openIssue(ctx context.Context, msg bus.InboundMessage, tenant *store.Tenant, body string, apologize bool) error {
	issue, err := r.lifecycle.Create(ctx, tenant.ID, tenant.PropertyID, issueTitle(body), body, store.CategoryUnset)
	if err != nil {
		return err
	}

	if _, err := r.registry.Bind(ctx, msg.ContactID, msg.Phone, msg.Channel, tenant.ID, issue.ID); err != nil {
		return err
	}

	if _, err := r.messages.Append(ctx, issue.ID, store.RoleTenant, "[Via WhatsApp] "+body, nil); err != nil {
		return fmt.Errorf("record initiating message: %w", err)
	}

	r.logActivity(ctx, &issue.ID, "issue_created_via_whatsapp", map[string]any{
		"contact_id":          msg.ContactID,
		"phone":               msg.Phone,
		"provider_message_id": msg.ProviderMessageID,
	})

	if _, err := r.orchestrator.HandleNewIssue(ctx, issue.ID); err != nil {
		// The issue and its first message already exist; agent failure is
		// non-fatal to the report.
		if apologize {
			r.send(ctx, &issue.ID, msg.Channel, r.address(msg), newIssueApology)
		}
		return nil
	}

	r.sendLatestAgentMessage(ctx, issue.ID, msg.Channel, r.address(msg))
	return nil
}

// sendLatestAgentMessage pushes the most recent agent-role message from
// the transcript through the channel, logging delivery either way.
func (r *Router) sendLatestAgentMessage(ctx context.Context, issueID uuid.UUID, channel, address string) {
	recent, err := r.messages.ListOrdered(ctx, issueID, 5)
	if err != nil {
		slog.Warn("loading recent messages failed", "issue", issueID, "error", err)
		return
	}
	for i := len(recent) - 1; i >= 0; i-- {
		if recent[i].Role != store.RoleAgent {
			continue
		}
		r.send(ctx, &issueID, channel, address, recent[i].Content)
		return
	}
}

func (r *Router) registrationPrompt(ctx context.Context) string {
	_, candidates, err := r.registry.MatchProperty(ctx, "")
	if err != nil || len(candidates) == 0 {
		return "Hi! I'm FixMate, your property maintenance assistant.\n\n" +
			"I don't have your phone number on file yet, and no properties are set up. " +
			"Please contact your property manager directly."
	}
	return fmt.Sprintf(
		"Hi! I'm FixMate, your property maintenance assistant.\n\n"+
			"I don't have your phone number on file yet. Here are the properties I manage:\n\n%s\n\n"+
			"Please reply with your name and which property you live at, and I'll get you set up!",
		propertyList(candidates))
}

// send delivers text through the named channel, logging send failures to
// the audit trail and never propagating them: a messaging outage must not
// block issue creation or status changes.
func (r *Router) send(ctx context.Context, issueID *uuid.UUID, channel, address, text string) {
	sender, err := r.channels.Sender(channel)
	if err != nil {
		slog.Warn("no sender for channel", "channel", channel, "error", err)
		return
	}

	result, err := sender.Send(ctx, address, text)
	if err != nil {
		errText := result.Error
		if errText == "" {
			errText = err.Error()
		}
		r.logActivity(ctx, issueID, "whatsapp_send_failed", map[string]any{
			"address": address,
			"error":   errText,
		})
		return
	}

	if issueID != nil {
		r.logActivity(ctx, issueID, "whatsapp_message_sent", map[string]any{
			"address":             address,
			"provider_message_id": result.ProviderMessageID,
			"message_preview":     truncate(text, 100),
		})
	}
}

func (r *Router) contactLock(contactID string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	lock, ok := r.locks[contactID]
	if !ok {
		lock = &sync.Mutex{}
		r.locks[contactID] = lock
	}
	return lock
}

func (r *Router) logActivity(ctx context.Context, issueID *uuid.UUID, action string, details map[string]any) {
	if _, err := r.activity.Append(ctx, issueID, action, details, ""); err != nil {
		slog.Warn("activity log failed", "action", action, "error", err)
	}
}

// address picks the delivery address for a message: phone when the
// provider gave one, contact ID otherwise (Telegram chat IDs).
func (r *Router) address(msg bus.InboundMessage) string {
	if msg.Phone != "" {
		return msg.Phone
	}
	return msg.ContactID
}

func issueTitle(body string) string {
	if len(body) > 50 {
		return "WhatsApp: " + body[:50] + "..."
	}
	return "WhatsApp: " + body
}

func welcomeMessage(propertyName, initialMessage string) string {
	quoted := initialMessage
	if len(quoted) > 100 {
		quoted = quoted[:100] + "..."
	}
	return fmt.Sprintf(
		"Perfect! I've linked your number to %s.\n\n"+
			"You can now message me anytime about maintenance issues. What can I help you with today?\n\n"+
			"(Your original message: %q)", propertyName, quoted)
}

func propertyList(properties []store.Property) string {
	var b strings.Builder
	for i, p := range properties {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString("- " + p.Name)
		if p.Address != "" {
			b.WriteString(" (" + p.Address + ")")
		}
	}
	return b.String()
}

func firstName(name string) string {
	fields := strings.Fields(name)
	if len(fields) == 0 {
		return "there"
	}
	return fields[0]
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
