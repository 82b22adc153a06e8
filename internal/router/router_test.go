package router

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/mk-162/fixMate/internal/agent"
	"github.com/mk-162/fixMate/internal/bus"
	"github.com/mk-162/fixMate/internal/channels"
	"github.com/mk-162/fixMate/internal/classify"
	"github.com/mk-162/fixMate/internal/lifecycle"
	"github.com/mk-162/fixMate/internal/providers"
	"github.com/mk-162/fixMate/internal/registry"
	"github.com/mk-162/fixMate/internal/store"
	"github.com/mk-162/fixMate/internal/store/memory"
	"github.com/mk-162/fixMate/internal/tools"
)

// stubSender records outbound sends instead of talking to a provider.
type stubSender struct {
	mu   sync.Mutex
	name string
	fail bool
	sent []string
}

func (s *stubSender) Name() string       { return s.name }
func (s *stubSender) IsConfigured() bool { return true }

func (s *stubSender) Send(ctx context.Context, address, text string) (channels.DeliveryResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return channels.DeliveryResult{Error: "provider down"}, context.DeadlineExceeded
	}
	s.sent = append(s.sent, text)
	return channels.DeliveryResult{Delivered: true, ProviderMessageID: "SM123"}, nil
}

func (s *stubSender) texts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.sent...)
}

// textProvider always answers with plain text and no tool calls.
type textProvider struct{ text string }

func (p *textProvider) Chat(ctx context.Context, req providers.ChatRequest) (*providers.ChatResponse, error) {
	return &providers.ChatResponse{Content: p.text, FinishReason: "stop"}, nil
}
func (p *textProvider) DefaultModel() string { return "test-model" }
func (p *textProvider) Name() string         { return "text" }

type routerEnv struct {
	router *Router
	sender *stubSender
	stores *store.Stores
	reg    *registry.Registry
	lc     *lifecycle.Lifecycle
}

func newRouterEnv(t *testing.T) *routerEnv {
	t.Helper()
	stores := memory.NewStores()
	classifier := classify.NewKeywords()
	lc := lifecycle.New(stores.Issues, stores.Activity)
	reg := registry.New(stores.Conversations, stores.Tenants, stores.Properties, classifier)

	catalogue := tools.New(lc, stores.Issues, stores.Messages, stores.Activity, classifier)
	orch := agent.New(&textProvider{text: "On it!"}, catalogue, lc, stores.Issues, stores.Messages, stores.Activity)

	sender := &stubSender{name: "twilio"}
	mgr := channels.NewManager(sender)

	rt := New(reg, lc, orch, stores.Messages, stores.Activity, mgr, bus.New(1))
	return &routerEnv{router: rt, sender: sender, stores: stores, reg: reg, lc: lc}
}

func (e *routerEnv) seedProperty(t *testing.T, name, address string) *store.Property {
	t.Helper()
	property, err := e.stores.Properties.Create(context.Background(), name, address)
	if err != nil {
		t.Fatalf("create property: %v", err)
	}
	return property
}

func (e *routerEnv) seedTenant(t *testing.T, name, phone string, propertyID uuid.UUID) *store.Tenant {
	t.Helper()
	tenant, err := e.stores.Tenants.Create(context.Background(), name, phone, propertyID)
	if err != nil {
		t.Fatalf("create tenant: %v", err)
	}
	return tenant
}

func inbound(contactID, phone, content string) bus.InboundMessage {
	return bus.InboundMessage{
		Channel:   "twilio",
		ContactID: contactID,
		Phone:     phone,
		Content:   content,
		Kind:      bus.KindText,
	}
}

func TestHandleInbound_DropsNonText(t *testing.T) {
	env := newRouterEnv(t)
	msg := inbound("c1", "+447911123456", "ignored")
	msg.Kind = bus.KindMedia

	if err := env.router.HandleInbound(context.Background(), msg); err != nil {
		t.Fatalf("HandleInbound: %v", err)
	}
	if len(env.sender.texts()) != 0 {
		t.Errorf("sent = %v, want nothing", env.sender.texts())
	}
}

func TestHandleInbound_UnknownContactStartsRegistration(t *testing.T) {
	env := newRouterEnv(t)
	env.seedProperty(t, "Rose Cottage", "12 Garden Lane")

	err := env.router.HandleInbound(context.Background(), inbound("c1", "+447911123456", "my tap is leaking"))
	if err != nil {
		t.Fatalf("HandleInbound: %v", err)
	}

	texts := env.sender.texts()
	if len(texts) != 1 {
		t.Fatalf("sent %d messages, want 1 registration prompt", len(texts))
	}
	if !strings.Contains(texts[0], "Rose Cottage") {
		t.Errorf("prompt missing property list: %q", texts[0])
	}

	pending, err := env.reg.PendingRegistration(context.Background(), "c1")
	if err != nil || pending == nil {
		t.Fatalf("pending registration = (%v, %v)", pending, err)
	}
	if pending.InitialMessage != "my tap is leaking" {
		t.Errorf("initial message = %q", pending.InitialMessage)
	}
}

func TestHandleInbound_UnknownContactNoProperties(t *testing.T) {
	env := newRouterEnv(t)

	err := env.router.HandleInbound(context.Background(), inbound("c1", "+447911123456", "hello"))
	if err != nil {
		t.Fatalf("HandleInbound: %v", err)
	}

	texts := env.sender.texts()
	if len(texts) != 1 || !strings.Contains(texts[0], "no properties are set up") {
		t.Errorf("sent = %v, want the no-properties prompt", texts)
	}
}

func TestHandleInbound_RegistrationReplyCompletesAndOpensIssue(t *testing.T) {
	env := newRouterEnv(t)
	env.seedProperty(t, "Rose Cottage", "12 Garden Lane")
	ctx := context.Background()

	// First message opens the pending registration.
	if err := env.router.HandleInbound(ctx, inbound("c1", "+447911123456", "my tap is leaking")); err != nil {
		t.Fatalf("first message: %v", err)
	}
	// Reply matches the property and carries a name.
	if err := env.router.HandleInbound(ctx, inbound("c1", "+447911123456", "I'm Jane Smith, Rose Cottage")); err != nil {
		t.Fatalf("registration reply: %v", err)
	}

	tenant, err := env.reg.FindTenantByAddress(ctx, "+447911123456")
	if err != nil || tenant == nil {
		t.Fatalf("tenant lookup = (%v, %v)", tenant, err)
	}
	if tenant.Name != "Jane Smith" {
		t.Errorf("tenant name = %q", tenant.Name)
	}

	// The issue was opened from the original pending message.
	issues, err := env.stores.Issues.ListByTenant(ctx, tenant.ID)
	if err != nil || len(issues) != 1 {
		t.Fatalf("issues = (%v, %v), want one", issues, err)
	}
	if issues[0].Title != "WhatsApp: my tap is leaking" {
		t.Errorf("issue title = %q", issues[0].Title)
	}

	messages, _ := env.stores.Messages.ListOrdered(ctx, issues[0].ID, 0)
	if len(messages) == 0 || messages[0].Content != "[Via WhatsApp] my tap is leaking" {
		t.Errorf("first transcript message = %v", messages)
	}

	var sawWelcome bool
	for _, text := range env.sender.texts() {
		if strings.Contains(text, "Perfect! I've linked your number to Rose Cottage") {
			sawWelcome = true
		}
	}
	if !sawWelcome {
		t.Errorf("welcome message not sent: %v", env.sender.texts())
	}
}

func TestHandleInbound_RegistrationReplyNoMatchReprompts(t *testing.T) {
	env := newRouterEnv(t)
	env.seedProperty(t, "Rose Cottage", "12 Garden Lane")
	ctx := context.Background()

	if err := env.router.HandleInbound(ctx, inbound("c1", "+447911123456", "help")); err != nil {
		t.Fatalf("first message: %v", err)
	}
	if err := env.router.HandleInbound(ctx, inbound("c1", "+447911123456", "Jane, Nowhere Towers")); err != nil {
		t.Fatalf("reply: %v", err)
	}

	texts := env.sender.texts()
	last := texts[len(texts)-1]
	if !strings.Contains(last, "I couldn't find that property") {
		t.Errorf("last message = %q, want re-prompt", last)
	}

	// Still pending.
	pending, _ := env.reg.PendingRegistration(ctx, "c1")
	if pending == nil {
		t.Error("pending registration must survive a failed match")
	}
}

func TestHandleInbound_KnownTenantOpensIssue(t *testing.T) {
	env := newRouterEnv(t)
	property := env.seedProperty(t, "Oak House", "3 Mill Road")
	tenant := env.seedTenant(t, "John Davis", "+447911123456", property.ID)
	ctx := context.Background()

	err := env.router.HandleInbound(ctx, inbound("c2", "+447911123456", "the boiler is making a banging noise"))
	if err != nil {
		t.Fatalf("HandleInbound: %v", err)
	}

	texts := env.sender.texts()
	if len(texts) == 0 || !strings.Contains(texts[0], "Hi John!") {
		t.Fatalf("sent = %v, want greeting first", texts)
	}
	if !strings.Contains(texts[0], "Oak House") {
		t.Errorf("greeting missing property name: %q", texts[0])
	}

	issues, _ := env.stores.Issues.ListByTenant(ctx, tenant.ID)
	if len(issues) != 1 {
		t.Fatalf("issues = %d, want 1", len(issues))
	}

	// The conversation is bound, so a follow-up message continues it.
	conv, err := env.reg.ResolveActive(ctx, "c2")
	if err != nil || conv == nil {
		t.Fatalf("ResolveActive = (%v, %v)", conv, err)
	}
	if conv.IssueID != issues[0].ID {
		t.Error("conversation bound to the wrong issue")
	}
}

func TestHandleInbound_ContinuationSendsInstantAck(t *testing.T) {
	env := newRouterEnv(t)
	property := env.seedProperty(t, "Oak House", "")
	env.seedTenant(t, "John Davis", "+447911123456", property.ID)
	ctx := context.Background()

	if err := env.router.HandleInbound(ctx, inbound("c2", "+447911123456", "the boiler is banging")); err != nil {
		t.Fatalf("open: %v", err)
	}
	before := len(env.sender.texts())

	if err := env.router.HandleInbound(ctx, inbound("c2", "+447911123456", "I bled the radiators, no change")); err != nil {
		t.Fatalf("continue: %v", err)
	}

	texts := env.sender.texts()
	if len(texts) <= before {
		t.Fatal("no messages sent on continuation")
	}
	if texts[before] != "Got it, let me check on that..." {
		t.Errorf("first continuation message = %q, want the instant ack", texts[before])
	}

	// Both tenant messages are in the transcript exactly once each.
	conv, _ := env.reg.ResolveActive(ctx, "c2")
	messages, _ := env.stores.Messages.ListOrdered(ctx, conv.IssueID, 0)
	var tenantCount int
	for _, m := range messages {
		if m.Role == store.RoleTenant {
			tenantCount++
		}
	}
	if tenantCount != 2 {
		t.Errorf("tenant messages = %d, want 2", tenantCount)
	}
}

func TestHandleInbound_SendFailureIsAbsorbed(t *testing.T) {
	env := newRouterEnv(t)
	property := env.seedProperty(t, "Oak House", "")
	tenant := env.seedTenant(t, "John Davis", "+447911123456", property.ID)
	env.sender.fail = true
	ctx := context.Background()

	err := env.router.HandleInbound(ctx, inbound("c2", "+447911123456", "no hot water"))
	if err != nil {
		t.Fatalf("HandleInbound must absorb send failures, got %v", err)
	}

	// The issue still exists despite every send failing.
	issues, _ := env.stores.Issues.ListByTenant(ctx, tenant.ID)
	if len(issues) != 1 {
		t.Fatalf("issues = %d, want 1", len(issues))
	}

	// The greeting goes out before an issue exists, so its failure lands
	// in the process-level log.
	records, _ := env.stores.Activity.List(ctx, nil, 0)
	var failed bool
	for _, r := range records {
		if r.Action == "whatsapp_send_failed" {
			failed = true
		}
	}
	if !failed {
		t.Error("whatsapp_send_failed record missing")
	}
}

func TestIssueTitleTruncation(t *testing.T) {
	long := strings.Repeat("a", 60)
	got := issueTitle(long)
	want := "WhatsApp: " + strings.Repeat("a", 50) + "..."
	if got != want {
		t.Errorf("issueTitle = %q, want %q", got, want)
	}

	short := issueTitle("tap leaking")
	if short != "WhatsApp: tap leaking" {
		t.Errorf("issueTitle(short) = %q", short)
	}
}
