package followup

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mk-162/fixMate/internal/channels"
	"github.com/mk-162/fixMate/internal/classify"
	"github.com/mk-162/fixMate/internal/lifecycle"
	"github.com/mk-162/fixMate/internal/registry"
	"github.com/mk-162/fixMate/internal/store"
	"github.com/mk-162/fixMate/internal/store/memory"
)

type stubSender struct {
	mu   sync.Mutex
	sent []string
}

func (s *stubSender) Name() string       { return "twilio" }
func (s *stubSender) IsConfigured() bool { return true }

func (s *stubSender) Send(ctx context.Context, address, text string) (channels.DeliveryResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, address+"|"+text)
	return channels.DeliveryResult{Delivered: true}, nil
}

func TestNew_RejectsInvalidSchedule(t *testing.T) {
	stores := memory.NewStores()
	lc := lifecycle.New(stores.Issues, stores.Activity)
	reg := registry.New(stores.Conversations, stores.Tenants, stores.Properties, classify.NewKeywords())

	if _, err := New(stores.Issues, lc, reg, channels.NewManager(), "not a cron"); err == nil {
		t.Error("expected error for invalid schedule")
	}
	if _, err := New(stores.Issues, lc, reg, channels.NewManager(), ""); err != nil {
		t.Errorf("empty schedule must use the default, got %v", err)
	}
}

func TestSweep_SendsCheckInAndClears(t *testing.T) {
	stores := memory.NewStores()
	lc := lifecycle.New(stores.Issues, stores.Activity)
	reg := registry.New(stores.Conversations, stores.Tenants, stores.Properties, classify.NewKeywords())
	sender := &stubSender{}
	ctx := context.Background()

	issue, err := lc.Create(ctx, store.GenNewID(), store.GenNewID(),
		"Dripping tap", "kitchen tap drips", store.CategoryPlumbing)
	if err != nil {
		t.Fatalf("create issue: %v", err)
	}
	if _, err := reg.Bind(ctx, "c1", "+447911123456", "twilio", issue.TenantID, issue.ID); err != nil {
		t.Fatalf("bind: %v", err)
	}

	past := time.Now().Add(-time.Hour)
	if _, err := lc.SetFollowUp(ctx, issue.ID, past, nil); err != nil {
		t.Fatalf("set follow-up: %v", err)
	}

	sweeper, err := New(stores.Issues, lc, reg, channels.NewManager(sender), "")
	if err != nil {
		t.Fatalf("new sweeper: %v", err)
	}
	sweeper.Sweep(ctx)

	if len(sender.sent) != 1 {
		t.Fatalf("sent = %d messages, want 1", len(sender.sent))
	}
	if !strings.Contains(sender.sent[0], "+447911123456|") || !strings.Contains(sender.sent[0], "Dripping tap") {
		t.Errorf("check-in = %q", sender.sent[0])
	}

	// Cleared: a second sweep sends nothing.
	got, _ := stores.Issues.Get(ctx, issue.ID)
	if got.FollowUpAt != nil {
		t.Error("follow-up not cleared after check-in")
	}
	sweeper.Sweep(ctx)
	if len(sender.sent) != 1 {
		t.Errorf("second sweep sent %d extra messages", len(sender.sent)-1)
	}
}

func TestSweep_BrokenBindingStillClears(t *testing.T) {
	stores := memory.NewStores()
	lc := lifecycle.New(stores.Issues, stores.Activity)
	reg := registry.New(stores.Conversations, stores.Tenants, stores.Properties, classify.NewKeywords())
	ctx := context.Background()

	// No conversation bound for this issue.
	issue, err := lc.Create(ctx, store.GenNewID(), store.GenNewID(),
		"Orphaned issue", "", store.CategoryOther)
	if err != nil {
		t.Fatalf("create issue: %v", err)
	}
	if _, err := lc.SetFollowUp(ctx, issue.ID, time.Now().Add(-time.Minute), nil); err != nil {
		t.Fatalf("set follow-up: %v", err)
	}

	sweeper, err := New(stores.Issues, lc, reg, channels.NewManager(), "")
	if err != nil {
		t.Fatalf("new sweeper: %v", err)
	}
	sweeper.Sweep(ctx)

	// The follow-up must be cleared even though delivery was impossible,
	// otherwise the issue comes up due on every sweep forever.
	got, _ := stores.Issues.Get(ctx, issue.ID)
	if got.FollowUpAt != nil {
		t.Error("follow-up not cleared for broken binding")
	}
}
