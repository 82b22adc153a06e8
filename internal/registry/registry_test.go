package registry

import (
	"context"
	"fmt"
	"testing"

	"github.com/mk-162/fixMate/internal/classify"
	"github.com/mk-162/fixMate/internal/lifecycle"
	"github.com/mk-162/fixMate/internal/store"
	"github.com/mk-162/fixMate/internal/store/memory"
)

func newTestRegistry(t *testing.T) (*Registry, *store.Stores, *lifecycle.Lifecycle) {
	t.Helper()
	stores := memory.NewStores()
	reg := New(stores.Conversations, stores.Tenants, stores.Properties, classify.NewKeywords())
	lc := lifecycle.New(stores.Issues, stores.Activity)
	return reg, stores, lc
}

func TestResolveActive_NoneIsNilNotError(t *testing.T) {
	reg, _, _ := newTestRegistry(t)
	conv, err := reg.ResolveActive(context.Background(), "unknown")
	if err != nil {
		t.Fatalf("ResolveActive: %v", err)
	}
	if conv != nil {
		t.Errorf("conv = %v, want nil", conv)
	}
}

func TestBindAndResolveActive(t *testing.T) {
	reg, _, lc := newTestRegistry(t)
	ctx := context.Background()

	issue, err := lc.Create(ctx, store.GenNewID(), store.GenNewID(), "Tap", "", store.CategoryPlumbing)
	if err != nil {
		t.Fatalf("create issue: %v", err)
	}
	if _, err := reg.Bind(ctx, "c1", "+447911123456", "twilio", issue.TenantID, issue.ID); err != nil {
		t.Fatalf("bind: %v", err)
	}

	conv, err := reg.ResolveActive(ctx, "c1")
	if err != nil || conv == nil {
		t.Fatalf("ResolveActive = (%v, %v)", conv, err)
	}
	if conv.IssueID != issue.ID || conv.Channel != "twilio" {
		t.Errorf("conv = %+v", conv)
	}
}

func TestResolveActive_LazyInvalidation(t *testing.T) {
	reg, _, lc := newTestRegistry(t)
	ctx := context.Background()

	issue, _ := lc.Create(ctx, store.GenNewID(), store.GenNewID(), "Boiler", "", store.CategoryHeating)
	if _, err := reg.Bind(ctx, "c1", "+447911123456", "twilio", issue.TenantID, issue.ID); err != nil {
		t.Fatalf("bind: %v", err)
	}

	for _, status := range []store.IssueStatus{
		store.StatusEscalated, store.StatusResolvedByAgent, store.StatusClosed,
	} {
		t.Run(string(status), func(t *testing.T) {
			if _, err := lc.Transition(ctx, issue.ID, status, lifecycle.TransitionExtra{}); err != nil {
				t.Fatalf("transition: %v", err)
			}
			conv, err := reg.ResolveActive(ctx, "c1")
			if err != nil {
				t.Fatalf("ResolveActive: %v", err)
			}
			if conv != nil {
				t.Errorf("conversation still active with issue status %s", status)
			}
		})
		// Reopen for the next case.
		if _, err := lc.Transition(ctx, issue.ID, store.StatusTriaging, lifecycle.TransitionExtra{}); err != nil {
			t.Fatalf("reopen: %v", err)
		}
	}
}

func TestResolveActive_PrefersNewestBinding(t *testing.T) {
	reg, _, lc := newTestRegistry(t)
	ctx := context.Background()

	first, _ := lc.Create(ctx, store.GenNewID(), store.GenNewID(), "First", "", store.CategoryOther)
	second, _ := lc.Create(ctx, first.TenantID, first.PropertyID, "Second", "", store.CategoryOther)
	if _, err := reg.Bind(ctx, "c1", "", "twilio", first.TenantID, first.ID); err != nil {
		t.Fatalf("bind first: %v", err)
	}
	if _, err := reg.Bind(ctx, "c1", "", "twilio", second.TenantID, second.ID); err != nil {
		t.Fatalf("bind second: %v", err)
	}

	conv, err := reg.ResolveActive(ctx, "c1")
	if err != nil || conv == nil {
		t.Fatalf("ResolveActive = (%v, %v)", conv, err)
	}
	if conv.IssueID != second.ID {
		t.Errorf("resolved issue = %s, want the newest binding", conv.IssueID)
	}
}

func TestPendingRegistrationUpsert(t *testing.T) {
	reg, _, _ := newTestRegistry(t)
	ctx := context.Background()

	if _, err := reg.OpenPendingRegistration(ctx, "c1", "+447911123456", "first message"); err != nil {
		t.Fatalf("open: %v", err)
	}
	// A second message replaces the stored one rather than duplicating.
	if _, err := reg.OpenPendingRegistration(ctx, "c1", "+447911123456", "second message"); err != nil {
		t.Fatalf("reopen: %v", err)
	}

	pending, err := reg.PendingRegistration(ctx, "c1")
	if err != nil || pending == nil {
		t.Fatalf("pending = (%v, %v)", pending, err)
	}
	if pending.InitialMessage != "second message" {
		t.Errorf("initial message = %q, want the replacement", pending.InitialMessage)
	}
}

func TestMatchProperty_CandidateCap(t *testing.T) {
	reg, stores, _ := newTestRegistry(t)
	ctx := context.Background()

	for i := 0; i < 8; i++ {
		if _, err := stores.Properties.Create(ctx, fmt.Sprintf("Property %02d", i), ""); err != nil {
			t.Fatalf("create property: %v", err)
		}
	}

	match, candidates, err := reg.MatchProperty(ctx, "no such place")
	if err != nil {
		t.Fatalf("MatchProperty: %v", err)
	}
	if match != nil {
		t.Errorf("match = %v, want nil", match)
	}
	if len(candidates) != candidateCap {
		t.Errorf("candidates = %d, want capped at %d", len(candidates), candidateCap)
	}
}

func TestRegisterTenant(t *testing.T) {
	reg, stores, _ := newTestRegistry(t)
	ctx := context.Background()

	property, err := stores.Properties.Create(ctx, "Rose Cottage", "12 Garden Lane")
	if err != nil {
		t.Fatalf("create property: %v", err)
	}
	if _, err := reg.OpenPendingRegistration(ctx, "c1", "07911123456", "tap leaking"); err != nil {
		t.Fatalf("open pending: %v", err)
	}

	tenant, err := reg.RegisterTenant(ctx, "c1", "07911123456", "I'm Jane, Rose Cottage", property)
	if err != nil {
		t.Fatalf("RegisterTenant: %v", err)
	}
	if tenant.Name != "Jane" {
		t.Errorf("name = %q", tenant.Name)
	}
	if tenant.Phone != "+447911123456" {
		t.Errorf("phone = %q, want normalized form", tenant.Phone)
	}

	// The pending record is completed; it no longer resolves.
	pending, err := reg.PendingRegistration(ctx, "c1")
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if pending != nil {
		t.Errorf("pending = %v, want nil after completion", pending)
	}

	// The tenant is findable by either phone form.
	found, err := reg.FindTenantByAddress(ctx, "07911 123 456")
	if err != nil || found == nil || found.ID != tenant.ID {
		t.Errorf("FindTenantByAddress = (%v, %v)", found, err)
	}
}
