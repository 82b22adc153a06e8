package tools

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/mk-162/fixMate/internal/classify"
	"github.com/mk-162/fixMate/internal/lifecycle"
	"github.com/mk-162/fixMate/internal/providers"
	"github.com/mk-162/fixMate/internal/store"
	"github.com/mk-162/fixMate/internal/store/memory"
)

type fixture struct {
	catalogue *Catalogue
	lifecycle *lifecycle.Lifecycle
	stores    *store.Stores
	issueID   uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	stores := memory.NewStores()
	lc := lifecycle.New(stores.Issues, stores.Activity)
	cat := New(lc, stores.Issues, stores.Messages, stores.Activity, classify.NewKeywords())

	issue, err := lc.Create(context.Background(), store.GenNewID(), store.GenNewID(),
		"Boiler not heating", "radiators stay cold", store.CategoryHeating)
	if err != nil {
		t.Fatalf("create issue: %v", err)
	}
	return &fixture{catalogue: cat, lifecycle: lc, stores: stores, issueID: issue.ID}
}

func (f *fixture) exec(t *testing.T, name string, args map[string]any) *Result {
	t.Helper()
	return f.catalogue.Execute(context.Background(), f.issueID, providers.ToolCall{
		ID: "call_1", Name: name, Arguments: args,
	})
}

func (f *fixture) issue(t *testing.T) *store.Issue {
	t.Helper()
	issue, err := f.stores.Issues.Get(context.Background(), f.issueID)
	if err != nil {
		t.Fatalf("get issue: %v", err)
	}
	return issue
}

func TestEstimateCost(t *testing.T) {
	tests := []struct {
		name         string
		category     string
		severity     string
		wantCategory string
		wantSeverity string
		wantLow      int
		wantHigh     int
	}{
		{name: "known pair", category: "plumbing", severity: "minor", wantCategory: "plumbing", wantSeverity: "minor", wantLow: 50, wantHigh: 150},
		{name: "case insensitive", category: "Electrical", severity: "MAJOR", wantCategory: "electrical", wantSeverity: "major", wantLow: 500, wantHigh: 2000},
		{name: "unknown category defaults to appliance", category: "roofing", severity: "moderate", wantCategory: "appliance", wantSeverity: "moderate", wantLow: 100, wantHigh: 300},
		{name: "unknown severity defaults to moderate", category: "heating", severity: "catastrophic", wantCategory: "heating", wantSeverity: "moderate", wantLow: 200, wantHigh: 600},
		{name: "structural major is the top of the table", category: "structural", severity: "major", wantCategory: "structural", wantSeverity: "major", wantLow: 1000, wantHigh: 5000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			category, severity, rng := EstimateCost(tt.category, tt.severity)
			if category != tt.wantCategory || severity != tt.wantSeverity {
				t.Errorf("EstimateCost(%q, %q) normalized to (%q, %q), want (%q, %q)",
					tt.category, tt.severity, category, severity, tt.wantCategory, tt.wantSeverity)
			}
			if rng.Low != tt.wantLow || rng.High != tt.wantHigh {
				t.Errorf("range = £%d-£%d, want £%d-£%d", rng.Low, rng.High, tt.wantLow, tt.wantHigh)
			}
		})
	}
}

func TestEstimateCost_LowNeverExceedsHigh(t *testing.T) {
	for category, severities := range repairCostTable {
		for severity, rng := range severities {
			if rng.Low > rng.High {
				t.Errorf("%s/%s: low %d > high %d", category, severity, rng.Low, rng.High)
			}
		}
	}
}

func TestExecute_UnknownTool(t *testing.T) {
	f := newFixture(t)
	res := f.exec(t, "reboot_universe", nil)
	if !res.IsError {
		t.Fatal("expected error result for unknown tool")
	}
	if !strings.Contains(res.ForLLM, "Unknown tool") {
		t.Errorf("ForLLM = %q, want unknown-tool text", res.ForLLM)
	}
}

func TestSendMessage_StoresAgentMessage(t *testing.T) {
	f := newFixture(t)

	res := f.exec(t, "send_message", map[string]any{
		"message":      "Have you tried repressurizing the boiler?",
		"message_type": "instruction",
	})
	if res.IsError {
		t.Fatalf("unexpected error: %s", res.ForLLM)
	}
	if res.ForLLM != "Message sent to tenant" {
		t.Errorf("ForLLM = %q", res.ForLLM)
	}

	messages, err := f.stores.Messages.ListOrdered(context.Background(), f.issueID, 0)
	if err != nil {
		t.Fatalf("list messages: %v", err)
	}
	if len(messages) != 1 || messages[0].Role != store.RoleAgent {
		t.Fatalf("expected one agent message, got %v", messages)
	}
	if messages[0].Metadata["message_type"] != "instruction" {
		t.Errorf("message_type metadata = %q", messages[0].Metadata["message_type"])
	}
}

func TestSendMessage_RequiresText(t *testing.T) {
	f := newFixture(t)
	res := f.exec(t, "send_message", map[string]any{"message": "   "})
	if !res.IsError {
		t.Fatal("expected error for empty message")
	}
}

func TestDetectEmergency(t *testing.T) {
	f := newFixture(t)

	clean := f.exec(t, "detect_emergency", map[string]any{"text": "the tap drips"})
	if clean.ForLLM != "No emergency indicators found." {
		t.Errorf("clean text ForLLM = %q", clean.ForLLM)
	}

	hot := f.exec(t, "detect_emergency", map[string]any{"text": "I can smell gas near the hob"})
	if !strings.HasPrefix(hot.ForLLM, "Emergency detected: true.") {
		t.Errorf("emergency ForLLM = %q", hot.ForLLM)
	}
	if !strings.Contains(hot.ForLLM, "smell gas") {
		t.Errorf("keywords missing from %q", hot.ForLLM)
	}

	records, err := f.stores.Activity.List(context.Background(), &f.issueID, 1)
	if err != nil {
		t.Fatalf("list activity: %v", err)
	}
	if records[0].Action != "emergency_detected" {
		t.Errorf("latest action = %q, want emergency_detected", records[0].Action)
	}
	if records[0].WouldNotify != "property_manager,landlord" {
		t.Errorf("would_notify = %q", records[0].WouldNotify)
	}
}

func TestEstimateRepairCostResultText(t *testing.T) {
	f := newFixture(t)
	res := f.exec(t, "estimate_repair_cost", map[string]any{"category": "heating", "severity": "major"})
	want := "Estimated cost for major heating issue: £600 - £2500"
	if res.ForLLM != want {
		t.Errorf("ForLLM = %q, want %q", res.ForLLM, want)
	}
}

func TestAssessSentimentResultText(t *testing.T) {
	f := newFixture(t)
	res := f.exec(t, "assess_sentiment", map[string]any{"latest_message": "thanks, that worked perfectly"})
	if !strings.HasPrefix(res.ForLLM, "Tenant sentiment: positive") {
		t.Errorf("ForLLM = %q, want positive sentiment", res.ForLLM)
	}
}

func TestEscalate(t *testing.T) {
	f := newFixture(t)

	res := f.exec(t, "escalate_to_property_manager", map[string]any{
		"reason":              "boiler pressure vessel needs replacing",
		"priority":            "urgent",
		"category":            "heating",
		"estimated_cost_low":  float64(600),
		"estimated_cost_high": float64(2500),
	})
	if res.IsError {
		t.Fatalf("unexpected error: %s", res.ForLLM)
	}
	if res.ForLLM != "Issue escalated with urgent priority. Estimated cost: £600-£2500" {
		t.Errorf("ForLLM = %q", res.ForLLM)
	}

	issue := f.issue(t)
	if issue.Status != store.StatusEscalated {
		t.Errorf("status = %q, want escalated", issue.Status)
	}
	if issue.Priority != store.PriorityUrgent {
		t.Errorf("priority = %q, want urgent", issue.Priority)
	}

	// A system summary message lands in the transcript.
	messages, _ := f.stores.Messages.ListOrdered(context.Background(), f.issueID, 0)
	if len(messages) != 1 || messages[0].Role != store.RoleSystem {
		t.Fatalf("expected one system summary message, got %d", len(messages))
	}
	if !strings.Contains(messages[0].Content, "boiler pressure vessel needs replacing") {
		t.Errorf("summary missing reason: %q", messages[0].Content)
	}

	// Exactly one escalated record, with the tool details merged in.
	records, _ := f.stores.Activity.List(context.Background(), &f.issueID, 0)
	var escalated []store.ActivityRecord
	for _, r := range records {
		if r.Action == "escalated" {
			escalated = append(escalated, r)
		}
	}
	if len(escalated) != 1 {
		t.Fatalf("escalated records = %d, want 1", len(escalated))
	}
	if escalated[0].Details["reason"] != "boiler pressure vessel needs replacing" {
		t.Errorf("details reason = %v", escalated[0].Details["reason"])
	}
}

func TestResolve(t *testing.T) {
	f := newFixture(t)
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	f.catalogue.WithClock(func() time.Time { return now })

	res := f.exec(t, "resolve_with_troubleshooting", map[string]any{
		"solution":          "repressurized the boiler to 1.5 bar",
		"steps_taken":       "located filling loop, opened both valves until gauge read 1.5",
		"estimated_savings": float64(150),
	})
	if res.IsError {
		t.Fatalf("unexpected error: %s", res.ForLLM)
	}
	if res.ForLLM != "Issue resolved! Estimated savings: £150. Follow-up scheduled." {
		t.Errorf("ForLLM = %q", res.ForLLM)
	}

	issue := f.issue(t)
	if issue.Status != store.StatusResolvedByAgent {
		t.Errorf("status = %q, want resolved_by_agent", issue.Status)
	}
	if issue.ResolvedByAgent != "repressurized the boiler to 1.5 bar" {
		t.Errorf("resolution summary = %q", issue.ResolvedByAgent)
	}
	if issue.FollowUpAt == nil {
		t.Fatal("follow-up not scheduled")
	}
	want := now.Add(3 * 24 * time.Hour)
	if !issue.FollowUpAt.Equal(want) {
		t.Errorf("follow_up_at = %v, want %v", issue.FollowUpAt, want)
	}
}

func TestResolve_RequiresSolution(t *testing.T) {
	f := newFixture(t)
	res := f.exec(t, "resolve_with_troubleshooting", map[string]any{"steps_taken": "tried things"})
	if !res.IsError {
		t.Fatal("expected error without solution")
	}
	if f.issue(t).Status == store.StatusResolvedByAgent {
		t.Error("issue must not be resolved without a solution")
	}
}

func TestScheduleFollowUp(t *testing.T) {
	f := newFixture(t)
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	f.catalogue.WithClock(func() time.Time { return now })

	res := f.exec(t, "schedule_followup", map[string]any{
		"days":   float64(5),
		"reason": "confirm the seal is holding",
	})
	if res.ForLLM != "Follow-up scheduled for 2026-03-15 (5 days)" {
		t.Errorf("ForLLM = %q", res.ForLLM)
	}

	// Days below one are clamped up.
	res = f.exec(t, "schedule_followup", map[string]any{"days": float64(0), "reason": "soon"})
	if !strings.Contains(res.ForLLM, "(1 days)") {
		t.Errorf("clamped ForLLM = %q", res.ForLLM)
	}
}

func TestGetIssueContext(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.stores.Messages.Append(ctx, f.issueID, store.RoleTenant, "[Via WhatsApp] radiators stay cold", nil); err != nil {
		t.Fatalf("append message: %v", err)
	}

	res := f.exec(t, "get_issue_context", nil)
	if res.IsError {
		t.Fatalf("unexpected error: %s", res.ForLLM)
	}
	for _, want := range []string{"Boiler not heating", "heating", "TENANT: [Via WhatsApp] radiators stay cold"} {
		if !strings.Contains(res.ForLLM, want) {
			t.Errorf("context missing %q:\n%s", want, res.ForLLM)
		}
	}
}

func TestGetIssueContext_MissingIssue(t *testing.T) {
	f := newFixture(t)
	res := f.catalogue.Execute(context.Background(), store.GenNewID(), providers.ToolCall{
		ID: "call_1", Name: "get_issue_context",
	})
	if !res.IsError || res.ForLLM != "Issue not found" {
		t.Errorf("result = (%q, error=%v), want Issue not found error", res.ForLLM, res.IsError)
	}
}
