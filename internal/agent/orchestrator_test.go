package agent

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/mk-162/fixMate/internal/classify"
	"github.com/mk-162/fixMate/internal/lifecycle"
	"github.com/mk-162/fixMate/internal/providers"
	"github.com/mk-162/fixMate/internal/store"
	"github.com/mk-162/fixMate/internal/store/memory"
	"github.com/mk-162/fixMate/internal/tools"
)

// scriptedProvider replays canned responses in order; after the script
// runs out it repeats the last entry.
type scriptedProvider struct {
	script []providers.ChatResponse
	err    error
	calls  int
}

func (p *scriptedProvider) Chat(ctx context.Context, req providers.ChatRequest) (*providers.ChatResponse, error) {
	p.calls++
	if p.err != nil {
		return nil, p.err
	}
	i := p.calls - 1
	if i >= len(p.script) {
		i = len(p.script) - 1
	}
	resp := p.script[i]
	return &resp, nil
}

func (p *scriptedProvider) DefaultModel() string { return "test-model" }
func (p *scriptedProvider) Name() string         { return "scripted" }

type testEnv struct {
	orch      *Orchestrator
	provider  *scriptedProvider
	lifecycle *lifecycle.Lifecycle
	stores    *store.Stores
	issueID   uuid.UUID
}

func newTestEnv(t *testing.T, provider *scriptedProvider, opts ...Option) *testEnv {
	t.Helper()
	stores := memory.NewStores()
	lc := lifecycle.New(stores.Issues, stores.Activity)
	catalogue := tools.New(lc, stores.Issues, stores.Messages, stores.Activity, classify.NewKeywords())
	orch := New(provider, catalogue, lc, stores.Issues, stores.Messages, stores.Activity, opts...)

	issue, err := lc.Create(context.Background(), store.GenNewID(), store.GenNewID(),
		"Washing machine won't start", "nothing happens when I press start", store.CategoryAppliance)
	if err != nil {
		t.Fatalf("create issue: %v", err)
	}
	return &testEnv{orch: orch, provider: provider, lifecycle: lc, stores: stores, issueID: issue.ID}
}

func (e *testEnv) activityActions(t *testing.T) []string {
	t.Helper()
	records, err := e.stores.Activity.List(context.Background(), &e.issueID, 0)
	if err != nil {
		t.Fatalf("list activity: %v", err)
	}
	actions := make([]string, len(records))
	for i, r := range records {
		actions[i] = r.Action
	}
	return actions
}

func TestHandleNewIssue_PlainTextReply(t *testing.T) {
	env := newTestEnv(t, &scriptedProvider{script: []providers.ChatResponse{
		{Content: "Is the door fully closed?", FinishReason: "stop"},
	}})

	reply, err := env.orch.HandleNewIssue(context.Background(), env.issueID)
	if err != nil {
		t.Fatalf("HandleNewIssue: %v", err)
	}
	if reply != "Is the door fully closed?" {
		t.Errorf("reply = %q", reply)
	}

	issue, _ := env.stores.Issues.Get(context.Background(), env.issueID)
	if issue.Status != store.StatusTriaging {
		t.Errorf("status = %q, want triaging", issue.Status)
	}
}

func TestHandleNewIssue_ToolRoundThenText(t *testing.T) {
	env := newTestEnv(t, &scriptedProvider{script: []providers.ChatResponse{
		{
			FinishReason: "tool_calls",
			ToolCalls: []providers.ToolCall{
				{ID: "t1", Name: "log_reasoning", Arguments: map[string]any{"reasoning": "likely a door interlock"}},
				{ID: "t2", Name: "send_message", Arguments: map[string]any{"message": "Push the door until it clicks, then try again."}},
			},
		},
		{Content: "Let me know how that goes!", FinishReason: "stop"},
	}})

	reply, err := env.orch.HandleNewIssue(context.Background(), env.issueID)
	if err != nil {
		t.Fatalf("HandleNewIssue: %v", err)
	}
	if reply != "Let me know how that goes!" {
		t.Errorf("reply = %q", reply)
	}
	if env.provider.calls != 2 {
		t.Errorf("provider calls = %d, want 2", env.provider.calls)
	}

	// The send_message tool stored an agent message for the router to
	// deliver.
	messages, _ := env.stores.Messages.ListOrdered(context.Background(), env.issueID, 0)
	var agentTexts []string
	for _, m := range messages {
		if m.Role == store.RoleAgent {
			agentTexts = append(agentTexts, m.Content)
		}
	}
	if len(agentTexts) != 1 || !strings.Contains(agentTexts[0], "clicks") {
		t.Errorf("agent messages = %v", agentTexts)
	}

	actions := env.activityActions(t)
	if !containsAction(actions, "reasoning") || !containsAction(actions, "sent_message") {
		t.Errorf("activity = %v, want reasoning and sent_message", actions)
	}
}

func TestHandleNewIssue_RoundBudgetExhausted(t *testing.T) {
	// The model never stops calling tools; the loop must cut it off and
	// return the fallback text.
	env := newTestEnv(t, &scriptedProvider{script: []providers.ChatResponse{
		{
			FinishReason: "tool_calls",
			ToolCalls: []providers.ToolCall{
				{ID: "t1", Name: "log_reasoning", Arguments: map[string]any{"reasoning": "thinking..."}},
			},
		},
	}}, WithMaxRounds(3))

	reply, err := env.orch.HandleNewIssue(context.Background(), env.issueID)
	if err != nil {
		t.Fatalf("HandleNewIssue: %v", err)
	}
	if reply != "Agent completed" {
		t.Errorf("reply = %q, want fallback text", reply)
	}
	if env.provider.calls != 3 {
		t.Errorf("provider calls = %d, want 3", env.provider.calls)
	}
}

func TestHandleNewIssue_EmptyContentUsesFallback(t *testing.T) {
	env := newTestEnv(t, &scriptedProvider{script: []providers.ChatResponse{
		{Content: "", FinishReason: "stop"},
	}})

	reply, err := env.orch.HandleNewIssue(context.Background(), env.issueID)
	if err != nil {
		t.Fatalf("HandleNewIssue: %v", err)
	}
	if reply != "Agent completed" {
		t.Errorf("reply = %q, want fallback text", reply)
	}
}

func TestHandleNewIssue_MutedSkipsAgent(t *testing.T) {
	env := newTestEnv(t, &scriptedProvider{script: []providers.ChatResponse{
		{Content: "should never be called", FinishReason: "stop"},
	}})
	if _, err := env.lifecycle.SetMuted(context.Background(), env.issueID, true); err != nil {
		t.Fatalf("SetMuted: %v", err)
	}

	reply, err := env.orch.HandleNewIssue(context.Background(), env.issueID)
	if err != nil {
		t.Fatalf("HandleNewIssue: %v", err)
	}
	if reply != "" {
		t.Errorf("reply = %q, want empty for muted issue", reply)
	}
	if env.provider.calls != 0 {
		t.Errorf("provider calls = %d, want 0", env.provider.calls)
	}
	if !containsAction(env.activityActions(t), "agent_skipped") {
		t.Error("agent_skipped record missing")
	}
}

func TestHandleTenantResponse_PersistsMessageBeforeMuteGuard(t *testing.T) {
	env := newTestEnv(t, &scriptedProvider{script: []providers.ChatResponse{
		{Content: "noted", FinishReason: "stop"},
	}})
	ctx := context.Background()
	if _, err := env.lifecycle.SetMuted(ctx, env.issueID, true); err != nil {
		t.Fatalf("SetMuted: %v", err)
	}

	reply, err := env.orch.HandleTenantResponse(ctx, env.issueID, "it's still broken")
	if err != nil {
		t.Fatalf("HandleTenantResponse: %v", err)
	}
	if reply != "" {
		t.Errorf("reply = %q, want empty", reply)
	}

	// The transcript keeps the message even though the agent never ran.
	messages, _ := env.stores.Messages.ListOrdered(ctx, env.issueID, 0)
	if len(messages) != 1 || messages[0].Role != store.RoleTenant || messages[0].Content != "it's still broken" {
		t.Errorf("messages = %v, want the stored tenant message", messages)
	}
	if env.provider.calls != 0 {
		t.Errorf("provider calls = %d, want 0", env.provider.calls)
	}
}

func TestHandleTenantResponse_ProviderErrorIsLoggedAndRaised(t *testing.T) {
	provErr := errors.New("model unavailable")
	env := newTestEnv(t, &scriptedProvider{err: provErr})

	_, err := env.orch.HandleTenantResponse(context.Background(), env.issueID, "any luck?")
	if err == nil || !errors.Is(err, provErr) {
		t.Fatalf("error = %v, want wrapped provider error", err)
	}

	records, _ := env.stores.Activity.List(context.Background(), &env.issueID, 0)
	var found *store.ActivityRecord
	for i := range records {
		if records[i].Action == "agent_error" {
			found = &records[i]
			break
		}
	}
	if found == nil {
		t.Fatal("agent_error record missing")
	}
	if found.Details["error"] != "model unavailable" {
		t.Errorf("error detail = %v", found.Details["error"])
	}
	preview, _ := found.Details["prompt_preview"].(string)
	if preview == "" || len(preview) > 200 {
		t.Errorf("prompt_preview length = %d, want 1..200", len(preview))
	}
}

func containsAction(actions []string, want string) bool {
	for _, a := range actions {
		if a == want {
			return true
		}
	}
	return false
}
