// Package agent drives the hosted-model tool loop for one conversational
// turn: build the prompt, let the model call catalogue tools for a bounded
// number of rounds, and return its final text.
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/mk-162/fixMate/internal/lifecycle"
	"github.com/mk-162/fixMate/internal/providers"
	"github.com/mk-162/fixMate/internal/store"
	"github.com/mk-162/fixMate/internal/tools"
)

// defaultMaxRounds bounds the tool loop: enough for a handful of tool
// calls plus a final message, not unbounded.
const defaultMaxRounds = 10

// Orchestrator runs the triage agent over a single issue turn.
type Orchestrator struct {
	provider  providers.Provider
	catalogue *tools.Catalogue
	lifecycle *lifecycle.Lifecycle
	issues    store.IssueStore
	messages  store.MessageStore
	activity  store.ActivityStore

	maxRounds    int
	roundTimeout time.Duration // 0 means no per-round deadline
	tracer       trace.Tracer
}

// Option configures the orchestrator.
type Option func(*Orchestrator)

// WithMaxRounds overrides the round budget.
func WithMaxRounds(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.maxRounds = n
		}
	}
}

// WithRoundTimeout applies a wall-clock budget per model round. Expiry
// surfaces through the provider call as an agent error.
func WithRoundTimeout(d time.Duration) Option {
	return func(o *Orchestrator) { o.roundTimeout = d }
}

// New constructs an Orchestrator.
func New(provider providers.Provider, catalogue *tools.Catalogue, lc *lifecycle.Lifecycle, issues store.IssueStore, messages store.MessageStore, activity store.ActivityStore, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		provider:  provider,
		catalogue: catalogue,
		lifecycle: lc,
		issues:    issues,
		messages:  messages,
		activity:  activity,
		maxRounds: defaultMaxRounds,
		tracer:    otel.Tracer("fixmate/agent"),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// HandleNewIssue triages a freshly created issue. When the issue is
// muted the agent is skipped entirely and an agent_skipped record is the
// only side effect.
func (o *Orchestrator) HandleNewIssue(ctx context.Context, issueID uuid.UUID) (string, error) {
	issue, err := o.issues.Get(ctx, issueID)
	if err != nil {
		return "", fmt.Errorf("load issue: %w", err)
	}

	if issue.AgentMuted {
		o.logSkipped(ctx, issueID, "handle_new_issue")
		return "", nil
	}

	if _, err := o.lifecycle.Transition(ctx, issueID, store.StatusTriaging, lifecycle.TransitionExtra{}); err != nil {
		return "", fmt.Errorf("transition to triaging: %w", err)
	}

	return o.runLoop(ctx, issueID, newIssuePrompt(issue))
}

// HandleTenantResponse continues triage after an inbound tenant message.
// The message is persisted before the mute guard runs: muted issues keep
// their transcript, they just never wake the agent.
func (o *Orchestrator) HandleTenantResponse(ctx context.Context, issueID uuid.UUID, tenantMessage string) (string, error) {
	if _, err := o.messages.Append(ctx, issueID, store.RoleTenant, tenantMessage, nil); err != nil {
		return "", fmt.Errorf("store tenant message: %w", err)
	}

	issue, err := o.issues.Get(ctx, issueID)
	if err != nil {
		return "", fmt.Errorf("load issue: %w", err)
	}

	if issue.AgentMuted {
		o.logSkipped(ctx, issueID, "handle_tenant_response")
		return "", nil
	}

	transcript, err := o.messages.Transcript(ctx, issueID)
	if err != nil {
		return "", fmt.Errorf("load transcript: %w", err)
	}

	return o.runLoop(ctx, issueID, continuationPrompt(issue, transcript, tenantMessage))
}

// runLoop is the bounded tool loop shared by both entry points. Each
// round either ends the turn with final text or executes the requested
// tool calls in order and feeds the results back.
func (o *Orchestrator) runLoop(ctx context.Context, issueID uuid.UUID, prompt string) (string, error) {
	ctx, span := o.tracer.Start(ctx, "agent.turn",
		trace.WithAttributes(attribute.String("issue.id", issueID.String())))
	defer span.End()

	history := []providers.Message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: prompt},
	}

	for round := 1; round <= o.maxRounds; round++ {
		resp, err := o.chatRound(ctx, round, history)
		if err != nil {
			o.logAgentError(ctx, issueID, prompt, err)
			span.SetAttributes(attribute.Bool("agent.error", true))
			return "", fmt.Errorf("agent invocation: %w", err)
		}

		if len(resp.ToolCalls) == 0 {
			span.SetAttributes(attribute.Int("agent.rounds", round))
			if resp.Content != "" {
				return resp.Content, nil
			}
			return fallbackText, nil
		}

		history = append(history, providers.Message{
			Role:      "assistant",
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		})

		for _, call := range resp.ToolCalls {
			result := o.catalogue.Execute(ctx, issueID, call)
			if result.Err != nil {
				slog.Warn("tool execution failed", "tool", call.Name, "issue", issueID, "error", result.Err)
			}
			history = append(history, providers.Message{
				Role:       "tool",
				ToolCallID: call.ID,
				Content:    result.ForLLM,
			})
		}
	}

	slog.Info("agent round budget exhausted", "issue", issueID, "rounds", o.maxRounds)
	span.SetAttributes(attribute.Int("agent.rounds", o.maxRounds))
	return fallbackText, nil
}

func (o *Orchestrator) chatRound(ctx context.Context, round int, history []providers.Message) (*providers.ChatResponse, error) {
	ctx, span := o.tracer.Start(ctx, "agent.round",
		trace.WithAttributes(attribute.Int("round", round)))
	defer span.End()

	if o.roundTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.roundTimeout)
		defer cancel()
	}

	resp, err := o.provider.Chat(ctx, providers.ChatRequest{
		Messages: history,
		Tools:    o.catalogue.Defs(),
	})
	if err != nil {
		return nil, err
	}
	if resp.Usage != nil {
		span.SetAttributes(
			attribute.Int("tokens.prompt", resp.Usage.PromptTokens),
			attribute.Int("tokens.completion", resp.Usage.CompletionTokens),
		)
	}
	return resp, nil
}

func (o *Orchestrator) logSkipped(ctx context.Context, issueID uuid.UUID, entry string) {
	slog.Info("agent muted, skipping", "issue", issueID, "entry", entry)
	_, _ = o.activity.Append(ctx, &issueID, "agent_skipped", map[string]any{
		"reason": "agent_muted",
		"entry":  entry,
	}, "")
}

// logAgentError records a provider failure before it is re-raised. The
// record is issue-scoped here; process-level failures elsewhere log with
// a nil issue.
func (o *Orchestrator) logAgentError(ctx context.Context, issueID uuid.UUID, prompt string, err error) {
	slog.Error("agent invocation failed", "issue", issueID, "error", err)
	_, _ = o.activity.Append(ctx, &issueID, "agent_error", map[string]any{
		"error":          err.Error(),
		"prompt_preview": truncate(prompt, 200),
	}, "")
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
