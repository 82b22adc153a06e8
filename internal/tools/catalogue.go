// Package tools implements the fixed catalogue of actions the triage agent
// can invoke. Each tool is a side-effecting function over the stores and
// the issue lifecycle; tools never call the agent back. Repeated
// invocations produce repeated audit entries, the loop's round budget is
// the only brake on repetition.
package tools

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/mk-162/fixMate/internal/classify"
	"github.com/mk-162/fixMate/internal/lifecycle"
	"github.com/mk-162/fixMate/internal/providers"
	"github.com/mk-162/fixMate/internal/store"
)

// Kind names one tool in the catalogue. The set is closed: dispatch is an
// exhaustive switch and unknown names come back as error results.
type Kind string

const (
	KindSendMessage        Kind = "send_message"
	KindLogReasoning       Kind = "log_reasoning"
	KindDetectEmergency    Kind = "detect_emergency"
	KindEstimateRepairCost Kind = "estimate_repair_cost"
	KindAssessSentiment    Kind = "assess_sentiment"
	KindEscalate           Kind = "escalate_to_property_manager"
	KindResolve            Kind = "resolve_with_troubleshooting"
	KindScheduleFollowUp   Kind = "schedule_followup"
	KindGetIssueContext    Kind = "get_issue_context"
)

// ParseKind maps a tool name from the model back to a Kind.
func ParseKind(name string) (Kind, bool) {
	switch k := Kind(name); k {
	case KindSendMessage, KindLogReasoning, KindDetectEmergency,
		KindEstimateRepairCost, KindAssessSentiment, KindEscalate,
		KindResolve, KindScheduleFollowUp, KindGetIssueContext:
		return k, true
	}
	return "", false
}

// CostRange is a (low, high) GBP repair cost estimate.
type CostRange struct{ Low, High int }

// repairCostTable maps category x severity to a cost range.
var repairCostTable = map[store.IssueCategory]map[string]CostRange{
	store.CategoryPlumbing:   {"minor": {50, 150}, "moderate": {150, 400}, "major": {400, 1500}},
	store.CategoryElectrical: {"minor": {75, 200}, "moderate": {200, 500}, "major": {500, 2000}},
	store.CategoryAppliance:  {"minor": {0, 100}, "moderate": {100, 300}, "major": {300, 800}},
	store.CategoryHeating:    {"minor": {75, 200}, "moderate": {200, 600}, "major": {600, 2500}},
	store.CategoryStructural: {"minor": {100, 300}, "moderate": {300, 1000}, "major": {1000, 5000}},
}

// EstimateCost looks up the repair cost range. Unknown categories fall
// back to appliance, unknown severities to moderate.
func EstimateCost(category, severity string) (string, string, CostRange) {
	cat := store.IssueCategory(strings.ToLower(category))
	if _, ok := repairCostTable[cat]; !ok {
		cat = store.CategoryAppliance
	}
	sev := strings.ToLower(severity)
	if sev != "minor" && sev != "moderate" && sev != "major" {
		sev = "moderate"
	}
	return string(cat), sev, repairCostTable[cat][sev]
}

// resolutionFollowUpDays is the automatic check-in delay after an
// agent-resolved issue.
const resolutionFollowUpDays = 3

// Catalogue executes tool calls against the stores. It is bound to an
// issue per invocation via the issueID argument so the model never has to
// thread identifiers through its own arguments correctly.
type Catalogue struct {
	lifecycle  *lifecycle.Lifecycle
	issues     store.IssueStore
	messages   store.MessageStore
	activity   store.ActivityStore
	classifier classify.Classifier

	now    func() time.Time
	tracer trace.Tracer
}

// New constructs the catalogue.
func New(lc *lifecycle.Lifecycle, issues store.IssueStore, messages store.MessageStore, activity store.ActivityStore, classifier classify.Classifier) *Catalogue {
	return &Catalogue{
		lifecycle:  lc,
		issues:     issues,
		messages:   messages,
		activity:   activity,
		classifier: classifier,
		now:        time.Now,
		tracer:     otel.Tracer("fixmate/tools"),
	}
}

// WithClock overrides the time source (tests).
func (c *Catalogue) WithClock(now func() time.Time) *Catalogue {
	c.now = now
	return c
}

// Defs returns the tool definitions advertised to the model.
func (c *Catalogue) Defs() []providers.ToolDefinition {
	return []providers.ToolDefinition{
		{
			Name:        string(KindSendMessage),
			Description: "Send a message to the tenant. Use this for all communication - questions, instructions, or updates.",
			Parameters: objectSchema(map[string]any{
				"message":      stringProp("The message text to send"),
				"message_type": stringProp("greeting, question, instruction, celebration, or escalation_notice"),
			}, "message"),
		},
		{
			Name:        string(KindLogReasoning),
			Description: "Log your analysis, reasoning, or observations. Use this to document your thought process.",
			Parameters: objectSchema(map[string]any{
				"reasoning": stringProp("The reasoning to record"),
				"category":  stringProp("initial_assessment, troubleshooting, decision, or escalation_reason"),
			}, "reasoning"),
		},
		{
			Name:        string(KindDetectEmergency),
			Description: "Analyze text for emergency indicators. Returns whether this is an emergency and why.",
			Parameters: objectSchema(map[string]any{
				"text": stringProp("The text to analyze"),
			}, "text"),
		},
		{
			Name:        string(KindEstimateRepairCost),
			Description: "Estimate the repair cost for an issue. Returns a cost range based on category and severity.",
			Parameters: objectSchema(map[string]any{
				"category": stringProp("plumbing, electrical, appliance, heating, or structural"),
				"severity": stringProp("minor, moderate, or major"),
			}, "category", "severity"),
		},
		{
			Name:        string(KindAssessSentiment),
			Description: "Analyze the tenant's sentiment based on their messages. Helps track satisfaction.",
			Parameters: objectSchema(map[string]any{
				"latest_message": stringProp("The tenant's most recent message"),
			}, "latest_message"),
		},
		{
			Name:        string(KindEscalate),
			Description: "Escalate the issue to the property manager when professional help is needed.",
			Parameters: objectSchema(map[string]any{
				"reason":              stringProp("Why professional help is required"),
				"priority":            stringProp("low, medium, high, or urgent"),
				"category":            stringProp("plumbing, electrical, appliance, heating, structural, or security"),
				"estimated_cost_low":  intProp("Lower bound of the repair cost estimate in GBP"),
				"estimated_cost_high": intProp("Upper bound of the repair cost estimate in GBP"),
			}, "reason", "priority", "category", "estimated_cost_low", "estimated_cost_high"),
		},
		{
			Name:        string(KindResolve),
			Description: "Mark the issue as resolved when you successfully helped the tenant fix it themselves.",
			Parameters: objectSchema(map[string]any{
				"solution":          stringProp("What fixed the issue"),
				"steps_taken":       stringProp("The troubleshooting steps that were followed"),
				"estimated_savings": intProp("Money saved by not calling a professional, in GBP"),
			}, "solution", "steps_taken", "estimated_savings"),
		},
		{
			Name:        string(KindScheduleFollowUp),
			Description: "Schedule a follow-up check on the issue.",
			Parameters: objectSchema(map[string]any{
				"days":   intProp("How many days from now to check back"),
				"reason": stringProp("Why the follow-up is needed"),
			}, "days", "reason"),
		},
		{
			Name:        string(KindGetIssueContext),
			Description: "Get the full context of an issue including all messages and history.",
			Parameters:  objectSchema(map[string]any{}),
		},
	}
}

// Execute dispatches one tool call for the given issue. Unknown tool
// names and persistence failures come back as error results; the loop
// feeds them to the model rather than aborting the turn.
func (c *Catalogue) Execute(ctx context.Context, issueID uuid.UUID, call providers.ToolCall) *Result {
	kind, ok := ParseKind(call.Name)
	if !ok {
		return ErrorResult(fmt.Sprintf("Unknown tool: %s", call.Name))
	}

	ctx, span := c.tracer.Start(ctx, "tool."+call.Name,
		trace.WithAttributes(attribute.String("issue.id", issueID.String())))
	defer span.End()

	args := arguments(call.Arguments)

	var res *Result
	switch kind {
	case KindSendMessage:
		res = c.sendMessage(ctx, issueID, args)
	case KindLogReasoning:
		res = c.logReasoning(ctx, issueID, args)
	case KindDetectEmergency:
		res = c.detectEmergency(ctx, issueID, args)
	case KindEstimateRepairCost:
		res = c.estimateRepairCost(ctx, issueID, args)
	case KindAssessSentiment:
		res = c.assessSentiment(ctx, issueID, args)
	case KindEscalate:
		res = c.escalate(ctx, issueID, args)
	case KindResolve:
		res = c.resolve(ctx, issueID, args)
	case KindScheduleFollowUp:
		res = c.scheduleFollowUp(ctx, issueID, args)
	case KindGetIssueContext:
		res = c.getIssueContext(ctx, issueID)
	}

	if res.IsError {
		span.SetAttributes(attribute.Bool("tool.error", true))
	}
	return res
}

func (c *Catalogue) sendMessage(ctx context.Context, issueID uuid.UUID, args arguments) *Result {
	message := args.str("message")
	if message == "" {
		return ErrorResult("send_message requires a non-empty message")
	}
	messageType := args.strOr("message_type", "general")

	if _, err := c.messages.Append(ctx, issueID, store.RoleAgent, message, map[string]string{
		"message_type": messageType,
	}); err != nil {
		return ErrorResult("Failed to store message").WithError(err)
	}

	c.logActivity(ctx, issueID, "sent_message", map[string]any{
		"message_preview": truncate(message, 100),
		"message_type":    messageType,
	}, "tenant")

	return NewResult("Message sent to tenant")
}

func (c *Catalogue) logReasoning(ctx context.Context, issueID uuid.UUID, args arguments) *Result {
	reasoning := args.str("reasoning")
	if reasoning == "" {
		return ErrorResult("log_reasoning requires non-empty reasoning")
	}

	c.logActivity(ctx, issueID, "reasoning", map[string]any{
		"reasoning": reasoning,
		"category":  args.strOr("category", "general"),
	}, "")

	return NewResult("Reasoning logged")
}

func (c *Catalogue) detectEmergency(ctx context.Context, issueID uuid.UUID, args arguments) *Result {
	text := args.str("text")
	detected := c.classifier.DetectEmergency(text)

	if len(detected) == 0 {
		return NewResult("No emergency indicators found.")
	}

	c.logActivity(ctx, issueID, "emergency_detected", map[string]any{
		"keywords":      detected,
		"text_analyzed": truncate(text, 200),
	}, "property_manager,landlord")

	return NewResult(fmt.Sprintf("Emergency detected: true. Keywords found: %v", detected))
}

func (c *Catalogue) estimateRepairCost(ctx context.Context, issueID uuid.UUID, args arguments) *Result {
	category, severity, rng := EstimateCost(args.str("category"), args.str("severity"))

	c.logActivity(ctx, issueID, "cost_estimated", map[string]any{
		"category":        category,
		"severity":        severity,
		"cost_range_low":  rng.Low,
		"cost_range_high": rng.High,
	}, "")

	return NewResult(fmt.Sprintf("Estimated cost for %s %s issue: £%d - £%d", severity, category, rng.Low, rng.High))
}

func (c *Catalogue) assessSentiment(ctx context.Context, issueID uuid.UUID, args arguments) *Result {
	sentiment := c.classifier.AssessSentiment(args.str("latest_message"))

	c.logActivity(ctx, issueID, "sentiment_assessed", map[string]any{
		"sentiment":           sentiment.Label,
		"score":               sentiment.Score,
		"positive_indicators": sentiment.Positive,
		"negative_indicators": sentiment.Negative,
	}, "")

	return NewResult(fmt.Sprintf("Tenant sentiment: %s (score: %.2f)", sentiment.Label, sentiment.Score))
}

func (c *Catalogue) escalate(ctx context.Context, issueID uuid.UUID, args arguments) *Result {
	reason := args.str("reason")
	priority := store.IssuePriority(strings.ToLower(args.strOr("priority", string(store.PriorityHigh))))
	category := args.strOr("category", "appliance")
	costLow := args.intOr("estimated_cost_low", 0)
	costHigh := args.intOr("estimated_cost_high", 0)

	if priority.Valid() {
		if _, err := c.lifecycle.SetPriority(ctx, issueID, priority); err != nil {
			return ErrorResult("Failed to set priority").WithError(err)
		}
	}

	summary := fmt.Sprintf(`Issue escalated to property manager.

Reason: %s
Priority: %s
Category: %s
Estimated Cost: £%d - £%d

The assistant has completed initial troubleshooting and determined professional help is required.`,
		reason, strings.ToUpper(string(priority)), category, costLow, costHigh)

	if _, err := c.messages.Append(ctx, issueID, store.RoleSystem, summary, nil); err != nil {
		return ErrorResult("Failed to store escalation summary").WithError(err)
	}

	// Transition emits the escalated activity record with these details
	// merged in; the tool does not log a second one.
	if _, err := c.lifecycle.Transition(ctx, issueID, store.StatusEscalated, lifecycle.TransitionExtra{
		Details: map[string]any{
			"reason":              reason,
			"priority":            string(priority),
			"category":            category,
			"estimated_cost_low":  costLow,
			"estimated_cost_high": costHigh,
		},
	}); err != nil {
		return ErrorResult("Failed to escalate issue").WithError(err)
	}

	return NewResult(fmt.Sprintf("Issue escalated with %s priority. Estimated cost: £%d-£%d", priority, costLow, costHigh))
}

func (c *Catalogue) resolve(ctx context.Context, issueID uuid.UUID, args arguments) *Result {
	solution := args.str("solution")
	if solution == "" {
		return ErrorResult("resolve_with_troubleshooting requires a solution")
	}
	stepsTaken := args.str("steps_taken")
	savings := args.intOr("estimated_savings", 0)

	celebration := fmt.Sprintf(`Issue Resolved!

Solution: %s
Steps Taken: %s
Estimated Savings: £%d

Great job troubleshooting this yourself! A follow-up check has been scheduled for %d days from now.`,
		solution, stepsTaken, savings, resolutionFollowUpDays)

	if _, err := c.messages.Append(ctx, issueID, store.RoleSystem, celebration, nil); err != nil {
		return ErrorResult("Failed to store resolution summary").WithError(err)
	}

	if _, err := c.lifecycle.Transition(ctx, issueID, store.StatusResolvedByAgent, lifecycle.TransitionExtra{
		ResolvedSummary: solution,
		Details: map[string]any{
			"steps_taken":       stepsTaken,
			"estimated_savings": savings,
		},
	}); err != nil {
		return ErrorResult("Failed to resolve issue").WithError(err)
	}

	followUp := c.now().Add(resolutionFollowUpDays * 24 * time.Hour)
	if _, err := c.lifecycle.SetFollowUp(ctx, issueID, followUp, map[string]any{
		"days":   resolutionFollowUpDays,
		"reason": "post-resolution check",
	}); err != nil {
		return ErrorResult("Resolved, but failed to schedule follow-up").WithError(err)
	}

	return NewResult(fmt.Sprintf("Issue resolved! Estimated savings: £%d. Follow-up scheduled.", savings))
}

func (c *Catalogue) scheduleFollowUp(ctx context.Context, issueID uuid.UUID, args arguments) *Result {
	days := args.intOr("days", resolutionFollowUpDays)
	if days < 1 {
		days = 1
	}
	reason := args.str("reason")

	followUp := c.now().Add(time.Duration(days) * 24 * time.Hour)
	if _, err := c.lifecycle.SetFollowUp(ctx, issueID, followUp, map[string]any{
		"days":   days,
		"reason": reason,
	}); err != nil {
		return ErrorResult("Failed to schedule follow-up").WithError(err)
	}

	return NewResult(fmt.Sprintf("Follow-up scheduled for %s (%d days)", followUp.UTC().Format("2006-01-02"), days))
}

func (c *Catalogue) getIssueContext(ctx context.Context, issueID uuid.UUID) *Result {
	issue, err := c.issues.Get(ctx, issueID)
	if errors.Is(err, store.ErrNotFound) {
		return ErrorResult("Issue not found")
	}
	if err != nil {
		return ErrorResult("Failed to load issue").WithError(err)
	}

	transcript, err := c.messages.Transcript(ctx, issueID)
	if err != nil {
		return ErrorResult("Failed to load conversation history").WithError(err)
	}
	if transcript == "" {
		transcript = "(No previous messages)"
	}

	category := string(issue.Category)
	if category == "" {
		category = "Not specified"
	}

	return NewResult(fmt.Sprintf(`## Issue Details
- ID: %s
- Title: %s
- Description: %s
- Category: %s
- Status: %s
- Priority: %s
- Created: %s

## Conversation History
%s`,
		issue.ID, issue.Title, issue.Description, category, issue.Status,
		issue.Priority, issue.CreatedAt.UTC().Format(time.RFC3339), transcript))
}

func (c *Catalogue) logActivity(ctx context.Context, issueID uuid.UUID, action string, details map[string]any, notify string) {
	// Activity failures never fail the tool itself; the primary side
	// effect (if any) already landed.
	_, _ = c.activity.Append(ctx, &issueID, action, details, notify)
}

// --- argument helpers ---

type arguments map[string]any

func (a arguments) str(key string) string {
	if v, ok := a[key].(string); ok {
		return strings.TrimSpace(v)
	}
	return ""
}

func (a arguments) strOr(key, def string) string {
	if s := a.str(key); s != "" {
		return s
	}
	return def
}

// intOr reads an integer argument; JSON numbers arrive as float64.
func (a arguments) intOr(key string, def int) int {
	switch v := a[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	}
	return def
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}

// --- schema helpers ---

func objectSchema(props map[string]any, required ...string) map[string]any {
	schema := map[string]any{
		"type":       "object",
		"properties": props,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

func stringProp(description string) map[string]any {
	return map[string]any{"type": "string", "description": description}
}

func intProp(description string) map[string]any {
	return map[string]any{"type": "integer", "description": description}
}
