// Package followup delivers scheduled check-in messages for issues whose
// follow-up timestamp has passed.
package followup

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/adhocore/gronx"

	"github.com/mk-162/fixMate/internal/channels"
	"github.com/mk-162/fixMate/internal/lifecycle"
	"github.com/mk-162/fixMate/internal/registry"
	"github.com/mk-162/fixMate/internal/store"
)

// defaultSchedule sweeps once a minute.
const defaultSchedule = "* * * * *"

// tickInterval is how often the cron gate is evaluated.
const tickInterval = 30 * time.Second

// Sweeper finds due follow-ups and sends the check-in through the
// conversation's bound channel.
type Sweeper struct {
	issues    store.IssueStore
	lifecycle *lifecycle.Lifecycle
	registry  *registry.Registry
	channels  *channels.Manager

	schedule string
	now      func() time.Time
}

// New constructs a Sweeper. An empty schedule uses the per-minute default.
func New(issues store.IssueStore, lc *lifecycle.Lifecycle, reg *registry.Registry, mgr *channels.Manager, schedule string) (*Sweeper, error) {
	if schedule == "" {
		schedule = defaultSchedule
	}
	if !gronx.New().IsValid(schedule) {
		return nil, fmt.Errorf("invalid follow-up schedule %q", schedule)
	}
	return &Sweeper{
		issues:    issues,
		lifecycle: lc,
		registry:  reg,
		channels:  mgr,
		schedule:  schedule,
		now:       time.Now,
	}, nil
}

// Run evaluates the cron schedule until ctx is done.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	gron := gronx.New()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			due, err := gron.IsDue(s.schedule, s.now())
			if err != nil {
				slog.Warn("follow-up schedule evaluation failed", "error", err)
				continue
			}
			if due {
				s.Sweep(ctx)
			}
		}
	}
}

// Sweep sends one check-in per due issue and clears the follow-up so the
// issue is not picked up again next pass.
func (s *Sweeper) Sweep(ctx context.Context) {
	due, err := s.issues.ListDueFollowUps(ctx, s.now())
	if err != nil {
		slog.Error("listing due follow-ups failed", "error", err)
		return
	}

	for _, issue := range due {
		s.checkIn(ctx, issue)
	}
}

func (s *Sweeper) checkIn(ctx context.Context, issue store.Issue) {
	// Clear first: a broken binding or dead channel must not make the
	// same issue come up due on every sweep.
	if _, err := s.lifecycle.ClearFollowUp(ctx, issue.ID); err != nil {
		slog.Warn("clearing follow-up failed", "issue", issue.ID, "error", err)
		return
	}

	conv, err := s.registry.ByIssue(ctx, issue.ID)
	if err != nil {
		slog.Warn("no conversation bound for follow-up", "issue", issue.ID, "error", err)
		return
	}

	sender, err := s.channels.Sender(conv.Channel)
	if err != nil {
		slog.Warn("no sender for follow-up channel", "issue", issue.ID, "channel", conv.Channel)
		return
	}

	address := conv.Phone
	if address == "" {
		address = conv.ContactID
	}

	text := fmt.Sprintf(
		"Hi! Just checking in on your issue: %q. Is everything still working okay? "+
			"Reply if you need any more help.", issue.Title)

	if _, err := sender.Send(ctx, address, text); err != nil {
		slog.Warn("follow-up send failed", "issue", issue.ID, "channel", conv.Channel, "error", err)
		return
	}
	slog.Info("follow-up check-in sent", "issue", issue.ID, "channel", conv.Channel)
}
