// Package notify sends Slack block-kit messages for plan-governance
// events: publish, lock, and emergency-override. General notification
// delivery is out of scope. internal/app constructs a Notifier, but no
// publish, lock or approval path calls it.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	goslack "github.com/slack-go/slack"

	"github.com/solvereign/solvereign/pkg/evidence"
)

// Notifier posts governance events to a single configured Slack channel.
type Notifier struct {
	client  *goslack.Client
	channel string
	logger  *slog.Logger
}

// NewNotifier creates a Notifier. If botToken is empty, the notifier is a
// noop: calls are logged at debug level and otherwise skipped.
func NewNotifier(botToken, channel string, logger *slog.Logger) *Notifier {
	var client *goslack.Client
	if botToken != "" {
		client = goslack.New(botToken)
	}
	return &Notifier{client: client, channel: channel, logger: logger}
}

// IsEnabled reports whether the notifier has a real Slack client.
func (n *Notifier) IsEnabled() bool {
	return n.client != nil && n.channel != ""
}

// PublishEvent describes a completed plan publish.
type PublishEvent struct {
	PlanID        string
	SnapshotID    string
	VersionNumber int
	ApproverEmail string
	Reason        string
	FreezeUntil   time.Time
	ForcedFreeze  bool
}

// NotifyPublish posts a publish notification.
func (n *Notifier) NotifyPublish(ctx context.Context, evt PublishEvent) error {
	if !n.IsEnabled() {
		n.logger.Debug("slack notifier disabled, skipping publish notification", "plan_id", evt.PlanID)
		return nil
	}

	emoji := "🟢"
	suffix := ""
	if evt.ForcedFreeze {
		emoji = "🟡"
		suffix = " — freeze window overridden"
	}
	title := fmt.Sprintf("%s Plan %s published (v%d)%s", emoji, evt.PlanID, evt.VersionNumber, suffix)

	fields := []*goslack.TextBlockObject{
		goslack.NewTextBlockObject(goslack.MarkdownType, fmt.Sprintf("*Approver:* %s", evt.ApproverEmail), false, false),
		goslack.NewTextBlockObject(goslack.MarkdownType, fmt.Sprintf("*Snapshot:* %s", evt.SnapshotID), false, false),
		goslack.NewTextBlockObject(goslack.MarkdownType, fmt.Sprintf("*Freeze until:* %s", evt.FreezeUntil.Format(time.RFC3339)), false, false),
	}

	blocks := []goslack.Block{
		goslack.NewHeaderBlock(goslack.NewTextBlockObject(goslack.PlainTextType, title, true, false)),
		goslack.NewSectionBlock(nil, fields, nil),
		goslack.NewSectionBlock(goslack.NewTextBlockObject(goslack.MarkdownType, truncate(evt.Reason, 500), false, false), nil, nil),
	}

	_, _, err := n.client.PostMessageContext(ctx, n.channel,
		goslack.MsgOptionBlocks(blocks...),
		goslack.MsgOptionText(title, false),
	)
	if err != nil {
		return fmt.Errorf("posting publish notification to slack: %w", err)
	}
	return nil
}

// LockEvent describes a plan being locked.
type LockEvent struct {
	PlanID        string
	ApproverEmail string
	Reason        string
}

// NotifyLock posts a lock notification.
func (n *Notifier) NotifyLock(ctx context.Context, evt LockEvent) error {
	if !n.IsEnabled() {
		n.logger.Debug("slack notifier disabled, skipping lock notification", "plan_id", evt.PlanID)
		return nil
	}

	title := fmt.Sprintf("🔒 Plan %s locked", evt.PlanID)
	fields := []*goslack.TextBlockObject{
		goslack.NewTextBlockObject(goslack.MarkdownType, fmt.Sprintf("*Approver:* %s", evt.ApproverEmail), false, false),
	}
	blocks := []goslack.Block{
		goslack.NewHeaderBlock(goslack.NewTextBlockObject(goslack.PlainTextType, title, true, false)),
		goslack.NewSectionBlock(nil, fields, nil),
		goslack.NewSectionBlock(goslack.NewTextBlockObject(goslack.MarkdownType, truncate(evt.Reason, 500), false, false), nil, nil),
	}

	_, _, err := n.client.PostMessageContext(ctx, n.channel,
		goslack.MsgOptionBlocks(blocks...),
		goslack.MsgOptionText(title, false),
	)
	if err != nil {
		return fmt.Errorf("posting lock notification to slack: %w", err)
	}
	return nil
}

// OverrideEvent describes an emergency approval override.
type OverrideEvent struct {
	RequestID      string
	ApproverEmail  string
	Justification  string
	PostHocReview  time.Time
}

// NotifyEmergencyOverride posts a high-visibility override notification.
func (n *Notifier) NotifyEmergencyOverride(ctx context.Context, evt OverrideEvent) error {
	if !n.IsEnabled() {
		n.logger.Debug("slack notifier disabled, skipping override notification", "request_id", evt.RequestID)
		return nil
	}

	title := fmt.Sprintf("🔴 Emergency approval override on request %s", evt.RequestID)
	fields := []*goslack.TextBlockObject{
		goslack.NewTextBlockObject(goslack.MarkdownType, fmt.Sprintf("*Approver:* %s", evt.ApproverEmail), false, false),
		goslack.NewTextBlockObject(goslack.MarkdownType, fmt.Sprintf("*Post-hoc review by:* %s", evt.PostHocReview.Format(time.RFC3339)), false, false),
	}
	blocks := []goslack.Block{
		goslack.NewHeaderBlock(goslack.NewTextBlockObject(goslack.PlainTextType, title, true, false)),
		goslack.NewSectionBlock(nil, fields, nil),
		goslack.NewSectionBlock(goslack.NewTextBlockObject(goslack.MarkdownType, truncate(evt.Justification, 500), false, false), nil, nil),
	}

	_, _, err := n.client.PostMessageContext(ctx, n.channel,
		goslack.MsgOptionBlocks(blocks...),
		goslack.MsgOptionText(title, false),
	)
	if err != nil {
		return fmt.Errorf("posting emergency override notification to slack: %w", err)
	}
	return nil
}

// EvidenceSummary is enough of an evidence.Pack to reference in a
// notification without re-posting the full bundle.
func EvidenceSummary(pack evidence.Pack) string {
	return fmt.Sprintf("output_hash=%s policy_hash=%s", pack.OutputHash, pack.PolicyHash)
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
