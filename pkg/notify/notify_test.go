package notify

import (
	"context"
	"log/slog"
	"testing"
	"time"
)

func TestDisabledNotifierSkipsPublish(t *testing.T) {
	n := NewNotifier("", "", slog.Default())
	if n.IsEnabled() {
		t.Fatal("expected notifier without a bot token to be disabled")
	}
	if err := n.NotifyPublish(context.Background(), PublishEvent{PlanID: "p1", VersionNumber: 1, FreezeUntil: time.Now()}); err != nil {
		t.Fatalf("expected disabled notifier to no-op, got error: %v", err)
	}
}

func TestTruncateRespectsMaxLength(t *testing.T) {
	s := truncate("abcdefgh", 4)
	if s != "abcd..." {
		t.Errorf("expected truncated string with ellipsis, got %q", s)
	}
	if got := truncate("short", 10); got != "short" {
		t.Errorf("expected short string unchanged, got %q", got)
	}
}
