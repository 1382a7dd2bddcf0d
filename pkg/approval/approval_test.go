package approval

import "testing"

func TestScoreEscalatesInFreezeWindow(t *testing.T) {
	if got := Score(Context{InFreezeWindow: true, AffectedDriverCount: 15}); got != RiskCritical {
		t.Errorf("expected CRITICAL for large freeze-window action, got %s", got)
	}
}

func TestScoreLowForSmallUnremarkableChange(t *testing.T) {
	if got := Score(Context{AffectedDriverCount: 1, HoursToDeadline: 48}); got != RiskLow {
		t.Errorf("expected LOW, got %s", got)
	}
}

func TestScoreHighNearDeadline(t *testing.T) {
	if got := Score(Context{AffectedDriverCount: 2, HoursToDeadline: 1}); got != RiskHigh {
		t.Errorf("expected HIGH near deadline, got %s", got)
	}
}

func TestRequiredApprovalsMatchSpecTable(t *testing.T) {
	cases := map[RiskLevel]int{RiskLow: 1, RiskMedium: 1, RiskHigh: 2, RiskCritical: 2}
	for level, want := range cases {
		if got := requiredApprovals[level]; got != want {
			t.Errorf("risk %s: expected %d required approvals, got %d", level, want, got)
		}
	}
}
