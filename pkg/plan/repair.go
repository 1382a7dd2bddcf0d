package plan

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/solvereign/solvereign/pkg/auditlog"
)

// RepairFromSnapshot implements repair_from_snapshot(snapshot_id, reason)
// -> new_plan_id: creates a new DRAFT plan version referencing the
// snapshot's own input_hash and seed, leaving the source snapshot
// untouched and immutable.
func (m *Manager) RepairFromSnapshot(ctx context.Context, tenantID, snapshotID, actorID uuid.UUID, reason string) (Version, error) {
	snap, err := m.store.GetSnapshot(ctx, tenantID, snapshotID)
	if err != nil {
		return Version{}, err
	}

	source, err := m.store.GetVersion(ctx, tenantID, snap.PlanVersionID)
	if err != nil {
		return Version{}, err
	}

	v := Version{
		ID:                uuid.New(),
		TenantID:          source.TenantID,
		SiteID:            source.SiteID,
		ForecastVersionID: source.ForecastVersionID,
		State:             StateDraft,
		Seed:              source.Seed,
		InputHash:         snap.InputHash,
		CreatedAt:         time.Now().UTC(),
	}
	if err := m.store.CreateRepairDraft(ctx, v, snapshotID); err != nil {
		return Version{}, err
	}
	v.RepairSourceID = &snapshotID

	forecast, err := m.store.GetForecast(ctx, snap.PlanVersionID)
	if err == nil {
		_ = m.store.SaveForecast(ctx, v.ID, forecast)
	}

	_, err = m.audit.Append(ctx, &source.TenantID, &actorID, "plan.repaired_from_snapshot", "plan_version", v.ID.String(), auditlog.SeverityInfo, map[string]any{
		"source_snapshot_id": snapshotID, "reason": reason,
	})
	if err != nil {
		return Version{}, err
	}

	return v, nil
}
