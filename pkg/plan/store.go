package plan

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/solvereign/solvereign/internal/apperr"
	"github.com/solvereign/solvereign/internal/db"
	"github.com/solvereign/solvereign/pkg/evidence"
	"github.com/solvereign/solvereign/pkg/ingest"
	"github.com/solvereign/solvereign/pkg/solver"
	"github.com/solvereign/solvereign/pkg/violations"
)

const versionColumns = `id, tenant_id, site_id, forecast_version_id, state, seed, input_hash, output_hash,
	audit_block_count, audit_warn_count, current_snapshot_id, publish_count, freeze_until, repair_source_snapshot_id, created_at`

const snapshotColumns = `id, plan_version_id, tenant_id, version_number, published_at, published_by, publish_reason,
	freeze_until, input_hash, matrix_hash, output_hash, evidence_hash, evidence_payload, status`

// Store provides raw-SQL operations over plan_versions, plan_snapshots,
// and their supporting forecast/solve-result payload tables.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a Store backed by the given connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func scanVersion(row pgx.Row) (Version, error) {
	var v Version
	err := row.Scan(&v.ID, &v.TenantID, &v.SiteID, &v.ForecastVersionID, &v.State, &v.Seed, &v.InputHash, &v.OutputHash,
		&v.AuditBlockCount, &v.AuditWarnCount, &v.CurrentSnapshotID, &v.PublishCount, &v.FreezeUntil, &v.RepairSourceID, &v.CreatedAt)
	if err != nil {
		return Version{}, err
	}
	return v, nil
}

func scanSnapshot(row pgx.Row) (Snapshot, error) {
	var s Snapshot
	err := row.Scan(&s.ID, &s.PlanVersionID, &s.TenantID, &s.VersionNumber, &s.PublishedAt, &s.PublishedBy, &s.PublishReason,
		&s.FreezeUntil, &s.InputHash, &s.MatrixHash, &s.OutputHash, &s.EvidenceHash, &s.EvidencePayload, &s.Status)
	if err != nil {
		return Snapshot{}, err
	}
	return s, nil
}

// CreateVersion inserts a new DRAFT plan_versions row.
func (s *Store) CreateVersion(ctx context.Context, v Version) error {
	_, err := db.FromContext(ctx, s.pool).Exec(ctx,
		`INSERT INTO plan_versions (id, tenant_id, site_id, forecast_version_id, state, seed, input_hash, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		v.ID, v.TenantID, v.SiteID, v.ForecastVersionID, v.State, v.Seed, v.InputHash, v.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("creating plan version: %w", err)
	}
	return nil
}

// GetVersion reads a plan_versions row scoped to tenantID. A plan that
// exists under a different tenant is indistinguishable from one that
// doesn't exist at all: both return apperr.NotFound, never a distinct
// status, so existence never leaks across tenants.
func (s *Store) GetVersion(ctx context.Context, tenantID, id uuid.UUID) (Version, error) {
	row := db.FromContext(ctx, s.pool).QueryRow(ctx,
		`SELECT `+versionColumns+` FROM plan_versions WHERE id = $1 AND tenant_id = $2`, id, tenantID)
	v, err := scanVersion(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Version{}, apperr.NotFound("plan")
		}
		return Version{}, fmt.Errorf("reading plan version: %w", err)
	}
	return v, nil
}

// VersionExists reports whether a plan_versions row with this id exists at
// all, regardless of tenant. It deliberately queries s.pool directly
// instead of db.FromContext: the caller's bound connection has RLS
// enforcing app.tenant_id, which would always report false for a plan
// belonging to another tenant. This is used only to tell "doesn't exist"
// apart from "exists under another tenant" for the cross-tenant audit
// trail; it never changes what's returned to the client.
func (s *Store) VersionExists(ctx context.Context, id uuid.UUID) (bool, error) {
	var exists bool
	if err := s.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM plan_versions WHERE id = $1)`, id).Scan(&exists); err != nil {
		return false, fmt.Errorf("checking plan version existence: %w", err)
	}
	return exists, nil
}

// ListVersions implements GET /plans' tenant-scoped listing, filterable
// by site and state. Either filter may be the zero value to mean "any".
func (s *Store) ListVersions(ctx context.Context, tenantID uuid.UUID, siteID uuid.UUID, state State) ([]Version, error) {
	query := `SELECT ` + versionColumns + ` FROM plan_versions WHERE tenant_id = $1`
	args := []any{tenantID}

	if siteID != uuid.Nil {
		args = append(args, siteID)
		query += fmt.Sprintf(" AND site_id = $%d", len(args))
	}
	if state != "" {
		args = append(args, state)
		query += fmt.Sprintf(" AND state = $%d", len(args))
	}
	query += " ORDER BY created_at DESC"

	rows, err := db.FromContext(ctx, s.pool).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing plan versions: %w", err)
	}
	defer rows.Close()

	var out []Version
	for rows.Next() {
		v, err := scanVersion(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// SetState transitions a plan's state column.
func (s *Store) SetState(ctx context.Context, id uuid.UUID, state State) error {
	_, err := db.FromContext(ctx, s.pool).Exec(ctx, `UPDATE plan_versions SET state = $2 WHERE id = $1`, id, state)
	if err != nil {
		return fmt.Errorf("updating plan version state: %w", err)
	}
	return nil
}

// SaveForecast persists the canonical forecast a draft was created from,
// so start_solve can re-read it without the caller re-supplying it.
func (s *Store) SaveForecast(ctx context.Context, planID uuid.UUID, forecast ingest.ForecastVersion) error {
	b, err := json.Marshal(forecast)
	if err != nil {
		return err
	}
	_, err = db.FromContext(ctx, s.pool).Exec(ctx, `INSERT INTO plan_forecasts (plan_version_id, payload) VALUES ($1, $2)`, planID, b)
	if err != nil {
		return fmt.Errorf("saving plan forecast: %w", err)
	}
	return nil
}

// GetForecast reads back the forecast a plan was drafted from.
func (s *Store) GetForecast(ctx context.Context, planID uuid.UUID) (ingest.ForecastVersion, error) {
	var b []byte
	err := db.FromContext(ctx, s.pool).QueryRow(ctx, `SELECT payload FROM plan_forecasts WHERE plan_version_id = $1`, planID).Scan(&b)
	if err != nil {
		return ingest.ForecastVersion{}, fmt.Errorf("reading plan forecast: %w", err)
	}
	var f ingest.ForecastVersion
	if err := json.Unmarshal(b, &f); err != nil {
		return ingest.ForecastVersion{}, err
	}
	return f, nil
}

// CompleteSolve records the solver's result and moves the plan to SOLVED.
func (s *Store) CompleteSolve(ctx context.Context, planID uuid.UUID, outputHash string, result solver.Result, blockCount, warnCount int) error {
	resultBytes, err := json.Marshal(result)
	if err != nil {
		return err
	}
	auditBytes, err := json.Marshal(violations.Result{BlockCount: blockCount, WarnCount: warnCount})
	if err != nil {
		return err
	}

	tx, err := db.BeginFromContext(ctx, s.pool)
	if err != nil {
		return fmt.Errorf("beginning solve-completion transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`UPDATE plan_versions SET state = $2, output_hash = $3, audit_block_count = $4, audit_warn_count = $5 WHERE id = $1`,
		planID, StateSolved, outputHash, blockCount, warnCount,
	)
	if err != nil {
		return fmt.Errorf("recording solve completion: %w", err)
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO plan_solve_results (plan_version_id, result_payload, audit_payload)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (plan_version_id) DO UPDATE SET result_payload = $2, audit_payload = $3`,
		planID, resultBytes, auditBytes,
	)
	if err != nil {
		return fmt.Errorf("saving solve result: %w", err)
	}

	return tx.Commit(ctx)
}

// GetSolveResultJSON returns the raw solve-result payload for matrix hashing
// and evidence pack assembly.
func (s *Store) GetSolveResultJSON(ctx context.Context, planID uuid.UUID) (json.RawMessage, error) {
	var b []byte
	err := db.FromContext(ctx, s.pool).QueryRow(ctx, `SELECT result_payload FROM plan_solve_results WHERE plan_version_id = $1`, planID).Scan(&b)
	if err != nil {
		return nil, fmt.Errorf("reading solve result: %w", err)
	}
	return json.RawMessage(b), nil
}

// GetAuditResult returns the violations.Result computed at solve time.
func (s *Store) GetAuditResult(ctx context.Context, planID uuid.UUID) (violations.Result, error) {
	var b []byte
	err := db.FromContext(ctx, s.pool).QueryRow(ctx, `SELECT audit_payload FROM plan_solve_results WHERE plan_version_id = $1`, planID).Scan(&b)
	if err != nil {
		return violations.Result{}, fmt.Errorf("reading audit result: %w", err)
	}
	var r violations.Result
	if err := json.Unmarshal(b, &r); err != nil {
		return violations.Result{}, err
	}
	return r, nil
}

// ErrNoActiveSnapshot is returned when a site has never published.
var ErrNoActiveSnapshot = errors.New("no active snapshot for site")

// GetActiveSnapshotForSite returns the current ACTIVE snapshot across all
// plans for a site, used to evaluate the freeze window at publish time.
func (s *Store) GetActiveSnapshotForSite(ctx context.Context, tenantID, siteID uuid.UUID) (Snapshot, error) {
	row := db.FromContext(ctx, s.pool).QueryRow(ctx,
		`SELECT `+snapshotColumns+` FROM plan_snapshots sn
		 JOIN plan_versions pv ON pv.id = sn.plan_version_id
		 WHERE pv.tenant_id = $1 AND pv.site_id = $2 AND sn.status = 'ACTIVE'
		 ORDER BY sn.published_at DESC LIMIT 1`,
		tenantID, siteID,
	)
	snap, err := scanSnapshot(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Snapshot{}, ErrNoActiveSnapshot
		}
		return Snapshot{}, fmt.Errorf("reading active snapshot: %w", err)
	}
	return snap, nil
}

// NextSnapshotVersionNumber computes prev_max + 1 across all snapshots for
// the plan's lineage (scoped by plan_version_id, per spec's "assign
// version_number = prev_max + 1").
func (s *Store) NextSnapshotVersionNumber(ctx context.Context, planID uuid.UUID) (int, error) {
	var max int
	err := db.FromContext(ctx, s.pool).QueryRow(ctx, `SELECT coalesce(max(version_number), 0) FROM plan_snapshots WHERE plan_version_id = $1`, planID).Scan(&max)
	if err != nil {
		return 0, fmt.Errorf("computing next snapshot version: %w", err)
	}
	return max + 1, nil
}

// PublishTx atomically supersedes the site's prior ACTIVE snapshot,
// inserts the new snapshot, and transitions the plan to PUBLISHED.
func (s *Store) PublishTx(ctx context.Context, tenantID, siteID, planID uuid.UUID, snap Snapshot) error {
	tx, err := db.BeginFromContext(ctx, s.pool)
	if err != nil {
		return fmt.Errorf("beginning publish transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`UPDATE plan_snapshots SET status = 'SUPERSEDED'
		 WHERE status = 'ACTIVE' AND plan_version_id IN (SELECT id FROM plan_versions WHERE tenant_id = $1 AND site_id = $2)`,
		tenantID, siteID,
	)
	if err != nil {
		return fmt.Errorf("superseding prior snapshots: %w", err)
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO plan_snapshots (id, plan_version_id, tenant_id, version_number, published_at, published_by, publish_reason,
			freeze_until, input_hash, matrix_hash, output_hash, evidence_hash, evidence_payload, status)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`,
		snap.ID, snap.PlanVersionID, snap.TenantID, snap.VersionNumber, snap.PublishedAt, snap.PublishedBy, snap.PublishReason,
		snap.FreezeUntil, snap.InputHash, snap.MatrixHash, snap.OutputHash, snap.EvidenceHash, snap.EvidencePayload, snap.Status,
	)
	if err != nil {
		return fmt.Errorf("inserting snapshot: %w", err)
	}

	_, err = tx.Exec(ctx,
		`UPDATE plan_versions SET state = $2, current_snapshot_id = $3, publish_count = publish_count + 1, freeze_until = $4
		 WHERE id = $1`,
		planID, StatePublished, snap.ID, snap.FreezeUntil,
	)
	if err != nil {
		return fmt.Errorf("transitioning plan to published: %w", err)
	}

	return tx.Commit(ctx)
}

// LockTx transitions a PUBLISHED plan to LOCKED. It performs only the
// application-level transition; no trigger on plan_versions rejects a
// later UPDATE or DELETE of a LOCKED row.
func (s *Store) LockTx(ctx context.Context, planID uuid.UUID) error {
	tag, err := db.FromContext(ctx, s.pool).Exec(ctx, `UPDATE plan_versions SET state = $2 WHERE id = $1 AND state = $3`, planID, StateLocked, StatePublished)
	if err != nil {
		return fmt.Errorf("locking plan: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotPublished
	}
	return nil
}

// CreateRepairDraft inserts a new DRAFT plan version rooted from a
// snapshot, per repair_from_snapshot.
func (s *Store) CreateRepairDraft(ctx context.Context, v Version, sourceSnapshotID uuid.UUID) error {
	_, err := db.FromContext(ctx, s.pool).Exec(ctx,
		`INSERT INTO plan_versions (id, tenant_id, site_id, forecast_version_id, state, seed, input_hash, repair_source_snapshot_id, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		v.ID, v.TenantID, v.SiteID, v.ForecastVersionID, v.State, v.Seed, v.InputHash, sourceSnapshotID, v.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("creating repair draft: %w", err)
	}
	return nil
}

// GetSnapshot reads a single snapshot by id.
func (s *Store) GetSnapshot(ctx context.Context, tenantID, id uuid.UUID) (Snapshot, error) {
	row := db.FromContext(ctx, s.pool).QueryRow(ctx,
		`SELECT `+snapshotColumns+` FROM plan_snapshots WHERE id = $1 AND tenant_id = $2`, id, tenantID)
	snap, err := scanSnapshot(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Snapshot{}, apperr.NotFound("snapshot")
		}
		return Snapshot{}, fmt.Errorf("reading snapshot: %w", err)
	}
	return snap, nil
}

// GetEvidenceView satisfies evidence.SnapshotReader for the GET
// /evidence/{snapshot_id} handler, without that package importing this one.
func (s *Store) GetEvidenceView(ctx context.Context, tenantID, id uuid.UUID) (evidence.View, error) {
	snap, err := s.GetSnapshot(ctx, tenantID, id)
	if err != nil {
		return evidence.View{}, err
	}
	return evidence.View{ID: snap.ID, EvidenceHash: snap.EvidenceHash, EvidencePayload: snap.EvidencePayload}, nil
}
