// Package postgres provides Postgres-backed persistence for conflicts,
// precedence rules, platform records, and outbox events.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/reconciliation/internal/domain"
	"example.com/reconciliation/internal/events"
)

// Repository implements the domain repositories on top of a pgx pool. All
// statements run with the tenant set via set_config so row-level security
// applies.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// storedRecord is the JSONB shape of a normalized record inside a conflict row.
type storedRecord struct {
	Platform       string     `json:"platform"`
	ExternalID     string     `json:"external_id"`
	AthleteID      string     `json:"athlete_id"`
	Date           time.Time  `json:"date"`
	StartTime      time.Time  `json:"start_time"`
	EndTime        time.Time  `json:"end_time"`
	DurationSec    int        `json:"duration_sec"`
	DistanceMeters *float64   `json:"distance_m,omitempty"`
	AvgPower       *float64   `json:"avg_power,omitempty"`
	AvgHeartRate   *float64   `json:"avg_heart_rate,omitempty"`
}

// storedResolution is the JSONB shape of a resolution.
type storedResolution struct {
	PrimaryPlatform string    `json:"primary_platform"`
	RetainedSources []string  `json:"retained_sources"`
	Note            string    `json:"note"`
	ResolvedBy      *string   `json:"resolved_by,omitempty"`
	ResolvedAt      time.Time `json:"resolved_at"`
}

func toStoredRecords(records map[string]domain.NormalizedRecord) map[string]storedRecord {
	out := make(map[string]storedRecord, len(records))
	for platform, rec := range records {
		out[platform] = storedRecord{
			Platform:       rec.Platform,
			ExternalID:     rec.ExternalID,
			AthleteID:      rec.AthleteID,
			Date:           rec.Date,
			StartTime:      rec.StartTime,
			EndTime:        rec.EndTime,
			DurationSec:    rec.DurationSec,
			DistanceMeters: rec.DistanceMeters,
			AvgPower:       rec.AvgPower,
			AvgHeartRate:   rec.AvgHeartRate,
		}
	}
	return out
}

func fromStoredRecords(records map[string]storedRecord) map[string]domain.NormalizedRecord {
	out := make(map[string]domain.NormalizedRecord, len(records))
	for platform, rec := range records {
		out[platform] = domain.NormalizedRecord{
			Platform:       rec.Platform,
			ExternalID:     rec.ExternalID,
			AthleteID:      rec.AthleteID,
			Date:           rec.Date,
			StartTime:      rec.StartTime,
			EndTime:        rec.EndTime,
			DurationSec:    rec.DurationSec,
			DistanceMeters: rec.DistanceMeters,
			AvgPower:       rec.AvgPower,
			AvgHeartRate:   rec.AvgHeartRate,
		}
	}
	return out
}

// Create persists the conflict and its outbox events inside one transaction
// and returns the row as stored. The dedupe key makes replays idempotent: a
// second detection run over the same records inserts nothing and emits
// nothing, and the previously stored conflict comes back instead of the
// caller's fresh one.
func (r *Repository) Create(ctx context.Context, conflict domain.DataConflict) (*domain.DataConflict, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "SELECT set_config('app.tenant_id', $1, true)", conflict.TenantID); err != nil {
		return nil, err
	}

	recordsJSON, err := json.Marshal(toStoredRecords(conflict.ConflictingRecords))
	if err != nil {
		return nil, err
	}

	var resolutionJSON []byte
	if conflict.Resolution != nil {
		resolutionJSON, err = json.Marshal(storedResolution{
			PrimaryPlatform: conflict.Resolution.PrimaryPlatform,
			RetainedSources: conflict.Resolution.RetainedSources,
			Note:            conflict.Resolution.Note,
			ResolvedBy:      conflict.Resolution.ResolvedBy,
			ResolvedAt:      conflict.Resolution.ResolvedAt,
		})
		if err != nil {
			return nil, err
		}
	}

	const insertConflict = `INSERT INTO data_conflicts (conflict_id, tenant_id, athlete_id, activity_date, conflict_type, status, conflicting_records, resolution, dedupe_key, detected_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
        ON CONFLICT (tenant_id, dedupe_key) DO NOTHING`

	tag, err := tx.Exec(ctx, insertConflict,
		conflict.ID,
		conflict.TenantID,
		conflict.AthleteID,
		conflict.ActivityDate,
		string(conflict.Type),
		string(conflict.Status),
		recordsJSON,
		resolutionJSON,
		conflict.DedupeKey(),
		conflict.DetectedAt,
	)
	if err != nil {
		return nil, err
	}

	if tag.RowsAffected() == 0 {
		// Replay of a previously recorded conflict; hand back the stored row.
		const selectByDedupe = `SELECT conflict_id, tenant_id, athlete_id, activity_date, conflict_type, status, conflicting_records, resolution, detected_at
            FROM data_conflicts WHERE tenant_id=$1 AND dedupe_key=$2`
		existing, err := scanConflict(tx.QueryRow(ctx, selectByDedupe, conflict.TenantID, conflict.DedupeKey()))
		if err != nil {
			return nil, err
		}
		if err := tx.Commit(ctx); err != nil {
			return nil, err
		}
		return existing, nil
	}

	if err := insertOutbox(ctx, tx, conflict.TenantID, conflict.ID, "conflict.detected", conflictPartitionKey(conflict), events.ConflictDetected{
		ConflictID:   conflict.ID,
		TenantID:     conflict.TenantID,
		AthleteID:    conflict.AthleteID,
		ActivityDate: conflict.ActivityDate,
		ConflictType: string(conflict.Type),
		Status:       string(conflict.Status),
		Platforms:    conflict.Platforms(),
		DetectedAt:   conflict.DetectedAt,
	}); err != nil {
		return nil, err
	}

	if conflict.Resolved() && conflict.Resolution != nil {
		if err := insertOutbox(ctx, tx, conflict.TenantID, conflict.ID, "conflict.resolved", conflictPartitionKey(conflict), resolvedEvent(conflict, *conflict.Resolution)); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return &conflict, nil
}

// Get retrieves a conflict by id. A missing row returns (nil, nil).
func (r *Repository) Get(ctx context.Context, tenantID, conflictID string) (*domain.DataConflict, error) {
	const query = `SELECT conflict_id, tenant_id, athlete_id, activity_date, conflict_type, status, conflicting_records, resolution, detected_at
        FROM data_conflicts WHERE tenant_id=$1 AND conflict_id=$2`

	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Release()

	tx, err := conn.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "SELECT set_config('app.tenant_id', $1, true)", tenantID); err != nil {
		return nil, err
	}

	conflict, err := scanConflict(tx.QueryRow(ctx, query, tenantID, conflictID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			if err := tx.Commit(ctx); err != nil {
				return nil, err
			}
			return nil, nil
		}
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return conflict, nil
}

// MarkResolved applies the one-way status transition. The UPDATE is guarded
// on the persisted status, so of two concurrent resolvers exactly one
// succeeds; the loser gets ErrAlreadyResolved.
func (r *Repository) MarkResolved(ctx context.Context, tenantID, conflictID string, res domain.Resolution) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "SELECT set_config('app.tenant_id', $1, true)", tenantID); err != nil {
		return err
	}

	resolutionJSON, err := json.Marshal(storedResolution{
		PrimaryPlatform: res.PrimaryPlatform,
		RetainedSources: res.RetainedSources,
		Note:            res.Note,
		ResolvedBy:      res.ResolvedBy,
		ResolvedAt:      res.ResolvedAt,
	})
	if err != nil {
		return err
	}

	const update = `UPDATE data_conflicts
          SET status=$1, resolution=$2, resolved_at=$3
        WHERE tenant_id=$4 AND conflict_id=$5 AND status IN ('UNRESOLVED','REQUIRES_REVIEW')
        RETURNING athlete_id`

	var athleteID string
	err = tx.QueryRow(ctx, update, string(domain.StatusResolved), resolutionJSON, res.ResolvedAt, tenantID, conflictID).Scan(&athleteID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return r.classifyResolveFailure(ctx, tx, tenantID, conflictID)
		}
		return err
	}

	resolvedBy := ""
	if res.ResolvedBy != nil {
		resolvedBy = *res.ResolvedBy
	}
	if err := insertOutbox(ctx, tx, tenantID, conflictID, "conflict.resolved", tenantID+":"+athleteID, events.ConflictResolved{
		ConflictID:      conflictID,
		TenantID:        tenantID,
		AthleteID:       athleteID,
		PrimaryPlatform: res.PrimaryPlatform,
		RetainedSources: res.RetainedSources,
		ResolvedBy:      resolvedBy,
		Automatic:       res.ResolvedBy == nil,
		ResolvedAt:      res.ResolvedAt,
	}); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// classifyResolveFailure decides which sentinel the caller sees when the
// guarded UPDATE matched nothing.
func (r *Repository) classifyResolveFailure(ctx context.Context, tx pgx.Tx, tenantID, conflictID string) error {
	var exists bool
	if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM data_conflicts WHERE tenant_id=$1 AND conflict_id=$2)`, tenantID, conflictID).Scan(&exists); err != nil {
		return err
	}
	if commitErr := tx.Commit(ctx); commitErr != nil {
		return commitErr
	}
	if exists {
		return fmt.Errorf("%w: %s", domain.ErrAlreadyResolved, conflictID)
	}
	return fmt.Errorf("%w: %s", domain.ErrUnknownConflict, conflictID)
}

// ListByAthlete pages through an athlete's conflicts, newest first.
func (r *Repository) ListByAthlete(ctx context.Context, tenantID, athleteID string, cursor *domain.Cursor, limit int) ([]domain.DataConflict, *domain.Cursor, error) {
	args := []interface{}{tenantID, athleteID, limit}
	query := `SELECT conflict_id, tenant_id, athlete_id, activity_date, conflict_type, status, conflicting_records, resolution, detected_at
        FROM data_conflicts WHERE tenant_id=$1 AND athlete_id=$2`

	if cursor != nil {
		query += ` AND (detected_at, conflict_id) < ($4, $5)`
		args = append(args, cursor.DetectedAt, cursor.ID)
	}

	query += ` ORDER BY detected_at DESC, conflict_id DESC LIMIT $3`

	results, err := r.queryConflicts(ctx, tenantID, query, args...)
	if err != nil {
		return nil, nil, err
	}

	var nextCursor *domain.Cursor
	if len(results) == limit {
		last := results[len(results)-1]
		nextCursor = &domain.Cursor{DetectedAt: last.DetectedAt, ID: last.ID}
	}
	return results, nextCursor, nil
}

// FindUnresolved returns the athlete's conflicts that have not reached
// RESOLVED, which includes those awaiting review.
func (r *Repository) FindUnresolved(ctx context.Context, tenantID, athleteID string) ([]domain.DataConflict, error) {
	const query = `SELECT conflict_id, tenant_id, athlete_id, activity_date, conflict_type, status, conflicting_records, resolution, detected_at
        FROM data_conflicts
        WHERE tenant_id=$1 AND athlete_id=$2 AND status <> 'RESOLVED'
        ORDER BY detected_at DESC, conflict_id DESC`
	return r.queryConflicts(ctx, tenantID, query, tenantID, athleteID)
}

// FindRequiringReview returns the tenant's conflicts waiting on a human.
func (r *Repository) FindRequiringReview(ctx context.Context, tenantID string) ([]domain.DataConflict, error) {
	const query = `SELECT conflict_id, tenant_id, athlete_id, activity_date, conflict_type, status, conflicting_records, resolution, detected_at
        FROM data_conflicts
        WHERE tenant_id=$1 AND status = 'REQUIRES_REVIEW'
        ORDER BY detected_at DESC, conflict_id DESC`
	return r.queryConflicts(ctx, tenantID, query, tenantID)
}

func (r *Repository) queryConflicts(ctx context.Context, tenantID, query string, args ...interface{}) ([]domain.DataConflict, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Release()

	tx, err := conn.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "SELECT set_config('app.tenant_id', $1, true)", tenantID); err != nil {
		return nil, err
	}

	rows, err := tx.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := make([]domain.DataConflict, 0)
	for rows.Next() {
		conflict, err := scanConflict(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, *conflict)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return results, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConflict(row rowScanner) (*domain.DataConflict, error) {
	var (
		conflict       domain.DataConflict
		conflictType   string
		status         string
		recordsJSON    []byte
		resolutionJSON []byte
	)
	if err := row.Scan(&conflict.ID, &conflict.TenantID, &conflict.AthleteID, &conflict.ActivityDate, &conflictType, &status, &recordsJSON, &resolutionJSON, &conflict.DetectedAt); err != nil {
		return nil, err
	}
	conflict.Type = domain.ConflictType(conflictType)
	conflict.Status = domain.ConflictStatus(status)

	var stored map[string]storedRecord
	if err := json.Unmarshal(recordsJSON, &stored); err != nil {
		return nil, fmt.Errorf("decode conflicting_records: %w", err)
	}
	conflict.ConflictingRecords = fromStoredRecords(stored)

	if len(resolutionJSON) > 0 {
		var res storedResolution
		if err := json.Unmarshal(resolutionJSON, &res); err != nil {
			return nil, fmt.Errorf("decode resolution: %w", err)
		}
		conflict.Resolution = &domain.Resolution{
			PrimaryPlatform: res.PrimaryPlatform,
			RetainedSources: res.RetainedSources,
			Note:            res.Note,
			ResolvedBy:      res.ResolvedBy,
			ResolvedAt:      res.ResolvedAt,
		}
	}
	return &conflict, nil
}

// Save upserts the athlete's rule and records a rule_set outbox event.
func (r *Repository) Save(ctx context.Context, rule domain.PrecedenceRule) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "SELECT set_config('app.tenant_id', $1, true)", rule.TenantID); err != nil {
		return err
	}

	precedenceJSON, err := json.Marshal(rule.PlatformPrecedence)
	if err != nil {
		return err
	}

	const upsert = `INSERT INTO precedence_rules (rule_id, tenant_id, athlete_id, rule_name, platform_precedence, created_at)
        VALUES ($1,$2,$3,$4,$5,$6)
        ON CONFLICT (tenant_id, athlete_id) DO UPDATE
          SET rule_id=EXCLUDED.rule_id,
              rule_name=EXCLUDED.rule_name,
              platform_precedence=EXCLUDED.platform_precedence,
              created_at=EXCLUDED.created_at`

	if _, err := tx.Exec(ctx, upsert, rule.ID, rule.TenantID, rule.AthleteID, rule.RuleName, precedenceJSON, rule.CreatedAt); err != nil {
		return err
	}

	if err := insertOutbox(ctx, tx, rule.TenantID, rule.ID, "reconciliation.rule_set", rule.TenantID+":"+rule.AthleteID, events.PrecedenceRuleSet{
		RuleID:     rule.ID,
		TenantID:   rule.TenantID,
		AthleteID:  rule.AthleteID,
		RuleName:   rule.RuleName,
		Precedence: rule.PlatformPrecedence,
		CreatedAt:  rule.CreatedAt,
	}); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// FindByAthlete loads the athlete's active rule. A missing rule returns
// (nil, nil).
func (r *Repository) FindByAthlete(ctx context.Context, tenantID, athleteID string) (*domain.PrecedenceRule, error) {
	const query = `SELECT rule_id, tenant_id, athlete_id, rule_name, platform_precedence, created_at
        FROM precedence_rules WHERE tenant_id=$1 AND athlete_id=$2`

	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Release()

	tx, err := conn.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "SELECT set_config('app.tenant_id', $1, true)", tenantID); err != nil {
		return nil, err
	}

	var (
		rule           domain.PrecedenceRule
		precedenceJSON []byte
	)
	err = tx.QueryRow(ctx, query, tenantID, athleteID).Scan(&rule.ID, &rule.TenantID, &rule.AthleteID, &rule.RuleName, &precedenceJSON, &rule.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			if err := tx.Commit(ctx); err != nil {
				return nil, err
			}
			return nil, nil
		}
		return nil, err
	}
	if err := json.Unmarshal(precedenceJSON, &rule.PlatformPrecedence); err != nil {
		return nil, fmt.Errorf("decode platform_precedence: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return &rule, nil
}

// SaveRecord upserts one normalized platform record. Re-syncs from the same
// platform replace the previous payload for that external id.
func (r *Repository) SaveRecord(ctx context.Context, tenantID string, record domain.NormalizedRecord) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "SELECT set_config('app.tenant_id', $1, true)", tenantID); err != nil {
		return err
	}

	const upsert = `INSERT INTO platform_records (tenant_id, platform, external_id, athlete_id, activity_date, start_time, end_time, duration_sec, distance_m, avg_power, avg_heart_rate)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
        ON CONFLICT (tenant_id, platform, external_id) DO UPDATE
          SET athlete_id=EXCLUDED.athlete_id,
              activity_date=EXCLUDED.activity_date,
              start_time=EXCLUDED.start_time,
              end_time=EXCLUDED.end_time,
              duration_sec=EXCLUDED.duration_sec,
              distance_m=EXCLUDED.distance_m,
              avg_power=EXCLUDED.avg_power,
              avg_heart_rate=EXCLUDED.avg_heart_rate,
              updated_at=NOW()`

	if _, err = tx.Exec(ctx, upsert,
		tenantID,
		record.Platform,
		record.ExternalID,
		record.AthleteID,
		record.Date,
		record.StartTime,
		record.EndTime,
		record.DurationSec,
		record.DistanceMeters,
		record.AvgPower,
		record.AvgHeartRate,
	); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// FindRecordsByDate loads the athlete's stored records for one calendar date.
func (r *Repository) FindRecordsByDate(ctx context.Context, tenantID, athleteID string, date time.Time) ([]domain.NormalizedRecord, error) {
	const query = `SELECT platform, external_id, athlete_id, activity_date, start_time, end_time, duration_sec, distance_m, avg_power, avg_heart_rate
        FROM platform_records
        WHERE tenant_id=$1 AND athlete_id=$2 AND activity_date=$3
        ORDER BY start_time, platform, external_id`

	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Release()

	tx, err := conn.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "SELECT set_config('app.tenant_id', $1, true)", tenantID); err != nil {
		return nil, err
	}

	rows, err := tx.Query(ctx, query, tenantID, athleteID, date)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := make([]domain.NormalizedRecord, 0)
	for rows.Next() {
		var rec domain.NormalizedRecord
		if err := rows.Scan(&rec.Platform, &rec.ExternalID, &rec.AthleteID, &rec.Date, &rec.StartTime, &rec.EndTime, &rec.DurationSec, &rec.DistanceMeters, &rec.AvgPower, &rec.AvgHeartRate); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return records, nil
}

// RecordRepository adapts Repository to the record-store interface, whose
// Save signature differs from the rule repository's.
type RecordRepository struct {
	repo *Repository
}

// NewRecordRepository wraps an existing Repository.
func NewRecordRepository(repo *Repository) *RecordRepository {
	return &RecordRepository{repo: repo}
}

// Save upserts one normalized platform record.
func (r *RecordRepository) Save(ctx context.Context, tenantID string, record domain.NormalizedRecord) error {
	return r.repo.SaveRecord(ctx, tenantID, record)
}

// FindByDate loads the athlete's stored records for one calendar date.
func (r *RecordRepository) FindByDate(ctx context.Context, tenantID, athleteID string, date time.Time) ([]domain.NormalizedRecord, error) {
	return r.repo.FindRecordsByDate(ctx, tenantID, athleteID, date)
}

func conflictPartitionKey(conflict domain.DataConflict) string {
	return conflict.TenantID + ":" + conflict.AthleteID
}

func resolvedEvent(conflict domain.DataConflict, res domain.Resolution) events.ConflictResolved {
	resolvedBy := ""
	if res.ResolvedBy != nil {
		resolvedBy = *res.ResolvedBy
	}
	return events.ConflictResolved{
		ConflictID:      conflict.ID,
		TenantID:        conflict.TenantID,
		AthleteID:       conflict.AthleteID,
		PrimaryPlatform: res.PrimaryPlatform,
		RetainedSources: res.RetainedSources,
		ResolvedBy:      resolvedBy,
		Automatic:       res.ResolvedBy == nil,
		ResolvedAt:      res.ResolvedAt,
	}
}

func insertOutbox(ctx context.Context, tx pgx.Tx, tenantID, aggregateID, eventType, partitionKey string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	meta := eventCatalog[eventType]
	if meta.Topic == "" {
		return fmt.Errorf("unknown event type: %s", eventType)
	}

	dedupeKey := fmt.Sprintf("%s:%s", aggregateID, eventType)

	const stmt = `INSERT INTO outbox (tenant_id, aggregate_type, aggregate_id, event_type, topic, schema_subject, partition_key, payload, dedupe_key)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
        ON CONFLICT (dedupe_key) DO NOTHING`

	_, err = tx.Exec(ctx, stmt,
		tenantID,
		meta.AggregateType,
		aggregateID,
		eventType,
		meta.Topic,
		meta.SchemaSubject,
		partitionKey,
		body,
		dedupeKey,
	)
	return err
}

// EventMetadata describes how to route an outbox event.
type EventMetadata struct {
	Topic         string
	SchemaSubject string
	AggregateType string
}

var eventCatalog = map[string]EventMetadata{
	"conflict.detected": {
		Topic:         "reconciliation_conflicts",
		SchemaSubject: "reconciliation_conflicts-value",
		AggregateType: "conflict",
	},
	"conflict.resolved": {
		Topic:         "conflict_resolutions",
		SchemaSubject: "conflict_resolutions-value",
		AggregateType: "conflict",
	},
	"reconciliation.rule_set": {
		Topic:         "precedence_rule_events",
		SchemaSubject: "precedence_rule_events-value",
		AggregateType: "precedence_rule",
	},
}
