// Package domain implements the multi-source reconciliation engine: conflict
// detection, precedence-based resolution, and the conflict lifecycle.
package domain

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"time"
)

var (
	// ErrAlreadyResolved is returned when a resolution targets a conflict that
	// already reached RESOLVED. Resolution is one-way.
	ErrAlreadyResolved = errors.New("conflict already resolved")
	// ErrUnknownConflict is returned when a conflict id cannot be located.
	ErrUnknownConflict = errors.New("conflict not found")
	// ErrRuleNotFound is returned when an athlete has no precedence rule.
	ErrRuleNotFound = errors.New("no precedence rule for athlete")
)

// Cursor models the pagination token for conflict listings.
type Cursor struct {
	DetectedAt time.Time
	ID         string
}

// ConflictRepository captures persistence operations for conflicts. Create
// must be idempotent on the conflict's dedupe key and return the conflict as
// persisted: the input on a fresh insert, the previously stored row on a
// dedupe collision. MarkResolved must apply the status transition
// conditionally (compare-and-swap on the current persisted status),
// returning ErrAlreadyResolved when it loses the race.
type ConflictRepository interface {
	Create(ctx context.Context, conflict DataConflict) (*DataConflict, error)
	Get(ctx context.Context, tenantID, conflictID string) (*DataConflict, error)
	MarkResolved(ctx context.Context, tenantID, conflictID string, res Resolution) error
	ListByAthlete(ctx context.Context, tenantID, athleteID string, cursor *Cursor, limit int) ([]DataConflict, *Cursor, error)
	FindUnresolved(ctx context.Context, tenantID, athleteID string) ([]DataConflict, error)
	FindRequiringReview(ctx context.Context, tenantID string) ([]DataConflict, error)
}

// PrecedenceRuleRepository stores per-athlete precedence rules. Save replaces
// any existing rule for the athlete.
type PrecedenceRuleRepository interface {
	Save(ctx context.Context, rule PrecedenceRule) error
	FindByAthlete(ctx context.Context, tenantID, athleteID string) (*PrecedenceRule, error)
}

// RecordStore persists normalized platform records so reconciliation can be
// re-run for a date without re-fetching from the adapters.
type RecordStore interface {
	Save(ctx context.Context, tenantID string, record NormalizedRecord) error
	FindByDate(ctx context.Context, tenantID, athleteID string, date time.Time) ([]NormalizedRecord, error)
}

// ReconciliationResult summarises one orchestrator run. It is produced fresh
// per run and not persisted; only its conflicts are.
type ReconciliationResult struct {
	AthleteID         string
	ConflictsDetected int
	AutoResolved      int
	RequiresReview    int
	SkippedRecords    int
	Conflicts         []DataConflict
}

// Service orchestrates the reconciliation pipeline and owns the only entry
// points other layers may call; nothing else bypasses the status-transition
// guard.
type Service struct {
	conflicts ConflictRepository
	rules     PrecedenceRuleRepository
	records   RecordStore
	detector  *Detector
	resolver  *Resolver
}

// NewService constructs a Service with the given classification thresholds.
func NewService(conflicts ConflictRepository, rules PrecedenceRuleRepository, records RecordStore, thresholds Thresholds) *Service {
	return &Service{
		conflicts: conflicts,
		rules:     rules,
		records:   records,
		detector:  NewDetector(thresholds),
		resolver:  NewResolver(),
	}
}

// Run executes the full pipeline for one athlete over a batch of raw
// records: normalize, detect, resolve, persist. A malformed record is skipped
// and counted, never fatal to the batch.
func (s *Service) Run(ctx context.Context, tenantID, athleteID string, raws []RawRecord) (*ReconciliationResult, error) {
	result := &ReconciliationResult{AthleteID: athleteID}

	normalized := make([]NormalizedRecord, 0, len(raws))
	for _, raw := range raws {
		rec, err := Normalize(raw.Platform, raw)
		if err != nil {
			result.SkippedRecords++
			log.Printf("reconciliation: skipping record (athlete=%s, platform=%s): %v", athleteID, raw.Platform, err)
			continue
		}
		if rec.AthleteID != athleteID {
			result.SkippedRecords++
			log.Printf("reconciliation: skipping record for foreign athlete %s (expected %s)", rec.AthleteID, athleteID)
			continue
		}
		normalized = append(normalized, rec)
	}

	if err := s.reconcile(ctx, tenantID, athleteID, normalized, result); err != nil {
		return nil, err
	}
	return result, nil
}

// ReconcileDate re-runs the pipeline over the stored records for one
// athlete/date, as triggered by the ingestion consumer.
func (s *Service) ReconcileDate(ctx context.Context, tenantID, athleteID string, date time.Time) (*ReconciliationResult, error) {
	records, err := s.records.FindByDate(ctx, tenantID, athleteID, DateOf(date))
	if err != nil {
		return nil, fmt.Errorf("load records: %w", err)
	}
	result := &ReconciliationResult{AthleteID: athleteID}
	if err := s.reconcile(ctx, tenantID, athleteID, records, result); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Service) reconcile(ctx context.Context, tenantID, athleteID string, records []NormalizedRecord, result *ReconciliationResult) error {
	if len(records) < 2 {
		return nil
	}

	rule, err := s.rules.FindByAthlete(ctx, tenantID, athleteID)
	if err != nil {
		return fmt.Errorf("load precedence rule: %w", err)
	}

	for _, date := range distinctDates(records) {
		for _, conflict := range s.detector.DetectConflicts(tenantID, athleteID, date, records) {
			resolved := s.resolver.Resolve(conflict, rule)
			stored, err := s.conflicts.Create(ctx, resolved)
			if err != nil {
				return fmt.Errorf("persist conflict: %w", err)
			}

			// On a replay Create hands back the previously stored conflict.
			// If a precedence rule arrived since the first detection, the
			// stored row may still await review while the resolver now has
			// an answer; apply it through the guarded transition.
			resolvedNow := stored.ID == resolved.ID && stored.Resolved()
			if !stored.Resolved() && resolved.Resolved() && resolved.Resolution != nil {
				switch err := s.conflicts.MarkResolved(ctx, tenantID, stored.ID, *resolved.Resolution); {
				case err == nil:
					stored.Status = StatusResolved
					stored.Resolution = resolved.Resolution
					resolvedNow = true
				case errors.Is(err, ErrAlreadyResolved):
					// A concurrent resolver won; report what it persisted.
					current, getErr := s.conflicts.Get(ctx, tenantID, stored.ID)
					if getErr != nil {
						return fmt.Errorf("reload conflict: %w", getErr)
					}
					if current != nil {
						stored = current
					}
				default:
					return fmt.Errorf("resolve conflict: %w", err)
				}
			}

			result.ConflictsDetected++
			switch {
			case resolvedNow:
				result.AutoResolved++
			case stored.Status == StatusRequiresReview:
				result.RequiresReview++
			}
			result.Conflicts = append(result.Conflicts, *stored)
		}
	}
	return nil
}

func distinctDates(records []NormalizedRecord) []time.Time {
	seen := make(map[time.Time]struct{})
	dates := make([]time.Time, 0, 1)
	for _, rec := range records {
		if _, ok := seen[rec.Date]; !ok {
			seen[rec.Date] = struct{}{}
			dates = append(dates, rec.Date)
		}
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
	return dates
}

// IngestRecord normalizes and stores one raw platform record. Malformed
// payloads surface ErrMalformedRecord for the caller to count.
func (s *Service) IngestRecord(ctx context.Context, tenantID string, raw RawRecord) (NormalizedRecord, error) {
	rec, err := Normalize(raw.Platform, raw)
	if err != nil {
		return NormalizedRecord{}, err
	}
	if err := s.records.Save(ctx, tenantID, rec); err != nil {
		return NormalizedRecord{}, fmt.Errorf("store record: %w", err)
	}
	return rec, nil
}

// Conflict fetches a single conflict by id.
func (s *Service) Conflict(ctx context.Context, tenantID, conflictID string) (*DataConflict, error) {
	conflict, err := s.conflicts.Get(ctx, tenantID, conflictID)
	if err != nil {
		return nil, err
	}
	if conflict == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownConflict, conflictID)
	}
	return conflict, nil
}

// ResolveConflict applies a manual resolution. It bypasses precedence lookup
// but not the one-way transition: a conflict already RESOLVED rejects the
// call with ErrAlreadyResolved and the first resolution stands.
func (s *Service) ResolveConflict(ctx context.Context, tenantID, conflictID, primaryPlatform string, retainedSources []string, note, resolvedBy string) (*DataConflict, error) {
	conflict, err := s.conflicts.Get(ctx, tenantID, conflictID)
	if err != nil {
		return nil, err
	}
	if conflict == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownConflict, conflictID)
	}
	if conflict.Resolved() {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyResolved, conflictID)
	}

	if !conflict.HasPlatform(primaryPlatform) {
		return nil, fmt.Errorf("platform %q is not part of conflict %s", primaryPlatform, conflictID)
	}
	if len(retainedSources) == 0 {
		retainedSources = []string{primaryPlatform}
	}
	for _, platform := range retainedSources {
		if !conflict.HasPlatform(platform) {
			return nil, fmt.Errorf("retained platform %q is not part of conflict %s", platform, conflictID)
		}
	}

	resolution := Resolution{
		PrimaryPlatform: primaryPlatform,
		RetainedSources: retainedSources,
		Note:            note,
		ResolvedBy:      &resolvedBy,
		ResolvedAt:      time.Now().UTC(),
	}

	// The repository re-checks the persisted status; a second resolver that
	// lost the race gets ErrAlreadyResolved here.
	if err := s.conflicts.MarkResolved(ctx, tenantID, conflictID, resolution); err != nil {
		return nil, err
	}

	conflict.Status = StatusResolved
	conflict.Resolution = &resolution
	return conflict, nil
}

// SetPrecedenceRule validates and stores the athlete's rule, replacing any
// previous one.
func (s *Service) SetPrecedenceRule(ctx context.Context, tenantID, athleteID, ruleName string, precedence map[string]int) (*PrecedenceRule, error) {
	rule, err := NewPrecedenceRule(tenantID, athleteID, ruleName, precedence, time.Now())
	if err != nil {
		return nil, err
	}
	if err := s.rules.Save(ctx, rule); err != nil {
		return nil, fmt.Errorf("store precedence rule: %w", err)
	}
	return &rule, nil
}

// GetPrecedenceRule fetches the athlete's active rule.
func (s *Service) GetPrecedenceRule(ctx context.Context, tenantID, athleteID string) (*PrecedenceRule, error) {
	rule, err := s.rules.FindByAthlete(ctx, tenantID, athleteID)
	if err != nil {
		return nil, err
	}
	if rule == nil {
		return nil, fmt.Errorf("%w: %s", ErrRuleNotFound, athleteID)
	}
	return rule, nil
}

// UnresolvedConflicts lists the athlete's conflicts that have not reached
// RESOLVED.
func (s *Service) UnresolvedConflicts(ctx context.Context, tenantID, athleteID string) ([]DataConflict, error) {
	return s.conflicts.FindUnresolved(ctx, tenantID, athleteID)
}

// ConflictsRequiringReview lists conflicts awaiting manual review across all
// of the tenant's athletes.
func (s *Service) ConflictsRequiringReview(ctx context.Context, tenantID string) ([]DataConflict, error) {
	return s.conflicts.FindRequiringReview(ctx, tenantID)
}

// ListConflicts pages through an athlete's conflict history, newest first.
func (s *Service) ListConflicts(ctx context.Context, tenantID, athleteID string, cursor *Cursor, limit int) ([]DataConflict, *Cursor, error) {
	return s.conflicts.ListByAthlete(ctx, tenantID, athleteID, cursor, limit)
}
