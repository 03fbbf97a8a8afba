package domain

import (
	"sort"
	"time"

	"github.com/google/uuid"
)

// Thresholds tunes the duplicate-vs-overlap classification. The defaults are
// a reasonable starting point, not invariants; they are overridable via
// configuration.
type Thresholds struct {
	// DuplicateOverlapRatio is the minimum time-window overlap, as a fraction
	// of the shorter record, for two records to be duplicate candidates.
	DuplicateOverlapRatio float64
	// DuplicateDeltaRatio is the maximum relative difference in duration (and
	// distance, when both records carry one) duplicates may exhibit.
	DuplicateDeltaRatio float64
}

// DefaultThresholds returns the stock classification tuning.
func DefaultThresholds() Thresholds {
	return Thresholds{
		DuplicateOverlapRatio: 0.8,
		DuplicateDeltaRatio:   0.1,
	}
}

// Detector classifies pairwise collisions between normalized records and
// merges them into conflicts.
type Detector struct {
	thresholds Thresholds
	now        func() time.Time
	newID      func() string
}

// NewDetector constructs a Detector. Zero-valued thresholds fall back to the
// defaults.
func NewDetector(thresholds Thresholds) *Detector {
	if thresholds.DuplicateOverlapRatio <= 0 {
		thresholds.DuplicateOverlapRatio = DefaultThresholds().DuplicateOverlapRatio
	}
	if thresholds.DuplicateDeltaRatio <= 0 {
		thresholds.DuplicateDeltaRatio = DefaultThresholds().DuplicateDeltaRatio
	}
	return &Detector{
		thresholds: thresholds,
		now:        func() time.Time { return time.Now().UTC() },
		newID:      uuid.NewString,
	}
}

type pairClass int

const (
	pairNone pairClass = iota
	pairDuplicate
	pairOverlap
)

// DetectConflicts compares the athlete's records for one calendar date across
// sources and returns the merged conflicts, all in status UNRESOLVED.
// Conflicts sharing a record are folded together transitively, so a set of
// mutually colliding records yields exactly one conflict.
func (d *Detector) DetectConflicts(tenantID, athleteID string, date time.Time, records []NormalizedRecord) []DataConflict {
	date = DateOf(date)

	// Deterministic input order makes groupings reproducible across runs.
	candidates := make([]NormalizedRecord, 0, len(records))
	for _, rec := range records {
		if rec.AthleteID == athleteID && rec.Date.Equal(date) {
			candidates = append(candidates, rec)
		}
	}
	sort.Slice(candidates, func(i, j int) bool {
		if !candidates[i].StartTime.Equal(candidates[j].StartTime) {
			return candidates[i].StartTime.Before(candidates[j].StartTime)
		}
		return candidates[i].Key() < candidates[j].Key()
	})

	if len(candidates) < 2 {
		return nil
	}

	parent := make([]int, len(candidates))
	for i := range parent {
		parent[i] = i
	}
	var find func(int) int
	find = func(i int) int {
		if parent[i] != i {
			parent[i] = find(parent[i])
		}
		return parent[i]
	}
	union := func(i, j int) {
		ri, rj := find(i), find(j)
		if ri != rj {
			parent[rj] = ri
		}
	}

	overlapEdge := make([]bool, len(candidates))
	edges := 0
	for i := 0; i < len(candidates); i++ {
		for j := i + 1; j < len(candidates); j++ {
			a, b := candidates[i], candidates[j]
			if a.Platform == b.Platform {
				// Same-platform collisions are a data-quality issue for the
				// source adapter, not a cross-source conflict.
				continue
			}
			switch d.classify(a, b) {
			case pairDuplicate:
				union(i, j)
				edges++
			case pairOverlap:
				union(i, j)
				overlapEdge[find(i)] = true
				edges++
			}
		}
	}
	if edges == 0 {
		return nil
	}

	// overlapEdge was marked on whatever the root was at union time; fold the
	// marks up to the final roots.
	finalOverlap := make(map[int]bool)
	for i := range candidates {
		if overlapEdge[i] {
			finalOverlap[find(i)] = true
		}
	}

	groups := make(map[int][]NormalizedRecord)
	for i, rec := range candidates {
		root := find(i)
		groups[root] = append(groups[root], rec)
	}

	roots := make([]int, 0, len(groups))
	for root, members := range groups {
		if len(members) >= 2 {
			roots = append(roots, root)
		}
	}
	sort.Ints(roots)

	conflicts := make([]DataConflict, 0, len(roots))
	for _, root := range roots {
		members := groups[root]

		// One representative record per platform: the earliest-starting one.
		// Input order guarantees members are already sorted by start time.
		byPlatform := make(map[string]NormalizedRecord, len(members))
		for _, rec := range members {
			if _, seen := byPlatform[rec.Platform]; !seen {
				byPlatform[rec.Platform] = rec
			}
		}
		if len(byPlatform) < 2 {
			continue
		}

		conflictType := ConflictDuplicate
		if finalOverlap[root] {
			// Any non-duplicate edge demotes the whole group to the weaker claim.
			conflictType = ConflictOverlap
		}

		conflicts = append(conflicts, DataConflict{
			ID:                 d.newID(),
			TenantID:           tenantID,
			AthleteID:          athleteID,
			ActivityDate:       date,
			Type:               conflictType,
			Status:             StatusUnresolved,
			ConflictingRecords: byPlatform,
			DetectedAt:         d.now(),
		})
	}
	return conflicts
}

func (d *Detector) classify(a, b NormalizedRecord) pairClass {
	overlap := windowOverlap(a, b)
	if overlap <= 0 {
		return pairNone
	}

	shorter := float64(min(a.DurationSec, b.DurationSec))
	longer := float64(max(a.DurationSec, b.DurationSec))
	overlapRatio := overlap / shorter
	durationDelta := (longer - shorter) / longer

	isDuplicate := overlapRatio >= d.thresholds.DuplicateOverlapRatio &&
		durationDelta <= d.thresholds.DuplicateDeltaRatio

	if isDuplicate && a.DistanceMeters != nil && b.DistanceMeters != nil {
		da, db := *a.DistanceMeters, *b.DistanceMeters
		if maxDist := max(da, db); maxDist > 0 {
			distanceDelta := (maxDist - min(da, db)) / maxDist
			if distanceDelta > d.thresholds.DuplicateDeltaRatio {
				isDuplicate = false
			}
		}
	}

	if isDuplicate {
		return pairDuplicate
	}
	return pairOverlap
}

// windowOverlap returns the shared seconds between two record time windows.
func windowOverlap(a, b NormalizedRecord) float64 {
	start := a.StartTime
	if b.StartTime.After(start) {
		start = b.StartTime
	}
	end := a.EndTime
	if b.EndTime.Before(end) {
		end = b.EndTime
	}
	if !end.After(start) {
		return 0
	}
	return end.Sub(start).Seconds()
}
