package domain

import (
	"sort"
	"strings"
	"time"
)

// ConflictType classifies how two or more platform records collide.
type ConflictType string

const (
	// ConflictDuplicate means the records describe the same real-world session.
	ConflictDuplicate ConflictType = "DUPLICATE"
	// ConflictOverlap means distinct sessions whose time windows collide.
	ConflictOverlap ConflictType = "OVERLAP"
)

// ConflictStatus tracks a conflict through its lifecycle. Transitions are
// one-way: UNRESOLVED or REQUIRES_REVIEW may move to RESOLVED, never back.
type ConflictStatus string

const (
	StatusUnresolved     ConflictStatus = "UNRESOLVED"
	StatusRequiresReview ConflictStatus = "REQUIRES_REVIEW"
	StatusResolved       ConflictStatus = "RESOLVED"
)

// Resolution records how a conflict was settled. ResolvedBy is nil for
// automatic resolutions, which distinguishes them from manual ones.
type Resolution struct {
	PrimaryPlatform string
	RetainedSources []string
	Note            string
	ResolvedBy      *string
	ResolvedAt      time.Time
}

// DataConflict is the persisted record of a cross-source collision. It is
// created only by the detector, mutated only through resolution, and never
// deleted, preserving an audit trail.
type DataConflict struct {
	ID                 string
	TenantID           string
	AthleteID          string
	ActivityDate       time.Time
	Type               ConflictType
	Status             ConflictStatus
	ConflictingRecords map[string]NormalizedRecord
	Resolution         *Resolution
	DetectedAt         time.Time
}

// Platforms returns the sorted platform keys implicated in the conflict.
func (c DataConflict) Platforms() []string {
	out := make([]string, 0, len(c.ConflictingRecords))
	for platform := range c.ConflictingRecords {
		out = append(out, platform)
	}
	sort.Strings(out)
	return out
}

// HasPlatform reports whether the platform contributed a record to the conflict.
func (c DataConflict) HasPlatform(platform string) bool {
	_, ok := c.ConflictingRecords[platform]
	return ok
}

// Resolved reports whether the conflict reached its terminal status.
func (c DataConflict) Resolved() bool {
	return c.Status == StatusResolved
}

// DedupeKey derives a stable identity for the conflict from its member
// records, so re-running detection over the same inputs upserts rather than
// piling up rows.
func (c DataConflict) DedupeKey() string {
	keys := make([]string, 0, len(c.ConflictingRecords))
	for _, rec := range c.ConflictingRecords {
		keys = append(keys, rec.Key())
	}
	sort.Strings(keys)
	return strings.Join([]string{
		c.TenantID,
		c.AthleteID,
		c.ActivityDate.Format("2006-01-02"),
		string(c.Type),
		strings.Join(keys, ","),
	}, "|")
}
