// Package events defines the cross-service event payloads emitted through
// the outbox.
package events

import "time"

// ConflictDetected is emitted when reconciliation records a new cross-source
// conflict.
type ConflictDetected struct {
	ConflictID   string    `json:"conflict_id"`
	TenantID     string    `json:"tenant_id"`
	AthleteID    string    `json:"athlete_id"`
	ActivityDate time.Time `json:"activity_date"`
	ConflictType string    `json:"conflict_type"`
	Status       string    `json:"status"`
	Platforms    []string  `json:"platforms"`
	DetectedAt   time.Time `json:"detected_at"`
}

// ConflictResolved is emitted when a conflict reaches its terminal status,
// whether automatically or by a human.
type ConflictResolved struct {
	ConflictID      string    `json:"conflict_id"`
	TenantID        string    `json:"tenant_id"`
	AthleteID       string    `json:"athlete_id"`
	PrimaryPlatform string    `json:"primary_platform"`
	RetainedSources []string  `json:"retained_sources"`
	ResolvedBy      string    `json:"resolved_by,omitempty"`
	Automatic       bool      `json:"automatic"`
	ResolvedAt      time.Time `json:"resolved_at"`
}

// PrecedenceRuleSet is emitted when an athlete's platform ranking is
// created or replaced.
type PrecedenceRuleSet struct {
	RuleID     string         `json:"rule_id"`
	TenantID   string         `json:"tenant_id"`
	AthleteID  string         `json:"athlete_id"`
	RuleName   string         `json:"rule_name"`
	Precedence map[string]int `json:"platform_precedence"`
	CreatedAt  time.Time      `json:"created_at"`
}
