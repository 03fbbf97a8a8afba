package domain

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Resolver applies a precedence rule to a detected conflict. It never guesses:
// without a rule that covers at least one implicated platform, the conflict
// is routed to manual review.
type Resolver struct {
	now func() time.Time
}

// NewResolver constructs a Resolver.
func NewResolver() *Resolver {
	return &Resolver{now: func() time.Time { return time.Now().UTC() }}
}

// Resolve returns an updated copy of the conflict; the input is not mutated
// and the caller persists the result. Automatic resolutions leave ResolvedBy
// nil to distinguish them from manual ones.
func (r *Resolver) Resolve(conflict DataConflict, rule *PrecedenceRule) DataConflict {
	platforms := conflict.Platforms()

	if rule == nil {
		conflict.Status = StatusRequiresReview
		return conflict
	}
	primary, ok := rule.PrimaryAmong(platforms)
	if !ok {
		conflict.Status = StatusRequiresReview
		return conflict
	}

	var retained []string
	var note string
	switch conflict.Type {
	case ConflictDuplicate:
		retained = []string{primary}
		dropped := make([]string, 0, len(platforms)-1)
		for _, platform := range platforms {
			if platform != primary {
				dropped = append(dropped, platform)
			}
		}
		sort.Strings(dropped)
		note = fmt.Sprintf(
			"Auto-resolved using precedence rule '%s'. Platform '%s' retained as source of truth; dropped %s by precedence rank.",
			rule.RuleName, primary, strings.Join(dropped, ", "),
		)
	case ConflictOverlap:
		// Both sessions are real; keep everything and mark which source owns
		// shared fields for the time slot.
		retained = platforms
		note = fmt.Sprintf(
			"Distinct sessions retained, overlap acknowledged. Platform '%s' is authoritative for shared fields per precedence rule '%s'.",
			primary, rule.RuleName,
		)
	default:
		conflict.Status = StatusRequiresReview
		return conflict
	}

	conflict.Status = StatusResolved
	conflict.Resolution = &Resolution{
		PrimaryPlatform: primary,
		RetainedSources: retained,
		Note:            note,
		ResolvedAt:      r.now(),
	}
	return conflict
}
