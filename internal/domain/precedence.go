package domain

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrInvalidPrecedence indicates a precedence rule that cannot be stored.
var ErrInvalidPrecedence = errors.New("invalid precedence rule")

// PrecedenceRule ranks platforms for an athlete; rank 1 is the strongest.
// Exactly one rule is active per athlete, last write wins.
type PrecedenceRule struct {
	ID                 string
	TenantID           string
	AthleteID          string
	RuleName           string
	PlatformPrecedence map[string]int
	CreatedAt          time.Time
}

// NewPrecedenceRule validates and builds a rule. Ranks must be unique
// positive integers over a non-empty platform set.
func NewPrecedenceRule(tenantID, athleteID, ruleName string, precedence map[string]int, now time.Time) (PrecedenceRule, error) {
	if athleteID == "" {
		return PrecedenceRule{}, fmt.Errorf("%w: missing athlete id", ErrInvalidPrecedence)
	}
	if ruleName == "" {
		return PrecedenceRule{}, fmt.Errorf("%w: missing rule name", ErrInvalidPrecedence)
	}
	if len(precedence) == 0 {
		return PrecedenceRule{}, fmt.Errorf("%w: platform precedence is empty", ErrInvalidPrecedence)
	}

	seen := make(map[int]string, len(precedence))
	for platform, rank := range precedence {
		if platform == "" {
			return PrecedenceRule{}, fmt.Errorf("%w: empty platform name", ErrInvalidPrecedence)
		}
		if rank <= 0 {
			return PrecedenceRule{}, fmt.Errorf("%w: rank for %q must be positive", ErrInvalidPrecedence, platform)
		}
		if other, dup := seen[rank]; dup {
			return PrecedenceRule{}, fmt.Errorf("%w: rank %d assigned to both %q and %q", ErrInvalidPrecedence, rank, other, platform)
		}
		seen[rank] = platform
	}

	copied := make(map[string]int, len(precedence))
	for platform, rank := range precedence {
		copied[platform] = rank
	}

	return PrecedenceRule{
		ID:                 uuid.NewString(),
		TenantID:           tenantID,
		AthleteID:          athleteID,
		RuleName:           ruleName,
		PlatformPrecedence: copied,
		CreatedAt:          now.UTC(),
	}, nil
}

// Rank returns the platform's rank and whether the rule covers it.
func (r PrecedenceRule) Rank(platform string) (int, bool) {
	rank, ok := r.PlatformPrecedence[platform]
	return rank, ok
}

// PrimaryAmong picks the ranked platform with the lowest rank number from the
// given set. The second return is false when none of them appear in the rule.
func (r PrecedenceRule) PrimaryAmong(platforms []string) (string, bool) {
	best := ""
	bestRank := 0
	for _, platform := range platforms {
		rank, ok := r.PlatformPrecedence[platform]
		if !ok {
			continue
		}
		if best == "" || rank < bestRank {
			best, bestRank = platform, rank
		}
	}
	return best, best != ""
}
