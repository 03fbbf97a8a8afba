package domain

import (
	"errors"
	"fmt"
	"time"
)

// Platform identifiers for the fitness-data sources the sync adapters pull from.
const (
	PlatformStrava        = "strava"
	PlatformGarmin        = "garmin"
	PlatformWhoop         = "whoop"
	PlatformTrainingPeaks = "trainingpeaks"
	PlatformIntervalsICU  = "intervals.icu"
)

// ErrMalformedRecord indicates a platform payload that cannot be normalized.
// Callers skip and count these rather than aborting the batch.
var ErrMalformedRecord = errors.New("malformed platform record")

// RawRecord is the per-platform activity payload as published by a sync adapter.
type RawRecord struct {
	Platform       string     `json:"platform"`
	ExternalID     string     `json:"external_id"`
	AthleteID      string     `json:"athlete_id"`
	StartTime      time.Time  `json:"start_time"`
	EndTime        *time.Time `json:"end_time,omitempty"`
	DurationSec    int        `json:"duration_sec"`
	DistanceMeters *float64   `json:"distance_m,omitempty"`
	AvgPower       *float64   `json:"avg_power,omitempty"`
	AvgHeartRate   *float64   `json:"avg_heart_rate,omitempty"`
}

// NormalizedRecord is the uniform comparable shape all conflict detection
// operates on. Immutable once produced.
type NormalizedRecord struct {
	Platform       string
	ExternalID     string
	AthleteID      string
	Date           time.Time // UTC midnight of StartTime
	StartTime      time.Time
	EndTime        time.Time
	DurationSec    int
	DistanceMeters *float64
	AvgPower       *float64
	AvgHeartRate   *float64
}

// Normalize converts a raw platform payload into a NormalizedRecord. The
// platform argument wins over whatever the payload claims; adapters are not
// trusted to label their own records.
func Normalize(platform string, raw RawRecord) (NormalizedRecord, error) {
	if platform == "" {
		platform = raw.Platform
	}
	if platform == "" {
		return NormalizedRecord{}, fmt.Errorf("%w: missing platform", ErrMalformedRecord)
	}
	if raw.ExternalID == "" {
		return NormalizedRecord{}, fmt.Errorf("%w: missing external_id", ErrMalformedRecord)
	}
	if raw.AthleteID == "" {
		return NormalizedRecord{}, fmt.Errorf("%w: missing athlete_id", ErrMalformedRecord)
	}
	if raw.StartTime.IsZero() {
		return NormalizedRecord{}, fmt.Errorf("%w: missing start_time", ErrMalformedRecord)
	}
	if raw.DurationSec <= 0 {
		return NormalizedRecord{}, fmt.Errorf("%w: duration_sec must be > 0", ErrMalformedRecord)
	}
	if raw.DistanceMeters != nil && *raw.DistanceMeters < 0 {
		return NormalizedRecord{}, fmt.Errorf("%w: distance_m must be >= 0", ErrMalformedRecord)
	}

	start := raw.StartTime.UTC()
	end := start.Add(time.Duration(raw.DurationSec) * time.Second)
	if raw.EndTime != nil {
		end = raw.EndTime.UTC()
		if !end.After(start) {
			return NormalizedRecord{}, fmt.Errorf("%w: end_time precedes start_time", ErrMalformedRecord)
		}
	}

	return NormalizedRecord{
		Platform:       platform,
		ExternalID:     raw.ExternalID,
		AthleteID:      raw.AthleteID,
		Date:           DateOf(start),
		StartTime:      start,
		EndTime:        end,
		DurationSec:    raw.DurationSec,
		DistanceMeters: raw.DistanceMeters,
		AvgPower:       raw.AvgPower,
		AvgHeartRate:   raw.AvgHeartRate,
	}, nil
}

// DateOf truncates a timestamp to its UTC calendar date.
func DateOf(ts time.Time) time.Time {
	ts = ts.UTC()
	return time.Date(ts.Year(), ts.Month(), ts.Day(), 0, 0, 0, 0, time.UTC)
}

// Comparable reports whether two records may be checked against each other.
// Only same-athlete, same-day records are compared; cross-midnight sessions
// are out of scope.
func (r NormalizedRecord) Comparable(other NormalizedRecord) bool {
	return r.AthleteID == other.AthleteID && r.Date.Equal(other.Date)
}

// Key identifies the record within its source platform.
func (r NormalizedRecord) Key() string {
	return r.Platform + ":" + r.ExternalID
}
