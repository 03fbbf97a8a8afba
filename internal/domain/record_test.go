package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNormalizeDerivesWindowAndDate(t *testing.T) {
	start := time.Date(2025, time.June, 14, 23, 30, 0, 0, time.FixedZone("CEST", 2*3600))

	rec, err := Normalize(PlatformStrava, RawRecord{
		ExternalID:  "ext-1",
		AthleteID:   "athlete-1",
		StartTime:   start,
		DurationSec: 1800,
	})
	require.NoError(t, err)

	require.Equal(t, PlatformStrava, rec.Platform)
	require.Equal(t, time.Date(2025, time.June, 14, 21, 30, 0, 0, time.UTC), rec.StartTime)
	require.Equal(t, rec.StartTime.Add(30*time.Minute), rec.EndTime)
	require.Equal(t, time.Date(2025, time.June, 14, 0, 0, 0, 0, time.UTC), rec.Date)
}

func TestNormalizePlatformArgumentWinsOverPayload(t *testing.T) {
	rec, err := Normalize(PlatformGarmin, RawRecord{
		Platform:    PlatformStrava,
		ExternalID:  "ext-1",
		AthleteID:   "athlete-1",
		StartTime:   day.Add(8 * time.Hour),
		DurationSec: 600,
	})
	require.NoError(t, err)
	require.Equal(t, PlatformGarmin, rec.Platform)
}

func TestNormalizeRejectsMalformedPayloads(t *testing.T) {
	valid := RawRecord{
		ExternalID:  "ext-1",
		AthleteID:   "athlete-1",
		StartTime:   day.Add(8 * time.Hour),
		DurationSec: 600,
	}

	missingAthlete := valid
	missingAthlete.AthleteID = ""
	_, err := Normalize(PlatformStrava, missingAthlete)
	require.ErrorIs(t, err, ErrMalformedRecord)

	missingStart := valid
	missingStart.StartTime = time.Time{}
	_, err = Normalize(PlatformStrava, missingStart)
	require.ErrorIs(t, err, ErrMalformedRecord)

	zeroDuration := valid
	zeroDuration.DurationSec = 0
	_, err = Normalize(PlatformStrava, zeroDuration)
	require.ErrorIs(t, err, ErrMalformedRecord)

	negativeDistance := valid
	negativeDistance.DistanceMeters = floatPtr(-5)
	_, err = Normalize(PlatformStrava, negativeDistance)
	require.ErrorIs(t, err, ErrMalformedRecord)

	endBeforeStart := valid
	earlier := valid.StartTime.Add(-time.Minute)
	endBeforeStart.EndTime = &earlier
	_, err = Normalize(PlatformStrava, endBeforeStart)
	require.ErrorIs(t, err, ErrMalformedRecord)

	_, err = Normalize("", valid)
	require.ErrorIs(t, err, ErrMalformedRecord)
}

func TestComparableRequiresSameAthleteAndDate(t *testing.T) {
	a := makeRecord(PlatformStrava, "a-1", day.Add(8*time.Hour), 3600, nil)
	b := makeRecord(PlatformGarmin, "b-1", day.Add(9*time.Hour), 3600, nil)
	require.True(t, a.Comparable(b))

	nextDay := makeRecord(PlatformGarmin, "b-2", day.Add(25*time.Hour), 3600, nil)
	require.False(t, a.Comparable(nextDay))
}
