package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildDailySpec(t *testing.T) {
	spec, err := buildDailySpec("03:00")
	require.NoError(t, err)
	assert.Equal(t, "0 0 3 * * *", spec)

	spec, err = buildDailySpec("23:59")
	require.NoError(t, err)
	assert.Equal(t, "0 59 23 * * *", spec)
}

func TestBuildDailySpec_RejectsBadTimes(t *testing.T) {
	for _, bad := range []string{"", "3", "24:00", "12:60", "ab:cd", "12:00:00"} {
		_, err := buildDailySpec(bad)
		assert.Error(t, err, "time %q", bad)
	}
}

func TestScheduleDaily_BadTimeSurfaces(t *testing.T) {
	s := NewScheduler(time.UTC)
	_, err := s.ScheduleDaily("25:00", func() {})
	assert.Error(t, err)
}

func TestScheduleInterval_RejectsNonPositive(t *testing.T) {
	s := NewScheduler(time.UTC)
	_, err := s.ScheduleInterval(0, func() {})
	assert.Error(t, err)
}
