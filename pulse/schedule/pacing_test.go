package schedule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Diomandeee/learnnko-sub000/am"
)

func TestInterval(t *testing.T) {
	tests := []struct {
		name string
		cfg  am.ThroughputConfig
		want time.Duration
	}{
		{name: "16 per day", cfg: am.ThroughputConfig{JobsPerDay: 16}, want: 90 * time.Minute},
		{name: "10 per day", cfg: am.ThroughputConfig{JobsPerDay: 10}, want: 8640 * time.Second},
		{name: "20 per day halves it", cfg: am.ThroughputConfig{JobsPerDay: 20}, want: 4320 * time.Second},
		{name: "minimum wins", cfg: am.ThroughputConfig{JobsPerDay: 10000, MinIntervalSeconds: 60}, want: time.Minute},
		{name: "spread wins over minimum", cfg: am.ThroughputConfig{JobsPerDay: 24, MinIntervalSeconds: 60}, want: time.Hour},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Interval(tt.cfg))
		})
	}
}

func TestDaysToComplete(t *testing.T) {
	assert.Equal(t, 59, DaysToComplete(933, am.ThroughputConfig{JobsPerDay: 16, MinIntervalSeconds: 60}))
	assert.Equal(t, 0, DaysToComplete(0, am.ThroughputConfig{JobsPerDay: 16}))
	// min interval caps throughput at 24/day
	assert.Equal(t, 5, DaysToComplete(100, am.ThroughputConfig{JobsPerDay: 100, MinIntervalSeconds: 3600}))
}

func TestProjectFinish(t *testing.T) {
	w, err := NewWindow(weekdaysNineToFive())
	require.NoError(t, err)
	cfg := am.ThroughputConfig{JobsPerDay: 16}

	// 40 jobs at 16/day need 3 active days: Mon, Tue, Wed
	finish, ok := ProjectFinish(w, utc(2026, 3, 2, 8, 0), 40, cfg)
	require.True(t, ok)
	assert.Equal(t, "2026-03-04", finish.Format(am.DateLayout))

	// 933 jobs do not fit in a ten-day window
	_, ok = ProjectFinish(w, utc(2026, 3, 2, 8, 0), 933, cfg)
	assert.False(t, ok)
}
