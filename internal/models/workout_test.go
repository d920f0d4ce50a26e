package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordWorkoutStreak(t *testing.T) {
	day := func(d int) time.Time { return time.Date(2026, 5, d, 20, 30, 0, 0, time.UTC) }

	var s ProgressStats
	steps := []struct {
		on              time.Time
		total, cur, max int
	}{
		{day(1), 1, 1, 1},
		{day(2), 2, 2, 2},
		{day(2), 3, 2, 2}, // same day keeps the streak
		{day(3), 4, 3, 3},
		{day(6), 5, 1, 3}, // gap restarts it
		{day(4), 6, 1, 3}, // backdated only counts
		{day(7), 7, 2, 3},
	}
	for i, st := range steps {
		s.RecordWorkout(st.on)
		assert.Equal(t, st.total, s.TotalWorkoutsCompleted, "step %d", i)
		assert.Equal(t, st.cur, s.CurrentStreakDays, "step %d", i)
		assert.Equal(t, st.max, s.LongestStreakDays, "step %d", i)
	}
	require.NotNil(t, s.LastWorkoutDate)
	assert.Equal(t, Day(day(7)), time.Time(*s.LastWorkoutDate))
}

func TestPlannedExerciseAcceptsLooseValues(t *testing.T) {
	var ex []PlannedExercise
	require.NoError(t, json.Unmarshal([]byte(`[
		{"name":"Squat","sets":3,"reps":"8-10","weight":60.5},
		{"name":"Plank","sets":"3","reps":45,"weight":null}]`), &ex))

	assert.Equal(t, PlannedExercise{Name: "Squat", Sets: "3", Reps: "8-10", Weight: "60.5"}, ex[0])
	assert.Equal(t, 3, ex[1].Sets.Int())
	assert.Equal(t, Loose("45"), ex[1].Reps)
	assert.Equal(t, Loose(""), ex[1].Weight)
	assert.Equal(t, 0, Loose("3-4").Int())

	assert.Error(t, json.Unmarshal([]byte(`{"sets":true}`), &PlannedExercise{}))
}
