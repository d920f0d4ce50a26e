package models

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"gorm.io/datatypes"
)

// Loose holds a plan value the coach may emit as either a number or a string
// ("10-12", "bodyweight"). It always marshals as a string.
type Loose string

func (l *Loose) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*l = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*l = Loose(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*l = Loose(n.String())
	return nil
}

// Int reads l as a whole number, 0 when it is not one.
func (l Loose) Int() int {
	n, err := strconv.Atoi(strings.TrimSpace(string(l)))
	if err != nil {
		return 0
	}
	return n
}

// PlannedExercise is one exercise of a program day as the client (or the
// active program's weekly_schedule) describes it.
type PlannedExercise struct {
	Name   string `json:"name"`
	Sets   Loose  `json:"sets"`
	Reps   Loose  `json:"reps"`
	Weight Loose  `json:"weight"`
}

// ExerciseLog tracks one exercise inside a workout log. SetsData holds
// whatever per-set detail the client reports, in order.
type ExerciseLog struct {
	Index         int              `json:"index"`
	Name          string           `json:"name"`
	SetsCompleted int              `json:"sets_completed"`
	SetsTotal     int              `json:"sets_total"`
	RepsTarget    string           `json:"reps_target"`
	WeightUsed    string           `json:"weight_used"`
	SetsData      []map[string]any `json:"sets_data"`
}

// WorkoutLog is one training session of a program day. A log is editable
// until Completed is set.
type WorkoutLog struct {
	ID          string         `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	UserID      string         `gorm:"column:user_id;type:uuid;index:idx_workout_logs_user_date,priority:1" json:"user_id"`
	ProgramID   string         `gorm:"column:program_id;type:uuid;index" json:"program_id"`
	WorkoutDate datatypes.Date `gorm:"column:workout_date;type:date;index:idx_workout_logs_user_date,priority:2" json:"workout_date"`
	DayName     string         `gorm:"column:day_name;type:text" json:"day_name"`
	SessionName string         `gorm:"column:session_name;type:text" json:"session_name"`

	Exercises datatypes.JSONSlice[ExerciseLog] `gorm:"column:exercises_logged;type:jsonb" json:"exercises_logged"`

	Completed       bool       `gorm:"column:completed;not null;default:false" json:"completed"`
	CompletedAt     *time.Time `gorm:"column:completed_at;type:timestamptz" json:"completed_at,omitempty"`
	DurationMinutes *int       `gorm:"column:duration_minutes" json:"duration_minutes"`
	Notes           *string    `gorm:"column:notes;type:text" json:"notes"`

	CreatedAt time.Time `gorm:"column:created_at;type:timestamptz" json:"created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at;type:timestamptz" json:"updated_at"`
}

func (WorkoutLog) TableName() string { return "workout_logs" }

// ProgressStats is the per-user running tally of completed workouts.
type ProgressStats struct {
	UserID                 string          `gorm:"column:user_id;type:uuid;primaryKey" json:"-"`
	TotalWorkoutsCompleted int             `gorm:"column:total_workouts_completed;not null;default:0" json:"total_workouts_completed"`
	CurrentStreakDays      int             `gorm:"column:current_streak_days;not null;default:0" json:"current_streak_days"`
	LongestStreakDays      int             `gorm:"column:longest_streak_days;not null;default:0" json:"longest_streak_days"`
	LastWorkoutDate        *datatypes.Date `gorm:"column:last_workout_date;type:date" json:"last_workout_date"`
	UpdatedAt              time.Time       `gorm:"column:updated_at;type:timestamptz" json:"-"`
}

func (ProgressStats) TableName() string { return "progress_stats" }

// RecordWorkout counts one completed workout on day. A workout the day after
// the last one extends the streak, a second one the same day keeps it and any
// longer gap restarts it at 1.
func (s *ProgressStats) RecordWorkout(day time.Time) {
	day = Day(day)
	streak := 1
	if s.LastWorkoutDate != nil {
		last := Day(time.Time(*s.LastWorkoutDate))
		switch gap := int(day.Sub(last).Hours() / 24); {
		case gap == 0:
			streak = max(s.CurrentStreakDays, 1)
		case gap == 1:
			streak = s.CurrentStreakDays + 1
		case gap < 0:
			// backdated: the tally counts, the streak is untouched
			s.TotalWorkoutsCompleted++
			return
		}
	}
	s.TotalWorkoutsCompleted++
	s.CurrentStreakDays = streak
	s.LongestStreakDays = max(s.LongestStreakDays, streak)
	d := datatypes.Date(day)
	s.LastWorkoutDate = &d
}

// Day truncates t to its UTC calendar day.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
