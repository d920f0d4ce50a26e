package handlers

import (
	"context"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yoockh/fitcoach/internal/models"
	"github.com/yoockh/fitcoach/internal/services"
	"github.com/yoockh/fitcoach/internal/utils"
)

type stubWorkouts struct {
	services.WorkoutService
	sess       *services.WorkoutSession
	log        *models.WorkoutLog
	stats      *models.ProgressStats
	err        error
	gotStart   services.StartWorkout
	gotUpdate  services.ExerciseUpdate
	gotDone    services.WorkoutCompletion
	gotLogID   string
	gotDayName string
}

func (s *stubWorkouts) Start(ctx context.Context, userID string, in services.StartWorkout) (*services.WorkoutSession, error) {
	s.gotStart = in
	return s.sess, s.err
}

func (s *stubWorkouts) UpdateExercise(ctx context.Context, userID, logID string, u services.ExerciseUpdate) (*models.WorkoutLog, error) {
	s.gotLogID, s.gotUpdate = logID, u
	return s.log, s.err
}

func (s *stubWorkouts) Complete(ctx context.Context, userID, logID string, in services.WorkoutCompletion) (*models.ProgressStats, error) {
	s.gotLogID, s.gotDone = logID, in
	return s.stats, s.err
}

func (s *stubWorkouts) Today(ctx context.Context, userID, dayName string) (*models.WorkoutLog, error) {
	s.gotDayName = dayName
	return s.log, s.err
}

type stubProgress struct {
	services.ProgressService
	progression map[string][]services.WeightPoint
}

func (s *stubProgress) Progression(ctx context.Context, userID string) (map[string][]services.WeightPoint, error) {
	return s.progression, nil
}

func (s *stubProgress) Stats(ctx context.Context, userID string) (*services.ProgressReport, error) {
	return &services.ProgressReport{
		ProgressStats:      &models.ProgressStats{TotalWorkoutsCompleted: 4, CurrentStreakDays: 2, LongestStreakDays: 3},
		DaysActiveThisWeek: 2,
	}, nil
}

func workoutRouter(w *stubWorkouts, p *stubProgress) *gin.Engine {
	h := NewWorkoutHandler(w, p)
	return testRouter(func(g gin.IRoutes) {
		g.POST("/workouts/start", h.Start)
		g.PUT("/workouts/:log_id/exercise", h.UpdateExercise)
		g.POST("/workouts/:log_id/complete", h.Complete)
		g.GET("/workouts/today", h.Today)
		g.GET("/stats", h.Stats)
		g.GET("/progress/progression", h.Progression)
	})
}

func TestWorkoutStartStatus(t *testing.T) {
	log := &models.WorkoutLog{ID: "w-1", DayName: "Monday", Exercises: []models.ExerciseLog{{Name: "Squat", SetsTotal: 3}}}
	ws := &stubWorkouts{sess: &services.WorkoutSession{Log: log}}
	r := workoutRouter(ws, &stubProgress{})

	w := do(r, http.MethodPost, "/workouts/start", map[string]any{
		"day_name":  "Monday",
		"exercises": []map[string]any{{"name": "Squat", "sets": 3, "reps": "8-10"}},
	})
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Contains(t, w.Body.String(), `"resumed":false`)
	assert.Equal(t, models.Loose("3"), ws.gotStart.Exercises[0].Sets)

	ws.sess.Resumed = true
	w = do(r, http.MethodPost, "/workouts/start", map[string]any{"day_name": "Monday"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"log_id":"w-1"`)

	w = do(r, http.MethodPost, "/workouts/start", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestWorkoutExerciseUpdate(t *testing.T) {
	ws := &stubWorkouts{log: &models.WorkoutLog{ID: "w-1"}}
	r := workoutRouter(ws, &stubProgress{})

	w := do(r, http.MethodPut, "/workouts/w-1/exercise", map[string]any{"exercise_index": 0, "weight_used": "50kg", "set_data": map[string]any{"reps": 8}})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "w-1", ws.gotLogID)
	assert.Equal(t, 0, ws.gotUpdate.Index)
	assert.Equal(t, "50kg", *ws.gotUpdate.WeightUsed)
	assert.Nil(t, ws.gotUpdate.SetsCompleted)

	w = do(r, http.MethodPut, "/workouts/w-1/exercise", map[string]any{"weight_used": "50kg"})
	assert.Equal(t, http.StatusBadRequest, w.Code, "exercise_index is required")

	ws.err = utils.E(utils.CodeInvalidState, "test", "workout already completed", nil)
	w = do(r, http.MethodPut, "/workouts/w-1/exercise", map[string]any{"exercise_index": 1})
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestWorkoutCompleteAndToday(t *testing.T) {
	ws := &stubWorkouts{stats: &models.ProgressStats{TotalWorkoutsCompleted: 1, CurrentStreakDays: 1, LongestStreakDays: 1}}
	r := workoutRouter(ws, &stubProgress{})

	w := do(r, http.MethodPost, "/workouts/w-1/complete", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"total_workouts_completed":1`)
	assert.Nil(t, ws.gotDone.DurationMinutes)

	w = do(r, http.MethodPost, "/workouts/w-1/complete", map[string]any{"duration_minutes": 45})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 45, *ws.gotDone.DurationMinutes)

	w = do(r, http.MethodGet, "/workouts/today?day_name=Monday", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"exists":false}`, w.Body.String())
	assert.Equal(t, "Monday", ws.gotDayName)

	ws.log = &models.WorkoutLog{ID: "w-2", DayName: "Monday"}
	w = do(r, http.MethodGet, "/workouts/today?day_name=Monday", nil)
	assert.Contains(t, w.Body.String(), `"exists":true`)
}

func TestProgressEndpoints(t *testing.T) {
	p := &stubProgress{progression: map[string][]services.WeightPoint{"Squat": {{Weight: 40, Raw: "40kg"}}}}
	r := workoutRouter(&stubWorkouts{}, p)

	w := do(r, http.MethodGet, "/progress/progression?exercise=Squat", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"raw":"40kg"`)

	w = do(r, http.MethodGet, "/progress/progression?exercise=Deadlift", nil)
	assert.JSONEq(t, `{"progression":[]}`, w.Body.String())

	w = do(r, http.MethodGet, "/progress/progression", nil)
	assert.Contains(t, w.Body.String(), `"Squat":[`)

	w = do(r, http.MethodGet, "/stats", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"total_workouts_completed":4,"current_streak_days":2,"longest_streak_days":3,"last_workout_date":null,"days_active_this_week":2,"weekly_activity":null}`, w.Body.String())
}
