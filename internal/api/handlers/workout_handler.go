package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/yoockh/fitcoach/internal/models"
	"github.com/yoockh/fitcoach/internal/services"
)

type WorkoutHandler struct {
	workouts services.WorkoutService
	progress services.ProgressService
}

func NewWorkoutHandler(workouts services.WorkoutService, progress services.ProgressService) *WorkoutHandler {
	return &WorkoutHandler{workouts: workouts, progress: progress}
}

type startWorkoutRequest struct {
	DayName     string                   `json:"day_name" binding:"required"`
	SessionName string                   `json:"session_name"`
	Exercises   []models.PlannedExercise `json:"exercises"`
}

type exerciseUpdateRequest struct {
	ExerciseIndex *int           `json:"exercise_index" binding:"required"`
	SetsCompleted *int           `json:"sets_completed"`
	WeightUsed    *string        `json:"weight_used"`
	SetData       map[string]any `json:"set_data"`
}

type completeWorkoutRequest struct {
	DurationMinutes *int    `json:"duration_minutes"`
	Notes           *string `json:"notes"`
}

func workoutState(w *models.WorkoutLog) gin.H {
	return gin.H{
		"log_id":           w.ID,
		"day_name":         w.DayName,
		"session_name":     w.SessionName,
		"exercises_logged": w.Exercises,
		"completed":        w.Completed,
	}
}

func (h *WorkoutHandler) Start(c *gin.Context) {
	const op = "WorkoutHandler.Start"
	userID, ok := requireUserID(c)
	if !ok {
		return
	}
	var req startWorkoutRequest
	if !bindJSON(c, op, &req) {
		return
	}

	sess, err := h.workouts.Start(c.Request.Context(), userID, services.StartWorkout{
		DayName:     req.DayName,
		SessionName: req.SessionName,
		Exercises:   req.Exercises,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	body := workoutState(sess.Log)
	body["resumed"] = sess.Resumed
	status := http.StatusCreated
	if sess.Resumed {
		status = http.StatusOK
	}
	c.JSON(status, body)
}

func (h *WorkoutHandler) UpdateExercise(c *gin.Context) {
	const op = "WorkoutHandler.UpdateExercise"
	userID, ok := requireUserID(c)
	if !ok {
		return
	}
	var req exerciseUpdateRequest
	if !bindJSON(c, op, &req) {
		return
	}

	w, err := h.workouts.UpdateExercise(c.Request.Context(), userID, c.Param("log_id"), services.ExerciseUpdate{
		Index:         *req.ExerciseIndex,
		SetsCompleted: req.SetsCompleted,
		WeightUsed:    req.WeightUsed,
		SetData:       req.SetData,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "exercises_logged": w.Exercises})
}

func (h *WorkoutHandler) Complete(c *gin.Context) {
	const op = "WorkoutHandler.Complete"
	userID, ok := requireUserID(c)
	if !ok {
		return
	}
	var req completeWorkoutRequest
	if c.Request.ContentLength != 0 && !bindJSON(c, op, &req) {
		return
	}

	stats, err := h.workouts.Complete(c.Request.Context(), userID, c.Param("log_id"), services.WorkoutCompletion{
		DurationMinutes: req.DurationMinutes,
		Notes:           req.Notes,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Workout completed! Great job!", "stats": stats})
}

func (h *WorkoutHandler) Today(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	w, err := h.workouts.Today(c.Request.Context(), userID, c.Query("day_name"))
	if err != nil {
		writeError(c, err)
		return
	}
	if w == nil {
		c.JSON(http.StatusOK, gin.H{"exists": false})
		return
	}
	body := workoutState(w)
	body["exists"] = true
	c.JSON(http.StatusOK, body)
}

func (h *WorkoutHandler) Recent(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "10"))
	rows, err := h.workouts.Recent(c.Request.Context(), userID, limit)
	if err != nil {
		writeError(c, err)
		return
	}
	if rows == nil {
		rows = []models.WorkoutLog{}
	}
	c.JSON(http.StatusOK, gin.H{"workouts": rows})
}

// Stats is the summary without recent workouts; ProgressStats adds them.
func (h *WorkoutHandler) Stats(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	r, err := h.progress.Stats(c.Request.Context(), userID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, r)
}

func (h *WorkoutHandler) ProgressStats(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	r, err := h.progress.Report(c.Request.Context(), userID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, r)
}

// Progression returns every exercise's loads, or one list when ?exercise=
// names it.
func (h *WorkoutHandler) Progression(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	all, err := h.progress.Progression(c.Request.Context(), userID)
	if err != nil {
		writeError(c, err)
		return
	}
	if name := c.Query("exercise"); name != "" {
		points := all[name]
		if points == nil {
			points = []services.WeightPoint{}
		}
		c.JSON(http.StatusOK, gin.H{"progression": points})
		return
	}
	c.JSON(http.StatusOK, gin.H{"progression": all})
}

func (h *WorkoutHandler) Exercises(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	names, err := h.progress.Exercises(c.Request.Context(), userID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"exercises": names})
}

func (h *WorkoutHandler) History(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	days, _ := strconv.Atoi(c.DefaultQuery("days", "30"))
	rows, err := h.progress.History(c.Request.Context(), userID, days)
	if err != nil {
		writeError(c, err)
		return
	}
	if rows == nil {
		rows = []models.WorkoutLog{}
	}
	c.JSON(http.StatusOK, gin.H{"workouts": rows})
}
