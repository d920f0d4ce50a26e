package services

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"

	"github.com/yoockh/fitcoach/internal/lock"
	"github.com/yoockh/fitcoach/internal/models"
	pgrepo "github.com/yoockh/fitcoach/internal/repositories/postgres"
	"github.com/yoockh/fitcoach/internal/utils"
)

type StartWorkout struct {
	DayName     string
	SessionName string
	// Exercises defaults to the active program's plan for DayName.
	Exercises []models.PlannedExercise
}

type WorkoutSession struct {
	Log     *models.WorkoutLog
	Resumed bool
}

// ExerciseUpdate changes one exercise of an open log. Nil fields are left
// alone; SetData is appended to the exercise's sets.
type ExerciseUpdate struct {
	Index         int
	SetsCompleted *int
	WeightUsed    *string
	SetData       map[string]any
}

type WorkoutCompletion struct {
	DurationMinutes *int
	Notes           *string
}

type WorkoutService interface {
	// Start opens today's log for a day of the active program, or resumes the
	// one already opened. Weights default to those of the last completed
	// session of the same day.
	Start(ctx context.Context, userID string, in StartWorkout) (*WorkoutSession, error)
	UpdateExercise(ctx context.Context, userID, logID string, u ExerciseUpdate) (*models.WorkoutLog, error)
	// Complete closes the log and returns the user's updated stats.
	Complete(ctx context.Context, userID, logID string, in WorkoutCompletion) (*models.ProgressStats, error)
	// Today returns today's log of dayName, or nil when none was started.
	Today(ctx context.Context, userID, dayName string) (*models.WorkoutLog, error)
	Recent(ctx context.Context, userID string, limit int) ([]models.WorkoutLog, error)
}

type workoutService struct {
	logs     pgrepo.WorkoutRepository
	programs ProgramService
	guard    guard
	log      logrus.FieldLogger
	now      func() time.Time
}

func NewWorkoutService(logs pgrepo.WorkoutRepository, programs ProgramService, locker lock.Locker, lockWait time.Duration, log logrus.FieldLogger) WorkoutService {
	return &workoutService{
		logs:     logs,
		programs: programs,
		guard:    guard{locker: locker, wait: lockWait},
		log:      log,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *workoutService) Start(ctx context.Context, userID string, in StartWorkout) (*WorkoutSession, error) {
	const op = "WorkoutService.Start"

	in.DayName = strings.TrimSpace(in.DayName)
	if userID == "" || in.DayName == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "day_name is required", nil)
	}

	release, err := s.guard.acquire(ctx, op, workoutLockKey(userID))
	if err != nil {
		return nil, err
	}
	defer release()

	prog, err := s.programs.GetActive(ctx, userID)
	if err != nil {
		return nil, err
	}
	today := models.Day(s.now())

	existing, err := s.logs.FindForDay(ctx, userID, prog.ID, today, in.DayName)
	switch {
	case err == nil:
		return &WorkoutSession{Log: existing, Resumed: true}, nil
	case !errors.Is(err, utils.ErrNotFound):
		return nil, utils.E(utils.CodeInternal, op, "failed to look up today's workout", err)
	}

	if len(in.Exercises) == 0 {
		day := plannedDay(prog, in.DayName)
		in.Exercises = day.Exercises
		if in.SessionName == "" {
			in.SessionName = day.SessionName
		}
	}
	if len(in.Exercises) == 0 {
		return nil, utils.E(utils.CodeInvalidArgument, op, "no exercises planned for "+in.DayName, nil)
	}

	weights := map[string]string{}
	if last, err := s.logs.LastCompletedForDay(ctx, userID, in.DayName); err == nil {
		for _, ex := range last.Exercises {
			if ex.WeightUsed != "" {
				weights[ex.Name] = ex.WeightUsed
			}
		}
	} else if !errors.Is(err, utils.ErrNotFound) {
		return nil, utils.E(utils.CodeInternal, op, "failed to load previous weights", err)
	}

	exercises := make(datatypes.JSONSlice[models.ExerciseLog], len(in.Exercises))
	for i, ex := range in.Exercises {
		weight := weights[ex.Name]
		if weight == "" {
			weight = string(ex.Weight)
		}
		exercises[i] = models.ExerciseLog{
			Index:      i,
			Name:       ex.Name,
			SetsTotal:  ex.Sets.Int(),
			RepsTarget: string(ex.Reps),
			WeightUsed: weight,
			SetsData:   []map[string]any{},
		}
	}

	now := s.now()
	w := &models.WorkoutLog{
		ID:          uuid.NewString(),
		UserID:      userID,
		ProgramID:   prog.ID,
		WorkoutDate: datatypes.Date(today),
		DayName:     in.DayName,
		SessionName: in.SessionName,
		Exercises:   exercises,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.logs.Create(ctx, w); err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to start workout", err)
	}
	return &WorkoutSession{Log: w}, nil
}

func (s *workoutService) UpdateExercise(ctx context.Context, userID, logID string, u ExerciseUpdate) (*models.WorkoutLog, error) {
	const op = "WorkoutService.UpdateExercise"

	if u.SetsCompleted != nil && *u.SetsCompleted < 0 {
		return nil, utils.E(utils.CodeInvalidArgument, op, "sets_completed must not be negative", nil)
	}

	release, err := s.guard.acquire(ctx, op, workoutLockKey(userID))
	if err != nil {
		return nil, err
	}
	defer release()

	w, err := s.openLog(ctx, op, userID, logID)
	if err != nil {
		return nil, err
	}
	if u.Index < 0 || u.Index >= len(w.Exercises) {
		return nil, utils.E(utils.CodeInvalidArgument, op, "invalid exercise index", nil)
	}

	ex := &w.Exercises[u.Index]
	if u.SetsCompleted != nil {
		ex.SetsCompleted = *u.SetsCompleted
	}
	if u.WeightUsed != nil {
		ex.WeightUsed = *u.WeightUsed
	}
	if u.SetData != nil {
		ex.SetsData = append(ex.SetsData, u.SetData)
	}

	if err := s.logs.SaveExercises(ctx, w); err != nil {
		if errors.Is(err, utils.ErrConflict) {
			return nil, utils.E(utils.CodeInvalidState, op, "workout already completed", err)
		}
		return nil, utils.E(utils.CodeInternal, op, "failed to save exercise", err)
	}
	return w, nil
}

func (s *workoutService) Complete(ctx context.Context, userID, logID string, in WorkoutCompletion) (*models.ProgressStats, error) {
	const op = "WorkoutService.Complete"

	if in.DurationMinutes != nil && *in.DurationMinutes < 0 {
		return nil, utils.E(utils.CodeInvalidArgument, op, "duration_minutes must not be negative", nil)
	}

	w, err := s.openLog(ctx, op, userID, logID)
	if err != nil {
		return nil, err
	}
	w.DurationMinutes = in.DurationMinutes
	w.Notes = in.Notes

	stats, err := s.logs.Complete(ctx, w, s.now())
	if err != nil {
		if errors.Is(err, utils.ErrConflict) {
			return nil, utils.E(utils.CodeInvalidState, op, "workout already completed", err)
		}
		return nil, utils.E(utils.CodeInternal, op, "failed to complete workout", err)
	}

	s.log.WithFields(logrus.Fields{
		"user_id": userID,
		"log_id":  w.ID,
		"streak":  stats.CurrentStreakDays,
	}).Info("workout completed")
	return stats, nil
}

func (s *workoutService) Today(ctx context.Context, userID, dayName string) (*models.WorkoutLog, error) {
	const op = "WorkoutService.Today"

	prog, err := s.programs.GetActive(ctx, userID)
	if err != nil {
		return nil, err
	}
	w, err := s.logs.FindForDay(ctx, userID, prog.ID, models.Day(s.now()), strings.TrimSpace(dayName))
	if errors.Is(err, utils.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to look up today's workout", err)
	}
	return w, nil
}

func (s *workoutService) Recent(ctx context.Context, userID string, limit int) ([]models.WorkoutLog, error) {
	const op = "WorkoutService.Recent"

	rows, err := s.logs.ListRecent(ctx, userID, time.Time{}, limit)
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to list workouts", err)
	}
	return rows, nil
}

// openLog loads a log owned by userID that is still editable.
func (s *workoutService) openLog(ctx context.Context, op, userID, logID string) (*models.WorkoutLog, error) {
	if logID == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "log_id is required", nil)
	}
	w, err := s.logs.GetByID(ctx, logID)
	if err != nil {
		if errors.Is(err, utils.ErrNotFound) {
			return nil, utils.E(utils.CodeNotFound, op, "workout log not found", err)
		}
		return nil, utils.E(utils.CodeInternal, op, "failed to get workout log", err)
	}
	if w.UserID != userID {
		return nil, utils.E(utils.CodeForbidden, op, "not authorized to access this workout", nil)
	}
	if w.Completed {
		return nil, utils.E(utils.CodeInvalidState, op, "workout already completed", nil)
	}
	return w, nil
}

type programDay struct {
	Day         string                   `json:"day"`
	SessionName string                   `json:"session_name"`
	Exercises   []models.PlannedExercise `json:"exercises"`
}

// plannedDay finds dayName in the workout program's weekly_schedule. A
// program the coach shaped differently yields an empty day.
func plannedDay(p *models.Program, dayName string) programDay {
	var doc struct {
		WeeklySchedule []programDay `json:"weekly_schedule"`
	}
	if err := json.Unmarshal(p.Workout, &doc); err != nil {
		return programDay{}
	}
	for _, d := range doc.WeeklySchedule {
		if strings.EqualFold(strings.TrimSpace(d.Day), dayName) {
			return d
		}
	}
	return programDay{}
}
