package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/yoockh/fitcoach/internal/models"
	"github.com/yoockh/fitcoach/internal/utils"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DayCount is the number of completed workouts on one date.
type DayCount struct {
	WorkoutDate datatypes.Date `gorm:"column:workout_date" json:"workout_date"`
	Count       int            `gorm:"column:count" json:"count"`
}

type WorkoutRepository interface {
	Create(ctx context.Context, w *models.WorkoutLog) error
	GetByID(ctx context.Context, id string) (*models.WorkoutLog, error)
	// FindForDay returns the newest log of a program day on date.
	FindForDay(ctx context.Context, userID, programID string, date time.Time, dayName string) (*models.WorkoutLog, error)
	// LastCompletedForDay returns the newest completed log of dayName, across
	// programs.
	LastCompletedForDay(ctx context.Context, userID, dayName string) (*models.WorkoutLog, error)
	// SaveExercises stores w.Exercises; utils.ErrConflict once w is completed.
	SaveExercises(ctx context.Context, w *models.WorkoutLog) error
	// Complete marks w completed and records it in the user's stats in one
	// transaction. utils.ErrConflict if w was completed already.
	Complete(ctx context.Context, w *models.WorkoutLog, at time.Time) (*models.ProgressStats, error)
	// ListRecent returns logs newest first. A zero since means no lower bound.
	ListRecent(ctx context.Context, userID string, since time.Time, limit int) ([]models.WorkoutLog, error)
	// ListCompleted returns completed logs oldest first.
	ListCompleted(ctx context.Context, userID string) ([]models.WorkoutLog, error)
	WeeklyActivity(ctx context.Context, userID string, since time.Time) ([]DayCount, error)
	// GetStats returns zeroed stats for a user with no completed workout.
	GetStats(ctx context.Context, userID string) (*models.ProgressStats, error)
}

type workoutRepo struct {
	db *gorm.DB
}

func NewWorkoutRepo(db *gorm.DB) WorkoutRepository {
	return &workoutRepo{db: db}
}

func (r *workoutRepo) Create(ctx context.Context, w *models.WorkoutLog) error {
	return r.db.WithContext(ctx).Create(w).Error
}

func (r *workoutRepo) GetByID(ctx context.Context, id string) (*models.WorkoutLog, error) {
	var w models.WorkoutLog
	err := r.db.WithContext(ctx).Where("id = ?", id).Take(&w).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, utils.ErrNotFound
	}
	return &w, err
}

func (r *workoutRepo) FindForDay(ctx context.Context, userID, programID string, date time.Time, dayName string) (*models.WorkoutLog, error) {
	var w models.WorkoutLog
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND program_id = ? AND workout_date = ? AND day_name = ?", userID, programID, datatypes.Date(date), dayName).
		Order("created_at DESC").
		Take(&w).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, utils.ErrNotFound
	}
	return &w, err
}

func (r *workoutRepo) LastCompletedForDay(ctx context.Context, userID, dayName string) (*models.WorkoutLog, error) {
	var w models.WorkoutLog
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND day_name = ? AND completed", userID, dayName).
		Order("workout_date DESC, created_at DESC").
		Take(&w).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, utils.ErrNotFound
	}
	return &w, err
}

func (r *workoutRepo) SaveExercises(ctx context.Context, w *models.WorkoutLog) error {
	now := time.Now().UTC()
	res := r.db.WithContext(ctx).Model(&models.WorkoutLog{}).
		Where("id = ? AND user_id = ? AND NOT completed", w.ID, w.UserID).
		Updates(map[string]any{"exercises_logged": w.Exercises, "updated_at": now})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return utils.ErrConflict
	}
	w.UpdatedAt = now
	return nil
}

func (r *workoutRepo) Complete(ctx context.Context, w *models.WorkoutLog, at time.Time) (*models.ProgressStats, error) {
	var stats models.ProgressStats
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		fields := map[string]any{"completed": true, "completed_at": at, "updated_at": at}
		if w.DurationMinutes != nil {
			fields["duration_minutes"] = *w.DurationMinutes
		}
		if w.Notes != nil {
			fields["notes"] = *w.Notes
		}
		res := tx.Model(&models.WorkoutLog{}).
			Where("id = ? AND user_id = ? AND NOT completed", w.ID, w.UserID).
			Updates(fields)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return utils.ErrConflict
		}

		// Create the row if missing, then lock it for the read-modify-write.
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).
			Create(&models.ProgressStats{UserID: w.UserID, UpdatedAt: at}).Error; err != nil {
			return err
		}
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("user_id = ?", w.UserID).Take(&stats).Error; err != nil {
			return err
		}
		stats.RecordWorkout(at)
		stats.UpdatedAt = at
		return tx.Save(&stats).Error
	})
	if err != nil {
		return nil, err
	}
	w.Completed = true
	w.CompletedAt = &at
	w.UpdatedAt = at
	return &stats, nil
}

func (r *workoutRepo) ListRecent(ctx context.Context, userID string, since time.Time, limit int) ([]models.WorkoutLog, error) {
	if limit <= 0 {
		limit = 10
	}
	q := r.db.WithContext(ctx).Where("user_id = ?", userID)
	if !since.IsZero() {
		q = q.Where("workout_date >= ?", datatypes.Date(since))
	}
	var rows []models.WorkoutLog
	err := q.Order("workout_date DESC, created_at DESC").Limit(limit).Find(&rows).Error
	return rows, err
}

func (r *workoutRepo) ListCompleted(ctx context.Context, userID string) ([]models.WorkoutLog, error) {
	var rows []models.WorkoutLog
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND completed", userID).
		Order("workout_date ASC, created_at ASC").
		Find(&rows).Error
	return rows, err
}

func (r *workoutRepo) WeeklyActivity(ctx context.Context, userID string, since time.Time) ([]DayCount, error) {
	var rows []DayCount
	err := r.db.WithContext(ctx).Model(&models.WorkoutLog{}).
		Select("workout_date, COUNT(*) AS count").
		Where("user_id = ? AND completed AND workout_date >= ?", userID, datatypes.Date(since)).
		Group("workout_date").
		Order("workout_date").
		Scan(&rows).Error
	return rows, err
}

func (r *workoutRepo) GetStats(ctx context.Context, userID string) (*models.ProgressStats, error) {
	var s models.ProgressStats
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).Take(&s).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &models.ProgressStats{UserID: userID}, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}
