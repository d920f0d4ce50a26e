package services

import (
	"context"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"gorm.io/datatypes"

	"github.com/yoockh/fitcoach/internal/models"
	pgrepo "github.com/yoockh/fitcoach/internal/repositories/postgres"
	"github.com/yoockh/fitcoach/internal/utils"
)

const (
	recentWorkouts     = 10
	defaultHistoryDays = 30
	maxHistoryDays     = 365
)

type ProgressReport struct {
	*models.ProgressStats
	DaysActiveThisWeek int               `json:"days_active_this_week"`
	WeeklyActivity     []pgrepo.DayCount `json:"weekly_activity"`
	// RecentWorkouts is only filled by Report.
	RecentWorkouts []models.WorkoutLog `json:"recent_workouts,omitempty"`
}

// WeightPoint is the load of one exercise in one completed workout.
type WeightPoint struct {
	Date   datatypes.Date `json:"date"`
	Weight float64        `json:"weight"`
	Raw    string         `json:"raw"`
}

type ProgressService interface {
	// Stats is the streak summary plus the last seven days of activity.
	Stats(ctx context.Context, userID string) (*ProgressReport, error)
	// Report is Stats plus the most recent workouts.
	Report(ctx context.Context, userID string) (*ProgressReport, error)
	// Progression maps exercise name to its loads, oldest first. Loads that
	// carry no number ("bodyweight") are skipped.
	Progression(ctx context.Context, userID string) (map[string][]WeightPoint, error)
	// Exercises lists every exercise name in a completed workout, sorted.
	Exercises(ctx context.Context, userID string) ([]string, error)
	// History returns the workouts of the last days days, newest first.
	History(ctx context.Context, userID string, days int) ([]models.WorkoutLog, error)
}

type progressService struct {
	logs pgrepo.WorkoutRepository
	now  func() time.Time
}

func NewProgressService(logs pgrepo.WorkoutRepository) ProgressService {
	return &progressService{logs: logs, now: func() time.Time { return time.Now().UTC() }}
}

func (s *progressService) Stats(ctx context.Context, userID string) (*ProgressReport, error) {
	const op = "ProgressService.Stats"

	stats, err := s.logs.GetStats(ctx, userID)
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to load stats", err)
	}
	since := models.Day(s.now()).AddDate(0, 0, -7)
	week, err := s.logs.WeeklyActivity(ctx, userID, since)
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to load weekly activity", err)
	}
	if week == nil {
		week = []pgrepo.DayCount{}
	}
	return &ProgressReport{ProgressStats: stats, DaysActiveThisWeek: len(week), WeeklyActivity: week}, nil
}

func (s *progressService) Report(ctx context.Context, userID string) (*ProgressReport, error) {
	const op = "ProgressService.Report"

	r, err := s.Stats(ctx, userID)
	if err != nil {
		return nil, err
	}
	recent, err := s.logs.ListRecent(ctx, userID, time.Time{}, recentWorkouts)
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to list workouts", err)
	}
	if recent == nil {
		recent = []models.WorkoutLog{}
	}
	r.RecentWorkouts = recent
	return r, nil
}

var loadNumber = regexp.MustCompile(`\d+(?:\.\d+)?`)

// parseLoad pulls the first number out of a free-form load such as
// "42.5 kg" or "2x20lb".
func parseLoad(raw string) (float64, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.EqualFold(raw, "bodyweight") {
		return 0, false
	}
	m := loadNumber.FindString(raw)
	if m == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(m, 64)
	return f, err == nil
}

func (s *progressService) Progression(ctx context.Context, userID string) (map[string][]WeightPoint, error) {
	const op = "ProgressService.Progression"

	rows, err := s.logs.ListCompleted(ctx, userID)
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to list workouts", err)
	}
	out := map[string][]WeightPoint{}
	for _, w := range rows {
		for _, ex := range w.Exercises {
			load, ok := parseLoad(ex.WeightUsed)
			if !ok || ex.Name == "" {
				continue
			}
			out[ex.Name] = append(out[ex.Name], WeightPoint{Date: w.WorkoutDate, Weight: load, Raw: ex.WeightUsed})
		}
	}
	return out, nil
}

func (s *progressService) Exercises(ctx context.Context, userID string) ([]string, error) {
	const op = "ProgressService.Exercises"

	rows, err := s.logs.ListCompleted(ctx, userID)
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to list workouts", err)
	}
	seen := map[string]bool{}
	names := []string{}
	for _, w := range rows {
		for _, ex := range w.Exercises {
			if ex.Name != "" && !seen[ex.Name] {
				seen[ex.Name] = true
				names = append(names, ex.Name)
			}
		}
	}
	sort.Strings(names)
	return names, nil
}

func (s *progressService) History(ctx context.Context, userID string, days int) ([]models.WorkoutLog, error) {
	const op = "ProgressService.History"

	if days <= 0 {
		days = defaultHistoryDays
	}
	days = min(days, maxHistoryDays)
	since := models.Day(s.now()).AddDate(0, 0, -days)
	// every day may hold several sessions; the cap only bounds the response
	rows, err := s.logs.ListRecent(ctx, userID, since, days*4)
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to list workouts", err)
	}
	return rows, nil
}
