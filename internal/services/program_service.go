package services

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"gorm.io/datatypes"

	"github.com/yoockh/fitcoach/internal/coach"
	"github.com/yoockh/fitcoach/internal/models"
	pgrepo "github.com/yoockh/fitcoach/internal/repositories/postgres"
	"github.com/yoockh/fitcoach/internal/utils"
)

const defaultProgramName = "Your Personalized Program"

type ProgramService interface {
	// Generate builds a program from the user's current profile.
	Generate(ctx context.Context, userID string) (*models.Program, error)
	// GenerateFrom builds a program from the given profile document. All
	// three parts are generated concurrently; if any fails nothing is stored.
	GenerateFrom(ctx context.Context, userID, conversationID string, profile map[string]any) (*models.Program, error)
	GetActive(ctx context.Context, userID string) (*models.Program, error)
	GetByID(ctx context.Context, userID, programID string) (*models.Program, error)
	List(ctx context.Context, userID string, limit int) ([]models.Program, error)
}

type programService struct {
	programs pgrepo.ProgramRepository
	profiles ProfileService
	coach    coach.Generator
	log      logrus.FieldLogger
}

func NewProgramService(programs pgrepo.ProgramRepository, profiles ProfileService, gen coach.Generator, log logrus.FieldLogger) ProgramService {
	return &programService{programs: programs, profiles: profiles, coach: gen, log: log}
}

func (s *programService) Generate(ctx context.Context, userID string) (*models.Program, error) {
	const op = "ProgramService.Generate"

	if userID == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "user_id is required", nil)
	}
	p, err := s.profiles.GetCurrent(ctx, userID)
	if err != nil {
		return nil, err
	}
	doc, err := profileData(op, p)
	if err != nil {
		return nil, err
	}
	return s.GenerateFrom(ctx, userID, p.ConversationID, doc)
}

func (s *programService) GenerateFrom(ctx context.Context, userID, conversationID string, profile map[string]any) (*models.Program, error) {
	const op = "ProgramService.GenerateFrom"

	start := time.Now()
	docs := make([]map[string]any, len(models.ProgramKinds))

	g, gctx := errgroup.WithContext(ctx)
	for i, kind := range models.ProgramKinds {
		g.Go(func() error {
			doc, err := s.coach.GenerateProgram(gctx, kind, profile)
			if err != nil {
				return err
			}
			docs[i] = doc
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		s.log.WithError(err).WithField("user_id", userID).Warn("program generation failed")
		return nil, utils.Pass(utils.CodeUnavailable, op, "failed to generate programs", err)
	}

	prog, err := assembleProgram(userID, conversationID, docs)
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to encode program", err)
	}
	if err := s.programs.Create(ctx, prog); err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to store program", err)
	}

	s.log.WithFields(logrus.Fields{
		"user_id":    userID,
		"program_id": prog.ID,
		"elapsed":    time.Since(start).String(),
	}).Info("program generated")
	return prog, nil
}

func (s *programService) GetActive(ctx context.Context, userID string) (*models.Program, error) {
	const op = "ProgramService.GetActive"

	p, err := s.programs.GetActive(ctx, userID)
	if err != nil {
		if errors.Is(err, utils.ErrNotFound) {
			return nil, utils.E(utils.CodeNotFound, op, "no active program", err)
		}
		return nil, utils.E(utils.CodeInternal, op, "failed to get active program", err)
	}
	return p, nil
}

func (s *programService) GetByID(ctx context.Context, userID, programID string) (*models.Program, error) {
	const op = "ProgramService.GetByID"

	if programID == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "program_id is required", nil)
	}
	p, err := s.programs.GetByID(ctx, programID)
	if err != nil {
		if errors.Is(err, utils.ErrNotFound) {
			return nil, utils.E(utils.CodeNotFound, op, "program not found", err)
		}
		return nil, utils.E(utils.CodeInternal, op, "failed to get program", err)
	}
	if p.UserID != userID {
		return nil, utils.E(utils.CodeForbidden, op, "not authorized to access this program", nil)
	}
	return p, nil
}

func (s *programService) List(ctx context.Context, userID string, limit int) ([]models.Program, error) {
	const op = "ProgramService.List"

	rows, err := s.programs.ListByUser(ctx, userID, limit)
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to list programs", err)
	}
	return rows, nil
}

// assembleProgram expects docs in models.ProgramKinds order.
func assembleProgram(userID, conversationID string, docs []map[string]any) (*models.Program, error) {
	raw := make([]datatypes.JSON, len(docs))
	for i, d := range docs {
		b, err := json.Marshal(d)
		if err != nil {
			return nil, err
		}
		raw[i] = b
	}

	workout := docs[0]
	name, _ := workout["program_name"].(string)
	if strings.TrimSpace(name) == "" {
		name = defaultProgramName
	}

	return &models.Program{
		ID:             uuid.NewString(),
		UserID:         userID,
		ConversationID: conversationID,
		ProgramName:    name,
		Workout:        raw[0],
		Nutrition:      raw[1],
		Flexibility:    raw[2],
		RestDays:       restDays(workout),
		IsActive:       true,
		CreatedAt:      time.Now().UTC(),
	}, nil
}

func restDays(workout map[string]any) pq.StringArray {
	list, _ := workout["rest_days"].([]any)
	out := pq.StringArray{}
	for _, v := range list {
		if s, ok := v.(string); ok && s != "" {
			out = append(out, s)
		}
	}
	return out
}
