package services

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/yoockh/fitcoach/internal/lock"
	"github.com/yoockh/fitcoach/internal/merge"
	"github.com/yoockh/fitcoach/internal/models"
	mongorepo "github.com/yoockh/fitcoach/internal/repositories/mongo"
	pgrepo "github.com/yoockh/fitcoach/internal/repositories/postgres"
	"github.com/yoockh/fitcoach/internal/utils"
)

type ConfirmResult struct {
	UpdateID string               `json:"update_id"`
	Profile  map[string]any       `json:"profile"`
	Changes  []models.FieldChange `json:"changes"`

	ProgramsRegenerated bool            `json:"programs_regenerated"`
	Program             *models.Program `json:"program,omitempty"`
	// RegenerationError is set when regeneration was requested and failed.
	// The profile update itself is saved regardless.
	RegenerationError string `json:"regeneration_error,omitempty"`
}

type ProfileUpdateService interface {
	// Confirm applies a completed profile_update conversation exactly once.
	// A non-nil override is a client-edited change set: its changes replace
	// the extracted ones, a non-empty summary or update type replaces the
	// extracted value.
	Confirm(ctx context.Context, userID, conversationID string, override *models.ChangeSet, regenerate bool) (*ConfirmResult, error)
	History(ctx context.Context, userID string, limit int64) ([]models.ProfileUpdate, error)
}

type profileUpdateService struct {
	convos   pgrepo.ConversationRepo
	store    pgrepo.ProfileRepository
	profiles ProfileService
	audit    mongorepo.ProfileUpdateRepository
	programs ProgramService
	guard    guard
	log      logrus.FieldLogger
}

func NewProfileUpdateService(
	convos pgrepo.ConversationRepo,
	store pgrepo.ProfileRepository,
	profiles ProfileService,
	audit mongorepo.ProfileUpdateRepository,
	programs ProgramService,
	locker lock.Locker,
	lockWait time.Duration,
	log logrus.FieldLogger,
) ProfileUpdateService {
	return &profileUpdateService{
		convos:   convos,
		store:    store,
		profiles: profiles,
		audit:    audit,
		programs: programs,
		guard:    guard{locker: locker, wait: lockWait},
		log:      log,
	}
}

func (s *profileUpdateService) Confirm(ctx context.Context, userID, conversationID string, override *models.ChangeSet, regenerate bool) (*ConfirmResult, error) {
	const op = "ProfileUpdateService.Confirm"

	if userID == "" || conversationID == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "conversation_id is required", nil)
	}
	if override != nil && override.Changes == nil {
		return nil, utils.E(utils.CodeInvalidArgument, op, "changes.changes must be an object", nil)
	}
	release, err := s.guard.acquire(ctx, op, conversationID)
	if err != nil {
		return nil, err
	}
	defer release()

	conv, err := s.convos.GetByID(ctx, conversationID)
	if err != nil {
		if errors.Is(err, utils.ErrNotFound) {
			return nil, utils.E(utils.CodeNotFound, op, "conversation not found", err)
		}
		return nil, utils.E(utils.CodeInternal, op, "failed to get conversation", err)
	}
	if conv.UserID != userID {
		return nil, utils.E(utils.CodeForbidden, op, "not authorized to access this conversation", nil)
	}
	if conv.Flow != models.FlowProfileUpdate || !conv.Completed {
		return nil, utils.E(utils.CodeInvalidState, op, "conversation is not a completed profile update", nil)
	}
	if conv.AppliedAt != nil {
		return nil, utils.E(utils.CodeInvalidState, op, "profile update was already applied", nil)
	}

	cs := &models.ChangeSet{}
	if err := json.Unmarshal(conv.ExtractedData, cs); err != nil || cs.Changes == nil {
		if override == nil {
			return nil, utils.E(utils.CodeInvalidState, op, "conversation has no change set", err)
		}
	}
	if override != nil {
		cs.Changes = override.Changes
		if override.Summary != "" {
			cs.Summary = override.Summary
		}
		if override.UpdateType != "" {
			cs.UpdateType = override.UpdateType
		}
	}
	if cs.UpdateType == "" {
		cs.UpdateType = "other"
	}

	applied, err := s.apply(ctx, op, userID, conv.ID, cs.Changes)
	if err != nil {
		return nil, err
	}
	merged, diff := applied.profile, applied.diff

	log := s.log.WithFields(logrus.Fields{
		"user_id":         userID,
		"conversation_id": conv.ID,
		"update_type":     cs.UpdateType,
		"changed_fields":  len(diff),
	})

	record := &models.ProfileUpdate{
		UpdateID:              uuid.NewString(),
		UserID:                userID,
		ConversationID:        conv.ID,
		Messages:              conv.Messages,
		ChangeSet:             *cs,
		Diff:                  diff,
		UpdateType:            cs.UpdateType,
		RegenerationRequested: regenerate,
		CreatedAt:             applied.at,
	}
	auditOK := true
	if err := s.audit.Insert(ctx, record); err != nil {
		// the profile is committed; a missing audit row must not undo it
		auditOK = false
		log.WithError(err).Error("failed to write profile update record")
	}

	res := &ConfirmResult{UpdateID: record.UpdateID, Profile: merged, Changes: diff}
	log.Info("profile update applied")

	if !regenerate {
		return res, nil
	}

	prog, err := s.programs.GenerateFrom(ctx, userID, conv.ID, merged)
	if err != nil {
		log.WithError(err).Warn("program regeneration failed, profile update kept")
		res.RegenerationError = safeMessage(err)
		return res, nil
	}
	res.Program = prog
	res.ProgramsRegenerated = true

	if auditOK {
		if err := s.audit.MarkRegenerated(ctx, record.UpdateID, prog.ID, time.Now().UTC()); err != nil {
			log.WithError(err).Error("failed to flag profile update as regenerated")
		}
	}
	return res, nil
}

type appliedUpdate struct {
	profile map[string]any
	diff    []models.FieldChange
	at      time.Time
}

// apply merges changes into the current profile under the user's profile
// lock and stores the result together with the conversation's applied mark.
func (s *profileUpdateService) apply(ctx context.Context, op, userID, conversationID string, changes map[string]any) (*appliedUpdate, error) {
	unlock, err := s.guard.acquire(ctx, op, profileLockKey(userID))
	if err != nil {
		return nil, err
	}
	defer unlock()

	current, err := s.store.GetByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, utils.ErrNotFound) {
			return nil, utils.E(utils.CodeNotFound, op, "profile not found", err)
		}
		return nil, utils.E(utils.CodeInternal, op, "failed to get profile", err)
	}
	original, err := profileData(op, current)
	if err != nil {
		return nil, err
	}

	merged := merge.DeepMerge(original, changes)
	diff := merge.ExtractChanges(original, merged)

	raw, err := json.Marshal(merged)
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to encode profile", err)
	}
	now := time.Now().UTC()
	next := &models.Profile{UserID: userID, ConversationID: conversationID, Data: raw, Version: current.Version}
	if err := s.store.ApplyUpdate(ctx, next, conversationID, now); err != nil {
		switch {
		case errors.Is(err, utils.ErrConflict):
			return nil, utils.E(utils.CodeInvalidState, op, "profile update was already applied", err)
		case errors.Is(err, utils.ErrStale):
			return nil, utils.E(utils.CodeConflict, op, "profile changed concurrently, retry", err)
		}
		return nil, utils.E(utils.CodeInternal, op, "failed to save profile", err)
	}
	s.profiles.Invalidate(ctx, userID)
	return &appliedUpdate{profile: merged, diff: diff, at: now}, nil
}

func (s *profileUpdateService) History(ctx context.Context, userID string, limit int64) ([]models.ProfileUpdate, error) {
	const op = "ProfileUpdateService.History"

	if userID == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "user_id is required", nil)
	}
	rows, err := s.audit.ListByUser(ctx, userID, limit)
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to list profile updates", err)
	}
	return rows, nil
}

func safeMessage(err error) string {
	var ae *utils.AppError
	if errors.As(err, &ae) && ae.Message != "" {
		return ae.Message
	}
	return "program generation failed"
}
