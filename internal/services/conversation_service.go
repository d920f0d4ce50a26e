package services

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/yoockh/fitcoach/internal/coach"
	"github.com/yoockh/fitcoach/internal/lock"
	"github.com/yoockh/fitcoach/internal/models"
	pgrepo "github.com/yoockh/fitcoach/internal/repositories/postgres"
	"github.com/yoockh/fitcoach/internal/utils"
)

// SendResult is the outcome of one user turn.
type SendResult struct {
	Conversation *models.Conversation
	Reply        string
	Completed    bool
	// Set on the completing turn: Profile for intake, ChangeSet for profile_update.
	Profile   map[string]any
	ChangeSet *models.ChangeSet
}

// ConversationService drives both conversational flows. A conversation goes
// Empty -> Active -> Completed and never moves back.
type ConversationService interface {
	Start(ctx context.Context, userID string, flow models.Flow) (*models.Conversation, error)
	Send(ctx context.Context, userID string, flow models.Flow, conversationID, text string) (*SendResult, error)
	Get(ctx context.Context, userID, conversationID string) (*models.Conversation, error)
}

type conversationService struct {
	convos   pgrepo.ConversationRepo
	profiles ProfileService
	coach    coach.Generator
	guard    guard
	log      logrus.FieldLogger
}

func NewConversationService(
	convos pgrepo.ConversationRepo,
	profiles ProfileService,
	gen coach.Generator,
	locker lock.Locker,
	lockWait time.Duration,
	log logrus.FieldLogger,
) ConversationService {
	return &conversationService{
		convos:   convos,
		profiles: profiles,
		coach:    gen,
		guard:    guard{locker: locker, wait: lockWait},
		log:      log,
	}
}

func (s *conversationService) Start(ctx context.Context, userID string, flow models.Flow) (*models.Conversation, error) {
	const op = "ConversationService.Start"

	if userID == "" || !flow.Valid() {
		return nil, utils.E(utils.CodeInvalidArgument, op, "user_id and a valid flow are required", nil)
	}

	release, err := s.guard.acquire(ctx, op, "start:"+models.ActiveKey(userID, flow))
	if err != nil {
		return nil, err
	}
	defer release()

	var profile map[string]any
	if flow == models.FlowProfileUpdate {
		if profile, err = s.currentProfile(ctx, op, userID); err != nil {
			return nil, err
		}
	}

	conv, err := s.convos.FindActive(ctx, userID, flow)
	switch {
	case err == nil:
		if len(conv.Messages) > 0 {
			return conv, nil
		}
		// an earlier start died before the greeting was stored
		opening, err := s.coach.Opening(ctx, flow, profile)
		if err != nil {
			return nil, utils.Pass(utils.CodeUnavailable, op, "failed to generate opening message", err)
		}
		if err := s.convos.AppendMessages(ctx, conv, newMessage(models.RoleAssistantMsg, opening)); err != nil {
			return nil, storeError(op, err)
		}
		return conv, nil
	case !errors.Is(err, utils.ErrNotFound):
		return nil, utils.E(utils.CodeInternal, op, "failed to look up active conversation", err)
	}

	opening, err := s.coach.Opening(ctx, flow, profile)
	if err != nil {
		return nil, utils.Pass(utils.CodeUnavailable, op, "failed to generate opening message", err)
	}

	now := time.Now().UTC()
	key := models.ActiveKey(userID, flow)
	conv = &models.Conversation{
		ID:        uuid.NewString(),
		UserID:    userID,
		Flow:      flow,
		Messages:  []models.Message{newMessage(models.RoleAssistantMsg, opening)},
		ActiveKey: &key,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.convos.Create(ctx, conv); err != nil {
		if !errors.Is(err, utils.ErrConflict) {
			return nil, utils.E(utils.CodeInternal, op, "failed to create conversation", err)
		}
		// lost the race against another process: hand back the winner
		winner, ferr := s.convos.FindActive(ctx, userID, flow)
		if ferr != nil {
			return nil, utils.E(utils.CodeConflict, op, "conversation was started concurrently, retry", ferr)
		}
		return winner, nil
	}

	s.log.WithFields(logrus.Fields{
		"conversation_id": conv.ID,
		"user_id":         userID,
		"flow":            flow,
	}).Info("conversation started")
	return conv, nil
}

func (s *conversationService) Send(ctx context.Context, userID string, flow models.Flow, conversationID, text string) (*SendResult, error) {
	const op = "ConversationService.Send"

	text = strings.TrimSpace(text)
	if userID == "" || conversationID == "" || text == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "conversation_id and message are required", nil)
	}

	release, err := s.guard.acquire(ctx, op, conversationID)
	if err != nil {
		return nil, err
	}
	defer release()

	conv, err := s.load(ctx, op, userID, conversationID)
	if err != nil {
		return nil, err
	}
	if conv.Flow != flow {
		return nil, utils.E(utils.CodeInvalidArgument, op, "conversation is not a "+string(flow)+" conversation", nil)
	}
	if conv.Completed {
		return nil, utils.E(utils.CodeInvalidState, op, "conversation is already completed", nil)
	}

	var profile map[string]any
	if flow == models.FlowProfileUpdate {
		if profile, err = s.currentProfile(ctx, op, userID); err != nil {
			return nil, err
		}
	}

	// A retry after a failed generation finds its own message still last.
	if !pendingUserMessage(conv, text) {
		if err := s.convos.AppendMessages(ctx, conv, newMessage(models.RoleUserMsg, text)); err != nil {
			return nil, storeError(op, err)
		}
	}

	transcript := conv.Transcript()
	reply, err := s.coach.Reply(ctx, flow, transcript, profile)
	if err != nil {
		return nil, utils.Pass(utils.CodeUnavailable, op, "failed to generate reply", err)
	}

	log := s.log.WithFields(logrus.Fields{
		"conversation_id": conv.ID,
		"user_id":         userID,
		"flow":            flow,
	})

	if !reply.Complete {
		if reply.Text == "" {
			return nil, utils.E(utils.CodeUnavailable, op, "generation service returned an empty reply", nil)
		}
		if err := s.convos.AppendMessages(ctx, conv, newMessage(models.RoleAssistantMsg, reply.Text)); err != nil {
			return nil, storeError(op, err)
		}
		return &SendResult{Conversation: conv, Reply: reply.Text}, nil
	}

	final := reply.Text
	if final == "" {
		final = coach.ClosingLine(flow)
	}
	res := &SendResult{Conversation: conv, Reply: final, Completed: true}

	var (
		extracted []byte
		newProf   *models.Profile
	)
	switch flow {
	case models.FlowIntake:
		doc, err := s.coach.ExtractProfile(ctx, transcript)
		if err != nil {
			log.WithError(err).Warn("profile extraction failed, conversation stays active")
			return nil, utils.Pass(utils.CodeExtractionFailed, op, "failed to extract profile", err)
		}
		if extracted, err = json.Marshal(doc); err != nil {
			return nil, utils.E(utils.CodeInternal, op, "failed to encode profile", err)
		}
		newProf = &models.Profile{UserID: userID, ConversationID: conv.ID, Data: extracted}
		res.Profile = doc
	case models.FlowProfileUpdate:
		cs, err := s.coach.ExtractChanges(ctx, transcript, profile)
		if err != nil {
			log.WithError(err).Warn("change extraction failed, conversation stays active")
			return nil, utils.Pass(utils.CodeExtractionFailed, op, "failed to extract profile changes", err)
		}
		if extracted, err = json.Marshal(cs); err != nil {
			return nil, utils.E(utils.CodeInternal, op, "failed to encode change set", err)
		}
		res.ChangeSet = cs
	}

	if newProf != nil {
		unlock, err := s.guard.acquire(ctx, op, profileLockKey(userID))
		if err != nil {
			return nil, err
		}
		defer unlock()
	}
	if err := s.convos.Complete(ctx, conv, newMessage(models.RoleAssistantMsg, final), extracted, newProf); err != nil {
		return nil, storeError(op, err)
	}
	if newProf != nil {
		s.profiles.Invalidate(ctx, userID)
	}

	log.Info("conversation completed")
	return res, nil
}

func (s *conversationService) Get(ctx context.Context, userID, conversationID string) (*models.Conversation, error) {
	const op = "ConversationService.Get"

	if userID == "" || conversationID == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "conversation_id is required", nil)
	}
	return s.load(ctx, op, userID, conversationID)
}

func (s *conversationService) load(ctx context.Context, op, userID, conversationID string) (*models.Conversation, error) {
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
	return conv, nil
}

func (s *conversationService) currentProfile(ctx context.Context, op, userID string) (map[string]any, error) {
	p, err := s.profiles.GetCurrent(ctx, userID)
	if err != nil {
		return nil, err
	}
	return profileData(op, p)
}

func newMessage(role, content string) models.Message {
	return models.Message{Role: role, Content: content, Timestamp: time.Now().UTC()}
}

func pendingUserMessage(c *models.Conversation, text string) bool {
	n := len(c.Messages)
	return n > 0 && c.Messages[n-1].Role == models.RoleUserMsg && c.Messages[n-1].Content == text
}

func storeError(op string, err error) error {
	if errors.Is(err, utils.ErrConflict) {
		return utils.E(utils.CodeConflict, op, "conversation was modified concurrently, retry", err)
	}
	return utils.E(utils.CodeInternal, op, "failed to store conversation", err)
}
