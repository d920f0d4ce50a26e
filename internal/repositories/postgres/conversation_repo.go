package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/yoockh/fitcoach/internal/models"
	"github.com/yoockh/fitcoach/internal/utils"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ConversationRepo persists conversations. Every mutation is conditioned on
// the caller's Version and bumps it; a stale version yields utils.ErrConflict.
// On success the passed conversation is updated in place.
type ConversationRepo interface {
	// Create returns utils.ErrConflict when the user already has an open
	// conversation of the same flow.
	Create(ctx context.Context, c *models.Conversation) error
	GetByID(ctx context.Context, id string) (*models.Conversation, error)
	FindActive(ctx context.Context, userID string, flow models.Flow) (*models.Conversation, error)
	AppendMessages(ctx context.Context, c *models.Conversation, msgs ...models.Message) error
	// Complete appends the final reply, stores the extracted payload and
	// closes the conversation. A non-nil profile is upserted in the same
	// transaction.
	Complete(ctx context.Context, c *models.Conversation, reply models.Message, extracted []byte, profile *models.Profile) error
}

type conversationRepo struct {
	db *gorm.DB
}

func NewConversationRepo(db *gorm.DB) ConversationRepo {
	return &conversationRepo{db: db}
}

func (r *conversationRepo) Create(ctx context.Context, c *models.Conversation) error {
	err := r.db.WithContext(ctx).Create(c).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return utils.ErrConflict
	}
	return err
}

func (r *conversationRepo) GetByID(ctx context.Context, id string) (*models.Conversation, error) {
	var row models.Conversation
	err := r.db.WithContext(ctx).Where("id = ?", id).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, utils.ErrNotFound
	}
	return &row, err
}

func (r *conversationRepo) FindActive(ctx context.Context, userID string, flow models.Flow) (*models.Conversation, error) {
	var row models.Conversation
	err := r.db.WithContext(ctx).
		Where("active_key = ?", models.ActiveKey(userID, flow)).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, utils.ErrNotFound
	}
	return &row, err
}

func (r *conversationRepo) AppendMessages(ctx context.Context, c *models.Conversation, msgs ...models.Message) error {
	next := appendCopy(c.Messages, msgs...)
	now := time.Now().UTC()

	if err := casUpdate(r.db.WithContext(ctx), c, map[string]any{
		"messages":   next,
		"version":    c.Version + 1,
		"updated_at": now,
	}); err != nil {
		return err
	}

	c.Messages = next
	c.Version++
	c.UpdatedAt = now
	return nil
}

func (r *conversationRepo) Complete(ctx context.Context, c *models.Conversation, reply models.Message, extracted []byte, profile *models.Profile) error {
	next := appendCopy(c.Messages, reply)
	now := time.Now().UTC()

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := casUpdate(tx, c, map[string]any{
			"messages":       next,
			"completed":      true,
			"extracted_data": datatypes.JSON(extracted),
			"active_key":     nil,
			"version":        c.Version + 1,
			"updated_at":     now,
		}); err != nil {
			return err
		}
		if profile == nil {
			return nil
		}
		profile.UpdatedAt = now
		return upsertProfile(tx, profile)
	})
	if err != nil {
		return err
	}

	c.Messages = next
	c.Completed = true
	c.ExtractedData = datatypes.JSON(extracted)
	c.ActiveKey = nil
	c.Version++
	c.UpdatedAt = now
	return nil
}

func casUpdate(db *gorm.DB, c *models.Conversation, fields map[string]any) error {
	res := db.Model(&models.Conversation{}).
		Where("id = ? AND version = ?", c.ID, c.Version).
		Updates(fields)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return utils.ErrConflict
	}
	return nil
}

func appendCopy(cur datatypes.JSONSlice[models.Message], msgs ...models.Message) datatypes.JSONSlice[models.Message] {
	out := make(datatypes.JSONSlice[models.Message], 0, len(cur)+len(msgs))
	out = append(out, cur...)
	return append(out, msgs...)
}
