package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/yoockh/fitcoach/internal/models"
	"github.com/yoockh/fitcoach/internal/utils"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ProfileRepository interface {
	GetByUserID(ctx context.Context, userID string) (*models.Profile, error)
	Upsert(ctx context.Context, p *models.Profile) error
	// ApplyUpdate replaces the profile and marks the update conversation
	// applied, atomically. p.Version must be the version that was read;
	// utils.ErrStale if the profile moved on since, utils.ErrConflict if the
	// conversation was applied already. On success p.Version is the new one.
	ApplyUpdate(ctx context.Context, p *models.Profile, conversationID string, at time.Time) error
}

type profileRepo struct {
	db *gorm.DB
}

func NewProfileRepo(db *gorm.DB) ProfileRepository {
	return &profileRepo{db: db}
}

func (r *profileRepo) GetByUserID(ctx context.Context, userID string) (*models.Profile, error) {
	var p models.Profile
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Take(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, utils.ErrNotFound
	}
	return &p, err
}

func (r *profileRepo) Upsert(ctx context.Context, p *models.Profile) error {
	return upsertProfile(r.db.WithContext(ctx), p)
}

func (r *profileRepo) ApplyUpdate(ctx context.Context, p *models.Profile, conversationID string, at time.Time) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Conversation{}).
			Where("id = ? AND applied_at IS NULL", conversationID).
			Updates(map[string]any{"applied_at": at, "updated_at": at})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return utils.ErrConflict
		}
		upd := tx.Model(&models.Profile{}).
			Where("user_id = ? AND version = ?", p.UserID, p.Version).
			Updates(map[string]any{
				"conversation_id": p.ConversationID,
				"data":            p.Data,
				"version":         gorm.Expr("version + 1"),
				"updated_at":      at,
			})
		if upd.Error != nil {
			return upd.Error
		}
		if upd.RowsAffected == 0 {
			return utils.ErrStale
		}
		p.Version++
		p.UpdatedAt = at
		return nil
	})
}

func upsertProfile(db *gorm.DB, p *models.Profile) error {
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = time.Now().UTC()
	}
	return db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.Assignments(map[string]any{
			"conversation_id": p.ConversationID,
			"data":            p.Data,
			"updated_at":      p.UpdatedAt,
			"version":         gorm.Expr("profiles.version + 1"),
		}),
	}).Create(p).Error
}
