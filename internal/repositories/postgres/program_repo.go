package postgres

import (
	"context"
	"errors"

	"github.com/yoockh/fitcoach/internal/models"
	"github.com/yoockh/fitcoach/internal/utils"
	"gorm.io/gorm"
)

type ProgramRepository interface {
	// Create stores p as the user's only active program.
	Create(ctx context.Context, p *models.Program) error
	GetActive(ctx context.Context, userID string) (*models.Program, error)
	GetByID(ctx context.Context, id string) (*models.Program, error)
	ListByUser(ctx context.Context, userID string, limit int) ([]models.Program, error)
}

type programRepo struct {
	db *gorm.DB
}

func NewProgramRepo(db *gorm.DB) ProgramRepository {
	return &programRepo{db: db}
}

func (r *programRepo) Create(ctx context.Context, p *models.Program) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.Program{}).
			Where("user_id = ? AND is_active", p.UserID).
			Update("is_active", false).Error; err != nil {
			return err
		}
		p.IsActive = true
		return tx.Create(p).Error
	})
}

func (r *programRepo) GetActive(ctx context.Context, userID string) (*models.Program, error) {
	var p models.Program
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND is_active", userID).
		Order("created_at DESC").
		Take(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, utils.ErrNotFound
	}
	return &p, err
}

func (r *programRepo) GetByID(ctx context.Context, id string) (*models.Program, error) {
	var p models.Program
	err := r.db.WithContext(ctx).Where("id = ?", id).Take(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, utils.ErrNotFound
	}
	return &p, err
}

func (r *programRepo) ListByUser(ctx context.Context, userID string, limit int) ([]models.Program, error) {
	if limit <= 0 {
		limit = 20
	}
	var rows []models.Program
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}
