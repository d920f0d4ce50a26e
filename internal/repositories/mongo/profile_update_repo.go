package mongo

import (
	"context"
	"time"

	"github.com/yoockh/fitcoach/internal/models"
	"github.com/yoockh/fitcoach/internal/utils"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ProfileUpdateRepository is the append-only audit log of applied profile
// updates. Only the regeneration fields change after insert.
type ProfileUpdateRepository interface {
	Insert(ctx context.Context, u *models.ProfileUpdate) error
	MarkRegenerated(ctx context.Context, updateID, programID string, at time.Time) error
	ListByUser(ctx context.Context, userID string, limit int64) ([]models.ProfileUpdate, error)
}

type profileUpdateRepo struct {
	col *mongo.Collection
}

func NewProfileUpdateRepo(db *mongo.Database) ProfileUpdateRepository {
	return &profileUpdateRepo{col: db.Collection("profile_updates")}
}

func (r *profileUpdateRepo) Insert(ctx context.Context, u *models.ProfileUpdate) error {
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	_, err := r.col.InsertOne(ctx, u)
	if mongo.IsDuplicateKeyError(err) {
		return utils.ErrConflict
	}
	return err
}

func (r *profileUpdateRepo) MarkRegenerated(ctx context.Context, updateID, programID string, at time.Time) error {
	res, err := r.col.UpdateOne(ctx,
		bson.M{"update_id": updateID},
		bson.M{"$set": bson.M{
			"programs_regenerated": true,
			"program_id":           programID,
			"regenerated_at":       at.UTC(),
		}},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return utils.ErrNotFound
	}
	return nil
}

func (r *profileUpdateRepo) ListByUser(ctx context.Context, userID string, limit int64) ([]models.ProfileUpdate, error) {
	if limit <= 0 {
		limit = 20
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetLimit(limit)

	cur, err := r.col.Find(ctx, bson.M{"user_id": userID}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []models.ProfileUpdate
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}
