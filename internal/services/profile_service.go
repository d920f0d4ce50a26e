package services

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/yoockh/fitcoach/internal/cache"
	"github.com/yoockh/fitcoach/internal/merge"
	"github.com/yoockh/fitcoach/internal/models"
	pgrepo "github.com/yoockh/fitcoach/internal/repositories/postgres"
	"github.com/yoockh/fitcoach/internal/utils"
)

type ProfileService interface {
	GetCurrent(ctx context.Context, userID string) (*models.Profile, error)
	// Invalidate drops the cached profile; call after every profile write.
	Invalidate(ctx context.Context, userID string)
}

type profileService struct {
	profiles pgrepo.ProfileRepository
	cache    cache.Cache
	ttl      time.Duration
	log      logrus.FieldLogger
}

func NewProfileService(profiles pgrepo.ProfileRepository, c cache.Cache, ttl time.Duration, log logrus.FieldLogger) ProfileService {
	if c == nil {
		c = cache.Nop{}
	}
	return &profileService{profiles: profiles, cache: c, ttl: ttl, log: log}
}

func (s *profileService) GetCurrent(ctx context.Context, userID string) (*models.Profile, error) {
	const op = "ProfileService.GetCurrent"

	if userID == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "user_id is required", nil)
	}

	key := cache.ProfileKey(userID)
	var cached models.Profile
	if hit, err := s.cache.GetJSON(ctx, key, &cached); err != nil {
		s.log.WithError(err).Warn("profile cache read failed")
	} else if hit {
		return &cached, nil
	}

	p, err := s.profiles.GetByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, utils.ErrNotFound) {
			return nil, utils.E(utils.CodeNotFound, op, "profile not found, complete the intake first", err)
		}
		return nil, utils.E(utils.CodeInternal, op, "failed to get profile", err)
	}

	if s.ttl > 0 {
		if err := s.cache.SetJSON(ctx, key, p, s.ttl); err != nil {
			s.log.WithError(err).Warn("profile cache write failed")
		}
	}
	return p, nil
}

func (s *profileService) Invalidate(ctx context.Context, userID string) {
	if err := s.cache.Del(ctx, cache.ProfileKey(userID)); err != nil {
		s.log.WithError(err).WithField("user_id", userID).Warn("profile cache invalidation failed")
	}
}

// profileData decodes the stored profile document.
func profileData(op string, p *models.Profile) (map[string]any, error) {
	doc, err := merge.Decode(p.Data)
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "stored profile is not a json object", err)
	}
	return doc, nil
}
