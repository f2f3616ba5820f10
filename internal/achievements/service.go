package achievements

import (
	"context"
	"errors"
	"strings"

	"github.com/sundayezeilo/shortly/internal/errx"
)

// Lister is the read side of Repository used by Service.
type Lister interface {
	ListUserAchievements(ctx context.Context, userID string) ([]UserAchievement, error)
}

// Service exposes a user's achievements.
type Service interface {
	ListForUser(ctx context.Context, userID string) ([]UserAchievement, error)
}

type service struct {
	repo Lister
}

// NewService creates a new service instance.
func NewService(repo Lister) Service {
	return &service{repo: repo}
}

func (s *service) ListForUser(ctx context.Context, userID string) ([]UserAchievement, error) {
	const op = "achievements.service.ListForUser"

	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, errx.E(op, errx.Invalid, errors.New("user id cannot be empty"))
	}

	list, err := s.repo.ListUserAchievements(ctx, userID)
	if err != nil {
		return nil, errx.Wrap(op, err)
	}
	if list == nil {
		list = []UserAchievement{}
	}
	return list, nil
}
