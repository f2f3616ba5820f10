package notifications

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/sundayezeilo/shortly/internal/errx"
)

// DefaultWindow is how far back Recent looks for plain notifications.
const DefaultWindow = 7 * 24 * time.Hour

// Service reads and acknowledges a user's notifications.
type Service interface {
	HasUnread(ctx context.Context, userID string) (bool, error)
	MarkAllRead(ctx context.Context, userID string) (int64, error)
	Recent(ctx context.Context, userID string) (Inbox, error)
}

type service struct {
	repo   Repository
	window time.Duration
	now    func() time.Time
}

// ServiceConfig holds configuration for the service.
type ServiceConfig struct {
	Window time.Duration
	Now    func() time.Time
}

// NewService creates a new service instance.
func NewService(repo Repository, config *ServiceConfig) Service {
	if config == nil {
		config = &ServiceConfig{}
	}
	window := config.Window
	if window <= 0 {
		window = DefaultWindow
	}
	now := config.Now
	if now == nil {
		now = time.Now
	}
	return &service{repo: repo, window: window, now: now}
}

func validUser(op, userID string) (string, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return "", errx.E(op, errx.Invalid, errors.New("userId is required"))
	}
	return userID, nil
}

func (s *service) HasUnread(ctx context.Context, userID string) (bool, error) {
	const op = "notifications.service.HasUnread"

	userID, err := validUser(op, userID)
	if err != nil {
		return false, err
	}
	unread, err := s.repo.HasUnread(ctx, userID)
	if err != nil {
		return false, errx.Wrap(op, err)
	}
	return unread, nil
}

func (s *service) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	const op = "notifications.service.MarkAllRead"

	userID, err := validUser(op, userID)
	if err != nil {
		return 0, err
	}
	n, err := s.repo.MarkAllRead(ctx, userID)
	if err != nil {
		return 0, errx.Wrap(op, err)
	}
	return n, nil
}

// Recent returns all pending requests and the plain notifications of the
// last window.
func (s *service) Recent(ctx context.Context, userID string) (Inbox, error) {
	const op = "notifications.service.Recent"

	userID, err := validUser(op, userID)
	if err != nil {
		return Inbox{}, err
	}

	list, err := s.repo.ListForUser(ctx, userID, s.now().Add(-s.window))
	if err != nil {
		return Inbox{}, errx.Wrap(op, err)
	}

	inbox := Inbox{Pending: []Notification{}, Other: []Notification{}}
	for _, n := range list {
		if n.Status == StatusPending {
			inbox.Pending = append(inbox.Pending, n)
		} else {
			inbox.Other = append(inbox.Other, n)
		}
	}
	return inbox, nil
}
