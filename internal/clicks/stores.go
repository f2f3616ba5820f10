package clicks

import (
	"context"

	"github.com/sundayezeilo/shortly/internal/achievements"
	"github.com/sundayezeilo/shortly/internal/links"
	"github.com/sundayezeilo/shortly/internal/notifications"
)

// LinkStore resolves links by code. A LinkStore must also implement
// AtomicCounter or ConditionalCounter.
type LinkStore interface {
	GetLink(ctx context.Context, code string) (links.Link, error)
}

// AtomicCounter adds one to an active link's counter and returns the new
// value in a single indivisible step.
type AtomicCounter interface {
	IncrementClicks(ctx context.Context, code string) (int64, error)
}

// ConditionalCounter sets the counter to next only if it still equals
// expected, reporting whether the swap happened.
type ConditionalCounter interface {
	SetClicksIf(ctx context.Context, code string, expected, next int64) (bool, error)
}

// ProfileStore holds earned achievements and user profiles.
type ProfileStore interface {
	GetUserAchievement(ctx context.Context, userID, key string) (achievements.UserAchievement, bool, error)
	// PutUserAchievement inserts ua if absent and reports whether this call
	// created it.
	PutUserAchievement(ctx context.Context, ua achievements.UserAchievement) (bool, error)
	GetAchievementDefinition(ctx context.Context, achievementID string) (achievements.Definition, error)
	AppendProfileAchievement(ctx context.Context, userID string, ua achievements.UserAchievement) error
}

// NotificationSink delivers notifications.
type NotificationSink interface {
	PutNotification(ctx context.Context, n notifications.Notification) error
}
