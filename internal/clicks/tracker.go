// Package clicks counts link visits and unlocks milestone achievements for
// link owners.
package clicks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sundayezeilo/shortly/internal/achievements"
	"github.com/sundayezeilo/shortly/internal/errx"
	"github.com/sundayezeilo/shortly/internal/idgen"
	"github.com/sundayezeilo/shortly/internal/links"
	"github.com/sundayezeilo/shortly/internal/notifications"
)

// DefaultMaxIncrementRetries bounds the compare-and-swap loop.
const DefaultMaxIncrementRetries = 5

// ErrIncrementConflict is the cause of an errx.Exhausted error from
// HandleClick.
var ErrIncrementConflict = errors.New("click counter kept changing underneath the update")

// Outcome is the result of one click.
type Outcome struct {
	Code string
	// DestinationURL is empty when PasswordRequired is set.
	DestinationURL   string
	PasswordRequired bool
	// Counted is false for an owner's own click.
	Counted bool
	// Clicks is the counter after this click.
	Clicks int64
	// Unlocked lists the achievements this click awarded.
	Unlocked []string
}

// Tracker handles clicks on short links.
type Tracker struct {
	links      LinkStore
	atomic     AtomicCounter
	cas        ConditionalCounter
	profiles   ProfileStore
	sink       NotificationSink
	ids        idgen.Generator
	logger     *slog.Logger
	now        func() time.Time
	maxRetries int
	milestones []achievements.Milestone
}

// TrackerConfig wires a Tracker. Links, Profiles and Notifications are
// required; the rest have defaults.
type TrackerConfig struct {
	Links               LinkStore
	Profiles            ProfileStore
	Notifications       NotificationSink
	IDGenerator         idgen.Generator
	Logger              *slog.Logger
	Now                 func() time.Time
	MaxIncrementRetries int
	Milestones          []achievements.Milestone
}

// NewTracker creates a Tracker. The link store's atomic increment is used
// when available; otherwise it must support conditional writes.
func NewTracker(cfg TrackerConfig) (*Tracker, error) {
	if cfg.Links == nil || cfg.Profiles == nil || cfg.Notifications == nil {
		return nil, errors.New("clicks: links, profiles and notifications stores are required")
	}

	t := &Tracker{
		links:      cfg.Links,
		profiles:   cfg.Profiles,
		sink:       cfg.Notifications,
		ids:        cfg.IDGenerator,
		logger:     cfg.Logger,
		now:        cfg.Now,
		maxRetries: cfg.MaxIncrementRetries,
		milestones: cfg.Milestones,
	}

	if a, ok := cfg.Links.(AtomicCounter); ok {
		t.atomic = a
	} else if c, ok := cfg.Links.(ConditionalCounter); ok {
		t.cas = c
	} else {
		return nil, fmt.Errorf("clicks: link store %T supports neither atomic nor conditional increments", cfg.Links)
	}

	if t.ids == nil {
		t.ids = idgen.NewV7()
	}
	if t.logger == nil {
		t.logger = slog.Default()
	}
	if t.now == nil {
		t.now = time.Now
	}
	if t.maxRetries <= 0 {
		t.maxRetries = DefaultMaxIncrementRetries
	}
	if t.milestones == nil {
		t.milestones = achievements.Milestones
	}
	return t, nil
}

// HandleClick records a click on code by clickerID (empty for anonymous
// visitors) and reports where to send the visitor. Owners clicking their
// own links are not counted. Achievement side effects never fail a click.
func (t *Tracker) HandleClick(ctx context.Context, code, clickerID string) (Outcome, error) {
	const op = "clicks.tracker.HandleClick"

	if code == "" {
		return Outcome{}, errx.E(op, errx.Invalid, errors.New("link code is required"))
	}

	link, err := t.links.GetLink(ctx, code)
	if err != nil {
		return Outcome{}, storeError(op, err)
	}
	if !link.IsActive {
		return Outcome{}, errx.E(op, errx.NotFound, errors.New("link is not active"))
	}

	out := Outcome{Code: link.Code, Clicks: link.Clicks}

	if !link.OwnedBy(clickerID) {
		clicks, err := t.increment(ctx, link)
		if err != nil {
			return Outcome{}, errx.Wrap(op, err)
		}
		out.Counted = true
		out.Clicks = clicks

		if link.HasOwner() {
			out.Unlocked = t.checkMilestones(ctx, link, clicks)
		}
	}

	if link.IsPasswordProtected {
		out.PasswordRequired = true
	} else {
		out.DestinationURL = link.DestinationURL
	}
	return out, nil
}

func (t *Tracker) increment(ctx context.Context, link links.Link) (int64, error) {
	const op = "clicks.tracker.increment"

	if t.atomic != nil {
		clicks, err := t.atomic.IncrementClicks(ctx, link.Code)
		if err != nil {
			return 0, storeError(op, err)
		}
		return clicks, nil
	}

	expected := link.Clicks
	for attempt := 1; attempt <= t.maxRetries; attempt++ {
		swapped, err := t.cas.SetClicksIf(ctx, link.Code, expected, expected+1)
		if err != nil {
			return 0, storeError(op, err)
		}
		if swapped {
			return expected + 1, nil
		}

		t.logger.DebugContext(ctx, "click counter changed, retrying",
			"code", link.Code,
			"attempt", attempt,
		)

		fresh, err := t.links.GetLink(ctx, link.Code)
		if err != nil {
			return 0, storeError(op, err)
		}
		if !fresh.IsActive {
			return 0, errx.E(op, errx.NotFound, errors.New("link is not active"))
		}
		expected = fresh.Clicks
	}

	return 0, errx.E(op, errx.Exhausted,
		fmt.Errorf("%w after %d attempts", ErrIncrementConflict, t.maxRetries))
}

// checkMilestones unlocks every milestone at or below clicks and returns the
// IDs newly awarded. Failures are logged, not returned.
func (t *Tracker) checkMilestones(ctx context.Context, link links.Link, clicks int64) []string {
	var unlocked []string
	for _, m := range achievements.Reached(t.milestones, clicks) {
		if err := ctx.Err(); err != nil {
			t.logger.WarnContext(ctx, "skipping achievement check, request cancelled",
				"code", link.Code,
				"clicks", clicks,
				"error", err.Error(),
			)
			break
		}

		awarded, err := t.unlock(ctx, link, m)
		if err != nil {
			t.logger.WarnContext(ctx, "achievement unlock failed",
				"code", link.Code,
				"owner_id", link.OwnerID,
				"achievement_id", m.AchievementID,
				"error", err.Error(),
			)
			continue
		}
		if awarded {
			unlocked = append(unlocked, m.AchievementID)
		}
	}
	return unlocked
}

// unlock awards m to the link owner at most once. It returns an error only
// when the award could not be recorded; profile and notification failures
// are logged and the award stands.
func (t *Tracker) unlock(ctx context.Context, link links.Link, m achievements.Milestone) (bool, error) {
	const op = "clicks.tracker.unlock"

	key := achievements.Key(link.Code, m.AchievementID)
	logger := t.logger.With(
		"code", link.Code,
		"owner_id", link.OwnerID,
		"achievement_id", m.AchievementID,
	)

	if _, found, err := t.profiles.GetUserAchievement(ctx, link.OwnerID, key); err != nil {
		return false, storeError(op, err)
	} else if found {
		return false, nil
	}

	name := achievements.FallbackName(m.AchievementID)
	if def, err := t.profiles.GetAchievementDefinition(ctx, m.AchievementID); err != nil {
		logger.WarnContext(ctx, "achievement definition unavailable, using fallback name",
			"step", "definition",
			"error", err.Error(),
		)
	} else if def.Name != "" {
		name = def.Name
	}

	ua := achievements.UserAchievement{
		UserID:        link.OwnerID,
		Key:           key,
		AchievementID: m.AchievementID,
		LinkID:        link.Code,
		LinkName:      link.Name,
		DateEarned:    t.now().UTC(),
	}

	created, err := t.profiles.PutUserAchievement(ctx, ua)
	if err != nil {
		return false, storeError(op, err)
	}
	if !created {
		return false, nil
	}

	logger.InfoContext(ctx, "achievement unlocked", "threshold", m.Threshold)

	if err := t.profiles.AppendProfileAchievement(ctx, link.OwnerID, ua); err != nil {
		logger.WarnContext(ctx, "failed to add achievement to profile",
			"step", "profile",
			"error", err.Error(),
		)
	}

	if err := t.notify(ctx, link, m, name); err != nil {
		logger.WarnContext(ctx, "failed to send achievement notification",
			"step", "notification",
			"error", err.Error(),
		)
	}
	return true, nil
}

func (t *Tracker) notify(ctx context.Context, link links.Link, m achievements.Milestone, name string) error {
	id, err := t.ids.Generate()
	if err != nil {
		return fmt.Errorf("generate notification id: %w", err)
	}
	return t.sink.PutNotification(ctx, notifications.Notification{
		ID:        id,
		ToUserID:  link.OwnerID,
		LinkID:    link.Code,
		Text:      fmt.Sprintf("Your link %q reached %d clicks and earned the %q achievement!", link.DisplayName(), m.Threshold, name),
		CreatedAt: t.now().UTC(),
	})
}

// storeError wraps a store failure. Errors that carry no kind are treated
// as the store being unavailable.
func storeError(op string, err error) error {
	kind := errx.KindOf(err)
	if kind == errx.Unknown {
		kind = errx.Unavailable
	}
	return errx.E(op, kind, err)
}
