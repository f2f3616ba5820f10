// Package memstore is an in-process store for links, achievements and
// notifications. Its click counter only supports compare-and-swap, so
// callers must retry on conflict.
package memstore

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/sundayezeilo/shortly/internal/achievements"
	"github.com/sundayezeilo/shortly/internal/errx"
	"github.com/sundayezeilo/shortly/internal/links"
	"github.com/sundayezeilo/shortly/internal/notifications"
)

type awardKey struct {
	userID string
	key    string
}

// Store is safe for concurrent use.
type Store struct {
	mu            sync.RWMutex
	links         map[string]links.Link
	awards        map[awardKey]achievements.UserAchievement
	definitions   map[string]achievements.Definition
	profiles      map[string]any
	notifications []notifications.Notification
	now           func() time.Time
}

// New returns an empty store seeded with the default achievement catalog.
func New() *Store {
	s := &Store{
		links:       make(map[string]links.Link),
		awards:      make(map[awardKey]achievements.UserAchievement),
		definitions: make(map[string]achievements.Definition),
		profiles:    make(map[string]any),
		now:         time.Now,
	}
	for _, d := range DefaultDefinitions {
		s.definitions[d.ID] = d
	}
	return s
}

// DefaultDefinitions mirrors the catalog seeded by the SQL migrations.
var DefaultDefinitions = []achievements.Definition{
	{ID: "A1", Name: "Rising Star"},
	{ID: "A2", Name: "Crowd Pleaser"},
	{ID: "A3", Name: "Gone Viral"},
	{ID: "A4", Name: "Legend"},
}

func notFound(op, what string) error {
	return errx.E(op, errx.NotFound, errors.New(what+" not found"))
}

/*** Links ***/

// CreateLink stores link, failing with Conflict when the code is taken.
func (s *Store) CreateLink(ctx context.Context, link links.Link) (links.Link, error) {
	const op = "memstore.CreateLink"
	if err := ctx.Err(); err != nil {
		return links.Link{}, errx.E(op, errx.Unavailable, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.links[link.Code]; exists {
		return links.Link{}, errx.E(op, errx.Conflict, errors.New("code already exists"))
	}
	if link.CreatedAt.IsZero() {
		link.CreatedAt = s.now().UTC()
	}
	s.links[link.Code] = link
	return link, nil
}

// GetLink returns the link for code, active or not.
func (s *Store) GetLink(ctx context.Context, code string) (links.Link, error) {
	const op = "memstore.GetLink"
	if err := ctx.Err(); err != nil {
		return links.Link{}, errx.E(op, errx.Unavailable, err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	link, ok := s.links[code]
	if !ok {
		return links.Link{}, notFound(op, "link")
	}
	return link, nil
}

// SetClicksIf swaps an active link's counter from expected to next.
func (s *Store) SetClicksIf(ctx context.Context, code string, expected, next int64) (bool, error) {
	const op = "memstore.SetClicksIf"
	if err := ctx.Err(); err != nil {
		return false, errx.E(op, errx.Unavailable, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	link, ok := s.links[code]
	if !ok || !link.IsActive {
		return false, notFound(op, "link")
	}
	if link.Clicks != expected {
		return false, nil
	}
	link.Clicks = next
	s.links[code] = link
	return true, nil
}

// SetActive enables or disables a link.
func (s *Store) SetActive(ctx context.Context, code string, active bool) (links.Link, error) {
	return s.updateLink(ctx, "memstore.SetActive", code, func(l *links.Link) { l.IsActive = active })
}

// TogglePrivate flips a link's private flag.
func (s *Store) TogglePrivate(ctx context.Context, code string) (links.Link, error) {
	return s.updateLink(ctx, "memstore.TogglePrivate", code, func(l *links.Link) { l.IsPrivate = !l.IsPrivate })
}

// SetPassword stores hash, or clears protection when hash is empty.
func (s *Store) SetPassword(ctx context.Context, code, hash string) (links.Link, error) {
	return s.updateLink(ctx, "memstore.SetPassword", code, func(l *links.Link) {
		l.PasswordHash = hash
		l.IsPasswordProtected = hash != ""
	})
}

func (s *Store) updateLink(ctx context.Context, op, code string, apply func(*links.Link)) (links.Link, error) {
	if err := ctx.Err(); err != nil {
		return links.Link{}, errx.E(op, errx.Unavailable, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	link, ok := s.links[code]
	if !ok {
		return links.Link{}, notFound(op, "link")
	}
	apply(&link)
	s.links[code] = link
	return link, nil
}

// ListByOwner returns ownerID's links, newest first.
func (s *Store) ListByOwner(ctx context.Context, ownerID string) ([]links.Link, error) {
	return s.listLinks(ctx, "memstore.ListByOwner", 0, func(l links.Link) bool { return l.OwnedBy(ownerID) })
}

// ListPublic returns up to limit active, non-private links, newest first.
func (s *Store) ListPublic(ctx context.Context, limit int) ([]links.Link, error) {
	return s.listLinks(ctx, "memstore.ListPublic", limit, func(l links.Link) bool { return l.IsActive && !l.IsPrivate })
}

func (s *Store) listLinks(ctx context.Context, op string, limit int, keep func(links.Link) bool) ([]links.Link, error) {
	if err := ctx.Err(); err != nil {
		return nil, errx.E(op, errx.Unavailable, err)
	}

	s.mu.RLock()
	out := make([]links.Link, 0)
	for _, l := range s.links {
		if keep(l) {
			out = append(out, l)
		}
	}
	s.mu.RUnlock()

	slices.SortFunc(out, func(a, b links.Link) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.Code, b.Code)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

/*** Achievements ***/

// GetUserAchievement looks up an award by its code#id key.
func (s *Store) GetUserAchievement(ctx context.Context, userID, key string) (achievements.UserAchievement, bool, error) {
	const op = "memstore.GetUserAchievement"
	if err := ctx.Err(); err != nil {
		return achievements.UserAchievement{}, false, errx.E(op, errx.Unavailable, err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	ua, ok := s.awards[awardKey{userID, key}]
	return ua, ok, nil
}

// PutUserAchievement records ua unless the key is already awarded, and
// reports whether it did.
func (s *Store) PutUserAchievement(ctx context.Context, ua achievements.UserAchievement) (bool, error) {
	const op = "memstore.PutUserAchievement"
	if err := ctx.Err(); err != nil {
		return false, errx.E(op, errx.Unavailable, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	k := awardKey{ua.UserID, ua.Key}
	if _, exists := s.awards[k]; exists {
		return false, nil
	}
	s.awards[k] = ua
	return true, nil
}

// GetAchievementDefinition returns the catalog entry for achievementID.
func (s *Store) GetAchievementDefinition(ctx context.Context, achievementID string) (achievements.Definition, error) {
	const op = "memstore.GetAchievementDefinition"
	if err := ctx.Err(); err != nil {
		return achievements.Definition{}, errx.E(op, errx.Unavailable, err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	def, ok := s.definitions[achievementID]
	if !ok {
		return achievements.Definition{}, notFound(op, "achievement definition")
	}
	return def, nil
}

// AppendProfileAchievement appends ua to the user's profile list, creating
// the profile if needed and replacing a stored value that is not a list.
func (s *Store) AppendProfileAchievement(ctx context.Context, userID string, ua achievements.UserAchievement) error {
	const op = "memstore.AppendProfileAchievement"
	if err := ctx.Err(); err != nil {
		return errx.E(op, errx.Unavailable, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	list, ok := s.profiles[userID].([]achievements.UserAchievement)
	if !ok {
		list = nil
	}
	s.profiles[userID] = append(slices.Clone(list), ua)
	return nil
}

// ListUserAchievements returns userID's awards, newest first.
func (s *Store) ListUserAchievements(ctx context.Context, userID string) ([]achievements.UserAchievement, error) {
	const op = "memstore.ListUserAchievements"
	if err := ctx.Err(); err != nil {
		return nil, errx.E(op, errx.Unavailable, err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []achievements.UserAchievement
	for k, ua := range s.awards {
		if k.userID == userID {
			out = append(out, ua)
		}
	}
	slices.SortFunc(out, func(a, b achievements.UserAchievement) int {
		if c := b.DateEarned.Compare(a.DateEarned); c != 0 {
			return c
		}
		if a.Key < b.Key {
			return -1
		}
		if a.Key > b.Key {
			return 1
		}
		return 0
	})
	return out, nil
}

// SetProfileAchievements stores raw as the user's profile achievements
// value, whatever its shape.
func (s *Store) SetProfileAchievements(userID string, raw any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[userID] = raw
}

// ProfileAchievements returns the user's profile achievements value and
// whether the profile exists.
func (s *Store) ProfileAchievements(userID string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.profiles[userID]
	return v, ok
}

// AwardCount returns how many achievements are recorded for userID.
func (s *Store) AwardCount(userID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for k := range s.awards {
		if k.userID == userID {
			n++
		}
	}
	return n
}

/*** Notifications ***/

// PutNotification appends n to the inbox.
func (s *Store) PutNotification(ctx context.Context, n notifications.Notification) error {
	const op = "memstore.PutNotification"
	if err := ctx.Err(); err != nil {
		return errx.E(op, errx.Unavailable, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.notifications = append(s.notifications, n)
	return nil
}

// HasUnread reports whether userID has any unread notification.
func (s *Store) HasUnread(ctx context.Context, userID string) (bool, error) {
	const op = "memstore.HasUnread"
	if err := ctx.Err(); err != nil {
		return false, errx.E(op, errx.Unavailable, err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, n := range s.notifications {
		if n.ToUserID == userID && !n.IsRead {
			return true, nil
		}
	}
	return false, nil
}

// MarkAllRead marks userID's notifications read and returns how many changed.
func (s *Store) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	const op = "memstore.MarkAllRead"
	if err := ctx.Err(); err != nil {
		return 0, errx.E(op, errx.Unavailable, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var updated int64
	for i := range s.notifications {
		if s.notifications[i].ToUserID == userID && !s.notifications[i].IsRead {
			s.notifications[i].IsRead = true
			updated++
		}
	}
	return updated, nil
}

// ListForUser returns userID's notifications created at or after since,
// newest first.
func (s *Store) ListForUser(ctx context.Context, userID string, since time.Time) ([]notifications.Notification, error) {
	const op = "memstore.ListForUser"
	if err := ctx.Err(); err != nil {
		return nil, errx.E(op, errx.Unavailable, err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []notifications.Notification
	for _, n := range s.notifications {
		if n.ToUserID != userID {
			continue
		}
		if n.Status == notifications.StatusPending || n.CreatedAt.After(since) {
			out = append(out, n)
		}
	}
	slices.SortStableFunc(out, func(a, b notifications.Notification) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return out, nil
}

// Notifications returns a copy of every stored notification for userID.
func (s *Store) Notifications(userID string) []notifications.Notification {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []notifications.Notification
	for _, n := range s.notifications {
		if n.ToUserID == userID {
			out = append(out, n)
		}
	}
	return out
}
