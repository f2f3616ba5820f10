package clicks

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/sundayezeilo/shortly/internal/achievements"
	"github.com/sundayezeilo/shortly/internal/errx"
	"github.com/sundayezeilo/shortly/internal/idgen"
	"github.com/sundayezeilo/shortly/internal/links"
	"github.com/sundayezeilo/shortly/internal/memstore"
	"github.com/sundayezeilo/shortly/internal/notifications"
)

/***************
 * Fixtures
 ***************/

var clickTime = time.Date(2025, 5, 17, 9, 30, 0, 0, time.UTC)

func seed(t *testing.T, store *memstore.Store, link links.Link) {
	t.Helper()
	link.IsActive = true
	if link.DestinationURL == "" {
		link.DestinationURL = "https://example.com/" + link.Code
	}
	if _, err := store.CreateLink(context.Background(), link); err != nil {
		t.Fatalf("seed link %q: %v", link.Code, err)
	}
}

func newTestTracker(t *testing.T, cfg TrackerConfig) *Tracker {
	t.Helper()
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if cfg.Now == nil {
		cfg.Now = func() time.Time { return clickTime }
	}
	tr, err := NewTracker(cfg)
	if err != nil {
		t.Fatalf("NewTracker() unexpected error: %v", err)
	}
	return tr
}

func memTracker(t *testing.T, store *memstore.Store) *Tracker {
	return newTestTracker(t, TrackerConfig{
		Links:         store,
		Profiles:      store,
		Notifications: store,
	})
}

func clicksOf(t *testing.T, store *memstore.Store, code string) int64 {
	t.Helper()
	link, err := store.GetLink(context.Background(), code)
	if err != nil {
		t.Fatalf("GetLink(%q): %v", code, err)
	}
	return link.Clicks
}

/***************
 * Stubs
 ***************/

// profileStub delegates to a memstore unless a func field overrides the call.
type profileStub struct {
	*memstore.Store
	getFunc    func(ctx context.Context, userID, key string) (achievements.UserAchievement, bool, error)
	putFunc    func(ctx context.Context, ua achievements.UserAchievement) (bool, error)
	defFunc    func(ctx context.Context, id string) (achievements.Definition, error)
	appendFunc func(ctx context.Context, userID string, ua achievements.UserAchievement) error
}

func (p *profileStub) GetUserAchievement(ctx context.Context, userID, key string) (achievements.UserAchievement, bool, error) {
	if p.getFunc != nil {
		return p.getFunc(ctx, userID, key)
	}
	return p.Store.GetUserAchievement(ctx, userID, key)
}

func (p *profileStub) PutUserAchievement(ctx context.Context, ua achievements.UserAchievement) (bool, error) {
	if p.putFunc != nil {
		return p.putFunc(ctx, ua)
	}
	return p.Store.PutUserAchievement(ctx, ua)
}

func (p *profileStub) GetAchievementDefinition(ctx context.Context, id string) (achievements.Definition, error) {
	if p.defFunc != nil {
		return p.defFunc(ctx, id)
	}
	return p.Store.GetAchievementDefinition(ctx, id)
}

func (p *profileStub) AppendProfileAchievement(ctx context.Context, userID string, ua achievements.UserAchievement) error {
	if p.appendFunc != nil {
		return p.appendFunc(ctx, userID, ua)
	}
	return p.Store.AppendProfileAchievement(ctx, userID, ua)
}

type sinkFunc func(ctx context.Context, n notifications.Notification) error

func (f sinkFunc) PutNotification(ctx context.Context, n notifications.Notification) error {
	return f(ctx, n)
}

// atomicLinks serves links from a map and counts with IncrementClicks.
type atomicLinks struct {
	mu         sync.Mutex
	links      map[string]links.Link
	incrCalls  int
	incrementF func(ctx context.Context, code string) (int64, error)
}

func (a *atomicLinks) GetLink(_ context.Context, code string) (links.Link, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	l, ok := a.links[code]
	if !ok {
		return links.Link{}, errx.E("atomicLinks.GetLink", errx.NotFound, errors.New("no rows"))
	}
	return l, nil
}

func (a *atomicLinks) IncrementClicks(ctx context.Context, code string) (int64, error) {
	a.mu.Lock()
	a.incrCalls++
	a.mu.Unlock()
	if a.incrementF != nil {
		return a.incrementF(ctx, code)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	l := a.links[code]
	l.Clicks++
	a.links[code] = l
	return l.Clicks, nil
}

// contendedLinks never wins a compare-and-swap.
type contendedLinks struct {
	link     links.Link
	casCalls int
	getCalls int
}

func (c *contendedLinks) GetLink(context.Context, string) (links.Link, error) {
	c.getCalls++
	c.link.Clicks++
	return c.link, nil
}

func (c *contendedLinks) SetClicksIf(context.Context, string, int64, int64) (bool, error) {
	c.casCalls++
	return false, nil
}

// cancellingLinks cancels the request right after a successful swap.
type cancellingLinks struct {
	*memstore.Store
	cancel context.CancelFunc
}

func (c *cancellingLinks) SetClicksIf(ctx context.Context, code string, expected, next int64) (bool, error) {
	ok, err := c.Store.SetClicksIf(ctx, code, expected, next)
	c.cancel()
	return ok, err
}

/***************
 * Constructor
 ***************/

func TestNewTracker(t *testing.T) {
	store := memstore.New()

	t.Run("requires stores", func(t *testing.T) {
		if _, err := NewTracker(TrackerConfig{Links: store, Profiles: store}); err == nil {
			t.Error("NewTracker() without notifications should fail")
		}
	})

	t.Run("requires a counter capability", func(t *testing.T) {
		type getOnly struct{ LinkStore }
		_, err := NewTracker(TrackerConfig{Links: getOnly{store}, Profiles: store, Notifications: store})
		if err == nil || !strings.Contains(err.Error(), "neither atomic nor conditional") {
			t.Errorf("NewTracker() error = %v", err)
		}
	})

	t.Run("prefers the atomic counter", func(t *testing.T) {
		tr := newTestTracker(t, TrackerConfig{Links: &atomicLinks{}, Profiles: store, Notifications: store})
		if tr.atomic == nil || tr.cas != nil {
			t.Error("tracker should use IncrementClicks")
		}
	})

	t.Run("defaults", func(t *testing.T) {
		tr := memTracker(t, store)
		if tr.maxRetries != DefaultMaxIncrementRetries {
			t.Errorf("maxRetries = %d", tr.maxRetries)
		}
		if len(tr.milestones) != len(achievements.Milestones) {
			t.Errorf("milestones = %v", tr.milestones)
		}
	})
}

/***************
 * HandleClick
 ***************/

func TestHandleClick_CrossingMilestoneUnlocksAchievement(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	seed(t, store, links.Link{Code: "launch", OwnerID: "owner", Name: "Launch", Clicks: 24})

	out, err := memTracker(t, store).HandleClick(ctx, "launch", "")
	if err != nil {
		t.Fatalf("HandleClick() unexpected error: %v", err)
	}

	if !out.Counted || out.Clicks != 25 {
		t.Errorf("outcome = %+v, want counted at 25", out)
	}
	if out.DestinationURL != "https://example.com/launch" || out.PasswordRequired {
		t.Errorf("outcome destination = %q, passwordRequired = %v", out.DestinationURL, out.PasswordRequired)
	}
	if !slices.Equal(out.Unlocked, []string{"A1"}) {
		t.Errorf("Unlocked = %v, want [A1]", out.Unlocked)
	}
	if got := clicksOf(t, store, "launch"); got != 25 {
		t.Errorf("stored clicks = %d, want 25", got)
	}

	ua, found, _ := store.GetUserAchievement(ctx, "owner", "launch#A1")
	if !found {
		t.Fatal("achievement record missing")
	}
	if ua.LinkName != "Launch" || !ua.DateEarned.Equal(clickTime) || ua.AchievementID != "A1" {
		t.Errorf("achievement = %+v", ua)
	}

	raw, _ := store.ProfileAchievements("owner")
	if list, ok := raw.([]achievements.UserAchievement); !ok || len(list) != 1 || list[0].Key != "launch#A1" {
		t.Errorf("profile achievements = %#v", raw)
	}

	notes := store.Notifications("owner")
	if len(notes) != 1 {
		t.Fatalf("got %d notifications, want 1", len(notes))
	}
	if !strings.Contains(notes[0].Text, "Rising Star") || !strings.Contains(notes[0].Text, "Launch") {
		t.Errorf("notification text = %q", notes[0].Text)
	}
	if notes[0].LinkID != "launch" || notes[0].ID == uuid.Nil || notes[0].IsRead {
		t.Errorf("notification = %+v", notes[0])
	}
}

func TestHandleClick_OwnerClickIsNotCounted(t *testing.T) {
	store := memstore.New()
	seed(t, store, links.Link{Code: "mine", OwnerID: "owner", Clicks: 24})

	out, err := memTracker(t, store).HandleClick(context.Background(), "mine", "owner")
	if err != nil {
		t.Fatalf("HandleClick() unexpected error: %v", err)
	}
	if out.Counted || out.Clicks != 24 || len(out.Unlocked) != 0 {
		t.Errorf("outcome = %+v, want uncounted at 24", out)
	}
	if out.DestinationURL == "" {
		t.Error("owner should still be sent to the destination")
	}
	if got := clicksOf(t, store, "mine"); got != 24 {
		t.Errorf("stored clicks = %d, want 24", got)
	}
	if store.AwardCount("owner") != 0 || len(store.Notifications("owner")) != 0 {
		t.Error("owner click triggered achievements")
	}
}

func TestHandleClick_ProtectedLinkWithholdsDestination(t *testing.T) {
	store := memstore.New()
	seed(t, store, links.Link{Code: "secret", OwnerID: "owner", IsPasswordProtected: true, PasswordHash: "x", Clicks: 3})

	out, err := memTracker(t, store).HandleClick(context.Background(), "secret", "visitor")
	if err != nil {
		t.Fatalf("HandleClick() unexpected error: %v", err)
	}
	if !out.PasswordRequired || out.DestinationURL != "" {
		t.Errorf("outcome = %+v, want password required without destination", out)
	}
	if !out.Counted || clicksOf(t, store, "secret") != 4 {
		t.Error("protected link click should still be counted")
	}
}

func TestHandleClick_Errors(t *testing.T) {
	store := memstore.New()
	seed(t, store, links.Link{Code: "off", Clicks: 10})
	if _, err := store.SetActive(context.Background(), "off", false); err != nil {
		t.Fatal(err)
	}
	tr := memTracker(t, store)

	tests := []struct {
		name string
		code string
		want errx.Kind
	}{
		{"empty code", "", errx.Invalid},
		{"missing link", "ghost", errx.NotFound},
		{"inactive link", "off", errx.NotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tr.HandleClick(context.Background(), tt.code, "")
			if errx.KindOf(err) != tt.want {
				t.Fatalf("KindOf() = %v, want %v", errx.KindOf(err), tt.want)
			}
		})
	}
	if clicksOf(t, store, "off") != 10 {
		t.Error("inactive link was counted")
	}
}

func TestHandleClick_UnclassifiedStoreErrorIsUnavailable(t *testing.T) {
	counter := &atomicLinks{links: map[string]links.Link{
		"abc": {Code: "abc", IsActive: true, DestinationURL: "https://example.com"},
	}}
	counter.incrementF = func(context.Context, string) (int64, error) {
		return 0, errors.New("connection reset by peer")
	}
	store := memstore.New()
	tr := newTestTracker(t, TrackerConfig{Links: counter, Profiles: store, Notifications: store})

	_, err := tr.HandleClick(context.Background(), "abc", "")
	if errx.KindOf(err) != errx.Unavailable {
		t.Fatalf("KindOf() = %v, want Unavailable", errx.KindOf(err))
	}
}

func TestHandleClick_AnonymousLinkEarnsNothing(t *testing.T) {
	store := memstore.New()
	seed(t, store, links.Link{Code: "anon", Clicks: 24})

	out, err := memTracker(t, store).HandleClick(context.Background(), "anon", "")
	if err != nil {
		t.Fatalf("HandleClick() unexpected error: %v", err)
	}
	if out.Clicks != 25 || len(out.Unlocked) != 0 {
		t.Errorf("outcome = %+v", out)
	}
	if len(store.Notifications("")) != 0 {
		t.Error("anonymous link produced a notification")
	}
}

func TestHandleClick_AtomicCounter(t *testing.T) {
	counter := &atomicLinks{links: map[string]links.Link{
		"abc": {Code: "abc", OwnerID: "owner", IsActive: true, DestinationURL: "https://example.com", Clicks: 99},
	}}
	store := memstore.New()
	tr := newTestTracker(t, TrackerConfig{Links: counter, Profiles: store, Notifications: store})

	out, err := tr.HandleClick(context.Background(), "abc", "")
	if err != nil {
		t.Fatalf("HandleClick() unexpected error: %v", err)
	}
	if counter.incrCalls != 1 || out.Clicks != 100 {
		t.Errorf("incrCalls = %d, clicks = %d", counter.incrCalls, out.Clicks)
	}
	// A1 was never awarded, so crossing 100 awards both.
	if !slices.Equal(out.Unlocked, []string{"A1", "A2"}) {
		t.Errorf("Unlocked = %v, want [A1 A2]", out.Unlocked)
	}
	if len(store.Notifications("owner")) != 2 {
		t.Errorf("notifications = %d, want 2", len(store.Notifications("owner")))
	}
}

/***************
 * Idempotence
 ***************/

func TestHandleClick_MilestoneAwardedOnce(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	seed(t, store, links.Link{Code: "steady", OwnerID: "owner", Clicks: 24})
	tr := memTracker(t, store)

	for range 3 {
		if _, err := tr.HandleClick(ctx, "steady", "visitor"); err != nil {
			t.Fatalf("HandleClick() unexpected error: %v", err)
		}
	}

	if clicksOf(t, store, "steady") != 27 {
		t.Errorf("clicks = %d, want 27", clicksOf(t, store, "steady"))
	}
	if store.AwardCount("owner") != 1 {
		t.Errorf("awards = %d, want 1", store.AwardCount("owner"))
	}
	if len(store.Notifications("owner")) != 1 {
		t.Errorf("notifications = %d, want 1", len(store.Notifications("owner")))
	}
}

// Going from 26 to 27 re-evaluates A1 (threshold 25), but the existing award
// short-circuits it at the lookup: nothing is written and nobody is notified.
func TestHandleClick_PastMilestoneWithAwardTriggersNothing(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	seed(t, store, links.Link{Code: "done", OwnerID: "owner", Clicks: 26})
	_, _ = store.PutUserAchievement(ctx, achievements.UserAchievement{UserID: "owner", Key: "done#A1", AchievementID: "A1"})

	var lookups []string
	profiles := &profileStub{
		Store: store,
		getFunc: func(ctx context.Context, userID, key string) (achievements.UserAchievement, bool, error) {
			lookups = append(lookups, key)
			return store.GetUserAchievement(ctx, userID, key)
		},
		putFunc: func(context.Context, achievements.UserAchievement) (bool, error) {
			t.Error("PutUserAchievement called for an already awarded milestone")
			return false, nil
		},
		defFunc: func(context.Context, string) (achievements.Definition, error) {
			t.Error("GetAchievementDefinition called for an already awarded milestone")
			return achievements.Definition{}, nil
		},
	}
	tr := newTestTracker(t, TrackerConfig{Links: store, Profiles: profiles, Notifications: store})

	out, err := tr.HandleClick(ctx, "done", "")
	if err != nil {
		t.Fatalf("HandleClick() unexpected error: %v", err)
	}
	if out.Clicks != 27 || len(out.Unlocked) != 0 {
		t.Errorf("outcome = %+v", out)
	}
	if !slices.Equal(lookups, []string{"done#A1"}) {
		t.Errorf("lookups = %v, want exactly [done#A1]", lookups)
	}
	if store.AwardCount("owner") != 1 {
		t.Errorf("awards = %d, want 1", store.AwardCount("owner"))
	}
	if len(store.Notifications("owner")) != 0 {
		t.Error("re-notified an awarded milestone")
	}
}

func TestHandleClick_PastMilestoneWithoutAwardRecovers(t *testing.T) {
	store := memstore.New()
	seed(t, store, links.Link{Code: "late", OwnerID: "owner", Clicks: 26})

	out, err := memTracker(t, store).HandleClick(context.Background(), "late", "")
	if err != nil {
		t.Fatalf("HandleClick() unexpected error: %v", err)
	}
	if !slices.Equal(out.Unlocked, []string{"A1"}) {
		t.Errorf("Unlocked = %v, want [A1]", out.Unlocked)
	}
}

func TestHandleClick_AwardsAreScopedPerLink(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	seed(t, store, links.Link{Code: "one", OwnerID: "owner", Clicks: 24})
	seed(t, store, links.Link{Code: "two", OwnerID: "owner", Clicks: 24})
	tr := memTracker(t, store)

	_, _ = tr.HandleClick(ctx, "one", "")
	_, _ = tr.HandleClick(ctx, "two", "")

	if store.AwardCount("owner") != 2 {
		t.Errorf("awards = %d, want one per link", store.AwardCount("owner"))
	}
}

/***************
 * Concurrency
 ***************/

func TestHandleClick_ConcurrentClicksAreAllCounted(t *testing.T) {
	const n = 64
	store := memstore.New()
	seed(t, store, links.Link{Code: "busy", OwnerID: "owner"})
	tr := newTestTracker(t, TrackerConfig{
		Links:               store,
		Profiles:            store,
		Notifications:       store,
		MaxIncrementRetries: n,
	})

	var wg sync.WaitGroup
	results := make(chan int64, n)
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, err := tr.HandleClick(context.Background(), "busy", "")
			if err != nil {
				t.Errorf("HandleClick() unexpected error: %v", err)
				return
			}
			results <- out.Clicks
		}()
	}
	wg.Wait()
	close(results)

	seen := map[int64]bool{}
	for c := range results {
		if seen[c] {
			t.Errorf("counter value %d returned twice", c)
		}
		seen[c] = true
	}
	if got := clicksOf(t, store, "busy"); got != n {
		t.Errorf("clicks = %d, want %d", got, n)
	}
	// 64 clicks cross only the 25 threshold.
	if store.AwardCount("owner") != 1 || len(store.Notifications("owner")) != 1 {
		t.Errorf("awards = %d, notifications = %d, want 1 each",
			store.AwardCount("owner"), len(store.Notifications("owner")))
	}
}

func TestHandleClick_ConcurrentCrossingAwardsOnce(t *testing.T) {
	const n = 16
	store := memstore.New()
	seed(t, store, links.Link{Code: "edge", OwnerID: "owner", Clicks: 24})
	tr := newTestTracker(t, TrackerConfig{
		Links:               store,
		Profiles:            store,
		Notifications:       store,
		MaxIncrementRetries: n,
	})

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		unlocked int
	)
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, err := tr.HandleClick(context.Background(), "edge", "")
			if err != nil {
				t.Errorf("HandleClick() unexpected error: %v", err)
				return
			}
			mu.Lock()
			unlocked += len(out.Unlocked)
			mu.Unlock()
		}()
	}
	wg.Wait()

	if unlocked != 1 {
		t.Errorf("unlocks reported = %d, want 1", unlocked)
	}
	if store.AwardCount("owner") != 1 || len(store.Notifications("owner")) != 1 {
		t.Errorf("awards = %d, notifications = %d, want 1 each",
			store.AwardCount("owner"), len(store.Notifications("owner")))
	}
	raw, _ := store.ProfileAchievements("owner")
	if list, _ := raw.([]achievements.UserAchievement); len(list) != 1 {
		t.Errorf("profile list = %#v, want one entry", raw)
	}
}

func TestHandleClick_RetryExhaustion(t *testing.T) {
	contended := &contendedLinks{link: links.Link{Code: "hot", IsActive: true, DestinationURL: "https://example.com"}}
	store := memstore.New()
	tr := newTestTracker(t, TrackerConfig{
		Links:               contended,
		Profiles:            store,
		Notifications:       store,
		MaxIncrementRetries: 3,
	})

	out, err := tr.HandleClick(context.Background(), "hot", "")
	if errx.KindOf(err) != errx.Exhausted {
		t.Fatalf("KindOf() = %v, want Exhausted", errx.KindOf(err))
	}
	if !errors.Is(err, ErrIncrementConflict) {
		t.Error("error should wrap ErrIncrementConflict")
	}
	if out.DestinationURL != "" {
		t.Error("failed click returned a destination")
	}
	if contended.casCalls != 3 {
		t.Errorf("casCalls = %d, want 3", contended.casCalls)
	}
}

func TestHandleClick_RetryStopsWhenLinkDeactivated(t *testing.T) {
	store := memstore.New()
	seed(t, store, links.Link{Code: "flip", Clicks: 5})

	// A swap against a stale value fails; the re-read then finds the link
	// switched off.
	stale := &staleThenInactive{Store: store}
	tr := newTestTracker(t, TrackerConfig{Links: stale, Profiles: store, Notifications: store})

	_, err := tr.HandleClick(context.Background(), "flip", "")
	if errx.KindOf(err) != errx.NotFound {
		t.Fatalf("KindOf() = %v, want NotFound", errx.KindOf(err))
	}
}

type staleThenInactive struct {
	*memstore.Store
	swapped bool
}

func (s *staleThenInactive) SetClicksIf(ctx context.Context, code string, _, _ int64) (bool, error) {
	if !s.swapped {
		s.swapped = true
		_, _ = s.Store.SetActive(ctx, code, false)
	}
	return false, nil
}

/***************
 * Enrichment failures
 ***************/

func TestHandleClick_EnrichmentFailuresAreSwallowed(t *testing.T) {
	boom := errors.New("boom")

	tests := []struct {
		name       string
		stub       func(p *profileStub)
		sinkErr    error
		ids        idgen.Generator
		wantAward  bool
		wantNotes  int
		wantInText string
		wantStep   string
	}{
		{
			name:       "definition lookup fails",
			stub:       func(p *profileStub) { p.defFunc = func(context.Context, string) (achievements.Definition, error) { return achievements.Definition{}, boom } },
			wantAward:  true,
			wantNotes:  1,
			wantInText: "Achievement A1",
			wantStep:   "definition",
		},
		{
			name:       "definition has no name",
			stub:       func(p *profileStub) { p.defFunc = func(context.Context, string) (achievements.Definition, error) { return achievements.Definition{ID: "A1"}, nil } },
			wantAward:  true,
			wantNotes:  1,
			wantInText: "Achievement A1",
		},
		{
			name:      "profile append fails",
			stub:      func(p *profileStub) { p.appendFunc = func(context.Context, string, achievements.UserAchievement) error { return boom } },
			wantAward: true,
			wantNotes: 1,
			wantStep:  "profile",
		},
		{
			name:      "notification fails",
			sinkErr:   boom,
			wantAward: true,
			wantStep:  "notification",
		},
		{
			name:      "notification id fails",
			ids:       idgen.Func(func() (uuid.UUID, error) { return uuid.Nil, boom }),
			wantAward: true,
			wantStep:  "notification",
		},
		{
			name:      "award insert fails",
			stub:      func(p *profileStub) { p.putFunc = func(context.Context, achievements.UserAchievement) (bool, error) { return false, boom } },
			wantAward: false,
		},
		{
			name: "pre-check fails",
			stub: func(p *profileStub) {
				p.getFunc = func(context.Context, string, string) (achievements.UserAchievement, bool, error) {
					return achievements.UserAchievement{}, false, boom
				}
			},
			wantAward: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := memstore.New()
			seed(t, store, links.Link{Code: "fan", OwnerID: "owner", Clicks: 24})

			profiles := &profileStub{Store: store}
			if tt.stub != nil {
				tt.stub(profiles)
			}

			var sink NotificationSink = store
			if tt.sinkErr != nil {
				sink = sinkFunc(func(context.Context, notifications.Notification) error { return tt.sinkErr })
			}

			var logs bytes.Buffer
			tr := newTestTracker(t, TrackerConfig{
				Links:         store,
				Profiles:      profiles,
				Notifications: sink,
				IDGenerator:   tt.ids,
				Logger:        slog.New(slog.NewJSONHandler(&logs, nil)),
			})

			out, err := tr.HandleClick(context.Background(), "fan", "")
			if err != nil {
				t.Fatalf("HandleClick() error = %v, want enrichment failures swallowed", err)
			}
			if out.Clicks != 25 || out.DestinationURL == "" {
				t.Errorf("outcome = %+v", out)
			}
			if awarded := store.AwardCount("owner") == 1; awarded != tt.wantAward {
				t.Errorf("awarded = %v, want %v", awarded, tt.wantAward)
			}
			if tt.wantAward != slices.Contains(out.Unlocked, "A1") {
				t.Errorf("Unlocked = %v", out.Unlocked)
			}

			notes := store.Notifications("owner")
			if len(notes) != tt.wantNotes {
				t.Fatalf("notifications = %d, want %d", len(notes), tt.wantNotes)
			}
			if tt.wantInText != "" && !strings.Contains(notes[0].Text, tt.wantInText) {
				t.Errorf("notification text = %q, want it to contain %q", notes[0].Text, tt.wantInText)
			}
			if tt.wantStep != "" && !strings.Contains(logs.String(), `"step":"`+tt.wantStep+`"`) {
				t.Errorf("logs missing step %q: %s", tt.wantStep, logs.String())
			}
		})
	}
}

func TestHandleClick_LostInsertRaceSkipsFanOut(t *testing.T) {
	store := memstore.New()
	seed(t, store, links.Link{Code: "race", OwnerID: "owner", Clicks: 24})

	appended := false
	profiles := &profileStub{
		Store:   store,
		putFunc: func(context.Context, achievements.UserAchievement) (bool, error) { return false, nil },
		appendFunc: func(context.Context, string, achievements.UserAchievement) error {
			appended = true
			return nil
		},
	}
	tr := newTestTracker(t, TrackerConfig{Links: store, Profiles: profiles, Notifications: store})

	out, err := tr.HandleClick(context.Background(), "race", "")
	if err != nil {
		t.Fatalf("HandleClick() unexpected error: %v", err)
	}
	if len(out.Unlocked) != 0 || appended || len(store.Notifications("owner")) != 0 {
		t.Errorf("loser of the insert race fanned out: unlocked=%v appended=%v", out.Unlocked, appended)
	}
}

func TestHandleClick_CorruptProfileIsReplaced(t *testing.T) {
	store := memstore.New()
	seed(t, store, links.Link{Code: "fix", OwnerID: "owner", Clicks: 24})
	store.SetProfileAchievements("owner", "not-a-list")

	if _, err := memTracker(t, store).HandleClick(context.Background(), "fix", ""); err != nil {
		t.Fatalf("HandleClick() unexpected error: %v", err)
	}

	raw, _ := store.ProfileAchievements("owner")
	list, ok := raw.([]achievements.UserAchievement)
	if !ok || len(list) != 1 || list[0].Key != "fix#A1" {
		t.Errorf("profile = %#v, want single-element list", raw)
	}
}

func TestHandleClick_CancelledAfterIncrementSkipsFanOut(t *testing.T) {
	store := memstore.New()
	seed(t, store, links.Link{Code: "bye", OwnerID: "owner", Clicks: 24})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	tr := newTestTracker(t, TrackerConfig{
		Links:         &cancellingLinks{Store: store, cancel: cancel},
		Profiles:      store,
		Notifications: store,
	})

	out, err := tr.HandleClick(ctx, "bye", "")
	if err != nil {
		t.Fatalf("HandleClick() error = %v, want the click to succeed", err)
	}
	if !out.Counted || out.Clicks != 25 || out.DestinationURL == "" {
		t.Errorf("outcome = %+v", out)
	}
	if store.AwardCount("owner") != 0 {
		t.Error("fan-out ran after cancellation")
	}
}
