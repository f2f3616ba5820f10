package achievements

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sundayezeilo/shortly/internal/errx"
)

/***************
 * Mocks
 ***************/

type mockLister struct {
	listFunc func(ctx context.Context, userID string) ([]UserAchievement, error)
}

func (m *mockLister) ListUserAchievements(ctx context.Context, userID string) ([]UserAchievement, error) {
	return m.listFunc(ctx, userID)
}

/***************
 * Service
 ***************/

func TestService_ListForUser(t *testing.T) {
	ctx := context.Background()

	t.Run("blank user id is invalid", func(t *testing.T) {
		svc := NewService(&mockLister{listFunc: func(context.Context, string) ([]UserAchievement, error) {
			t.Fatal("repository should not be called")
			return nil, nil
		}})
		if _, err := svc.ListForUser(ctx, "  "); errx.KindOf(err) != errx.Invalid {
			t.Fatalf("KindOf() = %v, want Invalid", errx.KindOf(err))
		}
	})

	t.Run("empty result is a non-nil slice", func(t *testing.T) {
		svc := NewService(&mockLister{listFunc: func(context.Context, string) ([]UserAchievement, error) {
			return nil, nil
		}})
		list, err := svc.ListForUser(ctx, "u1")
		if err != nil || list == nil || len(list) != 0 {
			t.Fatalf("ListForUser() = %v, %v", list, err)
		}
	})

	t.Run("keeps store error kind", func(t *testing.T) {
		svc := NewService(&mockLister{listFunc: func(context.Context, string) ([]UserAchievement, error) {
			return nil, errx.E("repo", errx.Unavailable, errors.New("down"))
		}})
		_, err := svc.ListForUser(ctx, "u1")
		if errx.KindOf(err) != errx.Unavailable {
			t.Fatalf("KindOf() = %v, want Unavailable", errx.KindOf(err))
		}
	})
}

/***************
 * Handler
 ***************/

func TestHandler_ListForUser(t *testing.T) {
	earned := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	svc := NewService(&mockLister{listFunc: func(_ context.Context, userID string) ([]UserAchievement, error) {
		if userID == "broken" {
			return nil, errx.E("repo", errx.Unavailable, errors.New("down"))
		}
		return []UserAchievement{{UserID: userID, Key: "abc#A1", AchievementID: "A1", LinkID: "abc", DateEarned: earned}}, nil
	}})

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/users/{id}/achievements", NewHandler(svc, slog.New(slog.NewTextHandler(io.Discard, nil))).ListForUser)

	t.Run("lists achievements", func(t *testing.T) {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/users/u1/achievements", nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
		var resp ListResponse
		if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if resp.UserID != "u1" || len(resp.Achievements) != 1 || resp.Achievements[0].Key != "abc#A1" {
			t.Errorf("response = %+v", resp)
		}
		if !resp.Achievements[0].DateEarned.Equal(earned) {
			t.Errorf("DateEarned = %v", resp.Achievements[0].DateEarned)
		}
	})

	t.Run("store failure is a 500", func(t *testing.T) {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/users/broken/achievements", nil))
		if rec.Code != http.StatusInternalServerError {
			t.Fatalf("status = %d, want 500", rec.Code)
		}
	})
}
