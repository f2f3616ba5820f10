package notifications

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/sundayezeilo/shortly/internal/database/dbtest"
)

func TestPostgresRepository(t *testing.T) {
	pool := dbtest.Start(t)
	repo := NewPostgresRepository(pool)
	ctx := context.Background()
	now := time.Now().UTC()

	seed := []Notification{
		{ID: uuid.New(), ToUserID: "u1", Text: "fresh", CreatedAt: now.Add(-time.Hour)},
		{ID: uuid.New(), ToUserID: "u1", Text: "stale", CreatedAt: now.Add(-30 * 24 * time.Hour)},
		{ID: uuid.New(), ToUserID: "u1", FromUserID: "u2", Text: "old request", Status: StatusPending, CreatedAt: now.Add(-60 * 24 * time.Hour)},
		{ID: uuid.New(), ToUserID: "u3", Text: "someone else", CreatedAt: now},
	}
	for _, n := range seed {
		if err := repo.PutNotification(ctx, n); err != nil {
			t.Fatalf("PutNotification() unexpected error: %v", err)
		}
	}

	t.Run("list keeps pending requests and recent notifications", func(t *testing.T) {
		list, err := repo.ListForUser(ctx, "u1", now.Add(-DefaultWindow))
		if err != nil {
			t.Fatalf("ListForUser() unexpected error: %v", err)
		}
		if len(list) != 2 {
			t.Fatalf("got %d notifications, want 2: %+v", len(list), list)
		}
		if list[0].Text != "fresh" || list[1].Text != "old request" {
			t.Errorf("order = %q, %q", list[0].Text, list[1].Text)
		}
	})

	t.Run("unread then mark all read", func(t *testing.T) {
		unread, err := repo.HasUnread(ctx, "u1")
		if err != nil || !unread {
			t.Fatalf("HasUnread() = %v, %v", unread, err)
		}

		n, err := repo.MarkAllRead(ctx, "u1")
		if err != nil || n != 3 {
			t.Fatalf("MarkAllRead() = %d, %v, want 3", n, err)
		}

		unread, err = repo.HasUnread(ctx, "u1")
		if err != nil || unread {
			t.Fatalf("HasUnread() after mark = %v, %v", unread, err)
		}
		if other, _ := repo.HasUnread(ctx, "u3"); !other {
			t.Error("marking u1 read touched u3")
		}
	})
}
