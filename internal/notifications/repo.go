package notifications

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/sundayezeilo/shortly/internal/database"
)

// Repository persists notifications.
type Repository interface {
	PutNotification(ctx context.Context, n Notification) error
	HasUnread(ctx context.Context, userID string) (bool, error)
	MarkAllRead(ctx context.Context, userID string) (int64, error)
	// ListForUser returns every pending request plus the plain
	// notifications created after since, newest first.
	ListForUser(ctx context.Context, userID string, since time.Time) ([]Notification, error)
}

// PostgresRepository stores notifications in PostgreSQL.
type PostgresRepository struct {
	db database.DBTX
}

var _ Repository = (*PostgresRepository)(nil)

// NewPostgresRepository creates a repository over db.
func NewPostgresRepository(db database.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) PutNotification(ctx context.Context, n Notification) error {
	const op = "notifications.repo.PutNotification"

	_, err := r.db.Exec(ctx, `
		INSERT INTO notifications (notification_id, to_user_id, from_user_id, link_id, body, status, is_read, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		n.ID, n.ToUserID, n.FromUserID, n.LinkID, n.Text, n.Status, n.IsRead, n.CreatedAt,
	)
	if err != nil {
		return database.MapError(op, err)
	}
	return nil
}

func (r *PostgresRepository) HasUnread(ctx context.Context, userID string) (bool, error) {
	const op = "notifications.repo.HasUnread"

	var unread bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM notifications WHERE to_user_id = $1 AND NOT is_read)`,
		userID).Scan(&unread)
	if err != nil {
		return false, database.MapError(op, err)
	}
	return unread, nil
}

func (r *PostgresRepository) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	const op = "notifications.repo.MarkAllRead"

	tag, err := r.db.Exec(ctx,
		`UPDATE notifications SET is_read = true WHERE to_user_id = $1 AND NOT is_read`, userID)
	if err != nil {
		return 0, database.MapError(op, err)
	}
	return tag.RowsAffected(), nil
}

func (r *PostgresRepository) ListForUser(ctx context.Context, userID string, since time.Time) ([]Notification, error) {
	const op = "notifications.repo.ListForUser"

	rows, err := r.db.Query(ctx, `
		SELECT notification_id, to_user_id, from_user_id, link_id, body, status, is_read, created_at
		FROM notifications
		WHERE to_user_id = $1 AND (status = $2 OR created_at > $3)
		ORDER BY created_at DESC`,
		userID, StatusPending, since,
	)
	if err != nil {
		return nil, database.MapError(op, err)
	}

	list, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Notification, error) {
		var n Notification
		err := row.Scan(&n.ID, &n.ToUserID, &n.FromUserID, &n.LinkID, &n.Text, &n.Status, &n.IsRead, &n.CreatedAt)
		return n, err
	})
	if err != nil {
		return nil, database.MapError(op, err)
	}
	return list, nil
}
