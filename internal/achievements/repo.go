package achievements

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/sundayezeilo/shortly/internal/database"
	"github.com/sundayezeilo/shortly/internal/errx"
)

// Repository reads and writes earned achievements.
type Repository interface {
	GetUserAchievement(ctx context.Context, userID, key string) (UserAchievement, bool, error)
	PutUserAchievement(ctx context.Context, ua UserAchievement) (bool, error)
	GetAchievementDefinition(ctx context.Context, achievementID string) (Definition, error)
	AppendProfileAchievement(ctx context.Context, userID string, ua UserAchievement) error
	ListUserAchievements(ctx context.Context, userID string) ([]UserAchievement, error)
}

// PostgresRepository stores achievements in PostgreSQL.
type PostgresRepository struct {
	db database.DBTX
}

var _ Repository = (*PostgresRepository)(nil)

// NewPostgresRepository creates a repository over db.
func NewPostgresRepository(db database.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const userAchievementColumns = `user_id, sort_key, achievement_id, link_id, link_name, date_earned`

func scanUserAchievement(row pgx.Row) (UserAchievement, error) {
	var ua UserAchievement
	err := row.Scan(&ua.UserID, &ua.Key, &ua.AchievementID, &ua.LinkID, &ua.LinkName, &ua.DateEarned)
	return ua, err
}

// GetUserAchievement reports whether userID already holds key.
func (r *PostgresRepository) GetUserAchievement(ctx context.Context, userID, key string) (UserAchievement, bool, error) {
	const op = "achievements.repo.GetUserAchievement"

	ua, err := scanUserAchievement(r.db.QueryRow(ctx,
		`SELECT `+userAchievementColumns+` FROM user_achievements WHERE user_id = $1 AND sort_key = $2`,
		userID, key))
	if errors.Is(err, pgx.ErrNoRows) {
		return UserAchievement{}, false, nil
	}
	if err != nil {
		return UserAchievement{}, false, database.MapError(op, err)
	}
	return ua, true, nil
}

// PutUserAchievement inserts ua unless (UserID, Key) already exists. It
// reports whether this call created the record.
func (r *PostgresRepository) PutUserAchievement(ctx context.Context, ua UserAchievement) (bool, error) {
	const op = "achievements.repo.PutUserAchievement"

	tag, err := r.db.Exec(ctx, `
		INSERT INTO user_achievements (`+userAchievementColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (user_id, sort_key) DO NOTHING`,
		ua.UserID, ua.Key, ua.AchievementID, ua.LinkID, ua.LinkName, ua.DateEarned,
	)
	if err != nil {
		return false, database.MapError(op, err)
	}
	return tag.RowsAffected() == 1, nil
}

// GetAchievementDefinition returns the catalog entry for achievementID.
func (r *PostgresRepository) GetAchievementDefinition(ctx context.Context, achievementID string) (Definition, error) {
	const op = "achievements.repo.GetAchievementDefinition"

	var def Definition
	err := r.db.QueryRow(ctx,
		`SELECT achievement_id, name FROM achievement_definitions WHERE achievement_id = $1`,
		achievementID).Scan(&def.ID, &def.Name)
	if err != nil {
		return Definition{}, database.MapError(op, err)
	}
	return def, nil
}

// AppendProfileAchievement appends ua to the user's profile list in one
// statement. A missing profile is created; a stored value that is not a
// JSON array is replaced by a single-element array.
func (r *PostgresRepository) AppendProfileAchievement(ctx context.Context, userID string, ua UserAchievement) error {
	const op = "achievements.repo.AppendProfileAchievement"

	doc, err := json.Marshal(ua)
	if err != nil {
		return errx.E(op, errx.Internal, fmt.Errorf("encode achievement: %w", err))
	}

	_, err = r.db.Exec(ctx, `
		INSERT INTO users (user_id, achievements)
		VALUES ($1, jsonb_build_array($2::jsonb))
		ON CONFLICT (user_id) DO UPDATE SET achievements =
			CASE WHEN jsonb_typeof(users.achievements) = 'array'
				THEN users.achievements || jsonb_build_array($2::jsonb)
				ELSE jsonb_build_array($2::jsonb)
			END`,
		userID, string(doc),
	)
	if err != nil {
		return database.MapError(op, err)
	}
	return nil
}

// ListUserAchievements returns the user's achievements, newest first.
func (r *PostgresRepository) ListUserAchievements(ctx context.Context, userID string) ([]UserAchievement, error) {
	const op = "achievements.repo.ListUserAchievements"

	rows, err := r.db.Query(ctx,
		`SELECT `+userAchievementColumns+` FROM user_achievements
		WHERE user_id = $1 ORDER BY date_earned DESC, sort_key`, userID)
	if err != nil {
		return nil, database.MapError(op, err)
	}

	list, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (UserAchievement, error) {
		return scanUserAchievement(row)
	})
	if err != nil {
		return nil, database.MapError(op, err)
	}
	return list, nil
}

// ProfileAchievements returns the raw denormalized profile list, for
// diagnostics and tests.
func (r *PostgresRepository) ProfileAchievements(ctx context.Context, userID string) (json.RawMessage, error) {
	const op = "achievements.repo.ProfileAchievements"

	var raw []byte
	err := r.db.QueryRow(ctx, `SELECT achievements FROM users WHERE user_id = $1`, userID).Scan(&raw)
	if err != nil {
		return nil, database.MapError(op, err)
	}
	return raw, nil
}
