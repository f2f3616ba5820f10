package links

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/sundayezeilo/shortly/internal/database"
)

const linkColumns = `code, destination_url, COALESCE(owner_id, ''), name, description,
	is_private, is_password_protected, password_hash, is_active, clicks, created_at`

// PostgresRepository stores links in PostgreSQL. Besides Repository it
// provides an atomic click counter.
type PostgresRepository struct {
	db database.DBTX
}

// NewPostgresRepository creates a repository over db.
func NewPostgresRepository(db database.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func scanLink(row pgx.Row) (Link, error) {
	var l Link
	err := row.Scan(
		&l.Code,
		&l.DestinationURL,
		&l.OwnerID,
		&l.Name,
		&l.Description,
		&l.IsPrivate,
		&l.IsPasswordProtected,
		&l.PasswordHash,
		&l.IsActive,
		&l.Clicks,
		&l.CreatedAt,
	)
	return l, err
}

func (r *PostgresRepository) CreateLink(ctx context.Context, link Link) (Link, error) {
	const op = "links.repo.CreateLink"

	row := r.db.QueryRow(ctx, `
		INSERT INTO links (code, destination_url, owner_id, name, description,
			is_private, is_password_protected, password_hash, is_active)
		VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6, $7, $8, $9)
		RETURNING `+linkColumns,
		link.Code,
		link.DestinationURL,
		link.OwnerID,
		link.Name,
		link.Description,
		link.IsPrivate,
		link.IsPasswordProtected,
		link.PasswordHash,
		link.IsActive,
	)

	created, err := scanLink(row)
	if err != nil {
		return Link{}, database.MapError(op, err)
	}
	return created, nil
}

func (r *PostgresRepository) GetLink(ctx context.Context, code string) (Link, error) {
	const op = "links.repo.GetLink"

	link, err := scanLink(r.db.QueryRow(ctx, `SELECT `+linkColumns+` FROM links WHERE code = $1`, code))
	if err != nil {
		return Link{}, database.MapError(op, err)
	}
	return link, nil
}

// IncrementClicks adds one to an active link's counter in a single statement
// and returns the new value. Concurrent calls never lose an update.
func (r *PostgresRepository) IncrementClicks(ctx context.Context, code string) (int64, error) {
	const op = "links.repo.IncrementClicks"

	var clicks int64
	err := r.db.QueryRow(ctx, `
		UPDATE links SET clicks = clicks + 1
		WHERE code = $1 AND is_active
		RETURNING clicks`, code).Scan(&clicks)
	if err != nil {
		return 0, database.MapError(op, err)
	}
	return clicks, nil
}

// SetActive enables or disables redirects for a link.
func (r *PostgresRepository) SetActive(ctx context.Context, code string, active bool) (Link, error) {
	const op = "links.repo.SetActive"

	link, err := scanLink(r.db.QueryRow(ctx, `
		UPDATE links SET is_active = $2
		WHERE code = $1
		RETURNING `+linkColumns, code, active))
	if err != nil {
		return Link{}, database.MapError(op, err)
	}
	return link, nil
}

// TogglePrivate flips is_private in a single statement.
func (r *PostgresRepository) TogglePrivate(ctx context.Context, code string) (Link, error) {
	const op = "links.repo.TogglePrivate"

	link, err := scanLink(r.db.QueryRow(ctx, `
		UPDATE links SET is_private = NOT is_private
		WHERE code = $1
		RETURNING `+linkColumns, code))
	if err != nil {
		return Link{}, database.MapError(op, err)
	}
	return link, nil
}

func (r *PostgresRepository) SetPassword(ctx context.Context, code, hash string) (Link, error) {
	const op = "links.repo.SetPassword"

	link, err := scanLink(r.db.QueryRow(ctx, `
		UPDATE links SET is_password_protected = ($2 <> ''), password_hash = $2
		WHERE code = $1
		RETURNING `+linkColumns, code, hash))
	if err != nil {
		return Link{}, database.MapError(op, err)
	}
	return link, nil
}

func (r *PostgresRepository) ListByOwner(ctx context.Context, ownerID string) ([]Link, error) {
	const op = "links.repo.ListByOwner"

	rows, err := r.db.Query(ctx, `
		SELECT `+linkColumns+` FROM links
		WHERE owner_id = $1
		ORDER BY created_at DESC, code`, ownerID)
	if err != nil {
		return nil, database.MapError(op, err)
	}
	return collectLinks(op, rows)
}

func (r *PostgresRepository) ListPublic(ctx context.Context, limit int) ([]Link, error) {
	const op = "links.repo.ListPublic"

	rows, err := r.db.Query(ctx, `
		SELECT `+linkColumns+` FROM links
		WHERE is_active AND NOT is_private
		ORDER BY created_at DESC, code
		LIMIT $1`, limit)
	if err != nil {
		return nil, database.MapError(op, err)
	}
	return collectLinks(op, rows)
}

func collectLinks(op string, rows pgx.Rows) ([]Link, error) {
	list, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Link, error) {
		return scanLink(row)
	})
	if err != nil {
		return nil, database.MapError(op, err)
	}
	return list, nil
}
