package links

import "context"

// Repository persists links.
type Repository interface {
	CreateLink(ctx context.Context, link Link) (Link, error)
	GetLink(ctx context.Context, code string) (Link, error)

	// SetActive, TogglePrivate and SetPassword return the updated link.
	SetActive(ctx context.Context, code string, active bool) (Link, error)
	TogglePrivate(ctx context.Context, code string) (Link, error)
	// SetPassword protects the link with hash, or clears protection when hash
	// is empty.
	SetPassword(ctx context.Context, code, hash string) (Link, error)

	// ListByOwner returns every link of ownerID, inactive ones included,
	// newest first.
	ListByOwner(ctx context.Context, ownerID string) ([]Link, error)
	// ListPublic returns up to limit active, non-private links, newest first.
	ListPublic(ctx context.Context, limit int) ([]Link, error)
}
