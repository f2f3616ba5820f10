package links

import "time"

// Link is a shortened URL record.
type Link struct {
	Code                string
	DestinationURL      string
	OwnerID             string // empty for anonymous links
	Name                string
	Description         string
	IsPrivate           bool
	IsPasswordProtected bool
	PasswordHash        string
	IsActive            bool
	Clicks              int64
	CreatedAt           time.Time
}

// HasOwner reports whether the link belongs to a registered user.
func (l Link) HasOwner() bool { return l.OwnerID != "" }

// OwnedBy reports whether userID is the link's owner. Anonymous links are
// owned by nobody.
func (l Link) OwnedBy(userID string) bool {
	return l.HasOwner() && l.OwnerID == userID
}

// DisplayName is the link name, or its code when unnamed.
func (l Link) DisplayName() string {
	if l.Name != "" {
		return l.Name
	}
	return l.Code
}
