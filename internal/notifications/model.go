// Package notifications stores in-app messages for users and serves their
// inbox.
package notifications

import (
	"time"

	"github.com/google/uuid"
)

// StatusPending marks an actionable request, such as a friend request.
// Plain notifications carry an empty status.
const StatusPending = "pending"

// Notification is a message addressed to a user.
type Notification struct {
	ID         uuid.UUID `json:"notificationId"`
	ToUserID   string    `json:"toUserId"`
	FromUserID string    `json:"fromUserId,omitempty"`
	LinkID     string    `json:"linkId,omitempty"`
	Text       string    `json:"text"`
	Status     string    `json:"status,omitempty"`
	IsRead     bool      `json:"isRead"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Inbox splits a user's recent notifications into actionable requests and
// everything else.
type Inbox struct {
	Pending []Notification `json:"pendingRequests"`
	Other   []Notification `json:"otherNotifications"`
}
