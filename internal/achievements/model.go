package achievements

import "time"

// UserAchievement records that a user's link reached a milestone. Key is
// unique per user and encodes the (link, achievement) pair.
type UserAchievement struct {
	UserID        string    `json:"userId"`
	Key           string    `json:"sortKey"`
	AchievementID string    `json:"achievementId"`
	LinkID        string    `json:"linkId"`
	LinkName      string    `json:"linkName"`
	DateEarned    time.Time `json:"dateEarned"`
}

// Definition is the catalog entry for an achievement.
type Definition struct {
	ID   string `json:"achievementId"`
	Name string `json:"name"`
}
