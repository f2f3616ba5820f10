// Package achievements defines click milestones and stores the
// achievements users earn when their links cross them.
package achievements

// Milestone maps a click-count threshold to the achievement it unlocks.
type Milestone struct {
	Threshold     int64
	AchievementID string
}

// Milestones is the static milestone table, ordered by threshold.
var Milestones = []Milestone{
	{Threshold: 25, AchievementID: "A1"},
	{Threshold: 100, AchievementID: "A2"},
	{Threshold: 1000, AchievementID: "A3"},
	{Threshold: 10000, AchievementID: "A4"},
}

// Reached returns the milestones in table whose threshold is at or below
// count, in table order.
func Reached(table []Milestone, count int64) []Milestone {
	var out []Milestone
	for _, m := range table {
		if count >= m.Threshold {
			out = append(out, m)
		}
	}
	return out
}

// Key is the per-user key of the achievement earned by a link: code#id.
func Key(linkCode, achievementID string) string {
	return linkCode + "#" + achievementID
}

// FallbackName labels an achievement whose definition could not be read.
func FallbackName(achievementID string) string {
	return "Achievement " + achievementID
}
