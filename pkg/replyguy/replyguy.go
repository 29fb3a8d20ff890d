// Package replyguy contains the core domain types for the reply-quota coach.
package replyguy

import "fmt"

// DefaultRequired is the daily reply quota used until the user configures one.
const DefaultRequired = 3

// Milestones are the cumulative-count thresholds that earn a one-time
// celebration per day, in ascending order.
var Milestones = []int{10, 50, 100, 200, 500, 1000}

// Badge colors, matching the extension's toolbar badge.
const (
	BadgeColorPending = "#3c3c3c"
	BadgeColorMet     = "#9ece6a"
)

// State is the persisted daily counter state.
type State struct {
	LastResetDate           string `json:"last_reset_date"`           // Local calendar day, ISO format (2006-01-02)
	Count                   int    `json:"count"`                     // Confirmed replies today
	RequiredReplies         int    `json:"required_replies"`          // User-configured daily quota
	LastCelebratedMilestone int    `json:"last_celebrated_milestone"` // Highest milestone celebrated today
	QuotaCelebratedToday    bool   `json:"quota_celebrated_today"`    // Quota-met notification already fired today
}

// QuotaMet reports whether today's quota has been reached.
func (s State) QuotaMet() bool {
	return s.Count >= s.RequiredReplies
}

// BadgeColor returns the badge color for the current count.
func (s State) BadgeColor() string {
	if s.QuotaMet() {
		return BadgeColorMet
	}
	return BadgeColorPending
}

// BadgeTitle returns the hover title shown next to the badge count.
func (s State) BadgeTitle() string {
	return fmt.Sprintf("Replies: %d / %d", s.Count, s.RequiredReplies)
}

// Celebration is the payload pushed to overlay renderers when a threshold
// is crossed.
type Celebration struct {
	Milestone  int  `json:"milestone"`
	TotalCount int  `json:"totalCount"`
	IsQuota    bool `json:"isQuota"`
}

// Roast is the payload pushed when the user leaves the tab below quota.
type Roast struct {
	Message  string `json:"roast"`
	Title    string `json:"title"` // Suggested tab-title mutation, e.g. "(2 LEFT) DON'T LEAVE!"
	Count    int    `json:"count"`
	Required int    `json:"required"`
}

// Event is a payload delivered to event-stream subscribers. Exactly one
// field is set.
type Event struct {
	Celebration *Celebration `json:"celebration,omitempty"`
	Roast       *Roast       `json:"roast,omitempty"`
}
