// Package models contains data structures for the application's domain models.
package models

import (
	"time"
)

// LiveType is how a live session is started.
type LiveType string

const (
	LiveTypeImmediate LiveType = "immediate"
	LiveTypeScheduled LiveType = "scheduled"
)

// LiveStatus is the lifecycle state of a live session.
type LiveStatus int

const (
	LiveStatusScheduled LiveStatus = iota
	LiveStatusCompleted
	LiveStatusDeleted
	LiveStatusExpired
	LiveStatusUnclosed
	LiveStatusRefunded
)

func (s LiveStatus) String() string {
	switch s {
	case LiveStatusScheduled:
		return "scheduled"
	case LiveStatusCompleted:
		return "completed"
	case LiveStatusDeleted:
		return "deleted"
	case LiveStatusExpired:
		return "expired"
	case LiveStatusUnclosed:
		return "unclosed"
	case LiveStatusRefunded:
		return "refunded"
	default:
		return "unknown"
	}
}

// Live represents a live-streaming session owned by one creator.
type Live struct {
	ID              uint       `gorm:"primaryKey" json:"-"`
	UserID          uint       `gorm:"not null;index" json:"-"`
	ChannelName     string     `gorm:"size:100;not null;uniqueIndex" json:"channel_name"`
	Type            LiveType   `gorm:"size:20;not null" json:"type"`
	Title           string     `gorm:"size:255" json:"title"`
	ScheduledAt     time.Time  `gorm:"not null;index" json:"scheduled_at"`
	Timezone        string     `gorm:"size:64" json:"timezone"`
	DurationMinutes int        `gorm:"not null" json:"duration"`
	Price           int64      `gorm:"not null;default:0" json:"price"`
	Availability    string     `gorm:"size:20;not null;default:everyone" json:"availability"`
	Status          LiveStatus `gorm:"not null;default:0;index" json:"status"`
	RescheduleCount int        `gorm:"not null;default:0" json:"reschedule_count"`
	CreatorJoined   bool       `gorm:"not null;default:false" json:"creator_joined"`
	Filter          string     `gorm:"size:40;not null;default:none" json:"filter"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// LiveAvailabilities lists who may book a live.
var LiveAvailabilities = []string{"everyone", "subscribers", "followers"}

// Events announcing that a live is over. Connections to the live are closed
// once they are delivered.
const (
	LiveEventDeleted = "live_deleted"
	LiveEventExpired = "live_expired"
)

// FilterNone is the sentinel for "no visual filter applied".
const FilterNone = "none"

// LiveFilters is the whitelist of visual filters a creator can apply.
var LiveFilters = []string{
	FilterNone,
	"clarendon", "gingham", "moon", "lark", "reyes", "juno", "slumber",
	"crema", "ludwig", "aden", "perpetua", "amaro", "mayfair", "rise",
	"hudson", "valencia", "xpro2", "sierra", "willow", "lofi", "inkwell",
	"hefe", "nashville", "stinson", "vesper", "earlybird", "brannan",
	"sutro", "toaster", "walden", "kelvin", "maven", "brooklyn",
}

// SanitizeFilter returns key when it is whitelisted and FilterNone otherwise.
func SanitizeFilter(key string) string {
	for _, f := range LiveFilters {
		if f == key {
			return key
		}
	}
	return FilterNone
}

// LiveGoal is a fundraising target attached to a live. Rows are append-mostly;
// at most one row per live is active.
type LiveGoal struct {
	ID        uint      `gorm:"primaryKey" json:"-"`
	LiveID    uint      `gorm:"not null;index" json:"-"`
	Name      string    `gorm:"size:100;not null" json:"name"`
	Amount    int64     `gorm:"not null;default:0" json:"amount"`
	Active    bool      `gorm:"not null" json:"active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsEmpty reports whether the goal is the "no goal set" placeholder.
func (g *LiveGoal) IsEmpty() bool {
	return g.Name == "" && g.Amount == 0
}

// LiveTipMenu is one paid interaction offered during a live.
type LiveTipMenu struct {
	ID        uint      `gorm:"primaryKey" json:"-"`
	LiveID    uint      `gorm:"not null;index" json:"-"`
	Activity  string    `gorm:"size:100;not null" json:"activity"`
	Coins     int64     `gorm:"not null" json:"coins"`
	Active    bool      `gorm:"not null" json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// LiveBooking records a fan who bought access to a live.
type LiveBooking struct {
	ID        uint      `gorm:"primaryKey" json:"-"`
	LiveID    uint      `gorm:"not null;uniqueIndex:idx_live_bookings_live_user" json:"-"`
	UserID    uint      `gorm:"not null;uniqueIndex:idx_live_bookings_live_user" json:"-"`
	Coins     int64     `gorm:"not null;default:0" json:"coins"`
	CreatedAt time.Time `json:"created_at"`
}
