package models

import "time"

// Reminder notification types scheduled for a live.
const (
	NotificationLiveReminder24h = "live_reminder_24h"
	NotificationLiveReminder1h  = "live_reminder_1h"
	NotificationLiveStarting    = "live_starting"
)

// LiveReminderTypes are the pending rows removed when a live is deleted or rescheduled.
var LiveReminderTypes = []string{
	NotificationLiveReminder24h,
	NotificationLiveReminder1h,
	NotificationLiveStarting,
}

// LiveNotification is a pending reminder for a live.
type LiveNotification struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	LiveID    uint      `gorm:"not null;index" json:"live_id"`
	UserID    uint      `gorm:"not null;index" json:"user_id"`
	Type      string    `gorm:"size:40;not null" json:"type"`
	SendAt    time.Time `gorm:"not null;index" json:"send_at"`
	SkipEmail bool      `gorm:"not null;default:false" json:"skip_email"`
	Sent      bool      `gorm:"not null;default:false" json:"sent"`
	CreatedAt time.Time `json:"created_at"`
}
