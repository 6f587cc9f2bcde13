package models

import "time"

// User is the caller record resolved by the identity gateway.
type User struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	Username   string    `gorm:"size:50;uniqueIndex;not null" json:"username"`
	Email      string    `gorm:"size:255;uniqueIndex;not null" json:"email"`
	IsVerified bool      `gorm:"not null;default:false" json:"is_verified"`
	IsCreator  bool      `gorm:"not null;default:false" json:"is_creator"`
	IsAdmin    bool      `gorm:"not null;default:false" json:"is_admin"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// GroupMember ties a user to an admin-designated group tag.
type GroupMember struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	GroupTag  string    `gorm:"size:64;not null;uniqueIndex:idx_group_members_tag_user" json:"group_tag"`
	UserID    uint      `gorm:"not null;uniqueIndex:idx_group_members_tag_user" json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
}

// AdminSettings holds admin-configured limits. A single row is expected.
type AdminSettings struct {
	ID                      uint      `gorm:"primaryKey" json:"-" yaml:"-"`
	MaxReschedules          int       `gorm:"not null" json:"max_reschedules" yaml:"max_reschedules"`
	RescheduleBufferMinutes int       `gorm:"not null" json:"reschedule_buffer_minutes" yaml:"reschedule_buffer_minutes"`
	MinTipAmount            int64     `gorm:"not null" json:"min_tip_amount" yaml:"min_tip_amount"`
	MaxTipAmount            int64     `gorm:"not null" json:"max_tip_amount" yaml:"max_tip_amount"`
	RTCAppID                string    `gorm:"size:255" json:"rtc_app_id" yaml:"rtc_app_id"`
	RTCAppSecret            string    `gorm:"size:255" json:"-" yaml:"-"`
	CredentialTTLSeconds    int       `gorm:"not null" json:"credential_ttl_seconds" yaml:"credential_ttl_seconds"`
	RescheduleExemptGroup   string    `gorm:"size:64" json:"reschedule_exempt_group" yaml:"reschedule_exempt_group"`
	NotifyRestrictedGroup   string    `gorm:"size:64" json:"notify_restricted_group" yaml:"notify_restricted_group"`
	UpdatedAt               time.Time `json:"updated_at" yaml:"updated_at"`
}
