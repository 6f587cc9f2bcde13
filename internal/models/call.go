package models

import "time"

// CallStatus is the state of a one-to-one video call.
type CallStatus int

const (
	CallStatusRinging CallStatus = iota
	CallStatusAnswered
	CallStatusEnded
	CallStatusMissed
	CallStatusDeclined
)

// ActiveCallStatuses are the states in which call credentials may be issued.
var ActiveCallStatuses = []CallStatus{CallStatusRinging, CallStatusAnswered}

// IsActive reports whether credentials may still be issued for the call.
func (s CallStatus) IsActive() bool {
	for _, st := range ActiveCallStatuses {
		if s == st {
			return true
		}
	}
	return false
}

// Call is a video call between a caller and a receiver in a room.
type Call struct {
	ID         uint       `gorm:"primaryKey" json:"id"`
	RoomID     string     `gorm:"size:100;not null;index" json:"room_id"`
	CallerID   uint       `gorm:"not null;index" json:"caller_id"`
	ReceiverID uint       `gorm:"not null;index" json:"receiver_id"`
	Status     CallStatus `gorm:"not null;default:0" json:"status"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// HasParticipant reports whether userID is either side of the call.
func (c *Call) HasParticipant(userID uint) bool {
	return c.CallerID == userID || c.ReceiverID == userID
}
