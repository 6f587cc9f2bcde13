package models

import "time"

// Transaction types that count toward live earnings.
const (
	TransactionLiveBooking = "live_booking"
	TransactionLiveTip     = "live_tip"
	TransactionLiveMenuTip = "live_menu_tip"
	TransactionLiveGoalTip = "live_goal_tip"
)

// TransactionStatusCompleted is the only status that counts as earned.
const TransactionStatusCompleted = "completed"

// LiveEarningTypes are all transaction types credited to a live.
var LiveEarningTypes = []string{
	TransactionLiveBooking,
	TransactionLiveTip,
	TransactionLiveMenuTip,
	TransactionLiveGoalTip,
}

// LiveTipTypes is the tip-only subset of LiveEarningTypes.
var LiveTipTypes = []string{
	TransactionLiveTip,
	TransactionLiveMenuTip,
	TransactionLiveGoalTip,
}

// Transaction is a coin movement between two users.
type Transaction struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	SenderID   uint      `gorm:"not null;index" json:"sender_id"`
	ReceiverID uint      `gorm:"not null;index" json:"receiver_id"`
	LiveID     *uint     `gorm:"index" json:"live_id,omitempty"`
	GoalID     *uint     `gorm:"index" json:"goal_id,omitempty"`
	Type       string    `gorm:"size:40;not null;index" json:"type"`
	Coins      int64     `gorm:"not null" json:"coins"`
	Status     string    `gorm:"size:20;not null" json:"status"`
	CreatedAt  time.Time `json:"created_at"`
}
