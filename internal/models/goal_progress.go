package models

// GoalProgress is the read-optimized view of a goal mirrored into Redis.
type GoalProgress struct {
	GoalID     uint   `json:"-"`
	LiveID     uint   `json:"-"`
	Name       string `json:"name"`
	Amount     int64  `json:"amount"`
	Tips       int64  `json:"tips"`
	Percentage int64  `json:"percentage"`
}

// GoalPercentage is floor(tips/amount*100); zero when no target is set.
func GoalPercentage(tips, amount int64) int64 {
	if amount <= 0 || tips <= 0 {
		return 0
	}
	return tips * 100 / amount
}

// NewGoalProgress derives the mirrored record for g given the tips it has received.
func NewGoalProgress(g *LiveGoal, tips int64) GoalProgress {
	return GoalProgress{
		GoalID:     g.ID,
		LiveID:     g.LiveID,
		Name:       g.Name,
		Amount:     g.Amount,
		Tips:       tips,
		Percentage: GoalPercentage(tips, g.Amount),
	}
}
