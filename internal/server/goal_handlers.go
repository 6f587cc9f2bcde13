package server

import (
	"fanlive/internal/models"
	"fanlive/internal/service"

	"github.com/gofiber/fiber/v2"
)

// GoalRequest upserts or clears the goal of a live. An all-empty goal clears it.
type GoalRequest struct {
	ID         string `json:"id"`
	GoalName   string `json:"goal_name" validate:"max=100"`
	GoalAmount int64  `json:"goal_amount"`
	GoalID     string `json:"goal_id"`
}

// DeactivateGoalsRequest lists goals to switch off.
type DeactivateGoalsRequest struct {
	ID      string   `json:"id"`
	GoalIDs []string `json:"goal_ids" validate:"max=50"`
}

// UpsertGoal handles POST /api/live/goal
// @Summary Set, update or clear the goal of a live
// @Tags goals
// @Accept json
// @Produce json
// @Param request body GoalRequest true "Goal"
// @Success 200 {object} models.SuccessResponse{data=[]GoalView}
// @Failure 400 {object} models.ErrorResponse
// @Failure 403 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Failure 422 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /live/goal [post]
func (s *Server) UpsertGoal(c *fiber.Ctx) error {
	var req GoalRequest
	if err := s.bind(c, &req); err != nil {
		return nil
	}
	liveID, err := s.decodeID(c, req.ID, "id")
	if err != nil {
		return nil
	}
	in := service.GoalInput{Name: req.GoalName, Amount: req.GoalAmount}
	if req.GoalID != "" {
		if in.GoalID, err = s.decodeID(c, req.GoalID, "goal_id"); err != nil {
			return nil
		}
	}

	goals, err := s.goals.Upsert(c.UserContext(), callerID(c), liveID, in)
	if err != nil {
		return respond(c, err)
	}
	return models.RespondOK(c, "Goal saved", s.goalViews(goals))
}

// DeactivateGoals handles POST /api/live/goal/deactivate
// @Summary Deactivate goals of a live
// @Tags goals
// @Accept json
// @Produce json
// @Param request body DeactivateGoalsRequest true "Goals"
// @Success 200 {object} models.SuccessResponse{data=[]GoalView}
// @Failure 400 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /live/goal/deactivate [post]
func (s *Server) DeactivateGoals(c *fiber.Ctx) error {
	var req DeactivateGoalsRequest
	if err := s.bind(c, &req); err != nil {
		return nil
	}
	liveID, err := s.decodeID(c, req.ID, "id")
	if err != nil {
		return nil
	}
	ids := make([]uint, 0, len(req.GoalIDs))
	for _, raw := range req.GoalIDs {
		id, err := s.decodeID(c, raw, "goal_ids")
		if err != nil {
			return nil
		}
		ids = append(ids, id)
	}

	goals, err := s.goals.Deactivate(c.UserContext(), callerID(c), liveID, ids)
	if err != nil {
		return respond(c, err)
	}
	return models.RespondOK(c, "Goals deactivated", s.goalViews(goals))
}

// GetGoal handles GET /api/live/goal/:id
// @Summary Current goal progress of a live
// @Tags goals
// @Produce json
// @Param id path string true "Live ID"
// @Success 200 {object} models.SuccessResponse{data=GoalProgressView}
// @Failure 400 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /live/goal/{id} [get]
func (s *Server) GetGoal(c *fiber.Ctx) error {
	liveID, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}
	progress, err := s.goals.Progress(c.UserContext(), liveID)
	if err != nil {
		return respond(c, err)
	}
	return models.RespondOK(c, "Goal progress", fiber.Map{"goal": s.progressView(progress)})
}
