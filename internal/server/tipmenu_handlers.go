package server

import (
	"fanlive/internal/models"
	"fanlive/internal/service"

	"github.com/gofiber/fiber/v2"
)

// TipMenuRequest replaces the whole menu of a live as parallel lists.
type TipMenuRequest struct {
	ID         string   `json:"id"`
	Activities []string `json:"activities" validate:"max=50"`
	Coins      []int64  `json:"coins" validate:"max=50"`
}

// ReplaceTipMenu handles POST /api/live/tipmenu
// @Summary Replace the tip menu of a live
// @Description Every entry is validated before anything is written.
// @Tags tipmenu
// @Accept json
// @Produce json
// @Param request body TipMenuRequest true "Menu"
// @Success 200 {object} models.SuccessResponse{data=[]TipMenuView}
// @Failure 400 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Failure 422 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /live/tipmenu [post]
func (s *Server) ReplaceTipMenu(c *fiber.Ctx) error {
	var req TipMenuRequest
	if err := s.bind(c, &req); err != nil {
		return nil
	}
	liveID, err := s.decodeID(c, req.ID, "id")
	if err != nil {
		return nil
	}
	menu, err := s.tipMenus.Replace(c.UserContext(), callerID(c), liveID,
		service.TipMenuInput{Activities: req.Activities, Coins: req.Coins})
	if err != nil {
		return respond(c, err)
	}
	return models.RespondOK(c, "Tip menu saved", s.tipMenuViews(menu))
}

// GetTipMenu handles GET /api/live/tipmenu/:id
// @Summary Active tip menu of a live
// @Tags tipmenu
// @Produce json
// @Param id path string true "Live ID"
// @Success 200 {object} models.SuccessResponse{data=[]TipMenuView}
// @Failure 400 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /live/tipmenu/{id} [get]
func (s *Server) GetTipMenu(c *fiber.Ctx) error {
	liveID, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}
	menu, err := s.tipMenus.Active(c.UserContext(), liveID)
	if err != nil {
		return respond(c, err)
	}
	return models.RespondOK(c, "Tip menu", s.tipMenuViews(menu))
}
