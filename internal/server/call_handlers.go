package server

import (
	"strconv"

	"fanlive/internal/models"

	"github.com/gofiber/fiber/v2"
)

// CallDetailsResponse is what a call participant needs to join the room.
type CallDetailsResponse struct {
	AppID         string `json:"appId"`
	Cert          string `json:"cert"`
	Token         string `json:"token"`
	ParticipantID int    `json:"participantId"`
}

// GetCallDetails handles GET /api/agora/details
// @Summary Issue a call room credential
// @Description The caller must be user_id and a participant of the active call in room_id.
// @Tags calls
// @Produce json
// @Param room_id query string true "Room ID"
// @Param user_id query string true "Caller user ID"
// @Success 200 {object} models.SuccessResponse{data=CallDetailsResponse}
// @Failure 400 {object} models.ErrorResponse
// @Failure 403 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /agora/details [get]
func (s *Server) GetCallDetails(c *fiber.Ctx) error {
	roomID := c.Query("room_id")
	rawUser := c.Query("user_id")
	if roomID == "" || rawUser == "" {
		return respond(c, models.NewInvalidInputError("room_id and user_id are required"))
	}
	userID, err := strconv.ParseUint(rawUser, 10, 32)
	if err != nil {
		return respond(c, models.NewInvalidInputError("Invalid user_id"))
	}
	if uint(userID) != callerID(c) {
		return respond(c, models.NewForbiddenError("user_id does not match the caller"))
	}

	cred, err := s.details.CallCredential(c.UserContext(), callerID(c), roomID)
	if err != nil {
		switch models.ErrorCode(err) {
		case models.CodeNotFound, models.CodeUnauthorized, models.CodeInactive:
			return respond(c, models.NewForbiddenError("No access to this room"))
		case models.CodeConfigUnavailable:
			return models.RespondWithError(c, fiber.StatusNotFound, err)
		}
		return respond(c, err)
	}

	return models.RespondOK(c, "Call details", CallDetailsResponse{
		AppID:         cred.AppID,
		Cert:          cred.KeyID,
		Token:         cred.Token,
		ParticipantID: cred.ParticipantID,
	})
}
