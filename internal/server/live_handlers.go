package server

import (
	"strings"
	"time"

	"fanlive/internal/models"
	"fanlive/internal/service"

	"github.com/gofiber/fiber/v2"
)

const scheduleLayout = "2006-01-02 15:04"

// LiveRequest is the create/edit body. A present id turns the request into an edit.
type LiveRequest struct {
	ID           string   `json:"id"`
	Type         string   `json:"type" validate:"required,oneof=immediate scheduled"`
	Title        string   `json:"title" validate:"max=255"`
	Date         string   `json:"date" validate:"omitempty,datetime=2006-01-02"`
	Time         string   `json:"time" validate:"omitempty,datetime=15:04"`
	Timezone     string   `json:"timezone" validate:"omitempty,timezone"`
	Duration     int      `json:"duration" validate:"required,min=1,max=1440"`
	Price        int64    `json:"price" validate:"min=0"`
	Availability string   `json:"availability" validate:"omitempty,oneof=everyone subscribers followers"`
	GoalName     string   `json:"goal_name" validate:"max=100"`
	GoalAmount   int64    `json:"goal_amount"`
	GoalID       string   `json:"goal_id"`
	Activities   []string `json:"activities"`
	Coins        []int64  `json:"coins"`
}

// LiveCreateResponse is returned by create and edit.
type LiveCreateResponse struct {
	ID          string          `json:"id"`
	URL         string          `json:"url"`
	Live        LiveView        `json:"live"`
	Rescheduled bool            `json:"rescheduled"`
	Credential  *CredentialView `json:"credential,omitempty"`
}

// LiveDetailsResponse is the join/watch payload.
type LiveDetailsResponse struct {
	Live        LiveView          `json:"live"`
	Credential  *CredentialView   `json:"credential"`
	Earnings    *int64            `json:"earnings,omitempty"`
	TipEarnings *int64            `json:"tip_earnings,omitempty"`
	Bookings    *int64            `json:"bookings,omitempty"`
	Goal        *GoalProgressView `json:"goal"`
	TipMenu     []TipMenuView     `json:"tip_menu"`
	Viewers     int64             `json:"viewers"`
}

// FilterRequest applies a visual filter to a live.
type FilterRequest struct {
	ID     string `json:"id"`
	Filter string `json:"filter" validate:"max=40"`
}

// scheduledAt resolves date, time and timezone into a UTC instant that must lie in the future.
func (s *Server) scheduledAt(req *LiveRequest) (time.Time, error) {
	fields := map[string]string{}
	if req.Date == "" {
		fields["date"] = "is required"
	}
	if req.Time == "" {
		fields["time"] = "is required"
	}
	if req.Timezone == "" {
		fields["timezone"] = "is required"
	}
	if len(fields) > 0 {
		return time.Time{}, models.NewFieldValidationError("Validation failed", fields)
	}

	loc, err := time.LoadLocation(req.Timezone)
	if err != nil {
		return time.Time{}, models.NewFieldValidationError("Validation failed",
			map[string]string{"timezone": "must be an IANA timezone"})
	}
	at, err := time.ParseInLocation(scheduleLayout, req.Date+" "+req.Time, loc)
	if err != nil {
		return time.Time{}, models.NewFieldValidationError("Validation failed",
			map[string]string{"date": "must be a valid date and time"})
	}
	if !at.After(s.now()) {
		return time.Time{}, models.NewFieldValidationError("Validation failed",
			map[string]string{"date": "must be in the future"})
	}
	return at.UTC(), nil
}

// liveInput converts req into the service input, decoding the optional goal id.
func (s *Server) liveInput(c *fiber.Ctx, req *LiveRequest) (service.LiveInput, error) {
	in := service.LiveInput{
		Type:            models.LiveType(req.Type),
		Title:           strings.TrimSpace(req.Title),
		Timezone:        req.Timezone,
		DurationMinutes: req.Duration,
		Price:           req.Price,
		Availability:    req.Availability,
	}
	if in.Availability == "" {
		in.Availability = models.LiveAvailabilities[0]
	}

	if in.Type == models.LiveTypeScheduled {
		at, err := s.scheduledAt(req)
		if err != nil {
			_ = respond(c, err)
			return in, errResponseWritten
		}
		in.ScheduledAt = at
	}

	if req.GoalName != "" || req.GoalAmount != 0 || req.GoalID != "" {
		goal := service.GoalInput{Name: req.GoalName, Amount: req.GoalAmount}
		if req.GoalID != "" {
			id, err := s.decodeID(c, req.GoalID, "goal_id")
			if err != nil {
				return in, err
			}
			goal.GoalID = id
		}
		in.Goal = &goal
	}
	if req.Activities != nil || req.Coins != nil {
		in.TipMenu = &service.TipMenuInput{Activities: req.Activities, Coins: req.Coins}
	}
	return in, nil
}

// CreateLive handles POST /api/live/create
// @Summary Create or edit a live
// @Description Creates a live, or edits the live named by id. Rescheduling is limited by the admin settings.
// @Tags live
// @Accept json
// @Produce json
// @Param request body LiveRequest true "Live details"
// @Success 200 {object} models.SuccessResponse{data=LiveCreateResponse}
// @Failure 400 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Failure 422 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /live/create [post]
func (s *Server) CreateLive(c *fiber.Ctx) error {
	ctx := c.UserContext()
	userID := callerID(c)

	var req LiveRequest
	if err := s.bind(c, &req); err != nil {
		return nil
	}
	in, err := s.liveInput(c, &req)
	if err != nil {
		return nil
	}

	var res *service.LiveResult
	if req.ID != "" {
		liveID, err := s.decodeID(c, req.ID, "id")
		if err != nil {
			return nil
		}
		res, err = s.lives.Edit(ctx, userID, liveID, in)
		if err != nil {
			return respond(c, err)
		}
	} else {
		res, err = s.lives.Create(ctx, userID, in)
		if err != nil {
			return respond(c, err)
		}
	}

	id := s.codec.Encode(res.Live.ID)
	out := LiveCreateResponse{
		ID:          id,
		URL:         strings.TrimRight(s.config.AppURL, "/") + "/live/" + id,
		Live:        s.liveView(res.Live),
		Rescheduled: res.Rescheduled,
	}
	if res.Credential != nil {
		out.Credential = credentialView(*res.Credential)
	}
	return models.RespondOK(c, "Live saved", out)
}

// detailsResponse builds the join/watch payload. Earnings are only shown
// to the owner, where zero is a real value.
func (s *Server) detailsResponse(d *service.LiveDetails, owner bool) LiveDetailsResponse {
	out := LiveDetailsResponse{
		Live:       s.liveView(d.Live),
		Credential: credentialView(d.Credential),
		Goal:       s.progressView(d.Goal),
		TipMenu:    s.tipMenuViews(d.TipMenu),
		Viewers:    d.Viewers,
	}
	if owner {
		out.Earnings = &d.Earnings
		out.TipEarnings = &d.TipEarnings
		out.Bookings = &d.Bookings
	}
	return out
}

// GoLive handles GET /api/live/go/:id
// @Summary Join a live as its owner
// @Description Issues a publisher credential and returns earnings, bookings, goal, tip menu and viewers.
// @Tags live
// @Produce json
// @Param id path string true "Live ID"
// @Success 200 {object} models.SuccessResponse{data=LiveDetailsResponse}
// @Failure 400 {object} models.ErrorResponse
// @Failure 403 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Failure 503 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /live/go/{id} [get]
func (s *Server) GoLive(c *fiber.Ctx) error {
	liveID, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}
	details, err := s.details.Join(c.UserContext(), callerID(c), liveID)
	if err != nil {
		return respond(c, err)
	}
	return models.RespondOK(c, "Live details", s.detailsResponse(details, true))
}

// WatchLive handles GET /api/live/watch/:id
// @Summary Watch a booked live
// @Tags live
// @Produce json
// @Param id path string true "Live ID"
// @Success 200 {object} models.SuccessResponse{data=LiveDetailsResponse}
// @Failure 403 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /live/watch/{id} [get]
func (s *Server) WatchLive(c *fiber.Ctx) error {
	liveID, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}
	details, err := s.details.Watch(c.UserContext(), callerID(c), liveID)
	if err != nil {
		return respond(c, err)
	}
	return models.RespondOK(c, "Live details", s.detailsResponse(details, false))
}

// DeleteLive handles DELETE /api/live/delete/:id
// @Summary Delete a scheduled live
// @Tags live
// @Produce json
// @Param id path string true "Live ID"
// @Success 200 {object} models.SuccessResponse
// @Failure 400 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /live/delete/{id} [delete]
func (s *Server) DeleteLive(c *fiber.Ctx) error {
	liveID, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}
	if err := s.lives.Delete(c.UserContext(), callerID(c), liveID); err != nil {
		return respond(c, err)
	}
	return models.RespondOK(c, "Live deleted", fiber.Map{"id": c.Params("id")})
}

// GetFilter handles GET /api/live/filter?id=
// @Summary Get the visual filter of a live
// @Tags live
// @Produce json
// @Param id query string true "Live ID"
// @Success 200 {object} models.SuccessResponse
// @Failure 400 {object} models.ErrorResponse
// @Failure 403 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /live/filter [get]
func (s *Server) GetFilter(c *fiber.Ctx) error {
	liveID, err := s.decodeID(c, c.Query("id"), "id")
	if err != nil {
		return nil
	}
	filter, err := s.lives.GetFilter(c.UserContext(), callerID(c), liveID)
	if err != nil {
		return respond(c, err)
	}
	return models.RespondOK(c, "Live filter", fiber.Map{"filter": filter, "filters": models.LiveFilters})
}

// ApplyFilter handles POST /api/live/filter
// @Summary Apply a visual filter to a live
// @Description Unknown filters fall back to none.
// @Tags live
// @Accept json
// @Produce json
// @Param request body FilterRequest true "Filter"
// @Success 200 {object} models.SuccessResponse
// @Failure 400 {object} models.ErrorResponse
// @Failure 403 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /live/filter [post]
func (s *Server) ApplyFilter(c *fiber.Ctx) error {
	var req FilterRequest
	if err := s.bind(c, &req); err != nil {
		return nil
	}
	liveID, err := s.decodeID(c, req.ID, "id")
	if err != nil {
		return nil
	}
	filter, err := s.lives.ApplyFilter(c.UserContext(), callerID(c), liveID, req.Filter)
	if err != nil {
		return respond(c, err)
	}
	return models.RespondOK(c, "Filter applied", fiber.Map{"id": req.ID, "filter": filter})
}
