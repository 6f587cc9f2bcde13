package server

import (
	"errors"
	"log/slog"
	"reflect"
	"strings"
	"time"

	"fanlive/internal/middleware"
	"fanlive/internal/models"
	"fanlive/internal/rtc"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
)

// errResponseWritten is a sentinel indicating the HTTP response was already
// committed by a helper. Handlers must return nil (not this error) to avoid
// Fiber's ErrorHandler overwriting the response.
var errResponseWritten = errors.New("response already written")

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// callerID is the authenticated user set by AuthRequired.
func callerID(c *fiber.Ctx) uint {
	id, _ := c.Locals("userID").(uint)
	return id
}

// respond writes err with its mapped status and returns nil. Server-side
// failures are logged with their cause.
func respond(c *fiber.Ctx, err error) error {
	if models.StatusFor(err) >= fiber.StatusInternalServerError {
		middleware.Logger.ErrorContext(c.UserContext(), "request failed",
			slog.String("path", c.Path()),
			slog.String("code", models.ErrorCode(err)),
			slog.String("error", err.Error()),
		)
	}
	return models.RespondAppError(c, err)
}

// decodeID turns an opaque id into a row id. An empty or foreign token
// writes a 400 and returns errResponseWritten.
func (s *Server) decodeID(c *fiber.Ctx, raw, field string) (uint, error) {
	if strings.TrimSpace(raw) == "" {
		_ = respond(c, models.NewInvalidInputError(field+" is required"))
		return 0, errResponseWritten
	}
	id, ok := s.codec.Decode(raw)
	if !ok {
		_ = respond(c, models.NewInvalidInputError("Invalid "+field))
		return 0, errResponseWritten
	}
	if field == "id" {
		c.SetUserContext(middleware.WithLiveID(c.UserContext(), id))
	}
	return id, nil
}

// parseID decodes the route parameter param.
func (s *Server) parseID(c *fiber.Ctx, param string) (uint, error) {
	return s.decodeID(c, c.Params(param), param)
}

// bind parses the JSON body into req and validates it. Malformed bodies are
// 400, rule failures 422 with per-field messages.
func (s *Server) bind(c *fiber.Ctx, req any) error {
	if err := c.BodyParser(req); err != nil {
		_ = respond(c, models.NewInvalidInputError("Invalid request body"))
		return errResponseWritten
	}
	if err := s.validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			_ = respond(c, models.NewInternalError(err))
			return errResponseWritten
		}
		fields := make(map[string]string, len(verrs))
		for _, fe := range verrs {
			fields[fe.Field()] = validationMessage(fe)
		}
		_ = respond(c, models.NewFieldValidationError("Validation failed", fields))
		return errResponseWritten
	}
	return nil
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "oneof":
		return "must be one of: " + fe.Param()
	case "min":
		return "must be at least " + fe.Param()
	case "max":
		return "must be at most " + fe.Param()
	case "datetime":
		return "must match " + fe.Param()
	case "timezone":
		return "must be an IANA timezone"
	default:
		return "is invalid"
	}
}

// LiveView is the public shape of a live.
type LiveView struct {
	ID              string    `json:"id"`
	ChannelName     string    `json:"channel_name"`
	Type            string    `json:"type"`
	Title           string    `json:"title"`
	ScheduledAt     time.Time `json:"scheduled_at"`
	Timezone        string    `json:"timezone"`
	Duration        int       `json:"duration"`
	Price           int64     `json:"price"`
	Availability    string    `json:"availability"`
	Status          int       `json:"status"`
	StatusName      string    `json:"status_name"`
	RescheduleCount int       `json:"reschedule_count"`
	CreatorJoined   bool      `json:"creator_joined"`
	Filter          string    `json:"filter"`
}

func (s *Server) liveView(l *models.Live) LiveView {
	return LiveView{
		ID:              s.codec.Encode(l.ID),
		ChannelName:     l.ChannelName,
		Type:            string(l.Type),
		Title:           l.Title,
		ScheduledAt:     l.ScheduledAt.UTC(),
		Timezone:        l.Timezone,
		Duration:        l.DurationMinutes,
		Price:           l.Price,
		Availability:    l.Availability,
		Status:          int(l.Status),
		StatusName:      l.Status.String(),
		RescheduleCount: l.RescheduleCount,
		CreatorJoined:   l.CreatorJoined,
		Filter:          models.SanitizeFilter(l.Filter),
	}
}

type GoalView struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Amount int64  `json:"amount"`
	Active bool   `json:"active"`
}

func (s *Server) goalViews(goals []models.LiveGoal) []GoalView {
	out := make([]GoalView, 0, len(goals))
	for _, g := range goals {
		out = append(out, GoalView{ID: s.codec.Encode(g.ID), Name: g.Name, Amount: g.Amount, Active: g.Active})
	}
	return out
}

type GoalProgressView struct {
	GoalID     string `json:"goal_id,omitempty"`
	Name       string `json:"name"`
	Amount     int64  `json:"amount"`
	Tips       int64  `json:"tips"`
	Percentage int64  `json:"percentage"`
}

func (s *Server) progressView(p *models.GoalProgress) *GoalProgressView {
	if p == nil {
		return nil
	}
	v := &GoalProgressView{Name: p.Name, Amount: p.Amount, Tips: p.Tips, Percentage: p.Percentage}
	if p.GoalID != 0 {
		v.GoalID = s.codec.Encode(p.GoalID)
	}
	return v
}

type TipMenuView struct {
	ID       string `json:"id"`
	Activity string `json:"activity"`
	Coins    int64  `json:"coins"`
}

func (s *Server) tipMenuViews(items []models.LiveTipMenu) []TipMenuView {
	out := make([]TipMenuView, 0, len(items))
	for _, m := range items {
		out = append(out, TipMenuView{ID: s.codec.Encode(m.ID), Activity: m.Activity, Coins: m.Coins})
	}
	return out
}

type CredentialView struct {
	AppID         string    `json:"app_id"`
	Channel       string    `json:"channel"`
	Token         string    `json:"token"`
	ParticipantID int       `json:"participant_id"`
	Role          string    `json:"role"`
	ExpiresAt     time.Time `json:"expires_at"`
}

func credentialView(c rtc.Credential) *CredentialView {
	return &CredentialView{
		AppID:         c.AppID,
		Channel:       c.Channel,
		Token:         c.Token,
		ParticipantID: c.ParticipantID,
		Role:          string(c.Role),
		ExpiresAt:     c.ExpiresAt.UTC(),
	}
}
