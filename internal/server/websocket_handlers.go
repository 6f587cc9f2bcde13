package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"fanlive/internal/cache"
	"fanlive/internal/middleware"
	"fanlive/internal/models"
	"fanlive/internal/notifications"
	"fanlive/internal/service"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
)

const (
	defaultSnapshotTimeout = 2 * time.Second
	// WSTicketTTL bounds how long an issued ticket can be redeemed.
	WSTicketTTL = 60 * time.Second

	wsLivePrefix = "/api/ws/live/"
)

var errInvalidWSTicket = errors.New("invalid websocket ticket")

// WSTicketResponse is returned by IssueWSTicket.
type WSTicketResponse struct {
	Ticket    string `json:"ticket"`
	ExpiresIn int    `json:"expires_in"`
}

// IssueWSTicket handles POST /api/ws/ticket
// @Summary Issue a websocket ticket
// @Description Returns a single-use ticket to pass as ?ticket= when opening /api/ws/live/{id}.
// @Tags live
// @Produce json
// @Success 200 {object} models.SuccessResponse{data=WSTicketResponse}
// @Failure 401 {object} models.ErrorResponse
// @Failure 503 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /ws/ticket [post]
func (s *Server) IssueWSTicket(c *fiber.Ctx) error {
	if s.redis == nil {
		return respond(c, models.NewConfigUnavailableError("Live updates are unavailable"))
	}
	userID := callerID(c)
	ticket := uuid.NewString()
	if err := s.redis.Set(c.Context(), cache.WSTicketKey(ticket), strconv.FormatUint(uint64(userID), 10), WSTicketTTL).Err(); err != nil {
		return respond(c, models.NewInternalError(err))
	}
	return models.RespondOK(c, "WebSocket ticket issued", WSTicketResponse{Ticket: ticket, ExpiresIn: int(WSTicketTTL / time.Second)})
}

// redeemWSTicket consumes a ticket atomically, so a second use fails.
func (s *Server) redeemWSTicket(ctx context.Context, ticket string) (uint, error) {
	if s.redis == nil {
		return 0, errInvalidWSTicket
	}
	raw, err := s.redis.GetDel(ctx, cache.WSTicketKey(ticket)).Result()
	if err != nil {
		return 0, errInvalidWSTicket
	}
	userID, err := strconv.ParseUint(raw, 10, 32)
	if err != nil || userID == 0 {
		return 0, errInvalidWSTicket
	}
	return uint(userID), nil
}

// authorizeLiveSocket runs before the upgrade: the caller must own the live
// or hold a booking for it, and the live must still be scheduled.
func (s *Server) authorizeLiveSocket(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}
	if s.hub == nil {
		return respond(c, models.NewConfigUnavailableError("Live updates are unavailable"))
	}
	liveID, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}
	ctx := c.UserContext()
	userID := callerID(c)

	live, err := s.store.Lives.GetByID(ctx, liveID)
	if err != nil {
		return respond(c, err)
	}
	if live.Status != models.LiveStatusScheduled {
		return respond(c, models.NewInvalidStateError("Live stream is "+live.Status.String()))
	}
	viewer := live.UserID != userID
	if viewer {
		booked, err := s.store.Earnings.HasBooking(ctx, live.ID, userID)
		if err != nil {
			return respond(c, err)
		}
		if !booked {
			return respond(c, models.NewForbiddenError("You have not booked this live"))
		}
	}

	c.Locals("liveID", live.ID)
	c.Locals("viewer", viewer)
	return nil
}

// WebSocketLiveHandler handles GET /api/ws/live/:id. Viewers count towards
// the live's presence set; everyone receives goal, menu and filter events.
func (s *Server) WebSocketLiveHandler() fiber.Handler {
	upgrade := websocket.New(func(conn *websocket.Conn) {
		middleware.ActiveWebSockets.Inc()
		defer middleware.ActiveWebSockets.Dec()

		userID, _ := conn.Locals("userID").(uint)
		liveID, _ := conn.Locals("liveID").(uint)
		viewer, _ := conn.Locals("viewer").(bool)
		if userID == 0 || liveID == 0 {
			_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"error":"unauthorized"}`))
			_ = conn.Close()
			return
		}

		client, err := s.hub.Register(liveID, userID, viewer, conn)
		if err != nil {
			middleware.Logger.Warn("live websocket rejected",
				slog.Uint64("user_id", uint64(userID)),
				slog.Uint64("live_id", uint64(liveID)),
				slog.String("error", err.Error()),
			)
			_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"error":"`+err.Error()+`"}`))
			_ = conn.Close()
			return
		}

		s.sendGoalSnapshot(client)

		go client.WritePump()
		client.ReadPump()
	})
	return func(c *fiber.Ctx) error {
		if err := s.authorizeLiveSocket(c); err != nil {
			return err
		}
		// Rejections were already written.
		if c.Locals("liveID") == nil {
			return nil
		}
		return upgrade(c)
	}
}

// sendGoalSnapshot primes a new client with the mirrored goal progress.
func (s *Server) sendGoalSnapshot(client *notifications.Client) {
	if s.mirror == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), defaultSnapshotTimeout)
	defer cancel()
	progress, ok, err := s.mirror.Get(ctx, client.LiveID)
	if err != nil || !ok {
		return
	}
	body, err := json.Marshal(notifications.LiveEvent{Type: service.EventGoalProgress, Payload: progress})
	if err != nil {
		return
	}
	client.TrySend(body)
}
