package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"

	"fanlive/internal/cache"
	"fanlive/internal/middleware"
	"fanlive/internal/models"

	"github.com/gofiber/websocket/v2"
)

const (
	// Max connections per user within one live
	maxConnsPerUser = 4
	// Max total connections
	maxTotalConns = 10000
)

var (
	ErrServerFull = errors.New("server connection limit reached")
	ErrUserFull   = errors.New("user connection limit reached")
)

// Hub maps liveID -> connected clients and keeps the viewer set in Redis current.
type Hub struct {
	mu         sync.RWMutex
	rooms      map[uint]map[*Client]struct{}
	totalConns int
	viewers    *cache.ViewerSet
}

func NewHub(viewers *cache.ViewerSet) *Hub {
	return &Hub{
		rooms:   make(map[uint]map[*Client]struct{}),
		viewers: viewers,
	}
}

// Name returns a human-readable identifier for this hub.
func (h *Hub) Name() string { return "live hub" }

// Register adds a connection of userID to liveID. Viewers are added to the
// live's viewer set.
func (h *Hub) Register(liveID, userID uint, viewer bool, conn *websocket.Conn) (*Client, error) {
	h.mu.Lock()

	if h.totalConns >= maxTotalConns {
		h.mu.Unlock()
		return nil, ErrServerFull
	}

	room, ok := h.rooms[liveID]
	if !ok {
		room = make(map[*Client]struct{})
		h.rooms[liveID] = room
	}
	if h.countUserLocked(room, userID) >= maxConnsPerUser {
		h.mu.Unlock()
		return nil, ErrUserFull
	}

	client := NewClient(h, conn, liveID, userID, viewer)
	room[client] = struct{}{}
	h.totalConns++
	h.mu.Unlock()

	if viewer {
		if err := h.viewers.Add(context.Background(), liveID, userID); err != nil {
			middleware.Logger.Warn("viewer add failed", slog.Uint64("live_id", uint64(liveID)), slog.String("error", err.Error()))
		}
	}
	return client, nil
}

func (h *Hub) countUserLocked(room map[*Client]struct{}, userID uint) int {
	n := 0
	for c := range room {
		if c.UserID == userID {
			n++
		}
	}
	return n
}

// UnregisterClient removes client. The viewer leaves the set when its last
// connection to the live closes.
func (h *Hub) UnregisterClient(client *Client) {
	h.mu.Lock()
	removed, last := false, false
	if room, ok := h.rooms[client.LiveID]; ok {
		if _, exists := room[client]; exists {
			delete(room, client)
			h.totalConns--
			removed = true
			last = h.countUserLocked(room, client.UserID) == 0
		}
		if len(room) == 0 {
			delete(h.rooms, client.LiveID)
		}
	}
	h.mu.Unlock()

	if removed && last && client.Viewer {
		if err := h.viewers.Remove(context.Background(), client.LiveID, client.UserID); err != nil {
			middleware.Logger.Warn("viewer remove failed", slog.Uint64("live_id", uint64(client.LiveID)), slog.String("error", err.Error()))
		}
	}
}

// BroadcastLive sends message to every connection of liveID.
func (h *Hub) BroadcastLive(liveID uint, message string) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	data := []byte(message)
	for c := range h.rooms[liveID] {
		c.TrySend(data)
	}
}

// BroadcastUser sends message to every connection of userID across lives.
func (h *Hub) BroadcastUser(userID uint, message string) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	data := []byte(message)
	for _, room := range h.rooms {
		for c := range room {
			if c.UserID == userID {
				c.TrySend(data)
			}
		}
	}
}

// Connections returns the number of open connections to liveID on this node.
func (h *Hub) Connections(liveID uint) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[liveID])
}

// StartWiring forwards live events and user notifications from n to the
// matching connections.
func (h *Hub) StartWiring(ctx context.Context, n *Notifier) error {
	if err := n.StartLiveSubscriber(ctx, func(channel, payload string) {
		liveID, ok := ParseLiveChannel(channel)
		if !ok {
			middleware.Logger.Warn("invalid live channel", slog.String("channel", channel))
			return
		}
		h.BroadcastLive(liveID, payload)

		var ev struct {
			Type string `json:"type"`
		}
		if json.Unmarshal([]byte(payload), &ev) == nil &&
			(ev.Type == models.LiveEventDeleted || ev.Type == models.LiveEventExpired) {
			h.EndLive(ctx, liveID)
		}
	}); err != nil {
		return err
	}
	return n.StartUserSubscriber(ctx, func(channel, payload string) {
		userID, ok := ParseUserChannel(channel)
		if !ok {
			middleware.Logger.Warn("invalid notification channel", slog.String("channel", channel))
			return
		}
		h.BroadcastUser(userID, payload)
	})
}

// EndLive disconnects everyone from liveID once their queued messages are
// written and empties its viewer set.
func (h *Hub) EndLive(ctx context.Context, liveID uint) {
	h.mu.Lock()
	room := h.rooms[liveID]
	delete(h.rooms, liveID)
	h.totalConns -= len(room)
	h.mu.Unlock()

	for client := range room {
		client.closeWith(websocket.CloseNormalClosure, "Live ended")
	}
	if err := h.viewers.Reset(ctx, liveID); err != nil {
		middleware.Logger.WarnContext(ctx, "viewer reset failed", slog.Uint64("live_id", uint64(liveID)), slog.String("error", err.Error()))
	}
}

// Shutdown closes every connection and clears the viewer sets this node owns.
// Each WritePump sends a going-away frame after draining its queue.
func (h *Hub) Shutdown(ctx context.Context) error {
	h.mu.Lock()
	rooms := h.rooms
	h.rooms = make(map[uint]map[*Client]struct{})
	h.totalConns = 0
	h.mu.Unlock()

	for liveID, room := range rooms {
		for client := range room {
			if client.Viewer {
				_ = h.viewers.Remove(ctx, liveID, client.UserID)
			}
			client.closeWith(websocket.CloseGoingAway, "Server shutting down")
		}
	}
	return nil
}
