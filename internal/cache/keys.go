package cache

import "fmt"

const (
	GoalMirrorKeyPrefix = "live:goal:%d"
	ViewerSetKeyPrefix  = "live:%d:viewers"
	LiveEventsPrefix    = "live:%d:events"
	RevokedTokenPrefix  = "auth:revoked:%s"
	WSTicketPrefix      = "ws_ticket:%s"
)

// GoalMirrorKey is the hash holding the mirrored goal of a live.
func GoalMirrorKey(liveID uint) string {
	return fmt.Sprintf(GoalMirrorKeyPrefix, liveID)
}

// ViewerSetKey is the set of user ids currently watching a live.
func ViewerSetKey(liveID uint) string {
	return fmt.Sprintf(ViewerSetKeyPrefix, liveID)
}

// LiveEventsChannel is the pub/sub channel for events of a live.
func LiveEventsChannel(liveID uint) string {
	return fmt.Sprintf(LiveEventsPrefix, liveID)
}

// RevokedTokenKey marks a revoked JWT id.
func RevokedTokenKey(jti string) string {
	return fmt.Sprintf(RevokedTokenPrefix, jti)
}

// WSTicketKey holds the user id a websocket ticket was issued to.
func WSTicketKey(ticket string) string {
	return fmt.Sprintf(WSTicketPrefix, ticket)
}
