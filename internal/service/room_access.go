package service

import (
	"context"

	"fanlive/internal/models"
	"fanlive/internal/repository"
)

// RoomAccess is the outcome of a room check.
type RoomAccess struct {
	Allowed bool
	Reason  string
	Call    *models.Call
}

// RoomAccessValidator decides whether a caller may receive credentials for a call room.
type RoomAccessValidator struct {
	calls repository.CallRepository
}

func NewRoomAccessValidator(calls repository.CallRepository) *RoomAccessValidator {
	return &RoomAccessValidator{calls: calls}
}

// Validate requires an active call in roomID with callerID on either side.
// The status is re-read after the participant check so a call that ended in
// between is reported as inactive.
func (v *RoomAccessValidator) Validate(ctx context.Context, roomID string, callerID uint) (RoomAccess, error) {
	call, err := v.calls.LatestActiveByRoom(ctx, roomID)
	if err != nil {
		return RoomAccess{Reason: "no active call"}, err
	}
	if !call.HasParticipant(callerID) {
		return RoomAccess{Reason: "not a participant", Call: call},
			models.NewUnauthorizedError("You are not a participant of this call")
	}

	current, err := v.calls.GetByID(ctx, call.ID)
	if err != nil {
		return RoomAccess{Reason: "call lookup failed", Call: call}, err
	}
	if !current.Status.IsActive() {
		return RoomAccess{Reason: "call is no longer active", Call: current},
			models.NewInactiveError("Call is no longer active")
	}
	return RoomAccess{Allowed: true, Call: current}, nil
}
