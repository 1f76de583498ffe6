package rooms

import (
	"context"
	"errors"
	"fmt"

	"roomies/internal/domain/shared/money"
)

var (
	ErrRoomNotFound      = errors.New("rooms: room not found")
	ErrNoSlotsAvailable  = errors.New("rooms: no slots available")
	ErrInvalidCapacity   = errors.New("rooms: occupied slots must be within total slots")
	ErrRoomOwnerRequired = errors.New("rooms: owner id required")
)

type RoomID string

type OwnerID string

// Room is the catalog projection the settlement engine reads. Listing details live elsewhere.
type Room struct {
	ID            RoomID
	OwnerID       OwnerID
	Title         string
	MonthlyRent   money.Money
	TotalSlots    int
	OccupiedSlots int
}

// AvailableSlots never reports a negative number.
func (r Room) AvailableSlots() int {
	free := r.TotalSlots - r.OccupiedSlots
	if free < 0 {
		return 0
	}
	return free
}

// HasFreeSlot reports whether at least one occupancy unit is unclaimed.
func (r Room) HasFreeSlot() bool {
	return r.AvailableSlots() > 0
}

// Validate checks 0 <= occupied <= total and a non-negative rent.
func (r Room) Validate() error {
	if r.OwnerID == "" {
		return ErrRoomOwnerRequired
	}
	if r.TotalSlots < 0 || r.OccupiedSlots < 0 || r.OccupiedSlots > r.TotalSlots {
		return fmt.Errorf("%w: %d/%d", ErrInvalidCapacity, r.OccupiedSlots, r.TotalSlots)
	}
	if r.MonthlyRent.IsNegative() {
		return fmt.Errorf("rooms: %w", money.ErrInvalidAmount)
	}
	return nil
}

// Repository is the room catalog port. Save exists for seeding; occupancy is only changed
// through a SlotStore.
type Repository interface {
	ByID(ctx context.Context, id RoomID) (*Room, error)
	Save(ctx context.Context, room *Room) error
}

// SlotStore grants and returns occupancy units. Implementations must make TryReserve a single
// atomic compare-and-increment per room and must remember which booking holds a slot so that
// Release is idempotent.
type SlotStore interface {
	// TryReserve claims one slot for bookingID. Returns ErrNoSlotsAvailable when the room is full
	// and nil when bookingID already holds a slot.
	TryReserve(ctx context.Context, roomID RoomID, bookingID string) error
	// Release returns the slot held by bookingID. Releasing a slot that is not held is a no-op.
	Release(ctx context.Context, roomID RoomID, bookingID string) error
}
