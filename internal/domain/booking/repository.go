package booking

import (
	"context"
	"time"

	"roomies/internal/domain/rooms"
)

// Repository persists bookings with optimistic versioning. Save fails with ErrConcurrentUpdate
// when the stored version moved since the booking was loaded and with ErrDuplicateActiveBooking
// when a second open booking would exist for the same renter and room.
type Repository interface {
	ByID(ctx context.Context, id BookingID) (*Booking, error)
	Save(ctx context.Context, b *Booking) error
	// FindOpen returns the non-terminal booking of renter for room or ErrBookingNotFound.
	FindOpen(ctx context.Context, renterID string, roomID rooms.RoomID) (*Booking, error)
	ListByRenter(ctx context.Context, renterID string) ([]*Booking, error)
	// ListByOwner filters by state unless state is empty.
	ListByOwner(ctx context.Context, ownerID rooms.OwnerID, state State) ([]*Booking, error)
	ListActiveEndingBefore(ctx context.Context, cutoff time.Time, limit int) ([]*Booking, error)
}
