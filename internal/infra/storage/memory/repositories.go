package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	domainbooking "roomies/internal/domain/booking"
	domaincommissions "roomies/internal/domain/commissions"
	domainrefunds "roomies/internal/domain/refunds"
	domainrooms "roomies/internal/domain/rooms"
)

type bookingRepo struct {
	unit *Unit
}

func (r bookingRepo) ByID(_ context.Context, id domainbooking.BookingID) (*domainbooking.Booking, error) {
	if st, ok := r.unit.bookings[id]; ok {
		return st.booking.Clone(), nil
	}
	b, ok := r.unit.store.Booking(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", domainbooking.ErrBookingNotFound, id)
	}
	return b, nil
}

// Save stages b. b.Version must be the version it was loaded at; it is bumped on success.
func (r bookingRepo) Save(_ context.Context, b *domainbooking.Booking) error {
	if err := r.unit.writable(); err != nil {
		return err
	}
	if st, ok := r.unit.bookings[b.ID]; ok {
		if st.booking.Version != b.Version {
			return fmt.Errorf("%w: %s", domainbooking.ErrConcurrentUpdate, b.ID)
		}
		b.Version++
		st.booking = b.Clone()
		return nil
	}

	store := r.unit.store
	store.mu.Lock()
	current, exists := store.bookings[b.ID]
	conflict := (exists && current.Version != b.Version) || (!exists && b.Version != 0)
	duplicate := !conflict && store.openConflictLocked(b, r.unit.bookings)
	store.mu.Unlock()
	if conflict {
		return fmt.Errorf("%w: %s", domainbooking.ErrConcurrentUpdate, b.ID)
	}
	if duplicate {
		return fmt.Errorf("%w: renter %s room %s", domainbooking.ErrDuplicateActiveBooking, b.RenterID, b.RoomID)
	}

	expected := b.Version
	b.Version++
	r.unit.bookings[b.ID] = &stagedBooking{booking: b.Clone(), expected: expected}
	return nil
}

func (r bookingRepo) FindOpen(_ context.Context, renterID string, roomID domainrooms.RoomID) (*domainbooking.Booking, error) {
	for _, b := range r.snapshot() {
		if b.RenterID == renterID && b.RoomID == roomID && b.Open() {
			return b, nil
		}
	}
	return nil, fmt.Errorf("%w: open booking for renter %s room %s", domainbooking.ErrBookingNotFound, renterID, roomID)
}

func (r bookingRepo) ListByRenter(_ context.Context, renterID string) ([]*domainbooking.Booking, error) {
	return r.filter(func(b *domainbooking.Booking) bool { return b.RenterID == renterID }), nil
}

func (r bookingRepo) ListByOwner(_ context.Context, ownerID domainrooms.OwnerID, state domainbooking.State) ([]*domainbooking.Booking, error) {
	return r.filter(func(b *domainbooking.Booking) bool {
		return b.OwnerID == ownerID && (state == "" || b.State == state)
	}), nil
}

func (r bookingRepo) ListActiveEndingBefore(_ context.Context, cutoff time.Time, limit int) ([]*domainbooking.Booking, error) {
	var out []*domainbooking.Booking
	for _, b := range r.snapshot() {
		if b.State == domainbooking.StateActive && !b.ContractEnd.IsZero() && b.ContractEnd.Before(cutoff) {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ContractEnd.Before(out[j].ContractEnd) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// filter returns matching bookings newest first.
func (r bookingRepo) filter(keep func(*domainbooking.Booking) bool) []*domainbooking.Booking {
	out := make([]*domainbooking.Booking, 0)
	for _, b := range r.snapshot() {
		if keep(b) {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// snapshot merges committed bookings with the ones staged in this unit.
func (r bookingRepo) snapshot() []*domainbooking.Booking {
	store := r.unit.store
	store.mu.Lock()
	out := make([]*domainbooking.Booking, 0, len(store.bookings)+len(r.unit.bookings))
	for id, b := range store.bookings {
		if _, staged := r.unit.bookings[id]; staged {
			continue
		}
		out = append(out, b.Clone())
	}
	store.mu.Unlock()
	for _, st := range r.unit.bookings {
		out = append(out, st.booking.Clone())
	}
	return out
}

type roomRepo struct {
	unit *Unit
}

func (r roomRepo) ByID(_ context.Context, id domainrooms.RoomID) (*domainrooms.Room, error) {
	if room, ok := r.unit.rooms[id]; ok {
		return &room, nil
	}
	room, ok := r.unit.store.Room(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", domainrooms.ErrRoomNotFound, id)
	}
	return &room, nil
}

func (r roomRepo) Save(_ context.Context, room *domainrooms.Room) error {
	if err := r.unit.writable(); err != nil {
		return err
	}
	if err := room.Validate(); err != nil {
		return err
	}
	r.unit.rooms[room.ID] = *room
	return nil
}

type commissionRepo struct {
	unit *Unit
}

func (r commissionRepo) ByBooking(_ context.Context, bookingID string) (*domaincommissions.Commission, error) {
	if c, ok := r.unit.commissions[bookingID]; ok {
		return &c, nil
	}
	store := r.unit.store
	store.mu.Lock()
	c, ok := store.commissions[bookingID]
	store.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: booking %s", domaincommissions.ErrCommissionNotFound, bookingID)
	}
	return &c, nil
}

func (r commissionRepo) Save(_ context.Context, c *domaincommissions.Commission) error {
	if err := r.unit.writable(); err != nil {
		return err
	}
	r.unit.commissions[c.BookingID] = *c
	return nil
}

type refundRepo struct {
	unit *Unit
}

func (r refundRepo) ByBooking(_ context.Context, bookingID string) (*domainrefunds.Record, error) {
	if rec, ok := r.unit.refunds[bookingID]; ok {
		return &rec, nil
	}
	store := r.unit.store
	store.mu.Lock()
	rec, ok := store.refunds[bookingID]
	store.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: booking %s", domainrefunds.ErrRefundNotFound, bookingID)
	}
	return &rec, nil
}

func (r refundRepo) Save(_ context.Context, rec *domainrefunds.Record) error {
	if err := r.unit.writable(); err != nil {
		return err
	}
	r.unit.refunds[rec.BookingID] = *rec
	return nil
}

var (
	_ domainbooking.Repository     = bookingRepo{}
	_ domainrooms.Repository       = roomRepo{}
	_ domaincommissions.Repository = commissionRepo{}
	_ domainrefunds.Repository     = refundRepo{}
)
