package memory

import (
	"context"
	"errors"
	"fmt"

	"roomies/internal/app/outbox"
	"roomies/internal/app/uow"
	domainbooking "roomies/internal/domain/booking"
	domaincommissions "roomies/internal/domain/commissions"
	domainrefunds "roomies/internal/domain/refunds"
	domainrooms "roomies/internal/domain/rooms"
)

var (
	ErrFactoryMisconfigured = errors.New("memory: unit of work factory misconfigured")
	ErrUnitClosed           = errors.New("memory: unit of work already finished")
	ErrReadOnlyUnit         = errors.New("memory: write in read-only unit of work")
)

// Factory begins units over one Store.
type Factory struct {
	Store *Store
}

func (f Factory) Begin(_ context.Context, opts uow.TxOptions) (uow.UnitOfWork, error) {
	if f.Store == nil {
		return nil, ErrFactoryMisconfigured
	}
	return &Unit{
		store:       f.Store,
		readOnly:    opts.ReadOnly,
		bookings:    make(map[domainbooking.BookingID]*stagedBooking),
		rooms:       make(map[domainrooms.RoomID]domainrooms.Room),
		commissions: make(map[string]domaincommissions.Commission),
		refunds:     make(map[string]domainrefunds.Record),
	}, nil
}

type stagedBooking struct {
	booking  *domainbooking.Booking
	expected int64
}

// Unit stages writes and applies them under the store lock on Commit. Booking versions are
// checked again at that point, so two units racing on one booking cannot both commit.
type Unit struct {
	store    *Store
	readOnly bool
	done     bool

	bookings    map[domainbooking.BookingID]*stagedBooking
	rooms       map[domainrooms.RoomID]domainrooms.Room
	commissions map[string]domaincommissions.Commission
	refunds     map[string]domainrefunds.Record
	records     []outbox.EventRecord
	reserved    []slotClaim
	released    []slotClaim
}

func (u *Unit) Bookings() domainbooking.Repository        { return bookingRepo{unit: u} }
func (u *Unit) Rooms() domainrooms.Repository             { return roomRepo{unit: u} }
func (u *Unit) Slots() domainrooms.SlotStore              { return slotStore{unit: u} }
func (u *Unit) Commissions() domaincommissions.Repository { return commissionRepo{unit: u} }
func (u *Unit) Refunds() domainrefunds.Repository         { return refundRepo{unit: u} }
func (u *Unit) Outbox() outbox.Outbox                     { return unitOutbox{unit: u} }

func (u *Unit) Commit(context.Context) error {
	if u.done {
		return ErrUnitClosed
	}
	s := u.store
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, st := range u.bookings {
		current, exists := s.bookings[id]
		switch {
		case !exists && st.expected != 0:
			u.abortLocked()
			return fmt.Errorf("%w: %s vanished", domainbooking.ErrConcurrentUpdate, id)
		case exists && current.Version != st.expected:
			u.abortLocked()
			return fmt.Errorf("%w: %s at version %d, expected %d", domainbooking.ErrConcurrentUpdate, id, current.Version, st.expected)
		}
		if s.openConflictLocked(st.booking, u.bookings) {
			u.abortLocked()
			return fmt.Errorf("%w: renter %s room %s", domainbooking.ErrDuplicateActiveBooking, st.booking.RenterID, st.booking.RoomID)
		}
	}

	for id, st := range u.bookings {
		s.bookings[id] = st.booking.Clone()
	}
	for _, room := range u.rooms {
		s.putRoomLocked(room)
	}
	for _, c := range u.released {
		s.releaseLocked(c)
	}
	for key, c := range u.commissions {
		s.commissions[key] = c
	}
	for key, r := range u.refunds {
		s.refunds[key] = r
	}
	s.pending = append(s.pending, u.records...)
	u.done = true
	return nil
}

func (u *Unit) Rollback(context.Context) error {
	if u.done {
		return nil
	}
	u.store.mu.Lock()
	defer u.store.mu.Unlock()
	u.abortLocked()
	return nil
}

// abortLocked returns slots this unit claimed and discards its staged writes.
func (u *Unit) abortLocked() {
	for i := len(u.reserved) - 1; i >= 0; i-- {
		u.store.releaseLocked(u.reserved[i])
	}
	u.reserved = nil
	u.done = true
}

func (u *Unit) writable() error {
	if u.done {
		return ErrUnitClosed
	}
	if u.readOnly {
		return ErrReadOnlyUnit
	}
	return nil
}

var _ uow.UoWFactory = Factory{}
