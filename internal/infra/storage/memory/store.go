// Package memory is the in-process storage backend. It keeps every aggregate behind one mutex
// and applies a unit of work atomically on commit, which is enough to run the engine and its
// tests without a database.
package memory

import (
	"sync"

	"roomies/internal/app/outbox"
	domainbooking "roomies/internal/domain/booking"
	domaincommissions "roomies/internal/domain/commissions"
	domainrefunds "roomies/internal/domain/refunds"
	domainrooms "roomies/internal/domain/rooms"
)

// Store holds committed state. Reads hand out copies so callers never alias stored values.
type Store struct {
	mu          sync.Mutex
	rooms       map[domainrooms.RoomID]domainrooms.Room
	holders     map[domainrooms.RoomID]map[string]struct{}
	bookings    map[domainbooking.BookingID]*domainbooking.Booking
	commissions map[string]domaincommissions.Commission
	refunds     map[string]domainrefunds.Record
	tiers       map[domainrooms.OwnerID]domaincommissions.Tier
	pending     []outbox.EventRecord
}

func NewStore() *Store {
	return &Store{
		rooms:       make(map[domainrooms.RoomID]domainrooms.Room),
		holders:     make(map[domainrooms.RoomID]map[string]struct{}),
		bookings:    make(map[domainbooking.BookingID]*domainbooking.Booking),
		commissions: make(map[string]domaincommissions.Commission),
		refunds:     make(map[string]domainrefunds.Record),
		tiers:       make(map[domainrooms.OwnerID]domaincommissions.Tier),
	}
}

// SeedRoom adds or replaces a catalog room. Slots already held by bookings stay held.
func (s *Store) SeedRoom(room domainrooms.Room) error {
	if err := room.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.putRoomLocked(room)
	return nil
}

// SetTier records the commission tier of an owner.
func (s *Store) SetTier(tier domaincommissions.Tier) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tiers[tier.OwnerID] = tier
}

// Room returns the committed room including its live occupancy.
func (s *Store) Room(id domainrooms.RoomID) (domainrooms.Room, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	room, ok := s.rooms[id]
	return room, ok
}

// Booking returns a copy of the committed booking.
func (s *Store) Booking(id domainbooking.BookingID) (*domainbooking.Booking, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bookings[id]
	if !ok {
		return nil, false
	}
	return b.Clone(), true
}

func (s *Store) putRoomLocked(room domainrooms.Room) {
	if held := len(s.holders[room.ID]); held > room.OccupiedSlots {
		room.OccupiedSlots = held
	}
	s.rooms[room.ID] = room
}

// openConflictLocked reports whether another open booking exists for the renter and room.
func (s *Store) openConflictLocked(b *domainbooking.Booking, staged map[domainbooking.BookingID]*stagedBooking) bool {
	if !b.Open() {
		return false
	}
	for id, other := range s.bookings {
		if id == b.ID {
			continue
		}
		if st, ok := staged[id]; ok {
			other = st.booking
		}
		if sameOpenPair(b, other) {
			return true
		}
	}
	for id, st := range staged {
		if id == b.ID {
			continue
		}
		if _, committed := s.bookings[id]; committed {
			continue
		}
		if sameOpenPair(b, st.booking) {
			return true
		}
	}
	return false
}

func sameOpenPair(a, b *domainbooking.Booking) bool {
	return b.Open() && a.RenterID == b.RenterID && a.RoomID == b.RoomID
}
