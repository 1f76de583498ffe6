package memory

import (
	"context"
	"fmt"

	domainrooms "roomies/internal/domain/rooms"
)

// slotStore claims slots directly on the committed state so concurrent units see the claim
// immediately. A rollback hands the claim back; releases wait for commit.
type slotStore struct {
	unit *Unit
}

func (s slotStore) TryReserve(_ context.Context, roomID domainrooms.RoomID, bookingID string) error {
	if err := s.unit.writable(); err != nil {
		return err
	}
	store := s.unit.store
	store.mu.Lock()
	defer store.mu.Unlock()
	room, ok := store.rooms[roomID]
	if !ok {
		return fmt.Errorf("%w: %s", domainrooms.ErrRoomNotFound, roomID)
	}
	held := store.holders[roomID]
	if _, already := held[bookingID]; already {
		return nil
	}
	if room.OccupiedSlots >= room.TotalSlots {
		return fmt.Errorf("%w: room %s", domainrooms.ErrNoSlotsAvailable, roomID)
	}
	if held == nil {
		held = make(map[string]struct{})
		store.holders[roomID] = held
	}
	held[bookingID] = struct{}{}
	room.OccupiedSlots++
	store.rooms[roomID] = room
	s.unit.reserved = append(s.unit.reserved, slotClaim{room: roomID, booking: bookingID})
	return nil
}

func (s slotStore) Release(_ context.Context, roomID domainrooms.RoomID, bookingID string) error {
	if err := s.unit.writable(); err != nil {
		return err
	}
	s.unit.released = append(s.unit.released, slotClaim{room: roomID, booking: bookingID})
	return nil
}

type slotClaim struct {
	room    domainrooms.RoomID
	booking string
}

func (s *Store) releaseLocked(c slotClaim) {
	held := s.holders[c.room]
	if _, ok := held[c.booking]; !ok {
		return
	}
	delete(held, c.booking)
	room, ok := s.rooms[c.room]
	if !ok {
		return
	}
	if room.OccupiedSlots > 0 {
		room.OccupiedSlots--
	}
	s.rooms[c.room] = room
}

var _ domainrooms.SlotStore = slotStore{}
