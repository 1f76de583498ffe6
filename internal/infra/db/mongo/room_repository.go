package mongo

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	domainrooms "roomies/internal/domain/rooms"
)

type RoomRepository struct {
	col *mongo.Collection
}

func NewRoomRepository(db *mongo.Database) *RoomRepository {
	return &RoomRepository{col: db.Collection(colRooms)}
}

func (r *RoomRepository) ByID(ctx context.Context, id domainrooms.RoomID) (*domainrooms.Room, error) {
	var doc roomDocument
	if err := r.col.FindOne(ctx, bson.M{"_id": string(id)}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("%w: %s", domainrooms.ErrRoomNotFound, id)
		}
		return nil, err
	}
	return doc.toRoom(), nil
}

// Save upserts catalog fields. Occupancy and holders are owned by SlotStore and only set when
// the room is first inserted.
func (r *RoomRepository) Save(ctx context.Context, room *domainrooms.Room) error {
	if err := room.Validate(); err != nil {
		return err
	}
	doc := newRoomDocument(room)
	update := bson.M{
		"$set": bson.M{
			"owner_id":     doc.OwnerID,
			"title":        doc.Title,
			"monthly_rent": doc.MonthlyRent,
			"total_slots":  doc.TotalSlots,
		},
		"$setOnInsert": bson.M{
			"occupied_slots": doc.OccupiedSlots,
			"holders":        []string{},
		},
	}
	_, err := r.col.UpdateByID(ctx, doc.ID, update, options.Update().SetUpsert(true))
	return err
}

// SlotStore claims occupancy with a single conditional update per room, so two transactions
// can never both take the last slot.
type SlotStore struct {
	col *mongo.Collection
}

func NewSlotStore(db *mongo.Database) *SlotStore {
	return &SlotStore{col: db.Collection(colRooms)}
}

func (s *SlotStore) TryReserve(ctx context.Context, roomID domainrooms.RoomID, bookingID string) error {
	filter := bson.M{
		"_id":     string(roomID),
		"holders": bson.M{"$ne": bookingID},
		"$expr":   bson.M{"$lt": bson.A{"$occupied_slots", "$total_slots"}},
	}
	update := bson.M{
		"$inc":      bson.M{"occupied_slots": 1},
		"$addToSet": bson.M{"holders": bookingID},
	}
	res, err := s.col.UpdateOne(ctx, filter, update)
	if err != nil {
		return err
	}
	if res.ModifiedCount == 1 {
		return nil
	}

	var doc roomDocument
	if err := s.col.FindOne(ctx, bson.M{"_id": string(roomID)}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return fmt.Errorf("%w: %s", domainrooms.ErrRoomNotFound, roomID)
		}
		return err
	}
	for _, holder := range doc.Holders {
		if holder == bookingID {
			return nil
		}
	}
	return fmt.Errorf("%w: room %s has %d/%d occupied", domainrooms.ErrNoSlotsAvailable, roomID, doc.OccupiedSlots, doc.TotalSlots)
}

func (s *SlotStore) Release(ctx context.Context, roomID domainrooms.RoomID, bookingID string) error {
	filter := bson.M{"_id": string(roomID), "holders": bookingID, "occupied_slots": bson.M{"$gt": 0}}
	update := bson.M{
		"$inc":  bson.M{"occupied_slots": -1},
		"$pull": bson.M{"holders": bookingID},
	}
	_, err := s.col.UpdateOne(ctx, filter, update)
	return err
}
