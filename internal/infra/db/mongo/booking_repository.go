package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	domainbooking "roomies/internal/domain/booking"
	domainrooms "roomies/internal/domain/rooms"
)

type BookingRepository struct {
	col *mongo.Collection
}

func NewBookingRepository(db *mongo.Database) *BookingRepository {
	return &BookingRepository{col: db.Collection(colBookings)}
}

func (r *BookingRepository) ByID(ctx context.Context, id domainbooking.BookingID) (*domainbooking.Booking, error) {
	return r.findOne(ctx, bson.M{"_id": string(id)}, string(id))
}

// Save writes b only when the stored version still equals b.Version. A new booking is
// inserted; the partial unique index rejects a second open booking for the same pair.
func (r *BookingRepository) Save(ctx context.Context, b *domainbooking.Booking) error {
	doc := newBookingDocument(b)
	doc.Version = b.Version + 1
	if b.Version == 0 {
		if _, err := r.col.InsertOne(ctx, doc); err != nil {
			return r.writeError(err, b)
		}
		b.Version = doc.Version
		return nil
	}
	res, err := r.col.ReplaceOne(ctx, bson.M{"_id": doc.ID, "version": b.Version}, doc)
	if err != nil {
		return r.writeError(err, b)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("%w: %s", domainbooking.ErrConcurrentUpdate, b.ID)
	}
	b.Version = doc.Version
	return nil
}

func (r *BookingRepository) FindOpen(ctx context.Context, renterID string, roomID domainrooms.RoomID) (*domainbooking.Booking, error) {
	return r.findOne(ctx, bson.M{"renter_id": renterID, "room_id": string(roomID), "open": true},
		fmt.Sprintf("open booking for renter %s room %s", renterID, roomID))
}

func (r *BookingRepository) ListByRenter(ctx context.Context, renterID string) ([]*domainbooking.Booking, error) {
	return r.find(ctx, bson.M{"renter_id": renterID}, newestFirst())
}

func (r *BookingRepository) ListByOwner(ctx context.Context, ownerID domainrooms.OwnerID, state domainbooking.State) ([]*domainbooking.Booking, error) {
	filter := bson.M{"owner_id": string(ownerID)}
	if state != "" {
		filter["state"] = string(state)
	}
	return r.find(ctx, filter, newestFirst())
}

func (r *BookingRepository) ListActiveEndingBefore(ctx context.Context, cutoff time.Time, limit int) ([]*domainbooking.Booking, error) {
	filter := bson.M{
		"state":        string(domainbooking.StateActive),
		"contract_end": bson.M{"$gt": 0, "$lt": cutoff.UnixMilli()},
	}
	opts := options.Find().SetSort(bson.D{{Key: "contract_end", Value: 1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	return r.find(ctx, filter, opts)
}

func (r *BookingRepository) findOne(ctx context.Context, filter bson.M, what string) (*domainbooking.Booking, error) {
	var doc bookingDocument
	if err := r.col.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("%w: %s", domainbooking.ErrBookingNotFound, what)
		}
		return nil, err
	}
	return doc.toAggregate(), nil
}

func (r *BookingRepository) find(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]*domainbooking.Booking, error) {
	cur, err := r.col.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	out := make([]*domainbooking.Booking, 0)
	for cur.Next(ctx) {
		var doc bookingDocument
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		out = append(out, doc.toAggregate())
	}
	return out, cur.Err()
}

func (r *BookingRepository) writeError(err error, b *domainbooking.Booking) error {
	if !mongo.IsDuplicateKeyError(err) {
		return conflictOr(err, b.ID)
	}
	if b.Version == 0 && b.Open() {
		return fmt.Errorf("%w: renter %s room %s", domainbooking.ErrDuplicateActiveBooking, b.RenterID, b.RoomID)
	}
	return fmt.Errorf("%w: %s", domainbooking.ErrConcurrentUpdate, b.ID)
}

func newestFirst() *options.FindOptions {
	return options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}})
}

// conflictOr maps transaction write conflicts onto ErrConcurrentUpdate so the retry middleware
// picks them up.
func conflictOr(err error, id domainbooking.BookingID) error {
	var labeled mongo.LabeledError
	if errors.As(err, &labeled) && labeled.HasErrorLabel("TransientTransactionError") {
		return fmt.Errorf("%w: %s: %v", domainbooking.ErrConcurrentUpdate, id, err)
	}
	return err
}
