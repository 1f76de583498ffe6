// Package mongo persists bookings, rooms, money records and the outbox in MongoDB. Writes of
// one command share a session transaction, so the deployment must be a replica set.
package mongo

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	colBookings    = "agg_booking"
	colRooms       = "agg_room"
	colCommissions = "fin_commission"
	colRefunds     = "fin_refund"
	colTiers       = "owner_tier"
	colOutbox      = "app_outbox"
	colInbox       = "app_inbox"
	colIdempotency = "app_idempotency"
)

type Client struct {
	DB *mongo.Database
}

func New(uri, database string) (*Client, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	opts := options.Client().ApplyURI(uri).SetRetryWrites(true)
	m, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, err
	}
	return &Client{DB: m.Database(database)}, nil
}

func (c *Client) Ping(ctx context.Context) error {
	return c.DB.Client().Ping(ctx, nil)
}

func (c *Client) Close(ctx context.Context) error {
	return c.DB.Client().Disconnect(ctx)
}

// EnsureIndexes creates the indexes the repositories rely on. The partial unique index keeps
// one open booking per renter and room even when two transactions race.
func (c *Client) EnsureIndexes(ctx context.Context) error {
	specs := map[string][]mongo.IndexModel{
		colBookings: {
			{
				Keys:    bson.D{{Key: "renter_id", Value: 1}, {Key: "room_id", Value: 1}},
				Options: options.Index().SetUnique(true).SetPartialFilterExpression(bson.M{"open": true}).SetName("one_open_booking"),
			},
			{Keys: bson.D{{Key: "owner_id", Value: 1}, {Key: "created_at", Value: -1}}},
			{Keys: bson.D{{Key: "renter_id", Value: 1}, {Key: "created_at", Value: -1}}},
			{Keys: bson.D{{Key: "state", Value: 1}, {Key: "contract_end", Value: 1}}},
		},
		colCommissions: {{Keys: bson.D{{Key: "booking_id", Value: 1}}, Options: options.Index().SetUnique(true)}},
		colRefunds:     {{Keys: bson.D{{Key: "booking_id", Value: 1}}, Options: options.Index().SetUnique(true)}},
		colOutbox:      {{Keys: bson.D{{Key: "state", Value: 1}, {Key: "next_attempt_at", Value: 1}}}},
		colInbox: {{
			Keys:    bson.D{{Key: "event_id", Value: 1}, {Key: "consumer", Value: 1}},
			Options: options.Index().SetUnique(true),
		}},
		colIdempotency: {{Keys: bson.D{{Key: "expires_at", Value: 1}}, Options: options.Index().SetExpireAfterSeconds(0)}},
	}
	for name, models := range specs {
		if _, err := c.DB.Collection(name).Indexes().CreateMany(ctx, models); err != nil {
			return err
		}
	}
	return nil
}
