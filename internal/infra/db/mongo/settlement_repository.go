package mongo

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	domaincommissions "roomies/internal/domain/commissions"
	domainrefunds "roomies/internal/domain/refunds"
	domainrooms "roomies/internal/domain/rooms"
)

type CommissionRepository struct {
	col *mongo.Collection
}

func NewCommissionRepository(db *mongo.Database) *CommissionRepository {
	return &CommissionRepository{col: db.Collection(colCommissions)}
}

func (r *CommissionRepository) ByBooking(ctx context.Context, bookingID string) (*domaincommissions.Commission, error) {
	var doc commissionDocument
	if err := r.col.FindOne(ctx, bson.M{"booking_id": bookingID}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("%w: booking %s", domaincommissions.ErrCommissionNotFound, bookingID)
		}
		return nil, err
	}
	return doc.toCommission(), nil
}

func (r *CommissionRepository) Save(ctx context.Context, c *domaincommissions.Commission) error {
	doc := newCommissionDocument(c)
	_, err := r.col.ReplaceOne(ctx, bson.M{"_id": doc.ID}, doc, options.Replace().SetUpsert(true))
	return err
}

type RefundRepository struct {
	col *mongo.Collection
}

func NewRefundRepository(db *mongo.Database) *RefundRepository {
	return &RefundRepository{col: db.Collection(colRefunds)}
}

func (r *RefundRepository) ByBooking(ctx context.Context, bookingID string) (*domainrefunds.Record, error) {
	var doc refundDocument
	if err := r.col.FindOne(ctx, bson.M{"booking_id": bookingID}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("%w: booking %s", domainrefunds.ErrRefundNotFound, bookingID)
		}
		return nil, err
	}
	return doc.toRecord(), nil
}

func (r *RefundRepository) Save(ctx context.Context, rec *domainrefunds.Record) error {
	doc := newRefundDocument(rec)
	_, err := r.col.ReplaceOne(ctx, bson.M{"_id": doc.ID}, doc, options.Replace().SetUpsert(true))
	return err
}

// TierDirectory reads owner commission tiers. Owners without a document get the free tier.
type TierDirectory struct {
	col *mongo.Collection
}

func NewTierDirectory(db *mongo.Database) *TierDirectory {
	return &TierDirectory{col: db.Collection(colTiers)}
}

func (t *TierDirectory) CommissionRate(ctx context.Context, owner domainrooms.OwnerID) (domaincommissions.Tier, error) {
	var doc tierDocument
	if err := t.col.FindOne(ctx, bson.M{"_id": string(owner)}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return domaincommissions.DefaultTier(owner), nil
		}
		return domaincommissions.Tier{}, err
	}
	return domaincommissions.Tier{OwnerID: owner, Name: doc.Name, Rate: doc.Rate, DiscountRate: doc.DiscountRate}, nil
}

func (t *TierDirectory) SetTier(ctx context.Context, tier domaincommissions.Tier) error {
	doc := tierDocument{OwnerID: string(tier.OwnerID), Name: tier.Name, Rate: tier.Rate, DiscountRate: tier.DiscountRate}
	_, err := t.col.ReplaceOne(ctx, bson.M{"_id": doc.OwnerID}, doc, options.Replace().SetUpsert(true))
	return err
}
