package sqlstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	domainbooking "roomies/internal/domain/booking"
	domaincommissions "roomies/internal/domain/commissions"
	domainrefunds "roomies/internal/domain/refunds"
	domainrooms "roomies/internal/domain/rooms"
)

type BookingRepository struct {
	db *gorm.DB
}

func (r BookingRepository) ByID(ctx context.Context, id domainbooking.BookingID) (*domainbooking.Booking, error) {
	return r.first(ctx, r.db.Where("id = ?", string(id)), string(id))
}

// Save inserts new bookings and otherwise updates the row only while its version still equals
// b.Version.
func (r BookingRepository) Save(ctx context.Context, b *domainbooking.Booking) error {
	row := newBookingRow(b)
	row.Version = b.Version + 1
	if b.Version == 0 {
		if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return fmt.Errorf("%w: renter %s room %s", domainbooking.ErrDuplicateActiveBooking, b.RenterID, b.RoomID)
			}
			return err
		}
		b.Version = row.Version
		return nil
	}
	res := r.db.WithContext(ctx).
		Model(&row).
		Where("version = ?", b.Version).
		Select("*").
		Updates(row)
	if res.Error != nil {
		if errors.Is(res.Error, gorm.ErrDuplicatedKey) {
			return fmt.Errorf("%w: renter %s room %s", domainbooking.ErrDuplicateActiveBooking, b.RenterID, b.RoomID)
		}
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", domainbooking.ErrConcurrentUpdate, b.ID)
	}
	b.Version = row.Version
	return nil
}

func (r BookingRepository) FindOpen(ctx context.Context, renterID string, roomID domainrooms.RoomID) (*domainbooking.Booking, error) {
	q := r.db.Where("renter_id = ? AND room_id = ? AND is_open = ?", renterID, string(roomID), true)
	return r.first(ctx, q, fmt.Sprintf("open booking for renter %s room %s", renterID, roomID))
}

func (r BookingRepository) ListByRenter(ctx context.Context, renterID string) ([]*domainbooking.Booking, error) {
	return r.list(ctx, r.db.Where("renter_id = ?", renterID).Order("created_at DESC").Order("id DESC"))
}

func (r BookingRepository) ListByOwner(ctx context.Context, ownerID domainrooms.OwnerID, state domainbooking.State) ([]*domainbooking.Booking, error) {
	q := r.db.Where("owner_id = ?", string(ownerID))
	if state != "" {
		q = q.Where("state = ?", string(state))
	}
	return r.list(ctx, q.Order("created_at DESC").Order("id DESC"))
}

func (r BookingRepository) ListActiveEndingBefore(ctx context.Context, cutoff time.Time, limit int) ([]*domainbooking.Booking, error) {
	q := r.db.Where("state = ? AND contract_end < ?", string(domainbooking.StateActive), cutoff.UTC()).Order("contract_end ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	list, err := r.list(ctx, q)
	if err != nil {
		return nil, err
	}
	out := list[:0]
	for _, b := range list {
		if !b.ContractEnd.IsZero() {
			out = append(out, b)
		}
	}
	return out, nil
}

func (r BookingRepository) first(ctx context.Context, q *gorm.DB, what string) (*domainbooking.Booking, error) {
	var row bookingRow
	if err := q.WithContext(ctx).Take(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", domainbooking.ErrBookingNotFound, what)
		}
		return nil, err
	}
	return row.toAggregate(), nil
}

func (r BookingRepository) list(ctx context.Context, q *gorm.DB) ([]*domainbooking.Booking, error) {
	var rows []bookingRow
	if err := q.WithContext(ctx).Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]*domainbooking.Booking, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toAggregate())
	}
	return out, nil
}

type RoomRepository struct {
	db *gorm.DB
}

func (r RoomRepository) ByID(ctx context.Context, id domainrooms.RoomID) (*domainrooms.Room, error) {
	var row roomRow
	if err := r.db.WithContext(ctx).Where("id = ?", string(id)).Take(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", domainrooms.ErrRoomNotFound, id)
		}
		return nil, err
	}
	return row.toRoom(), nil
}

// Save upserts catalog fields; occupancy only moves through SlotStore once the room exists.
func (r RoomRepository) Save(ctx context.Context, room *domainrooms.Room) error {
	if err := room.Validate(); err != nil {
		return err
	}
	row := roomRow{
		ID:            string(room.ID),
		OwnerID:       string(room.OwnerID),
		Title:         room.Title,
		MonthlyRent:   columns(room.MonthlyRent),
		TotalSlots:    room.TotalSlots,
		OccupiedSlots: room.OccupiedSlots,
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"owner_id", "title", "monthly_rent_amount", "monthly_rent_currency", "total_slots"}),
	}).Create(&row).Error
}

// SlotStore claims occupancy with one conditional UPDATE, so concurrent transactions can never
// push occupied_slots past total_slots.
type SlotStore struct {
	db *gorm.DB
}

func (s SlotStore) TryReserve(ctx context.Context, roomID domainrooms.RoomID, bookingID string) error {
	db := s.db.WithContext(ctx)
	var held int64
	if err := db.Model(&slotHolderRow{}).Where("room_id = ? AND booking_id = ?", string(roomID), bookingID).Count(&held).Error; err != nil {
		return err
	}
	if held > 0 {
		return nil
	}
	res := db.Model(&roomRow{}).
		Where("id = ? AND occupied_slots < total_slots", string(roomID)).
		Update("occupied_slots", gorm.Expr("occupied_slots + 1"))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		var row roomRow
		if err := db.Where("id = ?", string(roomID)).Take(&row).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: %s", domainrooms.ErrRoomNotFound, roomID)
			}
			return err
		}
		return fmt.Errorf("%w: room %s has %d/%d occupied", domainrooms.ErrNoSlotsAvailable, roomID, row.OccupiedSlots, row.TotalSlots)
	}
	return db.Create(&slotHolderRow{RoomID: string(roomID), BookingID: bookingID, CreatedAt: time.Now().UTC()}).Error
}

func (s SlotStore) Release(ctx context.Context, roomID domainrooms.RoomID, bookingID string) error {
	db := s.db.WithContext(ctx)
	res := db.Where("room_id = ? AND booking_id = ?", string(roomID), bookingID).Delete(&slotHolderRow{})
	if res.Error != nil || res.RowsAffected == 0 {
		return res.Error
	}
	return db.Model(&roomRow{}).
		Where("id = ? AND occupied_slots > 0", string(roomID)).
		Update("occupied_slots", gorm.Expr("occupied_slots - 1")).Error
}

type CommissionRepository struct {
	db *gorm.DB
}

func (r CommissionRepository) ByBooking(ctx context.Context, bookingID string) (*domaincommissions.Commission, error) {
	var row commissionRow
	if err := r.db.WithContext(ctx).Where("booking_id = ?", bookingID).Take(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: booking %s", domaincommissions.ErrCommissionNotFound, bookingID)
		}
		return nil, err
	}
	return row.toCommission(), nil
}

func (r CommissionRepository) Save(ctx context.Context, c *domaincommissions.Commission) error {
	row := newCommissionRow(c)
	return r.db.WithContext(ctx).Save(&row).Error
}

type RefundRepository struct {
	db *gorm.DB
}

func (r RefundRepository) ByBooking(ctx context.Context, bookingID string) (*domainrefunds.Record, error) {
	var row refundRow
	if err := r.db.WithContext(ctx).Where("booking_id = ?", bookingID).Take(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: booking %s", domainrefunds.ErrRefundNotFound, bookingID)
		}
		return nil, err
	}
	return row.toRecord(), nil
}

func (r RefundRepository) Save(ctx context.Context, rec *domainrefunds.Record) error {
	row := newRefundRow(rec)
	return r.db.WithContext(ctx).Save(&row).Error
}

// TierDirectory reads owner commission tiers, defaulting to the free tier.
type TierDirectory struct {
	DB *gorm.DB
}

func (t TierDirectory) CommissionRate(ctx context.Context, owner domainrooms.OwnerID) (domaincommissions.Tier, error) {
	var row tierRow
	if err := t.DB.WithContext(ctx).Where("owner_id = ?", string(owner)).Take(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domaincommissions.DefaultTier(owner), nil
		}
		return domaincommissions.Tier{}, err
	}
	return domaincommissions.Tier{OwnerID: owner, Name: row.Name, Rate: row.Rate, DiscountRate: row.DiscountRate}, nil
}

func (t TierDirectory) SetTier(ctx context.Context, tier domaincommissions.Tier) error {
	row := tierRow{OwnerID: string(tier.OwnerID), Name: tier.Name, Rate: tier.Rate, DiscountRate: tier.DiscountRate}
	return t.DB.WithContext(ctx).Save(&row).Error
}
