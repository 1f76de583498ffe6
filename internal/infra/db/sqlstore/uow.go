package sqlstore

import (
	"context"
	"errors"
	"sync"

	"gorm.io/gorm"

	appoutbox "roomies/internal/app/outbox"
	"roomies/internal/app/uow"
	domainbooking "roomies/internal/domain/booking"
	domaincommissions "roomies/internal/domain/commissions"
	domainrefunds "roomies/internal/domain/refunds"
	domainrooms "roomies/internal/domain/rooms"
)

var (
	ErrFactoryMisconfigured = errors.New("sqlstore: unit of work factory missing database")
	ErrUnitClosed           = errors.New("sqlstore: unit of work already finished")
)

type Factory struct {
	DB *gorm.DB
}

func (f Factory) Begin(ctx context.Context, opts uow.TxOptions) (uow.UnitOfWork, error) {
	if f.DB == nil {
		return nil, ErrFactoryMisconfigured
	}
	tx := f.DB.WithContext(ctx).Begin()
	if tx.Error != nil {
		return nil, tx.Error
	}
	return &Unit{tx: tx, readOnly: opts.ReadOnly}, nil
}

// Unit wraps one database transaction. Read-only units never commit.
type Unit struct {
	mu       sync.Mutex
	tx       *gorm.DB
	readOnly bool
	done     bool
}

func (u *Unit) Bookings() domainbooking.Repository        { return BookingRepository{db: u.tx} }
func (u *Unit) Rooms() domainrooms.Repository             { return RoomRepository{db: u.tx} }
func (u *Unit) Slots() domainrooms.SlotStore              { return SlotStore{db: u.tx} }
func (u *Unit) Commissions() domaincommissions.Repository { return CommissionRepository{db: u.tx} }
func (u *Unit) Refunds() domainrefunds.Repository         { return RefundRepository{db: u.tx} }
func (u *Unit) Outbox() appoutbox.Outbox                  { return unitOutbox{db: u.tx} }

func (u *Unit) Commit(context.Context) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.done {
		return ErrUnitClosed
	}
	u.done = true
	if u.readOnly {
		return u.tx.Rollback().Error
	}
	return u.tx.Commit().Error
}

func (u *Unit) Rollback(context.Context) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.done {
		return nil
	}
	u.done = true
	return u.tx.Rollback().Error
}

var _ uow.UoWFactory = Factory{}
