package mongo

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readconcern"
	"go.mongodb.org/mongo-driver/mongo/writeconcern"

	appoutbox "roomies/internal/app/outbox"
	"roomies/internal/app/uow"
	domainbooking "roomies/internal/domain/booking"
	domaincommissions "roomies/internal/domain/commissions"
	domainrefunds "roomies/internal/domain/refunds"
	domainrooms "roomies/internal/domain/rooms"
)

var ErrUnitOfWorkNotConfigured = errors.New("mongo: unit of work factory missing database")

// Factory wires Mongo transactions into the generic UnitOfWork interface. Repositories are
// stateless; the session travels in the context bound by uow.Bind.
type Factory struct {
	DB *mongo.Database

	BookingRepo    *BookingRepository
	RoomRepo       *RoomRepository
	Slots          *SlotStore
	CommissionRepo *CommissionRepository
	RefundRepo     *RefundRepository
	OutboxStore    *OutboxStore
}

// NewFactory builds every repository over db.
func NewFactory(db *mongo.Database) Factory {
	return Factory{
		DB:             db,
		BookingRepo:    NewBookingRepository(db),
		RoomRepo:       NewRoomRepository(db),
		Slots:          NewSlotStore(db),
		CommissionRepo: NewCommissionRepository(db),
		RefundRepo:     NewRefundRepository(db),
		OutboxStore:    NewOutboxStore(db),
	}
}

// Begin starts a MongoDB session and transaction. Read-only units read a majority snapshot.
func (f Factory) Begin(ctx context.Context, opts uow.TxOptions) (uow.UnitOfWork, error) {
	if f.DB == nil {
		return nil, ErrUnitOfWorkNotConfigured
	}
	session, err := f.DB.Client().StartSession()
	if err != nil {
		return nil, err
	}
	txnOpts := options.Transaction().
		SetReadConcern(readconcern.Snapshot()).
		SetWriteConcern(writeconcern.Majority())
	if opts.ReadOnly {
		txnOpts = txnOpts.SetReadConcern(readconcern.Majority())
	}
	if err := session.StartTransaction(txnOpts); err != nil {
		session.EndSession(ctx)
		return nil, err
	}
	return &Unit{factory: f, session: session, readOnly: opts.ReadOnly}, nil
}

type Unit struct {
	factory  Factory
	session  mongo.Session
	readOnly bool
}

func (u *Unit) Bookings() domainbooking.Repository        { return u.factory.BookingRepo }
func (u *Unit) Rooms() domainrooms.Repository             { return u.factory.RoomRepo }
func (u *Unit) Slots() domainrooms.SlotStore              { return u.factory.Slots }
func (u *Unit) Commissions() domaincommissions.Repository { return u.factory.CommissionRepo }
func (u *Unit) Refunds() domainrefunds.Repository         { return u.factory.RefundRepo }
func (u *Unit) Outbox() appoutbox.Outbox                  { return u.factory.OutboxStore }

func (u *Unit) Commit(ctx context.Context) error {
	defer u.session.EndSession(ctx)
	if u.readOnly {
		return u.session.AbortTransaction(ctx)
	}
	if err := u.session.CommitTransaction(ctx); err != nil {
		var labeled mongo.LabeledError
		if errors.As(err, &labeled) && (labeled.HasErrorLabel("TransientTransactionError") ||
			labeled.HasErrorLabel("UnknownTransactionCommitResult")) {
			return fmt.Errorf("%w: commit: %v", domainbooking.ErrConcurrentUpdate, err)
		}
		return err
	}
	return nil
}

func (u *Unit) Rollback(ctx context.Context) error {
	defer u.session.EndSession(ctx)
	return u.session.AbortTransaction(ctx)
}

// InjectContext ensures Mongo session is available in context for downstream repos.
func (u *Unit) InjectContext(ctx context.Context) context.Context {
	return mongo.NewSessionContext(ctx, u.session)
}

var (
	_ uow.UoWFactory      = Factory{}
	_ uow.ContextInjector = (*Unit)(nil)
)
