package booking

import (
	"errors"
	"fmt"
	"time"

	"roomies/internal/domain/fees"
	"roomies/internal/domain/refunds"
	"roomies/internal/domain/rooms"
	"roomies/internal/domain/shared/actor"
	"roomies/internal/domain/shared/events"
	"roomies/internal/domain/shared/money"
)

var (
	ErrInvalidTransition      = errors.New("booking: invalid state transition")
	ErrUnauthorized           = errors.New("booking: actor lacks authority for transition")
	ErrBookingNotFound        = errors.New("booking: not found")
	ErrDuplicateActiveBooking = errors.New("booking: renter already has an open booking for this room")
	ErrConcurrentUpdate       = errors.New("booking: concurrent update detected")
	ErrRenterRequired         = errors.New("booking: renter id required")
	ErrInvalidDuration        = errors.New("booking: contract duration must be between 1 and 36 months")
	ErrMoveInInPast           = errors.New("booking: move-in date is in the past")

	ErrPaymentMismatch    = fmt.Errorf("%w: payment does not settle the amount due", ErrInvalidTransition)
	ErrContractNotElapsed = fmt.Errorf("%w: contract period has not elapsed", ErrInvalidTransition)
	ErrNothingToRefund    = fmt.Errorf("%w: no refund is owed", ErrInvalidTransition)
)

const (
	DefaultContractMonths = 11
	MaxContractMonths     = 36
	daysPerContractMonth  = 30
)

type BookingID string

// State is the closed set of lifecycle states.
type State string

const (
	StatePending          State = "pending"
	StatePaymentInitiated State = "payment_initiated"
	StateConfirmed        State = "confirmed"
	StateActive           State = "active"
	StateCompleted        State = "completed"
	StateCancelled        State = "cancelled"
)

// Terminal reports whether no further transition may leave the state.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateCancelled
}

// ParseState accepts the lowercase wire spelling.
func ParseState(raw string) (State, error) {
	s := State(raw)
	switch s {
	case StatePending, StatePaymentInitiated, StateConfirmed, StateActive, StateCompleted, StateCancelled:
		return s, nil
	}
	return "", fmt.Errorf("booking: unknown state %q", raw)
}

type PaymentState string

const (
	PaymentNone     PaymentState = "none"
	PaymentPartial  PaymentState = "partial"
	PaymentComplete PaymentState = "complete"
	PaymentRefunded PaymentState = "refunded"
)

// Transition is the audit entry written for every applied state change.
type Transition struct {
	Event          Event       `json:"event"`
	From           State       `json:"from,omitempty"`
	To             State       `json:"to"`
	Actor          actor.Actor `json:"actor"`
	At             time.Time   `json:"at"`
	IdempotencyKey string      `json:"idempotency_key,omitempty"`
}

type Booking struct {
	ID       BookingID
	RenterID string
	RoomID   rooms.RoomID
	OwnerID  rooms.OwnerID

	MonthlyRent     money.Money
	BookingAmount   money.Money
	SecurityDeposit money.Money
	PlatformFee     money.Money
	TotalPaid       money.Money
	RefundAmount    money.Money

	State                  State
	PaymentState           PaymentState
	ContractDurationMonths int
	MoveInDate             time.Time
	ContractStart          time.Time
	ContractEnd            time.Time
	ContractSignedAt       time.Time

	// ActivationBlocked is set when full payment arrived but the room had no free slot. The
	// booking stays confirmed until a retry succeeds or it is cancelled.
	ActivationBlocked   bool
	ActivationBlockedAt time.Time

	CancelledBy        actor.Role
	CancellationReason string
	CancelledAt        time.Time

	Transitions []Transition
	CreatedAt   time.Time
	UpdatedAt   time.Time
	Version     int64
	events.Recorder
}

type CreateParams struct {
	ID                     BookingID
	RenterID               string
	Room                   rooms.Room
	BookingAmount          money.Money
	MoveInDate             time.Time
	ContractDurationMonths int
	CreatedAt              time.Time
}

// New opens a pending booking. Every derived amount comes from the fee calculator and is fixed
// for the life of the booking.
func New(p CreateParams) (*Booking, error) {
	if p.RenterID == "" {
		return nil, ErrRenterRequired
	}
	if err := p.Room.Validate(); err != nil {
		return nil, err
	}
	months := p.ContractDurationMonths
	if months == 0 {
		months = DefaultContractMonths
	}
	if months < 0 || months > MaxContractMonths {
		return nil, fmt.Errorf("%w: %d", ErrInvalidDuration, p.ContractDurationMonths)
	}
	now := p.CreatedAt.UTC()
	moveIn := time.Time{}
	if !p.MoveInDate.IsZero() {
		moveIn = p.MoveInDate.UTC().Truncate(24 * time.Hour)
		if moveIn.Before(now.Truncate(24 * time.Hour)) {
			return nil, ErrMoveInInPast
		}
	}
	quote, err := fees.Quote(p.Room.MonthlyRent, p.BookingAmount)
	if err != nil {
		return nil, err
	}
	renter := actor.NewRenter(p.RenterID)
	b := &Booking{
		ID:                     p.ID,
		RenterID:               p.RenterID,
		RoomID:                 p.Room.ID,
		OwnerID:                p.Room.OwnerID,
		MonthlyRent:            quote.MonthlyRent,
		BookingAmount:          quote.BookingAmount,
		SecurityDeposit:        quote.SecurityDeposit,
		PlatformFee:            quote.PlatformFee,
		TotalPaid:              money.Zero(quote.MonthlyRent.Currency),
		RefundAmount:           money.Zero(quote.MonthlyRent.Currency),
		State:                  StatePending,
		PaymentState:           PaymentNone,
		ContractDurationMonths: months,
		MoveInDate:             moveIn,
		CreatedAt:              now,
		UpdatedAt:              now,
	}
	if !moveIn.IsZero() {
		b.setContract(moveIn)
	}
	b.apply(EventCreate, StatePending, renter, "")
	b.Record(Created{
		Ref:        b.ref(),
		MoveInDate: b.MoveInDate,
		Months:     months,
		Quote:      quote,
		At:         now,
	})
	return b, nil
}

// TotalDue is recomputed from the stored parts on every call.
func (b *Booking) TotalDue() money.Money {
	total, err := fees.TotalDue(b.BookingAmount, b.SecurityDeposit, b.MonthlyRent, b.PlatformFee)
	if err != nil {
		// parts are validated by New and never change afterwards
		panic(err)
	}
	return total
}

// Remaining is what must still be paid to settle the booking.
func (b *Booking) Remaining() money.Money {
	rest, err := b.TotalDue().Sub(b.TotalPaid)
	if err != nil || rest.IsNegative() {
		return money.Zero(b.MonthlyRent.Currency)
	}
	return rest
}

// PayBookingFee records the booking fee. The room must still have a free slot when the renter
// initiates; the slot itself is only claimed at activation.
func (b *Booking) PayBookingFee(by actor.Actor, slotFree bool, key string, now time.Time) error {
	to, err := b.guard(EventPayBookingFee, by)
	if err != nil {
		return err
	}
	if !slotFree {
		return fmt.Errorf("booking %s: %w", b.ID, rooms.ErrNoSlotsAvailable)
	}
	paid, err := b.addPayment(b.BookingAmount)
	if err != nil {
		return err
	}
	b.TotalPaid = paid
	b.PaymentState = PaymentPartial
	b.touch(now)
	b.apply(EventPayBookingFee, to, by, key)
	b.Record(FeePaid{Ref: b.ref(), Amount: b.BookingAmount, TotalPaid: b.TotalPaid, At: b.UpdatedAt})
	return nil
}

// Approve is the owner accepting the request.
func (b *Booking) Approve(by actor.Actor, now time.Time) error {
	to, err := b.guard(EventApprove, by)
	if err != nil {
		return err
	}
	b.touch(now)
	b.apply(EventApprove, to, by, "")
	b.Record(Approved{Ref: b.ref(), Remaining: b.Remaining(), At: b.UpdatedAt})
	return nil
}

// Reject is the owner turning the request down. The booking fee is returned in full.
func (b *Booking) Reject(by actor.Actor, reason string, now time.Time) (money.Money, error) {
	to, err := b.guard(EventReject, by)
	if err != nil {
		return money.Money{}, err
	}
	refund, err := refunds.Compute(refunds.Input{
		Stage:           refunds.StageAwaitingApproval,
		Initiator:       by.Role,
		TotalPaid:       b.TotalPaid,
		SecurityDeposit: b.SecurityDeposit,
		MonthlyRent:     b.MonthlyRent,
	})
	if err != nil {
		return money.Money{}, err
	}
	b.RefundAmount = refund
	b.CancelledBy = by.Role
	b.CancellationReason = reason
	b.touch(now)
	b.CancelledAt = b.UpdatedAt
	b.apply(EventReject, to, by, "")
	b.Record(Rejected{Ref: b.ref(), Reason: reason, Refund: refund, At: b.UpdatedAt})
	return refund, nil
}

// PayRemaining settles the balance and activates the tenancy. reserve must claim one slot of the
// room atomically. When it reports rooms.ErrNoSlotsAvailable the booking keeps its confirmed
// state and payments untouched, and is flagged as activation-blocked.
func (b *Booking) PayRemaining(by actor.Actor, payment money.Money, key string, reserve func() error, now time.Time) error {
	to, err := b.guard(EventPayRemaining, by)
	if err != nil {
		return err
	}
	paid, err := b.addPayment(payment)
	if err != nil {
		return err
	}
	if cmp, err := paid.Cmp(b.TotalDue()); err != nil || cmp != 0 {
		return fmt.Errorf("%w: paid %s of %s", ErrPaymentMismatch, paid, b.TotalDue())
	}
	if reserve != nil {
		if err := reserve(); err != nil {
			if errors.Is(err, rooms.ErrNoSlotsAvailable) {
				b.blockActivation(now)
			}
			return err
		}
	}
	b.TotalPaid = paid
	b.PaymentState = PaymentComplete
	b.ActivationBlocked = false
	b.ActivationBlockedAt = time.Time{}
	b.touch(now)
	if b.ContractStart.IsZero() {
		b.setContract(b.UpdatedAt.Truncate(24 * time.Hour))
	}
	b.apply(EventPayRemaining, to, by, key)
	b.Record(Activated{
		Ref:           b.ref(),
		Amount:        payment,
		TotalPaid:     b.TotalPaid,
		ContractStart: b.ContractStart,
		ContractEnd:   b.ContractEnd,
		At:            b.UpdatedAt,
	})
	return nil
}

func (b *Booking) blockActivation(now time.Time) {
	if b.ActivationBlocked {
		return
	}
	b.touch(now)
	b.ActivationBlocked = true
	b.ActivationBlockedAt = b.UpdatedAt
	b.Record(ActivationBlocked{Ref: b.ref(), At: b.UpdatedAt})
}

// Cancel ends the booking from any non-terminal state. release must give back the slot of an
// active tenancy; it is not called for earlier states.
func (b *Booking) Cancel(by actor.Actor, reason string, release func() error, now time.Time) (money.Money, error) {
	to, err := b.guard(EventCancel, by)
	if err != nil {
		return money.Money{}, err
	}
	refund, err := refunds.Compute(refunds.Input{
		Stage:           refundStage(b.State),
		Initiator:       by.Role,
		TotalPaid:       b.TotalPaid,
		SecurityDeposit: b.SecurityDeposit,
		MonthlyRent:     b.MonthlyRent,
	})
	if err != nil {
		return money.Money{}, err
	}
	from := b.State
	if from == StateActive && release != nil {
		if err := release(); err != nil {
			return money.Money{}, err
		}
	}
	b.RefundAmount = refund
	b.CancelledBy = by.Role
	b.CancellationReason = reason
	b.touch(now)
	b.CancelledAt = b.UpdatedAt
	b.apply(EventCancel, to, by, "")
	b.Record(Cancelled{
		Ref:       b.ref(),
		From:      from,
		Initiator: by.Role,
		Reason:    reason,
		Refund:    refund,
		At:        b.UpdatedAt,
	})
	return refund, nil
}

// Complete closes an active tenancy whose contract ended before now.
func (b *Booking) Complete(by actor.Actor, release func() error, now time.Time) error {
	to, err := b.guard(EventContractElapsed, by)
	if err != nil {
		return err
	}
	if b.ContractEnd.IsZero() || !b.ContractEnd.Before(now) {
		return fmt.Errorf("%w: ends %s", ErrContractNotElapsed, b.ContractEnd.Format(time.DateOnly))
	}
	if release != nil {
		if err := release(); err != nil {
			return err
		}
	}
	b.touch(now)
	b.apply(EventContractElapsed, to, by, "")
	b.Record(Completed{Ref: b.ref(), ContractEnd: b.ContractEnd, At: b.UpdatedAt})
	return nil
}

// SignContract stamps the renter's signature on an active tenancy. Signing twice keeps the
// first timestamp.
func (b *Booking) SignContract(by actor.Actor, now time.Time) error {
	if b.State.Terminal() {
		return fmt.Errorf("%w: booking is %s", ErrInvalidTransition, b.State)
	}
	if by.Role != actor.Renter {
		return fmt.Errorf("%w: only the renter signs", ErrUnauthorized)
	}
	if err := b.checkParty(by); err != nil {
		return err
	}
	if b.State != StateActive {
		return fmt.Errorf("%w: cannot sign contract from %s", ErrInvalidTransition, b.State)
	}
	if !b.ContractSignedAt.IsZero() {
		return nil
	}
	b.touch(now)
	b.ContractSignedAt = b.UpdatedAt
	b.Record(ContractSigned{Ref: b.ref(), At: b.UpdatedAt})
	return nil
}

// MarkRefunded moves the payment state once the refund of a cancelled booking was paid out.
func (b *Booking) MarkRefunded(now time.Time) error {
	if b.State != StateCancelled {
		return fmt.Errorf("%w: booking is %s", ErrInvalidTransition, b.State)
	}
	if b.RefundAmount.IsZero() {
		return ErrNothingToRefund
	}
	if b.PaymentState == PaymentRefunded {
		return nil
	}
	b.PaymentState = PaymentRefunded
	b.touch(now)
	return nil
}

// Open reports whether the booking still counts against the one-open-booking-per-room rule.
func (b *Booking) Open() bool {
	return !b.State.Terminal()
}

// Clone returns a deep copy without pending events.
func (b *Booking) Clone() *Booking {
	c := *b
	c.Transitions = append([]Transition(nil), b.Transitions...)
	c.Recorder = events.Recorder{}
	return &c
}

func (b *Booking) addPayment(amount money.Money) (money.Money, error) {
	if amount.IsNegative() {
		return money.Money{}, fmt.Errorf("booking: %w: negative payment %s", money.ErrInvalidAmount, amount)
	}
	paid, err := b.TotalPaid.Add(amount)
	if err != nil {
		return money.Money{}, fmt.Errorf("booking: %w", err)
	}
	if cmp, _ := paid.Cmp(b.TotalDue()); cmp > 0 {
		return money.Money{}, fmt.Errorf("%w: paid %s exceeds due %s", ErrPaymentMismatch, paid, b.TotalDue())
	}
	return paid, nil
}

func (b *Booking) setContract(start time.Time) {
	b.ContractStart = start
	b.ContractEnd = start.AddDate(0, 0, b.ContractDurationMonths*daysPerContractMonth)
}

func (b *Booking) touch(now time.Time) {
	b.UpdatedAt = now.UTC()
}

func (b *Booking) ref() Ref {
	return Ref{BookingID: b.ID, RenterID: b.RenterID, OwnerID: b.OwnerID, RoomID: b.RoomID}
}

func refundStage(s State) refunds.Stage {
	switch s {
	case StateConfirmed:
		return refunds.StageApproved
	case StateActive:
		return refunds.StageTenancy
	default:
		return refunds.StageAwaitingApproval
	}
}
