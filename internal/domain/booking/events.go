package booking

import (
	"time"

	"roomies/internal/domain/fees"
	"roomies/internal/domain/rooms"
	"roomies/internal/domain/shared/actor"
	"roomies/internal/domain/shared/money"
)

// Event names as they appear on the wire.
const (
	EventNameCreated           = "booking.created"
	EventNameFeePaid           = "booking.fee_paid"
	EventNameApproved          = "booking.approved"
	EventNameRejected          = "booking.rejected"
	EventNameActivated         = "booking.activated"
	EventNameActivationBlocked = "booking.activation_blocked"
	EventNameCancelled         = "booking.cancelled"
	EventNameCompleted         = "booking.completed"
	EventNameContractSigned    = "booking.contract_signed"
)

// Ref identifies the booking and both parties on every event.
type Ref struct {
	BookingID BookingID     `json:"booking_id"`
	RenterID  string        `json:"renter_id"`
	OwnerID   rooms.OwnerID `json:"owner_id"`
	RoomID    rooms.RoomID  `json:"room_id"`
}

func (r Ref) AggregateID() string { return string(r.BookingID) }

type Created struct {
	Ref
	MoveInDate time.Time      `json:"move_in_date,omitempty"`
	Months     int            `json:"contract_duration_months"`
	Quote      fees.Breakdown `json:"quote"`
	At         time.Time      `json:"at"`
}

func (e Created) EventName() string     { return EventNameCreated }
func (e Created) OccurredAt() time.Time { return e.At }

type FeePaid struct {
	Ref
	Amount    money.Money `json:"amount"`
	TotalPaid money.Money `json:"total_paid"`
	At        time.Time   `json:"at"`
}

func (e FeePaid) EventName() string     { return EventNameFeePaid }
func (e FeePaid) OccurredAt() time.Time { return e.At }

type Approved struct {
	Ref
	Remaining money.Money `json:"remaining"`
	At        time.Time   `json:"at"`
}

func (e Approved) EventName() string     { return EventNameApproved }
func (e Approved) OccurredAt() time.Time { return e.At }

type Rejected struct {
	Ref
	Reason string      `json:"reason,omitempty"`
	Refund money.Money `json:"refund"`
	At     time.Time   `json:"at"`
}

func (e Rejected) EventName() string     { return EventNameRejected }
func (e Rejected) OccurredAt() time.Time { return e.At }

type Activated struct {
	Ref
	Amount        money.Money `json:"amount"`
	TotalPaid     money.Money `json:"total_paid"`
	ContractStart time.Time   `json:"contract_start"`
	ContractEnd   time.Time   `json:"contract_end"`
	At            time.Time   `json:"at"`
}

func (e Activated) EventName() string     { return EventNameActivated }
func (e Activated) OccurredAt() time.Time { return e.At }

type ActivationBlocked struct {
	Ref
	At time.Time `json:"at"`
}

func (e ActivationBlocked) EventName() string     { return EventNameActivationBlocked }
func (e ActivationBlocked) OccurredAt() time.Time { return e.At }

type Cancelled struct {
	Ref
	From      State       `json:"from"`
	Initiator actor.Role  `json:"initiator"`
	Reason    string      `json:"reason,omitempty"`
	Refund    money.Money `json:"refund"`
	At        time.Time   `json:"at"`
}

func (e Cancelled) EventName() string     { return EventNameCancelled }
func (e Cancelled) OccurredAt() time.Time { return e.At }

type Completed struct {
	Ref
	ContractEnd time.Time `json:"contract_end"`
	At          time.Time `json:"at"`
}

func (e Completed) EventName() string     { return EventNameCompleted }
func (e Completed) OccurredAt() time.Time { return e.At }

type ContractSigned struct {
	Ref
	At time.Time `json:"at"`
}

func (e ContractSigned) EventName() string     { return EventNameContractSigned }
func (e ContractSigned) OccurredAt() time.Time { return e.At }
