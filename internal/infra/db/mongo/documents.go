package mongo

import (
	"time"

	domainbooking "roomies/internal/domain/booking"
	domaincommissions "roomies/internal/domain/commissions"
	domainrefunds "roomies/internal/domain/refunds"
	domainrooms "roomies/internal/domain/rooms"
	"roomies/internal/domain/shared/actor"
	"roomies/internal/domain/shared/money"
)

type bookingDocument struct {
	ID                     string               `bson:"_id"`
	RenterID               string               `bson:"renter_id"`
	RoomID                 string               `bson:"room_id"`
	OwnerID                string               `bson:"owner_id"`
	MonthlyRent            money.Money          `bson:"monthly_rent"`
	BookingAmount          money.Money          `bson:"booking_amount"`
	SecurityDeposit        money.Money          `bson:"security_deposit"`
	PlatformFee            money.Money          `bson:"platform_fee"`
	TotalPaid              money.Money          `bson:"total_paid"`
	RefundAmount           money.Money          `bson:"refund_amount"`
	State                  string               `bson:"state"`
	Open                   bool                 `bson:"open"`
	PaymentState           string               `bson:"payment_state"`
	ContractDurationMonths int                  `bson:"contract_duration_months"`
	MoveInDate             int64                `bson:"move_in_date"`
	ContractStart          int64                `bson:"contract_start"`
	ContractEnd            int64                `bson:"contract_end"`
	ContractSignedAt       int64                `bson:"contract_signed_at"`
	ActivationBlocked      bool                 `bson:"activation_blocked"`
	ActivationBlockedAt    int64                `bson:"activation_blocked_at"`
	CancelledBy            string               `bson:"cancelled_by,omitempty"`
	CancellationReason     string               `bson:"cancellation_reason,omitempty"`
	CancelledAt            int64                `bson:"cancelled_at"`
	Transitions            []transitionDocument `bson:"transitions"`
	CreatedAt              int64                `bson:"created_at"`
	UpdatedAt              int64                `bson:"updated_at"`
	Version                int64                `bson:"version"`
}

type transitionDocument struct {
	Event          string `bson:"event"`
	From           string `bson:"from,omitempty"`
	To             string `bson:"to"`
	ActorRole      string `bson:"actor_role"`
	ActorID        string `bson:"actor_id,omitempty"`
	At             int64  `bson:"at"`
	IdempotencyKey string `bson:"idempotency_key,omitempty"`
}

func newBookingDocument(b *domainbooking.Booking) bookingDocument {
	doc := bookingDocument{
		ID:                     string(b.ID),
		RenterID:               b.RenterID,
		RoomID:                 string(b.RoomID),
		OwnerID:                string(b.OwnerID),
		MonthlyRent:            b.MonthlyRent,
		BookingAmount:          b.BookingAmount,
		SecurityDeposit:        b.SecurityDeposit,
		PlatformFee:            b.PlatformFee,
		TotalPaid:              b.TotalPaid,
		RefundAmount:           b.RefundAmount,
		State:                  string(b.State),
		Open:                   b.Open(),
		PaymentState:           string(b.PaymentState),
		ContractDurationMonths: b.ContractDurationMonths,
		MoveInDate:             timeToTimestamp(b.MoveInDate),
		ContractStart:          timeToTimestamp(b.ContractStart),
		ContractEnd:            timeToTimestamp(b.ContractEnd),
		ContractSignedAt:       timeToTimestamp(b.ContractSignedAt),
		ActivationBlocked:      b.ActivationBlocked,
		ActivationBlockedAt:    timeToTimestamp(b.ActivationBlockedAt),
		CancelledBy:            string(b.CancelledBy),
		CancellationReason:     b.CancellationReason,
		CancelledAt:            timeToTimestamp(b.CancelledAt),
		Transitions:            make([]transitionDocument, 0, len(b.Transitions)),
		CreatedAt:              timeToTimestamp(b.CreatedAt),
		UpdatedAt:              timeToTimestamp(b.UpdatedAt),
		Version:                b.Version,
	}
	for _, t := range b.Transitions {
		doc.Transitions = append(doc.Transitions, transitionDocument{
			Event:          string(t.Event),
			From:           string(t.From),
			To:             string(t.To),
			ActorRole:      string(t.Actor.Role),
			ActorID:        t.Actor.ID,
			At:             timeToTimestamp(t.At),
			IdempotencyKey: t.IdempotencyKey,
		})
	}
	return doc
}

func (d bookingDocument) toAggregate() *domainbooking.Booking {
	agg := &domainbooking.Booking{
		ID:                     domainbooking.BookingID(d.ID),
		RenterID:               d.RenterID,
		RoomID:                 domainrooms.RoomID(d.RoomID),
		OwnerID:                domainrooms.OwnerID(d.OwnerID),
		MonthlyRent:            d.MonthlyRent,
		BookingAmount:          d.BookingAmount,
		SecurityDeposit:        d.SecurityDeposit,
		PlatformFee:            d.PlatformFee,
		TotalPaid:              d.TotalPaid,
		RefundAmount:           d.RefundAmount,
		State:                  domainbooking.State(d.State),
		PaymentState:           domainbooking.PaymentState(d.PaymentState),
		ContractDurationMonths: d.ContractDurationMonths,
		MoveInDate:             timestampToTime(d.MoveInDate),
		ContractStart:          timestampToTime(d.ContractStart),
		ContractEnd:            timestampToTime(d.ContractEnd),
		ContractSignedAt:       timestampToTime(d.ContractSignedAt),
		ActivationBlocked:      d.ActivationBlocked,
		ActivationBlockedAt:    timestampToTime(d.ActivationBlockedAt),
		CancelledBy:            actor.Role(d.CancelledBy),
		CancellationReason:     d.CancellationReason,
		CancelledAt:            timestampToTime(d.CancelledAt),
		Transitions:            make([]domainbooking.Transition, 0, len(d.Transitions)),
		CreatedAt:              timestampToTime(d.CreatedAt),
		UpdatedAt:              timestampToTime(d.UpdatedAt),
		Version:                d.Version,
	}
	for _, t := range d.Transitions {
		agg.Transitions = append(agg.Transitions, domainbooking.Transition{
			Event:          domainbooking.Event(t.Event),
			From:           domainbooking.State(t.From),
			To:             domainbooking.State(t.To),
			Actor:          actor.Actor{Role: actor.Role(t.ActorRole), ID: t.ActorID},
			At:             timestampToTime(t.At),
			IdempotencyKey: t.IdempotencyKey,
		})
	}
	return agg
}

type roomDocument struct {
	ID            string      `bson:"_id"`
	OwnerID       string      `bson:"owner_id"`
	Title         string      `bson:"title"`
	MonthlyRent   money.Money `bson:"monthly_rent"`
	TotalSlots    int         `bson:"total_slots"`
	OccupiedSlots int         `bson:"occupied_slots"`
	Holders       []string    `bson:"holders"`
}

func newRoomDocument(r *domainrooms.Room) roomDocument {
	return roomDocument{
		ID:            string(r.ID),
		OwnerID:       string(r.OwnerID),
		Title:         r.Title,
		MonthlyRent:   r.MonthlyRent,
		TotalSlots:    r.TotalSlots,
		OccupiedSlots: r.OccupiedSlots,
	}
}

func (d roomDocument) toRoom() *domainrooms.Room {
	return &domainrooms.Room{
		ID:            domainrooms.RoomID(d.ID),
		OwnerID:       domainrooms.OwnerID(d.OwnerID),
		Title:         d.Title,
		MonthlyRent:   d.MonthlyRent,
		TotalSlots:    d.TotalSlots,
		OccupiedSlots: d.OccupiedSlots,
	}
}

type commissionDocument struct {
	ID          string      `bson:"_id"`
	BookingID   string      `bson:"booking_id"`
	OwnerID     string      `bson:"owner_id"`
	BaseAmount  money.Money `bson:"base_amount"`
	Rate        float64     `bson:"rate"`
	Amount      money.Money `bson:"amount"`
	Discount    money.Money `bson:"discount"`
	FinalAmount money.Money `bson:"final_amount"`
	Paid        bool        `bson:"paid"`
	PaidAt      int64       `bson:"paid_at"`
	CreatedAt   int64       `bson:"created_at"`
}

func newCommissionDocument(c *domaincommissions.Commission) commissionDocument {
	return commissionDocument{
		ID:          c.ID,
		BookingID:   c.BookingID,
		OwnerID:     string(c.OwnerID),
		BaseAmount:  c.BaseAmount,
		Rate:        c.Rate,
		Amount:      c.Amount,
		Discount:    c.Discount,
		FinalAmount: c.FinalAmount,
		Paid:        c.Paid,
		PaidAt:      timeToTimestamp(c.PaidAt),
		CreatedAt:   timeToTimestamp(c.CreatedAt),
	}
}

func (d commissionDocument) toCommission() *domaincommissions.Commission {
	return &domaincommissions.Commission{
		ID:          d.ID,
		BookingID:   d.BookingID,
		OwnerID:     domainrooms.OwnerID(d.OwnerID),
		BaseAmount:  d.BaseAmount,
		Rate:        d.Rate,
		Amount:      d.Amount,
		Discount:    d.Discount,
		FinalAmount: d.FinalAmount,
		Paid:        d.Paid,
		PaidAt:      timestampToTime(d.PaidAt),
		CreatedAt:   timestampToTime(d.CreatedAt),
	}
}

type refundDocument struct {
	ID          string      `bson:"_id"`
	BookingID   string      `bson:"booking_id"`
	Amount      money.Money `bson:"amount"`
	Reason      string      `bson:"reason,omitempty"`
	Initiator   string      `bson:"initiator"`
	Processed   bool        `bson:"processed"`
	ProcessedAt int64       `bson:"processed_at"`
	CreatedAt   int64       `bson:"created_at"`
}

func newRefundDocument(r *domainrefunds.Record) refundDocument {
	return refundDocument{
		ID:          r.ID,
		BookingID:   r.BookingID,
		Amount:      r.Amount,
		Reason:      r.Reason,
		Initiator:   string(r.Initiator),
		Processed:   r.Processed,
		ProcessedAt: timeToTimestamp(r.ProcessedAt),
		CreatedAt:   timeToTimestamp(r.CreatedAt),
	}
}

func (d refundDocument) toRecord() *domainrefunds.Record {
	return &domainrefunds.Record{
		ID:          d.ID,
		BookingID:   d.BookingID,
		Amount:      d.Amount,
		Reason:      d.Reason,
		Initiator:   actor.Role(d.Initiator),
		Processed:   d.Processed,
		ProcessedAt: timestampToTime(d.ProcessedAt),
		CreatedAt:   timestampToTime(d.CreatedAt),
	}
}

type tierDocument struct {
	OwnerID      string  `bson:"_id"`
	Name         string  `bson:"name"`
	Rate         float64 `bson:"rate"`
	DiscountRate float64 `bson:"discount_rate"`
}

// timeToTimestamp stores the zero time as 0 so absent dates survive a round trip.
func timeToTimestamp(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func timestampToTime(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}
