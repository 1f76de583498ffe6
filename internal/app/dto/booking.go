package dto

import (
	"time"

	domainbooking "roomies/internal/domain/booking"
	domaincommissions "roomies/internal/domain/commissions"
	"roomies/internal/domain/fees"
	domainrefunds "roomies/internal/domain/refunds"
	"roomies/internal/domain/shared/money"
)

type MoneyDTO struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Display  string `json:"display,omitempty"`
}

func MapMoney(m money.Money) MoneyDTO {
	return MoneyDTO{Amount: m.Amount, Currency: m.Currency, Display: m.String()}
}

func (m MoneyDTO) Money() money.Money {
	return money.Money{Amount: m.Amount, Currency: m.Currency}
}

type TransitionDTO struct {
	Event     string    `json:"event"`
	From      string    `json:"from,omitempty"`
	To        string    `json:"to"`
	ActorRole string    `json:"actor_role"`
	ActorID   string    `json:"actor_id,omitempty"`
	At        time.Time `json:"at"`
}

type BookingView struct {
	ID                     string          `json:"id"`
	RenterID               string          `json:"renter_id"`
	RoomID                 string          `json:"room_id"`
	OwnerID                string          `json:"owner_id"`
	State                  string          `json:"state"`
	PaymentState           string          `json:"payment_state"`
	MonthlyRent            MoneyDTO        `json:"monthly_rent"`
	BookingAmount          MoneyDTO        `json:"booking_amount"`
	SecurityDeposit        MoneyDTO        `json:"security_deposit"`
	PlatformFee            MoneyDTO        `json:"platform_fee"`
	TotalDue               MoneyDTO        `json:"total_due"`
	TotalPaid              MoneyDTO        `json:"total_paid"`
	Remaining              MoneyDTO        `json:"remaining"`
	RefundAmount           MoneyDTO        `json:"refund_amount"`
	ContractDurationMonths int             `json:"contract_duration_months"`
	MoveInDate             *time.Time      `json:"move_in_date,omitempty"`
	ContractStart          *time.Time      `json:"contract_start,omitempty"`
	ContractEnd            *time.Time      `json:"contract_end,omitempty"`
	ContractSignedAt       *time.Time      `json:"contract_signed_at,omitempty"`
	ActivationBlocked      bool            `json:"activation_blocked"`
	CancelledBy            string          `json:"cancelled_by,omitempty"`
	CancellationReason     string          `json:"cancellation_reason,omitempty"`
	Transitions            []TransitionDTO `json:"transitions"`
	CreatedAt              time.Time       `json:"created_at"`
	UpdatedAt              time.Time       `json:"updated_at"`
	Version                int64           `json:"version"`
}

func MapBooking(b *domainbooking.Booking) BookingView {
	view := BookingView{
		ID:                     string(b.ID),
		RenterID:               b.RenterID,
		RoomID:                 string(b.RoomID),
		OwnerID:                string(b.OwnerID),
		State:                  string(b.State),
		PaymentState:           string(b.PaymentState),
		MonthlyRent:            MapMoney(b.MonthlyRent),
		BookingAmount:          MapMoney(b.BookingAmount),
		SecurityDeposit:        MapMoney(b.SecurityDeposit),
		PlatformFee:            MapMoney(b.PlatformFee),
		TotalDue:               MapMoney(b.TotalDue()),
		TotalPaid:              MapMoney(b.TotalPaid),
		Remaining:              MapMoney(b.Remaining()),
		RefundAmount:           MapMoney(b.RefundAmount),
		ContractDurationMonths: b.ContractDurationMonths,
		MoveInDate:             optionalTime(b.MoveInDate),
		ContractStart:          optionalTime(b.ContractStart),
		ContractEnd:            optionalTime(b.ContractEnd),
		ContractSignedAt:       optionalTime(b.ContractSignedAt),
		ActivationBlocked:      b.ActivationBlocked,
		CancelledBy:            string(b.CancelledBy),
		CancellationReason:     b.CancellationReason,
		Transitions:            make([]TransitionDTO, 0, len(b.Transitions)),
		CreatedAt:              b.CreatedAt,
		UpdatedAt:              b.UpdatedAt,
		Version:                b.Version,
	}
	for _, t := range b.Transitions {
		view.Transitions = append(view.Transitions, TransitionDTO{
			Event:     string(t.Event),
			From:      string(t.From),
			To:        string(t.To),
			ActorRole: string(t.Actor.Role),
			ActorID:   t.Actor.ID,
			At:        t.At,
		})
	}
	return view
}

type BookingCollection struct {
	Items []BookingView `json:"items"`
}

func MapBookings(list []*domainbooking.Booking) BookingCollection {
	out := BookingCollection{Items: make([]BookingView, 0, len(list))}
	for _, b := range list {
		out.Items = append(out.Items, MapBooking(b))
	}
	return out
}

type RefundView struct {
	ID          string     `json:"id"`
	BookingID   string     `json:"booking_id"`
	Amount      MoneyDTO   `json:"amount"`
	Reason      string     `json:"reason,omitempty"`
	Initiator   string     `json:"initiator"`
	Processed   bool       `json:"processed"`
	ProcessedAt *time.Time `json:"processed_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

func MapRefund(r *domainrefunds.Record) RefundView {
	return RefundView{
		ID:          r.ID,
		BookingID:   r.BookingID,
		Amount:      MapMoney(r.Amount),
		Reason:      r.Reason,
		Initiator:   string(r.Initiator),
		Processed:   r.Processed,
		ProcessedAt: optionalTime(r.ProcessedAt),
		CreatedAt:   r.CreatedAt,
	}
}

// CancellationView is the booking after cancellation or rejection together with its refund.
type CancellationView struct {
	Booking BookingView `json:"booking"`
	Refund  RefundView  `json:"refund"`
}

type CommissionView struct {
	ID          string     `json:"id"`
	BookingID   string     `json:"booking_id"`
	OwnerID     string     `json:"owner_id"`
	BaseAmount  MoneyDTO   `json:"base_amount"`
	Rate        float64    `json:"rate"`
	Amount      MoneyDTO   `json:"amount"`
	Discount    MoneyDTO   `json:"discount"`
	FinalAmount MoneyDTO   `json:"final_amount"`
	Paid        bool       `json:"paid"`
	PaidAt      *time.Time `json:"paid_at,omitempty"`
}

func MapCommission(c *domaincommissions.Commission) CommissionView {
	return CommissionView{
		ID:          c.ID,
		BookingID:   c.BookingID,
		OwnerID:     string(c.OwnerID),
		BaseAmount:  MapMoney(c.BaseAmount),
		Rate:        c.Rate,
		Amount:      MapMoney(c.Amount),
		Discount:    MapMoney(c.Discount),
		FinalAmount: MapMoney(c.FinalAmount),
		Paid:        c.Paid,
		PaidAt:      optionalTime(c.PaidAt),
	}
}

type QuoteView struct {
	RoomID          string   `json:"room_id"`
	MonthlyRent     MoneyDTO `json:"monthly_rent"`
	BookingAmount   MoneyDTO `json:"booking_amount"`
	SecurityDeposit MoneyDTO `json:"security_deposit"`
	PlatformFee     MoneyDTO `json:"platform_fee"`
	TotalDue        MoneyDTO `json:"total_due"`
	AvailableSlots  int      `json:"available_slots"`
}

func MapQuote(roomID string, q fees.Breakdown, available int) QuoteView {
	return QuoteView{
		RoomID:          roomID,
		MonthlyRent:     MapMoney(q.MonthlyRent),
		BookingAmount:   MapMoney(q.BookingAmount),
		SecurityDeposit: MapMoney(q.SecurityDeposit),
		PlatformFee:     MapMoney(q.PlatformFee),
		TotalDue:        MapMoney(q.TotalDue),
		AvailableSlots:  available,
	}
}

func optionalTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

// SettlementView groups the money records hanging off one booking. Either side may be absent.
type SettlementView struct {
	Booking    BookingView     `json:"booking"`
	Commission *CommissionView `json:"commission,omitempty"`
	Refund     *RefundView     `json:"refund,omitempty"`
}
