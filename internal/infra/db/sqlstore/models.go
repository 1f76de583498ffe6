package sqlstore

import (
	"time"

	domainbooking "roomies/internal/domain/booking"
	domaincommissions "roomies/internal/domain/commissions"
	domainrefunds "roomies/internal/domain/refunds"
	domainrooms "roomies/internal/domain/rooms"
	"roomies/internal/domain/shared/actor"
	"roomies/internal/domain/shared/money"
)

type moneyColumns struct {
	Amount   int64
	Currency string `gorm:"size:3"`
}

func columns(m money.Money) moneyColumns { return moneyColumns{Amount: m.Amount, Currency: m.Currency} }

func (c moneyColumns) money() money.Money { return money.Money{Amount: c.Amount, Currency: c.Currency} }

type bookingRow struct {
	ID                     string       `gorm:"primaryKey;size:64"`
	RenterID               string       `gorm:"size:64;index:ix_bookings_renter,priority:1"`
	RoomID                 string       `gorm:"size:64"`
	OwnerID                string       `gorm:"size:64;index:ix_bookings_owner,priority:1"`
	MonthlyRent            moneyColumns `gorm:"embedded;embeddedPrefix:monthly_rent_"`
	BookingAmount          moneyColumns `gorm:"embedded;embeddedPrefix:booking_amount_"`
	SecurityDeposit        moneyColumns `gorm:"embedded;embeddedPrefix:security_deposit_"`
	PlatformFee            moneyColumns `gorm:"embedded;embeddedPrefix:platform_fee_"`
	TotalPaid              moneyColumns `gorm:"embedded;embeddedPrefix:total_paid_"`
	RefundAmount           moneyColumns `gorm:"embedded;embeddedPrefix:refund_amount_"`
	State                  string       `gorm:"size:32;index:ix_bookings_due,priority:1"`
	IsOpen                 bool         `gorm:"column:is_open"`
	PaymentState           string       `gorm:"size:32"`
	ContractDurationMonths int
	MoveInDate             time.Time
	ContractStart          time.Time
	ContractEnd            time.Time `gorm:"index:ix_bookings_due,priority:2"`
	ContractSignedAt       time.Time
	ActivationBlocked      bool
	ActivationBlockedAt    time.Time
	CancelledBy            string `gorm:"size:16"`
	CancellationReason     string
	CancelledAt            time.Time
	Transitions            []domainbooking.Transition `gorm:"serializer:json"`
	CreatedAt              time.Time                  `gorm:"autoCreateTime:false;index:ix_bookings_renter,priority:2;index:ix_bookings_owner,priority:2"`
	UpdatedAt              time.Time                  `gorm:"autoUpdateTime:false"`
	Version                int64
}

func (bookingRow) TableName() string { return "bookings" }

func newBookingRow(b *domainbooking.Booking) bookingRow {
	return bookingRow{
		ID:                     string(b.ID),
		RenterID:               b.RenterID,
		RoomID:                 string(b.RoomID),
		OwnerID:                string(b.OwnerID),
		MonthlyRent:            columns(b.MonthlyRent),
		BookingAmount:          columns(b.BookingAmount),
		SecurityDeposit:        columns(b.SecurityDeposit),
		PlatformFee:            columns(b.PlatformFee),
		TotalPaid:              columns(b.TotalPaid),
		RefundAmount:           columns(b.RefundAmount),
		State:                  string(b.State),
		IsOpen:                 b.Open(),
		PaymentState:           string(b.PaymentState),
		ContractDurationMonths: b.ContractDurationMonths,
		MoveInDate:             b.MoveInDate.UTC(),
		ContractStart:          b.ContractStart.UTC(),
		ContractEnd:            b.ContractEnd.UTC(),
		ContractSignedAt:       b.ContractSignedAt.UTC(),
		ActivationBlocked:      b.ActivationBlocked,
		ActivationBlockedAt:    b.ActivationBlockedAt.UTC(),
		CancelledBy:            string(b.CancelledBy),
		CancellationReason:     b.CancellationReason,
		CancelledAt:            b.CancelledAt.UTC(),
		Transitions:            append([]domainbooking.Transition(nil), b.Transitions...),
		CreatedAt:              b.CreatedAt.UTC(),
		UpdatedAt:              b.UpdatedAt.UTC(),
		Version:                b.Version,
	}
}

func (r bookingRow) toAggregate() *domainbooking.Booking {
	return &domainbooking.Booking{
		ID:                     domainbooking.BookingID(r.ID),
		RenterID:               r.RenterID,
		RoomID:                 domainrooms.RoomID(r.RoomID),
		OwnerID:                domainrooms.OwnerID(r.OwnerID),
		MonthlyRent:            r.MonthlyRent.money(),
		BookingAmount:          r.BookingAmount.money(),
		SecurityDeposit:        r.SecurityDeposit.money(),
		PlatformFee:            r.PlatformFee.money(),
		TotalPaid:              r.TotalPaid.money(),
		RefundAmount:           r.RefundAmount.money(),
		State:                  domainbooking.State(r.State),
		PaymentState:           domainbooking.PaymentState(r.PaymentState),
		ContractDurationMonths: r.ContractDurationMonths,
		MoveInDate:             utc(r.MoveInDate),
		ContractStart:          utc(r.ContractStart),
		ContractEnd:            utc(r.ContractEnd),
		ContractSignedAt:       utc(r.ContractSignedAt),
		ActivationBlocked:      r.ActivationBlocked,
		ActivationBlockedAt:    utc(r.ActivationBlockedAt),
		CancelledBy:            actor.Role(r.CancelledBy),
		CancellationReason:     r.CancellationReason,
		CancelledAt:            utc(r.CancelledAt),
		Transitions:            r.Transitions,
		CreatedAt:              utc(r.CreatedAt),
		UpdatedAt:              utc(r.UpdatedAt),
		Version:                r.Version,
	}
}

type roomRow struct {
	ID            string `gorm:"primaryKey;size:64"`
	OwnerID       string `gorm:"size:64;index"`
	Title         string
	MonthlyRent   moneyColumns `gorm:"embedded;embeddedPrefix:monthly_rent_"`
	TotalSlots    int
	OccupiedSlots int
}

func (roomRow) TableName() string { return "rooms" }

func (r roomRow) toRoom() *domainrooms.Room {
	return &domainrooms.Room{
		ID:            domainrooms.RoomID(r.ID),
		OwnerID:       domainrooms.OwnerID(r.OwnerID),
		Title:         r.Title,
		MonthlyRent:   r.MonthlyRent.money(),
		TotalSlots:    r.TotalSlots,
		OccupiedSlots: r.OccupiedSlots,
	}
}

// slotHolderRow records which booking holds which slot so Release stays idempotent.
type slotHolderRow struct {
	RoomID    string `gorm:"primaryKey;size:64"`
	BookingID string `gorm:"primaryKey;size:64"`
	CreatedAt time.Time
}

func (slotHolderRow) TableName() string { return "room_slot_holders" }

type commissionRow struct {
	ID          string       `gorm:"primaryKey;size:64"`
	BookingID   string       `gorm:"size:64;uniqueIndex"`
	OwnerID     string       `gorm:"size:64;index"`
	BaseAmount  moneyColumns `gorm:"embedded;embeddedPrefix:base_"`
	Rate        float64
	Amount      moneyColumns `gorm:"embedded;embeddedPrefix:amount_"`
	Discount    moneyColumns `gorm:"embedded;embeddedPrefix:discount_"`
	FinalAmount moneyColumns `gorm:"embedded;embeddedPrefix:final_"`
	Paid        bool
	PaidAt      time.Time
	CreatedAt   time.Time `gorm:"autoCreateTime:false"`
}

func (commissionRow) TableName() string { return "commissions" }

func newCommissionRow(c *domaincommissions.Commission) commissionRow {
	return commissionRow{
		ID:          c.ID,
		BookingID:   c.BookingID,
		OwnerID:     string(c.OwnerID),
		BaseAmount:  columns(c.BaseAmount),
		Rate:        c.Rate,
		Amount:      columns(c.Amount),
		Discount:    columns(c.Discount),
		FinalAmount: columns(c.FinalAmount),
		Paid:        c.Paid,
		PaidAt:      c.PaidAt.UTC(),
		CreatedAt:   c.CreatedAt.UTC(),
	}
}

func (r commissionRow) toCommission() *domaincommissions.Commission {
	return &domaincommissions.Commission{
		ID:          r.ID,
		BookingID:   r.BookingID,
		OwnerID:     domainrooms.OwnerID(r.OwnerID),
		BaseAmount:  r.BaseAmount.money(),
		Rate:        r.Rate,
		Amount:      r.Amount.money(),
		Discount:    r.Discount.money(),
		FinalAmount: r.FinalAmount.money(),
		Paid:        r.Paid,
		PaidAt:      utc(r.PaidAt),
		CreatedAt:   utc(r.CreatedAt),
	}
}

type refundRow struct {
	ID          string       `gorm:"primaryKey;size:64"`
	BookingID   string       `gorm:"size:64;uniqueIndex"`
	Amount      moneyColumns `gorm:"embedded;embeddedPrefix:amount_"`
	Reason      string
	Initiator   string `gorm:"size:16"`
	Processed   bool
	ProcessedAt time.Time
	CreatedAt   time.Time `gorm:"autoCreateTime:false"`
}

func (refundRow) TableName() string { return "refunds" }

func newRefundRow(r *domainrefunds.Record) refundRow {
	return refundRow{
		ID:          r.ID,
		BookingID:   r.BookingID,
		Amount:      columns(r.Amount),
		Reason:      r.Reason,
		Initiator:   string(r.Initiator),
		Processed:   r.Processed,
		ProcessedAt: r.ProcessedAt.UTC(),
		CreatedAt:   r.CreatedAt.UTC(),
	}
}

func (r refundRow) toRecord() *domainrefunds.Record {
	return &domainrefunds.Record{
		ID:          r.ID,
		BookingID:   r.BookingID,
		Amount:      r.Amount.money(),
		Reason:      r.Reason,
		Initiator:   actor.Role(r.Initiator),
		Processed:   r.Processed,
		ProcessedAt: utc(r.ProcessedAt),
		CreatedAt:   utc(r.CreatedAt),
	}
}

type tierRow struct {
	OwnerID      string `gorm:"primaryKey;size:64"`
	Name         string `gorm:"size:32"`
	Rate         float64
	DiscountRate float64
}

func (tierRow) TableName() string { return "owner_tiers" }

type outboxRow struct {
	ID            string `gorm:"primaryKey;size:64"`
	Name          string `gorm:"size:64"`
	Payload       []byte
	OccurredAt    time.Time
	Aggregate     string            `gorm:"size:64"`
	Headers       map[string]string `gorm:"serializer:json"`
	State         string            `gorm:"size:16;index:ix_outbox_due,priority:1"`
	Attempts      int
	NextAttemptAt time.Time `gorm:"index:ix_outbox_due,priority:2"`
	ClaimedBy     string    `gorm:"size:64"`
	ClaimedAt     time.Time
	SentAt        time.Time
	LastError     string
	CreatedAt     time.Time `gorm:"autoCreateTime:false"`
}

func (outboxRow) TableName() string { return "outbox" }

// utc normalises driver-returned times and keeps the zero time zero.
func utc(t time.Time) time.Time {
	if t.IsZero() || t.Year() <= 1 {
		return time.Time{}
	}
	return t.UTC()
}
