// Package notifications turns relayed booking events into messages for renters and owners and
// delivers them off the command path.
package notifications

import (
	"time"

	"roomies/internal/domain/shared/actor"
	"roomies/internal/domain/shared/money"
)

type Kind string

const (
	KindBookingRequest     Kind = "booking_request"
	KindBookingRequestSent Kind = "booking_request_sent"
	KindCompletePayment    Kind = "complete_payment"
	KindBookingRejected    Kind = "booking_rejected"
	KindRefundIssued       Kind = "refund_issued"
	KindBookingConfirmed   Kind = "booking_confirmed"
	KindPaymentReceived    Kind = "payment_received"
	KindActivationBlocked  Kind = "activation_blocked"
	KindBookingCancelled   Kind = "booking_cancelled"
	KindTenancyCompleted   Kind = "tenancy_completed"
	KindContractSigned     Kind = "contract_signed"
)

type Notification struct {
	ID          string       `json:"id"`
	Kind        Kind         `json:"kind"`
	EventName   string       `json:"event_name"`
	BookingID   string       `json:"booking_id"`
	Recipient   actor.Role   `json:"recipient"`
	RecipientID string       `json:"recipient_id"`
	Amount      *money.Money `json:"amount,omitempty"`
	Reason      string       `json:"reason,omitempty"`
	OccurredAt  time.Time    `json:"occurred_at"`
}
