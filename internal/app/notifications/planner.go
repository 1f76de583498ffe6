package notifications

import (
	"encoding/json"
	"fmt"

	"roomies/internal/app/outbox"
	domainbooking "roomies/internal/domain/booking"
	"roomies/internal/domain/shared/actor"
	"roomies/internal/domain/shared/money"
)

type eventPayload struct {
	BookingID string       `json:"booking_id"`
	RenterID  string       `json:"renter_id"`
	OwnerID   string       `json:"owner_id"`
	Initiator actor.Role   `json:"initiator"`
	Reason    string       `json:"reason"`
	Refund    *money.Money `json:"refund"`
	Amount    *money.Money `json:"amount"`
	Remaining *money.Money `json:"remaining"`
}

type target struct {
	role   actor.Role
	kind   Kind
	amount *money.Money
}

// Plan lists the notifications one booking event produces. Events nobody is told about yield
// an empty plan.
func Plan(rec outbox.EventRecord) ([]Notification, error) {
	var p eventPayload
	if err := json.Unmarshal(rec.Payload, &p); err != nil {
		return nil, fmt.Errorf("notifications: decode %s: %w", rec.Name, err)
	}
	var targets []target
	switch rec.Name {
	case domainbooking.EventNameFeePaid:
		targets = []target{
			{role: actor.Owner, kind: KindBookingRequest},
			{role: actor.Renter, kind: KindBookingRequestSent, amount: p.Amount},
		}
	case domainbooking.EventNameApproved:
		targets = []target{{role: actor.Renter, kind: KindCompletePayment, amount: p.Remaining}}
	case domainbooking.EventNameRejected:
		targets = []target{
			{role: actor.Renter, kind: KindBookingRejected},
			{role: actor.Renter, kind: KindRefundIssued, amount: p.Refund},
		}
	case domainbooking.EventNameActivated:
		targets = []target{
			{role: actor.Renter, kind: KindBookingConfirmed},
			{role: actor.Owner, kind: KindPaymentReceived, amount: p.Amount},
		}
	case domainbooking.EventNameActivationBlocked:
		targets = []target{
			{role: actor.Renter, kind: KindActivationBlocked},
			{role: actor.Owner, kind: KindActivationBlocked},
		}
	case domainbooking.EventNameCancelled:
		switch p.Initiator {
		case actor.Renter:
			targets = append(targets, target{role: actor.Owner, kind: KindBookingCancelled})
		case actor.Owner:
			targets = append(targets, target{role: actor.Renter, kind: KindBookingCancelled})
		default:
			targets = append(targets,
				target{role: actor.Renter, kind: KindBookingCancelled},
				target{role: actor.Owner, kind: KindBookingCancelled},
			)
		}
		if p.Refund != nil && p.Refund.Amount > 0 {
			targets = append(targets, target{role: actor.Renter, kind: KindRefundIssued, amount: p.Refund})
		}
	case domainbooking.EventNameCompleted:
		targets = []target{
			{role: actor.Renter, kind: KindTenancyCompleted},
			{role: actor.Owner, kind: KindTenancyCompleted},
		}
	case domainbooking.EventNameContractSigned:
		targets = []target{{role: actor.Owner, kind: KindContractSigned}}
	default:
		return nil, nil
	}

	out := make([]Notification, 0, len(targets))
	for _, t := range targets {
		recipientID := p.RenterID
		if t.role == actor.Owner {
			recipientID = p.OwnerID
		}
		out = append(out, Notification{
			ID:          rec.ID + ":" + string(t.role) + ":" + string(t.kind),
			Kind:        t.kind,
			EventName:   rec.Name,
			BookingID:   p.BookingID,
			Recipient:   t.role,
			RecipientID: recipientID,
			Amount:      t.amount,
			Reason:      p.Reason,
			OccurredAt:  rec.OccurredAt,
		})
	}
	return out, nil
}
