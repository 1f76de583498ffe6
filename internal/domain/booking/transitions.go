package booking

import (
	"fmt"
	"slices"

	"roomies/internal/domain/shared/actor"
)

// Event names a lifecycle transition request.
type Event string

const (
	EventCreate          Event = "create"
	EventPayBookingFee   Event = "pay_booking_fee"
	EventApprove         Event = "owner_approve"
	EventReject          Event = "owner_reject"
	EventPayRemaining    Event = "pay_remaining"
	EventCancel          Event = "cancel"
	EventContractElapsed Event = "contract_elapsed"
)

type rule struct {
	from   []State
	to     State
	actors []actor.Role
}

// transitions is the complete lifecycle. Anything not listed here is rejected.
var transitions = map[Event]rule{
	EventPayBookingFee: {
		from:   []State{StatePending},
		to:     StatePaymentInitiated,
		actors: []actor.Role{actor.Renter},
	},
	EventApprove: {
		from:   []State{StatePaymentInitiated},
		to:     StateConfirmed,
		actors: []actor.Role{actor.Owner},
	},
	EventReject: {
		from:   []State{StatePaymentInitiated},
		to:     StateCancelled,
		actors: []actor.Role{actor.Owner},
	},
	EventPayRemaining: {
		from:   []State{StateConfirmed},
		to:     StateActive,
		actors: []actor.Role{actor.Renter},
	},
	EventCancel: {
		from:   []State{StatePending, StatePaymentInitiated, StateConfirmed, StateActive},
		to:     StateCancelled,
		actors: []actor.Role{actor.Renter, actor.Owner, actor.System},
	},
	EventContractElapsed: {
		from:   []State{StateActive},
		to:     StateCompleted,
		actors: []actor.Role{actor.System},
	},
}

// guard validates a transition request against the table and the booking's parties. Terminal
// bookings are rejected first, then actors without authority, then requests from the wrong state.
func (b *Booking) guard(event Event, by actor.Actor) (State, error) {
	r, ok := transitions[event]
	if !ok {
		return "", fmt.Errorf("%w: unknown event %q", ErrInvalidTransition, event)
	}
	if b.State.Terminal() {
		return "", fmt.Errorf("%w: booking is %s", ErrInvalidTransition, b.State)
	}
	if !slices.Contains(r.actors, by.Role) {
		return "", fmt.Errorf("%w: %s may not %s", ErrUnauthorized, by.Role, event)
	}
	if err := b.checkParty(by); err != nil {
		return "", err
	}
	if !slices.Contains(r.from, b.State) {
		return "", fmt.Errorf("%w: cannot %s from %s", ErrInvalidTransition, event, b.State)
	}
	return r.to, nil
}

// checkParty makes sure a renter or owner actor is the one named on the booking.
func (b *Booking) checkParty(by actor.Actor) error {
	switch by.Role {
	case actor.Renter:
		if by.ID != b.RenterID {
			return fmt.Errorf("%w: renter %q is not party to booking", ErrUnauthorized, by.ID)
		}
	case actor.Owner:
		if by.ID != string(b.OwnerID) {
			return fmt.Errorf("%w: owner %q does not own room %s", ErrUnauthorized, by.ID, b.RoomID)
		}
	}
	return nil
}

// CanApply reports whether event is legal for by in the booking's current state.
func (b *Booking) CanApply(event Event, by actor.Actor) error {
	_, err := b.guard(event, by)
	return err
}

func (b *Booking) apply(event Event, to State, by actor.Actor, key string) {
	from := b.State
	b.State = to
	b.Transitions = append(b.Transitions, Transition{
		Event:          event,
		From:           from,
		To:             to,
		Actor:          by,
		At:             b.UpdatedAt,
		IdempotencyKey: key,
	})
}

// AuthorizeReplay checks that by could have applied event, ignoring state. Replayed results go
// through it so a known idempotency key alone never reveals a booking.
func (b *Booking) AuthorizeReplay(event Event, by actor.Actor) error {
	r, ok := transitions[event]
	if !ok {
		return fmt.Errorf("%w: unknown event %q", ErrInvalidTransition, event)
	}
	if !slices.Contains(r.actors, by.Role) {
		return fmt.Errorf("%w: %s may not %s", ErrUnauthorized, by.Role, event)
	}
	return b.checkParty(by)
}

// AppliedWith returns the recorded transition for event carrying the given idempotency key.
func (b *Booking) AppliedWith(event Event, key string) (Transition, bool) {
	if key == "" {
		return Transition{}, false
	}
	for _, t := range b.Transitions {
		if t.Event == event && t.IdempotencyKey == key {
			return t, true
		}
	}
	return Transition{}, false
}
