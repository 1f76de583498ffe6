package policies

import "context"

// Notifier delivers one message to one recipient. template names the message kind
// (booking_request, refund_issued, ...) and data carries whatever the template renders.
type Notifier interface {
	Send(ctx context.Context, to string, template string, data any) error
}
