// Package notify holds the delivery side of renter and owner notifications.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/unicode/norm"

	"roomies/internal/app/notifications"
	"roomies/internal/app/policies"
	"roomies/internal/domain/shared/money"
)

var templates = map[notifications.Kind]string{
	notifications.KindBookingRequest:     "New booking request %s is waiting for your decision",
	notifications.KindBookingRequestSent: "Your booking request %s was sent to the owner",
	notifications.KindCompletePayment:    "Booking %s was approved, complete the payment of %s",
	notifications.KindBookingRejected:    "Booking %s was rejected",
	notifications.KindRefundIssued:       "A refund of %s was issued for booking %s",
	notifications.KindBookingConfirmed:   "Booking %s is confirmed",
	notifications.KindPaymentReceived:    "Payment of %s received for booking %s",
	notifications.KindActivationBlocked:  "Booking %s is paid but the room has no free slot",
	notifications.KindBookingCancelled:   "Booking %s was cancelled",
	notifications.KindTenancyCompleted:   "Tenancy for booking %s has completed",
	notifications.KindContractSigned:     "The contract for booking %s was signed",
}

// LogNotifier renders notifications as text and writes them to the structured log. It stands
// in for the email and push providers.
type LogNotifier struct {
	Logger *slog.Logger
	Lang   language.Tag
}

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{Logger: logger, Lang: language.English}
}

func (n *LogNotifier) Send(ctx context.Context, to string, template string, data any) error {
	if strings.TrimSpace(to) == "" {
		return fmt.Errorf("notify: recipient required for %s", template)
	}
	text, err := n.Render(template, data)
	if err != nil {
		return err
	}
	n.Logger.InfoContext(ctx, "notification sent", "to", to, "template", template, "text", text)
	return nil
}

// Render formats data for the given template. Notifications get their kind-specific sentence,
// anything else is printed as is.
func (n *LogNotifier) Render(template string, data any) (string, error) {
	note, ok := data.(notifications.Notification)
	if !ok {
		return fmt.Sprintf("%s: %v", template, data), nil
	}
	format, ok := templates[notifications.Kind(template)]
	if !ok {
		return "", fmt.Errorf("notify: unknown template %q", template)
	}
	p := message.NewPrinter(n.Lang)

	var text string
	switch note.Kind {
	case notifications.KindCompletePayment:
		text = fmt.Sprintf(format, note.BookingID, n.formatAmount(p, note.Amount))
	case notifications.KindRefundIssued, notifications.KindPaymentReceived:
		text = fmt.Sprintf(format, n.formatAmount(p, note.Amount), note.BookingID)
	default:
		text = fmt.Sprintf(format, note.BookingID)
	}
	if reason := norm.NFC.String(strings.TrimSpace(note.Reason)); reason != "" {
		text += ": " + reason
	}
	return text, nil
}

func (n *LogNotifier) formatAmount(p *message.Printer, m *money.Money) string {
	if m == nil {
		return "the balance"
	}
	code := m.Currency
	if unit, err := currency.ParseISO(m.Currency); err == nil {
		code = unit.String()
	}
	return code + " " + p.Sprintf("%.2f", m.Major())
}

var _ policies.Notifier = (*LogNotifier)(nil)
