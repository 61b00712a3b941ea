package payment

import (
	"context"
	"fmt"

	"calpay/internal/booking"
	"calpay/internal/eventtype"
	"calpay/internal/logger"
	"calpay/internal/metrics"
)

// Confirmer applies a finished checkout. The webhook and the browser
// redirect both land here and race; the conditional update on the booking
// decides which of them sends the emails.
type Confirmer struct {
	payments   Repository
	bookings   booking.Repository
	eventTypes eventtype.Repository
	notifier   *booking.Notifier
}

func NewConfirmer(payments Repository, bookings booking.Repository, eventTypes eventtype.Repository, notifier *booking.Notifier) *Confirmer {
	return &Confirmer{payments: payments, bookings: bookings, eventTypes: eventTypes, notifier: notifier}
}

// Confirm reports whether this call moved the booking to paid.
func (c *Confirmer) Confirm(ctx context.Context, p *Payment, source string) (bool, error) {
	if p.Option != OptionHold {
		if _, err := c.payments.MarkSuccess(ctx, p.ID); err != nil {
			return false, fmt.Errorf("mark payment %d success: %w", p.ID, err)
		}
	}

	b, err := c.bookings.GetByID(ctx, p.BookingID)
	if err != nil {
		return false, err
	}

	et, err := c.eventTypes.GetByID(ctx, b.EventTypeID)
	if err != nil {
		return false, err
	}

	accept := !et.RequiresConfirmation
	marked, err := c.bookings.MarkPaid(ctx, b.ID, accept)
	if err != nil {
		return false, fmt.Errorf("mark booking %d paid: %w", b.ID, err)
	}
	if !marked {
		metrics.RecordReconciliation(source, "noop")
		logger.Debug("booking already reconciled", "booking_id", b.ID, "payment_id", p.ID, "source", source)
		return false, nil
	}

	b.Paid = true
	if accept {
		b.Status = booking.StatusAccepted
		c.notifier.Confirmed(ctx, b, et)
	} else {
		c.notifier.Requested(ctx, b, et)
	}

	metrics.RecordReconciliation(source, "applied")
	logger.Info("booking paid", "booking_id", b.ID, "payment_id", p.ID, "source", source, "accepted", accept)
	return true, nil
}
