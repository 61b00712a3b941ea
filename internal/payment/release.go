package payment

import (
	"context"
	"errors"
	"fmt"

	"calpay/internal/booking"
	"calpay/internal/logger"
	"calpay/internal/metrics"
	"calpay/internal/stripe"
)

// Releaser deletes SYNC_BOOKING bookings whose payment will not happen.
type Releaser struct {
	bookings booking.Repository
	resolver AccountResolver
	gateway  stripe.Gateway
	notifier *booking.Notifier
}

func NewReleaser(bookings booking.Repository, resolver AccountResolver, gateway stripe.Gateway, notifier *booking.Notifier) *Releaser {
	return &Releaser{bookings: bookings, resolver: resolver, gateway: gateway, notifier: notifier}
}

// Release reports whether the booking was deleted. With expire set the
// open checkout is closed first so the booker cannot pay for a freed slot.
func (r *Releaser) Release(ctx context.Context, p *Payment, expire bool, reason string) (bool, error) {
	b, err := r.bookings.GetByID(ctx, p.BookingID)
	if errors.Is(err, booking.ErrBookingNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if b.Paid {
		return false, nil
	}

	if expire && p.ExternalID != "" {
		closed, err := r.expire(ctx, p)
		if err != nil {
			return false, err
		}
		if !closed {
			return false, nil
		}
	}

	deleted, err := r.bookings.DeleteUnpaid(ctx, b.ID)
	if err != nil {
		return false, fmt.Errorf("delete booking %d: %w", b.ID, err)
	}
	if !deleted {
		return false, nil
	}

	metrics.RecordBookingDeleted(reason)
	r.notifier.Deleted(ctx, b, reason)
	logger.Info("unpaid booking deleted", "booking_id", b.ID, "payment_id", p.ID, "reason", reason)
	return true, nil
}

// expire reports false when the checkout turned out to be completed.
func (r *Releaser) expire(ctx context.Context, p *Payment) (bool, error) {
	acct, err := r.resolver.ForPayment(ctx, p.Data.CredentialKind, p.Data.StripeAccount)
	if err != nil {
		return false, err
	}

	expireErr := r.gateway.ExpireCheckoutSession(ctx, acct, p.ExternalID)
	if expireErr == nil {
		return true, nil
	}

	s, err := r.gateway.GetCheckoutSession(ctx, acct, p.ExternalID)
	if err != nil {
		return false, fmt.Errorf("%w: %w", ErrProviderUnavailable, expireErr)
	}
	if s.Completed() {
		logger.Info("checkout completed before it could be expired", "payment_id", p.ID, "session_id", s.ID)
		return false, nil
	}
	if s.Open() {
		return false, fmt.Errorf("%w: %w", ErrProviderUnavailable, expireErr)
	}
	return true, nil
}
