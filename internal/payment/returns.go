package payment

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"calpay/internal/booking"
	"calpay/internal/eventtype"
	"calpay/internal/logger"
	"calpay/internal/stripe"
)

// Returns handles the browser coming back from the hosted checkout.
type Returns struct {
	payments   Repository
	bookings   booking.Repository
	eventTypes eventtype.Repository
	resolver   AccountResolver
	gateway    stripe.Gateway
	confirmer  *Confirmer
	releaser   *Releaser
	webappURL  string
	tracer     trace.Tracer
}

func NewReturns(payments Repository, bookings booking.Repository, eventTypes eventtype.Repository, resolver AccountResolver, gateway stripe.Gateway, confirmer *Confirmer, releaser *Releaser, webappURL string) *Returns {
	return &Returns{
		payments:   payments,
		bookings:   bookings,
		eventTypes: eventTypes,
		resolver:   resolver,
		gateway:    gateway,
		confirmer:  confirmer,
		releaser:   releaser,
		webappURL:  strings.TrimRight(webappURL, "/"),
		tracer:     otel.Tracer("calpay/payment"),
	}
}

func (r *Returns) successURL(b *booking.Booking) string {
	return fmt.Sprintf("%s/booking/%s?payment_status=success", r.webappURL, b.UID)
}

func (r *Returns) pendingURL(b *booking.Booking) string {
	return fmt.Sprintf("%s/booking/%s?payment_status=pending", r.webappURL, b.UID)
}

func (r *Returns) failedURL(p *Payment) string {
	return fmt.Sprintf("%s/payment/%s?payment_status=failed", r.webappURL, p.UID)
}

// Resolve verifies the checkout session against Stripe and returns where
// the browser should go next.
func (r *Returns) Resolve(ctx context.Context, bookingID int, sessionID string, cancelled bool) (string, error) {
	ctx, span := r.tracer.Start(ctx, "payment.return", trace.WithAttributes(
		attribute.Int("calpay.booking_id", bookingID),
		attribute.Bool("calpay.cancelled", cancelled),
	))
	defer span.End()

	p, err := r.payments.FindByExternalIDAndBooking(ctx, sessionID, bookingID)
	if err != nil {
		return "", err
	}

	b, err := r.bookings.GetByID(ctx, bookingID)
	if err != nil {
		return "", err
	}

	if p.Success || b.Paid {
		return r.successURL(b), nil
	}

	et, err := r.eventTypes.GetByID(ctx, b.EventTypeID)
	if err != nil {
		return "", err
	}

	acct, err := r.resolver.ForPayment(ctx, p.Data.CredentialKind, p.Data.StripeAccount)
	if err != nil {
		return "", err
	}

	s, err := r.gateway.GetCheckoutSession(ctx, acct, sessionID)
	if err != nil {
		logger.Error("failed to verify checkout session", "booking_id", bookingID, "payment_id", p.ID, "session_id", sessionID, "error", err)
		return "", fmt.Errorf("%w: %w", ErrProviderUnavailable, err)
	}

	if s.Completed() {
		if _, err := r.confirmer.Confirm(ctx, p, "redirect"); err != nil {
			return "", err
		}
		return r.successURL(b), nil
	}

	// The async_payment_* webhook settles it; deleting now would orphan the charge.
	if s.Settling() {
		logger.Info("checkout complete, payment settling", "booking_id", bookingID, "payment_id", p.ID, "session_id", sessionID)
		return r.pendingURL(b), nil
	}

	if p.Option != OptionSyncBooking {
		return r.failedURL(p), nil
	}

	reason := "payment_failed"
	if cancelled {
		reason = "payment_cancelled"
	}
	if _, err := r.releaser.Release(ctx, p, s.Open(), reason); err != nil {
		return "", err
	}

	query := url.Values{}
	if cancelled {
		query.Set("payment_cancelled", "true")
	} else {
		query.Set("payment_failed", "true")
	}
	return et.PageURL(r.webappURL, query), nil
}
