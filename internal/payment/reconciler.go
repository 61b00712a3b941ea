package payment

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"calpay/internal/booking"
	"calpay/internal/idempotency"
	"calpay/internal/logger"
	"calpay/internal/metrics"
	"calpay/internal/stripe"
)

// Stripe event types the reconciler acts on.
const (
	EventCheckoutCompleted      = "checkout.session.completed"
	EventCheckoutAsyncSucceeded = "checkout.session.async_payment_succeeded"
	EventCheckoutAsyncFailed    = "checkout.session.async_payment_failed"
	EventCheckoutExpired        = "checkout.session.expired"
	EventPaymentIntentSucceeded = "payment_intent.succeeded"
	EventPaymentIntentFailed    = "payment_intent.payment_failed"
	EventSetupIntentSucceeded   = "setup_intent.succeeded"
)

type Outcome string

const (
	OutcomeApplied   Outcome = "applied"
	OutcomeNoop      Outcome = "noop"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeUnhandled Outcome = "unhandled"
)

type EventVerifier interface {
	Parse(payload []byte, header string, secrets ...string) (*stripe.Event, error)
}

type handlerFunc func(ctx context.Context, ev *stripe.Event) (Outcome, error)

type Reconciler struct {
	payments  Repository
	resolver  AccountResolver
	verifier  EventVerifier
	seen      idempotency.Store
	confirmer *Confirmer
	releaser  *Releaser
	handlers  map[string]handlerFunc
	tracer    trace.Tracer
}

func NewReconciler(payments Repository, resolver AccountResolver, verifier EventVerifier, seen idempotency.Store, confirmer *Confirmer, releaser *Releaser) *Reconciler {
	r := &Reconciler{
		payments:  payments,
		resolver:  resolver,
		verifier:  verifier,
		seen:      seen,
		confirmer: confirmer,
		releaser:  releaser,
		tracer:    otel.Tracer("calpay/payment"),
	}
	r.handlers = map[string]handlerFunc{
		EventCheckoutCompleted:      r.onSuccess,
		EventCheckoutAsyncSucceeded: r.onSuccess,
		EventPaymentIntentSucceeded: r.onSuccess,
		EventSetupIntentSucceeded:   r.onSuccess,
		EventPaymentIntentFailed:    r.onFailure,
		EventCheckoutAsyncFailed:    r.onFailure,
		EventCheckoutExpired:        r.onFailure,
	}
	return r
}

// Handle verifies and dispatches one webhook delivery. Event ids are
// remembered only after their handler succeeded so failed deliveries
// are retried by Stripe.
func (r *Reconciler) Handle(ctx context.Context, payload []byte, header string) (*stripe.Event, Outcome, error) {
	ev, err := r.verifier.Parse(payload, header, r.resolver.WebhookSecrets(ctx)...)
	if err != nil {
		return nil, "", err
	}

	ctx, span := r.tracer.Start(ctx, "payment.webhook", trace.WithAttributes(
		attribute.String("stripe.event_id", ev.ID),
		attribute.String("stripe.event_type", ev.Type),
	))
	defer span.End()

	seen, err := r.seen.Seen(ctx, ev.ID)
	if err != nil {
		logger.Warn("event dedup lookup failed", "event_id", ev.ID, "error", err)
	}
	if seen {
		metrics.RecordWebhookEvent(ev.Type, string(OutcomeDuplicate))
		return ev, OutcomeDuplicate, nil
	}

	h, ok := r.handlers[ev.Type]
	if !ok {
		metrics.RecordWebhookEvent(ev.Type, string(OutcomeUnhandled))
		return ev, OutcomeUnhandled, nil
	}

	outcome, err := h(ctx, ev)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		metrics.RecordWebhookEvent(ev.Type, "error")
		logger.Error("webhook handler failed", "event_id", ev.ID, "event_type", ev.Type, "error", err)
		return ev, "", err
	}

	if err := r.seen.Mark(ctx, ev.ID); err != nil {
		logger.Warn("failed to record event id", "event_id", ev.ID, "error", err)
	}

	span.SetAttributes(attribute.String("calpay.outcome", string(outcome)))
	metrics.RecordWebhookEvent(ev.Type, string(outcome))
	return ev, outcome, nil
}

// lookup finds the payment by checkout session id, then by the payment uid
// that intent events carry in their metadata.
func (r *Reconciler) lookup(ctx context.Context, obj stripe.EventObject) (*Payment, error) {
	p, err := r.payments.FindByExternalID(ctx, obj.ID)
	if !errors.Is(err, ErrPaymentNotFound) {
		return p, err
	}
	if uid := obj.PaymentUID(); uid != "" {
		return r.payments.FindByUID(ctx, uid)
	}
	return nil, ErrPaymentNotFound
}

func (r *Reconciler) onSuccess(ctx context.Context, ev *stripe.Event) (Outcome, error) {
	if ev.Type == EventCheckoutCompleted && ev.Object.Unpaid() {
		logger.Info("checkout completed, waiting for async payment", "session_id", ev.Object.ID)
		return OutcomeNoop, nil
	}

	p, err := r.lookup(ctx, ev.Object)
	if errors.Is(err, ErrPaymentNotFound) {
		logger.Warn("webhook for unknown payment", "event_id", ev.ID, "object_id", ev.Object.ID)
		return OutcomeNoop, nil
	}
	if err != nil {
		return "", err
	}

	r.recordIntents(ctx, p, ev.Object)

	applied, err := r.confirmer.Confirm(ctx, p, "webhook")
	if errors.Is(err, booking.ErrBookingNotFound) {
		logger.Warn("payment succeeded for missing booking", "payment_id", p.ID, "booking_id", p.BookingID)
		return OutcomeNoop, nil
	}
	if err != nil {
		return "", err
	}
	if applied {
		return OutcomeApplied, nil
	}
	return OutcomeNoop, nil
}

func (r *Reconciler) onFailure(ctx context.Context, ev *stripe.Event) (Outcome, error) {
	p, err := r.lookup(ctx, ev.Object)
	if errors.Is(err, ErrPaymentNotFound) {
		logger.Warn("webhook for unknown payment", "event_id", ev.ID, "object_id", ev.Object.ID)
		return OutcomeNoop, nil
	}
	if err != nil {
		return "", err
	}

	msg := ev.Object.FailureMessage
	if msg == "" {
		msg = ev.Type
	}
	p.Data.LastError = msg
	if err := r.payments.UpdateData(ctx, p.ID, Data{LastError: msg}); err != nil {
		logger.Error("failed to record payment failure", "payment_id", p.ID, "error", err)
	}

	if p.Option != OptionSyncBooking || p.Success {
		logger.Info("payment not completed", "payment_id", p.ID, "payment_option", p.Option, "event_type", ev.Type)
		return OutcomeNoop, nil
	}

	// A declined intent leaves the checkout open; close it before freeing the slot.
	expire := ev.Type == EventPaymentIntentFailed
	deleted, err := r.releaser.Release(ctx, p, expire, reasonFor(ev.Type))
	if err != nil {
		return "", err
	}
	if deleted {
		return OutcomeApplied, nil
	}
	return OutcomeNoop, nil
}

func (r *Reconciler) recordIntents(ctx context.Context, p *Payment, obj stripe.EventObject) {
	var patch Data
	if obj.PaymentIntentID != "" && p.Data.PaymentIntentID == "" {
		p.Data.PaymentIntentID = obj.PaymentIntentID
		patch.PaymentIntentID = obj.PaymentIntentID
	}
	if obj.SetupIntentID != "" && p.Data.SetupIntentID == "" {
		p.Data.SetupIntentID = obj.SetupIntentID
		patch.SetupIntentID = obj.SetupIntentID
	}
	if patch == (Data{}) {
		return
	}
	if err := r.payments.UpdateData(ctx, p.ID, patch); err != nil {
		logger.Error("failed to record intent id", "payment_id", p.ID, "error", err)
	}
}

func reasonFor(eventType string) string {
	if eventType == EventCheckoutExpired {
		return "checkout_expired"
	}
	return "payment_failed"
}
