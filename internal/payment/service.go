package payment

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"calpay/internal/booking"
	"calpay/internal/credential"
	"calpay/internal/logger"
	"calpay/internal/metrics"
	"calpay/internal/mq"
	"calpay/internal/stripe"
)

var (
	ErrNotRefundable  = errors.New("payment is not refundable")
	ErrNotChargeable  = errors.New("payment is not chargeable")
	ErrChargeDeclined = errors.New("charge declined")
)

type RefundEvent struct {
	PaymentID  int    `json:"payment_id"`
	PaymentUID string `json:"payment_uid"`
	BookingID  int    `json:"booking_id"`
	Amount     int64  `json:"amount"`
	Currency   string `json:"currency"`
	RefundID   string `json:"refund_id"`
}

type ChargeEvent struct {
	PaymentID       int    `json:"payment_id"`
	PaymentUID      string `json:"payment_uid"`
	BookingID       int    `json:"booking_id"`
	Amount          int64  `json:"amount"`
	Fee             int64  `json:"fee"`
	Currency        string `json:"currency"`
	PaymentIntentID string `json:"payment_intent"`
}

type Service interface {
	Info(ctx context.Context, uid string) (*Info, error)
	Refund(ctx context.Context, paymentID int) (*Payment, error)
	Charge(ctx context.Context, paymentID int) (*Payment, error)
	ListForBooking(ctx context.Context, bookingID int) (*BookingPayments, error)
	Products(ctx context.Context, rc credential.Context) ([]stripe.Product, error)
}

type service struct {
	payments Repository
	bookings booking.Repository
	resolver AccountResolver
	gateway  stripe.Gateway
	events   mq.EventPublisher
}

func NewService(payments Repository, bookings booking.Repository, resolver AccountResolver, gateway stripe.Gateway, events mq.EventPublisher) Service {
	return &service{
		payments: payments,
		bookings: bookings,
		resolver: resolver,
		gateway:  gateway,
		events:   events,
	}
}

func (s *service) Info(ctx context.Context, uid string) (*Info, error) {
	p, err := s.payments.FindByUID(ctx, uid)
	if err != nil {
		return nil, err
	}

	b, err := s.bookings.GetByID(ctx, p.BookingID)
	if err != nil {
		return nil, err
	}

	info := &Info{
		UID:        p.UID,
		BookingUID: b.UID,
		Amount:     p.Amount,
		Currency:   p.Currency,
		Option:     p.Option,
		Success:    p.Success,
		Refunded:   p.Refunded,
	}
	if !p.Success && !b.Paid {
		info.CheckoutURL = p.Data.CheckoutURL
		info.ClientSecret = p.Data.ClientSecret
		info.PublishableKey = p.Data.PublishableKey
	}

	return info, nil
}

func (s *service) Refund(ctx context.Context, paymentID int) (*Payment, error) {
	p, err := s.payments.GetByID(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if !p.Success || p.Refunded {
		return nil, ErrNotRefundable
	}

	acct, err := s.resolver.ForPayment(ctx, p.Data.CredentialKind, p.Data.StripeAccount)
	if err != nil {
		return nil, err
	}

	var refundID string
	if p.Option == OptionHold {
		// A held card is charged outside the checkout session.
		refundID, err = s.gateway.RefundPaymentIntent(ctx, acct, p.Data.PaymentIntentID)
	} else {
		refundID, err = s.gateway.RefundCheckoutSession(ctx, acct, p.ExternalID)
	}
	if err != nil {
		metrics.RecordRefund("failed")
		logger.Error("stripe refund failed", "payment_id", p.ID, "session_id", p.ExternalID, "error", err)
		return nil, fmt.Errorf("%w: %w", ErrProviderUnavailable, err)
	}

	p.Data.RefundID = refundID
	applied, err := s.payments.MarkRefunded(ctx, p.ID, Data{RefundID: refundID})
	if err != nil {
		return nil, err
	}
	if !applied {
		metrics.RecordRefund("noop")
		return nil, ErrNotRefundable
	}
	p.Refunded = true

	metrics.RecordRefund("refunded")
	if err := s.events.Publish(ctx, mq.PaymentRefunded, RefundEvent{
		PaymentID:  p.ID,
		PaymentUID: p.UID,
		BookingID:  p.BookingID,
		Amount:     p.Amount,
		Currency:   p.Currency,
		RefundID:   refundID,
	}); err != nil {
		logger.Error("failed to publish refund", "payment_id", p.ID, "error", err)
	}

	logger.Info("payment refunded", "payment_id", p.ID, "refund_id", refundID)
	return p, nil
}

// Charge takes the booking price off the card a HOLD checkout saved. The
// platform fee is only taken on connected accounts.
func (s *service) Charge(ctx context.Context, paymentID int) (*Payment, error) {
	p, err := s.payments.GetByID(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if p.Option != OptionHold || p.Success || p.Refunded || p.Data.SetupIntentID == "" {
		return nil, ErrNotChargeable
	}

	acct, err := s.resolver.ForPayment(ctx, p.Data.CredentialKind, p.Data.StripeAccount)
	if err != nil {
		return nil, err
	}

	var fee int64
	if acct.StripeAccount != "" {
		fees, err := s.resolver.Fees(ctx)
		if err != nil {
			return nil, err
		}
		fee = fees.For(p.Amount)
	}

	charge, err := s.gateway.ChargePaymentMethod(ctx, acct, stripe.ChargeRequest{
		SetupIntentID:  p.Data.SetupIntentID,
		Amount:         p.Amount,
		Currency:       p.Currency,
		ApplicationFee: fee,
		IdempotencyKey: "charge-" + p.UID,
		Metadata: map[string]string{
			"bookingId":  strconv.Itoa(p.BookingID),
			"paymentUid": p.UID,
		},
	})
	if err == nil && !charge.Captured() {
		err = fmt.Errorf("%w: payment intent %s is %s", stripe.ErrCardDeclined, charge.PaymentIntentID, charge.Status)
	}
	if err != nil {
		metrics.RecordCharge("failed")
		logger.Error("stripe charge failed", "payment_id", p.ID, "setup_intent", p.Data.SetupIntentID, "error", err)
		if uerr := s.payments.UpdateData(ctx, p.ID, Data{LastError: err.Error()}); uerr != nil {
			logger.Error("failed to record charge error", "payment_id", p.ID, "error", uerr)
		}
		switch {
		case errors.Is(err, stripe.ErrNoPaymentMethod):
			return nil, fmt.Errorf("%w: %w", ErrNotChargeable, err)
		case errors.Is(err, stripe.ErrCardDeclined):
			return nil, fmt.Errorf("%w: %w", ErrChargeDeclined, err)
		default:
			return nil, fmt.Errorf("%w: %w", ErrProviderUnavailable, err)
		}
	}

	applied, err := s.payments.MarkCharged(ctx, p.ID, fee, Data{PaymentIntentID: charge.PaymentIntentID})
	if err != nil {
		return nil, err
	}
	if !applied {
		metrics.RecordCharge("noop")
		logger.Warn("payment settled concurrently", "payment_id", p.ID, "payment_intent", charge.PaymentIntentID)
		return nil, ErrNotChargeable
	}
	p.Success = true
	p.Fee = fee
	p.Data.PaymentIntentID = charge.PaymentIntentID

	metrics.RecordCharge("charged")
	if err := s.events.Publish(ctx, mq.PaymentCharged, ChargeEvent{
		PaymentID:       p.ID,
		PaymentUID:      p.UID,
		BookingID:       p.BookingID,
		Amount:          p.Amount,
		Fee:             fee,
		Currency:        p.Currency,
		PaymentIntentID: charge.PaymentIntentID,
	}); err != nil {
		logger.Error("failed to publish charge", "payment_id", p.ID, "error", err)
	}

	logger.Info("held card charged", "payment_id", p.ID, "payment_intent", charge.PaymentIntentID, "fee", fee)
	return p, nil
}

func (s *service) ListForBooking(ctx context.Context, bookingID int) (*BookingPayments, error) {
	b, err := s.bookings.GetByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}

	payments, err := s.payments.ListByBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}

	records := make([]Record, 0, len(payments))
	for _, p := range payments {
		records = append(records, newRecord(p))
	}
	return &BookingPayments{
		BookingID:     bookingID,
		Booking:       b,
		Payments:      records,
		PaymentsCount: len(records),
	}, nil
}

// Products lists the Stripe catalogue of the account an organizer's
// payments would go to.
func (s *service) Products(ctx context.Context, rc credential.Context) ([]stripe.Product, error) {
	acct, err := s.resolver.Resolve(ctx, rc)
	if err != nil {
		return nil, err
	}

	products, err := s.gateway.ListProducts(ctx, acct)
	if err != nil {
		logger.Error("failed to list stripe products", "user_id", rc.UserID, "connected", acct.StripeAccount != "", "error", err)
		return nil, fmt.Errorf("%w: %w", ErrProviderUnavailable, err)
	}
	return products, nil
}
