package payment

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"calpay/internal/booking"
	"calpay/internal/credential"
	"calpay/internal/eventtype"
	"calpay/internal/logger"
	"calpay/internal/metrics"
	"calpay/internal/stripe"
)

var (
	ErrPaymentNotCreated   = booking.ErrPaymentNotCreated
	ErrUnsupportedOption   = errors.New("unsupported payment option")
	ErrProviderUnavailable = errors.New("payment provider unavailable")
)

type AccountResolver interface {
	Resolve(ctx context.Context, rc credential.Context) (*credential.Account, error)
	ForPayment(ctx context.Context, kind credential.Kind, stripeAccount string) (*credential.Account, error)
	WebhookSecrets(ctx context.Context) []string
	Fees(ctx context.Context) (credential.FeeSchedule, error)
}

// Creator opens a Stripe checkout for a booking and records it.
type Creator struct {
	payments Repository
	resolver AccountResolver
	gateway  stripe.Gateway
	baseURL  string
}

func NewCreator(payments Repository, resolver AccountResolver, gateway stripe.Gateway, baseURL string) *Creator {
	return &Creator{
		payments: payments,
		resolver: resolver,
		gateway:  gateway,
		baseURL:  strings.TrimRight(baseURL, "/"),
	}
}

func checkoutMode(o Option) string {
	if o == OptionHold {
		return stripe.ModeSetup
	}
	return stripe.ModePayment
}

func (c *Creator) returnURL(bookingID int, endpoint string) string {
	return fmt.Sprintf("%s/api/booking/%d/%s?session_id={CHECKOUT_SESSION_ID}", c.baseURL, bookingID, endpoint)
}

func (c *Creator) CreatePayment(ctx context.Context, b *booking.Booking, et *eventtype.EventType) (*booking.PaymentLink, error) {
	option := Option(et.PaymentOption)
	if !option.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedOption, et.PaymentOption)
	}

	acct, err := c.resolver.Resolve(ctx, credential.Context{
		UserID:       et.UserID,
		TeamID:       et.TeamID,
		CredentialID: et.CredentialID,
	})
	if err != nil {
		metrics.RecordPaymentCreated(string(option), "not_connected")
		return nil, err
	}

	currency := strings.ToLower(et.Currency)
	if currency == "" {
		currency = acct.DefaultCurrency
	}

	p, err := c.payments.Create(ctx, &Payment{
		UID:       uuid.NewString(),
		BookingID: b.ID,
		AppID:     credential.AppSlug,
		Amount:    et.Price,
		Currency:  currency,
		Option:    option,
		Data: Data{
			CredentialKind: acct.Kind,
			StripeAccount:  acct.StripeAccount,
			PublishableKey: acct.PublishableKey,
		},
	})
	if err != nil {
		metrics.RecordPaymentCreated(string(option), "failed")
		return nil, fmt.Errorf("%w: %w", ErrPaymentNotCreated, err)
	}

	customerID, err := c.gateway.RetrieveOrCreateCustomer(ctx, acct, b.AttendeeEmail, b.AttendeeName)
	if err != nil {
		return nil, c.fail(ctx, b, p, err)
	}

	metadata := map[string]string{
		"bookingId":   strconv.Itoa(b.ID),
		"bookingUid":  b.UID,
		"paymentUid":  p.UID,
		"eventTypeId": strconv.Itoa(et.ID),
		"bookerName":  b.AttendeeName,
		"bookerEmail": b.AttendeeEmail,
	}
	if b.AttendeePhone != nil {
		metadata["bookerPhoneNumber"] = *b.AttendeePhone
	}

	session, err := c.gateway.CreateCheckoutSession(ctx, acct, stripe.CheckoutRequest{
		Mode:        checkoutMode(option),
		Amount:      et.Price,
		Currency:    currency,
		PriceID:     et.PriceID(),
		ProductName: et.Title,
		CustomerID:  customerID,
		SuccessURL:  c.returnURL(b.ID, "payment-success"),
		CancelURL:   c.returnURL(b.ID, "payment-cancelled"),
		Metadata:    metadata,
	})
	if err != nil {
		return nil, c.fail(ctx, b, p, err)
	}

	p.Data.SessionID = session.ID
	p.Data.CheckoutURL = session.URL
	p.Data.ClientSecret = session.ClientSecret
	if err := c.payments.SetExternalID(ctx, p.ID, session.ID, p.Data); err != nil {
		return nil, c.fail(ctx, b, p, err)
	}

	metrics.RecordPaymentCreated(string(option), "created")
	logger.Info("checkout session created", "booking_id", b.ID, "payment_id", p.ID, "payment_option", option, "session_id", session.ID)

	return &booking.PaymentLink{UID: p.UID, CheckoutURL: session.URL}, nil
}

// fail records the provider error on the placeholder row.
func (c *Creator) fail(ctx context.Context, b *booking.Booking, p *Payment, cause error) error {
	logger.Error("stripe checkout failed",
		"booking_id", b.ID,
		"payment_id", p.ID,
		"payment_option", p.Option,
		"credential_kind", p.Data.CredentialKind,
		"error", cause,
	)

	p.Data.LastError = cause.Error()
	if err := c.payments.UpdateData(ctx, p.ID, Data{LastError: p.Data.LastError}); err != nil {
		logger.Error("failed to record payment error", "payment_id", p.ID, "error", err)
	}

	metrics.RecordPaymentCreated(string(p.Option), "failed")
	return fmt.Errorf("%w: %w", ErrPaymentNotCreated, cause)
}
