package payment

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"calpay/internal/credential"
	"calpay/internal/stripe"
)

func newCreator(f *fixture) *Creator {
	return NewCreator(f.payments, f.resolver, f.gateway, webappURL+"/")
}

func placeholder(option Option) *Payment {
	return &Payment{
		ID:        7,
		UID:       "pay-uid",
		BookingID: 502,
		AppID:     credential.AppSlug,
		Amount:    2550,
		Currency:  "usd",
		Option:    option,
		Data:      Data{CredentialKind: credential.KindOAuth, StripeAccount: "acct_123", PublishableKey: "pk_test_123"},
	}
}

func TestCreatePayment_OpensCheckout(t *testing.T) {
	f := newFixture()
	c := newCreator(f)
	b := pendingBooking(502)
	b.AttendeePhone = strPtr("+15550100")
	et := paidEventType(OptionOnBooking)

	f.resolver.On("Resolve", mock.Anything, credential.Context{UserID: 1}).Return(connectedAccount(), nil).Once()
	f.payments.On("Create", mock.Anything, mock.MatchedBy(func(p *Payment) bool {
		return p.BookingID == 502 && p.Amount == 2550 && p.Option == OptionOnBooking &&
			p.UID != "" && p.Data.StripeAccount == "acct_123"
	})).Return(placeholder(OptionOnBooking), nil).Once()
	f.gateway.On("RetrieveOrCreateCustomer", mock.Anything, mock.Anything, "booker@example.com", "Booker").Return("cus_1", nil).Once()
	f.gateway.On("CreateCheckoutSession", mock.Anything, mock.Anything, mock.MatchedBy(func(req stripe.CheckoutRequest) bool {
		return req.Mode == stripe.ModePayment &&
			req.CustomerID == "cus_1" &&
			req.SuccessURL == "https://app.cal.test/api/booking/502/payment-success?session_id={CHECKOUT_SESSION_ID}" &&
			req.CancelURL == "https://app.cal.test/api/booking/502/payment-cancelled?session_id={CHECKOUT_SESSION_ID}" &&
			req.Metadata["bookingId"] == "502" &&
			req.Metadata["paymentUid"] == "pay-uid" &&
			req.Metadata["bookerPhoneNumber"] == "+15550100"
	})).Return(&stripe.Session{ID: "cs_test_1", URL: "https://checkout.stripe.com/c/pay/cs_test_1"}, nil).Once()
	f.payments.On("SetExternalID", mock.Anything, 7, "cs_test_1", mock.MatchedBy(func(d Data) bool {
		return d.SessionID == "cs_test_1" && d.CheckoutURL != ""
	})).Return(nil).Once()

	link, err := c.CreatePayment(context.Background(), b, et)

	require.NoError(t, err)
	assert.Equal(t, "pay-uid", link.UID)
	assert.Equal(t, "https://checkout.stripe.com/c/pay/cs_test_1", link.CheckoutURL)
	f.assertAll(t)
}

func TestCreatePayment_HoldUsesSetupMode(t *testing.T) {
	f := newFixture()
	c := newCreator(f)
	et := paidEventType(OptionHold)

	f.resolver.On("Resolve", mock.Anything, mock.Anything).Return(connectedAccount(), nil).Once()
	f.payments.On("Create", mock.Anything, mock.Anything).Return(placeholder(OptionHold), nil).Once()
	f.gateway.On("RetrieveOrCreateCustomer", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return("cus_1", nil).Once()
	f.gateway.On("CreateCheckoutSession", mock.Anything, mock.Anything, mock.MatchedBy(func(req stripe.CheckoutRequest) bool {
		return req.Mode == stripe.ModeSetup
	})).Return(&stripe.Session{ID: "cs_test_1"}, nil).Once()
	f.payments.On("SetExternalID", mock.Anything, 7, "cs_test_1", mock.Anything).Return(nil).Once()

	_, err := c.CreatePayment(context.Background(), pendingBooking(502), et)

	require.NoError(t, err)
	f.assertAll(t)
}

func TestCreatePayment_ProviderFailureRecordsError(t *testing.T) {
	f := newFixture()
	c := newCreator(f)

	f.resolver.On("Resolve", mock.Anything, mock.Anything).Return(connectedAccount(), nil).Once()
	f.payments.On("Create", mock.Anything, mock.Anything).Return(placeholder(OptionSyncBooking), nil).Once()
	f.gateway.On("RetrieveOrCreateCustomer", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return("cus_1", nil).Once()
	f.gateway.On("CreateCheckoutSession", mock.Anything, mock.Anything, mock.Anything).Return(nil, errors.New("card_declined")).Once()
	f.payments.On("UpdateData", mock.Anything, 7, mock.MatchedBy(func(d Data) bool {
		return d.LastError == "card_declined"
	})).Return(nil).Once()

	link, err := c.CreatePayment(context.Background(), pendingBooking(502), paidEventType(OptionSyncBooking))

	assert.Nil(t, link)
	require.ErrorIs(t, err, ErrPaymentNotCreated)
	f.payments.AssertNotCalled(t, "SetExternalID", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	f.assertAll(t)
}

func TestCreatePayment_NotConnected(t *testing.T) {
	f := newFixture()
	c := newCreator(f)

	f.resolver.On("Resolve", mock.Anything, mock.Anything).Return(nil, credential.ErrNotConnected).Once()

	_, err := c.CreatePayment(context.Background(), pendingBooking(502), paidEventType(OptionOnBooking))

	require.ErrorIs(t, err, credential.ErrNotConnected)
	f.payments.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	f.assertAll(t)
}

func TestCreatePayment_UnsupportedOption(t *testing.T) {
	f := newFixture()
	c := newCreator(f)
	et := paidEventType("INSTALMENTS")

	_, err := c.CreatePayment(context.Background(), pendingBooking(502), et)

	require.ErrorIs(t, err, ErrUnsupportedOption)
	f.resolver.AssertNotCalled(t, "Resolve", mock.Anything, mock.Anything)
}
