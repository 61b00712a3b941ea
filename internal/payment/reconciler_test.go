package payment

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"calpay/internal/stripe"
)

var (
	payload = []byte(`{"id":"evt_1"}`)
	header  = "t=1,v1=abc"
)

func (f *fixture) expectEvent(ev *stripe.Event) {
	f.resolver.On("WebhookSecrets", mock.Anything).Return([]string{"whsec_test"}).Once()
	f.verifier.On("Parse", payload, header, []string{"whsec_test"}).Return(ev, nil).Once()
	f.store.On("Seen", mock.Anything, ev.ID).Return(false, nil).Once()
}

func completedEvent(id, sessionID string) *stripe.Event {
	return &stripe.Event{
		ID:   id,
		Type: EventCheckoutCompleted,
		Object: stripe.EventObject{
			ID:              sessionID,
			Object:          "checkout.session",
			PaymentStatus:   "paid",
			PaymentIntentID: "pi_1",
			Metadata:        map[string]string{"paymentUid": "pay-uid"},
		},
	}
}

func TestHandle_CheckoutCompletedConfirmsBooking(t *testing.T) {
	f := newFixture()
	p := checkoutPayment(1, 502, OptionOnBooking)
	b := pendingBooking(502)
	et := paidEventType(OptionOnBooking)
	ev := completedEvent("evt_1", "cs_test_1")

	f.expectEvent(ev)
	f.payments.On("FindByExternalID", mock.Anything, "cs_test_1").Return(p, nil).Once()
	f.payments.On("UpdateData", mock.Anything, 1, Data{PaymentIntentID: "pi_1"}).Return(nil).Once()
	f.expectConfirmation(p, b, et, true)
	f.expectConfirmedNotice()
	f.store.On("Mark", mock.Anything, "evt_1").Return(nil).Once()

	got, outcome, err := f.reconciler.Handle(context.Background(), payload, header)

	require.NoError(t, err)
	assert.Equal(t, "evt_1", got.ID)
	assert.Equal(t, OutcomeApplied, outcome)
	f.assertAll(t)
}

func TestHandle_WebhookThenRedirectSendsOneConfirmation(t *testing.T) {
	f := newFixture()
	p := checkoutPayment(1, 502, OptionOnBooking)
	b := pendingBooking(502)
	et := paidEventType(OptionOnBooking)
	ev := completedEvent("evt_1", "cs_test_1")
	ev.Object.PaymentIntentID = ""

	f.expectEvent(ev)
	f.payments.On("FindByExternalID", mock.Anything, "cs_test_1").Return(p, nil).Once()
	f.expectConfirmation(p, b, et, true)
	f.expectConfirmedNotice()
	f.store.On("Mark", mock.Anything, "evt_1").Return(nil).Once()

	_, outcome, err := f.reconciler.Handle(context.Background(), payload, header)
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, outcome)

	// The redirect read the rows before the webhook committed.
	stale := checkoutPayment(1, 502, OptionOnBooking)
	staleBooking := pendingBooking(502)
	f.payments.On("FindByExternalIDAndBooking", mock.Anything, "cs_test_1", 502).Return(stale, nil).Once()
	f.bookings.On("GetByID", mock.Anything, 502).Return(staleBooking, nil).Once()
	f.types.On("GetByID", mock.Anything, 3).Return(et, nil).Once()
	f.resolver.On("ForPayment", mock.Anything, stale.Data.CredentialKind, "acct_123").Return(connectedAccount(), nil).Once()
	f.gateway.On("GetCheckoutSession", mock.Anything, mock.Anything, "cs_test_1").
		Return(&stripe.Session{ID: "cs_test_1", Status: "complete", PaymentStatus: "paid"}, nil).Once()
	f.expectConfirmation(stale, staleBooking, et, false)

	target, err := f.returns.Resolve(context.Background(), 502, "cs_test_1", false)
	require.NoError(t, err)
	assert.Equal(t, webappURL+"/booking/booking-uid?payment_status=success", target)

	f.mailer.AssertNumberOfCalls(t, "SendBookingConfirmation", 1)
	f.publisher.AssertNumberOfCalls(t, "Publish", 1)
	f.assertAll(t)
}

func TestHandle_SyncBookingExpiredDeletesBooking(t *testing.T) {
	f := newFixture()
	p := checkoutPayment(1, 501, OptionSyncBooking)
	b := pendingBooking(501)
	ev := &stripe.Event{
		ID:     "evt_2",
		Type:   EventCheckoutExpired,
		Object: stripe.EventObject{ID: "cs_test_1", Object: "checkout.session"},
	}

	f.expectEvent(ev)
	f.payments.On("FindByExternalID", mock.Anything, "cs_test_1").Return(p, nil).Once()
	f.payments.On("UpdateData", mock.Anything, 1, mock.MatchedBy(func(d Data) bool {
		return d.LastError == EventCheckoutExpired
	})).Return(nil).Once()
	f.bookings.On("GetByID", mock.Anything, 501).Return(b, nil).Once()
	f.expectDeleted(b)
	f.store.On("Mark", mock.Anything, "evt_2").Return(nil).Once()

	_, outcome, err := f.reconciler.Handle(context.Background(), payload, header)

	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, outcome)
	f.gateway.AssertNotCalled(t, "ExpireCheckoutSession", mock.Anything, mock.Anything, mock.Anything)
	f.mailer.AssertNotCalled(t, "SendBookingConfirmation", mock.Anything, mock.Anything)
	f.assertAll(t)
}

func TestHandle_SyncBookingIntentFailedExpiresThenDeletes(t *testing.T) {
	f := newFixture()
	p := checkoutPayment(1, 501, OptionSyncBooking)
	b := pendingBooking(501)
	ev := &stripe.Event{
		ID:   "evt_3",
		Type: EventPaymentIntentFailed,
		Object: stripe.EventObject{
			ID:             "pi_1",
			Object:         "payment_intent",
			Metadata:       map[string]string{"paymentUid": "pay-uid"},
			FailureMessage: "Your card was declined.",
		},
	}

	f.expectEvent(ev)
	f.payments.On("FindByExternalID", mock.Anything, "pi_1").Return(nil, ErrPaymentNotFound).Once()
	f.payments.On("FindByUID", mock.Anything, "pay-uid").Return(p, nil).Once()
	f.payments.On("UpdateData", mock.Anything, 1, Data{LastError: "Your card was declined."}).Return(nil).Once()
	f.bookings.On("GetByID", mock.Anything, 501).Return(b, nil).Once()
	f.resolver.On("ForPayment", mock.Anything, p.Data.CredentialKind, "acct_123").Return(connectedAccount(), nil).Once()
	f.gateway.On("ExpireCheckoutSession", mock.Anything, mock.Anything, "cs_test_1").Return(nil).Once()
	f.expectDeleted(b)
	f.store.On("Mark", mock.Anything, "evt_3").Return(nil).Once()

	_, outcome, err := f.reconciler.Handle(context.Background(), payload, header)

	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, outcome)
	f.assertAll(t)
}

func TestHandle_SyncBookingKeepsBookingWhenCheckoutCompletedMeanwhile(t *testing.T) {
	f := newFixture()
	p := checkoutPayment(1, 501, OptionSyncBooking)
	b := pendingBooking(501)
	ev := &stripe.Event{
		ID:     "evt_4",
		Type:   EventPaymentIntentFailed,
		Object: stripe.EventObject{ID: "pi_1", Metadata: map[string]string{"paymentUid": "pay-uid"}},
	}

	f.expectEvent(ev)
	f.payments.On("FindByExternalID", mock.Anything, "pi_1").Return(nil, ErrPaymentNotFound).Once()
	f.payments.On("FindByUID", mock.Anything, "pay-uid").Return(p, nil).Once()
	f.payments.On("UpdateData", mock.Anything, 1, mock.Anything).Return(nil).Once()
	f.bookings.On("GetByID", mock.Anything, 501).Return(b, nil).Once()
	f.resolver.On("ForPayment", mock.Anything, p.Data.CredentialKind, "acct_123").Return(connectedAccount(), nil).Once()
	f.gateway.On("ExpireCheckoutSession", mock.Anything, mock.Anything, "cs_test_1").Return(errors.New("session is not open")).Once()
	f.gateway.On("GetCheckoutSession", mock.Anything, mock.Anything, "cs_test_1").
		Return(&stripe.Session{ID: "cs_test_1", Status: "complete", PaymentStatus: "paid"}, nil).Once()
	f.store.On("Mark", mock.Anything, "evt_4").Return(nil).Once()

	_, outcome, err := f.reconciler.Handle(context.Background(), payload, header)

	require.NoError(t, err)
	assert.Equal(t, OutcomeNoop, outcome)
	f.bookings.AssertNotCalled(t, "DeleteUnpaid", mock.Anything, mock.Anything)
	f.assertAll(t)
}

func TestHandle_ExpireFailureIsRetried(t *testing.T) {
	f := newFixture()
	p := checkoutPayment(1, 501, OptionSyncBooking)
	b := pendingBooking(501)
	ev := &stripe.Event{ID: "evt_5", Type: EventPaymentIntentFailed, Object: stripe.EventObject{ID: "cs_test_1"}}

	f.expectEvent(ev)
	f.payments.On("FindByExternalID", mock.Anything, "cs_test_1").Return(p, nil).Once()
	f.payments.On("UpdateData", mock.Anything, 1, mock.Anything).Return(nil).Once()
	f.bookings.On("GetByID", mock.Anything, 501).Return(b, nil).Once()
	f.resolver.On("ForPayment", mock.Anything, p.Data.CredentialKind, "acct_123").Return(connectedAccount(), nil).Once()
	f.gateway.On("ExpireCheckoutSession", mock.Anything, mock.Anything, "cs_test_1").Return(errors.New("timeout")).Once()
	f.gateway.On("GetCheckoutSession", mock.Anything, mock.Anything, "cs_test_1").Return(nil, errors.New("timeout")).Once()

	_, _, err := f.reconciler.Handle(context.Background(), payload, header)

	require.ErrorIs(t, err, ErrProviderUnavailable)
	f.store.AssertNotCalled(t, "Mark", mock.Anything, mock.Anything)
	f.bookings.AssertNotCalled(t, "DeleteUnpaid", mock.Anything, mock.Anything)
	f.assertAll(t)
}

func TestHandle_NonSyncFailureKeepsBooking(t *testing.T) {
	f := newFixture()
	p := checkoutPayment(1, 503, OptionOnBooking)
	ev := &stripe.Event{ID: "evt_6", Type: EventCheckoutAsyncFailed, Object: stripe.EventObject{ID: "cs_test_1"}}

	f.expectEvent(ev)
	f.payments.On("FindByExternalID", mock.Anything, "cs_test_1").Return(p, nil).Once()
	f.payments.On("UpdateData", mock.Anything, 1, mock.Anything).Return(nil).Once()
	f.store.On("Mark", mock.Anything, "evt_6").Return(nil).Once()

	_, outcome, err := f.reconciler.Handle(context.Background(), payload, header)

	require.NoError(t, err)
	assert.Equal(t, OutcomeNoop, outcome)
	f.bookings.AssertNotCalled(t, "DeleteUnpaid", mock.Anything, mock.Anything)
	f.assertAll(t)
}

func TestHandle_UnknownEventType(t *testing.T) {
	f := newFixture()
	ev := &stripe.Event{ID: "evt_7", Type: "customer.created"}

	f.expectEvent(ev)

	_, outcome, err := f.reconciler.Handle(context.Background(), payload, header)

	require.NoError(t, err)
	assert.Equal(t, OutcomeUnhandled, outcome)
	f.store.AssertNotCalled(t, "Mark", mock.Anything, mock.Anything)
	f.assertAll(t)
}

func TestHandle_DuplicateEvent(t *testing.T) {
	f := newFixture()
	ev := completedEvent("evt_8", "cs_test_1")

	f.resolver.On("WebhookSecrets", mock.Anything).Return([]string{"whsec_test"}).Once()
	f.verifier.On("Parse", payload, header, []string{"whsec_test"}).Return(ev, nil).Once()
	f.store.On("Seen", mock.Anything, "evt_8").Return(true, nil).Once()

	_, outcome, err := f.reconciler.Handle(context.Background(), payload, header)

	require.NoError(t, err)
	assert.Equal(t, OutcomeDuplicate, outcome)
	f.payments.AssertNotCalled(t, "FindByExternalID", mock.Anything, mock.Anything)
	f.assertAll(t)
}

func TestHandle_SeenLookupFailureStillProcesses(t *testing.T) {
	f := newFixture()
	ev := completedEvent("evt_9", "cs_unknown")

	f.resolver.On("WebhookSecrets", mock.Anything).Return([]string{"whsec_test"}).Once()
	f.verifier.On("Parse", payload, header, []string{"whsec_test"}).Return(ev, nil).Once()
	f.store.On("Seen", mock.Anything, "evt_9").Return(false, errors.New("redis down")).Once()
	f.payments.On("FindByExternalID", mock.Anything, "cs_unknown").Return(nil, ErrPaymentNotFound).Once()
	f.payments.On("FindByUID", mock.Anything, "pay-uid").Return(nil, ErrPaymentNotFound).Once()
	f.store.On("Mark", mock.Anything, "evt_9").Return(errors.New("redis down")).Once()

	_, outcome, err := f.reconciler.Handle(context.Background(), payload, header)

	require.NoError(t, err)
	assert.Equal(t, OutcomeNoop, outcome)
	f.assertAll(t)
}

func TestHandle_AsyncCheckoutWaitsForPayment(t *testing.T) {
	f := newFixture()
	ev := completedEvent("evt_10", "cs_test_1")
	ev.Object.PaymentStatus = "unpaid"

	f.expectEvent(ev)
	f.store.On("Mark", mock.Anything, "evt_10").Return(nil).Once()

	_, outcome, err := f.reconciler.Handle(context.Background(), payload, header)

	require.NoError(t, err)
	assert.Equal(t, OutcomeNoop, outcome)
	f.payments.AssertNotCalled(t, "FindByExternalID", mock.Anything, mock.Anything)
	f.assertAll(t)
}

func TestHandle_HandlerErrorIsNotMarked(t *testing.T) {
	f := newFixture()
	p := checkoutPayment(1, 502, OptionOnBooking)
	ev := completedEvent("evt_11", "cs_test_1")
	ev.Object.PaymentIntentID = ""

	f.expectEvent(ev)
	f.payments.On("FindByExternalID", mock.Anything, "cs_test_1").Return(p, nil).Once()
	f.payments.On("MarkSuccess", mock.Anything, 1).Return(false, errors.New("connection reset")).Once()

	_, _, err := f.reconciler.Handle(context.Background(), payload, header)

	require.Error(t, err)
	f.store.AssertNotCalled(t, "Mark", mock.Anything, mock.Anything)
	f.assertAll(t)
}

func TestHandle_SignatureErrors(t *testing.T) {
	f := newFixture()
	f.resolver.On("WebhookSecrets", mock.Anything).Return(nil).Once()
	f.verifier.On("Parse", payload, header, []string(nil)).Return(nil, stripe.ErrNoWebhookSecret).Once()

	_, _, err := f.reconciler.Handle(context.Background(), payload, header)

	require.ErrorIs(t, err, stripe.ErrNoWebhookSecret)
	f.store.AssertNotCalled(t, "Seen", mock.Anything, mock.Anything)
	f.assertAll(t)
}

func TestHandle_SetupIntentHoldsBooking(t *testing.T) {
	f := newFixture()
	p := checkoutPayment(1, 504, OptionHold)
	b := pendingBooking(504)
	et := paidEventType(OptionHold)
	ev := &stripe.Event{
		ID:   "evt_12",
		Type: EventSetupIntentSucceeded,
		Object: stripe.EventObject{
			ID:       "seti_1",
			Object:   "setup_intent",
			Metadata: map[string]string{"paymentUid": "pay-uid"},
		},
	}

	f.expectEvent(ev)
	f.payments.On("FindByExternalID", mock.Anything, "seti_1").Return(nil, ErrPaymentNotFound).Once()
	f.payments.On("FindByUID", mock.Anything, "pay-uid").Return(p, nil).Once()
	f.expectConfirmation(p, b, et, true)
	f.expectConfirmedNotice()
	f.store.On("Mark", mock.Anything, "evt_12").Return(nil).Once()

	_, outcome, err := f.reconciler.Handle(context.Background(), payload, header)

	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, outcome)
	f.payments.AssertNotCalled(t, "MarkSuccess", mock.Anything, mock.Anything)
	f.assertAll(t)
}
