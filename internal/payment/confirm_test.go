package payment

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"calpay/internal/booking"
	"calpay/internal/mq"
)

func newConfirmer(f *fixture) *Confirmer {
	return NewConfirmer(f.payments, f.bookings, f.types, booking.NewNotifier(f.mailer, f.publisher))
}

func TestConfirm_RequiresConfirmationSendsRequest(t *testing.T) {
	f := newFixture()
	p := checkoutPayment(1, 502, OptionOnBooking)
	b := pendingBooking(502)
	et := paidEventType(OptionOnBooking)
	et.RequiresConfirmation = true

	f.expectConfirmation(p, b, et, true)
	f.mailer.On("SendBookingRequest", mock.Anything, mock.Anything).Return(nil).Once()
	f.publisher.On("Publish", mock.Anything, mq.BookingRequested, mock.Anything).Return(nil).Once()

	applied, err := newConfirmer(f).Confirm(context.Background(), p, "webhook")

	require.NoError(t, err)
	assert.True(t, applied)
	assert.Equal(t, booking.StatusPending, b.Status)
	f.mailer.AssertNotCalled(t, "SendBookingConfirmation", mock.Anything, mock.Anything)
	f.assertAll(t)
}

func TestConfirm_AcceptsBooking(t *testing.T) {
	f := newFixture()
	p := checkoutPayment(1, 502, OptionOnBooking)
	b := pendingBooking(502)
	et := paidEventType(OptionOnBooking)

	f.expectConfirmation(p, b, et, true)
	f.mailer.On("SendBookingConfirmation", mock.Anything, mock.Anything).Return(nil).Once()
	f.publisher.On("Publish", mock.Anything, mq.BookingConfirmed, mock.MatchedBy(func(d booking.EventData) bool {
		return d.Paid && d.Status == booking.StatusAccepted
	})).Return(nil).Once()

	applied, err := newConfirmer(f).Confirm(context.Background(), p, "redirect")

	require.NoError(t, err)
	assert.True(t, applied)
	f.assertAll(t)
}

func TestConfirm_AlreadyReconciledIsSilent(t *testing.T) {
	f := newFixture()
	p := checkoutPayment(1, 502, OptionOnBooking)
	b := pendingBooking(502)
	et := paidEventType(OptionOnBooking)

	f.expectConfirmation(p, b, et, false)

	applied, err := newConfirmer(f).Confirm(context.Background(), p, "redirect")

	require.NoError(t, err)
	assert.False(t, applied)
	f.mailer.AssertNotCalled(t, "SendBookingConfirmation", mock.Anything, mock.Anything)
	f.publisher.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything, mock.Anything)
	f.assertAll(t)
}
