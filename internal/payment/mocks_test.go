package payment

import (
	"context"

	"github.com/stretchr/testify/mock"

	"calpay/internal/booking"
	"calpay/internal/credential"
	"calpay/internal/email"
	"calpay/internal/eventtype"
	"calpay/internal/stripe"
)

type MockRepository struct{ mock.Mock }

func (m *MockRepository) Create(ctx context.Context, p *Payment) (*Payment, error) {
	args := m.Called(ctx, p)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Payment), args.Error(1)
}

func (m *MockRepository) SetExternalID(ctx context.Context, id int, externalID string, data Data) error {
	return m.Called(ctx, id, externalID, data).Error(0)
}

func (m *MockRepository) UpdateData(ctx context.Context, id int, data Data) error {
	return m.Called(ctx, id, data).Error(0)
}

func (m *MockRepository) GetByID(ctx context.Context, id int) (*Payment, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Payment), args.Error(1)
}

func (m *MockRepository) FindByUID(ctx context.Context, uid string) (*Payment, error) {
	args := m.Called(ctx, uid)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Payment), args.Error(1)
}

func (m *MockRepository) FindByExternalID(ctx context.Context, externalID string) (*Payment, error) {
	args := m.Called(ctx, externalID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Payment), args.Error(1)
}

func (m *MockRepository) FindByExternalIDAndBooking(ctx context.Context, externalID string, bookingID int) (*Payment, error) {
	args := m.Called(ctx, externalID, bookingID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Payment), args.Error(1)
}

func (m *MockRepository) ListByBooking(ctx context.Context, bookingID int) ([]Payment, error) {
	args := m.Called(ctx, bookingID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]Payment), args.Error(1)
}

func (m *MockRepository) MarkSuccess(ctx context.Context, id int) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

func (m *MockRepository) MarkCharged(ctx context.Context, id int, fee int64, data Data) (bool, error) {
	args := m.Called(ctx, id, fee, data)
	return args.Bool(0), args.Error(1)
}

func (m *MockRepository) MarkRefunded(ctx context.Context, id int, data Data) (bool, error) {
	args := m.Called(ctx, id, data)
	return args.Bool(0), args.Error(1)
}

type MockBookingRepo struct{ mock.Mock }

func (m *MockBookingRepo) Create(ctx context.Context, b *booking.Booking) (*booking.Booking, error) {
	args := m.Called(ctx, b)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*booking.Booking), args.Error(1)
}

func (m *MockBookingRepo) GetByID(ctx context.Context, id int) (*booking.Booking, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*booking.Booking), args.Error(1)
}

func (m *MockBookingRepo) GetByUID(ctx context.Context, uid string) (*booking.Booking, error) {
	args := m.Called(ctx, uid)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*booking.Booking), args.Error(1)
}

func (m *MockBookingRepo) ListByUser(ctx context.Context, userID int) ([]booking.Booking, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]booking.Booking), args.Error(1)
}

func (m *MockBookingRepo) MarkPaid(ctx context.Context, id int, accept bool) (bool, error) {
	args := m.Called(ctx, id, accept)
	return args.Bool(0), args.Error(1)
}

func (m *MockBookingRepo) Cancel(ctx context.Context, id int, reason string) (bool, error) {
	args := m.Called(ctx, id, reason)
	return args.Bool(0), args.Error(1)
}

func (m *MockBookingRepo) DeleteUnpaid(ctx context.Context, id int) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

func (m *MockBookingRepo) Accept(ctx context.Context, id int) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

type MockEventTypeRepo struct{ mock.Mock }

func (m *MockEventTypeRepo) GetByID(ctx context.Context, id int) (*eventtype.EventType, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*eventtype.EventType), args.Error(1)
}

type MockResolver struct{ mock.Mock }

func (m *MockResolver) Resolve(ctx context.Context, rc credential.Context) (*credential.Account, error) {
	args := m.Called(ctx, rc)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*credential.Account), args.Error(1)
}

func (m *MockResolver) ForPayment(ctx context.Context, kind credential.Kind, stripeAccount string) (*credential.Account, error) {
	args := m.Called(ctx, kind, stripeAccount)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*credential.Account), args.Error(1)
}

func (m *MockResolver) WebhookSecrets(ctx context.Context) []string {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil
	}
	return args.Get(0).([]string)
}

func (m *MockResolver) Fees(ctx context.Context) (credential.FeeSchedule, error) {
	args := m.Called(ctx)
	return args.Get(0).(credential.FeeSchedule), args.Error(1)
}

type MockGateway struct{ mock.Mock }

func (m *MockGateway) RetrieveOrCreateCustomer(ctx context.Context, acct *credential.Account, email, name string) (string, error) {
	args := m.Called(ctx, acct, email, name)
	return args.String(0), args.Error(1)
}

func (m *MockGateway) CreateCheckoutSession(ctx context.Context, acct *credential.Account, req stripe.CheckoutRequest) (*stripe.Session, error) {
	args := m.Called(ctx, acct, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*stripe.Session), args.Error(1)
}

func (m *MockGateway) GetCheckoutSession(ctx context.Context, acct *credential.Account, id string) (*stripe.Session, error) {
	args := m.Called(ctx, acct, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*stripe.Session), args.Error(1)
}

func (m *MockGateway) ExpireCheckoutSession(ctx context.Context, acct *credential.Account, id string) error {
	return m.Called(ctx, acct, id).Error(0)
}

func (m *MockGateway) RefundCheckoutSession(ctx context.Context, acct *credential.Account, id string) (string, error) {
	args := m.Called(ctx, acct, id)
	return args.String(0), args.Error(1)
}

func (m *MockGateway) RefundPaymentIntent(ctx context.Context, acct *credential.Account, id string) (string, error) {
	args := m.Called(ctx, acct, id)
	return args.String(0), args.Error(1)
}

func (m *MockGateway) ChargePaymentMethod(ctx context.Context, acct *credential.Account, req stripe.ChargeRequest) (*stripe.Charge, error) {
	args := m.Called(ctx, acct, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*stripe.Charge), args.Error(1)
}

func (m *MockGateway) ListProducts(ctx context.Context, acct *credential.Account) ([]stripe.Product, error) {
	args := m.Called(ctx, acct)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]stripe.Product), args.Error(1)
}

type MockVerifier struct{ mock.Mock }

func (m *MockVerifier) Parse(payload []byte, header string, secrets ...string) (*stripe.Event, error) {
	args := m.Called(payload, header, secrets)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*stripe.Event), args.Error(1)
}

type MockStore struct{ mock.Mock }

func (m *MockStore) Seen(ctx context.Context, eventID string) (bool, error) {
	args := m.Called(ctx, eventID)
	return args.Bool(0), args.Error(1)
}

func (m *MockStore) Mark(ctx context.Context, eventID string) error {
	return m.Called(ctx, eventID).Error(0)
}

type MockMailer struct{ mock.Mock }

func (m *MockMailer) SendBookingConfirmation(ctx context.Context, n email.BookingNotice) error {
	return m.Called(ctx, n).Error(0)
}

func (m *MockMailer) SendBookingRequest(ctx context.Context, n email.BookingNotice) error {
	return m.Called(ctx, n).Error(0)
}

func (m *MockMailer) SendAwaitingPayment(ctx context.Context, n email.BookingNotice, link string, amount int64, currency string) error {
	return m.Called(ctx, n, link, amount, currency).Error(0)
}

type MockPublisher struct{ mock.Mock }

func (m *MockPublisher) Publish(ctx context.Context, key string, data any) error {
	return m.Called(ctx, key, data).Error(0)
}

type MockService struct{ mock.Mock }

func (m *MockService) Info(ctx context.Context, uid string) (*Info, error) {
	args := m.Called(ctx, uid)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Info), args.Error(1)
}

func (m *MockService) Refund(ctx context.Context, paymentID int) (*Payment, error) {
	args := m.Called(ctx, paymentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Payment), args.Error(1)
}

func (m *MockService) Charge(ctx context.Context, paymentID int) (*Payment, error) {
	args := m.Called(ctx, paymentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Payment), args.Error(1)
}

func (m *MockService) ListForBooking(ctx context.Context, bookingID int) (*BookingPayments, error) {
	args := m.Called(ctx, bookingID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*BookingPayments), args.Error(1)
}

func (m *MockService) Products(ctx context.Context, rc credential.Context) ([]stripe.Product, error) {
	args := m.Called(ctx, rc)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]stripe.Product), args.Error(1)
}

type MockWebhookProcessor struct{ mock.Mock }

func (m *MockWebhookProcessor) Handle(ctx context.Context, payload []byte, header string) (*stripe.Event, Outcome, error) {
	args := m.Called(ctx, payload, header)
	var ev *stripe.Event
	if args.Get(0) != nil {
		ev = args.Get(0).(*stripe.Event)
	}
	return ev, args.Get(1).(Outcome), args.Error(2)
}

type MockReturnResolver struct{ mock.Mock }

func (m *MockReturnResolver) Resolve(ctx context.Context, bookingID int, sessionID string, cancelled bool) (string, error) {
	args := m.Called(ctx, bookingID, sessionID, cancelled)
	return args.String(0), args.Error(1)
}
