package booking

import (
	"context"

	"github.com/stretchr/testify/mock"

	"calpay/internal/email"
	"calpay/internal/eventtype"
)

type MockRepository struct{ mock.Mock }

func (m *MockRepository) Create(ctx context.Context, b *Booking) (*Booking, error) {
	args := m.Called(ctx, b)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Booking), args.Error(1)
}

func (m *MockRepository) GetByID(ctx context.Context, id int) (*Booking, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Booking), args.Error(1)
}

func (m *MockRepository) GetByUID(ctx context.Context, uid string) (*Booking, error) {
	args := m.Called(ctx, uid)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Booking), args.Error(1)
}

func (m *MockRepository) ListByUser(ctx context.Context, userID int) ([]Booking, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]Booking), args.Error(1)
}

func (m *MockRepository) MarkPaid(ctx context.Context, id int, accept bool) (bool, error) {
	args := m.Called(ctx, id, accept)
	return args.Bool(0), args.Error(1)
}

func (m *MockRepository) Cancel(ctx context.Context, id int, reason string) (bool, error) {
	args := m.Called(ctx, id, reason)
	return args.Bool(0), args.Error(1)
}

func (m *MockRepository) DeleteUnpaid(ctx context.Context, id int) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

func (m *MockRepository) Accept(ctx context.Context, id int) (bool, error) {
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

type MockPaymentCreator struct{ mock.Mock }

func (m *MockPaymentCreator) CreatePayment(ctx context.Context, b *Booking, et *eventtype.EventType) (*PaymentLink, error) {
	args := m.Called(ctx, b, et)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*PaymentLink), args.Error(1)
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

func (m *MockService) Create(ctx context.Context, req CreateRequest) (*CreateResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*CreateResult), args.Error(1)
}

func (m *MockService) GetByUID(ctx context.Context, uid string) (*Booking, error) {
	args := m.Called(ctx, uid)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Booking), args.Error(1)
}

func (m *MockService) ListForOrganizer(ctx context.Context, userID int) ([]Booking, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]Booking), args.Error(1)
}

func (m *MockService) Cancel(ctx context.Context, organizerID, bookingID int, reason string) error {
	return m.Called(ctx, organizerID, bookingID, reason).Error(0)
}

func (m *MockService) Confirm(ctx context.Context, organizerID, bookingID int) error {
	return m.Called(ctx, organizerID, bookingID).Error(0)
}
