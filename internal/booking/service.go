package booking

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"calpay/internal/credential"
	"calpay/internal/eventtype"
	"calpay/internal/logger"
	"calpay/internal/metrics"
)

var (
	ErrEventTypeNotFound = errors.New("event type not found")
	ErrStartInPast       = errors.New("cannot book a time in the past")
	ErrForbidden         = errors.New("booking belongs to another organizer")
	ErrAlreadyCancelled  = errors.New("booking already cancelled")
	ErrCannotConfirm     = errors.New("booking cannot be confirmed")
	ErrPaymentNotCreated = errors.New("payment could not be created")
)

// PaymentCreator opens a checkout for a freshly created booking.
type PaymentCreator interface {
	CreatePayment(ctx context.Context, b *Booking, et *eventtype.EventType) (*PaymentLink, error)
}

type Service interface {
	Create(ctx context.Context, req CreateRequest) (*CreateResult, error)
	GetByUID(ctx context.Context, uid string) (*Booking, error)
	ListForOrganizer(ctx context.Context, userID int) ([]Booking, error)
	Cancel(ctx context.Context, organizerID, bookingID int, reason string) error
	Confirm(ctx context.Context, organizerID, bookingID int) error
}

type service struct {
	repo       Repository
	eventTypes eventtype.Repository
	payments   PaymentCreator
	notifier   *Notifier
	now        func() time.Time
}

func NewService(repo Repository, eventTypes eventtype.Repository, payments PaymentCreator, notifier *Notifier) Service {
	return &service{
		repo:       repo,
		eventTypes: eventTypes,
		payments:   payments,
		notifier:   notifier,
		now:        time.Now,
	}
}

func (s *service) Create(ctx context.Context, req CreateRequest) (*CreateResult, error) {
	et, err := s.eventTypes.GetByID(ctx, req.EventTypeID)
	if err != nil {
		if errors.Is(err, eventtype.ErrNotFound) {
			return nil, ErrEventTypeNotFound
		}
		return nil, err
	}

	if !req.Start.After(s.now()) {
		return nil, ErrStartInPast
	}

	status := StatusAccepted
	if et.RequiresPayment() || et.RequiresConfirmation {
		status = StatusPending
	}

	tz := req.TimeZone
	if tz == "" {
		tz = "UTC"
	}
	var phone *string
	if p := strings.TrimSpace(req.Phone); p != "" {
		phone = &p
	}

	b, err := s.repo.Create(ctx, &Booking{
		UID:              uuid.NewString(),
		UserID:           et.UserID,
		EventTypeID:      et.ID,
		Title:            et.Title + " between " + et.OwnerName + " and " + req.Name,
		StartTime:        req.Start.UTC(),
		EndTime:          req.Start.UTC().Add(time.Duration(et.LengthMinutes) * time.Minute),
		Status:           status,
		AttendeeName:     req.Name,
		AttendeeEmail:    req.Email,
		AttendeePhone:    phone,
		AttendeeTimeZone: tz,
	})
	if err != nil {
		return nil, err
	}

	option := ""
	if et.RequiresPayment() {
		option = et.PaymentOption
	}
	metrics.RecordBooking(string(b.Status), option)
	logger.Info("booking created", "booking_id", b.ID, "status", b.Status, "payment_option", option)

	if !et.RequiresPayment() {
		if b.Status == StatusAccepted {
			s.notifier.Confirmed(ctx, b, et)
		} else {
			s.notifier.Requested(ctx, b, et)
		}
		return &CreateResult{Booking: b}, nil
	}

	link, err := s.payments.CreatePayment(ctx, b, et)
	if err != nil {
		logger.Error("payment not created", "booking_id", b.ID, "payment_option", et.PaymentOption, "error", err)
		if et.PaymentOption == eventtype.OptionSyncBooking &&
			(errors.Is(err, credential.ErrNotConnected) || errors.Is(err, ErrPaymentNotCreated)) {
			s.release(ctx, b, "payment_not_created")
		}
		return nil, err
	}

	if et.PaymentOption != eventtype.OptionSyncBooking {
		s.notifier.AwaitingPayment(ctx, b, et, link.CheckoutURL)
	}

	return &CreateResult{Booking: b, Payment: link}, nil
}

// release deletes an unpaid booking so its slot becomes bookable again.
func (s *service) release(ctx context.Context, b *Booking, reason string) {
	deleted, err := s.repo.DeleteUnpaid(ctx, b.ID)
	if err != nil {
		logger.Error("failed to delete unpaid booking", "booking_id", b.ID, "error", err)
		return
	}
	if deleted {
		metrics.RecordBookingDeleted(reason)
		s.notifier.Deleted(ctx, b, reason)
		logger.Info("unpaid booking deleted", "booking_id", b.ID, "reason", reason)
	}
}

func (s *service) GetByUID(ctx context.Context, uid string) (*Booking, error) {
	return s.repo.GetByUID(ctx, uid)
}

func (s *service) ListForOrganizer(ctx context.Context, userID int) ([]Booking, error) {
	return s.repo.ListByUser(ctx, userID)
}

func (s *service) owned(ctx context.Context, organizerID, bookingID int) (*Booking, error) {
	b, err := s.repo.GetByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if b.UserID != organizerID {
		return nil, ErrForbidden
	}
	return b, nil
}

func (s *service) Cancel(ctx context.Context, organizerID, bookingID int, reason string) error {
	b, err := s.owned(ctx, organizerID, bookingID)
	if err != nil {
		return err
	}

	cancelled, err := s.repo.Cancel(ctx, bookingID, reason)
	if err != nil {
		return err
	}
	if !cancelled {
		return ErrAlreadyCancelled
	}

	b.Status = StatusCancelled
	metrics.RecordBooking(string(StatusCancelled), "")
	s.notifier.Cancelled(ctx, b, reason)
	return nil
}

// Confirm accepts a booking that was waiting on the organizer.
func (s *service) Confirm(ctx context.Context, organizerID, bookingID int) error {
	b, err := s.owned(ctx, organizerID, bookingID)
	if err != nil {
		return err
	}

	accepted, err := s.repo.Accept(ctx, bookingID)
	if err != nil {
		return err
	}
	if !accepted {
		return ErrCannotConfirm
	}

	et, err := s.eventTypes.GetByID(ctx, b.EventTypeID)
	if err != nil {
		return err
	}

	b.Status = StatusAccepted
	metrics.RecordBooking(string(StatusAccepted), "")
	s.notifier.Confirmed(ctx, b, et)
	return nil
}
