package booking

import (
	"context"
	"time"

	"calpay/internal/email"
	"calpay/internal/eventtype"
	"calpay/internal/logger"
	"calpay/internal/mq"
)

type Mailer interface {
	SendBookingConfirmation(ctx context.Context, n email.BookingNotice) error
	SendBookingRequest(ctx context.Context, n email.BookingNotice) error
	SendAwaitingPayment(ctx context.Context, n email.BookingNotice, paymentLink string, amount int64, currency string) error
}

// EventData is the body of every booking lifecycle message.
type EventData struct {
	BookingID     int       `json:"booking_id"`
	BookingUID    string    `json:"booking_uid"`
	EventTypeID   int       `json:"event_type_id"`
	OrganizerID   int       `json:"organizer_id"`
	Status        Status    `json:"status"`
	Paid          bool      `json:"paid"`
	StartTime     time.Time `json:"start_time"`
	EndTime       time.Time `json:"end_time"`
	AttendeeEmail string    `json:"attendee_email"`
	Reason        string    `json:"reason,omitempty"`
}

// Notifier fans a booking state change out to email and the event bus.
// Failures are logged, never returned: the state change already happened.
type Notifier struct {
	mailer Mailer
	events mq.EventPublisher
}

func NewNotifier(mailer Mailer, events mq.EventPublisher) *Notifier {
	return &Notifier{mailer: mailer, events: events}
}

func notice(b *Booking, et *eventtype.EventType) email.BookingNotice {
	return email.BookingNotice{
		Title:          b.Title,
		StartTime:      b.StartTime,
		EndTime:        b.EndTime,
		TimeZone:       b.AttendeeTimeZone,
		AttendeeName:   b.AttendeeName,
		AttendeeEmail:  b.AttendeeEmail,
		OrganizerName:  et.OwnerName,
		OrganizerEmail: et.OwnerEmail,
	}
}

func eventData(b *Booking, reason string) EventData {
	return EventData{
		BookingID:     b.ID,
		BookingUID:    b.UID,
		EventTypeID:   b.EventTypeID,
		OrganizerID:   b.UserID,
		Status:        b.Status,
		Paid:          b.Paid,
		StartTime:     b.StartTime,
		EndTime:       b.EndTime,
		AttendeeEmail: b.AttendeeEmail,
		Reason:        reason,
	}
}

func (n *Notifier) publish(ctx context.Context, key string, b *Booking, reason string) {
	if err := n.events.Publish(ctx, key, eventData(b, reason)); err != nil {
		logger.Error("failed to publish booking event", "key", key, "booking_id", b.ID, "error", err)
	}
}

// Confirmed runs when a booking becomes ACCEPTED.
func (n *Notifier) Confirmed(ctx context.Context, b *Booking, et *eventtype.EventType) {
	if err := n.mailer.SendBookingConfirmation(ctx, notice(b, et)); err != nil {
		logger.Error("failed to send confirmation emails", "booking_id", b.ID, "error", err)
	}
	n.publish(ctx, mq.BookingConfirmed, b, "")
}

// Requested runs when a booking waits on the organizer.
func (n *Notifier) Requested(ctx context.Context, b *Booking, et *eventtype.EventType) {
	if err := n.mailer.SendBookingRequest(ctx, notice(b, et)); err != nil {
		logger.Error("failed to send request emails", "booking_id", b.ID, "error", err)
	}
	n.publish(ctx, mq.BookingRequested, b, "")
}

func (n *Notifier) AwaitingPayment(ctx context.Context, b *Booking, et *eventtype.EventType, link string) {
	if err := n.mailer.SendAwaitingPayment(ctx, notice(b, et), link, et.Price, et.Currency); err != nil {
		logger.Error("failed to send awaiting payment email", "booking_id", b.ID, "error", err)
	}
}

func (n *Notifier) Cancelled(ctx context.Context, b *Booking, reason string) {
	n.publish(ctx, mq.BookingCancelled, b, reason)
}

func (n *Notifier) Deleted(ctx context.Context, b *Booking, reason string) {
	n.publish(ctx, mq.BookingDeleted, b, reason)
}
