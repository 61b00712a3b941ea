package booking

import (
	"time"
)

type Status string

const (
	StatusPending   Status = "PENDING"
	StatusAccepted  Status = "ACCEPTED"
	StatusCancelled Status = "CANCELLED"
	StatusRejected  Status = "REJECTED"
)

type Booking struct {
	ID                 int       `db:"id" json:"id"`
	UID                string    `db:"uid" json:"uid"`
	UserID             int       `db:"user_id" json:"user_id"`
	EventTypeID        int       `db:"event_type_id" json:"event_type_id"`
	Title              string    `db:"title" json:"title"`
	StartTime          time.Time `db:"start_time" json:"start_time"`
	EndTime            time.Time `db:"end_time" json:"end_time"`
	Status             Status    `db:"status" json:"status"`
	Paid               bool      `db:"paid" json:"paid"`
	AttendeeName       string    `db:"attendee_name" json:"attendee_name"`
	AttendeeEmail      string    `db:"attendee_email" json:"attendee_email"`
	AttendeePhone      *string   `db:"attendee_phone" json:"attendee_phone,omitempty"`
	AttendeeTimeZone   string    `db:"attendee_time_zone" json:"attendee_time_zone"`
	CancellationReason *string   `db:"cancellation_reason" json:"cancellation_reason,omitempty"`
	CreatedAt          time.Time `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time `db:"updated_at" json:"updated_at"`
}

type CreateRequest struct {
	EventTypeID int       `json:"event_type_id" validate:"required,gt=0"`
	Start       time.Time `json:"start" validate:"required"`
	Name        string    `json:"name" validate:"required,max=200"`
	Email       string    `json:"email" validate:"required,email"`
	Phone       string    `json:"phone" validate:"omitempty,max=40"`
	TimeZone    string    `json:"time_zone" validate:"omitempty,timezone"`
}

// PaymentLink is what the booker needs to complete checkout.
type PaymentLink struct {
	UID         string `json:"uid"`
	CheckoutURL string `json:"checkout_url"`
}

type CreateResult struct {
	Booking *Booking     `json:"booking"`
	Payment *PaymentLink `json:"payment,omitempty"`
}

type CancelRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

type CancelBookingResponse struct {
	Message string `json:"message" example:"Booking cancelled successfully"`
}
