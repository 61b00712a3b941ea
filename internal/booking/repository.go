package booking

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"calpay/internal/db"
)

var (
	ErrBookingNotFound = errors.New("booking not found")
	ErrSlotTaken       = errors.New("time slot already booked")
)

const bookingColumns = `id, uid, user_id, event_type_id, title, start_time, end_time, status, paid,
	attendee_name, attendee_email, attendee_phone, attendee_time_zone, cancellation_reason,
	created_at, updated_at`

type repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) Repository {
	return &repository{db: db}
}

func (r *repository) Create(ctx context.Context, b *Booking) (*Booking, error) {
	query := `
		INSERT INTO bookings (uid, user_id, event_type_id, title, start_time, end_time, status,
			attendee_name, attendee_email, attendee_phone, attendee_time_zone)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING ` + bookingColumns

	var created Booking
	err := r.db.GetContext(ctx, &created, query,
		b.UID, b.UserID, b.EventTypeID, b.Title, b.StartTime, b.EndTime, b.Status,
		b.AttendeeName, b.AttendeeEmail, b.AttendeePhone, b.AttendeeTimeZone,
	)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return nil, ErrSlotTaken
		}
		return nil, err
	}

	return &created, nil
}

func (r *repository) get(ctx context.Context, where string, arg any) (*Booking, error) {
	var b Booking
	err := r.db.GetContext(ctx, &b, `SELECT `+bookingColumns+` FROM bookings WHERE `+where, arg)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrBookingNotFound
		}
		return nil, err
	}
	return &b, nil
}

func (r *repository) GetByID(ctx context.Context, id int) (*Booking, error) {
	return r.get(ctx, "id = $1", id)
}

func (r *repository) GetByUID(ctx context.Context, uid string) (*Booking, error) {
	return r.get(ctx, "uid = $1", uid)
}

func (r *repository) ListByUser(ctx context.Context, userID int) ([]Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE user_id = $1 ORDER BY start_time DESC`

	var bookings []Booking
	if err := r.db.SelectContext(ctx, &bookings, query, userID); err != nil {
		return nil, err
	}

	return bookings, nil
}

func (r *repository) exec(ctx context.Context, query string, args ...any) (bool, error) {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, err
	}

	return rows > 0, nil
}

func (r *repository) MarkPaid(ctx context.Context, id int, accept bool) (bool, error) {
	query := `
		UPDATE bookings
		SET paid = true,
		    status = CASE WHEN $2 THEN 'ACCEPTED' ELSE status END,
		    updated_at = NOW()
		WHERE id = $1 AND paid = false AND status <> 'CANCELLED'
	`
	return r.exec(ctx, query, id, accept)
}

func (r *repository) Cancel(ctx context.Context, id int, reason string) (bool, error) {
	query := `
		UPDATE bookings
		SET status = 'CANCELLED', cancellation_reason = $2, updated_at = NOW()
		WHERE id = $1 AND status NOT IN ('CANCELLED', 'REJECTED')
	`
	return r.exec(ctx, query, id, reason)
}

// DeleteUnpaid frees the slot of a booking that was never paid. Payments
// are removed by the foreign key cascade.
func (r *repository) DeleteUnpaid(ctx context.Context, id int) (bool, error) {
	return r.exec(ctx, `DELETE FROM bookings WHERE id = $1 AND paid = false`, id)
}

// Accept confirms a pending booking once any required payment has landed.
func (r *repository) Accept(ctx context.Context, id int) (bool, error) {
	query := `
		UPDATE bookings b
		SET status = 'ACCEPTED', updated_at = NOW()
		WHERE b.id = $1 AND b.status = 'PENDING'
		  AND (b.paid = true OR NOT EXISTS (SELECT 1 FROM payments p WHERE p.booking_id = b.id))
	`
	return r.exec(ctx, query, id)
}
