package payment

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
)

var ErrPaymentNotFound = errors.New("payment not found")

const paymentColumns = `id, uid, booking_id, app_id, amount, fee, currency, success, refunded,
	payment_option, external_id, data, created_at, updated_at`

type repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) Repository {
	return &repository{db: db}
}

func (r *repository) Create(ctx context.Context, p *Payment) (*Payment, error) {
	query := `
		INSERT INTO payments (uid, booking_id, app_id, amount, fee, currency, payment_option, external_id, data)
		VALUES ($1, $2, $3, $4, $5, $6, $7, '', $8)
		RETURNING ` + paymentColumns

	var created Payment
	err := r.db.GetContext(ctx, &created, query,
		p.UID, p.BookingID, p.AppID, p.Amount, p.Fee, p.Currency, p.Option, p.Data,
	)
	if err != nil {
		return nil, err
	}

	return &created, nil
}

func (r *repository) SetExternalID(ctx context.Context, id int, externalID string, data Data) error {
	query := `
		UPDATE payments
		SET external_id = $2, data = $3, updated_at = NOW()
		WHERE id = $1
	`
	return r.mustExec(ctx, query, id, externalID, data)
}

// UpdateData merges the non-empty fields of patch into the stored blob.
// Keys absent from patch keep whatever a concurrent writer stored.
func (r *repository) UpdateData(ctx context.Context, id int, patch Data) error {
	return r.mustExec(ctx, `UPDATE payments SET data = data || $2::jsonb, updated_at = NOW() WHERE id = $1`, id, patch)
}

func (r *repository) mustExec(ctx context.Context, query string, args ...any) error {
	applied, err := r.exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if !applied {
		return ErrPaymentNotFound
	}
	return nil
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

func (r *repository) get(ctx context.Context, where string, args ...any) (*Payment, error) {
	var p Payment
	err := r.db.GetContext(ctx, &p, `SELECT `+paymentColumns+` FROM payments WHERE `+where, args...)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPaymentNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (r *repository) GetByID(ctx context.Context, id int) (*Payment, error) {
	return r.get(ctx, "id = $1", id)
}

func (r *repository) FindByUID(ctx context.Context, uid string) (*Payment, error) {
	return r.get(ctx, "uid = $1", uid)
}

func (r *repository) FindByExternalID(ctx context.Context, externalID string) (*Payment, error) {
	if externalID == "" {
		return nil, ErrPaymentNotFound
	}
	return r.get(ctx, "external_id = $1", externalID)
}

func (r *repository) FindByExternalIDAndBooking(ctx context.Context, externalID string, bookingID int) (*Payment, error) {
	if externalID == "" {
		return nil, ErrPaymentNotFound
	}
	return r.get(ctx, "external_id = $1 AND booking_id = $2", externalID, bookingID)
}

func (r *repository) ListByBooking(ctx context.Context, bookingID int) ([]Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE booking_id = $1 ORDER BY id`

	var payments []Payment
	if err := r.db.SelectContext(ctx, &payments, query, bookingID); err != nil {
		return nil, err
	}

	return payments, nil
}

func (r *repository) MarkSuccess(ctx context.Context, id int) (bool, error) {
	query := `
		UPDATE payments
		SET success = true, updated_at = NOW()
		WHERE id = $1 AND success = false AND refunded = false
	`
	return r.exec(ctx, query, id)
}

func (r *repository) MarkCharged(ctx context.Context, id int, fee int64, patch Data) (bool, error) {
	query := `
		UPDATE payments
		SET success = true, fee = $2, data = data || $3::jsonb, updated_at = NOW()
		WHERE id = $1 AND success = false AND refunded = false
	`
	return r.exec(ctx, query, id, fee, patch)
}

func (r *repository) MarkRefunded(ctx context.Context, id int, patch Data) (bool, error) {
	query := `
		UPDATE payments
		SET refunded = true, data = data || $2::jsonb, updated_at = NOW()
		WHERE id = $1 AND success = true AND refunded = false
	`
	return r.exec(ctx, query, id, patch)
}
