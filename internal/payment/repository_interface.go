package payment

import "context"

type Repository interface {
	// Create inserts a placeholder row with an empty external id.
	Create(ctx context.Context, p *Payment) (*Payment, error)
	SetExternalID(ctx context.Context, id int, externalID string, data Data) error
	// UpdateData merges patch into the stored data; empty fields are left alone.
	UpdateData(ctx context.Context, id int, patch Data) error
	GetByID(ctx context.Context, id int) (*Payment, error)
	FindByUID(ctx context.Context, uid string) (*Payment, error)
	FindByExternalID(ctx context.Context, externalID string) (*Payment, error)
	FindByExternalIDAndBooking(ctx context.Context, externalID string, bookingID int) (*Payment, error)
	ListByBooking(ctx context.Context, bookingID int) ([]Payment, error)
	// MarkSuccess reports false when the payment was already successful
	// or refunded.
	MarkSuccess(ctx context.Context, id int) (bool, error)
	// MarkCharged is MarkSuccess for a held card charged later; it also
	// records the application fee and the new payment intent.
	MarkCharged(ctx context.Context, id int, fee int64, patch Data) (bool, error)
	MarkRefunded(ctx context.Context, id int, patch Data) (bool, error)
}
