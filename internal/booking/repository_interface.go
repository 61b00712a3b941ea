package booking

import "context"

type Repository interface {
	Create(ctx context.Context, b *Booking) (*Booking, error)
	GetByID(ctx context.Context, id int) (*Booking, error)
	GetByUID(ctx context.Context, uid string) (*Booking, error)
	ListByUser(ctx context.Context, userID int) ([]Booking, error)
	// MarkPaid sets paid once. It reports false when the booking was
	// already paid, cancelled or deleted.
	MarkPaid(ctx context.Context, id int, accept bool) (bool, error)
	Cancel(ctx context.Context, id int, reason string) (bool, error)
	DeleteUnpaid(ctx context.Context, id int) (bool, error)
	Accept(ctx context.Context, id int) (bool, error)
}
