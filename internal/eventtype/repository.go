package eventtype

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
)

type Repository interface {
	GetByID(ctx context.Context, id int) (*EventType, error)
}

type repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) Repository {
	return &repository{db: db}
}

func (r *repository) GetByID(ctx context.Context, id int) (*EventType, error) {
	query := `
		SELECT e.id, e.user_id, e.team_id, e.slug, e.title, e.length_minutes, e.price, e.currency,
		       e.payment_enabled, e.payment_option, e.requires_confirmation, e.credential_id, e.stripe_price_id,
		       u.name AS owner_name, u.email AS owner_email, u.username AS owner_username,
		       u.time_zone AS owner_time_zone, t.slug AS team_slug
		FROM event_types e
		JOIN users u ON u.id = e.user_id
		LEFT JOIN teams t ON t.id = e.team_id
		WHERE e.id = $1
	`

	var et EventType
	if err := r.db.GetContext(ctx, &et, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	return &et, nil
}
