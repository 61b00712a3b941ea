package credential

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/jmoiron/sqlx"
)

type row struct {
	ID      int           `db:"id"`
	Type    string        `db:"type"`
	UserID  sql.NullInt64 `db:"user_id"`
	TeamID  sql.NullInt64 `db:"team_id"`
	AppID   string        `db:"app_id"`
	Key     []byte        `db:"key"`
	Invalid bool          `db:"invalid"`
}

func (r row) toCredential() (*Credential, error) {
	kind, oauth, err := ParseKey(r.Key)
	if err != nil {
		return nil, err
	}
	c := &Credential{ID: r.ID, Invalid: r.Invalid, Kind: kind, OAuth: oauth}
	if r.UserID.Valid {
		id := int(r.UserID.Int64)
		c.UserID = &id
	}
	if r.TeamID.Valid {
		id := int(r.TeamID.Int64)
		c.TeamID = &id
	}
	return c, nil
}

const selectColumns = `SELECT id, type, user_id, team_id, app_id, key, invalid FROM credentials`

type repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) Repository {
	return &repository{db: db}
}

func (r *repository) get(ctx context.Context, query string, args ...any) (*Credential, error) {
	var rw row
	if err := r.db.GetContext(ctx, &rw, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return rw.toCredential()
}

func (r *repository) GetByID(ctx context.Context, id int) (*Credential, error) {
	return r.get(ctx, selectColumns+` WHERE id = $1 AND app_id = $2`, id, AppSlug)
}

func (r *repository) FindByTeam(ctx context.Context, teamID int) (*Credential, error) {
	return r.get(ctx, selectColumns+`
		WHERE team_id = $1 AND app_id = $2 AND invalid = false
		ORDER BY id
		LIMIT 1`, teamID, AppSlug)
}

func (r *repository) FindByUser(ctx context.Context, userID int) (*Credential, error) {
	return r.get(ctx, selectColumns+`
		WHERE user_id = $1 AND app_id = $2 AND invalid = false
		ORDER BY id
		LIMIT 1`, userID, AppSlug)
}

func (r *repository) GetAppConfig(ctx context.Context) (*AppConfig, error) {
	var rw struct {
		Slug    string `db:"slug"`
		Enabled bool   `db:"enabled"`
		Keys    []byte `db:"keys"`
	}
	err := r.db.GetContext(ctx, &rw, `SELECT slug, enabled, keys FROM apps WHERE slug = $1`, AppSlug)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	cfg := &AppConfig{Slug: rw.Slug, Enabled: rw.Enabled}
	if len(rw.Keys) > 0 {
		if err := json.Unmarshal(rw.Keys, &cfg.Keys); err != nil {
			return nil, errors.Join(ErrMalformedKey, err)
		}
	}
	return cfg, nil
}

func (r *repository) SaveAppConfig(ctx context.Context, cfg AppConfig) error {
	keys, err := json.Marshal(cfg.Keys)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO apps (slug, enabled, keys)
		VALUES ($1, $2, $3)
		ON CONFLICT (slug) DO UPDATE SET enabled = EXCLUDED.enabled, keys = EXCLUDED.keys
	`
	_, err = r.db.ExecContext(ctx, query, AppSlug, cfg.Enabled, keys)
	return err
}

// EnsureManualMarker gives the user a credential row pointing at the
// platform configuration unless they already have one.
func (r *repository) EnsureManualMarker(ctx context.Context, userID int) error {
	query := `
		INSERT INTO credentials (type, user_id, app_id, key)
		SELECT $1, $2, $3, '{"manual_config": true}'::jsonb
		WHERE NOT EXISTS (SELECT 1 FROM credentials WHERE user_id = $2 AND app_id = $3)
	`
	_, err := r.db.ExecContext(ctx, query, Type, userID, AppSlug)
	return err
}
