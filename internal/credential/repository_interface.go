package credential

import "context"

type Repository interface {
	GetByID(ctx context.Context, id int) (*Credential, error)
	FindByTeam(ctx context.Context, teamID int) (*Credential, error)
	FindByUser(ctx context.Context, userID int) (*Credential, error)
	GetAppConfig(ctx context.Context) (*AppConfig, error)
	SaveAppConfig(ctx context.Context, cfg AppConfig) error
	EnsureManualMarker(ctx context.Context, userID int) error
}
