package credential

import (
	"context"
	"errors"

	"calpay/internal/logger"
)

const platformCurrency = "usd"

// Resolver decides which Stripe account a booking's payment is made against.
type Resolver struct {
	repo          Repository
	platformKey   string
	webhookSecret string
}

func NewResolver(repo Repository, platformKey, webhookSecret string) *Resolver {
	return &Resolver{repo: repo, platformKey: platformKey, webhookSecret: webhookSecret}
}

// Resolve picks the account for a new payment. An enabled platform
// configuration always wins over stored credentials.
func (r *Resolver) Resolve(ctx context.Context, rc Context) (*Account, error) {
	acct, err := r.manualAccount(ctx)
	if err != nil {
		return nil, err
	}
	if acct != nil {
		if rc.CredentialID != nil {
			logger.Info("credential id hint ignored", "credential_id", *rc.CredentialID, "user_id", rc.UserID, "reason", "platform configuration enabled")
		}
		return acct, nil
	}

	cred, err := r.stored(ctx, rc)
	if errors.Is(err, ErrNotFound) {
		logger.Warn("no payment credential", "user_id", rc.UserID)
		return nil, ErrNotConnected
	}
	if err != nil {
		return nil, err
	}

	if r.platformKey == "" {
		logger.Error("connected account found but platform key is not set", "credential_id", cred.ID)
		return nil, ErrNotConnected
	}

	currency := cred.OAuth.DefaultCurrency
	if currency == "" {
		currency = platformCurrency
	}
	return &Account{
		Kind:            KindOAuth,
		CredentialID:    cred.ID,
		SecretKey:       r.platformKey,
		StripeAccount:   cred.OAuth.StripeUserID,
		PublishableKey:  cred.OAuth.StripePublishableKey,
		DefaultCurrency: currency,
	}, nil
}

// stored walks hint, team and user credentials in that order and returns the
// first one that can take a payment.
func (r *Resolver) stored(ctx context.Context, rc Context) (*Credential, error) {
	var lookups []func() (*Credential, error)
	if rc.CredentialID != nil {
		id := *rc.CredentialID
		lookups = append(lookups, func() (*Credential, error) { return r.repo.GetByID(ctx, id) })
	}
	if rc.TeamID != nil {
		teamID := *rc.TeamID
		lookups = append(lookups, func() (*Credential, error) { return r.repo.FindByTeam(ctx, teamID) })
	}
	lookups = append(lookups, func() (*Credential, error) { return r.repo.FindByUser(ctx, rc.UserID) })

	for _, find := range lookups {
		cred, err := find()
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if !cred.connected() {
			logger.Warn("payment credential unusable", "credential_id", cred.ID, "kind", cred.Kind, "invalid", cred.Invalid)
			continue
		}
		return cred, nil
	}
	return nil, ErrNotFound
}

// manualAccount returns nil without error when no usable platform
// configuration exists.
func (r *Resolver) manualAccount(ctx context.Context) (*Account, error) {
	cfg, err := r.repo.GetAppConfig(ctx)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if !cfg.Enabled || !cfg.Keys.Usable() {
		return nil, nil
	}
	return &Account{
		Kind:            KindManual,
		SecretKey:       cfg.Keys.ClientSecret,
		PublishableKey:  cfg.Keys.PublicKey,
		DefaultCurrency: platformCurrency,
	}, nil
}

// ForPayment rebuilds the account an existing payment was created with.
func (r *Resolver) ForPayment(ctx context.Context, kind Kind, stripeAccount string) (*Account, error) {
	switch kind {
	case KindManual:
		acct, err := r.manualAccount(ctx)
		if err != nil {
			return nil, err
		}
		if acct == nil {
			return nil, ErrNotConnected
		}
		return acct, nil
	case KindOAuth:
		if r.platformKey == "" || stripeAccount == "" {
			return nil, ErrNotConnected
		}
		return &Account{Kind: KindOAuth, SecretKey: r.platformKey, StripeAccount: stripeAccount}, nil
	default:
		return nil, ErrNotConnected
	}
}

// WebhookSecrets lists the signing secrets to try, platform configuration first.
func (r *Resolver) WebhookSecrets(ctx context.Context) []string {
	var secrets []string

	cfg, err := r.repo.GetAppConfig(ctx)
	switch {
	case err == nil:
		if cfg.Enabled && cfg.Keys.WebhookSecret != "" {
			secrets = append(secrets, cfg.Keys.WebhookSecret)
		}
	case !errors.Is(err, ErrNotFound):
		logger.Error("failed to load platform configuration", "error", err)
	}

	if r.webhookSecret != "" && (len(secrets) == 0 || secrets[0] != r.webhookSecret) {
		secrets = append(secrets, r.webhookSecret)
	}
	return secrets
}

// Fees returns the platform's application fee schedule. Without a platform
// configuration no fee is taken.
func (r *Resolver) Fees(ctx context.Context) (FeeSchedule, error) {
	cfg, err := r.repo.GetAppConfig(ctx)
	if errors.Is(err, ErrNotFound) {
		return FeeSchedule{}, nil
	}
	if err != nil {
		return FeeSchedule{}, err
	}
	return FeeSchedule{Fixed: cfg.Keys.PaymentFeeFixed, Percentage: cfg.Keys.PaymentFeePercentage}, nil
}
