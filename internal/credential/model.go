package credential

import (
	"encoding/json"
	"errors"
	"math"
	"strings"
)

const (
	AppSlug = "stripe"
	Type    = "stripe_payment"
)

type Kind string

const (
	// KindOAuth is a connected account owned by a user or team.
	KindOAuth Kind = "oauth"
	// KindManualMarker is a stored row that points at the platform configuration.
	KindManualMarker Kind = "manual_marker"
	// KindManual is the platform-wide configuration entered by an admin.
	KindManual Kind = "manual"
)

var (
	ErrNotConnected = errors.New("payment not connected")
	ErrNotFound     = errors.New("credential not found")
	ErrMalformedKey = errors.New("malformed credential key")
)

type OAuthKey struct {
	StripeUserID         string `json:"stripe_user_id"`
	StripePublishableKey string `json:"stripe_publishable_key"`
	DefaultCurrency      string `json:"default_currency"`
}

// AppKeys is the platform configuration form.
type AppKeys struct {
	ClientID      string `json:"client_id" validate:"omitempty,startswith=ca_"`
	ClientSecret  string `json:"client_secret" validate:"required,startswith=sk_"`
	PublicKey     string `json:"public_key" validate:"required,startswith=pk_"`
	WebhookSecret string `json:"webhook_secret" validate:"omitempty,startswith=whsec_"`

	PaymentFeeFixed      int64   `json:"payment_fee_fixed" validate:"gte=0"`
	PaymentFeePercentage float64 `json:"payment_fee_percentage" validate:"gte=0,lte=1"`
}

// Usable reports whether the keys can drive a checkout.
func (k AppKeys) Usable() bool {
	return strings.HasPrefix(k.ClientSecret, "sk_") && strings.HasPrefix(k.PublicKey, "pk_")
}

// Masked hides all but the last four characters of every secret.
func (k AppKeys) Masked() AppKeys {
	return AppKeys{
		ClientID:      k.ClientID,
		ClientSecret:  mask(k.ClientSecret),
		PublicKey:     k.PublicKey,
		WebhookSecret: mask(k.WebhookSecret),

		PaymentFeeFixed:      k.PaymentFeeFixed,
		PaymentFeePercentage: k.PaymentFeePercentage,
	}
}

// FeeSchedule is the application fee taken on admin charges of held cards.
type FeeSchedule struct {
	Fixed      int64
	Percentage float64
}

// For returns the fee in minor units for amount, rounded half away from zero.
func (f FeeSchedule) For(amount int64) int64 {
	return int64(math.Round(float64(amount)*f.Percentage + float64(f.Fixed)))
}

func mask(s string) string {
	if len(s) <= 4 {
		return strings.Repeat("*", len(s))
	}
	return strings.Repeat("*", len(s)-4) + s[len(s)-4:]
}

type AppConfig struct {
	Slug    string  `json:"slug"`
	Enabled bool    `json:"enabled"`
	Keys    AppKeys `json:"keys"`
}

type Credential struct {
	ID      int
	UserID  *int
	TeamID  *int
	Invalid bool
	Kind    Kind
	OAuth   *OAuthKey
}

func (c *Credential) connected() bool {
	return !c.Invalid && c.Kind == KindOAuth && c.OAuth != nil && c.OAuth.StripeUserID != ""
}

type storedKey struct {
	ManualConfig bool `json:"manual_config"`
	OAuthKey
}

// ParseKey decodes the JSON blob stored on a credential row.
func ParseKey(raw []byte) (Kind, *OAuthKey, error) {
	if len(raw) == 0 {
		return "", nil, ErrMalformedKey
	}

	var k storedKey
	if err := json.Unmarshal(raw, &k); err != nil {
		return "", nil, errors.Join(ErrMalformedKey, err)
	}

	switch {
	case k.StripeUserID != "":
		key := k.OAuthKey
		return KindOAuth, &key, nil
	case k.ManualConfig:
		return KindManualMarker, nil, nil
	default:
		return "", nil, ErrMalformedKey
	}
}

// Account is everything a gateway call needs to act for a merchant.
type Account struct {
	Kind            Kind
	CredentialID    int
	SecretKey       string
	StripeAccount   string
	PublishableKey  string
	DefaultCurrency string
}

// Context carries the hints available when a booking is created.
type Context struct {
	UserID       int
	TeamID       *int
	CredentialID *int
}
