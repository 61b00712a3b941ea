package eventtype

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

var ErrNotFound = errors.New("event type not found")

// Payment options.
const (
	OptionOnBooking   = "ON_BOOKING"
	OptionHold        = "HOLD"
	OptionSyncBooking = "SYNC_BOOKING"
)

type EventType struct {
	ID                   int     `db:"id" json:"id"`
	UserID               int     `db:"user_id" json:"user_id"`
	TeamID               *int    `db:"team_id" json:"team_id,omitempty"`
	Slug                 string  `db:"slug" json:"slug"`
	Title                string  `db:"title" json:"title"`
	LengthMinutes        int     `db:"length_minutes" json:"length_minutes"`
	Price                int64   `db:"price" json:"price"`
	Currency             string  `db:"currency" json:"currency"`
	PaymentEnabled       bool    `db:"payment_enabled" json:"payment_enabled"`
	PaymentOption        string  `db:"payment_option" json:"payment_option"`
	RequiresConfirmation bool    `db:"requires_confirmation" json:"requires_confirmation"`
	CredentialID         *int    `db:"credential_id" json:"-"`
	StripePriceID        *string `db:"stripe_price_id" json:"-"`

	OwnerName     string  `db:"owner_name" json:"owner_name"`
	OwnerEmail    string  `db:"owner_email" json:"-"`
	OwnerUsername *string `db:"owner_username" json:"owner_username,omitempty"`
	OwnerTimeZone string  `db:"owner_time_zone" json:"-"`
	TeamSlug      *string `db:"team_slug" json:"team_slug,omitempty"`
}

// RequiresPayment reports whether bookings of this type go through checkout.
func (e *EventType) RequiresPayment() bool {
	return e.PaymentEnabled && e.Price > 0
}

func (e *EventType) PriceID() string {
	if e.StripePriceID == nil {
		return ""
	}
	return *e.StripePriceID
}

// PagePath is the public booking page, /team/<slug>/<event> for team
// events and /<username>/<event> otherwise.
func (e *EventType) PagePath() string {
	if e.TeamSlug != nil && *e.TeamSlug != "" {
		return fmt.Sprintf("/team/%s/%s", url.PathEscape(*e.TeamSlug), url.PathEscape(e.Slug))
	}
	username := ""
	if e.OwnerUsername != nil {
		username = *e.OwnerUsername
	}
	return fmt.Sprintf("/%s/%s", url.PathEscape(username), url.PathEscape(e.Slug))
}

// PageURL joins PagePath onto the web app base and appends query.
func (e *EventType) PageURL(webappURL string, query url.Values) string {
	u := strings.TrimRight(webappURL, "/") + e.PagePath()
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}
