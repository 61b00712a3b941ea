package payment

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"calpay/internal/booking"
	"calpay/internal/credential"
	"calpay/internal/eventtype"
)

type Option string

const (
	OptionOnBooking   Option = eventtype.OptionOnBooking
	OptionHold        Option = eventtype.OptionHold
	OptionSyncBooking Option = eventtype.OptionSyncBooking
)

func (o Option) Valid() bool {
	switch o {
	case OptionOnBooking, OptionHold, OptionSyncBooking:
		return true
	}
	return false
}

// Data is the provider state kept in the jsonb column.
type Data struct {
	CredentialKind  credential.Kind `json:"credential_kind,omitempty"`
	StripeAccount   string          `json:"stripe_account,omitempty"`
	PublishableKey  string          `json:"stripe_publishable_key,omitempty"`
	SessionID       string          `json:"session_id,omitempty"`
	ClientSecret    string          `json:"client_secret,omitempty"`
	CheckoutURL     string          `json:"checkout_url,omitempty"`
	PaymentIntentID string          `json:"payment_intent,omitempty"`
	SetupIntentID   string          `json:"setup_intent,omitempty"`
	RefundID        string          `json:"refund_id,omitempty"`
	LastError       string          `json:"last_error,omitempty"`
}

func (d Data) Value() (driver.Value, error) {
	return json.Marshal(d)
}

func (d *Data) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*d = Data{}
		return nil
	case []byte:
		return json.Unmarshal(v, d)
	case string:
		return json.Unmarshal([]byte(v), d)
	default:
		return fmt.Errorf("payment data: unsupported type %T", src)
	}
}

type Payment struct {
	ID         int       `db:"id" json:"id"`
	UID        string    `db:"uid" json:"uid"`
	BookingID  int       `db:"booking_id" json:"booking_id"`
	AppID      string    `db:"app_id" json:"app_id"`
	Amount     int64     `db:"amount" json:"amount"`
	Fee        int64     `db:"fee" json:"fee"`
	Currency   string    `db:"currency" json:"currency"`
	Success    bool      `db:"success" json:"success"`
	Refunded   bool      `db:"refunded" json:"refunded"`
	Option     Option    `db:"payment_option" json:"payment_option"`
	ExternalID string    `db:"external_id" json:"external_id"`
	Data       Data      `db:"data" json:"-"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time `db:"updated_at" json:"updated_at"`
}

// Info is what the retry page needs. Checkout secrets are only present
// while the payment is outstanding.
type Info struct {
	UID            string `json:"uid"`
	BookingUID     string `json:"booking_uid"`
	Amount         int64  `json:"amount"`
	Currency       string `json:"currency"`
	Option         Option `json:"payment_option"`
	Success        bool   `json:"success"`
	Refunded       bool   `json:"refunded"`
	CheckoutURL    string `json:"checkout_url,omitempty"`
	ClientSecret   string `json:"client_secret,omitempty"`
	PublishableKey string `json:"publishable_key,omitempty"`
}

// Record is a payment with its provider state, for admin views. The
// checkout client secret is left out.
type Record struct {
	Payment
	Data Data `json:"data"`
}

func newRecord(p Payment) Record {
	d := p.Data
	d.ClientSecret = ""
	return Record{Payment: p, Data: d}
}

type BookingPayments struct {
	BookingID     int              `json:"booking_id"`
	Booking       *booking.Booking `json:"booking"`
	Payments      []Record         `json:"payments"`
	PaymentsCount int              `json:"payments_count"`
}
