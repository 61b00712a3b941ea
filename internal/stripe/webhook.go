package stripe

import (
	"encoding/json"
	"errors"
	"fmt"

	stripego "github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/webhook"
)

var (
	ErrNoWebhookSecret  = errors.New("webhook secret not configured")
	ErrInvalidSignature = errors.New("invalid webhook signature")
	ErrMalformedEvent   = errors.New("malformed webhook event")
)

// Event is the part of a Stripe event the reconciler reads.
type Event struct {
	ID      string
	Type    string
	Account string
	Object  EventObject
}

type EventObject struct {
	ID              string
	Object          string
	Metadata        map[string]string
	PaymentStatus   string
	PaymentIntentID string
	SetupIntentID   string
	FailureMessage  string
}

// Unpaid reports a completed checkout whose payment settles later.
func (o EventObject) Unpaid() bool {
	return o.Object == "checkout.session" && o.PaymentStatus == "unpaid"
}

// PaymentUID returns the payment uid stamped into metadata at checkout.
func (o EventObject) PaymentUID() string {
	return o.Metadata["paymentUid"]
}

// Verifier checks webhook signatures against one or more signing secrets.
type Verifier struct{}

func NewVerifier() *Verifier {
	return &Verifier{}
}

// Parse verifies the Stripe-Signature header against each secret in turn.
func (v *Verifier) Parse(payload []byte, header string, secrets ...string) (*Event, error) {
	if len(secrets) == 0 {
		return nil, ErrNoWebhookSecret
	}

	var lastErr error
	for _, secret := range secrets {
		ev, err := webhook.ConstructEventWithOptions(payload, header, secret, webhook.ConstructEventOptions{
			Tolerance:                webhook.DefaultTolerance,
			IgnoreAPIVersionMismatch: true,
		})
		if err == nil {
			return decode(ev)
		}
		if !isSignatureError(err) {
			return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
		}
		lastErr = err
	}
	return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, lastErr)
}

func isSignatureError(err error) bool {
	return errors.Is(err, webhook.ErrNoValidSignature) ||
		errors.Is(err, webhook.ErrNotSigned) ||
		errors.Is(err, webhook.ErrInvalidHeader) ||
		errors.Is(err, webhook.ErrTooOld)
}

// decode reads the event's object into the stripe-go type its "object"
// field names. Objects of other kinds keep only their id.
func decode(se stripego.Event) (*Event, error) {
	ev := &Event{ID: se.ID, Type: string(se.Type), Account: se.Account}
	if se.Data == nil || len(se.Data.Raw) == 0 {
		return ev, nil
	}

	kind, _ := se.Data.Object["object"].(string)
	ev.Object.Object = kind

	switch kind {
	case "checkout.session":
		var cs stripego.CheckoutSession
		if err := json.Unmarshal(se.Data.Raw, &cs); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
		}
		ev.Object.ID = cs.ID
		ev.Object.Metadata = cs.Metadata
		ev.Object.PaymentStatus = string(cs.PaymentStatus)
		if cs.PaymentIntent != nil {
			ev.Object.PaymentIntentID = cs.PaymentIntent.ID
		}
		if cs.SetupIntent != nil {
			ev.Object.SetupIntentID = cs.SetupIntent.ID
		}
	case "payment_intent":
		var pi stripego.PaymentIntent
		if err := json.Unmarshal(se.Data.Raw, &pi); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
		}
		ev.Object.ID = pi.ID
		ev.Object.Metadata = pi.Metadata
		ev.Object.PaymentIntentID = pi.ID
		if pi.LastPaymentError != nil {
			ev.Object.FailureMessage = pi.LastPaymentError.Msg
		}
	case "setup_intent":
		var si stripego.SetupIntent
		if err := json.Unmarshal(se.Data.Raw, &si); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
		}
		ev.Object.ID = si.ID
		ev.Object.Metadata = si.Metadata
		ev.Object.SetupIntentID = si.ID
		if si.LastSetupError != nil {
			ev.Object.FailureMessage = si.LastSetupError.Msg
		}
	default:
		ev.Object.ID, _ = se.Data.Object["id"].(string)
	}
	return ev, nil
}
