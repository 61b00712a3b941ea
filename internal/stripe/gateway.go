// Package stripe talks to the Stripe API on behalf of a resolved
// credential.Account.
package stripe

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	stripego "github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"calpay/internal/credential"
)

const (
	ModePayment = "payment"
	ModeSetup   = "setup"
)

var (
	ErrNoPaymentIntent = errors.New("checkout session has no payment intent")
	ErrNoPaymentMethod = errors.New("setup intent has no saved payment method")
	ErrCardDeclined    = errors.New("card declined")
)

type CheckoutRequest struct {
	Mode        string
	Amount      int64
	Currency    string
	PriceID     string
	ProductName string
	CustomerID  string
	SuccessURL  string
	CancelURL   string
	Metadata    map[string]string
}

// ChargeRequest charges the card saved by a setup-mode checkout.
type ChargeRequest struct {
	SetupIntentID  string
	Amount         int64
	Currency       string
	ApplicationFee int64
	IdempotencyKey string
	Metadata       map[string]string
}

type Charge struct {
	PaymentIntentID string
	Status          string
}

// Captured reports whether the money moved or is on its way. Anything else
// (3DS required, for instance) needs the booker present.
func (c *Charge) Captured() bool {
	return c.Status == string(stripego.PaymentIntentStatusSucceeded) ||
		c.Status == string(stripego.PaymentIntentStatusProcessing)
}

type Price struct {
	ID         string                   `json:"id"`
	Currency   string                   `json:"currency"`
	UnitAmount int64                    `json:"unit_amount"`
	Nickname   string                   `json:"nickname"`
	Type       string                   `json:"type"`
	Recurring  *stripego.PriceRecurring `json:"recurring"`
}

type Product struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Active      bool    `json:"active"`
	Prices      []Price `json:"prices"`
}

type Session struct {
	ID              string
	URL             string
	ClientSecret    string
	Status          string
	PaymentStatus   string
	PaymentIntentID string
	SetupIntentID   string
	Metadata        map[string]string
}

// Completed reports whether the booker finished checkout. Setup-mode
// sessions complete without a payment.
func (s *Session) Completed() bool {
	if s.PaymentStatus == string(stripego.CheckoutSessionPaymentStatusPaid) {
		return true
	}
	return s.Status == string(stripego.CheckoutSessionStatusComplete) &&
		s.PaymentStatus == string(stripego.CheckoutSessionPaymentStatusNoPaymentRequired)
}

// Settling reports a finished checkout whose payment method (a bank debit,
// for example) has not cleared yet. The outcome arrives as an async webhook.
func (s *Session) Settling() bool {
	return s.Status == string(stripego.CheckoutSessionStatusComplete) &&
		s.PaymentStatus == string(stripego.CheckoutSessionPaymentStatusUnpaid)
}

func (s *Session) Open() bool {
	return s.Status == string(stripego.CheckoutSessionStatusOpen)
}

type Gateway interface {
	RetrieveOrCreateCustomer(ctx context.Context, acct *credential.Account, email, name string) (string, error)
	CreateCheckoutSession(ctx context.Context, acct *credential.Account, req CheckoutRequest) (*Session, error)
	GetCheckoutSession(ctx context.Context, acct *credential.Account, id string) (*Session, error)
	ExpireCheckoutSession(ctx context.Context, acct *credential.Account, id string) error
	RefundCheckoutSession(ctx context.Context, acct *credential.Account, id string) (string, error)
	RefundPaymentIntent(ctx context.Context, acct *credential.Account, id string) (string, error)
	ChargePaymentMethod(ctx context.Context, acct *credential.Account, req ChargeRequest) (*Charge, error)
	ListProducts(ctx context.Context, acct *credential.Account) ([]Product, error)
}

type gateway struct {
	mu       sync.Mutex
	clients  map[string]*client.API
	backends *stripego.Backends
	tracer   trace.Tracer
}

// NewGateway builds a gateway. A nil backends uses the live Stripe API.
func NewGateway(backends *stripego.Backends) Gateway {
	return &gateway{
		clients:  make(map[string]*client.API),
		backends: backends,
		tracer:   otel.Tracer("calpay/stripe"),
	}
}

// NewTestBackends points every Stripe backend at url.
func NewTestBackends(url string) *stripego.Backends {
	b := stripego.GetBackendWithConfig(stripego.APIBackend, &stripego.BackendConfig{
		URL:               stripego.String(url),
		MaxNetworkRetries: stripego.Int64(0),
		LeveledLogger:     &stripego.LeveledLogger{Level: stripego.LevelError},
	})
	return &stripego.Backends{API: b, Connect: b, Uploads: b}
}

func (g *gateway) client(secret string) *client.API {
	g.mu.Lock()
	defer g.mu.Unlock()

	sc, ok := g.clients[secret]
	if !ok {
		sc = client.New(secret, g.backends)
		g.clients[secret] = sc
	}
	return sc
}

func scope(ctx context.Context, p *stripego.Params, acct *credential.Account) {
	p.Context = ctx
	if acct.StripeAccount != "" {
		p.SetStripeAccount(acct.StripeAccount)
	}
}

func scopeList(ctx context.Context, p *stripego.ListParams, acct *credential.Account) {
	p.Context = ctx
	if acct.StripeAccount != "" {
		p.SetStripeAccount(acct.StripeAccount)
	}
}

func (g *gateway) span(ctx context.Context, name string, acct *credential.Account) (context.Context, trace.Span) {
	return g.tracer.Start(ctx, name, trace.WithAttributes(
		attribute.String("stripe.account_kind", string(acct.Kind)),
		attribute.Bool("stripe.connected", acct.StripeAccount != ""),
	))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func (g *gateway) RetrieveOrCreateCustomer(ctx context.Context, acct *credential.Account, email, name string) (id string, err error) {
	ctx, span := g.span(ctx, "stripe.customer", acct)
	defer func() { endSpan(span, err) }()

	sc := g.client(acct.SecretKey)

	list := &stripego.CustomerListParams{Email: stripego.String(email)}
	list.Limit = stripego.Int64(1)
	scopeList(ctx, &list.ListParams, acct)

	it := sc.Customers.List(list)
	if it.Next() {
		return it.Customer().ID, nil
	}
	if err := it.Err(); err != nil {
		return "", fmt.Errorf("list customers: %w", err)
	}

	params := &stripego.CustomerParams{
		Email: stripego.String(email),
		Name:  stripego.String(name),
	}
	scope(ctx, &params.Params, acct)

	c, err := sc.Customers.New(params)
	if err != nil {
		return "", fmt.Errorf("create customer: %w", err)
	}
	return c.ID, nil
}

func (g *gateway) CreateCheckoutSession(ctx context.Context, acct *credential.Account, req CheckoutRequest) (s *Session, err error) {
	ctx, span := g.span(ctx, "stripe.checkout.create", acct)
	span.SetAttributes(attribute.String("stripe.mode", req.Mode))
	defer func() { endSpan(span, err) }()

	params := &stripego.CheckoutSessionParams{
		Mode:       stripego.String(req.Mode),
		SuccessURL: stripego.String(req.SuccessURL),
		CancelURL:  stripego.String(req.CancelURL),
		Metadata:   req.Metadata,
	}
	if req.CustomerID != "" {
		params.Customer = stripego.String(req.CustomerID)
	}

	switch req.Mode {
	case ModePayment:
		params.LineItems = []*stripego.CheckoutSessionLineItemParams{lineItem(req)}
		params.PaymentIntentData = &stripego.CheckoutSessionPaymentIntentDataParams{
			Metadata: req.Metadata,
		}
	case ModeSetup:
		params.Currency = stripego.String(strings.ToLower(req.Currency))
		params.SetupIntentData = &stripego.CheckoutSessionSetupIntentDataParams{
			Metadata: req.Metadata,
		}
	default:
		return nil, fmt.Errorf("unsupported checkout mode %q", req.Mode)
	}
	scope(ctx, &params.Params, acct)

	cs, err := g.client(acct.SecretKey).CheckoutSessions.New(params)
	if err != nil {
		return nil, fmt.Errorf("create checkout session: %w", err)
	}
	return toSession(cs), nil
}

func lineItem(req CheckoutRequest) *stripego.CheckoutSessionLineItemParams {
	if req.PriceID != "" {
		return &stripego.CheckoutSessionLineItemParams{
			Price:    stripego.String(req.PriceID),
			Quantity: stripego.Int64(1),
		}
	}
	return &stripego.CheckoutSessionLineItemParams{
		Quantity: stripego.Int64(1),
		PriceData: &stripego.CheckoutSessionLineItemPriceDataParams{
			Currency:   stripego.String(strings.ToLower(req.Currency)),
			UnitAmount: stripego.Int64(req.Amount),
			ProductData: &stripego.CheckoutSessionLineItemPriceDataProductDataParams{
				Name: stripego.String(req.ProductName),
			},
		},
	}
}

func (g *gateway) GetCheckoutSession(ctx context.Context, acct *credential.Account, id string) (s *Session, err error) {
	ctx, span := g.span(ctx, "stripe.checkout.get", acct)
	defer func() { endSpan(span, err) }()

	params := &stripego.CheckoutSessionParams{}
	scope(ctx, &params.Params, acct)

	cs, err := g.client(acct.SecretKey).CheckoutSessions.Get(id, params)
	if err != nil {
		return nil, fmt.Errorf("get checkout session: %w", err)
	}
	return toSession(cs), nil
}

func (g *gateway) ExpireCheckoutSession(ctx context.Context, acct *credential.Account, id string) (err error) {
	ctx, span := g.span(ctx, "stripe.checkout.expire", acct)
	defer func() { endSpan(span, err) }()

	params := &stripego.CheckoutSessionExpireParams{}
	scope(ctx, &params.Params, acct)

	if _, err := g.client(acct.SecretKey).CheckoutSessions.Expire(id, params); err != nil {
		return fmt.Errorf("expire checkout session: %w", err)
	}
	return nil
}

func (g *gateway) RefundCheckoutSession(ctx context.Context, acct *credential.Account, id string) (refundID string, err error) {
	ctx, span := g.span(ctx, "stripe.refund", acct)
	defer func() { endSpan(span, err) }()

	s, err := g.GetCheckoutSession(ctx, acct, id)
	if err != nil {
		return "", err
	}
	if s.PaymentIntentID == "" {
		return "", ErrNoPaymentIntent
	}
	return g.refund(ctx, acct, s.PaymentIntentID)
}

func (g *gateway) RefundPaymentIntent(ctx context.Context, acct *credential.Account, id string) (refundID string, err error) {
	ctx, span := g.span(ctx, "stripe.refund", acct)
	defer func() { endSpan(span, err) }()

	return g.refund(ctx, acct, id)
}

func (g *gateway) refund(ctx context.Context, acct *credential.Account, paymentIntentID string) (string, error) {
	params := &stripego.RefundParams{PaymentIntent: stripego.String(paymentIntentID)}
	scope(ctx, &params.Params, acct)

	r, err := g.client(acct.SecretKey).Refunds.New(params)
	if err != nil {
		return "", fmt.Errorf("create refund: %w", err)
	}
	return r.ID, nil
}

// ChargePaymentMethod confirms an off-session payment against the customer
// and card a setup intent saved. The application fee only applies to
// connected accounts.
func (g *gateway) ChargePaymentMethod(ctx context.Context, acct *credential.Account, req ChargeRequest) (c *Charge, err error) {
	ctx, span := g.span(ctx, "stripe.charge", acct)
	defer func() { endSpan(span, err) }()

	sc := g.client(acct.SecretKey)

	sip := &stripego.SetupIntentParams{}
	scope(ctx, &sip.Params, acct)
	si, err := sc.SetupIntents.Get(req.SetupIntentID, sip)
	if err != nil {
		return nil, fmt.Errorf("get setup intent: %w", err)
	}
	if si.Customer == nil || si.PaymentMethod == nil {
		return nil, ErrNoPaymentMethod
	}

	params := &stripego.PaymentIntentParams{
		Amount:        stripego.Int64(req.Amount),
		Currency:      stripego.String(strings.ToLower(req.Currency)),
		Customer:      stripego.String(si.Customer.ID),
		PaymentMethod: stripego.String(si.PaymentMethod.ID),
		OffSession:    stripego.Bool(true),
		Confirm:       stripego.Bool(true),
		Metadata:      req.Metadata,
	}
	if acct.StripeAccount != "" && req.ApplicationFee > 0 {
		params.ApplicationFeeAmount = stripego.Int64(req.ApplicationFee)
	}
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey)
	}
	scope(ctx, &params.Params, acct)

	pi, err := sc.PaymentIntents.New(params)
	if err != nil {
		var serr *stripego.Error
		if errors.As(err, &serr) && serr.Type == stripego.ErrorTypeCard {
			return nil, fmt.Errorf("%w: %w", ErrCardDeclined, err)
		}
		return nil, fmt.Errorf("create payment intent: %w", err)
	}
	return &Charge{PaymentIntentID: pi.ID, Status: string(pi.Status)}, nil
}

const listLimit = 100

// ListProducts returns the account's active products that have at least one
// active price, each with its prices.
func (g *gateway) ListProducts(ctx context.Context, acct *credential.Account) (products []Product, err error) {
	ctx, span := g.span(ctx, "stripe.products", acct)
	defer func() { endSpan(span, err) }()

	sc := g.client(acct.SecretKey)

	pricesByProduct := make(map[string][]Price)
	pl := &stripego.PriceListParams{Active: stripego.Bool(true)}
	pl.Limit = stripego.Int64(listLimit)
	pl.AddExpand("data.product")
	scopeList(ctx, &pl.ListParams, acct)

	prices := sc.Prices.List(pl)
	for prices.Next() {
		pr := prices.Price()
		if pr.Product == nil {
			continue
		}
		price := Price{
			ID:         pr.ID,
			Currency:   string(pr.Currency),
			UnitAmount: pr.UnitAmount,
			Nickname:   pr.Nickname,
			Type:       string(pr.Type),
			Recurring:  pr.Recurring,
		}
		pricesByProduct[pr.Product.ID] = append(pricesByProduct[pr.Product.ID], price)
	}
	if err := prices.Err(); err != nil {
		return nil, fmt.Errorf("list prices: %w", err)
	}

	ppl := &stripego.ProductListParams{Active: stripego.Bool(true)}
	ppl.Limit = stripego.Int64(listLimit)
	scopeList(ctx, &ppl.ListParams, acct)

	products = []Product{}
	it := sc.Products.List(ppl)
	for it.Next() {
		p := it.Product()
		ps, ok := pricesByProduct[p.ID]
		if !ok {
			continue
		}
		products = append(products, Product{
			ID:          p.ID,
			Name:        p.Name,
			Description: p.Description,
			Active:      p.Active,
			Prices:      ps,
		})
	}
	if err := it.Err(); err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	return products, nil
}

func toSession(cs *stripego.CheckoutSession) *Session {
	s := &Session{
		ID:            cs.ID,
		URL:           cs.URL,
		ClientSecret:  cs.ClientSecret,
		Status:        string(cs.Status),
		PaymentStatus: string(cs.PaymentStatus),
		Metadata:      cs.Metadata,
	}
	if cs.PaymentIntent != nil {
		s.PaymentIntentID = cs.PaymentIntent.ID
	}
	if cs.SetupIntent != nil {
		s.SetupIntentID = cs.SetupIntent.ID
	}
	return s
}
