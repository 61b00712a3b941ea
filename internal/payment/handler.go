package payment

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"calpay/internal/api"
	"calpay/internal/auth"
	"calpay/internal/booking"
	"calpay/internal/credential"
	"calpay/internal/logger"
	"calpay/internal/stripe"
)

// Stripe caps event payloads well below this.
const maxWebhookBody = 65536

type WebhookProcessor interface {
	Handle(ctx context.Context, payload []byte, header string) (*stripe.Event, Outcome, error)
}

type ReturnResolver interface {
	Resolve(ctx context.Context, bookingID int, sessionID string, cancelled bool) (string, error)
}

type WebhookResponse struct {
	Received  bool `json:"received"`
	Duplicate bool `json:"duplicate,omitempty"`
}

type ProductsResponse struct {
	Products []stripe.Product `json:"products"`
}

type Handler struct {
	webhooks WebhookProcessor
	returns  ReturnResolver
	service  Service
}

func NewHandler(webhooks WebhookProcessor, returns ReturnResolver, service Service) *Handler {
	return &Handler{webhooks: webhooks, returns: returns, service: service}
}

// Webhook godoc
// @Summary      Stripe webhook
// @Description  Receives signed Stripe events and reconciles payments and bookings.
// @Tags         payments
// @Accept       json
// @Produce      json
// @Success      200  {object}  WebhookResponse
// @Success      202  {object}  api.MessageResponse
// @Failure      400  {object}  api.ErrorResponse
// @Failure      500  {object}  api.ErrorResponse
// @Router       /api/integrations/stripepayment/webhook [post]
func (h *Handler) Webhook(c *gin.Context) {
	payload, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBody))
	if err != nil {
		c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: "Invalid request body"})
		return
	}

	ev, outcome, err := h.webhooks.Handle(c.Request.Context(), payload, c.GetHeader("Stripe-Signature"))
	if err != nil {
		switch {
		case errors.Is(err, stripe.ErrNoWebhookSecret):
			logger.Error("stripe webhook secret missing")
			c.JSON(http.StatusInternalServerError, api.ErrorResponse{Error: "Stripe webhook secret not configured"})
		case errors.Is(err, stripe.ErrInvalidSignature), errors.Is(err, stripe.ErrMalformedEvent):
			logger.Warn("rejected stripe webhook", "error", err)
			c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: "Webhook signature verification failed"})
		default:
			c.JSON(http.StatusInternalServerError, api.ErrorResponse{Error: "Webhook processing failed"})
		}
		return
	}

	switch outcome {
	case OutcomeUnhandled:
		c.JSON(http.StatusAccepted, api.MessageResponse{Message: "Unhandled Stripe Webhook event type " + ev.Type})
	case OutcomeDuplicate:
		c.JSON(http.StatusOK, WebhookResponse{Received: true, Duplicate: true})
	default:
		c.JSON(http.StatusOK, WebhookResponse{Received: true})
	}
}

// PaymentSuccess godoc
// @Summary      Checkout success return
// @Tags         payments
// @Param        id          path   int     true  "Booking ID"
// @Param        session_id  query  string  true  "Checkout session ID"
// @Success      302
// @Failure      400  {object}  api.ErrorResponse
// @Failure      404  {object}  api.ErrorResponse
// @Failure      502  {object}  api.ErrorResponse
// @Router       /api/booking/{id}/payment-success [get]
func (h *Handler) PaymentSuccess(c *gin.Context) {
	h.redirect(c, false)
}

// PaymentCancelled godoc
// @Summary      Checkout cancel return
// @Description  Releases an unpaid SYNC booking and sends the booker back to the event page.
// @Tags         payments
// @Param        id          path   int     true  "Booking ID"
// @Param        session_id  query  string  true  "Checkout session ID"
// @Success      302
// @Failure      400  {object}  api.ErrorResponse
// @Failure      404  {object}  api.ErrorResponse
// @Failure      502  {object}  api.ErrorResponse
// @Router       /api/booking/{id}/payment-cancelled [get]
func (h *Handler) PaymentCancelled(c *gin.Context) {
	h.redirect(c, true)
}

func (h *Handler) redirect(c *gin.Context, cancelled bool) {
	bookingID, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: "Invalid booking ID"})
		return
	}

	sessionID := c.Query("session_id")
	if sessionID == "" {
		c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: "Missing session_id"})
		return
	}

	target, err := h.returns.Resolve(c.Request.Context(), bookingID, sessionID, cancelled)
	if err != nil {
		switch {
		case errors.Is(err, ErrPaymentNotFound):
			c.JSON(http.StatusNotFound, api.ErrorResponse{Error: "Payment not found"})
		case errors.Is(err, booking.ErrBookingNotFound):
			c.JSON(http.StatusNotFound, api.ErrorResponse{Error: "Booking not found"})
		case errors.Is(err, ErrProviderUnavailable), errors.Is(err, credential.ErrNotConnected):
			c.JSON(http.StatusBadGateway, api.ErrorResponse{Error: "Could not verify payment"})
		default:
			logger.Error("checkout return failed", "booking_id", bookingID, "error", err)
			c.JSON(http.StatusInternalServerError, api.ErrorResponse{Error: "Failed to process payment return"})
		}
		return
	}

	c.Redirect(http.StatusFound, target)
}

// Info godoc
// @Summary      Payment status for the retry page
// @Tags         payments
// @Produce      json
// @Param        uid  path      string  true  "Payment UID"
// @Success      200  {object}  Info
// @Failure      404  {object}  api.ErrorResponse
// @Router       /api/payments/{uid} [get]
func (h *Handler) Info(c *gin.Context) {
	info, err := h.service.Info(c.Request.Context(), c.Param("uid"))
	if err != nil {
		if errors.Is(err, ErrPaymentNotFound) || errors.Is(err, booking.ErrBookingNotFound) {
			c.JSON(http.StatusNotFound, api.ErrorResponse{Error: "Payment not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, api.ErrorResponse{Error: "Database error"})
		return
	}

	c.JSON(http.StatusOK, info)
}

// Refund godoc
// @Summary      Refund a payment
// @Tags         payments
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      int  true  "Payment ID"
// @Success      200  {object}  Payment
// @Failure      400  {object}  api.ErrorResponse
// @Failure      404  {object}  api.ErrorResponse
// @Failure      409  {object}  api.ErrorResponse
// @Failure      502  {object}  api.ErrorResponse
// @Router       /admin/payments/{id}/refund [post]
func (h *Handler) Refund(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: "Invalid payment ID"})
		return
	}

	p, err := h.service.Refund(c.Request.Context(), id)
	if err != nil {
		switch {
		case errors.Is(err, ErrPaymentNotFound):
			c.JSON(http.StatusNotFound, api.ErrorResponse{Error: "Payment not found"})
		case errors.Is(err, ErrNotRefundable):
			c.JSON(http.StatusConflict, api.ErrorResponse{Error: "Payment is not refundable"})
		case errors.Is(err, ErrProviderUnavailable), errors.Is(err, credential.ErrNotConnected):
			c.JSON(http.StatusBadGateway, api.ErrorResponse{Error: "Refund failed"})
		default:
			logger.Error("refund failed", "payment_id", id, "error", err)
			c.JSON(http.StatusInternalServerError, api.ErrorResponse{Error: "Refund failed"})
		}
		return
	}

	c.JSON(http.StatusOK, p)
}

// Charge godoc
// @Summary      Charge a held card
// @Description  Charges the card saved by a HOLD checkout, taking the platform fee on connected accounts.
// @Tags         payments
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      int  true  "Payment ID"
// @Success      200  {object}  Payment
// @Failure      400  {object}  api.ErrorResponse
// @Failure      402  {object}  api.ErrorResponse
// @Failure      404  {object}  api.ErrorResponse
// @Failure      409  {object}  api.ErrorResponse
// @Failure      502  {object}  api.ErrorResponse
// @Router       /admin/payments/{id}/charge [post]
func (h *Handler) Charge(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: "Invalid payment ID"})
		return
	}

	p, err := h.service.Charge(c.Request.Context(), id)
	if err != nil {
		switch {
		case errors.Is(err, ErrPaymentNotFound):
			c.JSON(http.StatusNotFound, api.ErrorResponse{Error: "Payment not found"})
		case errors.Is(err, ErrNotChargeable):
			c.JSON(http.StatusConflict, api.ErrorResponse{Error: "Payment is not chargeable"})
		case errors.Is(err, ErrChargeDeclined):
			c.JSON(http.StatusPaymentRequired, api.ErrorResponse{Error: "Card was declined"})
		case errors.Is(err, ErrProviderUnavailable), errors.Is(err, credential.ErrNotConnected):
			c.JSON(http.StatusBadGateway, api.ErrorResponse{Error: "Charge failed"})
		default:
			logger.Error("charge failed", "payment_id", id, "error", err)
			c.JSON(http.StatusInternalServerError, api.ErrorResponse{Error: "Charge failed"})
		}
		return
	}

	c.JSON(http.StatusOK, p)
}

// BookingPayments godoc
// @Summary      Payments of a booking
// @Description  Every payment row of the booking with its provider state, for support.
// @Tags         payments
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      int  true  "Booking ID"
// @Success      200  {object}  BookingPayments
// @Failure      400  {object}  api.ErrorResponse
// @Failure      404  {object}  api.ErrorResponse
// @Router       /admin/bookings/{id}/payments [get]
func (h *Handler) BookingPayments(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: "Invalid booking ID"})
		return
	}

	res, err := h.service.ListForBooking(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, booking.ErrBookingNotFound) {
			c.JSON(http.StatusNotFound, api.ErrorResponse{Error: "Booking not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, api.ErrorResponse{Error: "Database error"})
		return
	}

	c.JSON(http.StatusOK, res)
}

// Products godoc
// @Summary      Stripe products
// @Description  Active products with their active prices from the organizer's Stripe account.
// @Tags         payments
// @Security     BearerAuth
// @Produce      json
// @Param        credential_id  query     int  false  "Credential ID"
// @Param        team_id        query     int  false  "Team ID"
// @Success      200  {object}  ProductsResponse
// @Failure      400  {object}  api.ErrorResponse
// @Failure      401  {object}  api.ErrorResponse
// @Failure      404  {object}  api.ErrorResponse
// @Failure      502  {object}  api.ErrorResponse
// @Router       /integrations/stripe/products [get]
func (h *Handler) Products(c *gin.Context) {
	userID, exists := auth.GetUserID(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, api.ErrorResponse{Error: "User not authenticated"})
		return
	}

	rc := credential.Context{UserID: userID}
	for param, dst := range map[string]**int{"credential_id": &rc.CredentialID, "team_id": &rc.TeamID} {
		raw := c.Query(param)
		if raw == "" {
			continue
		}
		v, err := strconv.Atoi(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: "Invalid " + param})
			return
		}
		*dst = &v
	}

	products, err := h.service.Products(c.Request.Context(), rc)
	if err != nil {
		switch {
		case errors.Is(err, credential.ErrNotConnected):
			c.JSON(http.StatusNotFound, api.ErrorResponse{Error: "Stripe not connected"})
		case errors.Is(err, ErrProviderUnavailable):
			c.JSON(http.StatusBadGateway, api.ErrorResponse{Error: "Failed to fetch products"})
		default:
			logger.Error("failed to fetch products", "user_id", userID, "error", err)
			c.JSON(http.StatusInternalServerError, api.ErrorResponse{Error: "Failed to fetch products"})
		}
		return
	}

	c.JSON(http.StatusOK, ProductsResponse{Products: products})
}
