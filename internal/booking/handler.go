package booking

import (
	"errors"
	"net/http"
	"strconv"

	"calpay/internal/api"
	"calpay/internal/auth"
	"calpay/internal/credential"
	"calpay/internal/logger"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

// Create godoc
// @Summary      Create booking
// @Description  Books an event type. Paid event types return a checkout link.
// @Tags         bookings
// @Accept       json
// @Produce      json
// @Param        request  body      CreateRequest  true  "Booking request"
// @Success      201      {object}  CreateResult
// @Failure      400      {object}  api.ErrorResponse
// @Failure      402      {object}  api.ErrorResponse
// @Failure      404      {object}  api.ErrorResponse
// @Failure      409      {object}  api.ErrorResponse
// @Router       /api/bookings [post]
func (h *Handler) Create(c *gin.Context) {
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: "Invalid request body"})
		return
	}

	if errs := api.ValidateStruct(req); len(errs) > 0 {
		api.RespondWithValidationErrors(c, errs)
		return
	}

	result, err := h.service.Create(c.Request.Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, ErrEventTypeNotFound):
			c.JSON(http.StatusNotFound, api.ErrorResponse{Error: "Event type not found"})
		case errors.Is(err, ErrStartInPast):
			c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: "Cannot book a time in the past"})
		case errors.Is(err, ErrSlotTaken):
			c.JSON(http.StatusConflict, api.ErrorResponse{Error: "Time slot already booked"})
		case errors.Is(err, credential.ErrNotConnected):
			c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: "Payment not connected"})
		case errors.Is(err, ErrPaymentNotCreated):
			c.JSON(http.StatusPaymentRequired, api.ErrorResponse{Error: "Payment could not be created"})
		default:
			logger.Error("failed to create booking", "event_type_id", req.EventTypeID, "error", err)
			c.JSON(http.StatusInternalServerError, api.ErrorResponse{Error: "Failed to create booking"})
		}
		return
	}

	c.JSON(http.StatusCreated, result)
}

// GetByUID godoc
// @Summary      Get booking
// @Tags         bookings
// @Produce      json
// @Param        uid  path      string  true  "Booking UID"
// @Success      200  {object}  Booking
// @Failure      404  {object}  api.ErrorResponse
// @Router       /api/bookings/{uid} [get]
func (h *Handler) GetByUID(c *gin.Context) {
	b, err := h.service.GetByUID(c.Request.Context(), c.Param("uid"))
	if err != nil {
		if errors.Is(err, ErrBookingNotFound) {
			c.JSON(http.StatusNotFound, api.ErrorResponse{Error: "Booking not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, api.ErrorResponse{Error: "Database error"})
		return
	}

	c.JSON(http.StatusOK, b)
}

func (h *Handler) ListMine(c *gin.Context) {
	userID, exists := auth.GetUserID(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, api.ErrorResponse{Error: "User not authenticated"})
		return
	}

	bookings, err := h.service.ListForOrganizer(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, api.ErrorResponse{Error: "Database error"})
		return
	}
	if bookings == nil {
		bookings = []Booking{}
	}

	c.JSON(http.StatusOK, bookings)
}

// Cancel godoc
// @Summary      Cancel booking
// @Tags         bookings
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      int  true  "Booking ID"
// @Success      200  {object}  CancelBookingResponse
// @Router       /bookings/{id}/cancel [post]
func (h *Handler) Cancel(c *gin.Context) {
	userID, bookingID, ok := organizerAndBooking(c)
	if !ok {
		return
	}

	var req CancelRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: "Invalid request body"})
			return
		}
		if errs := api.ValidateStruct(req); len(errs) > 0 {
			api.RespondWithValidationErrors(c, errs)
			return
		}
	}

	if err := h.service.Cancel(c.Request.Context(), userID, bookingID, req.Reason); err != nil {
		respondOwnedError(c, err)
		return
	}

	c.JSON(http.StatusOK, CancelBookingResponse{Message: "Booking cancelled successfully"})
}

func (h *Handler) Confirm(c *gin.Context) {
	userID, bookingID, ok := organizerAndBooking(c)
	if !ok {
		return
	}

	if err := h.service.Confirm(c.Request.Context(), userID, bookingID); err != nil {
		respondOwnedError(c, err)
		return
	}

	c.JSON(http.StatusOK, api.MessageResponse{Message: "Booking confirmed"})
}

func organizerAndBooking(c *gin.Context) (int, int, bool) {
	userID, exists := auth.GetUserID(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, api.ErrorResponse{Error: "User not authenticated"})
		return 0, 0, false
	}

	bookingID, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: "Invalid booking ID"})
		return 0, 0, false
	}

	return userID, bookingID, true
}

func respondOwnedError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrBookingNotFound):
		c.JSON(http.StatusNotFound, api.ErrorResponse{Error: "Booking not found"})
	case errors.Is(err, ErrForbidden):
		c.JSON(http.StatusForbidden, api.ErrorResponse{Error: "Not your booking"})
	case errors.Is(err, ErrAlreadyCancelled):
		c.JSON(http.StatusConflict, api.ErrorResponse{Error: "Booking already cancelled"})
	case errors.Is(err, ErrCannotConfirm):
		c.JSON(http.StatusConflict, api.ErrorResponse{Error: "Booking cannot be confirmed"})
	default:
		logger.Error("booking update failed", "error", err)
		c.JSON(http.StatusInternalServerError, api.ErrorResponse{Error: "Database error"})
	}
}
