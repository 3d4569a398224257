package handler

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/event-gate/internal/logger"
	"github.com/iliyamo/event-gate/internal/middleware"
	"github.com/iliyamo/event-gate/internal/model"
	"github.com/iliyamo/event-gate/internal/ticket"
)

// TicketHandler lets customers reserve, read and cancel their tickets,
// and lets the payment side confirm payments. All methods assume
// RequireRole has already run.
type TicketHandler struct {
	Tickets *ticket.Service
	Logger  *logger.Logger
}

func NewTicketHandler(tickets *ticket.Service, log *logger.Logger) *TicketHandler {
	return &TicketHandler{Tickets: tickets, Logger: log}
}

type ticketResp struct {
	ID           string             `json:"id"`
	EventID      uint64             `json:"event_id"`
	TicketTypeID uint64             `json:"ticket_type_id,omitempty"`
	Number       string             `json:"ticket_number"`
	QRPayload    string             `json:"qr_payload"`
	Status       model.TicketStatus `json:"status"`
	PaymentRef   *string            `json:"payment_ref,omitempty"`
	CheckedInAt  *time.Time         `json:"checked_in_at,omitempty"`
	HoldExpires  *time.Time         `json:"hold_expires_at,omitempty"`
	CreatedAt    time.Time          `json:"created_at"`
}

func (h *TicketHandler) toResp(t model.Ticket) ticketResp {
	r := ticketResp{
		ID:           t.ID,
		EventID:      t.EventID,
		TicketTypeID: t.TicketTypeID,
		Number:       t.Number,
		QRPayload:    t.QRPayload,
		Status:       t.Status,
		PaymentRef:   t.PaymentRef,
		CheckedInAt:  t.CheckedInAt,
		CreatedAt:    t.CreatedAt,
	}
	if t.Status == model.TicketReserved {
		exp := t.CreatedAt.Add(h.Tickets.HoldTTL())
		r.HoldExpires = &exp
	}
	return r
}

// Reserve handles POST /v1/events/:id/tickets.
func (h *TicketHandler) Reserve(c echo.Context) error {
	p, _ := middleware.Principal(c)
	eventID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || eventID == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid event id"})
	}
	var body struct {
		TicketTypeID uint64 `json:"ticket_type_id"`
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	t, err := h.Tickets.Reserve(c.Request().Context(), p.UserID, eventID, body.TicketTypeID)
	if err != nil {
		h.Logger.Error("reserve failed", "event_id", eventID, "error", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to reserve ticket"})
	}
	return c.JSON(http.StatusCreated, h.toResp(t))
}

// Get handles GET /v1/tickets/:id.
func (h *TicketHandler) Get(c echo.Context) error {
	p, _ := middleware.Principal(c)
	t, err := h.Tickets.Get(c.Request().Context(), c.Param("id"), p.UserID)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, h.toResp(t))
}

// Pay handles POST /v1/tickets/:id/pay. The caller confirms a payment
// that settled elsewhere; the route is closed to ticket owners.
func (h *TicketHandler) Pay(c echo.Context) error {
	var body struct {
		PaymentRef string `json:"payment_ref"`
	}
	if err := c.Bind(&body); err != nil || body.PaymentRef == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "payment_ref is required"})
	}
	t, err := h.Tickets.ConfirmPayment(c.Request().Context(), c.Param("id"), body.PaymentRef)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, h.toResp(t))
}

// Cancel handles DELETE /v1/tickets/:id. The ticket is kept with status
// CANCELLED.
func (h *TicketHandler) Cancel(c echo.Context) error {
	p, _ := middleware.Principal(c)
	t, err := h.Tickets.Cancel(c.Request().Context(), c.Param("id"), p.UserID)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, h.toResp(t))
}

func (h *TicketHandler) fail(c echo.Context, err error) error {
	switch {
	case errors.Is(err, model.ErrTicketNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "ticket not found"})
	case errors.Is(err, ticket.ErrInvalidTransition):
		return c.JSON(http.StatusConflict, echo.Map{"error": err.Error()})
	case errors.Is(err, ticket.ErrConflict):
		return c.JSON(http.StatusConflict, echo.Map{"error": "ticket is being updated, retry"})
	}
	h.Logger.Error("ticket operation failed", "ticket_id", c.Param("id"), "error", err)
	return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
}
