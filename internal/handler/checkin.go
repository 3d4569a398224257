package handler

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/event-gate/internal/checkin"
	"github.com/iliyamo/event-gate/internal/middleware"
)

// CheckInHandler serves gate devices.
type CheckInHandler struct {
	Coordinator *checkin.Coordinator
}

func NewCheckInHandler(coordinator *checkin.Coordinator) *CheckInHandler {
	return &CheckInHandler{Coordinator: coordinator}
}

type checkInReq struct {
	Payload      string `json:"payload"`
	TicketID     string `json:"ticket_id"`
	UserID       uint64 `json:"user_id"`
	TicketNumber string `json:"ticket_number"`
	Gate         string `json:"gate"`
}

// CheckIn handles POST /v1/events/:id/check-in. Duplicate scans answer
// 200 with outcome ALREADY_CHECKED_IN and the original time.
func (h *CheckInHandler) CheckIn(c echo.Context) error {
	eventID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || eventID == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid event id"})
	}
	var req checkInReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	operator, _ := middleware.Principal(c)

	res := h.Coordinator.CheckIn(c.Request().Context(), checkin.Request{
		EventID:      eventID,
		Payload:      req.Payload,
		TicketID:     req.TicketID,
		UserID:       req.UserID,
		TicketNumber: req.TicketNumber,
		Gate:         req.Gate,
		Operator:     operator.Subject,
	})
	return c.JSON(checkInStatus(res), res)
}

func checkInStatus(res checkin.Result) int {
	if res.Outcome != checkin.OutcomeError {
		return http.StatusOK
	}
	switch res.Kind {
	case checkin.KindMalformedPayload:
		return http.StatusBadRequest
	case checkin.KindNotFound:
		return http.StatusNotFound
	case checkin.KindEventMismatch, checkin.KindNotRedeemable:
		return http.StatusConflict
	default:
		return http.StatusServiceUnavailable
	}
}
