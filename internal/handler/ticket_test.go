package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/event-gate/internal/checkin"
	"github.com/iliyamo/event-gate/internal/middleware"
	"github.com/iliyamo/event-gate/internal/model"
	"github.com/iliyamo/event-gate/internal/testutil"
	"github.com/iliyamo/event-gate/internal/ticket"
)

type ticketFixture struct {
	h *TicketHandler
	e *echo.Echo
}

func newTicketFixture() *ticketFixture {
	log := testutil.NoopLogger()
	svc := ticket.NewService(checkin.NewMemoryStore(), nil, log, "TICKET", 15*time.Minute)
	return &ticketFixture{h: NewTicketHandler(svc, log), e: echo.New()}
}

func (f *ticketFixture) call(h echo.HandlerFunc, userID uint64, id, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := f.e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(id)
	middleware.SetPrincipal(c, &model.Principal{UserID: userID, Role: model.RoleCustomer})
	_ = h(c)
	return rec
}

func decodeTicket(t *testing.T, rec *httptest.ResponseRecorder) ticketResp {
	t.Helper()
	var resp ticketResp
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestTicketLifecycle(t *testing.T) {
	f := newTicketFixture()

	rec := f.call(f.h.Reserve, 7, "42", `{"ticket_type_id":3}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	tk := decodeTicket(t, rec)
	assert.Equal(t, model.TicketReserved, tk.Status)
	assert.Equal(t, uint64(42), tk.EventID)
	assert.Equal(t, "TICKET:"+tk.ID+":42:7", tk.QRPayload)
	require.NotNil(t, tk.HoldExpires)

	assert.Equal(t, http.StatusNotFound, f.call(f.h.Get, 8, tk.ID, "").Code)
	assert.Equal(t, http.StatusBadRequest, f.call(f.h.Pay, 7, tk.ID, `{}`).Code)

	rec = f.call(f.h.Pay, 7, tk.ID, `{"payment_ref":"pay_1"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	paid := decodeTicket(t, rec)
	assert.Equal(t, model.TicketPaid, paid.Status)
	assert.Nil(t, paid.HoldExpires)

	rec = f.call(f.h.Cancel, 7, tk.ID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, model.TicketCancelled, decodeTicket(t, rec).Status)

	assert.Equal(t, http.StatusConflict, f.call(f.h.Pay, 7, tk.ID, `{"payment_ref":"pay_2"}`).Code)
}

func TestReserve_InvalidEvent(t *testing.T) {
	f := newTicketFixture()
	assert.Equal(t, http.StatusBadRequest, f.call(f.h.Reserve, 7, "abc", `{}`).Code)
	assert.Equal(t, http.StatusBadRequest, f.call(f.h.Reserve, 7, "0", `{}`).Code)
}
