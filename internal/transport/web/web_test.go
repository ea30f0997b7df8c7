package web_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avstrong/staybook/internal/booking"
	"github.com/avstrong/staybook/internal/logger"
	"github.com/avstrong/staybook/internal/payment"
	"github.com/avstrong/staybook/internal/payment/dedup"
	"github.com/avstrong/staybook/internal/pricing"
	"github.com/avstrong/staybook/internal/storage/memory"
	"github.com/avstrong/staybook/internal/transport/web"
)

const stayBody = `{
	"check_in": "2025-03-01T00:00:00Z",
	"check_out": "2025-03-04T00:00:00Z",
	"guests": 2,
	"room_id": "deluxe-101",
	"food": {"kind": "flat", "plan": "Breakfast"}
}`

var gatewayConf = payment.HostedConfig{
	ActionURL:  "https://pay.example.test/checkout",
	MerchantID: "M-100",
	Secret:     "s3cret",
}

type testServer struct {
	handler http.Handler
	gateway *payment.Hosted
}

func newServer(t *testing.T) *testServer {
	t.Helper()

	store := memory.New(memory.Config{L: logger.Nop()})

	require.NoError(t, store.SaveRooms(context.Background(), []*booking.Room{
		{ID: "deluxe-101", Name: "Deluxe", RatePerNight: 25000, MaxCapacity: 3},
	}))

	manager := booking.New(logger.Nop(), booking.Config{
		HoldDuration: 30 * time.Minute,
		Now:          func() time.Time { return time.Date(2025, 2, 20, 9, 30, 0, 0, time.UTC) },
	}, store, store, pricing.New(pricing.DefaultConfig()))

	gw := payment.NewHosted(gatewayConf)
	coordinator := payment.NewCoordinator(logger.Nop(), payment.DefaultConfig(), manager, gw, dedup.NewMemory(time.Hour))
	manager.UsePayments(coordinator)

	srv, err := web.New(context.Background(), web.Conf{
		L:                 logger.Nop(),
		Host:              "127.0.0.1",
		Port:              "0",
		ReadHeaderTimeout: time.Second,
		LivenessEndpoint:  "/health",
	}, manager, coordinator)
	require.NoError(t, err)

	return &testServer{handler: srv.Handler(), gateway: gw}
}

func (s *testServer) do(t *testing.T, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	for k, v := range headers {
		req.Header.Set(k, v)
	}

	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)

	return rec
}

func (s *testServer) create(t *testing.T, key, method string) *booking.Booking {
	t.Helper()

	rec := s.do(t, http.MethodPost, "/api/bookings/v1/",
		`{"guest_id": "guest-1", "payment_method": "`+method+`", "stay": `+stayBody+`}`,
		map[string]string{"Idempotency-Key": key})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var b booking.Booking
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &b))

	return &b
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) web.ErrorResponse {
	t.Helper()

	var resp web.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

	return resp
}

func TestLiveness(t *testing.T) {
	s := newServer(t)

	rec := s.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestQuote(t *testing.T) {
	s := newServer(t)

	rec := s.do(t, http.MethodPost, "/api/quotes/v1", stayBody, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var cost booking.CostBreakdown
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &cost))
	assert.InDelta(t, 102480, cost.Total, 0.001)
	assert.Len(t, cost.LineItems, 4)
}

func TestCreateBooking(t *testing.T) {
	s := newServer(t)

	b := s.create(t, "key-1", "card")
	assert.Equal(t, booking.StatusPendingApproval, b.Status)
	assert.InDelta(t, 102480, b.Cost.Total, 0.001)
	assert.Equal(t, booking.FlatPlan{Plan: booking.FoodPlanBreakfast}, b.Stay.Food)

	replayed := s.create(t, "key-1", "card")
	assert.Equal(t, b.Number, replayed.Number)

	rec := s.do(t, http.MethodGet, "/api/bookings/v1/"+b.Number, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestCreateBookingErrors(t *testing.T) {
	s := newServer(t)

	rec := s.do(t, http.MethodPost, "/api/bookings/v1/", `{"guest_id": "guest-1"}`, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "missing_idempotency_key", decodeError(t, rec).Error)

	rec = s.do(t, http.MethodPost, "/api/bookings/v1/", `{"guest_id": `, map[string]string{"Idempotency-Key": "key-1"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_json", decodeError(t, rec).Error)

	rec = s.do(t, http.MethodPost, "/api/bookings/v1/",
		`{"payment_method": "card", "stay": {"room_id": "deluxe-101", "guests": 0}}`,
		map[string]string{"Idempotency-Key": "key-2"})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	resp := decodeError(t, rec)
	assert.Equal(t, "validation_failed", resp.Error)
	assert.Equal(t, []string{
		booking.MsgCheckInRequired,
		booking.MsgCheckOutRequired,
		booking.MsgGuestsBelowMinimum,
		"Guest is required",
	}, resp.Details)

	s.create(t, "key-3", "cash")

	rec = s.do(t, http.MethodPost, "/api/bookings/v1/",
		`{"guest_id": "guest-2", "payment_method": "cash", "stay": `+stayBody+`}`,
		map[string]string{"Idempotency-Key": "key-4"})
	require.Equal(t, http.StatusPreconditionFailed, rec.Code)
	assert.Equal(t, "unavailable", decodeError(t, rec).Error)
}

func TestGetBookingNotFound(t *testing.T) {
	s := newServer(t)

	rec := s.do(t, http.MethodGet, "/api/bookings/v1/BK-20250220-99999", "", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", decodeError(t, rec).Error)
}

func TestUpdateStatus(t *testing.T) {
	s := newServer(t)
	b := s.create(t, "key-1", "card")
	path := "/api/bookings/v1/" + b.Number + "/status"

	rec := s.do(t, http.MethodPost, path, `{}`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodPost, path, `{"target": "Bogus"}`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodPost, path, `{"target": "Cancelled", "note": "guest called"}`,
		map[string]string{"X-Actor": "admin-7"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var result booking.PaymentResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, booking.StatusCancelled, result.Booking.Status)

	rec = s.do(t, http.MethodPost, path, `{"target": "Confirmed"}`, nil)
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "invalid_transition", decodeError(t, rec).Error)

	rec = s.do(t, http.MethodGet, "/api/bookings/v1/"+b.Number+"/events", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var events []booking.StatusEvent
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &events))
	require.Len(t, events, 2)
	assert.Equal(t, "admin-7", events[1].Actor)
	assert.Equal(t, "guest called", events[1].Note)
}

func TestAmendStay(t *testing.T) {
	s := newServer(t)
	b := s.create(t, "key-1", "card")

	rec := s.do(t, http.MethodPatch, "/api/bookings/v1/"+b.Number+"/stay", `{
		"check_in": "2025-03-01T00:00:00Z",
		"check_out": "2025-03-02T00:00:00Z",
		"guests": 1
	}`, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var amended booking.Booking
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &amended))
	assert.Equal(t, 1, amended.Cost.Nights)
	assert.Equal(t, "deluxe-101", amended.RoomID)
}

func TestCardPaymentAndCallback(t *testing.T) {
	s := newServer(t)
	b := s.create(t, "key-1", "card")

	rec := s.do(t, http.MethodPost, "/api/bookings/v1/"+b.Number+"/payments", `{}`, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var result booking.PaymentResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	require.NotNil(t, result.Session)
	assert.Equal(t, gatewayConf.ActionURL, result.Session.ActionURL)
	assert.Equal(t, booking.StatusApprovedPaymentProcessing, result.Booking.Status)

	cb := payment.Callback{
		MerchantID:     gatewayConf.MerchantID,
		OrderReference: b.Number,
		TransactionID:  "tx-1",
		Outcome:        payment.OutcomeSuccess,
	}

	form := url.Values{
		"merchant_id":    {cb.MerchantID},
		"order_id":       {cb.OrderReference},
		"transaction_id": {cb.TransactionID},
		"status":         {string(cb.Outcome)},
		"signature":      {s.gateway.SignCallback(cb)},
	}

	post := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/payments/v1/callback", bytes.NewBufferString(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

		rec := httptest.NewRecorder()
		s.handler.ServeHTTP(rec, req)

		return rec
	}

	for i := 0; i < 2; i++ {
		rec = post()
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var confirmed booking.Booking
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &confirmed))
		assert.Equal(t, booking.StatusConfirmed, confirmed.Status)
		assert.Equal(t, "tx-1", confirmed.PaymentReference)
	}

	form.Set("signature", strings.Repeat("AB", 32))

	rec = post()
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	form.Set("status", "pending")

	rec = post()
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCashPaymentAwaitsApproval(t *testing.T) {
	s := newServer(t)
	b := s.create(t, "key-1", "cash")

	rec := s.do(t, http.MethodPost, "/api/bookings/v1/"+b.Number+"/payments", `{}`, nil)
	require.Equal(t, http.StatusAccepted, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/bookings/v1/"+b.Number+"/payments", `{"method": "cheque"}`, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestBankPaymentNeedsApproval(t *testing.T) {
	s := newServer(t)
	b := s.create(t, "key-1", "bank")

	rec := s.do(t, http.MethodPost, "/api/bookings/v1/"+b.Number+"/payments", `{"transfer_reference": "TRF-1"}`, nil)
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "approval_required", decodeError(t, rec).Error)
}

func TestAbandonPayment(t *testing.T) {
	s := newServer(t)
	b := s.create(t, "key-1", "card")

	rec := s.do(t, http.MethodDelete, "/api/bookings/v1/"+b.Number+"/payments", "", nil)
	require.Equal(t, http.StatusConflict, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/bookings/v1/"+b.Number+"/payments", `{}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodDelete, "/api/bookings/v1/"+b.Number+"/payments", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var pending booking.Booking
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &pending))
	assert.Equal(t, booking.StatusApprovedPaymentPending, pending.Status)
}
