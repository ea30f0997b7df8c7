package web

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/avstrong/staybook/internal/booking"
)

const headerIdempotencyKey = "Idempotency-Key"

// decode reads a JSON body into dst and runs its validate tags. It writes the
// error response itself and reports whether the handler may continue.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", err.Error())

		return false
	}

	if err := s.validate.Struct(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:   "validation_failed",
			Message: "request is invalid",
			Details: fieldErrors(err),
		})

		return false
	}

	return true
}

func (s *Server) quoteHandler(w http.ResponseWriter, r *http.Request) {
	var stay booking.StayRequest

	if !s.decode(w, r, &stay) {
		return
	}

	cost, err := s.bManager.Quote(r.Context(), stay)
	if err != nil {
		s.writeDomainError(w, r, err)

		return
	}

	writeJSON(w, http.StatusOK, cost)
}

func (s *Server) createBookingHandler(w http.ResponseWriter, r *http.Request) {
	idempotencyKey := r.Header.Get(headerIdempotencyKey)
	if idempotencyKey == "" {
		writeError(w, http.StatusBadRequest, "missing_idempotency_key", "Idempotency-Key header is missing")

		return
	}

	var req createBookingRequest

	if !s.decode(w, r, &req) {
		return
	}

	ctx := booking.NewContextWithIdempotencyKey(r.Context(), idempotencyKey)

	out, err := s.bManager.CreateBooking(ctx, &booking.CreateInput{
		Stay:          req.Stay,
		GuestID:       req.GuestID,
		PaymentMethod: booking.PaymentMethod(req.PaymentMethod),
	})
	if err != nil {
		s.writeDomainError(w, r, err)

		return
	}

	writeJSON(w, http.StatusCreated, out)
}

func (s *Server) getBookingHandler(w http.ResponseWriter, r *http.Request) {
	b, err := s.bManager.GetBooking(r.Context(), chi.URLParam(r, "number"))
	if err != nil {
		s.writeDomainError(w, r, err)

		return
	}

	writeJSON(w, http.StatusOK, b)
}

func (s *Server) listEventsHandler(w http.ResponseWriter, r *http.Request) {
	events, err := s.bManager.ListEvents(r.Context(), chi.URLParam(r, "number"))
	if err != nil {
		s.writeDomainError(w, r, err)

		return
	}

	writeJSON(w, http.StatusOK, events)
}

func (s *Server) amendStayHandler(w http.ResponseWriter, r *http.Request) {
	var stay booking.StayRequest

	if !s.decode(w, r, &stay) {
		return
	}

	b, err := s.bManager.AmendStay(r.Context(), chi.URLParam(r, "number"), stay)
	if err != nil {
		s.writeDomainError(w, r, err)

		return
	}

	writeJSON(w, http.StatusOK, b)
}

func (s *Server) updateStatusHandler(w http.ResponseWriter, r *http.Request) {
	var body statusRequest

	if !s.decode(w, r, &body) {
		return
	}

	req, err := body.toDomain(booking.ActorFromContext(r.Context()))
	if err != nil {
		s.writeDomainError(w, r, err)

		return
	}

	result, err := s.bManager.UpdateStatus(r.Context(), chi.URLParam(r, "number"), req)
	if err != nil {
		s.writeDomainError(w, r, err)

		return
	}

	writeJSON(w, http.StatusOK, result)
}

func (s *Server) initiatePaymentHandler(w http.ResponseWriter, r *http.Request) {
	var body paymentRequest

	if !s.decode(w, r, &body) {
		return
	}

	b, err := s.bManager.GetBooking(r.Context(), chi.URLParam(r, "number"))
	if err != nil {
		s.writeDomainError(w, r, err)

		return
	}

	result, err := s.payments.InitiatePayment(r.Context(), b, booking.PaymentRequest{
		Method:            booking.PaymentMethod(body.Method),
		TransferReference: body.TransferReference,
		Actor:             booking.ActorFromContext(r.Context()),
	})
	if err != nil {
		s.writeDomainError(w, r, err)

		return
	}

	status := http.StatusOK
	if result.AwaitingApproval {
		status = http.StatusAccepted
	}

	writeJSON(w, status, result)
}

func (s *Server) abandonPaymentHandler(w http.ResponseWriter, r *http.Request) {
	b, err := s.payments.AbandonPayment(r.Context(), chi.URLParam(r, "number"))
	if err != nil {
		s.writeDomainError(w, r, err)

		return
	}

	writeJSON(w, http.StatusOK, b)
}

func (s *Server) paymentCallbackHandler(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_form", err.Error())

		return
	}

	form := callbackForm{
		MerchantID:    r.PostForm.Get("merchant_id"),
		OrderID:       r.PostForm.Get("order_id"),
		TransactionID: r.PostForm.Get("transaction_id"),
		Status:        r.PostForm.Get("status"),
		Signature:     r.PostForm.Get("signature"),
	}

	if err := s.validate.Struct(form); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:   "validation_failed",
			Message: "callback is invalid",
			Details: fieldErrors(err),
		})

		return
	}

	b, err := s.payments.HandleCallback(r.Context(), form.toDomain())
	if errors.Is(err, booking.ErrDuplicateCallback) {
		writeJSON(w, http.StatusOK, b)

		return
	}

	if err != nil {
		s.writeDomainError(w, r, err)

		return
	}

	writeJSON(w, http.StatusOK, b)
}

func (s *Server) livenessHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) addRoutes(r chi.Router) {
	r.Use(middleware.RequestID)
	r.Use(s.tracingMiddleware())
	r.Use(s.loggerMiddleware())
	r.Use(s.recoverMiddleware())
	r.Use(s.actorMiddleware())

	r.Get(s.conf.LivenessEndpoint, s.livenessHandler)

	r.Post("/api/quotes/v1", s.quoteHandler)

	r.Route("/api/bookings/v1", func(r chi.Router) {
		r.Post("/", s.createBookingHandler)
		r.Get("/{number}", s.getBookingHandler)
		r.Get("/{number}/events", s.listEventsHandler)
		r.Patch("/{number}/stay", s.amendStayHandler)
		r.Post("/{number}/status", s.updateStatusHandler)
		r.Post("/{number}/payments", s.initiatePaymentHandler)
		r.Delete("/{number}/payments", s.abandonPaymentHandler)
	})

	r.Post("/api/payments/v1/callback", s.paymentCallbackHandler)
}
