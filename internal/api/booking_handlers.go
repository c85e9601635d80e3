package api

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"chargeslot/internal/auth"
	"chargeslot/internal/entities"
	apperrors "chargeslot/internal/errors"
	"chargeslot/internal/service"
)

type BookingHandler struct {
	Service  *service.BookingService
	Payments *service.PaymentService
}

func NewBookingHandler(svc *service.BookingService, payments *service.PaymentService) *BookingHandler {
	return &BookingHandler{Service: svc, Payments: payments}
}

func (h *BookingHandler) CheckAvailability(w http.ResponseWriter, r *http.Request) {
	var req entities.AvailabilityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperrors.InvalidInputf("invalid request body"))
		return
	}
	resp, err := h.Service.CheckAvailability(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *BookingHandler) ListSlots(w http.ResponseWriter, r *http.Request) {
	tree, err := h.Service.SlotTree(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tree)
}

func (h *BookingHandler) SlotBookingCount(w http.ResponseWriter, r *http.Request) {
	location := r.URL.Query().Get("location")
	bookingTime := r.URL.Query().Get("booking_time")
	count, err := h.Service.CountBookings(r.Context(), location, bookingTime)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, SlotCountResponse{
		Location:    location,
		BookingTime: bookingTime,
		Count:       count,
	})
}

func (h *BookingHandler) CreateBooking(w http.ResponseWriter, r *http.Request) {
	var req entities.BookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperrors.InvalidInputf("invalid request body"))
		return
	}
	b, err := h.Service.Book(r.Context(), auth.UserID(r), auth.UserEmail(r), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, service.BookingResponse(b))
}

func (h *BookingHandler) ListBookings(w http.ResponseWriter, r *http.Request) {
	location := r.URL.Query().Get("location")
	bookings, err := h.Service.ListBookings(r.Context(), auth.UserID(r), location)
	if err != nil {
		writeError(w, err)
		return
	}
	resp := make([]entities.BookingResponse, 0, len(bookings))
	for i := range bookings {
		resp = append(resp, service.BookingResponse(&bookings[i]))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *BookingHandler) CancelBooking(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := h.Service.Cancel(r.Context(), id, auth.UserID(r)); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Booking cancelled."})
}

func (h *BookingHandler) StartPayment(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	resp, err := h.Payments.StartPayment(r.Context(), id, auth.UserID(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *BookingHandler) RequestWaitlist(w http.ResponseWriter, r *http.Request) {
	var req entities.WaitlistRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperrors.InvalidInputf("invalid request body"))
		return
	}
	entry, err := h.Service.RequestWaitlist(r.Context(), auth.UserID(r), auth.UserEmail(r), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, entities.WaitlistResponse{
		ID:                entry.ID,
		PreferredLocation: entry.PreferredLocation,
		VehicleType:       entry.VehicleType,
		ChargingType:      entry.ChargingType,
		PreferredTime:     entry.PreferredTime,
		Message:           "You are on the waitlist. We will notify you when a slot frees up.",
	})
}
