package api

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"chargeslot/internal/entities"
	apperrors "chargeslot/internal/errors"
	"chargeslot/internal/service"
)

type AdminHandler struct {
	Service *service.BookingService
}

func NewAdminHandler(svc *service.BookingService) *AdminHandler {
	return &AdminHandler{Service: svc}
}

func (h *AdminHandler) ListBookings(w http.ResponseWriter, r *http.Request) {
	location := r.URL.Query().Get("location")
	vehicleType := r.URL.Query().Get("vehicle_type")
	bookings, err := h.Service.Bookings.ListAll(r.Context(), location, vehicleType)
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

func (h *AdminHandler) ListQueue(w http.ResponseWriter, r *http.Request) {
	entries, err := h.Service.Queue.ListAll(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (h *AdminHandler) SetSlotAvailability(w http.ResponseWriter, r *http.Request) {
	var req SetSlotRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperrors.InvalidInputf("invalid request body"))
		return
	}
	err := h.Service.SetSlotAvailability(r.Context(), req.Location, req.VehicleType, req.ChargingType, req.Hour, req.Available)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Slot updated"})
}

// FulfilBooking marks a booking as completed: the record goes away, the
// slot frees up and the waitlist is scanned, same as a cancellation but
// without an owner check.
func (h *AdminHandler) FulfilBooking(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := h.Service.Fulfil(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Booking fulfilled"})
}
