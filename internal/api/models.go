package api

import (
	"encoding/json"
	"net/http"

	apperrors "chargeslot/internal/errors"
)

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginResponse struct {
	Token string `json:"token"`
}

type SetSlotRequest struct {
	Location     string `json:"location"`
	VehicleType  string `json:"vehicle_type"`
	ChargingType string `json:"charging_type"`
	Hour         string `json:"hour"`
	Available    bool   `json:"available"`
}

type SlotCountResponse struct {
	Location    string `json:"location"`
	BookingTime string `json:"booking_time"`
	Count       int    `json:"count"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError maps the error taxonomy to HTTP statuses. Expected outcomes
// (duplicate vehicle, cap, unavailable slot) surface with their message;
// everything else hides behind a generic body.
func writeError(w http.ResponseWriter, err error) {
	status := apperrors.HTTPStatus(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		message = "internal error"
	}
	writeJSON(w, status, map[string]string{"error": message})
}
