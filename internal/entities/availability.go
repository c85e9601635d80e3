package entities

// Availability status labels shown to callers. Unknown means the key is
// outside the configured grid and cannot be verified.
const (
	StatusAvailable = "Available"
	StatusBooked    = "Booked"
	StatusUnknown   = "Unknown"
)

type AvailabilityRequest struct {
	Location     string `json:"location"`
	VehicleType  string `json:"vehicle_type"`
	ChargingType string `json:"charging_type"`
	BookingTime  string `json:"booking_time"`
}

type AvailabilityResponse struct {
	Location     string `json:"location"`
	VehicleType  string `json:"vehicle_type"`
	ChargingType string `json:"charging_type"`
	Hour         string `json:"hour"`
	Status       string `json:"status"`
}

// SlotTree is the full grid snapshot as nested maps:
// location -> vehicle type -> charging type -> hour -> available.
type SlotTree map[string]map[string]map[string]map[string]bool
