package entities

type WaitlistRequest struct {
	PhoneNumber       string `json:"phone_number"`
	PreferredLocation string `json:"preferred_location"`
	VehicleType       string `json:"vehicle_type"`
	ChargingType      string `json:"charging_type"`
	PreferredTime     string `json:"preferred_time,omitempty"` // empty means any time
}

type WaitlistResponse struct {
	ID                string `json:"id"`
	PreferredLocation string `json:"preferred_location"`
	VehicleType       string `json:"vehicle_type"`
	ChargingType      string `json:"charging_type"`
	PreferredTime     string `json:"preferred_time,omitempty"`
	Message           string `json:"message"`
}
