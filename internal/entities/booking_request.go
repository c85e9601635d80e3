package entities

type BookingRequest struct {
	Name          string `json:"name"`
	VehicleNumber string `json:"vehicle_number"`
	Location      string `json:"location"`
	VehicleType   string `json:"vehicle_type"`
	ChargingType  string `json:"charging_type"`
	BookingTime   string `json:"booking_time"` // "9:00 - 10:00"
}

type BookingResponse struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	VehicleNumber string `json:"vehicle_number"`
	Location      string `json:"location"`
	VehicleType   string `json:"vehicle_type"`
	ChargingType  string `json:"charging_type"`
	BookingTime   string `json:"booking_time"`
	UserEmail     string `json:"user_email"`
	PaymentID     string `json:"payment_id,omitempty"`
	BillRupees    int    `json:"bill_rupees"`
}
