package entities

type PaymentResponse struct {
	PaymentID    string `json:"payment_id"`
	BookingID    string `json:"booking_id"`
	AmountRupees int    `json:"amount_rupees"`
	Currency     string `json:"currency"`
	CheckoutURL  string `json:"checkout_url"`
}
