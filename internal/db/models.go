package db

import "time"

// Notification kinds and statuses. The delivery worker drains pending rows
// and flips them to sent; nothing in this service ever blocks on delivery.
const (
	NotificationEmail = "email"
	NotificationSMS   = "sms"

	StatusPending = "pending"
	StatusSent    = "sent"
)

// Payment statuses. Processed guards against double fulfilment when the
// webhook and the reconciler race on the same payment.
const (
	PaymentPending   = "pending"
	PaymentCompleted = "completed"
)

type Booking struct {
	ID            string
	Name          string
	VehicleNumber string // stored normalized: upper-cased, trimmed
	Location      string
	VehicleType   string
	ChargingType  string
	Hour          string // "HH:00" grid label
	UserID        string
	UserEmail     string
	PaymentID     string // empty until a payment is started
	CreatedAt     time.Time
}

type QueueEntry struct {
	ID                string
	Position          int64
	UserID            string
	UserEmail         string
	PhoneNumber       string
	PreferredLocation string
	VehicleType       string
	ChargingType      string
	PreferredTime     string // "H:MM - H:MM", empty means any time
	CreatedAt         time.Time
}

type Notification struct {
	ID        string
	Kind      string
	Recipient string
	Subject   string
	Message   string
	Status    string
	CreatedAt time.Time
	SentAt    *time.Time
}

type Payment struct {
	ID              string
	BookingID       string
	AmountRupees    int
	Currency        string
	Status          string
	Processed       bool
	StripeSessionID string
	CreatedAt       time.Time
}
