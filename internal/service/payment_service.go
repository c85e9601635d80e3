package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"chargeslot/internal/db"
	"chargeslot/internal/entities"
	apperrors "chargeslot/internal/errors"
)

// PaymentStore is the payments table as the service sees it.
type PaymentStore interface {
	Create(ctx context.Context, p *db.Payment) error
	GetBySessionID(ctx context.Context, sessionID string) (*db.Payment, error)
	MarkCompleted(ctx context.Context, id string) error
	Claim(ctx context.Context, id string) (bool, error)
	ListUnprocessed(ctx context.Context, pendingOlderThan time.Duration) ([]db.Payment, error)
}

// CheckoutProvider is the slice of Stripe the payment flow needs.
type CheckoutProvider interface {
	CreateCheckoutSession(amount int64, currency, description, customerEmail string) (string, string, error)
	SessionPaid(sessionID string) (bool, error)
}

// PaymentService runs the pay-and-release path: it opens checkout sessions
// for bookings and, once a session is paid, fulfils the booking exactly
// once.
type PaymentService struct {
	Payments PaymentStore
	Stripe   CheckoutProvider
	Booking  *BookingService
}

func NewPaymentService(payments PaymentStore, provider CheckoutProvider, booking *BookingService) *PaymentService {
	return &PaymentService{Payments: payments, Stripe: provider, Booking: booking}
}

const paymentCurrency = "inr"

// Sessions younger than this are left for the webhook before the reconciler
// starts polling Stripe about them.
const reconcileAfter = 2 * time.Minute

// BillAmount is the flat tariff in rupees: two-wheelers and AC four-wheelers
// pay 40, DC four-wheelers pay 400.
func BillAmount(vehicleType, chargingType string) int {
	if vehicleType == entities.VehicleFourWheeler && chargingType == entities.ChargingDC {
		return 400
	}
	return 40
}

// StartPayment opens a checkout session for the caller's booking and
// records the pending payment. The payment reference is attached to the
// booking so a later fulfilment can be audited against it.
func (s *PaymentService) StartPayment(ctx context.Context, bookingID, ownerID string) (*entities.PaymentResponse, error) {
	b, err := s.Booking.Bookings.GetByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if ownerID != "" && b.UserID != ownerID {
		// Someone else's booking looks like no booking at all.
		return nil, apperrors.NotFoundf("booking %s", bookingID)
	}

	amount := BillAmount(b.VehicleType, b.ChargingType)
	description := fmt.Sprintf("EV charging slot %s/%s/%s at %s", b.Location, b.VehicleType, b.ChargingType, b.Hour)
	url, sessionID, err := s.Stripe.CreateCheckoutSession(int64(amount)*100, paymentCurrency, description, b.UserEmail)
	if err != nil {
		return nil, fmt.Errorf("creating checkout session: %w", err)
	}

	p := &db.Payment{
		BookingID:       b.ID,
		AmountRupees:    amount,
		Currency:        paymentCurrency,
		StripeSessionID: sessionID,
	}
	if err := s.Payments.Create(ctx, p); err != nil {
		return nil, err
	}
	if err := s.Booking.Bookings.SetPaymentID(ctx, b.ID, p.ID); err != nil {
		log.Printf("ALERT: payment %s created but not attached to booking %s: %v", p.ID, b.ID, err)
	}
	log.Printf("Payment %s (session %s) started for booking %s, Rs %d", p.ID, sessionID, b.ID, amount)

	return &entities.PaymentResponse{
		PaymentID:    p.ID,
		BookingID:    b.ID,
		AmountRupees: amount,
		Currency:     paymentCurrency,
		CheckoutURL:  url,
	}, nil
}

// CompleteBySession handles a paid checkout session reported by the Stripe
// webhook.
func (s *PaymentService) CompleteBySession(ctx context.Context, sessionID string) error {
	p, err := s.Payments.GetBySessionID(ctx, sessionID)
	if err != nil {
		return err
	}
	if err := s.Payments.MarkCompleted(ctx, p.ID); err != nil {
		return err
	}
	return s.fulfil(ctx, p)
}

// fulfil releases the paid booking's slot exactly once. The processed flag
// is the guard: the webhook and the reconciler can both land here for the
// same payment and only the claim winner fulfils.
func (s *PaymentService) fulfil(ctx context.Context, p *db.Payment) error {
	won, err := s.Payments.Claim(ctx, p.ID)
	if err != nil {
		return err
	}
	if !won {
		return nil
	}
	if err := s.Booking.Fulfil(ctx, p.BookingID); err != nil {
		if IsNotFound(err) {
			// The booking was cancelled before payment settled; nothing to
			// release.
			log.Printf("Payment %s completed but booking %s is already gone", p.ID, p.BookingID)
			return nil
		}
		return err
	}
	return nil
}

// Reconcile is the polling half of payment monitoring: it fulfils completed
// payments whose fulfilment was missed and asks Stripe about pending
// sessions old enough that their webhook has probably been lost.
func (s *PaymentService) Reconcile(ctx context.Context) error {
	payments, err := s.Payments.ListUnprocessed(ctx, reconcileAfter)
	if err != nil {
		return fmt.Errorf("listing unprocessed payments: %w", err)
	}
	for i := range payments {
		p := &payments[i]
		if p.Status == db.PaymentPending {
			paid, err := s.Stripe.SessionPaid(p.StripeSessionID)
			if err != nil {
				log.Printf("Reconciler: could not check session %s: %v", p.StripeSessionID, err)
				continue
			}
			if !paid {
				continue
			}
			if err := s.Payments.MarkCompleted(ctx, p.ID); err != nil {
				log.Printf("Reconciler: could not mark payment %s completed: %v", p.ID, err)
				continue
			}
		}
		if err := s.fulfil(ctx, p); err != nil {
			log.Printf("Reconciler: could not fulfil payment %s: %v", p.ID, err)
		}
	}
	return nil
}
