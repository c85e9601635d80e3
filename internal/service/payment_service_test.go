package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"chargeslot/internal/db"
	"chargeslot/internal/entities"
	apperrors "chargeslot/internal/errors"
)

type memPayments struct {
	mu   sync.Mutex
	rows map[string]*db.Payment
	next int
}

func newMemPayments() *memPayments {
	return &memPayments{rows: make(map[string]*db.Payment)}
}

func (m *memPayments) Create(ctx context.Context, p *db.Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.next++
	p.ID = fmt.Sprintf("p%d", m.next)
	p.Status = db.PaymentPending
	p.CreatedAt = time.Now()
	row := *p
	m.rows[p.ID] = &row
	return nil
}

func (m *memPayments) GetBySessionID(ctx context.Context, sessionID string) (*db.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, row := range m.rows {
		if row.StripeSessionID == sessionID {
			copied := *row
			return &copied, nil
		}
	}
	return nil, apperrors.NotFoundf("payment for session %s", sessionID)
}

func (m *memPayments) MarkCompleted(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if row, ok := m.rows[id]; ok && row.Status == db.PaymentPending {
		row.Status = db.PaymentCompleted
	}
	return nil
}

func (m *memPayments) Claim(ctx context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[id]
	if !ok || row.Processed {
		return false, nil
	}
	row.Processed = true
	return true, nil
}

func (m *memPayments) ListUnprocessed(ctx context.Context, pendingOlderThan time.Duration) ([]db.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []db.Payment
	for _, row := range m.rows {
		if row.Processed {
			continue
		}
		if row.Status == db.PaymentPending && time.Since(row.CreatedAt) < pendingOlderThan {
			continue
		}
		out = append(out, *row)
	}
	return out, nil
}

func (m *memPayments) age(id string, d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if row, ok := m.rows[id]; ok {
		row.CreatedAt = row.CreatedAt.Add(-d)
	}
}

type fakeStripe struct {
	mu       sync.Mutex
	sessions int
	paid     map[string]bool
	err      error
}

func (f *fakeStripe) CreateCheckoutSession(amount int64, currency, description, customerEmail string) (string, string, error) {
	if f.err != nil {
		return "", "", f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessions++
	id := fmt.Sprintf("cs_test_%d", f.sessions)
	return "https://checkout.example.com/" + id, id, nil
}

func (f *fakeStripe) SessionPaid(sessionID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.paid[sessionID], nil
}

func newPaymentFixture(t *testing.T) (*fixture, *PaymentService, *memPayments, *fakeStripe) {
	t.Helper()
	f := newFixture(t)
	payments := newMemPayments()
	provider := &fakeStripe{paid: map[string]bool{}}
	svc := NewPaymentService(payments, provider, f.svc)
	return f, svc, payments, provider
}

func TestBillAmount(t *testing.T) {
	tests := []struct {
		vehicleType  string
		chargingType string
		want         int
	}{
		{entities.VehicleTwoWheeler, entities.ChargingAC, 40},
		{entities.VehicleTwoWheeler, entities.ChargingDC, 40},
		{entities.VehicleFourWheeler, entities.ChargingAC, 40},
		{entities.VehicleFourWheeler, entities.ChargingDC, 400},
	}
	for _, tt := range tests {
		if got := BillAmount(tt.vehicleType, tt.chargingType); got != tt.want {
			t.Errorf("BillAmount(%s, %s) = %d, want %d", tt.vehicleType, tt.chargingType, got, tt.want)
		}
	}
}

func TestStartPayment(t *testing.T) {
	f, svc, _, _ := newPaymentFixture(t)
	ctx := context.Background()

	b, err := f.svc.Book(ctx, "u1", "u1@example.com", bookingReq("KL-07-AB-1234"))
	if err != nil {
		t.Fatalf("Book: %v", err)
	}
	resp, err := svc.StartPayment(ctx, b.ID, "u1")
	if err != nil {
		t.Fatalf("StartPayment: %v", err)
	}
	if resp.AmountRupees != 400 || resp.Currency != "inr" {
		t.Errorf("bill = %d %s, want 400 inr", resp.AmountRupees, resp.Currency)
	}
	if resp.CheckoutURL == "" {
		t.Error("checkout URL missing")
	}
	stored, err := f.bookings.GetByID(ctx, b.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if stored.PaymentID != resp.PaymentID {
		t.Errorf("payment id not attached to booking: %q != %q", stored.PaymentID, resp.PaymentID)
	}
}

func TestStartPaymentForeignBooking(t *testing.T) {
	f, svc, _, _ := newPaymentFixture(t)
	ctx := context.Background()

	b, err := f.svc.Book(ctx, "u1", "u1@example.com", bookingReq("KL-07-AB-1234"))
	if err != nil {
		t.Fatalf("Book: %v", err)
	}
	if _, err := svc.StartPayment(ctx, b.ID, "u2"); !errors.Is(err, apperrors.ErrNotFound) {
		t.Errorf("got %v, want ErrNotFound", err)
	}
}

func TestWebhookFulfilsBookingOnce(t *testing.T) {
	f, svc, _, _ := newPaymentFixture(t)
	ctx := context.Background()

	b, err := f.svc.Book(ctx, "u1", "u1@example.com", bookingReq("KL-07-AB-1234"))
	if err != nil {
		t.Fatalf("Book: %v", err)
	}
	if _, err := svc.StartPayment(ctx, b.ID, "u1"); err != nil {
		t.Fatalf("StartPayment: %v", err)
	}

	// The webhook and the reconciler can both see the same session; only
	// one fulfilment must happen.
	if err := svc.CompleteBySession(ctx, "cs_test_1"); err != nil {
		t.Fatalf("CompleteBySession: %v", err)
	}
	if err := svc.CompleteBySession(ctx, "cs_test_1"); err != nil {
		t.Fatalf("second CompleteBySession: %v", err)
	}
	if err := svc.Reconcile(ctx); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}

	if len(f.slots.releaseLog) != 1 {
		t.Errorf("slot released %d times, want exactly once", len(f.slots.releaseLog))
	}
	if _, err := f.bookings.GetByID(ctx, b.ID); !errors.Is(err, apperrors.ErrNotFound) {
		t.Errorf("booking should be gone after fulfilment, got %v", err)
	}
}

func TestCompleteBySessionBookingAlreadyCancelled(t *testing.T) {
	f, svc, _, _ := newPaymentFixture(t)
	ctx := context.Background()

	b, err := f.svc.Book(ctx, "u1", "u1@example.com", bookingReq("KL-07-AB-1234"))
	if err != nil {
		t.Fatalf("Book: %v", err)
	}
	if _, err := svc.StartPayment(ctx, b.ID, "u1"); err != nil {
		t.Fatalf("StartPayment: %v", err)
	}
	if err := f.svc.Cancel(ctx, b.ID, "u1"); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	// The booking is already gone; settling the payment is a no-op.
	if err := svc.CompleteBySession(ctx, "cs_test_1"); err != nil {
		t.Fatalf("CompleteBySession after cancel: %v", err)
	}
}

func TestReconcilePollsPendingSessions(t *testing.T) {
	f, svc, payments, provider := newPaymentFixture(t)
	ctx := context.Background()

	b, err := f.svc.Book(ctx, "u1", "u1@example.com", bookingReq("KL-07-AB-1234"))
	if err != nil {
		t.Fatalf("Book: %v", err)
	}
	resp, err := svc.StartPayment(ctx, b.ID, "u1")
	if err != nil {
		t.Fatalf("StartPayment: %v", err)
	}

	// Fresh pending sessions are left for the webhook.
	if err := svc.Reconcile(ctx); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if len(f.slots.releaseLog) != 0 {
		t.Fatal("young pending payment must not be fulfilled yet")
	}

	// Once old enough, the reconciler asks Stripe and fulfils paid sessions.
	payments.age(resp.PaymentID, time.Hour)
	provider.paid["cs_test_1"] = true
	if err := svc.Reconcile(ctx); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if len(f.slots.releaseLog) != 1 {
		t.Errorf("slot released %d times, want exactly once", len(f.slots.releaseLog))
	}
}

func TestReconcileUnpaidSessionStaysPending(t *testing.T) {
	f, svc, payments, _ := newPaymentFixture(t)
	ctx := context.Background()

	b, err := f.svc.Book(ctx, "u1", "u1@example.com", bookingReq("KL-07-AB-1234"))
	if err != nil {
		t.Fatalf("Book: %v", err)
	}
	resp, err := svc.StartPayment(ctx, b.ID, "u1")
	if err != nil {
		t.Fatalf("StartPayment: %v", err)
	}
	payments.age(resp.PaymentID, time.Hour)
	if err := svc.Reconcile(ctx); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if len(f.slots.releaseLog) != 0 {
		t.Error("unpaid session must not fulfil the booking")
	}
	if _, err := f.bookings.GetByID(ctx, b.ID); err != nil {
		t.Errorf("booking must survive: %v", err)
	}
}
