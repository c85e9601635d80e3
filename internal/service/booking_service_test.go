package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"chargeslot/internal/db"
	"chargeslot/internal/entities"
	apperrors "chargeslot/internal/errors"
	"chargeslot/internal/repository"
)

// memSlots is an in-memory grid with the same conditional-update semantics
// as the SQL store: reserve only flips a cell that is currently available.
type memSlots struct {
	mu          sync.Mutex
	cells       map[entities.SlotKey]bool
	releaseErr  error
	releaseLog  []entities.SlotKey
}

func newMemSlots() *memSlots {
	return &memSlots{cells: make(map[entities.SlotKey]bool)}
}

func (m *memSlots) EnsureGrid(ctx context.Context, locations, vehicleTypes, chargingTypes, hours []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, loc := range locations {
		for _, vt := range vehicleTypes {
			for _, ct := range chargingTypes {
				for _, h := range hours {
					key := entities.SlotKey{Location: loc, VehicleType: vt, ChargingType: ct, Hour: h}
					if _, ok := m.cells[key]; !ok {
						m.cells[key] = true
					}
				}
			}
		}
	}
	return nil
}

func (m *memSlots) Get(ctx context.Context, key entities.SlotKey) (repository.SlotStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	available, ok := m.cells[key]
	if !ok {
		return repository.SlotUnknown, nil
	}
	if available {
		return repository.SlotAvailable, nil
	}
	return repository.SlotTaken, nil
}

func (m *memSlots) reserve(key entities.SlotKey) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.cells[key] {
		return fmt.Errorf("%w: %s", apperrors.ErrSlotUnavailable, key)
	}
	m.cells[key] = false
	return nil
}

func (m *memSlots) Release(ctx context.Context, key entities.SlotKey) error {
	if m.releaseErr != nil {
		return m.releaseErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.cells[key]; !ok {
		return apperrors.NotFoundf("slot %s", key)
	}
	m.cells[key] = true
	m.releaseLog = append(m.releaseLog, key)
	return nil
}

func (m *memSlots) SetAvailability(ctx context.Context, key entities.SlotKey, available bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.cells[key]; !ok {
		return apperrors.NotFoundf("slot %s", key)
	}
	m.cells[key] = available
	return nil
}

func (m *memSlots) Snapshot(ctx context.Context) (entities.SlotTree, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tree := entities.SlotTree{}
	for key, available := range m.cells {
		if tree[key.Location] == nil {
			tree[key.Location] = map[string]map[string]map[string]bool{}
		}
		if tree[key.Location][key.VehicleType] == nil {
			tree[key.Location][key.VehicleType] = map[string]map[string]bool{}
		}
		if tree[key.Location][key.VehicleType][key.ChargingType] == nil {
			tree[key.Location][key.VehicleType][key.ChargingType] = map[string]bool{}
		}
		tree[key.Location][key.VehicleType][key.ChargingType][key.Hour] = available
	}
	return tree, nil
}

// memBookings mirrors the transactional precondition chain of the SQL
// store: duplicate vehicle, then booking cap, then slot reservation.
type memBookings struct {
	mu    sync.Mutex
	slots *memSlots
	rows  map[string]*db.Booking
	next  int
}

func newMemBookings(slots *memSlots) *memBookings {
	return &memBookings{slots: slots, rows: make(map[string]*db.Booking)}
}

func (m *memBookings) Create(ctx context.Context, b *db.Booking, key entities.SlotKey) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b.VehicleNumber = repository.NormalizeVehicleNumber(b.VehicleNumber)
	for _, row := range m.rows {
		if row.VehicleNumber == b.VehicleNumber {
			return apperrors.ErrDuplicateVehicle
		}
	}
	var active int
	for _, row := range m.rows {
		if row.UserID == b.UserID {
			active++
		}
	}
	if active >= 3 {
		return apperrors.ErrBookingLimitExceeded
	}
	if err := m.slots.reserve(key); err != nil {
		return err
	}
	m.next++
	b.ID = fmt.Sprintf("b%d", m.next)
	b.Location = key.Location
	b.VehicleType = key.VehicleType
	b.ChargingType = key.ChargingType
	b.Hour = key.Hour
	row := *b
	m.rows[b.ID] = &row
	return nil
}

func (m *memBookings) Delete(ctx context.Context, id, ownerID string) (*db.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[id]
	if !ok || (ownerID != "" && row.UserID != ownerID) {
		return nil, apperrors.NotFoundf("booking %s", id)
	}
	delete(m.rows, id)
	freed := *row
	return &freed, nil
}

func (m *memBookings) GetByID(ctx context.Context, id string) (*db.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[id]
	if !ok {
		return nil, apperrors.NotFoundf("booking %s", id)
	}
	copied := *row
	return &copied, nil
}

func (m *memBookings) SetPaymentID(ctx context.Context, id, paymentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[id]
	if !ok {
		return apperrors.NotFoundf("booking %s", id)
	}
	row.PaymentID = paymentID
	return nil
}

func (m *memBookings) ListByUser(ctx context.Context, userID, location string) ([]db.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []db.Booking
	for _, row := range m.rows {
		if row.UserID == userID && (location == "" || row.Location == location) {
			out = append(out, *row)
		}
	}
	return out, nil
}

func (m *memBookings) ListAll(ctx context.Context, location, vehicleType string) ([]db.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []db.Booking
	for _, row := range m.rows {
		if (location == "" || row.Location == location) && (vehicleType == "" || row.VehicleType == vehicleType) {
			out = append(out, *row)
		}
	}
	return out, nil
}

func (m *memBookings) CountAtSlot(ctx context.Context, location, hour string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, row := range m.rows {
		if row.Location == location && row.Hour == hour {
			count++
		}
	}
	return count, nil
}

// memQueue is the waitlist with serial positions, also serving as the
// dispatcher's remover.
type memQueue struct {
	mu      sync.Mutex
	entries []db.QueueEntry
	next    int64
	listErr error
}

func (m *memQueue) Append(ctx context.Context, e *db.QueueEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.next++
	e.ID = fmt.Sprintf("q%d", m.next)
	e.Position = m.next
	m.entries = append(m.entries, *e)
	return nil
}

func (m *memQueue) ListBucket(ctx context.Context, location, vehicleType, chargingType string) ([]db.QueueEntry, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []db.QueueEntry
	for _, e := range m.entries {
		if e.PreferredLocation == location && e.VehicleType == vehicleType && e.ChargingType == chargingType {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *memQueue) ListAll(ctx context.Context) ([]db.QueueEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]db.QueueEntry(nil), m.entries...), nil
}

func (m *memQueue) Remove(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, e := range m.entries {
		if e.ID == id {
			m.entries = append(m.entries[:i], m.entries[i+1:]...)
			return nil
		}
	}
	return apperrors.NotFoundf("queue entry %s", id)
}

type fixture struct {
	svc      *BookingService
	slots    *memSlots
	bookings *memBookings
	queue    *memQueue
	sink     *fakeSink
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	slots := newMemSlots()
	bookings := newMemBookings(slots)
	queue := &memQueue{}
	sink := &fakeSink{}
	svc := NewBookingService(slots, bookings, queue, NewDispatcher(sink, queue))
	if err := svc.Bootstrap(context.Background(), []string{"EDAPALLY"}); err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}
	return &fixture{svc: svc, slots: slots, bookings: bookings, queue: queue, sink: sink}
}

func bookingReq(vehicle string) entities.BookingRequest {
	return entities.BookingRequest{
		Name:          "Anu",
		VehicleNumber: vehicle,
		Location:      "EDAPALLY",
		VehicleType:   entities.VehicleFourWheeler,
		ChargingType:  entities.ChargingDC,
		BookingTime:   "10:00 - 11:00",
	}
}

func TestBookValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	req := bookingReq("KL-07-AB-1234")
	req.Name = "  "
	if _, err := f.svc.Book(ctx, "u1", "u1@example.com", req); !errors.Is(err, apperrors.ErrInvalidInput) {
		t.Errorf("blank name: got %v, want ErrInvalidInput", err)
	}

	req = bookingReq("KL-07-AB-1234")
	req.BookingTime = "11:00 - 10:00"
	if _, err := f.svc.Book(ctx, "u1", "u1@example.com", req); !errors.Is(err, apperrors.ErrInvalidInput) {
		t.Errorf("inverted range: got %v, want ErrInvalidInput", err)
	}

	req = bookingReq("KL-07-AB-1234")
	req.VehicleType = "bus"
	if _, err := f.svc.Book(ctx, "u1", "u1@example.com", req); !errors.Is(err, apperrors.ErrInvalidInput) {
		t.Errorf("bad vehicle type: got %v, want ErrInvalidInput", err)
	}
}

func TestBookMarksSlotTaken(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	b, err := f.svc.Book(ctx, "u1", "u1@example.com", bookingReq("kl-07-ab-1234 "))
	if err != nil {
		t.Fatalf("Book: %v", err)
	}
	if b.VehicleNumber != "KL-07-AB-1234" {
		t.Errorf("vehicle number not normalized: %q", b.VehicleNumber)
	}
	if b.Hour != "10:00" {
		t.Errorf("hour = %q, want 10:00", b.Hour)
	}

	resp, err := f.svc.CheckAvailability(ctx, entities.AvailabilityRequest{
		Location: "EDAPALLY", VehicleType: entities.VehicleFourWheeler,
		ChargingType: entities.ChargingDC, BookingTime: "10:00 - 11:00",
	})
	if err != nil {
		t.Fatalf("CheckAvailability: %v", err)
	}
	if resp.Status != entities.StatusBooked {
		t.Errorf("status = %q, want Booked", resp.Status)
	}
}

func TestBookDuplicateVehicle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.svc.Book(ctx, "u1", "u1@example.com", bookingReq("KL-07-AB-1234")); err != nil {
		t.Fatalf("first Book: %v", err)
	}
	req := bookingReq(" kl-07-ab-1234")
	req.BookingTime = "12:00 - 13:00"
	if _, err := f.svc.Book(ctx, "u2", "u2@example.com", req); !errors.Is(err, apperrors.ErrDuplicateVehicle) {
		t.Errorf("got %v, want ErrDuplicateVehicle", err)
	}
}

func TestBookCapPerUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		req := bookingReq(fmt.Sprintf("KL-07-AB-%04d", i))
		req.BookingTime = fmt.Sprintf("%d:00 - %d:00", 10+i, 11+i)
		if _, err := f.svc.Book(ctx, "u1", "u1@example.com", req); err != nil {
			t.Fatalf("Book %d: %v", i, err)
		}
	}
	req := bookingReq("KL-07-AB-9999")
	req.BookingTime = "20:00 - 21:00"
	if _, err := f.svc.Book(ctx, "u1", "u1@example.com", req); !errors.Is(err, apperrors.ErrBookingLimitExceeded) {
		t.Errorf("got %v, want ErrBookingLimitExceeded", err)
	}
}

func TestBookTakenSlot(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.svc.Book(ctx, "u1", "u1@example.com", bookingReq("KL-07-AB-1111")); err != nil {
		t.Fatalf("first Book: %v", err)
	}
	if _, err := f.svc.Book(ctx, "u2", "u2@example.com", bookingReq("KL-07-AB-2222")); !errors.Is(err, apperrors.ErrSlotUnavailable) {
		t.Errorf("got %v, want ErrSlotUnavailable", err)
	}
}

func TestConcurrentBookingSingleWinner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	const racers = 16
	errs := make([]error, racers)
	var wg sync.WaitGroup
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			req := bookingReq(fmt.Sprintf("KL-07-XX-%04d", i))
			_, errs[i] = f.svc.Book(ctx, fmt.Sprintf("u%d", i), "x@example.com", req)
		}(i)
	}
	wg.Wait()

	var won, lost int
	for _, err := range errs {
		switch {
		case err == nil:
			won++
		case errors.Is(err, apperrors.ErrSlotUnavailable):
			lost++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	if won != 1 || lost != racers-1 {
		t.Errorf("winners = %d, losers = %d, want 1 and %d", won, lost, racers-1)
	}
}

func TestCancelReleasesAndNotifiesWaitlist(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	b, err := f.svc.Book(ctx, "u1", "u1@example.com", bookingReq("KL-07-AB-1234"))
	if err != nil {
		t.Fatalf("Book: %v", err)
	}
	_, err = f.svc.RequestWaitlist(ctx, "u2", "u2@example.com", entities.WaitlistRequest{
		PhoneNumber:       "+919900112233",
		PreferredLocation: "EDAPALLY",
		VehicleType:       entities.VehicleFourWheeler,
		ChargingType:      entities.ChargingDC,
		PreferredTime:     "9:00 - 12:00",
	})
	if err != nil {
		t.Fatalf("RequestWaitlist: %v", err)
	}

	if err := f.svc.Cancel(ctx, b.ID, "u1"); err != nil {
		t.Fatalf("Cancel: %v", err)
	}

	resp, _ := f.svc.CheckAvailability(ctx, entities.AvailabilityRequest{
		Location: "EDAPALLY", VehicleType: entities.VehicleFourWheeler,
		ChargingType: entities.ChargingDC, BookingTime: "10:00 - 11:00",
	})
	if resp.Status != entities.StatusAvailable {
		t.Errorf("slot status after cancel = %q, want Available", resp.Status)
	}
	if len(f.sink.records) != 2 {
		t.Fatalf("queued %d notifications, want email + SMS", len(f.sink.records))
	}
	left, _ := f.queue.ListAll(ctx)
	if len(left) != 0 {
		t.Errorf("queue should be empty after the match, has %d entries", len(left))
	}
}

func TestCancelNoMatchLeavesQueueAlone(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	b, err := f.svc.Book(ctx, "u1", "u1@example.com", bookingReq("KL-07-AB-1234"))
	if err != nil {
		t.Fatalf("Book: %v", err)
	}
	_, err = f.svc.RequestWaitlist(ctx, "u2", "u2@example.com", entities.WaitlistRequest{
		PreferredLocation: "EDAPALLY",
		VehicleType:       entities.VehicleFourWheeler,
		ChargingType:      entities.ChargingDC,
		PreferredTime:     "6:00 - 8:00",
	})
	if err != nil {
		t.Fatalf("RequestWaitlist: %v", err)
	}

	if err := f.svc.Cancel(ctx, b.ID, "u1"); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if len(f.sink.records) != 0 {
		t.Errorf("no notification expected, got %d", len(f.sink.records))
	}
	left, _ := f.queue.ListAll(ctx)
	if len(left) != 1 {
		t.Errorf("unmatched entry must stay queued")
	}
}

func TestCancelWrongOwner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	b, err := f.svc.Book(ctx, "u1", "u1@example.com", bookingReq("KL-07-AB-1234"))
	if err != nil {
		t.Fatalf("Book: %v", err)
	}
	if err := f.svc.Cancel(ctx, b.ID, "u2"); !errors.Is(err, apperrors.ErrNotFound) {
		t.Errorf("got %v, want ErrNotFound", err)
	}
	if _, err := f.bookings.GetByID(ctx, b.ID); err != nil {
		t.Errorf("booking should survive a foreign cancel: %v", err)
	}
}

func TestDoubleCancelIsNotFound(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	b, err := f.svc.Book(ctx, "u1", "u1@example.com", bookingReq("KL-07-AB-1234"))
	if err != nil {
		t.Fatalf("Book: %v", err)
	}
	if err := f.svc.Cancel(ctx, b.ID, "u1"); err != nil {
		t.Fatalf("first Cancel: %v", err)
	}
	err = f.svc.Cancel(ctx, b.ID, "u1")
	if !IsNotFound(err) {
		t.Errorf("second Cancel: got %v, want NotFound", err)
	}
	if len(f.slots.releaseLog) != 1 {
		t.Errorf("slot released %d times, want exactly once", len(f.slots.releaseLog))
	}
}

func TestCancelReleaseFailureSurfaces(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	b, err := f.svc.Book(ctx, "u1", "u1@example.com", bookingReq("KL-07-AB-1234"))
	if err != nil {
		t.Fatalf("Book: %v", err)
	}
	f.slots.releaseErr = errors.New("store down")
	if err := f.svc.Cancel(ctx, b.ID, "u1"); err == nil {
		t.Fatal("expected the release failure to surface")
	}
}

func TestCancelWaitlistScanFailureIsNotFatal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	b, err := f.svc.Book(ctx, "u1", "u1@example.com", bookingReq("KL-07-AB-1234"))
	if err != nil {
		t.Fatalf("Book: %v", err)
	}
	f.queue.listErr = errors.New("store down")
	if err := f.svc.Cancel(ctx, b.ID, "u1"); err != nil {
		t.Fatalf("Cancel must succeed once the slot is released: %v", err)
	}
	status, _ := f.slots.Get(ctx, entities.SlotKey{
		Location: "EDAPALLY", VehicleType: entities.VehicleFourWheeler,
		ChargingType: entities.ChargingDC, Hour: "10:00",
	})
	if status != repository.SlotAvailable {
		t.Errorf("slot must stay released, got %v", status)
	}
}

func TestCheckAvailabilityUnknownKey(t *testing.T) {
	f := newFixture(t)
	resp, err := f.svc.CheckAvailability(context.Background(), entities.AvailabilityRequest{
		Location: "NOWHERE", VehicleType: entities.VehicleTwoWheeler,
		ChargingType: entities.ChargingAC, BookingTime: "10:00 - 11:00",
	})
	if err != nil {
		t.Fatalf("CheckAvailability: %v", err)
	}
	if resp.Status != entities.StatusUnknown {
		t.Errorf("status = %q, want Unknown", resp.Status)
	}
}

func TestRequestWaitlistValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.RequestWaitlist(ctx, "u1", "u1@example.com", entities.WaitlistRequest{
		PreferredLocation: "EDAPALLY",
		VehicleType:       "tractor",
		ChargingType:      entities.ChargingAC,
	})
	if !errors.Is(err, apperrors.ErrInvalidInput) {
		t.Errorf("bad vehicle type: got %v, want ErrInvalidInput", err)
	}

	entry, err := f.svc.RequestWaitlist(ctx, "u1", "u1@example.com", entities.WaitlistRequest{
		PreferredLocation: "EDAPALLY",
		VehicleType:       entities.VehicleTwoWheeler,
		ChargingType:      entities.ChargingAC,
	})
	if err != nil {
		t.Fatalf("any-time request: %v", err)
	}
	if entry.PreferredTime != "" {
		t.Errorf("preferred time should stay empty, got %q", entry.PreferredTime)
	}
}
