package service

import (
	"context"
	"errors"
	"log"
	"strings"

	"chargeslot/internal/db"
	"chargeslot/internal/entities"
	apperrors "chargeslot/internal/errors"
	"chargeslot/internal/repository"
)

// SlotStore is the availability grid as the service sees it. The grid is
// exclusively mutated through this service (reservation happens inside
// BookingStore.Create so the flip and the insert are one transaction).
type SlotStore interface {
	EnsureGrid(ctx context.Context, locations, vehicleTypes, chargingTypes, hours []string) error
	Get(ctx context.Context, key entities.SlotKey) (repository.SlotStatus, error)
	Release(ctx context.Context, key entities.SlotKey) error
	SetAvailability(ctx context.Context, key entities.SlotKey, available bool) error
	Snapshot(ctx context.Context) (entities.SlotTree, error)
}

// BookingStore is CRUD over booking records. Create runs the whole
// precondition chain (duplicate vehicle, cap, slot reservation) atomically.
type BookingStore interface {
	Create(ctx context.Context, b *db.Booking, key entities.SlotKey) error
	Delete(ctx context.Context, id, ownerID string) (*db.Booking, error)
	GetByID(ctx context.Context, id string) (*db.Booking, error)
	SetPaymentID(ctx context.Context, id, paymentID string) error
	ListByUser(ctx context.Context, userID, location string) ([]db.Booking, error)
	ListAll(ctx context.Context, location, vehicleType string) ([]db.Booking, error)
	CountAtSlot(ctx context.Context, location, hour string) (int, error)
}

// WaitlistStore appends and scans the queue. ListBucket returns entries in
// insertion order, pre-filtered to the freed slot's bucket.
type WaitlistStore interface {
	Append(ctx context.Context, e *db.QueueEntry) error
	ListBucket(ctx context.Context, location, vehicleType, chargingType string) ([]db.QueueEntry, error)
	ListAll(ctx context.Context) ([]db.QueueEntry, error)
}

// MatchNotifier is the dispatcher as the release path sees it.
type MatchNotifier interface {
	NotifyMatch(ctx context.Context, entry *db.QueueEntry, slot entities.SlotKey, freed entities.TimeRange) error
}

// BookingService orchestrates booking, cancellation, fulfilment and
// waitlisting over the stores, in the fixed order the release invariants
// require.
type BookingService struct {
	Slots      SlotStore
	Bookings   BookingStore
	Queue      WaitlistStore
	Matcher    Matcher
	Dispatcher MatchNotifier
}

func NewBookingService(slots SlotStore, bookings BookingStore, queue WaitlistStore, dispatcher MatchNotifier) *BookingService {
	return &BookingService{
		Slots:      slots,
		Bookings:   bookings,
		Queue:      queue,
		Dispatcher: dispatcher,
	}
}

// Bootstrap makes sure the dense grid exists for the configured locations.
// Idempotent: existing cells keep their availability.
func (s *BookingService) Bootstrap(ctx context.Context, locations []string) error {
	return s.Slots.EnsureGrid(ctx, locations, entities.VehicleTypes(), entities.ChargingTypes(), entities.GridHours())
}

// Book validates the request and creates the booking. Error kinds from the
// store (DuplicateVehicle, BookingLimitExceeded, SlotUnavailable) propagate
// unchanged.
func (s *BookingService) Book(ctx context.Context, userID, userEmail string, req entities.BookingRequest) (*db.Booking, error) {
	if strings.TrimSpace(req.Name) == "" {
		return nil, apperrors.InvalidInputf("name is required")
	}
	if strings.TrimSpace(req.VehicleNumber) == "" {
		return nil, apperrors.InvalidInputf("vehicle number is required")
	}
	rng, err := entities.ParseTimeRange(req.BookingTime)
	if err != nil {
		return nil, err
	}
	key, err := entities.NewSlotKey(req.Location, req.VehicleType, req.ChargingType, rng)
	if err != nil {
		return nil, err
	}

	b := &db.Booking{
		Name:          strings.TrimSpace(req.Name),
		VehicleNumber: req.VehicleNumber,
		UserID:        userID,
		UserEmail:     userEmail,
	}
	if err := s.Bookings.Create(ctx, b, key); err != nil {
		return nil, err
	}
	log.Printf("Booking %s created for %s at %s", b.ID, b.VehicleNumber, key)
	return b, nil
}

// Cancel voluntarily releases a user's booking and runs the waitlist match.
func (s *BookingService) Cancel(ctx context.Context, id, ownerID string) error {
	return s.release(ctx, id, ownerID, "cancelled")
}

// Fulfil marks a booking's payment complete and releases its slot for the
// next user. Same sequence as Cancel; kept distinct for audit logs.
func (s *BookingService) Fulfil(ctx context.Context, id string) error {
	return s.release(ctx, id, "", "fulfilled")
}

// release runs the fixed sequence: delete the booking, flip the slot back to
// available, match the waitlist, notify. Once the slot is released it is
// never re-locked here, whatever happens to matching or notification: a
// missed notification is recoverable by hand, a stuck booked slot with no
// owning booking is not.
func (s *BookingService) release(ctx context.Context, id, ownerID, outcome string) error {
	freed, err := s.Bookings.Delete(ctx, id, ownerID)
	if err != nil {
		// NotFound here is benign: a concurrent actor already removed it.
		return err
	}

	key := entities.SlotKey{
		Location:     freed.Location,
		VehicleType:  freed.VehicleType,
		ChargingType: freed.ChargingType,
		Hour:         freed.Hour,
	}
	if err := s.Slots.Release(ctx, key); err != nil {
		// The booking row is already gone; a cell stuck on "taken" with no
		// owner must reach an operator, not be swallowed.
		log.Printf("ALERT: booking %s %s but slot %s was not released: %v", id, outcome, key, err)
		return err
	}
	log.Printf("Booking %s %s, slot %s released", id, outcome, key)

	rng, err := entities.RangeFromHour(freed.Hour)
	if err != nil {
		log.Printf("ALERT: released slot %s has an unparseable hour, skipping waitlist match: %v", key, err)
		return nil
	}
	entries, err := s.Queue.ListBucket(ctx, key.Location, key.VehicleType, key.ChargingType)
	if err != nil {
		log.Printf("ALERT: waitlist scan failed after releasing %s: %v", key, err)
		return nil
	}
	match := s.Matcher.FindMatch(key, rng, entries)
	if match == nil {
		return nil
	}
	if err := s.Dispatcher.NotifyMatch(ctx, match, key, rng); err != nil {
		log.Printf("ALERT: could not notify waitlisted user %s about %s: %v", match.UserID, key, err)
	}
	return nil
}

// RequestWaitlist appends a waitlist request. No availability check: the
// slot does not need to currently be busy.
func (s *BookingService) RequestWaitlist(ctx context.Context, userID, userEmail string, req entities.WaitlistRequest) (*db.QueueEntry, error) {
	rng := entities.TimeRange{}
	if req.PreferredTime != "" {
		var err error
		rng, err = entities.ParseTimeRange(req.PreferredTime)
		if err != nil {
			return nil, err
		}
	} else {
		// Any-time requests still need valid enum dimensions.
		rng = entities.TimeRange{Start: 0, End: 1}
	}
	if _, err := entities.NewSlotKey(req.PreferredLocation, req.VehicleType, req.ChargingType, rng); err != nil {
		return nil, err
	}

	entry := &db.QueueEntry{
		UserID:            userID,
		UserEmail:         userEmail,
		PhoneNumber:       strings.TrimSpace(req.PhoneNumber),
		PreferredLocation: strings.TrimSpace(req.PreferredLocation),
		VehicleType:       req.VehicleType,
		ChargingType:      req.ChargingType,
		PreferredTime:     strings.TrimSpace(req.PreferredTime),
	}
	if err := s.Queue.Append(ctx, entry); err != nil {
		return nil, err
	}
	log.Printf("User %s waitlisted for %s/%s/%s", userID, entry.PreferredLocation, entry.VehicleType, entry.ChargingType)
	return entry, nil
}

// CheckAvailability answers for one slot. Unknown keys are reported as
// Unknown, not as errors.
func (s *BookingService) CheckAvailability(ctx context.Context, req entities.AvailabilityRequest) (*entities.AvailabilityResponse, error) {
	rng, err := entities.ParseTimeRange(req.BookingTime)
	if err != nil {
		return nil, err
	}
	key, err := entities.NewSlotKey(req.Location, req.VehicleType, req.ChargingType, rng)
	if err != nil {
		return nil, err
	}
	status, err := s.Slots.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	resp := &entities.AvailabilityResponse{
		Location:     key.Location,
		VehicleType:  key.VehicleType,
		ChargingType: key.ChargingType,
		Hour:         key.Hour,
	}
	switch status {
	case repository.SlotAvailable:
		resp.Status = entities.StatusAvailable
	case repository.SlotTaken:
		resp.Status = entities.StatusBooked
	default:
		resp.Status = entities.StatusUnknown
	}
	return resp, nil
}

// ListBookings returns the caller's active bookings.
func (s *BookingService) ListBookings(ctx context.Context, userID, location string) ([]db.Booking, error) {
	return s.Bookings.ListByUser(ctx, userID, location)
}

// SlotTree returns the whole grid for display.
func (s *BookingService) SlotTree(ctx context.Context) (entities.SlotTree, error) {
	return s.Slots.Snapshot(ctx)
}

// CountBookings answers a station's booking count for one hour slot.
func (s *BookingService) CountBookings(ctx context.Context, location, bookingTime string) (int, error) {
	rng, err := entities.ParseTimeRange(bookingTime)
	if err != nil {
		return 0, err
	}
	return s.Bookings.CountAtSlot(ctx, strings.TrimSpace(location), rng.Hour())
}

// SetSlotAvailability is the admin overwrite of a single cell.
func (s *BookingService) SetSlotAvailability(ctx context.Context, location, vehicleType, chargingType, hour string, available bool) error {
	rng, err := entities.RangeFromHour(hour)
	if err != nil {
		return err
	}
	key, err := entities.NewSlotKey(location, vehicleType, chargingType, rng)
	if err != nil {
		return err
	}
	return s.Slots.SetAvailability(ctx, key, available)
}

// BookingResponse renders a booking with its time range and bill.
func BookingResponse(b *db.Booking) entities.BookingResponse {
	resp := entities.BookingResponse{
		ID:            b.ID,
		Name:          b.Name,
		VehicleNumber: b.VehicleNumber,
		Location:      b.Location,
		VehicleType:   b.VehicleType,
		ChargingType:  b.ChargingType,
		UserEmail:     b.UserEmail,
		PaymentID:     b.PaymentID,
		BillRupees:    BillAmount(b.VehicleType, b.ChargingType),
	}
	if rng, err := entities.RangeFromHour(b.Hour); err == nil {
		resp.BookingTime = rng.String()
	} else {
		resp.BookingTime = b.Hour
	}
	return resp
}

// IsNotFound reports whether err is the benign already-gone outcome.
func IsNotFound(err error) bool {
	return errors.Is(err, apperrors.ErrNotFound)
}
