package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/google/uuid"

	"chargeslot/internal/db"
	"chargeslot/internal/entities"
	apperrors "chargeslot/internal/errors"
)

// A user may hold at most this many active bookings at once.
const maxActiveBookings = 3

type BookingRepo struct {
	DB    *sql.DB
	Slots *SlotRepo
}

func NewBookingRepo(database *sql.DB, slots *SlotRepo) *BookingRepo {
	return &BookingRepo{DB: database, Slots: slots}
}

// NormalizeVehicleNumber is how vehicle numbers are stored and compared:
// trimmed and upper-cased, so "kl-07-ab-1234 " and "KL-07-AB-1234" collide.
func NormalizeVehicleNumber(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// Create persists a booking after the precondition chain, all inside one
// transaction so the slot flip and the booking insert commit or roll back
// together. Checks run in order and the first failure is reported:
// duplicate vehicle, then booking cap, then slot reservation.
func (r *BookingRepo) Create(ctx context.Context, b *db.Booking, key entities.SlotKey) error {
	b.VehicleNumber = NormalizeVehicleNumber(b.VehicleNumber)
	return withRetry(ctx, func(ctx context.Context) error {
		tx, err := r.DB.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer tx.Rollback()

		var exists bool
		err = tx.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM bookings WHERE vehicle_number = $1)`,
			b.VehicleNumber).Scan(&exists)
		if err != nil {
			return err
		}
		if exists {
			return apperrors.ErrDuplicateVehicle
		}

		var active int
		err = tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM bookings WHERE user_id = $1`, b.UserID).Scan(&active)
		if err != nil {
			return err
		}
		if active >= maxActiveBookings {
			return apperrors.ErrBookingLimitExceeded
		}

		if err := r.Slots.reserveTx(ctx, tx, key); err != nil {
			return err
		}

		b.ID = uuid.NewString()
		b.Location = key.Location
		b.VehicleType = key.VehicleType
		b.ChargingType = key.ChargingType
		b.Hour = key.Hour
		err = tx.QueryRowContext(ctx, `
			INSERT INTO bookings
				(id, name, vehicle_number, location, vehicle_type, charging_type, hour, user_id, user_email)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			RETURNING created_at`,
			b.ID, b.Name, b.VehicleNumber, b.Location, b.VehicleType, b.ChargingType,
			b.Hour, b.UserID, b.UserEmail,
		).Scan(&b.CreatedAt)
		if err != nil {
			return err
		}
		return tx.Commit()
	})
}

// Delete removes a booking and returns its last known fields; the caller
// needs them to release the slot and run the waitlist match. When ownerID is
// non-empty the delete only touches that user's booking. A second delete of
// the same id is NotFound, which callers treat as benign.
func (r *BookingRepo) Delete(ctx context.Context, id, ownerID string) (*db.Booking, error) {
	var freed db.Booking
	err := withRetry(ctx, func(ctx context.Context) error {
		query := `
			DELETE FROM bookings WHERE id = $1
			RETURNING id, name, vehicle_number, location, vehicle_type, charging_type,
			          hour, user_id, user_email, COALESCE(payment_id, ''), created_at`
		args := []interface{}{id}
		if ownerID != "" {
			query = `
			DELETE FROM bookings WHERE id = $1 AND user_id = $2
			RETURNING id, name, vehicle_number, location, vehicle_type, charging_type,
			          hour, user_id, user_email, COALESCE(payment_id, ''), created_at`
			args = append(args, ownerID)
		}
		err := r.DB.QueryRowContext(ctx, query, args...).Scan(
			&freed.ID, &freed.Name, &freed.VehicleNumber, &freed.Location,
			&freed.VehicleType, &freed.ChargingType, &freed.Hour,
			&freed.UserID, &freed.UserEmail, &freed.PaymentID, &freed.CreatedAt,
		)
		if errors.Is(err, sql.ErrNoRows) {
			return apperrors.NotFoundf("booking %s", id)
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return &freed, nil
}

func (r *BookingRepo) GetByID(ctx context.Context, id string) (*db.Booking, error) {
	var b db.Booking
	err := withRetry(ctx, func(ctx context.Context) error {
		err := r.DB.QueryRowContext(ctx, `
			SELECT id, name, vehicle_number, location, vehicle_type, charging_type,
			       hour, user_id, user_email, COALESCE(payment_id, ''), created_at
			FROM bookings WHERE id = $1`, id).Scan(
			&b.ID, &b.Name, &b.VehicleNumber, &b.Location, &b.VehicleType,
			&b.ChargingType, &b.Hour, &b.UserID, &b.UserEmail, &b.PaymentID, &b.CreatedAt,
		)
		if errors.Is(err, sql.ErrNoRows) {
			return apperrors.NotFoundf("booking %s", id)
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// SetPaymentID attaches a payment reference to an active booking.
func (r *BookingRepo) SetPaymentID(ctx context.Context, id, paymentID string) error {
	return withRetry(ctx, func(ctx context.Context) error {
		res, err := r.DB.ExecContext(ctx,
			`UPDATE bookings SET payment_id = $2 WHERE id = $1`, id, paymentID)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return apperrors.NotFoundf("booking %s", id)
		}
		return nil
	})
}

// ListByUser returns the caller's active bookings, optionally filtered by
// location.
func (r *BookingRepo) ListByUser(ctx context.Context, userID, location string) ([]db.Booking, error) {
	query := `
		SELECT id, name, vehicle_number, location, vehicle_type, charging_type,
		       hour, user_id, user_email, COALESCE(payment_id, ''), created_at
		FROM bookings WHERE user_id = $1`
	args := []interface{}{userID}
	if location != "" {
		query += ` AND location = $2`
		args = append(args, location)
	}
	query += ` ORDER BY created_at`
	return r.list(ctx, query, args...)
}

// ListAll is the admin view, optionally filtered by location and vehicle
// type.
func (r *BookingRepo) ListAll(ctx context.Context, location, vehicleType string) ([]db.Booking, error) {
	query := `
		SELECT id, name, vehicle_number, location, vehicle_type, charging_type,
		       hour, user_id, user_email, COALESCE(payment_id, ''), created_at
		FROM bookings WHERE 1=1`
	args := []interface{}{}
	if location != "" {
		args = append(args, location)
		query += ` AND location = $1`
	}
	if vehicleType != "" {
		args = append(args, vehicleType)
		if len(args) == 1 {
			query += ` AND vehicle_type = $1`
		} else {
			query += ` AND vehicle_type = $2`
		}
	}
	query += ` ORDER BY location, hour`
	return r.list(ctx, query, args...)
}

// CountAtSlot answers "how many bookings does this station have at this
// hour" for the conversational front end.
func (r *BookingRepo) CountAtSlot(ctx context.Context, location, hour string) (int, error) {
	var count int
	err := withRetry(ctx, func(ctx context.Context) error {
		return r.DB.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM bookings WHERE location = $1 AND hour = $2`,
			location, hour).Scan(&count)
	})
	return count, err
}

func (r *BookingRepo) list(ctx context.Context, query string, args ...interface{}) ([]db.Booking, error) {
	var bookings []db.Booking
	err := withRetry(ctx, func(ctx context.Context) error {
		rows, err := r.DB.QueryContext(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()

		bookings = bookings[:0]
		for rows.Next() {
			var b db.Booking
			err := rows.Scan(
				&b.ID, &b.Name, &b.VehicleNumber, &b.Location, &b.VehicleType,
				&b.ChargingType, &b.Hour, &b.UserID, &b.UserEmail, &b.PaymentID, &b.CreatedAt,
			)
			if err != nil {
				return err
			}
			bookings = append(bookings, b)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return bookings, nil
}
