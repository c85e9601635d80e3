package repository

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	"chargeslot/internal/db"
	apperrors "chargeslot/internal/errors"
)

// QueueRepo owns the waitlist. Entries are appended with a serial position
// and read back in insertion order, so FIFO is preserved within each
// (location, vehicle type, charging type) bucket.
type QueueRepo struct {
	DB *sql.DB
}

func NewQueueRepo(database *sql.DB) *QueueRepo {
	return &QueueRepo{DB: database}
}

// Append adds a waitlist request. No availability check: waitlisting does
// not require the slot to currently be busy.
func (r *QueueRepo) Append(ctx context.Context, e *db.QueueEntry) error {
	e.ID = uuid.NewString()
	return withRetry(ctx, func(ctx context.Context) error {
		return r.DB.QueryRowContext(ctx, `
			INSERT INTO queue
				(id, user_id, user_email, phone_number, preferred_location,
				 vehicle_type, charging_type, preferred_time)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			RETURNING position, created_at`,
			e.ID, e.UserID, e.UserEmail, e.PhoneNumber, e.PreferredLocation,
			e.VehicleType, e.ChargingType, e.PreferredTime,
		).Scan(&e.Position, &e.CreatedAt)
	})
}

// ListBucket returns the entries competing for one slot bucket in insertion
// order. The WHERE clause rides the bucket index, so a release event scans
// only the entries that could possibly match.
func (r *QueueRepo) ListBucket(ctx context.Context, location, vehicleType, chargingType string) ([]db.QueueEntry, error) {
	const query = `
		SELECT id, position, user_id, user_email, phone_number, preferred_location,
		       vehicle_type, charging_type, preferred_time, created_at
		FROM queue
		WHERE preferred_location = $1 AND vehicle_type = $2 AND charging_type = $3
		ORDER BY position`
	return r.list(ctx, query, location, vehicleType, chargingType)
}

// ListAll is the admin view of the whole waitlist.
func (r *QueueRepo) ListAll(ctx context.Context) ([]db.QueueEntry, error) {
	const query = `
		SELECT id, position, user_id, user_email, phone_number, preferred_location,
		       vehicle_type, charging_type, preferred_time, created_at
		FROM queue ORDER BY position`
	return r.list(ctx, query)
}

// Remove deletes a matched entry. Removing an entry that is already gone is
// NotFound.
func (r *QueueRepo) Remove(ctx context.Context, id string) error {
	return withRetry(ctx, func(ctx context.Context) error {
		res, err := r.DB.ExecContext(ctx, `DELETE FROM queue WHERE id = $1`, id)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return apperrors.NotFoundf("queue entry %s", id)
		}
		return nil
	})
}

func (r *QueueRepo) list(ctx context.Context, query string, args ...interface{}) ([]db.QueueEntry, error) {
	var entries []db.QueueEntry
	err := withRetry(ctx, func(ctx context.Context) error {
		rows, err := r.DB.QueryContext(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()

		entries = entries[:0]
		for rows.Next() {
			var e db.QueueEntry
			err := rows.Scan(
				&e.ID, &e.Position, &e.UserID, &e.UserEmail, &e.PhoneNumber,
				&e.PreferredLocation, &e.VehicleType, &e.ChargingType,
				&e.PreferredTime, &e.CreatedAt,
			)
			if err != nil {
				return err
			}
			entries = append(entries, e)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}
