package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"chargeslot/internal/entities"
	apperrors "chargeslot/internal/errors"
)

// SlotStatus is the three-state answer for a grid lookup. Unknown keys are
// not errors: booking creation denies them, listings skip them.
type SlotStatus int

const (
	SlotUnknown SlotStatus = iota
	SlotAvailable
	SlotTaken
)

// SlotRepo owns the dense availability grid. Cells are created once at
// bootstrap and only ever overwritten, never deleted.
type SlotRepo struct {
	DB *sql.DB
}

func NewSlotRepo(db *sql.DB) *SlotRepo {
	return &SlotRepo{DB: db}
}

// EnsureGrid bootstraps every (location, vehicle type, charging type, hour)
// cell as available. Existing cells are left alone, so a restart never wipes
// admin-curated availability.
func (r *SlotRepo) EnsureGrid(ctx context.Context, locations, vehicleTypes, chargingTypes, hours []string) error {
	return withRetry(ctx, func(ctx context.Context) error {
		tx, err := r.DB.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer tx.Rollback()

		const query = `
			INSERT INTO slots (location, vehicle_type, charging_type, hour, available)
			VALUES ($1, $2, $3, $4, TRUE)
			ON CONFLICT (location, vehicle_type, charging_type, hour) DO NOTHING`
		for _, loc := range locations {
			for _, vt := range vehicleTypes {
				for _, ct := range chargingTypes {
					for _, hour := range hours {
						if _, err := tx.ExecContext(ctx, query, loc, vt, ct, hour); err != nil {
							return fmt.Errorf("bootstrapping slot %s/%s/%s/%s: %w", loc, vt, ct, hour, err)
						}
					}
				}
			}
		}
		return tx.Commit()
	})
}

// Get returns the cell's current availability, or SlotUnknown when the key
// is outside the configured grid.
func (r *SlotRepo) Get(ctx context.Context, key entities.SlotKey) (SlotStatus, error) {
	var status SlotStatus
	err := withRetry(ctx, func(ctx context.Context) error {
		const query = `
			SELECT available FROM slots
			WHERE location = $1 AND vehicle_type = $2 AND charging_type = $3 AND hour = $4`
		var available bool
		err := r.DB.QueryRowContext(ctx, query, key.Location, key.VehicleType, key.ChargingType, key.Hour).Scan(&available)
		if errors.Is(err, sql.ErrNoRows) {
			status = SlotUnknown
			return nil
		}
		if err != nil {
			return err
		}
		if available {
			status = SlotAvailable
		} else {
			status = SlotTaken
		}
		return nil
	})
	return status, err
}

// reserveTx flips an available cell to taken inside the caller's
// transaction. The conditional update is the compare-and-set that keeps two
// concurrent bookings from both succeeding: the row lock serializes them and
// the loser sees zero affected rows. A key outside the grid also affects
// zero rows, which is the required deny-by-default for unknown keys.
func (r *SlotRepo) reserveTx(ctx context.Context, tx *sql.Tx, key entities.SlotKey) error {
	const query = `
		UPDATE slots SET available = FALSE
		WHERE location = $1 AND vehicle_type = $2 AND charging_type = $3 AND hour = $4
		  AND available = TRUE`
	res, err := tx.ExecContext(ctx, query, key.Location, key.VehicleType, key.ChargingType, key.Hour)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", apperrors.ErrSlotUnavailable, key)
	}
	return nil
}

// Release marks the cell available again after a cancellation or
// fulfilment. The overwrite is unconditional: releasing an already-available
// cell is a no-op, not an error.
func (r *SlotRepo) Release(ctx context.Context, key entities.SlotKey) error {
	return r.SetAvailability(ctx, key, true)
}

// SetAvailability overwrites one cell. An unknown key is NotFound so the
// admin surface can distinguish a typo from a real overwrite.
func (r *SlotRepo) SetAvailability(ctx context.Context, key entities.SlotKey, available bool) error {
	return withRetry(ctx, func(ctx context.Context) error {
		const query = `
			UPDATE slots SET available = $5
			WHERE location = $1 AND vehicle_type = $2 AND charging_type = $3 AND hour = $4`
		res, err := r.DB.ExecContext(ctx, query, key.Location, key.VehicleType, key.ChargingType, key.Hour, available)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return apperrors.NotFoundf("slot %s is outside the configured grid", key)
		}
		return nil
	})
}

// Snapshot returns the whole grid as the nested tree the availability views
// render.
func (r *SlotRepo) Snapshot(ctx context.Context) (entities.SlotTree, error) {
	tree := entities.SlotTree{}
	err := withRetry(ctx, func(ctx context.Context) error {
		const query = `
			SELECT location, vehicle_type, charging_type, hour, available
			FROM slots ORDER BY location, vehicle_type, charging_type, hour`
		rows, err := r.DB.QueryContext(ctx, query)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var loc, vt, ct, hour string
			var available bool
			if err := rows.Scan(&loc, &vt, &ct, &hour, &available); err != nil {
				return err
			}
			if tree[loc] == nil {
				tree[loc] = map[string]map[string]map[string]bool{}
			}
			if tree[loc][vt] == nil {
				tree[loc][vt] = map[string]map[string]bool{}
			}
			if tree[loc][vt][ct] == nil {
				tree[loc][vt][ct] = map[string]bool{}
			}
			tree[loc][vt][ct][hour] = available
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return tree, nil
}
