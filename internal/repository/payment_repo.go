package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"chargeslot/internal/db"
	apperrors "chargeslot/internal/errors"
)

type PaymentRepo struct {
	DB *sql.DB
}

func NewPaymentRepo(database *sql.DB) *PaymentRepo {
	return &PaymentRepo{DB: database}
}

// Create records an initiated payment as pending.
func (r *PaymentRepo) Create(ctx context.Context, p *db.Payment) error {
	p.ID = uuid.NewString()
	p.Status = db.PaymentPending
	return withRetry(ctx, func(ctx context.Context) error {
		return r.DB.QueryRowContext(ctx, `
			INSERT INTO payments
				(id, booking_id, amount_rupees, currency, status, processed, stripe_session_id)
			VALUES ($1, $2, $3, $4, $5, FALSE, $6)
			RETURNING created_at`,
			p.ID, p.BookingID, p.AmountRupees, p.Currency, p.Status, p.StripeSessionID,
		).Scan(&p.CreatedAt)
	})
}

func (r *PaymentRepo) GetBySessionID(ctx context.Context, sessionID string) (*db.Payment, error) {
	var p db.Payment
	err := withRetry(ctx, func(ctx context.Context) error {
		err := r.DB.QueryRowContext(ctx, `
			SELECT id, booking_id, amount_rupees, currency, status, processed, stripe_session_id, created_at
			FROM payments WHERE stripe_session_id = $1`, sessionID).Scan(
			&p.ID, &p.BookingID, &p.AmountRupees, &p.Currency, &p.Status,
			&p.Processed, &p.StripeSessionID, &p.CreatedAt,
		)
		if errors.Is(err, sql.ErrNoRows) {
			return apperrors.NotFoundf("payment for session %s", sessionID)
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// MarkCompleted flips a pending payment to completed. Already-completed
// payments are left alone; the processed flag decides who fulfils.
func (r *PaymentRepo) MarkCompleted(ctx context.Context, id string) error {
	return withRetry(ctx, func(ctx context.Context) error {
		_, err := r.DB.ExecContext(ctx, `
			UPDATE payments SET status = $2 WHERE id = $1 AND status = $3`,
			id, db.PaymentCompleted, db.PaymentPending)
		return err
	})
}

// Claim flips the processed guard. Exactly one of the webhook and the
// reconciler wins the claim for a given payment; the loser must not fulfil.
func (r *PaymentRepo) Claim(ctx context.Context, id string) (bool, error) {
	var won bool
	err := withRetry(ctx, func(ctx context.Context) error {
		res, err := r.DB.ExecContext(ctx, `
			UPDATE payments SET processed = TRUE WHERE id = $1 AND processed = FALSE`, id)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		won = n == 1
		return nil
	})
	return won, err
}

// ListUnprocessed returns payments whose fulfilment has not run yet: rows
// already completed (webhook landed, fulfil crashed) and pending rows old
// enough that the webhook has probably been missed and Stripe should be
// polled.
func (r *PaymentRepo) ListUnprocessed(ctx context.Context, pendingOlderThan time.Duration) ([]db.Payment, error) {
	var payments []db.Payment
	err := withRetry(ctx, func(ctx context.Context) error {
		rows, err := r.DB.QueryContext(ctx, `
			SELECT id, booking_id, amount_rupees, currency, status, processed, stripe_session_id, created_at
			FROM payments
			WHERE processed = FALSE
			  AND (status = $1 OR created_at < NOW() - $2 * INTERVAL '1 second')
			ORDER BY created_at`,
			db.PaymentCompleted, int(pendingOlderThan.Seconds()))
		if err != nil {
			return err
		}
		defer rows.Close()

		payments = payments[:0]
		for rows.Next() {
			var p db.Payment
			err := rows.Scan(
				&p.ID, &p.BookingID, &p.AmountRupees, &p.Currency, &p.Status,
				&p.Processed, &p.StripeSessionID, &p.CreatedAt,
			)
			if err != nil {
				return err
			}
			payments = append(payments, p)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return payments, nil
}
