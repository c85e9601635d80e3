package repository

import (
	"context"
	"database/sql"
	"errors"
	"net"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/lib/pq"

	apperrors "chargeslot/internal/errors"
)

// Every store round trip gets a bounded deadline; a timeout is a transient
// failure, not a definitive answer.
const storeTimeout = 5 * time.Second

// withRetry runs op under a bounded exponential backoff, retrying only
// failures classified as transient. Definitive outcomes (SlotUnavailable,
// NotFound, constraint violations) pass through untouched so callers can
// match on the taxonomy sentinels.
func withRetry(ctx context.Context, op func(ctx context.Context) error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 100 * time.Millisecond
	b.MaxElapsedTime = 3 * time.Second

	return backoff.Retry(func() error {
		opCtx, cancel := context.WithTimeout(ctx, storeTimeout)
		defer cancel()
		err := op(opCtx)
		if err == nil {
			return nil
		}
		if isTransient(err) {
			return apperrors.Transient(err)
		}
		return backoff.Permanent(err)
	}, backoff.WithContext(b, ctx))
}

func isTransient(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, sql.ErrConnDone) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		// 08 connection exception, 53 insufficient resources,
		// 57 operator intervention (e.g. shutdown in progress).
		switch pqErr.Code.Class() {
		case "08", "53", "57":
			return true
		}
	}
	return false
}
