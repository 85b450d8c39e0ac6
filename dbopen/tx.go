package dbopen

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

const (
	txAttempts = 3
	txBackoff  = 50 * time.Millisecond
)

// IsBusy reports whether err looks like an SQLITE_BUSY / locked error.
func IsBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "SQLITE_BUSY") ||
		strings.Contains(msg, "(5)")
}

// RunTx runs fn inside a transaction, retrying up to three times on busy
// errors with doubling backoff. Any other error rolls back and returns.
func RunTx(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) error {
	var lastErr error
	backoff := txBackoff

	for attempt := 1; attempt <= txAttempts; attempt++ {
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			if IsBusy(err) {
				lastErr = err
				if serr := sleepCtx(ctx, backoff); serr != nil {
					return serr
				}
				backoff *= 2
				continue
			}
			return fmt.Errorf("dbopen: begin: %w", err)
		}

		if err := fn(tx); err != nil {
			tx.Rollback()
			if IsBusy(err) {
				lastErr = err
				if serr := sleepCtx(ctx, backoff); serr != nil {
					return serr
				}
				backoff *= 2
				continue
			}
			return err
		}

		if err := tx.Commit(); err != nil {
			if IsBusy(err) {
				lastErr = err
				if serr := sleepCtx(ctx, backoff); serr != nil {
					return serr
				}
				backoff *= 2
				continue
			}
			return fmt.Errorf("dbopen: commit: %w", err)
		}
		return nil
	}

	return fmt.Errorf("dbopen: transaction still busy after %d attempts: %w", txAttempts, lastErr)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
