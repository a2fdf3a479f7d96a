package database

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

var (
	retryInitialInterval = 20 * time.Millisecond
	retryMaxInterval     = 500 * time.Millisecond
	retryMaxElapsed      = 5 * time.Second
	retryMaxRetries      = uint64(5)
)

// IsBusy reports whether err is SQLITE_BUSY or SQLITE_LOCKED (extended codes
// included). Another process, such as the migrate command, holding the write
// lock produces these.
func IsBusy(err error) bool {
	var sqliteErr *sqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	switch sqliteErr.Code() & 0xff {
	case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
		return true
	}
	return false
}

// retryBusy runs op until it succeeds, fails with a non-busy error, or the
// backoff gives up. The last real error is returned, never a backoff wrapper.
func retryBusy(ctx context.Context, op func() error) error {
	b := backoff.WithMaxRetries(backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(retryInitialInterval),
		backoff.WithMaxInterval(retryMaxInterval),
		backoff.WithMaxElapsedTime(retryMaxElapsed),
	), retryMaxRetries)

	var lastErr error
	err := backoff.Retry(func() error {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !IsBusy(lastErr) {
			return backoff.Permanent(lastErr)
		}
		return lastErr
	}, backoff.WithContext(b, ctx))

	if err != nil && lastErr != nil {
		return lastErr
	}
	return err
}
