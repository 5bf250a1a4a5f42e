package queries

import (
	"context"
	"errors"
	"fmt"

	"github.com/DedS3t/monopoly-arena/platform/engine"
	"github.com/go-pg/pg/v10"
)

// SQLSTATE codes that mean "try again": lock_not_available, query_canceled
// (statement_timeout), serialization_failure and deadlock_detected.
var transientCodes = map[string]bool{
	"55P03": true,
	"57014": true,
	"40001": true,
	"40P01": true,
}

// mapError turns driver errors into engine errors. Anything it does not
// recognise is returned unchanged.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, engine.ErrTransientLockTimeout) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", engine.ErrTransientLockTimeout, err)
	}
	var pgErr pg.Error
	if errors.As(err, &pgErr) && transientCodes[pgErr.Field('C')] {
		return fmt.Errorf("%w: %s", engine.ErrTransientLockTimeout, pgErr.Field('M'))
	}
	return err
}

// notFound maps pg.ErrNoRows to an InvalidState naming what was missing.
func notFound(err error, what string, id interface{}) error {
	if errors.Is(err, pg.ErrNoRows) {
		return fmt.Errorf("%w: %s %v not found", engine.ErrInvalidState, what, id)
	}
	return mapError(err)
}
