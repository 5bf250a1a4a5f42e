package engine

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidState covers missing rows, games that are not running and
	// seats that cannot act. Not retried.
	ErrInvalidState = errors.New("invalid state")
	// ErrNotYourTurn is returned when the seat does not hold the turn.
	ErrNotYourTurn = errors.New("not your turn")
	// ErrAlreadyRolled is returned for a second roll in the same round.
	ErrAlreadyRolled = errors.New("already rolled this round")
	// ErrTransientLockTimeout means a lock or statement timed out. The whole
	// operation may be retried.
	ErrTransientLockTimeout = errors.New("lock timeout")
	// ErrInvalidMove rejects dice or moves the rules do not allow.
	ErrInvalidMove = errors.New("invalid move")

	ErrInsufficientFunds = fmt.Errorf("%w: insufficient funds", ErrInvalidState)
)

// Retryable reports whether err is worth retrying as a whole operation.
func Retryable(err error) bool {
	return errors.Is(err, ErrTransientLockTimeout)
}
