package domain

import (
	"errors"
	"fmt"
)

// ErrCancelled is returned when a session observes its cancellation token
var ErrCancelled = errors.New("download cancelled")

// RestrictionError reports age or region gated content that needs credentials
type RestrictionError struct {
	Message string
}

func (e *RestrictionError) Error() string {
	return e.Message
}

// EngineError is any other probe or download failure, kept verbatim
type EngineError struct {
	Op      string
	Message string
	Err     error
}

func (e *EngineError) Error() string {
	return e.Message
}

func (e *EngineError) Unwrap() error {
	return e.Err
}

// ConflictDeniedError is returned when replacing an existing file was declined
type ConflictDeniedError struct {
	File     string
	Decision Decision
}

func (e *ConflictDeniedError) Error() string {
	if e.Decision == DecisionTimedOut {
		return fmt.Sprintf("no answer about replacing %s", e.File)
	}
	return fmt.Sprintf("replacing %s was declined", e.File)
}

// AuthExhaustedError is returned when every browser candidate failed
type AuthExhaustedError struct {
	Attempts int
	Last     error
}

func (e *AuthExhaustedError) Error() string {
	if e.Last == nil {
		return fmt.Sprintf("sign-in failed after %d browser attempts", e.Attempts)
	}
	return fmt.Sprintf("sign-in failed after %d browser attempts: %v", e.Attempts, e.Last)
}

func (e *AuthExhaustedError) Unwrap() error {
	return e.Last
}

// IntegrityError reports an encrypt or decrypt failure of the credential store
type IntegrityError struct {
	Op  string
	Err error
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("credential store %s failed: %v", e.Op, e.Err)
}

func (e *IntegrityError) Unwrap() error {
	return e.Err
}

// IsRestriction checks if err is a restriction error
func IsRestriction(err error) bool {
	var re *RestrictionError
	return errors.As(err, &re)
}

// IsNeutral reports whether a terminal error is a user stop rather than a
// failure: declined confirmation or cancellation.
func IsNeutral(err error) bool {
	if errors.Is(err, ErrCancelled) {
		return true
	}
	var cd *ConflictDeniedError
	return errors.As(err, &cd)
}
