// Package apperr defines the error taxonomy shared by the bot components.
package apperr

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when a campaign does not exist.
var ErrNotFound = errors.New("not found")

// ErrCapacity is matched by every CapacityError.
var ErrCapacity = errors.New("capacity reached")

// ValidationError reports bad administrator input. Msg is shown to the admin as is.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Msg
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Msg)
}

// Validation is a shorthand constructor for ValidationError.
func Validation(field, format string, args ...any) error {
	return &ValidationError{Field: field, Msg: fmt.Sprintf(format, args...)}
}

// CapacityError reports that a bounded collection is full.
type CapacityError struct {
	What  string
	Limit int
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("%s limit reached: at most %d", e.What, e.Limit)
}

// Is makes errors.Is(err, ErrCapacity) hold for any CapacityError.
func (e *CapacityError) Is(target error) bool {
	return target == ErrCapacity
}

// OracleError wraps a failed membership or channel query.
// NotFound is set when the platform reported the user or chat as unknown.
type OracleError struct {
	ChannelID int64
	NotFound  bool
	Err       error
}

func (e *OracleError) Error() string {
	return fmt.Sprintf("oracle query for channel %d: %v", e.ChannelID, e.Err)
}

func (e *OracleError) Unwrap() error {
	return e.Err
}

// DeliveryError wraps a failed send to one recipient.
// Permanent is set when the recipient can never be reached again (bot blocked, account deleted).
type DeliveryError struct {
	ChatID    int64
	Permanent bool
	Err       error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("deliver to %d: %v", e.ChatID, e.Err)
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}

// IsPermanentDelivery reports whether err carries a permanent-unreachable signal.
func IsPermanentDelivery(err error) bool {
	var de *DeliveryError
	return errors.As(err, &de) && de.Permanent
}
