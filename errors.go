package mealpass

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/mealvine/mealpass/subscription"
	"github.com/mealvine/mealpass/types"
)

// Sentinel errors for common failure scenarios.
var (
	// General errors
	ErrNotFound      = errors.New("mealpass: not found")
	ErrAlreadyExists = errors.New("mealpass: already exists")
	ErrInvalidInput  = errors.New("mealpass: invalid input")

	// Plan errors
	ErrPlanNotFound  = errors.New("mealpass: plan not found")
	ErrPlanInactive  = errors.New("mealpass: plan is inactive")
	ErrDuplicatePlan = errors.New("mealpass: active plan with same name, duration and scope exists")

	// Subscription errors
	ErrSubscriptionNotFound = errors.New("mealpass: subscription not found")
	ErrSubscriptionConflict = errors.New("mealpass: customer holds an active subscription with overlapping scope")
	ErrSubscriptionExpired  = errors.New("mealpass: subscription is expired")
	ErrVouchersExhausted    = errors.New("mealpass: all vouchers have been redeemed")
	ErrAlreadyCancelled     = errors.New("mealpass: subscription is already cancelled")

	// Concurrency errors
	ErrStaleRecord = errors.New("mealpass: record changed concurrently")

	// Redemption log errors
	ErrRedemptionBufferFull = errors.New("mealpass: redemption buffer full")

	// Store errors
	ErrStoreNotReady   = errors.New("mealpass: store not ready")
	ErrMigrationFailed = errors.New("mealpass: migration failed")
)

// ValidationError represents a validation failure with details.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("mealpass: validation failed for %s: %s", e.Field, e.Message)
}

func (e ValidationError) Unwrap() error { return ErrInvalidInput }

// PriceMismatchError is returned when the amount paid does not match the
// plan's price within tolerance. Both amounts are carried so the boundary
// can render them.
type PriceMismatchError struct {
	Want types.Money
	Got  types.Money
}

func (e PriceMismatchError) Error() string {
	return fmt.Sprintf("mealpass: price mismatch: plan costs %s, paid %s", e.Want, e.Got)
}

func (e PriceMismatchError) Unwrap() error { return ErrInvalidInput }

// InvalidStateError is returned when an operation requires an ACTIVE
// subscription but the record is in a terminal state.
type InvalidStateError struct {
	Status subscription.Status
}

func (e InvalidStateError) Error() string {
	return fmt.Sprintf("mealpass: subscription is %s", e.Status)
}

// IsNotFound returns true if the error is a not found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrPlanNotFound) ||
		errors.Is(err, ErrSubscriptionNotFound)
}

// IsConflict returns true if the error reports a uniqueness or
// overlapping-scope conflict.
func IsConflict(err error) bool {
	return errors.Is(err, ErrAlreadyExists) ||
		errors.Is(err, ErrDuplicatePlan) ||
		errors.Is(err, ErrSubscriptionConflict)
}

// IsInvalidState returns true if the error reports an operation attempted
// against a subscription outside the required state.
func IsInvalidState(err error) bool {
	var ise InvalidStateError
	return errors.As(err, &ise) ||
		errors.Is(err, ErrSubscriptionExpired) ||
		errors.Is(err, ErrVouchersExhausted) ||
		errors.Is(err, ErrAlreadyCancelled)
}

// IsValidation returns true if the error is a client input problem.
func IsValidation(err error) bool {
	return errors.Is(err, ErrInvalidInput)
}

// IsRetryable returns true if the error is temporary and the operation can be retried.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrStaleRecord) ||
		errors.Is(err, ErrRedemptionBufferFull) ||
		errors.Is(err, ErrStoreNotReady)
}

// Code returns a stable machine-readable code for the error, suitable for
// API payloads. Transport layers render it alongside HTTPStatus.
func Code(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrSubscriptionExpired):
		return "subscription_expired"
	case errors.Is(err, ErrVouchersExhausted):
		return "vouchers_exhausted"
	case errors.Is(err, ErrAlreadyCancelled):
		return "already_cancelled"
	case IsInvalidState(err):
		return "invalid_state"
	case IsNotFound(err):
		return "not_found"
	case IsConflict(err):
		return "conflict"
	case IsValidation(err):
		return "validation_failed"
	default:
		return "internal"
	}
}

// HTTPStatus maps an error to the HTTP status an external transport layer
// should respond with. Unclassified errors map to 500 without leaking
// internals.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case IsNotFound(err):
		return http.StatusNotFound
	case IsConflict(err):
		return http.StatusConflict
	case IsInvalidState(err), IsValidation(err):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
