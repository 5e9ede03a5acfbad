package errors

import (
	"context"
	"errors"
	"net/http"
)

// License sentinel errors
var (
	ErrEmptyLicenseKey     = errors.New("license key is required")
	ErrLicenseRejected     = errors.New("license rejected by server")
	ErrNetwork             = errors.New("unable to contact the license server")
	ErrMalformedResponse   = errors.New("the license server sent an unreadable response")
	ErrPersistence         = errors.New("license state persistence failed")
	ErrLicenseExpired      = errors.New("license expired")
	ErrLicenseNotActivated = errors.New("license not activated")
	ErrWindowUnavailable   = errors.New("license window unavailable")
	ErrRateLimited         = errors.New("rate limited")
)

// RejectionError carries the server's verbatim reason for refusing a key
type RejectionError struct {
	StatusCode int
	Message    string
}

func (e *RejectionError) Error() string {
	return "license rejected: " + e.Message
}

// Is reports ErrLicenseRejected as the sentinel for every rejection
func (e *RejectionError) Is(target error) bool {
	return target == ErrLicenseRejected
}

// UserMessage returns the text shown to the user for err.
// Server rejections are passed through verbatim, connectivity problems are
// replaced by a generic message.
func UserMessage(err error) string {
	var rejection *RejectionError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &rejection):
		return rejection.Message
	case errors.Is(err, ErrNetwork):
		return ErrNetwork.Error()
	case errors.Is(err, ErrMalformedResponse):
		return ErrMalformedResponse.Error()
	case errors.Is(err, ErrEmptyLicenseKey):
		return "Please enter a license key"
	case errors.Is(err, ErrPersistence):
		return "Unable to save license data"
	default:
		return "An unexpected error occurred"
	}
}

// MapLicenseError maps domain errors to HTTP problem details
func MapLicenseError(err error, instance, traceID string) *ProblemDetails {
	var (
		problem   *ProblemDetails
		rejection *RejectionError
	)

	switch {
	case errors.As(err, &problem):
		// already shaped for the wire
	case errors.Is(err, ErrEmptyLicenseKey):
		problem = NewProblemDetails(
			http.StatusBadRequest,
			TypeLicenseKeyRequired,
			"License Key Required",
			UserMessage(err),
			instance,
		).WithExtension("error_code", "LICENSE_KEY_REQUIRED")

	case errors.As(err, &rejection):
		problem = NewProblemDetails(
			http.StatusForbidden,
			TypeLicenseRejected,
			"License Rejected",
			rejection.Message,
			instance,
		).WithExtension("error_code", "LICENSE_REJECTED")

	case errors.Is(err, ErrNetwork):
		problem = NewProblemDetails(
			http.StatusServiceUnavailable,
			TypeLicenseServer,
			"License Server Unreachable",
			UserMessage(err),
			instance,
		).WithExtension("error_code", "NETWORK_ERROR")

	case errors.Is(err, ErrMalformedResponse):
		problem = NewProblemDetails(
			http.StatusBadGateway,
			TypeLicenseBadResponse,
			"Invalid License Server Response",
			UserMessage(err),
			instance,
		).WithExtension("error_code", "INVALID_SERVER_RESPONSE")

	case errors.Is(err, ErrLicenseExpired):
		problem = NewProblemDetails(
			http.StatusForbidden,
			TypeLicenseExpired,
			"License Expired",
			"Your license has expired. Please renew to continue.",
			instance,
		).WithExtension("error_code", "LICENSE_EXPIRED")

	case errors.Is(err, ErrLicenseNotActivated):
		problem = NewProblemDetails(
			http.StatusNotFound,
			TypeLicenseNotFound,
			"License Not Activated",
			"No license has been activated on this device.",
			instance,
		).WithExtension("error_code", "LICENSE_NOT_ACTIVATED")

	case errors.Is(err, ErrPersistence):
		problem = NewProblemDetails(
			http.StatusInternalServerError,
			TypeLicensePersistence,
			"License Storage Failure",
			UserMessage(err),
			instance,
		).WithExtension("error_code", "PERSISTENCE_ERROR")

	case errors.Is(err, ErrRateLimited):
		problem = NewProblemDetails(
			http.StatusTooManyRequests,
			TypeRateLimit,
			"Too Many Requests",
			"Too many license submissions. Please try again shortly.",
			instance,
		).WithExtension("error_code", "RATE_LIMITED")

	case errors.Is(err, ErrWindowUnavailable):
		problem = NewProblemDetails(
			http.StatusServiceUnavailable,
			TypeServiceDown,
			"License Window Unavailable",
			"The license window could not be opened.",
			instance,
		).WithExtension("error_code", "WINDOW_UNAVAILABLE")

	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		problem = NewProblemDetails(
			http.StatusGatewayTimeout,
			TypeTimeout,
			"Request Timeout",
			"The request took too long to process and was cancelled",
			instance,
		)

	default:
		problem = NewProblemDetails(
			http.StatusInternalServerError,
			TypeInternal,
			"Internal Server Error",
			"An unexpected error occurred while processing your request.",
			instance,
		).WithExtension("error_code", "INTERNAL_ERROR")
	}

	if traceID != "" {
		problem.WithExtension("trace_id", traceID)
	}
	return problem
}
