package hxcaptcha

import (
	"errors"
	"fmt"
)

// ErrorCode is the closed set of failure codes surfaced to the host.
//
// Codes reported by the widget runtime are mapped onto this set by
// MapNativeError; anything unrecognized becomes ErrorUnknown. Hosts can
// switch on an ErrorCode without a default case ever hiding a new value.
type ErrorCode string

const (
	ErrorUnknown              ErrorCode = "UNKNOWN_ERROR"
	ErrorNoFormFound          ErrorCode = "NO_FORM_FOUND"
	ErrorCommunicationFailure ErrorCode = "COMMUNICATION_FAILURE"
	ErrorNoSiteKeySpecified   ErrorCode = "NO_SITE_KEY_SPECIFIED"
	ErrorUnauthorized         ErrorCode = "UNAUTHORIZED"
	ErrorSiteKeyNotValid      ErrorCode = "SITE_KEY_NOT_VALID"
	ErrorModesNotMatching     ErrorCode = "MODES_NOT_MATCHING"
	ErrorCaptchaNotAccessible ErrorCode = "CAPTCHA_NOT_ACCESSIBLE"
	ErrorPowFailure           ErrorCode = "POW_FAILURE"
	ErrorPaymentRequired      ErrorCode = "PAYMENT_REQUIRED"
	ErrorLocked               ErrorCode = "LOCKED"
	ErrorLicenseInvalid       ErrorCode = "LICENSE_INVALID"
	ErrorOptionNotAvailable   ErrorCode = "OPTION_NOT_AVAILABLE"
)

var errorCodes = []ErrorCode{
	ErrorUnknown,
	ErrorNoFormFound,
	ErrorCommunicationFailure,
	ErrorNoSiteKeySpecified,
	ErrorUnauthorized,
	ErrorSiteKeyNotValid,
	ErrorModesNotMatching,
	ErrorCaptchaNotAccessible,
	ErrorPowFailure,
	ErrorPaymentRequired,
	ErrorLocked,
	ErrorLicenseInvalid,
	ErrorOptionNotAvailable,
}

// ErrorCodes returns every member of the closed error set.
func ErrorCodes() []ErrorCode {
	out := make([]ErrorCode, len(errorCodes))
	copy(out, errorCodes)
	return out
}

// Valid reports whether c is one of the enumerated codes.
func (c ErrorCode) Valid() bool {
	for _, known := range errorCodes {
		if c == known {
			return true
		}
	}
	return false
}

// CaptchaError is the failure payload delivered to OnCaptchaFailed.
//
// It serializes to {"errorCode": ..., "message": ...}, the same shape the
// widget runtime uses, so it can be forwarded to the browser as-is.
type CaptchaError struct {
	Code    ErrorCode `json:"errorCode"`
	Message string    `json:"message"`

	cause error
}

// NewCaptchaError builds a CaptchaError. Codes outside the closed set are
// coerced to ErrorUnknown.
func NewCaptchaError(code ErrorCode, message string) *CaptchaError {
	if !code.Valid() {
		code = ErrorUnknown
	}
	return &CaptchaError{Code: code, Message: message}
}

func wrapCaptchaError(code ErrorCode, cause error, format string, args ...any) *CaptchaError {
	e := NewCaptchaError(code, fmt.Sprintf(format, args...))
	e.cause = cause
	return e
}

func (e *CaptchaError) Error() string {
	if e.Message == "" {
		return "hxcaptcha: " + string(e.Code)
	}
	return "hxcaptcha: " + string(e.Code) + ": " + e.Message
}

// Unwrap returns the local cause, if any (e.g. ErrMalformedConfig).
func (e *CaptchaError) Unwrap() error {
	return e.cause
}

// Is matches another *CaptchaError with the same code, so
// errors.Is(err, &CaptchaError{Code: ErrorLocked}) works.
func (e *CaptchaError) Is(target error) bool {
	var t *CaptchaError
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// Sentinel errors for component operations.
var (
	ErrNotFound          = errors.New("hxcaptcha: resource not found")
	ErrDecryptFailed     = errors.New("hxcaptcha: parameter decryption failed")
	ErrSignatureInvalid  = errors.New("hxcaptcha: signature verification failed")
	ErrInvalidFormat     = errors.New("hxcaptcha: invalid parameter format")
	ErrHydrationFailed   = errors.New("hxcaptcha: hydration failed")
	ErrMalformedConfig   = errors.New("hxcaptcha: malformed configuration")
	ErrMissingSitekey    = errors.New("hxcaptcha: sitekey is required")
	ErrUnknownEvent      = errors.New("hxcaptcha: unknown native event")
	ErrInvalidTransition = errors.New("hxcaptcha: invalid state transition")
	ErrUnmounted         = errors.New("hxcaptcha: widget unmounted")
	ErrAlreadyMounted    = errors.New("hxcaptcha: mount point already has a live widget")
)

// CodeOf collapses any error to the closed error set. nil yields "".
func CodeOf(err error) ErrorCode {
	if err == nil {
		return ""
	}
	var ce *CaptchaError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return ErrorUnknown
}

// AsCaptchaError converts err to a *CaptchaError, wrapping foreign errors
// as ErrorUnknown.
func AsCaptchaError(err error) *CaptchaError {
	if err == nil {
		return nil
	}
	var ce *CaptchaError
	if errors.As(err, &ce) {
		return ce
	}
	return wrapCaptchaError(ErrorUnknown, err, "%s", err.Error())
}

// IsNotFound checks if err is a not-found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsDecryptionError checks if err is a decryption or signature error.
func IsDecryptionError(err error) bool {
	return errors.Is(err, ErrDecryptFailed) || errors.Is(err, ErrSignatureInvalid)
}

// IsConfigError reports whether err came from local configuration checks
// rather than the widget runtime.
func IsConfigError(err error) bool {
	return errors.Is(err, ErrMalformedConfig) || errors.Is(err, ErrMissingSitekey)
}
