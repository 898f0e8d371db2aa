package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when something is not found
	ErrNotFound = errors.New("item not found")
	ErrConflict = errors.New("item already exists")

	ErrValidation = errors.New("validation failed")

	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrEmailNotVerified   = errors.New("email not verified")
	ErrAccountDisabled    = errors.New("account disabled")
	ErrSignupFailed       = errors.New("signup failed")

	ErrFetchFailed  = errors.New("fetch failed")
	ErrWriteFailed  = errors.New("write failed")
	ErrDeleteFailed = errors.New("delete failed")

	// ErrNoIdentity is the panic value for record operations without a signed in identity.
	ErrNoIdentity = errors.New("record operation requires an identity")
)

// ErrorCode is a machine-readable auth error, in the provider's vocabulary.
type ErrorCode string

const (
	CodeInvalidCredential ErrorCode = "auth/invalid-credential"
	CodeEmailNotVerified  ErrorCode = "auth/email-not-verified"
	CodeUserDisabled      ErrorCode = "auth/user-disabled"
	CodeEmailInUse        ErrorCode = "auth/email-already-in-use"
	CodeWeakPassword      ErrorCode = "auth/weak-password"
	CodeInvalidEmail      ErrorCode = "auth/invalid-email"
	CodeTooManyRequests   ErrorCode = "auth/too-many-requests"
	CodeNetworkFailed     ErrorCode = "auth/network-request-failed"
	CodeInternal          ErrorCode = "auth/internal-error"
)

// Message is the text shown to the user for the code.
func (c ErrorCode) Message() string {
	switch c {
	case CodeInvalidCredential:
		return "Invalid email or password"
	case CodeEmailNotVerified:
		return "Email not verified. Please check your inbox."
	case CodeUserDisabled:
		return "This account has been disabled"
	case CodeEmailInUse:
		return "An account with this email already exists"
	case CodeWeakPassword:
		return "Password should be at least 6 characters"
	case CodeInvalidEmail:
		return "Please enter a valid email address"
	case CodeTooManyRequests:
		return "Too many attempts. Please try again later"
	case "":
		return ""
	}
	return "Login failed. Please try again"
}

// ProviderError is a rejection reported by the auth provider.
type ProviderError struct {
	Code    ErrorCode
	Message string
}

func (e *ProviderError) Error() string {
	if e.Message == "" {
		return string(e.Code)
	}
	return fmt.Sprintf("%v: %v", e.Code, e.Message)
}

// SignupError wraps the provider's reason for refusing an account.
type SignupError struct {
	Code   ErrorCode
	Reason string
}

func (e *SignupError) Error() string {
	return fmt.Sprintf("signup failed: %v", e.Reason)
}

func (e *SignupError) Unwrap() error {
	return ErrSignupFailed
}

// ValidationError names the first field that failed local validation.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// CodeOf extracts the ErrorCode carried by err, or CodeInternal.
func CodeOf(err error) ErrorCode {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Code
	}
	var se *SignupError
	if errors.As(err, &se) {
		return se.Code
	}
	switch {
	case errors.Is(err, ErrInvalidCredentials):
		return CodeInvalidCredential
	case errors.Is(err, ErrEmailNotVerified):
		return CodeEmailNotVerified
	case errors.Is(err, ErrAccountDisabled):
		return CodeUserDisabled
	}
	return CodeInternal
}
