package core

import (
	"errors"
	"fmt"
)

// ErrorKind classifies provider failures by remediation, not representation.
type ErrorKind string

const (
	KindCredentialMissing  ErrorKind = "credential_missing"
	KindAuthentication     ErrorKind = "authentication_failed"
	KindSessionExpired     ErrorKind = "session_expired"
	KindAccessDenied       ErrorKind = "access_denied"
	KindRateLimited        ErrorKind = "rate_limited"
	KindServerUnavailable  ErrorKind = "server_unavailable"
	KindMalformedResponse  ErrorKind = "malformed_response"
	KindNetwork            ErrorKind = "network_error"
	KindRequestFailed      ErrorKind = "request_failed"
	KindUnexpectedRedirect ErrorKind = "unexpected_redirect"
	KindUnclassified       ErrorKind = "unclassified"
)

// Retryable reports whether waiting and trying again can succeed without
// user action.
func (k ErrorKind) Retryable() bool {
	switch k {
	case KindRateLimited, KindServerUnavailable, KindNetwork:
		return true
	default:
		return false
	}
}

// NeedsUserAction reports whether the user has to re-authenticate or supply
// a new credential.
func (k ErrorKind) NeedsUserAction() bool {
	switch k {
	case KindCredentialMissing, KindAuthentication, KindSessionExpired, KindAccessDenied:
		return true
	default:
		return false
	}
}

type ProviderError struct {
	Provider string
	Kind     ErrorKind
	Status   int
	Err      error
}

func (e *ProviderError) Error() string {
	msg := string(e.Kind)
	if e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Status != 0 {
		return fmt.Sprintf("%s: %s (HTTP %d)", e.Provider, msg, e.Status)
	}
	return e.Provider + ": " + msg
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

func NewError(provider string, kind ErrorKind, format string, args ...any) *ProviderError {
	return &ProviderError{Provider: provider, Kind: kind, Err: fmt.Errorf(format, args...)}
}

func WrapError(provider string, kind ErrorKind, err error) *ProviderError {
	return &ProviderError{Provider: provider, Kind: kind, Err: err}
}

// KindOf returns the kind of the first ProviderError in err's chain, or
// KindUnclassified.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return KindUnclassified
}

// StatusForError maps an error onto the snapshot status used by renderers.
func StatusForError(err error) Status {
	switch KindOf(err) {
	case "":
		return StatusOK
	case KindCredentialMissing, KindAuthentication, KindSessionExpired, KindAccessDenied:
		return StatusAuth
	case KindRateLimited:
		return StatusLimited
	default:
		return StatusError
	}
}
