package domain

import (
    "context"
    "errors"
    "fmt"
)

var (
    ErrNotFound       = errors.New("not found")
    ErrConflict       = errors.New("conflict")
    ErrSessionBusy    = errors.New("a portal session is already open for this identity")
    ErrSessionExpired = errors.New("portal session expired")
    ErrSessionClosed  = errors.New("portal session closed")
    ErrLockTimeout    = errors.New("capture lock not acquired")
    ErrRawLogFinal    = errors.New("raw capture log already finalized")
    ErrNoCode         = errors.New("no second-factor code available")
)

// AuthErrorKind classifies login failures.
type AuthErrorKind string

const (
    InvalidCredential    AuthErrorKind = "invalid_credential"
    SecondFactorRequired AuthErrorKind = "second_factor_required"
    SecondFactorTimeout  AuthErrorKind = "second_factor_timeout"
    PortalUnavailable    AuthErrorKind = "portal_unavailable"
)

type AuthError struct {
    Kind     AuthErrorKind
    Tribunal string
    Level    InstanceLevel
    Err      error
}

func (e *AuthError) Error() string {
    msg := fmt.Sprintf("auth %s (%s/%s)", e.Kind, e.Tribunal, e.Level)
    if e.Err != nil {
        msg += ": " + e.Err.Error()
    }
    return msg
}

func (e *AuthError) Unwrap() error { return e.Err }

// Retryable reports whether a fresh login attempt may succeed.
func (e *AuthError) Retryable() bool {
    return e.Kind == SecondFactorTimeout || e.Kind == PortalUnavailable
}

// IsAuthKind reports whether err carries an AuthError of the given kind.
func IsAuthKind(err error, kind AuthErrorKind) bool {
    var ae *AuthError
    return errors.As(err, &ae) && ae.Kind == kind
}

// TransportError is a portal call that failed or returned something unusable.
type TransportError struct {
    Op     string
    Status int
    Err    error
}

func (e *TransportError) Error() string {
    if e.Status != 0 {
        return fmt.Sprintf("portal %s: status %d: %v", e.Op, e.Status, e.Err)
    }
    return fmt.Sprintf("portal %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// PartialFetchError ends a page sequence that already produced records.
type PartialFetchError struct {
    Fetched  int
    Reported int
    Pages    int
    Err      error
}

func (e *PartialFetchError) Error() string {
    return fmt.Sprintf("fetch stopped after %d of %d records (%d pages): %v", e.Fetched, e.Reported, e.Pages, e.Err)
}

func (e *PartialFetchError) Unwrap() error { return e.Err }

// PersistenceError is the per-element failure recorded in a capture summary.
type PersistenceError struct {
    Kind       ElementKind
    NaturalKey string
    Err        error
}

func (e *PersistenceError) Error() string {
    return fmt.Sprintf("persist %s %s: %v", e.Kind, e.NaturalKey, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

type ValidationError struct {
    Field  string
    Reason string
}

func (e *ValidationError) Error() string { return e.Field + ": " + e.Reason }

func IsValidation(err error) bool {
    var ve *ValidationError
    return errors.As(err, &ve)
}

// Sanitize maps an internal error to the fixed text shown to API callers.
// Portal response text never leaves the service.
func Sanitize(err error) string {
    if err == nil {
        return ""
    }
    var (
        ae *AuthError
        pe *PartialFetchError
        te *TransportError
        ve *ValidationError
    )
    switch {
    case errors.As(err, &ae):
        switch ae.Kind {
        case InvalidCredential:
            return "portal rejected the stored credential; it has been deactivated"
        case SecondFactorRequired:
            return "portal requires a second factor that could not be provided"
        case SecondFactorTimeout:
            return "second-factor code was not provided in time"
        default:
            return "portal unavailable"
        }
    case errors.As(err, &pe):
        return "portal stopped responding during pagination; partial results kept"
    case errors.Is(err, context.DeadlineExceeded):
        return "capture deadline exceeded"
    case errors.Is(err, context.Canceled):
        return "capture cancelled"
    case errors.Is(err, ErrLockTimeout):
        return "another capture for this identity is still running"
    case errors.Is(err, ErrNotFound):
        return "credential or record not found"
    case errors.As(err, &te):
        return "portal request failed"
    case errors.As(err, &ve):
        return ve.Error()
    }
    return "capture failed"
}
