// Package errs defines the tagged error type shared by all workspace
// services. Callers branch on Kind rather than message text; anything
// without a kind is an unexpected failure and propagates unmodified.
package errs

import (
	"errors"
	"fmt"
)

// Kind identifies a user-facing failure condition.
type Kind string

const (
	// KindUnauthenticated means no resolvable identity; recoverable via sign-in.
	KindUnauthenticated Kind = "unauthenticated"

	// KindNoActiveOrg means the session has no selected organization; the
	// caller should route to onboarding or organization selection.
	KindNoActiveOrg Kind = "no_active_org"

	// KindStaleOrgSelection means the session points at an organization the
	// user is no longer (or never was) a member of; the caller should clear
	// the stale selection before re-entering the selection flow.
	KindStaleOrgSelection Kind = "stale_org_selection"

	// KindForbidden means the caller's role is insufficient.
	KindForbidden Kind = "forbidden"

	// KindNotFound means the target is missing, soft-deleted, or belongs to
	// another organization. The three cases are intentionally
	// indistinguishable.
	KindNotFound Kind = "not_found"

	// KindUserNotFound means no user exists for the given identifier.
	KindUserNotFound Kind = "user_not_found"

	// KindAlreadyMember means a membership already exists for the pair.
	KindAlreadyMember Kind = "already_member"

	// KindLastOwner means the mutation would leave the organization without
	// an OWNER membership.
	KindLastOwner Kind = "last_owner"

	// KindUsageLimitExceeded means the monthly metered quota is exhausted.
	KindUsageLimitExceeded Kind = "usage_limit_exceeded"

	// KindAIProviderError wraps any failure of the external text generation
	// provider.
	KindAIProviderError Kind = "ai_provider_error"

	// KindInvalidArgument means the request shape or field values failed
	// validation.
	KindInvalidArgument Kind = "invalid_argument"
)

// Error is a tagged domain error.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	if e.Message == "" {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap exposes the wrapped cause, if any.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches two errors by kind, so sentinel values below work with
// errors.Is regardless of message or wrapped cause.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// New creates a tagged error.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap creates a tagged error wrapping a cause.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// KindOf returns the kind of err, or "" when err carries none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// Sentinel values for errors.Is checks.
var (
	ErrUnauthenticated    = New(KindUnauthenticated, "not signed in")
	ErrNoActiveOrg        = New(KindNoActiveOrg, "no active organization selected")
	ErrStaleOrgSelection  = New(KindStaleOrgSelection, "active organization selection is stale")
	ErrForbidden          = New(KindForbidden, "insufficient role")
	ErrNotFound           = New(KindNotFound, "not found")
	ErrUserNotFound       = New(KindUserNotFound, "user not found")
	ErrAlreadyMember      = New(KindAlreadyMember, "user is already a member")
	ErrLastOwner          = New(KindLastOwner, "organization must keep at least one owner")
	ErrUsageLimitExceeded = New(KindUsageLimitExceeded, "monthly AI request limit reached")
	ErrAIProviderError    = New(KindAIProviderError, "text generation provider failed")
	ErrInvalidArgument    = New(KindInvalidArgument, "invalid argument")
)
