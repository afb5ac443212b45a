// Package autherr defines the rejection taxonomy shared by the request
// pipeline, the credential store and the tenant resolver, and renders it
// as generic HTTP error responses.
package autherr

import (
	"context"
	"errors"
	"net/http"
)

// Kind classifies why a request was rejected.
type Kind int

const (
	KindInternal Kind = iota
	KindUnauthenticated
	KindMalformed
	KindExpired
	KindBadSignature
	KindReuseDetected
	KindRevoked
	KindNotAMember
	KindForbidden
	KindCSRFMismatch
	KindRateLimited
	KindUnavailable
	KindInvalidRequest
	KindNotFound
	KindConflict
)

// Sentinel errors, one per kind. Callers wrap these with fmt.Errorf("...: %w")
// to add detail for the server log; the detail never reaches the client.
var (
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrMalformed       = errors.New("malformed credential")
	ErrExpired         = errors.New("credential expired")
	ErrBadSignature    = errors.New("credential signature invalid")
	ErrReuseDetected   = errors.New("refresh token reuse detected")
	ErrRevoked         = errors.New("session revoked")
	ErrNotAMember      = errors.New("principal is not a member of tenant")
	ErrForbidden       = errors.New("permission denied")
	ErrCSRFMismatch    = errors.New("csrf token mismatch")
	ErrRateLimited     = errors.New("rate limit exceeded")
	ErrUnavailable     = errors.New("dependency unavailable")
	ErrInvalidRequest  = errors.New("invalid request")
	ErrNotFound        = errors.New("not found")
	ErrConflict        = errors.New("conflict")
)

var kindTable = []struct {
	err  error
	kind Kind
}{
	{ErrUnauthenticated, KindUnauthenticated},
	{ErrMalformed, KindMalformed},
	{ErrExpired, KindExpired},
	{ErrBadSignature, KindBadSignature},
	{ErrReuseDetected, KindReuseDetected},
	{ErrRevoked, KindRevoked},
	{ErrNotAMember, KindNotAMember},
	{ErrForbidden, KindForbidden},
	{ErrCSRFMismatch, KindCSRFMismatch},
	{ErrRateLimited, KindRateLimited},
	{ErrUnavailable, KindUnavailable},
	{ErrInvalidRequest, KindInvalidRequest},
	{ErrNotFound, KindNotFound},
	{ErrConflict, KindConflict},
}

// KindOf returns the kind of the first sentinel found in err's chain.
// Deadline errors from bounded lookups are reported as KindUnavailable.
func KindOf(err error) Kind {
	if err == nil {
		return KindInternal
	}
	for _, k := range kindTable {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindUnavailable
	}
	return KindInternal
}

// String returns the stable metric/log label for the kind.
func (k Kind) String() string {
	switch k {
	case KindUnauthenticated:
		return "unauthenticated"
	case KindMalformed:
		return "malformed"
	case KindExpired:
		return "expired"
	case KindBadSignature:
		return "bad_signature"
	case KindReuseDetected:
		return "reuse_detected"
	case KindRevoked:
		return "revoked"
	case KindNotAMember:
		return "not_a_member"
	case KindForbidden:
		return "forbidden"
	case KindCSRFMismatch:
		return "csrf_mismatch"
	case KindRateLimited:
		return "rate_limited"
	case KindUnavailable:
		return "unavailable"
	case KindInvalidRequest:
		return "invalid_request"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	default:
		return "internal"
	}
}

// HTTPStatus maps a kind to its response status code.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindUnauthenticated, KindMalformed, KindExpired, KindBadSignature,
		KindReuseDetected, KindRevoked:
		return http.StatusUnauthorized
	case KindNotAMember, KindForbidden, KindCSRFMismatch:
		return http.StatusForbidden
	case KindRateLimited:
		return http.StatusTooManyRequests
	case KindUnavailable:
		return http.StatusServiceUnavailable
	case KindInvalidRequest:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// Code is the client-facing error code. NotAMember and Forbidden share a code
// so a response never reveals whether a tenant exists.
func (k Kind) Code() string {
	switch k {
	case KindUnauthenticated, KindMalformed, KindBadSignature:
		return "unauthenticated"
	case KindExpired:
		return "token_expired"
	case KindReuseDetected, KindRevoked:
		return "session_revoked"
	case KindNotAMember, KindForbidden:
		return "forbidden"
	case KindCSRFMismatch:
		return "csrf_failed"
	default:
		return k.String()
	}
}

// Message is the generic, client-facing description of the kind.
func (k Kind) Message() string {
	switch k {
	case KindUnauthenticated, KindMalformed, KindBadSignature:
		return "authentication required"
	case KindExpired:
		return "access token expired"
	case KindReuseDetected, KindRevoked:
		return "session is no longer valid"
	case KindNotAMember, KindForbidden:
		return "you do not have access to this resource"
	case KindCSRFMismatch:
		return "request could not be verified"
	case KindRateLimited:
		return "too many requests"
	case KindUnavailable:
		return "service temporarily unavailable"
	case KindInvalidRequest:
		return "invalid request"
	case KindNotFound:
		return "not found"
	case KindConflict:
		return "request conflicts with current state"
	default:
		return "internal error"
	}
}

// IsSecurityEvent reports whether a rejection of this kind should be logged
// as a security event rather than routine noise.
func (k Kind) IsSecurityEvent() bool {
	switch k {
	case KindReuseDetected, KindRevoked, KindCSRFMismatch, KindNotAMember, KindBadSignature:
		return true
	}
	return false
}

// Retryable reports whether the client may retry the same request unchanged.
func (k Kind) Retryable() bool {
	return k == KindUnavailable || k == KindRateLimited
}
