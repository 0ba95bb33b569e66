package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/LuckPerms/rest-api/internal/perms"
	"github.com/LuckPerms/rest-api/internal/wire"
)

// ErrorKind classifies a failed request.
type ErrorKind int

// Error kinds, each mapped to one status code by statusFor.
const (
	KindServerError ErrorKind = iota
	KindMalformedRequest
	KindInvalidArgument
	KindNotFound
	KindConflict
	KindUnauthorized
	KindTimeout
	KindNotImplemented
)

// Error is a request failure with a client-facing message.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

func invalidArgument(format string, args ...any) *Error {
	return &Error{Kind: KindInvalidArgument, Message: fmt.Sprintf(format, args...)}
}

func notFound(format string, args ...any) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

func conflict(message string) *Error {
	return &Error{Kind: KindConflict, Message: message}
}

func unsupported(kind, op string) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf("%s does not support %s", kind, op), Err: perms.ErrUnsupported}
}

// Messages that reach clients verbatim.
const (
	msgServerError    = "Server error"
	msgTimeout        = "Request timed out"
	msgNoMessaging    = "messaging service not available"
	msgUserNotFound   = "User doesn't exist"
	msgGroupNotFound  = "Group doesn't exist"
	msgTrackNotFound  = "Track doesn't exist"
	msgUserExists     = "User already exists!"
	msgGroupExists    = "Group already exists!"
	msgTrackExists    = "Track already exists!"
	msgMissingPerm    = "Missing permission"
	msgNoSearchParams = "No query parameter defined"
)

func statusFor(kind ErrorKind) int {
	switch kind {
	case KindMalformedRequest, KindInvalidArgument:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindTimeout:
		return http.StatusServiceUnavailable
	case KindNotImplemented:
		return http.StatusNotImplemented
	default:
		return http.StatusInternalServerError
	}
}

// classify maps any handler error onto the taxonomy. Engine and decoder
// sentinels are recognised; everything else is a server error.
func classify(err error) *Error {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr
	}
	switch {
	case errors.Is(err, wire.ErrMalformed):
		return &Error{Kind: KindMalformedRequest, Message: err.Error(), Err: err}
	case errors.Is(err, perms.ErrUnknownEnum),
		errors.Is(err, perms.ErrInvalidNode),
		errors.Is(err, perms.ErrInvalidContext),
		errors.Is(err, perms.ErrInvalidName):
		return &Error{Kind: KindInvalidArgument, Message: err.Error(), Err: err}
	case errors.Is(err, perms.ErrNotFound), errors.Is(err, perms.ErrUnsupported):
		return &Error{Kind: KindNotFound, Message: err.Error(), Err: err}
	case errors.Is(err, perms.ErrAlreadyExists):
		return &Error{Kind: KindConflict, Message: err.Error(), Err: err}
	default:
		return &Error{Kind: KindServerError, Message: msgServerError, Err: err}
	}
}

// writeText writes a plain-text response.
func writeText(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	//nolint:errcheck // Best-effort write to response; connection may be closed
	w.Write([]byte(message))
}

// writeError translates err into a status code and a plain-text body.
// Server errors are logged with the underlying cause and never leak it.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	e := classify(err)
	status := statusFor(e.Kind)
	if status >= http.StatusInternalServerError && e.Kind == KindServerError {
		s.logger.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"error", err,
			"request_id", requestIDFrom(r.Context()),
		)
	}
	writeText(w, status, e.Message)
}
