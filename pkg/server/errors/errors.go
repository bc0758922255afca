// Package errors translates failures into the errors the HTTP API returns. Internal causes are
// kept for logging and never reach the response body.
package errors

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	flowerrors "github.com/topicflow/topicflow/pkg/errors"
	"github.com/topicflow/topicflow/pkg/meta"
	"github.com/topicflow/topicflow/pkg/principal"
	"github.com/topicflow/topicflow/pkg/storage"
)

const InternalServerErrorMsg = "internal server error"

// Error is an error the API can return as is.
type Error struct {
	Status  int
	Code    string
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Is matches any Error with the same code.
func (e *Error) Is(target error) bool {
	var other *Error
	return errors.As(target, &other) && other.Code == e.Code
}

var (
	Unauthenticated         = &Error{Status: http.StatusUnauthorized, Code: "unauthenticated", Message: "unauthenticated"}
	RequestCancelled        = &Error{Status: 499, Code: "cancelled", Message: "request has been cancelled"}
	RequestDeadlineExceeded = &Error{Status: http.StatusGatewayTimeout, Code: "deadline_exceeded", Message: "request deadline exceeded"}
	RowCollision            = &Error{Status: http.StatusConflict, Code: "row_collision", Message: "row already exists"}
	RowVersionConflict      = &Error{Status: http.StatusConflict, Code: "version_conflict", Message: "row changed concurrently, retry the request"}
)

func InvalidArgument(format string, args ...any) *Error {
	return &Error{Status: http.StatusBadRequest, Code: "invalid_argument", Message: fmt.Sprintf(format, args...)}
}

func TopicNotFound(topic string) *Error {
	return &Error{Status: http.StatusNotFound, Code: "topic_not_found", Message: fmt.Sprintf("topic '%s' not found", topic)}
}

func RowNotFound(id string) *Error {
	return &Error{Status: http.StatusNotFound, Code: "row_not_found", Message: fmt.Sprintf("row '%s' not found", id)}
}

// InternalError is an error that hides its cause from the caller.
type InternalError struct {
	public   *Error
	internal error
}

func (e InternalError) Error() string {
	return e.public.Error()
}

func (e InternalError) Is(target error) bool {
	return e.public.Is(target)
}

func (e InternalError) Unwrap() error {
	return e.internal
}

// Public returns the error the caller sees.
func (e InternalError) Public() *Error {
	return e.public
}

// NewInternalError returns an error whose response carries public, or a generic message when
// public is empty.
func NewInternalError(public string, internal error) InternalError {
	if public == "" {
		public = InternalServerErrorMsg
	}
	return InternalError{
		public:   &Error{Status: http.StatusInternalServerError, Code: "internal_error", Message: public},
		internal: internal,
	}
}

// HandleError maps err to an API error. Errors it does not recognise become internal errors.
func HandleError(public string, err error) error {
	var apiErr *Error
	switch {
	case errors.As(err, &apiErr):
		return apiErr
	case errors.Is(err, principal.ErrUnauthenticated), errors.Is(err, principal.ErrMissingBearerToken), errors.Is(err, principal.ErrMissingTenant):
		return &Error{Status: http.StatusUnauthorized, Code: Unauthenticated.Code, Message: err.Error()}
	case errors.Is(err, context.Canceled):
		return RequestCancelled
	case errors.Is(err, context.DeadlineExceeded):
		return RequestDeadlineExceeded
	case errors.Is(err, storage.ErrCollision):
		return RowCollision
	case errors.Is(err, storage.ErrVersionConflict):
		return RowVersionConflict
	case errors.Is(err, storage.ErrNotFound), errors.Is(err, meta.ErrNotFound):
		return &Error{Status: http.StatusNotFound, Code: "not_found", Message: err.Error()}
	case errors.Is(err, flowerrors.ErrTypeMismatch), errors.Is(err, flowerrors.ErrParse):
		return InvalidArgument("%s", err.Error())
	}
	return NewInternalError(public, err)
}

// Write writes err as a JSON body {"code", "message"} with its status.
func Write(w http.ResponseWriter, err error) {
	var public *Error
	var internal InternalError
	switch {
	case errors.As(err, &internal):
		public = internal.Public()
	case errors.As(err, &public):
	default:
		public = NewInternalError("", err).Public()
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(public.Status)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"code":    public.Code,
		"message": public.Message,
	})
}
