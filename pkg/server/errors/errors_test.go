package errors

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	flowerrors "github.com/topicflow/topicflow/pkg/errors"
	"github.com/topicflow/topicflow/pkg/principal"
	"github.com/topicflow/topicflow/pkg/storage"
)

func TestInternalErrorDontLeakInternals(t *testing.T) {
	err := NewInternalError("", errors.New("internal"))
	require.NotContains(t, err.Error(), "internal\"")
	require.Equal(t, "internal_error: "+InternalServerErrorMsg, err.Error())
	require.Equal(t, "internal", errors.Unwrap(err).Error())
}

func TestHandleError(t *testing.T) {
	var tests = []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{name: "not_found", err: fmt.Errorf("wrapped: %w", storage.ErrNotFound), status: http.StatusNotFound, code: "not_found"},
		{name: "collision", err: storage.ErrCollision, status: http.StatusConflict, code: "row_collision"},
		{name: "version_conflict", err: storage.VersionConflictError("totals", "r1", 3), status: http.StatusConflict, code: "version_conflict"},
		{name: "unauthenticated", err: principal.ErrMissingBearerToken, status: http.StatusUnauthorized, code: "unauthenticated"},
		{name: "deadline", err: context.DeadlineExceeded, status: http.StatusGatewayTimeout, code: "deadline_exceeded"},
		{name: "type_mismatch", err: flowerrors.With(errors.New("bad number"), flowerrors.ErrTypeMismatch), status: http.StatusBadRequest, code: "invalid_argument"},
		{name: "api_error", err: TopicNotFound("orders"), status: http.StatusNotFound, code: "topic_not_found"},
		{name: "unknown", err: errors.New("boom"), status: http.StatusInternalServerError, code: "internal_error"},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			Write(rec, HandleError("", test.err))

			require.Equal(t, test.status, rec.Code)
			var body map[string]string
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			require.Equal(t, test.code, body["code"])
			require.NotContains(t, body["message"], "boom")
		})
	}
}

func TestErrorIs(t *testing.T) {
	require.ErrorIs(t, TopicNotFound("a"), TopicNotFound("b"))
	require.NotErrorIs(t, TopicNotFound("a"), RowNotFound("a"))
	require.ErrorIs(t, NewInternalError("", errors.New("x")), &Error{Code: "internal_error"})
}
