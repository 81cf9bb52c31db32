package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/dshills/datasheet-rag/internal/indexer"
	"github.com/dshills/datasheet-rag/internal/quality"
	"github.com/dshills/datasheet-rag/internal/rag"
	"github.com/dshills/datasheet-rag/internal/searcher"
	"github.com/dshills/datasheet-rag/internal/storage"
	"github.com/dshills/datasheet-rag/pkg/types"
)

// Error codes returned in ErrorResponse.Error
const (
	CodeBadRequest    = "bad_request"
	CodeNotFound      = "not_found"
	CodeConflict      = "conflict"
	CodeTooLarge      = "payload_too_large"
	CodeTimeout       = "timeout"
	CodeInternalError = "internal_error"
)

// errBadRequest marks malformed input detected by the handlers themselves
var errBadRequest = errors.New("bad request")

// ErrorResponse is the JSON body of every failed request
type ErrorResponse struct {
	Error     string         `json:"error"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// statusFor maps a service error to its HTTP status and error code
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, errBadRequest),
		errors.Is(err, rag.ErrInvalidRequest),
		errors.Is(err, rag.ErrInvalidRating),
		errors.Is(err, rag.ErrBatchTooLarge),
		errors.Is(err, searcher.ErrInvalidRequest),
		errors.Is(err, indexer.ErrUnsupportedFile),
		errors.Is(err, indexer.ErrEmptyFile),
		errors.Is(err, types.ErrInvalidDocumentType):
		return http.StatusBadRequest, CodeBadRequest
	case errors.Is(err, storage.ErrNotFound), errors.Is(err, quality.ErrUnknownSuite):
		return http.StatusNotFound, CodeNotFound
	case errors.Is(err, indexer.ErrDuplicateDocument), errors.Is(err, indexer.ErrAlreadyProcessing):
		return http.StatusConflict, CodeConflict
	case errors.Is(err, indexer.ErrFileTooLarge):
		return http.StatusRequestEntityTooLarge, CodeTooLarge
	case errors.Is(err, rag.ErrRetrievalTimeout),
		errors.Is(err, rag.ErrGenerationTimeout),
		errors.Is(err, context.DeadlineExceeded):
		return http.StatusRequestTimeout, CodeTimeout
	default:
		return http.StatusInternalServerError, CodeInternalError
	}
}

func newErrorResponse(err error) (int, ErrorResponse) {
	status, code := statusFor(err)
	resp := ErrorResponse{
		Error:     code,
		Message:   err.Error(),
		Timestamp: time.Now().UTC(),
	}

	var dup *indexer.DuplicateError
	if errors.As(err, &dup) {
		resp.Details = map[string]any{"document_id": dup.DocumentID}
	}
	return status, resp
}

// writeError aborts the request with the mapped status and error body
func (s *Server) writeError(c *gin.Context, err error) {
	status, resp := newErrorResponse(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed",
			zap.String("request_id", requestIDFrom(c)),
			zap.String("path", c.FullPath()),
			zap.Error(err))
	}
	c.AbortWithStatusJSON(status, resp)
}

func badRequest(msg string) error {
	return &wrappedError{msg: msg, err: errBadRequest}
}

type wrappedError struct {
	msg string
	err error
}

func (e *wrappedError) Error() string { return e.msg }
func (e *wrappedError) Unwrap() error { return e.err }
