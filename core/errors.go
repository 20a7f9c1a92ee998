package core

import (
	"context"
	"errors"
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	IngestErrorUnauthorized = "INGEST_UNAUTHORIZED"
	IngestErrorBadInput     = "INGEST_BAD_INPUT"
	IngestErrorNotFound     = "INGEST_NOT_FOUND"
	IngestErrorConflict     = "INGEST_CONFLICT"
	IngestErrorTransient    = "INGEST_TRANSIENT"
	IngestErrorInternal     = "INGEST_INTERNAL_ERROR"
)

var (
	ErrPendingOrderNotFound      = errors.New("core: pending order not found")
	ErrPendingOrderNotReviewable = errors.New("core: pending order is not awaiting review")
	ErrDuplicateOrder            = errors.New("core: order already recorded")
	ErrCompetitionNotFound       = errors.New("core: competition not found")
	ErrEntrantNotFound           = errors.New("core: entrant not found")
	ErrEntrantEmailTaken         = errors.New("core: entrant email already registered")
	ErrTransient                 = errors.New("core: transient storage contention")
	ErrSignatureMissing          = errors.New("core: webhook signature missing")
	ErrSignatureMismatch         = errors.New("core: webhook signature mismatch")
)

// IsTransient reports whether err is worth retrying as a whole unit of work.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrTransient) || errors.Is(err, ErrEntrantEmailTaken)
}

func NewAuthenticationError(cause error) *goerrors.Error {
	message := "webhook signature verification failed"
	if cause != nil {
		message = cause.Error()
	}
	return newIngestError(message, goerrors.CategoryAuth, IngestErrorUnauthorized)
}

func NewTransientError(cause error) *goerrors.Error {
	err := goerrors.Wrap(cause, goerrors.CategoryOperation, "order ingestion could not complete; retry the delivery").
		WithCode(http.StatusServiceUnavailable).
		WithTextCode(IngestErrorTransient)
	return err
}

func ingestErrorMapper(err error) *goerrors.Error {
	if err == nil {
		return nil
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return ensureIngestErrorEnvelope(richErr)
	}

	switch {
	case errors.Is(err, ErrSignatureMissing), errors.Is(err, ErrSignatureMismatch):
		return NewAuthenticationError(err)
	case errors.Is(err, ErrCompetitionNotFound),
		errors.Is(err, ErrPendingOrderNotFound),
		errors.Is(err, ErrEntrantNotFound):
		return newIngestError(err.Error(), goerrors.CategoryNotFound, IngestErrorNotFound)
	case errors.Is(err, ErrPendingOrderNotReviewable):
		return newIngestError(err.Error(), goerrors.CategoryConflict, IngestErrorConflict)
	case IsTransient(err):
		return NewTransientError(err)
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return NewTransientError(err)
	}

	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	if strings.Contains(msg, "required") || strings.Contains(msg, "invalid") {
		return newIngestError(err.Error(), goerrors.CategoryBadInput, IngestErrorBadInput)
	}

	mapped := goerrors.MapToError(err, goerrors.DefaultErrorMappers())
	return ensureIngestErrorEnvelope(mapped)
}

func newIngestError(message string, category goerrors.Category, textCode string) *goerrors.Error {
	return ensureIngestErrorEnvelope(
		goerrors.New(message, category).
			WithTextCode(textCode),
	)
}

func ensureIngestErrorEnvelope(err *goerrors.Error) *goerrors.Error {
	if err == nil {
		return nil
	}
	if err.Code == 0 {
		err.Code = ingestHTTPStatus(err.Category)
	}
	if strings.TrimSpace(err.TextCode) == "" {
		err.TextCode = defaultIngestTextCode(err.Category)
	}
	if err.Category == goerrors.CategoryInternal && strings.TrimSpace(err.Message) == "" {
		err.Message = "An unexpected error occurred"
	}
	return err
}

func defaultIngestTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return IngestErrorBadInput
	case goerrors.CategoryNotFound:
		return IngestErrorNotFound
	case goerrors.CategoryAuth, goerrors.CategoryAuthz:
		return IngestErrorUnauthorized
	case goerrors.CategoryConflict:
		return IngestErrorConflict
	case goerrors.CategoryOperation:
		return IngestErrorTransient
	default:
		return IngestErrorInternal
	}
}

func ingestHTTPStatus(category goerrors.Category) int {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return http.StatusBadRequest
	case goerrors.CategoryNotFound:
		return http.StatusNotFound
	case goerrors.CategoryAuth:
		return http.StatusUnauthorized
	case goerrors.CategoryAuthz:
		return http.StatusForbidden
	case goerrors.CategoryConflict:
		return http.StatusConflict
	case goerrors.CategoryOperation:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// MapError converts err into the stable error envelope used by every surface.
func MapError(err error) *goerrors.Error {
	return ingestErrorMapper(err)
}
