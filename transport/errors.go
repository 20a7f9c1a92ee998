package transport

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/goliatone/go-entry-credits/core"
	"github.com/goliatone/go-entry-credits/webhooks"
	goerrors "github.com/goliatone/go-errors"
)

func transportError(message string, category goerrors.Category, code int, metadata map[string]any) error {
	err := goerrors.New(message, category).
		WithCode(code).
		WithTextCode(transportTextCode(category))
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

func transportWrapError(source error, category goerrors.Category, message string, code int) error {
	if source == nil {
		return transportError(message, category, code, nil)
	}
	return goerrors.Wrap(source, category, message).
		WithCode(code).
		WithTextCode(transportTextCode(category))
}

func transportTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return core.IngestErrorBadInput
	case goerrors.CategoryAuth:
		return core.IngestErrorUnauthorized
	case goerrors.CategoryNotFound:
		return core.IngestErrorNotFound
	case goerrors.CategoryConflict:
		return core.IngestErrorConflict
	case goerrors.CategoryOperation:
		return core.IngestErrorTransient
	default:
		return core.IngestErrorInternal
	}
}

// writeError renders err with the same envelope the webhook endpoint uses.
func writeError(c *gin.Context, err error) {
	result := webhooks.ErrorResult(err)
	c.AbortWithStatusJSON(result.StatusCode, result.Body)
}

func badRequest(message string, cause error) error {
	return transportWrapError(cause, goerrors.CategoryBadInput, message, http.StatusBadRequest)
}
