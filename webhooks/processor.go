package webhooks

import (
	"context"
	"fmt"
	"net/http"

	"github.com/goliatone/go-entry-credits/core"
	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
)

type Ingester interface {
	Ingest(ctx context.Context, order core.OrderNotification) (core.IngestResult, error)
}

// Response is the body returned to the webhook sender.
type Response struct {
	Status       core.IngestOutcome `json:"status"`
	EntrantID    string             `json:"entrantId,omitempty"`
	CreditsAdded int                `json:"creditsAdded"`
	Message      string             `json:"message,omitempty"`
}

type ErrorDetail struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

type Result struct {
	StatusCode int
	Body       any
	Outcome    core.IngestOutcome
}

type Processor struct {
	Verifier Verifier
	Ingester Ingester
	Logger   glog.Logger
}

func NewProcessor(verifier Verifier, ingester Ingester, logger glog.Logger) *Processor {
	return &Processor{
		Verifier: verifier,
		Ingester: ingester,
		Logger:   glog.Ensure(logger),
	}
}

// Process returns a Result for every request, including failed ones. The
// error is non-nil whenever the request was not accepted.
func (p *Processor) Process(ctx context.Context, req InboundRequest) (Result, error) {
	if p == nil || p.Ingester == nil {
		err := fmt.Errorf("webhooks: processor requires an ingester")
		return ErrorResult(err), err
	}

	if p.Verifier != nil {
		if err := p.Verifier.Verify(ctx, req); err != nil {
			p.logFailure(ctx, "webhook rejected", core.OrderKey{}, err)
			return ErrorResult(err), err
		}
	}

	order, err := core.ParseOrderNotification(req.Body)
	if err != nil {
		p.logFailure(ctx, "webhook payload invalid", core.OrderKey{}, err)
		return ErrorResult(err), err
	}

	result, err := p.Ingester.Ingest(ctx, order)
	if err != nil {
		p.logFailure(ctx, "webhook ingestion failed", order.Key(), err)
		return ErrorResult(err), err
	}

	return Result{
		StatusCode: http.StatusOK,
		Outcome:    result.Outcome,
		Body: Response{
			Status:       result.Outcome,
			EntrantID:    result.EntrantID,
			CreditsAdded: result.CreditsAdded,
			Message:      result.Explanation,
		},
	}, nil
}

// ErrorResult maps err onto its HTTP status and error body.
func ErrorResult(err error) Result {
	mapped := core.MapError(err)
	if mapped == nil {
		mapped = goerrors.New("unexpected error", goerrors.CategoryInternal).
			WithCode(http.StatusInternalServerError).
			WithTextCode(core.IngestErrorInternal)
	}
	status := mapped.Code
	if status == 0 {
		status = http.StatusInternalServerError
	}
	detail := ErrorDetail{
		Code:    mapped.TextCode,
		Message: mapped.Message,
	}
	if fields := mapped.AllValidationErrors(); len(fields) > 0 {
		detail.Fields = make(map[string]string, len(fields))
		for _, field := range fields {
			detail.Fields[field.Field] = field.Message
		}
	}
	return Result{
		StatusCode: status,
		Body:       ErrorResponse{Error: detail},
	}
}

func (p *Processor) logFailure(ctx context.Context, message string, key core.OrderKey, err error) {
	if p == nil || p.Logger == nil || err == nil {
		return
	}
	logger := p.Logger
	if ctx != nil {
		logger = logger.WithContext(ctx)
	}
	args := []any{"error", err.Error()}
	if !key.IsZero() {
		args = append(args, "external_order_id", key.ExternalOrderID, "external_source", key.ExternalSource)
	}
	logger.Warn(message, args...)
}
