package core

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

var purchasedAtLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
}

type orderPayload struct {
	ExternalOrderID *string          `json:"externalOrderId"`
	ExternalSource  *string          `json:"externalSource"`
	CompetitionID   *string          `json:"competitionId"`
	Quantity        *int             `json:"quantity"`
	PurchasedAt     *string          `json:"purchasedAt"`
	Customer        *customerPayload `json:"customer"`
}

type customerPayload struct {
	Email   *string         `json:"email"`
	Name    *string         `json:"name"`
	Phone   *string         `json:"phone"`
	Address *addressPayload `json:"address"`
}

type addressPayload struct {
	Line1         *string `json:"line1"`
	Line2         *string `json:"line2"`
	City          *string `json:"city"`
	StateProvince *string `json:"stateProvince"`
	PostalCode    *string `json:"postalCode"`
	Country       *string `json:"country"`
}

func (p orderPayload) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.ExternalOrderID, validation.Required, validation.Length(1, 255)),
		validation.Field(&p.ExternalSource, validation.Required, validation.Length(1, 100)),
		validation.Field(&p.CompetitionID, validation.Required, validation.By(uuidRule)),
		validation.Field(&p.Quantity, validation.Required.Error("must be a positive integer"), validation.Min(1)),
		validation.Field(&p.PurchasedAt, validation.Required, validation.By(timestampRule)),
		validation.Field(&p.Customer, validation.Required),
	)
}

func (c customerPayload) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Email, validation.Required, validation.By(emailRule)),
		validation.Field(&c.Name, validation.Length(0, 255)),
		validation.Field(&c.Phone, validation.Length(0, 64)),
		validation.Field(&c.Address),
	)
}

func (a addressPayload) Validate() error {
	return validation.ValidateStruct(&a,
		validation.Field(&a.Line1, validation.Length(0, 255)),
		validation.Field(&a.Line2, validation.Length(0, 255)),
		validation.Field(&a.City, validation.Length(0, 120)),
		validation.Field(&a.StateProvince, validation.Length(0, 120)),
		validation.Field(&a.PostalCode, validation.Length(0, 32)),
		validation.Field(&a.Country, validation.Length(0, 64)),
	)
}

func uuidRule(value any) error {
	raw, _ := derefString(value)
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	if _, err := uuid.Parse(strings.TrimSpace(raw)); err != nil {
		return errors.New("must be a valid UUID")
	}
	return nil
}

// emailRule checks the address the way it will be stored, trimmed and lower-cased.
func emailRule(value any) error {
	raw, _ := derefString(value)
	email := NormalizeEmail(raw)
	if email == "" {
		return errors.New("cannot be blank")
	}
	return validation.Validate(email, validation.Length(3, 320), is.EmailFormat)
}

func timestampRule(value any) error {
	raw, _ := derefString(value)
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	if _, err := parsePurchasedAt(raw); err != nil {
		return errors.New("must be an ISO-8601 timestamp")
	}
	return nil
}

func derefString(value any) (string, bool) {
	switch typed := value.(type) {
	case string:
		return typed, true
	case *string:
		if typed == nil {
			return "", false
		}
		return *typed, true
	default:
		return "", false
	}
}

func parsePurchasedAt(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	var lastErr error
	for _, layout := range purchasedAtLayouts {
		parsed, err := time.Parse(layout, raw)
		if err == nil {
			return parsed.UTC(), nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}

// ParseOrderNotification decodes and validates a webhook body. The returned
// notification keeps the body verbatim in RawPayload.
func ParseOrderNotification(body []byte) (OrderNotification, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return OrderNotification{}, newPayloadError("request body is required", nil)
	}

	decoder := json.NewDecoder(bytes.NewReader(body))
	var payload orderPayload
	if err := decoder.Decode(&payload); err != nil {
		return OrderNotification{}, newPayloadError("request body is not a valid order notification", []goerrors.FieldError{
			{Field: "body", Message: decodeErrorMessage(err)},
		})
	}
	if _, err := decoder.Token(); !errors.Is(err, io.EOF) {
		return OrderNotification{}, newPayloadError("request body is not a valid order notification", []goerrors.FieldError{
			{Field: "body", Message: "unexpected data after the JSON object"},
		})
	}
	if err := payload.Validate(); err != nil {
		return OrderNotification{}, newPayloadError("order notification failed validation", validationFieldErrors("", err))
	}

	purchasedAt, _ := parsePurchasedAt(*payload.PurchasedAt)
	customer := Customer{
		Email: NormalizeEmail(*payload.Customer.Email),
		Name:  trimmed(payload.Customer.Name),
		Phone: trimmed(payload.Customer.Phone),
	}
	if address := payload.Customer.Address; address != nil {
		customer.Address = &Address{
			Line1:         trimmed(address.Line1),
			Line2:         trimmed(address.Line2),
			City:          trimmed(address.City),
			StateProvince: trimmed(address.StateProvince),
			PostalCode:    trimmed(address.PostalCode),
			Country:       trimmed(address.Country),
		}
	}

	return OrderNotification{
		ExternalOrderID: strings.TrimSpace(*payload.ExternalOrderID),
		ExternalSource:  strings.TrimSpace(*payload.ExternalSource),
		CompetitionID:   strings.ToLower(strings.TrimSpace(*payload.CompetitionID)),
		Quantity:        *payload.Quantity,
		PurchasedAt:     purchasedAt,
		Customer:        customer,
		RawPayload:      append([]byte(nil), body...),
	}, nil
}

func trimmed(value *string) string {
	if value == nil {
		return ""
	}
	return strings.TrimSpace(*value)
}

func decodeErrorMessage(err error) string {
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) && typeErr.Field != "" {
		return fmt.Sprintf("field %q has the wrong type", typeErr.Field)
	}
	return "malformed JSON"
}

func validationFieldErrors(prefix string, err error) []goerrors.FieldError {
	var fieldErrs validation.Errors
	if !errors.As(err, &fieldErrs) {
		field := strings.TrimSuffix(prefix, ".")
		if field == "" {
			field = "body"
		}
		return []goerrors.FieldError{{Field: field, Message: err.Error()}}
	}

	keys := make([]string, 0, len(fieldErrs))
	for key := range fieldErrs {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	out := make([]goerrors.FieldError, 0, len(keys))
	for _, key := range keys {
		nested := fieldErrs[key]
		if nested == nil {
			continue
		}
		out = append(out, validationFieldErrors(prefix+key+".", nested)...)
	}
	return out
}

func newPayloadError(message string, fields []goerrors.FieldError) error {
	return goerrors.NewValidation(message, fields...).
		WithCode(http.StatusBadRequest).
		WithTextCode(IngestErrorBadInput).
		WithSeverity(goerrors.SeverityError)
}
