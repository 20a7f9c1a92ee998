package webhooks

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/goliatone/go-entry-credits/core"
	glog "github.com/goliatone/go-logger/glog"
)

// InboundRequest is a raw webhook delivery as received from the transport.
type InboundRequest struct {
	Headers  map[string]string
	Body     []byte
	Metadata map[string]any
}

type Verifier interface {
	Verify(ctx context.Context, req InboundRequest) error
}

// SignatureVerifier checks a base64 HMAC-SHA256 of the raw body. With Enforce
// unset every request is accepted and a warning is logged.
type SignatureVerifier struct {
	Header  string
	Secret  string
	Enforce bool
	Logger  glog.Logger
}

func NewSignatureVerifier(cfg core.WebhookConfig, logger glog.Logger) SignatureVerifier {
	return SignatureVerifier{
		Header:  cfg.Header(),
		Secret:  cfg.Secret,
		Enforce: cfg.SignatureEnforced(),
		Logger:  logger,
	}
}

func (v SignatureVerifier) Verify(ctx context.Context, req InboundRequest) error {
	headerName := strings.TrimSpace(v.Header)
	if headerName == "" {
		headerName = core.DefaultSignatureHeader
	}
	if !v.Enforce {
		v.warn(ctx, "webhook signature enforcement disabled, accepting unverified request", headerName)
		return nil
	}

	signature := strings.TrimSpace(headerValue(req.Headers, headerName))
	if signature == "" {
		return core.NewAuthenticationError(fmt.Errorf("%w: %s header is required", core.ErrSignatureMissing, headerName))
	}
	secret := v.Secret
	if strings.TrimSpace(secret) == "" {
		return core.NewAuthenticationError(fmt.Errorf("%w: signature secret is not configured", core.ErrSignatureMismatch))
	}

	expected := Sign(secret, req.Body)
	if subtle.ConstantTimeCompare([]byte(signature), []byte(expected)) != 1 {
		return core.NewAuthenticationError(core.ErrSignatureMismatch)
	}
	return nil
}

func (v SignatureVerifier) warn(ctx context.Context, message string, header string) {
	if v.Logger == nil {
		return
	}
	logger := v.Logger
	if ctx != nil {
		logger = logger.WithContext(ctx)
	}
	logger.Warn(message, "header", header)
}

// Sign returns the base64 HMAC-SHA256 of body under secret.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func headerValue(headers map[string]string, key string) string {
	if len(headers) == 0 {
		return ""
	}
	if value, ok := headers[key]; ok {
		return value
	}
	for candidate, value := range headers {
		if strings.EqualFold(candidate, key) {
			return value
		}
	}
	return ""
}

var _ Verifier = SignatureVerifier{}
