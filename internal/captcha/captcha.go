// Package captcha gates unauthenticated entry points behind an external
// human-verification service. The gate never fails open: a missing
// token, transport error, non-2xx status, or unsuccessful verdict all
// count as a failed verification.
package captcha

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Verifier checks a client-supplied CAPTCHA token.
type Verifier interface {
	Verify(ctx context.Context, token, remoteIP string) bool
}

// HTTPVerifier delegates to an hCaptcha-compatible siteverify endpoint
// using a server-held secret.
type HTTPVerifier struct {
	endpoint string
	secret   string
	client   *http.Client
	logger   *slog.Logger
}

// NewHTTPVerifier constructs a verifier with a bounded request timeout.
func NewHTTPVerifier(endpoint, secret string, logger *slog.Logger) *HTTPVerifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPVerifier{
		endpoint: endpoint,
		secret:   secret,
		client:   &http.Client{Timeout: 5 * time.Second},
		logger:   logger,
	}
}

type verifyResponse struct {
	Success bool `json:"success"`
}

// Verify implements Verifier.
func (v *HTTPVerifier) Verify(ctx context.Context, token, remoteIP string) bool {
	if token == "" {
		return false
	}

	form := url.Values{}
	form.Set("secret", v.secret)
	form.Set("response", token)
	if remoteIP != "" {
		form.Set("remoteip", remoteIP)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		v.logger.Warn("captcha request build failed", slog.Any("error", err))
		return false
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	res, err := v.client.Do(req)
	if err != nil {
		v.logger.Warn("captcha verify unreachable", slog.Any("error", err))
		return false
	}
	defer func() {
		_ = res.Body.Close()
	}()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		v.logger.Warn("captcha verify rejected", slog.Int("status", res.StatusCode))
		return false
	}

	var verdict verifyResponse
	if err := json.NewDecoder(res.Body).Decode(&verdict); err != nil {
		v.logger.Warn("captcha verify decode failed", slog.Any("error", err))
		return false
	}
	return verdict.Success
}

// StaticVerifier returns a fixed verdict. Test helper.
type StaticVerifier bool

// Verify implements Verifier.
func (v StaticVerifier) Verify(ctx context.Context, token, remoteIP string) bool {
	return bool(v)
}

var (
	_ Verifier = (*HTTPVerifier)(nil)
	_ Verifier = StaticVerifier(false)
)
