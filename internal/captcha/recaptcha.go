package captcha

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultVerifyURL адрес проверки токенов reCAPTCHA
const DefaultVerifyURL = "https://www.google.com/recaptcha/api/siteverify"

var (
	ErrTokenMissing        = errors.New("recaptcha token required")
	ErrVerificationFailed  = errors.New("recaptcha verification failed")
	ErrVerifierUnavailable = errors.New("recaptcha verification error")
)

// Verifier проверяет, что запрос отправил человек
type Verifier interface {
	Verify(ctx context.Context, token, remoteIP string) error
}

type verifyResponse struct {
	Success    bool     `json:"success"`
	Score      *float64 `json:"score"`
	Action     string   `json:"action"`
	ErrorCodes []string `json:"error-codes"`
}

// RecaptchaVerifier проверяет токены через siteverify API
type RecaptchaVerifier struct {
	secret    string
	minScore  float64
	verifyURL string
	client    *http.Client
}

type Option func(*RecaptchaVerifier)

// WithVerifyURL подменяет адрес siteverify (используется в тестах)
func WithVerifyURL(u string) Option {
	return func(v *RecaptchaVerifier) { v.verifyURL = u }
}

func WithHTTPClient(client *http.Client) Option {
	return func(v *RecaptchaVerifier) { v.client = client }
}

func NewRecaptchaVerifier(secret string, minScore float64, opts ...Option) *RecaptchaVerifier {
	v := &RecaptchaVerifier{
		secret:    secret,
		minScore:  minScore,
		verifyURL: DefaultVerifyURL,
		client:    &http.Client{Timeout: 5 * time.Second},
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

func (v *RecaptchaVerifier) Verify(ctx context.Context, token, remoteIP string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return ErrTokenMissing
	}

	form := url.Values{}
	form.Set("secret", v.secret)
	form.Set("response", token)
	if remoteIP != "" {
		form.Set("remoteip", remoteIP)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.verifyURL, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrVerifierUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := v.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrVerifierUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w: unexpected status %d", ErrVerifierUnavailable, resp.StatusCode)
	}

	var body verifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return fmt.Errorf("%w: failed to decode response: %v", ErrVerifierUnavailable, err)
	}

	if !body.Success {
		return fmt.Errorf("%w: %s", ErrVerificationFailed, strings.Join(body.ErrorCodes, ","))
	}
	// Score есть только у v3; у v2 достаточно success
	if body.Score != nil && *body.Score < v.minScore {
		return fmt.Errorf("%w: score %.2f below %.2f", ErrVerificationFailed, *body.Score, v.minScore)
	}

	return nil
}
