// API transport for the course library server
package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/desertthunder/occ/internal/models"
	"github.com/desertthunder/occ/internal/shared"
	"golang.org/x/time/rate"
)

const defaultBaseURL string = "http://127.0.0.1:9081"

// invalidResponseMessage is shown to users when a payload breaks the server contract.
const invalidResponseMessage = "Invalid response from the server"

// APIError is returned for non-2xx responses and network failures.
//
// Status is 0 when the request never produced a response.
type APIError struct {
	Status  int
	Message string
	cause   error
}

func (e *APIError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("API request failed: %s", e.Message)
	}
	return fmt.Sprintf("API error (status %d): %s", e.Status, e.Message)
}

func (e *APIError) Unwrap() []error {
	if e.cause != nil {
		return []error{shared.ErrAPIRequest, e.cause}
	}
	return []error{shared.ErrAPIRequest}
}

// Unauthorized reports whether the server rejected the session.
func (e *APIError) Unauthorized() bool {
	return e.Status == http.StatusUnauthorized || e.Status == http.StatusForbidden
}

// ValidationError is returned when a response body does not decode into, or validate as, the expected type.
type ValidationError struct {
	Status int
	Err    error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %v", invalidResponseMessage, e.Err)
}

func (e *ValidationError) Unwrap() []error {
	return []error{shared.ErrInvalidResponse, e.Err}
}

// UserMessage returns the text to surface to a user for err.
//
// Server messages are echoed verbatim; contract violations get a fixed message since the payload can't be trusted.
func UserMessage(err error) string {
	var apiErr *APIError
	var valErr *ValidationError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &valErr):
		return invalidResponseMessage
	case errors.As(err, &apiErr):
		return apiErr.Message
	default:
		return err.Error()
	}
}

// APIService performs HTTP requests against the course library server.
type APIService struct {
	baseURL        string
	httpClient     *http.Client
	limiter        *rate.Limiter
	token          string
	cookie         string
	onUnauthorized func(*APIError)
}

// APIOption configures an [APIService].
type APIOption func(*APIService)

// WithRateLimit limits outbound requests to rps per second. Zero or less disables limiting.
func WithRateLimit(rps float64) APIOption {
	return func(a *APIService) {
		if rps <= 0 {
			a.limiter = nil
			return
		}
		burst := int(rps)
		if burst < 1 {
			burst = 1
		}
		a.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithToken sends token as a bearer Authorization header.
func WithToken(token string) APIOption {
	return func(a *APIService) { a.token = token }
}

// WithSessionCookie sends cookie verbatim as the Cookie header.
func WithSessionCookie(cookie string) APIOption {
	return func(a *APIService) { a.cookie = cookie }
}

// WithUnauthorizedHandler registers fn to be called whenever the server answers 401 or 403.
func WithUnauthorizedHandler(fn func(*APIError)) APIOption {
	return func(a *APIService) { a.onUnauthorized = fn }
}

// NewAPIService creates a new API service instance for the course library server.
func NewAPIService(baseURL string, client *http.Client, opts ...APIOption) *APIService {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if client == nil {
		client = http.DefaultClient
	}

	a := &APIService{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: client,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// BaseURL returns the server root requests are resolved against.
func (a *APIService) BaseURL() string { return a.baseURL }

// APIResponse represents a raw API response with status and body.
type APIResponse struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
	IsJSON     bool
	JSONData   any
}

func (a *APIService) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	if a.limiter != nil {
		if err := a.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range a.authHeaders() {
		req.Header.Set(k, v)
	}
	return req, nil
}

func (a *APIService) authHeaders() map[string]string {
	headers := make(map[string]string, 2)
	if a.token != "" {
		headers["Authorization"] = "Bearer " + a.token
	}
	if a.cookie != "" {
		headers["Cookie"] = a.cookie
	}
	return headers
}

func (a *APIService) raw(ctx context.Context, method, path string, body io.Reader) (*APIResponse, error) {
	req, err := a.newRequest(ctx, method, path, body)
	if err != nil {
		return nil, err
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	apiResp := &APIResponse{
		StatusCode: resp.StatusCode,
		Headers:    resp.Header,
		Body:       data,
	}

	var jsonData any
	if err := json.Unmarshal(data, &jsonData); err == nil {
		apiResp.IsJSON = true
		apiResp.JSONData = jsonData
	}

	return apiResp, nil
}

// Get performs a GET request to the specified path and returns the raw response.
func (a *APIService) Get(ctx context.Context, path string) (*APIResponse, error) {
	return a.raw(ctx, http.MethodGet, path, nil)
}

// Post performs a POST request with the given JSON data and returns the raw response.
func (a *APIService) Post(ctx context.Context, path string, data []byte) (*APIResponse, error) {
	return a.raw(ctx, http.MethodPost, path, bytes.NewReader(data))
}

// doJSON sends in (if non-nil) as JSON and decodes a 2xx body into out (if non-nil), validating it.
//
// Failures are returned as [*APIError] or [*ValidationError].
func (a *APIService) doJSON(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := a.newRequest(ctx, method, path, body)
	if err != nil {
		return &APIError{Message: err.Error(), cause: err}
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return &APIError{Message: fmt.Sprintf("request failed: %v", err), cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return a.statusError(resp)
	}

	if out == nil {
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &ValidationError{Status: resp.StatusCode, Err: fmt.Errorf("failed to decode response: %w", err)}
	}
	if err := models.Validate(out); err != nil {
		return &ValidationError{Status: resp.StatusCode, Err: err}
	}
	return nil
}

// statusError builds the [*APIError] for a non-2xx response, echoing the server's message.
func (a *APIService) statusError(resp *http.Response) *APIError {
	var errResp struct {
		Message string `json:"message"`
	}
	message := "Unknown error"
	if err := json.NewDecoder(resp.Body).Decode(&errResp); err == nil && errResp.Message != "" {
		message = errResp.Message
	}

	apiErr := &APIError{Status: resp.StatusCode, Message: message}
	if apiErr.Unauthorized() && a.onUnauthorized != nil {
		a.onUnauthorized(apiErr)
	}
	return apiErr
}
