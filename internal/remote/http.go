package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/roach88/schemasync/internal/ir"
)

// ClientConfig configures the HTTP adapter.
type ClientConfig struct {
	BaseURL     string
	APIToken    string
	Environment string
	Timeout     time.Duration

	// RetryMax bounds the number of retries of a transient failure.
	RetryMax int

	// RetryWait is the base delay; retry n waits n*RetryWait.
	RetryWait time.Duration

	Logger *slog.Logger
}

// HTTPClient implements Service over HTTP.
type HTTPClient struct {
	client      *retryablehttp.Client
	baseURL     string
	apiToken    string
	environment string
}

var _ Service = (*HTTPClient)(nil)

// NewHTTPClient creates an HTTP-backed Service.
func NewHTTPClient(cfg ClientConfig) *HTTPClient {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	wait := cfg.RetryWait
	if wait == 0 {
		wait = 500 * time.Millisecond
	}

	rc := retryablehttp.NewClient()
	rc.HTTPClient.Timeout = timeout
	rc.RetryMax = cfg.RetryMax
	rc.RetryWaitMin = wait
	// LinearJitterBackoff skips jitter when max <= min.
	rc.RetryWaitMax = wait
	rc.Backoff = retryablehttp.LinearJitterBackoff
	rc.CheckRetry = checkRetry
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler
	rc.Logger = nil
	if cfg.Logger != nil {
		rc.Logger = cfg.Logger
	}

	return &HTTPClient{
		client:      rc,
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		apiToken:    cfg.APIToken,
		environment: cfg.Environment,
	}
}

// checkRetry retries connection failures and transient statuses only.
func checkRetry(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if ctx.Err() != nil {
		return false, ctx.Err()
	}
	if err != nil {
		return retryablehttp.DefaultRetryPolicy(ctx, resp, err)
	}
	return transientStatus(resp.StatusCode), nil
}

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (c *HTTPClient) do(ctx context.Context, method, path string, body ir.IRObject, out any) error {
	var payload []byte
	if body != nil {
		data, err := json.Marshal(envelopeBody{Data: body})
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		payload = data
	}

	var reqBody any
	if payload != nil {
		reqBody = payload
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiToken)
	}
	if c.environment != "" {
		req.Header.Set("X-Environment", c.environment)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%s %s: read response: %w", method, path, err)
	}

	if resp.StatusCode >= 400 {
		return decodeError(resp.StatusCode, raw)
	}
	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("%s %s: decode response: %w", method, path, err)
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("%s %s: decode data: %w", method, path, err)
	}
	return nil
}

type envelopeBody struct {
	Data ir.IRObject `json:"data"`
}

func decodeError(status int, raw []byte) error {
	var env envelope
	if err := json.Unmarshal(raw, &env); err == nil && env.Error != nil {
		return &Error{Status: status, Code: env.Error.Code, Message: env.Error.Message}
	}
	return &Error{Status: status, Message: strings.TrimSpace(string(raw))}
}

// ListItemTypes implements Service.
func (c *HTTPClient) ListItemTypes(ctx context.Context) ([]ItemType, error) {
	var out []ItemType
	err := c.do(ctx, http.MethodGet, "/item-types", nil, &out)
	return out, err
}

// FindItemType implements Service.
func (c *HTTPClient) FindItemType(ctx context.Context, id string) (ItemType, error) {
	var out ItemType
	err := c.do(ctx, http.MethodGet, "/item-types/"+url.PathEscape(id), nil, &out)
	return out, err
}

// CreateItemType implements Service.
func (c *HTTPClient) CreateItemType(ctx context.Context, body ir.IRObject) (ItemType, error) {
	var out ItemType
	err := c.do(ctx, http.MethodPost, "/item-types", body, &out)
	return out, err
}

// UpdateItemType implements Service.
func (c *HTTPClient) UpdateItemType(ctx context.Context, id string, body ir.IRObject) (ItemType, error) {
	var out ItemType
	err := c.do(ctx, http.MethodPut, "/item-types/"+url.PathEscape(id), body, &out)
	return out, err
}

// ListFields implements Service.
func (c *HTTPClient) ListFields(ctx context.Context, itemTypeID string) ([]Field, error) {
	var out []Field
	err := c.do(ctx, http.MethodGet, "/item-types/"+url.PathEscape(itemTypeID)+"/fields", nil, &out)
	return out, err
}

// CreateField implements Service.
func (c *HTTPClient) CreateField(ctx context.Context, itemTypeID string, body ir.IRObject) (Field, error) {
	var out Field
	err := c.do(ctx, http.MethodPost, "/item-types/"+url.PathEscape(itemTypeID)+"/fields", body, &out)
	return out, err
}

// UpdateField implements Service.
func (c *HTTPClient) UpdateField(ctx context.Context, fieldID string, body ir.IRObject) (Field, error) {
	var out Field
	err := c.do(ctx, http.MethodPut, "/fields/"+url.PathEscape(fieldID), body, &out)
	return out, err
}

// DestroyField implements Service.
func (c *HTTPClient) DestroyField(ctx context.Context, fieldID string) error {
	return c.do(ctx, http.MethodDelete, "/fields/"+url.PathEscape(fieldID), nil, nil)
}
