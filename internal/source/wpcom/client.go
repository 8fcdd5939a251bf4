package wpcom

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/nhle/notefeed/internal/source"
)

// Client is a thin HTTP client for the WordPress.com REST API v1.
// It handles Bearer token authentication, JSON marshaling, and
// retry with exponential backoff on HTTP 429 and gateway errors.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	maxRetries uint
	newBackOff func() backoff.BackOff
}

// NewClient creates a new REST client. The baseURL should be the API
// root (e.g., https://public-api.wordpress.com/rest/v1). The token is an
// OAuth bearer token; an empty token sends unauthenticated requests.
func NewClient(baseURL, token string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		maxRetries: 3,
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = time.Second
			b.MaxInterval = 30 * time.Second
			return b
		},
	}
}

// Get performs an HTTP GET request and unmarshals the JSON response.
func (c *Client) Get(
	ctx context.Context,
	path string,
	query url.Values,
	result any,
) error {
	if len(query) > 0 {
		path += "?" + query.Encode()
	}
	return c.do(ctx, http.MethodGet, path, nil, result)
}

// Post performs an HTTP POST request with a JSON body and unmarshals
// the JSON response.
func (c *Client) Post(
	ctx context.Context,
	path string,
	body any,
	result any,
) error {
	return c.do(ctx, http.MethodPost, path, body, result)
}

// apiError is the error envelope returned by the REST API.
type apiError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// do builds the request, handles auth, retries retryable statuses and
// (de)serializes JSON.
func (c *Client) do(
	ctx context.Context,
	method string,
	path string,
	body any,
	result any,
) error {
	var payload []byte
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling request body: %w", err)
		}
		payload = data
	}

	operation := func() ([]byte, error) {
		var bodyReader io.Reader
		if payload != nil {
			bodyReader = bytes.NewReader(payload)
		}

		req, err := http.NewRequestWithContext(
			ctx, method, c.baseURL+path, bodyReader,
		)
		if err != nil {
			return nil, backoff.Permanent(
				fmt.Errorf("creating request: %w", err),
			)
		}

		if c.token != "" {
			req.Header.Set("Authorization", "Bearer "+c.token)
		}
		req.Header.Set("Accept", "application/json")
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, backoff.Permanent(
				fmt.Errorf("executing request %s %s: %w", method, path, err),
			)
		}

		respBody, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			return nil, backoff.Permanent(
				fmt.Errorf("reading response body: %w", readErr),
			)
		}

		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			if secs := retryAfterSeconds(resp); secs > 0 {
				return nil, backoff.RetryAfter(secs)
			}
			return nil, fmt.Errorf("rate limited (429) on %s %s", method, path)

		case resp.StatusCode == http.StatusBadGateway,
			resp.StatusCode == http.StatusServiceUnavailable,
			resp.StatusCode == http.StatusGatewayTimeout:
			err := fmt.Errorf(
				"upstream unavailable (%d) on %s %s",
				resp.StatusCode, method, path,
			)
			// A mutation may have been applied behind the gateway.
			if method != http.MethodGet {
				return nil, backoff.Permanent(err)
			}
			return nil, err

		case resp.StatusCode == http.StatusUnauthorized,
			resp.StatusCode == http.StatusForbidden:
			msg := fmt.Sprintf("status %d", resp.StatusCode)
			var apiErr apiError
			if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Message != "" {
				msg = apiErr.Message
			}
			return nil, backoff.Permanent(&source.AuthError{
				Service: c.baseURL,
				Message: msg,
			})

		case resp.StatusCode < 200 || resp.StatusCode >= 300:
			var apiErr apiError
			if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Error != "" {
				return nil, backoff.Permanent(fmt.Errorf(
					"api error (%d) on %s %s: %s: %s",
					resp.StatusCode, method, path,
					apiErr.Error, apiErr.Message,
				))
			}
			return nil, backoff.Permanent(fmt.Errorf(
				"unexpected status %d on %s %s: %s",
				resp.StatusCode, method, path, string(respBody),
			))
		}

		// No content to parse (e.g. 204).
		if resp.StatusCode == http.StatusNoContent {
			return nil, nil
		}
		return respBody, nil
	}

	respBody, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(c.newBackOff()),
		backoff.WithMaxTries(c.maxRetries+1),
	)
	if err != nil {
		var authErr *source.AuthError
		if errors.As(err, &authErr) {
			return err
		}
		if ctx.Err() != nil {
			return fmt.Errorf("%s %s: %w", method, path, ctx.Err())
		}
		return err
	}

	if result == nil || len(respBody) == 0 {
		return nil
	}

	if err := json.Unmarshal(respBody, result); err != nil {
		return fmt.Errorf(
			"unmarshaling response from %s %s: %w",
			method, path, err,
		)
	}

	return nil
}

// retryAfterSeconds reads the Retry-After header. It returns 0 when the
// header is missing so the exponential schedule applies.
func retryAfterSeconds(resp *http.Response) int {
	header := resp.Header.Get("Retry-After")
	if header == "" {
		return 0
	}
	seconds, err := strconv.Atoi(header)
	if err != nil || seconds < 0 {
		return 0
	}
	return seconds
}
