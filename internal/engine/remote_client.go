// Package engine is the client side of a canvas: an in-memory working
// copy of one canvas with optimistic mutations, debounced position
// persistence, hierarchical auto-layout with undo, and optional live
// collaboration.
package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prodspace/canvaskit/internal/canvaskit"
)

type HTTPError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *HTTPError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("http %d %s: %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("http %d: %s", e.StatusCode, e.Message)
}

func (e *HTTPError) Is(target error) bool {
	switch {
	case target == canvaskit.ErrNotFound:
		return e.StatusCode == http.StatusNotFound
	case target == canvaskit.ErrUnauthorized:
		return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
	case target == canvaskit.ErrRuleViolation:
		return e.Code == "rule_violation"
	case target == canvaskit.ErrInvalidInput:
		return e.StatusCode == http.StatusBadRequest
	}
	return false
}

// RemoteClient is the persistence boundary the engine talks to. The
// canonical implementation is HTTPClient; tests substitute fakes.
type RemoteClient interface {
	ListCanvases(ctx context.Context) ([]canvaskit.Canvas, error)
	CreateCanvas(ctx context.Context, req canvaskit.CreateCanvasRequest) (canvaskit.Canvas, error)
	FetchCanvas(ctx context.Context, canvasID int64) (canvaskit.CanvasDocument, error)
	UpdateCanvas(ctx context.Context, canvasID int64, req canvaskit.UpdateCanvasRequest) (canvaskit.Canvas, error)
	DeleteCanvas(ctx context.Context, canvasID int64) error
	CreateNode(ctx context.Context, canvasID int64, req canvaskit.CreateNodeRequest) (canvaskit.Node, error)
	UpdateNode(ctx context.Context, nodeID int64, req canvaskit.UpdateNodeRequest) (canvaskit.Node, error)
	DeleteNode(ctx context.Context, nodeID int64) error
	CreateConnection(ctx context.Context, canvasID int64, req canvaskit.CreateConnectionRequest) (canvaskit.Connection, error)
	DeleteConnection(ctx context.Context, connectionID int64) error
	BatchUpdatePositions(ctx context.Context, canvasID int64, update canvaskit.BatchPositionUpdate) (int, error)
}

type HTTPClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
}

func NewHTTPClient(baseURL, token string, httpClient *http.Client) *HTTPClient {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = "http://127.0.0.1:8080"
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &HTTPClient{
		baseURL:    baseURL,
		token:      strings.TrimSpace(token),
		httpClient: httpClient,
		maxRetries: 3,
		baseDelay:  100 * time.Millisecond,
		maxDelay:   2 * time.Second,
	}
}

func (c *HTTPClient) ListCanvases(ctx context.Context) ([]canvaskit.Canvas, error) {
	var out []canvaskit.Canvas
	err := c.doJSON(ctx, http.MethodGet, "/v1/canvases", nil, &out)
	return out, err
}

func (c *HTTPClient) CreateCanvas(ctx context.Context, req canvaskit.CreateCanvasRequest) (canvaskit.Canvas, error) {
	var out canvaskit.Canvas
	err := c.doJSON(ctx, http.MethodPost, "/v1/canvases", req, &out)
	return out, err
}

func (c *HTTPClient) FetchCanvas(ctx context.Context, canvasID int64) (canvaskit.CanvasDocument, error) {
	var out canvaskit.CanvasDocument
	err := c.doJSON(ctx, http.MethodGet, "/v1/canvases/"+formatID(canvasID), nil, &out)
	return out, err
}

func (c *HTTPClient) UpdateCanvas(ctx context.Context, canvasID int64, req canvaskit.UpdateCanvasRequest) (canvaskit.Canvas, error) {
	var out canvaskit.Canvas
	err := c.doJSON(ctx, http.MethodPatch, "/v1/canvases/"+formatID(canvasID), req, &out)
	return out, err
}

func (c *HTTPClient) DeleteCanvas(ctx context.Context, canvasID int64) error {
	return c.doJSON(ctx, http.MethodDelete, "/v1/canvases/"+formatID(canvasID), nil, nil)
}

func (c *HTTPClient) CreateNode(ctx context.Context, canvasID int64, req canvaskit.CreateNodeRequest) (canvaskit.Node, error) {
	var out canvaskit.Node
	err := c.doJSON(ctx, http.MethodPost, "/v1/canvases/"+formatID(canvasID)+"/nodes", req, &out)
	return out, err
}

func (c *HTTPClient) UpdateNode(ctx context.Context, nodeID int64, req canvaskit.UpdateNodeRequest) (canvaskit.Node, error) {
	var out canvaskit.Node
	err := c.doJSON(ctx, http.MethodPatch, "/v1/nodes/"+formatID(nodeID), req, &out)
	return out, err
}

func (c *HTTPClient) DeleteNode(ctx context.Context, nodeID int64) error {
	return c.doJSON(ctx, http.MethodDelete, "/v1/nodes/"+formatID(nodeID), nil, nil)
}

func (c *HTTPClient) CreateConnection(ctx context.Context, canvasID int64, req canvaskit.CreateConnectionRequest) (canvaskit.Connection, error) {
	var out canvaskit.Connection
	err := c.doJSON(ctx, http.MethodPost, "/v1/canvases/"+formatID(canvasID)+"/connections", req, &out)
	return out, err
}

func (c *HTTPClient) DeleteConnection(ctx context.Context, connectionID int64) error {
	return c.doJSON(ctx, http.MethodDelete, "/v1/connections/"+formatID(connectionID), nil, nil)
}

func (c *HTTPClient) BatchUpdatePositions(ctx context.Context, canvasID int64, update canvaskit.BatchPositionUpdate) (int, error) {
	var out struct {
		Updated int `json:"updated"`
	}
	err := c.doJSON(ctx, http.MethodPut, "/v1/canvases/"+formatID(canvasID)+"/positions", update, &out)
	return out.Updated, err
}

func formatID(id int64) string {
	return strconv.FormatInt(id, 10)
}

func (c *HTTPClient) doJSON(ctx context.Context, method, requestPath string, body any, out any) error {
	var bodyBytes []byte
	if body != nil {
		var err error
		bodyBytes, err = json.Marshal(body)
		if err != nil {
			return err
		}
	}
	for attempt := 0; ; attempt++ {
		var bodyReader io.Reader
		if bodyBytes != nil {
			bodyReader = bytes.NewReader(bodyBytes)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+requestPath, bodyReader)
		if err != nil {
			return err
		}
		if c.token != "" {
			req.Header.Set("Authorization", "Bearer "+c.token)
		}
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if attempt < c.maxRetries {
				if waitErr := waitWithContext(ctx, c.retryDelay(attempt+1, "")); waitErr != nil {
					return waitErr
				}
				continue
			}
			return err
		}
		payloadBytes, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if readErr != nil {
			return readErr
		}

		if resp.StatusCode >= 200 && resp.StatusCode <= 299 {
			if out == nil || len(payloadBytes) == 0 {
				return nil
			}
			return json.Unmarshal(payloadBytes, out)
		}

		if (resp.StatusCode == http.StatusTooManyRequests || (resp.StatusCode >= 500 && resp.StatusCode <= 599)) && attempt < c.maxRetries {
			if waitErr := waitWithContext(ctx, c.retryDelay(attempt+1, resp.Header.Get("Retry-After"))); waitErr != nil {
				return waitErr
			}
			continue
		}

		var errPayload struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		}
		_ = json.Unmarshal(payloadBytes, &errPayload)
		return &HTTPError{
			StatusCode: resp.StatusCode,
			Code:       errPayload.Code,
			Message:    errPayload.Message,
		}
	}
}

func (c *HTTPClient) retryDelay(attempt int, retryAfterHeader string) time.Duration {
	maxDelay := c.maxDelay
	if maxDelay <= 0 {
		maxDelay = 2 * time.Second
	}
	if retryAfter := parseRetryAfter(retryAfterHeader); retryAfter > 0 {
		if retryAfter > maxDelay {
			return maxDelay
		}
		return retryAfter
	}
	delay := c.baseDelay
	if delay <= 0 {
		delay = 100 * time.Millisecond
	}
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= maxDelay {
			return maxDelay
		}
	}
	if delay > maxDelay {
		return maxDelay
	}
	return delay
}

func parseRetryAfter(header string) time.Duration {
	header = strings.TrimSpace(header)
	if header == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(header); err == nil && seconds >= 0 {
		return time.Duration(seconds) * time.Second
	}
	if ts, err := time.Parse(time.RFC1123, header); err == nil {
		delta := time.Until(ts)
		if delta > 0 {
			return delta
		}
	}
	return 0
}

func waitWithContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

var errClosed = errors.New("engine closed")
