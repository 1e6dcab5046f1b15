package rpcclient

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/omnibridge/omnibridge-service/log"
	"github.com/omnibridge/omnibridge-service/metrics"
	"github.com/omnibridge/omnibridge-service/retry"
	"github.com/pkg/errors"
	"github.com/valyala/fasthttp"
)

const (
	defaultTimeout    = 10 * time.Second
	defaultMaxTimeout = 60 * time.Second
	timeoutFactor     = 1.2
	jsonRPCVersion    = "2.0"
)

// ErrNoEndpoints is returned when a client is created without URLs
var ErrNoEndpoints = errors.New("no endpoints configured")

// RPCError is an error reported by the remote JSON-RPC server
type RPCError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Name    string          `json:"name,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
	Cause   json.RawMessage `json:"cause,omitempty"`
}

func (e *RPCError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "rpc error %d: %s", e.Code, e.Message)
	if e.Name != "" {
		fmt.Fprintf(&b, " (%s)", e.Name)
	}
	if len(e.Data) > 0 {
		fmt.Fprintf(&b, " data=%s", string(e.Data))
	}
	if len(e.Cause) > 0 {
		fmt.Fprintf(&b, " cause=%s", string(e.Cause))
	}
	return b.String()
}

// HTTPError is returned for non 2xx responses
type HTTPError struct {
	Status int
	Body   string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("http status %d: %s", e.Status, e.Body)
}

func (e *HTTPError) retryable() bool {
	return e.Status == fasthttp.StatusTooManyRequests || e.Status >= fasthttp.StatusInternalServerError
}

type jsonRPCRequest struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      string      `json:"id"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params"`
}

type jsonRPCResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      interface{}     `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *RPCError       `json:"error"`
}

// Client talks JSON over HTTP to a pool of equivalent endpoints with failover
// and a timeout that adapts to the observed latency.
type Client struct {
	name   string
	cfg    Config
	http   *fasthttp.Client
	policy retry.Policy

	mu         sync.Mutex
	current    int
	timeout    time.Duration
	minTimeout time.Duration
	maxTimeout time.Duration
}

// New creates a client. name is used in logs and metrics.
func New(name string, cfg Config) (*Client, error) {
	if len(cfg.URLs) == 0 {
		return nil, errors.Wrap(ErrNoEndpoints, name)
	}
	timeout := cfg.Timeout.Duration
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	maxTimeout := cfg.MaxTimeout.Duration
	if maxTimeout < timeout {
		maxTimeout = defaultMaxTimeout
		if maxTimeout < timeout {
			maxTimeout = timeout
		}
	}
	policy := cfg.Retry
	if policy.Attempts <= 0 {
		policy = retry.NewPolicy(len(cfg.URLs)*2, 500*time.Millisecond) //nolint:gomnd
	}
	return &Client{
		name:       name,
		cfg:        cfg,
		http:       &fasthttp.Client{Name: "omnibridge", MaxIdleConnDuration: time.Minute},
		policy:     policy,
		timeout:    timeout,
		minTimeout: timeout,
		maxTimeout: maxTimeout,
	}, nil
}

// Timeout returns the current adaptive timeout
func (c *Client) Timeout() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.timeout
}

// Endpoint returns the URL currently in use
func (c *Client) Endpoint() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cfg.URLs[c.current]
}

func (c *Client) onTimeout() {
	c.mu.Lock()
	defer c.mu.Unlock()
	next := time.Duration(math.Round(float64(c.timeout) * timeoutFactor))
	if next > c.maxTimeout {
		next = c.maxTimeout
	}
	c.timeout = next
}

func (c *Client) onSuccess() {
	c.mu.Lock()
	defer c.mu.Unlock()
	next := time.Duration(math.Round(float64(c.timeout) / timeoutFactor))
	if next < c.minTimeout {
		next = c.minTimeout
	}
	c.timeout = next
}

func (c *Client) rotate(failed string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cfg.URLs[c.current] != failed {
		return
	}
	c.current = (c.current + 1) % len(c.cfg.URLs)
	log.Warnf("%s: endpoint %s failed, switching to %s", c.name, failed, c.cfg.URLs[c.current])
	metrics.RecordEndpointFailover(c.name)
}

// CallJSONRPC performs a JSON-RPC 2.0 call and decodes the result into result.
func (c *Client) CallJSONRPC(ctx context.Context, method string, params interface{}, result interface{}) error {
	body, err := json.Marshal(jsonRPCRequest{JSONRPC: jsonRPCVersion, ID: "omnibridge", Method: method, Params: params})
	if err != nil {
		return errors.Wrap(err, "marshal json-rpc request")
	}
	return c.do(ctx, method, fasthttp.MethodPost, "", body, func(raw []byte) error {
		var resp jsonRPCResponse
		if err := json.Unmarshal(raw, &resp); err != nil {
			return retry.Permanent(errors.Wrapf(err, "%s: decode json-rpc response", method))
		}
		if resp.Error != nil {
			return retry.Permanent(resp.Error)
		}
		if result == nil {
			return nil
		}
		if err := json.Unmarshal(resp.Result, result); err != nil {
			return retry.Permanent(errors.Wrapf(err, "%s: decode result", method))
		}
		return nil
	})
}

// PostJSON posts body as JSON to path and decodes the response into result
func (c *Client) PostJSON(ctx context.Context, path string, body interface{}, result interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return errors.Wrap(err, "marshal request")
	}
	return c.do(ctx, path, fasthttp.MethodPost, path, payload, decodeInto(path, result))
}

// GetJSON sends a GET to path and decodes the response into result
func (c *Client) GetJSON(ctx context.Context, path string, result interface{}) error {
	return c.do(ctx, path, fasthttp.MethodGet, path, nil, decodeInto(path, result))
}

func decodeInto(path string, result interface{}) func([]byte) error {
	return func(raw []byte) error {
		if result == nil {
			return nil
		}
		if err := json.Unmarshal(raw, result); err != nil {
			return retry.Permanent(errors.Wrapf(err, "%s: decode response", path))
		}
		return nil
	}
}

func (c *Client) do(ctx context.Context, label, method, path string, body []byte, handle func([]byte) error) error {
	start := time.Now()
	err := retry.Do(ctx, c.policy, func(ctx context.Context) error {
		endpoint := c.Endpoint()
		raw, err := c.roundTrip(ctx, endpoint, method, path, body)
		if err != nil {
			var httpErr *HTTPError
			if errors.As(err, &httpErr) && !httpErr.retryable() {
				return retry.Permanent(err)
			}
			c.rotate(endpoint)
			return err
		}
		return handle(raw)
	})
	metrics.RecordRequest(c.name+"/"+label, err == nil)
	metrics.RecordRequestLatency(c.name+"/"+label, time.Since(start), err == nil)
	return err
}

func (c *Client) roundTrip(ctx context.Context, endpoint, method, path string, body []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, retry.Permanent(err)
	}
	req := fasthttp.AcquireRequest()
	defer fasthttp.ReleaseRequest(req)
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(strings.TrimRight(endpoint, "/") + path)
	req.Header.SetMethod(method)
	req.Header.SetContentType("application/json")
	if c.cfg.APIKeyHeader != "" && c.cfg.APIKey != "" {
		req.Header.Set(c.cfg.APIKeyHeader, c.cfg.APIKey)
	}
	if body != nil {
		req.SetBody(body)
	}

	timeout := c.Timeout()
	if deadline, ok := ctx.Deadline(); ok {
		if left := time.Until(deadline); left < timeout {
			timeout = left
		}
	}
	err := c.http.DoTimeout(req, resp, timeout)
	if err != nil {
		if errors.Is(err, fasthttp.ErrTimeout) {
			c.onTimeout()
		}
		return nil, errors.Wrapf(err, "%s %s", c.name, endpoint)
	}
	c.onSuccess()
	if resp.StatusCode() < fasthttp.StatusOK || resp.StatusCode() >= fasthttp.StatusMultipleChoices {
		return nil, &HTTPError{Status: resp.StatusCode(), Body: string(resp.Body())}
	}
	return append([]byte(nil), resp.Body()...), nil
}
