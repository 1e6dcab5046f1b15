package rpcclient

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/omnibridge/omnibridge-service/config/types"
	"github.com/omnibridge/omnibridge-service/retry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(urls ...string) Config {
	return Config{
		URLs:    urls,
		Timeout: types.NewDuration(2 * time.Second),
		Retry:   retry.NewPolicy(4, time.Millisecond),
	}
}

func TestJSONRPCFailover(t *testing.T) {
	var badCalls int32
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&badCalls, 1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer bad.Close()
	good := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var req map[string]interface{}
		require.NoError(t, json.Unmarshal(body, &req))
		assert.Equal(t, "status", req["method"])
		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":"omnibridge","result":{"chain_id":"mainnet"}}`))
	}))
	defer good.Close()

	c, err := New("test", testConfig(bad.URL, good.URL))
	require.NoError(t, err)

	var res struct {
		ChainID string `json:"chain_id"`
	}
	require.NoError(t, c.CallJSONRPC(context.Background(), "status", []interface{}{}, &res))
	assert.Equal(t, "mainnet", res.ChainID)
	assert.Equal(t, int32(1), atomic.LoadInt32(&badCalls))
	assert.Equal(t, good.URL, c.Endpoint())
}

func TestJSONRPCErrorIsNotRetried(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":"omnibridge","error":{"code":-32000,"message":"Server error","name":"HANDLER_ERROR"}}`))
	}))
	defer srv.Close()

	c, err := New("test", testConfig(srv.URL))
	require.NoError(t, err)
	err = c.CallJSONRPC(context.Background(), "query", nil, nil)
	var rpcErr *RPCError
	require.True(t, errors.As(err, &rpcErr))
	assert.Equal(t, "HANDLER_ERROR", rpcErr.Name)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestClientErrorIsNotRetried(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte("bad nonce"))
	}))
	defer srv.Close()

	c, err := New("test", testConfig(srv.URL))
	require.NoError(t, err)
	err = c.PostJSON(context.Background(), "/withdraw/sign", map[string]string{"nonce": "1"}, nil)
	var httpErr *HTTPError
	require.True(t, errors.As(err, &httpErr))
	assert.Equal(t, http.StatusBadRequest, httpErr.Status)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestGetJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/cosmos/bank/v1beta1/balances/juno1x", r.URL.Path)
		assert.Equal(t, "secret", r.Header.Get("X-Api-Key"))
		_, _ = w.Write([]byte(`{"balances":[]}`))
	}))
	defer srv.Close()

	cfg := testConfig(srv.URL + "/")
	cfg.APIKeyHeader = "X-Api-Key"
	cfg.APIKey = "secret"
	c, err := New("lcd", cfg)
	require.NoError(t, err)
	var out map[string]interface{}
	require.NoError(t, c.GetJSON(context.Background(), "/cosmos/bank/v1beta1/balances/juno1x", &out))
	assert.Contains(t, out, "balances")
}

func TestAdaptiveTimeoutBounds(t *testing.T) {
	cfg := testConfig("http://127.0.0.1:1")
	cfg.MaxTimeout = types.NewDuration(3 * time.Second)
	c, err := New("test", cfg)
	require.NoError(t, err)

	c.onTimeout()
	assert.Equal(t, 2400*time.Millisecond, c.Timeout())
	for i := 0; i < 10; i++ {
		c.onTimeout()
	}
	assert.Equal(t, 3*time.Second, c.Timeout())
	for i := 0; i < 20; i++ {
		c.onSuccess()
	}
	assert.Equal(t, 2*time.Second, c.Timeout())
}

func TestNoEndpoints(t *testing.T) {
	_, err := New("empty", Config{})
	assert.True(t, errors.Is(err, ErrNoEndpoints))
}
