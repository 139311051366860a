package ipc

import (
	"context"
	"encoding/json"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ntfsearch/fastfind/internal/apperrors"
)

func startTestServer(t *testing.T, registry *Registry, opts Options) (*Server, *pipePairListener) {
	t.Helper()
	s := NewServer(registry, opts, nil)
	l := newPipePairListener()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(func() {
		cancel()
		_ = s.Close()
	})
	go func() { _ = s.Serve(ctx, l) }()
	return s, l
}

func roundTrip(t *testing.T, l *pipePairListener, method string, params Params) response {
	t.Helper()
	conn := l.dial()
	defer conn.Close()
	return roundTripOnConn(t, conn, method, params)
}

func roundTripOnConn(t *testing.T, conn net.Conn, method string, params Params) response {
	t.Helper()
	reqBody, err := json.Marshal(request{JSONRPC: "2.0", ID: 1, Method: method, Params: params})
	require.NoError(t, err)
	require.NoError(t, writeFrame(conn, reqBody))

	respBody, err := readFrame(conn)
	require.NoError(t, err)

	var resp response
	require.NoError(t, json.Unmarshal(respBody, &resp))
	return resp
}

func TestServerDispatchesRegisteredMethod(t *testing.T) {
	registry := NewRegistry()
	registry.Add(Call{Path: "echo", Fn: func(ctx context.Context, in Params) (Params, error) {
		return in, nil
	}})
	_, l := startTestServer(t, registry, DefaultOptions())

	resp := roundTrip(t, l, "echo", Params{"x": float64(1)})
	assert.Nil(t, resp.Error)
	assert.Equal(t, float64(1), resp.Result["x"])
}

func TestServerUnknownMethodReturnsError(t *testing.T) {
	registry := NewRegistry()
	_, l := startTestServer(t, registry, DefaultOptions())

	resp := roundTrip(t, l, "nope", Params{})
	require.NotNil(t, resp.Error)
	assert.Equal(t, methodNotFoundCode, resp.Error.Code)
}

func TestServerBadJSONKeepsConnectionAlive(t *testing.T) {
	registry := NewRegistry()
	registry.Add(Call{Path: "echo", Fn: func(ctx context.Context, in Params) (Params, error) {
		return in, nil
	}})
	_, l := startTestServer(t, registry, DefaultOptions())

	conn := l.dial()
	defer conn.Close()
	require.NoError(t, writeFrame(conn, []byte("not json")))
	body, err := readFrame(conn)
	require.NoError(t, err)
	var resp response
	require.NoError(t, json.Unmarshal(body, &resp))
	require.NotNil(t, resp.Error)

	// connection should still accept a well-formed request afterward.
	reqBody, _ := json.Marshal(request{JSONRPC: "2.0", ID: 2, Method: "echo", Params: Params{"ok": true}})
	require.NoError(t, writeFrame(conn, reqBody))
	body2, err := readFrame(conn)
	require.NoError(t, err)
	var resp2 response
	require.NoError(t, json.Unmarshal(body2, &resp2))
	assert.Nil(t, resp2.Error)
}

func TestServerOversizedFrameKeepsConnectionAlive(t *testing.T) {
	registry := NewRegistry()
	registry.Add(Call{Path: "echo", Fn: func(ctx context.Context, in Params) (Params, error) {
		return in, nil
	}})
	_, l := startTestServer(t, registry, DefaultOptions())

	conn := l.dial()
	defer conn.Close()
	require.NoError(t, writeFrame(conn, make([]byte, maxFrameSize+1)))

	body, err := readFrame(conn)
	require.NoError(t, err)
	var resp response
	require.NoError(t, json.Unmarshal(body, &resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, int(apperrors.CodeFrameTooLarge), resp.Error.Code)

	// connection should still accept a well-formed request afterward.
	reqBody, _ := json.Marshal(request{JSONRPC: "2.0", ID: 2, Method: "echo", Params: Params{"ok": true}})
	require.NoError(t, writeFrame(conn, reqBody))
	body2, err := readFrame(conn)
	require.NoError(t, err)
	var resp2 response
	require.NoError(t, json.Unmarshal(body2, &resp2))
	assert.Nil(t, resp2.Error)
}

func TestServerReturnsBusyWhenConcurrencyExhausted(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{}, 2)
	registry := NewRegistry()
	registry.Add(Call{Path: "slow", Fn: func(ctx context.Context, in Params) (Params, error) {
		started <- struct{}{}
		<-release
		return Params{}, nil
	}})
	_, l := startTestServer(t, registry, Options{MaxConcurrency: 1})

	done := make(chan response, 1)
	conn1 := l.dial()
	defer conn1.Close()
	go func() {
		done <- roundTripOnConn(t, conn1, "slow", Params{})
	}()

	select {
	case <-started:
	case <-time.After(time.Second):
		t.Fatal("first call never started")
	}

	resp := roundTrip(t, l, "slow", Params{})
	require.NotNil(t, resp.Error)
	assert.Equal(t, int(1007), resp.Error.Code) // CodeBusy

	close(release)
	<-done
}
