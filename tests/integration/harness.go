// Package integration exercises the responder end to end over real
// sockets: a manager started from a configuration, clients talking to
// its echo and web ports, and coordinated shutdown.
package integration

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/sirosfoundation/tcp-responder/internal/server"
	"github.com/sirosfoundation/tcp-responder/pkg/config"
)

// TestHarness runs a manager with a set of specs and provides helpers
// for talking to its servers.
type TestHarness struct {
	T       *testing.T
	Manager *server.Manager
	Specs   []config.ServerSpec
	Logger  *zap.Logger
}

// TestHarnessOption configures the test harness
type TestHarnessOption func(*TestHarness)

// WithSpecs sets the server specs the harness starts.
func WithSpecs(specs ...config.ServerSpec) TestHarnessOption {
	return func(h *TestHarness) {
		h.Specs = specs
	}
}

// NewTestHarness starts a manager with the configured specs and
// registers cleanup to stop it.
func NewTestHarness(t *testing.T, opts ...TestHarnessOption) *TestHarness {
	t.Helper()

	logger, _ := zap.NewDevelopment()

	h := &TestHarness{
		T:      t,
		Logger: logger,
	}
	for _, opt := range opts {
		opt(h)
	}

	if len(h.Specs) == 0 {
		h.Specs = []config.ServerSpec{EchoSpec(FreePort(t))}
	}

	h.Manager = server.NewManager(logger)
	if err := h.Manager.Start(h.Specs); err != nil {
		t.Fatalf("failed to start manager: %v", err)
	}

	t.Cleanup(func() {
		_ = h.Manager.Stop(2 * time.Second)
		_ = logger.Sync()
	})

	return h
}

// FreePort grabs an ephemeral port from the kernel and releases it.
func FreePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to reserve port: %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	_ = ln.Close()
	return port
}

// EchoSpec builds an echo spec bound to localhost.
func EchoSpec(port int) config.ServerSpec {
	return config.ServerSpec{Type: config.ServerTypeEcho, Port: port, BindAddress: "127.0.0.1"}
}

// WebSpec builds a web spec bound to localhost.
func WebSpec(port int, content string) config.ServerSpec {
	return config.ServerSpec{Type: config.ServerTypeWeb, Port: port, BindAddress: "127.0.0.1", Content: content}
}

// Echo sends payload to the echo server on port and returns what comes
// back, reading until the expected length arrives.
func (h *TestHarness) Echo(port int, payload []byte) []byte {
	h.T.Helper()

	conn, err := net.Dial("tcp", fmt.Sprintf("127.0.0.1:%d", port))
	if err != nil {
		h.T.Fatalf("dial echo port %d: %v", port, err)
	}
	defer conn.Close()

	go func() {
		_, _ = conn.Write(payload)
		_ = conn.(*net.TCPConn).CloseWrite()
	}()

	got, err := io.ReadAll(conn)
	if err != nil {
		h.T.Fatalf("read echo port %d: %v", port, err)
	}
	return got
}

// HTTPGet issues one GET against the web server on port and returns
// the parsed response with its body fully read.
func (h *TestHarness) HTTPGet(port int, path string) (*http.Response, []byte) {
	h.T.Helper()

	conn, err := net.Dial("tcp", fmt.Sprintf("127.0.0.1:%d", port))
	if err != nil {
		h.T.Fatalf("dial web port %d: %v", port, err)
	}
	defer conn.Close()

	if _, err := fmt.Fprintf(conn, "GET %s HTTP/1.1\r\nHost: localhost\r\n\r\n", path); err != nil {
		h.T.Fatalf("write request: %v", err)
	}

	resp, err := http.ReadResponse(bufio.NewReader(conn), nil)
	if err != nil {
		h.T.Fatalf("read response: %v", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		h.T.Fatalf("read body: %v", err)
	}
	return resp, body
}
