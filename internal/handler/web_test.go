package handler

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// webRequest runs a web handler on one end of a pipe, sends raw on the
// other, and returns the parsed response.
func webRequest(t *testing.T, h *Web, raw string) *http.Response {
	t.Helper()

	client, srv := net.Pipe()
	defer client.Close()

	done := make(chan error, 1)
	go func() {
		defer srv.Close()
		done <- h.Handle(srv)
	}()

	_, err := client.Write([]byte(raw))
	require.NoError(t, err)

	resp, err := http.ReadResponse(bufio.NewReader(client), nil)
	require.NoError(t, err)

	// Drain the body before waiting on the handler: net.Pipe is
	// synchronous, so the handler's body write cannot complete until
	// someone reads it.
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	resp.Body = io.NopCloser(bytes.NewReader(body))

	require.NoError(t, <-done)
	return resp
}

func TestWeb_ServesContent(t *testing.T) {
	content := "hello from the responder"
	h := NewWeb(8080, content, zap.NewNop())

	resp := webRequest(t, h, "GET /anything HTTP/1.1\r\nHost: localhost\r\n\r\n")
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, strconv.Itoa(len(content)), resp.Header.Get("Content-Length"))
	assert.Equal(t, "text/plain; charset=utf-8", resp.Header.Get("Content-Type"))
	assert.Equal(t, "tcp-responder", resp.Header.Get("Server"))
	assert.Equal(t, "8080", resp.Header.Get("X-Served-Port"))

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, content, string(body))
}

func TestWeb_ContentLengthMatchesBody(t *testing.T) {
	for _, content := range []string{"x", "hi", "line one\nline two\n", "unicode: héllo"} {
		h := NewWeb(8080, content, zap.NewNop())

		resp := webRequest(t, h, "GET / HTTP/1.1\r\nHost: x\r\n\r\n")
		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		require.NoError(t, err)

		assert.Equal(t, content, string(body))
		assert.Equal(t, strconv.Itoa(len([]byte(content))), resp.Header.Get("Content-Length"))
	}
}

func TestWeb_HTMLContentType(t *testing.T) {
	for _, content := range []string{
		"<!DOCTYPE html><html><body>hi</body></html>",
		"<html><body>hi</body></html>",
		"\n  <html>indented</html>",
	} {
		h := NewWeb(8080, content, zap.NewNop())

		resp := webRequest(t, h, "GET / HTTP/1.1\r\nHost: x\r\n\r\n")
		resp.Body.Close()

		assert.Equal(t, "text/html; charset=utf-8", resp.Header.Get("Content-Type"), "content %q", content)
	}
}

func TestWeb_AnyMethodAnyPath(t *testing.T) {
	h := NewWeb(8080, "pong", zap.NewNop())

	for _, first := range []string{
		"POST /submit HTTP/1.1",
		"DELETE /deep/nested/path HTTP/1.1",
		"HEAD / HTTP/1.1",
	} {
		resp := webRequest(t, h, fmt.Sprintf("%s\r\nHost: x\r\nContent-Length: 0\r\n\r\n", first))
		resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode, "request %q", first)
	}
}

func TestWeb_MalformedRequestStillAnswers(t *testing.T) {
	h := NewWeb(8080, "still here", zap.NewNop())

	resp := webRequest(t, h, "NOT A REQUEST\r\n\r\n")
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "still here", string(body))
}

func TestWeb_PeerClosesWithoutSending(t *testing.T) {
	h := NewWeb(8080, "unused", zap.NewNop())

	client, srv := net.Pipe()
	done := make(chan error, 1)
	go func() {
		defer srv.Close()
		done <- h.Handle(srv)
	}()

	require.NoError(t, client.Close())
	assert.NoError(t, <-done)
}
