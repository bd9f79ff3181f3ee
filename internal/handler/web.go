package handler

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// Web answers a single HTTP request with configured content, then
// closes the connection. It is a diagnostic stub, not a router: the
// same body is served regardless of method or path, with no keep-alive
// semantics.
type Web struct {
	port        int
	content     []byte
	contentType string
	log         *zap.Logger
}

// NewWeb creates a web handler serving the given content. The content
// type is sniffed once at construction: bodies that look like HTML get
// text/html, everything else text/plain.
func NewWeb(port int, content string, logger *zap.Logger) *Web {
	contentType := "text/plain; charset=utf-8"
	trimmed := strings.TrimSpace(content)
	if strings.HasPrefix(trimmed, "<!DOCTYPE") || strings.HasPrefix(trimmed, "<html") {
		contentType = "text/html; charset=utf-8"
	}

	return &Web{
		port:        port,
		content:     []byte(content),
		contentType: contentType,
		log:         logger.Named("web").With(zap.Int("port", port)),
	}
}

// Handle reads one inbound request and writes a minimal HTTP/1.1
// response carrying the configured content with a correct
// Content-Length. Malformed input still gets a best-effort response so
// the peer is never left hanging.
func (h *Web) Handle(conn net.Conn) error {
	status := http.StatusOK
	req, err := http.ReadRequest(bufio.NewReader(conn))
	switch {
	case err == nil:
		h.log.Info("request",
			zap.String("method", req.Method),
			zap.String("path", req.URL.Path),
			zap.String("remote", conn.RemoteAddr().String()))
		_ = req.Body.Close()
	case errors.Is(err, io.EOF):
		// Peer closed without sending anything.
		return nil
	default:
		h.log.Warn("malformed request",
			zap.String("remote", conn.RemoteAddr().String()),
			zap.Error(err))
		status = http.StatusBadRequest
	}

	if werr := h.writeResponse(conn, status); werr != nil {
		return fmt.Errorf("web write: %w", werr)
	}
	return nil
}

func (h *Web) writeResponse(conn net.Conn, status int) error {
	header := make(http.Header)
	header.Set("Content-Type", h.contentType)
	header.Set("Server", "tcp-responder")
	header.Set("X-Served-Port", strconv.Itoa(h.port))

	resp := http.Response{
		StatusCode:    status,
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        header,
		Body:          io.NopCloser(bytes.NewReader(h.content)),
		ContentLength: int64(len(h.content)),
		Close:         true,
	}
	return resp.Write(conn)
}
