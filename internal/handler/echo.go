package handler

import (
	"errors"
	"fmt"
	"io"
	"net"

	"go.uber.org/zap"
)

// echoChunkSize is the read buffer size for the echo loop. Echo is
// best-effort byte passthrough; no buffering happens beyond one chunk.
const echoChunkSize = 1024

// Echo returns every received byte back to the peer verbatim until the
// peer closes the connection or an I/O error occurs.
type Echo struct {
	port int
	log  *zap.Logger
}

// NewEcho creates an echo handler for a server on the given port.
func NewEcho(port int, logger *zap.Logger) *Echo {
	return &Echo{
		port: port,
		log:  logger.Named("echo").With(zap.Int("port", port)),
	}
}

// Handle copies inbound bytes back to the peer chunk by chunk. A clean
// peer close ends the connection without error; any write failure
// terminates it without retry.
func (h *Echo) Handle(conn net.Conn) error {
	buf := make([]byte, echoChunkSize)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			h.log.Debug("echoing data",
				zap.String("remote", conn.RemoteAddr().String()),
				zap.Int("bytes", n))
			if _, werr := conn.Write(buf[:n]); werr != nil {
				return fmt.Errorf("echo write: %w", werr)
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("echo read: %w", err)
		}
	}
}
