// Package handler contains the per-connection protocol handlers. Each
// handler services exactly one accepted connection to completion; the
// set of variants (echo, web) is closed and selected by server type.
package handler

import (
	"fmt"
	"net"

	"go.uber.org/zap"

	"github.com/sirosfoundation/tcp-responder/pkg/config"
)

// Handler services a single accepted connection until the peer closes
// or an I/O error occurs. Handlers share no state with each other; a
// failure terminates only the connection it was handling.
type Handler interface {
	Handle(conn net.Conn) error
}

// Factory constructs a fresh Handler for each accepted connection.
type Factory func() Handler

// NewFactory returns the handler factory matching the spec's type.
func NewFactory(spec config.ServerSpec, logger *zap.Logger) (Factory, error) {
	switch spec.Type {
	case config.ServerTypeEcho:
		return func() Handler { return NewEcho(spec.Port, logger) }, nil
	case config.ServerTypeWeb:
		return func() Handler { return NewWeb(spec.Port, spec.Content, logger) }, nil
	default:
		return nil, fmt.Errorf("unknown server type: %q", spec.Type)
	}
}
