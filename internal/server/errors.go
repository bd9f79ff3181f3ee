package server

import (
	"errors"
	"fmt"
	"net"
	"syscall"
)

// Bind failure kinds, matchable with errors.Is through a BindError.
var (
	// ErrPortInUse means the address is already bound by another process.
	ErrPortInUse = errors.New("port already in use")
	// ErrPermissionDenied means binding was refused, typically a
	// privileged port without sufficient rights.
	ErrPermissionDenied = errors.New("permission denied")
	// ErrInvalidAddress means the bind address could not be parsed or
	// resolved.
	ErrInvalidAddress = errors.New("invalid bind address")
)

// ErrStartAborted is returned by Start when Stop was called while the
// start was still in progress.
var ErrStartAborted = errors.New("startup aborted by stop request")

// ConfigurationError reports an invalid spec set. It is always
// detected before any socket operation.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return "invalid server configuration: " + e.Reason
}

// BindError reports a failed listener bind for one instance.
type BindError struct {
	Addr string
	Port int
	Kind error // one of ErrPortInUse, ErrPermissionDenied, ErrInvalidAddress, or nil
	Err  error // underlying cause
}

func (e *BindError) Error() string {
	if e.Kind != nil {
		return fmt.Sprintf("bind %s: %v: %v", e.Addr, e.Kind, e.Err)
	}
	return fmt.Sprintf("bind %s: %v", e.Addr, e.Err)
}

func (e *BindError) Unwrap() []error {
	if e.Kind != nil {
		return []error{e.Kind, e.Err}
	}
	return []error{e.Err}
}

// StartupError is returned by Start when the batch could not be
// brought up. It identifies the first failing port; every instance the
// manager had already bound is stopped before Start returns.
type StartupError struct {
	Port  int
	Cause error
}

func (e *StartupError) Error() string {
	return fmt.Sprintf("startup failed on port %d: %v", e.Port, e.Cause)
}

func (e *StartupError) Unwrap() error { return e.Cause }

// ShutdownError aggregates instance-level shutdown problems, such as
// connections forced closed past the grace period. Stop still
// completes when returning it; forced closes are reported, not
// escalated.
type ShutdownError struct {
	Causes error
}

func (e *ShutdownError) Error() string {
	return fmt.Sprintf("shutdown completed with errors: %v", e.Causes)
}

func (e *ShutdownError) Unwrap() error { return e.Causes }

// classifyBindError maps a net.Listen failure onto the bind error
// taxonomy.
func classifyBindError(addr string, port int, err error) *BindError {
	be := &BindError{Addr: addr, Port: port, Err: err}

	switch {
	case errors.Is(err, syscall.EADDRINUSE):
		be.Kind = ErrPortInUse
	case errors.Is(err, syscall.EACCES), errors.Is(err, syscall.EPERM):
		be.Kind = ErrPermissionDenied
	default:
		var addrErr *net.AddrError
		var dnsErr *net.DNSError
		if errors.As(err, &addrErr) || errors.As(err, &dnsErr) {
			be.Kind = ErrInvalidAddress
		}
	}

	return be
}
