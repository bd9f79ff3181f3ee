package server

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sirosfoundation/tcp-responder/internal/handler"
	"github.com/sirosfoundation/tcp-responder/pkg/config"
)

// InstanceState is the lifecycle state of a single server instance.
type InstanceState string

const (
	InstanceIdle     InstanceState = "idle"
	InstanceStarting InstanceState = "starting"
	InstanceRunning  InstanceState = "running"
	InstanceStopping InstanceState = "stopping"
	InstanceStopped  InstanceState = "stopped"
	InstanceFailed   InstanceState = "failed"
)

// Instance is the running embodiment of one ServerSpec: a bound
// listener, the goroutine accepting on it, and the set of connections
// it has dispatched. Instances are owned exclusively by the Manager;
// a connection never outlives the instance that accepted it.
type Instance struct {
	spec       config.ServerSpec
	log        *zap.Logger
	newHandler handler.Factory

	mu       sync.Mutex
	state    InstanceState
	listener net.Listener
	conns    map[string]net.Conn

	acceptWG sync.WaitGroup
	connWG   sync.WaitGroup
}

// NewInstance creates an instance for the given spec. The listener is
// not acquired until Bind.
func NewInstance(spec config.ServerSpec, logger *zap.Logger) (*Instance, error) {
	log := logger.Named(string(spec.Type)).With(zap.Int("port", spec.Port))

	factory, err := handler.NewFactory(spec, logger)
	if err != nil {
		return nil, err
	}

	return &Instance{
		spec:       spec,
		log:        log,
		newHandler: factory,
		state:      InstanceIdle,
		conns:      make(map[string]net.Conn),
	}, nil
}

// Port returns the instance's configured port.
func (i *Instance) Port() int { return i.spec.Port }

// Addr returns the bound listener address, or "" before Bind.
func (i *Instance) Addr() string {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.listener == nil {
		return ""
	}
	return i.listener.Addr().String()
}

// State returns the current lifecycle state.
func (i *Instance) State() InstanceState {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.state
}

// Running reports whether the instance is accepting connections.
func (i *Instance) Running() bool {
	return i.State() == InstanceRunning
}

// Bind acquires the listening socket at the spec's (bind_address,
// port). No connections are accepted until Start. Failures are
// classified as BindError and leave the instance in the failed state.
func (i *Instance) Bind() error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.listener != nil {
		return fmt.Errorf("instance on port %d already bound", i.spec.Port)
	}

	ln, err := net.Listen("tcp", i.spec.Address())
	if err != nil {
		i.state = InstanceFailed
		bindErr := classifyBindError(i.spec.Address(), i.spec.Port, err)
		i.log.Error("bind failed", zap.Error(bindErr))
		return bindErr
	}

	i.listener = ln
	i.state = InstanceStarting
	i.log.Info("listener bound", zap.String("address", ln.Addr().String()))
	return nil
}

// Start launches the accept loop. Bind must have succeeded first.
func (i *Instance) Start() {
	i.mu.Lock()
	ln := i.listener
	i.state = InstanceRunning
	i.mu.Unlock()

	i.acceptWG.Add(1)
	go i.acceptLoop(ln)
	i.log.Info("accepting connections")
}

// acceptLoop runs until the listener is closed, dispatching each
// accepted connection to a freshly constructed handler in its own
// goroutine. A slow or failing connection never delays the loop.
func (i *Instance) acceptLoop(ln net.Listener) {
	defer i.acceptWG.Done()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			i.log.Warn("accept failed", zap.Error(err))
			continue
		}

		id := uuid.NewString()
		i.trackConn(id, conn)
		i.connWG.Add(1)
		go i.serveConn(id, conn)
	}
}

// serveConn services one connection to completion. Handler failures
// are isolated: logged here, never propagated to siblings or to the
// instance.
func (i *Instance) serveConn(id string, conn net.Conn) {
	defer i.connWG.Done()
	defer i.untrackConn(id)
	defer conn.Close()

	i.log.Info("connection opened",
		zap.String("conn_id", id),
		zap.String("remote", conn.RemoteAddr().String()))

	h := i.newHandler()
	if err := h.Handle(conn); err != nil && !errors.Is(err, net.ErrClosed) {
		i.log.Warn("connection error",
			zap.String("conn_id", id),
			zap.Error(err))
	}

	i.log.Info("connection closed", zap.String("conn_id", id))
}

func (i *Instance) trackConn(id string, conn net.Conn) {
	i.mu.Lock()
	i.conns[id] = conn
	i.mu.Unlock()
}

func (i *Instance) untrackConn(id string) {
	i.mu.Lock()
	delete(i.conns, id)
	i.mu.Unlock()
}

// ActiveConnections returns the number of connections currently being
// served.
func (i *Instance) ActiveConnections() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return len(i.conns)
}

// Stop closes the listener, waits up to grace for in-flight
// connections to finish, then force-closes any remainder. It is safe
// to call more than once; subsequent calls are no-ops. The returned
// error reports forced closes and is informational: the instance is
// stopped either way.
func (i *Instance) Stop(grace time.Duration) error {
	i.mu.Lock()
	if i.state == InstanceStopped || i.state == InstanceStopping || i.state == InstanceFailed || i.state == InstanceIdle {
		done := i.state == InstanceStopped || i.state == InstanceFailed || i.state == InstanceIdle
		i.mu.Unlock()
		if done {
			return nil
		}
		// Another Stop is in flight; wait for it to finish.
		i.acceptWG.Wait()
		i.connWG.Wait()
		return nil
	}
	i.state = InstanceStopping
	ln := i.listener
	i.mu.Unlock()

	i.log.Info("stopping", zap.Duration("grace_period", grace))

	// No new connections from this point. Closing twice is safe; the
	// resulting ErrClosed is ignored.
	if ln != nil {
		_ = ln.Close()
	}
	i.acceptWG.Wait()

	var err error
	if !i.waitConns(grace) {
		forced := i.forceCloseConns()
		i.connWG.Wait()
		if forced > 0 {
			err = fmt.Errorf("port %d: %d connection(s) forced closed after %s grace period", i.spec.Port, forced, grace)
			i.log.Warn("grace period expired",
				zap.Int("forced_closed", forced),
				zap.Duration("grace_period", grace))
		}
	}

	i.mu.Lock()
	i.state = InstanceStopped
	i.listener = nil
	i.mu.Unlock()

	i.log.Info("stopped")
	return err
}

// waitConns waits up to grace for the active-connection set to drain.
func (i *Instance) waitConns(grace time.Duration) bool {
	done := make(chan struct{})
	go func() {
		i.connWG.Wait()
		close(done)
	}()

	if grace <= 0 {
		select {
		case <-done:
			return true
		default:
			return false
		}
	}

	select {
	case <-done:
		return true
	case <-time.After(grace):
		return false
	}
}

// forceCloseConns closes every tracked connection and returns how many
// were closed.
func (i *Instance) forceCloseConns() int {
	i.mu.Lock()
	remaining := make([]net.Conn, 0, len(i.conns))
	for _, conn := range i.conns {
		remaining = append(remaining, conn)
	}
	i.mu.Unlock()

	for _, conn := range remaining {
		_ = conn.Close()
	}
	return len(remaining)
}
