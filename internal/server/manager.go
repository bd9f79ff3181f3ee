package server

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sirosfoundation/tcp-responder/pkg/config"
)

// ManagerState is the overall lifecycle state of the manager.
type ManagerState string

const (
	ManagerIdle     ManagerState = "idle"
	ManagerStarting ManagerState = "starting"
	ManagerRunning  ManagerState = "running"
	ManagerStopping ManagerState = "stopping"
	ManagerStopped  ManagerState = "stopped"
	ManagerFailed   ManagerState = "failed"
)

// Manager owns the full set of server instances: it brings them up
// with all-or-nothing semantics, supervises them while running, and
// tears them down concurrently on Stop. A Manager is constructed
// explicitly by its caller and owned for its whole lifetime; there is
// no package-level instance.
type Manager struct {
	log *zap.Logger

	mu         sync.Mutex
	state      ManagerState
	instances  map[int]*Instance
	order      []int // spec order, for deterministic startup/shutdown logging
	abortStart bool
	startDone  chan struct{}
	stopDone   chan struct{}

	// testHookAfterBind, when set, runs between the bind fan-out and
	// the transition to running. Used only by tests.
	testHookAfterBind func()
}

// NewManager creates an idle manager.
func NewManager(logger *zap.Logger) *Manager {
	return &Manager{
		log:       logger.Named("manager"),
		state:     ManagerIdle,
		instances: make(map[int]*Instance),
	}
}

// State returns the manager's lifecycle state.
func (m *Manager) State() ManagerState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Status returns a point-in-time snapshot of every instance's state,
// keyed by port. It never blocks on instance activity.
func (m *Manager) Status() map[int]InstanceState {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[int]InstanceState, len(m.instances))
	for port, inst := range m.instances {
		out[port] = inst.State()
	}
	return out
}

// Start validates the spec set, binds every instance concurrently and,
// if all binds succeed, begins accepting connections on each before
// returning with the manager in the running state.
//
// Startup is atomic: if any bind fails, every instance already bound
// is stopped before Start returns the StartupError, and the manager
// reports failed. No orphaned listeners survive a failed startup.
func (m *Manager) Start(specs []config.ServerSpec) error {
	m.mu.Lock()
	if m.state != ManagerIdle {
		m.mu.Unlock()
		return fmt.Errorf("manager already started (state %s)", m.state)
	}

	if err := validateSpecs(specs); err != nil {
		m.mu.Unlock()
		return err
	}

	m.state = ManagerStarting
	m.abortStart = false
	m.startDone = make(chan struct{})
	m.mu.Unlock()

	m.log.Info("starting", zap.Int("servers", len(specs)))
	err := m.startAll(specs)

	m.mu.Lock()
	close(m.startDone)
	m.startDone = nil
	m.mu.Unlock()

	return err
}

// startAll performs the bind fan-out and either transitions to running
// or unwinds.
func (m *Manager) startAll(specs []config.ServerSpec) error {
	instances := make([]*Instance, 0, len(specs))
	for _, spec := range specs {
		inst, err := NewInstance(spec, m.log)
		if err != nil {
			// Nothing was registered or bound yet; like a validation
			// failure, this leaves the manager idle.
			m.setState(ManagerIdle)
			return &ConfigurationError{Reason: err.Error()}
		}
		instances = append(instances, inst)
	}

	m.mu.Lock()
	for _, inst := range instances {
		m.instances[inst.Port()] = inst
		m.order = append(m.order, inst.Port())
	}
	m.mu.Unlock()

	// Bind every listener concurrently. Ordering of bind attempts is
	// not observable; only the aggregate outcome is.
	g := new(errgroup.Group)
	for _, inst := range instances {
		inst := inst
		g.Go(func() error {
			if err := inst.Bind(); err != nil {
				return &StartupError{Port: inst.Port(), Cause: err}
			}
			return nil
		})
	}
	bindErr := g.Wait()

	if bindErr != nil {
		m.unwind(instances)
		m.setState(ManagerFailed)
		m.log.Error("startup failed", zap.Error(bindErr))
		return bindErr
	}

	if m.testHookAfterBind != nil {
		m.testHookAfterBind()
	}

	// A Stop issued while binds were in flight wins over the start.
	// The abort check and the running transition share one critical
	// section, so a stop request can never land between them
	// unobserved.
	m.mu.Lock()
	if m.abortStart {
		m.mu.Unlock()
		m.unwind(instances)
		m.setState(ManagerStopped)
		m.log.Info("startup aborted")
		return ErrStartAborted
	}

	for _, inst := range instances {
		inst.Start()
	}
	m.state = ManagerRunning
	m.mu.Unlock()

	m.log.Info("running", zap.Int("servers", len(instances)))
	return nil
}

// unwind stops every instance of a failed or aborted start
// concurrently with no grace: nothing user-visible was accepted yet.
func (m *Manager) unwind(instances []*Instance) {
	var wg sync.WaitGroup
	for _, inst := range instances {
		inst := inst
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = inst.Stop(0)
		}()
	}
	wg.Wait()
}

// Stop transitions the manager to stopping and signals every instance
// to stop concurrently: each closes its listener immediately and gives
// in-flight connections up to grace to finish before force-closing
// them. Stop returns once the slowest instance reports stopped.
//
// Forced closes are reported via ShutdownError but do not prevent the
// manager from reaching the stopped state. Stopping an idle or already
// stopped manager is a no-op. Stop is safe to call concurrently with
// an in-progress Start; the start observes it and terminates early.
func (m *Manager) Stop(grace time.Duration) error {
	m.mu.Lock()
	switch m.state {
	case ManagerIdle, ManagerStopped, ManagerFailed:
		m.mu.Unlock()
		return nil
	case ManagerStarting:
		m.abortStart = true
		done := m.startDone
		m.mu.Unlock()
		if done != nil {
			<-done
		}
		return nil
	case ManagerStopping:
		// Another Stop is in flight; wait for it to finish.
		done := m.stopDone
		m.mu.Unlock()
		if done != nil {
			<-done
		}
		return nil
	}

	m.state = ManagerStopping
	m.stopDone = make(chan struct{})
	instances := make([]*Instance, 0, len(m.order))
	for _, port := range m.order {
		instances = append(instances, m.instances[port])
	}
	m.mu.Unlock()

	m.log.Info("stopping",
		zap.Int("servers", len(instances)),
		zap.Duration("grace_period", grace))

	var errMu sync.Mutex
	var errs error
	var wg sync.WaitGroup
	for _, inst := range instances {
		inst := inst
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := inst.Stop(grace); err != nil {
				errMu.Lock()
				errs = multierr.Append(errs, err)
				errMu.Unlock()
			}
		}()
	}
	wg.Wait()

	m.mu.Lock()
	m.state = ManagerStopped
	close(m.stopDone)
	m.stopDone = nil
	m.mu.Unlock()
	m.log.Info("stopped")

	if errs != nil {
		return &ShutdownError{Causes: errs}
	}
	return nil
}

func (m *Manager) setState(state ManagerState) {
	m.mu.Lock()
	m.state = state
	m.mu.Unlock()
}

// validateSpecs enforces the Start preconditions: a non-empty set of
// at most MaxServers valid specs with unique ports. Violations fail
// before any bind is attempted.
func validateSpecs(specs []config.ServerSpec) error {
	if len(specs) == 0 {
		return &ConfigurationError{Reason: "no servers configured"}
	}
	if len(specs) > config.MaxServers {
		return &ConfigurationError{Reason: fmt.Sprintf("too many servers: %d (maximum %d)", len(specs), config.MaxServers)}
	}

	ports := make(map[int]bool, len(specs))
	for i := range specs {
		if err := specs[i].Validate(); err != nil {
			return &ConfigurationError{Reason: err.Error()}
		}
		if ports[specs[i].Port] {
			return &ConfigurationError{Reason: fmt.Sprintf("port %d is used by multiple servers", specs[i].Port)}
		}
		ports[specs[i].Port] = true
	}
	return nil
}
