package agent

import (
	"context"
	"log"
	"sync"

	"clearcall/internal/models"
	"clearcall/pkg/utils"
)

// handle is the slice of Agent the manager drives, seamable for tests.
type handle interface {
	Serve(ctx context.Context, network, addr string) error
	Register(ctx context.Context, expires int) error
	Unregister(ctx context.Context) error
	Close() error
	Registered() bool
	SetInviteHandler(func(*InboundLeg))
	SetSessionEndHandler(func(string))
}

func (a *Agent) setRegisteredOn() { a.setRegistered(true) }

// Manager owns the signaling-agent lifecycle. Configure with a non-nil
// config replaces any existing agent with a freshly registered one;
// Configure(nil) tears down without re-registering. One agent exists per
// configuration, process-wide.
type Manager struct {
	network    string
	listenAddr string
	expires    int

	mu     sync.Mutex
	agent  handle
	cancel context.CancelFunc
	state  models.RegistrationState

	onState     func(models.RegistrationState)
	onInvite    func(*InboundLeg)
	onSessionEnd func(string)
	onAgent     func(*Agent) // fires with the live agent, nil on teardown

	newAgent func(cfg models.SignalingConfig, listenAddr string) (handle, error)
}

func NewManager(network, listenAddr string) *Manager {
	return &Manager{
		network:    network,
		listenAddr: listenAddr,
		expires:    3600,
		state:      models.Unregistered,
		newAgent: func(cfg models.SignalingConfig, listenAddr string) (handle, error) {
			return New(cfg, listenAddr)
		},
	}
}

// OnState installs the registration-state observer.
func (m *Manager) OnState(fn func(models.RegistrationState)) { m.onState = fn }

// OnInvite installs the inbound-offer delegate passed to every agent.
func (m *Manager) OnInvite(fn func(*InboundLeg)) { m.onInvite = fn }

// OnSessionEnd installs the remote-hangup callback passed to every agent.
func (m *Manager) OnSessionEnd(fn func(string)) { m.onSessionEnd = fn }

// OnAgent fires whenever the live agent changes: the new agent after a
// successful construction, nil after teardown. Dependents use it to stay
// inert while no configuration is active.
func (m *Manager) OnAgent(fn func(*Agent)) { m.onAgent = fn }

// State returns the current registration state.
func (m *Manager) State() models.RegistrationState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Configure tears down any existing agent and, for a non-nil config,
// constructs and registers a new one. Construction failure is fatal to
// the attempt: state goes to failed and nothing proceeds until the next
// Configure call.
func (m *Manager) Configure(ctx context.Context, cfg *models.SignalingConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.teardownLocked(ctx)
	if cfg == nil {
		m.setStateLocked(models.Unregistered)
		return nil
	}

	ag, err := m.newAgent(*cfg, m.listenAddr)
	if err != nil {
		utils.RegistrationFailures.Inc()
		log.Printf("[RegMgr] ✗ Agent construction failed: %v", err)
		m.setStateLocked(models.RegFailed)
		return err
	}
	ag.SetInviteHandler(m.onInvite)
	ag.SetSessionEndHandler(m.onSessionEnd)

	serveCtx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	go func() {
		if err := ag.Serve(serveCtx, m.network, m.listenAddr); err != nil && serveCtx.Err() == nil {
			log.Printf("[RegMgr] Agent serve stopped: %v", err)
		}
	}()

	m.agent = ag
	m.publishAgentLocked()
	m.setStateLocked(models.Registering)

	if err := ag.Register(ctx, m.expires); err != nil {
		// Reported, not retried: a fresh Configure is the retry path.
		utils.RegistrationFailures.Inc()
		log.Printf("[RegMgr] ✗ Registration failed: %v", err)
		m.setStateLocked(models.Unregistered)
		return err
	}
	if a, ok := m.agent.(*Agent); ok {
		a.setRegisteredOn()
	}
	m.setStateLocked(models.Registered)
	return nil
}

// Close tears down without re-registering. Never panics, even when no
// agent was ever started.
func (m *Manager) Close(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.teardownLocked(ctx)
	m.setStateLocked(models.Unregistered)
}

func (m *Manager) teardownLocked(ctx context.Context) {
	if m.agent == nil {
		return
	}
	if m.agent.Registered() {
		if err := m.agent.Unregister(ctx); err != nil {
			log.Printf("[RegMgr] Unregister failed (ignored): %v", err)
		}
	}
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	if err := m.agent.Close(); err != nil {
		log.Printf("[RegMgr] Agent close failed (ignored): %v", err)
	}
	m.agent = nil
	m.publishAgentLocked()
}

func (m *Manager) setStateLocked(st models.RegistrationState) {
	m.state = st
	if m.onState != nil {
		m.onState(st)
	}
}

func (m *Manager) publishAgentLocked() {
	if m.onAgent == nil {
		return
	}
	if a, ok := m.agent.(*Agent); ok {
		m.onAgent(a)
	} else {
		m.onAgent(nil)
	}
}
