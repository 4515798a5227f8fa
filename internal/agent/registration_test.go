package agent

import (
	"context"
	"errors"
	"sync"
	"testing"

	"clearcall/internal/models"
)

type fakeHandle struct {
	mu           sync.Mutex
	registered   bool
	registerErr  error
	unregistered bool
	closed       bool
	inviteFn     func(*InboundLeg)
	endFn        func(string)
}

func (f *fakeHandle) Serve(ctx context.Context, network, addr string) error {
	<-ctx.Done()
	return nil
}

func (f *fakeHandle) Register(ctx context.Context, expires int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.registerErr != nil {
		return f.registerErr
	}
	f.registered = true
	return nil
}

func (f *fakeHandle) Unregister(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unregistered = true
	f.registered = false
	return nil
}

func (f *fakeHandle) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeHandle) Registered() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.registered
}

func (f *fakeHandle) SetInviteHandler(fn func(*InboundLeg)) { f.inviteFn = fn }
func (f *fakeHandle) SetSessionEndHandler(fn func(string))  { f.endFn = fn }

func (f *fakeHandle) wasClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *fakeHandle) wasUnregistered() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.unregistered
}

func newTestManager(next *fakeHandle, constructErr error) (*Manager, *[]models.RegistrationState) {
	m := NewManager("udp", "127.0.0.1:5070")
	m.newAgent = func(cfg models.SignalingConfig, listenAddr string) (handle, error) {
		if constructErr != nil {
			return nil, constructErr
		}
		return next, nil
	}
	states := &[]models.RegistrationState{}
	m.OnState(func(st models.RegistrationState) { *states = append(*states, st) })
	return m, states
}

var testConfig = models.SignalingConfig{
	ServerAddress: "wss://sip.example.com:7443/ws",
	Identity:      "ram",
	Credential:    "ram123",
	Domain:        "example.com",
}

func TestConfigureRegisters(t *testing.T) {
	fake := &fakeHandle{}
	m, states := newTestManager(fake, nil)
	m.OnInvite(func(*InboundLeg) {})
	m.OnSessionEnd(func(string) {})

	if err := m.Configure(context.Background(), &testConfig); err != nil {
		t.Fatalf("Configure: %v", err)
	}
	if m.State() != models.Registered {
		t.Fatalf("state %s, want registered", m.State())
	}
	want := []models.RegistrationState{models.Registering, models.Registered}
	if len(*states) != len(want) || (*states)[0] != want[0] || (*states)[1] != want[1] {
		t.Fatalf("observed states %v, want %v", *states, want)
	}
	if fake.inviteFn == nil || fake.endFn == nil {
		t.Fatal("delegates not installed on the agent")
	}

	m.Close(context.Background())
	if !fake.wasUnregistered() || !fake.wasClosed() {
		t.Fatal("Close did not unregister and close the agent")
	}
	if m.State() != models.Unregistered {
		t.Fatalf("state after Close %s", m.State())
	}
}

func TestConfigureConstructionFailure(t *testing.T) {
	m, _ := newTestManager(nil, errors.New("malformed identity"))

	if err := m.Configure(context.Background(), &testConfig); err == nil {
		t.Fatal("expected construction error")
	}
	if m.State() != models.RegFailed {
		t.Fatalf("state %s, want failed", m.State())
	}
}

func TestConfigureRegisterFailure(t *testing.T) {
	fake := &fakeHandle{registerErr: errors.New("401 rejected")}
	m, _ := newTestManager(fake, nil)

	if err := m.Configure(context.Background(), &testConfig); err == nil {
		t.Fatal("expected registration error")
	}
	// No automatic retry: the state settles at unregistered until the
	// next Configure call.
	if m.State() != models.Unregistered {
		t.Fatalf("state %s, want unregistered", m.State())
	}
}

func TestConfigureNilTearsDown(t *testing.T) {
	fake := &fakeHandle{}
	m, _ := newTestManager(fake, nil)

	if err := m.Configure(context.Background(), &testConfig); err != nil {
		t.Fatalf("Configure: %v", err)
	}
	if err := m.Configure(context.Background(), nil); err != nil {
		t.Fatalf("Configure(nil): %v", err)
	}
	if !fake.wasUnregistered() || !fake.wasClosed() {
		t.Fatal("teardown skipped unregister or close")
	}
	if m.State() != models.Unregistered {
		t.Fatalf("state %s, want unregistered", m.State())
	}
}

func TestConfigureNilWithoutAgent(t *testing.T) {
	m, _ := newTestManager(&fakeHandle{}, nil)
	if err := m.Configure(context.Background(), nil); err != nil {
		t.Fatalf("Configure(nil): %v", err)
	}
	m.Close(context.Background())
}

func TestReconfigureReplacesAgent(t *testing.T) {
	first := &fakeHandle{}
	m, _ := newTestManager(first, nil)
	if err := m.Configure(context.Background(), &testConfig); err != nil {
		t.Fatalf("first Configure: %v", err)
	}

	second := &fakeHandle{}
	m.newAgent = func(cfg models.SignalingConfig, listenAddr string) (handle, error) {
		return second, nil
	}
	if err := m.Configure(context.Background(), &testConfig); err != nil {
		t.Fatalf("second Configure: %v", err)
	}
	if !first.wasClosed() {
		t.Fatal("previous agent survived reconfiguration")
	}
	if !second.Registered() {
		t.Fatal("replacement agent not registered")
	}
	if m.State() != models.Registered {
		t.Fatalf("state %s, want registered", m.State())
	}
}
