// Package playback implements the client-side gating state machine that an
// embedding player drives. It meters free preview time, walls off playback
// until the viewer authenticates and pays, runs the checkout popup and its
// completion bridge, and unlocks once settlement is confirmed server-side.
package playback

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// State of the gate.
type State int

const (
	StateFreePreview State = iota
	StateGated
	StateAuthPending
	StatePaymentPending
	StateUnlocked
)

func (s State) String() string {
	switch s {
	case StateFreePreview:
		return "free_preview"
	case StateGated:
		return "gated"
	case StateAuthPending:
		return "auth_pending"
	case StatePaymentPending:
		return "payment_pending"
	case StateUnlocked:
		return "unlocked"
	}
	return "unknown"
}

// MessageType is the envelope type the popup bridge posts to its opener.
const MessageType = "uvfCheckout"

// Message is the completion envelope posted by the popup bridge page.
type Message struct {
	Type      string `json:"type"`
	Status    string `json:"status"` // success | failed | cancel
	OrderID   string `json:"orderId"`
	SessionID string `json:"sessionId"`
	GatewayID string `json:"gatewayId"`
}

// Player is the minimal control surface of the embedding video player.
type Player interface {
	Pause()
	Play()
}

// Popup is an opened checkout window.
type Popup interface {
	Closed() bool
	Close()
}

// PopupOpener opens a detached window on the given URL.
type PopupOpener interface {
	Open(url string) (Popup, error)
}

// Config is the paywall configuration fetched before gating decisions.
type Config struct {
	Gateways            []string
	Title               string
	PriceCents          int64
	Currency            string
	FreeDurationSeconds int
}

// Checkout is what starting a checkout hands back.
type Checkout struct {
	URL     string
	OrderID string
}

// API is the gate's view of the rental service.
type API interface {
	Config(ctx context.Context, videoID string) (*Config, error)
	Entitled(ctx context.Context, userID, videoID string) (bool, error)
	CreateCheckout(ctx context.Context, gatewayID, videoID string) (*Checkout, error)
	ConfirmOrder(ctx context.Context, gatewayID, orderID string) (bool, error)
}

type inflight struct {
	gatewayID string
	cancel    context.CancelFunc
}

// Machine is the gating state machine for one video in one viewing session.
// All entry points are safe for concurrent use; the popup watcher runs on its
// own goroutine and funnels back through the same lock.
type Machine struct {
	mu sync.Mutex

	state     State
	videoID   string
	freeLimit time.Duration
	watched   time.Duration
	lastPos   time.Duration
	gateFired bool

	gateways []string
	inflight map[string]*inflight

	player Player
	opener PopupOpener
	creds  *CredentialStore
	api    API
	now    func() time.Time

	onChange func(State)
}

// Option configures a Machine.
type Option func(*Machine)

// WithClock overrides the wall clock.
func WithClock(now func() time.Time) Option {
	return func(m *Machine) { m.now = now }
}

// WithStateListener registers a callback fired on every transition, outside
// the machine's lock.
func WithStateListener(fn func(State)) Option {
	return func(m *Machine) { m.onChange = fn }
}

func NewMachine(videoID string, freeDuration time.Duration, player Player, opener PopupOpener, creds *CredentialStore, api API, opts ...Option) *Machine {
	m := &Machine{
		state:     StateFreePreview,
		videoID:   videoID,
		freeLimit: freeDuration,
		inflight:  make(map[string]*inflight),
		player:    player,
		opener:    opener,
		creds:     creds,
		api:       api,
		now:       time.Now,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// State returns the current state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Gateways returns the gateway list from the last paywall fetch.
func (m *Machine) Gateways() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.gateways))
	copy(out, m.gateways)
	return out
}

// OnTimeUpdate feeds a playback position tick. Watched time accumulates over
// forward progress only, so seeking backwards does not refund preview time.
// Crossing the free limit fires the gate exactly once no matter how many
// ticks land past it.
func (m *Machine) OnTimeUpdate(position time.Duration) {
	m.mu.Lock()
	if m.state != StateFreePreview || m.gateFired {
		m.mu.Unlock()
		return
	}
	if delta := position - m.lastPos; delta > 0 {
		m.watched += delta
	}
	m.lastPos = position

	if m.watched < m.freeLimit {
		m.mu.Unlock()
		return
	}
	m.gateFired = true
	m.setStateLocked(StateGated)
	m.mu.Unlock()

	m.player.Pause()
}

// RequestUnlock is called when the viewer asks to continue past the gate.
// Unauthenticated viewers go to the OTP flow; authenticated ones either
// unlock straight away (already entitled) or get the gateway choices.
func (m *Machine) RequestUnlock(ctx context.Context) error {
	m.mu.Lock()
	if m.state != StateGated {
		m.mu.Unlock()
		return fmt.Errorf("unlock requested in state %s", m.state)
	}
	ident, ok := m.creds.Identity()
	if !ok {
		m.setStateLocked(StateAuthPending)
		m.mu.Unlock()
		return nil
	}
	m.mu.Unlock()

	entitled, err := m.api.Entitled(ctx, ident.UserID, m.videoID)
	if err != nil {
		return err
	}
	if entitled {
		m.unlock()
		return nil
	}

	cfg, err := m.api.Config(ctx, m.videoID)
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.gateways = cfg.Gateways
	m.setStateLocked(StatePaymentPending)
	m.mu.Unlock()
	return nil
}

// CompleteAuth stores the issued identity and drops back to Gated so the
// entitlement check reruns with the new credentials.
func (m *Machine) CompleteAuth(userID, email, accessToken, refreshToken string) {
	m.creds.SaveIdentity(Identity{
		UserID:       userID,
		Email:        email,
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
	})
	m.mu.Lock()
	if m.state == StateAuthPending {
		m.setStateLocked(StateGated)
	}
	m.mu.Unlock()
}

// CancelAuth abandons the OTP flow.
func (m *Machine) CancelAuth() {
	m.mu.Lock()
	if m.state == StateAuthPending {
		m.setStateLocked(StateGated)
	}
	m.mu.Unlock()
}

// StartCheckout creates a checkout on the chosen gateway and opens the popup.
// The order id is recorded before the window opens; a completion message that
// doesn't quote a recorded order id is ignored.
func (m *Machine) StartCheckout(ctx context.Context, gatewayID string) error {
	m.mu.Lock()
	if m.state != StatePaymentPending {
		m.mu.Unlock()
		return fmt.Errorf("checkout started in state %s", m.state)
	}
	m.mu.Unlock()

	co, err := m.api.CreateCheckout(ctx, gatewayID, m.videoID)
	if err != nil {
		return err
	}

	watchCtx, cancel := context.WithCancel(ctx)
	m.mu.Lock()
	m.inflight[co.OrderID] = &inflight{gatewayID: gatewayID, cancel: cancel}
	m.mu.Unlock()

	popup, err := m.opener.Open(co.URL)
	if err != nil {
		cancel()
		m.mu.Lock()
		delete(m.inflight, co.OrderID)
		m.mu.Unlock()
		return err
	}

	go m.watchPopup(watchCtx, popup, co.OrderID)
	return nil
}

// HandleMessage processes a completion envelope from the popup bridge. The
// browsing context accepts messages from anywhere, so both the declared type
// and the order correlation are checked before anything transitions.
func (m *Machine) HandleMessage(ctx context.Context, msg Message) {
	if msg.Type != MessageType {
		return
	}

	m.mu.Lock()
	fl, ok := m.inflight[msg.OrderID]
	if !ok {
		m.mu.Unlock()
		return
	}
	delete(m.inflight, msg.OrderID)
	m.mu.Unlock()

	// Stops the closed-poll goroutine; the message won the race.
	fl.cancel()

	if msg.Status != "success" {
		m.backToGate()
		return
	}

	paid, err := m.api.ConfirmOrder(ctx, fl.gatewayID, msg.OrderID)
	if err != nil || !paid {
		m.backToGate()
		return
	}
	m.unlock()
}

// watchPopup polls the popup's closed flag. A popup that closes without ever
// posting a message means the viewer walked away; the gate comes back rather
// than hanging in PaymentPending.
func (m *Machine) watchPopup(ctx context.Context, popup Popup, orderID string) {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !popup.Closed() {
				continue
			}
			m.mu.Lock()
			_, stillWaiting := m.inflight[orderID]
			delete(m.inflight, orderID)
			m.mu.Unlock()
			if stillWaiting {
				m.backToGate()
			}
			return
		}
	}
}

// backToGate returns to Gated after a failed or abandoned checkout. The
// fetched gateway list is kept, so re-presenting choices needs no refetch.
func (m *Machine) backToGate() {
	m.mu.Lock()
	if m.state == StatePaymentPending {
		m.setStateLocked(StateGated)
	}
	m.mu.Unlock()
}

func (m *Machine) unlock() {
	m.mu.Lock()
	if m.state == StateUnlocked {
		m.mu.Unlock()
		return
	}
	m.setStateLocked(StateUnlocked)
	m.mu.Unlock()

	m.player.Play()
}

// setStateLocked transitions and schedules the listener callback outside the
// lock. Callers must hold m.mu.
func (m *Machine) setStateLocked(s State) {
	m.state = s
	if m.onChange != nil {
		go m.onChange(s)
	}
}
