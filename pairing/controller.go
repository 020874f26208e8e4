package pairing

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/percolationlabs/p8node/keystore"
)

// State is a pairing attempt's lifecycle state.
type State string

const (
	StateIdle     State = "idle"
	StateCreating State = "creating"
	StatePending  State = "pending"
	StatePolling  State = "polling"
	StateApproved State = "approved"
	StateExpired  State = "expired"
	StateError    State = "error"
)

// Terminal reports whether no further transitions can happen from s.
func (s State) Terminal() bool {
	return s == StateApproved || s == StateExpired || s == StateError
}

// defaultPollFloor is the minimum delay between status polls regardless of
// the server-advised interval.
const defaultPollFloor = 5 * time.Second

// ControllerConfig configures one pairing attempt.
type ControllerConfig struct {
	Client  *Client
	Storage keystore.Storage

	ClientID    string
	Scope       string
	RedirectURI string

	// CodeChallenge is the fixed PKCE S256 challenge carried into the
	// authorization request on approval.
	CodeChallenge string

	DeviceInfo DeviceInfo

	// PollFloor is the minimum delay between completed polls. Zero means
	// the 5 second default.
	PollFloor time.Duration

	// CountdownTick is the countdown granularity. Zero means one second.
	// Each tick decrements the remaining lifetime by one second, so tests
	// can shrink the tick to simulate the countdown quickly.
	CountdownTick time.Duration

	Logger zerolog.Logger
}

// Update is a snapshot of the controller emitted on every state change.
type Update struct {
	State        State
	Session      *Session
	SecondsLeft  int
	AuthorizeURL string
	Err          error
}

// Controller owns one pairing attempt: the merged session, the countdown,
// and the polling loop. Create one per attempt; a stopped controller cannot
// be restarted.
type Controller struct {
	cfg ControllerConfig

	mu           sync.Mutex
	state        State
	session      *Session
	secondsLeft  int
	authorizeURL string
	err          error
	generation   uint64
	cancel       context.CancelFunc

	updates chan Update
}

// NewController creates a Controller in the idle state.
func NewController(cfg ControllerConfig) *Controller {
	if cfg.PollFloor <= 0 {
		cfg.PollFloor = defaultPollFloor
	}
	if cfg.CountdownTick <= 0 {
		cfg.CountdownTick = time.Second
	}
	return &Controller{
		cfg:     cfg,
		state:   StateIdle,
		updates: make(chan Update, 16),
	}
}

// Updates returns the state-change channel. Sends never block; if the
// consumer falls behind, intermediate updates are dropped and the accessor
// methods always reflect the latest state.
func (c *Controller) Updates() <-chan Update { return c.updates }

// State returns the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Session returns the merged pairing session, or nil before creation.
func (c *Controller) Session() *Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

// SecondsLeft returns the remaining session lifetime.
func (c *Controller) SecondsLeft() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.secondsLeft
}

// AuthorizeURL returns the OAuth authorization URL once approved.
func (c *Controller) AuthorizeURL() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.authorizeURL
}

// Err returns the failure that moved the controller to error or expired.
func (c *Controller) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Start runs the creation phase synchronously, then launches the countdown
// and polling loops. It ensures the encryption key pair exists, issues the
// device-code and QR-session requests concurrently, and merges the results
// into one session.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateIdle {
		c.mu.Unlock()
		return fmt.Errorf("pairing: cannot start controller in state %q", c.state)
	}
	c.state = StateCreating
	c.generation++
	gen := c.generation
	c.mu.Unlock()
	c.emit()

	encKeys, err := keystore.EnsureEncryptionKeys(c.cfg.Storage)
	if err != nil {
		c.fail(gen, fmt.Errorf("failed to ensure encryption keys: %w", err))
		return err
	}

	var (
		deviceCode *DeviceCodeResponse
		qrSession  *QRSession
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		deviceCode, err = c.cfg.Client.RequestDeviceCode(gctx, c.cfg.ClientID, c.cfg.Scope, encKeys.PublicKeyBase64)
		return err
	})
	g.Go(func() error {
		var err error
		qrSession, err = c.cfg.Client.CreateQRSession(gctx, c.cfg.ClientID, c.cfg.DeviceInfo)
		return err
	})
	if err := g.Wait(); err != nil {
		c.fail(gen, err)
		return err
	}

	session := MergeSession(deviceCode, qrSession)

	runCtx, cancel := context.WithCancel(ctx)

	c.mu.Lock()
	if c.generation != gen || c.state != StateCreating {
		c.mu.Unlock()
		cancel()
		return nil
	}
	c.session = session
	c.secondsLeft = session.ExpiresIn
	c.state = StatePending
	c.cancel = cancel
	c.mu.Unlock()
	c.emit()

	c.cfg.Logger.Info().
		Str("user_code", session.UserCode).
		Str("session_id", session.SessionID).
		Int("expires_in", session.ExpiresIn).
		Msg("pairing session created")

	go c.runCountdown(runCtx, gen)
	go c.runPolling(runCtx, gen, session)
	return nil
}

// Stop discards the attempt: the generation is invalidated so a poll
// response already in flight cannot reschedule, and both loops are
// cancelled. Safe to call more than once.
func (c *Controller) Stop() {
	c.mu.Lock()
	c.generation++
	if !c.state.Terminal() {
		c.state = StateIdle
	}
	cancel := c.cancel
	c.cancel = nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

// runCountdown decrements the remaining lifetime once per tick. Reaching
// zero without approval is terminal: polling is cancelled and the attempt
// moves to expired.
func (c *Controller) runCountdown(ctx context.Context, gen uint64) {
	ticker := time.NewTicker(c.cfg.CountdownTick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		c.mu.Lock()
		if c.generation != gen || c.state.Terminal() {
			c.mu.Unlock()
			return
		}
		if c.secondsLeft > 0 {
			c.secondsLeft--
		}
		expired := c.secondsLeft <= 0
		if expired {
			c.state = StateExpired
			c.err = ErrSessionExpired
		}
		cancel := c.cancel
		c.mu.Unlock()
		c.emit()

		if expired {
			c.cfg.Logger.Warn().Msg("pairing session expired before approval")
			if cancel != nil {
				cancel()
			}
			return
		}
	}
}

// runPolling polls the status endpoint sequentially: each poll schedules
// the next only after the previous response settles, so at most one poll is
// in flight per session. The delay between polls is the larger of the
// configured floor and the server-advised interval.
func (c *Controller) runPolling(ctx context.Context, gen uint64, session *Session) {
	if session.DeviceCode == "" {
		c.fail(gen, ErrNoDeviceCode)
		return
	}

	c.mu.Lock()
	if c.generation == gen && c.state == StatePending {
		c.state = StatePolling
	}
	c.mu.Unlock()
	c.emit()

	delay := time.Duration(session.Interval) * time.Second
	if delay < c.cfg.PollFloor {
		delay = c.cfg.PollFloor
	}

	for {
		status, err := c.cfg.Client.SessionStatus(ctx, session.DeviceCode)

		c.mu.Lock()
		stale := c.generation != gen || c.state.Terminal()
		c.mu.Unlock()
		if stale {
			return
		}

		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.fail(gen, err)
			return
		}

		if status.Approved() {
			c.approve(gen, session)
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
	}
}

// approve builds the OAuth authorization request and moves to approved.
// The actual code-for-token exchange is the caller's next step.
func (c *Controller) approve(gen uint64, session *Session) {
	authorizeURL := c.buildAuthorizeURL()

	c.mu.Lock()
	if c.generation != gen || c.state.Terminal() {
		c.mu.Unlock()
		return
	}
	c.state = StateApproved
	c.authorizeURL = authorizeURL
	cancel := c.cancel
	c.mu.Unlock()
	c.emit()

	c.cfg.Logger.Info().Str("user_code", session.UserCode).Msg("pairing approved")
	if cancel != nil {
		cancel()
	}
}

func (c *Controller) buildAuthorizeURL() string {
	q := url.Values{}
	q.Set("response_type", "code")
	q.Set("client_id", c.cfg.ClientID)
	q.Set("redirect_uri", c.cfg.RedirectURI)
	q.Set("scope", c.cfg.Scope)
	q.Set("state", uuid.NewString())
	q.Set("code_challenge", c.cfg.CodeChallenge)
	q.Set("code_challenge_method", "S256")
	return c.cfg.Client.BaseURL + "/oauth/authorize?" + q.Encode()
}

func (c *Controller) fail(gen uint64, err error) {
	c.mu.Lock()
	if c.generation != gen || c.state.Terminal() {
		c.mu.Unlock()
		return
	}
	c.state = StateError
	c.err = err
	cancel := c.cancel
	c.cancel = nil
	c.mu.Unlock()
	c.emit()

	c.cfg.Logger.Error().Err(err).Msg("pairing attempt failed")
	if cancel != nil {
		cancel()
	}
}

// emit publishes the current snapshot without blocking.
func (c *Controller) emit() {
	c.mu.Lock()
	u := Update{
		State:        c.state,
		Session:      c.session,
		SecondsLeft:  c.secondsLeft,
		AuthorizeURL: c.authorizeURL,
		Err:          c.err,
	}
	c.mu.Unlock()

	select {
	case c.updates <- u:
	default:
	}
}
