// Copyright 2024-2026 Aiku AI

package slack

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// MaxMessageBytes is the hard outbound frame-size ceiling enforced
// server-side by the wire protocol. Oversized payloads are rejected before
// transmission, never truncated.
const MaxMessageBytes = 16000

// remoteClosedCode (1006) is the one close condition that triggers
// transparent reconnection: the service periodically drops streaming
// connections without a close handshake. Every explicit close code is
// treated as an intentional or unrecoverable termination instead.
const remoteClosedCode = websocket.CloseAbnormalClosure

// ErrNotConnected is returned by send requests when the streaming connection
// is shut down or was never established.
var ErrNotConnected = errors.New("slack: streaming connection not active")

// State is the connection lifecycle state.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateReconnecting
	StateShuttingDown
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateShuttingDown:
		return "shutting_down"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// Handle is one live streaming connection: the socket, the endpoint it was
// dialed against, and the session descriptor produced by the bootstrap that
// yielded that endpoint. The three are always replaced together.
type Handle struct {
	Sock       *websocket.Conn
	URL        string
	Team       *TeamData
	Reconnects int
}

// HandleRegistry tracks the live handles of a multi-connection host. All
// mutations are atomic with respect to readers enumerating active handles:
// during a reconnect swap observers see exactly one handle, never zero or
// two.
type HandleRegistry struct {
	mu      sync.Mutex
	handles []*Handle
}

// NewHandleRegistry creates an empty handle registry.
func NewHandleRegistry() *HandleRegistry {
	return &HandleRegistry{}
}

// Add registers a new live handle.
func (r *HandleRegistry) Add(h *Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handles = append(r.handles, h)
}

// Remove drops a handle from the registry.
func (r *HandleRegistry) Remove(h *Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, existing := range r.handles {
		if existing == h {
			r.handles = append(r.handles[:i], r.handles[i+1:]...)
			return
		}
	}
}

// Swap replaces old with fresh in one step.
func (r *HandleRegistry) Swap(old, fresh *Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, existing := range r.handles {
		if existing == old {
			r.handles[i] = fresh
			return
		}
	}
	r.handles = append(r.handles, fresh)
}

// Handles returns a snapshot of the active handles.
func (r *HandleRegistry) Handles() []*Handle {
	r.mu.Lock()
	defer r.mu.Unlock()
	snapshot := make([]*Handle, len(r.handles))
	copy(snapshot, r.handles)
	return snapshot
}

// Len returns the number of active handles.
func (r *HandleRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.handles)
}

// FrameHandler consumes decoded streaming frames. Handlers run on
// independent goroutines: frames are forwarded in arrival order but
// completion order across frames is not guaranteed.
type FrameHandler interface {
	HandleFrame(ctx context.Context, f *Frame)
}

type outboundMessage struct {
	ID      int64  `json:"id"`
	Type    string `json:"type"`
	Text    string `json:"text"`
	Channel string `json:"channel"`
}

// Conn owns the streaming connection lifecycle: bootstrap, socket I/O,
// deferred frame dispatch, outbound size enforcement, reconnection on the
// remote-closed condition, and shutdown. At most one handle is live per Conn
// at any time.
type Conn struct {
	cfg      *Config
	api      *API
	handler  FrameHandler
	registry *HandleRegistry
	log      zerolog.Logger

	// OnSession is invoked with the fresh session descriptor after every
	// successful bootstrap, including reconnects. Set before Run.
	OnSession func(team *TeamData)
	// OnConnect is invoked exactly once per successful socket open. Set
	// before Run.
	OnConnect func()

	mu     sync.Mutex
	handle *Handle

	state atomic.Int32
	msgID atomic.Int64

	writeMu sync.Mutex

	stopOnce sync.Once
	stop     chan struct{}
	doneOnce sync.Once
	done     chan struct{}
	wg       sync.WaitGroup

	errMu  sync.Mutex
	runErr error
}

// NewConn creates a connection manager. registry may be nil, in which case a
// private one is used.
func NewConn(cfg *Config, api *API, handler FrameHandler, registry *HandleRegistry, log zerolog.Logger) *Conn {
	if registry == nil {
		registry = NewHandleRegistry()
	}
	return &Conn{
		cfg:      cfg,
		api:      api,
		handler:  handler,
		registry: registry,
		log:      log.With().Str("component", "rtm").Logger(),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Run performs the bootstrap handshake, opens the streaming socket and
// starts the I/O loop. It returns once the connection is established; the
// loop runs in the background until Shutdown or a terminal close. A failed
// initial bootstrap or dial is returned directly.
func (c *Conn) Run(ctx context.Context) error {
	c.setState(StateConnecting)
	c.log.Debug().Msg("Connecting to the Slack Real Time Messaging API")

	team, err := c.api.RTMStart(ctx)
	if err != nil {
		c.terminate()
		return err
	}
	c.session(team)

	sock, err := c.dial(ctx, team.WebSocketURL)
	if err != nil {
		c.terminate()
		return fmt.Errorf("failed to open streaming socket: %w", err)
	}

	handle := &Handle{Sock: sock, URL: team.WebSocketURL, Team: team}
	c.mu.Lock()
	c.handle = handle
	c.mu.Unlock()
	c.registry.Add(handle)

	c.setState(StateConnected)
	c.log.Debug().Msg("Connected to the Slack Real Time Messaging API")
	c.connected()

	go c.readLoop(ctx, handle)
	go c.pinger(handle)
	return nil
}

func (c *Conn) dial(ctx context.Context, wsURL string) (*websocket.Conn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	if proxy := c.cfg.proxyURL(); proxy != nil {
		dialer.Proxy = http.ProxyURL(proxy)
	}
	sock, _, err := dialer.DialContext(ctx, wsURL, nil)
	return sock, err
}

func (c *Conn) session(team *TeamData) {
	if c.OnSession != nil {
		c.OnSession(team)
	}
}

func (c *Conn) connected() {
	if c.OnConnect != nil {
		c.OnConnect()
	}
}

func (c *Conn) readLoop(ctx context.Context, h *Handle) {
	for {
		_, data, err := h.Sock.ReadMessage()
		if err != nil {
			c.handleClose(ctx, h, err)
			return
		}
		c.dispatch(ctx, data)
	}
}

// dispatch decodes a frame and hands it to the handler on its own goroutine,
// so a slow handler (e.g. a blocking identity-enrichment call) does not
// stall frame reception.
func (c *Conn) dispatch(ctx context.Context, data []byte) {
	frame, err := DecodeFrame(data)
	if err != nil {
		c.log.Warn().Err(err).Msg("Failed to decode frame, skipping")
		return
	}
	select {
	case <-c.stop:
		return
	default:
	}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.handler.HandleFrame(ctx, frame)
	}()
}

func (c *Conn) handleClose(ctx context.Context, h *Handle, err error) {
	// A socket that has already been swapped out must not drive transitions.
	if c.currentHandle() != h {
		return
	}
	if c.State() == StateShuttingDown {
		c.terminate()
		return
	}

	code := closeCode(err)
	c.log.Info().Int("code", code).AnErr("cause", err).Msg("Disconnected from Slack")

	if code == remoteClosedCode {
		if rerr := c.reconnect(ctx); rerr != nil {
			// A degraded connection must not run silently: surface the
			// failure and stop the runtime.
			c.log.Error().Err(rerr).Msg("Reconnection failed")
			c.fail(rerr)
		}
		return
	}
	c.terminate()
}

// reconnect re-runs the bootstrap, opens a new socket and swaps the handle.
// The session descriptor, endpoint URL and registry entry are replaced
// together.
func (c *Conn) reconnect(ctx context.Context) error {
	c.setState(StateReconnecting)
	old := c.currentHandle()

	team, err := c.api.RTMStart(ctx)
	if err != nil {
		return fmt.Errorf("bootstrap during reconnect failed: %w", err)
	}
	c.session(team)

	sock, err := c.dial(ctx, team.WebSocketURL)
	if err != nil {
		return fmt.Errorf("failed to reopen streaming socket: %w", err)
	}

	fresh := &Handle{
		Sock:       sock,
		URL:        team.WebSocketURL,
		Team:       team,
		Reconnects: old.Reconnects + 1,
	}
	c.mu.Lock()
	c.handle = fresh
	c.registry.Swap(old, fresh)
	c.mu.Unlock()
	_ = old.Sock.Close()

	c.setState(StateConnected)
	c.log.Info().Int("reconnects", fresh.Reconnects).Msg("Reconnected to Slack")
	c.connected()

	go c.readLoop(ctx, fresh)
	go c.pinger(fresh)
	return nil
}

// SendMessage validates and transmits one outbound text frame. The
// transmission itself is deferred onto its own goroutine so callers never
// block on socket writes; write errors are logged, with the subsequent
// close event authoritative for state.
func (c *Conn) SendMessage(channelID, text string) error {
	payload, err := json.Marshal(outboundMessage{
		ID:      c.msgID.Add(1),
		Type:    "message",
		Text:    text,
		Channel: channelID,
	})
	if err != nil {
		return err
	}
	if len(payload) > MaxMessageBytes {
		return &PayloadTooLargeError{Size: len(payload), Limit: MaxMessageBytes}
	}

	select {
	case <-c.stop:
		return ErrNotConnected
	default:
	}
	h := c.currentHandle()
	if h == nil {
		return ErrNotConnected
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.writeMu.Lock()
		defer c.writeMu.Unlock()
		if err := h.Sock.WriteMessage(websocket.TextMessage, payload); err != nil {
			c.log.Warn().Err(err).Msg("Failed to send message")
		}
	}()
	return nil
}

// Shutdown closes the socket gracefully, stops accepting new deferred work,
// waits for in-flight work to complete and signals the runtime to stop.
// Safe to call more than once.
func (c *Conn) Shutdown() {
	if c.State() == StateTerminated {
		return
	}
	c.setState(StateShuttingDown)

	if h := c.currentHandle(); h != nil {
		c.log.Debug().Msg("Closing connection to the Slack Real Time Messaging API")
		deadline := time.Now().Add(time.Second)
		_ = h.Sock.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		_ = h.Sock.Close()
	}

	c.stopOnce.Do(func() { close(c.stop) })
	c.wg.Wait()
	c.terminate()
}

func (c *Conn) terminate() {
	c.setState(StateTerminated)
	c.mu.Lock()
	h := c.handle
	c.handle = nil
	c.mu.Unlock()
	if h != nil {
		c.registry.Remove(h)
		_ = h.Sock.Close()
	}
	c.stopOnce.Do(func() { close(c.stop) })
	c.doneOnce.Do(func() { close(c.done) })
}

func (c *Conn) fail(err error) {
	c.errMu.Lock()
	if c.runErr == nil {
		c.runErr = err
	}
	c.errMu.Unlock()
	c.terminate()
}

func (c *Conn) pinger(h *Handle) {
	interval := time.Duration(c.cfg.PingInterval) * time.Second
	if interval <= 0 {
		interval = 10 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			if c.currentHandle() != h {
				return
			}
			if err := h.Sock.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
				c.log.Debug().Err(err).Msg("WebSocket ping failed")
				return
			}
		}
	}
}

// Done is closed when the event-processing runtime has stopped, whether by
// Shutdown, a terminal close code, or a failed reconnect.
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

// Err reports the error that terminated the connection, if any. Meaningful
// after Done is closed.
func (c *Conn) Err() error {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	return c.runErr
}

// State returns the current lifecycle state.
func (c *Conn) State() State {
	return State(c.state.Load())
}

func (c *Conn) setState(s State) {
	c.state.Store(int32(s))
}

// Handle returns the current live handle, nil once terminated.
func (c *Conn) currentHandle() *Handle {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.handle
}

// Team returns the current session descriptor, nil before Run or after
// termination.
func (c *Conn) Team() *TeamData {
	h := c.currentHandle()
	if h == nil {
		return nil
	}
	return h.Team
}

// closeCode classifies a socket read error. Errors carrying no close frame
// map to 1006 per RFC 6455: the connection dropped without a close
// handshake.
func closeCode(err error) int {
	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		return closeErr.Code
	}
	return websocket.CloseAbnormalClosure
}
