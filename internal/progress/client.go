package progress

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/thruflo/taskwatch/internal/logging"
)

// DefaultInterval is the heartbeat cadence.
const DefaultInterval = 1500 * time.Millisecond

// DefaultIndicator is appended after the content of every "progress" message.
const DefaultIndicator = `<div class="spinner-border" role="status"></div>`

// Surface is the render target a Client writes into. The client borrows it
// and never closes it.
type Surface interface {
	// ReplaceContent replaces everything shown with fragment.
	ReplaceContent(fragment string) error
	// AppendContent adds fragment after the current content.
	AppendContent(fragment string) error
	// ScrollIntoView brings the surface into view.
	ScrollIntoView() error
}

// Ticker delivers heartbeat ticks.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type timeTicker struct {
	t *time.Ticker
}

func (t timeTicker) C() <-chan time.Time { return t.t.C }
func (t timeTicker) Stop()               { t.t.Stop() }

func newTimeTicker(d time.Duration) Ticker {
	return timeTicker{t: time.NewTicker(d)}
}

// Initiator tells who ended a stream.
type Initiator int

const (
	// InitiatorClient means the client closed (complete message or teardown).
	InitiatorClient Initiator = iota
	// InitiatorServer means the server sent a close frame.
	InitiatorServer
	// InitiatorNetwork means the connection failed or dropped without a handshake.
	InitiatorNetwork
)

func (i Initiator) String() string {
	switch i {
	case InitiatorClient:
		return "client"
	case InitiatorServer:
		return "server"
	default:
		return "network"
	}
}

// CloseEvent describes how a stream ended.
type CloseEvent struct {
	// Clean is true when the close handshake completed.
	Clean bool

	// Code is the websocket close code (1006 for abnormal closure).
	Code int

	// Reason is the close reason text, if any.
	Reason string

	Initiator Initiator

	// Err wraps ErrConnectionFailure or ErrUnexpectedClose for unclean closes.
	Err error
}

// Option configures a Client.
type Option func(*Client)

// WithInterval sets the heartbeat interval.
func WithInterval(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.interval = d
		}
	}
}

// WithEncoder sets the request encoder.
func WithEncoder(e Encoder) Option {
	return func(c *Client) {
		if e != nil {
			c.encoder = e
		}
	}
}

// WithDecodeMode sets how inbound payloads are classified.
func WithDecodeMode(m DecodeMode) Option {
	return func(c *Client) {
		c.decodeMode = m
	}
}

// WithDialer sets a custom dialer.
func WithDialer(d Dialer) Option {
	return func(c *Client) {
		if d != nil {
			c.dialer = d
		}
	}
}

// WithHeader sets extra handshake headers (e.g. Origin).
func WithHeader(h http.Header) Option {
	return func(c *Client) {
		c.header = h
	}
}

// WithIndicator sets the fragment appended after "progress" content.
// An empty indicator disables it.
func WithIndicator(fragment string) Option {
	return func(c *Client) {
		c.indicator = fragment
	}
}

// WithCloseHandler registers a callback for the close event. It runs on the
// client's event loop after the heartbeat is stopped and must not block.
func WithCloseHandler(fn func(CloseEvent)) Option {
	return func(c *Client) {
		c.onClose = fn
	}
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// withTicker replaces the heartbeat ticker factory.
func withTicker(fn func(time.Duration) Ticker) Option {
	return func(c *Client) {
		c.newTicker = fn
	}
}

type frame struct {
	messageType int
	data        []byte
	err         error
}

// Client streams the progress of one task into a Surface.
type Client struct {
	target     Target
	url        string
	surface    Surface
	dialer     Dialer
	header     http.Header
	encoder    Encoder
	decodeMode DecodeMode
	interval   time.Duration
	indicator  string
	onClose    func(CloseEvent)
	logger     *logging.Logger
	newTicker  func(time.Duration) Ticker

	state    atomic.Int32
	requests atomic.Int64

	// Owned by the event loop.
	conn           Conn
	heartbeat      Ticker
	heartbeatStops int

	cancel     context.CancelFunc
	done       chan struct{}
	closeEvent CloseEvent
}

// New validates target and starts connecting before returning. The stream
// runs until the task completes, the connection closes, Close is called or
// ctx is cancelled.
func New(ctx context.Context, surface Surface, target Target, opts ...Option) (*Client, error) {
	if surface == nil {
		return nil, errors.New("surface is required")
	}
	if err := target.Validate(); err != nil {
		return nil, err
	}

	c := &Client{
		target:    target,
		url:       target.URL(),
		surface:   surface,
		dialer:    WebsocketDialer{},
		encoder:   CommandEncoder{},
		interval:  DefaultInterval,
		indicator: DefaultIndicator,
		logger:    logging.Default(),
		newTicker: newTimeTicker,
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.WithFields(map[string]interface{}{
		"task":   target.TaskID,
		"target": c.url,
	})

	loopCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.state.Store(int32(StateConnecting))

	go c.run(loopCtx)

	return c, nil
}

// URL returns the websocket URL the client connects to.
func (c *Client) URL() string {
	return c.url
}

// State returns the current lifecycle state. Safe from any goroutine.
func (c *Client) State() State {
	return State(c.state.Load())
}

// Requests returns how many progress requests were sent.
func (c *Client) Requests() int64 {
	return c.requests.Load()
}

// Done is closed once the client reaches StateClosed.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Wait blocks until the client is closed and returns the close event.
func (c *Client) Wait() CloseEvent {
	<-c.done
	return c.closeEvent
}

// Close tears the stream down with a clean "going away" close. It does not
// wait; use Wait for the result. Closing a closed client is a no-op.
func (c *Client) Close() {
	c.cancel()
}

func (c *Client) run(ctx context.Context) {
	defer close(c.done)
	defer c.cancel()

	conn, err := c.dialer.Dial(ctx, c.url, c.header)
	if err != nil {
		if ctx.Err() != nil {
			c.finish(CloseEvent{
				Clean:     true,
				Code:      websocket.CloseGoingAway,
				Reason:    "closed before connecting",
				Initiator: InitiatorClient,
			})
			return
		}
		c.finish(CloseEvent{
			Code:      websocket.CloseAbnormalClosure,
			Initiator: InitiatorNetwork,
			Err:       fmt.Errorf("%w: %v", ErrConnectionFailure, err),
		})
		return
	}

	c.conn = conn
	conn.SetReadLimit(maxMessageSize)

	frames := make(chan frame)
	stop := make(chan struct{})
	defer close(stop)

	c.open()
	go readLoop(conn, frames, stop)

	for {
		var tick <-chan time.Time
		if c.heartbeat != nil {
			tick = c.heartbeat.C()
		}

		select {
		case <-tick:
			c.sendRequest()
		case f := <-frames:
			if f.err != nil {
				c.conn.Close()
				c.finish(closeEventFor(f.err))
				return
			}
			if c.dispatch(f) {
				return
			}
		case <-ctx.Done():
			c.closeLocally(websocket.CloseGoingAway, "client closed")
			return
		}
	}
}

// readLoop moves frames from the socket to the event loop until the socket
// fails or the loop stops.
func readLoop(conn Conn, frames chan<- frame, stop <-chan struct{}) {
	for {
		mt, data, err := conn.ReadMessage()
		select {
		case frames <- frame{messageType: mt, data: data, err: err}:
		case <-stop:
			return
		}
		if err != nil {
			return
		}
	}
}

func (c *Client) open() {
	c.state.Store(int32(StateOpen))
	c.logger.Debug("progress stream open")

	c.sendRequest()
	c.startHeartbeat()
}

func (c *Client) startHeartbeat() {
	if c.heartbeat != nil {
		return
	}
	c.heartbeat = c.newTicker(c.interval)
}

func (c *Client) stopHeartbeat() {
	if c.heartbeat == nil {
		return
	}
	c.heartbeat.Stop()
	c.heartbeat = nil
	c.heartbeatStops++
}

func (c *Client) sendRequest() {
	payload, err := c.encoder.EncodeRequest()
	if err != nil {
		c.logger.Error("failed to encode progress request", "error", err)
		return
	}

	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		c.logger.Warn("failed to send progress request", "error", err)
		return
	}
	c.requests.Add(1)
}

// dispatch handles one inbound frame and reports whether the client closed.
func (c *Client) dispatch(f frame) bool {
	if f.messageType != websocket.TextMessage && f.messageType != websocket.BinaryMessage {
		return false
	}

	msg, err := Decode(f.data, c.decodeMode)
	if err != nil {
		c.logger.Warn("dropping progress message", "error", err, "bytes", len(f.data))
		return false
	}

	if msg.Raw() {
		c.replace(msg.Data)
		c.surfaceCall("scroll", c.surface.ScrollIntoView())
		return false
	}

	switch msg.Type {
	case TypeProgress:
		if msg.HasData {
			c.replace(msg.Data)
		}
		if c.indicator != "" {
			c.surfaceCall("append", c.surface.AppendContent(c.indicator))
		}
	case TypeComplete:
		if msg.HasData {
			c.replace(msg.Data)
		}
		c.closeLocally(websocket.CloseNormalClosure, "task complete")
		return true
	default:
		c.logger.Debug("ignoring progress message", "type", msg.Type, "error", ErrUnknownMessageType)
	}
	return false
}

func (c *Client) replace(fragment string) {
	c.surfaceCall("replace", c.surface.ReplaceContent(fragment))
}

func (c *Client) surfaceCall(op string, err error) {
	if err != nil {
		c.logger.Warn("progress surface update failed", "op", op, "error", err)
	}
}

// closeLocally performs a client-initiated close handshake.
func (c *Client) closeLocally(code int, reason string) {
	c.state.Store(int32(StateClosing))
	c.stopHeartbeat()

	msg := websocket.FormatCloseMessage(code, reason)
	if err := c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait)); err != nil {
		c.logger.Debug("failed to send close frame", "error", err)
	}
	c.conn.Close()

	c.finish(CloseEvent{
		Clean:     true,
		Code:      code,
		Reason:    reason,
		Initiator: InitiatorClient,
	})
}

func closeEventFor(err error) CloseEvent {
	var ce *websocket.CloseError
	if errors.As(err, &ce) && ce.Code != websocket.CloseAbnormalClosure {
		return CloseEvent{
			Clean:     true,
			Code:      ce.Code,
			Reason:    ce.Text,
			Initiator: InitiatorServer,
		}
	}
	return CloseEvent{
		Code:      websocket.CloseAbnormalClosure,
		Initiator: InitiatorNetwork,
		Err:       fmt.Errorf("%w: %v", ErrUnexpectedClose, err),
	}
}

func (c *Client) finish(ev CloseEvent) {
	c.stopHeartbeat()
	c.state.Store(int32(StateClosed))
	c.closeEvent = ev

	if ev.Clean {
		c.logger.Info("progress stream closed",
			"code", ev.Code, "reason", ev.Reason, "initiator", ev.Initiator.String())
	} else {
		c.logger.Warn("progress stream died",
			"code", ev.Code, "initiator", ev.Initiator.String(), "error", ev.Err)
	}

	if c.onClose != nil {
		c.onClose(ev)
	}
}
