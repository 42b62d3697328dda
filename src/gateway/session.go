package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"net/url"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/hendrywilliam/sirengate/src/ratelimit"
	"github.com/hendrywilliam/sirengate/src/structs"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// EndpointResolver looks up the gateway url. *rest.REST implements it.
type EndpointResolver interface {
	GatewayBot(ctx context.Context) (*structs.GatewayBot, error)
}

type Config struct {
	Token      string
	Intents    int
	Version    int
	Encoding   string
	Properties structs.IdentifyEventProperties

	ClosePolicy ClosePolicy

	// SendLimiter throttles every outbound frame. IdentifyLimiter also
	// throttles identifies. Nil picks the gateway defaults.
	SendLimiter     *rate.Limiter
	IdentifyLimiter *rate.Limiter

	Logger zerolog.Logger
}

// Discord allows 120 gateway commands per 60 seconds and one identify per
// 5 seconds for a single shard.
func DefaultSendLimiter() *rate.Limiter {
	return rate.NewLimiter(rate.Every(time.Minute/120), 5)
}

func DefaultIdentifyLimiter() *rate.Limiter {
	return rate.NewLimiter(rate.Every(5*time.Second), 1)
}

type Option func(*Session)

func WithDialer(d Dialer) Option {
	return func(s *Session) {
		if d != nil {
			s.dial = d
		}
	}
}

// WithSleep overrides every wait the session performs.
func WithSleep(fn ratelimit.SleepFunc) Option {
	return func(s *Session) {
		if fn != nil {
			s.sleep = fn
		}
	}
}

// WithHeartbeatJitter overrides the delay before the first heartbeat.
func WithHeartbeatJitter(fn func(interval time.Duration) time.Duration) Option {
	return func(s *Session) {
		if fn != nil {
			s.jitter = fn
		}
	}
}

// WithReidentifyDelay overrides the wait before identifying after a failed
// resume.
func WithReidentifyDelay(fn func() time.Duration) Option {
	return func(s *Session) {
		if fn != nil {
			s.reidentifyDelay = fn
		}
	}
}

// Session is a single gateway connection with its resume state. Connect and
// NextEvent must be called from one goroutine; Close and Status are safe
// from any.
type Session struct {
	cfg      Config
	resolver EndpointResolver
	log      zerolog.Logger

	dial            Dialer
	sleep           ratelimit.SleepFunc
	jitter          func(time.Duration) time.Duration
	reidentifyDelay func() time.Duration

	// -1 until the first sequence is seen.
	sequence atomic.Int64
	acked    atomic.Bool

	mu        sync.Mutex
	state     State
	conn      *connection
	hb        *heartbeat
	connID    string
	sessionID string
	resumeURL string
	resuming  bool
	interval  time.Duration
	lastAck   time.Time
}

func NewSession(resolver EndpointResolver, cfg Config, opts ...Option) *Session {
	if cfg.Version == 0 {
		cfg.Version = DefaultVersion
	}
	if cfg.Encoding == "" {
		cfg.Encoding = DefaultEncoding
	}
	if cfg.ClosePolicy.isZero() {
		cfg.ClosePolicy = DefaultClosePolicy()
	}
	if cfg.SendLimiter == nil {
		cfg.SendLimiter = DefaultSendLimiter()
	}
	if cfg.IdentifyLimiter == nil {
		cfg.IdentifyLimiter = DefaultIdentifyLimiter()
	}
	s := &Session{
		cfg:             cfg,
		resolver:        resolver,
		log:             cfg.Logger.With().Str("component", "gateway").Logger(),
		dial:            WebsocketDialer(nil),
		sleep:           ratelimit.Sleep,
		jitter:          randomJitter,
		reidentifyDelay: randomReidentifyDelay,
		state:           StateDisconnected,
	}
	s.sequence.Store(-1)
	s.acked.Store(true)
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func randomJitter(interval time.Duration) time.Duration {
	if interval <= 0 {
		return 0
	}
	return rand.N(interval)
}

// 1 to 5 seconds.
func randomReidentifyDelay() time.Duration {
	return time.Second + rand.N(4*time.Second)
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) SessionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessionID
}

// Sequence returns the last seen sequence number.
func (s *Session) Sequence() (int64, bool) {
	seq := s.sequence.Load()
	return seq, seq >= 0
}

func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Status{
		State:             s.state,
		ConnID:            s.connID,
		HasSession:        s.sessionID != "",
		Sequence:          s.sequenceSnapshot(),
		Resuming:          s.resuming,
		HeartbeatInterval: s.interval,
		HeartbeatAcked:    s.acked.Load(),
		LastHeartbeatAck:  s.lastAck,
	}
}

func (s *Session) sequenceSnapshot() *int64 {
	if seq, ok := s.Sequence(); ok {
		return &seq
	}
	return nil
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

// Connect dials the gateway, completes the handshake and sends IDENTIFY, or
// RESUME when resume is set. On failure everything opened so far is closed.
func (s *Session) Connect(ctx context.Context, resume bool) error {
	if s.cfg.Encoding != DefaultEncoding {
		return ErrUnsupportedEncoding
	}
	s.mu.Lock()
	if resume && s.sessionID == "" {
		s.mu.Unlock()
		return &ReconnectError{Resume: false, Err: ErrNoSession}
	}
	if s.conn != nil {
		s.mu.Unlock()
		return ErrGatewayIsAlreadyOpen
	}
	// A fresh connect keeps the old session until READY replaces it.
	s.resuming = resume
	s.connID = uuid.NewString()
	s.state = StateConnecting
	resumeURL := s.resumeURL
	log := s.log.With().Str("conn_id", s.connID).Bool("resume", resume).Logger()
	s.mu.Unlock()

	log.Info().Msg("connecting to gateway")
	c, err := s.open(ctx, resume, resumeURL, log)
	if err != nil {
		log.Error().Err(err).Msg("failed to connect to gateway")
		if c != nil {
			s.teardown(c, UnknownError)
		} else {
			s.setState(StateDisconnected)
		}
		return err
	}
	return nil
}

func (s *Session) open(ctx context.Context, resume bool, resumeURL string, log zerolog.Logger) (*connection, error) {
	base := resumeURL
	if !resume || base == "" {
		gb, err := s.resolver.GatewayBot(ctx)
		if err != nil {
			return nil, fmt.Errorf("resolve gateway url: %w", err)
		}
		base = gb.URL
	}
	wsURL, err := s.gatewayURL(base)
	if err != nil {
		return nil, err
	}

	t, err := s.dial(ctx, wsURL)
	if err != nil {
		return nil, &TransportError{Err: fmt.Errorf("dial %s: %w", wsURL, err)}
	}
	c := newConnection(t)
	s.mu.Lock()
	s.conn = c
	s.state = StateAwaitingHandshake
	s.mu.Unlock()

	// Unblock the handshake read if ctx ends first.
	stop := context.AfterFunc(ctx, func() { _ = c.drop() })
	defer stop()

	raw, err := s.read(c)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return c, ctxErr
		}
		return c, &TransportError{Err: err}
	}
	if raw.Op != OpcodeHello {
		return c, &ProtocolError{Op: raw.Op, Message: "first frame was not HELLO"}
	}
	hello := structs.HelloEvent{}
	if err := json.Unmarshal(raw.D, &hello); err != nil {
		return c, &ProtocolError{Op: raw.Op, Message: "decode HELLO", Err: err}
	}
	if hello.HeartbeatInterval <= 0 {
		return c, &ProtocolError{Op: raw.Op, Message: fmt.Sprintf("invalid heartbeat interval %d", hello.HeartbeatInterval)}
	}
	interval := time.Duration(hello.HeartbeatInterval) * time.Millisecond

	s.mu.Lock()
	s.interval = interval
	s.state = StateAuthenticating
	s.mu.Unlock()
	s.acked.Store(true)
	s.startHeartbeat(c, interval, log)
	log.Debug().Dur("heartbeat_interval", interval).Msg("received hello")

	if resume {
		err = s.resume(ctx, c)
	} else {
		err = s.identify(ctx, c)
	}
	if err != nil {
		return c, err
	}
	return c, nil
}

func (s *Session) gatewayURL(base string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse gateway url: %w", err)
	}
	q := u.Query()
	q.Set("v", strconv.Itoa(s.cfg.Version))
	q.Set("encoding", s.cfg.Encoding)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (s *Session) identify(ctx context.Context, c *connection) error {
	if err := s.cfg.IdentifyLimiter.Wait(ctx); err != nil {
		return err
	}
	err := s.send(ctx, c, structs.Event{
		Op: OpcodeIdentify,
		D: structs.IdentifyEvent{
			Token:      s.cfg.Token,
			Intents:    s.cfg.Intents,
			Properties: s.cfg.Properties,
		},
	})
	if err != nil {
		return fmt.Errorf("send identify: %w", err)
	}
	s.log.Info().Msg("identify event sent")
	return nil
}

func (s *Session) resume(ctx context.Context, c *connection) error {
	s.mu.Lock()
	sessionID := s.sessionID
	s.mu.Unlock()
	err := s.send(ctx, c, structs.Event{
		Op: OpcodeResume,
		D: structs.ResumeEvent{
			Token:     s.cfg.Token,
			SessionID: sessionID,
			Seq:       s.sequenceSnapshot(),
		},
	})
	if err != nil {
		return fmt.Errorf("send resume: %w", err)
	}
	s.log.Info().Msg("resume event sent")
	return nil
}

func (s *Session) send(ctx context.Context, c *connection, e structs.Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}
	if err := s.cfg.SendLimiter.Wait(ctx); err != nil {
		return err
	}
	if err := c.send(data); err != nil {
		return &TransportError{Err: err}
	}
	return nil
}

func (s *Session) sendHeartbeat(ctx context.Context, c *connection) error {
	return s.send(ctx, c, heartbeatPayload(s.sequenceSnapshot()))
}

// read reads and decodes one frame, recording its sequence number.
func (s *Session) read(c *connection) (*structs.RawEvent, error) {
	_, data, err := c.t.ReadMessage()
	if err != nil {
		return nil, err
	}
	raw := &structs.RawEvent{}
	if err := json.Unmarshal(data, raw); err != nil {
		return nil, &ProtocolError{Op: -1, Message: "decode frame", Err: err}
	}
	// Out of order values are taken as is.
	if raw.S != nil {
		s.sequence.Store(*raw.S)
	}
	return raw, nil
}

func (s *Session) current() *connection {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn
}

// NextEvent blocks until the next dispatch. Control opcodes are handled in
// place. Recoverable ends of the connection come back as *ReconnectError,
// permanent ones as *DisconnectedError or *ProtocolError.
func (s *Session) NextEvent(ctx context.Context) (*Event, error) {
	c := s.current()
	if c == nil {
		return nil, ErrNotConnected
	}
	stop := context.AfterFunc(ctx, func() { _ = c.close(UnknownError) })
	defer stop()

	for {
		raw, err := s.read(c)
		if err != nil {
			var perr *ProtocolError
			if errors.As(err, &perr) {
				s.teardown(c, DecodeError)
				return nil, perr
			}
			return nil, s.readFailed(ctx, c, err)
		}
		s.log.Trace().Object("event", raw).Msg("received event")

		switch raw.Op {
		case OpcodeDispatch:
			return s.dispatch(c, raw)
		case OpcodeHeartbeat:
			if err := s.sendHeartbeat(ctx, c); err != nil {
				s.teardown(c, UnknownError)
				return nil, err
			}
		case OpcodeReconnect:
			s.log.Info().Msg("server requested reconnect")
			s.teardown(c, UnknownError)
			return nil, &ReconnectError{Resume: true}
		case OpcodeInvalidSession:
			if err := s.invalidSession(ctx, c, raw); err != nil {
				return nil, err
			}
		case OpcodeHello:
			s.log.Warn().Msg("unexpected hello after handshake")
		case OpcodeHeartbeatAck:
			s.acked.Store(true)
			s.mu.Lock()
			s.lastAck = time.Now()
			s.mu.Unlock()
		default:
			s.teardown(c, UnknownOpcode)
			return nil, &ProtocolError{Op: raw.Op, Message: "unknown opcode"}
		}
	}
}

func (s *Session) dispatch(c *connection, raw *structs.RawEvent) (*Event, error) {
	switch raw.T {
	case structs.EventNameReady:
		ready := structs.ReadyEvent{}
		if err := json.Unmarshal(raw.D, &ready); err != nil {
			s.teardown(c, DecodeError)
			return nil, &ProtocolError{Op: raw.Op, Message: "decode READY", Err: err}
		}
		s.mu.Lock()
		s.sessionID = ready.SessionID
		s.resumeURL = ready.ResumeGatewayURL
		s.resuming = false
		s.state = StateActive
		s.mu.Unlock()
		s.log.Info().Str("session_id", ready.SessionID).Str("user", ready.User.Username).Msg("gateway is ready")
	case structs.EventNameResumed:
		s.mu.Lock()
		s.resuming = false
		s.state = StateActive
		s.mu.Unlock()
		s.log.Info().Msg("session resumed")
	}
	return &Event{Type: raw.T, Data: raw.D, Sequence: raw.S}, nil
}

func (s *Session) invalidSession(ctx context.Context, c *connection, raw *structs.RawEvent) error {
	var resumable bool
	if len(raw.D) > 0 {
		if err := json.Unmarshal(raw.D, &resumable); err != nil {
			s.log.Warn().Err(err).Msg("malformed invalid session payload")
		}
	}

	s.mu.Lock()
	resuming := s.resuming
	s.mu.Unlock()

	if !resuming {
		s.log.Warn().Bool("resumable", resumable).Msg("invalid session")
		code := CloseNormal
		if resumable {
			code = UnknownError
		} else {
			s.discardSession()
		}
		s.teardown(c, code)
		return &ReconnectError{Resume: resumable}
	}

	s.log.Warn().Msg("resume failed, identifying instead")
	if err := s.sleep(ctx, s.reidentifyDelay()); err != nil {
		s.teardown(c, UnknownError)
		return err
	}
	s.discardSession()
	if err := s.identify(ctx, c); err != nil {
		s.teardown(c, UnknownError)
		return err
	}
	return nil
}

func (s *Session) discardSession() {
	s.mu.Lock()
	s.sessionID = ""
	s.resumeURL = ""
	s.resuming = false
	s.mu.Unlock()
	s.sequence.Store(-1)
}

// readFailed classifies the error that ended a read.
func (s *Session) readFailed(ctx context.Context, c *connection, err error) error {
	s.stopHeartbeat()

	code, closed := 0, false
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		code, closed = ce.Code, true
		c.drop()
	} else if local := c.localCode.Load(); local != 0 {
		code, closed = int(local), true
	}
	s.teardown(c, UnknownError)

	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if !closed {
		s.log.Error().Err(err).Msg("gateway transport failed")
		return &TransportError{Err: err}
	}

	log := s.log.Warn().Int("code", code).Str("reason", CloseCodeText(code))
	switch action := s.cfg.ClosePolicy.Classify(code); action {
	case CloseActionResume:
		log.Msg("gateway closed, resuming")
		return &ReconnectError{Resume: true, Code: code}
	case CloseActionReconnect:
		log.Msg("gateway closed, reconnecting with a new session")
		s.discardSession()
		return &ReconnectError{Resume: false, Code: code}
	default:
		log.Msg("gateway closed for good")
		s.setState(StateTerminated)
		reason := ""
		if ce != nil {
			reason = ce.Text
		}
		return &DisconnectedError{Code: code, Reason: reason}
	}
}

// teardown stops the heartbeat, then closes c with code if still open.
func (s *Session) teardown(c *connection, code int) {
	s.stopHeartbeat()
	if err := c.close(code); err != nil {
		s.log.Debug().Err(err).Msg("error while closing gateway connection")
	}
	s.mu.Lock()
	if s.conn == c {
		s.conn = nil
	}
	if s.state != StateTerminated {
		s.state = StateDisconnected
	}
	s.mu.Unlock()
}

// Close closes the connection with a normal close and waits for the
// heartbeat to stop. It is safe to call repeatedly.
func (s *Session) Close() error {
	s.mu.Lock()
	c := s.conn
	s.conn = nil
	if c != nil {
		s.state = StateClosing
	}
	s.mu.Unlock()

	var err error
	if c != nil {
		err = c.close(CloseNormal)
		s.log.Info().Msg("gateway connection stopped")
	}
	s.stopHeartbeat()

	s.mu.Lock()
	if s.state == StateClosing {
		s.state = StateDisconnected
	}
	s.mu.Unlock()
	return err
}
