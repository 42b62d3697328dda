package gateway

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/hendrywilliam/sirengate/src/structs"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

var errUseOfClosed = errors.New("use of closed network connection")

type frame struct {
	data []byte
	err  error
}

// fakeTransport replays scripted frames and records every write in order.
type fakeTransport struct {
	frames chan frame

	mu     sync.Mutex
	calls  []string
	writes []structs.Event
	raw    [][]byte

	closeOnce sync.Once
	closed    chan struct{}
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		frames: make(chan frame, 32),
		closed: make(chan struct{}),
	}
}

func (f *fakeTransport) push(v any) {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	f.frames <- frame{data: b}
}

func (f *fakeTransport) pushRaw(s string) {
	f.frames <- frame{data: []byte(s)}
}

func (f *fakeTransport) pushClose(code int) {
	f.frames <- frame{err: &websocket.CloseError{Code: code, Text: CloseCodeText(code)}}
}

func (f *fakeTransport) pushErr(err error) {
	f.frames <- frame{err: err}
}

func (f *fakeTransport) ReadMessage() (int, []byte, error) {
	select {
	case <-f.closed:
		return 0, nil, errUseOfClosed
	default:
	}
	select {
	case fr := <-f.frames:
		if fr.err != nil {
			return 0, nil, fr.err
		}
		return websocket.TextMessage, fr.data, nil
	case <-f.closed:
		return 0, nil, errUseOfClosed
	}
}

func (f *fakeTransport) WriteMessage(messageType int, data []byte) error {
	e := structs.Event{}
	if err := json.Unmarshal(data, &e); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, fmt.Sprintf("send:%d", e.Op))
	f.writes = append(f.writes, e)
	f.raw = append(f.raw, data)
	return nil
}

func (f *fakeTransport) WriteControl(messageType int, data []byte, deadline time.Time) error {
	code := 0
	if len(data) >= 2 {
		code = int(binary.BigEndian.Uint16(data))
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, fmt.Sprintf("close-frame:%d", code))
	return nil
}

func (f *fakeTransport) Close() error {
	f.closeOnce.Do(func() {
		f.mu.Lock()
		f.calls = append(f.calls, "close")
		f.mu.Unlock()
		close(f.closed)
	})
	return nil
}

func (f *fakeTransport) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeTransport) Writes() []structs.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]structs.Event(nil), f.writes...)
}

func (f *fakeTransport) RawWrites() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.raw))
	for _, b := range f.raw {
		out = append(out, string(b))
	}
	return out
}

func (f *fakeTransport) isClosed() bool {
	select {
	case <-f.closed:
		return true
	default:
		return false
	}
}

type fakeResolver struct {
	url   string
	err   error
	calls atomic.Int32
}

func (r *fakeResolver) GatewayBot(ctx context.Context) (*structs.GatewayBot, error) {
	r.calls.Add(1)
	if r.err != nil {
		return nil, r.err
	}
	return &structs.GatewayBot{URL: r.url, Shards: 1}, nil
}

type fakeDialer struct {
	mu         sync.Mutex
	urls       []string
	transports []*fakeTransport
}

func (d *fakeDialer) add(t *fakeTransport) *fakeTransport {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.transports = append(d.transports, t)
	return t
}

func (d *fakeDialer) dial(ctx context.Context, url string) (Transport, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.urls = append(d.urls, url)
	if len(d.transports) == 0 {
		return nil, errors.New("connection refused")
	}
	t := d.transports[0]
	d.transports = d.transports[1:]
	return t, nil
}

func (d *fakeDialer) URLs() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.urls...)
}

// ticker drives heartbeat waits. Waits shorter than a second, the
// reidentify delay in tests, return at once.
type ticker struct {
	ch chan struct{}
}

func newTicker() *ticker {
	return &ticker{ch: make(chan struct{})}
}

func (tk *ticker) sleep(ctx context.Context, d time.Duration) error {
	if d < time.Second {
		return ctx.Err()
	}
	select {
	case <-tk.ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (tk *ticker) tick(t *testing.T) {
	t.Helper()
	select {
	case tk.ch <- struct{}{}:
	case <-time.After(time.Second):
		t.Fatal("heartbeat monitor is not waiting")
	}
}

type harness struct {
	session  *Session
	resolver *fakeResolver
	dialer   *fakeDialer
	ticker   *ticker
}

func testConfig() Config {
	return Config{
		Token:   "token",
		Intents: Intents(GuildsIntent, GuildMessagesIntent),
		Properties: structs.IdentifyEventProperties{
			Os:      "linux",
			Browser: "siren",
			Device:  "siren",
		},
		SendLimiter:     rate.NewLimiter(rate.Inf, 0),
		IdentifyLimiter: rate.NewLimiter(rate.Inf, 0),
		Logger:          zerolog.Nop(),
	}
}

func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()
	h := &harness{
		resolver: &fakeResolver{url: "wss://gateway.test"},
		dialer:   &fakeDialer{},
		ticker:   newTicker(),
	}
	h.session = NewSession(h.resolver, cfg,
		WithDialer(h.dialer.dial),
		WithSleep(h.ticker.sleep),
		// First beat waits for a tick.
		WithHeartbeatJitter(func(interval time.Duration) time.Duration { return interval }),
		WithReidentifyDelay(func() time.Duration { return time.Millisecond }),
	)
	t.Cleanup(func() { _ = h.session.Close() })
	return h
}

func hello(interval int64) map[string]any {
	return map[string]any{"op": OpcodeHello, "d": map[string]any{"heartbeat_interval": interval}}
}

func dispatch(name string, seq int64, d any) map[string]any {
	return map[string]any{"op": OpcodeDispatch, "t": name, "s": seq, "d": d}
}

func ready(sessionID, resumeURL string, seq int64) map[string]any {
	return dispatch(structs.EventNameReady, seq, map[string]any{
		"v":                  10,
		"session_id":         sessionID,
		"resume_gateway_url": resumeURL,
		"user":               map[string]any{"id": "1", "username": "siren"},
	})
}

// connectReady runs a fresh connect and consumes READY.
func (h *harness) connectReady(t *testing.T, sessionID string) *fakeTransport {
	t.Helper()
	tr := h.dialer.add(newFakeTransport())
	tr.push(hello(30000))
	tr.push(ready(sessionID, "wss://resume.test", 1))
	require.NoError(t, h.session.Connect(context.Background(), false))
	ev, err := h.session.NextEvent(context.Background())
	require.NoError(t, err)
	require.Equal(t, structs.EventNameReady, ev.Type)
	return tr
}
