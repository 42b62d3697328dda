package bot

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/hendrywilliam/sirengate/src/gateway"
	"github.com/hendrywilliam/sirengate/src/rest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type step struct {
	event *gateway.Event
	err   error
}

// fakeSession plays one script per Connect call.
type fakeSession struct {
	mu         sync.Mutex
	connects   []bool
	connectErr []error
	scripts    [][]step
	current    []step
	sessionID  string
	closed     int
	block      chan struct{}
}

func (f *fakeSession) Connect(ctx context.Context, resume bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connects = append(f.connects, resume)
	if len(f.connectErr) > 0 {
		err := f.connectErr[0]
		f.connectErr = f.connectErr[1:]
		if err != nil {
			return err
		}
	}
	if len(f.scripts) > 0 {
		f.current = f.scripts[0]
		f.scripts = f.scripts[1:]
	} else {
		f.current = nil
	}
	return nil
}

func (f *fakeSession) NextEvent(ctx context.Context) (*gateway.Event, error) {
	f.mu.Lock()
	if len(f.current) == 0 {
		f.mu.Unlock()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-f.block:
			return nil, &gateway.DisconnectedError{Code: 4004}
		}
	}
	s := f.current[0]
	f.current = f.current[1:]
	if s.event != nil && s.event.Type == "READY" {
		f.sessionID = "abc"
	}
	f.mu.Unlock()
	return s.event, s.err
}

func (f *fakeSession) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed++
	return nil
}

func (f *fakeSession) SessionID() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sessionID
}

func (f *fakeSession) Connects() []bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]bool(nil), f.connects...)
}

func noSleep(slept *[]time.Duration) func(context.Context, time.Duration) error {
	return func(ctx context.Context, d time.Duration) error {
		*slept = append(*slept, d)
		return ctx.Err()
	}
}

func TestRunDispatchesAndFollowsReconnects(t *testing.T) {
	s := &fakeSession{
		scripts: [][]step{
			{
				{event: &gateway.Event{Type: "READY"}},
				{event: &gateway.Event{Type: "MESSAGE_CREATE"}},
				{err: &gateway.ReconnectError{Resume: true}},
			},
			{
				{event: &gateway.Event{Type: "RESUMED"}},
				{err: &gateway.ReconnectError{Resume: false}},
			},
			{
				{err: &gateway.DisconnectedError{Code: gateway.AuthenticationFailed}},
			},
		},
	}
	b := New(s)

	var (
		messages int
		all      []string
	)
	b.On("MESSAGE_CREATE", func(ctx context.Context, e *gateway.Event) { messages++ })
	b.OnAny(func(ctx context.Context, e *gateway.Event) { all = append(all, e.Type) })

	err := b.Run(context.Background())
	var de *gateway.DisconnectedError
	require.ErrorAs(t, err, &de)
	assert.ErrorIs(t, err, gateway.ErrAuthenticationFailed)

	assert.Equal(t, []bool{false, true, false}, s.Connects())
	assert.Equal(t, 1, messages)
	assert.Equal(t, []string{"READY", "MESSAGE_CREATE", "RESUMED"}, all)
	assert.Equal(t, 1, s.closed)
}

func TestRunBacksOffOnTransportErrors(t *testing.T) {
	transient := &gateway.TransportError{Err: errors.New("reset by peer")}
	s := &fakeSession{
		connectErr: []error{transient, transient, nil},
		scripts: [][]step{
			{{err: &gateway.ProtocolError{Op: 42, Message: "unknown opcode"}}},
		},
	}
	var slept []time.Duration
	b := New(s, WithSleep(noSleep(&slept)))

	err := b.Run(context.Background())
	var pe *gateway.ProtocolError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, slept)
	assert.Equal(t, []bool{false, false, false}, s.Connects())
}

func TestRunGivesUpAfterMaxAttempts(t *testing.T) {
	transient := &gateway.TransportError{Err: errors.New("refused")}
	s := &fakeSession{connectErr: []error{transient, transient, transient, transient}}
	var slept []time.Duration
	b := New(s, WithSleep(noSleep(&slept)), WithMaxAttempts(3), WithMaxBackoff(3*time.Second))

	err := b.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, transient)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 3 * time.Second}, slept)
	assert.Len(t, s.Connects(), 4)
}

func TestRunResumesAfterFailureWithSession(t *testing.T) {
	s := &fakeSession{
		connectErr: []error{nil, &gateway.TransportError{Err: errors.New("dial")}},
		scripts: [][]step{
			{
				{event: &gateway.Event{Type: "READY"}},
				{err: &gateway.TransportError{Err: errors.New("eof")}},
			},
			{{err: &gateway.DisconnectedError{Code: 4014}}},
		},
	}
	var slept []time.Duration
	b := New(s, WithSleep(noSleep(&slept)))

	require.Error(t, b.Run(context.Background()))
	assert.Equal(t, []bool{false, true, true}, s.Connects())
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, slept)
}

func TestRunStopsOnRejectedToken(t *testing.T) {
	s := &fakeSession{connectErr: []error{&rest.HTTPError{Status: 401, Reason: "Unauthorized"}}}
	b := New(s, WithSleep(noSleep(new([]time.Duration))))

	var he *rest.HTTPError
	require.ErrorAs(t, b.Run(context.Background()), &he)
	assert.Len(t, s.Connects(), 1)
}

func TestRunReturnsNilOnCancel(t *testing.T) {
	s := &fakeSession{
		scripts: [][]step{{{event: &gateway.Event{Type: "READY"}}}},
		block:   make(chan struct{}),
	}
	b := New(s)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- b.Run(ctx) }()

	require.Eventually(t, func() bool { return s.SessionID() == "abc" }, time.Second, time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("run did not return after cancel")
	}
	assert.Equal(t, 1, s.closed)
}

func TestHandlerPanicIsRecovered(t *testing.T) {
	s := &fakeSession{
		scripts: [][]step{{
			{event: &gateway.Event{Type: "MESSAGE_CREATE"}},
			{event: &gateway.Event{Type: "MESSAGE_CREATE"}},
			{err: &gateway.DisconnectedError{Code: 4004}},
		}},
	}
	b := New(s)
	calls := 0
	b.On("MESSAGE_CREATE", func(ctx context.Context, e *gateway.Event) {
		calls++
		panic("boom")
	})

	require.Error(t, b.Run(context.Background()))
	assert.Equal(t, 2, calls)
}

func TestBackoff(t *testing.T) {
	b := New(&fakeSession{}, WithMaxBackoff(10*time.Second))
	assert.Equal(t, time.Second, b.backoff(1))
	assert.Equal(t, 2*time.Second, b.backoff(2))
	assert.Equal(t, 8*time.Second, b.backoff(4))
	assert.Equal(t, 10*time.Second, b.backoff(5))
}

func TestAsyncHandlerDoesNotBlockReceiveLoop(t *testing.T) {
	s := &fakeSession{
		scripts: [][]step{{
			{event: &gateway.Event{Type: "INTERACTION_CREATE"}},
			{event: &gateway.Event{Type: "MESSAGE_CREATE"}},
			{err: &gateway.DisconnectedError{Code: gateway.AuthenticationFailed}},
		}},
	}
	b := New(s)

	started := make(chan struct{})
	release := make(chan struct{})
	seen := make(chan struct{})
	finished := false
	b.OnAsync("INTERACTION_CREATE", func(ctx context.Context, e *gateway.Event) {
		close(started)
		<-release
		finished = true
	})
	b.On("MESSAGE_CREATE", func(ctx context.Context, e *gateway.Event) {
		close(seen)
	})

	done := make(chan error, 1)
	go func() { done <- b.Run(context.Background()) }()

	<-started
	select {
	case <-seen:
	case <-time.After(time.Second):
		t.Fatal("receive loop blocked behind the async handler")
	}
	select {
	case <-done:
		t.Fatal("Run returned before the async handler finished")
	case <-time.After(20 * time.Millisecond):
	}

	close(release)
	err := <-done
	var de *gateway.DisconnectedError
	require.ErrorAs(t, err, &de)
	assert.True(t, finished)
}
