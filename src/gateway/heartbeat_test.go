package gateway

import (
	"context"
	"slices"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeartbeatClosesWhenNotAcked(t *testing.T) {
	h := newHarness(t, testConfig())
	tr := h.connectReady(t, "abc")

	// First beat.
	h.ticker.tick(t)
	require.Eventually(t, func() bool {
		return slices.Contains(tr.Calls(), "send:1")
	}, time.Second, time.Millisecond)
	assert.False(t, h.session.Status().HeartbeatAcked)

	// Second tick without an ack.
	h.ticker.tick(t)
	require.Eventually(t, tr.isClosed, time.Second, time.Millisecond)

	calls := tr.Calls()
	closeAt := slices.Index(calls, "close-frame:4420")
	require.NotEqual(t, -1, closeAt, "closed with the no-ack code")
	var beats int
	for i, c := range calls {
		if c == "send:1" {
			beats++
			assert.Less(t, i, closeAt, "no heartbeat after the no-ack close")
		}
	}
	assert.Equal(t, 1, beats)

	_, err := h.session.NextEvent(context.Background())
	var re *ReconnectError
	require.ErrorAs(t, err, &re)
	assert.True(t, re.Resume)
	assert.Equal(t, NoHeartbeatAck, re.Code)
}

func TestHeartbeatKeepsBeatingWhenAcked(t *testing.T) {
	h := newHarness(t, testConfig())
	tr := h.connectReady(t, "abc")
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		h.ticker.tick(t)
		require.Eventually(t, func() bool {
			n := 0
			for _, c := range tr.Calls() {
				if c == "send:1" {
					n++
				}
			}
			return n == i
		}, time.Second, time.Millisecond)

		tr.push(map[string]any{"op": OpcodeHeartbeatAck})
		tr.push(dispatch("TYPING_START", int64(i+1), map[string]any{}))
		_, err := h.session.NextEvent(ctx)
		require.NoError(t, err)
		assert.True(t, h.session.Status().HeartbeatAcked)
	}
	assert.False(t, tr.isClosed())

	// Heartbeats carry the latest sequence.
	writes := tr.Writes()
	last := writes[len(writes)-1]
	assert.Equal(t, OpcodeHeartbeat, last.Op)
	assert.EqualValues(t, 3, last.D)
}

func TestHeartbeatStopsOnClose(t *testing.T) {
	h := newHarness(t, testConfig())
	h.connectReady(t, "abc")

	done := make(chan struct{})
	go func() {
		_ = h.session.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("close did not wait for the heartbeat to stop")
	}

	h.session.mu.Lock()
	defer h.session.mu.Unlock()
	assert.Nil(t, h.session.hb)
}
