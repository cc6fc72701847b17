// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_emitter

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	internal_events "github.com/woundsight/api/triage-api/internal/events"
	"github.com/woundsight/pkg/commons"
)

func newTestLogger(t *testing.T) commons.Logger {
	t.Helper()
	logger, err := commons.NewApplicationLogger(
		commons.Name("test-emitter"),
		commons.Level("debug"),
	)
	require.NoError(t, err)
	return logger
}

// fakeChannel records sent payloads and can simulate a closed or failing
// transport.
type fakeChannel struct {
	mu      sync.Mutex
	open    bool
	sendErr error
	sent    []string
}

func (c *fakeChannel) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.open
}

func (c *fakeChannel) SendText(msg string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sendErr != nil {
		return c.sendErr
	}
	c.sent = append(c.sent, msg)
	return nil
}

func (c *fakeChannel) messages() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.sent...)
}

// --- Emitter Tests ---

func TestEmitSendsJSONOnOpenChannel(t *testing.T) {
	ch := &fakeChannel{open: true}
	em := NewChannelEmitter(newTestLogger(t), ch, nil)

	ok := em.Emit(context.Background(), internal_events.NewPongEvent(1234))
	require.True(t, ok)

	msgs := ch.messages()
	require.Len(t, msgs, 1)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal([]byte(msgs[0]), &decoded))
	assert.Equal(t, "pong", decoded["event_type"])
	assert.Equal(t, float64(1234), decoded["timestamp_ms"])
}

func TestEmitDropsWhenChannelNotOpen(t *testing.T) {
	ch := &fakeChannel{open: false}
	em := NewChannelEmitter(newTestLogger(t), ch, nil)

	ok := em.Emit(context.Background(), internal_events.NewPongEvent(1))
	assert.False(t, ok)
	assert.Empty(t, ch.messages())
}

func TestEmitReportsSendFailure(t *testing.T) {
	ch := &fakeChannel{open: true, sendErr: errors.New("transport gone")}
	em := NewChannelEmitter(newTestLogger(t), ch, nil)

	ok := em.Emit(context.Background(), internal_events.NewPongEvent(1))
	assert.False(t, ok)
}

// unmarshalable carries a value encoding/json cannot serialize.
type unmarshalable struct {
	Ch chan int `json:"ch"`
}

func (unmarshalable) EventType() string { return "broken" }

func TestEmitReportsMarshalFailure(t *testing.T) {
	ch := &fakeChannel{open: true}
	em := NewChannelEmitter(newTestLogger(t), ch, nil)

	ok := em.Emit(context.Background(), unmarshalable{Ch: make(chan int)})
	assert.False(t, ok)
	assert.Empty(t, ch.messages())
}

func TestEmitPreservesEventOrder(t *testing.T) {
	ch := &fakeChannel{open: true}
	em := NewChannelEmitter(newTestLogger(t), ch, nil)

	for i := int64(0); i < 5; i++ {
		require.True(t, em.Emit(context.Background(), internal_events.NewPongEvent(i)))
	}

	msgs := ch.messages()
	require.Len(t, msgs, 5)
	for i, msg := range msgs {
		var decoded internal_events.PongEvent
		require.NoError(t, json.Unmarshal([]byte(msg), &decoded))
		assert.Equal(t, int64(i), decoded.TimestampMs)
	}
}
