// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_session

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

// fakeStream implements Closeable and removes itself on close, the way the
// real streamers do.
type fakeStream struct {
	id  string
	reg Registry

	mu         sync.Mutex
	closeCalls int
	lastReason string
}

func (f *fakeStream) SessionID() string { return f.id }

func (f *fakeStream) CloseWithReason(reason string) {
	f.mu.Lock()
	f.closeCalls++
	f.lastReason = reason
	f.mu.Unlock()
	if f.reg != nil {
		f.reg.Remove(f.id)
	}
}

func (f *fakeStream) closed() (int, string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closeCalls, f.lastReason
}

// --- Registry Tests ---

func TestRegistryAdmitEnforcesLimit(t *testing.T) {
	reg := NewRegistry(newTestLogger(t))

	assert.True(t, reg.Admit(&fakeStream{id: "a"}, 2))
	assert.True(t, reg.Admit(&fakeStream{id: "b"}, 2))
	assert.Equal(t, 2, reg.Len())

	rejected := &fakeStream{id: "c"}
	assert.False(t, reg.Admit(rejected, 2))
	assert.Equal(t, 2, reg.Len())

	// Freeing a slot lets the next stream in.
	reg.Remove("a")
	assert.True(t, reg.Admit(rejected, 2))
	assert.Equal(t, 2, reg.Len())
}

func TestRegistryZeroLimitIsUnbounded(t *testing.T) {
	reg := NewRegistry(newTestLogger(t))
	for i := 0; i < 50; i++ {
		assert.True(t, reg.Admit(&fakeStream{id: fmt.Sprintf("s-%d", i)}, 0))
	}
	assert.Equal(t, 50, reg.Len())
}

func TestRegistryRemoveUnknownIsNoop(t *testing.T) {
	reg := NewRegistry(newTestLogger(t))
	reg.Remove("never-admitted")
	assert.Equal(t, 0, reg.Len())
}

func TestRegistryCloseAllDrainsEverything(t *testing.T) {
	reg := NewRegistry(newTestLogger(t))
	streams := make([]*fakeStream, 0, 3)
	for i := 0; i < 3; i++ {
		fs := &fakeStream{id: fmt.Sprintf("s-%d", i), reg: reg}
		streams = append(streams, fs)
		assert.True(t, reg.Admit(fs, 0))
	}

	reg.CloseAll(ReasonShutdown)

	assert.Equal(t, 0, reg.Len())
	for _, fs := range streams {
		calls, reason := fs.closed()
		assert.Equal(t, 1, calls)
		assert.Equal(t, ReasonShutdown, reason)
	}
}

func TestRegistryCloseAllOnEmptyRegistry(t *testing.T) {
	reg := NewRegistry(newTestLogger(t))
	reg.CloseAll(ReasonShutdown)
	assert.Equal(t, 0, reg.Len())
}
