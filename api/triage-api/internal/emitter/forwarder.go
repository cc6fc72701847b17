// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_emitter

import (
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/woundsight/pkg/commons"
)

const (
	forwardQueueSize = 256
	forwardTimeout   = 5 * time.Second
)

type forwardJob struct {
	eventType string
	payload   []byte
}

// Forwarder mirrors emitted events to an external collector with a POST to
// {base}/events/{event_type}. Delivery is best-effort: a single worker
// drains a bounded queue, a full queue drops, and failures are logged at
// debug. Nothing here ever blocks the media pipeline.
type Forwarder struct {
	logger  commons.Logger
	client  *resty.Client
	baseURL string
	apiKey  string

	queue     chan forwardJob
	quit      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// NewForwarder starts the forwarding worker. baseURL must be non-empty;
// apiKey is optional and sent as X-API-Key when set.
func NewForwarder(logger commons.Logger, baseURL, apiKey string) *Forwarder {
	f := &Forwarder{
		logger:  logger,
		client:  resty.New().SetTimeout(forwardTimeout),
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		queue:   make(chan forwardJob, forwardQueueSize),
		quit:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	go f.run()
	return f
}

// Forward enqueues one event payload. It never blocks: a full queue or a
// closed forwarder drops the event.
func (f *Forwarder) Forward(eventType string, payload []byte) {
	select {
	case <-f.quit:
		return
	default:
	}
	select {
	case f.queue <- forwardJob{eventType: eventType, payload: payload}:
	default:
		f.logger.Debugw("event forward queue full, dropping", "event_type", eventType)
	}
}

// Close stops the worker. Events still queued are discarded.
func (f *Forwarder) Close() {
	f.closeOnce.Do(func() {
		close(f.quit)
	})
	<-f.done
}

func (f *Forwarder) run() {
	defer close(f.done)
	for {
		select {
		case job := <-f.queue:
			f.post(job)
		case <-f.quit:
			return
		}
	}
}

func (f *Forwarder) post(job forwardJob) {
	req := f.client.R().
		SetHeader("Content-Type", "application/json").
		SetBody(job.payload)
	if f.apiKey != "" {
		req.SetHeader("X-API-Key", f.apiKey)
	}
	resp, err := req.Post(f.baseURL + "/events/" + job.eventType)
	if err != nil {
		f.logger.Debugw("event forward failed", "event_type", job.eventType, "error", err)
		return
	}
	if resp.IsError() {
		f.logger.Debugw("event forward rejected", "event_type", job.eventType, "status", resp.Status())
	}
}
