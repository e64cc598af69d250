// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package report delivers cycle outcomes to their consumers: MQTT, the
// console, the audit store and live web clients.
package report

import (
	"log"
	"sync"
)

// Dispatcher runs callbacks one at a time on a dedicated goroutine, in the
// order they were dispatched. It satisfies sampling.Executor.
type Dispatcher struct {
	queue chan func()
	done  chan struct{}

	mu     sync.RWMutex
	closed bool
}

// NewDispatcher starts a dispatcher with room for depth pending callbacks.
func NewDispatcher(depth int) *Dispatcher {
	if depth < 1 {
		depth = 1
	}
	d := &Dispatcher{
		queue: make(chan func(), depth),
		done:  make(chan struct{}),
	}
	go d.loop()
	return d
}

// Dispatch queues fn. It blocks while the queue is full and drops fn once
// the dispatcher is closed.
func (d *Dispatcher) Dispatch(fn func()) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		log.Printf("report: dispatcher closed, dropping callback")
		return
	}
	d.queue <- fn
}

// Close drains queued callbacks and stops the goroutine.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()
	<-d.done
}

func (d *Dispatcher) loop() {
	defer close(d.done)
	for fn := range d.queue {
		d.run(fn)
	}
}

func (d *Dispatcher) run(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("report: callback panicked: %v", r)
		}
	}()
	fn()
}
