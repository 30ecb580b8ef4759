// Package hk implements gofilt's housekeeper: registrable periodic
// callbacks driving one goroutine and one timer. No other package in this
// module registers a callback with it.
//
// Grounded on hk/housekeeper_suite_test.go, the only teacher file
// retrieved for this package: DefaultHK.Run()/TestInit()/WaitStarted()
// reproduce exactly the public shape that test expects, rebuilt from
// scratch since no other teacher source survived.
/*
 * Copyright (c) 2018-2021, NVIDIA CORPORATION. All rights reserved.
 */
package hk

import (
	"container/heap"
	"sync"
	"time"

	"github.com/gofilt/gofilt/cmn/mono"
)

const minInterval = 10 * time.Millisecond

// request is one registered periodic callback. f's return value is the
// delay until its next run; a non-positive return keeps using interval.
type request struct {
	name     string
	f        func() time.Duration
	interval time.Duration
	nextAt   int64
	index    int
}

type reqHeap []*request

func (h reqHeap) Len() int           { return len(h) }
func (h reqHeap) Less(i, j int) bool { return h[i].nextAt < h[j].nextAt }
func (h reqHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index, h[j].index = i, j
}
func (h *reqHeap) Push(x any) {
	r := x.(*request)
	r.index = len(*h)
	*h = append(*h, r)
}
func (h *reqHeap) Pop() any {
	old := *h
	n := len(old)
	r := old[n-1]
	*h = old[:n-1]
	return r
}

// HK is a housekeeper: one goroutine driving every registered periodic
// callback off a single timer, rather than one goroutine per callback.
type HK struct {
	mu      sync.Mutex
	byName  map[string]*request
	heap    reqHeap
	stopCh  chan struct{}
	started chan struct{}
	once    sync.Once
}

// DefaultHK is the process-wide housekeeper instance.
var DefaultHK = New()

func New() *HK {
	return &HK{
		byName:  make(map[string]*request),
		stopCh:  make(chan struct{}),
		started: make(chan struct{}),
	}
}

// TestInit replaces DefaultHK with a fresh instance, for test isolation.
func TestInit() { DefaultHK = New() }

// WaitStarted blocks until DefaultHK.Run's loop has begun.
func WaitStarted() { <-DefaultHK.started }

// Reg registers a periodic callback under name, replacing any existing
// registration of the same name. interval is the delay before the first
// run; f's own return value governs every delay after that.
func (h *HK) Reg(name string, f func() time.Duration, interval time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if old, ok := h.byName[name]; ok {
		h.removeLocked(old)
	}
	r := &request{name: name, f: f, interval: interval, nextAt: mono.NanoTime() + int64(interval)}
	h.byName[name] = r
	heap.Push(&h.heap, r)
}

// Unreg removes a previously registered callback. A no-op if name isn't
// registered.
func (h *HK) Unreg(name string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if r, ok := h.byName[name]; ok {
		h.removeLocked(r)
	}
}

func (h *HK) removeLocked(r *request) {
	delete(h.byName, r.name)
	if r.index >= 0 && r.index < len(h.heap) && h.heap[r.index] == r {
		heap.Remove(&h.heap, r.index)
	}
}

// Run drives every registered callback off one timer until Stop is
// called. Meant to run in its own goroutine.
func (h *HK) Run() {
	h.once.Do(func() { close(h.started) })
	for {
		t := time.NewTimer(h.sleepDuration())
		select {
		case <-h.stopCh:
			t.Stop()
			return
		case <-t.C:
			h.fireDue()
		}
	}
}

// Stop ends Run's loop.
func (h *HK) Stop() { close(h.stopCh) }

func (h *HK) sleepDuration() time.Duration {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.heap) == 0 {
		return minInterval
	}
	d := time.Duration(h.heap[0].nextAt - mono.NanoTime())
	if d < minInterval {
		return minInterval
	}
	return d
}

func (h *HK) fireDue() {
	now := mono.NanoTime()
	var due []*request
	h.mu.Lock()
	for len(h.heap) > 0 && h.heap[0].nextAt <= now {
		due = append(due, heap.Pop(&h.heap).(*request))
	}
	h.mu.Unlock()

	for _, r := range due {
		next := r.f()
		if next <= 0 {
			next = r.interval
		}
		r.nextAt = mono.NanoTime() + int64(next)
		h.mu.Lock()
		if _, ok := h.byName[r.name]; ok { // skip if Unreg'd mid-callback
			heap.Push(&h.heap, r)
		}
		h.mu.Unlock()
	}
}
