// Package singleflight coalesces concurrent calls that share a key.
package singleflight

import (
	"fmt"
	"sync"
)

// Group manages a set of in-flight calls to prevent duplicate work.
type Group struct {
	mu sync.Mutex
	m  map[string]*call
}

// call represents an active call.
type call struct {
	wg    sync.WaitGroup
	val   any
	err   error
	dups  int
	chans []chan<- Result
}

// Result is what DoChan delivers.
type Result struct {
	Val    any
	Err    error
	Shared bool
}

// New creates a new singleflight Group.
func New() *Group {
	return &Group{
		m: make(map[string]*call),
	}
}

// Do executes fn, making sure that only one execution is in flight for a
// given key at a time. Duplicate callers wait for the original and receive
// the same results; shared reports whether the result went to more than
// one caller. The key is forgotten as soon as fn returns, so later calls
// run fn again.
func (g *Group) Do(key string, fn func() (any, error)) (v any, err error, shared bool) {
	g.mu.Lock()
	if c, ok := g.m[key]; ok {
		c.dups++
		g.mu.Unlock()
		c.wg.Wait()
		return c.val, c.err, true
	}

	c := &call{}
	c.wg.Add(1)
	g.m[key] = c
	g.mu.Unlock()

	g.doCall(c, key, fn)

	g.mu.Lock()
	shared = c.dups > 0
	g.mu.Unlock()
	return c.val, c.err, shared
}

// DoChan is like Do but returns a channel that receives the result, so
// callers can stop waiting on their own terms. fn keeps running for the
// other callers when one of them gives up. The channel is buffered and
// is never closed.
func (g *Group) DoChan(key string, fn func() (any, error)) <-chan Result {
	ch := make(chan Result, 1)
	g.mu.Lock()
	if c, ok := g.m[key]; ok {
		c.dups++
		c.chans = append(c.chans, ch)
		g.mu.Unlock()
		return ch
	}

	c := &call{chans: []chan<- Result{ch}}
	c.wg.Add(1)
	g.m[key] = c
	g.mu.Unlock()

	go g.doCall(c, key, fn)
	return ch
}

func (g *Group) doCall(c *call, key string, fn func() (any, error)) {
	defer func() {
		if r := recover(); r != nil {
			c.val, c.err = nil, fmt.Errorf("singleflight: call panicked: %v", r)
		}
		g.mu.Lock()
		if g.m[key] == c {
			delete(g.m, key)
		}
		shared := c.dups > 0
		chans := c.chans
		g.mu.Unlock()
		c.wg.Done()

		for _, ch := range chans {
			ch <- Result{Val: c.val, Err: c.err, Shared: shared}
		}
	}()

	c.val, c.err = fn()
}

// InFlight reports whether a call for key is running.
func (g *Group) InFlight(key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.m[key]
	return ok
}
