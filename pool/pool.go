/***********************************************************************************************************************
 *
 *   MIT License
 *
 *   Copyright (c) 2022 Nicolas JUHEL
 *
 *   Permission is hereby granted, free of charge, to any person obtaining a copy
 *   of this software and associated documentation files (the "Software"), to deal
 *   in the Software without restriction, including without limitation the rights
 *   to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 *   copies of the Software, and to permit persons to whom the Software is
 *   furnished to do so, subject to the following conditions:
 *
 *   The above copyright notice and this permission notice shall be included in all
 *   copies or substantial portions of the Software.
 *
 *   THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 *   IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 *   FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 *   AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 *   LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 *   OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 *   SOFTWARE.
 *
 *
 **********************************************************************************************************************/

// Package pool maintains the fixed set of connections a client keeps open
// to one host (spec.md §4.4): round-robin borrowing, heartbeats, and the
// reconnection schedule that brings a fully-lost pool back once a probe
// succeeds.
package pool

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/nabbar/wcdb/config"
	"github.com/nabbar/wcdb/connection"
	liberr "github.com/nabbar/wcdb/errors"
	"github.com/nabbar/wcdb/logger"
)

// Dialer opens the raw byte stream for a new connection. Kept as a
// function value rather than a concrete net.Dialer so the facade can
// inject a TLS-wrapping dialer without this package knowing about
// transport security (spec.md §1 out-of-scope: "transport security
// negotiation mechanics").
type Dialer func(ctx context.Context, addr *net.TCPAddr) (net.Conn, error)

// Config bundles the per-distance sizing and timing knobs a Pool needs,
// already resolved from config.Config for one host's distance.
type Config struct {
	CoreConnections   int
	MaxRequests       int
	HeartBeatInterval time.Duration
	ConnectTimeout    time.Duration
	ReadTimeout       time.Duration
	ConnOptions       connection.Options
	Reconnection      config.ReconnectionPolicy
}

// Pool owns every connection open to one host. Distance=ignored hosts
// never get a Pool at all (host.Host enforces the invariant at SetDistance);
// a Pool that loses every connection transitions to down and follows its
// Config.Reconnection schedule via a single probe goroutine.
type Pool struct {
	addr   *net.TCPAddr
	dial   Dialer
	cfg    Config
	log    logger.FuncLog

	mu    sync.Mutex
	conns []*connection.Connection
	rr    int // round-robin cursor

	down      bool
	attempt   int
	stopCh    chan struct{}
	stopOnce  sync.Once

	onAllFailed  func()
	onReconnected func()
}

// New constructs an unopened Pool; call Open to warm it up to
// Config.CoreConnections.
func New(addr *net.TCPAddr, dial Dialer, cfg Config, log logger.FuncLog) *Pool {
	return &Pool{addr: addr, dial: dial, cfg: cfg, log: log, stopCh: make(chan struct{})}
}

// OnAllConnectionsFailed registers the callback fired once every
// connection in the pool has failed; the caller (host/control-link glue)
// confirms the host down via the control link before acting on it
// (spec.md §4.4: "marks the host down only after all connections have
// failed and the control link confirms it").
func (p *Pool) OnAllConnectionsFailed(fn func()) { p.onAllFailed = fn }

// OnReconnected registers the callback fired once reconnectLoop's probe
// succeeds after a pool had gone fully down -- the facade's mirror of
// OnAllConnectionsFailed, used to bring the host back up in the host map
// once its pool has recovered on its own.
func (p *Pool) OnReconnected(fn func()) { p.onReconnected = fn }

// Open dials up to Config.CoreConnections connections, stopping at the
// first successful connection error is not returned: a pool that opens
// at least one connection is usable, and reconnection catches the rest up.
func (p *Pool) Open(ctx context.Context) liberr.Error {
	var last liberr.Error
	opened := 0
	for i := 0; i < p.cfg.CoreConnections; i++ {
		if e := p.openOne(ctx); e != nil {
			last = e
			continue
		}
		opened++
	}
	if opened == 0 {
		return last
	}
	go p.heartbeatLoop()
	return nil
}

func (p *Pool) openOne(ctx context.Context) liberr.Error {
	dialCtx := ctx
	var cancel context.CancelFunc
	if p.cfg.ConnectTimeout > 0 {
		dialCtx, cancel = context.WithTimeout(ctx, p.cfg.ConnectTimeout)
		defer cancel()
	}

	conn, err := p.dial(dialCtx, p.addr)
	if err != nil {
		return liberr.ConnectionError.Error(err)
	}

	c, e := connection.Open(ctx, conn, p.cfg.ConnOptions)
	if e != nil {
		_ = conn.Close()
		return e
	}

	c.OnDefunct(func(dead *connection.Connection, cause liberr.Error) {
		p.remove(dead)
	})

	p.mu.Lock()
	p.conns = append(p.conns, c)
	p.down = false
	p.mu.Unlock()
	return nil
}

func (p *Pool) remove(dead *connection.Connection) {
	p.mu.Lock()
	out := p.conns[:0]
	for _, c := range p.conns {
		if c != dead {
			out = append(out, c)
		}
	}
	p.conns = out
	empty := len(p.conns) == 0
	p.mu.Unlock()

	if empty {
		p.markDown()
	}
}

func (p *Pool) markDown() {
	p.mu.Lock()
	if p.down {
		p.mu.Unlock()
		return
	}
	p.down = true
	p.mu.Unlock()

	if l := p.logger(); l != nil {
		l.Warning("pool %s lost its last connection, marking down", nil, p.addr.String())
	}

	if p.onAllFailed != nil {
		p.onAllFailed()
	}
	go p.reconnectLoop()
}

// logger returns the pool's Logger, nil-safe both when no FuncLog was
// supplied and when the FuncLog returns a nil Logger.
func (p *Pool) logger() logger.Logger {
	if p.log == nil {
		return nil
	}
	return p.log()
}

// reconnectLoop implements spec.md §4.4: "the pool follows the
// reconnection policy attempting a single probe; on success it ramps to
// coreConnectionsPerHost".
func (p *Pool) reconnectLoop() {
	for {
		var delay time.Duration
		if p.cfg.Reconnection != nil {
			delay = p.cfg.Reconnection.NextDelay(p.attempt).Time()
		} else {
			delay = time.Second
		}
		p.attempt++

		select {
		case <-time.After(delay):
		case <-p.stopCh:
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), p.cfg.ConnectTimeout)
		e := p.openOne(ctx)
		cancel()
		if e == nil {
			tried := p.attempt
			p.attempt = 0
			for i := 1; i < p.cfg.CoreConnections; i++ {
				_ = p.openOne(context.Background())
			}
			p.mu.Lock()
			p.down = false
			p.mu.Unlock()
			if l := p.logger(); l != nil {
				l.Info("pool %s reconnected after %d attempt(s)", nil, p.addr.String(), tried)
			}
			if p.onReconnected != nil {
				p.onReconnected()
			}
			return
		}
	}
}

// Borrow selects a ready connection with spare stream-id capacity via
// round robin (spec.md §4.4). When every connection is saturated, it
// blocks (bounded by ctx) until one frees capacity -- the pool's
// backpressure mechanism -- rather than failing fast; the request
// handler's plan iterator is what moves on to the next host.
func (p *Pool) Borrow(ctx context.Context) (*connection.Connection, liberr.Error) {
	for {
		if c, ok := p.tryBorrow(); ok {
			return c, nil
		}

		select {
		case <-ctx.Done():
			return nil, liberr.OperationTimedOut.Error(ctx.Err())
		case <-p.stopCh:
			return nil, liberr.ConnectionError.Error(nil)
		case <-time.After(5 * time.Millisecond):
			// Poll rather than condition-variable-signal: connections
			// free capacity from their own receive goroutines, and a
			// short poll interval is simpler than plumbing a broadcast
			// channel through every response path for a bound that is
			// already measured in milliseconds.
		}
	}
}

func (p *Pool) tryBorrow() (*connection.Connection, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := len(p.conns)
	if n == 0 {
		return nil, false
	}

	max := p.cfg.MaxRequests
	if max <= 0 {
		max = config.DefaultMaxRequestsPerConnectionV3
	}

	for i := 0; i < n; i++ {
		idx := (p.rr + i) % n
		c := p.conns[idx]
		if c.State() == connection.StateReady && c.InFlight() < max {
			p.rr = (idx + 1) % n
			return c, true
		}
	}
	return nil, false
}

// Size reports the current open-connection count, satisfying host.Pool.
func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.conns)
}

// Close closes every connection at once, without waiting for in-flight
// requests, and stops the heartbeat/reconnect goroutines, satisfying
// host.Pool.
func (p *Pool) Close() {
	p.stopOnce.Do(func() { close(p.stopCh) })

	p.mu.Lock()
	conns := p.conns
	p.conns = nil
	p.mu.Unlock()

	for _, c := range conns {
		c.Close()
	}
}

func (p *Pool) heartbeatLoop() {
	interval := p.cfg.HeartBeatInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			p.mu.Lock()
			conns := append([]*connection.Connection(nil), p.conns...)
			p.mu.Unlock()

			for _, c := range conns {
				c.ReleaseIdlePages()
				if c.InFlight() == 0 {
					go func(conn *connection.Connection) {
						ctx, cancel := context.WithTimeout(context.Background(), p.cfg.ReadTimeout)
						defer cancel()
						_ = conn.Heartbeat(ctx, p.cfg.ReadTimeout)
					}(c)
				}
			}
		case <-p.stopCh:
			return
		}
	}
}
