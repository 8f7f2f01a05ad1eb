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

// Package connection owns one bidirectional byte stream and demultiplexes
// its framed responses by stream id (spec.md §4.3). Each Connection is
// confined to a single receive goroutine plus a mutex-guarded write path,
// the idiomatic-Go realization of spec.md §5's "single executor per
// connection" discipline.
package connection

import (
	"context"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nabbar/wcdb/config"
	liberr "github.com/nabbar/wcdb/errors"
	"github.com/nabbar/wcdb/logger"
	"github.com/nabbar/wcdb/protocol"
	"github.com/nabbar/wcdb/streamid"
)

// State is the Connection lifecycle named in spec.md §3.
type State int32

const (
	StateOpening State = iota
	StateReady
	StateDefunct
)

// Request is what the caller hands to Send: an opcode and an already
// body-encoded frame payload (the request/batch/prepared-registry/control
// packages build bodies with the protocol package's encoders).
type Request struct {
	OpCode protocol.OpCode
	Body   []byte
	// Flags are frame-header flags the caller wants set (e.g.
	// FlagTracing); Send itself adds FlagCompression when a non-identity
	// compressor is in use.
	Flags protocol.Flags
}

// Response is the decoded reply handed back to the caller of Send, or to
// a registered stream callback for a push/continuous frame.
type Response struct {
	Header protocol.Header
	Body   []byte
}

type pendingEntry struct {
	done    chan struct{}
	resp    Response
	err     liberr.Error
	orphan  atomic.Bool // true once the client gave up waiting but the id is not yet reclaimed
}

// Options configures Open's STARTUP negotiation and the connection's
// runtime behavior.
type Options struct {
	ProtocolOptions config.ProtocolOptions
	SocketOptions   config.SocketOptions
	Compressor      protocol.Compressor
	AuthProvider    config.AuthProvider
	// Keyspace is the pool's logged keyspace, sent via USE when the
	// negotiated protocol version doesn't support per-request keyspace
	// (spec.md §4.3).
	Keyspace string
	Logger   logger.FuncLog
}

// Connection is the per-socket multiplexer. Exported fields are none;
// all state is accessed through methods so the single-executor write
// path (writeMu) and the receive goroutine stay the only mutators.
type Connection struct {
	conn    net.Conn
	version protocol.Version
	feat    protocol.Features
	compressor protocol.Compressor
	opts    Options

	stack   *streamid.Stack
	pending sync.Map // int16 -> *pendingEntry

	writeMu sync.Mutex
	state   atomic.Int32

	orphanCount atomic.Int32
	threshold   int

	onDefunct func(*Connection, liberr.Error)
	onEvent   func(protocol.Header, []byte)

	closeOnce sync.Once
	closed    chan struct{}

	loggedKeyspace string
}

// Open dials nothing itself -- the caller supplies an already-dialed
// net.Conn (the transport/TLS seam is out of scope, spec.md §1) -- and
// performs STARTUP negotiation: propose ProtocolOptions.MaxVersion (or
// MaxVersion), retry with a lower version on PROTOCOL_ERROR, never below
// protocol.MinVersion (spec.md §4.3).
func Open(ctx context.Context, conn net.Conn, opts Options) (*Connection, liberr.Error) {
	c := &Connection{
		conn:      conn,
		opts:      opts,
		compressor: opts.Compressor,
		threshold: opts.SocketOptions.DefunctReadTimeoutThreshold,
		closed:    make(chan struct{}),
	}
	if c.compressor == nil {
		c.compressor = protocol.NoCompression()
	}
	if c.threshold <= 0 {
		c.threshold = config.DefaultDefunctReadTimeoutThreshold
	}
	c.state.Store(int32(StateOpening))

	propose := protocol.MaxVersion
	if opts.ProtocolOptions.MaxVersion > 0 {
		propose = protocol.Version(opts.ProtocolOptions.MaxVersion)
	}

	for v := propose; v >= protocol.MinVersion; v-- {
		c.version = v
		c.feat = protocol.FeaturesFor(v)
		c.stack = streamid.New(v)

		if e := c.startup(ctx); e != nil {
			if e.IsCode(liberr.ProtocolError) && v > protocol.MinVersion {
				continue
			}
			return nil, e
		}
		break
	}

	c.state.Store(int32(StateReady))
	go c.receiveLoop()
	return c, nil
}

func (c *Connection) State() State { return State(c.state.Load()) }

func (c *Connection) Version() protocol.Version { return c.version }

func (c *Connection) Features() protocol.Features { return c.feat }

// LocalAddr exposes the underlying socket's local address, used by the
// control link to identify which discovered row in system.local
// corresponds to this connection's own node.
func (c *Connection) LocalAddr() *net.TCPAddr {
	if a, ok := c.conn.LocalAddr().(*net.TCPAddr); ok {
		return a
	}
	return nil
}

// InFlight reports the number of outstanding stream ids, used by the pool
// to decide saturation for round-robin borrowing (spec.md §4.4).
func (c *Connection) InFlight() int { return c.stack.InFlight() }

// MaxStreamIDs reports the protocol maximum for this connection's
// negotiated version.
func (c *Connection) MaxStreamIDs() int { return c.version.MaxStreamIDs() }

// OnDefunct registers the callback fired exactly once when this
// connection transitions to defunct; the owning pool uses it to close
// the socket and drop the connection from its rotation (spec.md §4.4).
func (c *Connection) OnDefunct(fn func(*Connection, liberr.Error)) {
	c.onDefunct = fn
}

// OnEvent registers the callback fired for a pushed TOPOLOGY_CHANGE,
// STATUS_CHANGE or SCHEMA_CHANGE frame after REGISTER; used only by the
// dedicated control-link connection. A connection with no callback set
// silently drops any event frame it happens to see (a pool connection
// never REGISTERs, so this only matters for the control link).
func (c *Connection) OnEvent(fn func(protocol.Header, []byte)) {
	c.onEvent = fn
}

// Send writes one framed request and waits for its correlated response,
// or for ctx/timeout to elapse (spec.md §4.3).
func (c *Connection) Send(ctx context.Context, req Request, timeout time.Duration) (Response, liberr.Error) {
	if c.State() != StateReady {
		return Response{}, liberr.ConnectionError.Error(nil)
	}

	id, ok := c.stack.Pop()
	if !ok {
		return Response{}, liberr.Overloaded.Error(nil)
	}

	entry := &pendingEntry{done: make(chan struct{})}
	c.pending.Store(int16(id), entry)

	header := protocol.Header{Version: c.version, StreamID: int16(id), OpCode: req.OpCode, Flags: req.Flags}
	if c.compressor != nil && !c.compressor.IsIdentity() {
		header.Flags |= protocol.FlagCompression
	}

	frame, e := protocol.Encode(header, req.Body, c.compressor)
	if e != nil {
		c.pending.Delete(int16(id))
		c.stack.Push(id)
		return Response{}, e
	}

	c.writeMu.Lock()
	_, err := c.conn.Write(frame)
	c.writeMu.Unlock()
	if err != nil {
		c.pending.Delete(int16(id))
		c.stack.Push(id)
		c.markDefunct(liberr.ConnectionError.Error(err))
		return Response{}, liberr.ConnectionError.Error(err)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-entry.done:
		return entry.resp, entry.err
	case <-timer.C:
		// spec.md §4.3: the id is NOT released on timeout; the server
		// may still respond. Mark it orphaned so the receive loop knows
		// to release it (and decrement the orphan counter) whenever the
		// late response does arrive.
		entry.orphan.Store(true)
		c.orphanCount.Add(1)
		c.checkDefunctThreshold()
		return Response{}, liberr.OperationTimedOut.Error(nil)
	case <-ctx.Done():
		entry.orphan.Store(true)
		c.orphanCount.Add(1)
		c.checkDefunctThreshold()
		return Response{}, liberr.OperationTimedOut.Error(ctx.Err())
	case <-c.closed:
		return Response{}, liberr.ConnectionError.Error(nil)
	}
}

func (c *Connection) checkDefunctThreshold() {
	if int(c.orphanCount.Load()) > c.threshold {
		c.markDefunct(liberr.ConnectionError.Error(nil))
	}
}

func (c *Connection) receiveLoop() {
	for {
		frame, e := protocol.Decode(c.conn, c.compressor)
		if e != nil {
			c.markDefunct(e)
			return
		}

		if frame.Header.OpCode == protocol.OpEvent {
			if c.onEvent != nil {
				c.onEvent(frame.Header, frame.Body)
			}
			continue
		}

		v, ok := c.pending.Load(frame.Header.StreamID)
		if !ok {
			continue
		}
		entry := v.(*pendingEntry)
		c.pending.Delete(frame.Header.StreamID)

		wasOrphan := entry.orphan.Load()
		c.stack.Push(int(frame.Header.StreamID))
		if wasOrphan {
			c.orphanCount.Add(-1)
		}

		entry.resp = Response{Header: frame.Header, Body: frame.Body}
		close(entry.done)
	}
}

func (c *Connection) markDefunct(cause liberr.Error) {
	if !c.state.CompareAndSwap(int32(StateOpening), int32(StateDefunct)) &&
		!c.state.CompareAndSwap(int32(StateReady), int32(StateDefunct)) {
		return
	}

	c.closeOnce.Do(func() { close(c.closed) })

	c.pending.Range(func(_, v any) bool {
		entry := v.(*pendingEntry)
		entry.err = liberr.ConnectionError.Error(cause)
		select {
		case <-entry.done:
		default:
			close(entry.done)
		}
		return true
	})

	_ = c.conn.Close()

	if c.opts.Logger != nil {
		if l := c.opts.Logger(); l != nil {
			l.Error("connection to %s marked defunct: %v", nil, c.conn.RemoteAddr(), cause)
		}
	}

	if c.onDefunct != nil {
		c.onDefunct(c, cause)
	}
}

// Close shuts down the connection at once: it marks the state defunct and
// closes the socket, without calling the onDefunct hook. In-flight requests
// fail with a connection error, since the socket is going away.
func (c *Connection) Close() {
	c.closeOnce.Do(func() { close(c.closed) })
	c.state.Store(int32(StateDefunct))
	_ = c.conn.Close()
}

// Heartbeat sends a lightweight OPTIONS frame, used by the pool to keep
// otherwise-idle connections alive (spec.md §4.4).
func (c *Connection) Heartbeat(ctx context.Context, timeout time.Duration) liberr.Error {
	_, e := c.Send(ctx, Request{OpCode: protocol.OpOptions}, timeout)
	return e
}

// ReleaseIdlePages resets the stream-id pages whose release delay has
// elapsed (see streamid.Stack.ReleaseExpiredPages; the Stack's memory is
// not reduced). The pool calls it on each heartbeat tick.
func (c *Connection) ReleaseIdlePages() {
	c.stack.ReleaseExpiredPages(time.Now())
}
