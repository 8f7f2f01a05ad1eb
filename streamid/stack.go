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

// Package streamid allocates and reclaims the per-connection stream
// identifiers that multiplex many concurrent requests over one byte
// stream (spec.md §4.2). Ids are grouped into fixed-size pages that are
// allocated on demand. A page that drains back to idle is reset to a fresh,
// fully free page of the same size; pages are never freed while the Stack
// is in use, only by Clear.
package streamid

import (
	"sync"
	"time"

	"github.com/nabbar/wcdb/protocol"
)

const pageSize = 128

// defaultReleaseDelay is how long a fully-idle, non-active page waits before
// ReleaseExpiredPages resets it (spec.md §4.2).
const defaultReleaseDelay = 10 * time.Second

// page is one contiguous block of pageSize ids. inUse counts the allocated
// ids (free entries that are false) so Stack can detect "fully free"
// without scanning the bitmap.
type page struct {
	base     int
	free     []bool // true = available
	inUse    int
	releaseAt time.Time // zero means "not scheduled for release"
}

func newPage(base, size int) *page {
	p := &page{base: base, free: make([]bool, size)}
	for i := range p.free {
		p.free[i] = true
	}
	return p
}

// Stack is the per-connection stream-id allocator. It is confined to the
// owning connection's goroutine for send-path calls, but Counters are read
// concurrently by pool/metrics code, so the counters themselves are
// atomic-free plain ints guarded by the same mutex as the bitmap: this
// is a single-writer structure in practice (spec.md §5), and a mutex here
// is cheap insurance against a future caller relaxing that invariant.
type Stack struct {
	mu           sync.Mutex
	max          int
	releaseDelay time.Duration
	pages        []*page
	active       int // index of the page the last Pop allocated from; Push and ReleaseExpiredPages leave it alone

	// inFlight is the current outstanding id count, observed via Counters.
	inFlight int

	// onIncrease/onDecrease mirror spec.md §4.2's "two observable
	// counters" as optional callback hooks the connection wires to its
	// defunct-on-timeout heuristic and pool metrics.
	onIncrease func()
	onDecrease func(n int)
}

// New returns a Stack sized for the given protocol version's maximum
// concurrent stream ids.
func New(v protocol.Version) *Stack {
	return &Stack{
		max:          v.MaxStreamIDs(),
		releaseDelay: defaultReleaseDelay,
		onIncrease:   func() {},
		onDecrease:   func(int) {},
	}
}

// OnCounters registers the inFlightIncrease/inFlightDecrease observers
// described in spec.md §4.2. Call before the Stack is used concurrently.
func (s *Stack) OnCounters(onIncrease func(), onDecrease func(n int)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if onIncrease != nil {
		s.onIncrease = onIncrease
	}
	if onDecrease != nil {
		s.onDecrease = onDecrease
	}
}

// Pop allocates the smallest available id, or returns ok=false when the
// protocol maximum is already in flight.
func (s *Stack) Pop() (id int, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for pi, p := range s.pages {
		if idx := firstFree(p.free); idx >= 0 {
			p.free[idx] = false
			p.inUse++
			p.releaseAt = time.Time{}
			s.inFlight++
			s.active = pi
			s.onIncrease()
			return p.base + idx, true
		}
	}

	if len(s.pages)*pageSize >= s.max {
		return 0, false
	}

	base := len(s.pages) * pageSize
	size := pageSize
	if base+size > s.max {
		size = s.max - base
	}
	p := newPage(base, size)
	p.free[0] = false
	p.inUse = 1
	s.inFlight++
	s.pages = append(s.pages, p)
	s.active = len(s.pages) - 1
	s.onIncrease()
	return base, true
}

func firstFree(free []bool) int {
	for i, f := range free {
		if f {
			return i
		}
	}
	return -1
}

// Push returns id to the pool. Pushing an id that is not currently
// allocated is a programming error (spec.md §4.2 "push is idempotent-free
// double free is a programming error") and is ignored rather than panicking,
// since a defunct connection may push ids it no longer trusts the caller
// to track precisely.
func (s *Stack) Push(id int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pi := id / pageSize
	if pi < 0 || pi >= len(s.pages) {
		return
	}
	p := s.pages[pi]
	idx := id - p.base
	if idx < 0 || idx >= len(p.free) || p.free[idx] {
		return
	}

	p.free[idx] = true
	p.inUse--
	s.inFlight--
	s.onDecrease(1)

	if p.inUse == 0 && pi != s.active {
		p.releaseAt = time.Now().Add(s.releaseDelay)
	}
}

// Clear releases every page, as on connection close.
func (s *Stack) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pages = nil
	s.inFlight = 0
	s.active = 0
}

// InFlight returns the current outstanding id count.
func (s *Stack) InFlight() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inFlight
}

// ReleaseExpiredPages replaces any non-active, fully free page whose release
// timer has elapsed with a fresh page of the same size. The replacement
// holds a bitmap of the same length, so this does not reduce the Stack's
// memory. The pool calls it through Connection.ReleaseIdlePages on each
// heartbeat tick.
func (s *Stack) ReleaseExpiredPages(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, p := range s.pages {
		if i == s.active || p == nil || p.inUse != 0 || p.releaseAt.IsZero() {
			continue
		}
		if now.After(p.releaseAt) {
			// Swap in a fresh page at the same index; pages are
			// addressed by a stable index (id / pageSize) so we cannot
			// compact the slice without renumbering every outstanding id.
			s.pages[i] = newPage(p.base, len(p.free))
		}
	}
}
