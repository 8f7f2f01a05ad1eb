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

package host

import (
	"net"

	"github.com/nabbar/wcdb/atomic"
)

// Map is the client's single source of truth for discovered hosts
// (spec.md §5 "shared resources: the host map, mutated only by the
// control link"). Request handlers read a snapshot via All(); the control
// link is the only writer.
type Map struct {
	byID   atomic.MapTyped[ID, *Host]
	byAddr atomic.MapTyped[string, *Host]

	add  []func(*Host)
	up   []func(*Host)
	down []func(*Host)
}

func NewMap() *Map {
	return &Map{
		byID:   atomic.NewMapTyped[ID, *Host](),
		byAddr: atomic.NewMapTyped[string, *Host](),
	}
}

// OnUp/OnDown register observers fired when a host transitions, expressed
// as a plain observer list. Observers run synchronously, in registration
// order, on the goroutine that calls MarkUp/MarkDown (or Add, for OnAdd):
// the map waits for each one to return. An observer that must not hold up
// the caller hands its work to its own goroutine.
func (m *Map) OnUp(fn func(*Host))   { m.up = append(m.up, fn) }
func (m *Map) OnDown(fn func(*Host)) { m.down = append(m.down, fn) }

// OnAdd registers an observer fired when Add sees an address it has never
// held a Host for before -- the facade uses this to attach and warm a
// connection pool to a host discovered after the initial bootstrap scan,
// without needing to diff successive All() snapshots itself.
func (m *Map) OnAdd(fn func(*Host)) { m.add = append(m.add, fn) }

// Add registers a discovered host, keyed by both ID and address. A host
// whose address the map already holds is treated as a topology-refresh
// replacement of the prior record (OnAdd does not fire again for it).
func (m *Map) Add(h *Host) {
	_, existed := m.byAddr.Load(h.Endpoint().String())
	m.byID.Store(h.ID(), h)
	m.byAddr.Store(h.Endpoint().String(), h)
	if !existed {
		for _, fn := range m.add {
			fn(h)
		}
	}
}

// Remove drops a host the control link has reported as removed from the
// ring. The caller is responsible for closing its pool first.
func (m *Map) Remove(id ID) {
	if h, ok := m.byID.Load(id); ok {
		m.byAddr.Delete(h.Endpoint().String())
	}
	m.byID.Delete(id)
}

func (m *Map) Get(id ID) (*Host, bool) { return m.byID.Load(id) }

func (m *Map) GetByAddr(addr *net.TCPAddr) (*Host, bool) {
	return m.byAddr.Load(addr.String())
}

// All returns a point-in-time snapshot, safe for a request handler to
// iterate without holding any lock (spec.md §5).
func (m *Map) All() []*Host {
	var out []*Host
	m.byID.Range(func(_ ID, h *Host) bool {
		out = append(out, h)
		return true
	})
	return out
}

// MarkUp transitions a host to up and fans the transition out to
// observers (the facade's observer updates the open-connections metric).
func (m *Map) MarkUp(h *Host) {
	if h.Status() == StatusUp {
		return
	}
	h.SetStatus(StatusUp)
	for _, fn := range m.up {
		fn(h)
	}
}

// MarkDown transitions a host to down and fans the transition out to
// observers (the facade's observer zeroes the open-connections metric).
func (m *Map) MarkDown(h *Host) {
	if h.Status() == StatusDown {
		return
	}
	h.SetStatus(StatusDown)
	for _, fn := range m.down {
		fn(h)
	}
}
