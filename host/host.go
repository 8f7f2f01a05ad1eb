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

// Package host models one coordinator node: its endpoint, topology
// position, distance classification, and up/down status (spec.md §3). A
// Host is created on contact-point bootstrap or a topology event and
// removed only when the control link reports removal (spec.md §3); this
// package does not itself decide creation/removal, it is the record type
// the control link and host map operate on.
package host

import (
	"net"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/nabbar/wcdb/config"
)

// ID uniquely identifies a Host independent of its address, so an
// AddressTranslator rewrite or a NAT re-map never orphans routing-key
// caches or prepared-statement per-host sets keyed on it (SPEC_FULL.md
// DATA MODEL addendum).
type ID uuid.UUID

func NewID() ID { return ID(uuid.New()) }

func (i ID) String() string { return uuid.UUID(i).String() }

// Status is the up/down classification spec.md §3 assigns a Host.
type Status int32

const (
	StatusUp Status = iota
	StatusDown
)

func (s Status) String() string {
	if s == StatusUp {
		return "up"
	}
	return "down"
}

// Pool is the minimal contract Host needs from its connection pool,
// declared here (rather than importing package pool) to break the
// host<->pool cyclic reference spec.md §9 calls out: pool owns its
// connections and implements this; host only ever calls through it.
type Pool interface {
	Close()
	Size() int
}

// Host is immutable for its identity fields (ID, Endpoint) and
// concurrency-safe for the mutable ones (DC/Rack/Version on
// AddressTranslator rewrite or topology refresh, Distance, Status, Pool).
type Host struct {
	id       ID
	endpoint *net.TCPAddr

	datacenter atomic.Value // string
	rack       atomic.Value // string
	version    atomic.Value // string, the server's release_version

	distance atomic.Int32 // config.HostDistance
	status   atomic.Int32 // Status

	pool atomic.Value // Pool, nil until attached
}

// New constructs a Host at distance=ignored/status=up with no pool
// attached; the caller (control link / load-balancing policy) sets
// distance and attaches a pool once it decides the host is reachable.
func New(endpoint *net.TCPAddr, datacenter, rack, version string) *Host {
	h := &Host{id: NewID(), endpoint: endpoint}
	h.distance.Store(int32(config.DistanceIgnored))
	h.status.Store(int32(StatusUp))
	h.datacenter.Store(datacenter)
	h.rack.Store(rack)
	h.version.Store(version)
	return h
}

func (h *Host) ID() ID                { return h.id }
func (h *Host) Endpoint() *net.TCPAddr { return h.endpoint }
func (h *Host) Datacenter() string    { return h.datacenter.Load().(string) }
func (h *Host) Rack() string          { return h.rack.Load().(string) }
func (h *Host) ServerVersion() string { return h.version.Load().(string) }

func (h *Host) SetTopology(datacenter, rack, version string) {
	h.datacenter.Store(datacenter)
	h.rack.Store(rack)
	h.version.Store(version)
}

func (h *Host) Distance() config.HostDistance {
	return config.HostDistance(h.distance.Load())
}

// SetDistance enforces spec.md §3's invariant: distance=ignored implies an
// empty pool. Setting DistanceIgnored detaches (but does not itself close)
// any attached pool; the caller is responsible for closing it first if a
// live pool is being demoted to ignored.
func (h *Host) SetDistance(d config.HostDistance) {
	h.distance.Store(int32(d))
	if d == config.DistanceIgnored {
		h.pool.Store(&poolBox{})
	}
}

func (h *Host) Status() Status { return Status(h.status.Load()) }

func (h *Host) SetStatus(s Status) { h.status.Store(int32(s)) }

// poolBox boxes a possibly-nil Pool so atomic.Value (which rejects storing
// inconsistent concrete types, including nil interface values) can hold it.
type poolBox struct{ p Pool }

func (h *Host) SetPool(p Pool) {
	if h.Distance() == config.DistanceIgnored && p != nil {
		panic("host: cannot attach a pool to a distance=ignored host")
	}
	h.pool.Store(&poolBox{p: p})
}

func (h *Host) Pool() Pool {
	v := h.pool.Load()
	if v == nil {
		return nil
	}
	return v.(*poolBox).p
}

func (h *Host) String() string {
	return h.endpoint.String() + "@" + h.datacenter.Load().(string)
}
