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

// Package prepared caches PREPARE results keyed by (keyspace, query text),
// tracks which hosts already hold a given prepared id, and collapses
// concurrent PREPARE calls for the same statement into one in-flight
// request.
package prepared

import (
	"context"
	"sync"

	lru "github.com/hashicorp/golang-lru"
	"golang.org/x/sync/singleflight"

	"github.com/nabbar/wcdb/host"
	"github.com/nabbar/wcdb/protocol"
)

// Entry is one cached prepared statement: its server-assigned id and the
// bind/result metadata needed to build an EXECUTE frame without
// re-parsing the query text.
type Entry struct {
	Query       string
	Keyspace    string
	ID          []byte
	ResultMeta  protocol.RowsMetadata
	ColumnsMeta protocol.RowsMetadata

	mu    sync.Mutex
	hosts map[host.ID]bool // hosts confirmed to hold this id
}

func (e *Entry) markPrepared(id host.ID) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.hosts == nil {
		e.hosts = make(map[host.ID]bool)
	}
	e.hosts[id] = true
}

// IsPreparedOn reports whether id has already seen this statement
// PREPAREd; the request handler uses this to skip a redundant PREPARE
// before EXECUTE on a host it has never talked to.
func (e *Entry) IsPreparedOn(id host.ID) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.hosts[id]
}

// Preparer issues a PREPARE against one host and returns the decoded
// result; the request package's per-host connection plumbing implements
// this so the registry stays free of connection/pool imports.
type Preparer func(ctx context.Context, h *host.Host, query, keyspace string) (protocol.PreparedResult, error)

// Registry is the fingerprint -> Entry cache (spec.md §4.8). Eviction is
// LRU-bounded at Config.MaxPrepared; a statement evicted from the local
// cache is simply re-PREPAREd transparently on next use (the protocol's
// UNPREPARED response path handles the same situation for a server-side
// eviction).
type Registry struct {
	cache *lru.Cache
	group singleflight.Group
}

func New(maxPrepared int) *Registry {
	if maxPrepared <= 0 {
		maxPrepared = 500
	}
	c, _ := lru.New(maxPrepared)
	return &Registry{cache: c}
}

func fingerprint(keyspace, query string) string { return keyspace + "\x00" + query }

// Get returns the cached Entry for (keyspace, query), if any.
func (r *Registry) Get(keyspace, query string) (*Entry, bool) {
	v, ok := r.cache.Get(fingerprint(keyspace, query))
	if !ok {
		return nil, false
	}
	return v.(*Entry), true
}

// PrepareOn ensures query is PREPAREd on h, PREPAREing it there (via
// prepare) if this is the first time this host has seen it, and
// collapsing concurrent callers for the same (keyspace, query, host) into
// a single PREPARE call via singleflight -- spec.md §4.8's "at most one
// PREPARE in flight per fingerprint".
func (r *Registry) PrepareOn(ctx context.Context, h *host.Host, keyspace, query string, prepare Preparer) (*Entry, error) {
	fp := fingerprint(keyspace, query)

	if v, ok := r.cache.Get(fp); ok {
		e := v.(*Entry)
		if e.IsPreparedOn(h.ID()) {
			return e, nil
		}
		if _, err, _ := r.group.Do(fp+"@"+h.ID().String(), func() (any, error) {
			res, err := prepare(ctx, h, query, keyspace)
			if err != nil {
				return nil, err
			}
			e.markPrepared(h.ID())
			e.ID = res.ID
			return nil, nil
		}); err != nil {
			return nil, err
		}
		return e, nil
	}

	v, err, _ := r.group.Do(fp, func() (any, error) {
		res, err := prepare(ctx, h, query, keyspace)
		if err != nil {
			return nil, err
		}
		e := &Entry{Query: query, Keyspace: keyspace, ID: res.ID, ResultMeta: res.ResultMeta, ColumnsMeta: res.ColumnsMeta}
		e.markPrepared(h.ID())
		r.cache.Add(fp, e)
		return e, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Entry), nil
}

// Invalidate drops a cached Entry, called when a server responds
// UNPREPARED for an id the registry believed was still valid.
func (r *Registry) Invalidate(keyspace, query string) {
	r.cache.Remove(fingerprint(keyspace, query))
}

// PrepareOnAllHosts implements Config.PrepareOnAllHosts: eagerly PREPAREs
// every cached statement against a newly-up host, so the first EXECUTE
// against it doesn't pay a PREPARE round trip.
func (r *Registry) PrepareOnAllHosts(ctx context.Context, h *host.Host, prepare Preparer) {
	for _, key := range r.cache.Keys() {
		v, ok := r.cache.Get(key)
		if !ok {
			continue
		}
		e := v.(*Entry)
		if e.IsPreparedOn(h.ID()) {
			continue
		}
		if res, err := prepare(ctx, h, e.Query, e.Keyspace); err == nil {
			e.markPrepared(h.ID())
			e.ID = res.ID
		}
	}
}

// Len reports the current cache size, for metrics.
func (r *Registry) Len() int { return r.cache.Len() }
