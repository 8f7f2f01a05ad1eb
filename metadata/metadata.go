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

// Package metadata holds the cluster's topology and schema snapshot: the
// token ring, each keyspace's replication strategy, and its tables, as
// published by the control link after a system.local/system.peers/
// system_schema scan or a topology/schema push event. The Keyspace type
// also has fields for views, user types, functions and aggregates; the
// control link's schema scan leaves them empty. Readers see an
// atomically-swapped snapshot; the control link is the only writer.
package metadata

import (
	lru "github.com/hashicorp/golang-lru"

	"github.com/nabbar/wcdb/atomic"
	"github.com/nabbar/wcdb/host"
	"github.com/nabbar/wcdb/routing"
)

// Column describes one table/view column.
type Column struct {
	Name       string
	Type       string
	Kind       string // "partition_key", "clustering", "regular", "static"
	Position   int
}

// Table describes one table's column layout and the partition-key column
// order needed to build a routing key for a statement against it.
type Table struct {
	Keyspace       string
	Name           string
	Columns        []Column
	PartitionKeys  []string // column names, in component order
}

// MaterializedView is a Table with a base-table back-reference.
type MaterializedView struct {
	Table
	BaseTable string
}

// UserType is a keyspace-scoped composite type definition.
type UserType struct {
	Keyspace string
	Name     string
	Fields   []Column
}

// Function is a scalar or aggregate-state user-defined function.
type Function struct {
	Keyspace  string
	Name      string
	Arguments []string
	ReturnType string
	Body      string
	Language  string
}

// Aggregate is a user-defined aggregate, referencing its state/final
// functions by name.
type Aggregate struct {
	Keyspace   string
	Name       string
	Arguments  []string
	StateFunc  string
	FinalFunc  string
	ReturnType string
}

// Keyspace bundles one keyspace's replication strategy with its schema
// objects.
type Keyspace struct {
	Name             string
	DurableWrites    bool
	Strategy         routing.Strategy
	Tables           map[string]*Table
	Views            map[string]*MaterializedView
	Types            map[string]*UserType
	Functions        map[string]*Function
	Aggregates       map[string]*Aggregate
}

// Snapshot is one immutable, point-in-time view of the cluster's topology
// and schema. A new Snapshot replaces the old one wholesale on every
// control-link refresh; nothing ever mutates a Snapshot in place.
type Snapshot struct {
	Partitioner string
	Ring        *routing.Ring
	Keyspaces   map[string]*Keyspace
}

// Cache is the shared, read-mostly holder of the current Snapshot plus an
// LRU of recently-resolved (keyspace, routingKey)->replicas lookups, since
// routing.GetReplicas re-walks the ring on every call and request rate
// for a hot partition range can be high.
type Cache struct {
	snapshot atomic.Value[*Snapshot]
	replicaCache *lru.Cache
}

// New constructs an empty Cache; call Update once the control link has
// completed its initial discovery.
func New(replicaCacheSize int) *Cache {
	if replicaCacheSize <= 0 {
		replicaCacheSize = 4096
	}
	c, _ := lru.New(replicaCacheSize)
	return &Cache{snapshot: atomic.NewValue[*Snapshot](), replicaCache: c}
}

// Update atomically replaces the cached Snapshot. The caller (control
// link) is responsible for invalidating the replica-resolution cache
// whenever topology or a keyspace's strategy actually changed; a plain
// schema-only change (new table, new UDT) does not need to.
func (c *Cache) Update(s *Snapshot) {
	c.snapshot.Store(s)
}

// InvalidateReplicaCache drops every cached replica-resolution result,
// called by the control link after a topology change or an ALTER
// KEYSPACE statement changes a replication strategy.
func (c *Cache) InvalidateReplicaCache() {
	c.replicaCache.Purge()
}

func (c *Cache) Snapshot() *Snapshot {
	return c.snapshot.Load()
}

func (c *Cache) Keyspace(name string) (*Keyspace, bool) {
	s := c.Snapshot()
	if s == nil {
		return nil, false
	}
	ks, ok := s.Keyspaces[name]
	return ks, ok
}

func (c *Cache) Table(keyspace, table string) (*Table, bool) {
	ks, ok := c.Keyspace(keyspace)
	if !ok {
		return nil, false
	}
	t, ok := ks.Tables[table]
	return t, ok
}

type replicaCacheKey struct {
	keyspace string
	key      string
}

// GetReplicas resolves the ordered replica set for a keyspace/routingKey
// pair against hosts, returning nil when the keyspace or the ring itself is
// unknown. Resolver wraps it to satisfy policy.ReplicaResolver.
func (c *Cache) GetReplicas(keyspace string, routingKey []byte, hosts *host.Map) []*host.Host {
	s := c.Snapshot()
	if s == nil || s.Ring == nil {
		return nil
	}
	ks, ok := s.Keyspaces[keyspace]
	if !ok {
		return nil
	}

	ck := replicaCacheKey{keyspace: keyspace, key: string(routingKey)}
	if v, ok := c.replicaCache.Get(ck); ok {
		return v.([]*host.Host)
	}

	tk := s.Ring.Tokenizer().Hash(routingKey)
	byID := make(map[host.ID]*host.Host)
	for _, h := range hosts.All() {
		byID[h.ID()] = h
	}

	replicas := routing.GetReplicas(s.Ring, ks.Strategy, tk, byID)
	c.replicaCache.Add(ck, replicas)
	return replicas
}

// Resolver adapts a Cache to policy.ReplicaResolver's (keyspace,
// routingKey)-only signature by closing over the live host.Map, so the
// token-aware load-balancing policy doesn't need to know about host.Map at
// all.
type Resolver struct {
	Cache *Cache
	Hosts *host.Map
}

func (r Resolver) GetReplicas(keyspace string, routingKey []byte) []*host.Host {
	return r.Cache.GetReplicas(keyspace, routingKey, r.Hosts)
}
