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

package routing

import (
	"sort"

	"github.com/nabbar/wcdb/host"
)

// StrategyClass names the keyspace replication strategy (spec.md §3
// "replica set").
type StrategyClass int

const (
	StrategySimple StrategyClass = iota
	StrategyNetworkTopology
	StrategyLocal
)

// Strategy is a keyspace's replication strategy, as parsed from
// system_schema.keyspaces by the metadata package.
type Strategy struct {
	Class StrategyClass
	// ReplicationFactor is used for StrategySimple.
	ReplicationFactor int
	// DCReplicationFactor is used for StrategyNetworkTopology, keyed by
	// datacenter name.
	DCReplicationFactor map[string]int
}

// Ring maps the token space to the host that claims each token range's
// start. One Ring exists per cluster (tokens are partitioner-global, not
// per-keyspace); Strategy is applied per keyspace on top of the same Ring.
type Ring struct {
	tokenizer Tokenizer
	tokens    []Token
	owners    []host.ID
}

// NewRing builds a Ring from the (token -> owning host id) assignments
// the control link reads off system.peers/system.local, sorted ascending.
func NewRing(tokenizer Tokenizer, assignments map[string]host.ID) *Ring {
	r := &Ring{tokenizer: tokenizer}
	type pair struct {
		tok Token
		id  host.ID
	}
	pairs := make([]pair, 0, len(assignments))
	for raw, id := range assignments {
		pairs = append(pairs, pair{tok: tokenizer.Hash([]byte(raw)), id: id})
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].tok.CompareTo(pairs[j].tok) < 0 })
	for _, p := range pairs {
		r.tokens = append(r.tokens, p.tok)
		r.owners = append(r.owners, p.id)
	}
	return r
}

// primaryIndex returns the index of the first token >= tk, wrapping to 0
// (spec.md §4.7 "ring order").
func (r *Ring) primaryIndex(tk Token) int {
	idx := sort.Search(len(r.tokens), func(i int) bool { return r.tokens[i].CompareTo(tk) >= 0 })
	if idx == len(r.tokens) {
		idx = 0
	}
	return idx
}

// GetReplicas implements spec.md §4.7's getReplicas: returns the hosts
// responsible for tk in ring order, then appended per the keyspace's
// strategy, for one keyspace's Strategy over this Ring. Returns nil (not
// an error) when the ring has no tokens, matching "returns null when the
// keyspace metadata is unknown" -- the metadata package is what actually
// decides "unknown" and skips calling this at all in that case.
func GetReplicas(r *Ring, strategy Strategy, tk Token, hosts map[host.ID]*host.Host) []*host.Host {
	if r == nil || len(r.tokens) == 0 {
		return nil
	}

	start := r.primaryIndex(tk)

	switch strategy.Class {
	case StrategyNetworkTopology:
		return networkTopologyReplicas(r, strategy.DCReplicationFactor, start, hosts)
	default:
		rf := strategy.ReplicationFactor
		if rf <= 0 {
			rf = 1
		}
		return simpleReplicas(r, rf, start, hosts)
	}
}

func simpleReplicas(r *Ring, rf int, start int, hosts map[host.ID]*host.Host) []*host.Host {
	seen := make(map[host.ID]bool, rf)
	out := make([]*host.Host, 0, rf)

	n := len(r.owners)
	for i := 0; i < n && len(out) < rf; i++ {
		id := r.owners[(start+i)%n]
		if seen[id] {
			continue
		}
		seen[id] = true
		if h, ok := hosts[id]; ok {
			out = append(out, h)
		}
	}
	return out
}

func networkTopologyReplicas(r *Ring, dcRF map[string]int, start int, hosts map[host.ID]*host.Host) []*host.Host {
	remaining := make(map[string]int, len(dcRF))
	total := 0
	for dc, rf := range dcRF {
		remaining[dc] = rf
		total += rf
	}

	seen := make(map[host.ID]bool, total)
	out := make([]*host.Host, 0, total)

	n := len(r.owners)
	for i := 0; i < n && len(out) < total; i++ {
		id := r.owners[(start+i)%n]
		if seen[id] {
			continue
		}
		h, ok := hosts[id]
		if !ok {
			continue
		}
		dc := h.Datacenter()
		left, tracked := remaining[dc]
		if !tracked || left <= 0 {
			continue
		}
		seen[id] = true
		remaining[dc] = left - 1
		out = append(out, h)
	}
	return out
}

// Tokenizer exposes the Ring's partitioner, needed by callers building a
// routing key's Token before calling GetReplicas.
func (r *Ring) Tokenizer() Tokenizer { return r.tokenizer }
