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

// Package policy provides the built-in decision points config.Policies
// names: load balancing, retry, reconnection and speculative execution.
// Each type here satisfies the corresponding interface declared in
// package config without config importing host or routing, keeping the
// object graph acyclic.
package policy

import (
	"sync/atomic"

	"github.com/nabbar/wcdb/host"
	"github.com/nabbar/wcdb/routing"
)

// Planner is the richer contract the request handler actually drives;
// config.LoadBalancingPolicy only promises Name() so config stays free of
// the host/routing import. Every policy below satisfies both.
type Planner interface {
	Name() string
	// NewPlan returns the ordered candidate hosts for one request. routingKey
	// may be nil when the query carries no partition key (e.g. a DDL
	// statement), in which case token-awareness is skipped.
	NewPlan(keyspace string, routingKey []byte) []*host.Host
}

// TokenAwarePolicy wraps a DC-aware round-robin child policy: when a
// routing key and the keyspace's replica set are both available it tries
// the replicas first (in the order the resolver returns them), then falls
// back to the child's full plan for the remaining hosts.
type TokenAwarePolicy struct {
	child     *RoundRobinPolicy
	resolver  ReplicaResolver
}

// ReplicaResolver is the thin seam into the metadata/routing caches a
// TokenAwarePolicy consults; the metadata package implements this by
// wrapping its per-keyspace Ring and Strategy lookups.
type ReplicaResolver interface {
	GetReplicas(keyspace string, routingKey []byte) []*host.Host
}

func NewTokenAware(child *RoundRobinPolicy, resolver ReplicaResolver) *TokenAwarePolicy {
	return &TokenAwarePolicy{child: child, resolver: resolver}
}

func (p *TokenAwarePolicy) Name() string { return "TokenAwarePolicy(" + p.child.Name() + ")" }

func (p *TokenAwarePolicy) NewPlan(keyspace string, routingKey []byte) []*host.Host {
	full := p.child.NewPlan(keyspace, routingKey)
	if routingKey == nil || p.resolver == nil {
		return full
	}

	replicas := p.resolver.GetReplicas(keyspace, routingKey)
	if len(replicas) == 0 {
		return full
	}

	replicaSet := make(map[host.ID]bool, len(replicas))
	for _, h := range replicas {
		replicaSet[h.ID()] = true
	}

	plan := make([]*host.Host, 0, len(full))
	plan = append(plan, replicas...)
	for _, h := range full {
		if !replicaSet[h.ID()] {
			plan = append(plan, h)
		}
	}
	return plan
}

// RoundRobinPolicy is the DC-aware round-robin policy: every up host in
// localDC is tried before any up host of another datacenter, round-robin
// within each tier, starting from a rotating cursor so repeated calls don't
// always favor the same host first. Hosts that are not up are left out.
type RoundRobinPolicy struct {
	hosts *host.Map
	localDC string
	cursor  atomic.Uint64
}

func NewRoundRobin(hosts *host.Map, localDC string) *RoundRobinPolicy {
	return &RoundRobinPolicy{hosts: hosts, localDC: localDC}
}

func (p *RoundRobinPolicy) Name() string { return "DCAwareRoundRobinPolicy" }

func (p *RoundRobinPolicy) NewPlan(_ string, _ []byte) []*host.Host {
	all := p.hosts.All()

	var local, remote []*host.Host
	for _, h := range all {
		if h.Status() != host.StatusUp {
			continue
		}
		if h.Datacenter() == p.localDC {
			local = append(local, h)
		} else {
			remote = append(remote, h)
		}
	}

	start := int(p.cursor.Add(1))
	rotate(local, start)
	rotate(remote, start)

	plan := make([]*host.Host, 0, len(local)+len(remote))
	plan = append(plan, local...)
	plan = append(plan, remote...)
	return plan
}

func rotate(hosts []*host.Host, start int) {
	n := len(hosts)
	if n == 0 {
		return
	}
	off := start % n
	if off == 0 {
		return
	}
	tmp := make([]*host.Host, n)
	for i := range hosts {
		tmp[i] = hosts[(i+off)%n]
	}
	copy(hosts, tmp)
}

// partitionerFor returns the tokenizer for a partitioner name through
// routing.ForPartitioner. It is unexported and has no caller in this package.
func partitionerFor(name string) routing.Tokenizer {
	return routing.ForPartitioner(name)
}
