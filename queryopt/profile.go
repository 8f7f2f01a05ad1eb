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

// Package queryopt resolves the per-call/profile/default execution options
// named in spec.md §4.11 into one concrete set the request handler consults,
// and holds the named execution-profile registry those layers read from.
package queryopt

import (
	"github.com/nabbar/wcdb/atomic"
	"github.com/nabbar/wcdb/config"
	"github.com/nabbar/wcdb/duration"
)

// DefaultProfileName names the profile consulted when a call names none
// explicitly, per spec.md §4.11's resolution order.
const DefaultProfileName = "default"

// ExecutionProfile bundles the policy and option defaults spec.md §4.11
// groups under a name: load balancing, retry, speculative execution,
// consistency, serial consistency, read timeout. GraphOptions is an opaque
// passthrough bag consumed only by the out-of-scope graph adapter named in
// SPEC_FULL.md's DATA MODEL addendum; the core never reads it.
type ExecutionProfile struct {
	Name string

	LoadBalancing        config.LoadBalancingPolicy
	Retry                config.RetryPolicy
	SpeculativeExecution config.SpeculativeExecutionPolicy

	Consistency       *config.Consistency
	SerialConsistency *config.Consistency
	ReadTimeout       *duration.Duration

	GraphOptions map[string]any
}

// Profiles is a concurrency-safe named registry of execution profiles,
// backed by the teacher's generic sync.Map wrapper so the facade can add
// or look up profiles from multiple goroutines without its own locking.
type Profiles struct {
	m atomic.MapTyped[string, *ExecutionProfile]
}

// NewProfiles returns an empty profile registry.
func NewProfiles() *Profiles {
	return &Profiles{m: atomic.NewMapTyped[string, *ExecutionProfile]()}
}

// Register adds or replaces the named profile.
func (p *Profiles) Register(profile *ExecutionProfile) {
	if profile == nil || profile.Name == "" {
		return
	}
	p.m.Store(profile.Name, profile)
}

// Get looks up a profile by name.
func (p *Profiles) Get(name string) (*ExecutionProfile, bool) {
	return p.m.Load(name)
}

// Resolved is the fully-merged set of per-query knobs the request handler
// consults; every field is concrete, with no further "inherit" sentinel.
type Resolved struct {
	LoadBalancing        config.LoadBalancingPolicy
	Retry                config.RetryPolicy
	SpeculativeExecution config.SpeculativeExecutionPolicy
	Consistency          config.Consistency
	SerialConsistency    config.Consistency
	ReadTimeout          duration.Duration
}

// Resolve implements spec.md §4.11's order: per-call option, then the named
// profile (if any), then the registry's default profile, then cfg's
// built-in defaults. profileName may be empty, meaning "use the default
// profile directly". profiles or call may be nil.
func Resolve(cfg *config.Config, profiles *Profiles, profileName string, call *config.QueryOptions) Resolved {
	var out = Resolved{
		LoadBalancing:        cfg.Policies.LoadBalancing,
		Retry:                cfg.Policies.Retry,
		SpeculativeExecution: cfg.Policies.SpeculativeExecution,
		Consistency:          cfg.QueryOptions.Consistency,
		SerialConsistency:    cfg.QueryOptions.SerialConsistency,
		ReadTimeout:          cfg.QueryOptions.ReadTimeout,
	}

	if profiles != nil {
		if def, ok := profiles.Get(DefaultProfileName); ok {
			applyProfile(&out, def)
		}
		if profileName != "" && profileName != DefaultProfileName {
			if named, ok := profiles.Get(profileName); ok {
				applyProfile(&out, named)
			}
		}
	}

	if call != nil {
		if call.Consistency != 0 {
			out.Consistency = call.Consistency
		}
		if call.SerialConsistency != 0 {
			out.SerialConsistency = call.SerialConsistency
		}
		if call.ReadTimeout != 0 {
			out.ReadTimeout = call.ReadTimeout
		}
	}

	return out
}

func applyProfile(out *Resolved, p *ExecutionProfile) {
	if p.LoadBalancing != nil {
		out.LoadBalancing = p.LoadBalancing
	}
	if p.Retry != nil {
		out.Retry = p.Retry
	}
	if p.SpeculativeExecution != nil {
		out.SpeculativeExecution = p.SpeculativeExecution
	}
	if p.Consistency != nil {
		out.Consistency = *p.Consistency
	}
	if p.SerialConsistency != nil {
		out.SerialConsistency = *p.SerialConsistency
	}
	if p.ReadTimeout != nil {
		out.ReadTimeout = *p.ReadTimeout
	}
}
