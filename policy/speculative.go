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

package policy

import (
	"github.com/nabbar/wcdb/duration"
)

// ConstantSpeculativeExecutionPolicy starts up to MaxAttempts-1 additional
// siblings, Interval apart, for an idempotent query still awaiting a
// response.
type ConstantSpeculativeExecutionPolicy struct {
	Interval    duration.Duration
	MaxAttempts int
}

func NewConstantSpeculative(interval duration.Duration, maxAttempts int) *ConstantSpeculativeExecutionPolicy {
	return &ConstantSpeculativeExecutionPolicy{Interval: interval, MaxAttempts: maxAttempts}
}

// Delay returns the wait before the nth (1-based) speculative sibling, or
// a negative Duration when n >= MaxAttempts, that is once MaxAttempts-1
// siblings have already been started.
func (p *ConstantSpeculativeExecutionPolicy) Delay(n int) duration.Duration {
	if n >= p.MaxAttempts {
		return duration.ParseDuration(-1)
	}
	return p.Interval
}

// NoSpeculativeExecutionPolicy disables speculative execution; every call
// asks the caller to stop. This is config.Policies.SpeculativeExecution's
// implicit default when left nil, exposed as a concrete type for callers
// that want to name it explicitly.
type NoSpeculativeExecutionPolicy struct{}

func (NoSpeculativeExecutionPolicy) Delay(int) duration.Duration { return duration.ParseDuration(-1) }
