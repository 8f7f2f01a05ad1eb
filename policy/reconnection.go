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
	"time"

	"github.com/nabbar/wcdb/duration"
)

// ExponentialReconnectionPolicy doubles the delay each attempt, from
// BaseDelay up to MaxDelay.
type ExponentialReconnectionPolicy struct {
	BaseDelay duration.Duration
	MaxDelay  duration.Duration
}

func NewExponentialReconnection(base, max duration.Duration) *ExponentialReconnectionPolicy {
	return &ExponentialReconnectionPolicy{BaseDelay: base, MaxDelay: max}
}

func (p *ExponentialReconnectionPolicy) NextDelay(attempt int) duration.Duration {
	base := p.BaseDelay.Time()
	if base <= 0 {
		base = time.Second
	}
	max := p.MaxDelay.Time()
	if max <= 0 {
		max = time.Minute
	}

	d := base
	for i := 0; i < attempt && d < max; i++ {
		d *= 2
	}
	if d > max {
		d = max
	}
	return duration.ParseDuration(d)
}

// ConstantReconnectionPolicy always waits the same delay between probes.
type ConstantReconnectionPolicy struct {
	Delay duration.Duration
}

func NewConstantReconnection(delay duration.Duration) *ConstantReconnectionPolicy {
	return &ConstantReconnectionPolicy{Delay: delay}
}

func (p *ConstantReconnectionPolicy) NextDelay(int) duration.Duration { return p.Delay }
