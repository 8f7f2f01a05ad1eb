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
	"github.com/nabbar/wcdb/config"
)

// DefaultRetryPolicy retries once on the same host after a read timeout
// (whatever the statement's idempotence), once on the same host after a
// write timeout of an idempotent statement, once on the next host after an
// unavailable error, and once on the next host after a request error of an
// idempotent statement; every other case declines, leaving the caller's
// original error as the signal. It does not look at how many replicas
// replied, whether data was present, or the write type: the RetryPolicy
// methods receive only the retry count and the idempotence flag.
type DefaultRetryPolicy struct{}

func NewDefaultRetry() *DefaultRetryPolicy { return &DefaultRetryPolicy{} }

func (DefaultRetryPolicy) OnReadTimeout(retryCount int, _ bool) config.RetryDecision {
	if retryCount == 0 {
		return config.RetrySameHost
	}
	return config.RetryDecline
}

func (DefaultRetryPolicy) OnWriteTimeout(retryCount int, isIdempotent bool) config.RetryDecision {
	if retryCount == 0 && isIdempotent {
		return config.RetrySameHost
	}
	return config.RetryDecline
}

func (DefaultRetryPolicy) OnUnavailable(retryCount int, _ bool) config.RetryDecision {
	if retryCount == 0 {
		return config.RetryNextHost
	}
	return config.RetryDecline
}

func (DefaultRetryPolicy) OnRequestError(retryCount int, isIdempotent bool) config.RetryDecision {
	if retryCount == 0 && isIdempotent {
		return config.RetryNextHost
	}
	return config.RetryDecline
}

// FallthroughRetryPolicy never retries; useful for callers who want every
// error surfaced unmodified (e.g. to drive their own outer retry loop).
type FallthroughRetryPolicy struct{}

func (FallthroughRetryPolicy) OnReadTimeout(int, bool) config.RetryDecision    { return config.RetryDecline }
func (FallthroughRetryPolicy) OnWriteTimeout(int, bool) config.RetryDecision   { return config.RetryDecline }
func (FallthroughRetryPolicy) OnUnavailable(int, bool) config.RetryDecision    { return config.RetryDecline }
func (FallthroughRetryPolicy) OnRequestError(int, bool) config.RetryDecision   { return config.RetryDecline }
