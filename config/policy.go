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

package config

import (
	"context"

	"github.com/nabbar/wcdb/duration"
)

// RetryDecision is returned by a RetryPolicy for a failed attempt.
type RetryDecision uint8

const (
	// RetryDecline surfaces the error to the caller as-is.
	RetryDecline RetryDecision = iota
	// RetrySameHost retries the request against the same host.
	RetrySameHost
	// RetryNextHost retries the request against the next host in the plan.
	RetryNextHost
)

// RetryPolicy decides whether a failed attempt should be retried and where.
// Implementations live outside this package (policy package) so that config
// stays free of the request/host object graph; config only names the
// contract a caller's policy must satisfy.
type RetryPolicy interface {
	// OnReadTimeout is consulted for a server-side ReadTimeout error.
	OnReadTimeout(retryCount int, isIdempotent bool) RetryDecision
	// OnWriteTimeout is consulted for a server-side WriteTimeout error.
	OnWriteTimeout(retryCount int, isIdempotent bool) RetryDecision
	// OnUnavailable is consulted for a server-side Unavailable error.
	OnUnavailable(retryCount int, isIdempotent bool) RetryDecision
	// OnRequestError is consulted for connection-level errors (defunct
	// connection, client-side timeout) encountered before any response.
	OnRequestError(retryCount int, isIdempotent bool) RetryDecision
}

// LoadBalancingPolicy orders candidate hosts for a query plan. HostPlan is
// kept opaque here (declared by the host package) to avoid a config->host
// import cycle; implementations type-assert against the concrete host type
// they were built for.
type LoadBalancingPolicy interface {
	// Name identifies the policy for logging and metrics labels.
	Name() string
}

// ReconnectionPolicy produces the delay sequence used to re-probe a down
// host's pool.
type ReconnectionPolicy interface {
	// NextDelay returns the delay before the (attempt+1)th reconnection try.
	NextDelay(attempt int) duration.Duration
}

// SpeculativeExecutionPolicy decides whether and when to start additional,
// parallel attempts of an idempotent query.
type SpeculativeExecutionPolicy interface {
	// Delay returns the wait before starting the nth (1-based) speculative
	// sibling, or a negative Duration to stop speculating further.
	Delay(n int) duration.Duration
}

// AddressTranslator rewrites a peer address discovered via system.peers
// before a Host is created for it — needed for clusters reachable only
// through NAT/port-forwarding.
type AddressTranslator interface {
	Translate(ctx context.Context, addr string) (string, error)
}

// TimestampGenerator assigns a client-side write timestamp (microseconds
// since the epoch) when the caller does not supply one explicitly.
type TimestampGenerator interface {
	Next() int64
}

// AuthProvider negotiates the AUTHENTICATE/AUTH_CHALLENGE/AUTH_RESPONSE
// handshake for clusters that require it. The default Credentials-based
// provider is constructed internally from Config.Credentials; a caller
// supplying a custom mechanism (LDAP, Kerberos, ...) implements this
// directly.
type AuthProvider interface {
	InitialResponse() ([]byte, error)
	EvaluateChallenge(challenge []byte) (response []byte, err error)
}

// identityTranslator is the default AddressTranslator: it returns the
// address unchanged.
type identityTranslator struct{}

func (identityTranslator) Translate(_ context.Context, addr string) (string, error) {
	return addr, nil
}

// IdentityAddressTranslator returns the no-op AddressTranslator used when
// Config.Policies.AddressResolution is left nil.
func IdentityAddressTranslator() AddressTranslator {
	return identityTranslator{}
}
