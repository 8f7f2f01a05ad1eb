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

// Package config defines the driver's configuration surface: a plain,
// validator-tagged Go struct consumed directly by the client facade, plus
// the named execution-profile overlay described by the resolution order
// "per-call option -> profile -> default profile -> built-in default".
package config

import (
	"github.com/nabbar/wcdb/duration"
)

// Credentials carries a plain username/password pair for PasswordAuthenticator-
// style handshakes. Mutually exclusive with Policies.AuthProvider: Validate
// rejects a Config that sets both.
type Credentials struct {
	Username string `json:"username" yaml:"username" mapstructure:"username" validate:"required_with=Password"`
	Password string `json:"password" yaml:"password" mapstructure:"password" validate:"required_with=Username"`
}

// ProtocolOptions governs wire-level negotiation.
type ProtocolOptions struct {
	// Port is the TCP port every contact point and discovered peer is
	// dialed on, absent a per-host override.
	Port int `json:"port" yaml:"port" mapstructure:"port" validate:"omitempty,min=1,max=65535"`

	// MaxSchemaAgreementWaitSeconds bounds the control link's polling of
	// compareSchemaVersions after a DDL statement.
	MaxSchemaAgreementWaitSeconds duration.Duration `json:"max-schema-agreement-wait-seconds" yaml:"max-schema-agreement-wait-seconds" mapstructure:"max-schema-agreement-wait-seconds"`

	// MaxVersion caps the protocol version proposed at STARTUP; 0 means
	// negotiate the highest version this driver understands.
	MaxVersion uint8 `json:"max-version" yaml:"max-version" mapstructure:"max-version" validate:"omitempty,min=1,max=5"`

	// NoCompact disables the legacy COMPACT STORAGE compatibility mode.
	NoCompact bool `json:"no-compact" yaml:"no-compact" mapstructure:"no-compact"`
}

// Pooling governs per-host connection counts and warmup.
type Pooling struct {
	// HeartBeatInterval is the period between OPTIONS keep-alive frames
	// sent on otherwise-idle connections.
	HeartBeatInterval duration.Duration `json:"heart-beat-interval" yaml:"heart-beat-interval" mapstructure:"heart-beat-interval"`

	// CoreConnectionsPerHost is the fixed connection count maintained per
	// host, keyed by distance. DistanceIgnored is never populated.
	CoreConnectionsPerHost map[HostDistance]int `json:"core-connections-per-host" yaml:"core-connections-per-host" mapstructure:"core-connections-per-host"`

	// MaxRequestsPerConnection bounds in-flight stream ids per connection,
	// keyed by distance.
	MaxRequestsPerConnection map[HostDistance]int `json:"max-requests-per-connection" yaml:"max-requests-per-connection" mapstructure:"max-requests-per-connection"`

	// Warmup eagerly opens the pool of every non-ignored host (local and
	// remote) during connect(), bounded by the facade's warmup concurrency
	// cap. With Warmup false, connect() skips this step; no pool is opened
	// on first use.
	Warmup bool `json:"warmup" yaml:"warmup" mapstructure:"warmup"`
}

// SocketOptions governs the raw TCP transport.
type SocketOptions struct {
	ConnectTimeout              duration.Duration `json:"connect-timeout" yaml:"connect-timeout" mapstructure:"connect-timeout"`
	ReadTimeout                 duration.Duration `json:"read-timeout" yaml:"read-timeout" mapstructure:"read-timeout"`
	DefunctReadTimeoutThreshold int               `json:"defunct-read-timeout-threshold" yaml:"defunct-read-timeout-threshold" mapstructure:"defunct-read-timeout-threshold" validate:"omitempty,min=1"`
	KeepAlive                   bool              `json:"keep-alive" yaml:"keep-alive" mapstructure:"keep-alive"`
	KeepAliveDelay               duration.Duration `json:"keep-alive-delay" yaml:"keep-alive-delay" mapstructure:"keep-alive-delay"`
	TCPNoDelay                  bool              `json:"tcp-no-delay" yaml:"tcp-no-delay" mapstructure:"tcp-no-delay"`

	// CoalescingThreshold is the max number of bytes the write path will
	// buffer before flushing, when frame coalescing is enabled.
	CoalescingThreshold int `json:"coalescing-threshold" yaml:"coalescing-threshold" mapstructure:"coalescing-threshold" validate:"omitempty,min=1"`
}

// Policies bundles the pluggable decision points of the driver. Every field
// may be left nil. Default sets only AddressResolution; Connect fills a nil
// LoadBalancing, Retry or Reconnection with the built-in policy noted in its
// doc comment. The remaining fields stay nil unless the caller sets them.
type Policies struct {
	// LoadBalancing orders candidate hosts. Default: DC-aware round-robin
	// wrapped with token-awareness (see the policy package).
	LoadBalancing LoadBalancingPolicy `json:"-" yaml:"-" mapstructure:"-"`

	// Retry decides whether/where a failed attempt is retried. Default:
	// retry once on timeout when data was present, or on a different host.
	Retry RetryPolicy `json:"-" yaml:"-" mapstructure:"-"`

	// Reconnection produces the probe delay sequence for a down host.
	// Default: exponential backoff.
	Reconnection ReconnectionPolicy `json:"-" yaml:"-" mapstructure:"-"`

	// AddressResolution rewrites discovered peer addresses. Default:
	// identity (no rewriting).
	AddressResolution AddressTranslator `json:"-" yaml:"-" mapstructure:"-"`

	// SpeculativeExecution decides whether to start additional attempts.
	// Default: disabled (nil Delay never called).
	SpeculativeExecution SpeculativeExecutionPolicy `json:"-" yaml:"-" mapstructure:"-"`

	// TimestampGeneration assigns client-side write timestamps. Neither
	// Default nor Connect sets a generator; the field stays nil unless the
	// caller sets it.
	TimestampGeneration TimestampGenerator `json:"-" yaml:"-" mapstructure:"-"`

	// AuthProvider negotiates a custom AUTHENTICATE handshake. Left nil
	// when Credentials is set; the facade builds the default provider
	// from Credentials in that case.
	AuthProvider AuthProvider `json:"-" yaml:"-" mapstructure:"-"`
}

// QueryOptions carries the per-call/per-profile overridable execution
// options named in spec.md §6. A zero value means "inherit" at every layer
// of the §4.11 resolution order except the explicit pointer-typed fields,
// which use nil to mean "inherit" and a non-nil pointer to mean "set".
type QueryOptions struct {
	Consistency       Consistency `json:"consistency" yaml:"consistency" mapstructure:"consistency"`
	SerialConsistency Consistency `json:"serial-consistency" yaml:"serial-consistency" mapstructure:"serial-consistency" validate:"omitempty"`

	FetchSize         int  `json:"fetch-size" yaml:"fetch-size" mapstructure:"fetch-size" validate:"omitempty,min=1"`
	AutoPage          bool `json:"auto-page" yaml:"auto-page" mapstructure:"auto-page"`
	CaptureStackTrace bool `json:"capture-stack-trace" yaml:"capture-stack-trace" mapstructure:"capture-stack-trace"`

	// Prepare requests the query be PREPAREd before EXECUTE rather than
	// sent as a bare QUERY frame.
	Prepare bool `json:"prepare" yaml:"prepare" mapstructure:"prepare"`

	// IsIdempotent gates retry and speculative execution: both are
	// disabled for a query whose IsIdempotent is false, per spec.md §7.
	IsIdempotent bool `json:"is-idempotent" yaml:"is-idempotent" mapstructure:"is-idempotent"`

	PageState      []byte            `json:"page-state,omitempty" yaml:"page-state,omitempty" mapstructure:"page-state"`
	CustomPayload  map[string][]byte `json:"custom-payload,omitempty" yaml:"custom-payload,omitempty" mapstructure:"custom-payload"`
	Hints          [][]string        `json:"hints,omitempty" yaml:"hints,omitempty" mapstructure:"hints"`
	RoutingKey     []byte            `json:"routing-key,omitempty" yaml:"routing-key,omitempty" mapstructure:"routing-key"`
	RoutingIndexes []int             `json:"routing-indexes,omitempty" yaml:"routing-indexes,omitempty" mapstructure:"routing-indexes"`
	RoutingNames   []string          `json:"routing-names,omitempty" yaml:"routing-names,omitempty" mapstructure:"routing-names"`

	Keyspace    string            `json:"keyspace,omitempty" yaml:"keyspace,omitempty" mapstructure:"keyspace"`
	ReadTimeout duration.Duration `json:"read-timeout" yaml:"read-timeout" mapstructure:"read-timeout"`
	Timestamp   int64             `json:"timestamp,omitempty" yaml:"timestamp,omitempty" mapstructure:"timestamp"`
	TraceQuery  bool              `json:"trace-query" yaml:"trace-query" mapstructure:"trace-query"`
}

// Config is the driver's top-level configuration. It is consumed as a typed
// Go struct, never parsed from a file by the core itself: a caller wanting
// file-based configuration marshals into this struct with whatever decoder
// suits their deployment (json/yaml tags are provided for that purpose).
type Config struct {
	ContactPoints    []string `json:"contact-points" yaml:"contact-points" mapstructure:"contact-points" validate:"required,min=1,dive,required"`
	LocalDataCenter  string   `json:"local-data-center" yaml:"local-data-center" mapstructure:"local-data-center"`
	Keyspace         string   `json:"keyspace,omitempty" yaml:"keyspace,omitempty" mapstructure:"keyspace"`

	Credentials *Credentials `json:"credentials,omitempty" yaml:"credentials,omitempty" mapstructure:"credentials" validate:"omitempty"`

	ProtocolOptions ProtocolOptions `json:"protocol-options" yaml:"protocol-options" mapstructure:"protocol-options"`
	Pooling         Pooling         `json:"pooling" yaml:"pooling" mapstructure:"pooling"`
	SocketOptions   SocketOptions   `json:"socket-options" yaml:"socket-options" mapstructure:"socket-options"`
	Policies        Policies        `json:"policies" yaml:"policies" mapstructure:"policies"`
	QueryOptions    QueryOptions    `json:"query-options" yaml:"query-options" mapstructure:"query-options"`

	RefreshSchemaDelay     duration.Duration `json:"refresh-schema-delay" yaml:"refresh-schema-delay" mapstructure:"refresh-schema-delay"`
	IsMetadataSyncEnabled  bool              `json:"is-metadata-sync-enabled" yaml:"is-metadata-sync-enabled" mapstructure:"is-metadata-sync-enabled"`
	PrepareOnAllHosts      bool              `json:"prepare-on-all-hosts" yaml:"prepare-on-all-hosts" mapstructure:"prepare-on-all-hosts"`
	RePrepareOnUp          bool              `json:"re-prepare-on-up" yaml:"re-prepare-on-up" mapstructure:"re-prepare-on-up"`
	MaxPrepared            int               `json:"max-prepared" yaml:"max-prepared" mapstructure:"max-prepared" validate:"omitempty,min=1"`

	// WarmupConcurrency bounds how many host pools connect() opens in
	// parallel during warmup (spec.md §4.12's "e.g. 32 pools in parallel").
	WarmupConcurrency int `json:"warmup-concurrency" yaml:"warmup-concurrency" mapstructure:"warmup-concurrency" validate:"omitempty,min=1"`

	// SSLOptions is opaque to the core: spec.md §6 keeps TLS negotiation
	// mechanics out of scope, so this is carried through to the transport
	// dialer untouched.
	SSLOptions any `json:"-" yaml:"-" mapstructure:"-"`
}
