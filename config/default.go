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
	"time"

	"github.com/nabbar/wcdb/duration"
)

const (
	DefaultPort                          = 9042
	DefaultMaxSchemaAgreementWaitSeconds = 10
	DefaultHeartBeatIntervalSeconds      = 30
	DefaultCoreConnectionsLocal          = 2
	DefaultCoreConnectionsRemote         = 1
	DefaultMaxRequestsPerConnectionV3    = 2048
	DefaultMaxRequestsPerConnectionV1V2  = 128
	DefaultConnectTimeoutSeconds         = 5
	DefaultReadTimeoutMillis             = 12000
	DefaultDefunctReadTimeoutThreshold   = 64
	DefaultCoalescingThreshold           = 8000
	DefaultFetchSize                     = 5000
	DefaultRefreshSchemaDelaySeconds     = 1
	DefaultMaxPrepared                   = 500
	DefaultWarmupConcurrency             = 32
)

// Default returns a Config populated with every documented default from
// spec.md §6. Callers overwrite ContactPoints (required) and whatever else
// their deployment needs before calling Validate.
func Default() *Config {
	return &Config{
		ContactPoints:   nil,
		LocalDataCenter: "",
		Keyspace:        "",
		Credentials:     nil,

		ProtocolOptions: ProtocolOptions{
			Port:                          DefaultPort,
			MaxSchemaAgreementWaitSeconds: duration.Seconds(DefaultMaxSchemaAgreementWaitSeconds),
			MaxVersion:                    0,
			NoCompact:                     false,
		},

		Pooling: Pooling{
			HeartBeatInterval: duration.Seconds(DefaultHeartBeatIntervalSeconds),
			CoreConnectionsPerHost: map[HostDistance]int{
				DistanceLocal:  DefaultCoreConnectionsLocal,
				DistanceRemote: DefaultCoreConnectionsRemote,
			},
			MaxRequestsPerConnection: map[HostDistance]int{
				DistanceLocal:  DefaultMaxRequestsPerConnectionV3,
				DistanceRemote: DefaultMaxRequestsPerConnectionV3,
			},
			Warmup: true,
		},

		SocketOptions: SocketOptions{
			ConnectTimeout:              duration.Seconds(DefaultConnectTimeoutSeconds),
			ReadTimeout:                 duration.ParseDuration(DefaultReadTimeoutMillis * time.Millisecond),
			DefunctReadTimeoutThreshold: DefaultDefunctReadTimeoutThreshold,
			KeepAlive:                   true,
			KeepAliveDelay:              duration.Seconds(0),
			TCPNoDelay:                  true,
			CoalescingThreshold:         DefaultCoalescingThreshold,
		},

		Policies: Policies{
			LoadBalancing:        nil,
			Retry:                nil,
			Reconnection:         nil,
			AddressResolution:    IdentityAddressTranslator(),
			SpeculativeExecution: nil,
			TimestampGeneration:  nil,
			AuthProvider:         nil,
		},

		QueryOptions: QueryOptions{
			Consistency:       ConsistencyLocalQuorum,
			SerialConsistency: ConsistencySerial,
			FetchSize:         DefaultFetchSize,
			AutoPage:          true,
			IsIdempotent:      false,
			Prepare:           true,
		},

		RefreshSchemaDelay:    duration.Seconds(DefaultRefreshSchemaDelaySeconds),
		IsMetadataSyncEnabled: true,
		PrepareOnAllHosts:     true,
		RePrepareOnUp:         true,
		MaxPrepared:           DefaultMaxPrepared,
		WarmupConcurrency:     DefaultWarmupConcurrency,

		SSLOptions: nil,
	}
}
