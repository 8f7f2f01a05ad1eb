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

// Consistency is the consistency level requested for a query, as carried on
// the wire by QUERY/EXECUTE/BATCH frames. Values match the native protocol's
// [consistency] short.
type Consistency uint16

// Values match the native protocol's [consistency] wire encoding exactly,
// so a Consistency can be written straight into a frame with no translation
// table. One consequence: ConsistencyAny is numerically zero, the same as
// the Go zero value used elsewhere (QueryOptions.Consistency, per-call
// Resolve merging) to mean "not set, inherit the layer below". A caller who
// genuinely wants ANY at the per-call layer must set it on a named
// execution profile instead, where the override is carried as a pointer.
const (
	ConsistencyAny Consistency = iota
	ConsistencyOne
	ConsistencyTwo
	ConsistencyThree
	ConsistencyQuorum
	ConsistencyAll
	ConsistencyLocalQuorum
	ConsistencyEachQuorum
	ConsistencySerial
	ConsistencyLocalSerial
	ConsistencyLocalOne
)

func (c Consistency) String() string {
	switch c {
	case ConsistencyAny:
		return "ANY"
	case ConsistencyOne:
		return "ONE"
	case ConsistencyTwo:
		return "TWO"
	case ConsistencyThree:
		return "THREE"
	case ConsistencyQuorum:
		return "QUORUM"
	case ConsistencyAll:
		return "ALL"
	case ConsistencyLocalQuorum:
		return "LOCAL_QUORUM"
	case ConsistencyEachQuorum:
		return "EACH_QUORUM"
	case ConsistencySerial:
		return "SERIAL"
	case ConsistencyLocalSerial:
		return "LOCAL_SERIAL"
	case ConsistencyLocalOne:
		return "LOCAL_ONE"
	default:
		return "UNKNOWN"
	}
}

// IsSerial reports whether the level is one of the two serial consistencies,
// valid only in the serialConsistency slot of a lightweight-transaction request.
func (c Consistency) IsSerial() bool {
	return c == ConsistencySerial || c == ConsistencyLocalSerial
}

// HostDistance classifies a host relative to the client's local datacenter,
// per spec.md's Host invariant: distance=ignored implies an empty pool.
type HostDistance uint8

const (
	DistanceLocal HostDistance = iota
	DistanceRemote
	DistanceIgnored
)

func (d HostDistance) String() string {
	switch d {
	case DistanceLocal:
		return "local"
	case DistanceRemote:
		return "remote"
	case DistanceIgnored:
		return "ignored"
	default:
		return "unknown"
	}
}
