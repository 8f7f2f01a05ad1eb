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

// Package protocol implements the native protocol's frame codec: header
// encoding/decoding, body primitive readers/writers, and the pluggable
// compression seam. It knows nothing about hosts, pools, or retries --
// those layers build frames and hand the bytes here.
package protocol

// Version is the native protocol version negotiated at STARTUP. The wire
// encoding of the stream id (1 vs 2 bytes) and the maximum number of
// concurrent stream ids both key off this value.
type Version uint8

const (
	V1 Version = 1
	V2 Version = 2
	V3 Version = 3
	V4 Version = 4
	V5 Version = 5

	// MinVersion is the floor the connection's STARTUP retry loop never
	// goes below (spec.md §4.3).
	MinVersion = V1
	// MaxVersion is the highest version this driver proposes absent a
	// config.ProtocolOptions.MaxVersion override.
	MaxVersion = V5
)

// StreamIDBytes returns the wire width of the stream id field for this
// version: 1 byte for v1/v2, 2 bytes for v3+.
func (v Version) StreamIDBytes() int {
	if v <= V2 {
		return 1
	}
	return 2
}

// MaxStreamIDs returns the protocol maximum number of concurrently
// in-flight stream ids for this version (spec.md §8 property 2).
func (v Version) MaxStreamIDs() int {
	if v <= V2 {
		return 128
	}
	return 32768
}

// Features reports the capability flags that depend only on the
// negotiated version (spec.md §9 "protocol version per connection").
type Features struct {
	SupportsNamedParams        bool
	SupportsKeyspaceInRequest  bool
	SupportsContinuousPaging   bool
	SupportsPerRequestPayload  bool
}

// FeaturesFor computes the feature set for a negotiated version. Computed
// once at STARTUP and carried on the connection as a tagged variant per
// spec.md §9, rather than re-derived on every frame.
func FeaturesFor(v Version) Features {
	return Features{
		SupportsNamedParams:       v >= V2,
		SupportsKeyspaceInRequest: v >= V5,
		SupportsContinuousPaging:  v >= V5,
		SupportsPerRequestPayload: v >= V4,
	}
}
