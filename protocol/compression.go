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

package protocol

// Compressor is the seam spec.md §4.1 describes as "negotiated via STARTUP
// options". The core never hard-wires a concrete algorithm: a caller who
// wants LZ4 or Snappy on the wire supplies an implementation and names it
// in the STARTUP options string map; wiring a specific backend here would
// be guessing at something the spec deliberately leaves pluggable.
type Compressor interface {
	// Name is the STARTUP "COMPRESSION" option value advertised to the
	// server (e.g. "lz4", "snappy").
	Name() string
	Compress(src []byte) ([]byte, error)
	Decompress(src []byte) ([]byte, error)
	// IsIdentity reports whether this Compressor is a no-op, letting
	// frame encode/decode skip the call entirely.
	IsIdentity() bool
}

type identityCompressor struct{}

func (identityCompressor) Name() string                         { return "" }
func (identityCompressor) Compress(src []byte) ([]byte, error)   { return src, nil }
func (identityCompressor) Decompress(src []byte) ([]byte, error) { return src, nil }
func (identityCompressor) IsIdentity() bool                      { return true }

// NoCompression is the default Compressor: STARTUP never advertises a
// COMPRESSION option and frames are never flagged compressed.
func NoCompression() Compressor { return identityCompressor{} }
