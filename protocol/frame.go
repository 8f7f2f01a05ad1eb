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

import (
	"encoding/binary"
	"io"

	liberr "github.com/nabbar/wcdb/errors"
)

// Flags are the header's bit flags (spec.md §4.1).
type Flags uint8

const (
	FlagCompression Flags = 1 << 0
	FlagTracing     Flags = 1 << 1
	FlagCustomPayload Flags = 1 << 2
	FlagWarning     Flags = 1 << 3
	FlagUseBeta     Flags = 1 << 4
)

func (f Flags) Has(bit Flags) bool { return f&bit != 0 }

// Header is the frame header: 9 bytes on v3+, 8 bytes on v1/v2. StreamID is
// kept as an int16 here regardless of the on-wire width; negative values
// are reserved for EVENT push frames (stream id -1 is not used by this
// driver, which always REGISTERs before relying on an owned stream).
type Header struct {
	Version  Version
	Response bool
	Flags    Flags
	StreamID int16
	OpCode   OpCode
	Length   uint32
}

// headerSizeLongStream is the fixed byte width of a v3+ header (1+1+2+1+4);
// headerSizeShortStream is the v1/v2 width (1-byte stream id).
// EncodeHeader/DecodeHeader both branch on Version.StreamIDBytes.
const headerSizeShortStream = 8
const headerSizeLongStream = 9

// EncodeHeader serializes a Header. The top bit of Version distinguishes
// request (0x0_) from response (0x8_) frames on the wire.
func EncodeHeader(h Header) []byte {
	versionByte := uint8(h.Version)
	if h.Response {
		versionByte |= 0x80
	}

	var buf []byte
	if h.Version.StreamIDBytes() == 1 {
		buf = make([]byte, headerSizeShortStream)
		buf[0] = versionByte
		buf[1] = uint8(h.Flags)
		buf[2] = uint8(h.StreamID)
		buf[3] = uint8(h.OpCode)
		binary.BigEndian.PutUint32(buf[4:8], h.Length)
	} else {
		buf = make([]byte, headerSizeLongStream)
		buf[0] = versionByte
		buf[1] = uint8(h.Flags)
		binary.BigEndian.PutUint16(buf[2:4], uint16(h.StreamID))
		buf[4] = uint8(h.OpCode)
		binary.BigEndian.PutUint32(buf[5:9], h.Length)
	}
	return buf
}

// DecodeHeader reads one frame header from r. It reads the version byte
// first to learn the stream-id width before reading the remainder, since
// the header is not a fixed size across protocol versions.
//
// Any I/O or structural failure is reported as a liberr.ProtocolError:
// the caller (connection) marks itself defunct and fails every pending
// callback, per spec.md §4.1's error policy.
func DecodeHeader(r io.Reader) (Header, liberr.Error) {
	var first [1]byte
	if _, err := io.ReadFull(r, first[:]); err != nil {
		return Header{}, liberr.ProtocolError.Error(err)
	}

	v := Version(first[0] &^ 0x80)
	resp := first[0]&0x80 != 0

	if v < MinVersion || v > MaxVersion {
		return Header{}, liberr.ProtocolError.Error(nil)
	}

	rest := make([]byte, headerSizeLongStream-1)
	if v.StreamIDBytes() == 1 {
		rest = rest[:headerSizeShortStream-1]
	}
	if _, err := io.ReadFull(r, rest); err != nil {
		return Header{}, liberr.ProtocolError.Error(err)
	}

	h := Header{Version: v, Response: resp}
	if v.StreamIDBytes() == 1 {
		h.Flags = Flags(rest[0])
		h.StreamID = int16(int8(rest[1]))
		h.OpCode = OpCode(rest[2])
		h.Length = binary.BigEndian.Uint32(rest[3:7])
	} else {
		h.Flags = Flags(rest[0])
		h.StreamID = int16(binary.BigEndian.Uint16(rest[1:3]))
		h.OpCode = OpCode(rest[3])
		h.Length = binary.BigEndian.Uint32(rest[4:8])
	}

	return h, nil
}

// Frame is a fully decoded message: header plus the (decompressed) body.
type Frame struct {
	Header Header
	Body   []byte
}

// Encode serializes a request frame, applying c to the body first when
// FlagCompression is requested and c is not Identity.
func Encode(h Header, body []byte, c Compressor) ([]byte, liberr.Error) {
	if c != nil && !c.IsIdentity() && h.Flags.Has(FlagCompression) {
		compressed, err := c.Compress(body)
		if err != nil {
			return nil, liberr.ProtocolError.Error(err)
		}
		body = compressed
	}
	h.Length = uint32(len(body))
	return append(EncodeHeader(h), body...), nil
}

// Decode reads one complete frame (header + body) from r, decompressing
// the body when the header's compression flag is set.
func Decode(r io.Reader, c Compressor) (Frame, liberr.Error) {
	h, e := DecodeHeader(r)
	if e != nil {
		return Frame{}, e
	}

	body := make([]byte, h.Length)
	if h.Length > 0 {
		if _, err := io.ReadFull(r, body); err != nil {
			return Frame{}, liberr.ProtocolError.Error(err)
		}
	}

	if c != nil && !c.IsIdentity() && h.Flags.Has(FlagCompression) {
		decompressed, err := c.Decompress(body)
		if err != nil {
			return Frame{}, liberr.ProtocolError.Error(err)
		}
		body = decompressed
	}

	return Frame{Header: h, Body: body}, nil
}
