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
	"fmt"
	"net"

	"github.com/google/uuid"

	liberr "github.com/nabbar/wcdb/errors"
)

// Reader decodes the body primitives of spec.md §4.1 from a frame body
// buffer, advancing an internal cursor. Readers never copy the backing
// slice except where the primitive itself (e.g. [string]) must own bytes
// independent of the frame buffer's lifetime.
type Reader struct {
	buf []byte
	pos int
}

func NewReader(body []byte) *Reader { return &Reader{buf: body} }

func (r *Reader) Remaining() int { return len(r.buf) - r.pos }

func (r *Reader) need(n int) liberr.Error {
	if r.Remaining() < n {
		return liberr.ProtocolError.Error(fmt.Errorf("protocol: short read, need %d have %d", n, r.Remaining()))
	}
	return nil
}

// Byte reads [byte].
func (r *Reader) Byte() (byte, liberr.Error) {
	if e := r.need(1); e != nil {
		return 0, e
	}
	b := r.buf[r.pos]
	r.pos++
	return b, nil
}

// Short reads [short]: a 2-byte unsigned big-endian int.
func (r *Reader) Short() (uint16, liberr.Error) {
	if e := r.need(2); e != nil {
		return 0, e
	}
	v := binary.BigEndian.Uint16(r.buf[r.pos:])
	r.pos += 2
	return v, nil
}

// Int reads [int]: a 4-byte signed big-endian int.
func (r *Reader) Int() (int32, liberr.Error) {
	if e := r.need(4); e != nil {
		return 0, e
	}
	v := int32(binary.BigEndian.Uint32(r.buf[r.pos:]))
	r.pos += 4
	return v, nil
}

// Long reads [long]: an 8-byte signed big-endian int.
func (r *Reader) Long() (int64, liberr.Error) {
	if e := r.need(8); e != nil {
		return 0, e
	}
	v := int64(binary.BigEndian.Uint64(r.buf[r.pos:]))
	r.pos += 8
	return v, nil
}

// String reads [string]: a [short] length followed by that many UTF-8 bytes.
func (r *Reader) String() (string, liberr.Error) {
	n, e := r.Short()
	if e != nil {
		return "", e
	}
	if e := r.need(int(n)); e != nil {
		return "", e
	}
	s := string(r.buf[r.pos : r.pos+int(n)])
	r.pos += int(n)
	return s, nil
}

// LongString reads [long string]: an [int] length followed by that many bytes.
func (r *Reader) LongString() (string, liberr.Error) {
	n, e := r.Int()
	if e != nil {
		return "", e
	}
	if n < 0 {
		return "", liberr.ProtocolError.Error(fmt.Errorf("protocol: negative long string length %d", n))
	}
	if e := r.need(int(n)); e != nil {
		return "", e
	}
	s := string(r.buf[r.pos : r.pos+int(n)])
	r.pos += int(n)
	return s, nil
}

// Bytes reads [bytes]: an [int] length, -1 meaning null, followed by that
// many bytes. A nil return with ok=false means null.
func (r *Reader) Bytes() (b []byte, ok bool, e liberr.Error) {
	n, e := r.Int()
	if e != nil {
		return nil, false, e
	}
	if n < 0 {
		return nil, false, nil
	}
	if e := r.need(int(n)); e != nil {
		return nil, false, e
	}
	b = append([]byte(nil), r.buf[r.pos:r.pos+int(n)]...)
	r.pos += int(n)
	return b, true, nil
}

// ValueState distinguishes the three states a bound [value] can carry.
type ValueState int8

const (
	ValuePresent ValueState = iota
	ValueNull
	ValueUnset
)

// Value reads [value]: an [int] length, with -1=null and -2=unset as the
// two sentinel states bound parameters may carry (spec.md §4.1).
func (r *Reader) Value() (b []byte, state ValueState, e liberr.Error) {
	n, e := r.Int()
	if e != nil {
		return nil, ValuePresent, e
	}
	switch {
	case n == -1:
		return nil, ValueNull, nil
	case n == -2:
		return nil, ValueUnset, nil
	case n < -2:
		return nil, ValuePresent, liberr.ProtocolError.Error(fmt.Errorf("protocol: invalid value length %d", n))
	}
	if e := r.need(int(n)); e != nil {
		return nil, ValuePresent, e
	}
	b = append([]byte(nil), r.buf[r.pos:r.pos+int(n)]...)
	r.pos += int(n)
	return b, ValuePresent, nil
}

// StringList reads [string list]: a [short] count followed by that many [string].
func (r *Reader) StringList() ([]string, liberr.Error) {
	n, e := r.Short()
	if e != nil {
		return nil, e
	}
	out := make([]string, 0, n)
	for i := uint16(0); i < n; i++ {
		s, e := r.String()
		if e != nil {
			return nil, e
		}
		out = append(out, s)
	}
	return out, nil
}

// StringMap reads [string map]: a [short] count of ([string], [string]) pairs.
func (r *Reader) StringMap() (map[string]string, liberr.Error) {
	n, e := r.Short()
	if e != nil {
		return nil, e
	}
	out := make(map[string]string, n)
	for i := uint16(0); i < n; i++ {
		k, e := r.String()
		if e != nil {
			return nil, e
		}
		v, e := r.String()
		if e != nil {
			return nil, e
		}
		out[k] = v
	}
	return out, nil
}

// StringMultimap reads [string multimap]: a [short] count of ([string], [string list]) pairs.
func (r *Reader) StringMultimap() (map[string][]string, liberr.Error) {
	n, e := r.Short()
	if e != nil {
		return nil, e
	}
	out := make(map[string][]string, n)
	for i := uint16(0); i < n; i++ {
		k, e := r.String()
		if e != nil {
			return nil, e
		}
		v, e := r.StringList()
		if e != nil {
			return nil, e
		}
		out[k] = v
	}
	return out, nil
}

// Consistency reads [consistency]: a [short] mapped to config.Consistency's
// wire values. Returned as the raw uint16 to keep this package free of a
// dependency on config; callers wrap with config.Consistency(v).
func (r *Reader) Consistency() (uint16, liberr.Error) {
	return r.Short()
}

// UUID reads [uuid]: 16 raw bytes.
func (r *Reader) UUID() (uuid.UUID, liberr.Error) {
	if e := r.need(16); e != nil {
		return uuid.UUID{}, e
	}
	u, err := uuid.FromBytes(r.buf[r.pos : r.pos+16])
	if err != nil {
		return uuid.UUID{}, liberr.ProtocolError.Error(err)
	}
	r.pos += 16
	return u, nil
}

// Inet reads [inet]: a [byte] length (4 or 16) followed by that many
// address bytes and an [int] port.
func (r *Reader) Inet() (*net.TCPAddr, liberr.Error) {
	n, e := r.Byte()
	if e != nil {
		return nil, e
	}
	if n != 4 && n != 16 {
		return nil, liberr.ProtocolError.Error(fmt.Errorf("protocol: invalid inet address length %d", n))
	}
	if e := r.need(int(n)); e != nil {
		return nil, e
	}
	ip := append(net.IP(nil), r.buf[r.pos:r.pos+int(n)]...)
	r.pos += int(n)
	port, e := r.Int()
	if e != nil {
		return nil, e
	}
	return &net.TCPAddr{IP: ip, Port: int(port)}, nil
}

// Option reads [option]: a [short] type code followed by a type-dependent
// value that this driver treats as opaque (the metadata cache interprets
// the nested bytes for the handful of type codes it understands; the frame
// codec only needs to know how much to skip for types it doesn't).
type Option struct {
	Type  uint16
	Value []byte
}

func (r *Reader) Option() (Option, liberr.Error) {
	t, e := r.Short()
	if e != nil {
		return Option{}, e
	}
	rest := append([]byte(nil), r.buf[r.pos:]...)
	return Option{Type: t, Value: rest}, nil
}

// --- Writer ---

// Writer encodes the body primitives of spec.md §4.1 into a growing
// buffer, in the order the caller invokes methods.
type Writer struct {
	buf []byte
}

func NewWriter() *Writer { return &Writer{} }

func (w *Writer) Bytes() []byte { return w.buf }

func (w *Writer) Byte(b byte) *Writer {
	w.buf = append(w.buf, b)
	return w
}

func (w *Writer) Short(v uint16) *Writer {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], v)
	w.buf = append(w.buf, b[:]...)
	return w
}

func (w *Writer) Int(v int32) *Writer {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], uint32(v))
	w.buf = append(w.buf, b[:]...)
	return w
}

func (w *Writer) Long(v int64) *Writer {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(v))
	w.buf = append(w.buf, b[:]...)
	return w
}

func (w *Writer) String(s string) *Writer {
	w.Short(uint16(len(s)))
	w.buf = append(w.buf, s...)
	return w
}

func (w *Writer) LongString(s string) *Writer {
	w.Int(int32(len(s)))
	w.buf = append(w.buf, s...)
	return w
}

// BytesValue writes [bytes]; a nil slice writes length -1 (null).
func (w *Writer) BytesValue(b []byte) *Writer {
	if b == nil {
		w.Int(-1)
		return w
	}
	w.Int(int32(len(b)))
	w.buf = append(w.buf, b...)
	return w
}

// Value writes a bound [value] per state: Present writes its bytes,
// Null writes -1, Unset writes -2.
func (w *Writer) Value(b []byte, state ValueState) *Writer {
	switch state {
	case ValueNull:
		w.Int(-1)
	case ValueUnset:
		w.Int(-2)
	default:
		w.Int(int32(len(b)))
		w.buf = append(w.buf, b...)
	}
	return w
}

func (w *Writer) StringList(list []string) *Writer {
	w.Short(uint16(len(list)))
	for _, s := range list {
		w.String(s)
	}
	return w
}

func (w *Writer) StringMap(m map[string]string) *Writer {
	w.Short(uint16(len(m)))
	for k, v := range m {
		w.String(k)
		w.String(v)
	}
	return w
}

func (w *Writer) StringMultimap(m map[string][]string) *Writer {
	w.Short(uint16(len(m)))
	for k, v := range m {
		w.String(k)
		w.StringList(v)
	}
	return w
}

func (w *Writer) Consistency(v uint16) *Writer {
	return w.Short(v)
}

func (w *Writer) UUID(u uuid.UUID) *Writer {
	b, _ := u.MarshalBinary()
	w.buf = append(w.buf, b...)
	return w
}

func (w *Writer) Inet(addr *net.TCPAddr) *Writer {
	ip4 := addr.IP.To4()
	if ip4 != nil {
		w.Byte(4)
		w.buf = append(w.buf, ip4...)
	} else {
		w.Byte(16)
		w.buf = append(w.buf, addr.IP.To16()...)
	}
	w.Int(int32(addr.Port))
	return w
}
