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
	liberr "github.com/nabbar/wcdb/errors"
)

// QueryFlags are the per-message flags carried in QUERY/EXECUTE/BATCH
// bodies (distinct from the frame header's Flags).
type QueryFlags uint32

const (
	QFValues              QueryFlags = 0x0001
	QFSkipMetadata         QueryFlags = 0x0002
	QFPageSize             QueryFlags = 0x0004
	QFPagingState          QueryFlags = 0x0008
	QFSerialConsistency    QueryFlags = 0x0010
	QFDefaultTimestamp     QueryFlags = 0x0020
	QFNamedValues          QueryFlags = 0x0040
	QFKeyspace             QueryFlags = 0x0080
	QFNowInSeconds         QueryFlags = 0x0100
)

// BoundValue is one bound parameter, optionally named (v2+).
type BoundValue struct {
	Name  string // empty when positional
	Bytes []byte
	State ValueState
}

// QueryParams is the common parameter block shared by QUERY and EXECUTE
// bodies (spec.md §6).
type QueryParams struct {
	Consistency       uint16
	Values            []BoundValue
	SkipMetadata      bool
	PageSize          int32
	PagingState       []byte
	SerialConsistency uint16
	Timestamp         int64
	Keyspace          string // v5+ per-request keyspace
	NowInSeconds      int32
}

func (p QueryParams) flags(v Version) QueryFlags {
	var f QueryFlags
	if len(p.Values) > 0 {
		f |= QFValues
		for _, val := range p.Values {
			if val.Name != "" {
				f |= QFNamedValues
				break
			}
		}
	}
	if p.SkipMetadata {
		f |= QFSkipMetadata
	}
	if p.PageSize > 0 {
		f |= QFPageSize
	}
	if p.PagingState != nil {
		f |= QFPagingState
	}
	if p.SerialConsistency != 0 {
		f |= QFSerialConsistency
	}
	if p.Timestamp != 0 {
		f |= QFDefaultTimestamp
	}
	if p.Keyspace != "" && v >= V5 {
		f |= QFKeyspace
	}
	return f
}

func (p QueryParams) encode(w *Writer, v Version) {
	w.Consistency(p.Consistency)

	f := p.flags(v)
	if v >= V5 {
		w.Int(int32(f))
	} else {
		w.Byte(byte(f))
	}

	if f&QFValues != 0 {
		w.Short(uint16(len(p.Values)))
		for _, val := range p.Values {
			if f&QFNamedValues != 0 {
				w.String(val.Name)
			}
			w.Value(val.Bytes, val.State)
		}
	}
	if f&QFPageSize != 0 {
		w.Int(p.PageSize)
	}
	if f&QFPagingState != 0 {
		w.BytesValue(p.PagingState)
	}
	if f&QFSerialConsistency != 0 {
		w.Consistency(p.SerialConsistency)
	}
	if f&QFDefaultTimestamp != 0 {
		w.Long(p.Timestamp)
	}
	if f&QFKeyspace != 0 {
		w.String(p.Keyspace)
	}
}

// EncodeQuery builds a QUERY message body: [long string] query, then the
// common parameter block.
func EncodeQuery(query string, p QueryParams, v Version) []byte {
	w := NewWriter()
	w.LongString(query)
	p.encode(w, v)
	return w.Bytes()
}

// EncodePrepare builds a PREPARE message body: [long string] query plus,
// on v5+, an optional per-request keyspace.
func EncodePrepare(query string, keyspace string, v Version) []byte {
	w := NewWriter()
	w.LongString(query)
	if v >= V5 {
		if keyspace != "" {
			w.Int(0x01)
			w.String(keyspace)
		} else {
			w.Int(0)
		}
	}
	return w.Bytes()
}

// EncodeExecute builds an EXECUTE message body: [short bytes] prepared id,
// then the common parameter block.
func EncodeExecute(preparedID []byte, p QueryParams, v Version) []byte {
	w := NewWriter()
	w.Short(uint16(len(preparedID)))
	w.Bytes_raw(preparedID)
	p.encode(w, v)
	return w.Bytes()
}

// Bytes_raw appends raw bytes with no length prefix; named distinctly from
// BytesValue (which writes the [bytes] length-prefixed form) because the
// prepared id here is already length-prefixed by its own [short].
func (w *Writer) Bytes_raw(b []byte) *Writer {
	w.buf = append(w.buf, b...)
	return w
}

// BatchKind identifies the BATCH message's logged/unlogged/counter type.
type BatchKind byte

const (
	BatchLogged   BatchKind = 0
	BatchUnlogged BatchKind = 1
	BatchCounter  BatchKind = 2
)

// BatchItem is one statement within a BATCH message: either a bare query
// string or a prepared id, plus its bound values.
type BatchItem struct {
	Query      string // set when PreparedID is nil
	PreparedID []byte // set for a prepared statement
	Values     []BoundValue
}

// EncodeBatch builds a BATCH message body (spec.md §4.9 "batch composition").
func EncodeBatch(kind BatchKind, items []BatchItem, consistency uint16, serialConsistency uint16, timestamp int64, keyspace string, v Version) []byte {
	w := NewWriter()
	w.Byte(byte(kind))
	w.Short(uint16(len(items)))

	named := false
	for _, it := range items {
		for _, val := range it.Values {
			if val.Name != "" {
				named = true
			}
		}
	}

	for _, it := range items {
		if it.PreparedID != nil {
			w.Byte(1)
			w.Short(uint16(len(it.PreparedID)))
			w.Bytes_raw(it.PreparedID)
		} else {
			w.Byte(0)
			w.LongString(it.Query)
		}
		w.Short(uint16(len(it.Values)))
		for _, val := range it.Values {
			if named {
				w.String(val.Name)
			}
			w.Value(val.Bytes, val.State)
		}
	}

	w.Consistency(consistency)

	var f QueryFlags
	if named {
		f |= QFNamedValues
	}
	if serialConsistency != 0 {
		f |= QFSerialConsistency
	}
	if timestamp != 0 {
		f |= QFDefaultTimestamp
	}
	if keyspace != "" && v >= V5 {
		f |= QFKeyspace
	}
	if v >= V5 {
		w.Int(int32(f))
	} else {
		w.Byte(byte(f))
	}
	if f&QFSerialConsistency != 0 {
		w.Consistency(serialConsistency)
	}
	if f&QFDefaultTimestamp != 0 {
		w.Long(timestamp)
	}
	if f&QFKeyspace != 0 {
		w.String(keyspace)
	}

	return w.Bytes()
}

// EncodeStartup builds a STARTUP message body: the [string map] of options
// as given. The caller puts CQL_VERSION and, when it wants compression,
// COMPRESSION into options.
func EncodeStartup(options map[string]string) []byte {
	w := NewWriter()
	w.StringMap(options)
	return w.Bytes()
}

// EncodeRegister builds a REGISTER message body: a [string list] of event
// type names (TOPOLOGY_CHANGE, STATUS_CHANGE, SCHEMA_CHANGE per spec.md §4.5).
func EncodeRegister(eventTypes []string) []byte {
	w := NewWriter()
	w.StringList(eventTypes)
	return w.Bytes()
}

// EncodeAuthResponse builds an AUTH_RESPONSE body: a [bytes] token.
func EncodeAuthResponse(token []byte) []byte {
	w := NewWriter()
	w.BytesValue(token)
	return w.Bytes()
}

// ErrorBody is the decoded body of an ERROR frame.
type ErrorBody struct {
	Code    ServerErrorCode
	Message string
	// Extra carries the error-class-specific trailing fields (e.g.
	// Unavailable's consistency/required/alive, ReadTimeout's
	// received/blockfor/data-present). Stored as raw remaining bytes;
	// nothing in this module decodes them, and the retry policy sees only
	// the error class.
	Extra []byte
}

func DecodeError(body []byte) (ErrorBody, liberr.Error) {
	r := NewReader(body)
	code, e := r.Int()
	if e != nil {
		return ErrorBody{}, e
	}
	msg, e := r.String()
	if e != nil {
		return ErrorBody{}, e
	}
	return ErrorBody{Code: ServerErrorCode(code), Message: msg, Extra: body[len(body)-r.Remaining():]}, nil
}

// ReadyBody is the (empty) decoded body of a READY frame.
type ReadyBody struct{}

// DecodeSupported decodes the body of a SUPPORTED frame: a string
// multimap of option name to the list of supported values.
func DecodeSupported(body []byte) (map[string][]string, liberr.Error) {
	return NewReader(body).StringMultimap()
}

// DecodeAuthenticate returns the server's required SASL authenticator class.
func DecodeAuthenticate(body []byte) (string, liberr.Error) {
	return NewReader(body).LongString()
}

// EventBody is a decoded TOPOLOGY_CHANGE/STATUS_CHANGE/SCHEMA_CHANGE push.
type EventBody struct {
	EventType string
	// ChangeType is "NEW_NODE"/"REMOVED_NODE" (topology), "UP"/"DOWN"
	// (status), or "CREATED"/"UPDATED"/"DROPPED" (schema).
	ChangeType string
	Address    string
	// SchemaTarget/Keyspace/Object describe a SCHEMA_CHANGE event's
	// affected object; zero for topology/status events.
	SchemaTarget string
	Keyspace     string
	Object       string
}

func DecodeEvent(body []byte) (EventBody, liberr.Error) {
	r := NewReader(body)
	et, e := r.String()
	if e != nil {
		return EventBody{}, e
	}
	out := EventBody{EventType: et}
	switch et {
	case "TOPOLOGY_CHANGE", "STATUS_CHANGE":
		ct, e := r.String()
		if e != nil {
			return EventBody{}, e
		}
		addr, e := r.Inet()
		if e != nil {
			return EventBody{}, e
		}
		out.ChangeType = ct
		out.Address = addr.String()
	case "SCHEMA_CHANGE":
		ct, e := r.String()
		if e != nil {
			return EventBody{}, e
		}
		target, e := r.String()
		if e != nil {
			return EventBody{}, e
		}
		out.ChangeType = ct
		out.SchemaTarget = target
		switch target {
		case "KEYSPACE":
			ks, e := r.String()
			if e != nil {
				return EventBody{}, e
			}
			out.Keyspace = ks
		case "TABLE", "TYPE":
			ks, e := r.String()
			if e != nil {
				return EventBody{}, e
			}
			obj, e := r.String()
			if e != nil {
				return EventBody{}, e
			}
			out.Keyspace, out.Object = ks, obj
		case "FUNCTION", "AGGREGATE":
			ks, e := r.String()
			if e != nil {
				return EventBody{}, e
			}
			obj, e := r.String()
			if e != nil {
				return EventBody{}, e
			}
			args, e := r.StringList()
			if e != nil {
				return EventBody{}, e
			}
			out.Keyspace, out.Object = ks, obj+"("+joinComma(args)+")"
		}
	}
	return out, nil
}

func joinComma(items []string) string {
	out := ""
	for i, s := range items {
		if i > 0 {
			out += ","
		}
		out += s
	}
	return out
}
