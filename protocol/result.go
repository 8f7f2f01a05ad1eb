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

// rowsFlag bits in a Rows/Prepared metadata block.
const (
	rowsFlagGlobalTablesSpec uint32 = 0x0001
	rowsFlagHasMorePages     uint32 = 0x0002
	rowsFlagNoMetadata       uint32 = 0x0004
	rowsFlagMetadataChanged  uint32 = 0x0008
)

// ColumnSpec names one result column (or, in Prepared metadata, one bind
// marker). Keyspace/Table are empty when GlobalTablesSpec collapsed them
// into the metadata header instead.
type ColumnSpec struct {
	Keyspace string
	Table    string
	Name     string
	Type     Option
}

// RowsMetadata is the metadata block shared by RESULT Rows and RESULT
// Prepared (for the latter, it describes bind markers, not result columns).
type RowsMetadata struct {
	ColumnCount       int32
	PagingState       []byte
	HasMorePages      bool
	NoMetadata        bool
	MetadataChanged   bool
	GlobalKeyspace    string
	GlobalTable       string
	PKIndexes         []int32 // Prepared-only: partition-key bind marker indexes
	NewMetadataID     []byte  // Prepared-only, protocol v5+ reprepare-on-change
	Columns           []ColumnSpec
}

func decodeRowsMetadata(r *Reader, withPKIndexes bool) (RowsMetadata, liberr.Error) {
	flags, e := r.Int()
	if e != nil {
		return RowsMetadata{}, e
	}
	f := uint32(flags)

	count, e := r.Int()
	if e != nil {
		return RowsMetadata{}, e
	}

	m := RowsMetadata{
		ColumnCount:     count,
		HasMorePages:    f&rowsFlagHasMorePages != 0,
		NoMetadata:      f&rowsFlagNoMetadata != 0,
		MetadataChanged: f&rowsFlagMetadataChanged != 0,
	}

	if withPKIndexes {
		n, e := r.Int()
		if e != nil {
			return RowsMetadata{}, e
		}
		m.PKIndexes = make([]int32, n)
		for i := range m.PKIndexes {
			v, e := r.Int()
			if e != nil {
				return RowsMetadata{}, e
			}
			m.PKIndexes[i] = v
		}
	}

	if m.HasMorePages {
		b, ok, e := r.Bytes()
		if e != nil {
			return RowsMetadata{}, e
		}
		if ok {
			m.PagingState = b
		}
	}

	if m.NoMetadata {
		return m, nil
	}

	global := f&rowsFlagGlobalTablesSpec != 0
	if global {
		ks, e := r.String()
		if e != nil {
			return RowsMetadata{}, e
		}
		tbl, e := r.String()
		if e != nil {
			return RowsMetadata{}, e
		}
		m.GlobalKeyspace, m.GlobalTable = ks, tbl
	}

	m.Columns = make([]ColumnSpec, 0, count)
	for i := int32(0); i < count; i++ {
		var cs ColumnSpec
		if !global {
			ks, e := r.String()
			if e != nil {
				return RowsMetadata{}, e
			}
			tbl, e := r.String()
			if e != nil {
				return RowsMetadata{}, e
			}
			cs.Keyspace, cs.Table = ks, tbl
		} else {
			cs.Keyspace, cs.Table = m.GlobalKeyspace, m.GlobalTable
		}
		name, e := r.String()
		if e != nil {
			return RowsMetadata{}, e
		}
		opt, e := r.Option()
		if e != nil {
			return RowsMetadata{}, e
		}
		cs.Name, cs.Type = name, opt
		m.Columns = append(m.Columns, cs)
	}

	return m, nil
}

// RowsResult is the decoded body of a RESULT Rows frame.
type RowsResult struct {
	Metadata RowsMetadata
	// Rows holds each row as a slice of raw [bytes] cell values (nil cell
	// means SQL NULL); type-aware decoding is a row-mapping concern
	// explicitly out of scope for this core (spec.md §1).
	Rows [][][]byte
}

func decodeRows(r *Reader) (RowsResult, liberr.Error) {
	meta, e := decodeRowsMetadata(r, false)
	if e != nil {
		return RowsResult{}, e
	}
	rowCount, e := r.Int()
	if e != nil {
		return RowsResult{}, e
	}
	rows := make([][][]byte, 0, rowCount)
	for i := int32(0); i < rowCount; i++ {
		row := make([][]byte, meta.ColumnCount)
		for c := int32(0); c < meta.ColumnCount; c++ {
			b, ok, e := r.Bytes()
			if e != nil {
				return RowsResult{}, e
			}
			if ok {
				row[c] = b
			}
		}
		rows = append(rows, row)
	}
	return RowsResult{Metadata: meta, Rows: rows}, nil
}

// PreparedResult is the decoded body of a RESULT Prepared frame.
type PreparedResult struct {
	ID          []byte
	ResultMeta  RowsMetadata // bind marker metadata
	ColumnsMeta RowsMetadata // result-set column metadata (v2+)
}

func decodePrepared(r *Reader) (PreparedResult, liberr.Error) {
	id, ok, e := r.Bytes()
	if e != nil {
		return PreparedResult{}, e
	}
	if !ok {
		return PreparedResult{}, liberr.ProtocolError.Error(nil)
	}
	resultMeta, e := decodeRowsMetadata(r, true)
	if e != nil {
		return PreparedResult{}, e
	}
	var colMeta RowsMetadata
	if r.Remaining() > 0 {
		colMeta, e = decodeRowsMetadata(r, false)
		if e != nil {
			return PreparedResult{}, e
		}
	}
	return PreparedResult{ID: id, ResultMeta: resultMeta, ColumnsMeta: colMeta}, nil
}

// SchemaChangeResult is the decoded body of a RESULT SchemaChange frame.
type SchemaChangeResult struct {
	ChangeType string
	Target     string
	Keyspace   string
	Object     string
}

func decodeSchemaChange(r *Reader) (SchemaChangeResult, liberr.Error) {
	ct, e := r.String()
	if e != nil {
		return SchemaChangeResult{}, e
	}
	target, e := r.String()
	if e != nil {
		return SchemaChangeResult{}, e
	}
	out := SchemaChangeResult{ChangeType: ct, Target: target}
	switch target {
	case "KEYSPACE":
		ks, e := r.String()
		if e != nil {
			return SchemaChangeResult{}, e
		}
		out.Keyspace = ks
	case "TABLE", "TYPE":
		ks, e := r.String()
		if e != nil {
			return SchemaChangeResult{}, e
		}
		obj, e := r.String()
		if e != nil {
			return SchemaChangeResult{}, e
		}
		out.Keyspace, out.Object = ks, obj
	}
	return out, nil
}

// Result is the fully decoded body of a RESULT frame, tagged by Kind.
type Result struct {
	Kind        ResultKind
	Rows        RowsResult
	Keyspace    string // ResultSetKeyspace
	Prepared    PreparedResult
	SchemaChange SchemaChangeResult
}

// DecodeResult dispatches on the leading [int] result kind.
func DecodeResult(body []byte) (Result, liberr.Error) {
	r := NewReader(body)
	kind, e := r.Int()
	if e != nil {
		return Result{}, e
	}
	switch ResultKind(kind) {
	case ResultVoid:
		return Result{Kind: ResultVoid}, nil
	case ResultRows:
		rows, e := decodeRows(r)
		if e != nil {
			return Result{}, e
		}
		return Result{Kind: ResultRows, Rows: rows}, nil
	case ResultSetKeyspace:
		ks, e := r.String()
		if e != nil {
			return Result{}, e
		}
		return Result{Kind: ResultSetKeyspace, Keyspace: ks}, nil
	case ResultPrepared:
		p, e := decodePrepared(r)
		if e != nil {
			return Result{}, e
		}
		return Result{Kind: ResultPrepared, Prepared: p}, nil
	case ResultSchemaChange:
		sc, e := decodeSchemaChange(r)
		if e != nil {
			return Result{}, e
		}
		return Result{Kind: ResultSchemaChange, SchemaChange: sc}, nil
	default:
		return Result{}, liberr.ProtocolError.Error(nil)
	}
}
