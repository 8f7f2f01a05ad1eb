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

// Package paging drives a statement's page-state-based iteration on top
// of the request package: manual page-at-a-time fetches, an autoPage
// helper that drains every page in turn, and a channel-based streaming
// facade that resumes fetching as its consumer drains rows (spec.md
// §4.9's "Paging and result stream").
package paging

import (
	"context"

	liberr "github.com/nabbar/wcdb/errors"
	"github.com/nabbar/wcdb/protocol"
	"github.com/nabbar/wcdb/request"
)

// SchemaWatcher reports how many SCHEMA_CHANGE events have been observed
// so far; satisfied by *control.Link without this package importing
// control, which would cycle back through connection and host.
type SchemaWatcher interface {
	SchemaChangeSeq() int64
}

// Row is one decoded row: a slice of raw cell values, nil meaning SQL
// NULL, in column order (spec.md §1's explicit non-goal of type-aware row
// mapping leaves cell decoding to the caller).
type Row = [][]byte

// Page is one fetched page of a result set.
type Page struct {
	Columns      []protocol.ColumnSpec
	Rows         []Row
	HasMorePages bool
	PageState    []byte
}

// Iterator drives one statement's paged execution. Statements with
// Options.AutoPage set are expected to be driven through AutoPage or
// Stream; NextPage works either way.
type Iterator struct {
	handler *request.Handler
	stmt    request.Statement
	schema  SchemaWatcher

	resumedByUser    bool
	startSeq         int64
	pendingSchemaErr bool
	done             bool
}

// NewIterator starts a paged iteration of stmt against handler. When stmt
// carries a caller-supplied Options.PageState (resuming a previously
// persisted page) and schema is non-nil, the iterator baselines the
// control link's schema-change counter: if a schema change is observed to
// have happened concurrently with the resumed page's fetch, the resumed
// page's rows are still delivered in full, and the following NextPage
// call returns a SchemaChangedMidPage error instead of fetching further
// (spec.md §9's decision for this edge case -- the in-flight page is
// never aborted mid-delivery).
func NewIterator(handler *request.Handler, stmt request.Statement, schema SchemaWatcher) *Iterator {
	it := &Iterator{handler: handler, stmt: stmt, schema: schema}
	if len(stmt.Options.PageState) > 0 && schema != nil {
		it.resumedByUser = true
		it.startSeq = schema.SchemaChangeSeq()
	}
	return it
}

// NextPage fetches the next page. It returns (nil, nil) once every page
// has already been delivered.
func (it *Iterator) NextPage(ctx context.Context) (*Page, liberr.Error) {
	if it.done {
		return nil, nil
	}

	if it.pendingSchemaErr {
		it.pendingSchemaErr = false
		it.done = true
		return nil, liberr.SchemaChangedMidPage.Error(nil)
	}

	res, e := it.handler.Execute(ctx, it.stmt)
	if e != nil {
		return nil, e
	}

	page := &Page{
		Columns:      res.Rows.Metadata.Columns,
		Rows:         res.Rows.Rows,
		HasMorePages: res.Rows.Metadata.HasMorePages,
		PageState:    res.Rows.Metadata.PagingState,
	}

	if it.resumedByUser {
		it.resumedByUser = false
		if it.schema.SchemaChangeSeq() != it.startSeq {
			it.pendingSchemaErr = true
		}
	}

	if page.HasMorePages {
		it.stmt.Options.PageState = page.PageState
	} else {
		it.done = true
	}

	return page, nil
}

// Done reports whether every page has already been delivered.
func (it *Iterator) Done() bool { return it.done }

// AutoPage drains every page in turn, calling fn with each, until fn
// returns false, the iterator is exhausted, or a page fetch fails
// (spec.md §4.9's autoPage=true re-issue loop).
func (it *Iterator) AutoPage(ctx context.Context, fn func(*Page) bool) liberr.Error {
	for !it.done {
		page, e := it.NextPage(ctx)
		if e != nil {
			return e
		}
		if page == nil {
			return nil
		}
		if !fn(page) {
			return nil
		}
	}
	return nil
}

// Stream returns a channel of decoded rows, fetching pages one at a time
// as the consumer drains the previous page's rows: the unbuffered rows
// channel is the backpressure mechanism, there is no read-ahead. The rows
// channel closes when iteration completes or ctx is cancelled; any
// terminal error is sent on errc exactly once before errc itself closes.
func (it *Iterator) Stream(ctx context.Context) (<-chan Row, <-chan liberr.Error) {
	rows := make(chan Row)
	errc := make(chan liberr.Error, 1)

	go func() {
		defer close(rows)
		defer close(errc)

		for {
			page, e := it.NextPage(ctx)
			if e != nil {
				errc <- e
				return
			}
			if page == nil {
				return
			}
			for _, r := range page.Rows {
				select {
				case rows <- r:
				case <-ctx.Done():
					errc <- liberr.OperationTimedOut.Error(ctx.Err())
					return
				}
			}
		}
	}()

	return rows, errc
}
