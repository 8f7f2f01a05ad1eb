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

package request

import (
	"context"
	"time"

	"github.com/nabbar/wcdb/config"
	"github.com/nabbar/wcdb/connection"
	liberr "github.com/nabbar/wcdb/errors"
	"github.com/nabbar/wcdb/host"
	"github.com/nabbar/wcdb/protocol"
)

// BatchItem is one statement within a batch request (spec.md §4.9 "batch
// composition"): either a bare query or, when Prepare is set, a statement
// resolved through the prepared registry the same way a single Statement
// is.
type BatchItem struct {
	Query      string
	Values     []protocol.BoundValue
	Prepare    bool
	RoutingKey []byte
}

// BatchStatement carries a type (logged|unlogged|counter), its items, and
// shared options; per spec.md §4.9 the routing key is derived from the
// first item that supplies one.
type BatchStatement struct {
	Kind    protocol.BatchKind
	Items   []BatchItem
	Options config.QueryOptions
}

func (b BatchStatement) routingKey() []byte {
	for _, it := range b.Items {
		if it.RoutingKey != nil {
			return it.RoutingKey
		}
	}
	return nil
}

// Batch runs a BATCH request to completion, following the same
// plan/retry shape as Execute (spec.md §4.9) but without speculative
// execution: a batch's items are not independently idempotent-checked,
// so the core never speculates a batch.
func (h *Handler) Batch(ctx context.Context, b BatchStatement) (protocol.Result, liberr.Error) {
	ks := b.Options.Keyspace
	if ks == "" {
		ks = h.Keyspace
	}

	plan := h.Planner.NewPlan(ks, b.routingKey())
	if len(plan) == 0 {
		return protocol.Result{}, liberr.NoHostAvailable.Error(nil)
	}

	idempotent := b.Options.IsIdempotent
	var tried []HostError
	retryCount := 0

	for i, hh := range plan {
		res, e := h.sendBatchTo(ctx, hh, b, ks)
		if e == nil {
			return res, nil
		}
		tried = append(tried, HostError{Host: hh, Cause: e})

		decision := config.RetryDecline
		if h.Retry != nil {
			switch {
			case e.IsCode(liberr.WriteTimeout):
				decision = h.Retry.OnWriteTimeout(retryCount, idempotent)
			case e.IsCode(liberr.Unavailable):
				decision = h.Retry.OnUnavailable(retryCount, idempotent)
			default:
				decision = h.Retry.OnRequestError(retryCount, idempotent)
			}
		}

		switch decision {
		case config.RetrySameHost:
			retryCount++
			res2, e2 := h.sendBatchTo(ctx, hh, b, ks)
			if e2 == nil {
				return res2, nil
			}
			tried = append(tried, HostError{Host: hh, Cause: e2})
		case config.RetryNextHost:
			retryCount++
			continue
		case config.RetryDecline:
			return protocol.Result{}, e
		}

		if i == len(plan)-1 {
			break
		}
	}

	return protocol.Result{}, h.aggregate(tried)
}

func (h *Handler) batchReadTimeout(b BatchStatement) (timeout time.Duration) {
	if b.Options.ReadTimeout != 0 {
		return time.Duration(b.Options.ReadTimeout)
	}
	if h.Defaults.ReadTimeout != 0 {
		return time.Duration(h.Defaults.ReadTimeout)
	}
	return 12 * time.Second
}

// sendBatchTo resolves every prepared item against hh (spec.md §4.9's
// "getPreparedMultiple resolves all items against the same host to
// maximize the chance of a single RTT"), then writes one BATCH frame.
func (h *Handler) sendBatchTo(ctx context.Context, hh *host.Host, b BatchStatement, ks string) (protocol.Result, liberr.Error) {
	p, ok := hh.Pool().(borrower)
	if !ok {
		return protocol.Result{}, liberr.ConnectionError.Error(nil)
	}

	conn, e := p.Borrow(ctx)
	if e != nil {
		return protocol.Result{}, e
	}

	timeout := h.batchReadTimeout(b)

	items := make([]protocol.BatchItem, 0, len(b.Items))
	for _, it := range b.Items {
		if !it.Prepare {
			items = append(items, protocol.BatchItem{Query: it.Query, Values: it.Values})
			continue
		}

		entry, err := h.Prepared.PrepareOn(ctx, hh, ks, it.Query, func(ctx context.Context, _ *host.Host, query, keyspace string) (protocol.PreparedResult, error) {
			body := protocol.EncodePrepare(query, keyspace, conn.Version())
			resp, e := conn.Send(ctx, connection.Request{OpCode: protocol.OpPrepare, Body: body}, timeout)
			if e != nil {
				return protocol.PreparedResult{}, e
			}
			res, e := protocol.DecodeResult(resp.Body)
			if e != nil {
				return protocol.PreparedResult{}, e
			}
			return res.Prepared, nil
		})
		if err != nil {
			if le, ok := err.(liberr.Error); ok {
				return protocol.Result{}, le
			}
			return protocol.Result{}, liberr.ServerError.Error(err)
		}
		items = append(items, protocol.BatchItem{PreparedID: entry.ID, Values: it.Values})
	}

	consistency := uint16(b.Options.Consistency)
	if consistency == 0 {
		consistency = uint16(h.Defaults.Consistency)
	}
	serial := uint16(b.Options.SerialConsistency)

	body := protocol.EncodeBatch(b.Kind, items, consistency, serial, b.Options.Timestamp, ks, conn.Version())
	resp, e := conn.Send(ctx, connection.Request{OpCode: protocol.OpBatch, Body: body}, timeout)
	if e != nil {
		return protocol.Result{}, e
	}
	if resp.Header.OpCode == protocol.OpError {
		eb, de := protocol.DecodeError(resp.Body)
		if de != nil {
			return protocol.Result{}, de
		}
		return protocol.Result{}, errorFromServer(eb)
	}
	return protocol.DecodeResult(resp.Body)
}
