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

// Package request drives one statement's execution from host plan to
// decoded result: it borrows a connection for each candidate host in
// turn, applies the retry policy's decision on failure, starts
// speculative siblings for idempotent statements, and transparently
// re-PREPAREs on an UNPREPARED response.
package request

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/nabbar/wcdb/config"
	"github.com/nabbar/wcdb/connection"
	liberr "github.com/nabbar/wcdb/errors"
	"github.com/nabbar/wcdb/host"
	"github.com/nabbar/wcdb/prepared"
	"github.com/nabbar/wcdb/protocol"
)

// Statement is one request to execute: either a bare query or, when
// Options.Prepare is set, a statement routed through the prepared-statement
// cache.
type Statement struct {
	Query      string
	Values     []protocol.BoundValue
	Options    config.QueryOptions
	RoutingKey []byte
}

// Planner orders candidate hosts for a statement; satisfied by
// policy.RoundRobinPolicy/TokenAwarePolicy without this package importing
// policy (which would create an import cycle through host).
type Planner interface {
	NewPlan(keyspace string, routingKey []byte) []*host.Host
}

// borrower is the subset of pool.Pool's API this package drives; obtained
// by type-asserting host.Host.Pool() since host.Pool only promises
// Close/Size to avoid the host<->pool import cycle.
type borrower interface {
	Borrow(ctx context.Context) (*connection.Connection, liberr.Error)
}

// Handler executes statements against a live cluster. One Handler is
// shared by every caller of the facade.
type Handler struct {
	Hosts       *host.Map
	Planner     Planner
	Retry       config.RetryPolicy
	Speculative config.SpeculativeExecutionPolicy
	Prepared    *prepared.Registry
	Defaults    config.QueryOptions
	Keyspace    string
}

// HostError pairs a failed host with the error it returned, used to build
// the NoHostAvailable aggregation (spec.md §7).
type HostError struct {
	Host  *host.Host
	Cause liberr.Error
}

// attempt carries one execution's mutable state across host-plan
// iterations and retries, mirroring the handler state machine named in
// spec.md §5 (Initial -> Planning -> Sending -> AwaitingResponse ->
// {Completed, Retrying, SpeculativelyExecuting, Failed}) without a
// literal state enum: each case below is a transition.
type attempt struct {
	h          *Handler
	stmt       Statement
	keyspace   string
	retryCount int
	tried      []HostError
}

// Execute runs stmt to completion: a decoded Result, or a NoHostAvailable
// aggregating the per-host errors encountered along the plan.
func (h *Handler) Execute(ctx context.Context, stmt Statement) (protocol.Result, liberr.Error) {
	ks := stmt.Options.Keyspace
	if ks == "" {
		ks = h.Keyspace
	}

	plan := h.Planner.NewPlan(ks, stmt.RoutingKey)
	if len(plan) == 0 {
		return protocol.Result{}, liberr.NoHostAvailable.Error(nil)
	}

	// SpeculativelyExecuting (spec.md §4.9 transition 6): only for
	// idempotent statements, and only when a speculative policy is wired.
	if stmt.Options.IsIdempotent && h.Speculative != nil {
		return h.runSpeculative(ctx, stmt, ks, plan)
	}

	a := &attempt{h: h, stmt: stmt, keyspace: ks}
	return a.run(ctx, plan)
}

// sibling is one speculative attempt's outcome, reported back to
// runSpeculative's race. Each sibling owns its own *attempt (retryCount,
// tried) so concurrent siblings never share mutable state.
type sibling struct {
	res   protocol.Result
	err   liberr.Error
	tried []HostError
}

// runSpeculative implements spec.md §4.9's AwaitingResponse->
// SpeculativelyExecuting transition: the first attempt starts immediately
// against plan[0]; on each tick from h.Speculative.Delay(n), a sibling
// starts against the next untried host in the plan, running concurrently
// with every prior sibling. The first sibling to complete (success or a
// non-retryable terminal failure) wins; cancelling ctx detaches every
// other sibling's callback, per spec.md §4.9's cancellation note -- the
// in-flight network requests are not aborted, the client simply stops
// waiting on them.
func (h *Handler) runSpeculative(ctx context.Context, stmt Statement, ks string, plan []*host.Host) (protocol.Result, liberr.Error) {
	sctx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make(chan sibling, len(plan))
	var wg sync.WaitGroup

	start := func(from int) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a := &attempt{h: h, stmt: stmt, keyspace: ks}
			res, err := a.run(sctx, plan[from:])
			select {
			case results <- sibling{res: res, err: err, tried: a.tried}:
			case <-sctx.Done():
			}
		}()
	}
	go func() { wg.Wait(); close(results) }()

	next := 1
	n := 1
	var timer *time.Timer
	armTick := func() <-chan time.Time {
		if next >= len(plan) {
			return nil
		}
		d := h.Speculative.Delay(n)
		if d < 0 {
			return nil
		}
		timer = time.NewTimer(d.Time())
		return timer.C
	}
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	start(0)
	tick := armTick()

	var tried []HostError
	for {
		select {
		case s, ok := <-results:
			if !ok {
				return protocol.Result{}, h.aggregate(tried)
			}
			tried = append(tried, s.tried...)
			if s.err == nil {
				return s.res, nil
			}
			if !s.err.IsCode(liberr.NoHostAvailable) {
				return protocol.Result{}, s.err
			}
		case <-tick:
			tick = nil
			if next < len(plan) {
				start(next)
				next++
				n++
				tick = armTick()
			}
		case <-ctx.Done():
			return protocol.Result{}, liberr.OperationTimedOut.Error(ctx.Err())
		}
	}
}

// NoHostAvailableDetail is the per-host cause map attached to an aggregated
// NoHostAvailable error: a deterministic rendering of which host failed
// with which error for logs and tests, rather than an opaque aggregate.
type NoHostAvailableDetail struct {
	causes map[host.ID]liberr.Error
	order  []host.ID
}

// Causes returns the failure observed on each host tried, keyed by host ID.
func (d *NoHostAvailableDetail) Causes() map[host.ID]liberr.Error { return d.causes }

func (d *NoHostAvailableDetail) Error() string {
	var b strings.Builder
	for i, id := range d.order {
		if i > 0 {
			b.WriteString("; ")
		}
		b.WriteString(id.String())
		b.WriteString(": ")
		if c := d.causes[id]; c != nil {
			b.WriteString(c.Error())
		}
	}
	return b.String()
}

func newNoHostAvailableDetail(tried []HostError) *NoHostAvailableDetail {
	d := &NoHostAvailableDetail{causes: make(map[host.ID]liberr.Error, len(tried))}
	for _, he := range tried {
		id := he.Host.ID()
		if _, ok := d.causes[id]; !ok {
			d.order = append(d.order, id)
		}
		d.causes[id] = he.Cause
	}
	return d
}

func (h *Handler) aggregate(tried []HostError) liberr.Error {
	detail := newNoHostAvailableDetail(tried)
	err := liberr.NoHostAvailable.Error(detail)
	for _, he := range tried {
		err.Add(he.Cause)
	}
	return err
}

func (a *attempt) run(ctx context.Context, plan []*host.Host) (protocol.Result, liberr.Error) {
	idempotent := a.stmt.Options.IsIdempotent
	timeout := a.readTimeout()

	for i, h := range plan {
		res, e := a.sendTo(ctx, h, timeout)
		if e == nil {
			return res, nil
		}

		a.tried = append(a.tried, HostError{Host: h, Cause: e})

		decision := a.classify(e, idempotent)
		switch decision {
		case config.RetrySameHost:
			a.retryCount++
			res, e2 := a.sendTo(ctx, h, timeout)
			if e2 == nil {
				return res, nil
			}
			a.tried = append(a.tried, HostError{Host: h, Cause: e2})
		case config.RetryNextHost:
			a.retryCount++
			continue
		case config.RetryDecline:
			return protocol.Result{}, e
		}

		if i == len(plan)-1 {
			break
		}
	}

	return protocol.Result{}, a.noHostAvailable()
}

func (a *attempt) readTimeout() time.Duration {
	if a.stmt.Options.ReadTimeout != 0 {
		return time.Duration(a.stmt.Options.ReadTimeout)
	}
	if a.h.Defaults.ReadTimeout != 0 {
		return time.Duration(a.h.Defaults.ReadTimeout)
	}
	return 12 * time.Second
}

func (a *attempt) consistency() uint16 {
	if a.stmt.Options.Consistency != 0 {
		return uint16(a.stmt.Options.Consistency)
	}
	return uint16(a.h.Defaults.Consistency)
}

// sendTo issues the statement against one host's pool, PREPAREing first
// when requested (and transparently re-PREPAREing once on UNPREPARED).
func (a *attempt) sendTo(ctx context.Context, h *host.Host, timeout time.Duration) (protocol.Result, liberr.Error) {
	p, ok := h.Pool().(borrower)
	if !ok {
		return protocol.Result{}, liberr.ConnectionError.Error(nil)
	}

	conn, e := p.Borrow(ctx)
	if e != nil {
		return protocol.Result{}, e
	}

	if a.stmt.Options.Prepare {
		return a.sendPrepared(ctx, h, conn, timeout, true)
	}
	return a.sendQuery(ctx, conn, timeout)
}

func (a *attempt) sendQuery(ctx context.Context, conn *connection.Connection, timeout time.Duration) (protocol.Result, liberr.Error) {
	params := protocol.QueryParams{
		Consistency: a.consistency(),
		Values:      a.stmt.Values,
		PageSize:    int32(a.stmt.Options.FetchSize),
		PagingState: a.stmt.Options.PageState,
		Keyspace:    a.keyspace,
	}
	body := protocol.EncodeQuery(a.stmt.Query, params, conn.Version())
	return a.roundTrip(ctx, conn, protocol.OpQuery, body, timeout)
}

func (a *attempt) sendPrepared(ctx context.Context, h *host.Host, conn *connection.Connection, timeout time.Duration, allowReprepare bool) (protocol.Result, liberr.Error) {
	entry, err := a.h.Prepared.PrepareOn(ctx, h, a.keyspace, a.stmt.Query, func(ctx context.Context, _ *host.Host, query, keyspace string) (protocol.PreparedResult, error) {
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

	params := protocol.QueryParams{
		Consistency: a.consistency(),
		Values:      a.stmt.Values,
		PageSize:    int32(a.stmt.Options.FetchSize),
		PagingState: a.stmt.Options.PageState,
		Keyspace:    a.keyspace,
	}
	body := protocol.EncodeExecute(entry.ID, params, conn.Version())
	res, e := a.roundTrip(ctx, conn, protocol.OpExecute, body, timeout)
	if e != nil && e.IsCode(liberr.Unprepared) && allowReprepare {
		a.h.Prepared.Invalidate(a.keyspace, a.stmt.Query)
		return a.sendPrepared(ctx, h, conn, timeout, false)
	}
	return res, e
}

func (a *attempt) roundTrip(ctx context.Context, conn *connection.Connection, op protocol.OpCode, body []byte, timeout time.Duration) (protocol.Result, liberr.Error) {
	resp, e := conn.Send(ctx, connection.Request{OpCode: op, Body: body}, timeout)
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

func (a *attempt) classify(e liberr.Error, idempotent bool) config.RetryDecision {
	if a.h.Retry == nil {
		return config.RetryDecline
	}
	switch {
	case e.IsCode(liberr.ReadTimeout):
		return a.h.Retry.OnReadTimeout(a.retryCount, idempotent)
	case e.IsCode(liberr.WriteTimeout):
		return a.h.Retry.OnWriteTimeout(a.retryCount, idempotent)
	case e.IsCode(liberr.Unavailable):
		return a.h.Retry.OnUnavailable(a.retryCount, idempotent)
	default:
		return a.h.Retry.OnRequestError(a.retryCount, idempotent)
	}
}

func (a *attempt) noHostAvailable() liberr.Error {
	err := liberr.NoHostAvailable.Error(nil)
	for _, he := range a.tried {
		err.Add(he.Cause)
	}
	return err
}

// errorFromServer maps a decoded ERROR frame body onto this driver's
// errors.CodeError taxonomy (spec.md §7).
func errorFromServer(eb protocol.ErrorBody) liberr.Error {
	switch eb.Code {
	case protocol.ErrUnavailable:
		return liberr.Unavailable.Error(nil)
	case protocol.ErrOverloaded:
		return liberr.Overloaded.Error(nil)
	case protocol.ErrIsBootstrapping:
		return liberr.IsBootstrapping.Error(nil)
	case protocol.ErrTruncateError:
		return liberr.TruncateError.Error(nil)
	case protocol.ErrWriteTimeout:
		return liberr.WriteTimeout.Error(nil)
	case protocol.ErrReadTimeout:
		return liberr.ReadTimeout.Error(nil)
	case protocol.ErrReadFailure:
		return liberr.ReadFailure.Error(nil)
	case protocol.ErrFunctionFailure:
		return liberr.FunctionFailure.Error(nil)
	case protocol.ErrWriteFailure:
		return liberr.WriteFailure.Error(nil)
	case protocol.ErrSyntaxError:
		return liberr.SyntaxError.Error(nil)
	case protocol.ErrInvalid:
		return liberr.InvalidQuery.Error(nil)
	case protocol.ErrUnauthorized:
		return liberr.Unauthorized.Error(nil)
	case protocol.ErrConfigError:
		return liberr.ConfigError.Error(nil)
	case protocol.ErrAlreadyExists:
		return liberr.AlreadyExists.Error(nil)
	case protocol.ErrBadCredentials:
		return liberr.BadCredentials.Error(nil)
	case protocol.ErrUnprepared:
		return liberr.Unprepared.Error(nil)
	default:
		return liberr.ServerError.Error(nil)
	}
}
