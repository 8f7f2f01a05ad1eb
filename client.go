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

// Package wcdb is the client facade: Connect wires every package in this
// module into one live session against a cluster, and the returned Client
// drives Execute/Batch/EachRow/Stream against it until Shutdown or
// ForceShutdown is called.
package wcdb

import (
	"context"
	"crypto/tls"
	stderrors "errors"
	"net"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/nabbar/wcdb/config"
	"github.com/nabbar/wcdb/connection"
	"github.com/nabbar/wcdb/control"
	"github.com/nabbar/wcdb/duration"
	liberr "github.com/nabbar/wcdb/errors"
	"github.com/nabbar/wcdb/host"
	"github.com/nabbar/wcdb/logger"
	"github.com/nabbar/wcdb/metadata"
	"github.com/nabbar/wcdb/metrics"
	"github.com/nabbar/wcdb/paging"
	"github.com/nabbar/wcdb/policy"
	"github.com/nabbar/wcdb/pool"
	"github.com/nabbar/wcdb/prepared"
	"github.com/nabbar/wcdb/protocol"
	"github.com/nabbar/wcdb/queryopt"
	"github.com/nabbar/wcdb/request"
)

// Client is one live session against a cluster: the discovered host map,
// the per-host connection pools, the control link keeping both current,
// and the request handler that drives every statement over them.
type Client struct {
	cfg *config.Config

	hosts    *host.Map
	meta     *metadata.Cache
	prepared *prepared.Registry
	profiles *queryopt.Profiles
	handler  *request.Handler
	link     *control.Link
	metrics  *metrics.Collectors
	logf     logger.FuncLog
	dial     pool.Dialer

	downed   sync.Once
	shutdown atomic.Bool
}

// Connect resolves cfg.ContactPoints, opens a dedicated control connection
// to the first reachable one, bootstraps the topology/schema snapshot over
// it, warms up every discovered non-ignored host's pool (bounded by
// cfg.WarmupConcurrency when cfg.Pooling.Warmup is set), then subscribes
// the control link to topology/status/schema push events (spec.md §4.12).
// A nil cfg is replaced by config.Default(), and reg may be nil to build a
// Client without Prometheus metrics.
func Connect(ctx context.Context, cfg *config.Config, reg prometheus.Registerer) (*Client, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if e := cfg.Validate(); e != nil {
		return nil, e
	}

	c := &Client{
		cfg:      cfg,
		hosts:    host.NewMap(),
		meta:     metadata.New(4096),
		prepared: prepared.New(cfg.MaxPrepared),
		profiles: queryopt.NewProfiles(),
		metrics:  metrics.New(reg),
	}
	lg := logger.New(ctx)
	c.logf = func() logger.Logger { return lg }
	c.dial = c.buildDialer()
	c.wireDefaultPolicies()

	addrs, e := resolveContactPoints(cfg)
	if e != nil {
		return nil, e
	}

	controlConn, e := c.openControlConnection(ctx, addrs)
	if e != nil {
		return nil, e
	}

	c.link = control.New(controlConn, c.hosts, c.meta, c.controlConfig(), c.logf)
	if e := c.link.Bootstrap(ctx); e != nil {
		return nil, e
	}

	c.warmup(ctx)

	c.hosts.OnAdd(func(h *host.Host) { go c.ensurePool(context.Background(), h) })
	c.hosts.OnDown(func(h *host.Host) {
		c.metrics.SetOpenConnections(h.Endpoint().String(), h.Distance(), 0)
	})
	c.hosts.OnUp(func(h *host.Host) {
		if p, ok := h.Pool().(*pool.Pool); ok {
			c.metrics.SetOpenConnections(h.Endpoint().String(), h.Distance(), p.Size())
		}
	})

	if e := c.link.Register(ctx); e != nil {
		return nil, e
	}

	planner, ok := cfg.Policies.LoadBalancing.(request.Planner)
	if !ok {
		return nil, liberr.ConfigError.Error(stderrors.New("load balancing policy does not implement request.Planner"))
	}

	c.handler = &request.Handler{
		Hosts:       c.hosts,
		Planner:     planner,
		Retry:       cfg.Policies.Retry,
		Speculative: cfg.Policies.SpeculativeExecution,
		Prepared:    c.prepared,
		Defaults:    cfg.QueryOptions,
		Keyspace:    cfg.Keyspace,
	}

	if l := c.logf(); l != nil {
		l.Info("connected to cluster, %d host(s) discovered", nil, len(c.hosts.All()))
	}

	return c, nil
}

// wireDefaultPolicies fills every nil Policies field with the driver's
// built-in default, per spec.md §6's documented defaults. Speculative
// execution and a custom AddressTranslator are deliberately left nil when
// unset: request.Handler treats a nil SpeculativeExecutionPolicy as
// "disabled" without ever calling Delay, and control.Link treats a nil
// Translator as "no rewriting" -- wiring a concrete no-op there would cost
// an extra call on every discovered peer for no behavioral difference.
func (c *Client) wireDefaultPolicies() {
	p := &c.cfg.Policies
	if p.Retry == nil {
		p.Retry = policy.NewDefaultRetry()
	}
	if p.Reconnection == nil {
		p.Reconnection = policy.NewExponentialReconnection(duration.Seconds(1), duration.Seconds(60))
	}
	if p.LoadBalancing == nil {
		rr := policy.NewRoundRobin(c.hosts, c.cfg.LocalDataCenter)
		p.LoadBalancing = policy.NewTokenAware(rr, metadata.Resolver{Cache: c.meta, Hosts: c.hosts})
	}
}

func resolveContactPoints(cfg *config.Config) ([]*net.TCPAddr, liberr.Error) {
	port := cfg.ProtocolOptions.Port
	if port == 0 {
		port = config.DefaultPort
	}

	var addrs []*net.TCPAddr
	for _, cp := range cfg.ContactPoints {
		h, ps, err := net.SplitHostPort(cp)
		p := port
		if err != nil {
			h = cp
		} else if n, err2 := strconv.Atoi(ps); err2 == nil {
			p = n
		}

		addr, err := net.ResolveTCPAddr("tcp", net.JoinHostPort(h, strconv.Itoa(p)))
		if err != nil {
			continue
		}
		addrs = append(addrs, addr)
	}

	if len(addrs) == 0 {
		return nil, liberr.ConfigError.Error(stderrors.New("no resolvable contact points"))
	}
	return addrs, nil
}

// buildDialer returns the Dialer every pool and the control connection
// share, optionally wrapping the raw TCP connection in TLS when
// Config.SSLOptions carries a *tls.Config -- the core stays ignorant of
// how that config was built (spec.md §1's transport-security non-goal).
func (c *Client) buildDialer() pool.Dialer {
	tlsCfg, _ := c.cfg.SSLOptions.(*tls.Config)
	opts := c.cfg.SocketOptions

	return func(ctx context.Context, addr *net.TCPAddr) (net.Conn, error) {
		d := net.Dialer{Timeout: opts.ConnectTimeout.Time()}
		raw, err := d.DialContext(ctx, "tcp", addr.String())
		if err != nil {
			return nil, err
		}
		if tcp, ok := raw.(*net.TCPConn); ok {
			_ = tcp.SetNoDelay(opts.TCPNoDelay)
			if opts.KeepAlive {
				_ = tcp.SetKeepAlive(true)
				_ = tcp.SetKeepAlivePeriod(opts.KeepAliveDelay.Time())
			}
		}
		if tlsCfg != nil {
			return tls.Client(raw, tlsCfg), nil
		}
		return raw, nil
	}
}

func (c *Client) connOptions() connection.Options {
	return connection.Options{
		ProtocolOptions: c.cfg.ProtocolOptions,
		SocketOptions:   c.cfg.SocketOptions,
		Compressor:      protocol.NoCompression(),
		AuthProvider:    c.authProvider(),
		Keyspace:        c.cfg.Keyspace,
		Logger:          c.logf,
	}
}

func (c *Client) authProvider() config.AuthProvider {
	if c.cfg.Policies.AuthProvider != nil {
		return c.cfg.Policies.AuthProvider
	}
	if c.cfg.Credentials != nil {
		return config.NewPasswordAuthProvider(c.cfg.Credentials)
	}
	return nil
}

func (c *Client) controlConfig() control.Config {
	return control.Config{
		Port:                          c.cfg.ProtocolOptions.Port,
		LocalDataCenter:               c.cfg.LocalDataCenter,
		RefreshSchemaDelay:            c.cfg.RefreshSchemaDelay.Time(),
		MaxSchemaAgreementWaitSeconds: c.cfg.ProtocolOptions.MaxSchemaAgreementWaitSeconds.Time(),
		ReadTimeout:                   c.cfg.SocketOptions.ReadTimeout.Time(),
		Translator:                    c.cfg.Policies.AddressResolution,
	}
}

func (c *Client) openControlConnection(ctx context.Context, addrs []*net.TCPAddr) (*connection.Connection, liberr.Error) {
	var last liberr.Error
	for _, addr := range addrs {
		dialCtx, cancel := context.WithTimeout(ctx, c.cfg.SocketOptions.ConnectTimeout.Time())
		raw, err := c.dial(dialCtx, addr)
		cancel()
		if err != nil {
			last = liberr.ConnectionError.Error(err)
			continue
		}

		cc, e := connection.Open(ctx, raw, c.connOptions())
		if e != nil {
			last = e
			continue
		}
		return cc, nil
	}
	if last == nil {
		last = liberr.NoHostAvailable.Error(nil)
	}
	return nil, last
}

// poolConfigFor resolves a Pool's sizing and timing knobs for one distance,
// falling back to the driver's documented defaults (spec.md §6) for any
// zero-valued field.
func (c *Client) poolConfigFor(d config.HostDistance) pool.Config {
	core := c.cfg.Pooling.CoreConnectionsPerHost[d]
	if core <= 0 {
		core = config.DefaultCoreConnectionsRemote
		if d == config.DistanceLocal {
			core = config.DefaultCoreConnectionsLocal
		}
	}
	maxReq := c.cfg.Pooling.MaxRequestsPerConnection[d]
	if maxReq <= 0 {
		maxReq = config.DefaultMaxRequestsPerConnectionV3
	}

	return pool.Config{
		CoreConnections:   core,
		MaxRequests:       maxReq,
		HeartBeatInterval: c.cfg.Pooling.HeartBeatInterval.Time(),
		ConnectTimeout:    c.cfg.SocketOptions.ConnectTimeout.Time(),
		ReadTimeout:       c.cfg.SocketOptions.ReadTimeout.Time(),
		ConnOptions:       c.connOptions(),
		Reconnection:      c.cfg.Policies.Reconnection,
	}
}

// ensurePool attaches and opens a Pool for h, unless h has been classified
// distance=ignored. Wires the pool's failure/recovery callbacks straight
// back into the host map, so a pool that loses every connection and later
// reconnects on its own keeps the host map's up/down status in sync
// without the control link needing to poll it (spec.md §4.4).
func (c *Client) ensurePool(ctx context.Context, h *host.Host) {
	if h.Distance() == config.DistanceIgnored {
		return
	}

	p := pool.New(h.Endpoint(), c.dial, c.poolConfigFor(h.Distance()), c.logf)
	p.OnAllConnectionsFailed(func() { c.hosts.MarkDown(h) })
	p.OnReconnected(func() { c.hosts.MarkUp(h) })

	if e := p.Open(ctx); e != nil {
		c.hosts.MarkDown(h)
		return
	}
	h.SetPool(p)
	c.metrics.SetOpenConnections(h.Endpoint().String(), h.Distance(), p.Size())
}

// warmup opens every already-discovered non-ignored host's pool in
// parallel, bounded by Config.WarmupConcurrency (default
// config.DefaultWarmupConcurrency), per spec.md §4.12 and SPEC_FULL.md's
// "idle pool warmup concurrency cap" supplement. Hosts discovered later
// (topology changes) are instead picked up one at a time by the
// host.Map.OnAdd hook wired after this call returns.
func (c *Client) warmup(ctx context.Context) {
	if !c.cfg.Pooling.Warmup {
		return
	}

	limit := c.cfg.WarmupConcurrency
	if limit <= 0 {
		limit = config.DefaultWarmupConcurrency
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	for _, h := range c.hosts.All() {
		h := h
		if h.Distance() == config.DistanceIgnored {
			continue
		}
		g.Go(func() error {
			c.ensurePool(gctx, h)
			return nil
		})
	}
	_ = g.Wait()
}

// checkOpen returns liberr.NoHostAvailableAfterShutdown once Shutdown or
// ForceShutdown has run, so every public method fails fast and
// consistently instead of racing against closed pools.
func (c *Client) checkOpen() liberr.Error {
	if c.shutdown.Load() {
		return liberr.NoHostAvailableAfterShutdown.Error(nil)
	}
	return nil
}

// resolveOptions merges per-call opts (if non-nil) over profileName's
// execution profile (if named) over the facade's default QueryOptions,
// per spec.md §4.11's resolution order. The resolved LoadBalancing/Retry/
// SpeculativeExecution policies are reported on the returned
// queryopt.Resolved for callers that need to inspect them (e.g. tests);
// the request handler itself applies the process-wide policies fixed at
// Connect time, since a single statement's plan/retry/speculative
// treatment cannot straddle two different host-ordering policies mid
// retry loop.
func (c *Client) resolveOptions(profileName string, opts *config.QueryOptions) (config.QueryOptions, queryopt.Resolved) {
	resolved := queryopt.Resolve(c.cfg, c.profiles, profileName, opts)

	merged := c.cfg.QueryOptions
	merged.Consistency = resolved.Consistency
	merged.SerialConsistency = resolved.SerialConsistency
	merged.ReadTimeout = resolved.ReadTimeout
	if opts != nil {
		// Every remaining field describes this call, not a layered
		// default -- PageState/RoutingKey/Timestamp/... have no sensible
		// "inherited from Config.QueryOptions" reading, so opts replaces
		// them outright rather than merging field by field.
		o := *opts
		o.Consistency = merged.Consistency
		o.SerialConsistency = merged.SerialConsistency
		o.ReadTimeout = merged.ReadTimeout
		merged = o
	}
	return merged, resolved
}

// RegisterProfile adds or replaces a named execution profile, resolved
// alongside per-call options per spec.md §4.11.
func (c *Client) RegisterProfile(p *queryopt.ExecutionProfile) {
	c.profiles.Register(p)
}

// Execute runs a single statement through the request handler, resolving
// its QueryOptions against profileName (empty string selects the default
// profile).
func (c *Client) Execute(ctx context.Context, query string, values []protocol.BoundValue, profileName string, opts *config.QueryOptions) (protocol.Result, liberr.Error) {
	if e := c.checkOpen(); e != nil {
		return protocol.Result{}, e
	}
	merged, _ := c.resolveOptions(profileName, opts)
	return c.handler.Execute(ctx, request.Statement{
		Query:      query,
		Values:     values,
		Options:    merged,
		RoutingKey: merged.RoutingKey,
	})
}

// Batch runs a BATCH statement through the request handler, composed of
// items sharing profileName's resolved options.
func (c *Client) Batch(ctx context.Context, kind protocol.BatchKind, items []request.BatchItem, profileName string, opts *config.QueryOptions) (protocol.Result, liberr.Error) {
	if e := c.checkOpen(); e != nil {
		return protocol.Result{}, e
	}
	merged, _ := c.resolveOptions(profileName, opts)
	return c.handler.Batch(ctx, request.BatchStatement{Kind: kind, Items: items, Options: merged})
}

// EachRow drives a statement's page-state-based iteration, calling fn with
// every row until fn returns false, the result set is exhausted, or a page
// fetch fails. A statement resumed from a caller-supplied Options.PageState
// surfaces a SchemaChangedMidPage error on the fetch following the resumed
// page if a schema change raced it (spec.md §4.9, see paging.Iterator).
func (c *Client) EachRow(ctx context.Context, query string, values []protocol.BoundValue, profileName string, opts *config.QueryOptions, fn func(paging.Row) bool) liberr.Error {
	if e := c.checkOpen(); e != nil {
		return e
	}
	merged, _ := c.resolveOptions(profileName, opts)
	stmt := request.Statement{Query: query, Values: values, Options: merged, RoutingKey: merged.RoutingKey}
	it := paging.NewIterator(c.handler, stmt, c.link)
	return it.AutoPage(ctx, func(p *paging.Page) bool {
		for _, r := range p.Rows {
			if !fn(r) {
				return false
			}
		}
		return true
	})
}

// Stream is EachRow's channel-based counterpart: rows arrive on the
// returned channel as pages are fetched, backpressured by the channel
// being unbuffered (spec.md §4.9's streaming facade).
func (c *Client) Stream(ctx context.Context, query string, values []protocol.BoundValue, profileName string, opts *config.QueryOptions) (<-chan paging.Row, <-chan liberr.Error) {
	if e := c.checkOpen(); e != nil {
		errc := make(chan liberr.Error, 1)
		errc <- e
		close(errc)
		rows := make(chan paging.Row)
		close(rows)
		return rows, errc
	}
	merged, _ := c.resolveOptions(profileName, opts)
	stmt := request.Statement{Query: query, Values: values, Options: merged, RoutingKey: merged.RoutingKey}
	it := paging.NewIterator(c.handler, stmt, c.link)
	return it.Stream(ctx)
}

// Shutdown marks the client closed, so every call made afterward fails
// immediately with NoHostAvailableAfterShutdown, then closes every host's
// pool and the control connection. pool.Pool.Close closes each connection
// at once, so requests still in flight fail with a connection error; in-flight
// requests are not drained. Shutdown waits until the pools are closed or ctx
// is done, whichever comes first, before closing the control connection.
func (c *Client) Shutdown(ctx context.Context) error {
	c.shutdown.Store(true)
	if l := c.logf(); l != nil {
		l.Info("client shutting down gracefully", nil)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for _, h := range c.hosts.All() {
			if p, ok := h.Pool().(*pool.Pool); ok {
				p.Close()
			}
		}
	}()

	select {
	case <-done:
	case <-ctx.Done():
	}

	c.downed.Do(func() {
		if c.link != nil {
			c.link.Close()
		}
	})
	return nil
}

// ForceShutdown marks the client closed and tears down every pool and the
// control connection immediately, without waiting on in-flight requests.
func (c *Client) ForceShutdown() {
	c.shutdown.Store(true)
	if l := c.logf(); l != nil {
		l.Warning("client force-shutting down, in-flight requests abandoned", nil)
	}
	for _, h := range c.hosts.All() {
		if p, ok := h.Pool().(*pool.Pool); ok {
			p.Close()
		}
	}
	c.downed.Do(func() {
		if c.link != nil {
			c.link.Close()
		}
	})
}
