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

// Package control owns the single dedicated connection used for topology
// and schema discovery: the initial system.local/system.peers/
// system_schema.* scan, and the long-lived TOPOLOGY_CHANGE/STATUS_CHANGE/
// SCHEMA_CHANGE event subscription that keeps the host map and metadata
// cache current afterward.
package control

import (
	"context"
	stderrors "errors"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nabbar/wcdb/config"
	"github.com/nabbar/wcdb/connection"
	liberr "github.com/nabbar/wcdb/errors"
	"github.com/nabbar/wcdb/host"
	"github.com/nabbar/wcdb/logger"
	"github.com/nabbar/wcdb/metadata"
	"github.com/nabbar/wcdb/protocol"
	"github.com/nabbar/wcdb/routing"
)

// Config bundles the control link's timing knobs, resolved from
// config.Config.
type Config struct {
	Port                          int
	LocalDataCenter               string
	RefreshSchemaDelay            time.Duration
	MaxSchemaAgreementWaitSeconds time.Duration
	ReadTimeout                   time.Duration

	// Translator rewrites a peer's system.peers address before a Host is
	// built for it. Left nil by New's caller means no rewriting; the
	// facade always supplies at least config.IdentityAddressTranslator().
	Translator config.AddressTranslator
}

// Link is the discovery-and-events connection. One Link exists per
// cluster session; it is never part of any pool's rotation.
type Link struct {
	conn  *connection.Connection
	hosts *host.Map
	meta  *metadata.Cache
	cfg   Config
	log   logger.FuncLog

	mu          sync.Mutex
	refreshTimer *time.Timer
	version     protocol.Version

	// schemaChangeSeq counts SCHEMA_CHANGE events observed over this
	// link's lifetime; the paging package samples it to detect a schema
	// change occurring mid-iteration of a resumed result set.
	schemaChangeSeq atomic.Int64
}

// SchemaChangeSeq reports the number of SCHEMA_CHANGE events observed so
// far. A caller that records this value before starting a paged iteration
// can tell, by comparing against a later read, whether the schema moved
// underneath it.
func (l *Link) SchemaChangeSeq() int64 { return l.schemaChangeSeq.Load() }

// New wraps an already-Open control connection. The caller dials and
// negotiates the connection the same way a pool connection is opened;
// only the REGISTER/EVENT handling that follows is control-link specific.
func New(conn *connection.Connection, hosts *host.Map, meta *metadata.Cache, cfg Config, log logger.FuncLog) *Link {
	return &Link{conn: conn, hosts: hosts, meta: meta, cfg: cfg, log: log, version: conn.Version()}
}

func (l *Link) query(ctx context.Context, cql string) (protocol.RowsResult, liberr.Error) {
	params := protocol.QueryParams{Consistency: uint16(1) /* ONE */}
	body := protocol.EncodeQuery(cql, params, l.version)
	resp, e := l.conn.Send(ctx, connection.Request{OpCode: protocol.OpQuery, Body: body}, l.cfg.ReadTimeout)
	if e != nil {
		return protocol.RowsResult{}, e
	}
	if resp.Header.OpCode == protocol.OpError {
		eb, de := protocol.DecodeError(resp.Body)
		if de != nil {
			return protocol.RowsResult{}, de
		}
		return protocol.RowsResult{}, liberr.ServerError.Error(stderrors.New(eb.Message))
	}
	res, e := protocol.DecodeResult(resp.Body)
	if e != nil {
		return protocol.RowsResult{}, e
	}
	return res.Rows, nil
}

// columnIndex finds a column's position by name, or -1.
func columnIndex(meta protocol.RowsMetadata, name string) int {
	for i, c := range meta.Columns {
		if c.Name == name {
			return i
		}
	}
	return -1
}

// Bootstrap performs the initial topology and schema scan (spec.md §4.5):
// system.local for the local node + partitioner, system.peers for every
// other node, and system_schema.keyspaces/columns (see scanSchema) for the
// initial Snapshot. It populates hosts and meta and returns only an error.
func (l *Link) Bootstrap(ctx context.Context) liberr.Error {
	localRows, e := l.query(ctx, "SELECT data_center, rack, release_version, partitioner, tokens, schema_version FROM system.local")
	if e != nil {
		return e
	}
	var partitioner string
	tokenAssignments := make(map[string]host.ID)

	if len(localRows.Rows) > 0 {
		row := localRows.Rows[0]
		dc := cellText(cellAt(row, localRows.Metadata, "data_center"))
		rack := cellText(cellAt(row, localRows.Metadata, "rack"))
		version := cellText(cellAt(row, localRows.Metadata, "release_version"))
		partitioner = cellText(cellAt(row, localRows.Metadata, "partitioner"))

		addr := l.conn.LocalAddr()
		h := l.upsertHost(addr, dc, rack, version)

		for _, tok := range cellTextSet(cellAt(row, localRows.Metadata, "tokens")) {
			tokenAssignments[tok] = h.ID()
		}
	}

	peerRows, e := l.query(ctx, "SELECT peer, data_center, rack, release_version, tokens FROM system.peers")
	if e != nil {
		return e
	}
	for _, row := range peerRows.Rows {
		ip := cellInet(cellAt(row, peerRows.Metadata, "peer"))
		dc := cellText(cellAt(row, peerRows.Metadata, "data_center"))
		rack := cellText(cellAt(row, peerRows.Metadata, "rack"))
		version := cellText(cellAt(row, peerRows.Metadata, "release_version"))

		addr := l.translate(ctx, &net.TCPAddr{IP: ip, Port: l.cfg.Port})
		h := l.upsertHost(addr, dc, rack, version)

		for _, tok := range cellTextSet(cellAt(row, peerRows.Metadata, "tokens")) {
			tokenAssignments[tok] = h.ID()
		}
	}

	keyspaces, e := l.scanSchema(ctx)
	if e != nil {
		return e
	}

	tkz := routing.ForPartitioner(partitioner)
	ring := routing.NewRing(tkz, tokenAssignments)
	l.meta.Update(&metadata.Snapshot{Partitioner: partitioner, Ring: ring, Keyspaces: keyspaces})

	if lg := l.logger(); lg != nil {
		lg.Info("topology/schema scan complete: %d keyspace(s), %d token assignment(s)", nil, len(keyspaces), len(tokenAssignments))
	}

	return nil
}

// logger returns the link's Logger, nil-safe both when no FuncLog was
// supplied and when the FuncLog returns a nil Logger.
func (l *Link) logger() logger.Logger {
	if l.log == nil {
		return nil
	}
	return l.log()
}

// upsertHost updates the already-known Host at addr in place rather than
// replacing it, so a refresh scan (periodic or schema-push-triggered)
// never orphans that host's attached Pool and hands it a fresh ID --
// identity (and the pool/routing state keyed on it) only churns when a
// host's address actually changes, never on a plain topology re-scan.
func (l *Link) upsertHost(addr *net.TCPAddr, dc, rack, version string) *host.Host {
	if h, ok := l.hosts.GetByAddr(addr); ok {
		h.SetTopology(dc, rack, version)
		h.SetDistance(distanceFor(dc, l.cfg.LocalDataCenter))
		l.hosts.Add(h)
		return h
	}

	h := host.New(addr, dc, rack, version)
	h.SetDistance(distanceFor(dc, l.cfg.LocalDataCenter))
	l.hosts.Add(h)
	return h
}

// translate applies the configured AddressTranslator to a peer address
// discovered via system.peers, falling back to the untranslated address on
// any error (spec.md: a broken translator must not stop discovery).
func (l *Link) translate(ctx context.Context, addr *net.TCPAddr) *net.TCPAddr {
	if l.cfg.Translator == nil {
		return addr
	}
	rewritten, err := l.cfg.Translator.Translate(ctx, addr.String())
	if err != nil {
		return addr
	}
	out, err := net.ResolveTCPAddr("tcp", rewritten)
	if err != nil {
		return addr
	}
	return out
}

func cellAt(row [][]byte, meta protocol.RowsMetadata, name string) []byte {
	idx := columnIndex(meta, name)
	if idx < 0 || idx >= len(row) {
		return nil
	}
	return row[idx]
}

func distanceFor(dc, localDC string) config.HostDistance {
	if dc == localDC {
		return config.DistanceLocal
	}
	return config.DistanceRemote
}

// Register subscribes to topology/status/schema push events and starts
// dispatching them; call once after Bootstrap succeeds.
func (l *Link) Register(ctx context.Context) liberr.Error {
	body := protocol.EncodeRegister([]string{"TOPOLOGY_CHANGE", "STATUS_CHANGE", "SCHEMA_CHANGE"})
	l.conn.OnEvent(l.handleEvent)
	_, e := l.conn.Send(ctx, connection.Request{OpCode: protocol.OpRegister, Body: body}, l.cfg.ReadTimeout)
	return e
}

func (l *Link) handleEvent(_ protocol.Header, body []byte) {
	ev, e := protocol.DecodeEvent(body)
	if e != nil {
		return
	}
	switch ev.EventType {
	case "STATUS_CHANGE":
		addr, err := net.ResolveTCPAddr("tcp", net.JoinHostPort(ev.Address, itoa(l.cfg.Port)))
		if err != nil {
			return
		}
		h, ok := l.hosts.GetByAddr(addr)
		if !ok {
			return
		}
		if ev.ChangeType == "UP" {
			l.hosts.MarkUp(h)
		} else {
			l.hosts.MarkDown(h)
		}
	case "TOPOLOGY_CHANGE":
		l.scheduleRefresh(true)
	case "SCHEMA_CHANGE":
		l.schemaChangeSeq.Add(1)
		l.scheduleRefresh(false)
	}
}

// scheduleRefresh debounces a topology/schema re-scan by RefreshSchemaDelay
// (spec.md §4.5): a burst of events within the delay window collapses into
// one refresh.
func (l *Link) scheduleRefresh(topology bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.refreshTimer != nil {
		l.refreshTimer.Stop()
	}
	l.refreshTimer = time.AfterFunc(l.cfg.RefreshSchemaDelay, func() {
		ctx, cancel := context.WithTimeout(context.Background(), l.cfg.ReadTimeout)
		defer cancel()
		_ = l.Bootstrap(ctx)
		if topology {
			l.meta.InvalidateReplicaCache()
		}
	})
}

// Close stops any pending debounced refresh and closes the underlying
// control connection. The host map and metadata cache are left exactly as
// last observed; it is the facade's job to tear those down separately.
func (l *Link) Close() {
	l.mu.Lock()
	if l.refreshTimer != nil {
		l.refreshTimer.Stop()
	}
	l.mu.Unlock()
	l.conn.Close()
}

// WaitSchemaAgreement polls system.local/system.peers' schema_version
// columns until every node reports the same UUID, or
// MaxSchemaAgreementWaitSeconds elapses (spec.md §4.5). The facade does not
// call it; it is exported for callers that issue DDL statements.
func (l *Link) WaitSchemaAgreement(ctx context.Context) liberr.Error {
	deadline := time.Now().Add(l.cfg.MaxSchemaAgreementWaitSeconds)
	for {
		agree, e := l.schemaVersionsAgree(ctx)
		if e != nil {
			return e
		}
		if agree {
			return nil
		}
		if time.Now().After(deadline) {
			return liberr.OperationTimedOut.Error(nil)
		}
		select {
		case <-ctx.Done():
			return liberr.OperationTimedOut.Error(ctx.Err())
		case <-time.After(200 * time.Millisecond):
		}
	}
}

func (l *Link) schemaVersionsAgree(ctx context.Context) (bool, liberr.Error) {
	local, e := l.query(ctx, "SELECT schema_version FROM system.local")
	if e != nil {
		return false, e
	}
	peers, e := l.query(ctx, "SELECT schema_version FROM system.peers")
	if e != nil {
		return false, e
	}

	versions := make(map[string]bool)
	if len(local.Rows) > 0 {
		versions[string(cellAt(local.Rows[0], local.Metadata, "schema_version"))] = true
	}
	for _, row := range peers.Rows {
		versions[string(cellAt(row, peers.Metadata, "schema_version"))] = true
	}
	return len(versions) <= 1, nil
}

func itoa(i int) string {
	if i == 0 {
		return "0"
	}
	neg := i < 0
	if neg {
		i = -i
	}
	var buf [12]byte
	pos := len(buf)
	for i > 0 {
		pos--
		buf[pos] = byte('0' + i%10)
		i /= 10
	}
	if neg {
		pos--
		buf[pos] = '-'
	}
	return string(buf[pos:])
}
