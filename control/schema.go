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

package control

import (
	"context"

	liberr "github.com/nabbar/wcdb/errors"
	"github.com/nabbar/wcdb/metadata"
	"github.com/nabbar/wcdb/routing"
)

// scanSchema reads system_schema.keyspaces and system_schema.columns and
// assembles the per-keyspace metadata.Keyspace map for a fresh Snapshot;
// tables are built from the column rows, as system_schema.tables is not
// queried. User types, functions and aggregates are not scanned -- the
// replication-strategy and table/column shape
// a request handler needs to route and validate a statement is what a
// Bootstrap call must never skip.
func (l *Link) scanSchema(ctx context.Context) (map[string]*metadata.Keyspace, liberr.Error) {
	keyspaces := make(map[string]*metadata.Keyspace)

	ksRows, e := l.query(ctx, "SELECT keyspace_name, durable_writes, replication FROM system_schema.keyspaces")
	if e != nil {
		return nil, e
	}
	for _, row := range ksRows.Rows {
		name := cellText(cellAt(row, ksRows.Metadata, "keyspace_name"))
		durable := cellBool(cellAt(row, ksRows.Metadata, "durable_writes"))
		repl := cellTextMap(cellAt(row, ksRows.Metadata, "replication"))

		keyspaces[name] = &metadata.Keyspace{
			Name:          name,
			DurableWrites: durable,
			Strategy:      parseStrategy(repl),
			Tables:        make(map[string]*metadata.Table),
			Views:         make(map[string]*metadata.MaterializedView),
			Types:         make(map[string]*metadata.UserType),
			Functions:     make(map[string]*metadata.Function),
			Aggregates:    make(map[string]*metadata.Aggregate),
		}
	}

	colRows, e := l.query(ctx, "SELECT keyspace_name, table_name, column_name, kind, position, type FROM system_schema.columns")
	if e != nil {
		return nil, e
	}
	for _, row := range colRows.Rows {
		ksName := cellText(cellAt(row, colRows.Metadata, "keyspace_name"))
		ks, ok := keyspaces[ksName]
		if !ok {
			continue
		}
		tblName := cellText(cellAt(row, colRows.Metadata, "table_name"))
		tbl, ok := ks.Tables[tblName]
		if !ok {
			tbl = &metadata.Table{Keyspace: ksName, Name: tblName}
			ks.Tables[tblName] = tbl
		}

		col := metadata.Column{
			Name:     cellText(cellAt(row, colRows.Metadata, "column_name")),
			Type:     cellText(cellAt(row, colRows.Metadata, "type")),
			Kind:     cellText(cellAt(row, colRows.Metadata, "kind")),
			Position: int(cellInt(cellAt(row, colRows.Metadata, "position"))),
		}
		tbl.Columns = append(tbl.Columns, col)
		if col.Kind == "partition_key" {
			tbl.PartitionKeys = appendAtPosition(tbl.PartitionKeys, col.Position, col.Name)
		}
	}

	return keyspaces, nil
}

func appendAtPosition(s []string, pos int, name string) []string {
	for len(s) <= pos {
		s = append(s, "")
	}
	s[pos] = name
	return s
}

// parseStrategy maps a CREATE KEYSPACE replication map (the
// system_schema.keyspaces "replication" column) onto routing.Strategy.
func parseStrategy(repl map[string]string) routing.Strategy {
	class := repl["class"]
	switch {
	case containsSuffix(class, "NetworkTopologyStrategy"):
		dcRF := make(map[string]int)
		for k, v := range repl {
			if k == "class" {
				continue
			}
			dcRF[k] = atoiSafe(v)
		}
		return routing.Strategy{Class: routing.StrategyNetworkTopology, DCReplicationFactor: dcRF}
	case containsSuffix(class, "SimpleStrategy"):
		return routing.Strategy{Class: routing.StrategySimple, ReplicationFactor: atoiSafe(repl["replication_factor"])}
	default:
		return routing.Strategy{Class: routing.StrategyLocal}
	}
}

func containsSuffix(s, suffix string) bool {
	if len(s) < len(suffix) {
		return false
	}
	return s[len(s)-len(suffix):] == suffix
}

func atoiSafe(s string) int {
	n := 0
	for _, c := range s {
		if c < '0' || c > '9' {
			return n
		}
		n = n*10 + int(c-'0')
	}
	return n
}
