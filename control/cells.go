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
	"encoding/binary"
	"net"

	"github.com/google/uuid"
)

// Decoding one system-table cell's raw bytes into a Go value. These are
// deliberately narrow (text/uuid/inet/set<text>/map<text,text>) -- the
// handful of CQL types system.local/system.peers/system_schema.* actually
// use -- rather than a general row-mapping layer, which is explicitly out
// of scope for this core.

func cellText(cell []byte) string {
	return string(cell)
}

func cellUUID(cell []byte) uuid.UUID {
	u, _ := uuid.FromBytes(cell)
	return u
}

func cellInet(cell []byte) net.IP {
	return net.IP(cell)
}

// cellTextSet decodes a set<text>/list<text> cell: [int]element-count
// followed by that many [int length][bytes] elements.
func cellTextSet(cell []byte) []string {
	if len(cell) < 4 {
		return nil
	}
	n := binary.BigEndian.Uint32(cell[:4])
	pos := 4
	out := make([]string, 0, n)
	for i := uint32(0); i < n; i++ {
		if pos+4 > len(cell) {
			break
		}
		l := binary.BigEndian.Uint32(cell[pos : pos+4])
		pos += 4
		if pos+int(l) > len(cell) {
			break
		}
		out = append(out, string(cell[pos:pos+int(l)]))
		pos += int(l)
	}
	return out
}

// cellTextMap decodes a map<text,text> cell: [int]pair-count followed by
// that many ([int length][bytes] key, [int length][bytes] value) pairs.
func cellTextMap(cell []byte) map[string]string {
	if len(cell) < 4 {
		return nil
	}
	n := binary.BigEndian.Uint32(cell[:4])
	pos := 4
	out := make(map[string]string, n)
	readElem := func() (string, bool) {
		if pos+4 > len(cell) {
			return "", false
		}
		l := binary.BigEndian.Uint32(cell[pos : pos+4])
		pos += 4
		if pos+int(l) > len(cell) {
			return "", false
		}
		s := string(cell[pos : pos+int(l)])
		pos += int(l)
		return s, true
	}
	for i := uint32(0); i < n; i++ {
		k, ok := readElem()
		if !ok {
			break
		}
		v, ok := readElem()
		if !ok {
			break
		}
		out[k] = v
	}
	return out
}

func cellInt(cell []byte) int32 {
	if len(cell) < 4 {
		return 0
	}
	return int32(binary.BigEndian.Uint32(cell))
}

func cellBool(cell []byte) bool {
	return len(cell) > 0 && cell[0] != 0
}
