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

// Package routing computes routing keys and resolves the replica set
// responsible for a token, per spec.md §4.7 and §3's "routing key" and
// "replica set" data model entries.
package routing

import (
	"bytes"
	"math/big"
)

// Token is an opaque, ordered ring position. Each Tokenizer produces its
// own concrete Token type; Ring only ever compares tokens through this
// interface so it stays partitioner-agnostic.
type Token interface {
	CompareTo(Token) int
	String() string
}

// Int64Token backs the Murmur3 partitioner.
type Int64Token int64

func (t Int64Token) CompareTo(o Token) int {
	ot := o.(Int64Token)
	switch {
	case t < ot:
		return -1
	case t > ot:
		return 1
	default:
		return 0
	}
}
func (t Int64Token) String() string { return bigFromInt64(int64(t)).String() }

func bigFromInt64(v int64) *big.Int { return big.NewInt(v) }

// BigIntToken backs the Random (MD5-based) partitioner.
type BigIntToken struct{ *big.Int }

func (t BigIntToken) CompareTo(o Token) int {
	return t.Int.Cmp(o.(BigIntToken).Int)
}

// BytesToken backs the ByteOrdered (identity) partitioner.
type BytesToken []byte

func (t BytesToken) CompareTo(o Token) int {
	return bytes.Compare(t, o.(BytesToken))
}
func (t BytesToken) String() string { return string(t) }

// Tokenizer hashes a routing key into this partitioner's Token space
// (spec.md §4.7).
type Tokenizer interface {
	Name() string
	Hash(routingKey []byte) Token
	// MinToken is the smallest possible Token. Ring does not use it; it
	// wraps around by index instead.
	MinToken() Token
}

// ForPartitioner selects a Tokenizer from the partitioner class name the
// control link reads off system.local (spec.md §4.7).
func ForPartitioner(name string) Tokenizer {
	switch name {
	case "org.apache.cassandra.dht.RandomPartitioner":
		return RandomTokenizer{}
	case "org.apache.cassandra.dht.ByteOrderedPartitioner":
		return ByteOrderedTokenizer{}
	default:
		return Murmur3Tokenizer{}
	}
}
