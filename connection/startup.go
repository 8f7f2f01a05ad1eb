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

package connection

import (
	"context"

	liberr "github.com/nabbar/wcdb/errors"
	"github.com/nabbar/wcdb/protocol"
)

// startup performs the STARTUP/(AUTHENTICATE)/READY handshake
// synchronously on stream id 0, before the receive loop (and therefore
// the pending-callback map) exists. A malformed or rejected handshake
// returns ProtocolError so Open's version-downgrade loop can retry at a
// lower version (spec.md §4.3).
func (c *Connection) startup(ctx context.Context) liberr.Error {
	options := map[string]string{"CQL_VERSION": "3.0.0"}
	if c.compressor != nil && !c.compressor.IsIdentity() {
		options["COMPRESSION"] = c.compressor.Name()
	}

	body := protocol.EncodeStartup(options)
	resp, e := c.writeReadSync(protocol.OpStartup, body)
	if e != nil {
		return e
	}

	switch resp.Header.OpCode {
	case protocol.OpReady:
		return c.afterReady(ctx)
	case protocol.OpAuthenticate:
		if c.opts.AuthProvider == nil {
			return liberr.BadCredentials.Error(nil)
		}
		return c.authenticate(ctx, resp.Body)
	case protocol.OpError:
		eb, de := protocol.DecodeError(resp.Body)
		if de != nil {
			return de
		}
		if eb.Code == protocol.ErrProtocolError {
			return liberr.ProtocolError.Error(nil)
		}
		return liberr.ServerError.Error(nil)
	default:
		return liberr.ProtocolError.Error(nil)
	}
}

func (c *Connection) authenticate(ctx context.Context, challenge []byte) liberr.Error {
	token, err := c.opts.AuthProvider.InitialResponse()
	if err != nil {
		return liberr.BadCredentials.Error(err)
	}

	for {
		resp, e := c.writeReadSync(protocol.OpAuthResponse, protocol.EncodeAuthResponse(token))
		if e != nil {
			return e
		}
		switch resp.Header.OpCode {
		case protocol.OpAuthSuccess:
			return c.afterReady(ctx)
		case protocol.OpAuthChallenge:
			next, err := c.opts.AuthProvider.EvaluateChallenge(resp.Body)
			if err != nil {
				return liberr.BadCredentials.Error(err)
			}
			token = next
		case protocol.OpError:
			return liberr.BadCredentials.Error(nil)
		default:
			return liberr.ProtocolError.Error(nil)
		}
	}
}

// afterReady issues USE <keyspace> when the pool has a logged keyspace
// and the negotiated version lacks per-request keyspace support
// (spec.md §4.3).
func (c *Connection) afterReady(ctx context.Context) liberr.Error {
	if c.opts.Keyspace == "" || c.feat.SupportsKeyspaceInRequest {
		c.loggedKeyspace = c.opts.Keyspace
		return nil
	}

	q := protocol.EncodeQuery("USE \""+c.opts.Keyspace+"\"", protocol.QueryParams{Consistency: 1}, c.version)
	resp, e := c.writeReadSync(protocol.OpQuery, q)
	if e != nil {
		return e
	}
	if resp.Header.OpCode == protocol.OpError {
		return liberr.ServerError.Error(nil)
	}
	c.loggedKeyspace = c.opts.Keyspace
	return nil
}

// writeReadSync writes one frame on stream id 0 and blocks for the
// single reply, used only during the handshake before the receive loop
// starts.
func (c *Connection) writeReadSync(op protocol.OpCode, body []byte) (Response, liberr.Error) {
	header := protocol.Header{Version: c.version, StreamID: 0, OpCode: op}
	frame, e := protocol.Encode(header, body, c.compressor)
	if e != nil {
		return Response{}, e
	}

	c.writeMu.Lock()
	_, err := c.conn.Write(frame)
	c.writeMu.Unlock()
	if err != nil {
		return Response{}, liberr.ConnectionError.Error(err)
	}

	f, e := protocol.Decode(c.conn, c.compressor)
	if e != nil {
		return Response{}, e
	}
	return Response{Header: f.Header, Body: f.Body}, nil
}
