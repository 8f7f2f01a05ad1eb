/*
 * MIT License
 *
 * Copyright (c) 2020 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 *
 */

package errors

// Driver error taxonomy. One CodeError per class named in the native
// protocol's ERROR opcode plus the client-side classes the request
// handler synthesizes. Codes are stable across releases: callers may
// dispatch on them with IsCode/HasCode instead of string matching.
const (
	MinCoreTaxonomy CodeError = 10

	// Transport errors: the socket itself misbehaved.
	ConnectionError CodeError = MinCoreTaxonomy + 1
	ProtocolError   CodeError = MinCoreTaxonomy + 2

	// Client-side timeout: readTimeout elapsed with no response.
	OperationTimedOut CodeError = MinCoreTaxonomy + 3

	// Server-reported errors that retry policies may act on.
	ServerError     CodeError = MinCoreTaxonomy + 4
	Unavailable     CodeError = MinCoreTaxonomy + 5
	Overloaded      CodeError = MinCoreTaxonomy + 6
	IsBootstrapping CodeError = MinCoreTaxonomy + 7
	TruncateError   CodeError = MinCoreTaxonomy + 8
	WriteTimeout    CodeError = MinCoreTaxonomy + 9
	ReadTimeout     CodeError = MinCoreTaxonomy + 10
	ReadFailure     CodeError = MinCoreTaxonomy + 11
	WriteFailure    CodeError = MinCoreTaxonomy + 12
	FunctionFailure CodeError = MinCoreTaxonomy + 13

	// Non-retryable query errors.
	SyntaxError    CodeError = MinCoreTaxonomy + 14
	InvalidQuery   CodeError = MinCoreTaxonomy + 15
	Unauthorized   CodeError = MinCoreTaxonomy + 16
	ConfigError    CodeError = MinCoreTaxonomy + 17
	AlreadyExists  CodeError = MinCoreTaxonomy + 18
	BadCredentials CodeError = MinCoreTaxonomy + 19

	// Handled transparently by the prepared registry + request handler.
	Unprepared CodeError = MinCoreTaxonomy + 20

	// Aggregate error carrying one inner error per attempted host.
	NoHostAvailable CodeError = MinCoreTaxonomy + 21

	// Argument validation errors raised at the API boundary.
	ArgumentError CodeError = MinCoreTaxonomy + 22

	// NoHostAvailableAfterShutdown is the specific NoHostAvailable
	// rendering used once the client has been shut down.
	NoHostAvailableAfterShutdown CodeError = MinCoreTaxonomy + 23

	// SchemaChangedMidPage is a soft failure surfaced by the paging
	// package: an auto-paged iteration that resumed from a caller-supplied
	// page state observed a SCHEMA_CHANGE event partway through. The rows
	// already fetched for the current page are still delivered; this error
	// is attached to the page that follows them.
	SchemaChangedMidPage CodeError = MinCoreTaxonomy + 24
)

func init() {
	RegisterIdFctMessage(MinCoreTaxonomy, taxonomyMessage)
}

func taxonomyMessage(code CodeError) string {
	switch code {
	case ConnectionError:
		return "connection error: transport closed or reset"
	case ProtocolError:
		return "protocol error: malformed frame or unsupported version"
	case OperationTimedOut:
		return "operation timed out waiting for a response"
	case ServerError:
		return "server error"
	case Unavailable:
		return "not enough replicas available for the requested consistency level"
	case Overloaded:
		return "coordinator is overloaded"
	case IsBootstrapping:
		return "coordinator is bootstrapping"
	case TruncateError:
		return "truncate failed"
	case WriteTimeout:
		return "server-side write timeout"
	case ReadTimeout:
		return "server-side read timeout"
	case ReadFailure:
		return "server-side read failure"
	case WriteFailure:
		return "server-side write failure"
	case FunctionFailure:
		return "user-defined function execution failed"
	case SyntaxError:
		return "query syntax error"
	case InvalidQuery:
		return "invalid query"
	case Unauthorized:
		return "unauthorized"
	case ConfigError:
		return "server configuration error"
	case AlreadyExists:
		return "keyspace or table already exists"
	case BadCredentials:
		return "bad credentials"
	case Unprepared:
		return "unprepared statement"
	case NoHostAvailable:
		return "no host was available to serve the request"
	case NoHostAvailableAfterShutdown:
		return "no host was available: client is shut down"
	case ArgumentError:
		return "invalid argument"
	case SchemaChangedMidPage:
		return "schema changed while paging through a resumed result set"
	default:
		return UnknownMessage
	}
}
