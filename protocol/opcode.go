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

package protocol

// OpCode identifies the frame body's message type (spec.md §6).
type OpCode uint8

const (
	OpError        OpCode = 0x00
	OpStartup      OpCode = 0x01
	OpReady        OpCode = 0x02
	OpAuthenticate OpCode = 0x03
	OpOptions      OpCode = 0x05
	OpSupported    OpCode = 0x06
	OpQuery        OpCode = 0x07
	OpResult       OpCode = 0x08
	OpPrepare      OpCode = 0x09
	OpExecute      OpCode = 0x0A
	OpRegister     OpCode = 0x0B
	OpEvent        OpCode = 0x0C
	OpBatch        OpCode = 0x0D
	OpAuthChallenge OpCode = 0x0E
	OpAuthResponse  OpCode = 0x0F
	OpAuthSuccess   OpCode = 0x10
)

func (o OpCode) String() string {
	switch o {
	case OpError:
		return "ERROR"
	case OpStartup:
		return "STARTUP"
	case OpReady:
		return "READY"
	case OpAuthenticate:
		return "AUTHENTICATE"
	case OpOptions:
		return "OPTIONS"
	case OpSupported:
		return "SUPPORTED"
	case OpQuery:
		return "QUERY"
	case OpResult:
		return "RESULT"
	case OpPrepare:
		return "PREPARE"
	case OpExecute:
		return "EXECUTE"
	case OpRegister:
		return "REGISTER"
	case OpEvent:
		return "EVENT"
	case OpBatch:
		return "BATCH"
	case OpAuthChallenge:
		return "AUTH_CHALLENGE"
	case OpAuthResponse:
		return "AUTH_RESPONSE"
	case OpAuthSuccess:
		return "AUTH_SUCCESS"
	default:
		return "UNKNOWN"
	}
}

// ResultKind identifies the RESULT opcode's body variant.
type ResultKind int32

const (
	ResultVoid ResultKind = iota + 1
	ResultRows
	ResultSetKeyspace
	ResultPrepared
	ResultSchemaChange
)

// ServerErrorCode mirrors the error codes carried in an ERROR frame body,
// used to build the matching errors.CodeError (spec.md §7).
type ServerErrorCode int32

const (
	ErrServerError     ServerErrorCode = 0x0000
	ErrProtocolError   ServerErrorCode = 0x000A
	ErrBadCredentials  ServerErrorCode = 0x0100
	ErrUnavailable     ServerErrorCode = 0x1000
	ErrOverloaded      ServerErrorCode = 0x1001
	ErrIsBootstrapping ServerErrorCode = 0x1002
	ErrTruncateError   ServerErrorCode = 0x1003
	ErrWriteTimeout    ServerErrorCode = 0x1100
	ErrReadTimeout     ServerErrorCode = 0x1200
	ErrReadFailure     ServerErrorCode = 0x1300
	ErrFunctionFailure ServerErrorCode = 0x1400
	ErrWriteFailure    ServerErrorCode = 0x1500
	ErrSyntaxError     ServerErrorCode = 0x2000
	ErrUnauthorized    ServerErrorCode = 0x2100
	ErrInvalid         ServerErrorCode = 0x2200
	ErrConfigError     ServerErrorCode = 0x2300
	ErrAlreadyExists   ServerErrorCode = 0x2400
	ErrUnprepared      ServerErrorCode = 0x2500
)

// WriteType classifies the write operation a WriteTimeout/WriteFailure
// reports on, consulted by the retry policy.
type WriteType string

const (
	WriteTypeSimple        WriteType = "SIMPLE"
	WriteTypeBatch         WriteType = "BATCH"
	WriteTypeUnloggedBatch WriteType = "UNLOGGED_BATCH"
	WriteTypeCounter       WriteType = "COUNTER"
	WriteTypeBatchLog      WriteType = "BATCH_LOG"
	WriteTypeCAS           WriteType = "CAS"
	WriteTypeView          WriteType = "VIEW"
	WriteTypeCDC           WriteType = "CDC"
)
