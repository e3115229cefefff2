package rpc

import (
	"errors"
	"fmt"

	"github.com/fortiblox/intcode/pkg/intcode"
)

// JSON-RPC 2.0 standard error codes.
const (
	// ParseError indicates invalid JSON was received.
	ParseError = -32700

	// InvalidRequest indicates the JSON sent is not a valid Request object.
	InvalidRequest = -32600

	// MethodNotFound indicates the method does not exist.
	MethodNotFound = -32601

	// InvalidParams indicates invalid method parameters.
	InvalidParams = -32602

	// InternalError indicates an internal JSON-RPC error.
	InternalError = -32603
)

// Server-specific error codes.
const (
	// SessionNotFound indicates the session id is unknown or closed.
	SessionNotFound = -32001

	// ImageNotFound indicates no image matches the hash or name.
	ImageNotFound = -32002

	// MachineFault indicates the session's machine stopped on a fault.
	MachineFault = -32003

	// TooManySessions indicates the session limit was reached.
	TooManySessions = -32004
)

// Common error messages.
var (
	ErrParseError      = NewRPCError(ParseError, "Parse error")
	ErrInvalidRequest  = NewRPCError(InvalidRequest, "Invalid Request")
	ErrMethodNotFound  = NewRPCError(MethodNotFound, "Method not found")
	ErrInvalidParams   = NewRPCError(InvalidParams, "Invalid params")
	ErrInternalError   = NewRPCError(InternalError, "Internal error")
	ErrTooManySessions = NewRPCError(TooManySessions, "Too many open sessions")
)

// NewRPCError creates a new RPC error.
func NewRPCError(code int, message string) *RPCError {
	return &RPCError{
		Code:    code,
		Message: message,
	}
}

// NewRPCErrorWithData creates a new RPC error with additional data.
func NewRPCErrorWithData(code int, message string, data interface{}) *RPCError {
	return &RPCError{
		Code:    code,
		Message: message,
		Data:    data,
	}
}

// Error implements the error interface.
func (e *RPCError) Error() string {
	if e.Data != nil {
		return fmt.Sprintf("RPC error %d: %s (data: %v)", e.Code, e.Message, e.Data)
	}
	return fmt.Sprintf("RPC error %d: %s", e.Code, e.Message)
}

// InvalidParamsError creates an invalid params error with a custom message.
func InvalidParamsError(msg string) *RPCError {
	return NewRPCError(InvalidParams, msg)
}

// InvalidParamsErrorf creates an invalid params error with a formatted message.
func InvalidParamsErrorf(format string, args ...interface{}) *RPCError {
	return NewRPCError(InvalidParams, fmt.Sprintf(format, args...))
}

// InternalServerErrorf creates an internal server error with a formatted message.
func InternalServerErrorf(format string, args ...interface{}) *RPCError {
	return NewRPCError(InternalError, fmt.Sprintf(format, args...))
}

// SessionNotFoundError creates an error for an unknown session.
func SessionNotFoundError(id string) *RPCError {
	return NewRPCErrorWithData(SessionNotFound,
		fmt.Sprintf("Session %s not found", id),
		map[string]string{"session": id})
}

// ImageNotFoundError creates an error for an unknown image reference.
func ImageNotFoundError(ref string) *RPCError {
	return NewRPCErrorWithData(ImageNotFound,
		fmt.Sprintf("Image %s not found", ref),
		map[string]string{"image": ref})
}

// MachineFaultError converts a machine error into an RPC error. The fault
// location and any output produced before the fault are attached.
func MachineFaultError(err error, outputs []int64) *RPCError {
	info := FaultInfo{Outputs: outputs}
	var fault *intcode.FaultError
	if errors.As(err, &fault) {
		info.IP = fault.IP
		info.Word = fault.Word
	}
	return NewRPCErrorWithData(MachineFault, err.Error(), info)
}
