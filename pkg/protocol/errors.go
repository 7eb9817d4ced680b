package protocol

import "fmt"

// Error codes carried in response envelopes. Protocol-misuse codes follow
// the JSON-RPC convention; wallet-domain codes use the 4xxx/5xxx range so
// callers can tell "you declined" (UserReject) apart from "this site needs
// permission" (Unauthorized).
const (
	CodeNoWallet       = 4001
	CodeUnauthorized   = 4100
	CodeUserReject     = 4200
	CodeTimeout        = 4300
	CodeEngine         = 5000
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInternal       = -32603
)

// Error is the structured error carried in an envelope. It is mutually
// exclusive with a successful data payload.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("wallet error %d: %s", e.Code, e.Message)
}

// Canonical errors for conditions with fixed messages.
var (
	ErrNoWallet       = &Error{Code: CodeNoWallet, Message: "no wallet"}
	ErrUnauthorized   = &Error{Code: CodeUnauthorized, Message: "origin not authorized, call request-accounts first"}
	ErrUserReject     = &Error{Code: CodeUserReject, Message: "user rejected"}
	ErrTimeout        = &Error{Code: CodeTimeout, Message: "request timed out"}
	ErrMethodNotFound = &Error{Code: CodeMethodNotFound, Message: "method not found"}
)

// InvalidRequest builds an InvalidRequest error with a specific reason.
func InvalidRequest(msg string) *Error {
	return &Error{Code: CodeInvalidRequest, Message: msg}
}

// Internal builds an Internal error from an arbitrary failure.
func Internal(err error) *Error {
	return &Error{Code: CodeInternal, Message: err.Error()}
}

// EngineError wraps a non-zero engine result code.
func EngineError(msg string) *Error {
	return &Error{Code: CodeEngine, Message: msg}
}

// AsError converts an arbitrary handler failure into a protocol error,
// passing through errors that already carry a code.
func AsError(err error) *Error {
	if pe, ok := err.(*Error); ok {
		return pe
	}
	return Internal(err)
}
