// Package protocol defines the line-delimited request/response envelope
// spoken to an embedding UI shell over stdin/stdout.
package protocol

import "encoding/json"

// Error codes. Parse errors and internal faults follow JSON-RPC numbering;
// application-level failures use the generic -1 code.
const (
	CodeApplication = -1
	CodeParseError  = -32700
	CodeInternal    = -32603
)

// Request names an operation and carries its parameter object. ID is an
// opaque correlation value echoed back verbatim.
type Request struct {
	ID     json.RawMessage `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Response carries either a result or an error, never both.
type Response struct {
	ID     json.RawMessage `json:"id"`
	Result interface{}     `json:"result,omitempty"`
	Error  *Error          `json:"error,omitempty"`
}

func (r *Response) Encode() ([]byte, error) {
	b, err := json.Marshal(r)
	if err != nil {
		return nil, err
	}
	return append(b, '\n'), nil
}

func DecodeRequest(b []byte) (*Request, error) {
	var req Request
	err := json.Unmarshal(b, &req)
	return &req, err
}

// OK builds a success response correlated to the request.
func OK(id json.RawMessage, result interface{}) *Response {
	return &Response{ID: id, Result: result}
}

// Fail builds an error response correlated to the request.
func Fail(id json.RawMessage, code int, message string) *Response {
	return &Response{ID: id, Error: &Error{Code: code, Message: message}}
}
