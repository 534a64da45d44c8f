package protocol

import (
	"encoding/json"
	"strings"
)

// Request is a client-initiated frame.
type Request struct {
	ID     string          `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

// ResponseError is the error half of a Response frame.
type ResponseError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// Response answers a Request by id. Exactly one of Result/Error is set.
type Response struct {
	ID     string         `json:"id"`
	Result any            `json:"result,omitempty"`
	Error  *ResponseError `json:"error,omitempty"`
}

// Event is a server-initiated frame; it carries no id. Seq is a
// per-connection ordering counter for diagnostics; clients must ignore
// unknown fields, so a zero Seq is simply omitted.
type Event struct {
	Event string `json:"event"`
	Seq   int64  `json:"seq,omitempty"`
	Data  any    `json:"data,omitempty"`
}

// rawRequestShape is used to distinguish "not JSON" from "JSON but the
// wrong shape" before decoding into Request.
type rawRequestShape struct {
	ID     *string         `json:"id"`
	Method *string         `json:"method"`
	Params json.RawMessage `json:"params"`
}

// ParseRequest decodes a wire frame into a Request, enforcing the codec's
// shape invariants: non-empty id, non-empty method, object-or-absent
// params.
func ParseRequest(raw []byte) (*Request, *ProtocolError) {
	if !json.Valid(raw) {
		return nil, &ProtocolError{Code: CodeParseError, Message: "invalid JSON"}
	}

	var shape rawRequestShape
	if err := json.Unmarshal(raw, &shape); err != nil {
		// raw is valid JSON (checked above) but not shaped as an object,
		// e.g. a bare string, number, or array — that's a shape mismatch,
		// not a syntax error.
		return nil, &ProtocolError{Code: CodeInvalidRequest, Message: "request must be a JSON object"}
	}

	var issues []string
	if shape.ID == nil || *shape.ID == "" {
		issues = append(issues, "id must be a non-empty string")
	}
	if shape.Method == nil || *shape.Method == "" {
		issues = append(issues, "method must be a non-empty string")
	}
	if len(shape.Params) > 0 {
		trimmed := strings.TrimSpace(string(shape.Params))
		if len(trimmed) == 0 || trimmed[0] != '{' {
			issues = append(issues, "params must be an object")
		}
	}
	if len(issues) > 0 {
		return nil, &ProtocolError{Code: CodeInvalidRequest, Message: strings.Join(issues, ", ")}
	}

	return &Request{ID: *shape.ID, Method: *shape.Method, Params: shape.Params}, nil
}

// BuildResponse constructs a success Response.
func BuildResponse(id string, result any) *Response {
	return &Response{ID: id, Result: result}
}

// BuildErrorResponse constructs a failure Response.
func BuildErrorResponse(id string, code ErrorCode, message string) *Response {
	return &Response{ID: id, Error: &ResponseError{Code: code, Message: message}}
}

// BuildEvent constructs a server-initiated Event frame.
func BuildEvent(event string, data any) *Event {
	return &Event{Event: event, Data: data}
}

// SerializeFrame marshals any frame value (Request, Response, Event) to
// wire JSON.
func SerializeFrame(frame any) ([]byte, error) {
	return json.Marshal(frame)
}
