package protocol

import (
	"encoding/json"
	"testing"
)

func TestParseRequestValid(t *testing.T) {
	req, protoErr := ParseRequest([]byte(`{"id":"abc","method":"chat.send","params":{"sessionId":"s1"}}`))
	if protoErr != nil {
		t.Fatalf("ParseRequest() error = %v", protoErr)
	}
	if req.ID != "abc" || req.Method != "chat.send" {
		t.Errorf("ParseRequest() = %+v, want id=abc method=chat.send", req)
	}
}

func TestParseRequestNoParams(t *testing.T) {
	req, protoErr := ParseRequest([]byte(`{"id":"abc","method":"gateway.status"}`))
	if protoErr != nil {
		t.Fatalf("ParseRequest() error = %v", protoErr)
	}
	if len(req.Params) != 0 {
		t.Errorf("Params = %q, want empty", req.Params)
	}
}

func TestParseRequestInvalidJSON(t *testing.T) {
	_, protoErr := ParseRequest([]byte(`{not json`))
	if protoErr == nil {
		t.Fatal("ParseRequest() expected error for invalid JSON")
	}
	if protoErr.Code != CodeParseError {
		t.Errorf("Code = %v, want %v", protoErr.Code, CodeParseError)
	}
}

func TestParseRequestShapeMismatch(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"missing id", `{"method":"chat.send"}`},
		{"empty id", `{"id":"","method":"chat.send"}`},
		{"missing method", `{"id":"abc"}`},
		{"empty method", `{"id":"abc","method":""}`},
		{"params not object", `{"id":"abc","method":"chat.send","params":"oops"}`},
		{"missing id and method", `{}`},
		{"top-level string", `"hello"`},
		{"top-level number", `42`},
		{"top-level array", `[1,2,3]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, protoErr := ParseRequest([]byte(tt.raw))
			if protoErr == nil {
				t.Fatal("ParseRequest() expected error")
			}
			if protoErr.Code != CodeInvalidRequest {
				t.Errorf("Code = %v, want %v", protoErr.Code, CodeInvalidRequest)
			}
		})
	}
}

func TestParseRequestShapeMismatchMessageConcatenation(t *testing.T) {
	_, protoErr := ParseRequest([]byte(`{}`))
	if protoErr == nil {
		t.Fatal("expected error")
	}
	want := "id must be a non-empty string, method must be a non-empty string"
	if protoErr.Message != want {
		t.Errorf("Message = %q, want %q", protoErr.Message, want)
	}
}

func TestBuildResponseRoundTrip(t *testing.T) {
	resp := BuildResponse("req-1", map[string]string{"ok": "true"})
	raw, err := SerializeFrame(resp)
	if err != nil {
		t.Fatalf("SerializeFrame() error = %v", err)
	}

	var decoded struct {
		ID     string         `json:"id"`
		Result map[string]any `json:"result"`
		Error  *ResponseError `json:"error"`
	}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if decoded.ID != "req-1" {
		t.Errorf("ID = %q, want %q", decoded.ID, "req-1")
	}
	if decoded.Result["ok"] != "true" {
		t.Errorf("Result = %v, want ok=true", decoded.Result)
	}
	if decoded.Error != nil {
		t.Errorf("Error = %v, want nil", decoded.Error)
	}
}

func TestBuildErrorResponse(t *testing.T) {
	resp := BuildErrorResponse("req-2", CodeMethodNotFound, "no such method")
	raw, _ := SerializeFrame(resp)

	var decoded struct {
		ID     string          `json:"id"`
		Result json.RawMessage `json:"result"`
		Error  *ResponseError  `json:"error"`
	}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if decoded.Result != nil {
		t.Errorf("Result = %s, want absent", decoded.Result)
	}
	if decoded.Error == nil || decoded.Error.Code != CodeMethodNotFound {
		t.Errorf("Error = %+v, want code %v", decoded.Error, CodeMethodNotFound)
	}
}

func TestBuildEventHasNoID(t *testing.T) {
	ev := BuildEvent("chat.delta", map[string]any{"delta": "hi"})
	raw, _ := SerializeFrame(ev)

	var decoded map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if _, hasID := decoded["id"]; hasID {
		t.Errorf("event frame has an id field: %v", decoded)
	}
	if decoded["event"] != "chat.delta" {
		t.Errorf("event = %v, want chat.delta", decoded["event"])
	}
}
