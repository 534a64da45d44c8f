package protocol

import (
	"encoding/json"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// methodSchemas holds the compiled JSON schemas for well-known method
// params, compiled lazily on first use.
type methodSchemas struct {
	once    sync.Once
	initErr error
	byName  map[string]*jsonschema.Schema
}

var schemas methodSchemas

// knownMethodSchemas maps method name to its JSON-schema source. Methods
// with no entry here skip schema validation (handler-local decoding still
// applies).
var knownMethodSchemas = map[string]string{
	"chat.send": `{
		"type": "object",
		"required": ["sessionId", "message"],
		"properties": {
			"sessionId": { "type": "string", "minLength": 1 },
			"message": { "type": "string", "minLength": 1 },
			"model": { "type": "string" },
			"systemPrompt": { "type": "string" }
		},
		"additionalProperties": true
	}`,
	"chat.cancel": `{
		"type": "object",
		"required": ["id"],
		"properties": {
			"id": { "type": "string", "minLength": 1 }
		},
		"additionalProperties": true
	}`,
	"channels.start": `{
		"type": "object",
		"required": ["id"],
		"properties": { "id": { "type": "string", "minLength": 1 } },
		"additionalProperties": true
	}`,
	"channels.stop": `{
		"type": "object",
		"required": ["id"],
		"properties": { "id": { "type": "string", "minLength": 1 } },
		"additionalProperties": true
	}`,
}

func initSchemas() error {
	schemas.once.Do(func() {
		schemas.byName = make(map[string]*jsonschema.Schema, len(knownMethodSchemas))
		for name, src := range knownMethodSchemas {
			compiled, err := jsonschema.CompileString("method_"+name, src)
			if err != nil {
				schemas.initErr = err
				return
			}
			schemas.byName[name] = compiled
		}
	})
	return schemas.initErr
}

// ValidateParams validates a method's params against its registered
// schema, if any. Returns a concatenated, comma-separated message on
// failure, matching the codec's INVALID_REQUEST convention.
func ValidateParams(method string, params json.RawMessage) error {
	if err := initSchemas(); err != nil {
		return err
	}
	schema := schemas.byName[method]
	if schema == nil {
		return nil
	}

	var payload any
	if len(params) == 0 {
		payload = map[string]any{}
	} else if err := json.Unmarshal(params, &payload); err != nil {
		return err
	}

	if err := schema.Validate(payload); err != nil {
		if ve, ok := err.(*jsonschema.ValidationError); ok {
			msgs := collectValidationMessages(ve)
			return &ProtocolError{Code: CodeInvalidParams, Message: strings.Join(msgs, ", ")}
		}
		return &ProtocolError{Code: CodeInvalidParams, Message: err.Error()}
	}
	return nil
}

func collectValidationMessages(ve *jsonschema.ValidationError) []string {
	if len(ve.Causes) == 0 {
		return []string{ve.Message}
	}
	var out []string
	for _, cause := range ve.Causes {
		out = append(out, collectValidationMessages(cause)...)
	}
	return out
}
