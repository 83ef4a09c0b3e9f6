package llm

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schemas/*.json
var schemaFS embed.FS

// Shape is a declared output shape: a JSON Schema that is sent to the model
// and enforced again locally before any field of the output is trusted.
type Shape struct {
	Name        string
	Description string
	raw         json.RawMessage
	doc         map[string]any
	schema      *jsonschema.Schema
}

// Built-in shapes.
var (
	QuestionListShape = MustShape("questions")
	FeedbackShape     = MustShape("feedback")
)

// LoadShape compiles the embedded schema schemas/<name>.json.
func LoadShape(name string) (*Shape, error) {
	data, err := schemaFS.ReadFile("schemas/" + name + ".json")
	if err != nil {
		return nil, fmt.Errorf("read schema %s: %w", name, err)
	}
	return NewShape(name, data)
}

// MustShape is like LoadShape but panics on error.
func MustShape(name string) *Shape {
	s, err := LoadShape(name)
	if err != nil {
		panic(err)
	}
	return s
}

// NewShape compiles a JSON Schema document into a Shape.
func NewShape(name string, data []byte) (*Shape, error) {
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse schema %s: %w", name, err)
	}
	schema, err := jsonschema.CompileString(name+".json", string(data))
	if err != nil {
		return nil, fmt.Errorf("compile schema %s: %w", name, err)
	}
	desc, _ := doc["description"].(string)
	return &Shape{
		Name:        name,
		Description: desc,
		raw:         json.RawMessage(data),
		doc:         doc,
		schema:      schema,
	}, nil
}

// JSON returns the schema document as sent to OpenAI-compatible APIs.
func (s *Shape) JSON() json.RawMessage {
	return s.raw
}

// RootType returns the top-level JSON type of the shape.
func (s *Shape) RootType() string {
	t, _ := s.doc["type"].(string)
	return t
}

// Decode validates raw model output against the shape and decodes it into v.
// Any failure wraps ErrMalformedOutput.
func (s *Shape) Decode(raw string, v any) error {
	text := stripFences(raw)
	if text == "" {
		return fmt.Errorf("%w: empty output", ErrMalformedOutput)
	}

	dec := json.NewDecoder(strings.NewReader(text))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return fmt.Errorf("%w: parse %s: %v", ErrMalformedOutput, s.Name, err)
	}
	if dec.More() {
		return fmt.Errorf("%w: trailing data after %s", ErrMalformedOutput, s.Name)
	}
	if err := s.schema.Validate(doc); err != nil {
		return fmt.Errorf("%w: %s does not match schema: %v", ErrMalformedOutput, s.Name, err)
	}
	if err := json.Unmarshal([]byte(text), v); err != nil {
		return fmt.Errorf("%w: decode %s: %v", ErrMalformedOutput, s.Name, err)
	}
	return nil
}

// geminiSchema converts the shape into the OpenAPI subset accepted by the
// Gemini responseSchema field: upper-case types, "nullable" instead of
// ["x", "null"] type unions, and no unsupported keywords.
func (s *Shape) geminiSchema() map[string]any {
	out, _ := toGeminiSchema(s.doc).(map[string]any)
	return out
}

func toGeminiSchema(node any) any {
	n, ok := node.(map[string]any)
	if !ok {
		return node
	}
	out := make(map[string]any, len(n))
	for k, v := range n {
		switch k {
		case "type":
			switch t := v.(type) {
			case string:
				out["type"] = strings.ToUpper(t)
			case []any:
				for _, item := range t {
					name, _ := item.(string)
					if name == "null" {
						out["nullable"] = true
						continue
					}
					out["type"] = strings.ToUpper(name)
				}
			}
		case "properties":
			props, _ := v.(map[string]any)
			converted := make(map[string]any, len(props))
			for name, p := range props {
				converted[name] = toGeminiSchema(p)
			}
			out["properties"] = converted
		case "items":
			out["items"] = toGeminiSchema(v)
		case "required", "description", "enum", "format", "minItems", "maxItems", "nullable":
			out[k] = v
		}
	}
	return out
}

// objectSchema returns a schema whose root is an object, wrapping non-object
// shapes under an "items" property. OpenAI structured outputs only accept
// object roots.
func (s *Shape) objectSchema() (json.RawMessage, bool) {
	if s.RootType() == "object" {
		return s.raw, false
	}
	wrapped := map[string]any{
		"type":        "object",
		"description": s.Description,
		"properties":  map[string]json.RawMessage{"items": s.raw},
		"required":    []string{"items"},
	}
	data, err := json.Marshal(wrapped)
	if err != nil {
		return s.raw, false
	}
	return data, true
}

// unwrapItems undoes objectSchema on the model's answer. Output that is not
// a wrapper object is returned unchanged so that Decode reports it.
func unwrapItems(raw string) string {
	var env map[string]json.RawMessage
	if err := json.Unmarshal([]byte(stripFences(raw)), &env); err != nil {
		return raw
	}
	items, ok := env["items"]
	if !ok || len(env) != 1 {
		return raw
	}
	return string(bytes.TrimSpace(items))
}

// stripFences removes a Markdown code fence some models put around JSON.
func stripFences(raw string) string {
	text := strings.TrimSpace(raw)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	text = strings.TrimPrefix(text, "```")
	if nl := strings.IndexByte(text, '\n'); nl >= 0 {
		text = text[nl+1:]
	}
	text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	return strings.TrimSpace(text)
}
