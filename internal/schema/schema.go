// Package schema loads the product JSON Schema and turns validation failures
// into advisory hints for the preview pane.
package schema

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"

	"github.com/swarm-handbook/editor/model"
)

// Schema is an immutable, parsed JSON Schema document.
type Schema struct {
	raw    json.RawMessage
	schema *openapi3.Schema
	path   string
}

// Load reads and parses the JSON Schema at path. An unreadable or invalid
// document is a LOAD_ERROR.
func Load(path string) (*Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, model.NewLoadError(fmt.Sprintf("reading schema %s: %v", path, err))
	}
	s, err := Parse(data)
	if err != nil {
		return nil, model.NewLoadError(fmt.Sprintf("parsing schema %s: %v", path, err))
	}
	s.path = path
	return s, nil
}

// Parse builds a Schema from a JSON document.
func Parse(data []byte) (*Schema, error) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil {
		return nil, fmt.Errorf("schema is not a JSON object: %w", err)
	}
	if obj == nil {
		return nil, errors.New("schema is not a JSON object")
	}

	var sch openapi3.Schema
	if err := json.Unmarshal(data, &sch); err != nil {
		return nil, fmt.Errorf("decoding schema: %w", err)
	}

	return &Schema{
		raw:    json.RawMessage(append([]byte(nil), data...)),
		schema: &sch,
	}, nil
}

// Path returns the file the schema was loaded from, if any.
func (s *Schema) Path() string {
	return s.path
}

// Raw returns the schema document as loaded.
func (s *Schema) Raw() json.RawMessage {
	return s.raw
}

// Hints validates doc, a decoded JSON value, and returns one hint per
// violation ordered by field. A nil Schema yields no hints.
func (s *Schema) Hints(doc any) []model.Hint {
	if s == nil || s.schema == nil {
		return nil
	}

	err := s.schema.VisitJSON(doc, openapi3.MultiErrors())
	if err == nil {
		return nil
	}

	var hints []model.Hint
	for _, e := range flatten(err) {
		hints = append(hints, toHint(e))
	}
	sort.SliceStable(hints, func(i, j int) bool {
		return hints[i].Field < hints[j].Field
	})
	return hints
}

// flatten unwraps nested MultiErrors into a flat list.
func flatten(err error) []error {
	var me openapi3.MultiError
	if !errors.As(err, &me) {
		return []error{err}
	}
	var out []error
	for _, e := range me {
		out = append(out, flatten(e)...)
	}
	return out
}

func toHint(err error) model.Hint {
	var se *openapi3.SchemaError
	if !errors.As(err, &se) {
		return model.Hint{Source: model.HintSourceSchema, Message: err.Error()}
	}
	field := strings.Join(se.JSONPointer(), "/")
	if field == "" && se.SchemaField == "required" {
		field = missingProperty(se.Reason)
	}
	return model.Hint{
		Field:   field,
		Source:  model.HintSourceSchema,
		Message: se.Reason,
	}
}

// missingProperty extracts the property name from a kin-openapi "property
// \"x\" is missing" reason.
func missingProperty(reason string) string {
	start := strings.IndexByte(reason, '"')
	if start < 0 {
		return ""
	}
	end := strings.IndexByte(reason[start+1:], '"')
	if end < 0 {
		return ""
	}
	return reason[start+1 : start+1+end]
}
