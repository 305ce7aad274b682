// Package kbschema holds the fixed knowledge article schema plus the
// guards applied to generated content before it reaches the store:
// HTML sanitization, schema validation, and content fingerprinting.
package kbschema

import (
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var errPrinter = message.NewPrinter(language.English)

// ArticleSchema is the JSON Schema a generated plan must satisfy. It is
// embedded verbatim into the planning prompt so the model sees the same
// contract the validator enforces.
const ArticleSchema = `{
  "type": "object",
  "required": ["short_description", "html", "kb_base_sys_id"],
  "properties": {
    "short_description": {"type": "string", "minLength": 1},
    "html": {"type": "string", "minLength": 1},
    "kb_base_sys_id": {"type": "string", "minLength": 1},
    "category": {"type": "string"},
    "valid_to": {"type": "string"},
    "tags": {"type": "array", "items": {"type": "string"}}
  }
}`

// Validator checks article documents against ArticleSchema. It is an
// optional capability: callers hold it behind a nilable port and skip
// validation when it is absent.
type Validator struct {
	schema *jsonschema.Schema
}

func NewValidator() (*Validator, error) {
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(ArticleSchema))
	if err != nil {
		return nil, fmt.Errorf("parse article schema: %w", err)
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource("kb_article.schema.json", doc); err != nil {
		return nil, fmt.Errorf("add article schema: %w", err)
	}
	schema, err := c.Compile("kb_article.schema.json")
	if err != nil {
		return nil, fmt.Errorf("compile article schema: %w", err)
	}
	return &Validator{schema: schema}, nil
}

// Validate checks a JSON-encoded article document and returns one
// human-readable message per violation. An empty slice means the document
// conforms.
func (v *Validator) Validate(docJSON []byte) []string {
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(string(docJSON)))
	if err != nil {
		return []string{fmt.Sprintf("document is not valid JSON: %v", err)}
	}
	err = v.schema.Validate(doc)
	if err == nil {
		return nil
	}
	ve, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return []string{err.Error()}
	}
	return collectCauses(ve)
}

// collectCauses flattens the validation error tree into leaf messages.
func collectCauses(ve *jsonschema.ValidationError) []string {
	if len(ve.Causes) == 0 {
		loc := "/" + strings.Join(ve.InstanceLocation, "/")
		return []string{fmt.Sprintf("%s: %s", loc, ve.ErrorKind.LocalizedString(errPrinter))}
	}
	var msgs []string
	for _, c := range ve.Causes {
		msgs = append(msgs, collectCauses(c)...)
	}
	return msgs
}
