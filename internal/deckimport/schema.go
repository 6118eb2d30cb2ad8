package deckimport

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// responseSchema is the shape a generator answer must have. Category values may
// be a list of names, a single name, or null.
const responseSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["Deck"],
  "properties": {
    "Type": {"type": "string"},
    "Message": {"type": ["string", "null"]},
    "Theme": {"type": ["string", "null"]},
    "RequestedPrice": {"type": ["number", "string", "null"]},
    "Deck": {
      "type": "object",
      "additionalProperties": {
        "type": ["array", "string", "null"],
        "items": {"type": "string"}
      }
    }
  }
}`

const schemaURL = "deck-response.json"

var (
	schemaOnce sync.Once
	compiled   *jsonschema.Schema
	schemaErr  error
)

func loadSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		var doc interface{}
		if err := json.Unmarshal([]byte(responseSchema), &doc); err != nil {
			schemaErr = fmt.Errorf("unmarshal schema: %w", err)
			return
		}
		c := jsonschema.NewCompiler()
		if err := c.AddResource(schemaURL, doc); err != nil {
			schemaErr = fmt.Errorf("add schema resource: %w", err)
			return
		}
		compiled, schemaErr = c.Compile(schemaURL)
	})
	return compiled, schemaErr
}

// checkShape validates a decoded JSON document against responseSchema and
// returns a one-line summary of the violations.
func checkShape(doc interface{}) error {
	sch, err := loadSchema()
	if err != nil {
		return err
	}
	err = sch.Validate(doc)
	if err == nil {
		return nil
	}
	ve, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return err
	}
	var msgs []string
	for _, cause := range flatten(ve) {
		loc := "/" + strings.Join(cause.InstanceLocation, "/")
		msgs = append(msgs, fmt.Sprintf("%s: %v", loc, cause.ErrorKind))
	}
	return fmt.Errorf("schema violation: %s", strings.Join(msgs, "; "))
}

func flatten(ve *jsonschema.ValidationError) []*jsonschema.ValidationError {
	if len(ve.Causes) == 0 {
		return []*jsonschema.ValidationError{ve}
	}
	var flat []*jsonschema.ValidationError
	for _, cause := range ve.Causes {
		flat = append(flat, flatten(cause)...)
	}
	return flat
}
