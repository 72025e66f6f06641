package sources

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const (
	manifestSchemaURL = "https://fishy.schemas.local/repo/manifest.schema.json"
	itemSchemaURL     = "https://fishy.schemas.local/repo/item.schema.json"
)

// manifestSchema: data/_list.json is an ordered array of item identifiers.
const manifestSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "array",
  "items": {"type": "string", "minLength": 1}
}`

// itemSchema: data/<id>.json carries at least a display name.
const itemSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["name"],
  "properties": {"name": {"type": "string", "minLength": 1}}
}`

type schemas struct {
	manifest *jsonschema.Schema
	item     *jsonschema.Schema
}

var loadSchemas = sync.OnceValues(func() (schemas, error) {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	if err := c.AddResource(manifestSchemaURL, strings.NewReader(manifestSchema)); err != nil {
		return schemas{}, fmt.Errorf("manifest schema load failed: %w", err)
	}
	if err := c.AddResource(itemSchemaURL, strings.NewReader(itemSchema)); err != nil {
		return schemas{}, fmt.Errorf("item schema load failed: %w", err)
	}
	m, err := c.Compile(manifestSchemaURL)
	if err != nil {
		return schemas{}, fmt.Errorf("manifest schema compile failed: %w", err)
	}
	i, err := c.Compile(itemSchemaURL)
	if err != nil {
		return schemas{}, fmt.Errorf("item schema compile failed: %w", err)
	}
	return schemas{manifest: m, item: i}, nil
})

// validateJSON decodes raw and validates it, then decodes into out.
func validateJSON(s *jsonschema.Schema, raw []byte, out any) error {
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return err
	}
	if err := s.Validate(doc); err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}
