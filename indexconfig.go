package elasticcache

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadIndexConfiguration reads a YAML file holding the body of an index-creation request
// (settings, mappings) and returns it as a JSON-compatible map. An empty file yields nil.
func LoadIndexConfiguration(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read index configuration %q: %w", ErrConfiguration, path, err)
	}

	var schema map[string]any
	if err := yaml.Unmarshal(data, &schema); err != nil {
		return nil, fmt.Errorf("%w: failed to parse index configuration %q: %w", ErrConfiguration, path, err)
	}
	if len(schema) == 0 {
		return nil, nil
	}

	return schema, nil
}

// documentMappings are the field mappings every cache index relies on: tags must be a keyword
// field so tag queries match whole tags exactly, and expiresAt a long for range queries.
func documentMappings() map[string]any {
	return map[string]any{
		"tags":      map[string]any{"type": "keyword"},
		"expiresAt": map[string]any{"type": "long"},
	}
}

// withDocumentMappings returns schema with the document mappings added where it does not map
// those fields itself. The caller's maps are not modified. A schema whose mappings are not a
// plain properties object is returned unchanged.
func withDocumentMappings(schema map[string]any) map[string]any {
	out := make(map[string]any, len(schema)+1)
	for k, v := range schema {
		out[k] = v
	}

	mappings := map[string]any{}
	if raw, ok := out["mappings"]; ok {
		m, ok := raw.(map[string]any)
		if !ok {
			return out
		}
		for k, v := range m {
			mappings[k] = v
		}
	}

	properties := map[string]any{}
	if raw, ok := mappings["properties"]; ok {
		p, ok := raw.(map[string]any)
		if !ok {
			return out
		}
		for k, v := range p {
			properties[k] = v
		}
	}

	for field, mapping := range documentMappings() {
		if _, ok := properties[field]; !ok {
			properties[field] = mapping
		}
	}
	mappings["properties"] = properties
	out["mappings"] = mappings
	return out
}
