// validation.go
package elasticcache

import (
	"fmt"
	"strings"
)

// invalidIndexChars are the characters Elasticsearch rejects in index names.
const invalidIndexChars = ` /\*?"<>|,#:`

func isValidIndexName(name string) bool {
	if name == "" || name == "." || name == ".." {
		return false
	}
	if name != strings.ToLower(name) || strings.ContainsAny(name, invalidIndexChars) {
		return false
	}
	switch name[0] {
	case '_', '-', '+':
		return false
	}
	return len(name) <= 255
}

func validateConfig(cfg *Config) error {
	if cfg.indexName == "" {
		return fmt.Errorf("%w: index name is required", ErrConfiguration)
	}
	if !isValidIndexName(cfg.indexName) {
		return fmt.Errorf("%w: invalid index name %q", ErrConfiguration, cfg.indexName)
	}
	if cfg.defaultLifetime < 0 {
		return fmt.Errorf("%w: default lifetime must not be negative", ErrConfiguration)
	}
	if cfg.requestTimeout <= 0 || cfg.readyTimeout <= 0 || cfg.readyPollInterval <= 0 {
		return fmt.Errorf("%w: timeouts must be positive", ErrConfiguration)
	}
	if cfg.pageSize <= 0 {
		return fmt.Errorf("%w: page size must be positive", ErrConfiguration)
	}
	return nil
}

// uniqueTags drops empty and repeated tags, keeping first-seen order. The result is never nil.
func uniqueTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]struct{}, len(tags))
	for _, tag := range tags {
		if tag == "" {
			continue
		}
		if _, dup := seen[tag]; dup {
			continue
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
	}
	return out
}
