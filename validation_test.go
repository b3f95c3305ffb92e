package elasticcache

import (
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"
)

func TestIsValidIndexName(t *testing.T) {
	valid := []string{"t3cache", "cache-pages", "cache_2024", "a.b", strings.Repeat("a", 255)}
	invalid := []string{"", ".", "..", "Cache", "with space", "a/b", `a\b`, "a*", "a?", `a"b`, "a<b", "a|b", "a,b", "a#b", "a:b",
		"_cache", "-cache", "+cache", strings.Repeat("a", 256)}

	for _, name := range valid {
		if !isValidIndexName(name) {
			t.Errorf("Expected index name %q to be valid", name)
		}
	}
	for _, name := range invalid {
		if isValidIndexName(name) {
			t.Errorf("Expected index name %q to be invalid", name)
		}
	}
}

func TestValidateConfig(t *testing.T) {
	if err := validateConfig(defaultConfig()); err != nil {
		t.Fatalf("Expected default config to be valid, got: %v", err)
	}

	mutations := map[string]func(*Config){
		"empty index":       func(c *Config) { c.indexName = "" },
		"invalid index":     func(c *Config) { c.indexName = "Upper" },
		"negative lifetime": func(c *Config) { c.defaultLifetime = -time.Second },
		"zero timeout":      func(c *Config) { c.requestTimeout = 0 },
		"zero ready":        func(c *Config) { c.readyTimeout = 0 },
		"zero poll":         func(c *Config) { c.readyPollInterval = 0 },
		"zero page size":    func(c *Config) { c.pageSize = 0 },
	}
	for name, mutate := range mutations {
		cfg := defaultConfig()
		mutate(cfg)
		if err := validateConfig(cfg); !errors.Is(err, ErrConfiguration) {
			t.Errorf("%s: expected ErrConfiguration, got: %v", name, err)
		}
	}

	cfg := defaultConfig()
	cfg.defaultLifetime = 0
	if err := validateConfig(cfg); err != nil {
		t.Errorf("Expected unlimited default lifetime to be valid, got: %v", err)
	}
}

func TestUniqueTags(t *testing.T) {
	tests := []struct {
		in   []string
		want []string
	}{
		{nil, []string{}},
		{[]string{}, []string{}},
		{[]string{"a"}, []string{"a"}},
		{[]string{"b", "a", "b", "", "a", "c"}, []string{"b", "a", "c"}},
		{[]string{"", ""}, []string{}},
	}
	for _, tt := range tests {
		got := uniqueTags(tt.in)
		if got == nil {
			t.Errorf("uniqueTags(%v) returned nil", tt.in)
		}
		if !reflect.DeepEqual(got, tt.want) {
			t.Errorf("uniqueTags(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
