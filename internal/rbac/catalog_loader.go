package rbac

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadCatalogFile reads a YAML catalog from disk. It is meant to be called
// once at startup; the returned catalog is never reloaded.
func LoadCatalogFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog file %s: %w", path, err)
	}
	return ParseCatalog(data)
}

// ParseCatalog decodes a YAML catalog. Unknown keys are rejected so that a
// misspelled table cannot silently drop grants or overrides.
func ParseCatalog(data []byte) (*Catalog, error) {
	var spec CatalogSpec
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&spec); err != nil {
		return nil, fmt.Errorf("failed to decode catalog: %w", err)
	}
	return NewCatalog(spec)
}

// MarshalCatalogSpec renders spec as YAML, e.g. to bootstrap a catalog file
func MarshalCatalogSpec(spec CatalogSpec) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(spec); err != nil {
		return nil, fmt.Errorf("failed to encode catalog: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("failed to encode catalog: %w", err)
	}
	return buf.Bytes(), nil
}
