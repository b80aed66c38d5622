// Package store persists Kioku's JSON documents.
//
// Each store (memory, reinforcement, connections, module registry, long
// memory) is one JSON document addressed by a key. A Backend moves the raw
// bytes; Load and Save add JSON decoding and schema validation on top.
// Documents are independent: there is no transaction spanning two keys.
package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Document keys.
const (
	KeyMemory        = "memory"
	KeyReinforcement = "reinforcement"
	KeyConnections   = "connections"
	KeyModules       = "modules"
	KeyLongMemory    = "long_memory"
)

var (
	// ErrNotFound is returned when no document exists under a key.
	ErrNotFound = errors.New("store: document not found")

	// ErrCorrupt is returned when a stored document is not valid JSON or
	// does not match its schema. It is never repaired automatically.
	ErrCorrupt = errors.New("store: document corrupt")
)

// Backend reads and writes whole documents. Implementations must make Put
// atomic per key: a reader sees either the old or the new document.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, data []byte) error
	Close() error
}

// Load reads the document under key, validates it against schema (when
// non-nil) and decodes it into v.
func Load(ctx context.Context, b Backend, key string, schema *jsonschema.Schema, v any) error {
	data, err := b.Get(ctx, key)
	if err != nil {
		return err
	}

	if schema != nil {
		var raw any
		if err := json.Unmarshal(data, &raw); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrCorrupt, key, err)
		}
		if err := schema.Validate(raw); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrCorrupt, key, err)
		}
	}

	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrCorrupt, key, err)
	}
	return nil
}

// Save encodes v as indented JSON and writes it under key. HTML characters
// are not escaped so stored snippets stay readable.
func Save(ctx context.Context, b Backend, key string, v any) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("store: encode %s: %w", key, err)
	}
	if err := b.Put(ctx, key, buf.Bytes()); err != nil {
		return fmt.Errorf("store: put %s: %w", key, err)
	}
	return nil
}

// validateKey rejects keys that could escape a directory backend.
func validateKey(key string) error {
	if key == "" {
		return fmt.Errorf("store: empty key")
	}
	if strings.ContainsAny(key, `/\`) || strings.Contains(key, "..") {
		return fmt.Errorf("store: invalid key %q", key)
	}
	return nil
}
