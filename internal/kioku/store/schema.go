package store

import (
	"bytes"
	"embed"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schemas/*.json
var schemasFS embed.FS

var (
	schemasOnce sync.Once
	schemas     map[string]*jsonschema.Schema
	schemasErr  error
)

// Schema returns the compiled JSON schema for a document key, or nil when
// the key has none.
func Schema(key string) *jsonschema.Schema {
	schemasOnce.Do(compileSchemas)
	if schemasErr != nil {
		// Embedded schemas are fixed at build time; failing to compile
		// them is a programming error.
		panic(schemasErr)
	}
	return schemas[key]
}

func compileSchemas() {
	keys := []string{KeyMemory, KeyReinforcement, KeyConnections, KeyModules, KeyLongMemory}
	schemas = make(map[string]*jsonschema.Schema, len(keys))

	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft2020
	for _, key := range keys {
		data, err := schemasFS.ReadFile("schemas/" + key + ".json")
		if err != nil {
			schemasErr = fmt.Errorf("store: read schema %s: %w", key, err)
			return
		}
		url := "kioku://schemas/" + key + ".json"
		if err := compiler.AddResource(url, bytes.NewReader(data)); err != nil {
			schemasErr = fmt.Errorf("store: add schema %s: %w", key, err)
			return
		}
		s, err := compiler.Compile(url)
		if err != nil {
			schemasErr = fmt.Errorf("store: compile schema %s: %w", key, err)
			return
		}
		schemas[key] = s
	}
}
