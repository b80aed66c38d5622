package capability

import (
	"bytes"
	"fmt"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// Parse decodes a YAML descriptor and validates it.
func Parse(data []byte) (*Descriptor, error) {
	var d Descriptor
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&d); err != nil {
		return nil, fmt.Errorf("capability parse: %w", err)
	}
	if err := Validate(&d); err != nil {
		return nil, err
	}
	return &d, nil
}

// Marshal validates d and encodes it as YAML.
func Marshal(d *Descriptor) ([]byte, error) {
	if err := Validate(d); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(d); err != nil {
		return nil, fmt.Errorf("capability marshal: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("capability marshal: %w", err)
	}
	return buf.Bytes(), nil
}

// Validate returns the first structural problem found in d.
func Validate(d *Descriptor) error {
	if d == nil {
		return fmt.Errorf("descriptor must not be nil")
	}
	if d.APIVersion != SpecVersion {
		return fmt.Errorf("apiVersion must be %q, got %q", SpecVersion, d.APIVersion)
	}
	if strings.TrimSpace(d.Name) == "" {
		return fmt.Errorf("name must not be empty")
	}
	if strings.ContainsAny(d.Name, `/\`) {
		return fmt.Errorf("name %q must not contain path separators", d.Name)
	}
	if strings.TrimSpace(d.Topic) == "" {
		return fmt.Errorf("topic must not be empty")
	}
	if !slices.Contains(KnownHandlers, d.Handler) {
		return fmt.Errorf("handler %q is not one of %v", d.Handler, KnownHandlers)
	}
	return nil
}
