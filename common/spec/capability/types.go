// Package capability defines the capability descriptor (v1): the data-only
// record Kioku writes when a topic has been reinforced often enough to earn a
// dedicated handler.
//
// A descriptor names a topic and the handler that should process it. Nothing
// is compiled or loaded from it; consumers decide which handlers exist.
package capability

import "time"

// SpecVersion is the API version string required in every descriptor.
const SpecVersion = "kioku/v1"

// HandlerAnalyze is the only handler generated modules currently reference.
const HandlerAnalyze = "analyze"

// KnownHandlers lists the handler names a descriptor may reference.
var KnownHandlers = []string{HandlerAnalyze}

// Descriptor is one capability module.
type Descriptor struct {
	// APIVersion must be "kioku/v1".
	APIVersion string `yaml:"apiVersion" json:"apiVersion"`

	// Name is the module name, e.g. "module_foto".
	Name string `yaml:"name" json:"name"`

	// Topic is the reinforced topic the module serves.
	Topic string `yaml:"topic" json:"topic"`

	// Handler selects the processing routine.
	Handler string `yaml:"handler" json:"handler"`

	// Enabled toggles the module without deleting the descriptor.
	Enabled bool `yaml:"enabled" json:"enabled"`

	// Description is free text shown by `kioku modules`.
	Description string `yaml:"description,omitempty" json:"description,omitempty"`

	// CreatedAt is when the descriptor was generated.
	CreatedAt time.Time `yaml:"createdAt" json:"createdAt"`
}
