package reinforce

import (
	"encoding/json"
	"fmt"
)

// ConfigKey is the reserved document key holding tuning settings. It can
// never be reinforced as a topic.
const ConfigKey = "_neuroplasticity"

// Settings is the configuration block nested under ConfigKey.
type Settings struct {
	RepetitionThreshold int `json:"repetition_threshold,omitempty"`
}

// Table is the reinforcement document: topic strengths plus an optional
// settings block, flattened into one JSON object.
type Table struct {
	Strengths map[string]int
	Settings  *Settings
}

// MarshalJSON writes strengths as top-level keys and the settings block
// under ConfigKey.
func (t Table) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(t.Strengths)+1)
	for topic, n := range t.Strengths {
		out[topic] = n
	}
	if t.Settings != nil {
		out[ConfigKey] = t.Settings
	}
	return json.Marshal(out)
}

// UnmarshalJSON splits the settings block from the topic counters.
func (t *Table) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	t.Strengths = make(map[string]int, len(raw))
	t.Settings = nil
	for key, value := range raw {
		if key == ConfigKey {
			var s Settings
			if err := json.Unmarshal(value, &s); err != nil {
				return fmt.Errorf("%s: %w", ConfigKey, err)
			}
			t.Settings = &s
			continue
		}
		var n int
		if err := json.Unmarshal(value, &n); err != nil {
			return fmt.Errorf("strength %q: %w", key, err)
		}
		t.Strengths[key] = n
	}
	return nil
}
