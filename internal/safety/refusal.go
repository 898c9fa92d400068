package safety

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Resource is a support link included in a refusal payload.
type Resource struct {
	Label string `json:"label" yaml:"label"`
	URL   string `json:"url" yaml:"url"`
}

// Refusal is the payload returned instead of a generated answer when a
// message is routed to human review. Wording lives in configuration so it
// can be edited without a redeploy.
type Refusal struct {
	Empathy     string     `json:"empathy" yaml:"empathy"`
	Explanation string     `json:"explanation" yaml:"explanation"`
	Resources   []Resource `json:"resources" yaml:"resources"`
}

//go:embed refusals.yaml
var defaultRefusalsYAML []byte

// DefaultRefusals returns the embedded refusal payloads keyed by category.
func DefaultRefusals() map[Category]Refusal {
	refusals, err := parseRefusals(defaultRefusalsYAML)
	if err != nil {
		// The embedded file ships with the binary; a parse failure here is a
		// build defect, not a runtime condition.
		panic(fmt.Sprintf("safety: embedded refusals invalid: %v", err))
	}
	return refusals
}

// LoadRefusals reads refusal payloads from a YAML file. Categories absent
// from the file keep their embedded defaults.
func LoadRefusals(path string) (map[Category]Refusal, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("safety: read refusals: %w", err)
	}
	overrides, err := parseRefusals(data)
	if err != nil {
		return nil, err
	}
	merged := DefaultRefusals()
	for cat, r := range overrides {
		merged[cat] = r
	}
	return merged, nil
}

func parseRefusals(data []byte) (map[Category]Refusal, error) {
	var raw map[string]Refusal
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("safety: parse refusals: %w", err)
	}
	refusals := make(map[Category]Refusal, len(raw))
	for key, r := range raw {
		cat := Category(key)
		if _, ok := indicatorSets[cat]; !ok {
			return nil, fmt.Errorf("safety: refusal for unknown category %q", key)
		}
		refusals[cat] = r
	}
	return refusals, nil
}
