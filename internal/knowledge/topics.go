package knowledge

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Topic is one entry in the curated reference table. Keywords drive
// matching; the excerpt is what gets quoted back to the client.
type Topic struct {
	SourceLabel string   `yaml:"source_label"`
	URL         string   `yaml:"url"`
	Excerpt     string   `yaml:"excerpt"`
	Keywords    []string `yaml:"keywords"`
}

//go:embed topics.yaml
var defaultTopicsYAML []byte

// DefaultTopics returns the embedded curated topic table.
func DefaultTopics() []Topic {
	topics, err := parseTopics(defaultTopicsYAML)
	if err != nil {
		panic(fmt.Sprintf("knowledge: embedded topics invalid: %v", err))
	}
	return topics
}

// LoadTopics reads a topic table from a YAML file, replacing the embedded
// defaults entirely.
func LoadTopics(path string) ([]Topic, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("knowledge: read topics: %w", err)
	}
	return parseTopics(data)
}

func parseTopics(data []byte) ([]Topic, error) {
	var doc struct {
		Topics []Topic `yaml:"topics"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("knowledge: parse topics: %w", err)
	}
	for i, t := range doc.Topics {
		if t.SourceLabel == "" || len(t.Keywords) == 0 {
			return nil, fmt.Errorf("knowledge: topic %d missing source_label or keywords", i)
		}
	}
	return doc.Topics, nil
}
