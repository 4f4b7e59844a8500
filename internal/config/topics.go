package config

import (
	"fmt"
	"os"

	"github.com/hyperjump/shiken/internal/models"
	"gopkg.in/yaml.v3"
)

// topicsFile is the on-disk shape of a topics definition file.
type topicsFile struct {
	Topics []models.Topic `yaml:"topics"`
}

// LoadTopics reads topic definitions from a YAML file and validates them.
// Topic IDs must be unique and non-empty; a topic without keywords is allowed
// but contributes no keyword evidence.
func LoadTopics(path string) ([]models.Topic, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read topics file: %w", err)
	}
	var tf topicsFile
	if err := yaml.Unmarshal(data, &tf); err != nil {
		return nil, fmt.Errorf("failed to parse topics file: %w", err)
	}
	seen := make(map[string]bool, len(tf.Topics))
	for i, t := range tf.Topics {
		if t.ID == "" {
			return nil, fmt.Errorf("topic %d: missing id", i)
		}
		if seen[t.ID] {
			return nil, fmt.Errorf("duplicate topic id %q", t.ID)
		}
		seen[t.ID] = true
	}
	return tf.Topics, nil
}
