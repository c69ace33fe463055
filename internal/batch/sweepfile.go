package batch

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadSweep reads a standalone sweep file, for batches driven without a full
// run description.
func LoadSweep(path string) (*Sweep, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("batch: read sweep %s: %w", path, err)
	}
	var s Sweep
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("batch: parse sweep %s: %w", path, err)
	}
	if _, err := s.Cases(); err != nil {
		return nil, err
	}
	return &s, nil
}
