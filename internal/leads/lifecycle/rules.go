package lifecycle

import (
	"errors"
	"fmt"
	"os"
	"time"

	"leadengine/internal/leads/domain"

	"gopkg.in/yaml.v3"
)

// rulesFile is the YAML shape of a threshold override file. Durations use
// Go syntax ("24h", "360h"). Absent fields keep their defaults.
type rulesFile struct {
	FirstAssignment string `yaml:"firstAssignment"`
	Hot             string `yaml:"hot"`
	YetToDecide     string `yaml:"yetToDecide"`
	Default         string `yaml:"default"`
}

// LoadRules reads threshold overrides from path. An empty path or a missing
// file yields the built-in defaults.
func LoadRules(path string) (domain.ThresholdRules, error) {
	rules := domain.DefaultThresholdRules()
	if path == "" {
		return rules, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return rules, nil
		}
		return rules, fmt.Errorf("read lifecycle rules: %w", err)
	}

	var file rulesFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return rules, fmt.Errorf("parse lifecycle rules: %w", err)
	}

	if err := override(&rules.FirstAssignment, file.FirstAssignment); err != nil {
		return rules, err
	}
	if err := override(&rules.Hot, file.Hot); err != nil {
		return rules, err
	}
	if err := override(&rules.YetToDecide, file.YetToDecide); err != nil {
		return rules, err
	}
	if err := override(&rules.Default, file.Default); err != nil {
		return rules, err
	}

	return rules, nil
}

func override(target *time.Duration, value string) error {
	if value == "" {
		return nil
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("lifecycle rule %q: %w", value, err)
	}
	if parsed <= 0 {
		return fmt.Errorf("lifecycle rule %q: must be positive", value)
	}
	*target = parsed
	return nil
}
