package quirk

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ruleFile is the on-disk shape of a quirk table.
type ruleFile struct {
	Rules []Rule `yaml:"rules"`
}

// LoadRules parses a YAML quirk table:
//
//	rules:
//	  - vendor: 0x100b
//	    device: 0x0012
//	    program: true
func LoadRules(data []byte) ([]Rule, error) {
	var f ruleFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("quirk: parse rules: %w", err)
	}
	return f.Rules, nil
}

// LoadRulesFile reads and parses a YAML quirk table from path.
func LoadRulesFile(path string) ([]Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("quirk: read rules: %w", err)
	}
	return LoadRules(data)
}
