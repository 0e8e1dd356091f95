package alerts

import (
	_ "embed"
	"fmt"
	"os"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultRulesYAML []byte

type ruleFile struct {
	Rules []struct {
		Type          string `yaml:"type"`
		Threshold     string `yaml:"threshold"`
		Enabled       bool   `yaml:"enabled"`
		CriticalRatio string `yaml:"critical_ratio"`
	} `yaml:"rules"`
}

// LoadDefaults parses rule defaults from path, or the embedded set when path is empty.
func LoadDefaults(path string) ([]Rule, error) {
	raw := defaultRulesYAML
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("alerts: read rules file: %w", err)
		}
		raw = data
	}
	return ParseDefaults(raw)
}

// ParseDefaults decodes a YAML rule file.
func ParseDefaults(raw []byte) ([]Rule, error) {
	var file ruleFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("alerts: parse rules: %w", err)
	}
	seen := make(map[AlertType]struct{}, len(file.Rules))
	rules := make([]Rule, 0, len(file.Rules))
	for _, item := range file.Rules {
		typ, err := ParseType(item.Type)
		if err != nil {
			return nil, err
		}
		if _, dup := seen[typ]; dup {
			return nil, fmt.Errorf("%w: %s listed twice", ErrInvalidRule, typ)
		}
		seen[typ] = struct{}{}
		threshold, err := decimal.NewFromString(item.Threshold)
		if err != nil {
			return nil, fmt.Errorf("%w: %s threshold %q", ErrInvalidRule, typ, item.Threshold)
		}
		ratio := DefaultCriticalRatio
		if item.CriticalRatio != "" {
			if ratio, err = decimal.NewFromString(item.CriticalRatio); err != nil {
				return nil, fmt.Errorf("%w: %s critical ratio %q", ErrInvalidRule, typ, item.CriticalRatio)
			}
		}
		rule := Rule{Type: typ, Threshold: threshold, Enabled: item.Enabled, CriticalRatio: ratio}
		if err := rule.Validate(); err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	return rules, nil
}
