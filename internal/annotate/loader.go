package annotate

import (
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadRules reads a ruleset from a YAML file. An empty path returns the
// built-in rules.
func LoadRules(path string, logger *slog.Logger) (*Ruleset, error) {
	if path == "" {
		return DefaultRules(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read breakdown rules: %w", err)
	}
	return ParseRules(data, path, logger)
}

// ParseRules decodes and compiles a YAML ruleset. Fixed texts missing from
// the document are taken from the built-in rules.
func ParseRules(data []byte, name string, logger *slog.Logger) (*Ruleset, error) {
	var rs Ruleset
	if err := yaml.Unmarshal(data, &rs); err != nil {
		return nil, fmt.Errorf("parse breakdown rules %s: %w", name, err)
	}
	if len(rs.Rules) == 0 {
		return nil, fmt.Errorf("breakdown rules %s: no rules defined", name)
	}

	defaults := DefaultRules()
	if rs.RecapHeader == "" {
		rs.RecapHeader = defaults.RecapHeader
	}
	if rs.CautionNote == "" {
		rs.CautionNote = defaults.CautionNote
	}
	if err := rs.Compile(); err != nil {
		return nil, fmt.Errorf("breakdown rules %s: %w", name, err)
	}

	logger.Info("loaded breakdown rules", "source", name, "rules", len(rs.Rules))
	return &rs, nil
}
