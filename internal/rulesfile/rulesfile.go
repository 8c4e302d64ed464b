// Package rulesfile loads connection rule tables from YAML and reloads
// them when the file changes, so operators can tighten or relax the
// allowed node graph without restarting the server.
package rulesfile

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/prodspace/canvaskit/internal/canvaskit"
)

// File is the on-disk shape of a rule table.
//
//	rules:
//	  objective: [keyresult]
//	  keyresult: [metric]
//
// A source listed with an empty target set is unrestricted, matching the
// in-memory table semantics.
type File struct {
	Rules map[string][]string `yaml:"rules"`
}

// Load reads and validates a rule table from path.
func Load(path string) (canvaskit.Rules, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading rules file: %w", err)
	}
	return Parse(data)
}

// Parse decodes a YAML rule table and validates every node type in it.
func Parse(data []byte) (canvaskit.Rules, error) {
	var file File
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing rules file: %w", err)
	}
	if file.Rules == nil {
		return nil, fmt.Errorf("rules file has no rules section")
	}
	rules := make(canvaskit.Rules, len(file.Rules))
	for source, targets := range file.Rules {
		out := make([]canvaskit.NodeType, 0, len(targets))
		for _, target := range targets {
			out = append(out, canvaskit.NodeType(target))
		}
		rules[canvaskit.NodeType(source)] = out
	}
	if err := rules.Validate(); err != nil {
		return nil, err
	}
	return rules, nil
}
