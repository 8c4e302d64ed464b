package canvaskit

import "fmt"

// Rules maps a source node type to the set of target types it may point
// to. An empty (or absent) target set means the source is unrestricted,
// not forbidden: most node types deliberately carry no restriction while
// the OKR chain is tightly constrained.
type Rules map[NodeType][]NodeType

// DefaultRules returns the built-in connection rule table.
func DefaultRules() Rules {
	return Rules{
		// Everything except objective and metric.
		NodeProblem: {
			NodeDoc, NodeAgent, NodeSkill, NodeWebhook, NodeAPI,
			NodeMCP, NodeProblem, NodeKeyResult, NodeCustom,
		},
		NodeObjective: {NodeKeyResult},
		NodeKeyResult: {NodeMetric},
		NodeMetric:    {},
		NodeDoc:       {},
		NodeAgent:     {},
		NodeSkill:     {},
		NodeWebhook:   {},
		NodeAPI:       {},
		NodeMCP:       {},
		NodeCustom:    {},
	}
}

// Allowed reports whether a connection from source to target type is
// permitted by the table.
func (r Rules) Allowed(source, target NodeType) bool {
	targets, ok := r[source]
	if !ok || len(targets) == 0 {
		return true
	}
	for _, t := range targets {
		if t == target {
			return true
		}
	}
	return false
}

// Validate rejects tables that reference unknown node types.
func (r Rules) Validate() error {
	for source, targets := range r {
		if !source.Valid() {
			return fmt.Errorf("%w: unknown source node type %q in rule table", ErrInvalidInput, source)
		}
		for _, target := range targets {
			if !target.Valid() {
				return fmt.Errorf("%w: unknown target node type %q for source %q", ErrInvalidInput, target, source)
			}
		}
	}
	return nil
}

// RuleError reports a rejected connection attempt with both endpoint
// types, so callers can surface a meaningful message.
type RuleError struct {
	SourceType NodeType
	TargetType NodeType
}

func (e *RuleError) Error() string {
	return fmt.Sprintf("connection from %s to %s is not allowed", e.SourceType, e.TargetType)
}

func (e *RuleError) Is(target error) bool {
	return target == ErrRuleViolation
}
