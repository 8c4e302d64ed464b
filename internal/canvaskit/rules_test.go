package canvaskit

import (
	"errors"
	"testing"
)

func TestDefaultRulesOKRChain(t *testing.T) {
	rules := DefaultRules()
	if !rules.Allowed(NodeObjective, NodeKeyResult) {
		t.Fatalf("expected objective -> keyresult to be allowed")
	}
	if rules.Allowed(NodeObjective, NodeProblem) {
		t.Fatalf("expected objective -> problem to be rejected")
	}
	if rules.Allowed(NodeObjective, NodeMetric) {
		t.Fatalf("expected objective -> metric to be rejected")
	}
	if !rules.Allowed(NodeKeyResult, NodeMetric) {
		t.Fatalf("expected keyresult -> metric to be allowed")
	}
	if rules.Allowed(NodeKeyResult, NodeDoc) {
		t.Fatalf("expected keyresult -> doc to be rejected")
	}
}

func TestDefaultRulesEmptySetMeansUnrestricted(t *testing.T) {
	rules := DefaultRules()
	// metric has an empty target set: any target is permitted.
	for _, target := range AllNodeTypes {
		if !rules.Allowed(NodeMetric, target) {
			t.Fatalf("expected metric -> %s to be allowed (empty set is unrestricted)", target)
		}
	}
	if !rules.Allowed(NodeDoc, NodeObjective) {
		t.Fatalf("expected doc -> objective to be allowed")
	}
}

func TestDefaultRulesProblemExclusions(t *testing.T) {
	rules := DefaultRules()
	if rules.Allowed(NodeProblem, NodeObjective) {
		t.Fatalf("expected problem -> objective to be rejected")
	}
	if rules.Allowed(NodeProblem, NodeMetric) {
		t.Fatalf("expected problem -> metric to be rejected")
	}
	if !rules.Allowed(NodeProblem, NodeProblem) {
		t.Fatalf("expected problem -> problem to be allowed")
	}
}

func TestRulesAllowedMatchesFullTable(t *testing.T) {
	rules := DefaultRules()
	for _, source := range AllNodeTypes {
		targets := rules[source]
		for _, target := range AllNodeTypes {
			want := len(targets) == 0
			for _, allowed := range targets {
				if allowed == target {
					want = true
					break
				}
			}
			if got := rules.Allowed(source, target); got != want {
				t.Fatalf("allowed(%s, %s) = %v, want %v", source, target, got, want)
			}
		}
	}
}

func TestRulesValidateRejectsUnknownTypes(t *testing.T) {
	bad := Rules{NodeType("widget"): {NodeDoc}}
	if err := bad.Validate(); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected invalid input error, got %v", err)
	}
	bad = Rules{NodeDoc: {NodeType("widget")}}
	if err := bad.Validate(); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected invalid input error, got %v", err)
	}
	if err := DefaultRules().Validate(); err != nil {
		t.Fatalf("expected default rules to validate, got %v", err)
	}
}

func TestRuleErrorIsRuleViolation(t *testing.T) {
	err := &RuleError{SourceType: NodeObjective, TargetType: NodeProblem}
	if !errors.Is(err, ErrRuleViolation) {
		t.Fatalf("expected RuleError to match ErrRuleViolation")
	}
	if err.Error() == "" {
		t.Fatalf("expected non-empty error message")
	}
}
