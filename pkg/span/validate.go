package span

import (
	"encoding/json"
	"fmt"
)

// ValidateExecutionOutput performs a structural audit of a finalized
// execution tree. It returns a list of violation strings; an empty list
// means the output is valid.
//
// Checks: repo_span present and repo-typed, at least one child, every
// child agent-typed with matching parent_span_id and execution_id, and
// the whole structure losslessly serializable.
func ValidateExecutionOutput(out *Output) []string {
	var violations []string

	if out == nil {
		return []string{"output is nil"}
	}
	if out.ExecutionID == "" {
		violations = append(violations, "execution_id is empty")
	}
	if out.RepoSpan == nil {
		violations = append(violations, "repo_span is missing")
		return violations
	}

	repo := out.RepoSpan
	if repo.Type != TypeRepo {
		violations = append(violations, fmt.Sprintf("repo_span has type %q, want %q", repo.Type, TypeRepo))
	}
	if repo.ExecutionID != out.ExecutionID {
		violations = append(violations, "repo_span execution_id does not match output execution_id")
	}
	if len(repo.Children) == 0 {
		violations = append(violations, "repo_span has no children; execution is invalid without agent work")
	}

	for i, child := range repo.Children {
		if child == nil {
			violations = append(violations, fmt.Sprintf("child %d is nil", i))
			continue
		}
		if child.Type != TypeAgent {
			violations = append(violations, fmt.Sprintf("child %d has type %q, want %q", i, child.Type, TypeAgent))
		}
		if child.ParentSpanID != repo.SpanID {
			violations = append(violations, fmt.Sprintf("child %d parent_span_id %q does not match repo span id %q", i, child.ParentSpanID, repo.SpanID))
		}
		if child.ExecutionID != repo.ExecutionID {
			violations = append(violations, fmt.Sprintf("child %d execution_id does not match repo span", i))
		}
	}

	// Lossless serialization round-trip.
	data, err := json.Marshal(out)
	if err != nil {
		violations = append(violations, fmt.Sprintf("output is not serializable: %v", err))
		return violations
	}
	var back Output
	if err := json.Unmarshal(data, &back); err != nil {
		violations = append(violations, fmt.Sprintf("output does not round-trip: %v", err))
	}

	return violations
}
