package permission

// MostLikely selects the role a user most plausibly meant to execute with.
//
// Preference order: a role that allows the call outright; else one whose
// denial is more specific than "target/function not allowed" (a condition
// violation or an execution-option denial is actionable, a generic rejection
// is not); else one at least scoped to the right target; else the first role
// supplied. Ties within a tier break by input order.
func (e *Evaluation) MostLikely() *RoleResult {
	if len(e.Results) == 0 {
		return nil
	}

	for _, r := range e.Results {
		if r.Allows() {
			return r
		}
	}
	for _, r := range e.Results {
		if r.Aggregate.Kind != VerdictTargetNotAllowed && r.Aggregate.Kind != VerdictFunctionNotAllowed {
			return r
		}
	}
	for _, r := range e.Results {
		if r.Aggregate.Kind != VerdictTargetNotAllowed {
			return r
		}
	}

	return e.Results[0]
}
