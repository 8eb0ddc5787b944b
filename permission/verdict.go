package permission

import "fmt"

// VerdictKind enumerates the closed set of permission outcomes for one
// (role, operation) pair.
type VerdictKind uint8

const (
	VerdictOk VerdictKind = iota
	VerdictTargetNotAllowed
	VerdictFunctionNotAllowed
	VerdictSendNotAllowed
	VerdictDelegateCallNotAllowed
	VerdictConditionViolation
	VerdictIndeterminate
)

func (k VerdictKind) String() string {
	switch k {
	case VerdictOk:
		return "ok"
	case VerdictTargetNotAllowed:
		return "target not allowed"
	case VerdictFunctionNotAllowed:
		return "function not allowed"
	case VerdictSendNotAllowed:
		return "send not allowed"
	case VerdictDelegateCallNotAllowed:
		return "delegate call not allowed"
	case VerdictConditionViolation:
		return "condition violation"
	case VerdictIndeterminate:
		return "indeterminate"
	default:
		return "unknown"
	}
}

// ViolationReason is the decoded reason carried by a condition-violation
// verdict.
type ViolationReason uint8

const (
	ReasonParameterOutOfRange ViolationReason = iota
	ReasonAllowanceExceeded
	ReasonArrayElementFails
	ReasonCustomCondition
)

func (r ViolationReason) String() string {
	switch r {
	case ReasonParameterOutOfRange:
		return "parameter out of range"
	case ReasonAllowanceExceeded:
		return "allowance exceeded"
	case ReasonArrayElementFails:
		return "array element fails"
	case ReasonCustomCondition:
		return "custom condition"
	default:
		return "unknown"
	}
}

// Verdict is the permission outcome for one (role, operation) pair. Reason is
// meaningful only when Kind is VerdictConditionViolation.
type Verdict struct {
	Kind   VerdictKind
	Reason ViolationReason
}

// Ok is the verdict granting execution.
var Ok = Verdict{Kind: VerdictOk}

// Deny returns a denial verdict of the given kind.
func Deny(kind VerdictKind) Verdict {
	return Verdict{Kind: kind}
}

// Violation returns a condition-violation verdict carrying the decoded
// reason.
func Violation(reason ViolationReason) Verdict {
	return Verdict{Kind: VerdictConditionViolation, Reason: reason}
}

// Indeterminate marks an entry that the static phase cannot decide.
var Indeterminate = Verdict{Kind: VerdictIndeterminate}

func (v Verdict) String() string {
	if v.Kind == VerdictConditionViolation {
		return fmt.Sprintf("%s (%s)", v.Kind, v.Reason)
	}

	return v.Kind.String()
}
