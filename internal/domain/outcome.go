package domain

// OutcomeKind identifies the terminal state of a link check.
type OutcomeKind int

const (
	// OutcomePending means no check attempt has completed yet.
	OutcomePending OutcomeKind = iota

	// OutcomeWorking means a response with an acceptable status was received.
	OutcomeWorking

	// OutcomeBroken means the fetch failed or returned a failure status.
	OutcomeBroken

	// OutcomeInvalid means the reference is not a fetchable http/https
	// resource.
	OutcomeInvalid
)

// String returns the lowercase name of the outcome kind.
func (k OutcomeKind) String() string {
	switch k {
	case OutcomeWorking:
		return "working"
	case OutcomeBroken:
		return "broken"
	case OutcomeInvalid:
		return "invalid"
	default:
		return "pending"
	}
}

// Outcome is the result of classifying one link check. It is the internal
// tagged form of the flattened crawled/invalid/broken flags stored on
// ScanLink.
type Outcome struct {
	Kind       OutcomeKind
	StatusCode int
	Reason     string
}

// Working builds a success outcome for the given status code.
func Working(statusCode int) Outcome {
	return Outcome{Kind: OutcomeWorking, StatusCode: statusCode}
}

// Broken builds a failure outcome with an optional status code and reason.
func Broken(statusCode int, reason string) Outcome {
	return Outcome{Kind: OutcomeBroken, StatusCode: statusCode, Reason: reason}
}

// Invalid builds an outcome for references that are not checkable URLs.
func Invalid(reason string) Outcome {
	return Outcome{Kind: OutcomeInvalid, Reason: reason}
}
