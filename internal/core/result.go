package core

// Result is what a task or toolchain step hands back on completion.
// Besides the error it carries what changed and a message for the operator.
type Result struct {
	// Changed: did the step write anything (artifacts, reports)?
	Changed bool

	// Failed mirrors Error != nil for callers that only keep the Result.
	Failed bool

	// Message is the human readable outcome.
	Message string

	// Output is the raw combined output of an external command, if any.
	Output string

	Error error
}

// SuccessChange returns a successful result that produced changes.
func SuccessChange(msg string) Result {
	return Result{
		Changed: true,
		Message: msg,
	}
}

// SuccessNoChange returns a successful result without changes.
func SuccessNoChange(msg string) Result {
	return Result{
		Message: msg,
	}
}

// Failure returns a failed result.
func Failure(err error, msg string) Result {
	return Result{
		Failed:  true,
		Message: msg,
		Error:   err,
	}
}
