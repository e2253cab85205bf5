package engine

import (
	"errors"
	"fmt"
)

// FailureCode categorizes per-item and pass-level failures.
type FailureCode string

const (
	// CodeInvalidRule marks a rule whose pattern failed to compile. The
	// rule is excluded from the current pass; the pass continues.
	CodeInvalidRule FailureCode = "INVALID_RULE"

	// CodeSourceUnavailable marks a total inability to read events or
	// rules. The pass aborts and the alarm store is left untouched.
	CodeSourceUnavailable FailureCode = "SOURCE_UNAVAILABLE"

	// CodeRegistrationFailure marks a host rejection of one specific
	// alarm. Recorded per item; the batch continues.
	CodeRegistrationFailure FailureCode = "REGISTRATION_FAILURE"

	// CodeDriftDetected marks an alarm whose host registration vanished.
	// Non-fatal; it triggers repair through the upsert path.
	CodeDriftDetected FailureCode = "DRIFT_DETECTED"

	// CodeCollisionUnresolved marks a host key that stayed in conflict
	// after the bounded perturbation attempts. Logged and skipped.
	CodeCollisionUnresolved FailureCode = "COLLISION_UNRESOLVED"

	// CodeStoreFailure marks a failed write of one alarm row. Recorded
	// per item; the batch continues and the next pass retries.
	CodeStoreFailure FailureCode = "STORE_FAILURE"
)

// PassError is a pass-level failure. Only total inability to read inputs
// escalates to one; everything else accumulates as Failure items in the
// structured result.
type PassError struct {
	Code    FailureCode
	Message string
	Err     error
}

func (e *PassError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *PassError) Unwrap() error { return e.Err }

// IsSourceUnavailable reports whether err is a pass-level input failure.
// Uses errors.As to handle wrapped errors.
func IsSourceUnavailable(err error) bool {
	var pe *PassError
	return errors.As(err, &pe) && pe.Code == CodeSourceUnavailable
}

func sourceUnavailable(what string, err error) *PassError {
	return &PassError{Code: CodeSourceUnavailable, Message: "read " + what, Err: err}
}

// Failure is one structured per-item failure in a pass result. Enough
// detail is carried for a caller to render any UI on top.
type Failure struct {
	Code    FailureCode `json:"code"`
	AlarmID string      `json:"alarm_id,omitempty"`
	EventID string      `json:"event_id,omitempty"`
	RuleID  string      `json:"rule_id,omitempty"`
	Message string      `json:"message"`
}
