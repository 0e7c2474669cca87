package claim

import "fmt"

// Kind is the per-candidate verdict.
type Kind int

const (
	Claimed Kind = iota + 1
	Full
	NotFound
	Failed
)

func (k Kind) String() string {
	switch k {
	case Claimed:
		return "claimed"
	case Full:
		return "full"
	case NotFound:
		return "not_found"
	case Failed:
		return "error"
	default:
		return "unknown"
	}
}

// Stages reported by ClaimError.
const (
	StageOccupancy    = "occupancy"
	StageRegister     = "register"
	StageForm         = "form"
	StageConfirm      = "confirm"
	StageConfirmation = "confirmation"
)

// Result is the outcome of one Attempt.
type Result struct {
	Kind      Kind
	Label     string
	Occupancy *Occupancy
	Err       error
}

func (r Result) String() string {
	switch {
	case r.Kind == Full && r.Occupancy != nil:
		return fmt.Sprintf("%s (%s)", r.Kind, r.Occupancy)
	case r.Err != nil:
		return fmt.Sprintf("%s: %v", r.Kind, r.Err)
	default:
		return r.Kind.String()
	}
}

// ClaimError names the stage of the register flow that broke.
type ClaimError struct {
	Stage string
	Err   error
}

func (e *ClaimError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("claim failed at %s", e.Stage)
	}
	return fmt.Sprintf("claim failed at %s: %v", e.Stage, e.Err)
}

func (e *ClaimError) Unwrap() error { return e.Err }

// NoCandidateError means every candidate was tried and none was claimed.
type NoCandidateError struct {
	Tried int
}

func (e *NoCandidateError) Error() string {
	return fmt.Sprintf("no suitable group found, tried %d", e.Tried)
}
