package analyzer

import "fmt"

// Stage names where a run can fail as a whole.
const (
	StageLoad         = "load"
	StageParse        = "parse"
	StageAvailability = "availability"
)

// SystemicError is a failure of the run as a whole, as opposed to the
// per-segment and per-probe failures recorded in the report.
type SystemicError struct {
	Stage string
	Err   error
}

func (e *SystemicError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *SystemicError) Unwrap() error {
	return e.Err
}
