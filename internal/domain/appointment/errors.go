package appointment

import "errors"

var (
	ErrNotFound       = errors.New("Appointment not found")
	ErrForbidden      = errors.New("Forbidden")
	ErrNotAllowed     = errors.New("transition not allowed")
	ErrStale          = errors.New("appointment was modified concurrently, reload and try again")
	ErrSlotTaken      = errors.New("the doctor already has an appointment at this time")
	ErrDoctorNotFound = errors.New("Doctor not found")
	ErrInvalid        = errors.New("invalid appointment request")
	ErrPatientOnly    = errors.New("only patients can book appointments")
)

// TransitionError is a refused status change. It wraps ErrNotAllowed.
type TransitionError struct {
	Action Action
	From   Status
	Reason string
}

func (e *TransitionError) Error() string { return e.Reason }

func (e *TransitionError) Unwrap() error { return ErrNotAllowed }
