package appointment

import (
	"fmt"
	"strings"

	"github.com/carelink/carelink/internal/platform/auth"
)

// Action is an operation that moves an appointment between statuses.
type Action string

const (
	ActionConfirm    Action = "confirm"
	ActionReschedule Action = "reschedule"
	ActionCancel     Action = "cancel"
	ActionComplete   Action = "complete"
)

// ActionCreate labels bookings in metrics and events. It is not a transition.
const ActionCreate Action = "create"

func (a Action) String() string { return string(a) }

// gerund is used in the "wait for the doctor" messages.
func (a Action) gerund() string {
	switch a {
	case ActionCancel:
		return "cancelling"
	case ActionReschedule:
		return "rescheduling"
	case ActionConfirm:
		return "confirming"
	default:
		return "completing"
	}
}

type rule struct {
	to      Status
	doctor  []Status
	patient []Status
}

var (
	active  = []Status{StatusConfirmed, StatusScheduled, StatusRescheduled}
	waiting = []Status{StatusPending, StatusRescheduled}
	live    = []Status{StatusPending, StatusConfirmed, StatusScheduled, StatusRescheduled}
)

// transitions is the complete lifecycle. Any (role, action, from) triple not
// listed here is refused.
//
// A doctor reschedules only requests still awaiting an answer (waiting). Once
// an appointment is confirmed or scheduled, moving it is the patient's call;
// the doctor may still cancel it. CanDoctorAct reads the same sets.
var transitions = map[Action]rule{
	ActionConfirm:    {to: StatusConfirmed, doctor: waiting},
	ActionReschedule: {to: StatusRescheduled, doctor: waiting, patient: active},
	ActionCancel:     {to: StatusCancelled, doctor: live, patient: active},
	ActionComplete:   {to: StatusCompleted, doctor: active},
}

func contains(set []Status, s Status) bool {
	for _, v := range set {
		if v == s {
			return true
		}
	}
	return false
}

// CanPatientModify reports whether a patient may cancel or reschedule an
// appointment in status s.
func CanPatientModify(s Status) bool {
	return contains(active, s)
}

// CanDoctorAct reports whether a doctor may apply action to an appointment in
// status s.
func CanDoctorAct(action Action, s Status) bool {
	r, ok := transitions[action]
	return ok && contains(r.doctor, s)
}

// Decide returns the status an appointment in status from moves to when an
// actor of the given role applies action. A refused change returns a
// *TransitionError; an action the role may never perform returns ErrForbidden.
func Decide(role auth.Role, action Action, from Status) (Status, error) {
	r, ok := transitions[action]
	if !ok {
		return "", fmt.Errorf("%w: unknown action %q", ErrInvalid, action)
	}

	var allowed []Status
	switch role {
	case auth.RoleDoctor:
		allowed = r.doctor
	case auth.RolePatient:
		allowed = r.patient
	}
	if len(allowed) == 0 {
		return "", ErrForbidden
	}
	if contains(allowed, from) {
		return r.to, nil
	}

	te := &TransitionError{Action: action, From: from}
	switch {
	case role == auth.RolePatient && from == StatusPending:
		te.Reason = fmt.Sprintf("You must wait for the doctor response before %s.", action.gerund())
	case action == ActionComplete && from == StatusPending:
		te.Reason = "Appointment must be confirmed before it can be completed"
	default:
		te.Reason = fmt.Sprintf("Cannot %s an appointment that is %s", action, strings.ToLower(string(from)))
	}
	return "", te
}
