package appointment

import (
	"fmt"
	"strings"
)

// Status is the lifecycle state of an appointment.
type Status string

const (
	StatusPending     Status = "PENDING"
	StatusConfirmed   Status = "CONFIRMED"
	StatusScheduled   Status = "SCHEDULED"
	StatusRescheduled Status = "RESCHEDULED"
	StatusCompleted   Status = "COMPLETED"
	StatusCancelled   Status = "CANCELLED"
)

// AllStatuses lists every status in lifecycle order.
var AllStatuses = []Status{
	StatusPending, StatusConfirmed, StatusScheduled,
	StatusRescheduled, StatusCompleted, StatusCancelled,
}

func (s Status) String() string { return string(s) }

func (s Status) Valid() bool {
	for _, v := range AllStatuses {
		if s == v {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transition can leave s.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// IsActive reports whether the appointment has been accepted and not yet
// closed. Patients may only modify active appointments.
func (s Status) IsActive() bool {
	return s == StatusConfirmed || s == StatusScheduled || s == StatusRescheduled
}

// IsLive reports whether the appointment still holds its slot.
func (s Status) IsLive() bool {
	return s.Valid() && !s.IsTerminal()
}

func ParseStatus(v string) (Status, error) {
	s := Status(strings.ToUpper(strings.TrimSpace(v)))
	if !s.Valid() {
		return "", fmt.Errorf("unknown appointment status %q", v)
	}
	return s, nil
}

func (s Status) MarshalText() ([]byte, error) {
	return []byte(s), nil
}

func (s *Status) UnmarshalText(b []byte) error {
	v, err := ParseStatus(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}
