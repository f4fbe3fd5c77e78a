package booking

type Status string

const (
	StatusScheduled      Status = "scheduled"
	StatusCheckedIn      Status = "checked-in"
	StatusInConsultation Status = "in-consultation"
	StatusCompleted      Status = "completed"
	StatusCancelled      Status = "cancelled"
	StatusNoShow         Status = "no-show"
)

var transitions = map[Status][]Status{
	StatusScheduled:      {StatusCheckedIn, StatusCancelled, StatusNoShow},
	StatusCheckedIn:      {StatusInConsultation, StatusCancelled},
	StatusInConsultation: {StatusCompleted},
}

func (s Status) Valid() bool {
	switch s {
	case StatusScheduled, StatusCheckedIn, StatusInConsultation,
		StatusCompleted, StatusCancelled, StatusNoShow:
		return true
	}
	return false
}

func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled || s == StatusNoShow
}

// Live reports whether an appointment in this status holds a seat in its slot.
func (s Status) Live() bool {
	return s.Valid() && s != StatusCancelled && s != StatusNoShow
}

// CanTransition reports whether from -> to is an edge of the appointment state machine.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
