package model

// TaskStatus is a state of the task workflow.
type TaskStatus string

const (
	StatusAssigned    TaskStatus = "assigned"
	StatusInProgress  TaskStatus = "in_progress"
	StatusCompleted   TaskStatus = "completed"
	StatusUnderAudit  TaskStatus = "under_audit"
	StatusAuditPassed TaskStatus = "audit_passed"
	StatusAuditFailed TaskStatus = "audit_failed"
	StatusCancelled   TaskStatus = "cancelled"
)

// Statuses lists every status in workflow order.
var Statuses = []TaskStatus{
	StatusAssigned,
	StatusInProgress,
	StatusCompleted,
	StatusUnderAudit,
	StatusAuditPassed,
	StatusAuditFailed,
	StatusCancelled,
}

var transitions = map[TaskStatus][]TaskStatus{
	StatusAssigned:    {StatusInProgress, StatusCancelled},
	StatusInProgress:  {StatusCompleted, StatusCancelled},
	StatusCompleted:   {StatusUnderAudit, StatusCancelled},
	StatusUnderAudit:  {StatusAuditPassed, StatusAuditFailed, StatusCancelled},
	StatusAuditFailed: {StatusInProgress, StatusCancelled},
	StatusAuditPassed: nil,
	StatusCancelled:   nil,
}

func (s TaskStatus) Valid() bool {
	_, ok := transitions[s]
	return ok
}

// Terminal reports whether no transition leaves s.
func (s TaskStatus) Terminal() bool {
	next, ok := transitions[s]
	return ok && len(next) == 0
}

// CanTransitionTo reports whether the graph has an edge s -> next.
func (s TaskStatus) CanTransitionTo(next TaskStatus) bool {
	for _, candidate := range transitions[s] {
		if candidate == next {
			return true
		}
	}
	return false
}

// Label renders the status for people, e.g. "Under Audit".
func (s TaskStatus) Label() string {
	switch s {
	case StatusAssigned:
		return "Assigned"
	case StatusInProgress:
		return "In Progress"
	case StatusCompleted:
		return "Completed"
	case StatusUnderAudit:
		return "Under Audit"
	case StatusAuditPassed:
		return "Audit Passed"
	case StatusAuditFailed:
		return "Audit Failed"
	case StatusCancelled:
		return "Cancelled"
	default:
		return string(s)
	}
}
