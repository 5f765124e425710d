package conveyor

import "time"

// InstanceStatus is the lifecycle state of a workflow instance.
type InstanceStatus string

const (
	StatusRunning   InstanceStatus = "running"
	StatusBlocked   InstanceStatus = "blocked"
	StatusCompleted InstanceStatus = "completed"
	StatusFaulted   InstanceStatus = "faulted"
	StatusCancelled InstanceStatus = "cancelled"
)

// Terminal reports whether no further run/resume cycle may mutate the
// instance.
func (s InstanceStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFaulted || s == StatusCancelled
}

// ExecutionLogEntry is one append-only audit record of an activity
// visit. Entries are never edited, removed, or reordered.
type ExecutionLogEntry struct {
	ActivityID string    `json:"activityId"`
	Faulted    bool      `json:"faulted"`
	Message    string    `json:"message,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// WorkflowInstance is one execution of a specific definition version.
// Status is blocked exactly when BlockingActivities is non-empty.
type WorkflowInstance struct {
	ID                 string              `json:"id"`
	DefinitionID       string              `json:"definitionId"`
	Version            int                 `json:"version"`
	Status             InstanceStatus      `json:"status"`
	CorrelationID      string              `json:"correlationId,omitempty"`
	Variables          Variables           `json:"variables,omitempty"`
	ExecutionLog       []ExecutionLogEntry `json:"executionLog,omitempty"`
	BlockingActivities []string            `json:"blockingActivities,omitempty"`
	CreatedAt          time.Time           `json:"createdAt"`
	UpdatedAt          time.Time           `json:"updatedAt"`

	// Rev is the optimistic concurrency token maintained by stores.
	Rev int64 `json:"-"`
}

// Clone returns a deep copy of the instance.
func (w *WorkflowInstance) Clone() *WorkflowInstance {
	cp := *w
	cp.Variables = w.Variables.Clone()
	cp.ExecutionLog = append([]ExecutionLogEntry(nil), w.ExecutionLog...)
	cp.BlockingActivities = append([]string(nil), w.BlockingActivities...)
	return &cp
}

// IsBlockedOn reports whether the activity is in the blocking set.
func (w *WorkflowInstance) IsBlockedOn(activityID string) bool {
	for _, id := range w.BlockingActivities {
		if id == activityID {
			return true
		}
	}
	return false
}

// AddBlocking records an activity awaiting external input. Duplicate
// adds are ignored so re-entering a blocked activity stays idempotent.
func (w *WorkflowInstance) AddBlocking(activityID string) {
	if w.IsBlockedOn(activityID) {
		return
	}
	w.BlockingActivities = append(w.BlockingActivities, activityID)
}

// RemoveBlocking removes the activity from the blocking set, preserving
// the order of the remaining entries.
func (w *WorkflowInstance) RemoveBlocking(activityID string) {
	for i, id := range w.BlockingActivities {
		if id == activityID {
			w.BlockingActivities = append(w.BlockingActivities[:i], w.BlockingActivities[i+1:]...)
			return
		}
	}
}

// AppendLog appends an execution log entry stamped with now.
func (w *WorkflowInstance) AppendLog(activityID string, faulted bool, message string) {
	w.ExecutionLog = append(w.ExecutionLog, ExecutionLogEntry{
		ActivityID: activityID,
		Faulted:    faulted,
		Message:    message,
		Timestamp:  time.Now().UTC(),
	})
}
