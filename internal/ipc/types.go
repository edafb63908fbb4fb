package ipc

import (
	"casework/internal/automation"
	"casework/internal/daemon"
	"casework/internal/workqueue"
)

// StatusRequest fetches daemon status.
type StatusRequest struct{}

// StatusResponse mirrors the HTTP status payload.
type StatusResponse = daemon.StatusResponse

// DependencyStatus describes availability of an external tool.
type DependencyStatus = daemon.DependencyStatus

// Task is one task history row.
type Task = daemon.TaskResponse

// EnqueueRequest queues one task. Kind is download, upload, refresh,
// automation or poll.
type EnqueueRequest struct {
	Kind       string            `json:"kind"`
	CaseID     string            `json:"case_id,omitempty"`
	SourcePath string            `json:"source_path,omitempty"`
	DestPath   string            `json:"dest_path,omitempty"`
	Automation string            `json:"automation,omitempty"`
	Options    map[string]string `json:"options,omitempty"`
}

// Task converts the request to a queue task.
func (r EnqueueRequest) Task() (workqueue.Task, error) {
	kind, err := workqueue.ParseKind(r.Kind)
	if err != nil {
		return workqueue.Task{}, err
	}
	return workqueue.Task{
		Kind:           kind,
		CaseID:         r.CaseID,
		SourcePath:     r.SourcePath,
		DestPath:       r.DestPath,
		AutomationName: r.Automation,
		Options:        r.Options,
	}, nil
}

// EnqueueResponse lists the queued task ids in order. An automation request
// may queue an implicit download first.
type EnqueueResponse struct {
	TaskIDs []string `json:"task_ids"`
}

// PollNowRequest queues an immediate poll pass.
type PollNowRequest struct{}

// PollNowResponse carries the poll task id.
type PollNowResponse struct {
	TaskID string `json:"task_id"`
}

// AutomationsRequest lists admitted automations.
type AutomationsRequest struct{}

// AutomationsResponse lists admitted automations sorted by name.
type AutomationsResponse struct {
	Automations []automation.Descriptor `json:"automations"`
}

// SetAutomationRequest toggles one automation.
type SetAutomationRequest struct {
	Name    string `json:"name"`
	Enabled bool   `json:"enabled"`
}

// SetAutomationResponse reports the applied state.
type SetAutomationResponse struct {
	Name    string `json:"name"`
	Enabled bool   `json:"enabled"`
}

// TasksRequest lists recent task history.
type TasksRequest struct {
	Limit int `json:"limit"`
}

// TasksResponse holds history rows, newest first.
type TasksResponse struct {
	Tasks []Task `json:"tasks"`
}

// LogTailRequest reads the daemon log file.
type LogTailRequest struct {
	Offset     int64  `json:"offset"`
	Limit      int    `json:"limit"`
	Follow     bool   `json:"follow"`
	WaitMillis int    `json:"wait_millis"`
	Match      string `json:"match,omitempty"`
}

// LogTailResponse carries log lines and the offset to resume from.
type LogTailResponse struct {
	Lines  []string `json:"lines"`
	Offset int64    `json:"offset"`
}
