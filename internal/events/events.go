// Package events defines the typed notifications published by the work
// daemon and poll daemon, plus a synchronous in-process bus that delivers them.
package events

import "time"

// Type names an event family.
type Type string

const (
	TypeTaskProgress      Type = "task_progress"
	TypeTaskCompleted     Type = "task_completed"
	TypeTaskStateChanged  Type = "task_state_changed"
	TypeQueueDepthChanged Type = "queue_depth_changed"
	TypePollCompleted     Type = "poll_completed"
)

// Mode describes what the in-flight task is doing with bytes.
type Mode string

const (
	ModeNone       Mode = "none"
	ModeDownload   Mode = "download"
	ModeUpload     Mode = "upload"
	ModeAutomation Mode = "automation"
)

// Header is stamped by the bus on publish. Seq is strictly increasing across
// all events of one bus.
type Header struct {
	Seq uint64    `json:"seq"`
	At  time.Time `json:"at"`
}

// Event is implemented by every published notification.
type Event interface {
	EventType() Type
	header() *Header
}

// TaskProgress reports bytes moved for the in-flight task. A progress event
// with Mode none clears the indicator after a task finishes.
type TaskProgress struct {
	Header
	TaskID     string `json:"task_id,omitempty"`
	CaseID     string `json:"case_id,omitempty"`
	Mode       Mode   `json:"mode"`
	SourcePath string `json:"source_path,omitempty"`
	BytesDone  int64  `json:"bytes_done"`
	BytesTotal int64  `json:"bytes_total"`
}

// Percent returns completion in [0,100], or -1 when the total is unknown.
func (p TaskProgress) Percent() float64 {
	if p.BytesTotal <= 0 {
		return -1
	}
	pct := float64(p.BytesDone) / float64(p.BytesTotal) * 100
	if pct > 100 {
		return 100
	}
	return pct
}

// TaskCompleted is published once per task, after its handler returns.
type TaskCompleted struct {
	Header
	TaskID   string        `json:"task_id"`
	CaseID   string        `json:"case_id,omitempty"`
	Kind     string        `json:"kind"`
	Duration time.Duration `json:"duration"`
	// Err is nil on success. ErrKind and Stderr classify failures for observers
	// that cannot inspect the error chain (IPC clients, metrics).
	Err     error  `json:"-"`
	ErrKind string `json:"err_kind,omitempty"`
	Message string `json:"message,omitempty"`
	Stderr  string `json:"stderr,omitempty"`
}

// Succeeded reports whether the task finished without error.
func (c TaskCompleted) Succeeded() bool { return c.Err == nil }

// TaskStateChanged records a lifecycle transition (pending, downloading,
// running, succeeded, failed).
type TaskStateChanged struct {
	Header
	TaskID string `json:"task_id"`
	CaseID string `json:"case_id,omitempty"`
	Kind   string `json:"kind"`
	From   string `json:"from,omitempty"`
	To     string `json:"to"`
}

// QueueDepthChanged carries the number of tasks waiting or running.
type QueueDepthChanged struct {
	Header
	Depth int `json:"depth"`
}

// CasePoll is the per-case outcome of one poll pass. NewFileDelta is zero
// when nothing new appeared; it is never negative.
type CasePoll struct {
	NewFileDelta   int    `json:"new_file_delta"`
	FileCount      int    `json:"file_count"`
	ExternalStatus string `json:"external_status,omitempty"`
	StatusErr      string `json:"status_error,omitempty"`
	ScanErr        string `json:"scan_error,omitempty"`
}

// PollCompleted is the aggregate snapshot of one poll pass.
type PollCompleted struct {
	Header
	Results map[string]CasePoll `json:"results"`
}

func (e *TaskProgress) header() *Header      { return &e.Header }
func (e *TaskCompleted) header() *Header     { return &e.Header }
func (e *TaskStateChanged) header() *Header  { return &e.Header }
func (e *QueueDepthChanged) header() *Header { return &e.Header }
func (e *PollCompleted) header() *Header     { return &e.Header }

func (*TaskProgress) EventType() Type      { return TypeTaskProgress }
func (*TaskCompleted) EventType() Type     { return TypeTaskCompleted }
func (*TaskStateChanged) EventType() Type  { return TypeTaskStateChanged }
func (*QueueDepthChanged) EventType() Type { return TypeQueueDepthChanged }
func (*PollCompleted) EventType() Type     { return TypePollCompleted }
