package store

import (
	"fmt"
	"strings"
	"time"
)

// Location distinguishes the remote share copy of a file from the local one.
type Location string

const (
	LocationRemote Location = "remote"
	LocationLocal  Location = "local"
)

// ParseLocation normalizes a location string.
func ParseLocation(value string) (Location, error) {
	switch Location(strings.ToLower(strings.TrimSpace(value))) {
	case LocationRemote:
		return LocationRemote, nil
	case LocationLocal:
		return LocationLocal, nil
	default:
		return "", fmt.Errorf("unknown location %q", value)
	}
}

// TypeDir is the FileRecord type of directories.
const TypeDir = "dir"

// Case is a unit of work with a remote and a local file tree.
type Case struct {
	ID         string
	RemotePath string
	LocalPath  string
	CreatedAt  time.Time
}

// FileRecord is one scanned file or directory. Records are unique on
// (CaseID, Path, Location) and are never pruned when files disappear.
type FileRecord struct {
	CaseID     string
	Name       string
	Location   Location
	Path       string
	Type       string
	Size       int64
	CreatedAt  time.Time
	ModifiedAt time.Time
	DepthIndex int
	Favorite   bool
	Notes      string
}

// IsDir reports whether the record is a directory.
func (r FileRecord) IsDir() bool { return r.Type == TypeDir }

// Favorite is the newest known copy of a favorited file name.
type Favorite struct {
	Name       string
	CaseID     string
	Path       string
	Location   Location
	ModifiedAt time.Time
}

// CaseSyncState tracks what the poll daemon last observed for a case.
type CaseSyncState struct {
	CaseID        string
	LastFileCount int
	LastPollTime  time.Time
}

// Automation is the persisted registry row for an automation. The enabled
// flag survives rediscovery.
type Automation struct {
	Name           string
	Enabled        bool
	Version        string
	Kind           string
	ExecutablePath string
	ExecutableHash string
	DiscoveredAt   time.Time
}

// TaskState is the lifecycle of a queued task.
type TaskState string

const (
	TaskPending     TaskState = "pending"
	TaskDownloading TaskState = "downloading"
	TaskRunning     TaskState = "running"
	TaskSucceeded   TaskState = "succeeded"
	TaskFailed      TaskState = "failed"
)

// IsTerminal reports whether no further transition is possible.
func (s TaskState) IsTerminal() bool {
	return s == TaskSucceeded || s == TaskFailed
}

// TaskRecord is the history row of a task.
type TaskRecord struct {
	ID             string
	Kind           string
	CaseID         string
	SourcePath     string
	DestPath       string
	AutomationName string
	State          TaskState
	ErrorKind      string
	ErrorMessage   string
	Stderr         string
	EnqueuedAt     time.Time
	StartedAt      time.Time
	FinishedAt     time.Time
}
