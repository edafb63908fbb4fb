package workqueue

import (
	"fmt"
	"strings"
	"time"

	"casework/internal/services"
)

// Kind selects the handler for a task.
type Kind string

const (
	KindDownload   Kind = "download"
	KindUpload     Kind = "upload"
	KindRefresh    Kind = "refresh"
	KindAutomation Kind = "automation"
	KindPoll       Kind = "poll"
)

// ParseKind normalizes a kind name.
func ParseKind(value string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(value))); k {
	case KindDownload, KindUpload, KindRefresh, KindAutomation, KindPoll:
		return k, nil
	default:
		return "", services.Wrap(services.ErrValidation, "workqueue", "parse kind", fmt.Sprintf("unknown task kind %q", value), nil)
	}
}

// Task is one unit of queued work. SourcePath and DestPath are absolute;
// for downloads and uploads DestPath may be left empty and is derived from
// the owning case's trees. PrefetchFor names the automation a download was
// queued for.
type Task struct {
	ID             string            `json:"id"`
	Kind           Kind              `json:"kind"`
	CaseID         string            `json:"case_id,omitempty"`
	SourcePath     string            `json:"source_path,omitempty"`
	DestPath       string            `json:"dest_path,omitempty"`
	AutomationName string            `json:"automation_name,omitempty"`
	Options        map[string]string `json:"options,omitempty"`
	PrefetchFor    string            `json:"prefetch_for,omitempty"`
	EnqueuedAt     time.Time         `json:"enqueued_at"`
}

// Validate checks that the fields the kind needs are present.
func (t Task) Validate() error {
	invalid := func(msg string) error {
		return services.Wrap(services.ErrValidation, "workqueue", "validate "+string(t.Kind), msg, nil)
	}
	switch t.Kind {
	case KindDownload, KindUpload:
		if strings.TrimSpace(t.SourcePath) == "" {
			return invalid("source path is required")
		}
		if t.DestPath == "" && t.CaseID == "" {
			return invalid("destination path or case id is required")
		}
	case KindRefresh:
		if t.CaseID == "" {
			return invalid("case id is required")
		}
	case KindAutomation:
		if t.AutomationName == "" {
			return invalid("automation name is required")
		}
		if strings.TrimSpace(t.SourcePath) == "" {
			return invalid("target path is required")
		}
	case KindPoll:
	default:
		_, err := ParseKind(string(t.Kind))
		return err
	}
	return nil
}
