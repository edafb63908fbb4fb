package deps

import (
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"casework/internal/config"
	"casework/internal/services"
)

// Requirement defines an external tool casework invokes.
type Requirement struct {
	Name        string
	Command     string
	Description string
	Optional    bool
}

// Status reports the availability of a dependency.
type Status struct {
	Name        string
	Command     string
	Path        string
	Description string
	Optional    bool
	Available   bool
	Detail      string
}

// CheckBinaries evaluates the provided requirements and reports availability.
func CheckBinaries(requirements []Requirement) []Status {
	results := make([]Status, 0, len(requirements))
	for _, req := range requirements {
		cmd := strings.TrimSpace(req.Command)
		status := Status{
			Name:        req.Name,
			Command:     cmd,
			Description: strings.TrimSpace(req.Description),
			Optional:    req.Optional,
		}
		if cmd == "" {
			status.Detail = "command not configured"
			results = append(results, status)
			continue
		}
		resolved, err := exec.LookPath(cmd)
		if err != nil {
			status.Detail = fmt.Sprintf("binary %q not found", cmd)
			results = append(results, status)
			continue
		}
		status.Path = resolved
		status.Available = true
		results = append(results, status)
	}
	return results
}

// UnpackRequirements lists the tools used by the encrypted unpack chains and
// the optional external status command.
func UnpackRequirements(cfg *config.Config) []Requirement {
	if cfg == nil {
		return nil
	}
	reqs := []Requirement{
		{
			Name:        "Decrypt tool",
			Command:     cfg.Unpack.DecryptBinary,
			Description: "Single-stage bundle decryption (-t <input>)",
		},
		{
			Name:        "Two-stage decrypt tool",
			Command:     cfg.Unpack.TwoStageBinary,
			Description: "Produces the password-protected intermediate archive",
		},
		{
			Name:        "Archive extractor",
			Command:     cfg.Unpack.ExtractBinary,
			Description: "Extracts the password-protected intermediate archive",
		},
	}
	if cmd := statusCommandBinary(cfg.Poll.StatusCommand); cmd != "" {
		reqs = append(reqs, Requirement{
			Name:        "Status command",
			Command:     cmd,
			Description: "External case status lookups",
			Optional:    true,
		})
	}
	return reqs
}

// RequireAvailable returns a configuration error naming every required
// dependency that is missing. Optional dependencies never fail.
func RequireAvailable(statuses []Status) error {
	var errs []error
	for _, s := range statuses {
		if s.Available || s.Optional {
			continue
		}
		errs = append(errs, fmt.Errorf("%s: %s", s.Name, s.Detail))
	}
	if len(errs) == 0 {
		return nil
	}
	return services.Wrap(services.ErrConfiguration, "deps", "check binaries", "required tools unavailable", errors.Join(errs...))
}

func statusCommandBinary(command string) string {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}
