package preflight

import (
	"context"

	"casework/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes all applicable preflight checks for the given config.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("Remote root", cfg.Paths.RemoteRoot),
		CheckDirectoryAccess("Workspace", cfg.Paths.WorkspaceDir),
		CheckDirectoryAccess("State directory", cfg.Paths.StateDir),
	}

	// Extensions are optional; only check a directory the user created.
	if cfg.Paths.ExtensionsDir != "" && dirExists(cfg.Paths.ExtensionsDir) {
		results = append(results, CheckReadableDirectory("Extensions directory", cfg.Paths.ExtensionsDir))
	}

	for _, status := range CheckSystemDeps(ctx, cfg) {
		r := Result{Name: status.Name, Passed: status.Available || status.Optional, Detail: status.Detail}
		if status.Available {
			r.Detail = status.Path
		}
		results = append(results, r)
	}
	return results
}

// Failed returns the subset of results that did not pass.
func Failed(results []Result) []Result {
	var out []Result
	for _, r := range results {
		if !r.Passed {
			out = append(out, r)
		}
	}
	return out
}
