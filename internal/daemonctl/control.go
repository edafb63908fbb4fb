package daemonctl

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"casework/internal/config"
	"casework/internal/ipc"
	"casework/internal/preflight"
	"casework/internal/store"
)

// LaunchOptions controls daemon process launch behavior.
type LaunchOptions struct {
	SocketPath string
	ConfigPath string
	Diagnostic bool
}

type StartState string

const (
	StartStateStarted        StartState = "started"
	StartStateAlreadyRunning StartState = "already_running"
)

// StartResult captures daemon start orchestration state.
type StartResult struct {
	State    StartState
	Launched bool
	PID      int
}

// Launch starts a detached casework daemon process.
func Launch(executablePath string, opts LaunchOptions) error {
	if strings.TrimSpace(executablePath) == "" {
		return fmt.Errorf("resolve executable: executable path is empty")
	}

	args := []string{"daemon"}
	if socket := strings.TrimSpace(opts.SocketPath); socket != "" {
		args = append(args, "--socket", socket)
	}
	if cfg := strings.TrimSpace(opts.ConfigPath); cfg != "" {
		args = append(args, "--config", cfg)
	}
	if opts.Diagnostic {
		args = append(args, "--diagnostic")
	}

	proc := exec.Command(executablePath, args...)
	proc.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	if err := proc.Start(); err != nil {
		return fmt.Errorf("launch daemon: %w", err)
	}
	return proc.Process.Release()
}

// WaitForClient waits for IPC socket availability and returns a connected client.
func WaitForClient(socketPath string, timeout time.Duration) (*ipc.Client, error) {
	deadline := time.Now().Add(timeout)
	var lastErr error
	for time.Now().Before(deadline) {
		client, err := ipc.Dial(socketPath)
		if err == nil {
			return client, nil
		}
		lastErr = err
		time.Sleep(200 * time.Millisecond)
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("timeout waiting for daemon")
	}
	return nil, fmt.Errorf("daemon failed to start: %w", lastErr)
}

// EnsureStarted launches the daemon unless one already answers on the socket.
func EnsureStarted(socketPath, executablePath string, opts LaunchOptions, waitTimeout time.Duration) (StartResult, error) {
	client, err := ipc.Dial(socketPath)
	launched := false
	if err != nil {
		if launchErr := Launch(executablePath, opts); launchErr != nil {
			return StartResult{}, launchErr
		}
		client, err = WaitForClient(socketPath, waitTimeout)
		if err != nil {
			return StartResult{}, err
		}
		launched = true
	}
	defer client.Close()

	status, err := client.Status()
	if err != nil {
		return StartResult{}, fmt.Errorf("query daemon status: %w", err)
	}
	if !status.Running {
		return StartResult{}, fmt.Errorf("daemon answered on %s but reports not running", socketPath)
	}
	if launched {
		return StartResult{State: StartStateStarted, Launched: true, PID: status.PID}, nil
	}
	return StartResult{State: StartStateAlreadyRunning, PID: status.PID}, nil
}

// WaitForShutdown waits for the daemon socket to stop answering.
func WaitForShutdown(socketPath string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		client, err := ipc.Dial(socketPath)
		if err != nil {
			if isDaemonUnavailable(err) {
				return nil
			}
			time.Sleep(200 * time.Millisecond)
			continue
		}
		_ = client.Close()
		time.Sleep(200 * time.Millisecond)
	}
	return fmt.Errorf("daemon did not stop within %s", timeout)
}

// ErrDaemonNotRunning indicates daemon IPC is unavailable.
var ErrDaemonNotRunning = errors.New("daemon not running")

// StopResult captures daemon stop/termination outcome.
type StopResult struct {
	PID        int
	ForcedKill bool
}

// RestartResult captures stop/start outcomes for daemon restart.
type RestartResult struct {
	WasRunning bool
	Stop       StopResult
	Start      StartResult
}

// StopAndTerminate sends SIGTERM to the daemon and escalates to SIGKILL if it
// is still answering after gracePeriod.
func StopAndTerminate(socketPath string, cfg *config.Config, gracePeriod time.Duration) (StopResult, error) {
	client, err := ipc.Dial(socketPath)
	if err != nil {
		if isDaemonUnavailable(err) {
			return StopResult{}, ErrDaemonNotRunning
		}
		return StopResult{}, err
	}
	status, statusErr := client.Status()
	_ = client.Close()

	pid := 0
	if statusErr == nil && status != nil {
		pid = status.PID
	}
	if pid <= 0 {
		pid = readPID(PIDPath(cfg))
	}
	if pid <= 0 {
		return StopResult{}, fmt.Errorf("unable to determine daemon pid (pid file: %s)", PIDPath(cfg))
	}
	if err := signalProcess(pid, syscall.SIGTERM); err != nil {
		return StopResult{}, err
	}

	result := StopResult{PID: pid}
	if WaitForShutdown(socketPath, gracePeriod) == nil {
		return result, nil
	}

	killedPID, killErr := ForceKillProcess(PIDPath(cfg), lockPath(cfg), pid)
	if killErr != nil {
		return result, fmt.Errorf("failed to stop daemon process: %w", killErr)
	}
	_ = os.Remove(socketPath)
	result.ForcedKill = true
	result.PID = killedPID
	return result, nil
}

// Restart stops the daemon if running, then ensures it is started.
func Restart(socketPath string, cfg *config.Config, executablePath string, opts LaunchOptions, stopGracePeriod, startWaitTimeout time.Duration) (RestartResult, error) {
	stopResult, stopErr := StopAndTerminate(socketPath, cfg, stopGracePeriod)
	if stopErr != nil && !errors.Is(stopErr, ErrDaemonNotRunning) {
		return RestartResult{}, stopErr
	}

	startResult, err := EnsureStarted(socketPath, executablePath, opts, startWaitTimeout)
	if err != nil {
		return RestartResult{}, err
	}

	return RestartResult{
		WasRunning: stopErr == nil,
		Stop:       stopResult,
		Start:      startResult,
	}, nil
}

// PIDPath is where the daemon process records its pid.
func PIDPath(cfg *config.Config) string {
	if cfg == nil || strings.TrimSpace(cfg.Paths.StateDir) == "" {
		return ""
	}
	return filepath.Join(cfg.Paths.StateDir, "casework.pid")
}

func lockPath(cfg *config.Config) string {
	if cfg == nil {
		return ""
	}
	return cfg.LockPath()
}

func readPID(path string) int {
	if path == "" {
		return 0
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return 0
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0
	}
	return pid
}

func signalProcess(pid int, sig syscall.Signal) error {
	if pid == os.Getpid() {
		return fmt.Errorf("refusing to signal current process (pid %d)", pid)
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("locate daemon process %d: %w", pid, err)
	}
	if err := proc.Signal(sig); err != nil {
		return fmt.Errorf("signal daemon process %d: %w", pid, err)
	}
	return nil
}

// ForceKillProcess sends SIGKILL to the daemon process and cleans pid/lock files.
func ForceKillProcess(pidPath, lockFile string, fallbackPID int) (int, error) {
	pid := readPID(pidPath)
	if pid <= 0 {
		pid = fallbackPID
	}
	if pid <= 0 {
		return 0, fmt.Errorf("unable to determine daemon pid (pid file: %s)", pidPath)
	}
	if err := signalProcess(pid, syscall.SIGKILL); err != nil {
		return 0, err
	}
	if pidPath != "" {
		if err := os.Remove(pidPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			return 0, fmt.Errorf("remove pid file %q: %w", pidPath, err)
		}
	}
	if lockFile != "" {
		_ = os.Remove(lockFile)
	}
	return pid, nil
}

func isDaemonUnavailable(err error) bool {
	return os.IsNotExist(err) ||
		errors.Is(err, os.ErrNotExist) ||
		errors.Is(err, syscall.ENOENT) ||
		errors.Is(err, syscall.ECONNREFUSED)
}

// StatusLine is one labelled check in the status report.
type StatusLine struct {
	Label    string `json:"label"`
	Severity string `json:"severity"`
	Detail   string `json:"detail"`
}

// DependencySummary aggregates dependency readiness.
type DependencySummary struct {
	Total           int    `json:"total"`
	Available       int    `json:"available"`
	MissingRequired int    `json:"missing_required"`
	MissingOptional int    `json:"missing_optional"`
	Severity        string `json:"severity"`
	Detail          string `json:"detail"`
}

// Snapshot is the status report shown by `casework status`.
type Snapshot struct {
	ipc.StatusResponse

	TaskCounts        map[string]int    `json:"task_counts"`
	SystemChecks      []StatusLine      `json:"system_checks"`
	Paths             []StatusLine      `json:"paths"`
	DependencySummary DependencySummary `json:"dependency_summary"`
	Severities        map[string]string `json:"dependency_severity"`
	Recent            []ipc.Task        `json:"recent_tasks,omitempty"`
}

// BuildStatusSnapshot collects daemon status and falls back to the store and
// local dependency checks when the daemon is not reachable.
func BuildStatusSnapshot(ctx context.Context, socketPath string, cfg *config.Config) (*Snapshot, error) {
	if cfg == nil {
		return nil, errors.New("configuration not available")
	}
	snap := &Snapshot{}

	client, err := ipc.Dial(socketPath)
	if err == nil {
		defer client.Close()
		if resp, statusErr := client.Status(); statusErr == nil && resp != nil {
			snap.StatusResponse = *resp
		}
		if tasks, tasksErr := client.Tasks(50); tasksErr == nil && tasks != nil {
			snap.Recent = tasks.Tasks
		}
	}

	if !snap.Running {
		queryCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if st, openErr := store.Open(cfg); openErr == nil {
			records, listErr := st.RecentTasks(queryCtx, 50)
			_ = st.Close()
			if listErr == nil {
				snap.Recent = snap.Recent[:0]
				for _, rec := range records {
					snap.Recent = append(snap.Recent, ipcTask(rec))
				}
			}
		}
	}

	if len(snap.Dependencies) == 0 {
		snap.Dependencies = ResolveDependencies(ctx, cfg)
	}
	snap.Severities = make(map[string]string, len(snap.Dependencies))
	for _, dep := range snap.Dependencies {
		snap.Severities[dep.Name] = DependencySeverity(dep)
	}

	snap.TaskCounts = make(map[string]int)
	for _, task := range snap.Recent {
		snap.TaskCounts[task.State]++
	}
	snap.SystemChecks = BuildSystemChecks(cfg, snap.Running, snap.Work.Depth)
	snap.Paths = BuildPathChecks(cfg)
	snap.DependencySummary = BuildDependencySummary(snap.Dependencies)
	return snap, nil
}

func ipcTask(rec store.TaskRecord) ipc.Task {
	return ipc.Task{
		ID:             rec.ID,
		Kind:           rec.Kind,
		CaseID:         rec.CaseID,
		SourcePath:     rec.SourcePath,
		DestPath:       rec.DestPath,
		AutomationName: rec.AutomationName,
		State:          string(rec.State),
		ErrorKind:      rec.ErrorKind,
		ErrorMessage:   rec.ErrorMessage,
		EnqueuedAt:     rec.EnqueuedAt,
		StartedAt:      rec.StartedAt,
		FinishedAt:     rec.FinishedAt,
	}
}

// ResolveDependencies returns current dependency availability for status output.
func ResolveDependencies(ctx context.Context, cfg *config.Config) []ipc.DependencyStatus {
	if cfg == nil {
		return nil
	}
	checks := preflight.CheckSystemDeps(ctx, cfg)
	statuses := make([]ipc.DependencyStatus, 0, len(checks))
	for _, check := range checks {
		statuses = append(statuses, ipc.DependencyStatus{
			Name:        check.Name,
			Command:     check.Command,
			Description: check.Description,
			Optional:    check.Optional,
			Available:   check.Available,
			Detail:      check.Detail,
		})
	}
	return statuses
}

// DependencySeverity grades a dependency for the status report.
func DependencySeverity(dep ipc.DependencyStatus) string {
	switch {
	case dep.Available:
		return "ok"
	case dep.Optional:
		return "warn"
	default:
		return "error"
	}
}

// BuildSystemChecks resolves status lines that combine runtime state and config.
func BuildSystemChecks(cfg *config.Config, daemonRunning bool, depth int) []StatusLine {
	lines := make([]StatusLine, 0, 6)
	if daemonRunning {
		lines = append(lines, StatusLine{Label: "Casework", Severity: "ok", Detail: "Running"})
		lines = append(lines, StatusLine{Label: "Queue depth", Severity: "info", Detail: strconv.Itoa(depth)})
	} else {
		lines = append(lines, StatusLine{Label: "Casework", Severity: "warn", Detail: "Not running (run `casework start`)"})
	}

	switch {
	case !cfg.Poll.Enabled:
		lines = append(lines, StatusLine{Label: "Poll", Severity: "info", Detail: "Disabled"})
	default:
		lines = append(lines, StatusLine{Label: "Poll", Severity: "ok", Detail: "Every " + cfg.PollInterval().String()})
	}

	if cfg.Unpack.AutoUnpack {
		lines = append(lines, StatusLine{Label: "Auto unpack", Severity: "ok", Detail: "Enabled"})
	} else {
		lines = append(lines, StatusLine{Label: "Auto unpack", Severity: "info", Detail: "Disabled"})
	}

	if strings.TrimSpace(cfg.API.Bind) != "" {
		detail := cfg.API.Bind
		severity := "ok"
		if strings.TrimSpace(cfg.API.Token) == "" {
			detail += " (no token)"
			severity = "warn"
		}
		lines = append(lines, StatusLine{Label: "HTTP API", Severity: severity, Detail: detail})
	}

	if cfg.Notifications.NtfyTopic != "" {
		lines = append(lines, StatusLine{Label: "Notifications", Severity: "ok", Detail: "ntfy"})
	} else {
		lines = append(lines, StatusLine{Label: "Notifications", Severity: "info", Detail: "Disabled"})
	}
	return lines
}

// BuildPathChecks resolves configured directory readiness.
func BuildPathChecks(cfg *config.Config) []StatusLine {
	lines := make([]StatusLine, 0, 4)
	for _, dir := range []struct {
		label string
		path  string
	}{
		{label: "Remote root", path: cfg.Paths.RemoteRoot},
		{label: "Workspace", path: cfg.Paths.WorkspaceDir},
		{label: "State", path: cfg.Paths.StateDir},
		{label: "Extensions", path: cfg.Paths.ExtensionsDir},
	} {
		if strings.TrimSpace(dir.path) == "" {
			continue
		}
		result := preflight.CheckDirectoryAccess(dir.label, dir.path)
		severity := "error"
		if result.Passed {
			severity = "ok"
		} else if dir.label == "Extensions" {
			severity = "warn"
		}
		lines = append(lines, StatusLine{Label: dir.label, Severity: severity, Detail: result.Detail})
	}
	return lines
}

// BuildDependencySummary computes aggregate dependency readiness.
func BuildDependencySummary(deps []ipc.DependencyStatus) DependencySummary {
	if len(deps) == 0 {
		return DependencySummary{
			Severity: "info",
			Detail:   "No dependency checks configured",
		}
	}

	missingRequired := 0
	missingOptional := 0
	for _, dep := range deps {
		if dep.Available {
			continue
		}
		if dep.Optional {
			missingOptional++
		} else {
			missingRequired++
		}
	}

	missingCount := missingRequired + missingOptional
	available := len(deps) - missingCount
	severity := "ok"
	if missingRequired > 0 {
		severity = "error"
	} else if missingOptional > 0 {
		severity = "warn"
	}
	detail := fmt.Sprintf("%d/%d available (missing: %d required, %d optional)", available, len(deps), missingRequired, missingOptional)
	if missingCount == 0 {
		detail = fmt.Sprintf("%d/%d available", available, len(deps))
	}

	return DependencySummary{
		Total:           len(deps),
		Available:       available,
		MissingRequired: missingRequired,
		MissingOptional: missingOptional,
		Severity:        severity,
		Detail:          detail,
	}
}
