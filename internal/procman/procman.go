// Package procman launches, inspects, and kills the supervised processes
// (model host and API). It is the only place that touches the OS process
// table; recovery and boot act through it.
package procman

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
)

// Manager starts and stops child processes. Children are detached from
// the supervisor's lifetime; their stdout/stderr go to log files under
// RunDir so a supervisor restart does not lose them.
type Manager struct {
	// RunDir holds per-process log files.
	RunDir string
	// ProcRoot is /proc unless a test injects a fake tree.
	ProcRoot string
	// KillGrace is how long TERM gets before KILL. Default 5s.
	KillGrace time.Duration
	Logger    zerolog.Logger
}

// New returns a Manager writing process logs under runDir.
func New(runDir string, logger zerolog.Logger) *Manager {
	return &Manager{RunDir: runDir, ProcRoot: "/proc", KillGrace: 5 * time.Second, Logger: logger}
}

// Start launches command (first token binary, rest arguments) detached
// from the supervisor and returns its pid.
func (m *Manager) Start(name, command string, extraEnv []string) (int, error) {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return 0, fmt.Errorf("empty command for %s", name)
	}
	if m.RunDir != "" {
		if err := os.MkdirAll(m.RunDir, 0o755); err != nil {
			return 0, fmt.Errorf("run dir: %w", err)
		}
	}
	cmd := exec.Command(fields[0], fields[1:]...)
	cmd.Env = append(os.Environ(), extraEnv...)
	cmd.Stdin = nil
	if m.RunDir != "" {
		logFile, err := os.OpenFile(filepath.Join(m.RunDir, name+".log"),
			os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return 0, fmt.Errorf("open log for %s: %w", name, err)
		}
		defer logFile.Close()
		cmd.Stdout = logFile
		cmd.Stderr = logFile
	}
	// New session so killing the supervisor does not take the child down
	// and vice versa; recovery owns child lifetimes explicitly.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("start %s: %w", name, err)
	}
	pid := cmd.Process.Pid
	m.Logger.Info().Str("name", name).Int("pid", pid).Str("command", command).Msg("process started")
	// Reap the child in the background so it never zombies.
	go func() { _ = cmd.Wait() }()
	return pid, nil
}

// Alive reports whether pid exists and is not a zombie.
func (m *Manager) Alive(pid int) bool {
	if pid <= 0 {
		return false
	}
	b, err := os.ReadFile(filepath.Join(m.ProcRoot, strconv.Itoa(pid), "stat"))
	if err != nil {
		return false
	}
	// Field 3 of /proc/<pid>/stat is the state; Z means zombie. The comm
	// field may contain spaces, so scan from the closing paren.
	s := string(b)
	if idx := strings.LastIndexByte(s, ')'); idx >= 0 && idx+2 < len(s) {
		return s[idx+2] != 'Z'
	}
	return true
}

// Kill terminates pid: TERM first, KILL after the grace period.
func (m *Manager) Kill(pid int) error {
	if pid <= 0 {
		return fmt.Errorf("invalid pid %d", pid)
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	if err := proc.Signal(syscall.SIGTERM); err != nil {
		// Already gone.
		return nil
	}
	deadline := time.Now().Add(m.KillGrace)
	for time.Now().Before(deadline) {
		if !m.Alive(pid) {
			return nil
		}
		time.Sleep(50 * time.Millisecond)
	}
	m.Logger.Warn().Int("pid", pid).Msg("TERM grace expired, sending KILL")
	return proc.Kill()
}

// KillOrphans scans the process table for commands matching any of the
// given substrings and kills them, excluding the supervisor itself.
// Returns the number of processes killed.
func (m *Manager) KillOrphans(patterns []string) (int, error) {
	pids, err := m.FindByPattern(patterns)
	if err != nil {
		return 0, err
	}
	killed := 0
	for _, pid := range pids {
		if err := m.Kill(pid); err == nil {
			killed++
			m.Logger.Warn().Int("pid", pid).Msg("killed orphaned process")
		}
	}
	return killed, nil
}

// FindByPattern returns pids whose cmdline contains any pattern.
func (m *Manager) FindByPattern(patterns []string) ([]int, error) {
	entries, err := os.ReadDir(m.ProcRoot)
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", m.ProcRoot, err)
	}
	self := os.Getpid()
	var out []int
	for _, e := range entries {
		pid, err := strconv.Atoi(e.Name())
		if err != nil || pid == self {
			continue
		}
		b, err := os.ReadFile(filepath.Join(m.ProcRoot, e.Name(), "cmdline"))
		if err != nil {
			continue
		}
		cmdline := strings.ReplaceAll(string(b), "\x00", " ")
		for _, p := range patterns {
			if p != "" && strings.Contains(cmdline, p) {
				out = append(out, pid)
				break
			}
		}
	}
	return out, nil
}
