// Package terminal manages interactive PTY shell sessions for the
// editor's embedded terminal. Sessions are identified by opaque ids;
// holding an id is the capability to use the session.
package terminal

import (
	"bytes"
	"errors"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/creack/pty"
	"github.com/google/uuid"

	"github.com/nexar-labs/nexar/internal/observability"
	"github.com/nexar-labs/nexar/internal/tools/files"
	"github.com/nexar-labs/nexar/pkg/models"
)

// ErrSessionNotFound means the session id is unknown or already closed.
var ErrSessionNotFound = errors.New("terminal session not found")

// killGrace is how long a closing shell gets between SIGTERM and SIGKILL.
const killGrace = 2 * time.Second

// outputBufferCap bounds the bytes retained between output polls.
const outputBufferCap = 1 << 20 // 1MB

// Session is one live PTY-backed shell.
type Session struct {
	id    string
	cwd   string
	shell string

	mu       sync.Mutex
	ptmx     *os.File
	cmd      *exec.Cmd
	buf      bytes.Buffer
	alive    bool
	exitCode *int
}

// Manager owns the session table.
type Manager struct {
	mu        sync.Mutex
	sessions  map[string]*Session
	resolver  files.Resolver
	workspace string
	logger    *observability.Logger
	metrics   *observability.Metrics
}

// Config wires a Manager.
type Config struct {
	Workspace string
	Logger    *observability.Logger
	Metrics   *observability.Metrics
}

// NewManager creates a session manager.
func NewManager(cfg Config) *Manager {
	return &Manager{
		sessions:  make(map[string]*Session),
		resolver:  files.Resolver{Root: cfg.Workspace},
		workspace: cfg.Workspace,
		logger:    cfg.Logger,
		metrics:   cfg.Metrics,
	}
}

// Create starts a new shell session. cwd defaults to the workspace root
// and is clamped inside it; shell defaults to an interactive bash with
// profiles suppressed, falling back to sh.
func (m *Manager) Create(req *models.TerminalCreateRequest) (*models.TerminalSessionInfo, error) {
	cwd := req.Cwd
	if cwd == "" {
		cwd = "."
	}
	resolvedCwd, err := m.resolver.Resolve(cwd)
	if err != nil {
		return nil, err
	}
	if info, statErr := os.Stat(resolvedCwd); statErr != nil || !info.IsDir() {
		resolvedCwd, _ = m.resolver.Resolve(".")
	}

	shellPath, args := shellCommand(req.Shell)
	cmd := exec.Command(shellPath, args...)
	cmd.Dir = resolvedCwd
	cmd.Env = append(os.Environ(), "TERM=xterm-256color")
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	ptmx, err := pty.Start(cmd)
	if err != nil && shellPath != "sh" {
		// bash may be missing in minimal containers.
		shellPath, args = "sh", nil
		cmd = exec.Command(shellPath)
		cmd.Dir = resolvedCwd
		cmd.Env = append(os.Environ(), "TERM=xterm-256color")
		cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
		ptmx, err = pty.Start(cmd)
	}
	if err != nil {
		return nil, err
	}

	s := &Session{
		id:    uuid.NewString(),
		cwd:   m.resolver.Rel(resolvedCwd),
		shell: shellPath,
		ptmx:  ptmx,
		cmd:   cmd,
		alive: true,
	}

	m.mu.Lock()
	m.sessions[s.id] = s
	m.mu.Unlock()
	if m.metrics != nil {
		m.metrics.ActiveTerminalSessions.Inc()
	}

	go m.pump(s)
	go m.reap(s)

	return &models.TerminalSessionInfo{
		SessionID: s.id,
		Cwd:       s.cwd,
		Shell:     s.shell,
		Alive:     true,
	}, nil
}

// shellCommand picks the shell binary and its arguments.
func shellCommand(requested string) (string, []string) {
	if requested != "" {
		return requested, nil
	}
	return "bash", []string{"--noprofile", "--norc", "-i"}
}

// pump copies PTY output into the session buffer until EOF.
func (m *Manager) pump(s *Session) {
	chunk := make([]byte, 4096)
	for {
		n, err := s.ptmx.Read(chunk)
		if n > 0 {
			s.mu.Lock()
			s.buf.Write(chunk[:n])
			if s.buf.Len() > outputBufferCap {
				// Drop the oldest bytes; the terminal is a live stream,
				// not a scrollback store.
				excess := s.buf.Len() - outputBufferCap
				s.buf.Next(excess)
			}
			s.mu.Unlock()
		}
		if err != nil {
			return
		}
	}
}

// reap waits for the shell to exit and records the exit code.
func (m *Manager) reap(s *Session) {
	err := s.cmd.Wait()
	code := 0
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			code = exitErr.ExitCode()
		} else {
			code = -1
		}
	}
	s.mu.Lock()
	s.alive = false
	s.exitCode = &code
	s.mu.Unlock()
	if m.metrics != nil {
		m.metrics.ActiveTerminalSessions.Dec()
	}
}

func (m *Manager) get(id string) (*Session, error) {
	m.mu.Lock()
	s, ok := m.sessions[id]
	m.mu.Unlock()
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// Write sends input bytes to the session's PTY.
func (m *Manager) Write(id, data string) error {
	s, err := m.get(id)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.alive {
		return ErrSessionNotFound
	}
	_, err = s.ptmx.Write([]byte(data))
	return err
}

// Read drains the output accumulated since the previous read.
func (m *Manager) Read(id string) (*models.TerminalOutput, error) {
	s, err := m.get(id)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := &models.TerminalOutput{
		SessionID: s.id,
		Output:    s.buf.String(),
		Alive:     s.alive,
		ExitCode:  s.exitCode,
	}
	s.buf.Reset()
	return out, nil
}

// Resize changes the PTY window size.
func (m *Manager) Resize(id string, cols, rows int) error {
	s, err := m.get(id)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.alive {
		return ErrSessionNotFound
	}
	return pty.Setsize(s.ptmx, &pty.Winsize{Cols: uint16(cols), Rows: uint16(rows)})
}

// Close terminates the session: SIGTERM to the process group, SIGKILL
// after a grace period, then the PTY is released.
func (m *Manager) Close(id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if !ok {
		return ErrSessionNotFound
	}

	s.mu.Lock()
	alive := s.alive
	pid := 0
	if s.cmd.Process != nil {
		pid = s.cmd.Process.Pid
	}
	s.mu.Unlock()

	if alive && pid > 0 {
		syscall.Kill(-pid, syscall.SIGTERM)
		go func() {
			time.Sleep(killGrace)
			s.mu.Lock()
			stillAlive := s.alive
			s.mu.Unlock()
			if stillAlive {
				syscall.Kill(-pid, syscall.SIGKILL)
			}
		}()
	}
	s.ptmx.Close()
	return nil
}

// CloseAll terminates every session; used on shutdown.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	m.mu.Unlock()
	for _, id := range ids {
		m.Close(id)
	}
}
