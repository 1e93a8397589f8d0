// Package shell owns a pool of long-lived child shells and multiplexes
// commands over each shell's single stdin/stdout/stderr byte stream using an
// out-of-band sentinel protocol, so that consecutive commands against the
// same session share environment and working directory.
package shell

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"regexp"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shrimp/shrimp/pkg/models"
)

const (
	// DefaultMaxSessions is SHRIMP_MAX_SESSIONS' default.
	DefaultMaxSessions = 8
	// DefaultSessionTTL is how long an idle session survives before the sweeper evicts it.
	DefaultSessionTTL = 30 * time.Minute
	// DefaultCommandTimeout is SHRIMP_COMMAND_TIMEOUT_MS' default.
	DefaultCommandTimeout = 30 * time.Second
	// MaxCommandTimeout is the hard ceiling on any single command or write_stdin yield.
	MaxCommandTimeout = 5 * time.Minute
	// DefaultMaxOutputChars is SHRIMP_MAX_OUTPUT_CHARS' default.
	DefaultMaxOutputChars = 20_000

	sweepInterval = 30 * time.Second
	pollInterval  = 25 * time.Millisecond
)

var sentinelLine = regexp.MustCompile(`(?m)^__SHRIMP_DONE_([a-zA-Z0-9]+):(-?\d+):(.*)$`)

// pendingCommand tracks a non-interactive command in flight on the session's
// long-lived shell.
type pendingCommand struct {
	token       string
	startedAt   time.Time
	stdoutStart int
	stderrStart int
	// cursors mark how much of the command's output has already been
	// delivered to a caller (the initial RunCommand timeout, or a later
	// write_stdin drain).
	stdoutCursor int
	stderrCursor int
}

// interactiveCmd tracks an interactive command running as its own child
// process, separate from the session's long-lived shell.
type interactiveCmd struct {
	cmd          *exec.Cmd
	stdin        io.WriteCloser
	stdout       *stream
	stderr       *stream
	startedAt    time.Time
	done         chan struct{}
	exitCode     int
	stdoutCursor int
	stderrCursor int
}

func (ic *interactiveCmd) exited() bool {
	select {
	case <-ic.done:
		return true
	default:
		return false
	}
}

// Session is one long-lived shell process plus its retained output streams.
type Session struct {
	ID         string
	Platform   string
	ShellPath  string
	CreatedAt  time.Time
	LastUsedAt time.Time

	mu     sync.Mutex
	cwd    string
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout *stream
	stderr *stream

	pending     *pendingCommand
	interactive *interactiveCmd
}

// CWD returns the session's current working directory.
func (s *Session) CWD() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cwd
}

// Info is the snapshot returned by create_shell_session.
type Info struct {
	SessionID string `json:"sessionId"`
	Shell     string `json:"shell"`
	OS        string `json:"os"`
	CWD       string `json:"cwd"`
}

// CommandResult is the outcome of a run_command dispatch.
type CommandResult struct {
	ExitCode *int   `json:"exitCode"`
	Stdout   string `json:"stdout"`
	Stderr   string `json:"stderr"`
	TimedOut bool   `json:"timedOut"`
	NewCWD   string `json:"cwd,omitempty"`
}

// Completed describes a pending or interactive command reaching exit inside
// a write_stdin call.
type Completed struct {
	ExitCode int `json:"exitCode"`
}

// WriteStdinResult is the outcome of a write_stdin dispatch.
type WriteStdinResult struct {
	Stdout    string     `json:"stdout"`
	Stderr    string     `json:"stderr"`
	Completed *Completed `json:"completed,omitempty"`
}

// Manager owns the process-global map of shell sessions.
type Manager struct {
	mu             sync.Mutex
	sessions       map[string]*Session
	maxSessions    int
	sessionTTL     time.Duration
	maxOutputChars int
	commandTimeout time.Duration

	sweepStop chan struct{}
	sweepDone chan struct{}
}

// NewManager builds a Manager. Zero values fall back to the spec defaults.
func NewManager(maxSessions int, sessionTTL, commandTimeout time.Duration, maxOutputChars int) *Manager {
	if maxSessions <= 0 {
		maxSessions = DefaultMaxSessions
	}
	if sessionTTL <= 0 {
		sessionTTL = DefaultSessionTTL
	}
	if commandTimeout <= 0 {
		commandTimeout = DefaultCommandTimeout
	}
	if maxOutputChars <= 0 {
		maxOutputChars = DefaultMaxOutputChars
	}
	return &Manager{
		sessions:       make(map[string]*Session),
		maxSessions:    maxSessions,
		sessionTTL:     sessionTTL,
		maxOutputChars: maxOutputChars,
		commandTimeout: commandTimeout,
	}
}

// ActiveSessionCount reports how many shell sessions are currently held,
// for runtime diagnostics.
func (m *Manager) ActiveSessionCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// StartSweeper launches the idle-session eviction loop. A call while the loop
// is already running has no effect.
func (m *Manager) StartSweeper() {
	m.mu.Lock()
	if m.sweepStop != nil {
		m.mu.Unlock()
		return
	}
	m.sweepStop = make(chan struct{})
	m.sweepDone = make(chan struct{})
	stop, done := m.sweepStop, m.sweepDone
	m.mu.Unlock()

	go func() {
		defer close(done)
		ticker := time.NewTicker(sweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				m.sweepIdle()
			}
		}
	}()
}

// StopSweeper halts the eviction loop, if running.
func (m *Manager) StopSweeper() {
	m.mu.Lock()
	stop, done := m.sweepStop, m.sweepDone
	m.sweepStop, m.sweepDone = nil, nil
	m.mu.Unlock()
	if stop == nil {
		return
	}
	close(stop)
	<-done
}

func (m *Manager) sweepIdle() {
	m.mu.Lock()
	var stale []*Session
	for id, s := range m.sessions {
		s.mu.Lock()
		busy := s.pending != nil || s.interactive != nil
		idleFor := time.Since(s.LastUsedAt)
		s.mu.Unlock()
		if !busy && idleFor > m.sessionTTL {
			stale = append(stale, s)
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()

	for _, s := range stale {
		killSession(s)
	}
}

func killSession(s *Session) {
	s.mu.Lock()
	cmd := s.cmd
	stdin := s.stdin
	s.mu.Unlock()
	if stdin != nil {
		stdin.Close()
	}
	if cmd != nil && cmd.Process != nil {
		cmd.Process.Kill()
	}
}

func platformShell() (platform, shellPath string) {
	if runtime.GOOS == "windows" {
		comspec := os.Getenv("ComSpec")
		if comspec == "" {
			comspec = "cmd.exe"
		}
		return "windows", comspec
	}
	sh := os.Getenv("SHELL")
	if sh == "" {
		sh = "/bin/bash"
	}
	platform := "linux"
	if runtime.GOOS == "darwin" {
		platform = "darwin"
	}
	return platform, sh
}

// CreateSession spawns a new shell, evicting the oldest-idle session first
// if the pool is at capacity.
func (m *Manager) CreateSession(cwd string) (*Info, error) {
	if cwd == "" {
		if wd, err := os.Getwd(); err == nil {
			cwd = wd
		}
	}
	platform, shellPath := platformShell()

	cmd := exec.Command(shellPath)
	cmd.Dir = cwd
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, models.WrapError(models.KindIoError, fmt.Errorf("stdin pipe: %w", err))
	}
	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return nil, models.WrapError(models.KindIoError, fmt.Errorf("stdout pipe: %w", err))
	}
	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return nil, models.WrapError(models.KindIoError, fmt.Errorf("stderr pipe: %w", err))
	}

	if err := cmd.Start(); err != nil {
		return nil, models.WrapError(models.KindIoError, fmt.Errorf("start shell: %w", err))
	}

	now := time.Now()
	sess := &Session{
		ID:         uuid.NewString(),
		Platform:   platform,
		ShellPath:  shellPath,
		CreatedAt:  now,
		LastUsedAt: now,
		cwd:        cwd,
		cmd:        cmd,
		stdin:      stdin,
		stdout:     newStream(m.maxOutputChars),
		stderr:     newStream(m.maxOutputChars),
	}
	go pump(stdoutPipe, sess.stdout)
	go pump(stderrPipe, sess.stderr)

	m.mu.Lock()
	if len(m.sessions) >= m.maxSessions {
		m.evictOldestLocked()
	}
	m.sessions[sess.ID] = sess
	m.mu.Unlock()
	m.StartSweeper()

	return &Info{SessionID: sess.ID, Shell: shellPath, OS: platform, CWD: cwd}, nil
}

// evictOldestLocked kills and removes the oldest-lastUsedAt session. Caller
// must hold m.mu.
func (m *Manager) evictOldestLocked() {
	var oldestID string
	var oldest time.Time
	for id, s := range m.sessions {
		s.mu.Lock()
		lu := s.LastUsedAt
		s.mu.Unlock()
		if oldestID == "" || lu.Before(oldest) {
			oldestID, oldest = id, lu
		}
	}
	if oldestID == "" {
		return
	}
	s := m.sessions[oldestID]
	delete(m.sessions, oldestID)
	go killSession(s)
}

// pump copies r into dst one read at a time until EOF.
func pump(r io.Reader, dst *stream) {
	buf := make([]byte, 4096)
	br := bufio.NewReaderSize(r, 4096)
	for {
		n, err := br.Read(buf)
		if n > 0 {
			dst.append(buf[:n])
		}
		if err != nil {
			return
		}
	}
}

func (m *Manager) getSession(id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, models.NewError(models.KindUnknownSession, "unknown shell session %q", id)
	}
	return s, nil
}

// CloseSession kills and removes a session. Returns false if the id was
// already unknown.
func (m *Manager) CloseSession(id string) bool {
	m.mu.Lock()
	s, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
	}
	m.mu.Unlock()
	if !ok {
		return false
	}
	killSession(s)
	return true
}

func clampTimeout(d time.Duration, fallback time.Duration) time.Duration {
	if d <= 0 {
		d = fallback
	}
	if d > MaxCommandTimeout {
		d = MaxCommandTimeout
	}
	return d
}

var cdPattern = regexp.MustCompile(`^\s*cd(?:\s+(.+))?\s*$`)

// tryCdIntercept handles the legacy `cd` fast-path: it never touches the
// child shell, just updates the session's own cwd bookkeeping.
func (m *Manager) tryCdIntercept(sess *Session, command string) (*CommandResult, bool) {
	match := cdPattern.FindStringSubmatch(command)
	if match == nil {
		return nil, false
	}
	target := strings.TrimSpace(match[1])

	sess.mu.Lock()
	cwd := sess.cwd
	sess.mu.Unlock()

	home, _ := os.UserHomeDir()
	switch {
	case target == "" || target == "~":
		if home != "" {
			target = home
		} else {
			target = cwd
		}
	case !strings.HasPrefix(target, "/") && !strings.HasPrefix(target, "~"):
		target = joinPath(cwd, target)
	case strings.HasPrefix(target, "~/"):
		target = joinPath(home, target[2:])
	}

	info, err := os.Stat(target)
	if err != nil || !info.IsDir() {
		one := 1
		return &CommandResult{ExitCode: &one, Stderr: "cd: no such directory"}, true
	}

	sess.mu.Lock()
	sess.cwd = target
	sess.LastUsedAt = time.Now()
	sess.mu.Unlock()

	zero := 0
	return &CommandResult{ExitCode: &zero, Stdout: target, NewCWD: target}, true
}

func joinPath(base, rel string) string {
	if base == "" {
		return rel
	}
	if strings.HasPrefix(rel, "/") {
		return rel
	}
	return strings.TrimRight(base, "/") + "/" + rel
}

// RunCommand dispatches a non-interactive or interactive command against a
// session, per the sentinel protocol.
func (m *Manager) RunCommand(ctx context.Context, sessionID, command, cwd string, timeoutMs int, interactive bool) (*CommandResult, error) {
	var sess *Session
	var err error
	if sessionID == "" {
		info, cerr := m.CreateSession(cwd)
		if cerr != nil {
			return nil, cerr
		}
		sess, err = m.getSession(info.SessionID)
	} else {
		sess, err = m.getSession(sessionID)
	}
	if err != nil {
		return nil, err
	}

	sess.mu.Lock()
	busy := sess.pending != nil || sess.interactive != nil
	sess.mu.Unlock()
	if busy {
		return &CommandResult{Stderr: fmt.Sprintf("session %s already has a command in flight", sess.ID)}, nil
	}

	timeout := clampTimeout(time.Duration(timeoutMs)*time.Millisecond, m.commandTimeout)

	if interactive {
		return m.runInteractive(sess, command, timeout)
	}
	if result, ok := m.tryCdIntercept(sess, command); ok {
		return result, nil
	}
	return m.runNonInteractive(ctx, sess, command, timeout)
}

func (m *Manager) runNonInteractive(ctx context.Context, sess *Session, command string, timeout time.Duration) (*CommandResult, error) {
	token := strings.ReplaceAll(uuid.NewString(), "-", "")[:12]

	sess.mu.Lock()
	stdoutStart := sess.stdout.absolutePos()
	stderrStart := sess.stderr.absolutePos()
	sess.pending = &pendingCommand{
		token:        token,
		startedAt:    time.Now(),
		stdoutStart:  stdoutStart,
		stderrStart:  stderrStart,
		stdoutCursor: stdoutStart,
		stderrCursor: stderrStart,
	}
	stdin := sess.stdin
	platform := sess.Platform
	sess.LastUsedAt = time.Now()
	sess.mu.Unlock()

	var script string
	if platform == "windows" {
		script = fmt.Sprintf("%s\r\necho __SHRIMP_DONE_%s:%%errorlevel%%:%%cd%%\r\n", command, token)
	} else {
		script = fmt.Sprintf("%s\nprintf '__SHRIMP_DONE_%s:%%s:%%s\\n' \"$?\" \"$PWD\"\n", command, token)
	}
	if _, err := io.WriteString(stdin, script); err != nil {
		sess.mu.Lock()
		sess.pending = nil
		sess.mu.Unlock()
		return nil, models.WrapError(models.KindIoError, err)
	}

	sentinelStart, exitCode, newCwd, found := pollForSentinel(ctx, sess, token, stdoutStart, timeout)
	if !found {
		stdout := sess.stdout.sliceFrom(stdoutStart)
		stderr := sess.stderr.sliceFrom(stderrStart)
		sess.mu.Lock()
		if sess.pending != nil {
			sess.pending.stdoutCursor = sess.stdout.absolutePos()
			sess.pending.stderrCursor = sess.stderr.absolutePos()
		}
		sess.mu.Unlock()
		out, _ := trimWithCap(stdout, m.maxOutputChars)
		errOut, _ := trimWithCap(stderr, m.maxOutputChars)
		return &CommandResult{TimedOut: true, Stdout: out, Stderr: errOut}, nil
	}

	sess.mu.Lock()
	stderrEnd := sess.stderr.absolutePos()
	sess.pending = nil
	sess.cwd = newCwd
	sess.mu.Unlock()

	stdout := sess.stdout.sliceRange(stdoutStart, sentinelStart)
	stderr := sess.stderr.sliceRange(stderrStart, stderrEnd)
	sess.stdout.dropSuffix(sentinelStart)

	out, _ := trimWithCap(stdout, m.maxOutputChars)
	errOut, _ := trimWithCap(stderr, m.maxOutputChars)
	ec := exitCode
	return &CommandResult{ExitCode: &ec, Stdout: out, Stderr: errOut, NewCWD: newCwd}, nil
}

// pollForSentinel polls sess.stdout every 25ms for the sentinel line, up to
// timeout. On a match it returns the sentinel's absolute start position,
// exit code, and reported cwd.
func pollForSentinel(ctx context.Context, sess *Session, token string, searchFrom int, timeout time.Duration) (sentinelStart, exitCode int, newCwd string, found bool) {
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		text := sess.stdout.sliceFrom(searchFrom)
		if idx, ec, cwd, ok := findSentinel(text, token); ok {
			return searchFrom + idx, ec, cwd, true
		}
		if time.Now().After(deadline) {
			return 0, 0, "", false
		}
		select {
		case <-ctx.Done():
			return 0, 0, "", false
		case <-ticker.C:
		}
	}
}

func findSentinel(text, token string) (byteIdx, exitCode int, cwd string, ok bool) {
	matches := sentinelLine.FindAllStringSubmatchIndex(text, -1)
	for _, loc := range matches {
		if text[loc[2]:loc[3]] != token {
			continue
		}
		ec, err := strconv.Atoi(text[loc[4]:loc[5]])
		if err != nil {
			continue
		}
		return loc[0], ec, text[loc[6]:loc[7]], true
	}
	return 0, 0, "", false
}

func (m *Manager) runInteractive(sess *Session, command string, timeout time.Duration) (*CommandResult, error) {
	sess.mu.Lock()
	cwd := sess.cwd
	platform := sess.Platform
	sess.LastUsedAt = time.Now()
	sess.mu.Unlock()

	var cmd *exec.Cmd
	if platform == "windows" {
		cmd = exec.Command("cmd", "/d", "/s", "/c", command)
	} else {
		shellPath := sess.ShellPath
		if shellPath == "" {
			shellPath = "/bin/bash"
		}
		cmd = exec.Command(shellPath, "-lc", command)
	}
	cmd.Dir = cwd

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, models.WrapError(models.KindIoError, err)
	}
	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return nil, models.WrapError(models.KindIoError, err)
	}
	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return nil, models.WrapError(models.KindIoError, err)
	}
	if err := cmd.Start(); err != nil {
		return nil, models.WrapError(models.KindIoError, err)
	}

	ic := &interactiveCmd{
		cmd:       cmd,
		stdin:     stdin,
		stdout:    newStream(m.maxOutputChars),
		stderr:    newStream(m.maxOutputChars),
		startedAt: time.Now(),
		done:      make(chan struct{}),
	}
	go pump(stdoutPipe, ic.stdout)
	go pump(stderrPipe, ic.stderr)
	go func() {
		err := cmd.Wait()
		ic.exitCode = exitCodeOf(err)
		close(ic.done)
	}()

	sess.mu.Lock()
	sess.interactive = ic
	sess.mu.Unlock()

	select {
	case <-ic.done:
	case <-time.After(timeout):
		out, _ := trimWithCap(ic.stdout.sliceFrom(0), m.maxOutputChars)
		errOut, _ := trimWithCap(ic.stderr.sliceFrom(0), m.maxOutputChars)
		sess.mu.Lock()
		ic.stdoutCursor = ic.stdout.absolutePos()
		ic.stderrCursor = ic.stderr.absolutePos()
		sess.mu.Unlock()
		return &CommandResult{TimedOut: true, Stdout: out, Stderr: errOut}, nil
	}

	sess.mu.Lock()
	sess.interactive = nil
	sess.mu.Unlock()

	out, _ := trimWithCap(ic.stdout.sliceFrom(0), m.maxOutputChars)
	errOut, _ := trimWithCap(ic.stderr.sliceFrom(0), m.maxOutputChars)
	ec := ic.exitCode
	return &CommandResult{ExitCode: &ec, Stdout: out, Stderr: errOut}, nil
}

func exitCodeOf(err error) int {
	if err == nil {
		return 0
	}
	if exitErr, ok := err.(*exec.ExitError); ok {
		return exitErr.ExitCode()
	}
	return -1
}

// WriteStdin drips additional input into whichever command is in flight on
// the session (interactive child or the long-lived shell's pending command).
func (m *Manager) WriteStdin(sessionID, chars string, yieldMs int) (*WriteStdinResult, error) {
	sess, err := m.getSession(sessionID)
	if err != nil {
		return nil, err
	}
	yield := clampYield(yieldMs)

	sess.mu.Lock()
	ic := sess.interactive
	pend := sess.pending
	stdin := sess.stdin
	sess.LastUsedAt = time.Now()
	sess.mu.Unlock()

	if ic != nil {
		if chars != "" {
			io.WriteString(ic.stdin, chars)
		}
		time.Sleep(yield)

		sess.mu.Lock()
		fromOut, fromErr := ic.stdoutCursor, ic.stderrCursor
		sess.mu.Unlock()
		stdout := ic.stdout.sliceFrom(fromOut)
		stderr := ic.stderr.sliceFrom(fromErr)

		result := &WriteStdinResult{Stdout: stdout, Stderr: stderr}
		if ic.exited() {
			result.Completed = &Completed{ExitCode: ic.exitCode}
			sess.mu.Lock()
			sess.interactive = nil
			sess.mu.Unlock()
		} else {
			sess.mu.Lock()
			ic.stdoutCursor = ic.stdout.absolutePos()
			ic.stderrCursor = ic.stderr.absolutePos()
			sess.mu.Unlock()
		}
		return result, nil
	}

	if pend != nil {
		if chars != "" {
			io.WriteString(stdin, chars)
		}
		time.Sleep(yield)

		text := sess.stdout.sliceFrom(pend.stdoutCursor)
		if idx, ec, cwd, ok := findSentinel(text, pend.token); ok {
			sentinelStart := pend.stdoutCursor + idx
			stdout := sess.stdout.sliceRange(pend.stdoutStart, sentinelStart)
			stderr := sess.stderr.sliceFrom(pend.stderrStart)
			sess.stdout.dropSuffix(sentinelStart)

			sess.mu.Lock()
			sess.pending = nil
			sess.cwd = cwd
			sess.mu.Unlock()

			return &WriteStdinResult{
				Stdout:    stdout,
				Stderr:    stderr,
				Completed: &Completed{ExitCode: ec},
			}, nil
		}

		stdout := sess.stdout.sliceFrom(pend.stdoutCursor)
		stderr := sess.stderr.sliceFrom(pend.stderrCursor)
		sess.mu.Lock()
		if sess.pending != nil {
			sess.pending.stdoutCursor = sess.stdout.absolutePos()
			sess.pending.stderrCursor = sess.stderr.absolutePos()
		}
		sess.mu.Unlock()
		return &WriteStdinResult{Stdout: stdout, Stderr: stderr}, nil
	}

	return &WriteStdinResult{}, nil
}

func clampYield(ms int) time.Duration {
	d := time.Duration(ms) * time.Millisecond
	if d < 0 {
		d = 0
	}
	if d > MaxCommandTimeout {
		d = MaxCommandTimeout
	}
	return d
}
