package shell

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	m := NewManager(4, time.Minute, 2*time.Second, DefaultMaxOutputChars)
	t.Cleanup(func() {
		m.mu.Lock()
		sessions := make([]*Session, 0, len(m.sessions))
		for _, s := range m.sessions {
			sessions = append(sessions, s)
		}
		m.mu.Unlock()
		for _, s := range sessions {
			killSession(s)
		}
		m.StopSweeper()
	})
	return m
}

func TestRunCommandEchoUpdatesCwd(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	info, err := m.CreateSession(t.TempDir())
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	result, err := m.RunCommand(ctx, info.SessionID, "echo shrimp", "", 5000, false)
	if err != nil {
		t.Fatalf("RunCommand: %v", err)
	}
	if result.TimedOut {
		t.Fatalf("did not expect timeout")
	}
	if result.ExitCode == nil || *result.ExitCode != 0 {
		t.Fatalf("expected exit 0, got %+v", result.ExitCode)
	}
	if result.Stdout != "shrimp\n" {
		t.Fatalf("expected stdout %q, got %q", "shrimp\n", result.Stdout)
	}

	sess, err := m.getSession(info.SessionID)
	if err != nil {
		t.Fatalf("getSession: %v", err)
	}
	if sess.CWD() != result.NewCWD {
		t.Fatalf("expected session cwd to follow child's reported pwd")
	}
}

func TestRunCommandSessionBusyFailsFast(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	info, err := m.CreateSession(t.TempDir())
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	done := make(chan struct{})
	go func() {
		m.RunCommand(ctx, info.SessionID, "sleep 0.3", "", 2000, false)
		close(done)
	}()
	time.Sleep(50 * time.Millisecond)

	result, err := m.RunCommand(ctx, info.SessionID, "echo too-late", "", 2000, false)
	if err != nil {
		t.Fatalf("expected a structured busy result, not an error: %v", err)
	}
	if result.ExitCode != nil || result.Stderr == "" {
		t.Fatalf("expected nil exitCode and an explanatory stderr, got %+v", result)
	}
	<-done
}

func TestInteractiveCommandTimeoutThenWriteStdinCompletes(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	info, err := m.CreateSession(t.TempDir())
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	result, err := m.RunCommand(ctx, info.SessionID, "read line; echo got:$line", "", 50, true)
	if err != nil {
		t.Fatalf("RunCommand: %v", err)
	}
	if !result.TimedOut {
		t.Fatalf("expected timeout waiting on stdin")
	}

	wr, err := m.WriteStdin(info.SessionID, "shrimp\n", 200)
	if err != nil {
		t.Fatalf("WriteStdin: %v", err)
	}
	if wr.Completed == nil || wr.Completed.ExitCode != 0 {
		t.Fatalf("expected completed exit 0, got %+v", wr.Completed)
	}
	if !contains(wr.Stdout, "got:shrimp") {
		t.Fatalf("expected stdout to contain got:shrimp, got %q", wr.Stdout)
	}
}

func TestWriteStdinUnknownSession(t *testing.T) {
	m := newTestManager(t)
	_, err := m.WriteStdin("nope", "x", 10)
	if err == nil {
		t.Fatalf("expected UnknownSession error")
	}
}

func TestCdInterceptUpdatesCwdWithoutChildRoundTrip(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()
	base := t.TempDir()
	sub := filepath.Join(base, "child")
	if err := os.Mkdir(sub, 0o755); err != nil {
		t.Fatalf("Mkdir: %v", err)
	}

	info, err := m.CreateSession(base)
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	result, err := m.RunCommand(ctx, info.SessionID, "cd child", "", 2000, false)
	if err != nil {
		t.Fatalf("RunCommand: %v", err)
	}
	if result.ExitCode == nil || *result.ExitCode != 0 {
		t.Fatalf("expected exit 0, got %+v", result.ExitCode)
	}
	sess, _ := m.getSession(info.SessionID)
	if sess.CWD() != sub {
		t.Fatalf("expected cwd %q, got %q", sub, sess.CWD())
	}
}

func contains(haystack, needle string) bool {
	return len(needle) == 0 || (len(haystack) >= len(needle) && indexOf(haystack, needle) >= 0)
}

func indexOf(haystack, needle string) int {
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			return i
		}
	}
	return -1
}
