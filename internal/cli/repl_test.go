package cli

import (
	"bufio"
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

type stubExec struct {
	account bool
	calls   []string
}

func (s *stubExec) record(name string) error {
	s.calls = append(s.calls, name)
	return nil
}

func (s *stubExec) hasAccount() bool { return s.account }
func (s *stubExec) AddAccount(ctx context.Context) error {
	return s.record("addaccount")
}
func (s *stubExec) ListAccounts(ctx context.Context) error { return s.record("accounts") }
func (s *stubExec) UseAccount(ctx context.Context, email string) error {
	return s.record("use:" + email)
}
func (s *stubExec) RemoveAccount(ctx context.Context, email string) error {
	return s.record("rmaccount:" + email)
}
func (s *stubExec) AddFiles(ctx context.Context, paths []string) error {
	return s.record("add:" + strings.Join(paths, ","))
}
func (s *stubExec) Status(ctx context.Context) error { return s.record("status") }
func (s *stubExec) Pause(ctx context.Context) error  { return s.record("pause") }
func (s *stubExec) Resume(ctx context.Context) error { return s.record("resume") }
func (s *stubExec) Cancel(ctx context.Context, id string) error {
	return s.record("cancel:" + id)
}
func (s *stubExec) Retry(ctx context.Context, id string) error {
	return s.record("retry:" + id)
}
func (s *stubExec) Force(ctx context.Context, id string) error {
	return s.record("force:" + id)
}
func (s *stubExec) History(ctx context.Context, limit int) error { return s.record("history") }
func (s *stubExec) Watch(ctx context.Context, path string) error {
	return s.record("watch:" + path)
}
func (s *stubExec) StopWatch() { _ = s.record("unwatch") }

func runWithInput(t *testing.T, exec *stubExec, input string) []string {
	t.Helper()

	var output []string
	orig := printlnFn
	printlnFn = func(a ...any) (int, error) {
		output = append(output, fmt.Sprintln(a...))
		return 0, nil
	}
	defer func() { printlnFn = orig }()

	scanner := bufio.NewScanner(strings.NewReader(input))
	runREPL(context.Background(), exec, func() string { return "test" }, scanner)
	return output
}

func TestREPL_DispatchesWithAccount(t *testing.T) {
	exec := &stubExec{account: true}
	runWithInput(t, exec, strings.Join([]string{
		"add /photos/a.jpg /photos/b.jpg",
		"status",
		"pause",
		"resume",
		"cancel 1234",
		"retry all",
		"force abcd",
		"history 5",
		"watch /photos",
		"unwatch",
		"exit",
	}, "\n"))

	require.Equal(t, []string{
		"add:/photos/a.jpg,/photos/b.jpg",
		"status",
		"pause",
		"resume",
		"cancel:1234",
		"retry:all",
		"force:abcd",
		"history",
		"watch:/photos",
		"unwatch",
	}, exec.calls)
}

func TestREPL_RequiresAccountForUploadCommands(t *testing.T) {
	exec := &stubExec{account: false}
	out := runWithInput(t, exec, "add /photos/a.jpg\nexit\n")

	require.Empty(t, exec.calls)
	require.Contains(t, strings.Join(out, "\n"), "No active account")
}

func TestREPL_AccountCommands(t *testing.T) {
	exec := &stubExec{account: false}
	runWithInput(t, exec, strings.Join([]string{
		"accounts",
		"use test@gmail.com",
		"rmaccount old@gmail.com",
		"exit",
	}, "\n"))

	require.Equal(t, []string{
		"accounts",
		"use:test@gmail.com",
		"rmaccount:old@gmail.com",
	}, exec.calls)
}

func TestREPL_UnknownCommand(t *testing.T) {
	exec := &stubExec{account: true}
	out := runWithInput(t, exec, "frobnicate\nexit\n")
	require.Contains(t, strings.Join(out, "\n"), "Unknown command")
}

func TestREPL_UsageMessages(t *testing.T) {
	exec := &stubExec{account: true}
	out := runWithInput(t, exec, "use\nadd\nforce\nwatch\nexit\n")
	require.Empty(t, exec.calls)

	joined := strings.Join(out, "\n")
	require.Contains(t, joined, "Usage: use <email>")
	require.Contains(t, joined, "Usage: add <path...>")
	require.Contains(t, joined, "Usage: force <id>")
	require.Contains(t, joined, "Usage: watch <dir>")
}
