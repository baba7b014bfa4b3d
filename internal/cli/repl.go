package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// printlnFn is a test seam for user-facing output. In tests, replace it with a stub.
var printlnFn = fmt.Println

// execIface defines the minimal command surface the REPL needs to operate.
// The real App type satisfies this interface; tests can provide a lightweight stub.
type execIface interface {
	hasAccount() bool
	AddAccount(ctx context.Context) error
	ListAccounts(ctx context.Context) error
	UseAccount(ctx context.Context, email string) error
	RemoveAccount(ctx context.Context, email string) error
	AddFiles(ctx context.Context, paths []string) error
	Status(ctx context.Context) error
	Pause(ctx context.Context) error
	Resume(ctx context.Context) error
	Cancel(ctx context.Context, idPrefix string) error
	Retry(ctx context.Context, idPrefix string) error
	Force(ctx context.Context, idPrefix string) error
	History(ctx context.Context, limit int) error
	Watch(ctx context.Context, path string) error
	StopWatch()
}

// runREPL reads a line from the scanner, parses the first token as the
// command, and dispatches to methods on 'a'. Unknown commands are reported
// back to the user. The loop exits on scanner EOF or when the user types
// "exit" or "quit".
//
// Any errors returned by command handlers are ignored here; handlers print
// their own errors. This keeps the REPL loop resilient and focused on I/O.
func runREPL(ctx context.Context, a execIface, statusFn func() string, scanner *bufio.Scanner) {
	for {
		printlnFn(fmt.Sprintf("photoflow %s > ", statusFn()))
		if !scanner.Scan() {
			return
		}
		line := scanner.Text()
		parts := strings.Fields(line)
		if len(parts) == 0 {
			continue
		}
		cmd := parts[0]
		args := parts[1:]

		switch cmd {
		case "help":
			if a.hasAccount() {
				printlnFn("Available commands: add <path...>, status, pause, resume, cancel [id], retry [id|all], force <id>, history [n], watch <dir>, unwatch, accounts, addaccount, use <email>, rmaccount <email>, exit")
			} else {
				printlnFn("Available commands: accounts, addaccount, use <email>, rmaccount <email>, exit")
			}

		case "accounts":
			_ = a.ListAccounts(ctx)

		case "addaccount":
			_ = a.AddAccount(ctx)

		case "use":
			if len(args) == 0 {
				printlnFn("Usage: use <email>")
				continue
			}
			_ = a.UseAccount(ctx, args[0])

		case "rmaccount":
			if len(args) == 0 {
				printlnFn("Usage: rmaccount <email>")
				continue
			}
			_ = a.RemoveAccount(ctx, args[0])

		case "exit", "quit":
			printlnFn("Bye!")
			return

		default:
			if !a.hasAccount() {
				printlnFn("No active account. Use 'addaccount' or 'use <email>' first.")
				continue
			}
			switch cmd {
			case "add":
				if len(args) == 0 {
					printlnFn("Usage: add <path...>")
					continue
				}
				_ = a.AddFiles(ctx, args)

			case "status":
				_ = a.Status(ctx)

			case "pause":
				_ = a.Pause(ctx)

			case "resume":
				_ = a.Resume(ctx)

			case "cancel":
				_ = a.Cancel(ctx, firstOrEmpty(args))

			case "retry":
				_ = a.Retry(ctx, firstOrEmpty(args))

			case "force":
				if len(args) == 0 {
					printlnFn("Usage: force <id>")
					continue
				}
				_ = a.Force(ctx, args[0])

			case "history":
				limit := 0
				if len(args) > 0 {
					limit, _ = strconv.Atoi(args[0])
				}
				_ = a.History(ctx, limit)

			case "watch":
				if len(args) == 0 {
					printlnFn("Usage: watch <dir>")
					continue
				}
				_ = a.Watch(ctx, args[0])

			case "unwatch":
				a.StopWatch()

			default:
				printlnFn("Unknown command:", cmd)
			}
		}
	}
}

func firstOrEmpty(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}

// Main runs the interactive shell on stdin.
func (a *App) Main(ctx context.Context) {
	printlnFn("photoflow CLI (type 'help' for commands)")
	scanner := bufio.NewScanner(os.Stdin)
	runREPL(ctx, a, a.showAccount, scanner)
}

func (a *App) showAccount() string {
	if a.active == nil {
		return "(no account)"
	}
	return a.active.Email
}
