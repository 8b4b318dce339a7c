package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
)

// execIface defines the minimal command surface the REPL needs to operate.
// The real App type satisfies this interface; tests can provide a lightweight stub.
type execIface interface {
	isLoggedIn() bool
	printf(format string, args ...any)
	Login(ctx context.Context, args []string) error
	Me(ctx context.Context) error
	Profile(ctx context.Context) error
	Set(ctx context.Context, args []string) error
	Name(ctx context.Context, args []string) error
	Avatar(ctx context.Context, args []string) error
	Status(ctx context.Context) error
	Logout(ctx context.Context) error
}

// runREPL reads a line, takes the first token as the command and dispatches
// it to a. The loop exits on EOF, on "exit"/"quit" or when ctx is done.
// Command errors are reported and the loop keeps going.
func runREPL(ctx context.Context, a execIface, statusFn func() string, reader *bufio.Reader) {
	for {
		if ctx.Err() != nil {
			return
		}
		a.printf("gu %s> ", statusFn())

		line, err := reader.ReadString('\n')
		if err != nil && (!errors.Is(err, io.EOF) || line == "") {
			return
		}
		parts := strings.Fields(line)
		if len(parts) == 0 {
			continue
		}
		cmd, args := parts[0], parts[1:]

		var cmdErr error
		switch cmd {
		case "help":
			if a.isLoggedIn() {
				a.printf("Available commands: me, profile, set <address|phone|bio> <value>, name <value>, avatar <path>, status, logout, exit\n")
			} else {
				a.printf("Available commands: login [assertion], status, exit\n")
			}

		case "login":
			cmdErr = a.Login(ctx, args)

		case "me", "refresh":
			cmdErr = a.Me(ctx)

		case "profile":
			cmdErr = a.Profile(ctx)

		case "set":
			cmdErr = a.Set(ctx, args)

		case "name":
			cmdErr = a.Name(ctx, args)

		case "avatar":
			cmdErr = a.Avatar(ctx, args)

		case "status":
			cmdErr = a.Status(ctx)

		case "logout":
			cmdErr = a.Logout(ctx)

		case "exit", "quit":
			a.printf("Bye!\n")
			return

		default:
			a.printf("Unknown command: %s\n", cmd)
		}

		if cmdErr != nil {
			a.printf("%s\n", describe(cmdErr))
		}
	}
}

func describe(err error) string {
	return fmt.Sprintf("error: %v", err)
}
