package cli

import (
	"bufio"
	"context"
	"fmt"
	"strings"
)

// printlnFn is a test seam for user-facing output. In tests, replace it with a stub.
var printlnFn = fmt.Println

// execIface defines the command surface the REPL needs to operate.
// The real App type satisfies this interface; tests can provide a lightweight stub.
type execIface interface {
	isLoggedIn() bool
	fail(err error)

	Login(ctx context.Context, args []string) error
	Logout(ctx context.Context, args []string) error
	Whoami(ctx context.Context, args []string) error
	Passwd(ctx context.Context, args []string) error
	Create(ctx context.Context, args []string) error
	Reset(ctx context.Context, args []string) error
	Role(ctx context.Context, args []string) error
	Delete(ctx context.Context, args []string) error
	Names(ctx context.Context, args []string) error
	Move(ctx context.Context, args []string) error
	Rename(ctx context.Context, args []string) error
	List(ctx context.Context, args []string) error
	Show(ctx context.Context, args []string) error
}

const (
	helpLoggedOut = "Available commands: login, help, exit"
	helpLoggedIn  = "Available commands: whoami, passwd, create, reset, role, delete, names, move, rename, (l)ist, show, logout, help, exit"
)

// runREPL reads commands from reader until EOF, "exit" or "quit". The first
// token selects the command, the rest are passed as arguments. Command errors
// go to a.fail so the loop keeps running.
func runREPL(ctx context.Context, a execIface, statusFn func() string, reader *bufio.Reader) {
	for {
		printlnFn(fmt.Sprintf("sk %s> ", statusFn()))
		line, err := readLine(reader)
		if err != nil {
			return
		}
		parts := strings.Fields(line)
		if len(parts) == 0 {
			continue
		}
		cmd, args := parts[0], parts[1:]

		var handler func(context.Context, []string) error

		switch cmd {
		case "help":
			if a.isLoggedIn() {
				printlnFn(helpLoggedIn)
			} else {
				printlnFn(helpLoggedOut)
			}
			continue
		case "exit", "quit":
			printlnFn("Bye!")
			return
		case "login":
			handler = a.Login
		case "logout":
			handler = a.Logout
		case "whoami":
			handler = a.Whoami
		case "passwd":
			handler = a.Passwd
		case "create":
			handler = a.Create
		case "reset":
			handler = a.Reset
		case "role":
			handler = a.Role
		case "delete":
			handler = a.Delete
		case "names":
			handler = a.Names
		case "move":
			handler = a.Move
		case "rename":
			handler = a.Rename
		case "l", "list":
			handler = a.List
		case "show":
			handler = a.Show
		default:
			printlnFn("Unknown command:", cmd)
			continue
		}

		if cmd != "login" && !a.isLoggedIn() {
			printlnFn("Please login first")
			continue
		}

		if err := handler(ctx, args); err != nil {
			a.fail(err)
		}
	}
}
