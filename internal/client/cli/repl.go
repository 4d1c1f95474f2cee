package cli

import (
	"bufio"
	"context"
	"fmt"
	"strings"
)

// printlnFn is a test seam for user-facing output.
var printlnFn = fmt.Println

// execIface is the minimal command surface the REPL needs. The App type
// satisfies it; tests provide a stub.
type execIface interface {
	isLoggedIn() bool
	Register(ctx context.Context) error
	Login(ctx context.Context) error
	Logout(ctx context.Context) error
	Open(ctx context.Context) error
	Send(ctx context.Context) error
	Read(ctx context.Context) error
	Watch(ctx context.Context) error
	Typing(ctx context.Context, on bool) error
	Edit(ctx context.Context) error
	Delete(ctx context.Context) error
	SendFile(ctx context.Context) error
	FetchFile(ctx context.Context) error
	Quota(ctx context.Context) error
}

// runREPL reads a line, parses the first token as the command and dispatches
// to a. Unknown commands are reported back. The loop exits on scanner EOF or
// "exit"/"quit". Handler errors are printed and the loop continues.
func runREPL(ctx context.Context, a execIface, statusFn func() string, scanner *bufio.Scanner) {
	for {
		printlnFn(fmt.Sprintf("cc %s> ", statusFn()))
		if !scanner.Scan() {
			return
		}
		parts := strings.Fields(scanner.Text())
		if len(parts) == 0 {
			continue
		}

		var err error
		switch cmd := parts[0]; cmd {
		case "help":
			if a.isLoggedIn() {
				printlnFn("Available commands: open, send, read, watch, typing on|off, edit, delete, attach, fetch, quota, logout, exit")
			} else {
				printlnFn("Available commands: register, login, exit")
			}
		case "register":
			err = a.Register(ctx)
		case "login":
			err = a.Login(ctx)
		case "logout":
			err = a.Logout(ctx)
		case "open":
			err = a.Open(ctx)
		case "send":
			err = a.Send(ctx)
		case "read":
			err = a.Read(ctx)
		case "watch":
			err = a.Watch(ctx)
		case "typing":
			on := len(parts) > 1 && parts[1] == "on"
			err = a.Typing(ctx, on)
		case "edit":
			err = a.Edit(ctx)
		case "delete":
			err = a.Delete(ctx)
		case "attach":
			err = a.SendFile(ctx)
		case "fetch":
			err = a.FetchFile(ctx)
		case "quota":
			err = a.Quota(ctx)
		case "exit", "quit":
			printlnFn("Bye!")
			return
		default:
			printlnFn("Unknown command:", cmd)
		}
		if err != nil {
			printlnFn("Error:", err.Error())
		}
	}
}
