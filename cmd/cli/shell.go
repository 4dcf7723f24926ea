package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/and161185/qty-planner/internal/errs"
	"github.com/and161185/qty-planner/internal/inactivity"
	"github.com/and161185/qty-planner/internal/session"
)

// cmdShell reads commands from a.in until EOF or "exit". Every command counts as
// foreground activity; the monitor signs out after cfg.InactivityTimeout without one.
func (a *app) cmdShell(ctx context.Context) error {
	a.interactive.Store(true)
	defer a.interactive.Store(false)

	mon := inactivity.New(a.sess, a.cfg.InactivityTimeout, a.log)
	defer mon.Stop()
	if a.sess.State() != session.StateUnauthenticated {
		mon.Start()
	}

	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(a.in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	fmt.Fprintln(a.errOut, `qp shell, type "help" for commands, "exit" to quit`)
	for {
		fmt.Fprint(a.errOut, "qp> ")
		var line string
		select {
		case <-ctx.Done():
			return nil
		case l, ok := <-lines:
			if !ok {
				return nil
			}
			line = strings.TrimSpace(l)
		}
		if line == "" {
			continue
		}
		args, err := splitArgs(line)
		if err != nil {
			fmt.Fprintln(a.errOut, err)
			continue
		}
		switch args[0] {
		case "exit", "quit":
			return nil
		case "shell":
			fmt.Fprintln(a.errOut, "already in the shell")
			continue
		}

		mon.HandleAppState(inactivity.AppActive)
		if err := a.dispatch(ctx, args[0], args[1:]); err != nil {
			if errors.Is(err, errUsage) {
				fmt.Fprintln(a.errOut, err)
			} else {
				fmt.Fprintln(a.errOut, "error:", errs.UserMessage(err))
			}
		}
		if a.sess.State() == session.StateUnauthenticated {
			mon.Stop()
		} else {
			mon.Start()
		}
	}
}
