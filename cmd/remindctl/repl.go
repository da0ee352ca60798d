package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/chzyer/readline"
)

// runREPL resolves the session once and then loops over user input until
// exit, quit or EOF. Failed turns are reported and the loop continues.
func runREPL(ctx context.Context, cfg Config, in io.Reader, out io.Writer) error {
	a, err := newApp(cfg, out)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.initMesh(); err != nil {
		return err
	}

	sess, created, err := a.resolveSession(ctx)
	if err != nil {
		return err
	}
	if created {
		fmt.Fprintf(out, "Created new session: %s\n", bold(sess.ID()))
	} else {
		fmt.Fprintf(out, "Continuing existing session: %s\n", bold(sess.ID()))
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          cyan("You: "),
		HistoryFile:     historyFile(),
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
		Stdin:           io.NopCloser(in),
		Stdout:          out,
	})
	if err != nil {
		return fmt.Errorf("init readline: %w", err)
	}
	defer rl.Close()

	fmt.Fprintln(out, "\nWelcome to Memory Agent Chat!")
	fmt.Fprintln(out, "Your reminders will be remembered across conversations.")
	fmt.Fprintln(out, "Type 'exit' or 'quit' to end the conversation.")

	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			if line == "" {
				break
			}
			continue
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if isExit(line) {
			break
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		_, _ = a.processMessage(ctx, sess.Key, line)
	}

	fmt.Fprintln(out, "Ending conversation. Your data has been saved to the database.")
	return nil
}

func isExit(line string) bool {
	switch strings.ToLower(line) {
	case "exit", "quit":
		return true
	}
	return false
}

func historyFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".remindctl_history")
}
