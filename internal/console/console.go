// Package console is an interactive shell over the command facade.
//
// Each line is a command name optionally followed by its JSON argument
// object:
//
//	sismed> create_posology {"posology":{"text":"2 gotas"}}
//	11
package console

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"sismed/internal/facade"

	"github.com/peterh/liner"
)

const prompt = "sismed> "

// Invoker runs named commands
type Invoker interface {
	Invoke(ctx context.Context, name string, args json.RawMessage) (any, error)
	Commands() []string
}

// Shell is the interactive command loop
type Shell struct {
	inv     Invoker
	out     io.Writer
	history string
	words   []string
}

// New creates a shell writing results to out. history is the file used to
// persist input lines; empty disables history.
func New(inv Invoker, out io.Writer, history string) *Shell {
	words := append([]string{"help", "exit", "quit"}, inv.Commands()...)
	return &Shell{inv: inv, out: out, history: history, words: words}
}

// HistoryFile returns the default history location
func HistoryFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".sismed_history")
}

// Run reads lines until exit, EOF or Ctrl-C
func (s *Shell) Run(ctx context.Context) error {
	line := liner.NewLiner()
	defer line.Close()

	line.SetCtrlCAborts(true)
	line.SetCompleter(s.Complete)

	if s.history != "" {
		if f, err := os.Open(s.history); err == nil {
			line.ReadHistory(f)
			f.Close()
		}
	}
	defer s.saveHistory(line)

	fmt.Fprintln(s.out, "Type 'help' for available commands.")

	for {
		if ctx.Err() != nil {
			return nil
		}
		input, err := line.Prompt(prompt)
		if err != nil {
			if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
				fmt.Fprintln(s.out)
				return nil
			}
			return fmt.Errorf("reading input: %w", err)
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		line.AppendHistory(input)

		if s.Exec(ctx, input) {
			return nil
		}
	}
}

func (s *Shell) saveHistory(line *liner.State) {
	if s.history == "" {
		return
	}
	if f, err := os.Create(s.history); err == nil {
		line.WriteHistory(f)
		f.Close()
	}
}

// Exec runs one input line and reports whether the shell should exit
func (s *Shell) Exec(ctx context.Context, input string) bool {
	name, args, _ := strings.Cut(strings.TrimSpace(input), " ")
	switch name {
	case "":
		return false
	case "exit", "quit":
		return true
	case "help":
		s.printHelp()
		return false
	}

	result, err := s.inv.Invoke(ctx, name, json.RawMessage(strings.TrimSpace(args)))
	if err != nil {
		fmt.Fprintf(s.out, "error: %s\n", facade.Message(err))
		return false
	}
	if result == nil {
		fmt.Fprintln(s.out, "ok")
		return false
	}

	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		fmt.Fprintf(s.out, "error: %v\n", err)
		return false
	}
	fmt.Fprintln(s.out, string(out))
	return false
}

// Complete returns the command names starting with the typed prefix
func (s *Shell) Complete(line string) []string {
	if strings.Contains(line, " ") {
		return nil
	}
	var completions []string
	for _, w := range s.words {
		if strings.HasPrefix(w, line) {
			completions = append(completions, w)
		}
	}
	return completions
}

func (s *Shell) printHelp() {
	fmt.Fprintln(s.out, "Usage: <command> [json arguments]")
	fmt.Fprintln(s.out, "Commands:")
	for _, name := range s.inv.Commands() {
		fmt.Fprintf(s.out, "  %s\n", name)
	}
	fmt.Fprintln(s.out, "  help, exit")
}
