package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/noah-network/noah/pkg/cli"
	"github.com/noah-network/noah/pkg/inventory"
)

// Shell is an interactive REPL over one registry, so list results and the
// current record stay cached between commands.
type Shell struct {
	app      *App
	ctx      context.Context
	entity   *inventory.Entity // nil = top scope
	reader   *bufio.Reader
	out      io.Writer
	commands map[string]func(args []string)
}

// NewShell creates a shell reading commands from in
func NewShell(ctx context.Context, a *App, in io.Reader, out io.Writer) *Shell {
	s := &Shell{
		app:    a,
		ctx:    ctx,
		reader: bufio.NewReader(in),
		out:    out,
	}
	s.commands = map[string]func(args []string){
		"use":      s.cmdUse,
		"entities": func([]string) { s.cmdEntities() },
		"state":    func([]string) { s.cmdState() },
		"status":   func([]string) { s.cmdStatus() },
		"exit":     func([]string) { s.entity = nil },
		"help":     func([]string) { s.cmdHelp() },
		"?":        func([]string) { s.cmdHelp() },
	}
	return s
}

func newShellCmd(a *App) *cobra.Command {
	return &cobra.Command{
		Use:   "shell",
		Short: "Interactive shell sharing one session and cache",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a.session.Source = "shell"
			return NewShell(cmd.Context(), a, a.in, cmd.OutOrStdout()).Run()
		},
	}
}

// Run starts the interactive shell loop. It returns on quit or EOF.
func (s *Shell) Run() error {
	fmt.Fprintf(s.out, "Connected to %s.\n", bold(s.app.client.BaseURL()))
	fmt.Fprintln(s.out, "Type 'help' for available commands.")

	for {
		fmt.Fprint(s.out, s.prompt())

		line, err := s.reader.ReadString('\n')
		if err != nil && strings.TrimSpace(line) == "" { // EOF
			fmt.Fprintln(s.out)
			return nil
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		args := strings.Fields(line)
		switch args[0] {
		case "quit", "q":
			return nil
		}
		if fn, ok := s.commands[args[0]]; ok {
			fn(args[1:])
			continue
		}
		if s.entity != nil {
			s.runEntity(s.entity, args)
			continue
		}
		if e := s.lookup(args[0]); e != nil {
			s.runEntity(e, args[1:])
			continue
		}
		fmt.Fprintf(s.out, "Unknown command: %s (type 'help' for commands)\n", args[0])
	}
}

func (s *Shell) prompt() string {
	if s.entity != nil {
		return fmt.Sprintf("noah:%s> ", s.entity.Name)
	}
	return "noah> "
}

func (s *Shell) lookup(name string) *inventory.Entity {
	st, err := s.app.registry.Store(name)
	if err != nil {
		return nil
	}
	return st.Entity()
}

// runEntity executes an entity verb through the same cobra commands the
// CLI uses
func (s *Shell) runEntity(e *inventory.Entity, args []string) {
	cmd := newEntityCmd(s.app, e)
	cmd.SetArgs(args)
	cmd.SetOut(s.out)
	cmd.SetErr(s.out)
	cmd.SilenceUsage = true
	cmd.SilenceErrors = true
	if err := cmd.ExecuteContext(s.ctx); err != nil {
		fmt.Fprintf(s.out, "%s %v\n", red("Error:"), err)
	}
}

func (s *Shell) cmdUse(args []string) {
	if len(args) != 1 {
		fmt.Fprintln(s.out, "Usage: use <entity>")
		return
	}
	e := s.lookup(args[0])
	if e == nil {
		fmt.Fprintf(s.out, "Unknown entity: %s (type 'entities' for the list)\n", args[0])
		return
	}
	s.entity = e
}

func (s *Shell) cmdEntities() {
	t := cli.NewTableTo(s.out, "ENTITY", "TITLE", "OPERATIONS")
	for _, st := range s.app.registry.Stores() {
		e := st.Entity()
		ops := append([]string{"list"}, e.CapabilityNames()...)
		t.Row(e.Name, e.Title, strings.Join(ops, ","))
	}
	t.Flush()
}

// cmdState prints the cached state of the scoped entity's store
func (s *Shell) cmdState() {
	if s.entity == nil {
		fmt.Fprintln(s.out, "state is only available in entity scope (use 'use <entity>' first)")
		return
	}
	st, err := s.app.registry.Store(s.entity.Name)
	if err != nil {
		fmt.Fprintf(s.out, "%s %v\n", red("Error:"), err)
		return
	}
	snap := st.Snapshot()
	fmt.Fprintf(s.out, "Items:    %d\n", len(snap.Items))
	p := snap.Meta.Pagination
	fmt.Fprintf(s.out, "Page:     %d/%d (%d total)\n", p.CurrentPage, p.TotalPages, p.Total)
	if snap.Current != nil {
		fmt.Fprintf(s.out, "Current:  %s\n", snap.Current.ID())
	}
	fmt.Fprintf(s.out, "Can sync: %t\n", snap.CanSync)
	if snap.Error != "" {
		fmt.Fprintf(s.out, "Error:    %s\n", red(snap.Error))
	}
}

func (s *Shell) cmdStatus() {
	if s.app.session.IsAuthenticated(s.ctx) {
		fmt.Fprintln(s.out, green("logged in"))
	} else {
		fmt.Fprintln(s.out, yellow("not logged in (run 'noah login')"))
	}
}

func (s *Shell) cmdHelp() {
	fmt.Fprintln(s.out, `Commands:
  entities                 List entities and their operations
  use <entity>             Scope commands to an entity
  <entity> <verb> [args]   Run a verb without changing scope
  <verb> [args]            Run a verb in entity scope (list, show, create, ...)
  state                    Show the cached list and current record
  status                   Show whether a session token is stored
  exit                     Leave entity scope
  quit                     Leave the shell`)
}
