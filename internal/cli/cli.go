// Package cli implements the proamp terminal client: one subcommand per
// session operation, run against the same session core a UI would use.
package cli

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/term"

	"github.com/prontuario/proamp/internal/pkg/config"
)

var (
	// ErrUsage reports a malformed command line. Usage has been printed.
	ErrUsage = errors.New("usage error")
	// ErrNotSignedIn is returned by commands that need a live session.
	ErrNotSignedIn = errors.New("not signed in")
)

// App holds the process streams. Zero values fall back to the os streams.
type App struct {
	Out io.Writer
	Err io.Writer
	In  io.Reader
	Log zerolog.Logger
	// Secret reads a value without echo. Nil uses the terminal when stdin
	// is one, otherwise a line of In.
	Secret func(label string) (string, error)

	lines *bufio.Reader
}

type command struct {
	name    string
	args    string
	summary string
	run     func(ctx context.Context, a *App, rt *runtime, cfg *config.Config, args []string) error
}

var commands = []command{
	{"login", "[-email E] [-remember]", "sign in and show the landing route", runLogin},
	{"logout", "", "end the session", runLogout},
	{"whoami", "", "restore and verify the saved session", runWhoami},
	{"check", "", "ask the server whether the session is still valid", runCheck},
	{"passwd", "", "change the password", runPasswd},
	{"profile", "[-email E] [-first-name N] [-last-name N]", "show or edit the profile", runProfile},
	{"professionals", "", "list health professionals (managers)", runProfessionals},
	{"navigate", "<path>", "resolve a path through the route guard", runNavigate},
	{"watch", "[-interval D]", "revalidate the session until it ends", runWatch},
}

// Run dispatches args[0] to its command.
func (a *App) Run(ctx context.Context, cfg *config.Config, args []string) error {
	a.defaults()
	if len(args) == 0 || args[0] == "help" || args[0] == "-h" || args[0] == "--help" {
		a.usage()
		if len(args) == 0 {
			return ErrUsage
		}
		return nil
	}

	for _, cmd := range commands {
		if cmd.name != args[0] {
			continue
		}
		rt, err := openRuntime(ctx, cfg, a.Log)
		if err != nil {
			return err
		}
		defer rt.close()
		return cmd.run(ctx, a, rt, cfg, args[1:])
	}

	fmt.Fprintf(a.Err, "unknown command %q\n\n", args[0])
	a.usage()
	return ErrUsage
}

func (a *App) defaults() {
	if a.Out == nil {
		a.Out = os.Stdout
	}
	if a.Err == nil {
		a.Err = os.Stderr
	}
	if a.In == nil {
		a.In = os.Stdin
	}
	if a.lines == nil {
		a.lines = bufio.NewReader(a.In)
	}
}

func (a *App) usage() {
	fmt.Fprintln(a.Err, "usage: proamp <command> [flags]")
	fmt.Fprintln(a.Err)
	for _, cmd := range commands {
		fmt.Fprintf(a.Err, "  %-14s %-44s %s\n", cmd.name, cmd.args, cmd.summary)
	}
}

func (a *App) flags(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(a.Err)
	return fs
}

// parse wraps flag parsing so every failure surfaces as ErrUsage.
func parse(fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return ErrUsage
		}
		return fmt.Errorf("%w: %v", ErrUsage, err)
	}
	return nil
}

// line prompts for a visible value.
func (a *App) line(label string) (string, error) {
	fmt.Fprint(a.Err, label)
	s, err := a.lines.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && s != "") {
		return "", fmt.Errorf("read %s: %w", strings.TrimSpace(strings.TrimSuffix(label, ":")), err)
	}
	return strings.TrimSpace(s), nil
}

// secret prompts for a value without echo when possible.
func (a *App) secret(label string) (string, error) {
	if a.Secret != nil {
		return a.Secret(label)
	}
	if f, ok := a.In.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprint(a.Err, label)
		buf, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(a.Err)
		if err != nil {
			return "", fmt.Errorf("read password: %w", err)
		}
		return string(buf), nil
	}
	return a.line(label)
}
