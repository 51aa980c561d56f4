package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"sort"
	"strings"
	"sync"
	"text/tabwriter"
	"time"

	"github.com/prontuario/proamp/internal/core/domain"
	"github.com/prontuario/proamp/internal/core/ports"
	"github.com/prontuario/proamp/internal/infrastructure/queue"
	"github.com/prontuario/proamp/internal/pkg/config"
	"github.com/prontuario/proamp/pkg/logger"
)

const defaultWatchInterval = time.Minute

func runLogin(ctx context.Context, a *App, rt *runtime, _ *config.Config, args []string) error {
	fs := a.flags("login")
	email := fs.String("email", "", "account email (prompted when empty)")
	remember := fs.Bool("remember", false, "keep the session for 30 days")
	if err := parse(fs, args); err != nil {
		return err
	}

	var err error
	if *email == "" {
		if *email, err = a.line("Email: "); err != nil {
			return err
		}
	}
	password, err := a.secret("Password: ")
	if err != nil {
		return err
	}

	id, err := rt.store.Login(ctx, *email, password, *remember)
	if err != nil {
		fmt.Fprintln(a.Err, rt.store.LastError())
		return err
	}
	fmt.Fprintf(a.Out, "signed in as %s (%s)\n", id.Email, id.Role)

	if res, err := rt.nav.Navigate(ctx, "/"); err == nil {
		fmt.Fprintf(a.Out, "landing: %s\n", res.FullPath)
	}
	if id.MustChangePassword {
		fmt.Fprintln(a.Out, "a password change is required: run 'proamp passwd'")
	}
	return nil
}

func runLogout(ctx context.Context, a *App, rt *runtime, _ *config.Config, args []string) error {
	if err := parse(a.flags("logout"), args); err != nil {
		return err
	}
	rt.store.Logout(ctx)
	fmt.Fprintln(a.Out, "signed out")
	return nil
}

func runWhoami(ctx context.Context, a *App, rt *runtime, _ *config.Config, args []string) error {
	if err := parse(a.flags("whoami"), args); err != nil {
		return err
	}
	if err := requireSession(ctx, rt); err != nil {
		fmt.Fprintln(a.Out, "not signed in")
		return err
	}
	printIdentity(a, rt.store.Identity())
	return nil
}

func runCheck(ctx context.Context, a *App, rt *runtime, _ *config.Config, args []string) error {
	if err := parse(a.flags("check"), args); err != nil {
		return err
	}
	if !rt.store.CheckSessionValidity(ctx) {
		fmt.Fprintln(a.Out, "session invalid")
		return ErrNotSignedIn
	}
	fmt.Fprintln(a.Out, "session valid")
	return nil
}

func runPasswd(ctx context.Context, a *App, rt *runtime, _ *config.Config, args []string) error {
	if err := parse(a.flags("passwd"), args); err != nil {
		return err
	}
	if err := requireSession(ctx, rt); err != nil {
		return err
	}

	var in ports.SetPasswordInput
	var err error
	if !rt.store.MustChangePassword() {
		if in.CurrentPassword, err = a.secret("Current password: "); err != nil {
			return err
		}
	}
	if in.NewPassword, err = a.secret("New password: "); err != nil {
		return err
	}
	if in.ConfirmPassword, err = a.secret("Confirm new password: "); err != nil {
		return err
	}

	if err := rt.store.SetPassword(ctx, in); err != nil {
		printFailure(a, rt, err)
		return err
	}
	fmt.Fprintln(a.Out, "password updated")
	return nil
}

func runProfile(ctx context.Context, a *App, rt *runtime, _ *config.Config, args []string) error {
	fs := a.flags("profile")
	email := fs.String("email", "", "new email")
	first := fs.String("first-name", "", "new first name")
	last := fs.String("last-name", "", "new last name")
	if err := parse(fs, args); err != nil {
		return err
	}
	if err := requireSession(ctx, rt); err != nil {
		return err
	}

	var patch ports.ProfilePatch
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "email":
			patch.Email = email
		case "first-name":
			patch.FirstName = first
		case "last-name":
			patch.LastName = last
		}
	})

	var id *domain.Identity
	var err error
	if patch == (ports.ProfilePatch{}) {
		id, err = rt.store.FetchProfile(ctx)
	} else {
		id, err = rt.store.UpdateProfile(ctx, patch)
	}
	if err != nil {
		printFailure(a, rt, err)
		return err
	}
	printIdentity(a, id)
	return nil
}

func runProfessionals(ctx context.Context, a *App, rt *runtime, _ *config.Config, args []string) error {
	if err := parse(a.flags("professionals"), args); err != nil {
		return err
	}
	if err := requireSession(ctx, rt); err != nil {
		return err
	}

	list, err := rt.client.HealthProfessionals(ctx)
	if err != nil {
		if errors.Is(err, domain.ErrForbidden) {
			fmt.Fprintln(a.Err, domain.MsgForbidden)
		}
		return err
	}

	w := tabwriter.NewWriter(a.Out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tEMAIL\tSPECIALTY\tCOUNCIL")
	for _, p := range list {
		specialty, council := "-", "-"
		if p.HealthProfile != nil {
			specialty, council = p.HealthProfile.Specialty, p.HealthProfile.CouncilNumber
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", strings.TrimSpace(p.FirstName+" "+p.LastName), p.Email, specialty, council)
	}
	return w.Flush()
}

func runNavigate(ctx context.Context, a *App, rt *runtime, _ *config.Config, args []string) error {
	fs := a.flags("navigate")
	if err := parse(fs, args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(a.Err, "usage: proamp navigate <path>")
		return ErrUsage
	}

	res, err := rt.nav.Navigate(ctx, fs.Arg(0))
	if err != nil {
		return err
	}
	fmt.Fprintln(a.Out, strings.Join(res.Trail, " -> "))
	fmt.Fprintf(a.Out, "route: %s\n", res.Route.Name)
	if msg := rt.store.LastError(); msg != "" {
		fmt.Fprintln(a.Err, msg)
	}
	return nil
}

func runWatch(ctx context.Context, a *App, rt *runtime, cfg *config.Config, args []string) error {
	fs := a.flags("watch")
	interval := fs.Duration("interval", cfg.RevalidateInterval, "time between checks")
	if err := parse(fs, args); err != nil {
		return err
	}
	if *interval <= 0 {
		*interval = defaultWatchInterval
	}
	if err := requireSession(ctx, rt); err != nil {
		return err
	}

	lost := make(chan struct{})
	var once sync.Once
	rv := queue.NewRevalidator(rt.store, *interval, logger.Component(a.Log, "revalidator"))
	rv.OnSessionLost(func() { once.Do(func() { close(lost) }) })

	watchCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	rv.Start(watchCtx)

	fmt.Fprintf(a.Out, "watching session every %s\n", *interval)
	select {
	case <-lost:
		fmt.Fprintln(a.Out, "session ended")
		return ErrNotSignedIn
	case <-ctx.Done():
		return nil
	}
}

// requireSession restores the saved session and waits for its verification.
func requireSession(ctx context.Context, rt *runtime) error {
	select {
	case ok := <-rt.store.Initialize(ctx):
		if !ok {
			return ErrNotSignedIn
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func printFailure(a *App, rt *runtime, err error) {
	var ve *domain.ValidationError
	if errors.As(err, &ve) {
		if ve.Message != "" {
			fmt.Fprintln(a.Err, ve.Message)
		}
		fields := make([]string, 0, len(ve.Fields))
		for f := range ve.Fields {
			fields = append(fields, f)
		}
		sort.Strings(fields)
		for _, f := range fields {
			fmt.Fprintf(a.Err, "%s: %s\n", f, strings.Join(ve.Fields[f], ", "))
		}
		return
	}
	if msg := rt.store.LastError(); msg != "" {
		fmt.Fprintln(a.Err, msg)
	}
}

func printIdentity(a *App, id *domain.Identity) {
	if id == nil {
		return
	}
	w := tabwriter.NewWriter(a.Out, 0, 4, 1, ' ', 0)
	fmt.Fprintf(w, "id:\t%s\n", id.ID)
	fmt.Fprintf(w, "email:\t%s\n", id.Email)
	fmt.Fprintf(w, "name:\t%s\n", strings.TrimSpace(id.FirstName+" "+id.LastName))
	fmt.Fprintf(w, "role:\t%s\n", id.Role)
	if id.SessionExpiry != "" {
		fmt.Fprintf(w, "session:\t%s\n", id.SessionExpiry)
	}
	if id.HealthProfile != nil {
		fmt.Fprintf(w, "specialty:\t%s\n", id.HealthProfile.Specialty)
		fmt.Fprintf(w, "council:\t%s\n", id.HealthProfile.CouncilNumber)
	}
	if id.MustChangePassword {
		fmt.Fprintf(w, "password:\tchange required\n")
	}
	_ = w.Flush()
}
