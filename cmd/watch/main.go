// watch follows one challenge from the terminal: it prints the challenge as
// it stands and reprints the participant list whenever someone joins.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/devbattle/devbattle/internal/sessionview"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	var (
		addr        string
		challengeID string
		verbose     bool
	)
	flagSet := pflag.NewFlagSet("watch", pflag.ContinueOnError)
	flagSet.SetOutput(stderr)
	flagSet.StringVar(&addr, "addr", "http://localhost:8080", "base URL of the DevBattle server")
	flagSet.StringVarP(&challengeID, "challenge", "c", "", "challenge ID to follow")
	flagSet.BoolVarP(&verbose, "verbose", "v", false, "log subscription events to stderr")

	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if challengeID == "" && flagSet.NArg() > 0 {
		challengeID = flagSet.Arg(0)
	}
	if challengeID == "" {
		return errors.New("--challenge is required")
	}

	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))

	openCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	view, err := sessionview.Open(openCtx, addr, challengeID,
		sessionview.WithLogger(logger),
		sessionview.WithOnChange(func(ps []sessionview.Participant) {
			printParticipants(stdout, ps)
		}),
	)
	var fetchErr *sessionview.FetchError
	if errors.As(err, &fetchErr) {
		msg := "could not load challenge"
		if fetchErr.NotFound() {
			msg = "challenge not found"
		}
		return fmt.Errorf("%s: %w\nback to your challenges: %s/dashboard", msg, err, strings.TrimSuffix(addr, "/"))
	}
	if err != nil {
		return err
	}
	defer view.Close()

	printChallenge(stdout, view.Challenge())
	printParticipants(stdout, view.Participants())
	if !view.Live() {
		fmt.Fprintln(stdout, "(live updates unavailable)")
		return nil
	}

	<-ctx.Done()
	return nil
}

func printChallenge(w io.Writer, c sessionview.Challenge) {
	fmt.Fprintf(w, "%s  [%s]  %d min\n", c.Title, c.Status, c.Duration)
	if c.Description != "" {
		fmt.Fprintln(w, c.Description)
	}
	if len(c.Questions) == 0 {
		fmt.Fprintln(w, "no questions")
	}
	for i, q := range c.Questions {
		fmt.Fprintf(w, "  Q%d. %s (%d test cases)\n", i+1, q.Title, len(q.TestCases))
	}
}

func printParticipants(w io.Writer, ps []sessionview.Participant) {
	fmt.Fprintf(w, "participants (%d):\n", len(ps))
	for _, p := range ps {
		fmt.Fprintf(w, "  %-24s joined %s\n", p.Name, p.JoinedAt.Local().Format(time.Kitchen))
	}
}
