package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path"
	"strings"
	"syscall"
	"time"

	"github.com/atotto/clipboard"
	"github.com/spf13/cobra"

	"github.com/entrhq/mate/pkg/config"
	"github.com/entrhq/mate/pkg/display"
	"github.com/entrhq/mate/pkg/logging"
	"github.com/entrhq/mate/pkg/session"
	"github.com/entrhq/mate/pkg/types"
)

// runOptions holds the run command flags
type runOptions struct {
	ConfigFile   string
	SessionID    string
	Task         string
	TeamID       string
	Attachments  []string
	NoAutoAccept bool
	Raw          bool
	Copy         bool
	Verbose      bool
}

func newRunCmd() *cobra.Command {
	opts := &runOptions{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start a task in an existing session and follow it",
		Long: `Run connects to the session, sends the task and prints every message until
the task completes, the connection closes or you leave with exit, quit or q.

While the task runs, type a line to answer a pending input request or to send
a message, or type stop to ask the remote task to stop.`,
		Example: `  mate run --session 3f2a --task "Find the cheapest flight to Lisbon"
  mate run --session 3f2a --task "Summarize this" --attach report.pdf=https://files/report.pdf`,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.ConfigFile, _ = cmd.Flags().GetString("config")
			opts.Verbose, _ = cmd.Flags().GetBool("verbose")

			// Create context with signal handling for graceful shutdown
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			sigChan := make(chan os.Signal, 1)
			signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
			defer signal.Stop(sigChan)
			go func() {
				select {
				case <-sigChan:
					fmt.Fprintln(cmd.OutOrStdout(), "\n  User interrupted session")
					cancel()
				case <-ctx.Done():
				}
			}()

			return runSession(ctx, opts, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVarP(&opts.SessionID, "session", "s", "", "session id to connect to (required)")
	cmd.Flags().StringVarP(&opts.Task, "task", "t", "", "task to start (required)")
	cmd.Flags().StringVar(&opts.TeamID, "team", "", "team id (overrides the config)")
	cmd.Flags().StringArrayVar(&opts.Attachments, "attach", nil, "attachment as name=url or url (repeatable)")
	cmd.Flags().BoolVar(&opts.NoAutoAccept, "no-auto-accept", false, "never accept plans automatically")
	cmd.Flags().BoolVar(&opts.Raw, "raw", false, "print every event as JSON")
	cmd.Flags().BoolVar(&opts.Copy, "copy", false, "copy the final answer to the clipboard")
	_ = cmd.MarkFlagRequired("session")
	_ = cmd.MarkFlagRequired("task")

	return cmd
}

// loadConfig reads the configuration file and applies the command flags.
func loadConfig(opts *runOptions) (*config.Config, error) {
	cfg, err := config.LoadOrDefault(opts.ConfigFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if opts.TeamID != "" {
		cfg.TeamID = opts.TeamID
	}
	if opts.NoAutoAccept {
		cfg.Session.AutoAcceptPlan = false
	}
	if opts.Verbose {
		cfg.Logging.Verbosity = "verbose"
	}

	if err := cfg.RequireCredentials(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// sessionLogger returns the logger for the session engine. Verbose runs log
// to stderr; otherwise logs go to the log file.
func sessionLogger(cfg *config.Config, verbose bool) *logging.Logger {
	if verbose {
		l := logging.NewWriterLogger("session", os.Stderr)
		l.SetLevel(logging.LevelDebug)
		return l
	}

	l, err := logging.NewLogger("session")
	if err != nil {
		// Logger fell back to stderr due to initialization failure
		l.Warnf("Failed to initialize session logger, using stderr fallback: %v", err)
	}
	l.SetLevel(logging.LevelForVerbosity(cfg.Logging.Verbosity))
	return l
}

// parseAttachments converts name=url flags into attachments. A bare url is
// named after its last path element.
func parseAttachments(values []string) ([]types.Attachment, error) {
	attachments := make([]types.Attachment, 0, len(values))
	for _, v := range values {
		name, url, found := strings.Cut(v, "=")
		if !found {
			url = v
			name = path.Base(v)
		}
		name = strings.TrimSpace(name)
		url = strings.TrimSpace(url)
		if name == "" || url == "" || name == "." || name == "/" {
			return nil, fmt.Errorf("invalid attachment %q (expected name=url)", v)
		}
		attachments = append(attachments, types.Attachment{FileName: name, FileURL: url})
	}
	return attachments, nil
}

// runSession runs one task session to its end.
//
//nolint:gocyclo
func runSession(ctx context.Context, opts *runOptions, in io.Reader, out io.Writer) error {
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}
	attachments, err := parseAttachments(opts.Attachments)
	if err != nil {
		return err
	}

	printer := display.NewWriterPrinter(display.ParseLevel(cfg.Logging.Verbosity), out)

	sessionOpts := session.OptionsFromConfig(cfg)
	sessionOpts.Logger = sessionLogger(cfg, opts.Verbose)
	s, err := session.New(sessionOpts)
	if err != nil {
		return err
	}

	printer.Header(fmt.Sprintf("Mate v%s - session %s", version, opts.SessionID))
	startTime := time.Now()

	if err := s.Connect(ctx, opts.SessionID); err != nil {
		printer.Errorf("Failed to connect: %v", err)
		return err
	}
	defer func() { _ = s.Disconnect() }()

	// Print events until the session closes the channel
	printed := make(chan struct{})
	go func() {
		defer close(printed)
		for ev := range s.Events() {
			if opts.Raw {
				printRaw(printer, ev)
				continue
			}
			printer.Event(ev, s, opts.SessionID)
		}
	}()

	if err := s.Start(ctx, opts.Task, attachments...); err != nil {
		printer.Errorf("%v", err)
		return err
	}
	if len(attachments) > 0 {
		printer.Sentf("Started task with %d attachment(s): %s", len(attachments), opts.Task)
	} else {
		printer.Sentf("Started task: %s", opts.Task)
	}

	promptLoop(ctx, s, printer, in)

	if err := s.Disconnect(); err != nil {
		printer.Warningf("Disconnect: %v", err)
	}
	<-printed

	outcome, err := s.Wait(context.Background())
	if err != nil {
		return err
	}
	report(printer, s, outcome, opts.Copy, time.Since(startTime))

	if outcome.Reason == session.ReasonError {
		return fmt.Errorf("task execution failed: %w", outcome.Err)
	}
	return nil
}

// promptLoop reads user lines until the session ends, the user leaves or ctx
// is canceled.
func promptLoop(ctx context.Context, s *session.Session, printer *display.Printer, in io.Reader) {
	waitCtx, stopWait := context.WithCancel(ctx)
	defer stopWait()
	lines := readLines(waitCtx, in)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = s.Wait(waitCtx)
	}()

	round := 1
	printer.Prompt(round)
	for {
		select {
		case <-ctx.Done():
			if err := s.Exit(); err != nil {
				printer.Warningf("Exit: %v", err)
			}
			return
		case <-done:
			printer.Newline()
			if ctx.Err() != nil {
				if err := s.Exit(); err != nil {
					printer.Warningf("Exit: %v", err)
				}
			}
			return
		case line, ok := <-lines:
			if !ok {
				// Input closed; keep following the task until it ends
				lines = nil
				continue
			}
			leave, err := dispatch(ctx, s, printer, line)
			if err != nil {
				printer.Errorf("%v", err)
			}
			if leave {
				if err := s.Exit(); err != nil {
					printer.Warningf("Exit: %v", err)
				}
				return
			}
			round++
			printer.Prompt(round)
		}
	}
}

// dispatch handles one user line. It reports whether the user asked to leave.
func dispatch(ctx context.Context, s *session.Session, printer *display.Printer, line string) (bool, error) {
	input := strings.TrimSpace(line)

	switch strings.ToLower(input) {
	case "exit", "quit", "q":
		return true, nil
	case "stop":
		if err := s.SendStop(ctx); err != nil {
			return false, fmt.Errorf("failed to send stop: %w", err)
		}
		printer.Sentf("Stop command sent")
		return false, nil
	case "":
		return false, nil
	}

	if requestID := s.PendingRequest(); requestID != "" {
		err := s.RespondInput(ctx, input)
		if err == nil {
			printer.Sentf("Replied to %s: %s", requestID, input)
			return false, nil
		}
		if !errors.Is(err, session.ErrNoPendingInput) {
			return false, fmt.Errorf("failed to reply to %s: %w", requestID, err)
		}
		// Answered in the meantime; send the line as a message instead
	}

	if err := s.SendText(ctx, input); err != nil {
		return false, fmt.Errorf("failed to send message: %w", err)
	}
	printer.Sentf("Sent: %s", input)
	return false, nil
}

func printRaw(printer *display.Printer, ev *types.SessionEvent) {
	var v any = map[string]any{"event": ev.Type}
	switch {
	case ev.Message != nil:
		v = ev.Message
	case ev.Error != nil:
		v = map[string]any{"event": ev.Type, "error": ev.Error.Error()}
	}
	raw, err := display.HighlightJSON(v, printer.Color())
	if err != nil {
		printer.Errorf("%v", err)
		return
	}
	printer.Raw(raw)
}

func report(printer *display.Printer, s *session.Session, outcome *session.Outcome, copyAnswer bool, elapsed time.Duration) {
	switch outcome.Reason {
	case session.ReasonTaskCompleted:
		printer.Successf("Task completed successfully!")
	case session.ReasonConnectionClosed:
		if !s.Completed() && !s.Exited() {
			printer.Errorf("WebSocket connection closed before task completion")
		}
	}

	printer.Summary(display.Summary{
		SessionID:   s.SessionID(),
		Reason:      string(outcome.Reason),
		FinalAnswer: outcome.FinalAnswer,
		Screenshots: len(s.Screenshots()),
		Err:         outcome.Err,
		Duration:    elapsed,
	})

	if copyAnswer && outcome.FinalAnswer != "" {
		if err := clipboard.WriteAll(outcome.FinalAnswer); err != nil {
			printer.Warningf("Failed to copy the final answer: %v", err)
		} else {
			printer.Successf("Final answer copied to the clipboard")
		}
	}
}

// readLines delivers the lines of r until it ends or ctx is done.
func readLines(ctx context.Context, r io.Reader) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()
	return lines
}
