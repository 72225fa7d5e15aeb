package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/lecturelink/backend/config"
	"github.com/lecturelink/backend/internal/models"
	"github.com/lecturelink/backend/internal/syncloop"
)

const (
	roleStudent    = "student"
	roleInstructor = "instructor"
)

var errQuit = errors.New("quit")

var watchFlags struct {
	role string
	page int
}

var watchCmd = &cobra.Command{
	Use:   "watch <code>",
	Short: "Follow a lecture live as a student or instructor",
	Long: "watch keeps a lecture view in sync with the server and reads commands from stdin.\n" +
		"The session ends on quit, at end of input, or on interrupt.\n\n" +
		"Student commands:     page <n>, vote <n>, ask <text>, comment <text>, quit\n" +
		"Instructor commands:  page <n>, ack <question-id>, results, hide, auto, quit",
	Args: cobra.ExactArgs(1),
	RunE: runWatch,
}

func init() {
	f := watchCmd.Flags()
	f.StringVar(&watchFlags.role, "role", roleStudent, "View role: student or instructor")
	f.IntVar(&watchFlags.page, "page", 0, "Page to start on")
}

// poster is the part of the API a watch session writes through.
type poster interface {
	PostQuestion(ctx context.Context, code string, page int, text string) (*models.Question, error)
	PostComment(ctx context.Context, code string, page int, text string) (*models.Comment, error)
	Acknowledge(ctx context.Context, code string, page int, id int64) (*models.Question, error)
}

// lineHandler runs one stdin command. It returns errQuit to end the session.
type lineHandler func(ctx context.Context, line string) (string, error)

// syncIntervals reads the cadence from the environment config, falling back to the defaults.
func syncIntervals(logger *zap.Logger) config.SyncConfig {
	cfg, err := config.Load()
	if err != nil {
		logger.Debug("config unavailable, using default sync intervals", zap.Error(err))
		return config.SyncConfig{
			InstructorQAInterval: syncloop.InstructorQAInterval,
			StudentQAInterval:    syncloop.StudentQAInterval,
			PollInterval:         syncloop.PollInterval,
		}
	}
	return cfg.Sync
}

func runWatch(cmd *cobra.Command, args []string) error {
	s, err := openSession()
	if err != nil {
		return err
	}
	code := strings.ToUpper(strings.TrimSpace(args[0]))
	out := cmd.OutOrStdout()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	lookupCtx, cancel := context.WithTimeout(ctx, rootFlags.timeout)
	l, err := s.client.Lecture(lookupCtx, code)
	cancel()
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Watching %q (%s) as %s. Type 'quit' to leave.\n", l.Title, l.AccessCode, watchFlags.role)

	var pmu sync.Mutex
	listener := func(ev syncloop.Event) {
		text := formatEvent(ev, time.Now())
		if text == "" {
			return
		}
		pmu.Lock()
		defer pmu.Unlock()
		fmt.Fprint(out, text)
	}

	intervals := syncIntervals(s.logger)
	flags := syncloop.NewFileFlags(s.profile.Path())
	opts := []syncloop.Option{syncloop.WithLogger(s.logger), syncloop.WithListener(listener)}

	var (
		run      func(context.Context) error
		stopView func()
		handle   lineHandler
	)
	switch watchFlags.role {
	case roleStudent:
		v := syncloop.NewStudentView(code, s.client, flags,
			append(opts, syncloop.WithIntervals(intervals.StudentQAInterval, intervals.PollInterval))...)
		v.SetPage(watchFlags.page)
		run, stopView, handle = v.Run, v.Close, studentCommands(v, s.client, code)
	case roleInstructor:
		if err := requireInstructor(s); err != nil {
			return err
		}
		v := syncloop.NewInstructorView(code, s.client, flags,
			append(opts, syncloop.WithIntervals(intervals.InstructorQAInterval, intervals.PollInterval))...)
		v.Navigate(ctx, watchFlags.page)
		run, stopView, handle = v.Run, v.Close, instructorCommands(v, s.client, code)
	default:
		return fmt.Errorf("role must be %s or %s", roleStudent, roleInstructor)
	}

	done := make(chan error, 1)
	go func() { done <- run(ctx) }()

	err = readCommands(ctx, cmd.InOrStdin(), handle, func(msg string) {
		pmu.Lock()
		defer pmu.Unlock()
		fmt.Fprintln(out, msg)
	})
	stopView()
	if runErr := <-done; runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}
	if errors.Is(err, errQuit) || errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// readCommands feeds stdin lines to handle until quit, EOF, or ctx ends. EOF returns nil, so
// piped input runs its commands and then leaves the session. Command errors are reported through
// say and do not end the session.
func readCommands(ctx context.Context, in io.Reader, handle lineHandler, say func(string)) error {
	lines := make(chan string)
	scanErr := make(chan error, 1)
	go func() {
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
		scanErr <- sc.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-scanErr:
			if err != nil {
				return fmt.Errorf("read stdin: %w", err)
			}
			return nil
		case line := <-lines:
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			msg, err := handle(ctx, line)
			if errors.Is(err, errQuit) {
				return err
			}
			if err != nil {
				say("error: " + err.Error())
				continue
			}
			if msg != "" {
				say(msg)
			}
		}
	}
}

func splitCommand(line string) (string, string) {
	verb, rest, _ := strings.Cut(line, " ")
	return strings.ToLower(verb), strings.TrimSpace(rest)
}

func studentCommands(v *syncloop.StudentView, api poster, code string) lineHandler {
	return func(ctx context.Context, line string) (string, error) {
		verb, rest := splitCommand(line)
		switch verb {
		case "quit", "exit":
			return "", errQuit
		case "page":
			page, err := parsePage(rest)
			if err != nil {
				return "", err
			}
			v.SetPage(page)
			return fmt.Sprintf("Now on page %d", page), nil
		case "vote":
			n, err := strconv.Atoi(rest)
			if err != nil || n < 1 {
				return "", fmt.Errorf("vote takes an option number starting at 1")
			}
			if _, err := v.Vote(ctx, n-1); err != nil {
				return "", err
			}
			return "", nil
		case "ask":
			q, err := api.PostQuestion(ctx, code, v.Snapshot().Page, rest)
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("Question #%d posted", q.ID), nil
		case "comment":
			c, err := api.PostComment(ctx, code, v.Snapshot().Page, rest)
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("Comment #%d posted", c.ID), nil
		}
		return "", fmt.Errorf("unknown command %q", verb)
	}
}

func instructorCommands(v *syncloop.InstructorView, api poster, code string) lineHandler {
	return func(ctx context.Context, line string) (string, error) {
		verb, rest := splitCommand(line)
		switch verb {
		case "quit", "exit":
			return "", errQuit
		case "page":
			page, err := parsePage(rest)
			if err != nil {
				return "", err
			}
			v.Navigate(ctx, page)
			return fmt.Sprintf("Now on page %d", page), nil
		case "ack":
			id, err := strconv.ParseInt(rest, 10, 64)
			if err != nil {
				return "", fmt.Errorf("ack takes a question id")
			}
			q, err := api.Acknowledge(ctx, code, v.Snapshot().Page, id)
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("Acknowledged #%d", q.ID), nil
		case "results":
			if v.ShowResults() == nil {
				return "No poll to show", nil
			}
			return "", nil
		case "hide":
			v.DisableResults()
			return "Results will not pop up automatically", nil
		case "auto":
			v.EnableResults()
			return "Results will pop up when a poll closes", nil
		}
		return "", fmt.Errorf("unknown command %q", verb)
	}
}
