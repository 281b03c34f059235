// Package cli is the terminal front end shared by the online and offline
// exam clients: a small command shell for picking a test and an interactive
// runner for one timed session.
package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"exam-app/internal/exam"
	"exam-app/internal/integrity"
	"exam-app/internal/recovery"
	"exam-app/internal/session"
)

const defaultListLimit = 10

// Backend is the attempt store and test catalog the shell works against.
type Backend interface {
	session.Persistence
	FetchExistingAttempt(ctx context.Context, testID string) (*exam.Attempt, error)
	GetTest(ctx context.Context, testID string) (exam.Test, error)
	ListTests(ctx context.Context, limit int) ([]exam.TestSummary, error)
}

// PracticeCreator is implemented by backends that can generate practice tests.
type PracticeCreator interface {
	CreatePracticeTest(ctx context.Context, title string, questionCount, timeLimitMinutes int) (exam.TestSummary, error)
}

type Options struct {
	Banner      string
	Backend     Backend
	Recovery    recovery.Store
	Source      integrity.Source
	StudentID   string
	StudentName string

	WarningThreshold int
	SyncInterval     time.Duration
	StrictIntegrity  bool
	ListLimit        int
}

type shell struct {
	opts  Options
	out   *lockedWriter
	lines <-chan string
}

// Run reads commands from in until exit or EOF.
func Run(ctx context.Context, in io.Reader, out io.Writer, opts Options) error {
	if opts.Backend == nil || opts.Recovery == nil {
		return errors.New("cli: backend and recovery store are required")
	}
	if strings.TrimSpace(opts.StudentID) == "" {
		return exam.ErrAuthRequired
	}
	if opts.ListLimit <= 0 {
		opts.ListLimit = defaultListLimit
	}

	s := &shell{
		opts:  opts,
		out:   &lockedWriter{w: out},
		lines: readLines(in),
	}

	if opts.Banner != "" {
		s.printf("%s\n", opts.Banner)
	}
	s.printf("student=%s\n\n", opts.StudentID)
	printHelp(s.out)

	for {
		s.printf("\n> ")
		line, err := s.readLine(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				s.printf("\n")
				return nil
			}
			return err
		}
		if line == "" {
			continue
		}

		args := strings.Fields(line)
		switch strings.ToLower(args[0]) {
		case "help":
			printHelp(s.out)
		case "exit", "quit":
			return nil
		case "tests":
			limit, parseErr := parsePositiveLimit(args, 1, opts.ListLimit)
			if parseErr != nil {
				s.printf("invalid tests limit: %v\n", parseErr)
				continue
			}
			if err := s.listTests(ctx, limit); err != nil {
				s.printf("error: %v\n", err)
			}
		case "practice":
			count, parseErr := parsePositiveLimit(args, 1, 10)
			if parseErr != nil {
				s.printf("invalid question count: %v\n", parseErr)
				continue
			}
			if err := s.createPractice(ctx, count); err != nil {
				s.printf("error: %v\n", err)
			}
		case "take":
			if len(args) != 2 {
				s.printf("usage: take <test_id>\n")
				continue
			}
			err := s.take(ctx, args[1])
			if errors.Is(err, io.EOF) {
				return nil
			}
			if err != nil {
				s.printf("error: %v\n", err)
			}
		default:
			s.printf("unknown command. type 'help' for usage.\n")
		}
	}
}

func (s *shell) listTests(ctx context.Context, limit int) error {
	tests, err := s.opts.Backend.ListTests(ctx, limit)
	if err != nil {
		return err
	}
	if len(tests) == 0 {
		s.printf("No tests available.\n")
		return nil
	}

	s.printf("Tests:\n")
	for idx, test := range tests {
		s.printf("%d. %s  %s (%d questions, %d min)\n",
			idx+1, test.ID, test.Title, test.QuestionCount, test.TimeLimitMinutes)
	}
	return nil
}

func (s *shell) createPractice(ctx context.Context, count int) error {
	creator, ok := s.opts.Backend.(PracticeCreator)
	if !ok {
		return errors.New("practice tests are not available here")
	}
	summary, err := creator.CreatePracticeTest(ctx, "", count, 0)
	if err != nil {
		return err
	}
	s.printf("Created %s  %s (%d questions, %d min)\n",
		summary.ID, summary.Title, summary.QuestionCount, summary.TimeLimitMinutes)
	return nil
}

func (s *shell) readLine(ctx context.Context) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case line, ok := <-s.lines:
		if !ok {
			return "", io.EOF
		}
		return strings.TrimSpace(line), nil
	}
}

func (s *shell) printf(format string, args ...any) {
	fmt.Fprintf(s.out, format, args...)
}

// readLines feeds input lines from one goroutine so a running session can
// wait on input and on timer events at the same time.
func readLines(in io.Reader) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		reader := bufio.NewReader(in)
		for {
			line, err := reader.ReadString('\n')
			if line != "" {
				lines <- line
			}
			if err != nil {
				if !errors.Is(err, io.EOF) {
					log.Debug().Err(err).Msg("input closed")
				}
				return
			}
		}
	}()
	return lines
}

// lockedWriter serializes output from the input loop and session callbacks.
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}
