package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"exam-app/internal/exam"
	"exam-app/internal/session"
)

// examView is the cursor over one running session.
type examView struct {
	controller *session.Controller
	questions  []exam.Question
	current    int
}

func (s *shell) take(ctx context.Context, testID string) error {
	backend := s.opts.Backend

	test, err := backend.GetTest(ctx, testID)
	if err != nil {
		return err
	}
	existing, err := backend.FetchExistingAttempt(ctx, test.ID)
	if err != nil {
		return fmt.Errorf("look up existing attempt: %w", err)
	}

	cfg := session.Config{
		Test:             test,
		StudentID:        s.opts.StudentID,
		StudentName:      s.opts.StudentName,
		Existing:         existing,
		WarningThreshold: s.opts.WarningThreshold,
		SyncInterval:     s.opts.SyncInterval,
		StrictIntegrity:  s.opts.StrictIntegrity,
	}
	deps := session.Deps{
		Persistence: backend,
		Recovery:    s.opts.Recovery,
		Source:      s.opts.Source,
		OnNotice: func(notice session.Notice) {
			s.printf("\n! %s\n", notice.Message)
		},
	}

	controller, err := session.Open(ctx, cfg, deps)
	if err != nil {
		return err
	}

	if controller.State() == session.StateInstructions {
		threshold := cfg.WarningThreshold
		if threshold <= 0 {
			threshold = session.DefaultWarningThreshold
		}
		printInstructions(s.out, test, threshold)
		start, err := s.confirm(ctx, "Type 'start' to begin or 'back' to return: ", "start", "back")
		if err != nil {
			return err
		}
		if !start {
			return nil
		}
		if err := controller.Begin(ctx); err != nil {
			return err
		}
	} else if controller.State() == session.StateActive {
		s.printf("Resuming your attempt at %s.\n", test.Title)
	}

	view := &examView{controller: controller, questions: controller.Questions()}
	return s.runExam(ctx, view)
}

func (s *shell) runExam(ctx context.Context, view *examView) error {
	controller := view.controller
	if len(view.questions) > 0 && controller.State() == session.StateActive {
		renderQuestion(s.out, view)
	}

	for {
		select {
		case <-controller.Done():
			s.finishExam(controller)
			return nil
		default:
		}

		s.printf("[%s] exam> ", formatClock(controller.Snapshot().TimeRemaining))

		select {
		case <-controller.Done():
			s.printf("\n")
			s.finishExam(controller)
			return nil
		case <-ctx.Done():
			_ = controller.Pause(context.WithoutCancel(ctx))
			return ctx.Err()
		case line, ok := <-s.lines:
			if !ok {
				s.printf("\n")
				if err := controller.Pause(ctx); err != nil && !errors.Is(err, session.ErrNotActive) {
					s.printf("error: %v\n", err)
				}
				return io.EOF
			}
			if err := s.examCommand(ctx, view, strings.TrimSpace(line)); err != nil {
				s.printf("error: %v\n", err)
			}
		}
	}
}

func (s *shell) examCommand(ctx context.Context, view *examView, line string) error {
	if line == "" {
		renderQuestion(s.out, view)
		return nil
	}
	controller := view.controller
	args := strings.Fields(line)
	command := strings.ToLower(args[0])

	if len(view.questions) == 0 && command != "submit" && command != "pause" && command != "help" {
		return errors.New("this test has no questions; submit or pause")
	}

	switch command {
	case "help":
		printExamHelp(s.out)
	case "a", "b", "c", "d":
		return s.answer(view, command)
	case "answer":
		if len(args) != 2 {
			return errors.New("usage: answer <A-D>")
		}
		return s.answer(view, args[1])
	case "clear":
		if err := controller.Clear(view.question().ID); err != nil {
			return err
		}
		renderQuestion(s.out, view)
	case "flag":
		if err := controller.ToggleFlag(view.question().ID); err != nil {
			return err
		}
		renderQuestion(s.out, view)
	case "n", "next":
		view.move(1)
		renderQuestion(s.out, view)
	case "p", "prev":
		view.move(-1)
		renderQuestion(s.out, view)
	case "goto":
		if len(args) != 2 {
			return errors.New("usage: goto <number>")
		}
		number, err := strconv.Atoi(args[1])
		if err != nil || number < 1 || number > len(view.questions) {
			return fmt.Errorf("question number must be between 1 and %d", len(view.questions))
		}
		view.current = number - 1
		renderQuestion(s.out, view)
	case "review":
		renderReview(s.out, view)
	case "pause":
		if err := controller.Pause(ctx); err != nil {
			return err
		}
		s.printf("Exam paused. Use 'take %s' to resume.\n", controller.Test().ID)
	case "submit":
		snapshot := controller.Snapshot()
		prompt := fmt.Sprintf("Submit with %d of %d answered? (yes/no): ", snapshot.Answered, len(view.questions))
		ok, err := s.confirm(ctx, prompt, "yes", "no")
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		s.printf("Submitting...\n")
		return controller.Submit(ctx)
	default:
		return errors.New("unknown command. type 'help' for exam commands")
	}
	return nil
}

func (s *shell) answer(view *examView, raw string) error {
	option := exam.NormalizeAnswer(raw)
	if !option.IsSet() {
		return exam.ErrInvalidAnswer
	}
	if err := view.controller.Answer(view.question().ID, option); err != nil {
		return err
	}
	if view.current < len(view.questions)-1 {
		view.move(1)
	}
	renderQuestion(s.out, view)
	return nil
}

func (s *shell) finishExam(controller *session.Controller) {
	attempt, ok := controller.Final()
	if !ok {
		return
	}
	renderResult(s.out, controller.Test(), attempt)
}

// confirm reads until the answer is yes or no. Short forms y and n count.
func (s *shell) confirm(ctx context.Context, prompt, yes, no string) (bool, error) {
	for {
		s.printf("%s", prompt)
		line, err := s.readLine(ctx)
		if err != nil {
			return false, err
		}
		switch strings.ToLower(line) {
		case yes, yes[:1]:
			return true, nil
		case no, no[:1]:
			return false, nil
		default:
			s.printf("Please answer %s or %s.\n", yes, no)
		}
	}
}

func (v *examView) question() exam.Question {
	return v.questions[v.current]
}

func (v *examView) move(delta int) {
	next := v.current + delta
	if next < 0 || next >= len(v.questions) {
		return
	}
	v.current = next
}
