package cli

import (
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"exam-app/internal/exam"
)

func printHelp(out io.Writer) {
	fmt.Fprintln(out, "Commands:")
	fmt.Fprintln(out, "  help")
	fmt.Fprintln(out, "  tests [limit]")
	fmt.Fprintln(out, "  practice [question_count]")
	fmt.Fprintln(out, "  take <test_id>")
	fmt.Fprintln(out, "  exit")
}

func printExamHelp(out io.Writer) {
	fmt.Fprintln(out, "Exam commands:")
	fmt.Fprintln(out, "  a|b|c|d       select an option (again to deselect)")
	fmt.Fprintln(out, "  clear         clear the current answer")
	fmt.Fprintln(out, "  flag          flag or unflag for review")
	fmt.Fprintln(out, "  n|next, p|prev, goto <number>")
	fmt.Fprintln(out, "  review        answered and flagged overview")
	fmt.Fprintln(out, "  pause         save and leave; resume later")
	fmt.Fprintln(out, "  submit")
}

func printInstructions(out io.Writer, test exam.Test, warningThreshold int) {
	fmt.Fprintln(out)
	fmt.Fprintf(out, "%s\n", test.Title)
	if strings.TrimSpace(test.Description) != "" {
		fmt.Fprintf(out, "%s\n", test.Description)
	}
	fmt.Fprintln(out)
	fmt.Fprintf(out, "Questions:  %d\n", len(test.Questions))
	fmt.Fprintf(out, "Time limit: %d minutes\n", test.TimeLimitMinutes)
	if test.PassingPercentage > 0 {
		fmt.Fprintf(out, "Pass mark:  %s%%\n", formatScore(test.PassingPercentage))
	}
	if test.NegativeMarking {
		fmt.Fprintf(out, "Wrong answers cost %s marks.\n", formatScore(test.NegativeMarkValue))
	}
	if warningThreshold > 0 {
		fmt.Fprintf(out, "Leaving the exam window counts as a warning. After %d warnings the exam is submitted automatically.\n", warningThreshold)
	}
	fmt.Fprintln(out, "The exam is submitted automatically when time runs out.")
	fmt.Fprintln(out)
}

func renderQuestion(out io.Writer, view *examView) {
	if len(view.questions) == 0 {
		return
	}
	snapshot := view.controller.Snapshot()
	question := view.question()

	flagged := ""
	for _, id := range snapshot.Flagged {
		if id == question.ID {
			flagged = " [flagged]"
			break
		}
	}

	fmt.Fprintln(out)
	fmt.Fprintf(out, "Question %d of %d%s\n\n", view.current+1, len(view.questions), flagged)
	fmt.Fprintf(out, "%s\n\n", question.Prompt)
	selected := snapshot.Answers[question.ID]
	for _, option := range question.Options {
		marker := " "
		if exam.Answer(option.Letter) == selected {
			marker = "*"
		}
		fmt.Fprintf(out, " %s %s. %s\n", marker, option.Letter, option.Text)
	}
	fmt.Fprintln(out)
}

func renderReview(out io.Writer, view *examView) {
	snapshot := view.controller.Snapshot()
	flagged := make(map[string]bool, len(snapshot.Flagged))
	for _, id := range snapshot.Flagged {
		flagged[id] = true
	}

	fmt.Fprintf(out, "Answered %d of %d, %d flagged, %s left, %d warnings\n",
		snapshot.Answered, len(view.questions), len(snapshot.Flagged),
		formatClock(snapshot.TimeRemaining), snapshot.WarningCount)
	for idx, question := range view.questions {
		answer := "-"
		if choice := snapshot.Answers[question.ID]; choice.IsSet() {
			answer = string(choice)
		}
		mark := ""
		if flagged[question.ID] {
			mark = " (flagged)"
		}
		fmt.Fprintf(out, "%3d. %s%s\n", idx+1, answer, mark)
	}
}

func renderResult(out io.Writer, test exam.Test, attempt exam.Attempt) {
	fmt.Fprintln(out)
	fmt.Fprintf(out, "Submitted %s.\n", test.Title)
	if attempt.Result == nil {
		fmt.Fprintln(out, "No result was recorded.")
		return
	}
	result := attempt.Result
	fmt.Fprintf(out, "Score: %s/%s (%s%%)\n", formatScore(result.Score), formatScore(result.MaxScore), formatScore(result.Percentage))
	fmt.Fprintf(out, "Correct %d, incorrect %d, unattempted %d\n", result.CorrectCount, result.IncorrectCount, result.UnattemptedCount)
	fmt.Fprintf(out, "Time taken: %s\n", formatClock(result.TimeTakenSeconds))
	if test.PassingPercentage > 0 {
		if result.Passed {
			fmt.Fprintln(out, "Result: passed")
		} else {
			fmt.Fprintln(out, "Result: not passed")
		}
	}
}

func formatClock(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%02d:%02d", seconds/60, seconds%60)
}

func formatScore(score float64) string {
	return strconv.FormatFloat(math.Round(score*100)/100, 'f', -1, 64)
}

func parsePositiveLimit(args []string, index int, defaultValue int) (int, error) {
	if len(args) <= index {
		return defaultValue, nil
	}

	value, err := strconv.Atoi(args[index])
	if err != nil || value <= 0 {
		return 0, errors.New("must be a positive integer")
	}
	return value, nil
}
