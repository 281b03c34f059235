package exam

import (
	"bytes"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"html"
	"math/rand"
	"strings"
	"time"

	"exam-app/internal/opentdb"
)

// Answer is a selected option letter. The zero value is the explicit
// "visited then cleared" marker and encodes as JSON null.
type Answer string

const (
	AnswerUnset Answer = ""
	AnswerA     Answer = "A"
	AnswerB     Answer = "B"
	AnswerC     Answer = "C"
	AnswerD     Answer = "D"
)

const OptionCount = 4

func (a Answer) IsSet() bool {
	return a != AnswerUnset
}

func (a Answer) MarshalJSON() ([]byte, error) {
	if a == AnswerUnset {
		return []byte("null"), nil
	}
	return json.Marshal(string(a))
}

func (a *Answer) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*a = AnswerUnset
		return nil
	}
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*a = NormalizeAnswer(raw)
	return nil
}

// NormalizeAnswer upper-cases and trims raw input. Anything that is not a
// single option letter normalizes to AnswerUnset.
func NormalizeAnswer(raw string) Answer {
	letter := strings.ToUpper(strings.TrimSpace(raw))
	if len(letter) != 1 || letter[0] < 'A' || letter[0] >= 'A'+OptionCount {
		return AnswerUnset
	}
	return Answer(letter)
}

// ValidAnswers reports whether every value is unset or one of A-D.
func ValidAnswers(answers map[string]Answer) bool {
	for _, answer := range answers {
		if answer == AnswerUnset {
			continue
		}
		if NormalizeAnswer(string(answer)) != answer {
			return false
		}
	}
	return true
}

func CloneAnswers(answers map[string]Answer) map[string]Answer {
	out := make(map[string]Answer, len(answers))
	for id, answer := range answers {
		out[id] = answer
	}
	return out
}

type Status string

const (
	StatusInProgress Status = "in-progress"
	StatusPaused     Status = "paused"
	StatusCompleted  Status = "completed"
)

func (s Status) Active() bool {
	return s == StatusInProgress || s == StatusPaused
}

type Option struct {
	Letter string `json:"letter" yaml:"letter"`
	Text   string `json:"text" yaml:"text"`
}

type Question struct {
	ID      string   `json:"id" yaml:"id"`
	Prompt  string   `json:"prompt" yaml:"prompt"`
	Options []Option `json:"options" yaml:"options"`
	Correct Answer   `json:"correct" yaml:"correct"`
	Marks   float64  `json:"marks" yaml:"marks"`
}

// Test is the immutable configuration and question list a session runs against.
type Test struct {
	ID                string     `json:"id" yaml:"id"`
	Title             string     `json:"title" yaml:"title"`
	Description       string     `json:"description,omitempty" yaml:"description"`
	TimeLimitMinutes  int        `json:"time_limit_minutes" yaml:"time_limit_minutes"`
	MarksPerQuestion  *float64   `json:"marks_per_question,omitempty" yaml:"marks_per_question"`
	NegativeMarking   bool       `json:"negative_marking" yaml:"negative_marking"`
	NegativeMarkValue float64    `json:"negative_mark_value" yaml:"negative_mark_value"`
	Shuffle           bool       `json:"shuffle" yaml:"shuffle"`
	PassingPercentage float64    `json:"passing_percentage" yaml:"passing_percentage"`
	Questions         []Question `json:"questions" yaml:"questions"`
	CreatedAt         time.Time  `json:"created_at" yaml:"-"`
}

func (t Test) LimitSeconds() int {
	if t.TimeLimitMinutes <= 0 {
		return 0
	}
	return t.TimeLimitMinutes * 60
}

// QuestionMarks applies the test-level override when one is configured.
func (t Test) QuestionMarks(question Question) float64 {
	if t.MarksPerQuestion != nil {
		return *t.MarksPerQuestion
	}
	return question.Marks
}

func (t Test) Summary() TestSummary {
	return TestSummary{
		ID:               t.ID,
		Title:            t.Title,
		QuestionCount:    len(t.Questions),
		TimeLimitMinutes: t.TimeLimitMinutes,
		CreatedAt:        t.CreatedAt,
	}
}

type TestSummary struct {
	ID               string    `json:"id"`
	Title            string    `json:"title"`
	QuestionCount    int       `json:"question_count"`
	TimeLimitMinutes int       `json:"time_limit_minutes"`
	CreatedAt        time.Time `json:"created_at"`
}

// Result holds the grading fields frozen at finalization.
type Result struct {
	Score            float64 `json:"score"`
	MaxScore         float64 `json:"max_score"`
	Percentage       float64 `json:"percentage"`
	CorrectCount     int     `json:"correct_count"`
	IncorrectCount   int     `json:"incorrect_count"`
	UnattemptedCount int     `json:"unattempted_count"`
	TimeTakenSeconds int     `json:"time_taken_seconds"`
	Passed           bool    `json:"passed"`
}

type Attempt struct {
	ID                   string            `json:"id"`
	TestID               string            `json:"test_id"`
	StudentID            string            `json:"student_id"`
	StudentName          string            `json:"student_name,omitempty"`
	Answers              map[string]Answer `json:"answers"`
	Status               Status            `json:"status"`
	TimeRemainingSeconds int               `json:"time_remaining_seconds"`
	WarningCount         int               `json:"warning_count"`
	StartedAt            time.Time         `json:"started_at"`
	LastUpdated          time.Time         `json:"last_updated"`
	SubmittedAt          *time.Time        `json:"submitted_at,omitempty"`
	Result               *Result           `json:"result,omitempty"`
	Proctoring           map[string]int    `json:"proctoring,omitempty"`
}

// AttemptPatch is a merge-patch: nil fields are left untouched and a
// non-nil Answers replaces the stored map.
type AttemptPatch struct {
	Answers              map[string]Answer `json:"answers,omitempty"`
	Status               *Status           `json:"status,omitempty"`
	TimeRemainingSeconds *int              `json:"time_remaining_seconds,omitempty"`
	WarningCount         *int              `json:"warning_count,omitempty"`
}

func (p AttemptPatch) Empty() bool {
	return p.Answers == nil && p.Status == nil && p.TimeRemainingSeconds == nil && p.WarningCount == nil
}

// Finalization is the terminal write that freezes an attempt.
type Finalization struct {
	Answers              map[string]Answer `json:"answers"`
	TimeRemainingSeconds int               `json:"time_remaining_seconds"`
	WarningCount         int               `json:"warning_count"`
	Result               Result            `json:"result"`
	Proctoring           map[string]int    `json:"proctoring,omitempty"`
}

type AttemptFilter struct {
	TestID    string
	StudentID string
	Status    Status
	Limit     int
	Offset    int
}

// BuildQuestions converts Open Trivia DB multiple-choice items into
// four-option questions worth one mark each. Items with a different option
// count are skipped.
func BuildQuestions(raw []opentdb.RawQuestion) []Question {
	questions := make([]Question, 0, len(raw))
	for _, item := range raw {
		if len(item.IncorrectAnswers)+1 != OptionCount {
			continue
		}
		question := buildQuestion(item)
		question.ID = MakeQuestionID(question)
		questions = append(questions, question)
	}
	return questions
}

func MakeQuestionID(question Question) string {
	var keyBuilder strings.Builder
	keyBuilder.WriteString(question.Prompt)
	for _, option := range question.Options {
		keyBuilder.WriteString("|")
		keyBuilder.WriteString(option.Text)
	}

	hash := sha1.Sum([]byte(keyBuilder.String()))
	return "q_" + hex.EncodeToString(hash[:6])
}

func buildQuestion(raw opentdb.RawQuestion) Question {
	type choice struct {
		text      string
		isCorrect bool
	}

	choices := make([]choice, 0, len(raw.IncorrectAnswers)+1)
	for _, incorrect := range raw.IncorrectAnswers {
		choices = append(choices, choice{
			text:      html.UnescapeString(incorrect),
			isCorrect: false,
		})
	}

	choices = append(choices, choice{
		text:      html.UnescapeString(raw.CorrectAnswer),
		isCorrect: true,
	})

	rand.Shuffle(len(choices), func(i, j int) {
		choices[i], choices[j] = choices[j], choices[i]
	})

	options := make([]Option, len(choices))
	correct := AnswerUnset

	for idx, candidate := range choices {
		letter := string(rune('A' + idx))
		options[idx] = Option{
			Letter: letter,
			Text:   candidate.text,
		}
		if candidate.isCorrect {
			correct = Answer(letter)
		}
	}

	return Question{
		Prompt:  html.UnescapeString(raw.Question),
		Options: options,
		Correct: correct,
		Marks:   1,
	}
}
