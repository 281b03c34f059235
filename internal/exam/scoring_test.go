package exam

import (
	"math/rand"
	"testing"
)

func twoQuestionTest() Test {
	return Test{
		ID:               "t1",
		TimeLimitMinutes: 10,
		Questions: []Question{
			{ID: "q1", Correct: AnswerA, Marks: 2},
			{ID: "q2", Correct: AnswerB, Marks: 2},
		},
	}
}

func TestScoreCorrectAndUnattempted(t *testing.T) {
	got := Score(map[string]Answer{"q1": AnswerA}, twoQuestionTest(), 0)

	if got.Score != 2 || got.MaxScore != 4 {
		t.Fatalf("score = %v/%v, want 2/4", got.Score, got.MaxScore)
	}
	if got.CorrectCount != 1 || got.UnattemptedCount != 1 || got.IncorrectCount != 0 {
		t.Fatalf("unexpected counts: %+v", got)
	}
	if got.Percentage != 50 {
		t.Fatalf("percentage = %v, want 50", got.Percentage)
	}
}

func TestScoreNegativeMarking(t *testing.T) {
	test := twoQuestionTest()
	test.NegativeMarking = true
	test.NegativeMarkValue = 1

	got := Score(map[string]Answer{"q1": AnswerA, "q2": AnswerC}, test, 0)
	if got.Score != 1 || got.Percentage != 25 {
		t.Fatalf("score = %v (%v%%), want 1 (25%%)", got.Score, got.Percentage)
	}
	if got.IncorrectCount != 1 {
		t.Fatalf("incorrect = %d, want 1", got.IncorrectCount)
	}
}

func TestScoreClampsAtZero(t *testing.T) {
	test := twoQuestionTest()
	test.NegativeMarking = true
	test.NegativeMarkValue = 5

	got := Score(map[string]Answer{"q1": AnswerA, "q2": AnswerC}, test, 0)
	if got.Score != 0 {
		t.Fatalf("score = %v, want 0", got.Score)
	}
	if got.Percentage != 0 {
		t.Fatalf("percentage = %v, want 0", got.Percentage)
	}
}

func TestScoreExplicitUnsetCountsAsUnattempted(t *testing.T) {
	got := Score(map[string]Answer{"q1": AnswerUnset}, twoQuestionTest(), 0)
	if got.UnattemptedCount != 2 {
		t.Fatalf("unattempted = %d, want 2", got.UnattemptedCount)
	}
}

func TestScoreNegativePenaltyIgnoredWhenDisabled(t *testing.T) {
	test := twoQuestionTest()
	test.NegativeMarkValue = 1

	got := Score(map[string]Answer{"q1": AnswerB, "q2": AnswerB}, test, 0)
	if got.Score != 2 {
		t.Fatalf("score = %v, want 2", got.Score)
	}
}

func TestScoreUsesMarksOverride(t *testing.T) {
	test := twoQuestionTest()
	override := 5.0
	test.MarksPerQuestion = &override

	got := Score(map[string]Answer{"q2": AnswerB}, test, 0)
	if got.Score != 5 || got.MaxScore != 10 {
		t.Fatalf("score = %v/%v, want 5/10", got.Score, got.MaxScore)
	}
}

func TestScoreTimeTaken(t *testing.T) {
	test := twoQuestionTest()

	if got := Score(nil, test, 450); got.TimeTakenSeconds != 150 {
		t.Fatalf("time taken = %d, want 150", got.TimeTakenSeconds)
	}
	if got := Score(nil, test, 9999); got.TimeTakenSeconds != 0 {
		t.Fatalf("time taken = %d, want floor of 0", got.TimeTakenSeconds)
	}
}

func TestScoreEmptyTest(t *testing.T) {
	got := Score(map[string]Answer{"q1": AnswerA}, Test{}, 0)
	if got.MaxScore != 0 || got.Percentage != 0 {
		t.Fatalf("unexpected result for empty test: %+v", got)
	}
}

func TestScorePassingPercentage(t *testing.T) {
	test := twoQuestionTest()
	test.PassingPercentage = 60

	if Score(map[string]Answer{"q1": AnswerA}, test, 0).Passed {
		t.Fatalf("50%% should not pass a 60%% threshold")
	}
	if !Score(map[string]Answer{"q1": AnswerA, "q2": AnswerB}, test, 0).Passed {
		t.Fatalf("100%% should pass")
	}
}

func TestScoreIsDeterministicAndNonNegative(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	letters := []Answer{AnswerUnset, AnswerA, AnswerB, AnswerC, AnswerD}

	for round := 0; round < 200; round++ {
		test := Test{
			TimeLimitMinutes:  5,
			NegativeMarking:   rng.Intn(2) == 0,
			NegativeMarkValue: float64(rng.Intn(6)),
		}
		answers := make(map[string]Answer)
		for idx := 0; idx < 6; idx++ {
			id := string(rune('a' + idx))
			test.Questions = append(test.Questions, Question{
				ID:      id,
				Correct: letters[1+rng.Intn(4)],
				Marks:   float64(1 + rng.Intn(3)),
			})
			if rng.Intn(3) > 0 {
				answers[id] = letters[rng.Intn(len(letters))]
			}
		}

		first := Score(answers, test, 100)
		second := Score(answers, test, 100)
		if first != second {
			t.Fatalf("round %d: score not deterministic: %+v vs %+v", round, first, second)
		}
		if first.Score < 0 {
			t.Fatalf("round %d: negative score %v", round, first.Score)
		}
		if first.CorrectCount+first.IncorrectCount+first.UnattemptedCount != len(test.Questions) {
			t.Fatalf("round %d: counts do not cover all questions: %+v", round, first)
		}
	}
}
