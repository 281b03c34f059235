package exam

// Score grades answers against the test. It is pure: the same inputs always
// produce the same Result. Absent and explicitly unset answers both count as
// unattempted, the negative penalty is a flat per-test value, and the final
// score is floored at zero.
func Score(answers map[string]Answer, test Test, remainingSeconds int) Result {
	var (
		result Result
		score  float64
	)

	for _, question := range test.Questions {
		marks := test.QuestionMarks(question)
		result.MaxScore += marks

		answer := answers[question.ID]
		switch {
		case !answer.IsSet():
			result.UnattemptedCount++
		case answer == question.Correct:
			score += marks
			result.CorrectCount++
		default:
			result.IncorrectCount++
			if test.NegativeMarking {
				score -= test.NegativeMarkValue
			}
		}
	}

	if score < 0 {
		score = 0
	}
	result.Score = score
	if result.MaxScore > 0 {
		result.Percentage = score / result.MaxScore * 100
	}

	result.TimeTakenSeconds = test.LimitSeconds() - remainingSeconds
	if result.TimeTakenSeconds < 0 {
		result.TimeTakenSeconds = 0
	}
	result.Passed = result.Percentage >= test.PassingPercentage
	return result
}
