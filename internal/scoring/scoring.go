// Package scoring grades a frozen answer sheet against the answer key.
package scoring

import (
	"math"

	"github.com/smquiz/quiz-backend/internal/config"
	"github.com/smquiz/quiz-backend/internal/model"
)

// Rules are the parts of the exam policy that affect grading.
type Rules struct {
	NegativeMark   float64
	PassPercentage float64
}

// RulesFrom extracts the grading rules from a policy.
func RulesFrom(p config.Policy) Rules {
	return Rules{NegativeMark: p.NegativeMark, PassPercentage: p.PassPercentage}
}

// Score grades answers against questions. Indices outside the question list
// are ignored. Every wrong answer costs the flat NegativeMark; the question's
// own NegativeMarks field does not take part.
//
// Percentage is score over the maximum obtainable score (the sum of the
// questions' marks), not over the question count. The two agree while every
// question carries one mark; with weighted marks a paper of five 2-mark
// questions with two right answers scores 4 of 10, i.e. 40%. The percentage
// is taken from the floored score before rounding so that 3 - 1/3 over 5
// questions reports 53.33.
func Score(questions []model.Question, answers model.AnswerSheet, r Rules) model.ScoreResult {
	res := model.ScoreResult{Total: len(questions)}

	var raw, maxScore float64
	for i := range questions {
		q := &questions[i]
		maxScore += q.Credit()

		a, ok := answers[i]
		if !ok || a == nil {
			continue
		}
		if q.Judge(a) {
			res.Correct++
			raw += q.Credit()
		} else {
			res.Wrong++
			raw -= r.NegativeMark
		}
	}

	res.Attempted = res.Correct + res.Wrong
	res.Unattempted = res.Total - res.Attempted
	res.MaxScore = Round2(maxScore)

	score := math.Max(0, raw)
	res.Score = Round2(score)
	if maxScore > 0 {
		res.Percentage = Round2(score / maxScore * 100)
	}
	res.Pass = res.Percentage >= r.PassPercentage
	return res
}

// Review pairs every question with the recorded answer and the key.
func Review(questions []model.Question, answers model.AnswerSheet) []model.ReviewItem {
	items := make([]model.ReviewItem, len(questions))
	for i := range questions {
		q := &questions[i]
		item := model.ReviewItem{
			Index:       i,
			Question:    q.Sanitize(),
			Correct:     model.EncodeAnswer(q.CorrectAnswer()),
			Status:      model.ReviewUnattempted,
			Explanation: q.Explanation,
		}
		if a, ok := answers[i]; ok && a != nil {
			item.Selected = model.EncodeAnswer(a)
			if q.Judge(a) {
				item.Status = model.ReviewCorrect
			} else {
				item.Status = model.ReviewWrong
			}
		}
		items[i] = item
	}
	return items
}

// Round2 rounds half away from zero to two decimals.
func Round2(x float64) float64 {
	return math.Round(x*100) / 100
}
