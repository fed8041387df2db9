package scoring

import (
	"testing"

	"github.com/google/uuid"
	"github.com/smquiz/quiz-backend/internal/config"
	"github.com/smquiz/quiz-backend/internal/model"
)

// paper builds n mcq questions whose key is always option 1.
func paper(n int) []model.Question {
	qs := make([]model.Question, n)
	for i := range qs {
		qs[i] = model.Question{
			ID:    uuid.New(),
			Title: "q",
			Marks: 1,
			Body:  model.ChoiceBody{Options: []string{"a", "b", "c", "d"}, Answer: 1},
		}
	}
	return qs
}

func TestScore(t *testing.T) {
	rules := RulesFrom(config.DefaultPolicy())

	tests := []struct {
		name    string
		n       int
		answers model.AnswerSheet
		want    model.ScoreResult
	}{
		{
			name: "three correct one wrong one blank",
			n:    5,
			answers: model.AnswerSheet{
				0: model.ChoiceAnswer(1),
				1: model.ChoiceAnswer(1),
				2: model.ChoiceAnswer(1),
				3: model.ChoiceAnswer(0),
			},
			want: model.ScoreResult{Total: 5, Attempted: 4, Unattempted: 1, Correct: 3, Wrong: 1,
				Score: 2.67, MaxScore: 5, Percentage: 53.33, Pass: true},
		},
		{
			name:    "no answers",
			n:       5,
			answers: model.AnswerSheet{},
			want:    model.ScoreResult{Total: 5, Unattempted: 5, MaxScore: 5},
		},
		{
			name: "more wrong than right floors at zero",
			n:    4,
			answers: model.AnswerSheet{
				0: model.ChoiceAnswer(1),
				1: model.ChoiceAnswer(2),
				2: model.ChoiceAnswer(3),
				3: model.ChoiceAnswer(0),
			},
			want: model.ScoreResult{Total: 4, Attempted: 4, Correct: 1, Wrong: 3, MaxScore: 4},
		},
		{
			name: "exactly forty percent passes",
			n:    5,
			answers: model.AnswerSheet{
				0: model.ChoiceAnswer(1),
				1: model.ChoiceAnswer(1),
			},
			want: model.ScoreResult{Total: 5, Attempted: 2, Unattempted: 3, Correct: 2,
				Score: 2, MaxScore: 5, Percentage: 40, Pass: true},
		},
		{
			name: "indices outside the paper are ignored",
			n:    2,
			answers: model.AnswerSheet{
				0:  model.ChoiceAnswer(1),
				7:  model.ChoiceAnswer(1),
				-1: model.ChoiceAnswer(1),
			},
			want: model.ScoreResult{Total: 2, Attempted: 1, Unattempted: 1, Correct: 1,
				Score: 1, MaxScore: 2, Percentage: 50, Pass: true},
		},
		{
			name:    "empty paper",
			n:       0,
			answers: model.AnswerSheet{0: model.ChoiceAnswer(1)},
			want:    model.ScoreResult{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Score(paper(tt.n), tt.answers, rules)
			if got != tt.want {
				t.Errorf("Score() =\n  %+v\nwant\n  %+v", got, tt.want)
			}
		})
	}
}

func TestScoreInvariants(t *testing.T) {
	rules := RulesFrom(config.DefaultPolicy())
	qs := paper(6)

	// Walk every combination of blank/right/wrong over six questions.
	combos := 1
	for range qs {
		combos *= 3
	}
	for c := 0; c < combos; c++ {
		answers := model.AnswerSheet{}
		x := c
		for i := range qs {
			switch x % 3 {
			case 1:
				answers[i] = model.ChoiceAnswer(1)
			case 2:
				answers[i] = model.ChoiceAnswer(3)
			}
			x /= 3
		}

		r := Score(qs, answers, rules)
		if r.Correct+r.Wrong+r.Unattempted != r.Total {
			t.Fatalf("combo %d: counts do not add up: %+v", c, r)
		}
		if r.Attempted != r.Correct+r.Wrong {
			t.Fatalf("combo %d: attempted mismatch: %+v", c, r)
		}
		if r.Score < 0 || r.Percentage < 0 || r.Percentage > 100 {
			t.Fatalf("combo %d: out of range: %+v", c, r)
		}
		if r.Pass != (r.Percentage >= rules.PassPercentage) {
			t.Fatalf("combo %d: pass flag inconsistent: %+v", c, r)
		}
	}
}

func TestScoreUsesFlatNegativeMark(t *testing.T) {
	qs := paper(3)
	qs[0].NegativeMarks = 2 // per-question field is not used
	answers := model.AnswerSheet{0: model.ChoiceAnswer(0), 1: model.ChoiceAnswer(1), 2: model.ChoiceAnswer(1)}

	r := Score(qs, answers, Rules{NegativeMark: 0.5, PassPercentage: 40})
	if r.Score != 1.5 {
		t.Errorf("score = %v, want 1.5", r.Score)
	}

	r = Score(qs, answers, Rules{NegativeMark: 0, PassPercentage: 40})
	if r.Score != 2 || r.Percentage != 66.67 {
		t.Errorf("without negative marking got %+v", r)
	}
}

func TestScoreMixedTypesAndMarks(t *testing.T) {
	qs := []model.Question{
		{Marks: 2, Body: model.ChoiceBody{Options: []string{"a", "b", "c", "d"}, Answer: 2}},
		{Marks: 1, Body: model.OutputBody{Code: model.CodeSnippet{Content: "x"}, Options: []string{"a", "b", "c", "d"}, Answer: 0}},
		{Body: model.IntegerBody{Answer: 12}},
	}
	answers := model.AnswerSheet{
		0: model.ChoiceAnswer(2),
		1: model.ChoiceAnswer(0),
		2: model.NumericAnswer(11),
	}

	r := Score(qs, answers, RulesFrom(config.DefaultPolicy()))
	if r.Correct != 2 || r.Wrong != 1 {
		t.Fatalf("unexpected counts %+v", r)
	}
	if r.MaxScore != 4 || r.Score != 2.67 || r.Percentage != 66.67 {
		t.Errorf("unexpected totals %+v", r)
	}
}

func TestScorePercentageOverMaxScore(t *testing.T) {
	qs := paper(5)
	for i := range qs {
		qs[i].Marks = 2
	}
	answers := model.AnswerSheet{0: model.ChoiceAnswer(1), 1: model.ChoiceAnswer(1)}

	r := Score(qs, answers, Rules{NegativeMark: 1.0 / 3, PassPercentage: 40})
	if r.Score != 4 || r.MaxScore != 10 {
		t.Fatalf("score %v of %v, want 4 of 10", r.Score, r.MaxScore)
	}
	if r.Percentage != 40 || !r.Pass {
		t.Errorf("percentage = %v pass = %v, want 40 and pass", r.Percentage, r.Pass)
	}
}

func TestReview(t *testing.T) {
	qs := paper(3)
	qs[2].Explanation = "b is right"
	items := Review(qs, model.AnswerSheet{0: model.ChoiceAnswer(1), 1: model.ChoiceAnswer(2)})

	want := []model.ReviewStatus{model.ReviewCorrect, model.ReviewWrong, model.ReviewUnattempted}
	for i, it := range items {
		if it.Status != want[i] {
			t.Errorf("item %d status = %s, want %s", i, it.Status, want[i])
		}
		if it.Correct == nil || it.Correct.Option == nil || *it.Correct.Option != 1 {
			t.Errorf("item %d missing key", i)
		}
	}
	if items[2].Selected != nil {
		t.Error("blank question must have no selection")
	}
	if items[2].Explanation != "b is right" {
		t.Error("explanation not carried into review")
	}
}
