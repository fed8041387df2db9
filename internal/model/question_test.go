package model

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
)

func choice(answer int) *Question {
	return &Question{
		ID:        uuid.New(),
		SubjectID: uuid.New(),
		Title:     "What is 2 + 2?",
		Marks:     1,
		Body:      ChoiceBody{Options: []string{"1", "2", "3", "4"}, Answer: answer},
	}
}

func TestQuestionValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(q *Question)
		wantErr string
	}{
		{"valid mcq", func(q *Question) {}, ""},
		{"missing title", func(q *Question) { q.Title = "  " }, "title"},
		{"missing subject", func(q *Question) { q.SubjectID = uuid.Nil }, "subject_id"},
		{"three options", func(q *Question) {
			q.Body = ChoiceBody{Options: []string{"a", "b", "c"}, Answer: 0}
		}, "options"},
		{"blank option", func(q *Question) {
			q.Body = ChoiceBody{Options: []string{"a", "", "c", "d"}, Answer: 0}
		}, "options"},
		{"answer out of range", func(q *Question) {
			q.Body = ChoiceBody{Options: []string{"a", "b", "c", "d"}, Answer: 4}
		}, "answer"},
		{"output without code", func(q *Question) {
			q.Body = OutputBody{Options: []string{"a", "b", "c", "d"}, Answer: 1}
		}, "code"},
		{"output with code", func(q *Question) {
			q.Body = OutputBody{Code: CodeSnippet{Content: "print(1)"}, Options: []string{"a", "b", "c", "d"}, Answer: 1}
		}, ""},
		{"integer", func(q *Question) { q.Body = IntegerBody{Answer: -7} }, ""},
		{"no body", func(q *Question) { q.Body = nil }, "type"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := choice(3)
			tt.mutate(q)
			err := q.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			var qe *QuestionError
			if !errors.As(err, &qe) {
				t.Fatalf("expected QuestionError, got %v", err)
			}
			if qe.Field != tt.wantErr {
				t.Errorf("field = %q, want %q", qe.Field, tt.wantErr)
			}
		})
	}
}

func TestQuestionJudgeAndAccepts(t *testing.T) {
	q := choice(3)
	if !q.Judge(ChoiceAnswer(3)) {
		t.Error("expected correct option to be judged correct")
	}
	if q.Judge(ChoiceAnswer(2)) {
		t.Error("expected wrong option to be judged wrong")
	}
	if q.Judge(NumericAnswer(3)) {
		t.Error("numeric answer must not match a choice key")
	}
	if q.Accepts(NumericAnswer(1)) || q.Accepts(ChoiceAnswer(4)) || q.Accepts(ChoiceAnswer(-1)) {
		t.Error("mcq must only accept option indices 0..3")
	}

	n := &Question{Body: IntegerBody{Answer: 42}}
	if !n.Judge(NumericAnswer(42)) || n.Judge(NumericAnswer(41)) {
		t.Error("integer judging mismatch")
	}
	if n.Accepts(ChoiceAnswer(0)) {
		t.Error("integer question must not accept option indices")
	}
}

func TestSanitizeDropsAnswerKey(t *testing.T) {
	q := &Question{
		ID:          uuid.New(),
		SubjectID:   uuid.New(),
		Title:       "Output?",
		Explanation: "the loop runs twice",
		Body: OutputBody{
			Code:    CodeSnippet{Content: "for i in range(2): print(i)", Language: "python"},
			Options: []string{"0 1", "1 2", "0", "error"},
			Answer:  0,
		},
	}

	raw, err := json.Marshal(q.Sanitize())
	if err != nil {
		t.Fatal(err)
	}
	s := string(raw)
	for _, leaked := range []string{"answer", "explanation", "the loop runs twice"} {
		if strings.Contains(s, leaked) {
			t.Errorf("sanitized question leaks %q: %s", leaked, s)
		}
	}
	if !strings.Contains(s, `"language":"python"`) {
		t.Errorf("code snippet missing: %s", s)
	}
	if q.Sanitize().Marks != 1 {
		t.Error("unset marks should be served as 1")
	}
}

func TestQuestionJSONKeepsVariant(t *testing.T) {
	in := Question{
		ID:        uuid.New(),
		SubjectID: uuid.New(),
		Title:     "Largest prime below 10?",
		Marks:     2,
		Body:      IntegerBody{Answer: 7},
	}
	raw, err := json.Marshal(in)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(raw), `"type":"integer"`) {
		t.Fatalf("missing discriminator: %s", raw)
	}

	var out Question
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatal(err)
	}
	body, ok := out.Body.(IntegerBody)
	if !ok || body.Answer != 7 {
		t.Fatalf("body = %#v, want IntegerBody{7}", out.Body)
	}
}

func TestQuestionRequestToQuestion(t *testing.T) {
	req := QuestionRequest{
		SubjectID: uuid.New(),
		Type:      QuestionTypeMCQ,
		Title:     " Capital of France ",
		Options:   []string{"Paris", "Rome", "Berlin", "Madrid"},
		Answer:    json.RawMessage(`0`),
	}
	q, err := req.ToQuestion()
	if err != nil {
		t.Fatal(err)
	}
	if q.Title != "Capital of France" || q.Marks != 1 {
		t.Errorf("unexpected question %+v", q)
	}

	req.Answer = json.RawMessage(`"zero"`)
	if _, err := req.ToQuestion(); err == nil {
		t.Error("expected error for non-numeric option index")
	}

	req.Type = "essay"
	if _, err := req.ToQuestion(); err == nil {
		t.Error("expected error for unknown type")
	}
}

func TestAnswerSheetJSON(t *testing.T) {
	sheet := AnswerSheet{0: ChoiceAnswer(2), 3: NumericAnswer(-5)}
	raw, err := json.Marshal(sheet)
	if err != nil {
		t.Fatal(err)
	}

	var out AnswerSheet
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatal(err)
	}
	if out[0] != ChoiceAnswer(2) || out[3] != NumericAnswer(-5) || len(out) != 2 {
		t.Fatalf("decoded %v from %s", out, raw)
	}

	if err := json.Unmarshal([]byte(`{"1":{}}`), &out); !errors.Is(err, ErrEmptyAnswer) {
		t.Errorf("expected ErrEmptyAnswer, got %v", err)
	}
}
