package attempt

import (
	"testing"

	"github.com/google/uuid"
	"github.com/smquiz/quiz-backend/internal/config"
	"github.com/smquiz/quiz-backend/internal/model"
	"github.com/smquiz/quiz-backend/internal/scoring"
)

// questions builds n mcq questions whose key is always option 1.
func questions(n int) []model.Question {
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

func started(t *testing.T, n int) *State {
	t.Helper()
	s := NewState(questions(n), config.DefaultPolicy())
	if !s.Start(true) {
		t.Fatal("Start(true) rejected")
	}
	return s
}

func TestStateStartNeedsAcknowledgement(t *testing.T) {
	s := NewState(questions(5), config.DefaultPolicy())
	if s.Phase() != model.PhaseInstructions {
		t.Fatalf("phase = %s", s.Phase())
	}
	if s.Remaining() != 210 || s.Total() != 210 {
		t.Fatalf("timer = %d/%d, want 210", s.Remaining(), s.Total())
	}

	if s.SelectOption(0, model.ChoiceAnswer(1)) || s.SetCurrent(1) || s.Tick() {
		t.Error("input accepted before start")
	}
	if s.Start(false) {
		t.Fatal("start without acknowledgement accepted")
	}
	if !s.Start(true) {
		t.Fatal("start rejected")
	}
	if s.Start(true) {
		t.Error("second start accepted")
	}
	if snap := s.Snapshot(); len(snap.Visited) != 1 || snap.Visited[0] != 0 {
		t.Errorf("first question not visited: %v", snap.Visited)
	}
}

func TestStateNavigationBounds(t *testing.T) {
	s := started(t, 5)

	if !s.SetCurrent(3) || s.Current() != 3 {
		t.Fatal("valid navigation rejected")
	}
	for _, idx := range []int{7, 5, -1} {
		if s.SetCurrent(idx) {
			t.Errorf("SetCurrent(%d) accepted", idx)
		}
		if s.Current() != 3 {
			t.Errorf("SetCurrent(%d) moved current to %d", idx, s.Current())
		}
	}
	if s.ToggleReview(9) || s.SelectOption(-2, model.ChoiceAnswer(0)) {
		t.Error("out of range mutation accepted")
	}
}

func TestStateSelectAndReview(t *testing.T) {
	s := started(t, 4)

	if !s.SelectOption(2, model.ChoiceAnswer(3)) {
		t.Fatal("select rejected")
	}
	if s.SelectOption(2, model.NumericAnswer(3)) {
		t.Error("numeric answer accepted for mcq")
	}
	if s.SelectOption(1, model.ChoiceAnswer(4)) {
		t.Error("option index 4 accepted")
	}
	if !s.SelectOption(2, model.ChoiceAnswer(1)) {
		t.Fatal("answer change rejected")
	}

	s.ToggleReview(1)
	s.ToggleReview(3)
	s.ToggleReview(1)

	snap := s.Snapshot()
	if got := snap.Answers[2]; got != model.ChoiceAnswer(1) {
		t.Errorf("answer = %v", got)
	}
	if len(snap.Review) != 1 || snap.Review[0] != 3 {
		t.Errorf("review = %v, want [3]", snap.Review)
	}
	if len(snap.Visited) != 2 || snap.Visited[1] != 2 {
		t.Errorf("visited = %v, want [0 2]", snap.Visited)
	}
}

func TestStateTickExpires(t *testing.T) {
	s := started(t, 1)
	for i := 0; i < 41; i++ {
		if s.Tick() {
			t.Fatalf("expired early at tick %d", i+1)
		}
	}
	if !s.Tick() {
		t.Fatal("did not expire at 42 seconds")
	}
	if s.Remaining() != 0 {
		t.Errorf("remaining = %d", s.Remaining())
	}
}

func TestStateViolationLimit(t *testing.T) {
	s := started(t, 2)
	for i := 1; i < 3; i++ {
		if n, limit := s.RecordViolation(); n != i || limit {
			t.Fatalf("violation %d: got (%d, %v)", i, n, limit)
		}
	}
	if n, limit := s.RecordViolation(); n != 3 || !limit {
		t.Fatalf("third violation: got (%d, %v)", n, limit)
	}
}

func TestStateSubmitLatches(t *testing.T) {
	rules := scoring.RulesFrom(config.DefaultPolicy())
	s := started(t, 5)
	s.SelectOption(0, model.ChoiceAnswer(1))
	s.SelectOption(1, model.ChoiceAnswer(1))
	s.SelectOption(2, model.ChoiceAnswer(1))
	s.SelectOption(3, model.ChoiceAnswer(2))
	for i := 0; i < 30; i++ {
		s.Tick()
	}

	res, ok := s.Submit(model.TriggerManual, rules)
	if !ok {
		t.Fatal("first submit rejected")
	}
	if res.Score != 2.67 || res.Percentage != 53.33 || !res.Pass || res.TimeTakenSeconds != 30 {
		t.Errorf("unexpected result %+v", res)
	}

	before := s.Snapshot()
	if _, ok := s.Submit(model.TriggerTimeout, rules); ok {
		t.Error("second submit accepted")
	}
	if s.Trigger() != model.TriggerManual {
		t.Errorf("trigger overwritten: %s", s.Trigger())
	}
	if s.SelectOption(4, model.ChoiceAnswer(1)) || s.SetCurrent(2) || s.ToggleReview(0) || s.Tick() {
		t.Error("mutation accepted after submit")
	}
	if n, limit := s.RecordViolation(); n != 0 || limit {
		t.Error("violation counted after submit")
	}

	after := s.Snapshot()
	if len(after.Answers) != len(before.Answers) || after.CurrentIndex != before.CurrentIndex ||
		after.RemainingSeconds != before.RemainingSeconds || len(after.Review) != len(before.Review) {
		t.Error("state changed after submit")
	}
}

func TestStateSubmitBeforeStartIsRejected(t *testing.T) {
	s := NewState(questions(3), config.DefaultPolicy())
	if _, ok := s.Submit(model.TriggerManual, scoring.RulesFrom(config.DefaultPolicy())); ok {
		t.Fatal("submit accepted in instructions phase")
	}
}
