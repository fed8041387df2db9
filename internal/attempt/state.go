// Package attempt runs exam attempts: the per-attempt state machine, the
// integrity monitor, the session event loop and the submission dispatcher.
package attempt

import (
	"sort"

	"github.com/google/uuid"
	"github.com/smquiz/quiz-backend/internal/config"
	"github.com/smquiz/quiz-backend/internal/model"
	"github.com/smquiz/quiz-backend/internal/scoring"
)

// State is the mutable record of one attempt. It is not safe for concurrent
// use; Session serializes every call onto its own goroutine.
//
// Every mutator reports whether it took effect. Calls in the wrong phase or
// with an index outside the paper are ignored rather than failing.
type State struct {
	questions   []model.Question
	phase       model.Phase
	current     int
	answers     model.AnswerSheet
	review      map[int]struct{}
	visited     map[int]struct{}
	total       int
	remaining   int
	violations  int
	maxWarnings int

	submitted bool
	trigger   model.Trigger
	result    model.ScoreResult
}

// NewState prepares an attempt over questions in the instructions phase.
// The question slice is owned by the state from here on.
func NewState(questions []model.Question, p config.Policy) *State {
	total := p.DurationSeconds(len(questions))
	return &State{
		questions:   questions,
		phase:       model.PhaseInstructions,
		answers:     model.AnswerSheet{},
		review:      map[int]struct{}{},
		visited:     map[int]struct{}{},
		total:       total,
		remaining:   total,
		maxWarnings: p.MaxWarnings,
	}
}

func (s *State) inBounds(i int) bool {
	return i >= 0 && i < len(s.questions)
}

func (s *State) live() bool {
	return s.phase == model.PhaseInProgress && !s.submitted
}

// Start moves from instructions to in progress. It needs acknowledged to be
// true and only works once.
func (s *State) Start(acknowledged bool) bool {
	if !acknowledged || s.phase != model.PhaseInstructions {
		return false
	}
	s.phase = model.PhaseInProgress
	s.current = 0
	if len(s.questions) > 0 {
		s.visited[0] = struct{}{}
	}
	return true
}

// SelectOption records a for question index and marks it visited. Answers
// of the wrong shape for the question are ignored.
func (s *State) SelectOption(index int, a model.Answer) bool {
	if !s.live() || !s.inBounds(index) || a == nil {
		return false
	}
	if !s.questions[index].Accepts(a) {
		return false
	}
	s.answers[index] = a
	s.visited[index] = struct{}{}
	return true
}

// SetCurrent moves to question index and marks it visited.
func (s *State) SetCurrent(index int) bool {
	if !s.live() || !s.inBounds(index) {
		return false
	}
	s.current = index
	s.visited[index] = struct{}{}
	return true
}

// ToggleReview flips the mark-for-review flag of question index.
func (s *State) ToggleReview(index int) bool {
	if !s.live() || !s.inBounds(index) {
		return false
	}
	if _, ok := s.review[index]; ok {
		delete(s.review, index)
	} else {
		s.review[index] = struct{}{}
	}
	return true
}

// Tick counts one second down. It reports true when the clock has run out
// and the attempt must be submitted.
func (s *State) Tick() bool {
	if !s.live() {
		return false
	}
	if s.remaining > 0 {
		s.remaining--
	}
	return s.remaining == 0
}

// RecordViolation counts one integrity event and reports the new count and
// whether the warning limit has been reached.
func (s *State) RecordViolation() (int, bool) {
	if !s.live() {
		return s.violations, false
	}
	if s.violations < s.maxWarnings {
		s.violations++
	}
	return s.violations, s.violations >= s.maxWarnings
}

// Submit latches the attempt and grades the frozen answers. Only the first
// call succeeds; later calls return the stored result and false.
func (s *State) Submit(trigger model.Trigger, rules scoring.Rules) (model.ScoreResult, bool) {
	if s.submitted || s.phase != model.PhaseInProgress {
		return s.result, false
	}
	s.submitted = true
	s.phase = model.PhaseSubmitted
	s.trigger = trigger

	s.result = scoring.Score(s.questions, s.answers, rules)
	s.result.TimeTakenSeconds = s.TimeTaken()
	return s.result, true
}

// Phase returns the current lifecycle phase.
func (s *State) Phase() model.Phase { return s.phase }

// Current returns the index of the question on screen.
func (s *State) Current() int { return s.current }

// Remaining returns the seconds left on the clock.
func (s *State) Remaining() int { return s.remaining }

// Total returns the seconds allotted to the attempt.
func (s *State) Total() int { return s.total }

// Violations returns the number of counted integrity events.
func (s *State) Violations() int { return s.violations }

// MaxWarnings returns the violation count that ends the attempt.
func (s *State) MaxWarnings() int { return s.maxWarnings }

// Submitted reports whether the attempt has been latched.
func (s *State) Submitted() bool { return s.submitted }

// Trigger returns what submitted the attempt, or "" before submission.
func (s *State) Trigger() model.Trigger { return s.trigger }

// Result returns the graded result once submitted.
func (s *State) Result() (model.ScoreResult, bool) { return s.result, s.submitted }

// TimeTaken is the allotted time minus what is left on the clock.
func (s *State) TimeTaken() int {
	if t := s.total - s.remaining; t > 0 {
		return t
	}
	return 0
}

// Answers returns a copy of the answer sheet.
func (s *State) Answers() model.AnswerSheet { return s.answers.Clone() }

// Questions returns the questions of the attempt. Callers must not modify them.
func (s *State) Questions() []model.Question { return s.questions }

// QuestionIDs returns the question ids in attempt order.
func (s *State) QuestionIDs() []uuid.UUID {
	ids := make([]uuid.UUID, len(s.questions))
	for i := range s.questions {
		ids[i] = s.questions[i].ID
	}
	return ids
}

// Snapshot builds the client view. The answer key is never included.
func (s *State) Snapshot() model.Snapshot {
	qs := make([]model.StudentQuestion, len(s.questions))
	for i := range s.questions {
		qs[i] = s.questions[i].Sanitize()
	}
	snap := model.Snapshot{
		Phase:            s.phase,
		Questions:        qs,
		CurrentIndex:     s.current,
		Answers:          s.answers.Clone(),
		Review:           sortedKeys(s.review),
		Visited:          sortedKeys(s.visited),
		RemainingSeconds: s.remaining,
		TotalSeconds:     s.total,
		ViolationCount:   s.violations,
		MaxWarnings:      s.maxWarnings,
		Trigger:          s.trigger,
	}
	if s.submitted {
		r := s.result
		snap.Result = &r
	}
	return snap
}

func sortedKeys(m map[int]struct{}) []int {
	out := make([]int, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Ints(out)
	return out
}
