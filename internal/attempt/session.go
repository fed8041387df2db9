package attempt

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/smquiz/quiz-backend/internal/config"
	"github.com/smquiz/quiz-backend/internal/model"
	"github.com/smquiz/quiz-backend/internal/scoring"
)

// ErrSessionClosed is returned by calls on a session whose loop has stopped.
var ErrSessionClosed = errors.New("attempt session closed")

// Candidate identifies the student taking an attempt.
type Candidate struct {
	ID    int
	Name  string
	Email string
}

// Notifier receives events for the student's screen. Calls are made from
// the session goroutine and must not block.
type Notifier interface {
	Started(snap model.Snapshot)
	Tick(remaining int)
	Warning(count, max int)
	Submitted(review model.Review)
}

// Journal records attempt activity for persistence and live monitoring.
// Calls are made from the session goroutine and must return quickly.
type Journal interface {
	Started(info Info)
	Answered(ev model.AnswerEvent)
	Violation(ev model.ViolationEvent)
	Submitted(sub model.Submission)
}

// Info describes a started attempt.
type Info struct {
	AttemptID    uuid.UUID
	Candidate    Candidate
	Paper        model.PaperRef
	Title        string
	Questions    int
	TotalSeconds int
	StartedAt    time.Time
}

// Options configures a new Session.
type Options struct {
	ID         uuid.UUID
	Candidate  Candidate
	Paper      model.PaperRef
	Title      string
	Questions  []model.Question
	Policy     config.Policy
	Clock      Clock
	Journal    Journal
	Dispatcher *Dispatcher
	Logger     zerolog.Logger
	// OnSubmitted runs on the session goroutine right after submission,
	// before the notifier is told.
	OnSubmitted func(*Session)
}

// Session owns one attempt. Student input, timer ticks and integrity
// signals all pass through a single goroutine, so State never sees
// concurrent mutation and the first submission trigger wins.
type Session struct {
	id        uuid.UUID
	candidate Candidate
	paper     model.PaperRef
	title     string
	createdAt time.Time

	state      *State
	monitor    *Monitor
	rules      scoring.Rules
	clock      Clock
	ticker     Ticker
	notifier   Notifier
	journal    Journal
	dispatcher *Dispatcher

	startedAt   time.Time
	submittedAt time.Time
	review      *model.Review
	onSubmitted func(*Session)

	mailbox   chan func()
	quit      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
	log       zerolog.Logger
}

// NewSession creates a session in the instructions phase and starts its loop.
func NewSession(o Options) *Session {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	if o.Clock == nil {
		o.Clock = SystemClock{}
	}
	if o.Journal == nil {
		o.Journal = NopJournal{}
	}

	s := &Session{
		id:          o.ID,
		candidate:   o.Candidate,
		paper:       o.Paper,
		title:       o.Title,
		createdAt:   o.Clock.Now(),
		state:       NewState(o.Questions, o.Policy),
		monitor:     NewMonitor(o.Policy),
		rules:       scoring.RulesFrom(o.Policy),
		clock:       o.Clock,
		journal:     o.Journal,
		dispatcher:  o.Dispatcher,
		onSubmitted: o.OnSubmitted,
		mailbox:     make(chan func()),
		quit:        make(chan struct{}),
		done:        make(chan struct{}),
		log: o.Logger.With().
			Str("attempt_id", o.ID.String()).
			Int("user_id", o.Candidate.ID).
			Logger(),
	}

	go s.run()
	return s
}

// ID returns the attempt id.
func (s *Session) ID() uuid.UUID { return s.id }

// Candidate returns the student taking the attempt.
func (s *Session) Candidate() Candidate { return s.candidate }

// Paper returns the subject or set the attempt was built from.
func (s *Session) Paper() model.PaperRef { return s.paper }

// Title returns the display name of the paper.
func (s *Session) Title() string { return s.title }

// CreatedAt returns when the session was opened.
func (s *Session) CreatedAt() time.Time { return s.createdAt }

// Done is closed when the session loop has stopped.
func (s *Session) Done() <-chan struct{} { return s.done }

// Close stops the loop. Pending timers stop with it; an attempt closed
// before submission is discarded.
func (s *Session) Close() {
	s.closeOnce.Do(func() { close(s.quit) })
}

// ─── Event loop ─────────────────────────────────────────────────────

func (s *Session) run() {
	defer close(s.done)
	for {
		select {
		case fn := <-s.mailbox:
			fn()
		case <-s.tickC():
			s.onTick()
		case <-s.quit:
			s.stopTicker()
			s.monitor.Disarm()
			return
		}
	}
}

// do runs fn on the session goroutine and waits for it to finish.
func (s *Session) do(fn func()) error {
	finished := make(chan struct{})
	job := func() {
		defer close(finished)
		fn()
	}

	select {
	case s.mailbox <- job:
	case <-s.done:
		return ErrSessionClosed
	}

	select {
	case <-finished:
		return nil
	case <-s.done:
		// The loop may have run the job just before stopping.
		select {
		case <-finished:
			return nil
		default:
			return ErrSessionClosed
		}
	}
}

func (s *Session) tickC() <-chan time.Time {
	if s.ticker == nil {
		return nil
	}
	return s.ticker.C()
}

func (s *Session) stopTicker() {
	if s.ticker != nil {
		s.ticker.Stop()
		s.ticker = nil
	}
}

func (s *Session) onTick() {
	if s.state.Tick() {
		s.submit(model.TriggerTimeout)
		return
	}
	if s.notifier != nil {
		s.notifier.Tick(s.state.Remaining())
	}
}

// ─── Commands ───────────────────────────────────────────────────────

// Attach routes screen events to n, replacing any previous notifier.
func (s *Session) Attach(n Notifier) error {
	return s.do(func() { s.notifier = n })
}

// Detach stops routing events to n if it is still attached.
func (s *Session) Detach(n Notifier) {
	_ = s.do(func() {
		if s.notifier == n {
			s.notifier = nil
		}
	})
}

// Start begins the attempt once the instructions are acknowledged. The
// started event asks the client to enter fullscreen; the attempt does not
// depend on that succeeding.
func (s *Session) Start(acknowledged bool) (bool, error) {
	var ok bool
	err := s.do(func() {
		if ok = s.state.Start(acknowledged); !ok {
			return
		}
		s.startedAt = s.clock.Now()
		s.monitor.Arm()
		if s.state.Remaining() > 0 {
			s.ticker = s.clock.NewTicker(time.Second)
		}

		s.journal.Started(Info{
			AttemptID:    s.id,
			Candidate:    s.candidate,
			Paper:        s.paper,
			Title:        s.title,
			Questions:    len(s.state.Questions()),
			TotalSeconds: s.state.Total(),
			StartedAt:    s.startedAt,
		})
		if s.notifier != nil {
			s.notifier.Started(s.snapshot())
		}
		s.log.Info().Int("total_seconds", s.state.Total()).Msg("Attempt started")

		// A paper with no questions has nothing to wait for.
		if s.state.Remaining() == 0 {
			s.submit(model.TriggerTimeout)
		}
	})
	return ok, err
}

// Select records an answer for question index.
func (s *Session) Select(index int, a model.Answer) (bool, error) {
	var ok bool
	err := s.do(func() {
		if ok = s.state.SelectOption(index, a); !ok {
			return
		}
		q := s.state.Questions()[index]
		s.journal.Answered(model.AnswerEvent{
			AttemptID:     s.id,
			UserID:        s.candidate.ID,
			SubjectID:     s.paper.SubjectID,
			QuestionID:    q.ID,
			QuestionIndex: index,
			Answer:        model.EncodeAnswer(a),
			RecordedAt:    s.clock.Now(),
		})
	})
	return ok, err
}

// Navigate moves to question index.
func (s *Session) Navigate(index int) (bool, error) {
	var ok bool
	err := s.do(func() { ok = s.state.SetCurrent(index) })
	return ok, err
}

// ToggleReview flips the review flag of question index.
func (s *Session) ToggleReview(index int) (bool, error) {
	var ok bool
	err := s.do(func() { ok = s.state.ToggleReview(index) })
	return ok, err
}

// Signal feeds an environment signal to the integrity monitor and reports
// whether it was counted.
func (s *Session) Signal(sig Signal) (bool, error) {
	var counted bool
	err := s.do(func() {
		if !s.monitor.Observe(sig, s.clock.Now()) {
			return
		}
		count, limit := s.state.RecordViolation()
		counted = true

		s.journal.Violation(model.ViolationEvent{
			AttemptID:  s.id,
			UserID:     s.candidate.ID,
			SubjectID:  s.paper.SubjectID,
			Kind:       string(sig),
			Counted:    true,
			Count:      count,
			RecordedAt: s.clock.Now(),
		})
		s.log.Warn().Str("signal", string(sig)).Int("count", count).Msg("Integrity violation")

		if limit {
			s.submit(model.TriggerViolationLimit)
			return
		}
		if s.notifier != nil {
			s.notifier.Warning(count, s.state.MaxWarnings())
		}
	})
	return counted, err
}

// Block records a suppressed clipboard, context menu or shortcut action.
// It does not change the attempt.
func (s *Session) Block(b BlockedAction) error {
	return s.do(func() {
		if !s.monitor.Armed() {
			return
		}
		s.journal.Violation(model.ViolationEvent{
			AttemptID:  s.id,
			UserID:     s.candidate.ID,
			SubjectID:  s.paper.SubjectID,
			Kind:       string(b),
			Counted:    false,
			Count:      s.state.Violations(),
			RecordedAt: s.clock.Now(),
		})
	})
}

// Submit is the student's manual submission. It reports false when the
// attempt was already submitted or never started.
func (s *Session) Submit() (bool, error) {
	var ok bool
	err := s.do(func() { ok = s.submit(model.TriggerManual) })
	return ok, err
}

// Snapshot returns the current client view of the attempt.
func (s *Session) Snapshot() (model.Snapshot, error) {
	var snap model.Snapshot
	err := s.do(func() { snap = s.snapshot() })
	return snap, err
}

// Phase returns the lifecycle phase.
func (s *Session) Phase() (model.Phase, error) {
	var p model.Phase
	err := s.do(func() { p = s.state.Phase() })
	return p, err
}

// Review returns the graded review, or nil before submission.
func (s *Session) Review() (*model.Review, error) {
	var r *model.Review
	err := s.do(func() { r = s.review })
	return r, err
}

func (s *Session) snapshot() model.Snapshot {
	snap := s.state.Snapshot()
	snap.AttemptID = s.id
	snap.Paper = s.paper
	snap.Title = s.title
	return snap
}

// submit freezes the attempt, grades it and hands the result on. Only the
// first trigger to arrive gets past the latch in State.Submit.
func (s *Session) submit(trigger model.Trigger) bool {
	result, ok := s.state.Submit(trigger, s.rules)
	if !ok {
		return false
	}
	s.stopTicker()
	s.monitor.Disarm()
	s.submittedAt = s.clock.Now()

	questions := s.state.Questions()
	answers := s.state.Answers()
	items := scoring.Review(questions, answers)

	review := model.Review{
		AttemptID:   s.id,
		SubjectName: s.title,
		Trigger:     trigger,
		Result:      result,
		Items:       items,
	}
	s.review = &review

	// The user's slot is free before the client hears of the submission, so
	// a follow-up attempt is never refused.
	if s.onSubmitted != nil {
		s.onSubmitted(s)
	}
	if s.notifier != nil {
		s.notifier.Submitted(review)
	}

	sub := model.Submission{
		AttemptID:   s.id,
		UserID:      s.candidate.ID,
		UserName:    s.candidate.Name,
		Email:       s.candidate.Email,
		Paper:       s.paper,
		SubjectName: s.title,
		Trigger:     trigger,
		Result:      result,
		Answers:     answers,
		QuestionIDs: s.state.QuestionIDs(),
		Violations:  s.state.Violations(),
		StartedAt:   s.startedAt,
		SubmittedAt: s.submittedAt,
	}
	s.journal.Submitted(sub)

	if s.dispatcher != nil {
		if err := s.dispatcher.Dispatch(context.Background(), sub, items); err != nil {
			s.log.Warn().Err(err).Msg("Result not dispatched")
		}
	}

	s.log.Info().
		Str("trigger", string(trigger)).
		Float64("score", result.Score).
		Float64("percentage", result.Percentage).
		Msg("Attempt submitted")
	return true
}

// NopJournal discards everything.
type NopJournal struct{}

func (NopJournal) Started(Info)                   {}
func (NopJournal) Answered(model.AnswerEvent)     {}
func (NopJournal) Violation(model.ViolationEvent) {}
func (NopJournal) Submitted(model.Submission)     {}
