package attempt

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/smquiz/quiz-backend/internal/config"
	"github.com/smquiz/quiz-backend/internal/model"
)

func registryOptions(userID int) Options {
	return Options{
		Candidate: Candidate{ID: userID},
		Paper:     model.PaperRef{SubjectID: uuid.New()},
		Questions: questions(2),
		Policy:    config.DefaultPolicy(),
		Clock:     newFakeClock(),
		Logger:    zerolog.Nop(),
	}
}

func TestRegistryOneOpenAttemptPerUser(t *testing.T) {
	r := NewRegistry(time.Hour, 0, zerolog.Nop())
	t.Cleanup(r.CloseAll)

	first, err := r.Open(registryOptions(1))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := r.Open(registryOptions(1)); !errors.Is(err, ErrAttemptActive) {
		t.Fatalf("second open: err = %v, want ErrAttemptActive", err)
	}
	if _, err := r.Open(registryOptions(2)); err != nil {
		t.Fatalf("other user blocked: %v", err)
	}

	if active, ok := r.Active(1); !ok || active.ID() != first.ID() {
		t.Fatal("active attempt not found")
	}

	first.Start(true)
	first.Submit()

	if _, ok := r.Active(1); ok {
		t.Fatal("submitted attempt still active")
	}
	if got, err := r.Get(first.ID()); err != nil || got != first {
		t.Fatal("submitted attempt not readable during grace period")
	}
	if _, err := r.Open(registryOptions(1)); err != nil {
		t.Fatalf("open after submit: %v", err)
	}
}

func TestRegistryForgetsClosedSessions(t *testing.T) {
	r := NewRegistry(0, 0, zerolog.Nop())

	s, err := r.Open(registryOptions(3))
	if err != nil {
		t.Fatal(err)
	}
	s.Start(true)
	s.Submit()
	<-s.Done()

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if _, err := r.Get(s.ID()); errors.Is(err, ErrAttemptNotFound) {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("closed session still registered")
}

func TestRegistryDropsIdleAttempts(t *testing.T) {
	r := NewRegistry(time.Hour, 20*time.Millisecond, zerolog.Nop())

	s, err := r.Open(registryOptions(4))
	if err != nil {
		t.Fatal(err)
	}
	select {
	case <-s.Done():
	case <-time.After(time.Second):
		t.Fatal("idle attempt was not dropped")
	}
}
