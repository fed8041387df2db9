package attempt

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/smquiz/quiz-backend/internal/model"
)

type blockingDeliverer struct {
	mu      sync.Mutex
	release chan struct{}
	jobs    []model.DeliveryJob
	err     error
}

func (b *blockingDeliverer) Deliver(ctx context.Context, job model.DeliveryJob) error {
	select {
	case <-b.release:
	case <-ctx.Done():
		return ctx.Err()
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.jobs = append(b.jobs, job)
	return b.err
}

func submission() model.Submission {
	return model.Submission{AttemptID: uuid.New(), UserID: 1, Email: "s@example.com", SubjectName: "Physics"}
}

func TestDispatchDoesNotWaitForDelivery(t *testing.T) {
	store := &memoryStore{}
	del := &blockingDeliverer{release: make(chan struct{}), err: errors.New("smtp down")}
	d := NewDispatcher(store, del, zerolog.Nop())

	returned := make(chan error, 1)
	go func() { returned <- d.Dispatch(context.Background(), submission(), nil) }()

	select {
	case err := <-returned:
		if err != nil {
			t.Fatalf("Dispatch: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Dispatch blocked on delivery")
	}
	if store.count() != 1 {
		t.Fatalf("store saved %d", store.count())
	}

	close(del.release)
	d.Wait()
	if len(del.jobs) != 1 {
		t.Fatalf("deliverer got %d jobs", len(del.jobs))
	}
}

// flakyStore fails its first failures saves (all of them when negative).
type flakyStore struct {
	mu          sync.Mutex
	failures    int
	err         error
	calls       int
	saved       int
	noDeadlines int
}

func (f *flakyStore) Save(ctx context.Context, _ model.Submission) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if _, ok := ctx.Deadline(); !ok {
		f.noDeadlines++
	}
	if f.failures != 0 {
		if f.failures > 0 {
			f.failures--
		}
		return f.err
	}
	f.saved++
	return nil
}

func TestDispatchDeliversWhenSaveFails(t *testing.T) {
	store := &flakyStore{failures: -1, err: errors.New("redis: i/o timeout")}
	del := &blockingDeliverer{release: make(chan struct{})}
	close(del.release)
	d := NewDispatcher(store, del, zerolog.Nop())
	d.retryDelay = time.Millisecond

	if err := d.Dispatch(context.Background(), submission(), nil); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	d.Wait()

	if len(del.jobs) != 1 {
		t.Errorf("deliverer got %d jobs, want 1", len(del.jobs))
	}
	if store.calls != saveAttempts {
		t.Errorf("save tried %d times, want %d", store.calls, saveAttempts)
	}
	if store.noDeadlines != 0 {
		t.Errorf("%d saves ran without a deadline", store.noDeadlines)
	}
}

func TestDispatchRetriesFailedSave(t *testing.T) {
	store := &flakyStore{failures: 2, err: errors.New("redis: connection refused")}
	d := NewDispatcher(store, nil, zerolog.Nop())
	d.retryDelay = time.Millisecond

	if err := d.Dispatch(context.Background(), submission(), nil); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	d.Wait()

	if store.saved != 1 || store.calls != 3 {
		t.Errorf("saved=%d calls=%d, want 1 and 3", store.saved, store.calls)
	}
}

func TestDispatchAlreadyRecorded(t *testing.T) {
	store := &flakyStore{failures: -1, err: ErrAlreadyRecorded}
	del := &blockingDeliverer{release: make(chan struct{})}
	close(del.release)
	d := NewDispatcher(store, del, zerolog.Nop())

	err := d.Dispatch(context.Background(), submission(), nil)
	if !errors.Is(err, ErrAlreadyRecorded) {
		t.Fatalf("err = %v, want ErrAlreadyRecorded", err)
	}
	d.Wait()
	if len(del.jobs) != 0 || store.calls != 1 {
		t.Errorf("jobs=%d calls=%d, want no delivery and no retry", len(del.jobs), store.calls)
	}
}

func TestDispatchSkipsDeliveryWithoutEmail(t *testing.T) {
	store := &memoryStore{}
	del := &blockingDeliverer{release: make(chan struct{})}
	close(del.release)
	d := NewDispatcher(store, del, zerolog.Nop())

	sub := submission()
	sub.Email = ""
	if err := d.Dispatch(context.Background(), sub, nil); err != nil {
		t.Fatal(err)
	}
	d.Wait()
	if len(del.jobs) != 0 {
		t.Error("delivered without an address")
	}
}
