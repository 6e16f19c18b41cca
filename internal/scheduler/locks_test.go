package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/directory/internal/clock"
	obsmetrics "github.com/smallbiznis/directory/internal/observability/metrics"
	"go.uber.org/zap"
)

type fakeLocker struct {
	mu        sync.Mutex
	available bool
	keepLease bool
	extends   int
	released  []string
}

func (f *fakeLocker) TryLock(_ context.Context, key string, _ time.Duration) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.available {
		return "", false, nil
	}
	f.available = false
	return "token-" + key, true, nil
}

func (f *fakeLocker) Extend(context.Context, string, string, time.Duration) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.extends++
	return f.keepLease, nil
}

func (f *fakeLocker) Release(_ context.Context, key, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.released = append(f.released, key+"="+token)
	f.available = true
	return nil
}

func newLockedScheduler(locker *fakeLocker, ttl time.Duration) *Scheduler {
	node, _ := snowflake.NewNode(1)
	return &Scheduler{
		log:    zap.NewNop(),
		genID:  node,
		clock:  clock.NewFakeClock(time.Now()),
		locker: locker,
		cfg:    Config{LockTTL: ttl},
	}
}

func TestWithJobLockSkipsWhenHeldElsewhere(t *testing.T) {
	locker := &fakeLocker{available: false}
	s := newLockedScheduler(locker, time.Minute)

	ran := false
	err := s.withJobLock(context.Background(), JobExpiredPayments, func(context.Context) error {
		ran = true
		return nil
	})
	if err != nil || ran {
		t.Fatalf("expected silent skip, ran=%v err=%v", ran, err)
	}
}

func TestWithJobLockReleasesAfterRun(t *testing.T) {
	locker := &fakeLocker{available: true, keepLease: true}
	s := newLockedScheduler(locker, time.Minute)

	boom := errors.New("boom")
	err := s.withJobLock(context.Background(), JobPaymentReminders, func(context.Context) error {
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected job error, got %v", err)
	}
	want := jobLockKey(JobPaymentReminders) + "=token-" + jobLockKey(JobPaymentReminders)
	if len(locker.released) != 1 || locker.released[0] != want {
		t.Fatalf("unexpected releases %v", locker.released)
	}
}

func TestWithJobLockCancelsJobWhenLeaseLost(t *testing.T) {
	locker := &fakeLocker{available: true, keepLease: false}
	s := newLockedScheduler(locker, 20*time.Millisecond)

	err := s.withJobLock(context.Background(), JobSaturationExport, func(ctx context.Context) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(2 * time.Second):
			return errors.New("job was not cancelled")
		}
	})
	if !errors.Is(err, obsmetrics.ErrJobLeaseLost) || !errors.Is(err, context.Canceled) {
		t.Fatalf("expected lost lease cancellation, got %v", err)
	}
	if locker.extends == 0 {
		t.Fatal("lease was never renewed")
	}
}
