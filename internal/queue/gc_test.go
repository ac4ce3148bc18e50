package queue

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

type mockDLQPurger struct {
	purgeFunc func(ctx context.Context, retention time.Duration) (int, error)
}

var _ DLQPurger = (*mockDLQPurger)(nil)

func (m *mockDLQPurger) PurgeOlderThan(ctx context.Context, retention time.Duration) (int, error) {
	if m.purgeFunc != nil {
		return m.purgeFunc(ctx, retention)
	}
	return 0, nil
}

func TestGarbageCollector_Collect(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		purger  DLQPurger
		wantErr bool
	}{
		{name: "nil purger", purger: nil},
		{
			name: "purges with configured retention",
			purger: &mockDLQPurger{purgeFunc: func(_ context.Context, retention time.Duration) (int, error) {
				if retention != 24*time.Hour {
					return 0, errors.New("unexpected retention")
				}
				return 3, nil
			}},
		},
		{
			name: "purger error",
			purger: &mockDLQPurger{purgeFunc: func(context.Context, time.Duration) (int, error) {
				return 0, errors.New("purge failed")
			}},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			gc := NewGarbageCollector(tt.purger, time.Minute, 24*time.Hour, nil)
			err := gc.collect(context.Background())
			if (err != nil) != tt.wantErr {
				t.Errorf("collect() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestGarbageCollector_Start_RunsOnTick(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	ctx, cancel := context.WithCancel(context.Background())
	mock := &mockDLQPurger{purgeFunc: func(context.Context, time.Duration) (int, error) {
		if calls.Add(1) == 2 {
			cancel()
		}
		return 1, nil
	}}

	gc := NewGarbageCollector(mock, 5*time.Millisecond, time.Hour, nil)
	if err := gc.Start(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Start() = %v, want context.Canceled", err)
	}
	if calls.Load() < 2 {
		t.Errorf("expected at least 2 purge passes, got %d", calls.Load())
	}
}

func TestGarbageCollector_Start_StopsOnContextCancel(t *testing.T) {
	t.Parallel()

	gc := NewGarbageCollector(&mockDLQPurger{}, 24*time.Hour, time.Hour, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := gc.Start(ctx); err == nil {
		t.Error("expected context cancelled error")
	}
}

func TestGarbageCollector_Start_PurgesImmediately(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	var calls atomic.Int32
	mock := &mockDLQPurger{purgeFunc: func(context.Context, time.Duration) (int, error) {
		calls.Add(1)
		cancel()
		return 0, errors.New("channel closed")
	}}

	// The interval never elapses, so the only pass is the startup one.
	gc := NewGarbageCollector(mock, 24*time.Hour, time.Hour, nil)
	if err := gc.Start(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Start() = %v, want context.Canceled", err)
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("expected one startup pass, got %d", got)
	}
}
