package schedule

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestAdd_ValidatesSpec(t *testing.T) {
	tests := []struct {
		spec    string
		wantErr bool
	}{
		{"0 */6 * * *", false},
		{"30 3 * * *", false},
		{"@hourly", false},
		{"@every 15m", false},
		{"", true},
		{"every day", true},
		{"61 * * * *", true},
	}

	for _, tt := range tests {
		t.Run(tt.spec, func(t *testing.T) {
			s := New(nil)
			err := s.Add("job", tt.spec, func(context.Context) error { return nil })
			if (err != nil) != tt.wantErr {
				t.Errorf("Add(%q) error = %v, wantErr %v", tt.spec, err, tt.wantErr)
			}
		})
	}
}

func TestNext(t *testing.T) {
	denver, err := time.LoadLocation("America/Denver")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	s := New(denver)
	noop := func(context.Context) error { return nil }
	if err := s.Add("run", "0 */6 * * *", noop); err != nil {
		t.Fatal(err)
	}
	if err := s.Add("prune", "30 3 * * *", noop); err != nil {
		t.Fatal(err)
	}

	now := time.Date(2024, 3, 1, 7, 15, 0, 0, denver)
	next := s.Next(now)

	if want := time.Date(2024, 3, 1, 12, 0, 0, 0, denver); !next["run"].Equal(want) {
		t.Errorf("next run = %v, want %v", next["run"], want)
	}
	if want := time.Date(2024, 3, 2, 3, 30, 0, 0, denver); !next["prune"].Equal(want) {
		t.Errorf("next prune = %v, want %v", next["prune"], want)
	}
}

func TestRun_NoJobs(t *testing.T) {
	if err := New(nil).Run(context.Background()); err == nil {
		t.Error("expected error with no jobs")
	}
}

func TestRun_ExecutesUntilCancelled(t *testing.T) {
	var ok, failed atomic.Int32
	s := New(nil)
	if err := s.Add("ok", "@every 1s", func(context.Context) error {
		ok.Add(1)
		return nil
	}); err != nil {
		t.Fatal(err)
	}
	if err := s.Add("failing", "@every 1s", func(context.Context) error {
		failed.Add(1)
		return errors.New("boom")
	}); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2500*time.Millisecond)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run() did not return after cancellation")
	}

	if ok.Load() < 1 || failed.Load() < 1 {
		t.Errorf("runs: ok=%d failed=%d, want both >= 1", ok.Load(), failed.Load())
	}
}
