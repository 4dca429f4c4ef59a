package backoff

import (
	"testing"
	"time"
)

func TestExponentialGrowth(t *testing.T) {
	s := Exponential{}

	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 100 * time.Millisecond},
		{1, 200 * time.Millisecond},
		{2, 400 * time.Millisecond},
		{3, 800 * time.Millisecond},
	}
	for _, tc := range cases {
		got := s.Calculate(tc.attempt, 100*time.Millisecond, 10*time.Second, 2.0, 0)
		if got != tc.want {
			t.Errorf("Calculate(%d) = %v, want %v", tc.attempt, got, tc.want)
		}
	}
}

func TestExponentialCap(t *testing.T) {
	s := Exponential{}

	got := s.Calculate(20, 100*time.Millisecond, 2*time.Second, 2.0, 0)
	if got != 2*time.Second {
		t.Errorf("Expected cap at 2s, got %v", got)
	}
}

func TestExponentialOverflowGuard(t *testing.T) {
	s := Exponential{}

	got := s.Calculate(1000, time.Second, time.Minute, 2.0, 0)
	if got != time.Minute {
		t.Errorf("Expected huge attempts capped at max, got %v", got)
	}
}

func TestExponentialNegativeAttempt(t *testing.T) {
	s := Exponential{}

	got := s.Calculate(-5, 100*time.Millisecond, time.Second, 2.0, 0)
	if got != 100*time.Millisecond {
		t.Errorf("Expected initial delay for negative attempt, got %v", got)
	}
}

func TestExponentialJitterBounds(t *testing.T) {
	s := Exponential{}
	base := 100 * time.Millisecond
	max := 10 * time.Second

	for i := 0; i < 100; i++ {
		got := s.Calculate(1, base, max, 2.0, 0.5)
		lower := 200 * time.Millisecond
		upper := 300 * time.Millisecond
		if got < lower || got > upper {
			t.Fatalf("Jittered delay %v outside [%v, %v]", got, lower, upper)
		}
	}
}

func TestExponentialJitterClamped(t *testing.T) {
	s := Exponential{}

	// Out-of-range jitter values are clamped, not rejected.
	got := s.Calculate(0, 100*time.Millisecond, time.Second, 2.0, -3)
	if got != 100*time.Millisecond {
		t.Errorf("Expected negative jitter clamped to 0, got %v", got)
	}

	for i := 0; i < 50; i++ {
		got := s.Calculate(0, 100*time.Millisecond, time.Second, 2.0, 7)
		if got < 100*time.Millisecond || got > 200*time.Millisecond {
			t.Fatalf("Expected jitter>1 clamped to 1, got %v", got)
		}
	}
}

func TestDecorrelatedJitterFirstAttempt(t *testing.T) {
	s := DecorrelatedJitter{}

	got := s.Calculate(0, 100*time.Millisecond, time.Minute, 0, 0)
	if got != 100*time.Millisecond {
		t.Errorf("Expected initial delay on attempt 0, got %v", got)
	}
}

func TestDecorrelatedJitterBounds(t *testing.T) {
	s := DecorrelatedJitter{}
	base := 100 * time.Millisecond
	max := 5 * time.Second

	for attempt := 1; attempt <= 12; attempt++ {
		for i := 0; i < 50; i++ {
			got := s.Calculate(attempt, base, max, 0, 0)
			if got < base || got > max {
				t.Fatalf("Attempt %d: delay %v outside [%v, %v]", attempt, got, base, max)
			}
		}
	}
}
