package backoff

import (
	"testing"
	"time"
)

func TestExponentialDelay(t *testing.T) {
	p := Params{Initial: 100 * time.Millisecond, Max: 5 * time.Second, Multiplier: 2.0}

	tests := []struct {
		name     string
		attempt  int
		expected time.Duration
	}{
		{"attempt 0", 0, 100 * time.Millisecond},
		{"attempt 1", 1, 200 * time.Millisecond},
		{"attempt 2", 2, 400 * time.Millisecond},
		{"negative attempt", -3, 100 * time.Millisecond},
		{"capped at max", 10, 5 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := (Exponential{}).Delay(tt.attempt, p); got != tt.expected {
				t.Errorf("Delay(%d) = %v, want %v", tt.attempt, got, tt.expected)
			}
		})
	}
}

func TestExponentialDelayJitterBounds(t *testing.T) {
	p := Params{Initial: 100 * time.Millisecond, Max: time.Second, Multiplier: 2.0, Jitter: 0.5}

	for i := 0; i < 100; i++ {
		got := (Exponential{}).Delay(1, p)
		if got < 200*time.Millisecond || got > 300*time.Millisecond {
			t.Fatalf("Delay(1) = %v, want within [200ms, 300ms]", got)
		}
	}

	p.Jitter = 7
	for i := 0; i < 100; i++ {
		if got := (Exponential{}).Delay(4, p); got > p.Max {
			t.Fatalf("Delay(4) = %v exceeds max %v", got, p.Max)
		}
	}
}

func TestDecorrelatedDelay(t *testing.T) {
	p := Params{Initial: 100 * time.Millisecond, Max: 5 * time.Second}

	if got := (Decorrelated{}).Delay(0, p); got != p.Initial {
		t.Errorf("Delay(0) = %v, want %v", got, p.Initial)
	}

	for attempt := 1; attempt <= 12; attempt++ {
		for i := 0; i < 20; i++ {
			got := (Decorrelated{}).Delay(attempt, p)
			if got < p.Initial || got > p.Max {
				t.Fatalf("Delay(%d) = %v, want within [%v, %v]", attempt, got, p.Initial, p.Max)
			}
		}
	}
}

func TestPow(t *testing.T) {
	if got := Pow(2, 0); got != 1 {
		t.Errorf("Pow(2, 0) = %v, want 1", got)
	}
	if got := Pow(3, 4); got != 81 {
		t.Errorf("Pow(3, 4) = %v, want 81", got)
	}
}
