package timer

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestIntervalValidate(t *testing.T) {
	tests := []struct {
		name    string
		in      Interval
		wantErr bool
	}{
		{"plain", Interval{Duration: time.Second}, false},
		{"with jitter", Interval{Duration: time.Second, Jitter: 100 * time.Millisecond}, false},
		{"zero", Interval{}, true},
		{"negative jitter", Interval{Duration: time.Second, Jitter: -1}, true},
		{"jitter too large", Interval{Duration: time.Second, Jitter: time.Second}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.in.Validate(); (err != nil) != tt.wantErr {
				t.Fatalf("Validate() = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestTickerJitterBounds(t *testing.T) {
	j := tickerJitter{MaxJitter: 10 * time.Millisecond}
	for i := 0; i < 1000; i++ {
		d := j.Jitter(100 * time.Millisecond)
		if d < 90*time.Millisecond || d >= 110*time.Millisecond {
			t.Fatalf("Jitter out of bounds: %v", d)
		}
	}
	if d := (tickerJitter{}).Jitter(time.Second); d != time.Second {
		t.Fatalf("Zero jitter changed the duration: %v", d)
	}
}

func TestRunWithTickerStopsOnError(t *testing.T) {
	errStop := errors.New("stop")
	calls := 0
	err := RunWithTicker(context.Background(), &Interval{Duration: time.Millisecond}, func(context.Context) error {
		calls++
		if calls == 3 {
			return errStop
		}
		return nil
	})
	if !errors.Is(err, errStop) {
		t.Fatalf("Expected errStop, got %v", err)
	}
	if calls != 3 {
		t.Fatalf("Expected 3 calls, got %d", calls)
	}
}

func TestRunWithTickerStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := RunWithTicker(ctx, &Interval{Duration: time.Millisecond}, func(context.Context) error { return nil })
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Expected deadline exceeded, got %v", err)
	}
}

func TestRunWithTickerRejectsInvalidInterval(t *testing.T) {
	err := RunWithTicker(context.Background(), &Interval{}, func(context.Context) error { return nil })
	if err == nil {
		t.Fatal("Expected an error for a zero interval")
	}
}
