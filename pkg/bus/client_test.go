package bus_test

import (
	"testing"
	"time"

	"hive/pkg/bus"
)

func TestRetryBackoffSchedule(t *testing.T) {
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 50 * time.Millisecond},
		{2, 100 * time.Millisecond},
		{10, 500 * time.Millisecond},
		{40, 2 * time.Second},
		{41, 2 * time.Second}, // capped
		{1000, 2 * time.Second},
	}
	for _, tt := range tests {
		if got := bus.RetryBackoff(tt.attempt); got != tt.want {
			t.Errorf("RetryBackoff(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}
