package main

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestTruncate(t *testing.T) {
	tests := []struct {
		input  string
		maxLen int
		want   string
	}{
		{"short", 10, "short"},
		{"exactly ten", 11, "exactly ten"},
		{"this is a longer string", 10, "this is..."},
		{"abcdef", 3, "abc"},
	}

	for _, tt := range tests {
		if got := Truncate(tt.input, tt.maxLen); got != tt.want {
			t.Errorf("Truncate(%q, %d) = %q, want %q", tt.input, tt.maxLen, got, tt.want)
		}
	}
}

func TestTruncateCenter(t *testing.T) {
	tests := []struct {
		input  string
		maxLen int
		want   string
	}{
		{"short", 10, "short"},
		{"abcdefghijklmnop", 9, "abc...nop"},
		{"abcdef", 3, "abc"},
	}

	for _, tt := range tests {
		if got := TruncateCenter(tt.input, tt.maxLen); got != tt.want {
			t.Errorf("TruncateCenter(%q, %d) = %q, want %q", tt.input, tt.maxLen, got, tt.want)
		}
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{0, "∞"},
		{15 * time.Second, "15s"},
		{90 * time.Second, "1m 30s"},
		{2*time.Hour + 5*time.Minute, "2h 5m"},
	}

	for _, tt := range tests {
		if got := FormatDuration(tt.d); got != tt.want {
			t.Errorf("FormatDuration(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}

func TestFormatTrackLabel(t *testing.T) {
	tests := []struct {
		name   string
		title  string
		artist string
		maxLen int
		want   string
	}{
		{"title and artist", "Hey Jude", "The Beatles", 80, "Hey Jude - The Beatles"},
		{"no artist", "Hey Jude", "", 80, "Hey Jude"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FormatTrackLabel(tt.title, tt.artist, tt.maxLen); got != tt.want {
				t.Errorf("FormatTrackLabel = %q, want %q", got, tt.want)
			}
		})
	}

	long := FormatTrackLabel("A Very Long Track Title Indeed", "An Equally Verbose Artist Name", 20)
	if len([]rune(long)) > 20 {
		t.Errorf("label exceeds cap: %q (%d runes)", long, len([]rune(long)))
	}
}

func TestRandomIntRange(t *testing.T) {
	for i := 0; i < 100; i++ {
		v := RandomIntRange(3, 7)
		if v < 3 || v > 7 {
			t.Fatalf("RandomIntRange(3, 7) = %d", v)
		}
	}
	// Swapped bounds still work
	if v := RandomIntRange(7, 3); v < 3 || v > 7 {
		t.Errorf("RandomIntRange(7, 3) = %d", v)
	}
}

func TestRetryPolicyDelay(t *testing.T) {
	policy := RetryPolicy{Attempts: 5, BaseDelay: time.Second, Multiplier: 2, MaxDelay: 30 * time.Second}

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 1 * time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{6, 30 * time.Second}, // capped
		{10, 30 * time.Second},
	}
	for _, tt := range tests {
		if got := policy.Delay(tt.attempt); got != tt.want {
			t.Errorf("Delay(%d) = %s, want %s", tt.attempt, got, tt.want)
		}
	}

	flat := RetryPolicy{Attempts: 3, BaseDelay: 5 * time.Second, Multiplier: 1}
	for attempt := 1; attempt <= 3; attempt++ {
		if got := flat.Delay(attempt); got != 5*time.Second {
			t.Errorf("flat Delay(%d) = %s, want 5s", attempt, got)
		}
	}
}

func TestRetrySucceedsAfterFailures(t *testing.T) {
	policy := RetryPolicy{Attempts: 4, BaseDelay: time.Millisecond, Multiplier: 2}

	calls := 0
	var retried []int
	err := Retry(context.Background(), policy,
		func(attempt int, err error, delay time.Duration) {
			retried = append(retried, attempt)
		},
		func(attempt int) error {
			calls++
			if attempt < 3 {
				return errors.New("transient")
			}
			return nil
		})
	if err != nil {
		t.Fatalf("Retry() error = %v", err)
	}
	if calls != 3 {
		t.Errorf("fn called %d times, want 3", calls)
	}
	if len(retried) != 2 || retried[0] != 1 || retried[1] != 2 {
		t.Errorf("onRetry attempts = %v, want [1 2]", retried)
	}
}

func TestRetryExhaustsAttempts(t *testing.T) {
	policy := RetryPolicy{Attempts: 3, BaseDelay: time.Millisecond, Multiplier: 2}

	sentinel := errors.New("still broken")
	calls := 0
	err := Retry(context.Background(), policy, nil, func(int) error {
		calls++
		return sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("Retry() error = %v, want the last attempt's error", err)
	}
	if calls != 3 {
		t.Errorf("fn called %d times, want 3", calls)
	}
}

func TestRetryStopsOnContextCancel(t *testing.T) {
	policy := RetryPolicy{Attempts: 10, BaseDelay: time.Hour, Multiplier: 2}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := Retry(ctx, policy, nil, func(int) error {
		calls++
		return errors.New("transient")
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Retry() error = %v, want context.Canceled", err)
	}
	if calls != 1 {
		t.Errorf("fn called %d times after cancel, want 1", calls)
	}
}
