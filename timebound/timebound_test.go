package timebound

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/nalgeon/be"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func captureWarnings(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	orig := log.Logger
	log.Logger = zerolog.New(&buf)
	t.Cleanup(func() { log.Logger = orig })
	return &buf
}

func TestRunReturnsSettledValue(t *testing.T) {
	buf := captureWarnings(t)

	got := Run(context.Background(), time.Second, "fast", "fallback", func(context.Context) string {
		return "real"
	})
	be.Equal(t, got, "real")
	be.Equal(t, buf.Len(), 0)
}

func TestRunReturnsFallbackOnDeadline(t *testing.T) {
	buf := captureWarnings(t)

	start := time.Now()
	got := Run(context.Background(), 10*time.Millisecond, "slow resolve", -1, func(context.Context) int {
		time.Sleep(time.Second)
		return 42
	})
	elapsed := time.Since(start)

	be.Equal(t, got, -1)
	be.True(t, elapsed < 500*time.Millisecond)

	warnings := strings.TrimSpace(buf.String())
	be.Equal(t, len(strings.Split(warnings, "\n")), 1)
	be.True(t, strings.Contains(warnings, "slow resolve"))
}

func TestRunNoWarningWithoutLabel(t *testing.T) {
	buf := captureWarnings(t)

	got := Run(context.Background(), 10*time.Millisecond, "", 0, func(context.Context) int {
		time.Sleep(time.Second)
		return 1
	})
	be.Equal(t, got, 0)
	be.Equal(t, buf.Len(), 0)
}

func TestRunDoesNotCancelWrappedCall(t *testing.T) {
	captureWarnings(t)

	finished := make(chan struct{})
	Run(context.Background(), 10*time.Millisecond, "", "fallback", func(ctx context.Context) string {
		go func() {
			// Simulates a rebuild that keeps going after the caller gave up.
			time.Sleep(50 * time.Millisecond)
			close(finished)
		}()
		time.Sleep(time.Second)
		return "late"
	})

	select {
	case <-finished:
	case <-time.After(2 * time.Second):
		t.Fatal("wrapped operation was cancelled by the guard")
	}
}
