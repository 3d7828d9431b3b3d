package osascript

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// Error is a classified osascript failure.
type Error struct {
	App    string
	Class  FailureClass
	Stderr string
	Err    error
}

// Error returns the formatted error message.
func (e *Error) Error() string {
	if e == nil {
		return "osascript: <nil>"
	}
	if strings.TrimSpace(e.Stderr) == "" {
		return fmt.Sprintf("osascript: %s: %s: %v", e.App, e.Class, e.Err)
	}
	return fmt.Sprintf("osascript: %s: %s: %v: %s", e.App, e.Class, e.Err, strings.TrimSpace(e.Stderr))
}

// Unwrap exposes the underlying exec error.
func (e *Error) Unwrap() error {
	return e.Err
}

// IsPermission reports whether err is an osascript failure classified as a
// permission refusal.
func IsPermission(err error) bool {
	var scriptErr *Error
	return errors.As(err, &scriptErr) && scriptErr.Class == ClassPermission
}

// IsTransient reports whether err is an osascript failure worth retrying.
func IsTransient(err error) bool {
	var scriptErr *Error
	return errors.As(err, &scriptErr) && scriptErr.Class == ClassTransient
}

// Result is the parsed output of a successful script run.
//
// Value holds the decoded JSON when stdout parses as JSON, otherwise the raw
// trimmed stdout string. Empty is true when the script produced no output.
type Result struct {
	Value any
	Raw   string
	Empty bool
}

// scriptCommand builds the subprocess for one attempt. Swappable in tests so
// the package can be exercised without a macOS automation stack.
var scriptCommand = func(ctx context.Context, script string) *exec.Cmd {
	return exec.CommandContext(ctx, "/usr/bin/osascript", "-l", "JavaScript", "-e", script)
}

// Run executes a finished script string as one osascript subprocess.
//
// The app label is used only for error classification; it should name the
// application the script automates ("Contacts", "Messages", ...). On failure
// the returned error is always an *Error carrying the classified stderr. A
// deadline overrun is reported as ClassTransient.
func Run(ctx context.Context, app string, script string, timeout time.Duration) (Result, error) {
	runCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	cmd := scriptCommand(runCtx, script)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		stderrText := strings.TrimSpace(stderr.String())
		if runCtx.Err() != nil {
			return Result{}, &Error{App: app, Class: ClassTransient, Stderr: stderrText, Err: fmt.Errorf("script timed out after %s", timeout)}
		}
		return Result{}, &Error{App: app, Class: Classify(app, stderrText), Stderr: stderrText, Err: err}
	}

	raw := strings.TrimSpace(stdout.String())
	if raw == "" {
		return Result{Empty: true}, nil
	}

	result := Result{Raw: raw}
	var value any
	if err := json.Unmarshal([]byte(raw), &value); err == nil {
		result.Value = value
	} else {
		result.Value = raw
	}
	return result, nil
}

// RunWithRetry re-invokes Run up to attempts times, sleeping delay between
// attempts, but only while the failure is classified as transient. Permission
// refusals and fatal failures are surfaced immediately.
func RunWithRetry(ctx context.Context, app string, script string, timeout time.Duration, attempts int, delay time.Duration) (Result, error) {
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return Result{}, &Error{App: app, Class: ClassTransient, Err: ctx.Err()}
			case <-time.After(delay):
			}
		}

		result, err := Run(ctx, app, script, timeout)
		if err == nil {
			return result, nil
		}
		if !IsTransient(err) {
			return Result{}, err
		}
		lastErr = err
	}
	return Result{}, lastErr
}
