package osascript

import (
	"context"
	"os/exec"
	"testing"
	"time"

	"github.com/nalgeon/be"
)

// withShellRunner replaces the osascript subprocess with /bin/sh so executor
// behavior can be exercised on any platform. The "script" argument becomes a
// shell script for the duration of the test.
func withShellRunner(t *testing.T) {
	t.Helper()
	orig := scriptCommand
	scriptCommand = func(ctx context.Context, script string) *exec.Cmd {
		return exec.CommandContext(ctx, "/bin/sh", "-c", script)
	}
	t.Cleanup(func() { scriptCommand = orig })
}

func TestRunParsesJSONOutput(t *testing.T) {
	withShellRunner(t)

	result, err := Run(context.Background(), "Contacts", `echo '[{"name":"Jane"}]'`, time.Second)
	be.Err(t, err, nil)
	be.True(t, !result.Empty)

	rows, ok := result.Value.([]any)
	be.True(t, ok)
	be.Equal(t, len(rows), 1)
}

func TestRunFallsBackToRawString(t *testing.T) {
	withShellRunner(t)

	result, err := Run(context.Background(), "Contacts", `echo 'not json at all'`, time.Second)
	be.Err(t, err, nil)
	be.Equal(t, result.Raw, "not json at all")
	be.Equal(t, result.Value.(string), "not json at all")
}

func TestRunEmptyOutput(t *testing.T) {
	withShellRunner(t)

	result, err := Run(context.Background(), "Contacts", `true`, time.Second)
	be.Err(t, err, nil)
	be.True(t, result.Empty)
}

func TestRunClassifiesPermissionFailure(t *testing.T) {
	withShellRunner(t)

	_, err := Run(context.Background(), "Contacts", `echo 'Not authorized to send Apple events to Contacts. (-1743)' >&2; exit 1`, time.Second)
	be.True(t, err != nil)
	be.True(t, IsPermission(err))
	be.True(t, !IsTransient(err))
}

func TestRunClassifiesFatalFailure(t *testing.T) {
	withShellRunner(t)

	_, err := Run(context.Background(), "Contacts", `echo 'SyntaxError: Unexpected token' >&2; exit 1`, time.Second)
	be.True(t, err != nil)
	be.True(t, !IsPermission(err))
	be.True(t, !IsTransient(err))

	var scriptErr *Error
	be.True(t, asError(err, &scriptErr))
	be.Equal(t, scriptErr.Class, ClassFatal)
	be.True(t, scriptErr.Stderr != "")
}

func TestRunTimeoutIsTransient(t *testing.T) {
	withShellRunner(t)

	start := time.Now()
	_, err := Run(context.Background(), "Contacts", `sleep 5`, 50*time.Millisecond)
	be.True(t, err != nil)
	be.True(t, IsTransient(err))
	be.True(t, time.Since(start) < 2*time.Second)
}

func TestRunWithRetryStopsOnPermission(t *testing.T) {
	withShellRunner(t)

	dir := t.TempDir()
	script := `echo x >> ` + dir + `/attempts; echo 'Not authorized to send Apple events.' >&2; exit 1`
	_, err := RunWithRetry(context.Background(), "Contacts", script, time.Second, 3, time.Millisecond)
	be.True(t, IsPermission(err))
	be.Equal(t, countLines(t, dir+"/attempts"), 1)
}

func TestRunWithRetryRetriesTransient(t *testing.T) {
	withShellRunner(t)

	dir := t.TempDir()
	script := `echo x >> ` + dir + `/attempts; echo 'Apple event timed out.' >&2; exit 1`
	_, err := RunWithRetry(context.Background(), "Contacts", script, time.Second, 3, time.Millisecond)
	be.True(t, IsTransient(err))
	be.Equal(t, countLines(t, dir+"/attempts"), 3)
}

func TestRunWithRetrySucceedsAfterTransient(t *testing.T) {
	withShellRunner(t)

	dir := t.TempDir()
	// First attempt fails transiently, second succeeds.
	script := `if [ -f ` + dir + `/seen ]; then echo '"ok"'; else touch ` + dir + `/seen; echo 'connection is invalid' >&2; exit 1; fi`
	result, err := RunWithRetry(context.Background(), "Messages", script, time.Second, 3, time.Millisecond)
	be.Err(t, err, nil)
	be.Equal(t, result.Value.(string), "ok")
}
