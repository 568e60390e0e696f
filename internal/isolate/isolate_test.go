package isolate_test

// These tests re-exec the compiled test binary itself as the isolated
// child (the same idiom the standard library's own exec tests use):
// TestMain checks isolate.IsChild() before handing control to go test's
// own machinery, and if so runs as a tiny worker driven entirely by the
// PROPTEST_TEST_MODE environment variable.

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/seleniaproject/proptest/internal/isolate"
	"github.com/seleniaproject/proptest/internal/testkit/assert"
)

func TestMain(m *testing.M) {
	if isolate.IsChild() {
		runHelperChild()

		return
	}

	os.Exit(m.Run())
}

func runHelperChild() {
	mode := os.Getenv("PROPTEST_TEST_MODE")

	switch mode {
	case "crash":
		os.Exit(1) // exits without ever writing a result byte
	case "hang":
		_ = isolate.RunChild(func() isolate.Result {
			select {} // never returns; exercises the timeout/kill escalation
		})
	default:
		_ = isolate.RunChild(func() isolate.Result {
			switch mode {
			case "fail":
				return isolate.ResultFail
			case "skip":
				return isolate.ResultSkip
			default:
				return isolate.ResultPass
			}
		})
	}

	os.Exit(0)
}

func withMode(t *testing.T, mode string) {
	t.Helper()
	t.Setenv("PROPTEST_TEST_MODE", mode)
}

func TestRunParent_ChildReportsPass(t *testing.T) {
	if !isolate.Supported {
		t.Skip("process isolation unsupported on this platform")
	}

	withMode(t, "pass")

	result, err := isolate.RunParent(context.Background(), isolate.Config{PollTimeout: 2 * time.Second}, []string{os.Args[0]})
	assert.NoError(t, err)
	assert.Equal(t, isolate.ResultPass, result)
}

func TestRunParent_ChildReportsFail(t *testing.T) {
	if !isolate.Supported {
		t.Skip("process isolation unsupported on this platform")
	}

	withMode(t, "fail")

	result, err := isolate.RunParent(context.Background(), isolate.Config{PollTimeout: 2 * time.Second}, []string{os.Args[0]})
	assert.NoError(t, err)
	assert.Equal(t, isolate.ResultFail, result)
}

func TestRunParent_CrashedChildReportsFail(t *testing.T) {
	if !isolate.Supported {
		t.Skip("process isolation unsupported on this platform")
	}

	withMode(t, "crash")

	result, err := isolate.RunParent(context.Background(), isolate.Config{PollTimeout: 2 * time.Second}, []string{os.Args[0]})
	assert.NoError(t, err)
	assert.Equal(t, isolate.ResultFail, result, "a pipe closed without a write must be reported as a failure")
}

func TestRunParent_HangingChildIsKilledAndReportsFail(t *testing.T) {
	if !isolate.Supported {
		t.Skip("process isolation unsupported on this platform")
	}

	withMode(t, "hang")

	cfg := isolate.Config{
		PollTimeout: 50 * time.Millisecond,
		ExitTimeout: 50 * time.Millisecond,
		KillWait:    10 * time.Millisecond,
	}

	start := time.Now()
	result, err := isolate.RunParent(context.Background(), cfg, []string{os.Args[0]})
	elapsed := time.Since(start)

	assert.NoError(t, err)
	assert.Equal(t, isolate.ResultFail, result)
	assert.True(t, elapsed < 5*time.Second, "escalation must not hang indefinitely")
}

func TestRun_DegradesToSkipWhenUnsupported(t *testing.T) {
	if isolate.Supported {
		t.Skip("this platform supports isolation; see the Supported-path tests above")
	}

	result, err := isolate.Run(context.Background(), isolate.Config{}, []string{os.Args[0]})
	assert.NoError(t, err)
	assert.Equal(t, isolate.ResultSkip, result)
}
