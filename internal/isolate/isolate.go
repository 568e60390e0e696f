// Package isolate implements the process-isolation contract of spec §4.7:
// each trial runs in a freshly spawned child connected by a pipe, the
// child writes one result byte and exits, and the parent polls the read
// end with a timeout, escalating to a terminate-then-kill sequence when
// the child doesn't answer in time.
//
// Go cannot safely call raw fork(2) in a multi-threaded runtime, so the
// "fresh child" here is a re-exec of the current binary (os.Args[0]) with
// a marker environment variable, following the standard Go idiom for
// self-isolating worker processes; RunParent and RunChild are the two
// halves of that protocol.
package isolate

import (
	"context"
	"os"
	"os/exec"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/seleniaproject/proptest/internal/ptesterr"
)

// Result is the single byte a trial child reports back to the parent.
type Result byte

const (
	ResultPass Result = iota
	ResultFail
	ResultSkip
	ResultError
)

// ChildMarkerEnv is the environment variable a re-exec'd child checks to
// discover it is running as an isolated trial child rather than the
// original process.
const ChildMarkerEnv = "PROPTEST_ISOLATE_CHILD"

// Config controls one isolated trial invocation (spec §4.7).
type Config struct {
	// PollTimeout bounds how long the parent waits for the child's result
	// byte before escalating to termination.
	PollTimeout time.Duration
	// Signal is sent first on timeout; when nil it defaults to
	// os.Interrupt on every platform (SIGINT on unix, not SIGTERM).
	Signal os.Signal
	// ExitTimeout bounds how long the parent waits after Signal before
	// escalating to a non-catchable kill (default 100ms, spec §4.7).
	ExitTimeout time.Duration
	// KillWait bounds how long the parent waits after the kill signal
	// before giving up on a clean reap (default 10ms, spec §4.7).
	KillWait time.Duration
	// ExtraEnv is appended to the child's environment on top of
	// ChildMarkerEnv, letting a caller pass trial-specific data (e.g. a
	// trial seed) to the re-exec'd child without widening this package's
	// own API with domain-specific fields.
	ExtraEnv []string
}

func (c Config) normalize() Config {
	if c.PollTimeout <= 0 {
		c.PollTimeout = time.Second
	}

	if c.Signal == nil {
		c.Signal = os.Interrupt
	}

	if c.ExitTimeout <= 0 {
		c.ExitTimeout = 100 * time.Millisecond
	}

	if c.KillWait <= 0 {
		c.KillWait = 10 * time.Millisecond
	}

	return c
}

// IsChild reports whether the current process was re-exec'd as an
// isolated trial child.
func IsChild() bool {
	return os.Getenv(ChildMarkerEnv) != ""
}

// RunChild is called from the re-exec'd child's entry point. It runs
// trial, writes the single result byte to the inherited result pipe (file
// descriptor 3, the first entry of exec.Cmd.ExtraFiles), and returns — the
// caller is expected to os.Exit(0) immediately afterward regardless of the
// trial's outcome, since the result travels through the byte, not the
// exit code.
func RunChild(trial func() Result) error {
	resultFile := os.NewFile(3, "proptest-result")
	if resultFile == nil {
		return ptesterr.ChildCrashed("missing result pipe fd 3")
	}

	defer resultFile.Close()

	r := trial()
	_, err := resultFile.Write([]byte{byte(r)})

	return err
}

// errAgain is returned by startChild when the OS transiently refuses to
// spawn a new process ("try again"); spec §4.7 directs the caller to
// collect zombies, back off, and retry.
type errAgain struct{ cause error }

func (e *errAgain) Error() string { return "isolate: fork transiently failed: " + e.cause.Error() }
func (e *errAgain) Unwrap() error { return e.cause }

// Run is the public entry point used by the scheduler. On platforms
// without the unix primitives the escalation sequence depends on
// (Supported == false), it degrades to ResultSkip without spawning
// anything (spec §9: "degrading to skip on platforms without unix
// primitives"). Otherwise it delegates to RunParent.
func Run(ctx context.Context, cfg Config, childArgs []string) (Result, error) {
	if !Supported {
		return ResultSkip, nil
	}

	return RunParent(ctx, cfg, childArgs)
}

// RunParent spawns an isolated child running under childArgs (typically
// just os.Args[0]; the child sees ChildMarkerEnv set, so IsChild lets its
// entry point route into RunChild) and returns its reported result, implementing the full
// poll/timeout/terminate/kill/reap sequence of spec §4.7.
func RunParent(ctx context.Context, cfg Config, childArgs []string) (Result, error) {
	cfg = cfg.normalize()

	var lastErr error

	backoff := time.Nanosecond

	for attempt := 0; attempt < 10; attempt++ {
		result, err := runOnce(ctx, cfg, childArgs)

		var again *errAgain
		if asErrAgain(err, &again) {
			lastErr = again.cause
			reapZombies()
			time.Sleep(backoff)

			if backoff < 1024*time.Nanosecond {
				backoff *= 2
			}

			continue
		}

		return result, err
	}

	return ResultError, ptesterr.ChildCrashed("fork retries exhausted: " + errString(lastErr))
}

func errString(err error) string {
	if err == nil {
		return "unknown"
	}

	return err.Error()
}

func asErrAgain(err error, target **errAgain) bool {
	if err == nil {
		return false
	}

	e, ok := err.(*errAgain)
	if !ok {
		return false
	}

	*target = e

	return true
}

func runOnce(ctx context.Context, cfg Config, childArgs []string) (Result, error) {
	readEnd, writeEnd, err := os.Pipe()
	if err != nil {
		return ResultError, err
	}

	defer readEnd.Close()

	cmd := exec.Command(childArgs[0], childArgs[1:]...)
	cmd.Env = append(os.Environ(), ChildMarkerEnv+"=1")
	cmd.Env = append(cmd.Env, cfg.ExtraEnv...)
	cmd.ExtraFiles = []*os.File{writeEnd}
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		writeEnd.Close()

		if isTryAgain(err) {
			return ResultError, &errAgain{cause: err}
		}

		return ResultError, err
	}

	// The parent's copy of the write end must be closed so EOF on
	// readEnd is observable once the child exits without writing.
	writeEnd.Close()

	// cmd.Wait() reaps the child once it exits, which may not happen
	// until well after the poll below gives up; it runs detached from the
	// poll/ctx-watch pair so a hung child never blocks this function from
	// reaching the escalation branch.
	waitErr := make(chan error, 1)

	go func() { waitErr <- cmd.Wait() }()

	var (
		pollResult Result
		gotByte    bool
	)

	// Run the blocking poll read alongside a watcher that cuts it short
	// if the caller's context is cancelled before cfg.PollTimeout
	// elapses; errgroup.WithContext gives both goroutines a shared
	// cancellation signal and a clean join point.
	g, gctx := errgroup.WithContext(ctx)
	done := make(chan struct{})

	g.Go(func() error {
		defer close(done)

		var err error
		pollResult, gotByte, err = pollResultByte(readEnd, cfg.PollTimeout)

		return err
	})

	g.Go(func() error {
		select {
		case <-gctx.Done():
			_ = readEnd.SetReadDeadline(time.Now())

			return gctx.Err()
		case <-done:
			return nil
		}
	})

	pollErr := g.Wait()

	if pollErr == nil && gotByte {
		<-waitErr

		return pollResult, nil
	}

	// Timed out, the context was cancelled, or the pipe closed without a
	// write: escalate.
	return escalate(cmd, cfg, waitErr)
}

func isTryAgain(err error) bool {
	return isResourceTemporarilyUnavailable(err)
}
