//go:build unix

package isolate

import (
	"errors"
	"io"
	"os"
	"os/exec"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// Supported is true on unix-family platforms, where golang.org/x/sys/unix
// provides the signal and non-blocking wait primitives spec §4.7's
// escalation sequence needs.
const Supported = true

// pollResultByte waits up to timeout for exactly one byte on r, using the
// file's read deadline (backed by the runtime's netpoller for pipes on
// unix). Returns (result, true, nil) on a successful single-byte read,
// (0, false, nil) on EOF (pipe closed without a write — the child
// crashed) or on timeout, and (0, false, err) on any other I/O error.
func pollResultByte(r *os.File, timeout time.Duration) (Result, bool, error) {
	if err := r.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return 0, false, err
	}

	var buf [1]byte

	n, err := r.Read(buf[:])
	if n == 1 {
		return Result(buf[0]), true, nil
	}

	if err == nil || errors.Is(err, io.EOF) || errors.Is(err, os.ErrDeadlineExceeded) {
		return 0, false, nil
	}

	return 0, false, err
}

// escalate implements spec §4.7's timeout branch: send cfg.Signal, wait up
// to cfg.ExitTimeout, then send a non-catchable kill and wait up to
// cfg.KillWait more. Reports pass only if the child nevertheless exited
// successfully before the kill was needed.
func escalate(cmd *exec.Cmd, cfg Config, waitErr chan error) (Result, error) {
	pid := cmd.Process.Pid

	_ = unix.Kill(pid, signalNumber(cfg.Signal))

	select {
	case err := <-waitErr:
		if err == nil {
			return ResultPass, nil
		}

		return ResultFail, nil
	case <-time.After(cfg.ExitTimeout):
	}

	_ = unix.Kill(pid, unix.SIGKILL)

	select {
	case err := <-waitErr:
		if err == nil {
			return ResultPass, nil
		}

		return ResultFail, nil
	case <-time.After(cfg.KillWait):
	}

	return ResultFail, nil
}

func signalNumber(s os.Signal) syscall.Signal {
	if sig, ok := s.(syscall.Signal); ok {
		return sig
	}

	return unix.SIGTERM
}

// reapZombies collects any already-exited children without blocking,
// called before each fork retry (spec §4.7: "collect any zombies").
func reapZombies() {
	for {
		var status unix.WaitStatus

		pid, err := unix.Wait4(-1, &status, unix.WNOHANG, nil)
		if err != nil || pid <= 0 {
			return
		}
	}
}

func isResourceTemporarilyUnavailable(err error) bool {
	return errors.Is(err, syscall.EAGAIN)
}
