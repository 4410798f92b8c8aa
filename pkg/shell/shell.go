// Package shell invokes the external CLIs the orchestrator depends on
// (helm, kubectl, forge, cast, ...) by path and arguments. The tools are
// opaque: non-zero exit is failure, and captured stderr travels with the
// error verbatim.
package shell

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/ethereum/go-ethereum/log"
)

// ExitError is a subprocess that exited non-zero.
type ExitError struct {
	Command  string
	Args     []string
	ExitCode int
	Stderr   string
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("%s %s exited with code %d: %s",
		e.Command, strings.Join(e.Args, " "), e.ExitCode, e.Stderr)
}

// Runner executes external commands. A zero Runner is usable; Log adds
// per-invocation debug logging.
type Runner struct {
	Log log.Logger
}

// Run executes command with args and returns its stdout. A non-zero exit
// becomes an *ExitError carrying the captured stderr; a missing binary is a
// configuration error surfaced as-is.
func (r Runner) Run(ctx context.Context, command string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, command, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if r.Log != nil {
		r.Log.Debug("running command", "command", command, "args", args)
	}

	err := cmd.Run()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return "", &ExitError{
				Command:  command,
				Args:     args,
				ExitCode: exitErr.ExitCode(),
				Stderr:   stderr.String(),
			}
		}
		return "", fmt.Errorf("failed to run %s: %w", command, err)
	}
	return stdout.String(), nil
}

// CheckInstalled verifies that each named binary resolves on PATH, so a
// missing dependency fails the run up front instead of mid-sequence.
func CheckInstalled(binaries ...string) error {
	var missing []string
	for _, bin := range binaries {
		if _, err := exec.LookPath(bin); err != nil {
			missing = append(missing, bin)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("required binaries not found on PATH: %s", strings.Join(missing, ", "))
	}
	return nil
}
