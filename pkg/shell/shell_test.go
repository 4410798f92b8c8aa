package shell

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunCapturesStdout(t *testing.T) {
	out, err := Runner{}.Run(context.Background(), "sh", "-c", "echo hello")
	require.NoError(t, err)
	assert.Equal(t, "hello\n", out)
}

func TestRunSurfacesStderrOnFailure(t *testing.T) {
	_, err := Runner{}.Run(context.Background(), "sh", "-c", "echo broken pipe >&2; exit 3")
	var exitErr *ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, 3, exitErr.ExitCode)
	assert.Contains(t, exitErr.Stderr, "broken pipe")
	assert.Contains(t, exitErr.Error(), "broken pipe")
}

func TestRunMissingBinary(t *testing.T) {
	_, err := Runner{}.Run(context.Background(), "definitely-not-a-real-binary-x9")
	require.Error(t, err)
	var exitErr *ExitError
	assert.False(t, errors.As(err, &exitErr), "missing binary is a configuration error, not an exit failure")
}

func TestCheckInstalled(t *testing.T) {
	require.NoError(t, CheckInstalled("sh"))
	err := CheckInstalled("sh", "definitely-not-a-real-binary-x9")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "definitely-not-a-real-binary-x9")
}
