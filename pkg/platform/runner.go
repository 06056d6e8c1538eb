package platform

import (
	"context"
	"os/exec"
	"strings"
	"time"

	"github.com/zikani/smartboot/pkg/errors"
)

// DefaultToolTimeout bounds every native tool invocation. External
// tools that hang (syslinux on a wedged device, diskpart waiting on a
// prompt) are killed rather than stalling the pipeline.
const DefaultToolTimeout = 30 * time.Second

// Runner executes native platform tools. Strategies and formatters
// depend on this interface so tests can intercept every command.
type Runner interface {
	// Run executes name with args and returns its combined output.
	Run(ctx context.Context, name string, args ...string) (string, error)

	// LookPath reports whether name resolves to an executable.
	LookPath(name string) bool
}

// ExecRunner runs tools through os/exec with a per-command timeout.
type ExecRunner struct {
	Timeout time.Duration
}

// NewRunner returns an ExecRunner with the default tool timeout.
func NewRunner() *ExecRunner {
	return &ExecRunner{Timeout: DefaultToolTimeout}
}

func (r *ExecRunner) Run(ctx context.Context, name string, args ...string) (string, error) {
	timeout := r.Timeout
	if timeout <= 0 {
		timeout = DefaultToolTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, name, args...)
	out, err := cmd.CombinedOutput()
	output := strings.TrimSpace(string(out))
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return output, errors.Wrapf(ctx.Err(), "%s timed out after %s", name, timeout)
		}
		if output != "" {
			return output, errors.Wrapf(err, "%s: %s", name, output)
		}
		return output, errors.Wrap(err, name)
	}
	return output, nil
}

func (r *ExecRunner) LookPath(name string) bool {
	_, err := exec.LookPath(name)
	return err == nil
}
