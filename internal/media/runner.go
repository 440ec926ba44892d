package media

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// DefaultToolTimeout bounds every external tool invocation. Partitioning
// and filesystem creation finish in seconds on healthy media; a stuck
// tool means a dying device, not a slow one.
const DefaultToolTimeout = 120 * time.Second

// Runner executes the external disk tools. The process runner is the
// only implementation outside tests.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// ToolError reports a failed tool invocation with its output attached.
type ToolError struct {
	Tool   string
	Output string
	Err    error
}

func (e *ToolError) Error() string {
	if e.Output == "" {
		return fmt.Sprintf("%s failed: %v", e.Tool, e.Err)
	}
	return fmt.Sprintf("%s failed: %s: %v", e.Tool, e.Output, e.Err)
}

func (e *ToolError) Unwrap() error {
	return e.Err
}

type execRunner struct {
	timeout time.Duration
}

// NewRunner returns a Runner that executes tools on the host with the
// given per-invocation timeout. Zero means DefaultToolTimeout.
func NewRunner(timeout time.Duration) Runner {
	if timeout <= 0 {
		timeout = DefaultToolTimeout
	}
	return &execRunner{timeout: timeout}
}

func (r *execRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	out, err := exec.CommandContext(ctx, name, args...).CombinedOutput()
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			err = fmt.Errorf("timed out after %s", r.timeout)
		}
		return out, &ToolError{
			Tool:   name,
			Output: strings.TrimSpace(string(out)),
			Err:    err,
		}
	}
	return out, nil
}
