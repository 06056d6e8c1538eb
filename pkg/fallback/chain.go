// Package fallback runs an ordered chain of alternative methods toward
// a single goal. Methods whose precondition fails are skipped, the
// first method to succeed wins, and when every method has been skipped
// or has failed the chain reports one error carrying the diagnostics
// of everything that was tried.
package fallback

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/zikani/smartboot/pkg/errors"
	"github.com/zikani/smartboot/pkg/progress"
)

// Method is one alternative way of achieving the chain's goal.
type Method struct {
	// Name identifies the method in progress messages and diagnostics.
	Name string

	// Check is the precondition. A nil Check means the method is always
	// eligible. Check must be cheap and side-effect free; a false
	// return skips the method without counting it as a failure.
	Check func() bool

	// Run attempts the method. Any error marks the method as failed
	// and the chain moves on to the next one.
	Run func(ctx context.Context) error
}

// Outcome describes how a chain concluded.
type Outcome struct {
	// Winner is the name of the method that succeeded.
	Winner string

	// Attempted lists the methods that actually ran, in order,
	// including the winner.
	Attempted []string

	// Skipped lists the methods whose precondition failed.
	Skipped []string

	// Diagnostics accumulates one line per skipped or failed method,
	// so a success after failures still shows what was tried.
	Diagnostics []string
}

// Execute runs the methods in order until one succeeds. Each attempted
// method produces exactly one progress report at pct before it runs.
// Skipped methods produce no progress report, only a diagnostic. If
// the context is cancelled between methods the chain stops with
// errors.ErrCancelled. If every method is skipped or fails, the
// returned error message concatenates the per-method diagnostics.
func Execute(ctx context.Context, rep *progress.Reporter, pct int, goal string, methods []Method) (*Outcome, error) {
	if len(methods) == 0 {
		return nil, fmt.Errorf("%s: no methods to try", goal)
	}

	out := &Outcome{}

	for _, m := range methods {
		if err := ctx.Err(); err != nil {
			return nil, errors.Wrapf(errors.ErrCancelled, "%s cancelled before %s", goal, m.Name)
		}

		if m.Check != nil && !m.Check() {
			slog.Debug("fallback_method_skipped", "goal", goal, "method", m.Name)
			out.Skipped = append(out.Skipped, m.Name)
			out.Diagnostics = append(out.Diagnostics, fmt.Sprintf("%s: precondition not met", m.Name))
			continue
		}

		rep.Report(pct, fmt.Sprintf("%s: trying %s", goal, m.Name))
		out.Attempted = append(out.Attempted, m.Name)

		err := m.Run(ctx)
		if err == nil {
			slog.Info("fallback_method_succeeded", "goal", goal, "method", m.Name)
			out.Winner = m.Name
			return out, nil
		}
		if errors.Is(err, errors.ErrCancelled) || ctx.Err() != nil {
			return nil, errors.Wrapf(errors.ErrCancelled, "%s cancelled during %s", goal, m.Name)
		}

		slog.Warn("fallback_method_failed", "goal", goal, "method", m.Name, "error", err)
		out.Diagnostics = append(out.Diagnostics, fmt.Sprintf("%s: %v", m.Name, err))
	}

	return nil, fmt.Errorf("%s: all methods failed: %s", goal, strings.Join(out.Diagnostics, "; "))
}
