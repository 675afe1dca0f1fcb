package workflow

import (
	"context"
	"fmt"
	"strings"

	"scribe/internal/logging"
	"scribe/internal/preflight"
)

// Preflight runs the directory and sidecar checks, logging each result.
// It returns an error listing every failed check.
func (m *Manager) Preflight(ctx context.Context) ([]preflight.Result, error) {
	results := preflight.RunAll(ctx, m.cfg)
	var failures []string
	for _, r := range results {
		if r.Passed {
			m.logger.Info("preflight check passed",
				logging.String("check", r.Name),
				logging.String("detail", r.Detail),
				logging.String(logging.FieldEventType, "preflight_passed"),
			)
			continue
		}
		logging.ErrorWithContext(m.logger, "preflight check failed", "preflight_failed",
			logging.String("check", r.Name),
			logging.String("detail", r.Detail),
			logging.String(logging.FieldErrorHint, "fix the reported issue and restart the daemon"),
		)
		failures = append(failures, fmt.Sprintf("%s: %s", r.Name, r.Detail))
	}
	if len(failures) > 0 {
		return results, fmt.Errorf("preflight checks failed: %s", strings.Join(failures, "; "))
	}
	return results, nil
}
