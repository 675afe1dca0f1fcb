package logging

import (
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"
	"time"
)

// Retention expires entries of Dir matching Pattern once their modification
// time is older than MaxAge. Matched directories are removed recursively.
type Retention struct {
	Dir     string
	Pattern string
	MaxAge  time.Duration
	// Keep lists paths that are never removed, such as the active run log.
	Keep []string
	Now  func() time.Time
}

// Apply removes expired entries and returns the removed paths in name order.
// A zero MaxAge disables expiry. Failures are logged and skipped.
func (r Retention) Apply(logger *slog.Logger) []string {
	dir := strings.TrimSpace(r.Dir)
	if r.MaxAge <= 0 || dir == "" {
		return nil
	}
	pattern := strings.TrimSpace(r.Pattern)
	if pattern == "" {
		pattern = "*"
	}
	matches, err := filepath.Glob(filepath.Join(dir, pattern))
	if err != nil {
		return nil
	}
	sort.Strings(matches)

	now := time.Now
	if r.Now != nil {
		now = r.Now
	}
	cutoff := now().Add(-r.MaxAge)
	keep := make([]string, 0, len(r.Keep))
	for _, path := range r.Keep {
		if abs, err := filepath.Abs(path); err == nil {
			keep = append(keep, abs)
		}
	}

	var removed []string
	for _, path := range matches {
		if abs, err := filepath.Abs(path); err == nil && slices.Contains(keep, abs) {
			continue
		}
		info, err := os.Lstat(path)
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		if err := os.RemoveAll(path); err != nil {
			WarnWithContext(logger, "expired file could not be removed", "retention_failed",
				String("path", path),
				Error(err),
				String(FieldErrorHint, "check permissions on "+dir),
				String(FieldImpact, "stale file remains on disk"),
			)
			continue
		}
		removed = append(removed, path)
	}
	if len(removed) > 0 && logger != nil {
		logger.Debug("expired files removed",
			String(FieldEventType, "retention_pruned"),
			String("dir", dir),
			Int("count", len(removed)),
		)
	}
	return removed
}

// RetentionDays converts a logging.retention_days setting to a max age.
func RetentionDays(days int) time.Duration {
	if days <= 0 {
		return 0
	}
	return time.Duration(days) * 24 * time.Hour
}
