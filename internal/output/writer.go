package output

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"scribe/internal/fileutil"
	"scribe/internal/logging"
	"scribe/internal/services"
	"scribe/internal/transcript"
)

// Path returns the location of the format's file for a job.
func Path(dir, jobID string, format Format) string {
	return filepath.Join(dir, jobID+"."+string(format))
}

// WriteAll renders result in every format and writes <dir>/<jobID>.<ext>
// atomically. The returned map holds the path written per format. The first
// failure aborts and is returned wrapped with services.ErrIO.
func WriteAll(dir, jobID string, result transcript.Result, formats []Format) (map[Format]string, error) {
	if len(formats) == 0 {
		formats = RequiredFormats
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, services.Wrap(services.ErrIO, "output", "create directory", dir, err)
	}
	written := make(map[Format]string, len(formats))
	for _, format := range formats {
		data, err := Render(result, format)
		if err != nil {
			return written, err
		}
		path := Path(dir, jobID, format)
		if err := fileutil.AtomicWrite(path, data, 0o644); err != nil {
			return written, services.Wrap(services.ErrIO, "output", "write "+string(format), path, err)
		}
		written[format] = path
	}
	return written, nil
}

// RemoveAll deletes every output file of a job. Removal is best-effort: each
// failure is logged and returned, and never stops the remaining removals.
func RemoveAll(dir, jobID string, logger *slog.Logger) []error {
	var errs []error
	for _, format := range AllFormats {
		path := Path(dir, jobID, format)
		if err := fileutil.RemoveIfExists(path); err != nil {
			if logger != nil {
				logger.Warn("output file removal failed",
					logging.String(logging.FieldEventType, "output_remove_failed"),
					logging.String(logging.FieldErrorHint, "check permissions on the output directory"),
					logging.String(logging.FieldImpact, "stale transcript file left on disk"),
					logging.String("path", path),
					logging.Error(err),
				)
			}
			errs = append(errs, fmt.Errorf("remove %s: %w", path, err))
		}
	}
	return errs
}

// DownloadName returns the attachment name for a job's transcript: the
// original file name without its extension, suffixed with _transcript.
func DownloadName(filename string, format Format) string {
	base := filepath.Base(strings.TrimSpace(filename))
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	if stem == "" || stem == "." || stem == string(filepath.Separator) {
		stem = "job"
	}
	return stem + "_transcript." + string(format)
}
