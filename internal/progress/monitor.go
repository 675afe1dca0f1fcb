package progress

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"strings"
)

// Sink receives structured progress updates.
type Sink func(percent float64, message string)

// Discard is a Sink that ignores updates.
func Discard(float64, string) {}

const maxLineBytes = 1024 * 1024

type monitorOptions struct {
	onLine func(string)
}

// MonitorOption customises Monitor.
type MonitorOption func(*monitorOptions)

// WithLineHandler registers a callback invoked for every non-empty line,
// matched or not.
func WithLineHandler(fn func(string)) MonitorOption {
	return func(o *monitorOptions) { o.onLine = fn }
}

// Monitor reads r line by line until EOF, a read error, or ctx is done, and
// reports matched milestones to sink. Carriage returns count as line breaks so
// redrawn progress bars are seen as separate lines. Each matching line yields
// exactly one sink call. The returned error is the read error, if any; EOF and
// cancellation return nil.
func Monitor(ctx context.Context, r io.Reader, table Table, sink Sink, opts ...MonitorOption) error {
	var o monitorOptions
	for _, opt := range opts {
		opt(&o)
	}
	if sink == nil {
		sink = Discard
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	scanner.Split(scanLinesOrReturns)

	for scanner.Scan() {
		if ctx.Err() != nil {
			return nil
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if o.onLine != nil {
			o.onLine(line)
		}
		if m, ok := table.Match(line); ok {
			sink(m.Percent, m.Phrase)
		}
	}
	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

func scanLinesOrReturns(data []byte, atEOF bool) (int, []byte, error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		return i + 1, data[:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}
