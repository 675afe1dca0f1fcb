package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"scribe/internal/jobs"
	"scribe/internal/services"
)

// Record is the archived summary of a terminal job.
type Record struct {
	JobID             string            `json:"job_id"`
	Filename          string            `json:"filename"`
	SourceDigest      string            `json:"source_digest,omitempty"`
	SourceSize        int64             `json:"source_size"`
	Model             string            `json:"model"`
	Language          string            `json:"language"`
	Diarization       bool              `json:"diarization"`
	Status            jobs.Status       `json:"status"`
	ErrorKind         string            `json:"error_kind,omitempty"`
	ErrorMessage      string            `json:"error,omitempty"`
	CreatedAt         time.Time         `json:"created_at"`
	StartedAt         *time.Time        `json:"started_at,omitempty"`
	FinishedAt        time.Time         `json:"finished_at"`
	ProcessingSeconds float64           `json:"processing_seconds"`
	DurationSeconds   float64           `json:"duration_seconds"`
	SpeakerCount      int               `json:"speaker_count"`
	SegmentCount      int               `json:"segment_count"`
	WordCount         int               `json:"word_count"`
	MeanConfidence    float64           `json:"mean_confidence"`
	Outputs           map[string]string `json:"outputs,omitempty"`
}

// FromJob summarises a terminal job. ok is false for non-terminal jobs.
func FromJob(job jobs.Job) (Record, bool) {
	finished, ok := job.TerminalAt()
	if !ok {
		return Record{}, false
	}
	rec := Record{
		JobID:             job.ID,
		Filename:          job.Filename,
		SourceDigest:      job.SourceDigest,
		SourceSize:        job.SourceSize,
		Model:             job.Model,
		Language:          job.Language,
		Diarization:       job.Diarization,
		Status:            job.Status,
		ErrorKind:         job.ErrorKind,
		ErrorMessage:      job.ErrorMessage,
		CreatedAt:         job.CreatedAt,
		StartedAt:         job.StartedAt,
		FinishedAt:        finished,
		ProcessingSeconds: job.Elapsed(finished).Seconds(),
		Outputs:           job.OutputFiles,
	}
	if res := job.Result; res != nil {
		rec.DurationSeconds = res.Metadata.TotalDuration
		rec.SpeakerCount = res.Metadata.SpeakerCount
		rec.SegmentCount = len(res.Segments)
		rec.WordCount = res.Metadata.WordCount
		rec.MeanConfidence = res.Metadata.MeanConfidence
		if res.Metadata.ProcessingTime > 0 {
			rec.ProcessingSeconds = res.Metadata.ProcessingTime
		}
	}
	return rec, true
}

// Filter selects history rows.
type Filter struct {
	Statuses []jobs.Status
	Since    time.Time
	Limit    int
	Offset   int
}

// Stats aggregates the archive.
type Stats struct {
	Total           int            `json:"total"`
	ByStatus        map[string]int `json:"by_status"`
	AudioSeconds    float64        `json:"audio_seconds"`
	ProcessingTotal float64        `json:"processing_seconds"`
}

const recordColumns = "job_id, filename, source_digest, source_size, model, language, diarization, status, error_kind, error_message, created_at, started_at, finished_at, processing_seconds, duration_seconds, speaker_count, segment_count, word_count, mean_confidence, outputs_json"

// Save inserts or replaces the record for rec.JobID.
func (s *Store) Save(ctx context.Context, rec Record) error {
	if strings.TrimSpace(rec.JobID) == "" {
		return fmt.Errorf("%w: history record requires a job id", services.ErrValidation)
	}
	var outputs sql.NullString
	if len(rec.Outputs) > 0 {
		data, err := json.Marshal(rec.Outputs)
		if err != nil {
			return fmt.Errorf("encode outputs: %w", err)
		}
		outputs = sql.NullString{String: string(data), Valid: true}
	}
	_, err := s.execWithRetry(ctx,
		`INSERT OR REPLACE INTO job_history (`+recordColumns+`)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.JobID,
		rec.Filename,
		nullString(rec.SourceDigest),
		rec.SourceSize,
		rec.Model,
		rec.Language,
		boolToInt(rec.Diarization),
		string(rec.Status),
		nullString(rec.ErrorKind),
		nullString(rec.ErrorMessage),
		formatTime(rec.CreatedAt),
		nullTime(rec.StartedAt),
		formatTime(rec.FinishedAt),
		rec.ProcessingSeconds,
		rec.DurationSeconds,
		rec.SpeakerCount,
		rec.SegmentCount,
		rec.WordCount,
		rec.MeanConfidence,
		outputs,
	)
	if err != nil {
		return fmt.Errorf("save history record: %w", err)
	}
	return nil
}

// Get returns the record for id or an error wrapping services.ErrJobNotFound.
func (s *Store) Get(ctx context.Context, id string) (Record, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+recordColumns+` FROM job_history WHERE job_id = ?`, id)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, fmt.Errorf("%w: %s", services.ErrJobNotFound, id)
	}
	if err != nil {
		return Record{}, fmt.Errorf("get history record: %w", err)
	}
	return rec, nil
}

// List returns records newest first.
func (s *Store) List(ctx context.Context, filter Filter) ([]Record, error) {
	var (
		clauses []string
		args    []any
	)
	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, st := range filter.Statuses {
			placeholders[i] = "?"
			args = append(args, string(st))
		}
		clauses = append(clauses, "status IN ("+strings.Join(placeholders, ", ")+")")
	}
	if !filter.Since.IsZero() {
		clauses = append(clauses, "finished_at >= ?")
		args = append(args, formatTime(filter.Since))
	}
	query := `SELECT ` + recordColumns + ` FROM job_history`
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY finished_at DESC, job_id ASC"
	limit := filter.Limit
	if limit <= 0 {
		limit = -1
	}
	query += " LIMIT ? OFFSET ?"
	args = append(args, limit, max(filter.Offset, 0))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan history record: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Delete removes the record for id, reporting whether one existed.
func (s *Store) Delete(ctx context.Context, id string) (bool, error) {
	res, err := s.execWithRetry(ctx, `DELETE FROM job_history WHERE job_id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete history record: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Prune removes records finished before cutoff.
func (s *Store) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.execWithRetry(ctx, `DELETE FROM job_history WHERE finished_at < ?`, formatTime(cutoff))
	if err != nil {
		return 0, fmt.Errorf("prune history: %w", err)
	}
	return res.RowsAffected()
}

// Stats aggregates the archive by status.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT status, COUNT(1), COALESCE(SUM(duration_seconds), 0), COALESCE(SUM(processing_seconds), 0)
         FROM job_history GROUP BY status`)
	if err != nil {
		return Stats{}, fmt.Errorf("history stats: %w", err)
	}
	defer rows.Close()

	stats := Stats{ByStatus: make(map[string]int)}
	for rows.Next() {
		var (
			status     string
			count      int
			audio      float64
			processing float64
		)
		if err := rows.Scan(&status, &count, &audio, &processing); err != nil {
			return Stats{}, fmt.Errorf("scan history stats: %w", err)
		}
		stats.ByStatus[status] = count
		stats.Total += count
		stats.AudioSeconds += audio
		stats.ProcessingTotal += processing
	}
	return stats, rows.Err()
}

// FindByDigest returns completed records for the same source content.
func (s *Store) FindByDigest(ctx context.Context, digest string) ([]Record, error) {
	digest = strings.TrimSpace(digest)
	if digest == "" {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+recordColumns+` FROM job_history WHERE source_digest = ? AND status = ? ORDER BY finished_at DESC`,
		digest, string(jobs.StatusCompleted))
	if err != nil {
		return nil, fmt.Errorf("find history by digest: %w", err)
	}
	defer rows.Close()
	var out []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan history record: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func scanRecord(scanner interface{ Scan(dest ...any) error }) (Record, error) {
	var (
		rec         Record
		digest      sql.NullString
		diarization int64
		status      string
		errorKind   sql.NullString
		errorMsg    sql.NullString
		createdRaw  string
		startedRaw  sql.NullString
		finishedRaw string
		outputsRaw  sql.NullString
	)
	if err := scanner.Scan(
		&rec.JobID,
		&rec.Filename,
		&digest,
		&rec.SourceSize,
		&rec.Model,
		&rec.Language,
		&diarization,
		&status,
		&errorKind,
		&errorMsg,
		&createdRaw,
		&startedRaw,
		&finishedRaw,
		&rec.ProcessingSeconds,
		&rec.DurationSeconds,
		&rec.SpeakerCount,
		&rec.SegmentCount,
		&rec.WordCount,
		&rec.MeanConfidence,
		&outputsRaw,
	); err != nil {
		return Record{}, err
	}
	rec.SourceDigest = digest.String
	rec.Diarization = diarization != 0
	rec.Status = jobs.Status(status)
	rec.ErrorKind = errorKind.String
	rec.ErrorMessage = errorMsg.String
	rec.CreatedAt = parseTime(createdRaw)
	rec.FinishedAt = parseTime(finishedRaw)
	if startedRaw.Valid && startedRaw.String != "" {
		ts := parseTime(startedRaw.String)
		rec.StartedAt = &ts
	}
	if outputsRaw.Valid && outputsRaw.String != "" {
		if err := json.Unmarshal([]byte(outputsRaw.String), &rec.Outputs); err != nil {
			return Record{}, fmt.Errorf("decode outputs: %w", err)
		}
	}
	return rec, nil
}

// timeLayout is fixed width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(raw string) time.Time {
	ts, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}
	}
	return ts
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func nullString(v string) sql.NullString {
	v = strings.TrimSpace(v)
	return sql.NullString{String: v, Valid: v != ""}
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}
