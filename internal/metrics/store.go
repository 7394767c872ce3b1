package metrics

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"nutrition-resolver/internal/nutrition"
	"nutrition-resolver/internal/shared"
)

// ExecutionMetric records metadata for a single agent execution.
type ExecutionMetric struct {
	RequestID        string
	AgentName        string
	Model            string
	PromptTokens     int
	CompletionTokens int
	LatencyMS        int64
	Timestamp        time.Time
}

// ResolutionMetric records how a single food item was resolved.
type ResolutionMetric struct {
	RequestID string
	ItemName  string
	Source    nutrition.Source
	LatencyMS int64
	Timestamp time.Time
}

// Store handles persistence of metrics to SQLite.
type Store struct {
	db *sql.DB
}

// NewStore initializes the Store with an existing database connection.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Record saves a metric to the database.
func (s *Store) Record(m ExecutionMetric) error {
	ts := m.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	_, err := s.db.ExecContext(context.Background(),
		`INSERT INTO execution_metrics (request_id, agent_name, model, prompt_tokens, completion_tokens, latency_ms, timestamp)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		m.RequestID, m.AgentName, m.Model, m.PromptTokens, m.CompletionTokens, m.LatencyMS, ts.UTC())
	if err != nil {
		return fmt.Errorf("failed to record execution metric: %w", err)
	}
	return nil
}

// RecordMeta records metrics directly from shared.AgentMeta.
func (s *Store) RecordMeta(meta shared.AgentMeta) error {
	if meta.Usage.PromptTokens == 0 && meta.Usage.CompletionTokens == 0 {
		return nil
	}
	m := MapUsage(meta.AgentName, meta.Usage, meta.Latency)
	m.RequestID = meta.RequestID
	return s.Record(m)
}

// RecordResolution saves the outcome of one resolved item.
func (s *Store) RecordResolution(m ResolutionMetric) error {
	ts := m.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	_, err := s.db.ExecContext(context.Background(),
		`INSERT INTO resolution_metrics (request_id, item_name, source, latency_ms, timestamp) VALUES (?, ?, ?, ?, ?)`,
		m.RequestID, m.ItemName, string(m.Source), m.LatencyMS, ts.UTC())
	if err != nil {
		return fmt.Errorf("failed to record resolution metric: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DailyUsage represents token totals for a single day.
type DailyUsage struct {
	Date            string
	TotalPrompt     int
	TotalCompletion int
	TotalExecution  int
}

// GetDailyUsage retrieves usage for the last N days.
func (s *Store) GetDailyUsage(days int) ([]DailyUsage, error) {
	since := time.Now().UTC().AddDate(0, 0, -days)
	rows, err := s.db.QueryContext(context.Background(),
		`SELECT substr(timestamp, 1, 10) AS day, SUM(prompt_tokens), SUM(completion_tokens), COUNT(*)
		 FROM execution_metrics
		 WHERE timestamp >= ?
		 GROUP BY day
		 ORDER BY day DESC`, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query daily usage: %w", err)
	}
	defer rows.Close()

	var results []DailyUsage
	for rows.Next() {
		var (
			u          DailyUsage
			day        sql.NullString
			prompt     sql.NullInt64
			completion sql.NullInt64
		)
		if err := rows.Scan(&day, &prompt, &completion, &u.TotalExecution); err != nil {
			return nil, fmt.Errorf("failed to scan daily usage: %w", err)
		}

		u.Date = "Unknown"
		if day.Valid {
			u.Date = day.String
		}
		u.TotalPrompt = int(prompt.Int64)
		u.TotalCompletion = int(completion.Int64)

		results = append(results, u)
	}
	return results, rows.Err()
}

// SourceCount is the number of items resolved by one source.
type SourceCount struct {
	Source       nutrition.Source
	Count        int
	AvgLatencyMS int64
}

// GetSourceBreakdown counts resolved items per source over the last N days,
// most frequent first.
func (s *Store) GetSourceBreakdown(days int) ([]SourceCount, error) {
	since := time.Now().UTC().AddDate(0, 0, -days)
	rows, err := s.db.QueryContext(context.Background(),
		`SELECT source, COUNT(*) AS n, CAST(AVG(latency_ms) AS INTEGER)
		 FROM resolution_metrics
		 WHERE timestamp >= ?
		 GROUP BY source
		 ORDER BY n DESC, source`, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query source breakdown: %w", err)
	}
	defer rows.Close()

	var results []SourceCount
	for rows.Next() {
		var (
			sc     SourceCount
			source string
		)
		if err := rows.Scan(&source, &sc.Count, &sc.AvgLatencyMS); err != nil {
			return nil, fmt.Errorf("failed to scan source breakdown: %w", err)
		}
		sc.Source = nutrition.Source(source)
		results = append(results, sc)
	}
	return results, rows.Err()
}

// Cleanup removes records older than the specified number of days.
func (s *Store) Cleanup(olderThanDays int) (int64, error) {
	threshold := time.Now().UTC().AddDate(0, 0, -olderThanDays)

	var total int64
	for _, table := range []string{"execution_metrics", "resolution_metrics"} {
		res, err := s.db.ExecContext(context.Background(),
			`DELETE FROM `+table+` WHERE timestamp < ?`, threshold)
		if err != nil {
			return total, fmt.Errorf("failed to clean up %s: %w", table, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}

// MapUsage helper to convert shared.TokenUsage to ExecutionMetric.
func MapUsage(agentName string, usage shared.TokenUsage, latency time.Duration) ExecutionMetric {
	return ExecutionMetric{
		AgentName:        agentName,
		Model:            usage.Model,
		PromptTokens:     usage.PromptTokens,
		CompletionTokens: usage.CompletionTokens,
		LatencyMS:        latency.Milliseconds(),
		Timestamp:        time.Now().UTC(),
	}
}
