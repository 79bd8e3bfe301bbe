package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/sgamolt/clawmarket/internal/model"
)

// InsertAgentLog appends one audit row for an agent operation.
func (db *DB) InsertAgentLog(ctx context.Context, log model.AgentLog) error {
	var detail any
	if log.Detail != nil {
		b, err := json.Marshal(log.Detail)
		if err != nil {
			return fmt.Errorf("storage: encode log detail: %w", err)
		}
		detail = b
	}
	createdAt := log.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err := db.pool.Exec(ctx,
		`INSERT INTO agent_logs (package_id, action, status, duration_ms, detail, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		log.PackageID, string(log.Action), string(log.Status), log.DurationMs, detail, createdAt,
	)
	if err != nil {
		return fmt.Errorf("storage: insert agent log: %w", err)
	}
	return nil
}

// CountFailedLogsSince returns the number of failed log rows for a package
// created after t.
func (db *DB) CountFailedLogsSince(ctx context.Context, packageID uuid.UUID, t time.Time) (int, error) {
	var n int
	err := db.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM agent_logs
		 WHERE package_id = $1 AND status = 'failed' AND created_at > $2`,
		packageID, t).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("storage: count failed logs: %w", err)
	}
	return n, nil
}

// CountLogsSince returns the number of log rows created after t, any status.
func (db *DB) CountLogsSince(ctx context.Context, t time.Time) (int, error) {
	var n int
	err := db.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM agent_logs WHERE created_at > $1`, t).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("storage: count logs: %w", err)
	}
	return n, nil
}

// ListAgentLogs returns the most recent log rows, newest first.
func (db *DB) ListAgentLogs(ctx context.Context, limit int) ([]model.AgentLog, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := db.pool.Query(ctx,
		`SELECT id, package_id, action, status, duration_ms, detail, created_at
		 FROM agent_logs ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("storage: list agent logs: %w", err)
	}
	defer rows.Close()

	var logs []model.AgentLog
	for rows.Next() {
		var (
			l      model.AgentLog
			action string
			status string
			detail []byte
		)
		if err := rows.Scan(&l.ID, &l.PackageID, &action, &status, &l.DurationMs, &detail, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("storage: scan agent log: %w", err)
		}
		l.Action = model.LogAction(action)
		l.Status = model.LogStatus(status)
		if len(detail) > 0 {
			if err := json.Unmarshal(detail, &l.Detail); err != nil {
				return nil, fmt.Errorf("storage: decode log detail: %w", err)
			}
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}
