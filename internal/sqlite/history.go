package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/mr-karan/searchwatch/pkg/models"
)

const (
	insertExecutionQuery = `INSERT INTO rule_executions (
    rule_id,
    rule_name,
    target,
    status,
    match_count,
    failure_count,
    error_type,
    error_message,
    triggered_at,
    duration_ms
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	selectExecutionBase = `SELECT
    id,
    rule_id,
    rule_name,
    target,
    status,
    match_count,
    failure_count,
    error_type,
    error_message,
    triggered_at,
    duration_ms
FROM rule_executions`

	pruneExecutionsQuery = `DELETE FROM rule_executions
WHERE rule_id = ?
  AND id IN (
    SELECT id FROM (
        SELECT id, ROW_NUMBER() OVER (ORDER BY triggered_at DESC, id DESC) AS rn
        FROM rule_executions
        WHERE rule_id = ?
    ) WHERE rn > ?
  )`

	insertNotificationQuery = `INSERT INTO notification_attempts (
    rule_id,
    notification_id,
    channel,
    kind,
    error,
    sent_at
) VALUES (?, ?, ?, ?, ?, ?)`

	selectNotificationBase = `SELECT
    rule_id,
    notification_id,
    channel,
    kind,
    error,
    sent_at
FROM notification_attempts`

	pruneNotificationsQuery = `DELETE FROM notification_attempts
WHERE rule_id = ?
  AND id IN (
    SELECT id FROM (
        SELECT id, ROW_NUMBER() OVER (ORDER BY sent_at DESC, id DESC) AS rn
        FROM notification_attempts
        WHERE rule_id = ?
    ) WHERE rn > ?
  )`
)

// RecordExecution stores rec and prunes the rule's history to the configured limit.
func (db *DB) RecordExecution(ctx context.Context, rec models.ExecutionRecord) error {
	tx, err := db.writeDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, insertExecutionQuery,
		rec.RuleID,
		rec.RuleName,
		rec.Target,
		string(rec.Status),
		rec.MatchCount,
		rec.FailureCount,
		nullableString(rec.ErrorType),
		nullableString(rec.ErrorMessage),
		rec.TriggeredAt.UnixMilli(),
		rec.Duration.Milliseconds(),
	); err != nil {
		return fmt.Errorf("failed to insert execution: %w", err)
	}
	if _, err := tx.ExecContext(ctx, pruneExecutionsQuery, rec.RuleID, rec.RuleID, db.historyLimit); err != nil {
		return fmt.Errorf("failed to prune executions: %w", err)
	}
	return tx.Commit()
}

// RecordNotification stores rec and prunes the rule's attempts to the configured limit.
func (db *DB) RecordNotification(ctx context.Context, rec models.NotificationRecord) error {
	tx, err := db.writeDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, insertNotificationQuery,
		rec.RuleID,
		rec.NotificationID,
		string(rec.Channel),
		string(rec.Kind),
		nullableString(rec.Error),
		rec.SentAt.UnixMilli(),
	); err != nil {
		return fmt.Errorf("failed to insert notification attempt: %w", err)
	}
	if _, err := tx.ExecContext(ctx, pruneNotificationsQuery, rec.RuleID, rec.RuleID, db.historyLimit); err != nil {
		return fmt.Errorf("failed to prune notification attempts: %w", err)
	}
	return tx.Commit()
}

// ListExecutions returns the most recent executions of a rule, newest first.
func (db *DB) ListExecutions(ctx context.Context, ruleID string, limit int) ([]models.ExecutionRecord, error) {
	if limit <= 0 || limit > db.historyLimit {
		limit = db.historyLimit
	}
	query := selectExecutionBase + " WHERE rule_id = ? ORDER BY triggered_at DESC, id DESC LIMIT ?"
	rows, err := db.readDB.QueryContext(ctx, query, ruleID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list executions: %w", err)
	}
	defer rows.Close()

	out := make([]models.ExecutionRecord, 0)
	for rows.Next() {
		var (
			rec         models.ExecutionRecord
			status      string
			errType     sql.NullString
			errMessage  sql.NullString
			triggeredAt int64
			durationMs  int64
		)
		if err := rows.Scan(&rec.ID, &rec.RuleID, &rec.RuleName, &rec.Target, &status,
			&rec.MatchCount, &rec.FailureCount, &errType, &errMessage, &triggeredAt, &durationMs); err != nil {
			return nil, fmt.Errorf("failed to scan execution: %w", err)
		}
		rec.Status = models.ExecutionStatus(status)
		rec.ErrorType = errType.String
		rec.ErrorMessage = errMessage.String
		rec.TriggeredAt = time.UnixMilli(triggeredAt).UTC()
		rec.Duration = time.Duration(durationMs) * time.Millisecond
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating executions: %w", err)
	}
	return out, nil
}

// ListNotifications returns the most recent notification attempts of a rule, newest first.
func (db *DB) ListNotifications(ctx context.Context, ruleID string, limit int) ([]models.NotificationRecord, error) {
	if limit <= 0 || limit > db.historyLimit {
		limit = db.historyLimit
	}
	query := selectNotificationBase + " WHERE rule_id = ? ORDER BY sent_at DESC, id DESC LIMIT ?"
	rows, err := db.readDB.QueryContext(ctx, query, ruleID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list notification attempts: %w", err)
	}
	defer rows.Close()

	out := make([]models.NotificationRecord, 0)
	for rows.Next() {
		var (
			rec     models.NotificationRecord
			channel string
			kind    string
			errText sql.NullString
			sentAt  int64
		)
		if err := rows.Scan(&rec.RuleID, &rec.NotificationID, &channel, &kind, &errText, &sentAt); err != nil {
			return nil, fmt.Errorf("failed to scan notification attempt: %w", err)
		}
		rec.Channel = models.NotificationChannel(channel)
		rec.Kind = models.NotificationKind(kind)
		rec.Error = errText.String
		rec.SentAt = time.UnixMilli(sentAt).UTC()
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating notification attempts: %w", err)
	}
	return out, nil
}

func nullableString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
