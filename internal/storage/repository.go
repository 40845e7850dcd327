package storage

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/glendonC/mallards/internal/contracts"
)

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// InsertTransactions appends records to a dataset and bumps its version.
// Schema flags only ever widen: once a batch mapped a column it stays
// enabled for the dataset.
func (r *Repository) InsertTransactions(ctx context.Context, datasetID string, schema contracts.Schema, records []contracts.TransactionRecord) (string, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return "", fmt.Errorf("begin ingest: %w", err)
	}
	defer tx.Rollback(ctx)

	var version int64
	err = tx.QueryRow(ctx, `
        INSERT INTO datasets (id, has_type, has_region, has_approval, version, updated_at)
        VALUES ($1, $2, $3, $4, 1, NOW())
        ON CONFLICT (id) DO UPDATE SET
            has_type     = datasets.has_type OR EXCLUDED.has_type,
            has_region   = datasets.has_region OR EXCLUDED.has_region,
            has_approval = datasets.has_approval OR EXCLUDED.has_approval,
            version      = datasets.version + 1,
            updated_at   = NOW()
        RETURNING version
    `, datasetID, schema.HasType, schema.HasRegion, schema.HasApproval).Scan(&version)
	if err != nil {
		return "", fmt.Errorf("upsert dataset: %w", err)
	}

	rows := make([][]any, 0, len(records))
	for _, rec := range records {
		rows = append(rows, []any{datasetID, rec.Timestamp, rec.Amount, rec.Type, rec.Region, string(rec.ApprovalStatus)})
	}
	_, err = tx.CopyFrom(ctx,
		pgx.Identifier{"transactions"},
		[]string{"dataset_id", "occurred_at", "amount", "txn_type", "region", "approval_status"},
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		return "", fmt.Errorf("copy transactions: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return "", fmt.Errorf("commit ingest: %w", err)
	}
	return strconv.FormatInt(version, 10), nil
}

// LoadDataset returns every record of the dataset at or after since, in
// timestamp order. A zero since loads the full history. Unknown datasets
// return pgx.ErrNoRows.
func (r *Repository) LoadDataset(ctx context.Context, datasetID string, since time.Time) (contracts.Dataset, error) {
	ds := contracts.Dataset{ID: datasetID}
	var version int64
	err := r.pool.QueryRow(ctx, `
        SELECT has_type, has_region, has_approval, version
        FROM datasets
        WHERE id = $1
    `, datasetID).Scan(&ds.Schema.HasType, &ds.Schema.HasRegion, &ds.Schema.HasApproval, &version)
	if err != nil {
		return contracts.Dataset{}, fmt.Errorf("load dataset %s: %w", datasetID, err)
	}
	ds.Version = strconv.FormatInt(version, 10)
	if !since.IsZero() {
		ds.Version += "@" + strconv.FormatInt(since.Unix(), 10)
	}

	rows, err := r.pool.Query(ctx, `
        SELECT occurred_at, amount, txn_type, region, approval_status
        FROM transactions
        WHERE dataset_id = $1
          AND ($2::timestamptz IS NULL OR occurred_at >= $2)
        ORDER BY occurred_at ASC, id ASC
    `, datasetID, nullableTime(since))
	if err != nil {
		return contracts.Dataset{}, fmt.Errorf("query transactions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var rec contracts.TransactionRecord
		var approval string
		if err := rows.Scan(&rec.Timestamp, &rec.Amount, &rec.Type, &rec.Region, &approval); err != nil {
			return contracts.Dataset{}, fmt.Errorf("scan transaction: %w", err)
		}
		rec.Timestamp = rec.Timestamp.UTC()
		rec.ApprovalStatus = contracts.ApprovalStatus(approval)
		ds.Records = append(ds.Records, rec)
	}
	if err := rows.Err(); err != nil {
		return contracts.Dataset{}, fmt.Errorf("iterate transactions: %w", err)
	}
	return ds, nil
}

func (r *Repository) HasOpenAlertInCooldown(ctx context.Context, datasetID, groupKey string, cooldown time.Duration) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `
        SELECT EXISTS (
            SELECT 1
            FROM alerts
            WHERE status IN ('open', 'acknowledged')
              AND dataset_id = $1
              AND group_key = $2
              AND created_at >= NOW() - $3::interval
        )
    `, datasetID, groupKey, fmt.Sprintf("%f seconds", cooldown.Seconds())).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check cooldown alert: %w", err)
	}
	return exists, nil
}

func (r *Repository) HasOpenAlertForEvent(ctx context.Context, eventID string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `
        SELECT EXISTS (
            SELECT 1
            FROM alerts
            WHERE status IN ('open', 'acknowledged')
              AND event_id = $1
        )
    `, eventID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check event alert: %w", err)
	}
	return exists, nil
}

func (r *Repository) InsertAlert(ctx context.Context, alert contracts.AlertRecord) error {
	if alert.ID == "" {
		alert.ID = uuid.NewString()
	}
	if alert.Status == "" {
		alert.Status = "open"
	}

	_, err := r.pool.Exec(ctx, `
        INSERT INTO alerts
            (id, event_id, dataset_id, group_key, title, description, intensity, severity, status)
        VALUES
            ($1, $2, $3, $4, $5, $6, $7, $8, $9)
    `, alert.ID, alert.EventID, alert.DatasetID, alert.GroupKey, alert.Title, alert.Description, alert.Intensity, alert.Severity, alert.Status)
	if err != nil {
		return fmt.Errorf("insert alert: %w", err)
	}
	return nil
}

func (r *Repository) ListAlerts(ctx context.Context, datasetID, status string, limit int) ([]contracts.AlertRecord, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	rows, err := r.pool.Query(ctx, `
        SELECT id, event_id, dataset_id, group_key, title, description, intensity, severity, status, created_at, updated_at
        FROM alerts
        WHERE ($1 = '' OR dataset_id = $1)
          AND ($2 = '' OR status = $2)
        ORDER BY created_at DESC
        LIMIT $3
    `, datasetID, status, limit)
	if err != nil {
		return nil, fmt.Errorf("query alerts: %w", err)
	}
	defer rows.Close()

	alerts := make([]contracts.AlertRecord, 0, limit)
	for rows.Next() {
		var alert contracts.AlertRecord
		if err := rows.Scan(
			&alert.ID,
			&alert.EventID,
			&alert.DatasetID,
			&alert.GroupKey,
			&alert.Title,
			&alert.Description,
			&alert.Intensity,
			&alert.Severity,
			&alert.Status,
			&alert.CreatedAt,
			&alert.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		alerts = append(alerts, alert)
	}
	return alerts, rows.Err()
}

func (r *Repository) UpdateAlertStatus(ctx context.Context, id, status string) error {
	cmd, err := r.pool.Exec(ctx, `
        UPDATE alerts
        SET status = $2,
            updated_at = NOW(),
            acknowledged_at = CASE WHEN $2 = 'acknowledged' THEN NOW() ELSE acknowledged_at END,
            resolved_at = CASE WHEN $2 = 'resolved' THEN NOW() ELSE resolved_at END
        WHERE id = $1
    `, id, status)
	if err != nil {
		return fmt.Errorf("update alert status: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func nullableTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
