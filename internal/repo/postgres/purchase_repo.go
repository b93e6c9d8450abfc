package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrPurchaseNotFound = errors.New("purchase not found")

// PurchaseRepo is the durable ledger for star purchases. Every pipeline
// run starts with a pending row keyed by idempotency key and ends with
// exactly one terminal update.
type PurchaseRepo struct {
	pool *pgxpool.Pool
}

type PurchaseRecord struct {
	ID             string
	IdempotencyKey string
	BuyerID        *int64
	BuyerUsername  *string
	Recipient      string
	Quantity       int64
	PaymentMethod  string
	AmountNano     *int64
	TxHash         *string
	TxLink         *string
	Status         string
	ErrorText      *string
	ClientIP       *string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

type NewPurchase struct {
	IdempotencyKey string
	BuyerID        *int64
	BuyerUsername  *string
	Recipient      string
	Quantity       int64
	PaymentMethod  string
	ClientIP       *string
}

type PurchaseOutcome struct {
	Status     string
	AmountNano *int64
	TxHash     *string
	TxLink     *string
	ErrorText  *string
}

type PurchaseStats struct {
	Total          int64
	Succeeded      int64
	Failed         int64
	Pending        int64
	StarsDelivered int64
	DistinctBuyers int64
}

func NewPurchaseRepo(pool *pgxpool.Pool) *PurchaseRepo {
	return &PurchaseRepo{pool: pool}
}

const purchaseColumns = `
id, idempotency_key, buyer_id, buyer_username, recipient, quantity,
payment_method, amount_nano, tx_hash, tx_link, status, error_text,
client_ip, created_at, updated_at`

// Begin atomically inserts a pending ledger row. When another request
// already holds the idempotency key, the existing row is returned with
// created=false and nothing is written.
func (r *PurchaseRepo) Begin(ctx context.Context, p NewPurchase) (PurchaseRecord, bool, error) {
	if r.pool == nil {
		return PurchaseRecord{}, false, fmt.Errorf("postgres pool is nil")
	}
	if strings.TrimSpace(p.IdempotencyKey) == "" || strings.TrimSpace(p.Recipient) == "" || p.Quantity <= 0 {
		return PurchaseRecord{}, false, fmt.Errorf("invalid purchase begin payload")
	}

	record, err := scanPurchase(r.pool.QueryRow(ctx, `
INSERT INTO purchases (
	id,
	idempotency_key,
	buyer_id,
	buyer_username,
	recipient,
	quantity,
	payment_method,
	status,
	client_ip,
	created_at,
	updated_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, 'pending', $8, NOW(), NOW())
ON CONFLICT (idempotency_key) DO NOTHING
RETURNING`+purchaseColumns,
		uuid.NewString(),
		strings.TrimSpace(p.IdempotencyKey),
		p.BuyerID,
		p.BuyerUsername,
		strings.TrimSpace(p.Recipient),
		p.Quantity,
		strings.ToLower(strings.TrimSpace(p.PaymentMethod)),
		p.ClientIP,
	))
	if err == nil {
		return record, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return PurchaseRecord{}, false, fmt.Errorf("begin purchase: %w", err)
	}

	existing, err := r.FindByKey(ctx, p.IdempotencyKey)
	if err != nil {
		return PurchaseRecord{}, false, err
	}
	return existing, false, nil
}

// Complete moves a pending row to its terminal state. A row that is
// already terminal is returned unchanged so repeated completions stay
// harmless.
func (r *PurchaseRepo) Complete(ctx context.Context, idempotencyKey string, outcome PurchaseOutcome) (PurchaseRecord, error) {
	if r.pool == nil {
		return PurchaseRecord{}, fmt.Errorf("postgres pool is nil")
	}
	idempotencyKey = strings.TrimSpace(idempotencyKey)
	if idempotencyKey == "" {
		return PurchaseRecord{}, fmt.Errorf("idempotency key is required")
	}
	status := strings.ToLower(strings.TrimSpace(outcome.Status))
	if status != "success" && status != "failed" {
		return PurchaseRecord{}, fmt.Errorf("purchase outcome must be terminal")
	}

	record, err := scanPurchase(r.pool.QueryRow(ctx, `
UPDATE purchases
SET
	status = $2,
	amount_nano = $3,
	tx_hash = $4,
	tx_link = $5,
	error_text = $6,
	updated_at = NOW()
WHERE idempotency_key = $1
  AND status = 'pending'
RETURNING`+purchaseColumns,
		idempotencyKey,
		status,
		outcome.AmountNano,
		outcome.TxHash,
		outcome.TxLink,
		outcome.ErrorText,
	))
	if err == nil {
		return record, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return PurchaseRecord{}, fmt.Errorf("complete purchase: %w", err)
	}

	return r.FindByKey(ctx, idempotencyKey)
}

func (r *PurchaseRepo) FindByKey(ctx context.Context, idempotencyKey string) (PurchaseRecord, error) {
	if r.pool == nil {
		return PurchaseRecord{}, fmt.Errorf("postgres pool is nil")
	}
	idempotencyKey = strings.TrimSpace(idempotencyKey)
	if idempotencyKey == "" {
		return PurchaseRecord{}, fmt.Errorf("idempotency key is required")
	}

	record, err := scanPurchase(r.pool.QueryRow(ctx, `
SELECT`+purchaseColumns+`
FROM purchases
WHERE idempotency_key = $1
LIMIT 1
`, idempotencyKey))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return PurchaseRecord{}, ErrPurchaseNotFound
		}
		return PurchaseRecord{}, fmt.Errorf("find purchase by key: %w", err)
	}

	return record, nil
}

func (r *PurchaseRepo) ListByBuyer(ctx context.Context, buyerID int64, limit int) ([]PurchaseRecord, error) {
	if r.pool == nil {
		return nil, fmt.Errorf("postgres pool is nil")
	}
	if buyerID <= 0 {
		return nil, fmt.Errorf("invalid buyer id")
	}
	if limit <= 0 {
		limit = 50
	}

	rows, err := r.pool.Query(ctx, `
SELECT`+purchaseColumns+`
FROM purchases
WHERE buyer_id = $1
ORDER BY created_at DESC
LIMIT $2
`, buyerID, limit)
	if err != nil {
		return nil, fmt.Errorf("list purchases by buyer: %w", err)
	}
	defer rows.Close()

	var records []PurchaseRecord
	for rows.Next() {
		record, err := scanPurchase(rows)
		if err != nil {
			return nil, fmt.Errorf("scan purchase row: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate purchase rows: %w", err)
	}

	return records, nil
}

// FailStalePending marks pending rows older than cutoff as failed.
// A row can stay pending only when the process died mid-pipeline.
func (r *PurchaseRepo) FailStalePending(ctx context.Context, cutoff time.Time) (int64, error) {
	if r.pool == nil {
		return 0, fmt.Errorf("postgres pool is nil")
	}

	tag, err := r.pool.Exec(ctx, `
UPDATE purchases
SET
	status = 'failed',
	error_text = 'abandoned',
	updated_at = NOW()
WHERE status = 'pending'
  AND created_at < $1
`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("fail stale pending purchases: %w", err)
	}

	return tag.RowsAffected(), nil
}

func (r *PurchaseRepo) Statistics(ctx context.Context) (PurchaseStats, error) {
	if r.pool == nil {
		return PurchaseStats{}, fmt.Errorf("postgres pool is nil")
	}

	var stats PurchaseStats
	err := r.pool.QueryRow(ctx, `
SELECT
	COUNT(*),
	COUNT(*) FILTER (WHERE status = 'success'),
	COUNT(*) FILTER (WHERE status = 'failed'),
	COUNT(*) FILTER (WHERE status = 'pending'),
	COALESCE(SUM(quantity) FILTER (WHERE status = 'success'), 0),
	COUNT(DISTINCT buyer_id) FILTER (WHERE buyer_id IS NOT NULL)
FROM purchases
`).Scan(
		&stats.Total,
		&stats.Succeeded,
		&stats.Failed,
		&stats.Pending,
		&stats.StarsDelivered,
		&stats.DistinctBuyers,
	)
	if err != nil {
		return PurchaseStats{}, fmt.Errorf("load purchase statistics: %w", err)
	}

	return stats, nil
}

func scanPurchase(row pgx.Row) (PurchaseRecord, error) {
	var record PurchaseRecord
	if err := row.Scan(
		&record.ID,
		&record.IdempotencyKey,
		&record.BuyerID,
		&record.BuyerUsername,
		&record.Recipient,
		&record.Quantity,
		&record.PaymentMethod,
		&record.AmountNano,
		&record.TxHash,
		&record.TxLink,
		&record.Status,
		&record.ErrorText,
		&record.ClientIP,
		&record.CreatedAt,
		&record.UpdatedAt,
	); err != nil {
		return PurchaseRecord{}, err
	}
	return record, nil
}
