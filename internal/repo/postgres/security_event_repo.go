package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// SecurityEventRepo records anomaly-filter hits for later review.
type SecurityEventRepo struct {
	pool *pgxpool.Pool
}

type SecurityEventRecord struct {
	ID         int64
	Kind       string
	Path       string
	Method     string
	Pattern    string
	ClientIP   string
	UserAgent  string
	OccurredAt time.Time
}

func NewSecurityEventRepo(pool *pgxpool.Pool) *SecurityEventRepo {
	return &SecurityEventRepo{pool: pool}
}

func (r *SecurityEventRepo) Insert(ctx context.Context, event SecurityEventRecord) error {
	if r.pool == nil {
		return fmt.Errorf("postgres pool is nil")
	}
	if strings.TrimSpace(event.Kind) == "" || strings.TrimSpace(event.Path) == "" {
		return fmt.Errorf("invalid security event payload")
	}

	occurredAt := event.OccurredAt.UTC()
	if occurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}

	_, err := r.pool.Exec(ctx, `
INSERT INTO security_events (
	kind,
	path,
	method,
	pattern,
	client_ip,
	user_agent,
	occurred_at,
	created_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
`,
		strings.ToLower(strings.TrimSpace(event.Kind)),
		event.Path,
		strings.ToUpper(strings.TrimSpace(event.Method)),
		event.Pattern,
		event.ClientIP,
		event.UserAgent,
		occurredAt,
	)
	if err != nil {
		return fmt.Errorf("insert security event: %w", err)
	}

	return nil
}

func (r *SecurityEventRepo) ListRecent(ctx context.Context, limit int) ([]SecurityEventRecord, error) {
	if r.pool == nil {
		return nil, fmt.Errorf("postgres pool is nil")
	}
	if limit <= 0 {
		limit = 100
	}

	rows, err := r.pool.Query(ctx, `
SELECT id, kind, path, method, pattern, client_ip, user_agent, occurred_at
FROM security_events
ORDER BY occurred_at DESC
LIMIT $1
`, limit)
	if err != nil {
		return nil, fmt.Errorf("list security events: %w", err)
	}
	defer rows.Close()

	var events []SecurityEventRecord
	for rows.Next() {
		var event SecurityEventRecord
		if err := rows.Scan(
			&event.ID,
			&event.Kind,
			&event.Path,
			&event.Method,
			&event.Pattern,
			&event.ClientIP,
			&event.UserAgent,
			&event.OccurredAt,
		); err != nil {
			return nil, fmt.Errorf("scan security event row: %w", err)
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate security event rows: %w", err)
	}

	return events, nil
}
