package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
)

// LookupRepo audits recipient username checks.
type LookupRepo struct {
	pool *pgxpool.Pool
}

func NewLookupRepo(pool *pgxpool.Pool) *LookupRepo {
	return &LookupRepo{pool: pool}
}

func (r *LookupRepo) Record(ctx context.Context, username string, found bool, requesterID *int64, clientIP string) error {
	if r.pool == nil {
		return fmt.Errorf("postgres pool is nil")
	}
	username = strings.TrimSpace(username)
	if username == "" {
		return fmt.Errorf("lookup username is required")
	}

	_, err := r.pool.Exec(ctx, `
INSERT INTO recipient_lookups (
	username,
	found,
	requester_id,
	client_ip,
	created_at
) VALUES ($1, $2, $3, $4, NOW())
`, username, found, requesterID, clientIP)
	if err != nil {
		return fmt.Errorf("record recipient lookup: %w", err)
	}

	return nil
}
