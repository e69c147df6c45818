package roster

import (
	"context"
	"database/sql"
	"fmt"

	"chatpulse/internal/sentinel"
	"chatpulse/internal/session/models"
)

// PostgresStore persists the roster in the tenant_roster table.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed roster store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Save upserts the entry. The original created_at is kept on conflict.
func (s *PostgresStore) Save(ctx context.Context, e Entry) error {
	query := `
		INSERT INTO tenant_roster (tenant_id, display_name, account_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $4)
		ON CONFLICT (tenant_id) DO UPDATE
		SET display_name = EXCLUDED.display_name,
		    account_id = EXCLUDED.account_id,
		    updated_at = EXCLUDED.updated_at
	`
	_, err := s.db.ExecContext(ctx, query,
		e.TenantID.String(),
		e.DisplayInfo.Name,
		e.DisplayInfo.AccountID,
		e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("save roster entry: %w", err)
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, tenantID models.TenantID) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM tenant_roster WHERE tenant_id = $1`, tenantID.String())
	if err != nil {
		return fmt.Errorf("delete roster entry: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete roster entry rows: %w", err)
	}
	if rows == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) List(ctx context.Context) ([]Entry, error) {
	query := `
		SELECT tenant_id, display_name, account_id, created_at
		FROM tenant_roster
		ORDER BY created_at, tenant_id
	`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list roster: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e        Entry
			tenantID string
		)
		if err := rows.Scan(&tenantID, &e.DisplayInfo.Name, &e.DisplayInfo.AccountID, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan roster entry: %w", err)
		}
		e.TenantID = models.TenantID(tenantID)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate roster: %w", err)
	}
	return out, nil
}
