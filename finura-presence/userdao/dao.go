// Package userdao reads and updates the is_active flag of the users table.
package userdao

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// DAO provides access to the users table.
type DAO struct {
	db *sql.DB
}

func New(db *sql.DB) *DAO {
	return &DAO{db: db}
}

// Build opens dsn and returns a DAO over it.
func Build(dsn string) (*DAO, error) {
	db, err := Open(dsn)
	if err != nil {
		return nil, err
	}
	return New(db), nil
}

func (d *DAO) Close() error {
	return d.db.Close()
}

// ListActive returns the ids of every user with is_active = true.
func (d *DAO) ListActive(ctx context.Context) ([]string, error) {
	return d.listIDs(ctx, "SELECT id::text FROM users WHERE is_active = true")
}

// ListAll returns the ids of every user.
func (d *DAO) ListAll(ctx context.Context) ([]string, error) {
	return d.listIDs(ctx, "SELECT id::text FROM users")
}

func (d *DAO) listIDs(ctx context.Context, query string) ([]string, error) {
	rows, err := d.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query users: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan user id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read users: %w", err)
	}
	return ids, nil
}

// Deactivate sets is_active = false for every id in a single statement and
// returns the number of rows changed.
func (d *DAO) Deactivate(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	placeholders := make([]string, len(ids))
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = id
	}

	query := "UPDATE users SET is_active = false WHERE id::text IN (" + strings.Join(placeholders, ",") + ")"
	result, err := d.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to deactivate %v users: %w", len(ids), err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read deactivated count: %w", err)
	}
	return n, nil
}

// SetActive updates a single user and reports whether the user exists.
func (d *DAO) SetActive(ctx context.Context, id string, active bool) (bool, error) {
	result, err := d.db.ExecContext(ctx, "UPDATE users SET is_active = $1 WHERE id::text = $2", active, id)
	if err != nil {
		return false, fmt.Errorf("failed to update user %v: %w", id, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read update count for user %v: %w", id, err)
	}
	return n > 0, nil
}
