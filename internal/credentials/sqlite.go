package credentials

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/photoflow/internal/common"
	"github.com/dmitrijs2005/photoflow/internal/dbx"
)

type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) Get(ctx context.Context, email string) (*Credential, error) {

	query := `select email, auth_blob, added_at from credentials where email=?`
	row := r.db.QueryRowContext(ctx, query, email)

	c := &Credential{}
	err := row.Scan(&c.Email, &c.AuthBlob, &c.AddedAt)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("error selecting credential: %w", err)
	}

	return c, nil
}

func (r *SQLiteRepository) Put(ctx context.Context, c *Credential) error {

	query := `insert into credentials (email, auth_blob, added_at)
			values (?, ?, ?)
			on conflict(email) do update set auth_blob = excluded.auth_blob,
				added_at = excluded.added_at
	`
	_, err := r.db.ExecContext(ctx, query, c.Email, c.AuthBlob, c.AddedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert credential: %w", err)
	}

	return nil
}

func (r *SQLiteRepository) Delete(ctx context.Context, email string) error {

	query := `delete from credentials where email=?`
	result, err := r.db.ExecContext(ctx, query, email)
	if err != nil {
		return fmt.Errorf("failed to delete credential: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return common.ErrorNotFound
	}

	return nil
}

func (r *SQLiteRepository) List(ctx context.Context) ([]*Credential, error) {

	query := `select email, auth_blob, added_at from credentials order by added_at`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("error selecting credentials: %w", err)
	}
	defer rows.Close()

	var result []*Credential

	for rows.Next() {
		var item = &Credential{}
		err := rows.Scan(&item.Email, &item.AuthBlob, &item.AddedAt)
		if err != nil {
			return nil, err
		}
		result = append(result, item)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}
