package history

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/photoflow/internal/dbx"
)

type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) Add(ctx context.Context, e *Entry) error {

	query := `insert into upload_history (id, file_name, file_path, uploaded_at, media_key, was_deleted, account_email)
			values (?, ?, ?, ?, ?, ?, ?)`

	_, err := r.db.ExecContext(ctx, query,
		e.ID, e.FileName, e.FilePath, e.UploadedAt, e.MediaKey, e.WasDeleted, e.AccountEmail)
	if err != nil {
		return fmt.Errorf("failed to insert history entry: %w", err)
	}

	return nil
}

func (r *SQLiteRepository) List(ctx context.Context, limit int) ([]*Entry, error) {

	query := `select id, file_name, file_path, uploaded_at, media_key, was_deleted, account_email
			from upload_history order by uploaded_at desc limit ?`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("error selecting history: %w", err)
	}
	defer rows.Close()

	var result []*Entry

	for rows.Next() {
		var item = &Entry{}
		err := rows.Scan(&item.ID, &item.FileName, &item.FilePath, &item.UploadedAt,
			&item.MediaKey, &item.WasDeleted, &item.AccountEmail)
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
