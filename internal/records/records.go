// Package records stores free-text notes in the registro table. The query
// pipeline never writes through it.
package records

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

var ErrNotFound = errors.New("record not found")

type Record struct {
	ID    int64  `json:"id"`
	Texto string `json:"texto"`
}

type Store interface {
	Add(ctx context.Context, texto string) (Record, error)
	Get(ctx context.Context, id int64) (Record, error)
	Delete(ctx context.Context, id int64) error
}

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Add(ctx context.Context, texto string) (Record, error) {
	texto = strings.TrimSpace(texto)
	if texto == "" {
		return Record{}, fmt.Errorf("texto is required")
	}
	record := Record{Texto: texto}
	err := r.db.QueryRowContext(ctx, `
INSERT INTO registro (texto)
VALUES ($1)
RETURNING id`, texto).Scan(&record.ID)
	if err != nil {
		return Record{}, fmt.Errorf("add record: %w", err)
	}
	return record, nil
}

func (r *Repository) Get(ctx context.Context, id int64) (Record, error) {
	var record Record
	err := r.db.QueryRowContext(ctx, `
SELECT id, texto
FROM registro
WHERE id = $1`, id).Scan(&record.ID, &record.Texto)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Record{}, ErrNotFound
		}
		return Record{}, fmt.Errorf("get record: %w", err)
	}
	return record, nil
}

func (r *Repository) Delete(ctx context.Context, id int64) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM registro WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete record: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete record rows affected: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}
