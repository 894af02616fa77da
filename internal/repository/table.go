// Package repository provides persistence implementations for the remote
// store using a PostgreSQL database.
package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/atinyakov/SiteKeeper/internal/models"
	"github.com/jmoiron/sqlx"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// PostgresTableRepository executes generic row operations against any table
// described by a models.Schema. Column and table names always come from the
// static schema, never from the request.
type PostgresTableRepository struct {
	// DB is the database handle for executing queries.
	DB *sqlx.DB
}

// NewPostgresTableRepository creates a repository over db, which must be a
// connection to a PostgreSQL instance.
func NewPostgresTableRepository(db *sql.DB) *PostgresTableRepository {
	return &PostgresTableRepository{DB: sqlx.NewDb(db, "postgres")}
}

// Select returns the rows of schema.Table matching filter, in the schema's
// default order.
func (r *PostgresTableRepository) Select(ctx context.Context, schema models.Schema, filter models.Filter) ([]map[string]any, error) {
	q := psql.Select(schema.ColumnNames()...).From(string(schema.Table))
	if len(filter) > 0 {
		q = q.Where(sq.Eq(filter))
	}
	if schema.OrderBy != "" {
		q = q.OrderBy(schema.OrderBy)
	}
	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select %s: %w", schema.Table, err)
	}

	rows, err := r.DB.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, dbError("select", schema.Table, err)
	}
	return scanRows(schema, rows)
}

// Insert adds row to schema.Table and returns the stored row.
func (r *PostgresTableRepository) Insert(ctx context.Context, schema models.Schema, row map[string]any) (map[string]any, error) {
	cols, vals, err := schema.Values(row)
	if err != nil {
		return nil, err
	}
	query, args, err := psql.Insert(string(schema.Table)).
		Columns(cols...).
		Values(vals...).
		Suffix(returning(schema)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build insert %s: %w", schema.Table, err)
	}
	return r.queryOne(ctx, schema, query, args)
}

// Upsert inserts row or, when conflictKey already exists, overwrites every
// supplied column with the new values.
func (r *PostgresTableRepository) Upsert(ctx context.Context, schema models.Schema, row map[string]any, conflictKey string) (map[string]any, error) {
	cols, vals, err := schema.Values(row)
	if err != nil {
		return nil, err
	}

	set := make([]string, 0, len(cols))
	for _, c := range cols {
		if c == conflictKey {
			continue
		}
		set = append(set, fmt.Sprintf("%s = EXCLUDED.%s", c, c))
	}
	if len(set) == 0 {
		set = append(set, fmt.Sprintf("%s = EXCLUDED.%s", conflictKey, conflictKey))
	}

	query, args, err := psql.Insert(string(schema.Table)).
		Columns(cols...).
		Values(vals...).
		Suffix(fmt.Sprintf("ON CONFLICT (%s) DO UPDATE SET %s %s",
			conflictKey, strings.Join(set, ", "), returning(schema))).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build upsert %s: %w", schema.Table, err)
	}
	return r.queryOne(ctx, schema, query, args)
}

// Update applies patch to every row matching filter and returns them.
func (r *PostgresTableRepository) Update(ctx context.Context, schema models.Schema, filter models.Filter, patch map[string]any) ([]map[string]any, error) {
	if len(filter) == 0 {
		return nil, models.ErrMissingFilter
	}
	cols, vals, err := schema.Values(patch)
	if err != nil {
		return nil, err
	}
	set := make(map[string]any, len(cols))
	for i, c := range cols {
		set[c] = vals[i]
	}

	query, args, err := psql.Update(string(schema.Table)).
		SetMap(set).
		Where(sq.Eq(filter)).
		Suffix(returning(schema)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build update %s: %w", schema.Table, err)
	}

	rows, err := r.DB.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, dbError("update", schema.Table, err)
	}
	return scanRows(schema, rows)
}

// Delete permanently removes every row matching filter and returns them.
func (r *PostgresTableRepository) Delete(ctx context.Context, schema models.Schema, filter models.Filter) ([]map[string]any, error) {
	if len(filter) == 0 {
		return nil, models.ErrMissingFilter
	}
	query, args, err := psql.Delete(string(schema.Table)).
		Where(sq.Eq(filter)).
		Suffix(returning(schema)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build delete %s: %w", schema.Table, err)
	}

	rows, err := r.DB.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, dbError("delete", schema.Table, err)
	}
	return scanRows(schema, rows)
}

func (r *PostgresTableRepository) queryOne(ctx context.Context, schema models.Schema, query string, args []any) (map[string]any, error) {
	row := map[string]any{}
	if err := r.DB.QueryRowxContext(ctx, query, args...).MapScan(row); err != nil {
		return nil, dbError("write", schema.Table, err)
	}
	return schema.Normalize(row), nil
}

func scanRows(schema models.Schema, rows *sqlx.Rows) ([]map[string]any, error) {
	defer rows.Close()

	out := []map[string]any{}
	for rows.Next() {
		row := map[string]any{}
		if err := rows.MapScan(row); err != nil {
			return nil, fmt.Errorf("scan %s: %w", schema.Table, err)
		}
		out = append(out, schema.Normalize(row))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows %s: %w", schema.Table, err)
	}
	return out, nil
}

func returning(schema models.Schema) string {
	return "RETURNING " + strings.Join(schema.ColumnNames(), ", ")
}
