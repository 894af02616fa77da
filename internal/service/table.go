// Package service provides business-logic services for the remote store:
// generic table access with ownership stamping and change publication,
// and account/token management.
package service

import (
	"context"
	"fmt"

	"github.com/atinyakov/SiteKeeper/internal/models"
)

// TableRepository defines the persistence operations needed by the TableService.
type TableRepository interface {
	// Select returns rows matching filter.
	Select(ctx context.Context, schema models.Schema, filter models.Filter) ([]map[string]any, error)
	// Insert adds a row and returns it as stored.
	Insert(ctx context.Context, schema models.Schema, row map[string]any) (map[string]any, error)
	// Upsert inserts or overwrites a row by conflictKey and returns it as stored.
	Upsert(ctx context.Context, schema models.Schema, row map[string]any, conflictKey string) (map[string]any, error)
	// Update patches rows matching filter and returns them.
	Update(ctx context.Context, schema models.Schema, filter models.Filter, patch map[string]any) ([]map[string]any, error)
	// Delete removes rows matching filter and returns them.
	Delete(ctx context.Context, schema models.Schema, filter models.Filter) ([]map[string]any, error)
}

// Publisher receives a Change for every written row.
type Publisher interface {
	Publish(models.Change)
}

// TableService implements the per-table select/insert/update/upsert/delete
// contract of the remote store.
type TableService struct {
	repo TableRepository
	pub  Publisher
}

// NewTableService constructs a TableService. pub may be nil.
func NewTableService(repo TableRepository, pub Publisher) *TableService {
	return &TableService{repo: repo, pub: pub}
}

// Select returns rows of table matching filter.
func (s *TableService) Select(ctx context.Context, userID string, table models.Table, filter models.Filter) ([]map[string]any, error) {
	schema, err := s.schema(table, filter)
	if err != nil {
		return nil, err
	}
	return s.repo.Select(ctx, schema, filter)
}

// Insert stores a new row.
func (s *TableService) Insert(ctx context.Context, userID string, table models.Table, row map[string]any) (map[string]any, error) {
	schema, err := s.schema(table, nil)
	if err != nil {
		return nil, err
	}
	stampOwner(schema, row, userID)

	out, err := s.repo.Insert(ctx, schema, row)
	if err != nil {
		return nil, err
	}
	s.publish(table, models.ChangeInsert, out)
	return out, nil
}

// Upsert stores row, replacing the existing row with the same conflictKey.
// An empty conflictKey means the primary key.
func (s *TableService) Upsert(ctx context.Context, userID string, table models.Table, row map[string]any, conflictKey string) (map[string]any, error) {
	schema, err := s.schema(table, nil)
	if err != nil {
		return nil, err
	}
	if conflictKey == "" {
		conflictKey = schema.PrimaryKey
	}
	if _, ok := schema.Column(conflictKey); !ok {
		return nil, fmt.Errorf("%w: on_conflict %s", models.ErrUnknownColumn, conflictKey)
	}
	if _, ok := row[conflictKey]; !ok {
		return nil, fmt.Errorf("%w: upsert %s: row has no %s", models.ErrInvalidValue, table, conflictKey)
	}
	stampOwner(schema, row, userID)

	out, err := s.repo.Upsert(ctx, schema, row, conflictKey)
	if err != nil {
		return nil, err
	}
	s.publish(table, models.ChangeUpsert, out)
	return out, nil
}

// Update patches every row matching filter. An empty filter is rejected.
func (s *TableService) Update(ctx context.Context, userID string, table models.Table, filter models.Filter, patch map[string]any) error {
	if len(filter) == 0 {
		return models.ErrMissingFilter
	}
	schema, err := s.schema(table, filter)
	if err != nil {
		return err
	}
	rows, err := s.repo.Update(ctx, schema, filter, patch)
	if err != nil {
		return err
	}
	for _, r := range rows {
		s.publish(table, models.ChangeUpdate, r)
	}
	return nil
}

// Delete permanently removes every row matching filter. An empty filter is rejected.
func (s *TableService) Delete(ctx context.Context, userID string, table models.Table, filter models.Filter) error {
	if len(filter) == 0 {
		return models.ErrMissingFilter
	}
	schema, err := s.schema(table, filter)
	if err != nil {
		return err
	}
	rows, err := s.repo.Delete(ctx, schema, filter)
	if err != nil {
		return err
	}
	for _, r := range rows {
		s.publish(table, models.ChangeDelete, r)
	}
	return nil
}

func (s *TableService) schema(table models.Table, filter models.Filter) (models.Schema, error) {
	schema, err := models.SchemaOf(table)
	if err != nil {
		return models.Schema{}, err
	}
	if err := schema.ValidateFilter(filter); err != nil {
		return models.Schema{}, err
	}
	return schema, nil
}

func (s *TableService) publish(table models.Table, typ models.ChangeType, row map[string]any) {
	if s.pub == nil {
		return
	}
	s.pub.Publish(models.Change{Table: table, Type: typ, Row: row})
}

// stampOwner fills user_id with the caller's login when the payload leaves it empty.
func stampOwner(schema models.Schema, row map[string]any, userID string) {
	if !schema.Owned || userID == "" {
		return
	}
	if v, ok := row["user_id"]; !ok || v == nil || v == "" {
		row["user_id"] = userID
	}
}
