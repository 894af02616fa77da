package remote

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"

	"github.com/atinyakov/SiteKeeper/internal/models"
)

func tablePath(table models.Table) string {
	return "/rest/v1/" + url.PathEscape(string(table))
}

func keyFilter(table models.Table, key string) (models.Filter, error) {
	schema, err := models.SchemaOf(table)
	if err != nil {
		return nil, err
	}
	return models.Filter{schema.PrimaryKey: key}, nil
}

// Select returns the JSON array of rows of table matching filter.
func (c *Client) Select(ctx context.Context, table models.Table, filter models.Filter) (json.RawMessage, error) {
	var rows json.RawMessage
	if err := c.doJSON(ctx, http.MethodGet, tablePath(table), filter.Query(), nil, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// Insert creates row and returns it as stored.
func (c *Client) Insert(ctx context.Context, table models.Table, row json.RawMessage) (json.RawMessage, error) {
	var out json.RawMessage
	if err := c.doJSON(ctx, http.MethodPost, tablePath(table), nil, row, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Upsert writes row by primary key and returns it as stored.
func (c *Client) Upsert(ctx context.Context, table models.Table, row json.RawMessage) (json.RawMessage, error) {
	schema, err := models.SchemaOf(table)
	if err != nil {
		return nil, err
	}
	var out json.RawMessage
	q := url.Values{"on_conflict": {schema.PrimaryKey}}
	if err := c.doJSON(ctx, http.MethodPost, tablePath(table), q, row, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Update applies patch to the rows matching filter.
func (c *Client) Update(ctx context.Context, table models.Table, filter models.Filter, patch any) error {
	return c.doJSON(ctx, http.MethodPatch, tablePath(table), filter.Query(), patch, nil)
}

// Delete hard-deletes the row with primary key key.
func (c *Client) Delete(ctx context.Context, table models.Table, key string) error {
	filter, err := keyFilter(table, key)
	if err != nil {
		return err
	}
	return c.DeleteWhere(ctx, table, filter)
}

// DeleteWhere hard-deletes every row matching filter. The server refuses
// an empty filter.
func (c *Client) DeleteWhere(ctx context.Context, table models.Table, filter models.Filter) error {
	return c.doJSON(ctx, http.MethodDelete, tablePath(table), filter.Query(), nil, nil)
}
