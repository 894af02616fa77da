package models

import (
	"encoding/json"
	"fmt"
	"math"
)

// ColumnKind tells the server how to bind and normalize a column value.
type ColumnKind int

const (
	KindText ColumnKind = iota
	KindBool
	KindInt
	KindTime
	KindJSON
	KindStatus
)

// Column describes one column of a table.
type Column struct {
	Name string
	Kind ColumnKind
}

// Schema is the static description of a remote table.
type Schema struct {
	Table      Table
	PrimaryKey string
	Columns    []Column
	// SoftDelete is set for tables carrying a deleted_at column.
	SoftDelete bool
	// Owned is set for tables whose user_id is stamped from the caller.
	Owned bool
	// OrderBy is the default ordering for selects.
	OrderBy string
}

var (
	colID         = Column{"id", KindText}
	colUserID     = Column{"user_id", KindText}
	colProjectID  = Column{"project_id", KindText}
	colCreatedAt  = Column{"created_at", KindTime}
	colUpdatedAt  = Column{"updated_at", KindTime}
	colDeletedAt  = Column{"deleted_at", KindTime}
	colSyncStatus = Column{"sync_status", KindStatus}
)

var schemas = map[Table]Schema{
	TableFolders: {
		Table: TableFolders, PrimaryKey: "id", SoftDelete: true, Owned: true, OrderBy: "created_at",
		Columns: []Column{colID, {"name", KindText}, {"archived", KindBool}, colUserID,
			colCreatedAt, colUpdatedAt, colDeletedAt, colSyncStatus},
	},
	TableProjects: {
		Table: TableProjects, PrimaryKey: "id", SoftDelete: true, Owned: true, OrderBy: "created_at",
		Columns: []Column{colID, {"title", KindText}, {"folder_id", KindText}, {"archived", KindBool},
			colUserID, colCreatedAt, colUpdatedAt, colDeletedAt, colSyncStatus},
	},
	TableMessages: {
		Table: TableMessages, PrimaryKey: "id", SoftDelete: true, Owned: true, OrderBy: "timestamp",
		Columns: []Column{colID, colProjectID, colUserID, {"type", KindText}, {"content", KindJSON},
			{"timestamp", KindTime}, colDeletedAt, colSyncStatus},
	},
	TableFiles: {
		Table: TableFiles, PrimaryKey: "id", SoftDelete: true, Owned: true, OrderBy: "created_at",
		Columns: []Column{colID, colProjectID, {"directory_id", KindText}, {"name", KindText},
			{"object_key", KindText}, {"mime_type", KindText}, {"size", KindInt}, colUserID,
			colCreatedAt, colDeletedAt, colSyncStatus},
	},
	TableDirectories: {
		Table: TableDirectories, PrimaryKey: "id", SoftDelete: true, Owned: true, OrderBy: "name",
		Columns: []Column{colID, colProjectID, {"parent_id", KindText}, {"name", KindText}, colUserID,
			colCreatedAt, colDeletedAt, colSyncStatus},
	},
	TableProjectDetails: {
		Table: TableProjectDetails, PrimaryKey: "id", OrderBy: "key",
		Columns: []Column{colID, colProjectID, {"key", KindText}, {"value", KindText}, colUpdatedAt,
			colSyncStatus},
	},
	TableNotes: {
		Table: TableNotes, PrimaryKey: "id", SoftDelete: true, Owned: true, OrderBy: "created_at",
		Columns: []Column{colID, colProjectID, {"body", KindText}, colUserID, colCreatedAt, colUpdatedAt,
			colDeletedAt, colSyncStatus},
	},
	TableContacts: {
		Table: TableContacts, PrimaryKey: "id", SoftDelete: true, Owned: true, OrderBy: "name",
		Columns: []Column{colID, {"name", KindText}, {"company", KindText}, {"email", KindText},
			{"phone", KindText}, colUserID, colCreatedAt, colDeletedAt, colSyncStatus},
	},
	TableMembers: {
		Table: TableMembers, PrimaryKey: "id", OrderBy: "created_at",
		Columns: []Column{colID, colProjectID, colUserID, {"role", KindText}, colCreatedAt, colSyncStatus},
	},
}

// SchemaOf returns the schema registered for t.
func SchemaOf(t Table) (Schema, error) {
	s, ok := schemas[t]
	if !ok {
		return Schema{}, fmt.Errorf("%w: %q", ErrUnknownTable, t)
	}
	return s, nil
}

// ColumnNames returns the column names in declaration order.
func (s Schema) ColumnNames() []string {
	names := make([]string, len(s.Columns))
	for i, c := range s.Columns {
		names[i] = c.Name
	}
	return names
}

// Column looks up a column by name.
func (s Schema) Column(name string) (Column, bool) {
	for _, c := range s.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

// ValidateFilter checks that every filtered column exists.
func (s Schema) ValidateFilter(f Filter) error {
	for name := range f {
		if _, ok := s.Column(name); !ok {
			return fmt.Errorf("%w: %s.%s", ErrUnknownColumn, s.Table, name)
		}
	}
	return nil
}

// Values converts a decoded JSON row into column names and driver values,
// ordered as declared in the schema. Unknown keys are rejected.
func (s Schema) Values(row map[string]any) ([]string, []any, error) {
	for name := range row {
		if _, ok := s.Column(name); !ok {
			return nil, nil, fmt.Errorf("%w: %s.%s", ErrUnknownColumn, s.Table, name)
		}
	}

	cols := make([]string, 0, len(row))
	vals := make([]any, 0, len(row))
	for _, c := range s.Columns {
		v, ok := row[c.Name]
		if !ok {
			continue
		}
		bound, err := bindValue(c, v)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %s.%s: %v", ErrInvalidValue, s.Table, c.Name, err)
		}
		cols = append(cols, c.Name)
		vals = append(vals, bound)
	}
	return cols, vals, nil
}

func bindValue(c Column, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch c.Kind {
	case KindJSON:
		b, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		return string(b), nil
	case KindInt:
		switch n := v.(type) {
		case float64:
			if n != math.Trunc(n) {
				return nil, fmt.Errorf("not an integer: %v", n)
			}
			return int64(n), nil
		case json.Number:
			return n.Int64()
		case int64, int:
			return n, nil
		}
		return nil, fmt.Errorf("not an integer: %v", v)
	case KindBool:
		if _, ok := v.(bool); !ok {
			return nil, fmt.Errorf("not a boolean: %v", v)
		}
		return v, nil
	case KindStatus:
		str, _ := v.(string)
		st := SyncStatus(str)
		if st == "" {
			st = StatusSynced
		}
		if !st.Valid() {
			return nil, fmt.Errorf("invalid sync_status %q", str)
		}
		return string(st), nil
	}
	return v, nil
}

// Normalize converts driver values scanned from the database into values
// that encode naturally as JSON.
func (s Schema) Normalize(row map[string]any) map[string]any {
	for name, v := range row {
		b, ok := v.([]byte)
		if !ok {
			continue
		}
		c, _ := s.Column(name)
		if c.Kind == KindJSON {
			row[name] = json.RawMessage(b)
		} else {
			row[name] = string(b)
		}
	}
	return row
}
