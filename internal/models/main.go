// Package models defines the records shared by the SiteKeeper server and
// client: folders, projects, chat messages and the other project tables,
// their static schemas, and the pending-operation envelope used by the
// offline queue.
package models

import "errors"

// Table names a table of the remote store. The set is closed; every value
// has a Schema registered in schemas.
type Table string

const (
	// TableFolders holds top-level folders owned by a user.
	TableFolders Table = "folders"
	// TableProjects holds construction projects, each in at most one folder.
	TableProjects Table = "projects"
	// TableMessages holds project chat messages.
	TableMessages Table = "messages"
	// TableFiles holds metadata of uploaded files.
	TableFiles Table = "files"
	// TableDirectories holds the per-project directory tree for files.
	TableDirectories Table = "directories"
	// TableProjectDetails holds key/value details of a project.
	TableProjectDetails Table = "project_details"
	// TableNotes holds free-text project notes.
	TableNotes Table = "notes"
	// TableContacts holds address book entries.
	TableContacts Table = "contacts"
	// TableMembers holds project memberships.
	TableMembers Table = "project_members"
)

// Tables lists every known table in a stable order.
var Tables = []Table{
	TableFolders,
	TableProjects,
	TableMessages,
	TableFiles,
	TableDirectories,
	TableProjectDetails,
	TableNotes,
	TableContacts,
	TableMembers,
}

// Valid reports whether t is one of the known tables.
func (t Table) Valid() bool {
	_, ok := schemas[t]
	return ok
}

// SyncStatus is the per-record outcome of the most recent write attempt.
type SyncStatus string

const (
	// StatusSynced means the remote store confirmed the record.
	StatusSynced SyncStatus = "synced"
	// StatusPending means the write was queued while offline.
	StatusPending SyncStatus = "pending"
	// StatusError means an online write failed and was queued for retry.
	StatusError SyncStatus = "error"
)

// Valid reports whether s is one of the enumerated statuses.
func (s SyncStatus) Valid() bool {
	switch s {
	case StatusSynced, StatusPending, StatusError:
		return true
	}
	return false
}

// Record is implemented by every table row type.
type Record interface {
	// TableName returns the table the record belongs to.
	TableName() Table
	// PrimaryKey returns the value of the record's primary key.
	PrimaryKey() string
}

// Syncable is a Record that can return a copy of itself tagged with a
// sync status. T is the concrete record type.
type Syncable[T any] interface {
	Record
	WithSyncStatus(SyncStatus) T
}

var (
	// ErrUnknownTable is returned for a table name outside the known set.
	ErrUnknownTable = errors.New("unknown table")
	// ErrUnknownColumn is returned when a payload or filter names a column
	// the table does not have.
	ErrUnknownColumn = errors.New("unknown column")
	// ErrInvalidValue is returned when a payload value does not fit its column.
	ErrInvalidValue = errors.New("invalid value")
	// ErrMissingFilter is returned for updates and deletes without a filter.
	ErrMissingFilter = errors.New("filter required")
	// ErrDuplicate is returned when an insert collides with an existing key.
	ErrDuplicate = errors.New("duplicate key")
	// ErrReference is returned when a write points at a missing parent row.
	ErrReference = errors.New("referenced row does not exist")
	// ErrInvalidOperation is returned for malformed pending operations.
	ErrInvalidOperation = errors.New("invalid pending operation")
)
