package models

import (
	"encoding/json"
	"time"
)

// Folder groups projects. Soft-deleted folders carry DeletedAt.
type Folder struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	Archived   bool       `json:"archived"`
	UserID     string     `json:"user_id"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
	DeletedAt  *time.Time `json:"deleted_at"`
	SyncStatus SyncStatus `json:"sync_status"`
}

func (Folder) TableName() Table     { return TableFolders }
func (f Folder) PrimaryKey() string { return f.ID }

// WithSyncStatus returns a copy of f tagged with s.
func (f Folder) WithSyncStatus(s SyncStatus) Folder {
	f.SyncStatus = s
	return f
}

// Project is a construction project. FolderID is nil for unfiled projects.
type Project struct {
	ID         string     `json:"id"`
	Title      string     `json:"title"`
	FolderID   *string    `json:"folder_id"`
	Archived   bool       `json:"archived"`
	UserID     string     `json:"user_id"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
	DeletedAt  *time.Time `json:"deleted_at"`
	SyncStatus SyncStatus `json:"sync_status"`
}

func (Project) TableName() Table     { return TableProjects }
func (p Project) PrimaryKey() string { return p.ID }

// WithSyncStatus returns a copy of p tagged with s.
func (p Project) WithSyncStatus(s SyncStatus) Project {
	p.SyncStatus = s
	return p
}

// MessageType distinguishes chat message payloads.
type MessageType string

const (
	MessageText  MessageType = "text"
	MessageImage MessageType = "image"
	MessageFile  MessageType = "file"
)

// Message is a project chat entry. Content is opaque to the sync core.
type Message struct {
	ID         string          `json:"id"`
	ProjectID  string          `json:"project_id"`
	UserID     string          `json:"user_id"`
	Type       MessageType     `json:"type"`
	Content    json.RawMessage `json:"content"`
	Timestamp  time.Time       `json:"timestamp"`
	DeletedAt  *time.Time      `json:"deleted_at"`
	SyncStatus SyncStatus      `json:"sync_status"`
}

func (Message) TableName() Table     { return TableMessages }
func (m Message) PrimaryKey() string { return m.ID }

// WithSyncStatus returns a copy of m tagged with s.
func (m Message) WithSyncStatus(s SyncStatus) Message {
	m.SyncStatus = s
	return m
}

// File is the metadata row of an uploaded object.
type File struct {
	ID          string     `json:"id"`
	ProjectID   string     `json:"project_id"`
	DirectoryID *string    `json:"directory_id"`
	Name        string     `json:"name"`
	ObjectKey   string     `json:"object_key"`
	MimeType    string     `json:"mime_type"`
	Size        int64      `json:"size"`
	UserID      string     `json:"user_id"`
	CreatedAt   time.Time  `json:"created_at"`
	DeletedAt   *time.Time `json:"deleted_at"`
	SyncStatus  SyncStatus `json:"sync_status"`
}

func (File) TableName() Table     { return TableFiles }
func (f File) PrimaryKey() string { return f.ID }

func (f File) WithSyncStatus(s SyncStatus) File {
	f.SyncStatus = s
	return f
}

// Directory is a node of a project's file tree.
type Directory struct {
	ID         string     `json:"id"`
	ProjectID  string     `json:"project_id"`
	ParentID   *string    `json:"parent_id"`
	Name       string     `json:"name"`
	UserID     string     `json:"user_id"`
	CreatedAt  time.Time  `json:"created_at"`
	DeletedAt  *time.Time `json:"deleted_at"`
	SyncStatus SyncStatus `json:"sync_status"`
}

func (Directory) TableName() Table     { return TableDirectories }
func (d Directory) PrimaryKey() string { return d.ID }

func (d Directory) WithSyncStatus(s SyncStatus) Directory {
	d.SyncStatus = s
	return d
}

// ProjectDetail is one key/value attribute of a project (address, client, ...).
type ProjectDetail struct {
	ID         string     `json:"id"`
	ProjectID  string     `json:"project_id"`
	Key        string     `json:"key"`
	Value      string     `json:"value"`
	UpdatedAt  time.Time  `json:"updated_at"`
	SyncStatus SyncStatus `json:"sync_status"`
}

func (ProjectDetail) TableName() Table     { return TableProjectDetails }
func (d ProjectDetail) PrimaryKey() string { return d.ID }

func (d ProjectDetail) WithSyncStatus(s SyncStatus) ProjectDetail {
	d.SyncStatus = s
	return d
}

// Note is a free-text project note.
type Note struct {
	ID         string     `json:"id"`
	ProjectID  string     `json:"project_id"`
	Body       string     `json:"body"`
	UserID     string     `json:"user_id"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
	DeletedAt  *time.Time `json:"deleted_at"`
	SyncStatus SyncStatus `json:"sync_status"`
}

func (Note) TableName() Table     { return TableNotes }
func (n Note) PrimaryKey() string { return n.ID }

func (n Note) WithSyncStatus(s SyncStatus) Note {
	n.SyncStatus = s
	return n
}

// Contact is an address book entry.
type Contact struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	Company    string     `json:"company"`
	Email      string     `json:"email"`
	Phone      string     `json:"phone"`
	UserID     string     `json:"user_id"`
	CreatedAt  time.Time  `json:"created_at"`
	DeletedAt  *time.Time `json:"deleted_at"`
	SyncStatus SyncStatus `json:"sync_status"`
}

func (Contact) TableName() Table     { return TableContacts }
func (c Contact) PrimaryKey() string { return c.ID }

func (c Contact) WithSyncStatus(s SyncStatus) Contact {
	c.SyncStatus = s
	return c
}

// Member grants a user a role on a project.
type Member struct {
	ID         string     `json:"id"`
	ProjectID  string     `json:"project_id"`
	UserID     string     `json:"user_id"`
	Role       string     `json:"role"`
	CreatedAt  time.Time  `json:"created_at"`
	SyncStatus SyncStatus `json:"sync_status"`
}

func (Member) TableName() Table     { return TableMembers }
func (m Member) PrimaryKey() string { return m.ID }

func (m Member) WithSyncStatus(s SyncStatus) Member {
	m.SyncStatus = s
	return m
}

// User represents a registered account.
type User struct {
	// Login is the unique account name.
	Login string
	// PasswordHash is the bcrypt hash of the user's password.
	PasswordHash []byte
	// CreatedAt is when the account was registered.
	CreatedAt time.Time
}
