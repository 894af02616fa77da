package data

import (
	"context"
	"io"
	"path"
	"time"

	"github.com/atinyakov/SiteKeeper/internal/models"
	"github.com/google/uuid"
)

// Files manages uploaded project files. Content transfer needs the server;
// the metadata rows sync like every other table.
type Files struct {
	*Collection[models.File]
}

// InProject lists the visible files of a project directory; a nil
// directoryID lists the project root.
func (f *Files) InProject(ctx context.Context, projectID string, directoryID *string) ([]models.File, error) {
	filter := models.Filter{"project_id": projectID, "deleted_at": nil}
	if directoryID == nil {
		filter["directory_id"] = nil
	} else {
		filter["directory_id"] = *directoryID
	}
	return f.List(ctx, filter)
}

// Upload stores the content and then records the metadata row.
func (f *Files) Upload(ctx context.Context, projectID string, directoryID *string, name string, r io.Reader, size int64, mimeType string) (models.File, error) {
	if !f.env.Rec.IsOnline() {
		return models.File{}, ErrOffline
	}
	id := uuid.NewString()
	key := path.Join(projectID, id, path.Base("/"+name))
	if err := f.env.Remote.UploadObject(ctx, key, r, size, mimeType); err != nil {
		return models.File{}, err
	}
	return f.Save(ctx, models.File{
		ID:          id,
		ProjectID:   projectID,
		DirectoryID: directoryID,
		Name:        name,
		ObjectKey:   key,
		MimeType:    mimeType,
		Size:        size,
		UserID:      f.env.UserID,
		CreatedAt:   time.Now().UTC(),
		SyncStatus:  models.StatusPending,
	})
}

// Open streams the content of file.
func (f *Files) Open(ctx context.Context, file models.File) (io.ReadCloser, error) {
	if !f.env.Rec.IsOnline() {
		return nil, ErrOffline
	}
	return f.env.Remote.DownloadObject(ctx, file.ObjectKey)
}

func (f *Files) SoftDelete(ctx context.Context, file models.File) (models.File, error) {
	now := time.Now().UTC()
	file.DeletedAt = &now
	return f.Save(ctx, file)
}

// Trash lists the soft-deleted files of a project.
func (f *Files) Trash(ctx context.Context, projectID string) ([]models.File, error) {
	all, err := f.List(ctx, models.Filter{"project_id": projectID})
	if err != nil {
		return nil, err
	}
	trash := []models.File{}
	for _, file := range all {
		if file.DeletedAt != nil {
			trash = append(trash, file)
		}
	}
	return trash, nil
}

// DeletePermanently removes the stored content and then the metadata row of
// a file that is already in the trash. The content cannot be removed
// offline, so neither is the row.
func (f *Files) DeletePermanently(ctx context.Context, file models.File) (models.SyncStatus, error) {
	if file.DeletedAt == nil {
		return "", ErrNotSoftDeleted
	}
	if !f.env.Rec.IsOnline() {
		return "", ErrOffline
	}
	if err := f.env.Remote.DeleteObject(ctx, file.ObjectKey); err != nil {
		return "", err
	}
	return f.Remove(ctx, file.ID)
}
