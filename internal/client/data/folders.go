package data

import (
	"context"
	"time"

	"github.com/atinyakov/SiteKeeper/internal/models"
	"github.com/google/uuid"
)

// Folders manages the user's top-level folders.
type Folders struct {
	*Collection[models.Folder]
}

func (f *Folders) owner() models.Filter {
	filter := models.Filter{}
	if f.env.UserID != "" {
		filter["user_id"] = f.env.UserID
	}
	return filter
}

// Active lists folders that are not in the trash.
func (f *Folders) Active(ctx context.Context) ([]models.Folder, error) {
	filter := f.owner()
	filter["deleted_at"] = nil
	return f.List(ctx, filter)
}

// All lists every folder of the user, including the trash.
func (f *Folders) All(ctx context.Context) ([]models.Folder, error) {
	return f.List(ctx, f.owner())
}

// Trash lists soft-deleted folders.
func (f *Folders) Trash(ctx context.Context) ([]models.Folder, error) {
	all, err := f.All(ctx)
	if err != nil {
		return nil, err
	}
	trash := []models.Folder{}
	for _, folder := range all {
		if folder.DeletedAt != nil {
			trash = append(trash, folder)
		}
	}
	return trash, nil
}

func (f *Folders) Create(ctx context.Context, name string) (models.Folder, error) {
	now := time.Now().UTC()
	return f.Save(ctx, models.Folder{
		ID:         uuid.NewString(),
		Name:       name,
		UserID:     f.env.UserID,
		CreatedAt:  now,
		UpdatedAt:  now,
		SyncStatus: models.StatusPending,
	})
}

func (f *Folders) Rename(ctx context.Context, folder models.Folder, name string) (models.Folder, error) {
	folder.Name = name
	folder.UpdatedAt = time.Now().UTC()
	return f.Save(ctx, folder)
}

func (f *Folders) SetArchived(ctx context.Context, folder models.Folder, archived bool) (models.Folder, error) {
	folder.Archived = archived
	folder.UpdatedAt = time.Now().UTC()
	return f.Save(ctx, folder)
}

// SoftDelete moves folder to the trash.
func (f *Folders) SoftDelete(ctx context.Context, folder models.Folder) (models.Folder, error) {
	now := time.Now().UTC()
	folder.DeletedAt = &now
	folder.UpdatedAt = now
	return f.Save(ctx, folder)
}

// Restore takes folder out of the trash.
func (f *Folders) Restore(ctx context.Context, folder models.Folder) (models.Folder, error) {
	folder.DeletedAt = nil
	folder.UpdatedAt = time.Now().UTC()
	return f.Save(ctx, folder)
}

// DeletePermanently removes a folder that is already in the trash.
func (f *Folders) DeletePermanently(ctx context.Context, folder models.Folder) (models.SyncStatus, error) {
	if folder.DeletedAt == nil {
		return "", ErrNotSoftDeleted
	}
	return f.Remove(ctx, folder.ID)
}
