package data

import (
	"context"
	"time"

	"github.com/atinyakov/SiteKeeper/internal/models"
	"github.com/google/uuid"
)

// Projects manages construction projects.
type Projects struct {
	*Collection[models.Project]
}

func (p *Projects) owner() models.Filter {
	filter := models.Filter{}
	if p.env.UserID != "" {
		filter["user_id"] = p.env.UserID
	}
	return filter
}

// Active lists projects that are not in the trash.
func (p *Projects) Active(ctx context.Context) ([]models.Project, error) {
	filter := p.owner()
	filter["deleted_at"] = nil
	return p.List(ctx, filter)
}

// InFolder lists active projects of a folder; a nil folderID lists the
// unfiled ones.
func (p *Projects) InFolder(ctx context.Context, folderID *string) ([]models.Project, error) {
	filter := p.owner()
	filter["deleted_at"] = nil
	if folderID == nil {
		filter["folder_id"] = nil
	} else {
		filter["folder_id"] = *folderID
	}
	return p.List(ctx, filter)
}

// All lists every project of the user, including the trash.
func (p *Projects) All(ctx context.Context) ([]models.Project, error) {
	return p.List(ctx, p.owner())
}

// Trash lists soft-deleted projects.
func (p *Projects) Trash(ctx context.Context) ([]models.Project, error) {
	all, err := p.All(ctx)
	if err != nil {
		return nil, err
	}
	trash := []models.Project{}
	for _, project := range all {
		if project.DeletedAt != nil {
			trash = append(trash, project)
		}
	}
	return trash, nil
}

func (p *Projects) Create(ctx context.Context, title string, folderID *string) (models.Project, error) {
	now := time.Now().UTC()
	return p.Save(ctx, models.Project{
		ID:         uuid.NewString(),
		Title:      title,
		FolderID:   folderID,
		UserID:     p.env.UserID,
		CreatedAt:  now,
		UpdatedAt:  now,
		SyncStatus: models.StatusPending,
	})
}

func (p *Projects) Rename(ctx context.Context, project models.Project, title string) (models.Project, error) {
	project.Title = title
	project.UpdatedAt = time.Now().UTC()
	return p.Save(ctx, project)
}

func (p *Projects) SetArchived(ctx context.Context, project models.Project, archived bool) (models.Project, error) {
	project.Archived = archived
	project.UpdatedAt = time.Now().UTC()
	return p.Save(ctx, project)
}

// Move puts project into folderID, or takes it out of any folder when nil.
func (p *Projects) Move(ctx context.Context, project models.Project, folderID *string) (models.Project, error) {
	project.FolderID = folderID
	project.UpdatedAt = time.Now().UTC()
	return p.Save(ctx, project)
}

func (p *Projects) SoftDelete(ctx context.Context, project models.Project) (models.Project, error) {
	now := time.Now().UTC()
	project.DeletedAt = &now
	project.UpdatedAt = now
	return p.Save(ctx, project)
}

func (p *Projects) Restore(ctx context.Context, project models.Project) (models.Project, error) {
	project.DeletedAt = nil
	project.UpdatedAt = time.Now().UTC()
	return p.Save(ctx, project)
}

// DeletePermanently removes a project that is already in the trash.
func (p *Projects) DeletePermanently(ctx context.Context, project models.Project) (models.SyncStatus, error) {
	if project.DeletedAt == nil {
		return "", ErrNotSoftDeleted
	}
	return p.Remove(ctx, project.ID)
}
