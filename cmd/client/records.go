package main

import (
	"time"

	"github.com/atinyakov/SiteKeeper/internal/models"
	"github.com/google/uuid"
)

func newNote(projectID, userID, body string) models.Note {
	now := time.Now().UTC()
	return models.Note{
		ID:         uuid.NewString(),
		ProjectID:  projectID,
		Body:       body,
		UserID:     userID,
		CreatedAt:  now,
		UpdatedAt:  now,
		SyncStatus: models.StatusPending,
	}
}

func newDetail(projectID, key string) models.ProjectDetail {
	return models.ProjectDetail{
		ID:         uuid.NewString(),
		ProjectID:  projectID,
		Key:        key,
		SyncStatus: models.StatusPending,
	}
}

func touchDetail(d models.ProjectDetail) models.ProjectDetail {
	d.UpdatedAt = time.Now().UTC()
	return d
}
