package data

import (
	"context"
	"encoding/json"
	"time"

	"github.com/atinyakov/SiteKeeper/internal/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// watchRetry is the pause before resubscribing after the feed dropped.
var watchRetry = 3 * time.Second

// Messages is the project chat.
type Messages struct {
	*Collection[models.Message]
}

// ForProject lists the visible messages of a project, oldest first.
func (m *Messages) ForProject(ctx context.Context, projectID string) ([]models.Message, error) {
	return m.List(ctx, models.Filter{"project_id": projectID, "deleted_at": nil})
}

// Send posts a new message. Messages are inserted, never upserted.
func (m *Messages) Send(ctx context.Context, projectID string, kind models.MessageType, content json.RawMessage) (models.Message, error) {
	return m.Insert(ctx, models.Message{
		ID:         uuid.NewString(),
		ProjectID:  projectID,
		UserID:     m.env.UserID,
		Type:       kind,
		Content:    content,
		Timestamp:  time.Now().UTC(),
		SyncStatus: models.StatusPending,
	})
}

// SoftDelete hides a message from the chat.
func (m *Messages) SoftDelete(ctx context.Context, msg models.Message) (models.Message, error) {
	now := time.Now().UTC()
	msg.DeletedAt = &now
	return m.Save(ctx, msg)
}

// Watch follows the realtime feed of a project chat and invalidates the
// messages table on every change until ctx is done. A dropped feed is
// resubscribed after a short pause.
func (m *Messages) Watch(ctx context.Context, projectID string) {
	filter := models.Filter{"project_id": projectID}
	for {
		err := m.env.Remote.Subscribe(ctx, models.TableMessages, filter, func(models.Change) {
			m.env.Bus.Invalidate(models.TableMessages)
		})
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			m.env.Log.Debug("chat feed dropped", zap.String("project", projectID), zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(watchRetry):
		}
	}
}
