package realtime

import (
	"testing"

	"github.com/atinyakov/SiteKeeper/internal/models"
	"github.com/stretchr/testify/require"
)

func TestHub_FiltersByTableAndPredicate(t *testing.T) {
	h := NewHub(4, nil)
	p1 := h.Subscribe(models.TableMessages, models.Filter{"project_id": "p1"})
	all := h.Subscribe(models.TableMessages, nil)
	folders := h.Subscribe(models.TableFolders, nil)

	h.Publish(models.Change{Table: models.TableMessages, Type: models.ChangeInsert,
		Row: map[string]any{"id": "m1", "project_id": "p2"}})
	h.Publish(models.Change{Table: models.TableMessages, Type: models.ChangeInsert,
		Row: map[string]any{"id": "m2", "project_id": "p1"}})

	require.Len(t, p1.C, 1)
	require.Equal(t, "m2", (<-p1.C).Row["id"])
	require.Len(t, all.C, 2)
	require.Len(t, folders.C, 0)
}

func TestHub_Unsubscribe(t *testing.T) {
	h := NewHub(1, nil)
	sub := h.Subscribe(models.TableFolders, nil)
	require.Equal(t, 1, h.Len())

	h.Unsubscribe(sub)
	h.Unsubscribe(sub)
	require.Equal(t, 0, h.Len())

	_, ok := <-sub.C
	require.False(t, ok)

	h.Publish(models.Change{Table: models.TableFolders, Row: map[string]any{"id": "f1"}})
}

func TestHub_DropsSlowSubscriber(t *testing.T) {
	h := NewHub(1, nil)
	slow := h.Subscribe(models.TableFolders, nil)

	c := models.Change{Table: models.TableFolders, Row: map[string]any{"id": "f1"}}
	h.Publish(c)
	h.Publish(c)

	require.Equal(t, 0, h.Len())
	_, ok := <-slow.C
	require.True(t, ok)
	_, ok = <-slow.C
	require.False(t, ok)
}
