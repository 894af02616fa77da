package models

// ChangeType classifies a realtime change notification.
type ChangeType string

const (
	ChangeInsert ChangeType = "INSERT"
	ChangeUpsert ChangeType = "UPSERT"
	ChangeUpdate ChangeType = "UPDATE"
	ChangeDelete ChangeType = "DELETE"
)

// Change is published for every row written through the remote store.
type Change struct {
	Table Table          `json:"table"`
	Type  ChangeType     `json:"type"`
	Row   map[string]any `json:"row"`
}
