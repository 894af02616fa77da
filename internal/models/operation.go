package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// OpKind tags a PendingOperation.
type OpKind string

const (
	OpUpsert OpKind = "upsert"
	OpInsert OpKind = "insert"
	OpDelete OpKind = "delete"
)

// PendingOperation is one deferred write in the local queue. Upsert and
// insert carry the full record in Data; delete carries only the primary key.
// Build values with NewUpsert, NewInsert or NewDelete.
type PendingOperation struct {
	ID        string          `json:"id"`
	Operation OpKind          `json:"operation"`
	Table     Table           `json:"table"`
	Data      json.RawMessage `json:"data,omitempty"`
	Key       string          `json:"key,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// NewUpsert queues rec as an upsert by primary key.
func NewUpsert(rec Record) (PendingOperation, error) {
	return newRecordOp(OpUpsert, rec)
}

// NewInsert queues rec as a plain insert.
func NewInsert(rec Record) (PendingOperation, error) {
	return newRecordOp(OpInsert, rec)
}

// NewDelete queues a hard delete of key in table.
func NewDelete(table Table, key string) PendingOperation {
	return PendingOperation{
		ID:        uuid.NewString(),
		Operation: OpDelete,
		Table:     table,
		Key:       key,
		CreatedAt: time.Now().UTC(),
	}
}

func newRecordOp(kind OpKind, rec Record) (PendingOperation, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return PendingOperation{}, fmt.Errorf("marshal %s record: %w", rec.TableName(), err)
	}
	return PendingOperation{
		ID:        uuid.NewString(),
		Operation: kind,
		Table:     rec.TableName(),
		Data:      data,
		Key:       rec.PrimaryKey(),
		CreatedAt: time.Now().UTC(),
	}, nil
}

// Validate checks the envelope after it has been read back from storage.
func (op PendingOperation) Validate() error {
	if !op.Table.Valid() {
		return fmt.Errorf("%w: table %q", ErrInvalidOperation, op.Table)
	}
	switch op.Operation {
	case OpUpsert, OpInsert:
		if len(op.Data) == 0 {
			return fmt.Errorf("%w: %s without data", ErrInvalidOperation, op.Operation)
		}
	case OpDelete:
		if op.Key == "" {
			return fmt.Errorf("%w: delete without key", ErrInvalidOperation)
		}
	default:
		return fmt.Errorf("%w: operation %q", ErrInvalidOperation, op.Operation)
	}
	return nil
}
