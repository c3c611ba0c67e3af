package domain

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// QueueItem is the transient unit of work handed from the dispatcher to a
// worker. It shares its identifier with the TaskRecord it drives.
type QueueItem struct {
	TaskID  uuid.UUID       `json:"task_id"`
	Kind    string          `json:"kind"`
	OwnerID uuid.UUID       `json:"owner_id"`
	Args    json.RawMessage `json:"args,omitempty"`
}

// DecodeArgs unmarshals the item arguments into v. Empty arguments leave v
// untouched.
func (i QueueItem) DecodeArgs(v any) error {
	if len(i.Args) == 0 {
		return nil
	}
	if err := json.Unmarshal(i.Args, v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return nil
}
