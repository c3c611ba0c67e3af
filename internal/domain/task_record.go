package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Task kinds known to the pipeline.
const (
	// TaskKindExportPosts exports all of a user's posts and mails them as JSON.
	TaskKindExportPosts = "export_posts"

	// TaskKindExample counts down a number of seconds, reporting progress each tick.
	TaskKindExample = "example"
)

// TaskOutcome is the terminal result of a task run. It travels in the
// completion notification; the record itself only knows Complete.
type TaskOutcome string

// Possible outcomes
const (
	TaskOutcomeSucceeded TaskOutcome = "succeeded"
	TaskOutcomeFailed    TaskOutcome = "failed"
)

// Validation errors for TaskRecord
var (
	ErrEmptyTaskID    = errors.New("task ID cannot be empty")
	ErrEmptyTaskOwner = errors.New("task owner cannot be empty")
	ErrEmptyTaskKind  = errors.New("task kind cannot be empty")
)

// TaskRecord is the persisted state of one background job. It is created by
// the dispatcher before enqueue and afterwards mutated only by the worker
// running it.
//
// For a given (OwnerID, Kind) at most one record may have Complete == false.
type TaskRecord struct {
	ID          uuid.UUID       `json:"id"`
	OwnerID     uuid.UUID       `json:"owner_id"`
	Kind        string          `json:"kind"`
	Description string          `json:"description"`
	Args        json.RawMessage `json:"args,omitempty"`
	Progress    int             `json:"progress"`
	Complete    bool            `json:"complete"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// NewTaskRecord creates an incomplete record with zero progress. args is
// marshalled to JSON; nil becomes an empty object.
func NewTaskRecord(ownerID uuid.UUID, kind, description string, args any) (*TaskRecord, error) {
	raw, err := marshalArgs(args)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	rec := &TaskRecord{
		ID:          uuid.New(),
		OwnerID:     ownerID,
		Kind:        kind,
		Description: description,
		Args:        raw,
		Progress:    0,
		Complete:    false,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := rec.Validate(); err != nil {
		return nil, err
	}
	return rec, nil
}

// Validate checks if the TaskRecord has valid data.
func (r *TaskRecord) Validate() error {
	if r.ID == uuid.Nil {
		return ErrEmptyTaskID
	}
	if r.OwnerID == uuid.Nil {
		return ErrEmptyTaskOwner
	}
	if strings.TrimSpace(r.Kind) == "" {
		return ErrEmptyTaskKind
	}
	if r.Progress < 0 || r.Progress > 100 {
		return fmt.Errorf("%w: got %d", ErrInvalidProgress, r.Progress)
	}
	if len(r.Args) > 0 && !json.Valid(r.Args) {
		return fmt.Errorf("%w: task args", ErrInvalidPayload)
	}
	return nil
}

// Item builds the queue item correlated with this record.
func (r *TaskRecord) Item() QueueItem {
	return QueueItem{
		TaskID:  r.ID,
		Kind:    r.Kind,
		OwnerID: r.OwnerID,
		Args:    r.Args,
	}
}

// ClampProgress bounds a progress percentage to 0..100.
func ClampProgress(percent int) int {
	switch {
	case percent < 0:
		return 0
	case percent > 100:
		return 100
	default:
		return percent
	}
}

func marshalArgs(args any) (json.RawMessage, error) {
	switch v := args.(type) {
	case nil:
		return json.RawMessage(`{}`), nil
	case json.RawMessage:
		if len(v) == 0 {
			return json.RawMessage(`{}`), nil
		}
		if !json.Valid(v) {
			return nil, fmt.Errorf("%w: task args", ErrInvalidPayload)
		}
		return v, nil
	default:
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
		}
		return raw, nil
	}
}
