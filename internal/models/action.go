package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// QueueAction is one row of the undo log. Payload holds the JSON-encoded
// snapshot needed to invert the action; decode it with DecodePayload.
type QueueAction struct {
	ID         int64      `json:"id"`
	ShopID     string     `json:"shop_id"`
	ActionType string     `json:"action_type"` // add, next, skip, reset, remove
	Payload    string     `json:"payload"`
	CreatedAt  time.Time  `json:"created_at"`
	UndoneAt   *time.Time `json:"undone_at,omitempty"`
}

type AddPayload struct {
	InsertedID int64 `json:"inserted_id"`
}

type NextPayload struct {
	PrevActiveID *int64 `json:"prev_active_id"`
	NewActiveID  *int64 `json:"new_active_id"`
}

type SkipPayload struct {
	SkippedID int64 `json:"skipped_id"`
}

type ResetPayload struct {
	IDs              []int64          `json:"ids"`
	PreviousStatuses map[int64]string `json:"previous_statuses"`
}

type RemovePayload struct {
	RemovedID      int64  `json:"removed_id"`
	PreviousStatus string `json:"previous_status"`
}

// ActionPayload is implemented by exactly one payload type per action kind.
type ActionPayload interface {
	ActionType() string
}

func (AddPayload) ActionType() string    { return ActionAdd }
func (NextPayload) ActionType() string   { return ActionNext }
func (SkipPayload) ActionType() string   { return ActionSkip }
func (ResetPayload) ActionType() string  { return ActionReset }
func (RemovePayload) ActionType() string { return ActionRemove }

// EncodePayload serializes a payload for storage in the actions table.
func EncodePayload(p ActionPayload) (string, error) {
	raw, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("encode %s payload: %w", p.ActionType(), err)
	}
	return string(raw), nil
}

// DecodePayload returns the typed payload for the action's kind.
func (a *QueueAction) DecodePayload() (ActionPayload, error) {
	var (
		p   ActionPayload
		err error
	)
	switch a.ActionType {
	case ActionAdd:
		var v AddPayload
		err = json.Unmarshal([]byte(a.Payload), &v)
		p = v
	case ActionNext:
		var v NextPayload
		err = json.Unmarshal([]byte(a.Payload), &v)
		p = v
	case ActionSkip:
		var v SkipPayload
		err = json.Unmarshal([]byte(a.Payload), &v)
		p = v
	case ActionReset:
		var v ResetPayload
		err = json.Unmarshal([]byte(a.Payload), &v)
		p = v
	case ActionRemove:
		var v RemovePayload
		err = json.Unmarshal([]byte(a.Payload), &v)
		p = v
	default:
		return nil, fmt.Errorf("unknown action type: %s", a.ActionType)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", a.ActionType, err)
	}
	return p, nil
}
