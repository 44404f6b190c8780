package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// EventKind tags what happened to a record.
type EventKind string

const (
	EventCreate        EventKind = "create"
	EventUpdate        EventKind = "update"
	EventDelete        EventKind = "delete"
	EventThreadDeleted EventKind = "threadDeleted"
)

// Event is the notification relayed between clients after a mutation has
// been confirmed by the record store. It is the JSON text frame exchanged
// with the hub.
type Event struct {
	Kind       EventKind `json:"kind"`
	ThreadID   string    `json:"threadId"`
	ID         string    `json:"id,omitempty"`
	Body       string    `json:"body,omitempty"`
	AuthorID   string    `json:"authorId,omitempty"`
	AuthorName string    `json:"authorName,omitempty"`

	// InsertedAt is in Unix milliseconds.
	InsertedAt int64 `json:"insertedAt,omitempty"`
}

// CreatedEvent returns the create event for c.
func CreatedEvent(c Comment) Event {
	return Event{
		Kind:       EventCreate,
		ThreadID:   c.ThreadID,
		ID:         c.ID,
		Body:       c.Body,
		AuthorID:   c.AuthorID,
		AuthorName: c.AuthorName,
		InsertedAt: c.InsertedAt.UnixMilli(),
	}
}

// UpdatedEvent returns the update event for a body change of comment id.
func UpdatedEvent(threadID, id, body string) Event {
	return Event{Kind: EventUpdate, ThreadID: threadID, ID: id, Body: body}
}

// DeletedEvent returns the delete event for comment id.
func DeletedEvent(threadID, id string) Event {
	return Event{Kind: EventDelete, ThreadID: threadID, ID: id}
}

// ThreadDeletedEvent returns the event broadcast when a post and all of its
// comments were deleted.
func ThreadDeletedEvent(threadID string) Event {
	return Event{Kind: EventThreadDeleted, ThreadID: threadID}
}

// Comment reconstructs the comment carried by a create event.
func (e Event) Comment() Comment {
	return Comment{
		ID:         e.ID,
		ThreadID:   e.ThreadID,
		AuthorID:   e.AuthorID,
		AuthorName: e.AuthorName,
		Body:       e.Body,
		InsertedAt: time.UnixMilli(e.InsertedAt).UTC(),
	}
}

// Valid reports whether the event carries the fields its kind needs.
func (e Event) Valid() bool {
	if e.ThreadID == "" {
		return false
	}
	switch e.Kind {
	case EventCreate, EventUpdate, EventDelete:
		return e.ID != ""
	case EventThreadDeleted:
		return true
	default:
		return false
	}
}

// MarshalEvent encodes e as a hub text frame.
func MarshalEvent(e Event) ([]byte, error) {
	b, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("marshal event: %w", err)
	}
	return b, nil
}

// ParseEvent decodes a hub text frame. Frames that decode but do not carry
// the fields their kind needs are rejected too.
func ParseEvent(data []byte) (Event, error) {
	var e Event
	if err := json.Unmarshal(data, &e); err != nil {
		return Event{}, fmt.Errorf("unmarshal event: %w", err)
	}
	if !e.Valid() {
		return Event{}, fmt.Errorf("incomplete %q event", e.Kind)
	}
	return e, nil
}
