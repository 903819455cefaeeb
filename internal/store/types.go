package store

import (
	"fmt"
	"time"
)

// Record is one persisted to-do document.
type Record struct {
	ID          string     `json:"id"`
	Text        string     `json:"text"`
	IsCompleted bool       `json:"is_completed"`
	CreatedAt   *time.Time `json:"created_at,omitempty"`
	OwnerID     string     `json:"owner_id"`
}

// Patch is a partial update. Nil fields are left untouched.
type Patch struct {
	IsCompleted *bool `json:"is_completed,omitempty"`
}

// SnapshotFunc receives the complete record set of a path after every change.
type SnapshotFunc func(records []Record)

// ErrorFunc receives a terminal subscription error.
type ErrorFunc func(err error)

// CollectionPath returns tenants/{appID}/users/{userID}/todos.
func CollectionPath(appID, userID string) string {
	return fmt.Sprintf("tenants/%s/users/%s/todos", appID, userID)
}

func (r Record) Clone() Record {
	out := r
	if r.CreatedAt != nil {
		t := *r.CreatedAt
		out.CreatedAt = &t
	}
	return out
}

func cloneRecords(in []Record) []Record {
	out := make([]Record, len(in))
	for i, r := range in {
		out[i] = r.Clone()
	}
	return out
}
