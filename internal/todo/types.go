package todo

import (
	"time"

	"github.com/ent0n29/tasklist/internal/store"
)

// Task is the render form of a stored record.
type Task struct {
	ID          string     `json:"id"`
	Text        string     `json:"text"`
	IsCompleted bool       `json:"is_completed"`
	CreatedAt   *time.Time `json:"created_at,omitempty"`
	OwnerID     string     `json:"owner_id"`
}

// State is everything a renderer needs for one client.
type State struct {
	UserID        string `json:"user_id"`
	Tasks         []Task `json:"tasks"`
	Loading       bool   `json:"loading"`
	Input         string `json:"input"`
	PendingDelete string `json:"pending_delete,omitempty"`
	Generating    bool   `json:"generating"`
	Status        string `json:"status,omitempty"`
	StoreReady    bool   `json:"store_ready"`
	CanBreakdown  bool   `json:"can_breakdown"`
	CanSummarize  bool   `json:"can_summarize"`
}

func taskFromRecord(r store.Record) Task {
	r = r.Clone()
	return Task{
		ID:          r.ID,
		Text:        r.Text,
		IsCompleted: r.IsCompleted,
		CreatedAt:   r.CreatedAt,
		OwnerID:     r.OwnerID,
	}
}

func cloneTasks(in []Task) []Task {
	out := make([]Task, len(in))
	for i, t := range in {
		out[i] = t
		if t.CreatedAt != nil {
			ts := *t.CreatedAt
			out[i].CreatedAt = &ts
		}
	}
	return out
}
