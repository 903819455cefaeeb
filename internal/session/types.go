package session

import "time"

// Session is the identity a to-do list client scopes its data under.
type Session struct {
	UserID string `json:"user_id"`
	// Durable is false when UserID is a locally generated fallback that only
	// lives as long as this session.
	Durable    bool      `json:"durable"`
	ResolvedAt time.Time `json:"resolved_at"`
}
