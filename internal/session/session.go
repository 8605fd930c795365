// Package session manages per-chat conversation state: a JSON record with
// session metadata plus a JSONL history log of the exchanged messages.
//
// History reads are windowed: only the most recent messages flow back into
// the conversation, while the log on disk keeps everything.
package session

import "time"

// HistoryWindow is the number of trailing messages returned by every
// history read. Older messages stay on disk but never re-enter a prompt.
const HistoryWindow = 20

// Session is the persisted per-chat record.
type Session struct {
	ChatID         string    `json:"chatId"`
	AgentID        string    `json:"agentId"`
	Status         string    `json:"status"`
	LastSnapshotID string    `json:"lastSnapshotId,omitempty"`
	TotalTokens    int       `json:"totalTokens"`
	Label          string    `json:"label,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// Patch carries the fields an update may change. Nil fields are untouched.
type Patch struct {
	Status         *string
	LastSnapshotID *string
	TotalTokens    *int
	Label          *string
}

// RenameResult reports the outcome of a rename. Rename never fails with an
// error: a missing session or blank label yields Success=false.
type RenameResult struct {
	Success bool   `json:"success"`
	Label   string `json:"label,omitempty"`
	Message string `json:"message,omitempty"`
}
