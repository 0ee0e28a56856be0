package types

import "time"

// Campaign is the persisted output of an orchestration run.
type Campaign struct {
	ID        string    `json:"id" msgpack:"id"`
	UserID    string    `json:"userId,omitempty" msgpack:"user_id"`
	Goal      string    `json:"goal" msgpack:"goal"`
	Narrative string    `json:"narrative" msgpack:"narrative"`
	ImageURL  string    `json:"imageUrl" msgpack:"image_url"`
	VideoURL  string    `json:"videoUrl" msgpack:"video_url"`
	CreatedAt time.Time `json:"createdAt" msgpack:"created_at"`
}

// ChatRole is the author of a chat message.
type ChatRole string

const (
	RoleUser  ChatRole = "user"
	RoleModel ChatRole = "model"
)

// ChatMessage is one entry of a proxy chat session's memory.
type ChatMessage struct {
	Role ChatRole `json:"role" msgpack:"role"`
	Text string   `json:"text" msgpack:"text"`
	TS   string   `json:"ts" msgpack:"ts"`
}

// HistoryItem is a studio item flattened for cross-studio search.
type HistoryItem struct {
	ID        string    `json:"id"`
	Tab       StudioTab `json:"tab"`
	Prompt    string    `json:"prompt"`
	Text      string    `json:"text,omitempty"`
	URL       string    `json:"url,omitempty"`
	Timestamp int64     `json:"timestamp"`
}
