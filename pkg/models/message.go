package models

// MessageType of a message body.
type MessageType string

const (
	MessageText      MessageType = "text"
	MessageImage     MessageType = "image"
	MessageSystem    MessageType = "system"
	MessageComponent MessageType = "component"
)

// Message is stored under messages/{conversation}/{created_at}/{id} so a
// prefix scan over a conversation yields messages in chronological
// order.
type Message struct {
	ID           string      `json:"id"`
	Conversation string      `json:"conversation"`
	SenderID     string      `json:"sender_id"`
	Content      string      `json:"content"`
	CreatedAt    int64       `json:"created_at"` // unix nano
	Type         MessageType `json:"type"`

	// ReadBy is the set of user IDs that have read the message.
	ReadBy []string `json:"read_by,omitempty"`
	// Reactions maps emoji -> set of user IDs. An emoji key is removed
	// when its set becomes empty.
	Reactions map[string][]string `json:"reactions,omitempty"`

	ReplyToID string                 `json:"reply_to,omitempty"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// ReadBy membership check.
func (m *Message) IsReadBy(userID string) bool {
	for _, u := range m.ReadBy {
		if u == userID {
			return true
		}
	}
	return false
}
