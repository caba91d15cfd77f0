package models

// ConversationType discriminates direct chats, group chats and support
// tickets.
type ConversationType string

const (
	ConversationDirect  ConversationType = "direct"
	ConversationGroup   ConversationType = "group"
	ConversationSupport ConversationType = "support"
)

// SupportStatus of a support conversation.
type SupportStatus string

const (
	SupportUnassigned SupportStatus = "unassigned"
	SupportAssigned   SupportStatus = "assigned"
)

// Conversation is stored under conversations/{id}. Every participant has
// an index entry user_conversations/{userID}/{id}; support conversations
// additionally appear under support_conversations/{id}. Index entries
// are written in the same atomic batch as the record they point to.
type Conversation struct {
	ID           string           `json:"id"`
	Type         ConversationType `json:"type"`
	Participants []string         `json:"participants"`
	CreatedAt    int64            `json:"created_at"` // unix ms
	UpdatedAt    int64            `json:"updated_at"` // unix ms
	Title        string           `json:"title,omitempty"`

	// LastMessage is a denormalized copy of the most recently appended
	// message, maintained only inside the same atomic batch as the
	// message insert.
	LastMessage *Message `json:"last_message,omitempty"`

	IsLocked bool `json:"is_locked,omitempty"`
	IsHidden bool `json:"is_hidden,omitempty"`

	SupportStatus SupportStatus `json:"support_status,omitempty"`
	AssignedTo    string        `json:"assigned_to,omitempty"`
}

// HasParticipant reports whether userID is in the participant set.
func (c *Conversation) HasParticipant(userID string) bool {
	for _, p := range c.Participants {
		if p == userID {
			return true
		}
	}
	return false
}
