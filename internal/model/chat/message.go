package chat

import "time"

// MessageKind distinguishes spoken lines from structural history entries.
type MessageKind string

const (
	KindNormal    MessageKind = "normal"
	KindSeparator MessageKind = "separator"
)

// Message is a single entry in a contact's history.
type Message struct {
	ID        string      `json:"id"`
	Kind      MessageKind `json:"kind"`
	Sender    string      `json:"sender,omitempty"`
	Content   string      `json:"content,omitempty"`
	IsSelf    bool        `json:"isSelf"`
	CreatedAt time.Time   `json:"createdAt"`
}

// IsSeparator reports whether the entry marks a resumed conversation.
func (m Message) IsSeparator() bool {
	return m.Kind == KindSeparator
}
