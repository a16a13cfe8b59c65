package chat

// Contact is a conversation partner and the history exchanged with it.
// Contacts live for the whole play session and are never removed.
type Contact struct {
	Name          string
	PendingNodeID int
	Unread        bool
	History       []Message
}

// ContactSummary is the read-only view handed to HTTP clients.
type ContactSummary struct {
	Name          string `json:"name"`
	PendingNodeID int    `json:"pendingNodeId,omitempty"`
	Unread        bool   `json:"unread"`
	MessageCount  int    `json:"messageCount"`
	Active        bool   `json:"active"`
}

// EndsWithSeparator reports whether the last history entry is a separator.
func (c *Contact) EndsWithSeparator() bool {
	if len(c.History) == 0 {
		return false
	}
	return c.History[len(c.History)-1].IsSeparator()
}

// Seed describes a contact configured at session setup.
type Seed struct {
	Name        string
	EntryNodeID int
}
