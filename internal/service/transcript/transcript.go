// Package transcript renders conversation histories as chat-model messages.
package transcript

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"
	"github.com/zhouzirui/z-inbox/backend/internal/model/chat"
)

// Exporter formats a contact's history behind a short system header.
type Exporter struct {
	template prompt.ChatTemplate
}

// NewExporter creates an exporter with the default header.
func NewExporter() *Exporter {
	return &Exporter{
		template: prompt.FromMessages(
			schema.FString,
			schema.SystemMessage("Conversation with {contact}"),
			schema.MessagesPlaceholder("history", true),
		),
	}
}

// Export renders history for contact. Self messages become user turns and
// everything else assistant turns named after the sender.
func (e *Exporter) Export(ctx context.Context, contact string, history []chat.Message) ([]*schema.Message, error) {
	messages, err := e.template.Format(ctx, map[string]any{
		"contact": contact,
		"history": Messages(history),
	})
	if err != nil {
		return nil, fmt.Errorf("format transcript: %w", err)
	}
	return messages, nil
}

// Messages converts history without a header. Separators are dropped.
func Messages(history []chat.Message) []*schema.Message {
	out := make([]*schema.Message, 0, len(history))
	for _, msg := range history {
		if msg.IsSeparator() {
			continue
		}
		if msg.IsSelf {
			out = append(out, schema.UserMessage(msg.Content))
			continue
		}
		reply := schema.AssistantMessage(msg.Content, nil)
		reply.Name = msg.Sender
		out = append(out, reply)
	}
	return out
}
