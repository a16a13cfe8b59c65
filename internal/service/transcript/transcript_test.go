package transcript

import (
	"context"
	"testing"

	"github.com/cloudwego/eino/schema"
	"github.com/zhouzirui/z-inbox/backend/internal/model/chat"
)

func sampleHistory() []chat.Message {
	return []chat.Message{
		{Kind: chat.KindNormal, Sender: "Mira", Content: "are you there?"},
		{Kind: chat.KindSeparator},
		{Kind: chat.KindNormal, Content: "yes", IsSelf: true},
	}
}

func TestMessagesSkipsSeparators(t *testing.T) {
	messages := Messages(sampleHistory())
	if len(messages) != 2 {
		t.Fatalf("unexpected message count: got %d want 2", len(messages))
	}
	if messages[0].Role != schema.Assistant || messages[0].Name != "Mira" {
		t.Fatalf("unexpected first message: %+v", messages[0])
	}
	if messages[1].Role != schema.User || messages[1].Content != "yes" {
		t.Fatalf("unexpected second message: %+v", messages[1])
	}
}

func TestExportAddsHeader(t *testing.T) {
	messages, err := NewExporter().Export(context.Background(), "Mira", sampleHistory())
	if err != nil {
		t.Fatalf("Export err: %v", err)
	}
	if len(messages) != 3 {
		t.Fatalf("unexpected message count: got %d want 3", len(messages))
	}
	if messages[0].Role != schema.System || messages[0].Content != "Conversation with Mira" {
		t.Fatalf("unexpected header: %+v", messages[0])
	}
}

func TestExportEmptyHistory(t *testing.T) {
	messages, err := NewExporter().Export(context.Background(), "Jonas", nil)
	if err != nil {
		t.Fatalf("Export err: %v", err)
	}
	if len(messages) != 1 {
		t.Fatalf("expected header only, got %d messages", len(messages))
	}
}
