package core

import (
	"codemother/schema"
)

// historyToMessages converts one newest-first history page into
// chronological chat messages.
func historyToMessages(records []schema.HistoryRecord) []schema.ChatMessage {
	messages := make([]schema.ChatMessage, 0, len(records))
	for i := len(records) - 1; i >= 0; i-- {
		rec := records[i]
		role := schema.RoleAssistant
		if rec.MessageType == "user" {
			role = schema.RoleUser
		}
		messages = append(messages, schema.ChatMessage{
			ID:        schema.MessageID(rec.ID),
			Role:      role,
			Content:   rec.Message,
			Timestamp: rec.CreateTime,
		})
	}
	return messages
}

// findMessageLocked returns the index of a message by id, or -1.
func (s *Session) findMessageLocked(id schema.MessageID) int {
	for i := range s.messages {
		if s.messages[i].ID == id {
			return i
		}
	}
	return -1
}

// prependMessagesLocked inserts an older page ahead of the current list.
func (s *Session) prependMessagesLocked(older []schema.ChatMessage) {
	if len(older) == 0 {
		return
	}
	merged := make([]schema.ChatMessage, 0, len(older)+len(s.messages))
	merged = append(merged, older...)
	merged = append(merged, s.messages...)
	s.messages = merged
}
