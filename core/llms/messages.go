package llms

import (
	"strings"
	"sync"
)

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is a single entry in the conversation history.
type Message struct {
	Role    Role
	Content string
	// Image is an optional base64-encoded JPEG attached to a user message
	// for multimodal prompting.
	Image string
}

// History is the ordered conversation context sent with every model
// request. System messages stay pinned at the front; other messages are
// trimmed oldest-first once the configured limit is exceeded.
type History struct {
	mu          sync.Mutex
	messages    []Message
	maxMessages int
}

// NewHistory creates a history seeded with an optional system prompt.
// maxMessages bounds the number of non-system messages kept; zero or
// negative disables trimming.
func NewHistory(systemPrompt string, maxMessages int) *History {
	h := &History{maxMessages: maxMessages}
	if strings.TrimSpace(systemPrompt) != "" {
		h.messages = append(h.messages, Message{Role: RoleSystem, Content: systemPrompt})
	}
	return h
}

func (h *History) Append(role Role, content string) {
	h.AppendMessage(Message{Role: role, Content: content})
}

func (h *History) AppendMessage(message Message) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.messages = append(h.messages, message)
	h.trimLocked()
}

func (h *History) trimLocked() {
	if h.maxMessages <= 0 {
		return
	}

	var system, rest []Message
	for _, message := range h.messages {
		if message.Role == RoleSystem {
			system = append(system, message)
		} else {
			rest = append(rest, message)
		}
	}

	if len(rest) <= h.maxMessages {
		return
	}

	rest = rest[len(rest)-h.maxMessages:]
	h.messages = append(system, rest...)
}

// Messages returns a copy of the current history.
func (h *History) Messages() []Message {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]Message, len(h.messages))
	copy(out, h.messages)
	return out
}

func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.messages)
}

// RemoveMatching deletes every message the predicate matches. It is used
// to strip synthetic tool-usage notes once a tool round-trip completes.
func (h *History) RemoveMatching(matches func(Message) bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	kept := h.messages[:0]
	for _, message := range h.messages {
		if !matches(message) {
			kept = append(kept, message)
		}
	}
	h.messages = kept
}
