package openai

import (
	"encoding/json"

	"github.com/aria-vtuber/aria-core/core/llms"
	"github.com/invopop/jsonschema"
)

type messageRole string

const (
	messageRoleSystem    messageRole = "system"
	messageRoleUser      messageRole = "user"
	messageRoleAssistant messageRole = "assistant"
)

type message struct {
	Role    messageRole `json:"role"`
	Content any         `json:"content"`
}

type contentPart struct {
	Type     string            `json:"type"`
	Text     string            `json:"text,omitempty"`
	ImageURL *contentPartImage `json:"image_url,omitempty"`
}

type contentPartImage struct {
	URL string `json:"url"`
}

func toMessages(history []llms.Message) []message {
	messages := make([]message, 0, len(history))
	for _, m := range history {
		if m.Image != "" {
			messages = append(messages, message{
				Role: messageRole(m.Role),
				Content: []contentPart{
					{Type: "text", Text: m.Content},
					{Type: "image_url", ImageURL: &contentPartImage{
						URL: "data:image/jpeg;base64," + m.Image,
					}},
				},
			})
			continue
		}

		messages = append(messages, message{Role: messageRole(m.Role), Content: m.Content})
	}
	return messages
}

type tool struct {
	Type     string       `json:"type"`
	Function toolFunction `json:"function"`
}

type toolFunction struct {
	Name        string             `json:"name"`
	Description string             `json:"description,omitempty"`
	Parameters  *jsonschema.Schema `json:"parameters,omitempty"`
}

type requestBody struct {
	Model      string    `json:"model"`
	Messages   []message `json:"messages"`
	Stream     bool      `json:"stream"`
	Tools      []tool    `json:"tools,omitempty"`
	ToolChoice *string   `json:"tool_choice,omitempty"`
}

type streamingResponseBody struct {
	Choices []struct {
		Delta struct {
			Role      string          `json:"role,omitempty"`
			Content   string          `json:"content,omitempty"`
			ToolCalls []toolCallDelta `json:"tool_calls,omitempty"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
}

type toolCallDelta struct {
	ID       string `json:"id,omitempty"`
	Type     string `json:"type,omitempty"`
	Function struct {
		Name      string `json:"name,omitempty"`
		Arguments string `json:"arguments,omitempty"`
	} `json:"function"`
}

type errorResponseBody struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

func decodeErrorBody(body []byte) string {
	var decoded errorResponseBody
	if err := json.Unmarshal(body, &decoded); err != nil || decoded.Error.Message == "" {
		return string(body)
	}
	return decoded.Error.Message
}
