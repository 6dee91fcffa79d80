package openai

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/aria-vtuber/aria-core/core/llms"
	"github.com/aria-vtuber/aria-core/internal/utils"
	"github.com/jinzhu/copier"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	chunkPrefix = "data:"
	endMessage  = "[DONE]"

	// syntheticToolNotePrefix marks the transient assistant message that
	// records a tool round-trip; it is stripped from history once the
	// round-trip completes.
	syntheticToolNotePrefix = "use_tool "
)

// Client streams chat completions from an OpenAI-compatible endpoint. It
// owns the conversation history and resolves embedded tool calls before
// returning the final prose answer.
type Client struct {
	apiKey  string
	baseURL string
	model   string

	history *llms.History
	tools   []llms.Tool

	httpClient *http.Client

	// onContent receives each prose token as it is decoded from the
	// stream, before the response is complete.
	onContent func(token string)
	// onToolCall fires just before a resolved tool call is executed.
	onToolCall func(name string)
}

type ClientOption func(*Client)

func WithHistory(history *llms.History) ClientOption {
	return func(c *Client) {
		if history != nil {
			c.history = history
		}
	}
}

func WithTools(tools ...llms.Tool) ClientOption {
	return func(c *Client) { c.tools = append(c.tools, tools...) }
}

func WithContentCallback(callback func(token string)) ClientOption {
	return func(c *Client) {
		if callback != nil {
			c.onContent = callback
		}
	}
}

func WithToolCallCallback(callback func(name string)) ClientOption {
	return func(c *Client) {
		if callback != nil {
			c.onToolCall = callback
		}
	}
}

func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

func NewClient(apiKey, baseURL, model string, opts ...ClientOption) *Client {
	c := &Client{
		apiKey:     apiKey,
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		model:      model,
		history:    llms.NewHistory("", 0),
		onContent:  func(string) {},
		onToolCall: func(string) {},
		httpClient: &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport,
			otelhttp.WithSpanNameFormatter(func(operationName string, request *http.Request) string {
				return operationName + " " + request.URL.Path
			}),
		)},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) History() *llms.History { return c.history }

type SendOptions struct {
	// Image is a base64-encoded JPEG attached to the user turn.
	Image string
}

type SendOption func(*SendOptions)

func WithImage(image string) SendOption {
	return func(o *SendOptions) { o.Image = image }
}

// Send appends the user turn to history, streams the model response, and
// returns the final prose answer once any tool round-trips have resolved.
// Prose tokens are forwarded to the content callback as they arrive.
func (c *Client) Send(ctx context.Context, userText string, opts ...SendOption) (string, error) {
	options := SendOptions{}
	for _, opt := range opts {
		opt(&options)
	}

	ctx, span := tracer.Start(ctx, "send prompt")
	defer span.End()
	span.SetAttributes(attribute.String("request.model", c.model))

	if userText != "" {
		c.history.AppendMessage(llms.Message{
			Role:    llms.RoleUser,
			Content: userText,
			Image:   options.Image,
		})
	}

	final, err := c.generate(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}
	return final, nil
}

// generate performs one streamed request. When the stream carries a tool
// call it executes the tool, records a synthetic assistant note, and
// recurses with an empty user turn so the model can produce its prose
// answer; the note is stripped once the round-trip completes.
func (c *Client) generate(ctx context.Context) (string, error) {
	content, accumulated, err := c.streamOnce(ctx)
	if err != nil {
		return "", err
	}

	if !accumulated.active() {
		if strings.TrimSpace(content) != "" {
			c.history.Append(llms.RoleAssistant, content)
		}
		return content, nil
	}

	argumentsJSON := accumulated.argumentsJSON()
	var arguments map[string]any
	if err := json.Unmarshal([]byte(argumentsJSON), &arguments); err != nil {
		return "", fmt.Errorf("malformed tool arguments for %q: %w", accumulated.name, err)
	}

	c.onToolCall(accumulated.name)
	result, err := c.executeTool(ctx, accumulated.name, argumentsJSON)
	if err != nil {
		return "", fmt.Errorf("failed to call tool: %w", err)
	}

	c.history.Append(llms.RoleAssistant, fmt.Sprintf(
		"%s%s with args %s get result %s",
		syntheticToolNotePrefix, accumulated.name, argumentsJSON, result,
	))

	final, err := c.generate(ctx)

	c.history.RemoveMatching(func(m llms.Message) bool {
		return strings.Contains(m.Content, syntheticToolNotePrefix)
	})

	return final, err
}

func (c *Client) executeTool(ctx context.Context, name, argumentsJSON string) (string, error) {
	ctx, span := tracer.Start(ctx, "execute tool")
	defer span.End()
	span.SetAttributes(attribute.String("tool.name", name))

	for _, tool := range c.tools {
		if tool.Name != name {
			continue
		}
		result, err := tool.Execute(argumentsJSON)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return "", fmt.Errorf("failed to execute tool %q: %w", name, err)
		}
		return result, nil
	}

	err := fmt.Errorf("tool not found: %s", name)
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return "", err
}

// streamOnce issues a single chunked request and consumes it to the
// terminating sentinel. Prose tokens are forwarded immediately unless a
// tool-call fragment has been seen; a response is either prose or a tool
// invocation, never both spoken in the same turn.
func (c *Client) streamOnce(ctx context.Context) (string, *toolCallAccumulator, error) {
	ctx, span := tracer.Start(ctx, "stream completion")
	defer span.End()

	reqBody := requestBody{
		Model:    c.model,
		Messages: toMessages(c.history.Messages()),
		Stream:   true,
	}
	if len(c.tools) > 0 {
		var tools []toolFunction
		if err := copier.Copy(&tools, c.tools); err != nil {
			return "", nil, fmt.Errorf("failed to copy tool definitions: %w", err)
		}
		for _, fn := range tools {
			reqBody.Tools = append(reqBody.Tools, tool{Type: "function", Function: fn})
		}
		reqBody.ToolChoice = utils.Ptr("auto")
	}

	requestBodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return "", nil, fmt.Errorf("error marshalling JSON: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/chat/completions", bytes.NewBuffer(requestBodyBytes))
	if err != nil {
		return "", nil, fmt.Errorf("error creating HTTP request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", nil, fmt.Errorf("error sending request: %w", err)
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int("response.status_code", resp.StatusCode))
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", nil, fmt.Errorf("non-OK HTTP status %s: %s", resp.Status, decodeErrorBody(body))
	}

	var content strings.Builder
	accumulated := &toolCallAccumulator{}

	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		chunk := strings.TrimSpace(strings.TrimPrefix(scanner.Text(), chunkPrefix))
		if len(chunk) == 0 {
			continue
		}
		if chunk == endMessage {
			break
		}

		var responseBody streamingResponseBody
		if err := json.Unmarshal([]byte(chunk), &responseBody); err != nil {
			logger.Warn("unparsable stream chunk", "error", err.Error())
			continue
		}
		if len(responseBody.Choices) == 0 {
			continue
		}

		delta := responseBody.Choices[0].Delta
		for _, fragment := range delta.ToolCalls {
			accumulated.add(fragment)
		}

		if delta.Content != "" && !accumulated.active() {
			content.WriteString(delta.Content)
			c.onContent(delta.Content)
		}
	}
	if err := scanner.Err(); err != nil {
		return "", nil, fmt.Errorf("error reading streamed response: %w", err)
	}

	return content.String(), accumulated, nil
}
