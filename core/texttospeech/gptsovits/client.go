package gptsovits

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/aria-vtuber/aria-core/core/texttospeech"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// Client requests synthesized speech from a GPT-SoVITS inference server.
// A successful response is raw WAV bytes; failures carry a JSON body.
type Client struct {
	url      string
	language string

	httpClient *http.Client
}

func NewClient(url string, opts ...texttospeech.SynthesisOption) *Client {
	options := texttospeech.SynthesisOptions{
		Language: "zh",
		HTTPClient: &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport,
			otelhttp.WithSpanNameFormatter(func(operationName string, request *http.Request) string {
				return operationName + " " + request.URL.Path
			}),
		)},
	}
	for _, opt := range opts {
		opt(&options)
	}

	return &Client{
		url:        url,
		language:   options.Language,
		httpClient: options.HTTPClient,
	}
}

type synthesisRequest struct {
	Text         string `json:"text"`
	TextLanguage string `json:"text_language"`
}

type synthesisError struct {
	Message string `json:"message"`
}

// Synthesize returns a WAV byte stream for the given text.
func (c *Client) Synthesize(ctx context.Context, text string) ([]byte, error) {
	ctx, span := tracer.Start(ctx, "synthesize segment")
	defer span.End()
	span.SetAttributes(attribute.Int("request.text_length", len(text)))

	body, err := json.Marshal(synthesisRequest{Text: text, TextLanguage: c.language})
	if err != nil {
		return nil, fmt.Errorf("error marshalling JSON: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.url, bytes.NewBuffer(body))
	if err != nil {
		return nil, fmt.Errorf("error creating HTTP request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		err = fmt.Errorf("error sending request: %w", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int("response.status_code", resp.StatusCode))
	if resp.StatusCode != http.StatusOK {
		errorBody, _ := io.ReadAll(resp.Body)
		message := string(errorBody)
		var decoded synthesisError
		if err := json.Unmarshal(errorBody, &decoded); err == nil && decoded.Message != "" {
			message = decoded.Message
		}

		err := fmt.Errorf("synthesis failed with status %s: %s", resp.Status, message)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("error reading synthesized audio: %w", err)
	}
	return audio, nil
}
