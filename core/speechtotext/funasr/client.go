package funasr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/aria-vtuber/aria-core/core/audio"
	"github.com/aria-vtuber/aria-core/core/speechtotext"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// Client uploads finalized utterances to a FunASR-style transcription
// endpoint as multipart WAV and returns the recognized text.
type Client struct {
	url        string
	httpClient *http.Client
}

func NewClient(url string, opts ...speechtotext.TranscriptionOption) *Client {
	options := speechtotext.TranscriptionOptions{
		HTTPClient: &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport,
			otelhttp.WithSpanNameFormatter(func(operationName string, request *http.Request) string {
				return operationName + " " + request.URL.Path
			}),
		)},
	}
	for _, opt := range opts {
		opt(&options)
	}

	return &Client{url: url, httpClient: options.HTTPClient}
}

type transcriptionResponse struct {
	Status  string `json:"status"`
	Text    string `json:"text"`
	Message string `json:"message"`
}

// Transcribe encodes the samples as 16-bit PCM WAV and uploads them. Any
// non-success outcome is an error the caller treats as recoverable: the
// recording is discarded and the turn abandoned, never crashed.
func (c *Client) Transcribe(ctx context.Context, samples []float32, sampleRate int) (string, error) {
	ctx, span := tracer.Start(ctx, "transcribe utterance")
	defer span.End()
	span.SetAttributes(attribute.Int("request.sample_count", len(samples)))

	wav := audio.EncodeWAV(samples, sampleRate)

	body := &bytes.Buffer{}
	form := multipart.NewWriter(body)
	part, err := form.CreateFormFile("file", "recording.wav")
	if err != nil {
		return "", fmt.Errorf("failed to build upload form: %w", err)
	}
	if _, err := part.Write(wav); err != nil {
		return "", fmt.Errorf("failed to write audio into form: %w", err)
	}
	if err := form.Close(); err != nil {
		return "", fmt.Errorf("failed to finalize upload form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.url, body)
	if err != nil {
		return "", fmt.Errorf("error creating HTTP request: %w", err)
	}
	req.Header.Set("Content-Type", form.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		err = fmt.Errorf("error sending request: %w", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int("response.status_code", resp.StatusCode))
	if resp.StatusCode != http.StatusOK {
		errorBody, _ := io.ReadAll(resp.Body)
		err := fmt.Errorf("transcription failed with status %s: %s", resp.Status, string(errorBody))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}

	var decoded transcriptionResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", fmt.Errorf("error decoding transcription response: %w", err)
	}
	if decoded.Status != "success" {
		return "", fmt.Errorf("transcription rejected: %s", decoded.Message)
	}

	return strings.TrimSpace(decoded.Text), nil
}
