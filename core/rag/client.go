// Package rag talks to the external retrieval-augmented-memory
// collaborator. The vector store, embeddings, and reranking live behind
// this HTTP contract and are not modelled here.
package rag

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport,
			otelhttp.WithSpanNameFormatter(func(operationName string, request *http.Request) string {
				return operationName + " " + request.URL.Path
			}),
		)},
	}
}

type queryRequest struct {
	Query string `json:"query"`
}

type updateRequest struct {
	Chunks []string `json:"chunks"`
	Counts int      `json:"counts"`
}

// Query returns memory chunks relevant to the given text.
func (c *Client) Query(ctx context.Context, query string) ([]string, error) {
	var chunks []string
	if err := c.post(ctx, "/rag/output", queryRequest{Query: query}, &chunks); err != nil {
		return nil, fmt.Errorf("rag query failed: %w", err)
	}
	return chunks, nil
}

// Update pushes new conversation chunks into the memory store and returns
// the number of records indexed.
func (c *Client) Update(ctx context.Context, chunks []string, counts int) (int, error) {
	var indexed int
	if err := c.post(ctx, "/rag/update", updateRequest{Chunks: chunks, Counts: counts}, &indexed); err != nil {
		return 0, fmt.Errorf("rag update failed: %w", err)
	}
	return indexed, nil
}

func (c *Client) post(ctx context.Context, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("error marshalling JSON: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+path, bytes.NewBuffer(body))
	if err != nil {
		return fmt.Errorf("error creating HTTP request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("error sending request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		errorBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("non-OK HTTP status %s: %s", resp.Status, string(errorBody))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("error decoding response: %w", err)
	}
	return nil
}
