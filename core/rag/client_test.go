package rag

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestQueryReturnsChunks(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/rag/output" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		var decoded struct {
			Query string `json:"query"`
		}
		if err := json.NewDecoder(r.Body).Decode(&decoded); err != nil {
			t.Errorf("unparsable request body: %v", err)
		}
		if decoded.Query != "favorite drink" {
			t.Errorf("unexpected query %q", decoded.Query)
		}
		fmt.Fprint(w, `["likes oolong tea", "dislikes coffee"]`)
	}))
	defer server.Close()

	client := NewClient(server.URL + "/")
	chunks, err := client.Query(context.Background(), "favorite drink")
	if err != nil {
		t.Fatalf("failed to query: %v", err)
	}
	if len(chunks) != 2 || chunks[0] != "likes oolong tea" {
		t.Fatalf("unexpected chunks %v", chunks)
	}
}

func TestUpdatePushesChunks(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/rag/update" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		var decoded struct {
			Chunks []string `json:"chunks"`
			Counts int      `json:"counts"`
		}
		if err := json.NewDecoder(r.Body).Decode(&decoded); err != nil {
			t.Errorf("unparsable request body: %v", err)
		}
		if len(decoded.Chunks) != 2 || decoded.Counts != 2 {
			t.Errorf("unexpected update payload %+v", decoded)
		}
		fmt.Fprint(w, `2`)
	}))
	defer server.Close()

	client := NewClient(server.URL)
	indexed, err := client.Update(context.Background(), []string{"user: hi", "assistant: hello"}, 2)
	if err != nil {
		t.Fatalf("failed to update: %v", err)
	}
	if indexed != 2 {
		t.Fatalf("expected 2 indexed records, got %d", indexed)
	}
}

func TestQuerySurfacesHTTPErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "index rebuilding", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := NewClient(server.URL)
	if _, err := client.Query(context.Background(), "anything"); err == nil {
		t.Fatal("expected an error for a non-200 response")
	}
}
