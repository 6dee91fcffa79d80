package gptsovits

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/aria-vtuber/aria-core/core/texttospeech"
)

func TestSynthesizeSendsTextAndLanguage(t *testing.T) {
	wav := []byte("RIFFfakeWAVE")

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var decoded struct {
			Text         string `json:"text"`
			TextLanguage string `json:"text_language"`
		}
		if err := json.NewDecoder(r.Body).Decode(&decoded); err != nil {
			t.Errorf("unparsable request body: %v", err)
		}
		if decoded.Text != "你好。" {
			t.Errorf("unexpected text %q", decoded.Text)
		}
		if decoded.TextLanguage != "ja" {
			t.Errorf("unexpected language %q", decoded.TextLanguage)
		}
		w.Write(wav)
	}))
	defer server.Close()

	client := NewClient(server.URL, texttospeech.WithLanguage("ja"))
	got, err := client.Synthesize(context.Background(), "你好。")
	if err != nil {
		t.Fatalf("failed to synthesize: %v", err)
	}
	if !bytes.Equal(got, wav) {
		t.Fatalf("expected the raw WAV bytes back, got %q", got)
	}
}

func TestSynthesizeDecodesErrorMessages(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"message": "reference audio missing"}`)
	}))
	defer server.Close()

	client := NewClient(server.URL)
	_, err := client.Synthesize(context.Background(), "hello")
	if err == nil {
		t.Fatal("expected an error for a failed synthesis")
	}
	if !strings.Contains(err.Error(), "reference audio missing") {
		t.Fatalf("expected the server message surfaced, got %v", err)
	}
}
