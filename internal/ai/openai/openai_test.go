package openai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/KevinLaRosa/yorimichi-workers/internal/ai"
)

func newChatServer(t *testing.T, replies []string) *Client {
	t.Helper()

	var call int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("missing bearer token")
		}
		if call >= len(replies) {
			t.Fatalf("unexpected extra chat call %d", call+1)
		}
		reply := replies[call]
		call++
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"content": reply}},
			},
		})
	}))
	t.Cleanup(server.Close)

	return NewClient(Config{APIKey: "test-key", BaseURL: server.URL, HTTPClient: server.Client()})
}

func TestClassifier_ParsesVerdicts(t *testing.T) {
	t.Parallel()

	cases := []struct {
		answer     string
		subject    bool
		confidence float64
	}{
		{"OUI", true, 1},
		{"non.", false, 1},
		{"Peut-être", false, 0},
	}

	for _, tc := range cases {
		classifier := NewClassifier(newChatServer(t, []string{tc.answer}), "gpt-3.5-turbo")
		verdict, err := classifier.Classify(context.Background(), "Nakano Broadway is a shopping complex.")
		if err != nil {
			t.Fatalf("classify %q failed: %v", tc.answer, err)
		}
		if verdict.IsSubject != tc.subject || verdict.Confidence != tc.confidence {
			t.Fatalf("answer %q: got %+v", tc.answer, verdict)
		}
	}
}

func TestExtractor_StripsCodeFences(t *testing.T) {
	t.Parallel()

	extraction := "```json\n{\"name\": \"Nakano Broadway\", \"neighborhood\": \"Nakano\", \"summary\": \"Collector paradise.\", \"keywords\": [\"anime\"]}\n```"
	extractor := NewExtractor(newChatServer(t, []string{"A lovely rewritten description.", extraction}), "gpt-4-turbo-preview")

	result, err := extractor.RewriteAndExtract(context.Background(), "source text")
	if err != nil {
		t.Fatalf("extract failed: %v", err)
	}
	if result.Name != "Nakano Broadway" {
		t.Fatalf("unexpected name: %q", result.Name)
	}
	if result.Description != "A lovely rewritten description." {
		t.Fatalf("unexpected description: %q", result.Description)
	}
	if len(result.Keywords) != 1 || result.Keywords[0] != "anime" {
		t.Fatalf("unexpected keywords: %v", result.Keywords)
	}
}

func TestExtractor_MalformedOutputIsExtractionError(t *testing.T) {
	t.Parallel()

	extractor := NewExtractor(newChatServer(t, []string{"A description.", "not json at all"}), "gpt-4-turbo-preview")

	_, err := extractor.RewriteAndExtract(context.Background(), "source text")
	if !errors.Is(err, ai.ErrExtraction) {
		t.Fatalf("expected extraction error, got %v", err)
	}
}

func TestExtractor_NullNameFallsBack(t *testing.T) {
	t.Parallel()

	extractor := NewExtractor(newChatServer(t, []string{"A description.", `{"name": null}`}), "gpt-4-turbo-preview")

	result, err := extractor.RewriteAndExtract(context.Background(), "source text")
	if err != nil {
		t.Fatalf("extract failed: %v", err)
	}
	if result.Name != "Unnamed place" {
		t.Fatalf("unexpected fallback name: %q", result.Name)
	}
}

func TestEmbedder_DimensionCheck(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{
				{"embedding": []float32{0.1, 0.2, 0.3}},
			},
		})
	}))
	t.Cleanup(server.Close)
	client := NewClient(Config{APIKey: "test-key", BaseURL: server.URL, HTTPClient: server.Client()})

	embedder := NewEmbedder(client, "text-embedding-ada-002", 3)
	vector, err := embedder.EmbedText(context.Background(), "some text")
	if err != nil {
		t.Fatalf("embed failed: %v", err)
	}
	if len(vector) != 3 {
		t.Fatalf("unexpected vector length: %d", len(vector))
	}

	mismatched := NewEmbedder(client, "text-embedding-ada-002", 1536)
	if _, err := mismatched.EmbedText(context.Background(), "some text"); err == nil {
		t.Fatalf("expected dimension mismatch error")
	}
}
