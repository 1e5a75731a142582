package service

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"

	"testing"

	"github.com/timmy/voicelog/internal/config"
	"github.com/timmy/voicelog/internal/domain"
	"github.com/timmy/voicelog/internal/prompts"
)

func chatOK(content string) chatResponse {
	var resp chatResponse
	resp.Choices = []struct {
		Message chatMessage `json:"message"`
	}{
		{Message: chatMessage{Role: "assistant", Content: content}},
	}
	return resp
}

func newTestSummaryClient(baseURL string, retries int) *SummaryClient {
	return NewSummaryClient(&config.SummaryConfig{
		Model:       "qwen-plus",
		APIKey:      "test-key",
		BaseURL:     baseURL,
		DefaultType: prompts.TypeDayReport,
		RetryCount:  retries,
	})
}

func TestSummaryClient_Summarize(t *testing.T) {
	var gotReq chatRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("failed to decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(chatOK("今日完成预算评审。"))
	}))
	defer server.Close()

	client := newTestSummaryClient(server.URL, 1)
	summary, err := client.Summarize(context.Background(), "开会讨论了预算", "")
	if err != nil {
		t.Fatalf("Summarize failed: %v", err)
	}
	if summary != "今日完成预算评审。" {
		t.Errorf("unexpected summary %q", summary)
	}

	if gotReq.Model != "qwen-plus" {
		t.Errorf("expected model qwen-plus, got %q", gotReq.Model)
	}
	if len(gotReq.Messages) != 2 || gotReq.Messages[0].Role != "system" {
		t.Fatalf("expected system+user messages, got %+v", gotReq.Messages)
	}
}

func TestSummaryClient_EmptyTranscript(t *testing.T) {
	client := newTestSummaryClient("http://unused", 1)
	_, err := client.Summarize(context.Background(), "   ", "")
	if !errors.Is(err, domain.ErrSummaryUnavailable) {
		t.Fatalf("expected ErrSummaryUnavailable, got %v", err)
	}
}

func TestSummaryClient_RetriesThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "overloaded", http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(chatOK("ok"))
	}))
	defer server.Close()

	client := newTestSummaryClient(server.URL, 2)
	summary, err := client.Summarize(context.Background(), "some transcript", "")
	if err != nil {
		t.Fatalf("Summarize failed: %v", err)
	}
	if summary != "ok" {
		t.Errorf("unexpected summary %q", summary)
	}
	if calls.Load() != 2 {
		t.Errorf("expected 2 calls, got %d", calls.Load())
	}
}

func TestSummaryClient_AllAttemptsFail(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := newTestSummaryClient(server.URL, 1)
	_, err := client.Summarize(context.Background(), "some transcript", "")
	if !errors.Is(err, domain.ErrSummaryUnavailable) {
		t.Fatalf("expected ErrSummaryUnavailable, got %v", err)
	}
	if calls.Load() != 1 {
		t.Errorf("expected 1 call, got %d", calls.Load())
	}
}

func TestSummaryClient_EmptyCompletion(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(chatOK("   "))
	}))
	defer server.Close()

	client := newTestSummaryClient(server.URL, 1)
	if _, err := client.Summarize(context.Background(), "some transcript", ""); !errors.Is(err, domain.ErrSummaryUnavailable) {
		t.Fatalf("expected ErrSummaryUnavailable, got %v", err)
	}
}

func TestSummaryClient_CancelledDuringBackoff(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	client := newTestSummaryClient(server.URL, 3)
	_, err := client.Summarize(ctx, "some transcript", "")
	if !errors.Is(err, domain.ErrSummaryUnavailable) {
		t.Fatalf("expected ErrSummaryUnavailable, got %v", err)
	}
}
