package service

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"

	"testing"

	"github.com/timmy/voicelog/internal/config"
)

func newTestTranscriptionClient(baseURL string) *TranscriptionClient {
	return NewTranscriptionClient(&config.ASRConfig{
		BaseURL: baseURL,
		AppKey:  "test-app",
		APIKey:  "test-key",
	})
}

func TestTranscriptionClient_Submit(t *testing.T) {
	var gotBody submitTaskRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut {
			t.Errorf("expected PUT, got %s", r.Method)
		}
		if r.URL.Path != "/openapi/tingwu/v2/tasks" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.URL.Query().Get("type") != "offline" {
			t.Errorf("expected type=offline, got %q", r.URL.Query().Get("type"))
		}
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("failed to decode request body: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(taskResponse{
			Code: "0",
			Data: taskData{TaskID: "task-abc", TaskStatus: "ONGOING"},
		})
	}))
	defer server.Close()

	client := newTestTranscriptionClient(server.URL)
	taskID, err := client.Submit(context.Background(), "http://storage.test/audio/1.mp3")
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if taskID != "task-abc" {
		t.Errorf("expected task-abc, got %q", taskID)
	}
	if gotBody.AppKey != "test-app" {
		t.Errorf("expected app key forwarded, got %q", gotBody.AppKey)
	}
	if gotBody.Input.FileURL != "http://storage.test/audio/1.mp3" {
		t.Errorf("expected audio URL forwarded, got %q", gotBody.Input.FileURL)
	}
	if gotBody.Input.SourceLanguage != "cn" {
		t.Errorf("expected source language cn, got %q", gotBody.Input.SourceLanguage)
	}
}

func TestTranscriptionClient_SubmitNoTaskID(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(taskResponse{Code: "QUOTA.EXCEEDED", Message: "out of quota"})
	}))
	defer server.Close()

	client := newTestTranscriptionClient(server.URL)
	if _, err := client.Submit(context.Background(), "http://storage.test/a.mp3"); err == nil {
		t.Fatal("expected an error when no task ID is returned")
	}
}

func TestTranscriptionClient_Poll(t *testing.T) {
	tests := []struct {
		name       string
		response   taskResponse
		wantStatus PollStatus
		wantURL    string
		wantCode   string
	}{
		{
			name:       "ongoing",
			response:   taskResponse{Data: taskData{TaskStatus: "ONGOING"}},
			wantStatus: StatusPending,
		},
		{
			name:       "unknown status treated as pending",
			response:   taskResponse{Data: taskData{TaskStatus: "QUEUEING"}},
			wantStatus: StatusPending,
		},
		{
			name: "completed",
			response: taskResponse{Data: taskData{
				TaskStatus: "COMPLETED",
				Result:     taskResult{Transcription: "http://asr.test/result.json"},
			}},
			wantStatus: StatusSucceeded,
			wantURL:    "http://asr.test/result.json",
		},
		{
			name:       "completed without transcript url",
			response:   taskResponse{Data: taskData{TaskStatus: "COMPLETED"}},
			wantStatus: StatusFailed,
		},
		{
			name: "failed",
			response: taskResponse{Data: taskData{
				TaskStatus:   "FAILED",
				ErrorCode:    "AUDIO.DECODE",
				ErrorMessage: "cannot decode",
			}},
			wantStatus: StatusFailed,
			wantCode:   "AUDIO.DECODE",
		},
		{
			name:       "invalid",
			response:   taskResponse{Data: taskData{TaskStatus: "INVALID"}},
			wantStatus: StatusFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/openapi/tingwu/v2/tasks/task-1" {
					t.Errorf("unexpected path %s", r.URL.Path)
				}
				w.Header().Set("Content-Type", "application/json")
				json.NewEncoder(w).Encode(tt.response)
			}))
			defer server.Close()

			client := newTestTranscriptionClient(server.URL)
			result, err := client.Poll(context.Background(), "task-1")
			if err != nil {
				t.Fatalf("Poll failed: %v", err)
			}
			if result.Status != tt.wantStatus {
				t.Errorf("expected status %v, got %v", tt.wantStatus, result.Status)
			}
			if result.TranscriptURL != tt.wantURL {
				t.Errorf("expected transcript URL %q, got %q", tt.wantURL, result.TranscriptURL)
			}
			if tt.wantCode != "" && result.ErrorCode != tt.wantCode {
				t.Errorf("expected error code %q, got %q", tt.wantCode, result.ErrorCode)
			}
		})
	}
}

func TestTranscriptionClient_PollServerError(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}))
	defer server.Close()

	client := newTestTranscriptionClient(server.URL)
	if _, err := client.Poll(context.Background(), "task-1"); err == nil {
		t.Fatal("expected an error on HTTP 500")
	}
	if calls.Load() != 1 {
		t.Errorf("expected 1 call, got %d", calls.Load())
	}
}

func TestTranscriptionClient_FetchTranscript(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(transcriptFile{
			Transcription: transcriptBody{
				Paragraphs: []transcriptParagraph{
					{Words: []transcriptWord{{Text: "今天"}, {Text: "开会"}, {Text: "讨论了预算。"}}},
					{Words: []transcriptWord{{Text: "  "}}},
					{Words: []transcriptWord{{Text: "下午"}, {Text: "写周报。"}}},
				},
			},
		})
	}))
	defer server.Close()

	client := newTestTranscriptionClient(server.URL)
	text, err := client.FetchTranscript(context.Background(), server.URL+"/result.json")
	if err != nil {
		t.Fatalf("FetchTranscript failed: %v", err)
	}

	expected := "今天开会讨论了预算。\n下午写周报。"
	if text != expected {
		t.Errorf("expected %q, got %q", expected, text)
	}
}
