package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/timmy/voicelog/internal/config"
)

// PollStatus is the coarse outcome of one poll of an ASR task.
type PollStatus int

const (
	// StatusPending means the task is still being processed.
	StatusPending PollStatus = iota
	// StatusSucceeded means recognition finished and a transcript URL is available.
	StatusSucceeded
	// StatusFailed means the service rejected or failed the task. Terminal.
	StatusFailed
)

// PollResult is the parsed state of an ASR task at one poll.
type PollResult struct {
	Status        PollStatus
	TranscriptURL string // set when Status == StatusSucceeded
	ErrorCode     string
	ErrorMessage  string
}

// Transcriber defines the async speech recognition contract used by the
// job pipeline. Submit starts a remote task, Poll inspects it, and
// FetchTranscript downloads and flattens the finished result.
type Transcriber interface {
	Submit(ctx context.Context, audioURL string) (string, error)
	Poll(ctx context.Context, taskID string) (*PollResult, error)
	FetchTranscript(ctx context.Context, transcriptURL string) (string, error)
}

// TranscriptionClient calls an offline speech recognition HTTP API.
type TranscriptionClient struct {
	client  *resty.Client
	baseURL string
	appKey  string
}

// NewTranscriptionClient creates a new transcription client.
// Parameters:
//   - cfg: ASR configuration with base URL, app key, and API key.
// Returns:
//   - *TranscriptionClient: client ready for task submission and polling.
func NewTranscriptionClient(cfg *config.ASRConfig) *TranscriptionClient {
	client := resty.New()
	client.SetHeader("Content-Type", "application/json")
	if cfg.APIKey != "" {
		client.SetHeader("Authorization", "Bearer "+cfg.APIKey)
	}
	client.SetTimeout(30 * time.Second)

	return &TranscriptionClient{
		client:  client,
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		appKey:  cfg.AppKey,
	}
}

// ASR API request/response structures
type submitTaskRequest struct {
	AppKey     string         `json:"AppKey"`
	Input      taskInput      `json:"Input"`
	Parameters taskParameters `json:"Parameters"`
}

type taskInput struct {
	SourceLanguage string `json:"SourceLanguage"`
	TaskKey        string `json:"TaskKey"`
	FileURL        string `json:"FileUrl"`
}

type taskParameters struct {
	Transcription transcriptionParams `json:"Transcription"`
}

type transcriptionParams struct {
	DiarizationEnabled bool              `json:"DiarizationEnabled"`
	Diarization        diarizationParams `json:"Diarization"`
}

type diarizationParams struct {
	SpeakerCount int `json:"SpeakerCount"`
}

type taskResponse struct {
	Code    string   `json:"Code"`
	Message string   `json:"Message"`
	Data    taskData `json:"Data"`
}

type taskData struct {
	TaskID       string     `json:"TaskId"`
	TaskStatus   string     `json:"TaskStatus"`
	ErrorCode    string     `json:"ErrorCode"`
	ErrorMessage string     `json:"ErrorMessage"`
	Result       taskResult `json:"Result"`
}

type taskResult struct {
	Transcription string `json:"Transcription"` // URL of the transcript JSON
}

// Submit starts an offline transcription task for the given audio URL.
// The URL must be fetchable by the ASR service, so callers pass presigned
// storage URLs, not raw object keys.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - audioURL: fetchable URL of the uploaded audio.
// Returns:
//   - string: remote task ID used for polling.
//   - error: non-nil if submission fails or no task ID is returned.
func (c *TranscriptionClient) Submit(ctx context.Context, audioURL string) (string, error) {
	req := submitTaskRequest{
		AppKey: c.appKey,
		Input: taskInput{
			SourceLanguage: "cn",
			TaskKey:        "task" + time.Now().Format("20060102150405"),
			FileURL:        audioURL,
		},
		Parameters: taskParameters{
			Transcription: transcriptionParams{
				DiarizationEnabled: true,
				Diarization:        diarizationParams{SpeakerCount: 2},
			},
		},
	}

	var resp taskResponse
	httpResp, err := c.client.R().
		SetContext(ctx).
		SetQueryParam("type", "offline").
		SetBody(req).
		SetResult(&resp).
		Put(c.baseURL + "/openapi/tingwu/v2/tasks")

	if err != nil {
		return "", fmt.Errorf("failed to submit transcription task: %w", err)
	}

	if httpResp.StatusCode() != 200 {
		return "", fmt.Errorf("transcription API error: status %d, body: %s", httpResp.StatusCode(), httpResp.String())
	}

	if resp.Data.TaskID == "" {
		return "", fmt.Errorf("transcription API returned no task ID: %s %s", resp.Code, resp.Message)
	}

	return resp.Data.TaskID, nil
}

// Poll queries the state of a transcription task.
// Unknown task statuses are treated as pending so a transient service burp
// doesn't fail the job.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - taskID: remote task ID from Submit.
// Returns:
//   - *PollResult: parsed task state.
//   - error: non-nil if the poll request itself fails.
func (c *TranscriptionClient) Poll(ctx context.Context, taskID string) (*PollResult, error) {
	var resp taskResponse
	httpResp, err := c.client.R().
		SetContext(ctx).
		SetResult(&resp).
		Get(c.baseURL + "/openapi/tingwu/v2/tasks/" + taskID)

	if err != nil {
		return nil, fmt.Errorf("failed to poll task %s: %w", taskID, err)
	}

	if httpResp.StatusCode() != 200 {
		return nil, fmt.Errorf("transcription API error: status %d, body: %s", httpResp.StatusCode(), httpResp.String())
	}

	switch resp.Data.TaskStatus {
	case "COMPLETED":
		if resp.Data.Result.Transcription == "" {
			return &PollResult{
				Status:       StatusFailed,
				ErrorMessage: "task completed without transcript URL",
			}, nil
		}
		return &PollResult{
			Status:        StatusSucceeded,
			TranscriptURL: resp.Data.Result.Transcription,
		}, nil
	case "FAILED", "INVALID":
		return &PollResult{
			Status:       StatusFailed,
			ErrorCode:    resp.Data.ErrorCode,
			ErrorMessage: resp.Data.ErrorMessage,
		}, nil
	default:
		// ONGOING and anything unrecognized
		return &PollResult{Status: StatusPending}, nil
	}
}

// Transcript JSON structures (the file the ASR service writes on success)
type transcriptFile struct {
	Transcription transcriptBody `json:"Transcription"`
}

type transcriptBody struct {
	Paragraphs []transcriptParagraph `json:"Paragraphs"`
}

type transcriptParagraph struct {
	Words []transcriptWord `json:"Words"`
}

type transcriptWord struct {
	Text string `json:"Text"`
}

// FetchTranscript downloads the transcript JSON and flattens it to plain
// text, one line per paragraph. Empty paragraphs are skipped.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - transcriptURL: URL from a succeeded poll.
// Returns:
//   - string: paragraph text joined with newlines.
//   - error: non-nil if download or parsing fails.
func (c *TranscriptionClient) FetchTranscript(ctx context.Context, transcriptURL string) (string, error) {
	var file transcriptFile
	httpResp, err := c.client.R().
		SetContext(ctx).
		SetResult(&file).
		Get(transcriptURL)

	if err != nil {
		return "", fmt.Errorf("failed to download transcript: %w", err)
	}

	if httpResp.StatusCode() != 200 {
		return "", fmt.Errorf("transcript download error: status %d", httpResp.StatusCode())
	}

	var lines []string
	for _, para := range file.Transcription.Paragraphs {
		var sb strings.Builder
		for _, word := range para.Words {
			sb.WriteString(word.Text)
		}
		if text := strings.TrimSpace(sb.String()); text != "" {
			lines = append(lines, text)
		}
	}

	return strings.Join(lines, "\n"), nil
}
