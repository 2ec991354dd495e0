package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"orate-studio/internal/domain"
)

// ProgressIndeterminate is reported when the transfer total is unknown.
const ProgressIndeterminate = -1.0

// ProgressFunc receives fractional upload progress in [0,1], or
// ProgressIndeterminate when no total can be computed.
type ProgressFunc func(fraction float64)

// Client talks to the Orate HTTP API. All methods classify failures as
// either a wrapped transport error (service unreachable) or *APIError
// (service rejected the request).
type Client struct {
	baseURL string
	http    *http.Client
	newID   func() string
}

// New creates a client for the given server base URL.
func New(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 60 * time.Second},
		newID:   uuid.NewString,
	}
}

// NewForTests creates a client with an injectable HTTP client and ID source.
func NewForTests(baseURL string, httpClient *http.Client, newID func() string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpClient,
		newID:   newID,
	}
}

type recordingCreateResponse struct {
	RecordingID string   `json:"recording_id"`
	OriginalExt string   `json:"original_ext"`
	DurationS   *float64 `json:"duration_s"`
}

type transcribeRequest struct {
	RecordingID             string   `json:"recording_id"`
	Model                   *string  `json:"model,omitempty"`
	Device                  *string  `json:"device,omitempty"`
	Compute                 *string  `json:"compute,omitempty"`
	Language                *string  `json:"language,omitempty"`
	SRT                     *bool    `json:"srt,omitempty"`
	BeamSize                *int     `json:"beam_size,omitempty"`
	BestOf                  *int     `json:"best_of,omitempty"`
	Temperature             *float64 `json:"temperature,omitempty"`
	Prompt                  *string  `json:"prompt,omitempty"`
	ConditionOnPreviousText *bool    `json:"condition_on_previous_text,omitempty"`
	VAD                     *bool    `json:"vad,omitempty"`
	WordTimestamps          *bool    `json:"word_timestamps,omitempty"`
	Diarize                 *bool    `json:"diarize,omitempty"`
}

type jobCreateResponse struct {
	JobID  string `json:"job_id"`
	Status string `json:"status"`
}

type jobGetResponse struct {
	JobID      string   `json:"job_id"`
	Status     string   `json:"status"`
	Progress   float64  `json:"progress"`
	Stage      string   `json:"stage,omitempty"`
	ETASeconds *float64 `json:"eta_seconds,omitempty"`
	ResultRef  string   `json:"result_ref,omitempty"`
	Error      string   `json:"error,omitempty"`
}

type transcriptGetResponse struct {
	TranscriptID        string   `json:"transcript_id"`
	RecordingID         string   `json:"recording_id"`
	Text                string   `json:"text"`
	Title               string   `json:"title"`
	Notes               string   `json:"notes"`
	Language            string   `json:"language,omitempty"`
	LanguageProbability *float64 `json:"language_probability,omitempty"`
	Model               string   `json:"model"`
	Device              string   `json:"device"`
	Compute             string   `json:"compute"`
	DurationS           float64  `json:"duration_s"`
	CreatedAt           string   `json:"created_at"`
}

type transcriptListItem struct {
	TranscriptID string `json:"transcript_id"`
	Title        string `json:"title"`
	Preview      string `json:"preview"`
	Language     string `json:"language,omitempty"`
	Model        string `json:"model"`
	CreatedAt    string `json:"created_at"`
}

type transcriptUpdateRequest struct {
	Title *string `json:"title,omitempty"`
	Notes *string `json:"notes,omitempty"`
}

type errorResponse struct {
	Detail string `json:"detail"`
}

// CreateRecording uploads one encoded audio blob and returns the stored
// recording. Progress is reported as the request body is consumed.
func (c *Client) CreateRecording(ctx context.Context, blob []byte, filename string, onProgress ProgressFunc) (domain.Recording, error) {
	var body bytes.Buffer
	form := multipart.NewWriter(&body)
	part, err := form.CreateFormFile("file", filename)
	if err != nil {
		return domain.Recording{}, fmt.Errorf("build upload form: %w", err)
	}
	if _, err := part.Write(blob); err != nil {
		return domain.Recording{}, fmt.Errorf("write upload body: %w", err)
	}
	if err := form.Close(); err != nil {
		return domain.Recording{}, fmt.Errorf("finalize upload form: %w", err)
	}

	total := int64(body.Len())
	reader := newProgressReader(&body, total, onProgress)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/recordings", reader)
	if err != nil {
		return domain.Recording{}, fmt.Errorf("build upload request: %w", err)
	}
	req.Header.Set("Content-Type", form.FormDataContentType())
	req.Header.Set("X-Request-ID", c.newID())
	req.ContentLength = total

	var out recordingCreateResponse
	if err := c.do(req, &out); err != nil {
		return domain.Recording{}, err
	}

	rec := domain.Recording{
		ID:          out.RecordingID,
		OriginalExt: out.OriginalExt,
	}
	if out.DurationS != nil {
		rec.DurationS = *out.DurationS
	}
	return rec, nil
}

// SubmitTranscription creates a transcription job for a stored recording.
// Only explicitly set option fields are serialized.
func (c *Client) SubmitTranscription(ctx context.Context, recordingID string, opts *domain.TranscribeOptions) (domain.Job, error) {
	payload := transcribeRequest{RecordingID: recordingID}
	if opts != nil {
		payload.Model = opts.Model
		payload.Device = opts.Device
		payload.Compute = opts.Compute
		payload.Language = opts.Language
		payload.SRT = opts.SRT
		payload.BeamSize = opts.BeamSize
		payload.BestOf = opts.BestOf
		payload.Temperature = opts.Temperature
		payload.Prompt = opts.Prompt
		payload.ConditionOnPreviousText = opts.ConditionOnPreviousText
		payload.VAD = opts.VAD
		payload.WordTimestamps = opts.WordTimestamps
		payload.Diarize = opts.Diarize
	}

	var out jobCreateResponse
	if err := c.postJSON(ctx, "/api/transcribe", payload, &out); err != nil {
		return domain.Job{}, err
	}

	return domain.Job{
		ID:     out.JobID,
		Status: domain.JobStatus(out.Status),
	}, nil
}

// GetJob fetches the current snapshot of one job.
func (c *Client) GetJob(ctx context.Context, jobID string) (domain.Job, error) {
	var out jobGetResponse
	if err := c.getJSON(ctx, "/api/jobs/"+url.PathEscape(jobID), &out); err != nil {
		return domain.Job{}, err
	}

	return domain.Job{
		ID:         out.JobID,
		Status:     domain.JobStatus(out.Status),
		Progress:   out.Progress,
		Stage:      out.Stage,
		ETASeconds: out.ETASeconds,
		ResultRef:  out.ResultRef,
		Error:      out.Error,
	}, nil
}

// GetTranscript fetches a full transcript including inline text.
func (c *Client) GetTranscript(ctx context.Context, transcriptID string) (domain.Transcript, error) {
	var out transcriptGetResponse
	if err := c.getJSON(ctx, "/api/transcripts/"+url.PathEscape(transcriptID), &out); err != nil {
		return domain.Transcript{}, err
	}
	return toTranscript(out), nil
}

// ListTranscripts fetches preview projections of past transcripts.
func (c *Client) ListTranscripts(ctx context.Context, limit int) ([]domain.HistoryItem, error) {
	path := "/api/transcripts"
	if limit > 0 {
		path += fmt.Sprintf("?limit=%d", limit)
	}

	var out []transcriptListItem
	if err := c.getJSON(ctx, path, &out); err != nil {
		return nil, err
	}

	items := make([]domain.HistoryItem, 0, len(out))
	for _, item := range out {
		items = append(items, domain.HistoryItem{
			ID:        item.TranscriptID,
			Title:     item.Title,
			Preview:   item.Preview,
			Language:  item.Language,
			Model:     item.Model,
			CreatedAt: parseServerTime(item.CreatedAt),
		})
	}
	return items, nil
}

// UpdateTranscript applies a partial title/notes update and returns the
// updated transcript metadata.
func (c *Client) UpdateTranscript(ctx context.Context, transcriptID string, patch domain.TranscriptPatch) (domain.Transcript, error) {
	payload := transcriptUpdateRequest{Title: patch.Title, Notes: patch.Notes}

	data, err := json.Marshal(payload)
	if err != nil {
		return domain.Transcript{}, fmt.Errorf("encode transcript patch: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPatch,
		c.baseURL+"/api/transcripts/"+url.PathEscape(transcriptID), bytes.NewReader(data))
	if err != nil {
		return domain.Transcript{}, fmt.Errorf("build patch request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", c.newID())

	var out transcriptGetResponse
	if err := c.do(req, &out); err != nil {
		return domain.Transcript{}, err
	}
	return toTranscript(out), nil
}

// DeleteTranscript removes a transcript by id.
func (c *Client) DeleteTranscript(ctx context.Context, transcriptID string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete,
		c.baseURL+"/api/transcripts/"+url.PathEscape(transcriptID), nil)
	if err != nil {
		return fmt.Errorf("build delete request: %w", err)
	}
	req.Header.Set("X-Request-ID", c.newID())

	return c.do(req, nil)
}

// DownloadArtifact fetches the transcript artifact in the given format.
func (c *Client) DownloadArtifact(ctx context.Context, transcriptID string, format domain.ArtifactFormat) ([]byte, error) {
	path := fmt.Sprintf("/api/transcripts/%s/download?format=%s",
		url.PathEscape(transcriptID), url.QueryEscape(string(format)))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("build download request: %w", err)
	}
	req.Header.Set("X-Request-ID", c.newID())

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("reach server: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, readAPIError(resp)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read artifact body: %w", err)
	}
	return data, nil
}

// Health checks server reachability via the healthz endpoint.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/healthz", nil)
	if err != nil {
		return fmt.Errorf("build health request: %w", err)
	}
	return c.do(req, nil)
}

// postJSON sends a JSON payload and decodes a JSON response.
func (c *Client) postJSON(ctx context.Context, path string, payload, out any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", c.newID())

	return c.do(req, out)
}

// getJSON fetches a path and decodes a JSON response.
func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("X-Request-ID", c.newID())

	return c.do(req, out)
}

// do executes one request and classifies transport versus server failures.
func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("reach server: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return readAPIError(resp)
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response body: %w", err)
	}
	return nil
}

// readAPIError builds an APIError from a non-2xx response body.
func readAPIError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	var parsed errorResponse
	message := strings.TrimSpace(string(data))
	if err := json.Unmarshal(data, &parsed); err == nil && parsed.Detail != "" {
		message = parsed.Detail
	}

	return &APIError{Status: resp.StatusCode, Message: message}
}

// toTranscript maps the wire transcript shape to the domain type.
func toTranscript(out transcriptGetResponse) domain.Transcript {
	return domain.Transcript{
		ID:                  out.TranscriptID,
		RecordingID:         out.RecordingID,
		Text:                out.Text,
		Title:               out.Title,
		Notes:               out.Notes,
		Language:            out.Language,
		LanguageProbability: out.LanguageProbability,
		Model:               out.Model,
		Device:              out.Device,
		Compute:             out.Compute,
		DurationS:           out.DurationS,
		CreatedAt:           parseServerTime(out.CreatedAt),
	}
}

// parseServerTime accepts the server's ISO timestamps, empty on failure.
func parseServerTime(raw string) time.Time {
	if raw == "" {
		return time.Time{}
	}
	if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		return t
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t
	}
	return time.Time{}
}

// progressReader reports consumed bytes against a known total.
type progressReader struct {
	r        io.Reader
	total    int64
	read     int64
	callback ProgressFunc
}

// newProgressReader wraps r and reports fractions to callback.
func newProgressReader(r io.Reader, total int64, callback ProgressFunc) *progressReader {
	return &progressReader{r: r, total: total, callback: callback}
}

// Read forwards to the wrapped reader and emits progress.
func (p *progressReader) Read(buf []byte) (int, error) {
	n, err := p.r.Read(buf)
	if n > 0 && p.callback != nil {
		p.read += int64(n)
		if p.total <= 0 {
			p.callback(ProgressIndeterminate)
		} else {
			fraction := float64(p.read) / float64(p.total)
			if fraction > 1 {
				fraction = 1
			}
			p.callback(fraction)
		}
	}
	return n, err
}
