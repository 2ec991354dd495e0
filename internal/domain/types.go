package domain

import "time"

// JobStatus tracks the server-side lifecycle of a transcription job.
type JobStatus string

const (
	JobStatusQueued  JobStatus = "queued"
	JobStatusRunning JobStatus = "running"
	JobStatusDone    JobStatus = "done"
	JobStatusError   JobStatus = "error"
)

// IsTerminal reports whether no further status transition can occur.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusDone || s == JobStatusError
}

// Recording is a stored audio artifact awaiting transcription.
type Recording struct {
	ID          string  `json:"id"`
	OriginalExt string  `json:"originalExt"`
	DurationS   float64 `json:"durationS"`
}

// Job is the observable snapshot of one transcription job.
type Job struct {
	ID         string    `json:"id"`
	Status     JobStatus `json:"status"`
	Progress   float64   `json:"progress"`
	Stage      string    `json:"stage,omitempty"`
	ETASeconds *float64  `json:"etaSeconds,omitempty"`
	ResultRef  string    `json:"resultRef,omitempty"`
	Error      string    `json:"error,omitempty"`
}

// Transcript is the durable text result plus user-editable metadata.
type Transcript struct {
	ID                  string    `json:"id"`
	RecordingID         string    `json:"recordingId"`
	Text                string    `json:"text"`
	Title               string    `json:"title"`
	Notes               string    `json:"notes"`
	Language            string    `json:"language,omitempty"`
	LanguageProbability *float64  `json:"languageProbability,omitempty"`
	Model               string    `json:"model"`
	Device              string    `json:"device"`
	Compute             string    `json:"compute"`
	DurationS           float64   `json:"durationS"`
	CreatedAt           time.Time `json:"createdAt"`
}

// HistoryItem is a read-only listing projection of a transcript.
type HistoryItem struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Preview   string    `json:"preview"`
	Language  string    `json:"language,omitempty"`
	Model     string    `json:"model"`
	CreatedAt time.Time `json:"createdAt"`
}

// TranscriptPatch carries a partial metadata update. Nil fields are untouched.
type TranscriptPatch struct {
	Title *string `json:"title,omitempty"`
	Notes *string `json:"notes,omitempty"`
}

// ArtifactFormat selects a downloadable transcript rendition.
type ArtifactFormat string

const (
	ArtifactText     ArtifactFormat = "txt"
	ArtifactSubtitle ArtifactFormat = "srt"
)

// TranscribeOptions are optional decoding knobs for job submission.
// Nil fields mean "use server default" and are never serialized.
type TranscribeOptions struct {
	Model                   *string  `json:"model,omitempty"`
	Device                  *string  `json:"device,omitempty"`
	Compute                 *string  `json:"compute,omitempty"`
	Language                *string  `json:"language,omitempty"`
	SRT                     *bool    `json:"srt,omitempty"`
	BeamSize                *int     `json:"beamSize,omitempty"`
	BestOf                  *int     `json:"bestOf,omitempty"`
	Temperature             *float64 `json:"temperature,omitempty"`
	Prompt                  *string  `json:"prompt,omitempty"`
	ConditionOnPreviousText *bool    `json:"conditionOnPreviousText,omitempty"`
	VAD                     *bool    `json:"vad,omitempty"`
	WordTimestamps          *bool    `json:"wordTimestamps,omitempty"`
	Diarize                 *bool    `json:"diarize,omitempty"`
}

// Settings contains user-selectable runtime configuration.
type Settings struct {
	ServerURL           string            `json:"serverUrl"`
	DefaultOptions      TranscribeOptions `json:"defaultOptions"`
	PollIntervalMS      int               `json:"pollIntervalMs"`
	PollErrorIntervalMS int               `json:"pollErrorIntervalMs"`
	NotesQuietPeriodMS  int               `json:"notesQuietPeriodMs"`
	SavedDisplayMS      int               `json:"savedDisplayMs"`
	HistoryActiveMS     int               `json:"historyActiveMs"`
	HistoryIdleMS       int               `json:"historyIdleMs"`
	DownloadDir         string            `json:"downloadDir"`
	NotifyOnCompletion  bool              `json:"notifyOnCompletion"`
}
