// Package bootstrap assembles the application: configuration, the API
// client, capture, job orchestration, autosave, history, and the Wails
// runtime surface the frontend binds against.
package bootstrap

import (
	"context"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
	"github.com/wailsapp/wails/v2"
	"github.com/wailsapp/wails/v2/pkg/options"
	"github.com/wailsapp/wails/v2/pkg/options/assetserver"

	"orate-studio/internal/autosave"
	"orate-studio/internal/capture"
	"orate-studio/internal/client"
	"orate-studio/internal/config"
	"orate-studio/internal/diagnostics"
	"orate-studio/internal/domain"
	"orate-studio/internal/history"
	"orate-studio/internal/jobs"

	wailsruntime "github.com/wailsapp/wails/v2/pkg/runtime"
)

const (
	captureSampleRate  = 16000
	captureChunkFrames = 3200
	historyLimit       = 50
)

var audioDialogFilter = []wailsruntime.FileFilter{
	{
		DisplayName: "Audio files",
		Pattern:     "*.wav;*.mp3;*.m4a;*.flac;*.aac;*.ogg;*.webm;*.opus",
	},
	{
		DisplayName: "All files",
		Pattern:     "*",
	},
}

// apiClient is the transport surface the app depends on; implemented by
// *client.Client in production.
type apiClient interface {
	CreateRecording(ctx context.Context, blob []byte, filename string, onProgress client.ProgressFunc) (domain.Recording, error)
	SubmitTranscription(ctx context.Context, recordingID string, opts *domain.TranscribeOptions) (domain.Job, error)
	GetJob(ctx context.Context, jobID string) (domain.Job, error)
	GetTranscript(ctx context.Context, transcriptID string) (domain.Transcript, error)
	ListTranscripts(ctx context.Context, limit int) ([]domain.HistoryItem, error)
	UpdateTranscript(ctx context.Context, transcriptID string, patch domain.TranscriptPatch) (domain.Transcript, error)
	DeleteTranscript(ctx context.Context, transcriptID string) error
	DownloadArtifact(ctx context.Context, transcriptID string, format domain.ArtifactFormat) ([]byte, error)
	Health(ctx context.Context) error
}

// apiGateway delegates to the current client so a server URL change in
// settings retargets every component at once.
type apiGateway struct {
	mu  sync.Mutex
	api apiClient
}

func (g *apiGateway) set(api apiClient) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.api = api
}

func (g *apiGateway) current() apiClient {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.api
}

func (g *apiGateway) CreateRecording(ctx context.Context, blob []byte, filename string, onProgress client.ProgressFunc) (domain.Recording, error) {
	return g.current().CreateRecording(ctx, blob, filename, onProgress)
}

// Upload satisfies capture.Uploader.
func (g *apiGateway) Upload(ctx context.Context, blob []byte, filename string, onProgress func(fraction float64)) (domain.Recording, error) {
	return g.current().CreateRecording(ctx, blob, filename, onProgress)
}

func (g *apiGateway) SubmitTranscription(ctx context.Context, recordingID string, opts *domain.TranscribeOptions) (domain.Job, error) {
	return g.current().SubmitTranscription(ctx, recordingID, opts)
}

func (g *apiGateway) GetJob(ctx context.Context, jobID string) (domain.Job, error) {
	return g.current().GetJob(ctx, jobID)
}

func (g *apiGateway) GetTranscript(ctx context.Context, transcriptID string) (domain.Transcript, error) {
	return g.current().GetTranscript(ctx, transcriptID)
}

func (g *apiGateway) ListTranscripts(ctx context.Context, limit int) ([]domain.HistoryItem, error) {
	return g.current().ListTranscripts(ctx, limit)
}

func (g *apiGateway) UpdateTranscript(ctx context.Context, transcriptID string, patch domain.TranscriptPatch) (domain.Transcript, error) {
	return g.current().UpdateTranscript(ctx, transcriptID, patch)
}

func (g *apiGateway) DeleteTranscript(ctx context.Context, transcriptID string) error {
	return g.current().DeleteTranscript(ctx, transcriptID)
}

func (g *apiGateway) DownloadArtifact(ctx context.Context, transcriptID string, format domain.ArtifactFormat) ([]byte, error) {
	return g.current().DownloadArtifact(ctx, transcriptID, format)
}

func (g *apiGateway) Health(ctx context.Context) error {
	return g.current().Health(ctx)
}

// App wires configuration, the API gateway, capture, jobs, autosave,
// history, and UI runtime callbacks.
type App struct {
	Settings    domain.Settings
	Store       config.Store
	Diagnostics domain.DiagnosticReport

	log          zerolog.Logger
	api          *apiGateway
	capture      *capture.Controller
	orchestrator *jobs.Orchestrator
	autosave     *autosave.Controller
	history      *history.Scheduler
	checker      *diagnostics.Checker
	assets       fs.FS

	mu         sync.Mutex
	runtimeCtx context.Context
}

// New builds the application with persisted settings and startup diagnostics.
func New() (*App, error) {
	return NewWithAssets(nil)
}

// NewWithAssets builds the application and optionally configures embedded
// frontend assets.
func NewWithAssets(assets fs.FS) (*App, error) {
	store := config.NewJSONStore(config.DefaultPath())
	settings, err := store.Load()
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}

	log := zerolog.New(os.Stderr).With().Timestamp().Logger()
	gateway := &apiGateway{api: client.New(settings.ServerURL)}
	checker := diagnostics.NewChecker(gateway.Health)

	a := &App{
		Settings:    settings,
		Store:       store,
		Diagnostics: checker.Run(context.Background(), settings),
		log:         log,
		api:         gateway,
		checker:     checker,
		assets:      assets,
	}

	var notifier jobs.Notifier
	if settings.NotifyOnCompletion {
		notifier = jobs.NewDesktopNotifier()
	}

	a.orchestrator = jobs.NewOrchestrator(jobs.Config{
		API:          gateway,
		Notifier:     notifier,
		Log:          log,
		PollInterval: time.Duration(settings.PollIntervalMS) * time.Millisecond,
		ErrInterval:  time.Duration(settings.PollErrorIntervalMS) * time.Millisecond,
		Sink:         a.emitJobEvent,
	})

	a.autosave = autosave.NewController(autosave.Config{
		Saver:        gateway,
		Log:          log,
		OnStatus:     a.emitNotesStatus,
		QuietPeriod:  time.Duration(settings.NotesQuietPeriodMS) * time.Millisecond,
		SavedDisplay: time.Duration(settings.SavedDisplayMS) * time.Millisecond,
	})

	a.capture = capture.NewController(
		capture.NewMicSource(captureSampleRate, captureChunkFrames),
		gateway,
		clock.New(),
		captureSampleRate,
		capture.Callbacks{
			OnState:    a.emitCaptureState,
			OnLevel:    a.emitCaptureLevel,
			OnProgress: a.emitUploadProgress,
			OnError:    a.emitCaptureError,
		},
	)

	a.history = history.NewScheduler(history.Config{
		Lister:         gateway,
		Log:            log,
		JobActive:      a.orchestrator.IsActive,
		OnUpdate:       a.emitHistory,
		ActiveInterval: time.Duration(settings.HistoryActiveMS) * time.Millisecond,
		IdleInterval:   time.Duration(settings.HistoryIdleMS) * time.Millisecond,
		Limit:          historyLimit,
	})

	return a, nil
}

// Run starts the Wails desktop application and binds backend methods.
func (a *App) Run() error {
	assetOptions := &assetserver.Options{}
	if a.assets != nil {
		assetOptions.Assets = a.assets
	} else {
		assetOptions.Handler = http.FileServer(http.Dir("./frontend"))
	}

	return wails.Run(&options.App{
		Title:       "Orate Studio",
		Width:       1180,
		Height:      780,
		AssetServer: assetOptions,
		OnStartup:   a.Startup,
		OnShutdown: func(ctx context.Context) {
			a.history.Stop()
			a.capture.Close()
			a.mu.Lock()
			defer a.mu.Unlock()
			a.runtimeCtx = nil
		},
		Bind: []interface{}{a},
	})
}

// Startup stores the Wails runtime context and begins history refreshes.
func (a *App) Startup(ctx context.Context) {
	a.mu.Lock()
	a.runtimeCtx = ctx
	a.mu.Unlock()
	a.history.Start()
}

// StartRecording begins microphone capture.
func (a *App) StartRecording() error {
	return a.capture.Start()
}

// PauseRecording suspends capture; audio and elapsed time stop accruing.
func (a *App) PauseRecording() {
	a.capture.Pause()
}

// ResumeRecording continues a paused capture.
func (a *App) ResumeRecording() {
	a.capture.Resume()
}

// RecordingState returns the capture state machine's current state.
func (a *App) RecordingState() domain.CaptureState {
	return a.capture.State()
}

// RecordingDuration returns elapsed recording seconds, excluding pauses.
func (a *App) RecordingDuration() float64 {
	return a.capture.ActiveDuration().Seconds()
}

// StopAndTranscribe finalizes the capture, uploads it, and submits a
// transcription job with the configured default options.
func (a *App) StopAndTranscribe() (domain.Job, error) {
	rec, err := a.capture.Stop(context.Background())
	if err != nil {
		return domain.Job{}, err
	}
	return a.submitJob(rec.ID)
}

// PickAudioFile opens a native file dialog for audio selection.
func (a *App) PickAudioFile() (string, error) {
	ctx, err := a.runtimeContext()
	if err != nil {
		return "", err
	}

	path, err := wailsruntime.OpenFileDialog(ctx, wailsruntime.OpenDialogOptions{
		Title:   "Select audio file",
		Filters: audioDialogFilter,
	})
	if err != nil {
		return "", err
	}

	return strings.TrimSpace(path), nil
}

// UploadFile uploads an existing audio file and submits a transcription
// job for it.
func (a *App) UploadFile(path string) (domain.Job, error) {
	blob, err := os.ReadFile(path)
	if err != nil {
		return domain.Job{}, fmt.Errorf("read audio file: %w", err)
	}

	rec, err := a.api.CreateRecording(context.Background(), blob, filepath.Base(path), a.emitUploadProgress)
	if err != nil {
		return domain.Job{}, fmt.Errorf("upload audio file: %w", err)
	}
	return a.submitJob(rec.ID)
}

// submitJob hands a stored recording to the orchestrator and nudges the
// history panel.
func (a *App) submitJob(recordingID string) (domain.Job, error) {
	opts := a.currentSettings().DefaultOptions
	job, err := a.orchestrator.Submit(recordingID, &opts)
	if err != nil {
		return domain.Job{}, err
	}
	a.history.RefreshNow()
	return job, nil
}

// CancelJob stops tracking the active transcription job.
func (a *App) CancelJob() error {
	return a.orchestrator.Cancel()
}

// CurrentJob returns the most recently observed job snapshot.
func (a *App) CurrentJob() domain.Job {
	return a.orchestrator.Current()
}

// JobEvents returns all job events with sequence greater than sinceSeq.
func (a *App) JobEvents(sinceSeq int64) []jobs.Event {
	return a.orchestrator.Events(sinceSeq)
}

// OpenTranscript fetches a transcript and primes the autosave controller
// with its current notes.
func (a *App) OpenTranscript(transcriptID string) (domain.Transcript, error) {
	transcript, err := a.api.GetTranscript(context.Background(), transcriptID)
	if err != nil {
		return domain.Transcript{}, fmt.Errorf("open transcript: %w", err)
	}
	a.autosave.SetTranscript(transcript.ID, transcript.Notes)
	return transcript, nil
}

// SaveTitle persists a transcript title immediately.
func (a *App) SaveTitle(transcriptID, title string) error {
	if err := a.autosave.SaveTitle(context.Background(), transcriptID, title); err != nil {
		return err
	}
	a.history.RefreshNow()
	return nil
}

// EditNotes registers a notes edit for debounced autosave.
func (a *App) EditNotes(value string) {
	a.autosave.EditNotes(value)
}

// NotesStatus returns the current autosave status projection.
func (a *App) NotesStatus() domain.NotesStatus {
	return a.autosave.Status()
}

// History returns the latest transcript listing snapshot.
func (a *App) History() []domain.HistoryItem {
	return a.history.Items()
}

// RefreshHistory requests an immediate listing refresh.
func (a *App) RefreshHistory() {
	a.history.RefreshNow()
}

// DeleteTranscript removes a transcript on the server.
func (a *App) DeleteTranscript(transcriptID string) error {
	if err := a.api.DeleteTranscript(context.Background(), transcriptID); err != nil {
		return fmt.Errorf("delete transcript: %w", err)
	}
	a.history.RefreshNow()
	return nil
}

// DownloadArtifact fetches a transcript rendition and writes it to the
// configured download directory, returning the written path.
func (a *App) DownloadArtifact(transcriptID, format string) (string, error) {
	artifactFormat := domain.ArtifactFormat(format)
	if !lo.Contains([]domain.ArtifactFormat{domain.ArtifactText, domain.ArtifactSubtitle}, artifactFormat) {
		return "", fmt.Errorf("unsupported artifact format: %s", format)
	}

	data, err := a.api.DownloadArtifact(context.Background(), transcriptID, artifactFormat)
	if err != nil {
		return "", fmt.Errorf("download artifact: %w", err)
	}

	downloadDir := a.currentSettings().DownloadDir
	if err := os.MkdirAll(downloadDir, 0o755); err != nil {
		return "", fmt.Errorf("create download directory: %w", err)
	}

	target := filepath.Join(downloadDir, fmt.Sprintf("%s.%s", transcriptID, artifactFormat))
	if err := os.WriteFile(target, data, 0o644); err != nil {
		return "", fmt.Errorf("write artifact: %w", err)
	}
	return target, nil
}

// GetDiagnostics returns the latest cached diagnostics report.
func (a *App) GetDiagnostics() domain.DiagnosticReport {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.Diagnostics
}

// RefreshDiagnostics reruns the startup checks against current settings.
func (a *App) RefreshDiagnostics() domain.DiagnosticReport {
	report := a.checker.Run(context.Background(), a.currentSettings())
	a.mu.Lock()
	a.Diagnostics = report
	a.mu.Unlock()
	return report
}

// GetSettings loads and returns the latest persisted settings.
func (a *App) GetSettings() (domain.Settings, error) {
	settings, err := a.Store.Load()
	if err != nil {
		return domain.Settings{}, fmt.Errorf("load settings: %w", err)
	}

	a.mu.Lock()
	a.Settings = settings
	a.mu.Unlock()

	return settings, nil
}

// SaveSettings validates, normalizes, and persists settings, retargets the
// API gateway when the server URL changed, and refreshes diagnostics.
// Interval changes are read at construction and apply on next launch.
func (a *App) SaveSettings(settings domain.Settings) (domain.Settings, error) {
	settings.ServerURL = strings.TrimSpace(settings.ServerURL)
	settings.DownloadDir = strings.TrimSpace(settings.DownloadDir)
	if settings.DefaultOptions.Model != nil {
		if err := validateModelID(*settings.DefaultOptions.Model); err != nil {
			return domain.Settings{}, err
		}
	}

	normalized := config.Normalize(settings)
	if err := a.Store.Save(normalized); err != nil {
		return domain.Settings{}, fmt.Errorf("save settings: %w", err)
	}

	a.mu.Lock()
	previousURL := a.Settings.ServerURL
	a.Settings = normalized
	a.mu.Unlock()

	if normalized.ServerURL != previousURL {
		a.api.set(client.New(normalized.ServerURL))
	}

	report := a.checker.Run(context.Background(), normalized)
	a.mu.Lock()
	a.Diagnostics = report
	a.mu.Unlock()

	return normalized, nil
}

// currentSettings returns a copy of the in-memory settings.
func (a *App) currentSettings() domain.Settings {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.Settings
}

func (a *App) emitJobEvent(event jobs.Event) {
	a.emit("job:event", event)
}

func (a *App) emitNotesStatus(status domain.NotesStatus) {
	a.emit("notes:status", status)
}

func (a *App) emitCaptureState(state domain.CaptureState) {
	a.emit("capture:state", state)
}

func (a *App) emitCaptureLevel(level float64) {
	a.emit("capture:level", level)
}

func (a *App) emitUploadProgress(fraction float64) {
	a.emit("upload:progress", fraction)
}

func (a *App) emitCaptureError(err error) {
	a.log.Warn().Err(err).Msg("capture failed")
	a.emit("capture:error", err.Error())
}

func (a *App) emitHistory(items []domain.HistoryItem) {
	a.emit("history:update", items)
}

// emit pushes one named event to the frontend when the runtime is up.
func (a *App) emit(name string, payload any) {
	a.mu.Lock()
	ctx := a.runtimeCtx
	a.mu.Unlock()
	if ctx != nil {
		wailsruntime.EventsEmit(ctx, name, payload)
	}
}

// runtimeContext returns the Wails runtime context for dialog APIs.
func (a *App) runtimeContext() (context.Context, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.runtimeCtx == nil {
		return nil, fmt.Errorf("runtime context is not initialized")
	}
	return a.runtimeCtx, nil
}
