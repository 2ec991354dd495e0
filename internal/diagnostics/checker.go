package diagnostics

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/gordonklaus/portaudio"

	"orate-studio/internal/domain"
)

// HealthFunc probes the transcription server.
type HealthFunc func(ctx context.Context) error

// Checker validates the server connection, the audio input device, and the
// download directory at startup.
type Checker struct {
	health     HealthFunc
	audioProbe func() error
	mkdirAll   func(string, os.FileMode) error
	createTemp func(string, string) (*os.File, error)
	remove     func(string) error
}

// NewChecker builds a checker using real OS and audio dependencies.
func NewChecker(health HealthFunc) *Checker {
	return &Checker{
		health:     health,
		audioProbe: probeDefaultInput,
		mkdirAll:   os.MkdirAll,
		createTemp: os.CreateTemp,
		remove:     os.Remove,
	}
}

// NewCheckerForTests creates a checker with injectable dependencies.
func NewCheckerForTests(
	health HealthFunc,
	audioProbe func() error,
	mkdirAll func(string, os.FileMode) error,
	createTemp func(string, string) (*os.File, error),
	remove func(string) error,
) *Checker {
	return &Checker{
		health:     health,
		audioProbe: audioProbe,
		mkdirAll:   mkdirAll,
		createTemp: createTemp,
		remove:     remove,
	}
}

// Run executes all startup checks and returns a combined report.
func (c *Checker) Run(ctx context.Context, settings domain.Settings) domain.DiagnosticReport {
	items := []domain.DiagnosticItem{
		c.checkServer(ctx, settings.ServerURL),
		c.checkAudioInput(),
		c.checkDownloadDir(settings.DownloadDir),
	}

	hasFailures := false
	for _, item := range items {
		if item.Status == domain.DiagnosticStatusFail {
			hasFailures = true
			break
		}
	}

	return domain.DiagnosticReport{
		GeneratedAt: time.Now().UTC(),
		HasFailures: hasFailures,
		Items:       items,
	}
}

// checkServer verifies the configured server answers its health endpoint.
func (c *Checker) checkServer(ctx context.Context, serverURL string) domain.DiagnosticItem {
	item := domain.DiagnosticItem{
		ID:   "server",
		Name: "Transcription server",
	}

	if strings.TrimSpace(serverURL) == "" {
		item.Status = domain.DiagnosticStatusFail
		item.Message = "Server URL is empty."
		item.Hint = "Set the Orate server address in settings."
		return item
	}

	probeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := c.health(probeCtx); err != nil {
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("Server unreachable at %s: %v", serverURL, err)
		item.Hint = "Check that the Orate server is running and the address is correct."
		return item
	}

	item.Status = domain.DiagnosticStatusPass
	item.Message = fmt.Sprintf("Server is healthy at %s", serverURL)
	return item
}

// checkAudioInput verifies a default capture device is available.
func (c *Checker) checkAudioInput() domain.DiagnosticItem {
	item := domain.DiagnosticItem{
		ID:   "audio_input",
		Name: "Audio input device",
	}

	if err := c.audioProbe(); err != nil {
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("No usable input device: %v", err)
		item.Hint = "Connect a microphone and grant microphone access to the app."
		return item
	}

	item.Status = domain.DiagnosticStatusPass
	item.Message = "Default input device is available."
	return item
}

// checkDownloadDir validates download directory existence and write access.
func (c *Checker) checkDownloadDir(downloadDir string) domain.DiagnosticItem {
	item := domain.DiagnosticItem{
		ID:   "download_dir",
		Name: "Download directory",
	}

	if strings.TrimSpace(downloadDir) == "" {
		item.Status = domain.DiagnosticStatusFail
		item.Message = "Download directory is empty."
		item.Hint = "Set a directory where transcript files can be written."
		return item
	}

	if err := c.mkdirAll(downloadDir, 0o755); err != nil {
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("Cannot create download directory: %s", downloadDir)
		item.Hint = "Choose a writable location or adjust filesystem permissions."
		return item
	}

	tmpFile, err := c.createTemp(downloadDir, ".write-check-*")
	if err != nil {
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("Download directory is not writable: %s", downloadDir)
		item.Hint = "Choose a writable directory for transcript export."
		return item
	}

	tmpPath := tmpFile.Name()
	_ = tmpFile.Close()
	_ = c.remove(tmpPath)

	item.Status = domain.DiagnosticStatusPass
	item.Message = fmt.Sprintf("Writable directory: %s", downloadDir)
	return item
}

// probeDefaultInput asks PortAudio for the default capture device.
func probeDefaultInput() error {
	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("initialize audio: %w", err)
	}
	defer func() { _ = portaudio.Terminate() }()

	device, err := portaudio.DefaultInputDevice()
	if err != nil {
		return fmt.Errorf("default input device: %w", err)
	}
	if device.MaxInputChannels < 1 {
		return errors.New("default device has no input channels")
	}
	return nil
}
