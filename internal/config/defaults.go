package config

import (
	"os"
	"path/filepath"

	"orate-studio/internal/domain"
)

// DefaultSettings returns baseline local configuration for first launch.
func DefaultSettings() domain.Settings {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = "."
	}

	return domain.Settings{
		ServerURL:           "http://127.0.0.1:8000",
		PollIntervalMS:      1200,
		PollErrorIntervalMS: 1800,
		NotesQuietPeriodMS:  600,
		SavedDisplayMS:      2000,
		HistoryActiveMS:     3000,
		HistoryIdleMS:       15000,
		DownloadDir:         filepath.Join(homeDir, "Documents", "Transcripts"),
		NotifyOnCompletion:  true,
	}
}

// Normalize fills empty or out-of-range fields from defaults so a partial
// or hand-edited settings file never produces zero intervals.
func Normalize(cfg domain.Settings) domain.Settings {
	defaults := DefaultSettings()

	if cfg.ServerURL == "" {
		cfg.ServerURL = defaults.ServerURL
	}
	if cfg.PollIntervalMS <= 0 {
		cfg.PollIntervalMS = defaults.PollIntervalMS
	}
	if cfg.PollErrorIntervalMS <= 0 {
		cfg.PollErrorIntervalMS = defaults.PollErrorIntervalMS
	}
	if cfg.NotesQuietPeriodMS <= 0 {
		cfg.NotesQuietPeriodMS = defaults.NotesQuietPeriodMS
	}
	if cfg.SavedDisplayMS <= 0 {
		cfg.SavedDisplayMS = defaults.SavedDisplayMS
	}
	if cfg.HistoryActiveMS <= 0 {
		cfg.HistoryActiveMS = defaults.HistoryActiveMS
	}
	if cfg.HistoryIdleMS <= 0 {
		cfg.HistoryIdleMS = defaults.HistoryIdleMS
	}
	if cfg.DownloadDir == "" {
		cfg.DownloadDir = defaults.DownloadDir
	}
	return cfg
}

// DefaultPath returns the settings file location under the user's home.
func DefaultPath() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = "."
	}
	return filepath.Join(homeDir, ".orate-studio", "settings.json")
}
