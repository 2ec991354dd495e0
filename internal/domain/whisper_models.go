package domain

// WhisperModelOption describes one server-side whisper model preset.
type WhisperModelOption struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	SizeLabel    string `json:"sizeLabel,omitempty"`
	Description  string `json:"description,omitempty"`
	Multilingual bool   `json:"multilingual"`
}
