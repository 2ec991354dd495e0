package domain

// CaptureState is one step of the recording state machine.
type CaptureState string

const (
	CaptureStateIdle      CaptureState = "idle"
	CaptureStateRecording CaptureState = "recording"
	CaptureStatePaused    CaptureState = "paused"
	CaptureStateStopping  CaptureState = "stopping"
	CaptureStateUploading CaptureState = "uploading"
	CaptureStateError     CaptureState = "error"
)

// SaveState is the visible status of the notes autosave controller.
type SaveState string

const (
	SaveStateIdle   SaveState = "idle"
	SaveStateSaving SaveState = "saving"
	SaveStateSaved  SaveState = "saved"
	SaveStateError  SaveState = "error"
)

// NotesStatus is the save-status projection pushed to the UI.
type NotesStatus struct {
	TranscriptID string    `json:"transcriptId"`
	State        SaveState `json:"state"`
	Error        string    `json:"error,omitempty"`
}
