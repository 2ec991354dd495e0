package capture

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gordonklaus/portaudio"
)

// ErrPermissionDenied is returned when the platform refuses microphone access.
var ErrPermissionDenied = errors.New("microphone permission denied")

// ErrDeviceUnavailable is returned when no usable audio input device exists.
var ErrDeviceUnavailable = errors.New("audio input device unavailable")

// ErrNotRecording is returned when stop or pause is requested while idle.
var ErrNotRecording = errors.New("no recording in progress")

// ErrAlreadyRecording is returned when start is requested mid-session.
var ErrAlreadyRecording = errors.New("recording already in progress")

// Source delivers fixed-size PCM chunks from an audio input device.
// Start acquires the device; Stop must release every acquired resource.
type Source interface {
	Start() error
	ReadChunk() ([]int16, error)
	Stop() error
}

// MicSource captures mono 16-bit PCM from the default input device.
type MicSource struct {
	sampleRate  int
	chunkFrames int
	stream      *portaudio.Stream
	buf         []int16
}

// NewMicSource creates a microphone source reading chunkFrames per chunk.
func NewMicSource(sampleRate, chunkFrames int) *MicSource {
	return &MicSource{
		sampleRate:  sampleRate,
		chunkFrames: chunkFrames,
	}
}

// Start initializes the audio host and opens the default input stream.
func (s *MicSource) Start() error {
	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}

	s.buf = make([]int16, s.chunkFrames)
	stream, err := portaudio.OpenDefaultStream(1, 0, float64(s.sampleRate), s.chunkFrames, s.buf)
	if err != nil {
		_ = portaudio.Terminate()
		return classifyDeviceError(err)
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		_ = portaudio.Terminate()
		return classifyDeviceError(err)
	}

	s.stream = stream
	return nil
}

// ReadChunk blocks until one chunk of samples is available.
func (s *MicSource) ReadChunk() ([]int16, error) {
	if s.stream == nil {
		return nil, ErrDeviceUnavailable
	}
	if err := s.stream.Read(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}

	out := make([]int16, len(s.buf))
	copy(out, s.buf)
	return out, nil
}

// Stop closes the stream and releases the audio host.
func (s *MicSource) Stop() error {
	if s.stream == nil {
		return nil
	}

	stopErr := s.stream.Stop()
	closeErr := s.stream.Close()
	termErr := portaudio.Terminate()
	s.stream = nil

	if stopErr != nil {
		return fmt.Errorf("stop input stream: %w", stopErr)
	}
	if closeErr != nil {
		return fmt.Errorf("close input stream: %w", closeErr)
	}
	if termErr != nil {
		return fmt.Errorf("terminate audio host: %w", termErr)
	}
	return nil
}

// classifyDeviceError maps host errors onto the capture error taxonomy.
func classifyDeviceError(err error) error {
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "permission") || strings.Contains(msg, "access denied") {
		return fmt.Errorf("%w: %v", ErrPermissionDenied, err)
	}
	return fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
}
