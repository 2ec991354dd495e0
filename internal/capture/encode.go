package capture

import (
	"errors"
	"fmt"
	"io"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// encodeWAV finalizes captured PCM chunks into a single mono 16-bit WAV blob.
func encodeWAV(chunks [][]int16, sampleRate int) ([]byte, error) {
	total := 0
	for _, chunk := range chunks {
		total += len(chunk)
	}
	if total == 0 {
		return nil, errors.New("no audio captured")
	}

	data := make([]int, 0, total)
	for _, chunk := range chunks {
		for _, s := range chunk {
			data = append(data, int(s))
		}
	}

	ws := &memWriteSeeker{}
	enc := wav.NewEncoder(ws, sampleRate, 16, 1, 1)
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: sampleRate},
		Data:           data,
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		return nil, fmt.Errorf("encode wav samples: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("finalize wav header: %w", err)
	}

	return ws.buf, nil
}

// memWriteSeeker is an in-memory io.WriteSeeker for the wav encoder, which
// seeks back to patch the header on close.
type memWriteSeeker struct {
	buf []byte
	pos int
}

// Write writes at the current position, growing the buffer as needed.
func (w *memWriteSeeker) Write(p []byte) (int, error) {
	if need := w.pos + len(p); need > len(w.buf) {
		grown := make([]byte, need)
		copy(grown, w.buf)
		w.buf = grown
	}
	copy(w.buf[w.pos:], p)
	w.pos += len(p)
	return len(p), nil
}

// Seek repositions the write cursor.
func (w *memWriteSeeker) Seek(offset int64, whence int) (int64, error) {
	var next int
	switch whence {
	case io.SeekStart:
		next = int(offset)
	case io.SeekCurrent:
		next = w.pos + int(offset)
	case io.SeekEnd:
		next = len(w.buf) + int(offset)
	default:
		return 0, fmt.Errorf("unsupported whence: %d", whence)
	}
	if next < 0 {
		return 0, errors.New("seek before start of buffer")
	}
	w.pos = next
	return int64(next), nil
}
