package data

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
)

// Writer builds a chunked dataset directory record by record. Records buffer
// in memory until a full chunk is ready, then compress to disk. Close flushes
// partial chunks and writes the manifest; a dataset is not readable until
// Close succeeds.
type Writer struct {
	path      string
	chunkSize int
	encoder   *zstd.Encoder

	buf       map[string][]byte
	nextChunk map[string]int
	counts    map[string]int64
	closed    bool
}

// NewWriter creates a dataset directory at path. chunkSize <= 0 selects
// DefaultChunkSize.
func NewWriter(path string, chunkSize int) (*Writer, error) {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	for _, array := range []string{arrScenes, arrFrames, arrAgents, arrTLFaces} {
		if err := os.MkdirAll(filepath.Join(path, array), 0755); err != nil {
			return nil, fmt.Errorf("create dataset dir: %w", err)
		}
	}
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, fmt.Errorf("create zstd writer: %w", err)
	}
	return &Writer{
		path:      path,
		chunkSize: chunkSize,
		encoder:   enc,
		buf:       make(map[string][]byte),
		nextChunk: make(map[string]int),
		counts:    make(map[string]int64),
	}, nil
}

func (w *Writer) append(array string, rec []byte) error {
	if w.closed {
		return fmt.Errorf("writer for %s is closed", w.path)
	}
	w.buf[array] = append(w.buf[array], rec...)
	w.counts[array]++
	if int(w.counts[array])%w.chunkSize == 0 {
		return w.flushChunk(array)
	}
	return nil
}

func (w *Writer) flushChunk(array string) error {
	if len(w.buf[array]) == 0 {
		return nil
	}
	compressed := w.encoder.EncodeAll(w.buf[array], nil)
	name := filepath.Join(w.path, array, chunkFileName(w.nextChunk[array]))
	if err := os.WriteFile(name, compressed, 0644); err != nil {
		return fmt.Errorf("write %s chunk %d: %w", array, w.nextChunk[array], err)
	}
	w.nextChunk[array]++
	w.buf[array] = w.buf[array][:0]
	return nil
}

// AppendScene appends one scene record.
func (w *Writer) AppendScene(s Scene) error {
	if len(s.Host) > hostFieldSize {
		return fmt.Errorf("host %q exceeds %d bytes", s.Host, hostFieldSize)
	}
	return w.append(arrScenes, EncodeScene(nil, s))
}

// AppendFrame appends one frame record.
func (w *Writer) AppendFrame(f Frame) error {
	return w.append(arrFrames, EncodeFrame(nil, f))
}

// AppendAgent appends one agent record.
func (w *Writer) AppendAgent(a Agent) error {
	return w.append(arrAgents, EncodeAgent(nil, a))
}

// AppendTLFace appends one traffic-light-face record.
func (w *Writer) AppendTLFace(f TLFace) error {
	return w.append(arrTLFaces, EncodeTLFace(nil, f))
}

// Counts returns the number of records appended so far per array.
func (w *Writer) Counts() (scenes, frames, agents, tlFaces int64) {
	return w.counts[arrScenes], w.counts[arrFrames], w.counts[arrAgents], w.counts[arrTLFaces]
}

// Close flushes partial chunks and writes the manifest.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	for _, array := range []string{arrScenes, arrFrames, arrAgents, arrTLFaces} {
		if err := w.flushChunk(array); err != nil {
			return err
		}
	}
	m := manifest{
		FormatVersion: 1,
		ChunkSize:     w.chunkSize,
		Counts: map[string]int64{
			arrScenes:  w.counts[arrScenes],
			arrFrames:  w.counts[arrFrames],
			arrAgents:  w.counts[arrAgents],
			arrTLFaces: w.counts[arrTLFaces],
		},
	}
	raw, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}
	if err := os.WriteFile(filepath.Join(w.path, manifestName), raw, 0644); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	w.encoder.Close()
	w.closed = true
	return nil
}
