package data

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/klauspost/compress/zstd"
)

// Array names inside a chunked dataset directory.
const (
	arrScenes  = "scenes"
	arrFrames  = "frames"
	arrAgents  = "agents"
	arrTLFaces = "tl_faces"
)

// DefaultChunkSize is the number of records per chunk file.
const DefaultChunkSize = 4096

const manifestName = "manifest.json"

// manifest describes a chunked dataset on disk.
type manifest struct {
	FormatVersion int              `json:"format_version"`
	ChunkSize     int              `json:"chunk_size"`
	Counts        map[string]int64 `json:"counts"`
}

var recordSizes = map[string]int{
	arrScenes:  SceneRecordSize,
	arrFrames:  FrameRecordSize,
	arrAgents:  AgentRecordSize,
	arrTLFaces: TLFaceRecordSize,
}

// ChunkedDataset is a read-only view over a chunked dataset directory.
// Each array (scenes, frames, agents, tl_faces) is stored as fixed-size
// records packed into zstd-compressed chunk files. Access is safe for
// concurrent use; decompressed chunks are cached per array.
type ChunkedDataset struct {
	path      string
	chunkSize int
	counts    map[string]int64

	mu      sync.Mutex
	decoder *zstd.Decoder
	cache   map[string]map[int][]byte // array -> chunk index -> raw records
	// cacheOrder tracks insertion order per array for simple eviction.
	cacheOrder map[string][]int
}

// maxCachedChunks bounds decompressed chunks held per array.
const maxCachedChunks = 16

// OpenChunked opens a chunked dataset directory.
func OpenChunked(path string) (*ChunkedDataset, error) {
	raw, err := os.ReadFile(filepath.Join(path, manifestName))
	if err != nil {
		return nil, fmt.Errorf("open chunked dataset %s: %w", path, err)
	}
	var m manifest
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("parse manifest in %s: %w", path, err)
	}
	if m.FormatVersion != 1 {
		return nil, fmt.Errorf("unsupported dataset format version %d", m.FormatVersion)
	}
	if m.ChunkSize <= 0 {
		return nil, fmt.Errorf("invalid chunk size %d", m.ChunkSize)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("create zstd reader: %w", err)
	}
	return &ChunkedDataset{
		path:       path,
		chunkSize:  m.ChunkSize,
		counts:     m.Counts,
		decoder:    dec,
		cache:      make(map[string]map[int][]byte),
		cacheOrder: make(map[string][]int),
	}, nil
}

// Close releases decompression resources.
func (d *ChunkedDataset) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.decoder != nil {
		d.decoder.Close()
		d.decoder = nil
	}
}

// NumScenes returns the number of scene records.
func (d *ChunkedDataset) NumScenes() int64 { return d.counts[arrScenes] }

// NumFrames returns the number of frame records.
func (d *ChunkedDataset) NumFrames() int64 { return d.counts[arrFrames] }

// NumAgents returns the number of agent records.
func (d *ChunkedDataset) NumAgents() int64 { return d.counts[arrAgents] }

// NumTLFaces returns the number of traffic-light-face records.
func (d *ChunkedDataset) NumTLFaces() int64 { return d.counts[arrTLFaces] }

func chunkFileName(idx int) string { return fmt.Sprintf("chunk-%06d.zst", idx) }

// record fetches one raw record from the named array.
func (d *ChunkedDataset) record(array string, index int64) ([]byte, error) {
	if index < 0 || index >= d.counts[array] {
		return nil, fmt.Errorf("%s index %d out of range [0,%d)", array, index, d.counts[array])
	}
	recSize := recordSizes[array]
	chunkIdx := int(index) / d.chunkSize
	offset := (int(index) % d.chunkSize) * recSize

	chunk, err := d.loadChunk(array, chunkIdx)
	if err != nil {
		return nil, err
	}
	if offset+recSize > len(chunk) {
		return nil, fmt.Errorf("%s chunk %d truncated: need %d bytes, have %d",
			array, chunkIdx, offset+recSize, len(chunk))
	}
	return chunk[offset : offset+recSize], nil
}

func (d *ChunkedDataset) loadChunk(array string, chunkIdx int) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.decoder == nil {
		return nil, fmt.Errorf("dataset %s is closed", d.path)
	}
	if byIdx, ok := d.cache[array]; ok {
		if chunk, ok := byIdx[chunkIdx]; ok {
			return chunk, nil
		}
	}

	raw, err := os.ReadFile(filepath.Join(d.path, array, chunkFileName(chunkIdx)))
	if err != nil {
		return nil, fmt.Errorf("read %s chunk %d: %w", array, chunkIdx, err)
	}
	chunk, err := d.decoder.DecodeAll(raw, nil)
	if err != nil {
		return nil, fmt.Errorf("decompress %s chunk %d: %w", array, chunkIdx, err)
	}

	if d.cache[array] == nil {
		d.cache[array] = make(map[int][]byte)
	}
	if len(d.cacheOrder[array]) >= maxCachedChunks {
		oldest := d.cacheOrder[array][0]
		d.cacheOrder[array] = d.cacheOrder[array][1:]
		delete(d.cache[array], oldest)
	}
	d.cache[array][chunkIdx] = chunk
	d.cacheOrder[array] = append(d.cacheOrder[array], chunkIdx)
	return chunk, nil
}

// Scene returns scene record i.
func (d *ChunkedDataset) Scene(i int64) (Scene, error) {
	b, err := d.record(arrScenes, i)
	if err != nil {
		return Scene{}, err
	}
	return DecodeScene(b)
}

// Frame returns frame record i.
func (d *ChunkedDataset) Frame(i int64) (Frame, error) {
	b, err := d.record(arrFrames, i)
	if err != nil {
		return Frame{}, err
	}
	return DecodeFrame(b)
}

// Agent returns agent record i.
func (d *ChunkedDataset) Agent(i int64) (Agent, error) {
	b, err := d.record(arrAgents, i)
	if err != nil {
		return Agent{}, err
	}
	return DecodeAgent(b)
}

// TLFace returns traffic-light-face record i.
func (d *ChunkedDataset) TLFace(i int64) (TLFace, error) {
	b, err := d.record(arrTLFaces, i)
	if err != nil {
		return TLFace{}, err
	}
	return DecodeTLFace(b)
}

// Frames returns frames in [lo, hi).
func (d *ChunkedDataset) Frames(lo, hi int64) ([]Frame, error) {
	if lo > hi {
		return nil, fmt.Errorf("invalid frame interval [%d,%d)", lo, hi)
	}
	out := make([]Frame, 0, hi-lo)
	for i := lo; i < hi; i++ {
		f, err := d.Frame(i)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, nil
}

// Agents returns agents in [lo, hi).
func (d *ChunkedDataset) Agents(lo, hi int64) ([]Agent, error) {
	if lo > hi {
		return nil, fmt.Errorf("invalid agent interval [%d,%d)", lo, hi)
	}
	out := make([]Agent, 0, hi-lo)
	for i := lo; i < hi; i++ {
		a, err := d.Agent(i)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

// TLFaces returns traffic-light faces in [lo, hi).
func (d *ChunkedDataset) TLFaces(lo, hi int64) ([]TLFace, error) {
	if lo > hi {
		return nil, fmt.Errorf("invalid tl face interval [%d,%d)", lo, hi)
	}
	out := make([]TLFace, 0, hi-lo)
	for i := lo; i < hi; i++ {
		f, err := d.TLFace(i)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, nil
}

// FrameAgents returns the agents referenced by a frame's agent interval.
func (d *ChunkedDataset) FrameAgents(f Frame) ([]Agent, error) {
	return d.Agents(f.AgentInterval[0], f.AgentInterval[1])
}

// SceneFrames returns the frames referenced by a scene's frame interval.
func (d *ChunkedDataset) SceneFrames(s Scene) ([]Frame, error) {
	return d.Frames(s.FrameInterval[0], s.FrameInterval[1])
}
