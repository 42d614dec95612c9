package scenario

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/avstack-dev/drivekit/internal/data"
	"github.com/avstack-dev/drivekit/internal/datagen"
	"github.com/google/go-cmp/cmp"
	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openDataset(t *testing.T, agentsPerScene int) *data.ChunkedDataset {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "scn.chunked")
	p := datagen.DefaultParams()
	p.NumScenes = 3
	p.FramesPerScene = 20
	p.AgentsPerScene = agentsPerScene
	require.NoError(t, datagen.Generate(dir, p))
	ds, err := data.OpenChunked(dir)
	require.NoError(t, err)
	t.Cleanup(ds.Close)
	return ds
}

func TestExtractQualifyingScene(t *testing.T) {
	ds := openDataset(t, 4)
	p := DefaultParams()
	p.MaxAgentDistance = 100 // synthetic agents spread up to ~30m out

	s, ok, err := Extract(ds, 0, p)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 0, s.SceneIndex)
	assert.Equal(t, 18, s.NumFrames()) // 20 frames, start at 2
	assert.Len(t, s.Agents, 4)
	for _, a := range s.Agents {
		assert.Len(t, a.Poses, s.NumFrames())
		for i, av := range a.Avail {
			assert.True(t, av, "frame %d", i)
		}
	}
}

func TestExtractAgentCountBounds(t *testing.T) {
	ds := openDataset(t, 1)
	p := DefaultParams()
	p.MaxAgentDistance = 100

	// one agent is below MinAgents
	_, ok, err := Extract(ds, 0, p)
	require.NoError(t, err)
	assert.False(t, ok)

	many := openDataset(t, 12)
	// twelve agents exceed MaxAgents
	_, ok, err = Extract(many, 0, p)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestExtractFrameWindow(t *testing.T) {
	ds := openDataset(t, 3)
	p := DefaultParams()
	p.MaxAgentDistance = 100
	p.NumFrames = 5

	s, ok, err := Extract(ds, 1, p)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 5, s.NumFrames())

	// start frame beyond the scene never qualifies
	p.StartFrame = 100
	_, ok, err = Extract(ds, 1, p)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestExtractAll(t *testing.T) {
	ds := openDataset(t, 3)
	p := DefaultParams()
	p.MaxAgentDistance = 100

	scns, err := ExtractAll(ds, p)
	require.NoError(t, err)
	assert.Len(t, scns, 3)
}

func TestWriteReadRoundTrip(t *testing.T) {
	ds := openDataset(t, 3)
	p := DefaultParams()
	p.MaxAgentDistance = 100
	scns, err := ExtractAll(ds, p)
	require.NoError(t, err)
	require.NotEmpty(t, scns)

	path := filepath.Join(t.TempDir(), "scenarios.bin.zst")
	require.NoError(t, Write(path, scns))

	got, err := Read(path)
	require.NoError(t, err)
	require.Len(t, got, len(scns))
	if diff := cmp.Diff(scns, got); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestReadRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.bin.zst")
	require.NoError(t, Write(path, nil))

	got, err := Read(path)
	require.NoError(t, err)
	assert.Empty(t, got)

	_, err = Read(filepath.Join(t.TempDir(), "missing.bin.zst"))
	assert.Error(t, err)
}

func TestReadRejectsCorruptSizes(t *testing.T) {
	enc, err := zstd.NewWriter(nil)
	require.NoError(t, err)
	defer enc.Close()

	writePack := func(name string, buf []byte) string {
		path := filepath.Join(t.TempDir(), name)
		require.NoError(t, os.WriteFile(path, enc.EncodeAll(buf, nil), 0644))
		return path
	}

	// scenario count far beyond the pack size
	buf := append([]byte(nil), blobMagic...)
	buf = binary.LittleEndian.AppendUint32(buf, 1<<31-1)
	_, err = Read(writePack("count.bin.zst", buf))
	assert.ErrorContains(t, err, "implausible scenario count")

	// one scenario claiming more frames than the pack holds
	buf = append([]byte(nil), blobMagic...)
	buf = binary.LittleEndian.AppendUint32(buf, 1)     // count
	buf = binary.LittleEndian.AppendUint32(buf, 0)     // scene index
	buf = binary.LittleEndian.AppendUint64(buf, 0)     // timestamp
	buf = binary.LittleEndian.AppendUint32(buf, 1<<30) // frames
	buf = binary.LittleEndian.AppendUint32(buf, 0)     // agents
	_, err = Read(writePack("frames.bin.zst", buf))
	assert.ErrorContains(t, err, "beyond pack size")
}

func TestWriteInfo(t *testing.T) {
	ds := openDataset(t, 3)
	p := DefaultParams()
	p.MaxAgentDistance = 100
	scns, err := ExtractAll(ds, p)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "scenarios.json")
	require.NoError(t, WriteInfo(path, scns))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "scene_index")
	assert.Contains(t, string(raw), "track_ids")
}
