// Package scenario extracts interaction scenarios from recorded scenes and
// packs them into a compact compressed interchange format.
package scenario

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os"

	"github.com/klauspost/compress/zstd"

	"github.com/avstack-dev/drivekit/internal/data"
	"github.com/avstack-dev/drivekit/internal/geometry"
	"github.com/avstack-dev/drivekit/internal/scene"
)

// Params filters which scenes qualify as scenarios.
type Params struct {
	// Agent count bounds at the start frame, after distance and extent
	// filtering.
	MinAgents int
	MaxAgents int
	// MaxAgentDistance drops agents further than this from the ego, meters.
	MaxAgentDistance float64
	// Extent floors drop debris and partial detections.
	MinAgentLength float64
	MinAgentWidth  float64
	// StartFrame is the frame within each scene where the scenario begins.
	StartFrame int
	// NumFrames caps the trajectory length; 0 runs to the scene end.
	NumFrames int
	// FilterAgentsThreshold is the minimum class probability.
	FilterAgentsThreshold float64
}

// DefaultParams mirrors the extraction settings used for the packaged
// scenario sets.
func DefaultParams() Params {
	return Params{
		MinAgents:             2,
		MaxAgents:             8,
		MaxAgentDistance:      30,
		MinAgentLength:        3,
		MinAgentWidth:         1,
		StartFrame:            2,
		NumFrames:             0,
		FilterAgentsThreshold: 0.5,
	}
}

// AgentTrack is one agent trajectory within a scenario. Avail marks frames
// where the track was observed.
type AgentTrack struct {
	TrackID int64
	Length  float64
	Width   float64
	Poses   []geometry.Pose
	Avail   []bool
}

// Scenario is one extracted interaction: the ego trajectory plus the
// qualifying agent tracks over the same frames.
type Scenario struct {
	SceneIndex       int
	StartTimestampNs int64
	Ego              []geometry.Pose
	Agents           []AgentTrack
}

// NumFrames returns the trajectory length.
func (s *Scenario) NumFrames() int { return len(s.Ego) }

// Extract builds the scenario for one scene. The second return is false when
// the scene does not qualify under the params.
func Extract(ds *data.ChunkedDataset, sceneIdx int, p Params) (*Scenario, bool, error) {
	rec, err := ds.Scene(int64(sceneIdx))
	if err != nil {
		return nil, false, err
	}
	frames, err := ds.SceneFrames(rec)
	if err != nil {
		return nil, false, err
	}
	if p.StartFrame >= len(frames)-1 {
		return nil, false, nil
	}
	end := len(frames)
	if p.NumFrames > 0 && p.StartFrame+p.NumFrames < end {
		end = p.StartFrame + p.NumFrames
	}

	snaps := make([]scene.Snapshot, 0, end-p.StartFrame)
	for i := p.StartFrame; i < end; i++ {
		agents, err := ds.FrameAgents(frames[i])
		if err != nil {
			return nil, false, err
		}
		snaps = append(snaps, scene.FromFrame(frames[i], agents, p.FilterAgentsThreshold))
	}

	// qualifying tracks at the start frame
	start := snaps[0]
	var tracks []scene.AgentState
	for _, a := range start.Agents {
		if a.Length < p.MinAgentLength || a.Width < p.MinAgentWidth {
			continue
		}
		if math.Hypot(a.CX-start.Ego.X, a.CY-start.Ego.Y) > p.MaxAgentDistance {
			continue
		}
		tracks = append(tracks, a)
	}
	if len(tracks) < p.MinAgents || len(tracks) > p.MaxAgents {
		return nil, false, nil
	}

	out := &Scenario{
		SceneIndex:       sceneIdx,
		StartTimestampNs: start.TimestampNs,
	}
	for _, snap := range snaps {
		out.Ego = append(out.Ego, snap.Ego)
	}
	for _, tr := range tracks {
		track := AgentTrack{
			TrackID: tr.TrackID,
			Length:  tr.Length,
			Width:   tr.Width,
			Poses:   make([]geometry.Pose, len(snaps)),
			Avail:   make([]bool, len(snaps)),
		}
		for i, snap := range snaps {
			if st, ok := snap.FindAgent(tr.TrackID); ok {
				track.Poses[i] = geometry.Pose{X: st.CX, Y: st.CY, Yaw: st.Yaw}
				track.Avail[i] = true
			}
		}
		out.Agents = append(out.Agents, track)
	}
	return out, true, nil
}

// ExtractAll runs Extract over every scene and keeps the qualifying ones.
func ExtractAll(ds *data.ChunkedDataset, p Params) ([]*Scenario, error) {
	var out []*Scenario
	for i := 0; i < int(ds.NumScenes()); i++ {
		s, ok, err := Extract(ds, i, p)
		if err != nil {
			return nil, fmt.Errorf("scene %d: %w", i, err)
		}
		if ok {
			out = append(out, s)
		}
	}
	return out, nil
}

// blobMagic identifies scenario pack files.
var blobMagic = []byte("DKSCNE01")

// fixed record sizes in the pack layout
const (
	poseSize           = 3 * 8
	scenarioHeaderSize = 4 + 8 + 4 + 4
	agentHeaderSize    = 8 + 8 + 8
)

// Write packs scenarios into a zstd-compressed binary blob.
func Write(path string, scns []*Scenario) error {
	buf := append([]byte(nil), blobMagic...)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(scns)))
	for _, s := range scns {
		buf = binary.LittleEndian.AppendUint32(buf, uint32(s.SceneIndex))
		buf = binary.LittleEndian.AppendUint64(buf, uint64(s.StartTimestampNs))
		buf = binary.LittleEndian.AppendUint32(buf, uint32(len(s.Ego)))
		buf = binary.LittleEndian.AppendUint32(buf, uint32(len(s.Agents)))
		for _, p := range s.Ego {
			buf = appendPose(buf, p)
		}
		for _, a := range s.Agents {
			buf = binary.LittleEndian.AppendUint64(buf, uint64(a.TrackID))
			buf = binary.LittleEndian.AppendUint64(buf, math.Float64bits(a.Length))
			buf = binary.LittleEndian.AppendUint64(buf, math.Float64bits(a.Width))
			for i, p := range a.Poses {
				buf = appendPose(buf, p)
				if a.Avail[i] {
					buf = append(buf, 1)
				} else {
					buf = append(buf, 0)
				}
			}
		}
	}

	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return fmt.Errorf("create zstd writer: %w", err)
	}
	defer enc.Close()
	if err := os.WriteFile(path, enc.EncodeAll(buf, nil), 0644); err != nil {
		return fmt.Errorf("write scenario pack: %w", err)
	}
	return nil
}

// Read unpacks a scenario blob written by Write.
func Read(path string) ([]*Scenario, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario pack: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("create zstd reader: %w", err)
	}
	defer dec.Close()
	buf, err := dec.DecodeAll(raw, nil)
	if err != nil {
		return nil, fmt.Errorf("decompress scenario pack: %w", err)
	}

	r := reader{buf: buf}
	if !r.expect(blobMagic) {
		return nil, fmt.Errorf("scenario pack %s: bad magic", path)
	}
	count := int(r.uint32())
	if count > r.remaining()/scenarioHeaderSize {
		return nil, fmt.Errorf("scenario pack %s: implausible scenario count %d", path, count)
	}
	out := make([]*Scenario, 0, count)
	for i := 0; i < count; i++ {
		s := &Scenario{}
		s.SceneIndex = int(r.uint32())
		s.StartTimestampNs = int64(r.uint64())
		frames := int(r.uint32())
		agents := int(r.uint32())
		// size fields must be backed by bytes before anything is allocated
		need := int64(frames)*poseSize + int64(agents)*(agentHeaderSize+int64(frames)*(poseSize+1))
		if need > int64(r.remaining()) {
			return nil, fmt.Errorf("scenario pack %s: scenario %d claims %d frames, %d agents beyond pack size", path, i, frames, agents)
		}
		s.Ego = make([]geometry.Pose, frames)
		for f := range s.Ego {
			s.Ego[f] = r.pose()
		}
		s.Agents = make([]AgentTrack, agents)
		for a := range s.Agents {
			tr := AgentTrack{
				TrackID: int64(r.uint64()),
				Length:  r.float64(),
				Width:   r.float64(),
				Poses:   make([]geometry.Pose, frames),
				Avail:   make([]bool, frames),
			}
			for f := 0; f < frames; f++ {
				tr.Poses[f] = r.pose()
				tr.Avail[f] = r.byte() == 1
			}
			s.Agents[a] = tr
		}
		out = append(out, s)
	}
	if r.err != nil {
		return nil, fmt.Errorf("scenario pack %s: %w", path, r.err)
	}
	return out, nil
}

// Info is the JSON sidecar describing one packed scenario.
type Info struct {
	SceneIndex       int     `json:"scene_index"`
	StartTimestampNs int64   `json:"start_timestamp_ns"`
	NumFrames        int     `json:"num_frames"`
	NumAgents        int     `json:"num_agents"`
	TrackIDs         []int64 `json:"track_ids"`
}

// WriteInfo writes the JSON sidecar for a scenario pack.
func WriteInfo(path string, scns []*Scenario) error {
	infos := make([]Info, len(scns))
	for i, s := range scns {
		info := Info{
			SceneIndex:       s.SceneIndex,
			StartTimestampNs: s.StartTimestampNs,
			NumFrames:        s.NumFrames(),
			NumAgents:        len(s.Agents),
		}
		for _, a := range s.Agents {
			info.TrackIDs = append(info.TrackIDs, a.TrackID)
		}
		infos[i] = info
	}
	raw, err := json.MarshalIndent(infos, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal scenario info: %w", err)
	}
	if err := os.WriteFile(path, raw, 0644); err != nil {
		return fmt.Errorf("write scenario info: %w", err)
	}
	return nil
}

func appendPose(buf []byte, p geometry.Pose) []byte {
	buf = binary.LittleEndian.AppendUint64(buf, math.Float64bits(p.X))
	buf = binary.LittleEndian.AppendUint64(buf, math.Float64bits(p.Y))
	buf = binary.LittleEndian.AppendUint64(buf, math.Float64bits(p.Yaw))
	return buf
}

// reader is a bounds-checked little-endian cursor.
type reader struct {
	buf []byte
	off int
	err error
}

func (r *reader) take(n int) []byte {
	if r.err != nil || r.off+n > len(r.buf) {
		if r.err == nil {
			r.err = fmt.Errorf("truncated at offset %d", r.off)
		}
		return make([]byte, n)
	}
	out := r.buf[r.off : r.off+n]
	r.off += n
	return out
}

func (r *reader) remaining() int { return len(r.buf) - r.off }

func (r *reader) expect(magic []byte) bool {
	got := r.take(len(magic))
	return r.err == nil && string(got) == string(magic)
}

func (r *reader) uint32() uint32   { return binary.LittleEndian.Uint32(r.take(4)) }
func (r *reader) uint64() uint64   { return binary.LittleEndian.Uint64(r.take(8)) }
func (r *reader) float64() float64 { return math.Float64frombits(r.uint64()) }
func (r *reader) byte() byte       { return r.take(1)[0] }

func (r *reader) pose() geometry.Pose {
	return geometry.Pose{X: r.float64(), Y: r.float64(), Yaw: r.float64()}
}
