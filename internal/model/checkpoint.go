package model

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os"
)

// checkpointMagic identifies drivekit checkpoint files.
var checkpointMagic = []byte("DKCKPT01")

// Meta describes a serialized model checkpoint.
type Meta struct {
	Kind  string         `json:"kind"` // planner | urban_policy | ppo_policy | ppo_value
	Step  int            `json:"step"`
	Shape map[string]int `json:"shape"` // constructor arguments, e.g. in/hidden/future
}

// SaveCheckpoint writes meta and all parameter values to path. Layout:
// magic, uint32 meta length, meta JSON, float64 little-endian values in
// Params order.
func SaveCheckpoint(path string, meta Meta, params []Parameter) error {
	metaRaw, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("marshal checkpoint meta: %w", err)
	}
	total := 0
	for _, p := range params {
		total += len(p.Value)
	}
	buf := make([]byte, 0, len(checkpointMagic)+4+len(metaRaw)+8*total)
	buf = append(buf, checkpointMagic...)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(metaRaw)))
	buf = append(buf, metaRaw...)
	for _, p := range params {
		for _, v := range p.Value {
			buf = binary.LittleEndian.AppendUint64(buf, math.Float64bits(v))
		}
	}
	if err := os.WriteFile(path, buf, 0644); err != nil {
		return fmt.Errorf("write checkpoint: %w", err)
	}
	return nil
}

// ReadCheckpointMeta reads only the meta header of a checkpoint.
func ReadCheckpointMeta(path string) (Meta, error) {
	meta, _, err := readCheckpoint(path)
	return meta, err
}

// LoadCheckpoint restores parameter values in place. The parameter layout
// must match the one used at save time.
func LoadCheckpoint(path string, params []Parameter) (Meta, error) {
	meta, values, err := readCheckpoint(path)
	if err != nil {
		return Meta{}, err
	}
	total := 0
	for _, p := range params {
		total += len(p.Value)
	}
	if total != len(values) {
		return Meta{}, fmt.Errorf("checkpoint %s holds %d values, model expects %d", path, len(values), total)
	}
	off := 0
	for _, p := range params {
		copy(p.Value, values[off:off+len(p.Value)])
		off += len(p.Value)
	}
	return meta, nil
}

func readCheckpoint(path string) (Meta, []float64, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Meta{}, nil, fmt.Errorf("read checkpoint: %w", err)
	}
	if len(raw) < len(checkpointMagic)+4 || string(raw[:len(checkpointMagic)]) != string(checkpointMagic) {
		return Meta{}, nil, fmt.Errorf("checkpoint %s: bad magic", path)
	}
	off := len(checkpointMagic)
	metaLen := int(binary.LittleEndian.Uint32(raw[off:]))
	off += 4
	if off+metaLen > len(raw) {
		return Meta{}, nil, fmt.Errorf("checkpoint %s: truncated meta", path)
	}
	var meta Meta
	if err := json.Unmarshal(raw[off:off+metaLen], &meta); err != nil {
		return Meta{}, nil, fmt.Errorf("checkpoint %s: parse meta: %w", path, err)
	}
	off += metaLen
	body := raw[off:]
	if len(body)%8 != 0 {
		return Meta{}, nil, fmt.Errorf("checkpoint %s: weight section not 8-byte aligned", path)
	}
	values := make([]float64, len(body)/8)
	for i := range values {
		values[i] = math.Float64frombits(binary.LittleEndian.Uint64(body[i*8:]))
	}
	return meta, values, nil
}
