package data

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Agent class labels. Probability carries the classifier confidence for the
// stored label; datasets filter on it before building samples.
const (
	LabelUnknown uint8 = iota
	LabelCar
	LabelPedestrian
	LabelCyclist
)

// Scene groups a contiguous run of frames recorded by one host.
type Scene struct {
	FrameInterval [2]int64 // [start, end) indices into the frame array
	Host          string   // recording vehicle identifier, max 16 bytes
	StartTimeNs   int64
	EndTimeNs     int64
}

// Frame is a single timestep: ego pose plus intervals into the agent and
// traffic-light-face arrays.
type Frame struct {
	TimestampNs     int64
	AgentInterval   [2]int64
	TLFacesInterval [2]int64
	EgoX            float64
	EgoY            float64
	EgoYaw          float64
}

// Agent is one observed road user in a frame.
type Agent struct {
	CX          float64
	CY          float64
	ExtentL     float64 // length along heading, meters
	ExtentW     float64 // width across heading, meters
	Yaw         float64
	VX          float64
	VY          float64
	TrackID     int64
	Label       uint8
	Probability float32
}

// TLFace is a traffic light face state associated with a lane.
type TLFace struct {
	TLID   int64
	LaneID int64
	Color  uint8 // 0 unknown, 1 red, 2 yellow, 3 green
	Active float32
}

// Fixed record sizes in bytes. Records are little-endian and densely packed;
// the chunk container handles alignment-free access.
const (
	SceneRecordSize  = 48
	FrameRecordSize  = 64
	AgentRecordSize  = 69
	TLFaceRecordSize = 21

	hostFieldSize = 16
)

func putF64(b []byte, v float64) { binary.LittleEndian.PutUint64(b, math.Float64bits(v)) }
func getF64(b []byte) float64    { return math.Float64frombits(binary.LittleEndian.Uint64(b)) }
func putF32(b []byte, v float32) { binary.LittleEndian.PutUint32(b, math.Float32bits(v)) }
func getF32(b []byte) float32    { return math.Float32frombits(binary.LittleEndian.Uint32(b)) }

// EncodeScene appends the fixed-size encoding of s to dst.
func EncodeScene(dst []byte, s Scene) []byte {
	var buf [SceneRecordSize]byte
	binary.LittleEndian.PutUint64(buf[0:], uint64(s.FrameInterval[0]))
	binary.LittleEndian.PutUint64(buf[8:], uint64(s.FrameInterval[1]))
	copy(buf[16:16+hostFieldSize], s.Host)
	binary.LittleEndian.PutUint64(buf[32:], uint64(s.StartTimeNs))
	binary.LittleEndian.PutUint64(buf[40:], uint64(s.EndTimeNs))
	return append(dst, buf[:]...)
}

// DecodeScene decodes one scene record from b.
func DecodeScene(b []byte) (Scene, error) {
	if len(b) < SceneRecordSize {
		return Scene{}, fmt.Errorf("scene record too short: %d bytes", len(b))
	}
	host := b[16 : 16+hostFieldSize]
	n := 0
	for n < hostFieldSize && host[n] != 0 {
		n++
	}
	return Scene{
		FrameInterval: [2]int64{
			int64(binary.LittleEndian.Uint64(b[0:])),
			int64(binary.LittleEndian.Uint64(b[8:])),
		},
		Host:        string(host[:n]),
		StartTimeNs: int64(binary.LittleEndian.Uint64(b[32:])),
		EndTimeNs:   int64(binary.LittleEndian.Uint64(b[40:])),
	}, nil
}

// EncodeFrame appends the fixed-size encoding of f to dst.
func EncodeFrame(dst []byte, f Frame) []byte {
	var buf [FrameRecordSize]byte
	binary.LittleEndian.PutUint64(buf[0:], uint64(f.TimestampNs))
	binary.LittleEndian.PutUint64(buf[8:], uint64(f.AgentInterval[0]))
	binary.LittleEndian.PutUint64(buf[16:], uint64(f.AgentInterval[1]))
	binary.LittleEndian.PutUint64(buf[24:], uint64(f.TLFacesInterval[0]))
	binary.LittleEndian.PutUint64(buf[32:], uint64(f.TLFacesInterval[1]))
	putF64(buf[40:], f.EgoX)
	putF64(buf[48:], f.EgoY)
	putF64(buf[56:], f.EgoYaw)
	return append(dst, buf[:]...)
}

// DecodeFrame decodes one frame record from b.
func DecodeFrame(b []byte) (Frame, error) {
	if len(b) < FrameRecordSize {
		return Frame{}, fmt.Errorf("frame record too short: %d bytes", len(b))
	}
	return Frame{
		TimestampNs: int64(binary.LittleEndian.Uint64(b[0:])),
		AgentInterval: [2]int64{
			int64(binary.LittleEndian.Uint64(b[8:])),
			int64(binary.LittleEndian.Uint64(b[16:])),
		},
		TLFacesInterval: [2]int64{
			int64(binary.LittleEndian.Uint64(b[24:])),
			int64(binary.LittleEndian.Uint64(b[32:])),
		},
		EgoX:   getF64(b[40:]),
		EgoY:   getF64(b[48:]),
		EgoYaw: getF64(b[56:]),
	}, nil
}

// EncodeAgent appends the fixed-size encoding of a to dst.
func EncodeAgent(dst []byte, a Agent) []byte {
	var buf [AgentRecordSize]byte
	putF64(buf[0:], a.CX)
	putF64(buf[8:], a.CY)
	putF64(buf[16:], a.ExtentL)
	putF64(buf[24:], a.ExtentW)
	putF64(buf[32:], a.Yaw)
	putF64(buf[40:], a.VX)
	putF64(buf[48:], a.VY)
	binary.LittleEndian.PutUint64(buf[56:], uint64(a.TrackID))
	buf[64] = a.Label
	putF32(buf[65:], a.Probability)
	return append(dst, buf[:]...)
}

// DecodeAgent decodes one agent record from b.
func DecodeAgent(b []byte) (Agent, error) {
	if len(b) < AgentRecordSize {
		return Agent{}, fmt.Errorf("agent record too short: %d bytes", len(b))
	}
	return Agent{
		CX:          getF64(b[0:]),
		CY:          getF64(b[8:]),
		ExtentL:     getF64(b[16:]),
		ExtentW:     getF64(b[24:]),
		Yaw:         getF64(b[32:]),
		VX:          getF64(b[40:]),
		VY:          getF64(b[48:]),
		TrackID:     int64(binary.LittleEndian.Uint64(b[56:])),
		Label:       b[64],
		Probability: getF32(b[65:]),
	}, nil
}

// EncodeTLFace appends the fixed-size encoding of f to dst.
func EncodeTLFace(dst []byte, f TLFace) []byte {
	var buf [TLFaceRecordSize]byte
	binary.LittleEndian.PutUint64(buf[0:], uint64(f.TLID))
	binary.LittleEndian.PutUint64(buf[8:], uint64(f.LaneID))
	buf[16] = f.Color
	putF32(buf[17:], f.Active)
	return append(dst, buf[:]...)
}

// DecodeTLFace decodes one traffic-light-face record from b.
func DecodeTLFace(b []byte) (TLFace, error) {
	if len(b) < TLFaceRecordSize {
		return TLFace{}, fmt.Errorf("tl face record too short: %d bytes", len(b))
	}
	return TLFace{
		TLID:   int64(binary.LittleEndian.Uint64(b[0:])),
		LaneID: int64(binary.LittleEndian.Uint64(b[8:])),
		Color:  b[16],
		Active: getF32(b[17:]),
	}, nil
}
