package h264parser

import (
	"github.com/bluenviron/h264parser/pkg/h264"
)

// NALUnit is a NAL unit extracted from the stream.
type NALUnit struct {
	// Type is the nal_unit_type.
	Type h264.NALUType

	// RefIdc is the nal_ref_idc.
	RefIdc uint8

	// Offset is the offset of the first byte of the NAL unit
	// (its header) in the stream.
	Offset int64

	// StartCodeLen is the length of the start code that preceded
	// the NAL unit (3 or 4).
	StartCodeLen int

	// RBSP is the payload of the NAL unit, with emulation prevention
	// bytes removed.
	RBSP []byte

	// SliceHeader is the decoded slice header, set on VCL NAL units
	// whose parameter sets could be resolved.
	SliceHeader *h264.SliceHeader

	// SEI contains the decoded SEI messages, set on SEI NAL units.
	SEI []h264.SEIMessage

	raw []byte
}

// Raw returns the raw bytes of the NAL unit (header plus EBSP),
// without the start code.
func (n *NALUnit) Raw() []byte {
	return n.raw
}

// parseNALUnit extracts a NALUnit from a terminated byte range.
// A set forbidden bit is reported but does not stop parsing.
func parseNALUnit(rng *naluRange) (*NALUnit, error) {
	raw := rng.buf

	n := &NALUnit{
		Type:         h264.NALUType(raw[0] & 0x1F),
		RefIdc:       (raw[0] >> 5) & 0x03,
		Offset:       rng.offset,
		StartCodeLen: rng.startCodeLen,
		RBSP:         h264.EmulationPreventionRemove(raw[1:]),
		raw:          raw,
	}

	if (raw[0] >> 7) != 0 {
		return n, ErrInvalidHeader{Offset: rng.offset}
	}

	return n, nil
}
