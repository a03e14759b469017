package h264parser

import (
	"github.com/bluenviron/h264parser/pkg/h264"
)

// AccessUnit is the set of NAL units of one coded picture, plus the
// non-VCL NAL units that preceded its first slice.
type AccessUnit struct {
	// NALUs are the NAL units of the access unit, in stream order.
	NALUs []*NALUnit

	// SPS is the sequence parameter set that was active when the access
	// unit was assembled. It is nil if the slices of the access unit
	// reference a SPS that was never received.
	SPS *h264.SPS

	// PPS is the picture parameter set that was active when the access
	// unit was assembled. It is nil if the slices of the access unit
	// reference a PPS that was never received.
	PPS *h264.PPS

	// Keyframe reports whether the access unit contains an IDR slice,
	// or a recovery point SEI with a zero recovery_frame_cnt.
	Keyframe bool

	// RecoveryPoint reports whether the access unit contains a recovery
	// point SEI message.
	RecoveryPoint bool

	// Errors contains the NAL-unit-scoped errors encountered while
	// decoding the access unit. A NAL unit whose decoding failed is
	// still part of NALUs, with its decoded fields left empty.
	Errors []error
}

// Marshal encodes the access unit back into the Annex-B stream format,
// preserving the start code length of each NAL unit.
func (au *AccessUnit) Marshal() ([]byte, error) {
	n := 0
	for _, nalu := range au.NALUs {
		n += nalu.StartCodeLen + len(nalu.raw)
	}

	buf := make([]byte, n)
	pos := 0

	for _, nalu := range au.NALUs {
		if nalu.StartCodeLen == 4 {
			pos += copy(buf[pos:], []byte{0x00, 0x00, 0x00, 0x01})
		} else {
			pos += copy(buf[pos:], []byte{0x00, 0x00, 0x01})
		}
		pos += copy(buf[pos:], nalu.raw)
	}

	return buf, nil
}
