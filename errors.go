package h264parser

import (
	"fmt"

	"github.com/bluenviron/h264parser/pkg/h264"
)

// ErrTruncatedInput is returned by Flush() when the stream ends with bytes
// that cannot form a NAL unit.
type ErrTruncatedInput struct {
	Offset int64
	Size   int
}

// Error implements the error interface.
func (e ErrTruncatedInput) Error() string {
	return fmt.Sprintf("stream ends with a truncated NAL unit at offset %d (%d bytes)",
		e.Offset, e.Size)
}

// ErrNALUTooBig is returned when a NAL unit exceeds the maximum size.
type ErrNALUTooBig struct {
	Size int
}

// Error implements the error interface.
func (e ErrNALUTooBig) Error() string {
	return fmt.Sprintf("NALU size (%d) is too big (maximum is %d)", e.Size, h264.MaxNALUSize)
}

// ErrMalformedStartCode is reported when bytes that are neither padding nor
// a start code are found between NAL units; the scanner skips to the next
// start code.
type ErrMalformedStartCode struct {
	Offset  int64
	Skipped int
}

// Error implements the error interface.
func (e ErrMalformedStartCode) Error() string {
	return fmt.Sprintf("no start code at offset %d, skipped %d bytes", e.Offset, e.Skipped)
}

// ErrInvalidHeader is reported when the forbidden bit of a NAL unit header
// is set; parsing of the NAL unit continues.
type ErrInvalidHeader struct {
	Offset int64
}

// Error implements the error interface.
func (e ErrInvalidHeader) Error() string {
	return fmt.Sprintf("forbidden bit is set in the NALU at offset %d", e.Offset)
}

// ErrMalformedSPS is reported when a SPS cannot be decoded; the previously
// stored SPS with the same id, if any, is kept.
type ErrMalformedSPS struct {
	Err error
}

// Error implements the error interface.
func (e ErrMalformedSPS) Error() string {
	return fmt.Sprintf("invalid SPS: %v", e.Err)
}

// ErrMalformedPPS is reported when a PPS cannot be decoded; the previously
// stored PPS with the same id, if any, is kept.
type ErrMalformedPPS struct {
	Err error
}

// Error implements the error interface.
func (e ErrMalformedPPS) Error() string {
	return fmt.Sprintf("invalid PPS: %v", e.Err)
}

// ErrMalformedSliceHeader is reported when a slice header cannot be decoded;
// the slice is kept in its access unit without decoded fields.
type ErrMalformedSliceHeader struct {
	Err error
}

// Error implements the error interface.
func (e ErrMalformedSliceHeader) Error() string {
	return fmt.Sprintf("invalid slice header: %v", e.Err)
}

// ErrTruncatedSEI is reported when a SEI message is shorter than its declared
// size; messages decoded before it are kept.
type ErrTruncatedSEI struct {
	Err error
}

// Error implements the error interface.
func (e ErrTruncatedSEI) Error() string {
	return fmt.Sprintf("invalid SEI: %v", e.Err)
}

// ErrUnresolvedParameterSet is reported when a slice references a parameter
// set that has not been received.
type ErrUnresolvedParameterSet struct {
	IsSPS bool
	ID    uint32
}

// Error implements the error interface.
func (e ErrUnresolvedParameterSet) Error() string {
	if e.IsSPS {
		return fmt.Sprintf("slice references SPS %d, which has not been received", e.ID)
	}
	return fmt.Sprintf("slice references PPS %d, which has not been received", e.ID)
}
