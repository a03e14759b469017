package h264parser

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bluenviron/h264parser/pkg/bits"
	"github.com/bluenviron/h264parser/pkg/h264"
)

var (
	startCode3 = []byte{0x00, 0x00, 0x01}
	startCode4 = []byte{0x00, 0x00, 0x00, 0x01}

	testAUD = []byte{0x09, 0xf0}
)

func cat(bufs ...[]byte) []byte {
	var ret []byte
	for _, buf := range bufs {
		ret = append(ret, buf...)
	}
	return ret
}

func buildTestSPS(id uint32, widthMbs uint32, heightMbs uint32) []byte {
	buf := make([]byte, 32)
	pos := 0
	bits.WriteBits(buf, &pos, 66, 8) // profile_idc
	bits.WriteBits(buf, &pos, 0, 8)  // constraint flags
	bits.WriteBits(buf, &pos, 30, 8) // level_idc
	bits.WriteGolombUnsigned(buf, &pos, id)
	bits.WriteGolombUnsigned(buf, &pos, 0) // log2_max_frame_num_minus4
	bits.WriteGolombUnsigned(buf, &pos, 2) // pic_order_cnt_type
	bits.WriteGolombUnsigned(buf, &pos, 1) // max_num_ref_frames
	bits.WriteFlag(buf, &pos, false)       // gaps_in_frame_num_value_allowed_flag
	bits.WriteGolombUnsigned(buf, &pos, widthMbs-1)
	bits.WriteGolombUnsigned(buf, &pos, heightMbs-1)
	bits.WriteFlag(buf, &pos, true)  // frame_mbs_only_flag
	bits.WriteFlag(buf, &pos, true)  // direct_8x8_inference_flag
	bits.WriteFlag(buf, &pos, false) // frame_cropping_flag
	bits.WriteFlag(buf, &pos, false) // vui_parameters_present_flag
	bits.WriteFlag(buf, &pos, true)  // rbsp_stop_one_bit
	return append([]byte{0x67}, h264.EmulationPreventionAdd(buf[:(pos+7)/8])...)
}

func buildTestPPS(id uint32, spsID uint32) []byte {
	buf := make([]byte, 16)
	pos := 0
	bits.WriteGolombUnsigned(buf, &pos, id)
	bits.WriteGolombUnsigned(buf, &pos, spsID)
	bits.WriteFlag(buf, &pos, false)       // entropy_coding_mode_flag
	bits.WriteFlag(buf, &pos, false)       // bottom_field_pic_order_in_frame_present_flag
	bits.WriteGolombUnsigned(buf, &pos, 0) // num_slice_groups_minus1
	bits.WriteGolombUnsigned(buf, &pos, 0) // num_ref_idx_l0_default_active_minus1
	bits.WriteGolombUnsigned(buf, &pos, 0) // num_ref_idx_l1_default_active_minus1
	bits.WriteFlag(buf, &pos, false)       // weighted_pred_flag
	bits.WriteBits(buf, &pos, 0, 2)        // weighted_bipred_idc
	bits.WriteGolombSigned(buf, &pos, 0)   // pic_init_qp_minus26
	bits.WriteGolombSigned(buf, &pos, 0)   // pic_init_qs_minus26
	bits.WriteGolombSigned(buf, &pos, 0)   // chroma_qp_index_offset
	bits.WriteFlag(buf, &pos, true)        // deblocking_filter_control_present_flag
	bits.WriteFlag(buf, &pos, false)       // constrained_intra_pred_flag
	bits.WriteFlag(buf, &pos, false)       // redundant_pic_cnt_present_flag
	bits.WriteFlag(buf, &pos, true)        // rbsp_stop_one_bit
	return append([]byte{0x68}, h264.EmulationPreventionAdd(buf[:(pos+7)/8])...)
}

func buildTestIDR(ppsID uint32, frameNum uint32, idrPicID uint32) []byte {
	buf := make([]byte, 16)
	pos := 0
	bits.WriteGolombUnsigned(buf, &pos, 0) // first_mb_in_slice
	bits.WriteGolombUnsigned(buf, &pos, 2) // slice_type (I)
	bits.WriteGolombUnsigned(buf, &pos, ppsID)
	bits.WriteBits(buf, &pos, uint64(frameNum), 4)
	bits.WriteGolombUnsigned(buf, &pos, idrPicID)
	bits.WriteFlag(buf, &pos, true) // rbsp_stop_one_bit
	return append([]byte{0x65}, h264.EmulationPreventionAdd(buf[:(pos+7)/8])...)
}

func buildTestNonIDR(ppsID uint32, frameNum uint32, firstMb uint32) []byte {
	buf := make([]byte, 16)
	pos := 0
	bits.WriteGolombUnsigned(buf, &pos, firstMb)
	bits.WriteGolombUnsigned(buf, &pos, 0) // slice_type (P)
	bits.WriteGolombUnsigned(buf, &pos, ppsID)
	bits.WriteBits(buf, &pos, uint64(frameNum), 4)
	bits.WriteFlag(buf, &pos, false) // num_ref_idx_active_override_flag
	bits.WriteFlag(buf, &pos, true)  // rbsp_stop_one_bit
	return append([]byte{0x41}, h264.EmulationPreventionAdd(buf[:(pos+7)/8])...)
}

func buildTestRecoveryPointSEI(recoveryFrameCnt uint32) []byte {
	buf := make([]byte, 8)
	pos := 0
	bits.WriteGolombUnsigned(buf, &pos, recoveryFrameCnt)
	bits.WriteFlag(buf, &pos, true)  // exact_match_flag
	bits.WriteFlag(buf, &pos, false) // broken_link_flag
	bits.WriteBits(buf, &pos, 0, 2)  // changing_slice_group_idc
	payload := buf[:(pos+7)/8]

	ret := []byte{0x06, 0x06, byte(len(payload))}
	ret = append(ret, payload...)
	return append(ret, 0x80)
}

func collectAccessUnits(t *testing.T, p *Parser) []*AccessUnit {
	var aus []*AccessUnit
	for {
		au, err := p.NextAccessUnit()
		require.NoError(t, err)
		if au == nil {
			break
		}
		aus = append(aus, au)
	}
	for {
		au, err := p.Flush()
		require.NoError(t, err)
		if au == nil {
			break
		}
		aus = append(aus, au)
	}
	return aus
}

func naluTypes(au *AccessUnit) []h264.NALUType {
	var types []h264.NALUType
	for _, n := range au.NALUs {
		types = append(types, n.Type)
	}
	return types
}

func TestParserKeyframes(t *testing.T) {
	stream := cat(
		startCode4, testAUD,
		startCode4, buildTestSPS(0, 22, 18),
		startCode4, buildTestPPS(0, 0),
		startCode3, buildTestIDR(0, 0, 0),
		startCode4, testAUD,
		startCode3, buildTestNonIDR(0, 1, 0),
	)

	p := NewParser()
	p.Push(stream)
	aus := collectAccessUnits(t, p)
	require.Equal(t, 2, len(aus))

	require.Equal(t, []h264.NALUType{
		h264.NALUTypeAccessUnitDelimiter,
		h264.NALUTypeSPS,
		h264.NALUTypePPS,
		h264.NALUTypeIDR,
	}, naluTypes(aus[0]))
	require.Equal(t, true, aus[0].Keyframe)
	require.Equal(t, 0, len(aus[0].Errors))
	require.NotNil(t, aus[0].SPS)
	require.NotNil(t, aus[0].PPS)
	require.Equal(t, 352, aus[0].SPS.Width())
	require.Equal(t, 288, aus[0].SPS.Height())

	require.Equal(t, []h264.NALUType{
		h264.NALUTypeAccessUnitDelimiter,
		h264.NALUTypeNonIDR,
	}, naluTypes(aus[1]))
	require.Equal(t, false, aus[1].Keyframe)
	require.Same(t, aus[0].SPS, aus[1].SPS)
	require.Same(t, aus[0].PPS, aus[1].PPS)

	idr := aus[0].NALUs[3]
	require.Equal(t, uint8(3), idr.RefIdc)
	require.NotNil(t, idr.SliceHeader)
	require.Equal(t, h264.SliceTypeI, idr.SliceHeader.SliceType)
	require.Equal(t, 3, idr.StartCodeLen)
	require.Equal(t, h264.EmulationPreventionRemove(idr.Raw()[1:]), idr.RBSP)
}

func TestParserChunkInvariance(t *testing.T) {
	stream := cat(
		startCode4, testAUD,
		startCode3, buildTestSPS(0, 22, 18),
		startCode3, buildTestPPS(0, 0),
		startCode3, buildTestRecoveryPointSEI(1),
		startCode3, buildTestIDR(0, 0, 0),
		startCode4, testAUD,
		startCode3, buildTestNonIDR(0, 1, 0),
		startCode3, buildTestNonIDR(0, 2, 0),
	)

	p := NewParser()
	p.Push(stream)
	want := collectAccessUnits(t, p)
	require.Equal(t, 3, len(want))

	for _, chunkSize := range []int{1, 2, 3, 5, 7, 16} {
		p := NewParser()
		var aus []*AccessUnit

		for off := 0; off < len(stream); off += chunkSize {
			end := min(off+chunkSize, len(stream))
			p.Push(stream[off:end])

			for {
				au, err := p.NextAccessUnit()
				require.NoError(t, err)
				if au == nil {
					break
				}
				aus = append(aus, au)
			}
		}
		for {
			au, err := p.Flush()
			require.NoError(t, err)
			if au == nil {
				break
			}
			aus = append(aus, au)
		}

		require.Equal(t, want, aus)
	}
}

func TestParserFrameNumBoundary(t *testing.T) {
	stream := cat(
		startCode4, buildTestSPS(0, 22, 18),
		startCode4, buildTestPPS(0, 0),
		startCode4, buildTestIDR(0, 0, 0),
		startCode4, buildTestNonIDR(0, 1, 0),
		startCode4, buildTestNonIDR(0, 1, 5),
		startCode4, buildTestNonIDR(0, 2, 0),
	)

	p := NewParser()
	p.Push(stream)
	aus := collectAccessUnits(t, p)
	require.Equal(t, 3, len(aus))

	require.Equal(t, []h264.NALUType{
		h264.NALUTypeSPS,
		h264.NALUTypePPS,
		h264.NALUTypeIDR,
	}, naluTypes(aus[0]))

	// the continuation slice belongs to the same picture
	require.Equal(t, []h264.NALUType{
		h264.NALUTypeNonIDR,
		h264.NALUTypeNonIDR,
	}, naluTypes(aus[1]))
	require.Equal(t, uint32(5), aus[1].NALUs[1].SliceHeader.FirstMbInSlice)

	require.Equal(t, []h264.NALUType{
		h264.NALUTypeNonIDR,
	}, naluTypes(aus[2]))
}

func TestParserUnresolvedPPS(t *testing.T) {
	stream := cat(
		startCode4, buildTestSPS(0, 22, 18),
		startCode4, buildTestPPS(0, 0),
		startCode4, buildTestNonIDR(1, 0, 0),
		startCode4, testAUD,
		startCode4, buildTestIDR(0, 0, 0),
	)

	p := NewParser()
	p.Push(stream)
	aus := collectAccessUnits(t, p)
	require.Equal(t, 2, len(aus))

	require.Contains(t, aus[0].Errors, error(ErrUnresolvedParameterSet{ID: 1}))
	require.Nil(t, aus[0].NALUs[2].SliceHeader)
	require.Nil(t, aus[0].SPS)

	// the stream continues normally after the unresolved reference
	require.Equal(t, 0, len(aus[1].Errors))
	require.Equal(t, true, aus[1].Keyframe)
	require.NotNil(t, aus[1].SPS)
}

func TestParserRecoveryPoint(t *testing.T) {
	for _, ca := range []struct {
		name             string
		recoveryFrameCnt uint32
		keyframe         bool
	}{
		{"immediate", 0, true},
		{"delayed", 1, false},
	} {
		t.Run(ca.name, func(t *testing.T) {
			stream := cat(
				startCode4, buildTestSPS(0, 22, 18),
				startCode4, buildTestPPS(0, 0),
				startCode4, buildTestRecoveryPointSEI(ca.recoveryFrameCnt),
				startCode4, buildTestNonIDR(0, 0, 0),
			)

			p := NewParser()
			p.Push(stream)
			aus := collectAccessUnits(t, p)
			require.Equal(t, 1, len(aus))

			require.Equal(t, true, aus[0].RecoveryPoint)
			require.Equal(t, ca.keyframe, aus[0].Keyframe)

			sei := aus[0].NALUs[2]
			require.Equal(t, 1, len(sei.SEI))
			require.Equal(t, uint32(h264.SEITypeRecoveryPoint), sei.SEI[0].PayloadType)
		})
	}
}

func TestParserSPSOverwrite(t *testing.T) {
	stream := cat(
		startCode4, buildTestSPS(0, 22, 18),
		startCode4, buildTestPPS(0, 0),
		startCode4, buildTestIDR(0, 0, 0),
		startCode4, testAUD,
		startCode4, buildTestSPS(0, 40, 30),
		startCode4, buildTestPPS(0, 0),
		startCode4, buildTestIDR(0, 0, 1),
	)

	p := NewParser()
	p.Push(stream)
	aus := collectAccessUnits(t, p)
	require.Equal(t, 2, len(aus))

	// overwriting an id does not alter already-assembled access units
	require.Equal(t, 352, aus[0].SPS.Width())
	require.Equal(t, 640, aus[1].SPS.Width())
	require.Equal(t, 480, aus[1].SPS.Height())
}

func TestParserGarbagePrefix(t *testing.T) {
	stream := cat(
		[]byte{0xde, 0xad},
		startCode4, buildTestSPS(0, 22, 18),
		startCode4, buildTestPPS(0, 0),
		startCode4, buildTestIDR(0, 0, 0),
	)

	p := NewParser()
	p.Push(stream)
	aus := collectAccessUnits(t, p)
	require.Equal(t, 1, len(aus))

	require.Contains(t, aus[0].Errors, error(ErrMalformedStartCode{Offset: 0, Skipped: 2}))
	require.Equal(t, true, aus[0].Keyframe)
}

func TestParserForbiddenBit(t *testing.T) {
	stream := cat(
		startCode4, []byte{0x89, 0xf0}, // AUD with the forbidden bit set
		startCode4, buildTestSPS(0, 22, 18),
		startCode4, buildTestPPS(0, 0),
		startCode4, buildTestIDR(0, 0, 0),
	)

	p := NewParser()
	p.Push(stream)
	aus := collectAccessUnits(t, p)
	require.Equal(t, 1, len(aus))

	require.Contains(t, aus[0].Errors, error(ErrInvalidHeader{Offset: 4}))
	require.Equal(t, 4, len(aus[0].NALUs))
}

func TestParserTruncatedTail(t *testing.T) {
	stream := cat(
		startCode4, buildTestSPS(0, 22, 18),
		startCode4, buildTestPPS(0, 0),
		startCode4, buildTestIDR(0, 0, 0),
		startCode3,
	)

	p := NewParser()
	p.Push(stream)

	au, err := p.NextAccessUnit()
	require.NoError(t, err)
	require.Nil(t, au)

	au, err = p.Flush()
	require.NoError(t, err)
	require.NotNil(t, au)
	require.Equal(t, true, au.Keyframe)

	found := false
	for _, e := range au.Errors {
		if _, ok := e.(ErrTruncatedInput); ok {
			found = true
		}
	}
	require.Equal(t, true, found)

	au, err = p.Flush()
	require.NoError(t, err)
	require.Nil(t, au)
}

func TestParserFlushOnly(t *testing.T) {
	t.Run("single push", func(t *testing.T) {
		p := NewParser()
		p.Push(cat(
			startCode4, buildTestSPS(0, 22, 18),
			startCode4, buildTestPPS(0, 0),
			startCode4, buildTestIDR(0, 0, 0),
		))

		au, err := p.Flush()
		require.NoError(t, err)
		require.NotNil(t, au)
		require.Equal(t, []h264.NALUType{
			h264.NALUTypeSPS,
			h264.NALUTypePPS,
			h264.NALUTypeIDR,
		}, naluTypes(au))
		require.Equal(t, true, au.Keyframe)
		require.Equal(t, 0, len(au.Errors))

		au, err = p.Flush()
		require.NoError(t, err)
		require.Nil(t, au)
	})

	t.Run("push after drain", func(t *testing.T) {
		p := NewParser()
		p.Push(cat(
			startCode4, buildTestSPS(0, 22, 18),
			startCode4, buildTestPPS(0, 0),
		))

		au, err := p.NextAccessUnit()
		require.NoError(t, err)
		require.Nil(t, au)

		p.Push(cat(startCode4, buildTestIDR(0, 0, 0)))

		au, err = p.Flush()
		require.NoError(t, err)
		require.NotNil(t, au)
		require.Equal(t, []h264.NALUType{
			h264.NALUTypeSPS,
			h264.NALUTypePPS,
			h264.NALUTypeIDR,
		}, naluTypes(au))
		require.Equal(t, true, au.Keyframe)
		require.Equal(t, 0, len(au.Errors))
	})
}

func TestParserFlushTailError(t *testing.T) {
	stream := cat(
		startCode4, buildTestSPS(0, 22, 18),
		startCode4, buildTestPPS(0, 0),
		startCode4, buildTestIDR(0, 0, 0),
		startCode4, buildTestNonIDR(0, 1, 0),
		startCode3,
	)

	p := NewParser()
	p.Push(stream)

	// the tail error is reported on the last access unit, not the first
	au, err := p.Flush()
	require.NoError(t, err)
	require.NotNil(t, au)
	require.Equal(t, true, au.Keyframe)
	require.Equal(t, 0, len(au.Errors))

	au, err = p.Flush()
	require.NoError(t, err)
	require.NotNil(t, au)
	require.Equal(t, []h264.NALUType{h264.NALUTypeNonIDR}, naluTypes(au))

	found := false
	for _, e := range au.Errors {
		if _, ok := e.(ErrTruncatedInput); ok {
			found = true
		}
	}
	require.Equal(t, true, found)

	au, err = p.Flush()
	require.NoError(t, err)
	require.Nil(t, au)
}

func TestParserFlushWithoutNALUs(t *testing.T) {
	p := NewParser()
	p.Push([]byte{0x01, 0x02})

	au, err := p.NextAccessUnit()
	require.NoError(t, err)
	require.Nil(t, au)

	au, err = p.Flush()
	require.Equal(t, ErrTruncatedInput{Offset: 0, Size: 2}, err)
	require.Nil(t, au)
}

func TestParserMarshal(t *testing.T) {
	stream := cat(
		startCode4, buildTestSPS(0, 22, 18),
		startCode3, buildTestPPS(0, 0),
		startCode3, buildTestIDR(0, 0, 0),
	)

	p := NewParser()
	p.Push(stream)
	aus := collectAccessUnits(t, p)
	require.Equal(t, 1, len(aus))

	buf, err := aus[0].Marshal()
	require.NoError(t, err)
	require.Equal(t, stream, buf)
}

func TestParserReset(t *testing.T) {
	p := NewParser()
	p.Push(cat(startCode4, buildTestSPS(0, 22, 18)))
	p.Reset()

	p.Push(cat(
		startCode4, buildTestSPS(0, 22, 18),
		startCode4, buildTestPPS(0, 0),
		startCode4, buildTestIDR(0, 0, 0),
	))
	aus := collectAccessUnits(t, p)
	require.Equal(t, 1, len(aus))
	require.Equal(t, int64(4), aus[0].NALUs[0].Offset)
	require.Equal(t, 0, len(aus[0].Errors))
}

func TestParserNALUTooBig(t *testing.T) {
	p := NewParser()
	p.Push(startCode4)
	p.Push(make([]byte, h264.MaxNALUSize+2))

	_, err := p.NextAccessUnit()
	require.Equal(t, ErrNALUTooBig{Size: h264.MaxNALUSize + 2}, err)
}
