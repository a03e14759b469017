package h264

import (
	"fmt"

	"github.com/bluenviron/h264parser/pkg/bits"
)

// slice headers occupy at most a few dozen bytes; decoding is bounded
// to avoid removing emulation prevention from entire slices.
const maxSliceHeaderSize = 256

// SliceType is the type of a slice.
type SliceType int

// slice types.
const (
	SliceTypeP  SliceType = 0
	SliceTypeB  SliceType = 1
	SliceTypeI  SliceType = 2
	SliceTypeSP SliceType = 3
	SliceTypeSI SliceType = 4
)

var sliceTypeLabels = map[SliceType]string{
	SliceTypeP:  "P",
	SliceTypeB:  "B",
	SliceTypeI:  "I",
	SliceTypeSP: "SP",
	SliceTypeSI: "SI",
}

// String implements fmt.Stringer.
func (st SliceType) String() string {
	if l, ok := sliceTypeLabels[st]; ok {
		return l
	}
	return fmt.Sprintf("unknown (%d)", int(st))
}

func sliceHeaderBuf(nalu []byte) []byte {
	if len(nalu) > maxSliceHeaderSize {
		nalu = nalu[:maxSliceHeaderSize]
	}
	return EmulationPreventionRemove(nalu)
}

// SlicePPSID returns the pic_parameter_set_id referenced by a slice NALU,
// without decoding the rest of the header.
func SlicePPSID(nalu []byte) (uint32, error) {
	buf := sliceHeaderBuf(nalu)

	if len(buf) < 2 {
		return 0, fmt.Errorf("buffer too short")
	}

	pos := 8

	_, err := bits.ReadGolombUnsigned(buf, &pos) // first_mb_in_slice
	if err != nil {
		return 0, err
	}

	_, err = bits.ReadGolombUnsigned(buf, &pos) // slice_type
	if err != nil {
		return 0, err
	}

	id, err := bits.ReadGolombUnsigned(buf, &pos)
	if err != nil {
		return 0, err
	}
	if id > 255 {
		return 0, fmt.Errorf("invalid pic_parameter_set_id")
	}

	return id, nil
}

// SliceHeader is the header of a slice.
type SliceHeader struct {
	FirstMbInSlice     uint32
	SliceType          SliceType
	AllSlicesOfPicture bool
	PPSID              uint32

	// SPS.SeparateColourPlaneFlag == true
	ColourPlaneID uint8

	FrameNum uint32

	// SPS.FrameMbsOnlyFlag == false
	FieldPicFlag    bool
	BottomFieldFlag bool

	// IDR slices only
	IdrPicID uint32

	// SPS.PicOrderCntType == 0
	PicOrderCntLsb         uint32
	DeltaPicOrderCntBottom int32

	// SPS.PicOrderCntType == 1
	DeltaPicOrderCnt [2]int32

	// PPS.RedundantPicCntPresentFlag == true
	RedundantPicCnt uint32

	// B slices only
	DirectSpatialMvPredFlag bool

	NumRefIdxActiveOverrideFlag bool
	NumRefIdxL0ActiveMinus1     uint32
	NumRefIdxL1ActiveMinus1     uint32
}

// Unmarshal decodes a slice header from a NALU. The SPS and PPS referenced
// by the slice are needed, since they control which fields are present.
func (h *SliceHeader) Unmarshal(nalu []byte, sps *SPS, pps *PPS) error {
	// ref: ISO/IEC 14496-10:2020

	buf := sliceHeaderBuf(nalu)

	if len(buf) < 2 {
		return fmt.Errorf("buffer too short")
	}

	isIDR := NALUType(buf[0]&0x1F) == NALUTypeIDR

	pos := 8

	var err error
	h.FirstMbInSlice, err = bits.ReadGolombUnsigned(buf, &pos)
	if err != nil {
		return err
	}

	sliceType, err := bits.ReadGolombUnsigned(buf, &pos)
	if err != nil {
		return err
	}
	if sliceType > 9 {
		return fmt.Errorf("invalid slice_type (%d)", sliceType)
	}

	// values 5-9 state that every slice of the picture has this type
	h.SliceType = SliceType(sliceType % 5)
	h.AllSlicesOfPicture = sliceType >= 5

	h.PPSID, err = bits.ReadGolombUnsigned(buf, &pos)
	if err != nil {
		return err
	}
	if h.PPSID > 255 {
		return fmt.Errorf("invalid pic_parameter_set_id")
	}

	if sps.SeparateColourPlaneFlag {
		tmp, err := bits.ReadBits(buf, &pos, 2)
		if err != nil {
			return err
		}
		h.ColourPlaneID = uint8(tmp)
	}

	tmp, err := bits.ReadBits(buf, &pos, int(sps.Log2MaxFrameNumMinus4+4))
	if err != nil {
		return err
	}
	h.FrameNum = uint32(tmp)

	h.FieldPicFlag = false
	h.BottomFieldFlag = false

	if !sps.FrameMbsOnlyFlag {
		h.FieldPicFlag, err = bits.ReadFlag(buf, &pos)
		if err != nil {
			return err
		}

		if h.FieldPicFlag {
			h.BottomFieldFlag, err = bits.ReadFlag(buf, &pos)
			if err != nil {
				return err
			}
		}
	}

	h.IdrPicID = 0
	if isIDR {
		h.IdrPicID, err = bits.ReadGolombUnsigned(buf, &pos)
		if err != nil {
			return err
		}
	}

	h.PicOrderCntLsb = 0
	h.DeltaPicOrderCntBottom = 0
	h.DeltaPicOrderCnt = [2]int32{}

	switch {
	case sps.PicOrderCntType == 0:
		tmp, err := bits.ReadBits(buf, &pos, int(sps.Log2MaxPicOrderCntLsbMinus4+4))
		if err != nil {
			return err
		}
		h.PicOrderCntLsb = uint32(tmp)

		if pps.BottomFieldPicOrderInFramePresentFlag && !h.FieldPicFlag {
			h.DeltaPicOrderCntBottom, err = bits.ReadGolombSigned(buf, &pos)
			if err != nil {
				return err
			}
		}

	case sps.PicOrderCntType == 1 && !sps.DeltaPicOrderAlwaysZeroFlag:
		h.DeltaPicOrderCnt[0], err = bits.ReadGolombSigned(buf, &pos)
		if err != nil {
			return err
		}

		if pps.BottomFieldPicOrderInFramePresentFlag && !h.FieldPicFlag {
			h.DeltaPicOrderCnt[1], err = bits.ReadGolombSigned(buf, &pos)
			if err != nil {
				return err
			}
		}
	}

	h.RedundantPicCnt = 0
	if pps.RedundantPicCntPresentFlag {
		h.RedundantPicCnt, err = bits.ReadGolombUnsigned(buf, &pos)
		if err != nil {
			return err
		}
	}

	h.DirectSpatialMvPredFlag = false
	if h.SliceType == SliceTypeB {
		h.DirectSpatialMvPredFlag, err = bits.ReadFlag(buf, &pos)
		if err != nil {
			return err
		}
	}

	h.NumRefIdxActiveOverrideFlag = false
	h.NumRefIdxL0ActiveMinus1 = pps.NumRefIdxL0DefaultActiveMinus1
	h.NumRefIdxL1ActiveMinus1 = pps.NumRefIdxL1DefaultActiveMinus1

	if h.SliceType == SliceTypeP || h.SliceType == SliceTypeSP || h.SliceType == SliceTypeB {
		h.NumRefIdxActiveOverrideFlag, err = bits.ReadFlag(buf, &pos)
		if err != nil {
			return err
		}

		if h.NumRefIdxActiveOverrideFlag {
			h.NumRefIdxL0ActiveMinus1, err = bits.ReadGolombUnsigned(buf, &pos)
			if err != nil {
				return err
			}

			if h.SliceType == SliceTypeB {
				h.NumRefIdxL1ActiveMinus1, err = bits.ReadGolombUnsigned(buf, &pos)
				if err != nil {
					return err
				}
			}
		}
	}

	return nil
}
