package h264

import (
	"fmt"

	"github.com/bluenviron/h264parser/pkg/bits"
)

// PPS is a H264 picture parameter set.
type PPS struct {
	ID                                    uint32
	SPSID                                 uint32
	EntropyCodingModeFlag                 bool
	BottomFieldPicOrderInFramePresentFlag bool

	// NumSliceGroupsMinus1 > 0
	NumSliceGroupsMinus1 uint32
	SliceGroupMapType    uint32

	NumRefIdxL0DefaultActiveMinus1     uint32
	NumRefIdxL1DefaultActiveMinus1     uint32
	WeightedPredFlag                   bool
	WeightedBipredIdc                  uint8
	PicInitQpMinus26                   int32
	PicInitQsMinus26                   int32
	ChromaQpIndexOffset                int32
	DeblockingFilterControlPresentFlag bool
	ConstrainedIntraPredFlag           bool
	RedundantPicCntPresentFlag         bool

	// present only when more_rbsp_data() is true
	Transform8x8ModeFlag        bool
	PicScalingMatrixPresentFlag bool
	SecondChromaQpIndexOffset   int32
}

// Unmarshal decodes a PPS from a NALU.
func (p *PPS) Unmarshal(nalu []byte) error {
	// ref: ISO/IEC 14496-10:2020

	buf := EmulationPreventionRemove(nalu)

	if len(buf) < 2 {
		return fmt.Errorf("buffer too short")
	}

	if (buf[0] >> 7) != 0 {
		return fmt.Errorf("wrong forbidden bit")
	}

	if NALUType(buf[0]&0x1F) != NALUTypePPS {
		return fmt.Errorf("not a PPS")
	}

	pos := 8

	var err error
	p.ID, err = bits.ReadGolombUnsigned(buf, &pos)
	if err != nil {
		return err
	}
	if p.ID > 255 {
		return fmt.Errorf("invalid pic_parameter_set_id")
	}

	p.SPSID, err = bits.ReadGolombUnsigned(buf, &pos)
	if err != nil {
		return err
	}
	if p.SPSID > 31 {
		return fmt.Errorf("invalid seq_parameter_set_id")
	}

	p.EntropyCodingModeFlag, err = bits.ReadFlag(buf, &pos)
	if err != nil {
		return err
	}

	p.BottomFieldPicOrderInFramePresentFlag, err = bits.ReadFlag(buf, &pos)
	if err != nil {
		return err
	}

	p.NumSliceGroupsMinus1, err = bits.ReadGolombUnsigned(buf, &pos)
	if err != nil {
		return err
	}

	p.SliceGroupMapType = 0
	if p.NumSliceGroupsMinus1 > 0 {
		p.SliceGroupMapType, err = bits.ReadGolombUnsigned(buf, &pos)
		if err != nil {
			return err
		}

		switch p.SliceGroupMapType {
		case 0:
			for i := uint32(0); i <= p.NumSliceGroupsMinus1; i++ {
				_, err = bits.ReadGolombUnsigned(buf, &pos) // run_length_minus1
				if err != nil {
					return err
				}
			}

		case 2:
			for i := uint32(0); i < p.NumSliceGroupsMinus1; i++ {
				_, err = bits.ReadGolombUnsigned(buf, &pos) // top_left
				if err != nil {
					return err
				}

				_, err = bits.ReadGolombUnsigned(buf, &pos) // bottom_right
				if err != nil {
					return err
				}
			}

		case 3, 4, 5:
			_, err = bits.ReadFlag(buf, &pos) // slice_group_change_direction_flag
			if err != nil {
				return err
			}

			_, err = bits.ReadGolombUnsigned(buf, &pos) // slice_group_change_rate_minus1
			if err != nil {
				return err
			}

		case 6:
			picSizeInMapUnitsMinus1, err := bits.ReadGolombUnsigned(buf, &pos)
			if err != nil {
				return err
			}

			n := 0
			for tmp := p.NumSliceGroupsMinus1; tmp != 0; tmp >>= 1 {
				n++
			}

			for i := uint32(0); i <= picSizeInMapUnitsMinus1; i++ {
				_, err = bits.ReadBits(buf, &pos, n) // slice_group_id
				if err != nil {
					return err
				}
			}
		}
	}

	p.NumRefIdxL0DefaultActiveMinus1, err = bits.ReadGolombUnsigned(buf, &pos)
	if err != nil {
		return err
	}
	if p.NumRefIdxL0DefaultActiveMinus1 > 31 {
		return fmt.Errorf("invalid num_ref_idx_l0_default_active_minus1")
	}

	p.NumRefIdxL1DefaultActiveMinus1, err = bits.ReadGolombUnsigned(buf, &pos)
	if err != nil {
		return err
	}
	if p.NumRefIdxL1DefaultActiveMinus1 > 31 {
		return fmt.Errorf("invalid num_ref_idx_l1_default_active_minus1")
	}

	p.WeightedPredFlag, err = bits.ReadFlag(buf, &pos)
	if err != nil {
		return err
	}

	tmp, err := bits.ReadBits(buf, &pos, 2)
	if err != nil {
		return err
	}
	p.WeightedBipredIdc = uint8(tmp)

	p.PicInitQpMinus26, err = bits.ReadGolombSigned(buf, &pos)
	if err != nil {
		return err
	}
	if p.PicInitQpMinus26 < -26 || p.PicInitQpMinus26 > 25 {
		return fmt.Errorf("invalid pic_init_qp_minus26")
	}

	p.PicInitQsMinus26, err = bits.ReadGolombSigned(buf, &pos)
	if err != nil {
		return err
	}
	if p.PicInitQsMinus26 < -26 || p.PicInitQsMinus26 > 25 {
		return fmt.Errorf("invalid pic_init_qs_minus26")
	}

	p.ChromaQpIndexOffset, err = bits.ReadGolombSigned(buf, &pos)
	if err != nil {
		return err
	}
	if p.ChromaQpIndexOffset < -12 || p.ChromaQpIndexOffset > 12 {
		return fmt.Errorf("invalid chroma_qp_index_offset")
	}

	p.DeblockingFilterControlPresentFlag, err = bits.ReadFlag(buf, &pos)
	if err != nil {
		return err
	}

	p.ConstrainedIntraPredFlag, err = bits.ReadFlag(buf, &pos)
	if err != nil {
		return err
	}

	p.RedundantPicCntPresentFlag, err = bits.ReadFlag(buf, &pos)
	if err != nil {
		return err
	}

	p.Transform8x8ModeFlag = false
	p.PicScalingMatrixPresentFlag = false
	p.SecondChromaQpIndexOffset = p.ChromaQpIndexOffset

	if bits.MoreRBSPData(buf, pos) {
		p.Transform8x8ModeFlag, err = bits.ReadFlag(buf, &pos)
		if err != nil {
			return err
		}

		p.PicScalingMatrixPresentFlag, err = bits.ReadFlag(buf, &pos)
		if err != nil {
			return err
		}

		if p.PicScalingMatrixPresentFlag {
			lim := 6
			if p.Transform8x8ModeFlag {
				lim = 8
			}

			for i := 0; i < lim; i++ {
				picScalingListPresentFlag, err := bits.ReadFlag(buf, &pos)
				if err != nil {
					return err
				}

				if picScalingListPresentFlag {
					size := 16
					if i >= 6 {
						size = 64
					}

					_, _, err := readScalingList(buf, &pos, size)
					if err != nil {
						return err
					}
				}
			}
		}

		p.SecondChromaQpIndexOffset, err = bits.ReadGolombSigned(buf, &pos)
		if err != nil {
			return err
		}
		if p.SecondChromaQpIndexOffset < -12 || p.SecondChromaQpIndexOffset > 12 {
			return fmt.Errorf("invalid second_chroma_qp_index_offset")
		}
	}

	return nil
}
