package h264parser

import (
	"github.com/bluenviron/h264parser/pkg/h264"
)

// pictureContext holds the slice header fields that identify the primary
// coded picture a VCL NAL unit belongs to.
type pictureContext struct {
	firstMbInSlice         uint32
	ppsID                  uint32
	frameNum               uint32
	fieldPicFlag           bool
	bottomFieldFlag        bool
	refIdcZero             bool
	idr                    bool
	idrPicID               uint32
	picOrderCntType        uint32
	picOrderCntLsb         uint32
	deltaPicOrderCntBottom int32
	deltaPicOrderCnt       [2]int32
}

func newPictureContext(n *NALUnit, hdr *h264.SliceHeader, sps *h264.SPS) *pictureContext {
	return &pictureContext{
		firstMbInSlice:         hdr.FirstMbInSlice,
		ppsID:                  hdr.PPSID,
		frameNum:               hdr.FrameNum,
		fieldPicFlag:           hdr.FieldPicFlag,
		bottomFieldFlag:        hdr.BottomFieldFlag,
		refIdcZero:             n.RefIdc == 0,
		idr:                    n.Type == h264.NALUTypeIDR,
		idrPicID:               hdr.IdrPicID,
		picOrderCntType:        sps.PicOrderCntType,
		picOrderCntLsb:         hdr.PicOrderCntLsb,
		deltaPicOrderCntBottom: hdr.DeltaPicOrderCntBottom,
		deltaPicOrderCnt:       hdr.DeltaPicOrderCnt,
	}
}

// accessUnitAssembler groups the incoming NAL unit stream into access
// units. It owns the SPS/PPS state: a parameter set with an existing id
// overwrites the stored value, and slices always resolve against the
// currently stored value.
type accessUnitAssembler struct {
	spsMap map[uint32]*h264.SPS
	ppsMap map[uint32]*h264.PPS

	// non-VCL NAL units awaiting the first slice of the next access unit
	leading     []*NALUnit
	leadingErrs []error

	cur    *AccessUnit
	curCtx *pictureContext

	queue []*AccessUnit
}

func newAccessUnitAssembler() *accessUnitAssembler {
	return &accessUnitAssembler{
		spsMap: make(map[uint32]*h264.SPS),
		ppsMap: make(map[uint32]*h264.PPS),
	}
}

// pop returns the next completed access unit, if any.
func (a *accessUnitAssembler) pop() *AccessUnit {
	if len(a.queue) == 0 {
		return nil
	}
	au := a.queue[0]
	a.queue = a.queue[1:]
	return au
}

func (a *accessUnitAssembler) writeNALU(n *NALUnit, diags []error) {
	if n.Type.IsVCL() {
		a.writeVCL(n, diags)
		return
	}

	switch n.Type {
	case h264.NALUTypeSPS:
		sps := &h264.SPS{}
		if err := sps.Unmarshal(n.raw); err != nil {
			diags = append(diags, ErrMalformedSPS{Err: err})
		} else {
			a.spsMap[sps.ID] = sps
		}

	case h264.NALUTypePPS:
		pps := &h264.PPS{}
		if err := pps.Unmarshal(n.raw); err != nil {
			diags = append(diags, ErrMalformedPPS{Err: err})
		} else {
			a.ppsMap[pps.ID] = pps
		}

	case h264.NALUTypeSEI:
		msgs, err := h264.UnmarshalSEI(n.raw)
		if err != nil {
			diags = append(diags, ErrTruncatedSEI{Err: err})
		}
		n.SEI = msgs

	case h264.NALUTypeEndOfSequence, h264.NALUTypeEndOfStream:
		// these markers close the current access unit and belong to it
		if a.cur != nil {
			a.cur.NALUs = append(a.cur.NALUs, n)
			a.cur.Errors = append(a.cur.Errors, diags...)
			a.finalize()
			return
		}
	}

	// a non-VCL NAL unit belongs to the following access unit
	if a.cur != nil {
		a.finalize()
	}
	a.leading = append(a.leading, n)
	a.leadingErrs = append(a.leadingErrs, diags...)
}

func (a *accessUnitAssembler) writeVCL(n *NALUnit, diags []error) {
	var sps *h264.SPS
	var pps *h264.PPS
	var hdr *h264.SliceHeader

	ppsID, err := h264.SlicePPSID(n.raw)
	switch {
	case err != nil:
		diags = append(diags, ErrMalformedSliceHeader{Err: err})

	default:
		var ok bool
		pps, ok = a.ppsMap[ppsID]
		if !ok {
			diags = append(diags, ErrUnresolvedParameterSet{ID: ppsID})
			break
		}

		sps, ok = a.spsMap[pps.SPSID]
		if !ok {
			diags = append(diags, ErrUnresolvedParameterSet{IsSPS: true, ID: pps.SPSID})
			sps = nil
			break
		}

		hdr = &h264.SliceHeader{}
		if err := hdr.Unmarshal(n.raw, sps, pps); err != nil {
			diags = append(diags, ErrMalformedSliceHeader{Err: err})
			hdr = nil
		}
	}

	n.SliceHeader = hdr

	var ctx *pictureContext
	if hdr != nil {
		ctx = newPictureContext(n, hdr, sps)
	}

	if a.cur != nil && a.isPictureBoundary(ctx) {
		a.finalize()
	}

	if a.cur == nil {
		a.cur = &AccessUnit{
			NALUs:  a.leading,
			Errors: a.leadingErrs,
		}
		a.leading = nil
		a.leadingErrs = nil
	}

	a.cur.NALUs = append(a.cur.NALUs, n)
	a.cur.Errors = append(a.cur.Errors, diags...)

	if sps != nil && a.cur.SPS == nil {
		a.cur.SPS = sps
	}
	if pps != nil && a.cur.PPS == nil {
		a.cur.PPS = pps
	}

	if n.Type == h264.NALUTypeIDR {
		a.cur.Keyframe = true
	}

	if ctx != nil {
		a.curCtx = ctx
	}
}

// isPictureBoundary reports whether a slice starts a new primary coded
// picture, by comparing its header against the previous slice's.
// ref: ISO/IEC 14496-10:2020, section 7.4.1.2.4
func (a *accessUnitAssembler) isPictureBoundary(ctx *pictureContext) bool {
	prev := a.curCtx

	// an undecodable slice cannot be told apart from a continuation
	if ctx == nil || prev == nil {
		return false
	}

	// a continuation slice never starts a picture
	if ctx.firstMbInSlice != 0 {
		return false
	}

	switch {
	case ctx.frameNum != prev.frameNum:
		return true

	case ctx.ppsID != prev.ppsID:
		return true

	case ctx.fieldPicFlag != prev.fieldPicFlag:
		return true

	case ctx.bottomFieldFlag != prev.bottomFieldFlag:
		return true

	case ctx.refIdcZero != prev.refIdcZero:
		return true

	case ctx.idr != prev.idr:
		return true

	case ctx.idr && prev.idr && ctx.idrPicID != prev.idrPicID:
		return true

	case ctx.picOrderCntType == 0 && prev.picOrderCntType == 0 &&
		(ctx.picOrderCntLsb != prev.picOrderCntLsb ||
			ctx.deltaPicOrderCntBottom != prev.deltaPicOrderCntBottom):
		return true

	case ctx.picOrderCntType == 1 && prev.picOrderCntType == 1 &&
		ctx.deltaPicOrderCnt != prev.deltaPicOrderCnt:
		return true
	}

	return false
}

func (a *accessUnitAssembler) finalize() {
	au := a.cur

	for _, nalu := range au.NALUs {
		if nalu.Type != h264.NALUTypeSEI {
			continue
		}
		for _, msg := range nalu.SEI {
			if msg.PayloadType != h264.SEITypeRecoveryPoint {
				continue
			}
			rp := &h264.SEIRecoveryPoint{}
			if rp.Unmarshal(msg.Payload) == nil {
				au.RecoveryPoint = true
				if rp.RecoveryFrameCnt == 0 {
					au.Keyframe = true
				}
			}
		}
	}

	a.queue = append(a.queue, au)
	a.cur = nil
	a.curCtx = nil
}

// flush finalizes the open access unit, if any, then turns any leftover
// leading NAL units into a final access unit of their own.
func (a *accessUnitAssembler) flush() {
	if a.cur != nil {
		a.finalize()
	}

	if len(a.leading) > 0 {
		a.cur = &AccessUnit{
			NALUs:  a.leading,
			Errors: a.leadingErrs,
		}
		a.leading = nil
		a.leadingErrs = nil
		a.finalize()
	}
}
