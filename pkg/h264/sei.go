package h264

import (
	"fmt"

	"github.com/bluenviron/h264parser/pkg/bits"
)

// SEI payload types.
const (
	SEITypeBufferingPeriod      = 0
	SEITypePicTiming            = 1
	SEITypeUserDataUnregistered = 5
	SEITypeRecoveryPoint        = 6
)

// SEIMessage is a supplemental enhancement information message.
// Payload contents are not interpreted beyond type and size.
type SEIMessage struct {
	PayloadType uint32
	PayloadSize uint32
	Payload     []byte
}

// UnmarshalSEI decodes the SEI messages contained in a NALU.
// In case of a truncated message, messages decoded up to that point
// are returned together with the error.
func UnmarshalSEI(nalu []byte) ([]SEIMessage, error) {
	buf := EmulationPreventionRemove(nalu)

	if len(buf) < 1 {
		return nil, fmt.Errorf("buffer too short")
	}

	if NALUType(buf[0]&0x1F) != NALUTypeSEI {
		return nil, fmt.Errorf("not a SEI")
	}

	var msgs []SEIMessage
	pos := 1

	// 0x80 is the rbsp_trailing_bits stop pattern
	for pos < len(buf) && buf[pos] != 0x80 {
		payloadType := uint32(0)
		for {
			if pos >= len(buf) {
				return msgs, fmt.Errorf("truncated payload type")
			}
			b := buf[pos]
			pos++
			payloadType += uint32(b)
			if b != 0xFF {
				break
			}
		}

		payloadSize := uint32(0)
		for {
			if pos >= len(buf) {
				return msgs, fmt.Errorf("truncated payload size")
			}
			b := buf[pos]
			pos++
			payloadSize += uint32(b)
			if b != 0xFF {
				break
			}
		}

		if (len(buf) - pos) < int(payloadSize) {
			return msgs, fmt.Errorf("payload size (%d) exceeds buffer size (%d)",
				payloadSize, len(buf)-pos)
		}

		msgs = append(msgs, SEIMessage{
			PayloadType: payloadType,
			PayloadSize: payloadSize,
			Payload:     buf[pos : pos+int(payloadSize)],
		})

		pos += int(payloadSize)
	}

	return msgs, nil
}

// SEIRecoveryPoint is a recovery point SEI payload.
type SEIRecoveryPoint struct {
	RecoveryFrameCnt      uint32
	ExactMatchFlag        bool
	BrokenLinkFlag        bool
	ChangingSliceGroupIdc uint8
}

// Unmarshal decodes a recovery point from a SEI message payload.
func (r *SEIRecoveryPoint) Unmarshal(buf []byte) error {
	pos := 0

	var err error
	r.RecoveryFrameCnt, err = bits.ReadGolombUnsigned(buf, &pos)
	if err != nil {
		return err
	}

	r.ExactMatchFlag, err = bits.ReadFlag(buf, &pos)
	if err != nil {
		return err
	}

	r.BrokenLinkFlag, err = bits.ReadFlag(buf, &pos)
	if err != nil {
		return err
	}

	tmp, err := bits.ReadBits(buf, &pos, 2)
	if err != nil {
		return err
	}
	r.ChangingSliceGroupIdc = uint8(tmp)

	return nil
}
