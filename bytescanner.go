package h264parser

import (
	"github.com/bluenviron/h264parser/pkg/h264"
)

// naluRange is a terminated NAL unit byte range emitted by the scanner.
// Bytes are copied out of the scanner buffer, so they stay valid across
// buffer compactions.
type naluRange struct {
	buf          []byte
	offset       int64
	startCodeLen int
}

// byteScanner locates Annex-B start codes inside pushed byte chunks and
// slices the stream into NAL unit byte ranges. An unterminated trailing
// range is retained across calls, since Annex-B carries no length field:
// a NAL unit is emitted only once the next start code (or a flush)
// proves it complete.
type byteScanner struct {
	buf          []byte
	base         int64
	started      bool
	startCodeLen int
	pos          int
	diags        []error
}

func newByteScanner() *byteScanner {
	return &byteScanner{}
}

func (s *byteScanner) push(buf []byte) {
	s.buf = append(s.buf, buf...)
}

// takeDiags returns and clears accumulated scanner diagnostics.
func (s *byteScanner) takeDiags() []error {
	d := s.diags
	s.diags = nil
	return d
}

// findStartCode locates the next 3-byte start code starting from `from`,
// returning its position and the position of the following data byte.
func (s *byteScanner) findStartCode(from int) (int, int, bool) {
	for i := from; i+2 < len(s.buf); i++ {
		if s.buf[i] == 0x00 && s.buf[i+1] == 0x00 && s.buf[i+2] == 0x01 {
			return i, i + 3, true
		}
	}
	return 0, 0, false
}

// compact discards the buffer prefix before `to`, rebasing offsets.
func (s *byteScanner) compact(to int) {
	s.base += int64(to)
	s.buf = append(s.buf[:0:0], s.buf[to:]...)
	s.pos = 0
}

func trimTrailingZeros(buf []byte) []byte {
	i := len(buf)
	for i > 0 && buf[i-1] == 0x00 {
		i--
	}
	return buf[:i]
}

// next returns the next terminated NAL unit byte range, or nil if more
// input is needed.
func (s *byteScanner) next() (*naluRange, error) {
	for {
		if !s.started {
			scPos, dataPos, ok := s.findStartCode(s.pos)
			if !ok {
				if len(s.buf) > h264.MaxNALUSize {
					return nil, ErrMalformedStartCode{Offset: s.base, Skipped: len(s.buf)}
				}
				s.pos = max(len(s.buf)-2, 0)
				return nil, nil
			}

			// bytes before the first start code: zeros are padding,
			// anything else is a malformed boundary that gets skipped
			skipped := 0
			for _, b := range s.buf[:scPos] {
				if b != 0x00 {
					skipped++
				}
			}
			if skipped > 0 {
				s.diags = append(s.diags, ErrMalformedStartCode{
					Offset:  s.base,
					Skipped: skipped,
				})
			}

			s.startCodeLen = 3
			if scPos > 0 && s.buf[scPos-1] == 0x00 {
				s.startCodeLen = 4
			}

			s.compact(dataPos)
			s.started = true
		}

		// the current NAL unit starts at position 0; look for the start
		// code that terminates it
		scPos, dataPos, ok := s.findStartCode(s.pos)
		if !ok {
			if len(s.buf) > h264.MaxNALUSize {
				return nil, ErrNALUTooBig{Size: len(s.buf)}
			}
			s.pos = max(len(s.buf)-2, 0)
			return nil, nil
		}

		nextStartCodeLen := 3
		if scPos > 0 && s.buf[scPos-1] == 0x00 {
			nextStartCodeLen = 4
		}

		payload := trimTrailingZeros(s.buf[:scPos])

		var rng *naluRange
		if len(payload) != 0 {
			rng = &naluRange{
				buf:          append([]byte(nil), payload...),
				offset:       s.base,
				startCodeLen: s.startCodeLen,
			}
		}

		s.compact(dataPos)
		s.startCodeLen = nextStartCodeLen

		if rng != nil {
			return rng, nil
		}
		// zero-length NAL unit (consecutive start codes): keep scanning
	}
}

// flushRange returns the trailing unterminated range at end-of-stream.
// End-of-stream proves the range complete; ErrTruncatedInput is returned
// for leftover bytes that cannot form a NAL unit.
func (s *byteScanner) flushRange() (*naluRange, error) {
	if !s.started {
		n := len(s.buf)
		off := s.base
		s.base += int64(n)
		s.buf = nil
		s.pos = 0
		if n > 0 {
			return nil, ErrTruncatedInput{Offset: off, Size: n}
		}
		return nil, nil
	}

	payload := trimTrailingZeros(s.buf)
	off := s.base
	size := len(s.buf)
	startCodeLen := s.startCodeLen

	s.base += int64(size)
	s.buf = nil
	s.pos = 0
	s.started = false

	if len(payload) == 0 {
		return nil, ErrTruncatedInput{Offset: off, Size: size}
	}

	return &naluRange{
		buf:          append([]byte(nil), payload...),
		offset:       off,
		startCodeLen: startCodeLen,
	}, nil
}
