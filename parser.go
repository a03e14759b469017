// Package h264parser implements a streaming parser for H264 Annex-B
// elementary streams. It extracts typed NAL units, decodes parameter sets
// and slice headers, and groups NAL units into access units, flagging
// which ones are keyframes.
package h264parser

// Parser is a streaming H264 Annex-B parser.
//
// The caller drives it by alternating Push(), which appends raw bytes, and
// NextAccessUnit(), which returns completed access units. Chunk boundaries
// carry no meaning: any chunking of the same stream produces the same
// sequence of access units.
type Parser struct {
	scanner   *byteScanner
	assembler *accessUnitAssembler
}

// NewParser allocates a Parser.
func NewParser() *Parser {
	return &Parser{
		scanner:   newByteScanner(),
		assembler: newAccessUnitAssembler(),
	}
}

// Push appends stream bytes to the parser buffer. It never blocks and
// performs no decoding.
func (p *Parser) Push(buf []byte) {
	p.scanner.push(buf)
}

// NextAccessUnit returns the next completed access unit.
//
// It returns nil with a nil error when more input is needed, and a non-nil
// error only on non-recoverable conditions; NAL-unit-scoped decoding errors
// are reported through AccessUnit.Errors instead.
func (p *Parser) NextAccessUnit() (*AccessUnit, error) {
	for {
		if au := p.assembler.pop(); au != nil {
			return au, nil
		}

		rng, err := p.scanner.next()
		if err != nil {
			return nil, err
		}
		if rng == nil {
			return nil, nil
		}

		p.processRange(rng)
	}
}

// Flush forces the finalization of the open access unit at end-of-stream.
// Call it repeatedly until it returns nil: a single stream tail can
// complete more than one access unit.
func (p *Parser) Flush() (*AccessUnit, error) {
	if au := p.assembler.pop(); au != nil {
		return au, nil
	}

	// terminated NAL units still in the buffer are processed normally;
	// only the unterminated remainder is treated as the stream tail
	for {
		rng, err := p.scanner.next()
		if err != nil {
			return nil, err
		}
		if rng == nil {
			break
		}
		p.processRange(rng)
	}

	rng, ferr := p.scanner.flushRange()
	if rng != nil {
		p.processRange(rng)
	}

	p.assembler.flush()

	if ferr != nil {
		// the tail error describes the end of the stream: it belongs to
		// the last access unit, if any
		if n := len(p.assembler.queue); n > 0 {
			au := p.assembler.queue[n-1]
			au.Errors = append(au.Errors, ferr)
			ferr = nil
		}
	}

	if au := p.assembler.pop(); au != nil {
		return au, nil
	}

	return nil, ferr
}

// Reset restores the parser to its initial state, discarding buffered
// bytes, stored parameter sets and the access unit being assembled.
func (p *Parser) Reset() {
	p.scanner = newByteScanner()
	p.assembler = newAccessUnitAssembler()
}

func (p *Parser) processRange(rng *naluRange) {
	diags := p.scanner.takeDiags()

	n, warn := parseNALUnit(rng)
	if warn != nil {
		diags = append(diags, warn)
	}

	p.assembler.writeNALU(n, diags)
}
