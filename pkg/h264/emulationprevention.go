package h264

// EmulationPreventionRemove removes emulation prevention bytes from a NALU,
// turning its EBSP into a RBSP.
func EmulationPreventionRemove(nalu []byte) []byte {
	// 0x00 0x00 0x03 0x00 -> 0x00 0x00 0x00
	// 0x00 0x00 0x03 0x01 -> 0x00 0x00 0x01
	// 0x00 0x00 0x03 0x02 -> 0x00 0x00 0x02
	// 0x00 0x00 0x03 0x03 -> 0x00 0x00 0x03

	n := 0
	zeroCount := 0

	for i, b := range nalu {
		if zeroCount == 2 && b == 0x03 && i+1 < len(nalu) && nalu[i+1] <= 0x03 {
			zeroCount = 0
			continue
		}
		n++

		if b == 0 {
			zeroCount++
		} else {
			zeroCount = 0
		}
	}

	ret := make([]byte, n)
	n = 0
	zeroCount = 0

	for i, b := range nalu {
		if zeroCount == 2 && b == 0x03 && i+1 < len(nalu) && nalu[i+1] <= 0x03 {
			zeroCount = 0
			continue
		}
		ret[n] = b
		n++

		if b == 0 {
			zeroCount++
		} else {
			zeroCount = 0
		}
	}

	return ret
}

// EmulationPreventionAdd adds emulation prevention bytes to a RBSP,
// turning it into an EBSP.
func EmulationPreventionAdd(rbsp []byte) []byte {
	n := 0
	zeroCount := 0

	for _, b := range rbsp {
		if zeroCount == 2 && b <= 0x03 {
			n++
			zeroCount = 0
		}
		n++

		if b == 0 {
			zeroCount++
		} else {
			zeroCount = 0
		}
	}

	ret := make([]byte, n)
	n = 0
	zeroCount = 0

	for _, b := range rbsp {
		if zeroCount == 2 && b <= 0x03 {
			ret[n] = 0x03
			n++
			zeroCount = 0
		}
		ret[n] = b
		n++

		if b == 0 {
			zeroCount++
		} else {
			zeroCount = 0
		}
	}

	return ret
}
