package bits

// WriteBits writes N bits.
func WriteBits(buf []byte, pos *int, bits uint64, n int) {
	res := 8 - (*pos & 0x07)
	if n < res {
		buf[*pos>>0x03] |= byte(bits << (res - n))
		*pos += n
		return
	}

	buf[*pos>>3] |= byte(bits >> (n - res))
	*pos += res
	n -= res

	for n >= 8 {
		buf[*pos>>3] = byte(bits >> (n - 8))
		*pos += 8
		n -= 8
	}

	if n > 0 {
		buf[*pos>>3] = byte((bits & (1<<n - 1)) << (8 - n))
		*pos += n
	}
}

// WriteFlag writes a boolean flag.
func WriteFlag(buf []byte, pos *int, v bool) {
	if v {
		WriteBits(buf, pos, 1, 1)
	} else {
		WriteBits(buf, pos, 0, 1)
	}
}

// WriteGolombUnsigned writes an unsigned golomb-encoded value.
func WriteGolombUnsigned(buf []byte, pos *int, v uint32) {
	codeNum := uint64(v) + 1

	size := 0
	for tmp := codeNum; tmp != 0; tmp >>= 1 {
		size++
	}

	WriteBits(buf, pos, 0, size-1)
	WriteBits(buf, pos, codeNum, size)
}

// WriteGolombSigned writes a signed golomb-encoded value.
func WriteGolombSigned(buf []byte, pos *int, v int32) {
	if v <= 0 {
		WriteGolombUnsigned(buf, pos, uint32(-v)*2)
	} else {
		WriteGolombUnsigned(buf, pos, uint32(v)*2-1)
	}
}
