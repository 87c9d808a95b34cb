package oto

// Int16ToLE appends the values as 16-bit little-endian integers to dst.
func Int16ToLE(frames []int16, dst []byte) []byte {
	for _, v := range frames {
		dst = append(dst, byte(v), byte(uint16(v)>>8))
	}
	return dst
}
