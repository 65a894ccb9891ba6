package workload

// FillPattern writes the deterministic byte pattern of packet seq into b.
func FillPattern(b []byte, seq uint64) {
	x := byte(seq*131 + 7)
	for i := range b {
		b[i] = x + byte(i)
	}
}

// VerifyPattern returns the index of the first byte of b that differs from
// FillPattern(b, seq), or -1 when b matches.
func VerifyPattern(b []byte, seq uint64) int {
	x := byte(seq*131 + 7)
	for i := range b {
		if b[i] != x+byte(i) {
			return i
		}
	}
	return -1
}
