package utils

// getBits reads bitLen bits starting at startBit, MSB-first across the
// payload bytes.
func getBits(data []byte, startBit, bitLen int) uint64 {
	if bitLen <= 0 || bitLen > 64 {
		return 0
	}
	var v uint64
	for i := 0; i < bitLen; i++ {
		pos := startBit + i
		bit := (data[pos/8] >> (7 - uint(pos%8))) & 1
		v = v<<1 | uint64(bit)
	}
	return v
}

func setBits(data []byte, startBit, bitLen int, value uint64) {
	if bitLen <= 0 || bitLen > 64 {
		return
	}
	for i := 0; i < bitLen; i++ {
		pos := startBit + i
		shift := 7 - uint(pos%8)
		bit := byte(value>>(uint(bitLen-1-i))) & 1
		data[pos/8] = data[pos/8]&^(1<<shift) | bit<<shift
	}
}

// Clamp limits v to [lo, hi].
func Clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// clampRaw limits a rounded raw value to the unsigned range of bitLen bits.
func clampRaw(raw float64, bitLen int) uint64 {
	if raw <= 0 {
		return 0
	}
	max := uint64(1)<<63 - 1
	if bitLen < 64 {
		max = (uint64(1) << bitLen) - 1
	}
	if raw >= float64(max) {
		return max
	}
	return uint64(raw)
}
