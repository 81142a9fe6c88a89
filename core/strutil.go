package core

// Number formatting without fmt, which is too large for 8-bit targets.

// utoa converts an unsigned integer to decimal
func utoa(n uint64) string {
	if n == 0 {
		return "0"
	}
	var buf [20]byte
	pos := len(buf)
	for n > 0 {
		pos--
		buf[pos] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[pos:])
}

// itoa converts a signed integer to decimal
func itoa(n int) string {
	if n < 0 {
		return "-" + utoa(uint64(-n))
	}
	return utoa(uint64(n))
}

const hexDigits = "0123456789ABCDEF"

// hex16 formats v as four upper-case hex digits with a 0x prefix
func hex16(v uint16) string {
	buf := [6]byte{'0', 'x'}
	for i := 0; i < 4; i++ {
		buf[5-i] = hexDigits[v&0xF]
		v >>= 4
	}
	return string(buf[:])
}
